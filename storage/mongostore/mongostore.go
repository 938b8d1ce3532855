// Package mongostore is the MongoDB storage.PostStore.
//
// Posts live in one collection. The document shape follows the service's
// historical mongoose model: title, content, author, likes and the
// createdAt/updatedAt timestamps.
package mongostore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/pkg/retry"
	"github.com/c360/postgraph/storage"
)

// Config locates the posts collection
type Config struct {
	// URL is the MongoDB connection string
	URL string `json:"url" yaml:"url"`

	// Database name (default: "postgraph")
	Database string `json:"database" yaml:"database"`

	// Collection name (default: "posts")
	Collection string `json:"collection" yaml:"collection"`

	// ConnectTimeoutStr bounds each connection attempt (default: "10s")
	ConnectTimeoutStr string `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
}

// Validate fills defaults
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "mongo url is required")
	}
	if c.Database == "" {
		c.Database = "postgraph"
	}
	if c.Collection == "" {
		c.Collection = "posts"
	}
	if c.ConnectTimeoutStr == "" {
		c.ConnectTimeoutStr = "10s"
	}
	if d, err := time.ParseDuration(c.ConnectTimeoutStr); err != nil || d <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("invalid connect_timeout: %s", c.ConnectTimeoutStr))
	}
	return nil
}

func (c *Config) connectTimeout() time.Duration {
	d, err := time.ParseDuration(c.ConnectTimeoutStr)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

type postDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Title     string             `bson:"title"`
	Content   string             `bson:"content"`
	Author    string             `bson:"author"`
	Likes     []string           `bson:"likes"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d *postDocument) toPost() *storage.Post {
	p := storage.Post{
		ID:        d.ID.Hex(),
		Title:     d.Title,
		Content:   d.Content,
		Author:    d.Author,
		Likes:     d.Likes,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}.Clone()
	return &p
}

// Store is a storage.PostStore over a MongoDB collection
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	ownsClient bool
	logger     *slog.Logger
}

// Connect dials MongoDB, retrying with backoff until it answers a ping, and
// ensures the collection indexes exist. The returned store owns the client.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mongostore")

	var client *mongo.Client
	err := retry.Do(ctx, retry.Startup(), func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.connectTimeout())
		defer cancel()

		c, err := mongo.Connect(attemptCtx, options.Client().ApplyURI(cfg.URL))
		if err != nil {
			return retry.Permanent(err)
		}
		if err := c.Ping(attemptCtx, readpref.Primary()); err != nil {
			_ = c.Disconnect(context.Background())
			logger.Warn("MongoDB not reachable yet", "error", err)
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "mongostore", "Connect", "connect to MongoDB")
	}

	s := New(client.Database(cfg.Database).Collection(cfg.Collection), logger)
	s.ownsClient = true

	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("Connected to MongoDB", "database", cfg.Database, "collection", cfg.Collection)
	return s, nil
}

// New wraps an existing collection. The caller keeps ownership of its client.
func New(collection *mongo.Collection, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:     collection.Database().Client(),
		collection: collection,
		logger:     logger,
	}
}

// EnsureIndexes creates the author and likes indexes used by the filters
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "author", Value: 1}}},
		{Keys: bson.D{{Key: "likes", Value: 1}}},
	})
	if err != nil {
		return errors.WrapTransient(err, "mongostore", "EnsureIndexes", "create indexes")
	}
	return nil
}

// Create implements storage.PostStore
func (s *Store) Create(ctx context.Context, post storage.Post) (*storage.Post, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := postDocument{
		ID:        primitive.NewObjectID(),
		Title:     post.Title,
		Content:   post.Content,
		Author:    post.Author,
		Likes:     post.Clone().Likes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return nil, errors.WrapTransient(err, "mongostore", "Create", "insert post")
	}
	return doc.toPost(), nil
}

// FindByID implements storage.PostStore
func (s *Store) FindByID(ctx context.Context, id string) (*storage.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, storage.ErrNotFound
	}

	var doc postDocument
	if err := s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, s.translate(err, "FindByID")
	}
	return doc.toPost(), nil
}

// Find implements storage.PostStore
func (s *Store) Find(ctx context.Context, filter storage.PostFilter) ([]*storage.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.collection.Find(ctx, toBSON(filter), opts)
	if err != nil {
		return nil, errors.WrapTransient(err, "mongostore", "Find", "query posts")
	}
	defer cursor.Close(ctx)

	posts := make([]*storage.Post, 0)
	for cursor.Next(ctx) {
		var doc postDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.WrapInvalid(err, "mongostore", "Find", "decode post")
		}
		posts = append(posts, doc.toPost())
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.WrapTransient(err, "mongostore", "Find", "iterate posts")
	}
	return posts, nil
}

// UpdateByID implements storage.PostStore
func (s *Store) UpdateByID(ctx context.Context, id string, patch storage.PostPatch) (*storage.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, storage.ErrNotFound
	}

	set := bson.M{"updatedAt": time.Now().UTC().Truncate(time.Millisecond)}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Content != nil {
		set["content"] = *patch.Content
	}
	if patch.Likes != nil {
		set["likes"] = patch.Likes
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc postDocument
	err = s.collection.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		return nil, s.translate(err, "UpdateByID")
	}
	return doc.toPost(), nil
}

// DeleteByID implements storage.PostStore
func (s *Store) DeleteByID(ctx context.Context, id string) (*storage.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, storage.ErrNotFound
	}

	var doc postDocument
	if err := s.collection.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, s.translate(err, "DeleteByID")
	}
	return doc.toPost(), nil
}

// DeleteMany implements storage.PostStore
func (s *Store) DeleteMany(ctx context.Context, filter storage.PostFilter) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, toBSON(filter))
	if err != nil {
		return 0, errors.WrapTransient(err, "mongostore", "DeleteMany", "delete posts")
	}
	return res.DeletedCount, nil
}

// Ping implements storage.PostStore
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return errors.WrapTransient(err, "mongostore", "Ping", "ping MongoDB")
	}
	return nil
}

// Close disconnects the client if the store created it
func (s *Store) Close(ctx context.Context) error {
	if !s.ownsClient {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return errors.WrapTransient(err, "mongostore", "Close", "disconnect")
	}
	return nil
}

func (s *Store) translate(err error, method string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	return errors.WrapTransient(err, "mongostore", method, "query post")
}

func toBSON(f storage.PostFilter) bson.M {
	q := bson.M{}
	if f.Author != nil {
		q["author"] = *f.Author
	}
	if f.LikedBy != nil {
		q["likes"] = *f.LikedBy
	}
	return q
}
