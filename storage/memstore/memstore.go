// Package memstore is an in-process storage.PostStore.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/c360/postgraph/storage"
)

// Store keeps posts in a map guarded by a mutex. Ids have the same shape as
// MongoDB ObjectIDs so clients cannot tell the backends apart.
type Store struct {
	mu    sync.RWMutex
	posts map[string]storage.Post
	now   func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		posts: make(map[string]storage.Post),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create implements storage.PostStore
func (s *Store) Create(_ context.Context, post storage.Post) (*storage.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	post = post.Clone()
	post.ID = primitive.NewObjectIDFromTimestamp(now).Hex()
	post.CreatedAt = now
	post.UpdatedAt = now
	s.posts[post.ID] = post

	out := post.Clone()
	return &out, nil
}

// FindByID implements storage.PostStore
func (s *Store) FindByID(_ context.Context, id string) (*storage.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := post.Clone()
	return &out, nil
}

// Find implements storage.PostStore
func (s *Store) Find(_ context.Context, filter storage.PostFilter) ([]*storage.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*storage.Post, 0)
	for _, post := range s.posts {
		if filter.Matches(&post) {
			out := post.Clone()
			result = append(result, &out)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// UpdateByID implements storage.PostStore
func (s *Store) UpdateByID(_ context.Context, id string, patch storage.PostPatch) (*storage.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	if patch.Title != nil {
		post.Title = *patch.Title
	}
	if patch.Content != nil {
		post.Content = *patch.Content
	}
	if patch.Likes != nil {
		post.Likes = patch.Likes
	}
	post = post.Clone()
	post.UpdatedAt = s.now()
	s.posts[id] = post

	out := post.Clone()
	return &out, nil
}

// DeleteByID implements storage.PostStore
func (s *Store) DeleteByID(_ context.Context, id string) (*storage.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	delete(s.posts, id)
	return &post, nil
}

// DeleteMany implements storage.PostStore
func (s *Store) DeleteMany(_ context.Context, filter storage.PostFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, post := range s.posts {
		if filter.Matches(&post) {
			delete(s.posts, id)
			n++
		}
	}
	return n, nil
}

// Ping implements storage.PostStore
func (s *Store) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored posts
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}
