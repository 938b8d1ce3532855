package resolver

import (
	"context"
	"slices"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/events"
	"github.com/c360/postgraph/identity"
	"github.com/c360/postgraph/storage"
)

// UpdatePostInput is a partial post update. Nil fields are left untouched.
type UpdatePostInput struct {
	ID      string
	Title   *string
	Content *string
}

func (in UpdatePostInput) patch() storage.PostPatch {
	return storage.PostPatch{Title: in.Title, Content: in.Content}
}

func (in UpdatePostInput) changes() map[string]any {
	changes := map[string]any{}
	if in.Title != nil {
		changes["title"] = *in.Title
	}
	if in.Content != nil {
		changes["content"] = *in.Content
	}
	return changes
}

// PostQueries are the unauthenticated post reads
type PostQueries struct {
	*base
}

// Posts returns every post
func (q *PostQueries) Posts(ctx context.Context, _ identity.Identity) ([]*storage.Post, error) {
	return q.find(ctx, "posts", storage.PostFilter{})
}

// PostByID returns one post or NOT_FOUND
func (q *PostQueries) PostByID(ctx context.Context, _ identity.Identity, id string) (*storage.Post, error) {
	var post *storage.Post
	err := q.observe("postById", func() error {
		p, err := q.store.FindByID(ctx, id)
		if err != nil {
			return storeFailure(err)
		}
		post = p
		return nil
	})
	return post, err
}

// PostsByAuthorID returns the posts written by authorID
func (q *PostQueries) PostsByAuthorID(ctx context.Context, _ identity.Identity, authorID string) ([]*storage.Post, error) {
	return q.find(ctx, "postsByAuthorId", storage.ByAuthor(authorID))
}

// PostsLikedByUserID returns the posts whose likes contain userID
func (q *PostQueries) PostsLikedByUserID(ctx context.Context, _ identity.Identity, userID string) ([]*storage.Post, error) {
	return q.find(ctx, "postsLikedByUserId", storage.ByLiker(userID))
}

func (q *PostQueries) find(ctx context.Context, operation string, filter storage.PostFilter) ([]*storage.Post, error) {
	var posts []*storage.Post
	err := q.observe(operation, func() error {
		found, err := q.store.Find(ctx, filter)
		if err != nil {
			return errors.Internal(err)
		}
		posts = found
		return nil
	})
	return posts, err
}

// PostMutations are the post writes. Like and unlike are serialized per post
// within this process.
type PostMutations struct {
	*base
	likes *keyedMutex
}

// CreatePost stores a new post authored by the caller
func (m *PostMutations) CreatePost(ctx context.Context, who identity.Identity, title, content string) (*storage.Post, error) {
	var post *storage.Post
	err := m.observe("createPost", func() error {
		if !who.HasToken() {
			return errors.NotAuthorized(msgNotAuthorizedPublish)
		}

		created, err := m.store.Create(ctx, storage.Post{
			Title:   title,
			Content: content,
			Author:  who.UserID,
			Likes:   []string{},
		})
		if err != nil {
			return errors.Internal(err)
		}
		post = created
		m.emit(ctx, events.New(events.PostCreated, who.UserID, created.ID, map[string]any{
			"title": created.Title,
		}))
		return nil
	})
	return post, err
}

// UpdatePost changes title or content of a post the caller authored
func (m *PostMutations) UpdatePost(ctx context.Context, who identity.Identity, in UpdatePostInput) (*storage.Post, error) {
	var post *storage.Post
	err := m.observe("updatePost", func() error {
		if !who.HasToken() {
			return errors.NotAuthorized(msgNotAuthorizedUpdate)
		}

		existing, err := m.store.FindByID(ctx, in.ID)
		if err != nil {
			return storeFailure(err)
		}
		if existing.Author != who.UserID {
			return errors.NotAuthorized(msgNotAuthorizedUpdateThis)
		}

		updated, err := m.store.UpdateByID(ctx, in.ID, in.patch())
		if err != nil {
			return storeFailure(err)
		}
		post = updated
		m.emit(ctx, events.New(events.PostUpdated, who.UserID, updated.ID, in.changes()))
		return nil
	})
	return post, err
}

// UpdatePostAsAdmin changes any post; the caller must be an admin
func (m *PostMutations) UpdatePostAsAdmin(ctx context.Context, who identity.Identity, in UpdatePostInput) (*storage.Post, error) {
	var post *storage.Post
	err := m.observe("updatePostAsAdmin", func() error {
		if !who.HasToken() || !who.IsAdmin {
			return errors.NotAuthorized(msgNotAuthorizedUpdate)
		}

		updated, err := m.store.UpdateByID(ctx, in.ID, in.patch())
		if err != nil {
			return storeFailure(err)
		}
		post = updated

		data := in.changes()
		data["admin"] = true
		m.emit(ctx, events.New(events.PostUpdated, who.UserID, updated.ID, data))
		return nil
	})
	return post, err
}

// DeletePost removes a post the caller authored and returns it
func (m *PostMutations) DeletePost(ctx context.Context, who identity.Identity, id string) (*storage.Post, error) {
	var post *storage.Post
	err := m.observe("deletePost", func() error {
		if !who.HasToken() {
			return errors.NotAuthorized(msgNotAuthorizedDelete)
		}

		existing, err := m.store.FindByID(ctx, id)
		if err != nil {
			return storeFailure(err)
		}
		if existing.Author != who.UserID {
			return errors.NotAuthorized(msgNotAuthorizedDeleteThis)
		}

		deleted, err := m.store.DeleteByID(ctx, id)
		if err != nil {
			return storeFailure(err)
		}
		post = deleted
		m.emit(ctx, events.New(events.PostDeleted, who.UserID, deleted.ID, nil))
		return nil
	})
	return post, err
}

// DeletePostAsAdmin removes any post; the caller must be an admin
func (m *PostMutations) DeletePostAsAdmin(ctx context.Context, who identity.Identity, id string) (*storage.Post, error) {
	var post *storage.Post
	err := m.observe("deletePostAsAdmin", func() error {
		if !who.HasToken() || !who.IsAdmin {
			return errors.NotAuthorized(msgNotAuthorizedDelete)
		}

		deleted, err := m.store.DeleteByID(ctx, id)
		if err != nil {
			return storeFailure(err)
		}
		post = deleted
		m.emit(ctx, events.New(events.PostDeleted, who.UserID, deleted.ID, map[string]any{"admin": true}))
		return nil
	})
	return post, err
}

// LikePost adds the caller to a post's likes. Liking twice is BAD_REQUEST.
func (m *PostMutations) LikePost(ctx context.Context, who identity.Identity, postID string) (*storage.Post, error) {
	var post *storage.Post
	err := m.observe("likePost", func() error {
		if who.UserID == "" {
			return errors.NotAuthorized(msgNotAuthorizedLike)
		}

		unlock := m.likes.Lock(postID)
		defer unlock()

		existing, err := m.store.FindByID(ctx, postID)
		if err != nil {
			return storeFailure(err)
		}
		if existing.LikedBy(who.UserID) {
			return errors.BadRequest(msgPostAlreadyLiked)
		}

		likes := append(slices.Clone(existing.Likes), who.UserID)
		updated, err := m.store.UpdateByID(ctx, postID, storage.PostPatch{Likes: likes})
		if err != nil {
			return storeFailure(err)
		}
		post = updated
		m.emit(ctx, events.New(events.PostLiked, who.UserID, updated.ID, nil))
		return nil
	})
	return post, err
}

// UnlikePost removes the caller from a post's likes. Unliking a post the
// caller has not liked is BAD_REQUEST.
func (m *PostMutations) UnlikePost(ctx context.Context, who identity.Identity, postID string) (*storage.Post, error) {
	var post *storage.Post
	err := m.observe("unlikePost", func() error {
		if !who.HasToken() {
			return errors.NotAuthorized(msgNotAuthorizedUnlike)
		}

		unlock := m.likes.Lock(postID)
		defer unlock()

		existing, err := m.store.FindByID(ctx, postID)
		if err != nil {
			return storeFailure(err)
		}
		if !existing.LikedBy(who.UserID) {
			return errors.BadRequest(msgPostNotLiked)
		}

		likes := slices.DeleteFunc(slices.Clone(existing.Likes), func(id string) bool {
			return id == who.UserID
		})
		updated, err := m.store.UpdateByID(ctx, postID, storage.PostPatch{Likes: likes})
		if err != nil {
			return storeFailure(err)
		}
		post = updated
		m.emit(ctx, events.New(events.PostUnliked, who.UserID, updated.ID, nil))
		return nil
	})
	return post, err
}
