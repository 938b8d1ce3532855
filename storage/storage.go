// Package storage defines the post document model and the store contract the
// resolvers persist posts through.
//
// Two implementations live in subpackages: mongostore backs production
// deployments with MongoDB and memstore keeps posts in process for tests and
// local development. Both share the semantics documented on PostStore.
package storage

import (
	"context"
	"slices"
	"time"

	"github.com/c360/postgraph/errors"
)

// ErrNotFound is returned when no post matches an id. Malformed ids are
// reported the same way.
var ErrNotFound = errors.New("post not found")

// Post is a stored post. Author and Likes hold identity service user ids.
type Post struct {
	ID        string
	Title     string
	Content   string
	Author    string
	Likes     []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LikedBy reports whether userID is in the post's likes
func (p *Post) LikedBy(userID string) bool {
	return slices.Contains(p.Likes, userID)
}

// Clone returns a copy that shares no slices with p
func (p Post) Clone() Post {
	p.Likes = slices.Clone(p.Likes)
	if p.Likes == nil {
		p.Likes = []string{}
	}
	return p
}

// PostFilter selects posts. Nil fields match everything; set fields are
// ANDed and compared exactly, so a set empty string matches only posts that
// really carry "".
type PostFilter struct {
	Author  *string
	LikedBy *string
}

// ByAuthor selects the posts written by author
func ByAuthor(author string) PostFilter { return PostFilter{Author: &author} }

// ByLiker selects the posts whose likes contain userID
func ByLiker(userID string) PostFilter { return PostFilter{LikedBy: &userID} }

// AndLikedBy narrows f to posts also liked by userID
func (f PostFilter) AndLikedBy(userID string) PostFilter {
	f.LikedBy = &userID
	return f
}

// Matches reports whether p satisfies the filter
func (f PostFilter) Matches(p *Post) bool {
	if f.Author != nil && p.Author != *f.Author {
		return false
	}
	if f.LikedBy != nil && !p.LikedBy(*f.LikedBy) {
		return false
	}
	return true
}

// PostPatch is a partial update. Nil fields are left untouched; a non-nil
// Likes replaces the whole set.
type PostPatch struct {
	Title   *string
	Content *string
	Likes   []string
}

// Empty reports whether the patch changes nothing
func (p PostPatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Likes == nil
}

// PostStore persists posts. Implementations are safe for concurrent use.
type PostStore interface {
	// Create assigns an id and timestamps, and returns the stored post
	Create(ctx context.Context, post Post) (*Post, error)

	// FindByID returns ErrNotFound when absent
	FindByID(ctx context.Context, id string) (*Post, error)

	// Find returns matching posts oldest first, never nil
	Find(ctx context.Context, filter PostFilter) ([]*Post, error)

	// UpdateByID applies patch, bumps UpdatedAt and returns the updated post.
	// ErrNotFound when absent.
	UpdateByID(ctx context.Context, id string, patch PostPatch) (*Post, error)

	// DeleteByID returns the deleted post, or ErrNotFound when absent
	DeleteByID(ctx context.Context, id string) (*Post, error)

	// DeleteMany removes matching posts and returns how many were removed
	DeleteMany(ctx context.Context, filter PostFilter) (int64, error)

	// Ping checks the backend is reachable
	Ping(ctx context.Context) error
}
