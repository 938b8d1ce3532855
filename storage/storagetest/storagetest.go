// Package storagetest is a conformance suite every storage.PostStore
// implementation must pass.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/postgraph/storage"
)

// Factory returns an empty store for one subtest
type Factory func(t *testing.T) storage.PostStore

// ignoreTimes compares posts without their server-assigned timestamps
var ignoreTimes = cmpopts.IgnoreFields(storage.Post{}, "CreatedAt", "UpdatedAt")

// Run executes the suite against stores produced by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndFind", func(t *testing.T) { testCreateAndFind(t, newStore(t)) })
	t.Run("FindByIDMissing", func(t *testing.T) { testFindByIDMissing(t, newStore(t)) })
	t.Run("FindFilters", func(t *testing.T) { testFindFilters(t, newStore(t)) })
	t.Run("UpdateByID", func(t *testing.T) { testUpdateByID(t, newStore(t)) })
	t.Run("DeleteByID", func(t *testing.T) { testDeleteByID(t, newStore(t)) })
	t.Run("DeleteMany", func(t *testing.T) { testDeleteMany(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

func mustCreate(t *testing.T, s storage.PostStore, title, author string, likes ...string) *storage.Post {
	t.Helper()
	p, err := s.Create(context.Background(), storage.Post{
		Title:   title,
		Content: title + " content",
		Author:  author,
		Likes:   likes,
	})
	require.NoError(t, err)
	return p
}

func testCreateAndFind(t *testing.T, s storage.PostStore) {
	ctx := context.Background()

	created := mustCreate(t, s, "hello", "a1")
	require.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.Equal(t, []string{}, created.Likes)

	found, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)

	want := storage.Post{ID: created.ID, Title: "hello", Content: "hello content", Author: "a1", Likes: []string{}}
	if diff := cmp.Diff(want, *found, ignoreTimes); diff != "" {
		t.Errorf("FindByID mismatch (-want +got):\n%s", diff)
	}
}

func testFindByIDMissing(t *testing.T, s storage.PostStore) {
	ctx := context.Background()

	_, err := s.FindByID(ctx, "000000000000000000000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.FindByID(ctx, "not-an-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testFindFilters(t *testing.T, s storage.PostStore) {
	ctx := context.Background()

	p1 := mustCreate(t, s, "one", "a1", "u1")
	time.Sleep(2 * time.Millisecond)
	p2 := mustCreate(t, s, "two", "a1")
	time.Sleep(2 * time.Millisecond)
	p3 := mustCreate(t, s, "three", "a2", "u1", "u2")

	tests := []struct {
		name   string
		filter storage.PostFilter
		want   []string
	}{
		{"all", storage.PostFilter{}, []string{p1.ID, p2.ID, p3.ID}},
		{"by author", storage.ByAuthor("a1"), []string{p1.ID, p2.ID}},
		{"liked by", storage.ByLiker("u1"), []string{p1.ID, p3.ID}},
		{"author and like", storage.ByAuthor("a2").AndLikedBy("u2"), []string{p3.ID}},
		{"no match", storage.ByAuthor("nobody"), []string{}},
		{"empty author", storage.ByAuthor(""), []string{}},
		{"empty liker", storage.ByLiker(""), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts, err := s.Find(ctx, tt.filter)
			require.NoError(t, err)
			require.NotNil(t, posts)

			ids := make([]string, 0, len(posts))
			for _, p := range posts {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func testUpdateByID(t *testing.T, s storage.PostStore) {
	ctx := context.Background()
	created := mustCreate(t, s, "draft", "a1")
	time.Sleep(2 * time.Millisecond)

	title := "final"
	updated, err := s.UpdateByID(ctx, created.ID, storage.PostPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.Equal(t, "draft content", updated.Content)
	assert.Equal(t, "a1", updated.Author)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	updated, err = s.UpdateByID(ctx, created.ID, storage.PostPatch{Likes: []string{"u1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, updated.Likes)
	assert.Equal(t, "final", updated.Title)

	updated, err = s.UpdateByID(ctx, created.ID, storage.PostPatch{Likes: []string{}})
	require.NoError(t, err)
	assert.Empty(t, updated.Likes)

	_, err = s.UpdateByID(ctx, "000000000000000000000000", storage.PostPatch{Title: &title})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.UpdateByID(ctx, "bogus", storage.PostPatch{Title: &title})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDeleteByID(t *testing.T, s storage.PostStore) {
	ctx := context.Background()
	created := mustCreate(t, s, "gone", "a1")

	deleted, err := s.DeleteByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, deleted.ID)

	_, err = s.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.DeleteByID(ctx, created.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDeleteMany(t *testing.T, s storage.PostStore) {
	ctx := context.Background()
	mustCreate(t, s, "a", "a1")
	mustCreate(t, s, "b", "a1")
	keep := mustCreate(t, s, "c", "a2")

	n, err := s.DeleteMany(ctx, storage.ByAuthor("a1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.Find(ctx, storage.PostFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, keep.ID, left[0].ID)

	n, err = s.DeleteMany(ctx, storage.ByAuthor("a1"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	n, err = s.DeleteMany(ctx, storage.ByAuthor(""))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "empty author removes nothing")
	left, err = s.Find(ctx, storage.PostFilter{})
	require.NoError(t, err)
	assert.Len(t, left, 1)
}
