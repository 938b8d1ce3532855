package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostFilter_Matches(t *testing.T) {
	post := &Post{ID: "p1", Author: "a", Likes: []string{"u1", "u2"}}

	tests := []struct {
		name   string
		filter PostFilter
		want   bool
	}{
		{"empty filter", PostFilter{}, true},
		{"author match", ByAuthor("a"), true},
		{"author mismatch", ByAuthor("b"), false},
		{"empty author", ByAuthor(""), false},
		{"liked by", ByLiker("u2"), true},
		{"not liked by", ByLiker("u3"), false},
		{"empty liker", ByLiker(""), false},
		{"both match", ByAuthor("a").AndLikedBy("u1"), true},
		{"one mismatch", ByAuthor("a").AndLikedBy("u3"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(post))
		})
	}
}

func TestPost_Clone(t *testing.T) {
	original := Post{ID: "p1", Likes: []string{"u1"}}
	clone := original.Clone()
	clone.Likes[0] = "changed"

	assert.Equal(t, "u1", original.Likes[0])
	assert.Equal(t, []string{}, Post{}.Clone().Likes)
}

func TestPostPatch_Empty(t *testing.T) {
	title := "t"
	assert.True(t, PostPatch{}.Empty())
	assert.False(t, PostPatch{Title: &title}.Empty())
	assert.False(t, PostPatch{Likes: []string{}}.Empty())
}
