package resolver

import (
	"context"

	"github.com/c360/postgraph/storage"
	"github.com/c360/postgraph/userservice"
)

// PostFields resolves post fields that live outside the post store
type PostFields struct {
	*base
}

// Author fetches the post's author from the identity service. It only runs
// when a client selects the author field.
func (f *PostFields) Author(ctx context.Context, post *storage.Post) (*userservice.User, error) {
	var user *userservice.User
	err := f.observe("Post.author", func() error {
		u, err := f.users.GetUser(ctx, post.Author)
		if err != nil {
			return upstreamFailure(err)
		}
		user = u
		return nil
	})
	return user, err
}
