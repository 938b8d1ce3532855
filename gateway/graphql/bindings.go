package graphql

import (
	"context"

	graphqlgo "github.com/graph-gophers/graphql-go"

	"github.com/c360/postgraph/identity"
	"github.com/c360/postgraph/resolver"
	"github.com/c360/postgraph/storage"
	"github.com/c360/postgraph/userservice"
)

// rootResolver binds schema root fields to the capability groups. Each
// binding reads the caller identity from the request context once and passes
// it explicitly.
type rootResolver struct {
	r *resolver.Resolvers
}

type userModifyInput struct {
	Username *string
	Email    *string
	Password *string
}

func (in userModifyInput) modify() userservice.UserModify {
	return userservice.UserModify{Username: in.Username, Email: in.Email, Password: in.Password}
}

type updatePostInput struct {
	ID      graphqlgo.ID
	Title   *string
	Content *string
}

func (in updatePostInput) update() resolver.UpdatePostInput {
	return resolver.UpdatePostInput{ID: string(in.ID), Title: in.Title, Content: in.Content}
}

// Queries

func (q *rootResolver) Users(ctx context.Context) ([]*userResolver, error) {
	users, err := q.r.UserQueries.Users(ctx, identity.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]*userResolver, len(users))
	for i := range users {
		out[i] = &userResolver{u: users[i]}
	}
	return out, nil
}

func (q *rootResolver) UserByID(ctx context.Context, args struct{ ID graphqlgo.ID }) (*userResolver, error) {
	user, err := q.r.UserQueries.UserByID(ctx, identity.FromContext(ctx), string(args.ID))
	return wrapUser(user), err
}

func (q *rootResolver) Posts(ctx context.Context) ([]*postResolver, error) {
	posts, err := q.r.PostQueries.Posts(ctx, identity.FromContext(ctx))
	return q.wrapPosts(posts), err
}

func (q *rootResolver) PostByID(ctx context.Context, args struct{ ID graphqlgo.ID }) (*postResolver, error) {
	post, err := q.r.PostQueries.PostByID(ctx, identity.FromContext(ctx), string(args.ID))
	return q.wrapPost(post), err
}

func (q *rootResolver) PostsByAuthorID(ctx context.Context, args struct{ AuthorID graphqlgo.ID }) ([]*postResolver, error) {
	posts, err := q.r.PostQueries.PostsByAuthorID(ctx, identity.FromContext(ctx), string(args.AuthorID))
	return q.wrapPosts(posts), err
}

func (q *rootResolver) PostsLikedByUserID(ctx context.Context, args struct{ UserID graphqlgo.ID }) ([]*postResolver, error) {
	posts, err := q.r.PostQueries.PostsLikedByUserID(ctx, identity.FromContext(ctx), string(args.UserID))
	return q.wrapPosts(posts), err
}

// User mutations

func (q *rootResolver) Register(ctx context.Context, args struct {
	User struct {
		Username string
		Email    string
		Password string
	}
}) (*userMessageResolver, error) {
	resp, err := q.r.UserMutations.Register(ctx, identity.FromContext(ctx), userservice.UserInput{
		Username: args.User.Username,
		Email:    args.User.Email,
		Password: args.User.Password,
	})
	return wrapUserMessage(resp), err
}

func (q *rootResolver) Login(ctx context.Context, args struct {
	Credentials struct {
		Username string
		Password string
	}
}) (*loginMessageResolver, error) {
	resp, err := q.r.UserMutations.Login(ctx, identity.FromContext(ctx), userservice.Credentials{
		Username: args.Credentials.Username,
		Password: args.Credentials.Password,
	})
	if err != nil || resp == nil {
		return nil, err
	}
	return &loginMessageResolver{resp: resp}, nil
}

func (q *rootResolver) UpdateUser(ctx context.Context, args struct{ User userModifyInput }) (*userMessageResolver, error) {
	resp, err := q.r.UserMutations.UpdateUser(ctx, identity.FromContext(ctx), args.User.modify())
	return wrapUserMessage(resp), err
}

func (q *rootResolver) DeleteUser(ctx context.Context) (*userMessageResolver, error) {
	resp, err := q.r.UserMutations.DeleteUser(ctx, identity.FromContext(ctx))
	return wrapUserMessage(resp), err
}

func (q *rootResolver) UpdateUserAsAdmin(ctx context.Context, args struct {
	ID   graphqlgo.ID
	User userModifyInput
}) (*userMessageResolver, error) {
	resp, err := q.r.UserMutations.UpdateUserAsAdmin(ctx, identity.FromContext(ctx), string(args.ID), args.User.modify())
	return wrapUserMessage(resp), err
}

func (q *rootResolver) DeleteUserAsAdmin(ctx context.Context, args struct{ ID graphqlgo.ID }) (*userMessageResolver, error) {
	resp, err := q.r.UserMutations.DeleteUserAsAdmin(ctx, identity.FromContext(ctx), string(args.ID))
	return wrapUserMessage(resp), err
}

// Post mutations

func (q *rootResolver) CreatePost(ctx context.Context, args struct {
	Title   string
	Content string
}) (*postResolver, error) {
	post, err := q.r.PostMutations.CreatePost(ctx, identity.FromContext(ctx), args.Title, args.Content)
	return q.wrapPost(post), err
}

func (q *rootResolver) UpdatePost(ctx context.Context, args struct{ UpdatePost updatePostInput }) (*postResolver, error) {
	post, err := q.r.PostMutations.UpdatePost(ctx, identity.FromContext(ctx), args.UpdatePost.update())
	return q.wrapPost(post), err
}

func (q *rootResolver) UpdatePostAsAdmin(ctx context.Context, args struct{ UpdatePostAsAdmin updatePostInput }) (*postResolver, error) {
	post, err := q.r.PostMutations.UpdatePostAsAdmin(ctx, identity.FromContext(ctx), args.UpdatePostAsAdmin.update())
	return q.wrapPost(post), err
}

func (q *rootResolver) DeletePost(ctx context.Context, args struct{ ID graphqlgo.ID }) (*postResolver, error) {
	post, err := q.r.PostMutations.DeletePost(ctx, identity.FromContext(ctx), string(args.ID))
	return q.wrapPost(post), err
}

func (q *rootResolver) DeletePostAsAdmin(ctx context.Context, args struct{ ID graphqlgo.ID }) (*postResolver, error) {
	post, err := q.r.PostMutations.DeletePostAsAdmin(ctx, identity.FromContext(ctx), string(args.ID))
	return q.wrapPost(post), err
}

func (q *rootResolver) LikePost(ctx context.Context, args struct{ PostID graphqlgo.ID }) (*postResolver, error) {
	post, err := q.r.PostMutations.LikePost(ctx, identity.FromContext(ctx), string(args.PostID))
	return q.wrapPost(post), err
}

func (q *rootResolver) UnlikePost(ctx context.Context, args struct{ PostID graphqlgo.ID }) (*postResolver, error) {
	post, err := q.r.PostMutations.UnlikePost(ctx, identity.FromContext(ctx), string(args.PostID))
	return q.wrapPost(post), err
}

func (q *rootResolver) wrapPost(p *storage.Post) *postResolver {
	if p == nil {
		return nil
	}
	return &postResolver{p: p, fields: q.r.PostFields}
}

func (q *rootResolver) wrapPosts(posts []*storage.Post) []*postResolver {
	out := make([]*postResolver, len(posts))
	for i, p := range posts {
		out[i] = q.wrapPost(p)
	}
	return out
}

type postResolver struct {
	p      *storage.Post
	fields *resolver.PostFields
}

func (p *postResolver) ID() graphqlgo.ID { return graphqlgo.ID(p.p.ID) }
func (p *postResolver) Title() string    { return p.p.Title }
func (p *postResolver) Content() string  { return p.p.Content }
func (p *postResolver) LikeCount() int32 { return int32(len(p.p.Likes)) }

func (p *postResolver) Author(ctx context.Context) (*userResolver, error) {
	user, err := p.fields.Author(ctx, p.p)
	return wrapUser(user), err
}

func (p *postResolver) Likes() []graphqlgo.ID {
	out := make([]graphqlgo.ID, len(p.p.Likes))
	for i, id := range p.p.Likes {
		out[i] = graphqlgo.ID(id)
	}
	return out
}

func (p *postResolver) CreatedAt() graphqlgo.Time { return graphqlgo.Time{Time: p.p.CreatedAt} }
func (p *postResolver) UpdatedAt() graphqlgo.Time { return graphqlgo.Time{Time: p.p.UpdatedAt} }

type userResolver struct {
	u userservice.User
}

func wrapUser(u *userservice.User) *userResolver {
	if u == nil {
		return nil
	}
	return &userResolver{u: *u}
}

func (u *userResolver) ID() graphqlgo.ID  { return graphqlgo.ID(u.u.ID) }
func (u *userResolver) Username() string { return u.u.Username }
func (u *userResolver) Email() string    { return u.u.Email }

type userMessageResolver struct {
	resp *userservice.UserMessageResponse
}

func wrapUserMessage(resp *userservice.UserMessageResponse) *userMessageResolver {
	if resp == nil {
		return nil
	}
	return &userMessageResolver{resp: resp}
}

func (m *userMessageResolver) Message() string     { return m.resp.Message }
func (m *userMessageResolver) User() *userResolver { return wrapUser(m.resp.User) }

type loginMessageResolver struct {
	resp *userservice.LoginMessageResponse
}

func (m *loginMessageResolver) Message() string     { return m.resp.Message }
func (m *loginMessageResolver) User() *userResolver { return wrapUser(m.resp.User) }

func (m *loginMessageResolver) Token() *string {
	if m.resp.Token == "" {
		return nil
	}
	return &m.resp.Token
}
