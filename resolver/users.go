package resolver

import (
	"context"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/events"
	"github.com/c360/postgraph/identity"
	"github.com/c360/postgraph/storage"
	"github.com/c360/postgraph/userservice"
)

// UserQueries proxy user reads to the identity service
type UserQueries struct {
	*base
}

// Users lists every user
func (q *UserQueries) Users(ctx context.Context, _ identity.Identity) ([]userservice.User, error) {
	var users []userservice.User
	err := q.observe("users", func() error {
		list, err := q.users.ListUsers(ctx)
		if err != nil {
			return upstreamFailure(err)
		}
		users = list
		return nil
	})
	return users, err
}

// UserByID returns one user
func (q *UserQueries) UserByID(ctx context.Context, _ identity.Identity, id string) (*userservice.User, error) {
	var user *userservice.User
	err := q.observe("userById", func() error {
		u, err := q.users.GetUser(ctx, id)
		if err != nil {
			return upstreamFailure(err)
		}
		user = u
		return nil
	})
	return user, err
}

// UserMutations proxy user writes to the identity service. Deleting a user
// first deletes that user's posts from the local store.
type UserMutations struct {
	*base
}

// Register creates a user
func (m *UserMutations) Register(
	ctx context.Context, _ identity.Identity, input userservice.UserInput,
) (*userservice.UserMessageResponse, error) {
	var resp *userservice.UserMessageResponse
	err := m.observe("register", func() error {
		r, err := m.users.CreateUser(ctx, input)
		if err != nil {
			return upstreamFailure(err)
		}
		resp = r
		return nil
	})
	return resp, err
}

// Login exchanges credentials for a token
func (m *UserMutations) Login(
	ctx context.Context, _ identity.Identity, creds userservice.Credentials,
) (*userservice.LoginMessageResponse, error) {
	var resp *userservice.LoginMessageResponse
	err := m.observe("login", func() error {
		r, err := m.users.Login(ctx, creds)
		if err != nil {
			return upstreamFailure(err)
		}
		resp = r
		return nil
	})
	return resp, err
}

// UpdateUser changes the caller's own user, authorized by the caller's token
func (m *UserMutations) UpdateUser(
	ctx context.Context, who identity.Identity, input userservice.UserModify,
) (*userservice.UserMessageResponse, error) {
	var resp *userservice.UserMessageResponse
	err := m.observe("updateUser", func() error {
		if !who.HasToken() {
			return errors.NotAuthorized(msgUnauthorized)
		}

		r, err := m.users.UpdateUser(ctx, input, who.Token)
		m.forgetUser(who.UserID)
		if err != nil {
			return upstreamFailure(err)
		}
		resp = r
		m.emit(ctx, events.New(events.UserUpdated, who.UserID, who.UserID, nil))
		return nil
	})
	return resp, err
}

// DeleteUser deletes the caller's posts, then the caller's user. The post
// cascade runs first because the upstream delete invalidates the token. The
// two steps are not atomic: if the upstream delete fails the posts stay gone.
func (m *UserMutations) DeleteUser(ctx context.Context, who identity.Identity) (*userservice.UserMessageResponse, error) {
	var resp *userservice.UserMessageResponse
	err := m.observe("deleteUser", func() error {
		if !who.HasToken() || who.UserID == "" {
			return errors.NotAuthorized(msgUnauthorized)
		}

		r, err := m.deleteCascade(ctx, who, who.UserID, func() (*userservice.UserMessageResponse, error) {
			defer m.forgetUser(who.UserID)
			return m.users.DeleteUser(ctx, who.Token)
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

// UpdateUserAsAdmin changes any user; the caller must be an admin
func (m *UserMutations) UpdateUserAsAdmin(
	ctx context.Context, who identity.Identity, id string, input userservice.UserModify,
) (*userservice.UserMessageResponse, error) {
	var resp *userservice.UserMessageResponse
	err := m.observe("updateUserAsAdmin", func() error {
		if !who.HasToken() || !who.IsAdmin {
			return errors.NotAuthorized(msgUnauthorized)
		}

		r, err := m.users.UpdateUserByID(ctx, id, input, who.Token)
		if err != nil {
			return upstreamFailure(err)
		}
		resp = r
		m.emit(ctx, events.New(events.UserUpdated, who.UserID, id, map[string]any{"admin": true}))
		return nil
	})
	return resp, err
}

// DeleteUserAsAdmin deletes the posts of user id, then the user; the caller
// must be an admin
func (m *UserMutations) DeleteUserAsAdmin(
	ctx context.Context, who identity.Identity, id string,
) (*userservice.UserMessageResponse, error) {
	var resp *userservice.UserMessageResponse
	err := m.observe("deleteUserAsAdmin", func() error {
		if !who.HasToken() || !who.IsAdmin {
			return errors.NotAuthorized(msgUnauthorized)
		}
		if id == "" {
			return errors.BadRequest(msgUserIDRequired)
		}

		r, err := m.deleteCascade(ctx, who, id, func() (*userservice.UserMessageResponse, error) {
			return m.users.DeleteUserByID(ctx, id, who.Token)
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

// deleteCascade removes userID's posts, then runs the upstream delete
func (m *UserMutations) deleteCascade(
	ctx context.Context, who identity.Identity, userID string,
	deleteUpstream func() (*userservice.UserMessageResponse, error),
) (*userservice.UserMessageResponse, error) {
	removed, err := m.store.DeleteMany(ctx, storage.ByAuthor(userID))
	if err != nil {
		return nil, errors.Internal(err)
	}

	resp, err := deleteUpstream()
	if err != nil {
		m.logger.Warn("User posts deleted but identity service delete failed",
			"user_id", userID, "posts_deleted", removed, "error", err)
		return nil, upstreamFailure(err)
	}

	m.emit(ctx, events.New(events.UserDeleted, who.UserID, userID, map[string]any{
		"posts_deleted": removed,
	}))
	return resp, nil
}

// forgetUser drops any cached copy of user id after a token-scoped write
func (m *UserMutations) forgetUser(id string) {
	if inv, ok := m.users.(userservice.Invalidator); ok {
		inv.Forget(id)
	}
}
