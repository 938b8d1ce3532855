// Package userservice is the client for the remote identity service that owns
// users, credentials and token issuance.
//
// The gateway never persists users. Every call here is a proxy to the remote
// service; non-2xx answers come back as *UpstreamError carrying the status
// line so resolvers can surface it to the client unchanged.
package userservice

import (
	"context"
	"encoding/json"
	"fmt"
)

// User is a user record as returned by the identity service
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UnmarshalJSON accepts both "id" and the document-store "_id" spelling
func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string `json:"id"`
		MongoID  string `json:"_id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.ID = raw.ID
	if u.ID == "" {
		u.ID = raw.MongoID
	}
	u.Username = raw.Username
	u.Email = raw.Email
	return nil
}

// UserInput registers a new user
type UserInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserModify is a partial user update; nil fields are left untouched
type UserModify struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

// Credentials authenticate a user. Username may also carry the email address.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserMessageResponse is returned by register, update and delete calls
type UserMessageResponse struct {
	Message string `json:"message"`
	User    *User  `json:"user"`
}

// LoginMessageResponse is returned by a successful login
type LoginMessageResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    *User  `json:"user"`
}

// Client is the identity service API the resolvers depend on
type Client interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, input UserInput) (*UserMessageResponse, error)
	Login(ctx context.Context, creds Credentials) (*LoginMessageResponse, error)

	// UpdateUser and DeleteUser act on the user the token belongs to
	UpdateUser(ctx context.Context, input UserModify, token string) (*UserMessageResponse, error)
	DeleteUser(ctx context.Context, token string) (*UserMessageResponse, error)

	// UpdateUserByID and DeleteUserByID act on id with an admin token
	UpdateUserByID(ctx context.Context, id string, input UserModify, token string) (*UserMessageResponse, error)
	DeleteUserByID(ctx context.Context, id, token string) (*UserMessageResponse, error)
}

// UpstreamError is a non-2xx answer from the identity service
type UpstreamError struct {
	StatusCode int
	// Status is the reason phrase, e.g. "Not Found"
	Status string
}

// Error implements the error interface
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("identity service responded %d %s", e.StatusCode, e.Status)
}
