package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/postgraph/identity"
	"github.com/c360/postgraph/userservice"
)

type fakeUser struct {
	user     userservice.User
	password string
	admin    bool
}

// UserService is an in-memory identity service
type UserService struct {
	mu     sync.Mutex
	secret []byte
	users  map[string]*fakeUser
	order  []string
	tokens map[string]string // token -> user id
	calls  []string
	fail   *userservice.UpstreamError

	// BeforeDelete, when set, runs before a user is removed
	BeforeDelete func(userID string)
}

var _ userservice.Client = (*UserService)(nil)

// NewUserService creates an empty service issuing tokens signed with secret
func NewUserService(secret string) *UserService {
	return &UserService{
		secret: []byte(secret),
		users:  make(map[string]*fakeUser),
		tokens: make(map[string]string),
	}
}

// Seed adds a user directly and returns it with a valid token
func (s *UserService) Seed(username, email, password string, admin bool) (userservice.User, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.add(username, email, password, admin)
	return u.user, s.issue(u)
}

// Has reports whether id exists
func (s *UserService) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	return ok
}

// Calls returns the names of the client methods invoked so far
func (s *UserService) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// FailNext makes the next call fail with status
func (s *UserService) FailNext(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = &userservice.UpstreamError{StatusCode: status, Status: http.StatusText(status)}
}

// ListUsers implements userservice.Client
func (s *UserService) ListUsers(context.Context) ([]userservice.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("ListUsers"); err != nil {
		return nil, err
	}

	users := make([]userservice.User, 0, len(s.order))
	for _, id := range s.order {
		users = append(users, s.users[id].user)
	}
	return users, nil
}

// GetUser implements userservice.Client
func (s *UserService) GetUser(_ context.Context, id string) (*userservice.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("GetUser"); err != nil {
		return nil, err
	}

	u, ok := s.users[id]
	if !ok {
		return nil, upstream(http.StatusNotFound)
	}
	user := u.user
	return &user, nil
}

// CreateUser implements userservice.Client
func (s *UserService) CreateUser(_ context.Context, input userservice.UserInput) (*userservice.UserMessageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("CreateUser"); err != nil {
		return nil, err
	}

	if input.Username == "" || input.Email == "" || input.Password == "" {
		return nil, upstream(http.StatusBadRequest)
	}
	if s.lookup(input.Username) != nil || s.lookup(input.Email) != nil {
		return nil, upstream(http.StatusConflict)
	}

	u := s.add(input.Username, input.Email, input.Password, false)
	user := u.user
	return &userservice.UserMessageResponse{Message: "User created", User: &user}, nil
}

// Login implements userservice.Client. Username may be the username or email.
func (s *UserService) Login(_ context.Context, creds userservice.Credentials) (*userservice.LoginMessageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Login"); err != nil {
		return nil, err
	}

	u := s.lookup(creds.Username)
	if u == nil || u.password != creds.Password {
		return nil, upstream(http.StatusUnauthorized)
	}

	user := u.user
	return &userservice.LoginMessageResponse{Message: "Login successful", Token: s.issue(u), User: &user}, nil
}

// UpdateUser implements userservice.Client
func (s *UserService) UpdateUser(
	_ context.Context, input userservice.UserModify, token string,
) (*userservice.UserMessageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("UpdateUser"); err != nil {
		return nil, err
	}

	caller, err := s.authenticate(token)
	if err != nil {
		return nil, err
	}
	return s.modify(caller, input), nil
}

// DeleteUser implements userservice.Client
func (s *UserService) DeleteUser(_ context.Context, token string) (*userservice.UserMessageResponse, error) {
	s.mu.Lock()
	if err := s.begin("DeleteUser"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	caller, err := s.authenticate(token)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return s.remove(caller.user.ID), nil
}

// UpdateUserByID implements userservice.Client
func (s *UserService) UpdateUserByID(
	_ context.Context, id string, input userservice.UserModify, token string,
) (*userservice.UserMessageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("UpdateUserByID"); err != nil {
		return nil, err
	}

	if err := s.authorizeAdmin(token); err != nil {
		return nil, err
	}
	target, ok := s.users[id]
	if !ok {
		return nil, upstream(http.StatusNotFound)
	}
	return s.modify(target, input), nil
}

// DeleteUserByID implements userservice.Client
func (s *UserService) DeleteUserByID(_ context.Context, id, token string) (*userservice.UserMessageResponse, error) {
	s.mu.Lock()
	if err := s.begin("DeleteUserByID"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.authorizeAdmin(token); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	_, ok := s.users[id]
	s.mu.Unlock()
	if !ok {
		return nil, upstream(http.StatusNotFound)
	}

	return s.remove(id), nil
}

// begin records a call and consumes an injected failure. Callers hold mu.
func (s *UserService) begin(call string) error {
	s.calls = append(s.calls, call)
	if s.fail != nil {
		err := s.fail
		s.fail = nil
		return err
	}
	return nil
}

func (s *UserService) add(username, email, password string, admin bool) *fakeUser {
	u := &fakeUser{
		user:     userservice.User{ID: uuid.NewString(), Username: username, Email: email},
		password: password,
		admin:    admin,
	}
	s.users[u.user.ID] = u
	s.order = append(s.order, u.user.ID)
	return u
}

func (s *UserService) lookup(name string) *fakeUser {
	for _, u := range s.users {
		if strings.EqualFold(u.user.Username, name) || strings.EqualFold(u.user.Email, name) {
			return u
		}
	}
	return nil
}

func (s *UserService) issue(u *fakeUser) string {
	token, err := identity.Issue(s.secret, map[string]interface{}{
		"id":      u.user.ID,
		"isAdmin": u.admin,
		"jti":     uuid.NewString(),
	}, time.Hour)
	if err != nil {
		panic(err)
	}
	s.tokens[token] = u.user.ID
	return token
}

func (s *UserService) authenticate(token string) (*fakeUser, error) {
	id, ok := s.tokens[token]
	if !ok {
		return nil, upstream(http.StatusUnauthorized)
	}
	u, ok := s.users[id]
	if !ok {
		return nil, upstream(http.StatusUnauthorized)
	}
	return u, nil
}

func (s *UserService) authorizeAdmin(token string) error {
	caller, err := s.authenticate(token)
	if err != nil {
		return err
	}
	if !caller.admin {
		return upstream(http.StatusForbidden)
	}
	return nil
}

func (s *UserService) modify(u *fakeUser, input userservice.UserModify) *userservice.UserMessageResponse {
	if input.Username != nil {
		u.user.Username = *input.Username
	}
	if input.Email != nil {
		u.user.Email = *input.Email
	}
	if input.Password != nil {
		u.password = *input.Password
	}
	user := u.user
	return &userservice.UserMessageResponse{Message: "User updated", User: &user}
}

// remove runs BeforeDelete without holding mu, then deletes id
func (s *UserService) remove(id string) *userservice.UserMessageResponse {
	if s.BeforeDelete != nil {
		s.BeforeDelete(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return &userservice.UserMessageResponse{Message: "User deleted"}
	}
	delete(s.users, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	for token, owner := range s.tokens {
		if owner == id {
			delete(s.tokens, token)
		}
	}

	user := u.user
	return &userservice.UserMessageResponse{Message: "User deleted", User: &user}
}

func upstream(status int) *userservice.UpstreamError {
	return &userservice.UpstreamError{StatusCode: status, Status: http.StatusText(status)}
}

// Handler serves the service over the identity service REST routes
func (s *UserService) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		users, err := s.ListUsers(r.Context())
		reply(w, users, err)
	})
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		user, err := s.GetUser(r.Context(), r.PathValue("id"))
		reply(w, user, err)
	})
	mux.HandleFunc("POST /users", func(w http.ResponseWriter, r *http.Request) {
		var input userservice.UserInput
		if !decode(w, r, &input) {
			return
		}
		resp, err := s.CreateUser(r.Context(), input)
		reply(w, resp, err)
	})
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds userservice.Credentials
		if !decode(w, r, &creds) {
			return
		}
		resp, err := s.Login(r.Context(), creds)
		reply(w, resp, err)
	})
	mux.HandleFunc("PUT /users", func(w http.ResponseWriter, r *http.Request) {
		var input userservice.UserModify
		if !decode(w, r, &input) {
			return
		}
		resp, err := s.UpdateUser(r.Context(), input, bearer(r))
		reply(w, resp, err)
	})
	mux.HandleFunc("DELETE /users", func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.DeleteUser(r.Context(), bearer(r))
		reply(w, resp, err)
	})
	mux.HandleFunc("PUT /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		var input userservice.UserModify
		if !decode(w, r, &input) {
			return
		}
		resp, err := s.UpdateUserByID(r.Context(), r.PathValue("id"), input, bearer(r))
		reply(w, resp, err)
	})
	mux.HandleFunc("DELETE /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.DeleteUserByID(r.Context(), r.PathValue("id"), bearer(r))
		reply(w, resp, err)
	})

	return mux
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"message":"invalid body"}`, http.StatusBadRequest)
		return false
	}
	return true
}

func reply(w http.ResponseWriter, v any, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		status := http.StatusInternalServerError
		if upErr, ok := err.(*userservice.UpstreamError); ok {
			status = upErr.StatusCode
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": http.StatusText(status)})
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
