package userservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/pkg/tlsutil"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakeUpstream struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	response any
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	status, response := f.status, f.response
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if response != nil {
		_ = json.NewEncoder(w).Encode(response)
	}
}

func (f *fakeUpstream) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type latencyRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *latencyRecorder) RecordUpstream(method, route, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, method+" "+route+" "+status)
}

func newTestClient(t *testing.T, upstream http.Handler, opts ...Option) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	cfg := Config{URL: srv.URL + "/api/v1/"}
	require.NoError(t, cfg.Validate())
	client, err := NewHTTPClient(cfg, opts...)
	require.NoError(t, err)
	return client
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{URL: "http://auth:3001"}, false},
		{"missing url", Config{}, true},
		{"relative url", Config{URL: "/users"}, true},
		{"bad timeout", Config{URL: "http://auth", TimeoutStr: "soon"}, true},
		{"negative timeout", Config{URL: "http://auth", TimeoutStr: "-1s"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 10*time.Second, tt.cfg.Timeout())
		})
	}
}

func TestHTTPClient_Routes(t *testing.T) {
	upstream := &fakeUpstream{}
	client := newTestClient(t, upstream)
	ctx := context.Background()
	name := "bob"

	tests := []struct {
		name     string
		call     func() error
		wantReq  recordedRequest
		response any
	}{
		{
			name:     "list users",
			call:     func() error { _, err := client.ListUsers(ctx); return err },
			wantReq:  recordedRequest{Method: "GET", Path: "/api/v1/users"},
			response: []map[string]string{{"id": "u1"}},
		},
		{
			name:    "get user",
			call:    func() error { _, err := client.GetUser(ctx, "u1"); return err },
			wantReq: recordedRequest{Method: "GET", Path: "/api/v1/users/u1"},
		},
		{
			name: "create user",
			call: func() error {
				_, err := client.CreateUser(ctx, UserInput{Username: "a", Email: "a@x", Password: "p"})
				return err
			},
			wantReq: recordedRequest{Method: "POST", Path: "/api/v1/users",
				Body: map[string]any{"username": "a", "email": "a@x", "password": "p"}},
		},
		{
			name: "login",
			call: func() error {
				_, err := client.Login(ctx, Credentials{Username: "a@x", Password: "p"})
				return err
			},
			wantReq: recordedRequest{Method: "POST", Path: "/api/v1/auth/login",
				Body: map[string]any{"username": "a@x", "password": "p"}},
		},
		{
			name:    "update self",
			call:    func() error { _, err := client.UpdateUser(ctx, UserModify{Username: &name}, "tok"); return err },
			wantReq: recordedRequest{Method: "PUT", Path: "/api/v1/users", Auth: "Bearer tok", Body: map[string]any{"username": "bob"}},
		},
		{
			name:    "delete self",
			call:    func() error { _, err := client.DeleteUser(ctx, "tok"); return err },
			wantReq: recordedRequest{Method: "DELETE", Path: "/api/v1/users", Auth: "Bearer tok"},
		},
		{
			name: "update by id",
			call: func() error {
				_, err := client.UpdateUserByID(ctx, "u2", UserModify{Username: &name}, "admin")
				return err
			},
			wantReq: recordedRequest{Method: "PUT", Path: "/api/v1/users/u2", Auth: "Bearer admin", Body: map[string]any{"username": "bob"}},
		},
		{
			name:    "delete by id",
			call:    func() error { _, err := client.DeleteUserByID(ctx, "u2", "admin"); return err },
			wantReq: recordedRequest{Method: "DELETE", Path: "/api/v1/users/u2", Auth: "Bearer admin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream.mu.Lock()
			upstream.response = tt.response
			if upstream.response == nil {
				upstream.response = map[string]any{"message": "ok", "user": map[string]string{"id": "u1"}}
			}
			upstream.mu.Unlock()

			require.NoError(t, tt.call())
			assert.Equal(t, tt.wantReq, upstream.last())
		})
	}
}

func TestHTTPClient_DecodesResponses(t *testing.T) {
	upstream := &fakeUpstream{response: map[string]any{
		"message": "Login successful",
		"token":   "jwt",
		"user":    map[string]string{"_id": "u1", "username": "alice", "email": "a@x"},
	}}
	client := newTestClient(t, upstream)

	resp, err := client.Login(context.Background(), Credentials{Username: "a@x", Password: "p"})
	require.NoError(t, err)

	assert.Equal(t, "Login successful", resp.Message)
	assert.Equal(t, "jwt", resp.Token)
	assert.Equal(t, &User{ID: "u1", Username: "alice", Email: "a@x"}, resp.User)
}

func TestHTTPClient_UpstreamError(t *testing.T) {
	recorder := &latencyRecorder{}
	upstream := &fakeUpstream{status: http.StatusNotFound, response: map[string]string{"message": "nope"}}
	client := newTestClient(t, upstream, WithRecorder(recorder))

	_, err := client.GetUser(context.Background(), "missing")
	require.Error(t, err)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusNotFound, upErr.StatusCode)
	assert.Equal(t, "Not Found", upErr.Status)
	assert.Equal(t, []string{"GET /users/{id} 404"}, recorder.calls)
}

func TestHTTPClient_TransportError(t *testing.T) {
	recorder := &latencyRecorder{}
	cfg := Config{URL: "http://127.0.0.1:1", TimeoutStr: "500ms"}
	require.NoError(t, cfg.Validate())
	client, err := NewHTTPClient(cfg, WithRecorder(recorder))
	require.NoError(t, err)

	_, err = client.ListUsers(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, []string{"GET /users error"}, recorder.calls)
}

func TestHTTPClient_EmptyList(t *testing.T) {
	client := newTestClient(t, &fakeUpstream{})

	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestHTTPClient_TLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	// The test server's certificate is not in the system pool.
	cfg := Config{URL: srv.URL}
	require.NoError(t, cfg.Validate())
	strict, err := NewHTTPClient(cfg)
	require.NoError(t, err)
	_, err = strict.ListUsers(context.Background())
	assert.Error(t, err)

	cfg.TLS.InsecureSkipVerify = true
	relaxed, err := NewHTTPClient(cfg)
	require.NoError(t, err)
	users, err := relaxed.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)

	_, err = NewHTTPClient(Config{URL: srv.URL, TLS: tlsutil.ClientConfig{CAFiles: []string{"/nonexistent/ca.pem"}}})
	assert.Error(t, err)
}
