package policy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/postgraph/identity"
	"github.com/c360/postgraph/pkg/ratelimit"
)

type countingRecorder struct {
	mu     sync.Mutex
	fields []string
}

func (r *countingRecorder) RecordRateLimited(field string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = append(r.fields, field)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, io.ErrUnexpectedEOF
}

func (brokenLimiter) Close() error { return nil }

type harness struct {
	handler  http.Handler
	reached  int
	bodies   []string
	recorder *countingRecorder
}

func newHarness(t *testing.T, limiter ratelimit.Limiter) *harness {
	t.Helper()
	h := &harness{recorder: &countingRecorder{}}

	m, err := New(limiter, WithRecorder(h.recorder))
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.reached++
		body, _ := io.ReadAll(r.Body)
		h.bodies = append(h.bodies, string(body))
		w.WriteHeader(http.StatusOK)
	})
	h.handler = m.Handler(next)
	return h
}

func (h *harness) post(t *testing.T, ctx context.Context, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(string(body))).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func anonCtx(addr string) context.Context {
	return identity.WithClientAddr(context.Background(), addr)
}

const loginMutation = `mutation { login(credentials: {username: "a", password: "b"}) { token } }`

func TestNew_RequiresLimiter(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestLoginRateLimited(t *testing.T) {
	limiter := ratelimit.NewSlidingWindow(time.Minute, 5)
	defer limiter.Close()
	h := newHarness(t, limiter)
	ctx := anonCtx("10.0.0.1")

	for i := 0; i < 5; i++ {
		rec := h.post(t, ctx, map[string]any{"query": loginMutation})
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 5, h.reached)

	rec := h.post(t, ctx, map[string]any{"query": loginMutation})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, h.reached, "sixth call must not reach the executor")

	var resp struct {
		Data   any `json:"data"`
		Errors []struct {
			Message    string         `json:"message"`
			Path       []string       `json:"path"`
			Extensions map[string]any `json:"extensions"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Data)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "You are trying to access 'login' too often", resp.Errors[0].Message)
	assert.Equal(t, []string{"login"}, resp.Errors[0].Path)
	assert.Equal(t, "RATE_LIMITED", resp.Errors[0].Extensions["code"])
	assert.Equal(t, []string{"login"}, h.recorder.fields)
}

func TestCallersAreKeyedSeparately(t *testing.T) {
	limiter := ratelimit.NewSlidingWindow(time.Minute, 1)
	defer limiter.Close()
	h := newHarness(t, limiter)

	alice := identity.WithIdentity(anonCtx("10.0.0.1"), identity.Identity{UserID: "alice", Token: "t"})
	bob := identity.WithIdentity(anonCtx("10.0.0.1"), identity.Identity{UserID: "bob", Token: "t"})

	h.post(t, alice, map[string]any{"query": loginMutation})
	h.post(t, bob, map[string]any{"query": loginMutation})
	h.post(t, anonCtx("10.0.0.1"), map[string]any{"query": loginMutation})
	h.post(t, anonCtx("10.0.0.2"), map[string]any{"query": loginMutation})
	assert.Equal(t, 4, h.reached)

	h.post(t, alice, map[string]any{"query": loginMutation})
	h.post(t, anonCtx("10.0.0.2"), map[string]any{"query": loginMutation})
	assert.Equal(t, 4, h.reached)
}

func TestOtherOperationsAreNotLimited(t *testing.T) {
	limiter := ratelimit.NewSlidingWindow(time.Minute, 1)
	defer limiter.Close()
	h := newHarness(t, limiter)
	ctx := anonCtx("10.0.0.1")

	for i := 0; i < 3; i++ {
		h.post(t, ctx, map[string]any{"query": `{ posts { id } }`})
		h.post(t, ctx, map[string]any{"query": `mutation { register(input: {username: "a", email: "b", password: "c"}) { message } }`})
		h.post(t, ctx, map[string]any{"query": `query { login }`})
	}
	assert.Equal(t, 9, h.reached)
	assert.Empty(t, h.recorder.fields)
}

func TestFragmentsAndAliasesAreCounted(t *testing.T) {
	limiter := ratelimit.NewSlidingWindow(time.Minute, 2)
	defer limiter.Close()
	h := newHarness(t, limiter)
	ctx := anonCtx("10.0.0.1")

	query := `
mutation {
  first: login(credentials: {username: "a", password: "b"}) { token }
  ...Again
}
fragment Again on Mutation {
  ... on Mutation { second: login(credentials: {username: "a", password: "b"}) { token } }
  third: login(credentials: {username: "a", password: "b"}) { token }
}`
	rec := h.post(t, ctx, map[string]any{"query": query})
	assert.Equal(t, 0, h.reached)
	assert.Contains(t, rec.Body.String(), `"path":["third"]`)
}

func TestOperationNameSelectsOperation(t *testing.T) {
	limiter := ratelimit.NewSlidingWindow(time.Minute, 1)
	defer limiter.Close()
	h := newHarness(t, limiter)
	ctx := anonCtx("10.0.0.1")

	doc := `
query Feed { posts { id } }
mutation SignIn { login(credentials: {username: "a", password: "b"}) { token } }`

	for i := 0; i < 3; i++ {
		h.post(t, ctx, map[string]any{"query": doc, "operationName": "Feed"})
	}
	assert.Equal(t, 3, h.reached)

	h.post(t, ctx, map[string]any{"query": doc, "operationName": "SignIn"})
	h.post(t, ctx, map[string]any{"query": doc, "operationName": "SignIn"})
	assert.Equal(t, 4, h.reached)
}

func TestBodyIsPreservedForNext(t *testing.T) {
	limiter := ratelimit.NewSlidingWindow(time.Minute, 5)
	defer limiter.Close()
	h := newHarness(t, limiter)

	h.post(t, anonCtx("10.0.0.1"), map[string]any{"query": loginMutation})
	require.Len(t, h.bodies, 1)
	assert.Contains(t, h.bodies[0], "login(credentials")
}

func TestLargeBodyIsPassedWhole(t *testing.T) {
	limiter := ratelimit.NewSlidingWindow(time.Minute, 5)
	defer limiter.Close()
	h := newHarness(t, limiter)

	content := strings.Repeat("x", 2<<20)
	rec := h.post(t, anonCtx("10.0.0.1"), map[string]any{
		"query":     `mutation($c: String!) { createPost(post: {title: "t", content: $c}) { id } }`,
		"variables": map[string]any{"c": content},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.bodies, 1)
	assert.Contains(t, h.bodies[0], content)
}

func TestPaddedLoginIsStillCounted(t *testing.T) {
	limiter := ratelimit.NewSlidingWindow(time.Minute, 1)
	defer limiter.Close()
	h := newHarness(t, limiter)

	padded := map[string]any{"query": loginMutation, "variables": map[string]any{"pad": strings.Repeat("p", 2<<20)}}
	h.post(t, anonCtx("10.0.0.1"), padded)
	rec := h.post(t, anonCtx("10.0.0.1"), padded)

	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
	assert.Equal(t, 1, h.reached)
}

func TestOversizedBodyIsRefused(t *testing.T) {
	limiter := ratelimit.NewSlidingWindow(time.Minute, 5)
	defer limiter.Close()

	m, err := New(limiter, WithMaxBodyBytes(64))
	require.NoError(t, err)
	reached := false
	handler := m.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { reached = true }))

	body := `{"query": "` + strings.Repeat("{ posts { id } }", 10) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "BAD_REQUEST")
	assert.False(t, reached)
}

func TestMalformedRequestsPassThrough(t *testing.T) {
	limiter := ratelimit.NewSlidingWindow(time.Minute, 1)
	defer limiter.Close()
	h := newHarness(t, limiter)

	for _, body := range []string{`not json`, `{"query": "mutation { login("}`, `{}`} {
		req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
		h.handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 3, h.reached)
}

func TestGetRequestsAreChecked(t *testing.T) {
	limiter := ratelimit.NewSlidingWindow(time.Minute, 1)
	defer limiter.Close()
	h := newHarness(t, limiter)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/graphql?query="+
			"mutation%20%7B%20login(credentials%3A%20%7Busername%3A%20%22a%22%2C%20password%3A%20%22b%22%7D)%20%7B%20token%20%7D%20%7D", nil)
		req = req.WithContext(anonCtx("10.0.0.1"))
		h.handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 1, h.reached)
}

func TestLimiterErrorsAdmit(t *testing.T) {
	h := newHarness(t, brokenLimiter{})
	h.post(t, anonCtx("10.0.0.1"), map[string]any{"query": loginMutation})
	assert.Equal(t, 1, h.reached)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "login:u1", Key("login", identity.Identity{UserID: "u1"}, "1.2.3.4"))
	assert.Equal(t, "login:anon:1.2.3.4", Key("login", identity.Anonymous(), "1.2.3.4"))
}
