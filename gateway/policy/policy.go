// Package policy enforces per-field call limits on GraphQL requests before
// they reach the executor.
//
// The middleware parses the incoming document, selects the operation that
// will run, and counts every root field matching a Rule, following fragment
// spreads and inline fragments. Each counted field consumes one call from the
// limiter under a key built from the field name and the caller. A rejected
// request is answered with a GraphQL error list and never executed.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"golang.org/x/time/rate"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/identity"
	"github.com/c360/postgraph/pkg/ratelimit"
)

// DefaultMaxBodyBytes bounds a GraphQL request body. Larger bodies are
// refused with 413 before anything runs.
const DefaultMaxBodyBytes int64 = 16 << 20

// Rule limits calls to one root field of one operation type
type Rule struct {
	Operation ast.Operation
	Field     string
}

// LoginRule is the rule applied to the login mutation
var LoginRule = Rule{Operation: ast.Mutation, Field: "login"}

// Recorder counts rejected calls
type Recorder interface {
	RecordRateLimited(field string)
}

// Middleware applies Rules to GraphQL requests
type Middleware struct {
	limiter  ratelimit.Limiter
	rules    []Rule
	maxBody  int64
	recorder Recorder
	logger   *slog.Logger
	warn     rate.Sometimes
}

// Option configures a Middleware
type Option func(*Middleware)

// WithRules replaces the default LoginRule
func WithRules(rules ...Rule) Option {
	return func(m *Middleware) { m.rules = rules }
}

// WithMaxBodyBytes replaces DefaultMaxBodyBytes
func WithMaxBodyBytes(n int64) Option {
	return func(m *Middleware) {
		if n > 0 {
			m.maxBody = n
		}
	}
}

// WithRecorder sets the rejection recorder
func WithRecorder(r Recorder) Option {
	return func(m *Middleware) { m.recorder = r }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Middleware) { m.logger = l }
}

// New creates a Middleware backed by limiter
func New(limiter ratelimit.Limiter, opts ...Option) (*Middleware, error) {
	if limiter == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "policy", "New", "limiter is required")
	}

	m := &Middleware{
		limiter: limiter,
		rules:   []Rule{LoginRule},
		maxBody: DefaultMaxBodyBytes,
		logger:  slog.Default(),
		warn:    rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "policy")
	return m, nil
}

type request struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName"`
}

// Handler wraps next with the policy check
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, ok, err := m.readRequest(w, r)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrors(w, http.StatusRequestEntityTooLarge, gqlError{
				Message:    fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
				Extensions: map[string]interface{}{"code": string(errors.CodeBadRequest)},
			})
			return
		}
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if rejected := m.check(r.Context(), req); rejected != nil {
			writeRejection(w, rejected)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// readRequest extracts the document and hands next the whole body again.
// The error is non-nil only when the body could not be read.
func (m *Middleware) readRequest(w http.ResponseWriter, r *http.Request) (request, bool, error) {
	var req request

	switch r.Method {
	case http.MethodGet:
		req.Query = r.URL.Query().Get("query")
		req.OperationName = r.URL.Query().Get("operationName")
	case http.MethodPost:
		if r.Body == nil || r.Body == http.NoBody {
			return req, false, nil
		}
		limited := http.MaxBytesReader(w, r.Body, m.maxBody)
		body, err := io.ReadAll(limited)
		if err != nil {
			r.Body = struct {
				io.Reader
				io.Closer
			}{io.MultiReader(bytes.NewReader(body), limited), limited}
			return req, false, err
		}
		_ = limited.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err := json.Unmarshal(body, &req); err != nil {
			return req, false, nil
		}
	default:
		return req, false, nil
	}

	return req, req.Query != "", nil
}

// rejection is a denied field
type rejection struct {
	field string
	alias string
}

// check consumes one call per matching field and returns the first denial
func (m *Middleware) check(ctx context.Context, req request) *rejection {
	doc, err := parser.ParseQuery(&ast.Source{Input: req.Query})
	if err != nil {
		return nil
	}
	op := selectOperation(doc, req.OperationName)
	if op == nil {
		return nil
	}

	who := identity.FromContext(ctx)
	for _, rule := range m.rules {
		if rule.Operation != op.Operation {
			continue
		}
		for _, field := range rootFields(doc, op.SelectionSet, rule.Field) {
			key := Key(rule.Field, who, identity.ClientAddr(ctx))
			allowed, err := m.limiter.Allow(ctx, key)
			if err != nil {
				m.logger.Error("Rate limiter unavailable, admitting call", "field", rule.Field, "error", err)
				continue
			}
			if allowed {
				continue
			}

			if m.recorder != nil {
				m.recorder.RecordRateLimited(rule.Field)
			}
			m.warn.Do(func() {
				m.logger.Warn("Call rejected by rate limit", "field", rule.Field, "key", key)
			})
			return &rejection{field: rule.Field, alias: field.Alias}
		}
	}
	return nil
}

// Key is the limiter key for a call to field by who from addr
func Key(field string, who identity.Identity, addr string) string {
	if who.UserID != "" {
		return field + ":" + who.UserID
	}
	return field + ":anon:" + addr
}

// selectOperation mirrors executor operation selection
func selectOperation(doc *ast.QueryDocument, name string) *ast.OperationDefinition {
	if name != "" {
		return doc.Operations.ForName(name)
	}
	if len(doc.Operations) == 1 {
		return doc.Operations[0]
	}
	return nil
}

// rootFields returns the fields named name in set, expanding fragments
func rootFields(doc *ast.QueryDocument, set ast.SelectionSet, name string) []*ast.Field {
	var found []*ast.Field
	seen := map[string]bool{}

	var walk func(ast.SelectionSet)
	walk = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				if s.Name == name {
					found = append(found, s)
				}
			case *ast.InlineFragment:
				walk(s.SelectionSet)
			case *ast.FragmentSpread:
				if seen[s.Name] {
					continue
				}
				seen[s.Name] = true
				if frag := doc.Fragments.ForName(s.Name); frag != nil {
					walk(frag.SelectionSet)
				}
			}
		}
	}
	walk(set)
	return found
}

type gqlError struct {
	Message    string                 `json:"message"`
	Path       []string               `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Message is the client-facing text for a rejected call to field
func Message(field string) string {
	return fmt.Sprintf("You are trying to access '%s' too often", field)
}

func writeRejection(w http.ResponseWriter, rej *rejection) {
	coded := &errors.CodedError{Code: errors.CodeRateLimited, Message: Message(rej.field)}

	path := rej.alias
	if path == "" {
		path = rej.field
	}

	writeErrors(w, http.StatusOK, gqlError{
		Message:    coded.Message,
		Path:       []string{path},
		Extensions: coded.Extensions(),
	})
}

func writeErrors(w http.ResponseWriter, status int, errs ...gqlError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Data   interface{} `json:"data"`
		Errors []gqlError  `json:"errors"`
	}{Errors: errs})
}
