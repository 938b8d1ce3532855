// Package resolver holds the gateway's operations, grouped by capability:
// post queries, post mutations, post field resolution, user queries and user
// mutations.
//
// Every operation takes the caller's identity.Identity as an explicit argument.
// Authorization is decided per operation and failures are returned as
// *errors.CodedError values carrying NOT_AUTHORIZED, NOT_FOUND or BAD_REQUEST.
// Checks run in a fixed order: token, then existence, then ownership, then the
// mutation itself.
package resolver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/events"
	"github.com/c360/postgraph/storage"
	"github.com/c360/postgraph/userservice"
)

// MetricsRecorder records one resolved operation
type MetricsRecorder interface {
	RecordOperation(operation, code string, duration time.Duration)
}

// Deps are the collaborators shared by all capability groups
type Deps struct {
	Store   storage.PostStore
	Users   userservice.Client
	Events  events.Publisher
	Metrics MetricsRecorder
	Logger  *slog.Logger
}

// Resolvers bundles the capability groups built over one set of Deps
type Resolvers struct {
	PostQueries   *PostQueries
	PostMutations *PostMutations
	PostFields    *PostFields
	UserQueries   *UserQueries
	UserMutations *UserMutations
}

// New builds every capability group. Store and Users are required.
func New(deps Deps) (*Resolvers, error) {
	if deps.Store == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "resolver", "New", "post store is required")
	}
	if deps.Users == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "resolver", "New", "user service client is required")
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	b := &base{
		store:   deps.Store,
		users:   deps.Users,
		events:  deps.Events,
		metrics: deps.Metrics,
		logger:  deps.Logger.With("component", "resolver"),
	}

	return &Resolvers{
		PostQueries:   &PostQueries{base: b},
		PostMutations: &PostMutations{base: b, likes: newKeyedMutex()},
		PostFields:    &PostFields{base: b},
		UserQueries:   &UserQueries{base: b},
		UserMutations: &UserMutations{base: b},
	}, nil
}

type base struct {
	store   storage.PostStore
	users   userservice.Client
	events  events.Publisher
	metrics MetricsRecorder
	logger  *slog.Logger
}

// observe runs fn as operation, recording its duration and outcome code
func (b *base) observe(operation string, fn func() error) error {
	start := time.Now()
	err := fn()

	code := errors.CodeOf(err)
	if b.metrics != nil {
		b.metrics.RecordOperation(operation, string(code), time.Since(start))
	}

	switch {
	case err == nil:
	case code == errors.CodeInternal:
		b.logger.Error("Operation failed", "operation", operation, "error", errors.Unwrap(err))
	default:
		b.logger.Debug("Operation rejected", "operation", operation, "code", code, "error", err)
	}
	return err
}

// emit publishes an event. Publish failures never fail the operation.
func (b *base) emit(ctx context.Context, event events.Event) {
	if err := b.events.Publish(ctx, event); err != nil {
		b.logger.Warn("Event not published", "type", event.Type, "subject_id", event.SubjectID, "error", err)
	}
}

// storeFailure maps a store error to a client error
func storeFailure(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return errors.NotFound(msgPostNotFound)
	}
	return errors.Internal(err)
}

// upstreamFailure maps an identity service error to NOT_FOUND carrying the
// upstream status text. Transport failures report "Bad Gateway".
func upstreamFailure(err error) error {
	var upErr *userservice.UpstreamError
	if errors.As(err, &upErr) {
		return errors.NotFoundCause(upErr.Status, err)
	}
	return errors.NotFoundCause(http.StatusText(http.StatusBadGateway), err)
}
