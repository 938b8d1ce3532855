package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	gqlerrors "github.com/graph-gophers/graphql-go/errors"

	"github.com/c360/postgraph/errors"
)

// panicLogger reports resolver panics through slog
type panicLogger struct {
	logger *slog.Logger
}

// LogPanic implements the executor's panic logger
func (l *panicLogger) LogPanic(ctx context.Context, value interface{}) {
	l.logger.ErrorContext(ctx, "Resolver panic", "panic", value, "request_id", RequestID(ctx))
}

// panicHandler turns a resolver panic into a client error. Production hides
// the panic value.
type panicHandler struct {
	production bool
}

// MakePanicError implements the executor's panic handler
func (h *panicHandler) MakePanicError(_ context.Context, value interface{}) *gqlerrors.QueryError {
	internal := &errors.CodedError{Code: errors.CodeInternal, Message: "Internal server error"}
	if !h.production {
		internal.Message = fmt.Sprintf("Internal server error: %v", value)
	}

	return &gqlerrors.QueryError{
		Message:    internal.Message,
		Extensions: internal.Extensions(),
	}
}

// notFound answers unmatched routes with the gateway's JSON 404 body
func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"message": "Not Found - " + r.URL.RequestURI(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
