// Package errors provides the error model shared by every postgraph component.
//
// # Two layers
//
// Infrastructure errors (configuration, document store, NATS, identity-service
// transport) are classified into three classes so callers can decide what to do
// with them without matching strings:
//
//   - Transient: timeouts, lost connections, temporary unavailability
//   - Invalid: malformed input or configuration
//   - Fatal: unrecoverable states that should stop the process
//
// Client-facing failures carry a machine-readable Code instead. A CodedError is
// what resolvers return; the GraphQL executor copies its Extensions into the
// "extensions" member of the response error:
//
//	{"message": "Post not found", "extensions": {"code": "NOT_FOUND"}}
//
// # Wrapping
//
// Wrapping follows the "component.method: action failed: cause" format:
//
//	if err := client.Ping(ctx, nil); err != nil {
//	    return errors.WrapTransient(err, "MongoStore", "Connect", "ping")
//	}
//
// Resolvers translate at the boundary:
//
//	post, err := store.FindByID(ctx, id)
//	if errors.Is(err, storage.ErrNotFound) {
//	    return nil, errors.NotFound("Post not found")
//	}
//	if err != nil {
//	    return nil, errors.Internal(err)
//	}
//
// Internal errors keep their cause for logging, but the message sent to the
// client is always the generic "Internal server error".
package errors
