// Package postgraph is a GraphQL API gateway for a small social service.
// Posts live in MongoDB. Users are owned by a remote identity service and
// reached over HTTP. The gateway joins the two behind one schema.
//
// # Request flow
//
//	HTTP POST /graphql
//	  -> identity.Extractor     Bearer token to Identity{UserID, IsAdmin, Token}
//	  -> policy.Middleware      login rate limiting before execution
//	  -> graph-gophers executor schema.graphql bound to resolver groups
//	  -> resolver.*             authorization, storage, identity service calls
//
// # Packages
//
//   - cmd/postgraph: process entry point, flags, wiring and shutdown
//   - config: defaults, JSON/YAML file and environment layering
//   - gateway/graphql: schema, HTTP server, middleware, playground
//   - gateway/policy: pre-execution request policy (login rate limit)
//   - resolver: queries, mutations and Post.author federation
//   - identity: token verification and request identity
//   - userservice: identity service HTTP client and author cache
//   - storage: post model, store contract, MongoDB and memory stores
//   - events: domain events to NATS JetStream
//   - health, metric: dependency checks and Prometheus metrics
//   - errors: classified errors and client-facing error codes
//   - pkg/*: rate limiting, retry, TTL cache, worker pool, TLS helpers
//
// # Authorization
//
// Every mutation that changes a post checks ownership against the caller's
// UserID, and the *AsAdmin variants require IsAdmin. Deleting a user first
// removes every post they authored, then asks the identity service to delete
// the account.
package postgraph
