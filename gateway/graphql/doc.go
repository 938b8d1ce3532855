// Package graphql serves the postgraph schema over HTTP.
//
// The schema (schema.graphql, embedded) unifies users, owned by the remote
// identity service, and posts, owned by the local store. Execution uses
// graph-gophers/graphql-go: the root resolver in bindings.go maps every
// schema field onto the capability groups of package resolver, reading the
// caller identity from the request context once per field and passing it on
// explicitly.
//
// # Routes
//
//	POST /graphql   GraphQL endpoint (path configurable)
//	GET  /          GraphQL Playground, when enabled
//	GET  /health    dependency health (health.Monitor) or liveness
//	GET  /metrics   Prometheus metrics, when a registry is attached
//	*               {"message":"Not Found - <path>"} with status 404
//
// GraphQL errors are always answered with HTTP 200. Every error produced by
// a resolver carries extensions.code, one of NOT_AUTHORIZED, NOT_FOUND,
// BAD_REQUEST, RATE_LIMITED or INTERNAL_SERVER_ERROR.
//
// # Request pipeline
//
//	logging (request id) -> security headers -> CORS -> mux
//	  POST /graphql: identity extraction -> policy (login rate limit) -> executor
//
// Identity extraction never rejects a request: a missing, malformed or
// unverifiable bearer token yields the anonymous identity, and each
// operation decides whether that is enough.
//
// # Configuration
//
//	{
//	  "bind_address": ":3000",
//	  "path": "/graphql",
//	  "enable_playground": true,
//	  "enable_cors": true,
//	  "cors_origins": ["*"],
//	  "timeout": "30s",
//	  "max_query_depth": 10,
//	  "production": false
//	}
//
// # Lifecycle
//
//	srv, _ := graphql.NewServer(cfg, schema, extractor, graphql.WithPolicy(p))
//	_ = srv.Setup()
//	ready := make(chan struct{})
//	go srv.Start(ctx, ready)
//	<-ready
//	...
//	_ = srv.Stop(10 * time.Second)
package graphql
