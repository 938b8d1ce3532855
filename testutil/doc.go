// Package testutil provides fakes and helpers shared by the gateway's tests.
//
// UserService is an in-memory identity service. It implements
// userservice.Client directly and serves the same REST surface over HTTP
// through Handler, so tests can exercise either the resolvers alone or the
// full HTTP client path. Tokens it issues are real HS256 JWTs signed with the
// secret it was created with, so identity.Extractor accepts them.
//
// EventRecorder captures published domain events.
//
// Container helpers (StartMongo, StartRedis, StartNATS) are only built with
// the integration tag:
//
//	go test -tags=integration ./...
package testutil
