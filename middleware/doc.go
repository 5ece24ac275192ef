// Package middleware exposes HTTP middleware adapters built on top of
// authengine.Engine session validation.
//
// # Middlewares
//
//   - [Guard] validates X-Auth-Username plus an Authorization bearer token
//     through Engine.Session and injects the [Identity] into the context.
//   - [ClientIP] records the caller address for the login throttle and audit.
//   - [RequestLogger] attaches a request-scoped zerolog logger carrying a
//     request id and writes one access log line per request.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself. Every decision is delegated to
// Engine.Session.
//
// # What this package must NOT do
//
//   - Read or write the credential store.
//   - Make authorization decisions beyond pass/reject from Engine.Session.
//   - Log tokens or passwords.
package middleware
