// Package authengine provides a small authentication and authorization
// engine: salted argon2id credentials, one opaque bearer token per user with
// a fixed lifetime, and a three-tier privilege hierarchy that gates account
// management and any resource layered on top.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. Read-modify-write sequences on one
// account are serialized per username; the Engine never holds two account
// locks at once.
//
// # Architecture boundaries
//
// authengine is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([LoginResult], [UserInfo], [MetricsSnapshot]). Persistence
// is delegated to a [store.Store] supplied by the caller; throttling, audit
// dispatch and locking live under internal/.
//
// Every failure is an [*Error] carrying a caller-safe message and an
// HTTP-style code, and unwrapping to one of the kind sentinels
// ([ErrNotAuthenticated], [ErrForbidden], ...).
//
// # What this package must NOT do
//
//   - Write passwords, digests, salts or tokens to logs or audit events.
//   - Run background goroutines other than the audit dispatcher. Expired
//     sessions are cleared when they are next checked.
//   - Import any sub-package that re-imports authengine (no import cycles).
package authengine
