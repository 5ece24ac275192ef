// Package bookings stores per-user reservations behind the engine's
// privilege rule: an actor may manage its own bookings and those of any
// account ranked strictly below it.
//
// # Architecture boundaries
//
// Authorization is delegated to an [Authorizer] (normally
// *authengine.Engine). Bookings are persisted as one JSON list per owner in
// a [store.Store] separate from the credential store. Errors are
// *authengine.Error values so transports map them the same way as engine
// failures.
//
// # What this package must NOT do
//
//   - Read or modify credential records.
//   - Call the Authorizer while holding an owner lock.
package bookings
