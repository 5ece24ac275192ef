// Package store provides the keyed persistence contract used for account
// records and bookings, plus interchangeable backends.
//
// # Backends
//
//   - [Memory]: process-local map, the default for tests and embedding.
//   - [File]: one indented JSON document on an afero filesystem with an
//     append-only operation log.
//   - [Redis]: one string key per entry.
//   - [SQL]: SQLite or PostgreSQL table migrated with goose.
//   - [S3]: one JSON object per key.
//   - [Cached]: bigcache read-through layer over any of the above.
//
// # Architecture boundaries
//
// Stores move opaque bytes. Record encoding, locking and authorization live
// in the engine; a Store is never asked to compare-and-swap.
//
// # What this package must NOT do
//
//   - Interpret stored values beyond what a backend needs (File requires JSON).
//   - Import the authengine root package.
package store
