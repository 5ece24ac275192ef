// Package password implements salted password hashing and verification with Argon2id.
//
// # Output format
//
// Digests are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The salt is supplied by the caller and stored alongside the digest in the
// account record, so hashing is deterministic for a given password, salt and
// parameter set. [Argon2.NeedsUpgrade] reports digests produced with weaker
// parameters so the caller can rehash (with the same salt) on the next login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// digit and uppercase requirements) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive digests.
//   - Import any other authengine package.
//   - Log plaintext passwords, salts or digests.
package password
