// Package vault resolves database passwords from their configured source.
//
// A password lives in exactly one Source: an environment variable, an
// encrypted Record, or (for profiles written by older releases) legacy
// plaintext. Resolve turns any Source into a secure.Buffer holding the
// plaintext; CreateEncrypted and MigrateToEncrypted produce new encrypted
// sources. Nothing in this package persists anything.
//
// Records are encrypted with AES-256-GCM under a key derived from the user's
// passphrase and a per-record salt with Argon2id. Every encryption draws a
// fresh salt and nonce, so encrypting the same password twice yields two
// unrelated records.
package vault
