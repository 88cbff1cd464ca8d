// Package vault provides an encrypted key/value store for session material.
//
// # Envelope encoding
//
// Values are JSON-serialized, sealed with XChaCha20-Poly1305 under a key derived from a configured
// secret, and written to a [Backend] as base64 text. The sealed layout is
// version(1) | nonce(24) | ciphertext+tag. The storage key is bound as additional data, so an
// envelope copied under another key fails to open.
//
// # Read semantics
//
// Reads never fail loudly. A missing key, a backend error, a tampered envelope, a wrong secret or a
// JSON mismatch all read as absent. Writes and removes return backend errors to the caller.
//
// # Backends
//
//   - [MemorySpace] shares values between in-process handles, like one browser profile shared by
//     several tabs.
//   - [FileBackend] stores one file per key in a directory and watches it with fsnotify.
//   - [RedisBackend] stores keys in Redis and announces changes on a pub/sub channel.
//
// A [Store] with a nil backend has no durable storage: writes are skipped and reads are absent.
//
// # What this package must NOT do
//
//   - Import goSession, guard or exchange (no upward imports).
//   - Interpret the values it stores.
//   - Log plaintext values or the secret.
package vault
