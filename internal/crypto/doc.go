// Package crypto exposes the minimal primitives used by privmsg.
//
// Contents
//
//   - X25519 key generation, clamping and key agreement (GenerateX25519, NewKeyPair, DH)
//   - Short public-key fingerprints for display/logging (Fingerprint) and
//     keyring identifiers (KeyIDFor)
//   - Random, unlinkable references for local bookkeeping (RandomReference)
//   - Base64 helpers for wire encoding (B64, FromB64)
//
// # Notes
//
// Key functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and wipe them with memzero.Zero when practical.
package crypto
