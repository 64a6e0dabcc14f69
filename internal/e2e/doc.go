// Package e2e seals and opens message content between two parties holding
// static X25519 key pairs.
//
// Two scheme versions exist. Version 2 is current: an X25519 shared secret is
// expanded with HKDF-SHA256 into an XChaCha20-Poly1305 key bound to the version
// and both public keys, and every seal draws a fresh 24-byte nonce. Version 1
// is NaCl box and is accepted for decryption only.
//
// A Payload carries the version tag and the nonce-prefixed ciphertext. It never
// carries sender or recipient identities; callers supply the peer key from
// outside the payload.
package e2e
