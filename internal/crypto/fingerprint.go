package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"

	"privmsg/internal/domain"
)

// Fingerprint returns a short hex fingerprint of a public key.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:10])
}

// KeyIDFor derives the keyring identifier of a public key.
func KeyIDFor(pub domain.X25519Public) domain.KeyID {
	h := blake2b.Sum256(pub[:])
	return domain.KeyID("k1" + base58.Encode(h[:12]))
}
