package crypto

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/mr-tron/base58/base58"
)

// ReferenceBytes is the entropy of a RandomReference.
const ReferenceBytes = 16

// B64 returns standard base64 encoding without newlines.
func B64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// FromB64 decodes standard base64.
func FromB64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// RandomReference returns a base58 string of fresh random bytes. It carries no
// information about who created it or for what.
func RandomReference() string {
	var buf [ReferenceBytes]byte
	_, _ = rand.Read(buf[:]) // crypto/rand.Read never fails on supported platforms
	return base58.Encode(buf[:])
}
