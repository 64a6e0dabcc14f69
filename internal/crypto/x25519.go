package crypto

import (
	"crypto/rand"
	"time"

	"golang.org/x/crypto/curve25519"

	"privmsg/internal/domain"
)

// GenerateX25519 returns a fresh key pair with the private scalar clamped as
// RFC 7748 describes.
func GenerateX25519() (domain.X25519Private, domain.X25519Public, error) {
	var priv domain.X25519Private
	// crypto/rand.Read never returns an error.
	_, _ = rand.Read(priv[:])
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := PublicFromPrivate(priv)
	if err != nil {
		return domain.X25519Private{}, domain.X25519Public{}, err
	}
	return priv, pub, nil
}

// NewKeyPair generates a key pair stamped with its key id and creation time.
func NewKeyPair(now time.Time) (domain.KeyPair, error) {
	priv, pub, err := GenerateX25519()
	if err != nil {
		return domain.KeyPair{}, err
	}
	return domain.KeyPair{
		ID:         KeyIDFor(pub),
		Public:     pub,
		Private:    priv,
		CreatedUTC: now.Unix(),
	}, nil
}

// PublicFromPrivate recomputes the public half of priv.
func PublicFromPrivate(priv domain.X25519Private) (domain.X25519Public, error) {
	return mul(priv, curve25519.Basepoint)
}

// DH computes the X25519 shared secret. Low-order peer points are rejected.
func DH(priv domain.X25519Private, peer domain.X25519Public) ([32]byte, error) {
	out, err := mul(priv, peer.Slice())
	return [32]byte(out), err
}

func mul(priv domain.X25519Private, point []byte) (domain.X25519Public, error) {
	var out domain.X25519Public
	b, err := curve25519.X25519(priv.Slice(), point)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}
