package e2e

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/box"

	"privmsg/internal/crypto"
	"privmsg/internal/domain"
	"privmsg/internal/util/memzero"
)

const (
	keySize        = chacha20poly1305.KeySize
	nonceSizeV2    = chacha20poly1305.NonceSizeX
	nonceSizeV1    = 24
	kdfInfoV2Label = "privmsg-e2e-v2"
)

func minCiphertext(version int) (int, bool) {
	switch version {
	case VersionCurrent:
		return nonceSizeV2 + chacha20poly1305.Overhead, true
	case VersionLegacy:
		return nonceSizeV1 + box.Overhead, true
	default:
		return 0, false
	}
}

// Seal encrypts plaintext from the local pair to peerPub. Only VersionCurrent
// can be sealed.
func Seal(version int, localPriv domain.X25519Private, localPub, peerPub domain.X25519Public, plaintext []byte) (Payload, error) {
	if version != VersionCurrent {
		return Payload{}, fmt.Errorf("%w: cannot seal v%d", ErrVersionMismatch, version)
	}
	key, err := deriveKeyV2(localPriv, localPub, peerPub)
	if err != nil {
		return Payload{}, err
	}
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return Payload{}, err
	}
	out := make([]byte, nonceSizeV2, nonceSizeV2+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return Payload{}, err
	}
	out = aead.Seal(out, out[:nonceSizeV2], plaintext, []byte{byte(version)})
	return Payload{version: version, ct: out}, nil
}

// Open decrypts p sent between the local pair and peerPub.
func Open(p Payload, localPriv domain.X25519Private, localPub, peerPub domain.X25519Public) ([]byte, error) {
	need, ok := minCiphertext(p.version)
	if !ok {
		return nil, decryptErr(KindVersionMismatch, p.version, nil)
	}
	if len(p.ct) < need {
		return nil, decryptErr(KindCorruptPayload, p.version, nil)
	}
	switch p.version {
	case VersionLegacy:
		return openV1(p, localPriv, peerPub)
	default:
		return openV2(p, localPriv, localPub, peerPub)
	}
}

func openV2(p Payload, localPriv domain.X25519Private, localPub, peerPub domain.X25519Public) ([]byte, error) {
	key, err := deriveKeyV2(localPriv, localPub, peerPub)
	if err != nil {
		return nil, decryptErr(KindKeyMismatch, p.version, err)
	}
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, decryptErr(KindKeyMismatch, p.version, err)
	}
	nonce, body := p.ct[:nonceSizeV2], p.ct[nonceSizeV2:]
	pt, err := aead.Open(nil, nonce, body, []byte{byte(p.version)})
	if err != nil {
		return nil, decryptErr(KindKeyMismatch, p.version, err)
	}
	return pt, nil
}

func openV1(p Payload, localPriv domain.X25519Private, peerPub domain.X25519Public) ([]byte, error) {
	var nonce [nonceSizeV1]byte
	copy(nonce[:], p.ct[:nonceSizeV1])
	priv := [32]byte(localPriv)
	pub := [32]byte(peerPub)
	defer memzero.Key(&priv)
	pt, ok := box.Open(nil, p.ct[nonceSizeV1:], &nonce, &pub, &priv)
	if !ok {
		return nil, decryptErr(KindKeyMismatch, p.version, nil)
	}
	return pt, nil
}

// deriveKeyV2 expands the X25519 secret into an AEAD key. The info string
// orders the two public keys so both directions derive the same key.
func deriveKeyV2(localPriv domain.X25519Private, localPub, peerPub domain.X25519Public) ([]byte, error) {
	shared, err := crypto.DH(localPriv, peerPub)
	if err != nil {
		return nil, err
	}
	defer memzero.Key(&shared)

	lo, hi := localPub[:], peerPub[:]
	if bytes.Compare(lo, hi) > 0 {
		lo, hi = hi, lo
	}
	info := make([]byte, 0, len(kdfInfoV2Label)+1+64)
	info = append(info, kdfInfoV2Label...)
	info = append(info, byte(VersionCurrent))
	info = append(info, lo...)
	info = append(info, hi...)

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared[:], nil, info), key); err != nil {
		return nil, err
	}
	return key, nil
}
