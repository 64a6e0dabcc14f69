package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"privmsg/internal/util/memzero"
)

// sealedFileVersion is the newest on-disk format this package writes.
const sealedFileVersion = 1

// ErrWrongPassphrase is returned when the passphrase is incorrect or the file
// has been modified.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted keyring")

// ScryptParams tunes passphrase key derivation.
type ScryptParams struct {
	N, R, P int
}

// DefaultScryptParams are used when a store is created without explicit
// parameters.
var DefaultScryptParams = ScryptParams{N: 1 << 15, R: 8, P: 1}

// sealedFile is the on-disk JSON structure holding the ciphertext and the KDF
// parameters needed to open it.
type sealedFile struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// seal derives a key from passphrase and encrypts raw. The salt and format
// version are bound as associated data.
func seal(passphrase string, raw []byte, params ScryptParams) ([]byte, error) {
	sf := sealedFile{V: sealedFileVersion, N: params.N, R: params.R, P: params.P}
	sf.Salt = make([]byte, 16)
	if _, err := rand.Read(sf.Salt); err != nil {
		return nil, err
	}
	sf.Nonce = make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(sf.Nonce); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), sf.Salt, sf.N, sf.R, sf.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	sf.Cipher = aead.Seal(nil, sf.Nonce, raw, sf.associatedData())
	return json.Marshal(sf)
}

// open reverses seal.
func open(passphrase string, b []byte) ([]byte, error) {
	var sf sealedFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return nil, fmt.Errorf("decode sealed file: %w", err)
	}
	if sf.V < 1 || sf.V > sealedFileVersion {
		return nil, fmt.Errorf("unsupported keyring format version %d", sf.V)
	}
	if len(sf.Nonce) != chacha20poly1305.NonceSize {
		return nil, ErrWrongPassphrase
	}
	key, err := scrypt.Key([]byte(passphrase), sf.Salt, sf.N, sf.R, sf.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, sf.Nonce, sf.Cipher, sf.associatedData())
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

func (sf sealedFile) associatedData() []byte {
	return append([]byte{byte(sf.V)}, sf.Salt...)
}
