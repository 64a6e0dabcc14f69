package store

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"privmsg/internal/domain"
	"privmsg/internal/util/memzero"
)

// KeyringFilename is the keyring file inside the home directory.
const KeyringFilename = "keyring.json.enc"

// KeyringFileStore persists the local keyring encrypted with a passphrase.
type KeyringFileStore struct {
	dir    string
	params ScryptParams
	mu     sync.Mutex
}

// NewKeyringFileStore returns a KeyringFileStore rooted at dir using
// DefaultScryptParams.
func NewKeyringFileStore(dir string) *KeyringFileStore {
	return NewKeyringFileStoreWithParams(dir, DefaultScryptParams)
}

// NewKeyringFileStoreWithParams is NewKeyringFileStore with explicit scrypt
// parameters.
func NewKeyringFileStoreWithParams(dir string, params ScryptParams) *KeyringFileStore {
	return &KeyringFileStore{dir: dir, params: params}
}

// SaveKeyring encrypts ring and writes it with mode 0600.
func (s *KeyringFileStore) SaveKeyring(passphrase string, ring domain.Keyring) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(ring)
	if err != nil {
		return err
	}
	defer memzero.Zero(raw)

	ct, err := seal(passphrase, raw, s.params)
	if err != nil {
		return err
	}
	return replace(filepath.Join(s.dir, KeyringFilename), ct)
}

// LoadKeyring reads and decrypts the keyring. ok is false when none exists.
func (s *KeyringFileStore) LoadKeyring(passphrase string) (domain.Keyring, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok, err := load(filepath.Join(s.dir, KeyringFilename))
	if err != nil || !ok {
		return domain.Keyring{}, false, err
	}
	pt, err := open(passphrase, b)
	if err != nil {
		return domain.Keyring{}, false, err
	}
	defer memzero.Zero(pt)

	var ring domain.Keyring
	if err := json.Unmarshal(pt, &ring); err != nil {
		return domain.Keyring{}, false, err
	}
	return ring, true, nil
}

// Compile-time assertion that KeyringFileStore implements domain.KeyringStore.
var _ domain.KeyringStore = (*KeyringFileStore)(nil)
