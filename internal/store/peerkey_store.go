package store

import (
	"path/filepath"
	"sort"
	"sync"

	"privmsg/internal/domain"
)

const peerKeysFilename = "peer_keys.json"

// PeerKeyFileStore keeps the history of public keys observed for each peer.
//
// Keys are deduplicated by value. When limit is positive only the newest limit
// keys per peer are kept.
type PeerKeyFileStore struct {
	dir   string
	limit int
	mu    sync.Mutex
}

// NewPeerKeyFileStore returns a PeerKeyFileStore rooted at dir. A limit of 0
// keeps every key.
func NewPeerKeyFileStore(dir string, limit int) *PeerKeyFileStore {
	return &PeerKeyFileStore{dir: dir, limit: limit}
}

// SavePeerKey records key. Re-observing a known key refreshes its timestamp.
func (s *PeerKeyFileStore) SavePeerKey(key domain.PeerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, peerKeysFilename)
	m, err := loadJSON[map[domain.UserID][]domain.PeerKey](path)
	if err != nil {
		return err
	}
	if m == nil {
		m = make(map[domain.UserID][]domain.PeerKey)
	}

	hist := []domain.PeerKey{key}
	for _, k := range m[key.Peer] {
		if k.Public != key.Public {
			hist = append(hist, k)
		}
	}
	sortNewestFirst(hist)
	if s.limit > 0 && len(hist) > s.limit {
		hist = hist[:s.limit]
	}
	m[key.Peer] = hist
	return storeJSON(path, m)
}

// LoadPeerKeys returns the keys seen for peer, newest first.
func (s *PeerKeyFileStore) LoadPeerKeys(peer domain.UserID) ([]domain.PeerKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := loadJSON[map[domain.UserID][]domain.PeerKey](filepath.Join(s.dir, peerKeysFilename))
	if err != nil {
		return nil, err
	}
	hist := append([]domain.PeerKey(nil), m[peer]...)
	sortNewestFirst(hist)
	return hist, nil
}

func sortNewestFirst(keys []domain.PeerKey) {
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].ObservedAt > keys[j].ObservedAt })
}

// Compile-time assertion that PeerKeyFileStore implements domain.PeerKeyStore.
var _ domain.PeerKeyStore = (*PeerKeyFileStore)(nil)
