package keystore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"privmsg/internal/crypto"
	"privmsg/internal/domain"
	"privmsg/internal/e2e"
	"privmsg/internal/metrics"
)

// DefaultLookupTimeout bounds directory calls when Config.LookupTimeout is zero.
const DefaultLookupTimeout = 3 * time.Second

var (
	ErrKeyMaterial  = errors.New("key material unavailable")
	ErrNoKeyPair    = errors.New("no local key pair")
	ErrNotPublished = errors.New("public key not published")
	ErrPeerNotOpted = errors.New("peer has not enabled encryption")
	ErrLookupFailed = errors.New("peer key lookup failed")
)

// Config configures a Service.
type Config struct {
	User       domain.UserID
	Passphrase string

	// LookupTimeout bounds each directory call.
	LookupTimeout time.Duration
	// Retention caps how many retired local pairs are kept. 0 keeps all.
	Retention int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Service owns the local keyring and a per-session cache of peer keys.
type Service struct {
	cfg     Config
	rings   domain.KeyringStore
	peers   domain.PeerKeyStore
	dir     domain.Directory
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	loaded bool
	ring   domain.Keyring
	cache  map[domain.UserID]domain.PeerKey
}

// New returns a key store service. The keyring is read lazily.
func New(cfg Config, rings domain.KeyringStore, peers domain.PeerKeyStore, dir domain.Directory) *Service {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		cfg:     cfg,
		rings:   rings,
		peers:   peers,
		dir:     dir,
		log:     log.With("component", "keystore"),
		metrics: cfg.Metrics,
		cache:   make(map[domain.UserID]domain.PeerKey),
	}
}

// User returns the local user id.
func (s *Service) User() domain.UserID { return s.cfg.User }

// HasKeyPair reports whether an active key pair exists.
func (s *Service) HasKeyPair() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		s.log.Warn("keyring unreadable", "err", err)
		return false
	}
	_, ok := s.ring.Active()
	return ok
}

// GenerateAndStoreKeyPair creates, persists and publishes a key pair unless an
// active one already exists. A publish failure keeps the stored pair and
// returns ErrNotPublished.
func (s *Service) GenerateAndStoreKeyPair(ctx context.Context) error {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.ring.Active(); ok {
		s.mu.Unlock()
		return nil
	}
	if len(s.ring.Pairs) == 0 {
		if err := CheckPassphrase(s.cfg.Passphrase); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	pair, err := s.addPairLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.log.Info("generated key pair", "key_id", pair.ID)
	return s.publish(ctx, pair)
}

// EnsurePublished republishes the active public key if an earlier publish
// failed.
func (s *Service) EnsurePublished(ctx context.Context) error {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	pair, ok := s.ring.Active()
	s.mu.Unlock()
	if !ok {
		return ErrNoKeyPair
	}
	if pair.Published {
		return nil
	}
	return s.publish(ctx, pair)
}

// RotateKeyPair retires the active pair and publishes a new one. Retired pairs
// stay in the keyring so older messages remain readable.
func (s *Service) RotateKeyPair(ctx context.Context) error {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.ring.Active(); !ok {
		s.mu.Unlock()
		return ErrNoKeyPair
	}
	pair, err := s.addPairLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.log.Info("rotated key pair", "key_id", pair.ID)
	return s.publish(ctx, pair)
}

// PublicKey returns the active public key and its id.
func (s *Service) PublicKey() (domain.X25519Public, domain.KeyID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return domain.X25519Public{}, "", err
	}
	pair, ok := s.ring.Active()
	if !ok {
		return domain.X25519Public{}, "", ErrNoKeyPair
	}
	return pair.Public, pair.ID, nil
}

// Fingerprint returns a short fingerprint of the active public key.
func (s *Service) Fingerprint() (domain.Fingerprint, error) {
	pub, _, err := s.PublicKey()
	if err != nil {
		return "", err
	}
	return domain.Fingerprint(crypto.Fingerprint(pub.Slice())), nil
}

// PeerPublicKey returns peer's current public key. Results are cached until
// InvalidatePeer.
func (s *Service) PeerPublicKey(ctx context.Context, peer domain.UserID) (domain.PeerKey, error) {
	s.mu.Lock()
	if k, ok := s.cache[peer]; ok {
		s.mu.Unlock()
		return k, nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()
	pk, err := s.dir.FetchKey(ctx, peer)
	switch {
	case errors.Is(err, domain.ErrKeyNotFound):
		return domain.PeerKey{}, fmt.Errorf("%w: %s", ErrPeerNotOpted, peer)
	case err != nil:
		return domain.PeerKey{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	key := domain.PeerKey{Peer: peer, Public: pk.Public, ObservedAt: s.cfg.Now().Unix()}
	if err := s.peers.SavePeerKey(key); err != nil {
		s.log.Warn("peer key history not saved", "peer_id", peer, "err", err)
	}
	s.mu.Lock()
	s.cache[peer] = key
	s.mu.Unlock()
	return key, nil
}

// InvalidatePeer drops the cached key for peer.
func (s *Service) InvalidatePeer(peer domain.UserID) {
	s.mu.Lock()
	delete(s.cache, peer)
	s.mu.Unlock()
}

// EncryptForPeer seals plaintext to peer's current public key.
func (s *Service) EncryptForPeer(ctx context.Context, plaintext []byte, peer domain.UserID) (e2e.Payload, error) {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		s.mu.Unlock()
		return e2e.Payload{}, err
	}
	local, ok := s.ring.Active()
	s.mu.Unlock()
	if !ok {
		return e2e.Payload{}, ErrNoKeyPair
	}

	peerKey, err := s.PeerPublicKey(ctx, peer)
	if err != nil {
		return e2e.Payload{}, err
	}
	return e2e.Seal(e2e.VersionCurrent, local.Private, local.Public, peerKey.Public, plaintext)
}

// DecryptFromPeer opens payload exchanged with peer. It tries every retained
// local pair against every known key of the peer and fails with a
// *e2e.DecryptError.
func (s *Service) DecryptFromPeer(ctx context.Context, payload e2e.Payload, peer domain.UserID) ([]byte, error) {
	pt, err := s.decrypt(ctx, payload, peer)
	if err != nil {
		s.metrics.DecryptFailed(e2e.KindOf(err).String())
		s.log.Debug("decrypt failed", "peer_id", peer, "err", err)
	}
	return pt, err
}

func (s *Service) decrypt(ctx context.Context, payload e2e.Payload, peer domain.UserID) ([]byte, error) {
	if payload.IsZero() {
		return nil, &e2e.DecryptError{Kind: e2e.KindCorruptPayload, Version: payload.Version()}
	}

	s.mu.Lock()
	loadErr := s.loadLocked()
	locals := s.localCandidatesLocked()
	s.mu.Unlock()
	if loadErr != nil {
		return nil, &e2e.DecryptError{Kind: e2e.KindKeyMismatch, Version: payload.Version(), Err: loadErr}
	}
	if len(locals) == 0 {
		return nil, &e2e.DecryptError{Kind: e2e.KindKeyMismatch, Version: payload.Version(), Err: ErrNoKeyPair}
	}

	remotes, lookupErr := s.peerCandidates(ctx, peer)
	if len(remotes) == 0 {
		return nil, &e2e.DecryptError{Kind: e2e.KindKeyMismatch, Version: payload.Version(), Err: lookupErr}
	}

	var last error
	for _, l := range locals {
		for _, r := range remotes {
			pt, err := e2e.Open(payload, l.Private, l.Public, r)
			if err == nil {
				return pt, nil
			}
			if e2e.KindOf(err) != e2e.KindKeyMismatch {
				return nil, err
			}
			last = err
		}
	}
	return nil, last
}

// localCandidatesLocked lists the active pair first, then retired pairs newest
// first.
func (s *Service) localCandidatesLocked() []domain.KeyPair {
	out := make([]domain.KeyPair, 0, len(s.ring.Pairs))
	if active, ok := s.ring.Active(); ok {
		out = append(out, active)
	}
	for i := len(s.ring.Pairs) - 1; i >= 0; i-- {
		if s.ring.Pairs[i].Retired {
			out = append(out, s.ring.Pairs[i])
		}
	}
	return out
}

// peerCandidates returns the peer's current key followed by older observed
// keys. A failed lookup still yields the stored history.
func (s *Service) peerCandidates(ctx context.Context, peer domain.UserID) ([]domain.X25519Public, error) {
	var out []domain.X25519Public
	seen := make(map[domain.X25519Public]bool)
	add := func(k domain.X25519Public) {
		if !k.IsZero() && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}

	current, lookupErr := s.PeerPublicKey(ctx, peer)
	if lookupErr == nil {
		add(current.Public)
	}
	hist, err := s.peers.LoadPeerKeys(peer)
	if err != nil {
		s.log.Warn("peer key history unreadable", "peer_id", peer, "err", err)
	}
	for _, k := range hist {
		add(k.Public)
	}
	return out, lookupErr
}

// addPairLocked retires the active pair, if any, appends a fresh one and
// saves the keyring. The in-memory ring is untouched if saving fails.
func (s *Service) addPairLocked() (domain.KeyPair, error) {
	pair, err := crypto.NewKeyPair(s.cfg.Now())
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("%w: %w", ErrKeyMaterial, err)
	}

	next := domain.Keyring{Pairs: make([]domain.KeyPair, 0, len(s.ring.Pairs)+1)}
	for _, p := range s.ring.Pairs {
		p.Retired = true
		next.Pairs = append(next.Pairs, p)
	}
	next.Pairs = append(next.Pairs, pair)
	if n := s.cfg.Retention; n > 0 && len(next.Pairs)-1 > n {
		next.Pairs = next.Pairs[len(next.Pairs)-1-n:]
	}

	if err := s.rings.SaveKeyring(s.cfg.Passphrase, next); err != nil {
		return domain.KeyPair{}, fmt.Errorf("%w: %w", ErrKeyMaterial, err)
	}
	s.ring = next
	return pair, nil
}

// publish uploads pair's public half and records the outcome in the keyring.
func (s *Service) publish(ctx context.Context, pair domain.KeyPair) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	err := s.dir.PublishKey(ctx, domain.PublishedKey{
		User:      s.cfg.User,
		KeyID:     pair.ID,
		Public:    pair.Public,
		CreatedAt: pair.CreatedUTC,
	})
	if err != nil {
		s.metrics.PublishFailed()
		s.log.Warn("public key not published", "key_id", pair.ID, "err", err)
		return fmt.Errorf("%w: %w", ErrNotPublished, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := domain.Keyring{Pairs: append([]domain.KeyPair(nil), s.ring.Pairs...)}
	for i := range next.Pairs {
		if next.Pairs[i].ID == pair.ID {
			next.Pairs[i].Published = true
		}
	}
	if err := s.rings.SaveKeyring(s.cfg.Passphrase, next); err != nil {
		s.log.Warn("published flag not saved", "key_id", pair.ID, "err", err)
		return nil
	}
	s.ring = next
	return nil
}

func (s *Service) loadLocked() error {
	if s.loaded {
		return nil
	}
	ring, _, err := s.rings.LoadKeyring(s.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyMaterial, err)
	}
	s.ring = ring
	s.loaded = true
	return nil
}
