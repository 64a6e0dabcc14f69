package privacy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"privmsg/internal/domain"
	"privmsg/internal/e2e"
	"privmsg/internal/metrics"
	"privmsg/internal/mixnet"
	"privmsg/internal/services/keystore"
)

const (
	DefaultLookupRetries = 2
	DefaultRetryInterval = 250 * time.Millisecond
)

// KeyStore is the subset of keystore.Service the orchestrator uses.
type KeyStore interface {
	HasKeyPair() bool
	GenerateAndStoreKeyPair(ctx context.Context) error
	EnsurePublished(ctx context.Context) error
	EncryptForPeer(ctx context.Context, plaintext []byte, peer domain.UserID) (e2e.Payload, error)
	DecryptFromPeer(ctx context.Context, payload e2e.Payload, peer domain.UserID) ([]byte, error)
}

// Mixnet is the subset of mixnet.Client the orchestrator uses.
type Mixnet interface {
	Enabled() bool
	IsConnected() bool
	Initialize(ctx context.Context) error
	Send(ctx context.Context, msg mixnet.Message) error
}

// Config tunes a Service.
type Config struct {
	// LookupRetries is how many extra attempts follow a failed key lookup.
	// Negative disables retries.
	LookupRetries int
	RetryInterval time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// SendResult describes one send attempt.
type SendResult struct {
	Success          bool         `json:"success"`
	MessageID        string       `json:"message_id"`
	EncryptedContent *e2e.Payload `json:"encrypted_content"`
	MixnetRouted     bool         `json:"mixnet_routed"`
	Error            string       `json:"error,omitempty"`

	// Err is the underlying cause when Success is false.
	Err error `json:"-"`
}

// Service is the private messaging orchestrator.
type Service struct {
	cfg     Config
	keys    KeyStore
	mix     Mixnet
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New returns an orchestrator. mix may be nil when no mixnet client exists.
func New(cfg Config, keys KeyStore, mix Mixnet) *Service {
	if cfg.LookupRetries == 0 {
		cfg.LookupRetries = DefaultLookupRetries
	}
	if cfg.LookupRetries < 0 {
		cfg.LookupRetries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{cfg: cfg, keys: keys, mix: mix, log: log.With("component", "privacy"), metrics: cfg.Metrics}
}

// InitializePrivacy makes sure a published key pair exists, then tries to
// bring up the mixnet. Only key-material failures are returned; an
// unpublished key or a mixnet failure is logged and tolerated.
func (s *Service) InitializePrivacy(ctx context.Context) error {
	var err error
	if s.keys.HasKeyPair() {
		err = s.keys.EnsurePublished(ctx)
	} else {
		err = s.keys.GenerateAndStoreKeyPair(ctx)
	}
	switch {
	case errors.Is(err, keystore.ErrNotPublished):
		s.log.Warn("public key not yet published; peers cannot reach us until it is", "err", err)
	case err != nil:
		return err
	}

	if s.mix != nil && s.mix.Enabled() {
		if err := s.mix.Initialize(ctx); err != nil {
			s.log.Warn("mixnet unavailable; continuing with end-to-end encryption only", "err", err)
		}
	}
	return nil
}

// SendPrivateMessage encrypts plaintext for recipient and relays it through
// the mixnet when connected. A failed encryption yields Success=false, no
// ciphertext and a non-nil error; plaintext is never transmitted.
func (s *Service) SendPrivateMessage(ctx context.Context, recipient domain.UserID, plaintext []byte) (SendResult, error) {
	res := SendResult{MessageID: uuid.NewString()}

	if !s.keys.HasKeyPair() {
		if err := s.keys.GenerateAndStoreKeyPair(ctx); err != nil && !errors.Is(err, keystore.ErrNotPublished) {
			return s.fail(res, metrics.OutcomeNoKeyPair, "local encryption keys are unavailable", err)
		}
	}

	payload, err := s.encryptWithRetry(ctx, recipient, plaintext)
	if err != nil {
		outcome, reason := classify(err)
		return s.fail(res, outcome, reason, err)
	}
	res.Success = true
	res.EncryptedContent = &payload

	if s.mix != nil && s.mix.Enabled() && s.mix.IsConnected() {
		msg, err := mixnet.NewMessage(recipient, payload)
		if err == nil {
			err = s.mix.Send(ctx, msg)
		}
		if err != nil {
			s.log.Warn("mixnet relay failed; ciphertext left for ordinary delivery", "message_id", res.MessageID, "err", err)
		} else {
			res.MixnetRouted = true
			s.metrics.Routed()
		}
	}
	s.metrics.Send(metrics.OutcomeSent)
	s.log.Debug("message encrypted", "message_id", res.MessageID, "recipient_id", recipient, "mixnet_routed", res.MixnetRouted)
	return res, nil
}

// DecryptMessage opens payload received from sender.
func (s *Service) DecryptMessage(ctx context.Context, payload e2e.Payload, sender domain.UserID) ([]byte, error) {
	return s.keys.DecryptFromPeer(ctx, payload, sender)
}

// PrivacyStatus reports the protection currently in effect. It is computed on
// every call.
func (s *Service) PrivacyStatus() domain.PrivacyStatus {
	switch {
	case !s.keys.HasKeyPair():
		return domain.PrivacyStatus{
			Level:       domain.PrivacyNone,
			Description: "No encryption keys yet. Messages cannot be sent privately until keys are set up.",
		}
	case s.mix != nil && s.mix.Enabled() && s.mix.IsConnected():
		return domain.PrivacyStatus{
			Level:       domain.PrivacyFull,
			Description: "End-to-end encrypted and routed through the mix network.",
		}
	default:
		return domain.PrivacyStatus{
			Level:       domain.PrivacyPartial,
			Description: "End-to-end encrypted. Delivery metadata is visible to the messaging service.",
		}
	}
}

// encryptWithRetry retries failed key lookups up to LookupRetries times,
// spaced by RetryInterval. Other failures are returned at once.
func (s *Service) encryptWithRetry(ctx context.Context, recipient domain.UserID, plaintext []byte) (e2e.Payload, error) {
	pace := rate.NewLimiter(rate.Every(s.cfg.RetryInterval), 1)
	pace.Allow()

	var lastErr error
	for attempt := 0; attempt <= s.cfg.LookupRetries; attempt++ {
		if attempt > 0 {
			if err := pace.Wait(ctx); err != nil {
				return e2e.Payload{}, lastErr
			}
			s.log.Debug("retrying key lookup", "recipient_id", recipient, "attempt", attempt)
		}
		payload, err := s.keys.EncryptForPeer(ctx, plaintext, recipient)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if !errors.Is(err, keystore.ErrLookupFailed) {
			break
		}
	}
	return e2e.Payload{}, lastErr
}

func (s *Service) fail(res SendResult, outcome, reason string, err error) (SendResult, error) {
	res.Success = false
	res.EncryptedContent = nil
	res.Error = reason
	res.Err = err
	s.metrics.Send(outcome)
	s.log.Warn("private message not sent", "message_id", res.MessageID, "reason", reason, "err", err)
	return res, err
}

func classify(err error) (outcome, reason string) {
	switch {
	case errors.Is(err, keystore.ErrPeerNotOpted):
		return metrics.OutcomeNotOpted, "recipient has not enabled private messaging"
	case errors.Is(err, keystore.ErrLookupFailed):
		return metrics.OutcomeLookup, "could not reach the key directory; try again later"
	case errors.Is(err, keystore.ErrNoKeyPair), errors.Is(err, keystore.ErrKeyMaterial):
		return metrics.OutcomeNoKeyPair, "local encryption keys are unavailable"
	default:
		return metrics.OutcomeEncrypt, "message could not be encrypted"
	}
}

var (
	_ KeyStore = (*keystore.Service)(nil)
	_ Mixnet   = (*mixnet.Client)(nil)
)
