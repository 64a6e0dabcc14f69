package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"privmsg/internal/domain"
	"privmsg/internal/e2e"
	"privmsg/internal/services/privacy"
)

// UndecryptableText is shown in place of a message that cannot be decrypted.
const UndecryptableText = "[unable to decrypt]"

// subscriberBuffer is the channel capacity given to each subscriber.
const subscriberBuffer = 16

var (
	// ErrDeliveryFailed means the message was encrypted but the mailbox did not
	// accept it.
	ErrDeliveryFailed = errors.New("message encrypted but not delivered")
	// ErrNotRecipient rejects delivered records addressed to someone else.
	ErrNotRecipient = errors.New("record is not addressed to this user")
)

// Orchestrator is the part of privacy.Service used here.
type Orchestrator interface {
	SendPrivateMessage(ctx context.Context, recipient domain.UserID, plaintext []byte) (privacy.SendResult, error)
	DecryptMessage(ctx context.Context, payload e2e.Payload, sender domain.UserID) ([]byte, error)
}

// PeerCache lets the service drop cached peer keys when the counterpart changes.
type PeerCache interface {
	InvalidatePeer(peer domain.UserID)
}

// Config configures a Service.
type Config struct {
	User   domain.UserID
	Logger *slog.Logger
	Now    func() time.Time
}

// DisplayMessage is a record resolved for presentation.
type DisplayMessage struct {
	ID        string        `json:"id"`
	Sender    domain.UserID `json:"sender"`
	Recipient domain.UserID `json:"recipient"`
	Text      string        `json:"text"`
	Encrypted bool          `json:"encrypted"`
	Failed    bool          `json:"failed,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	ReadAt    *time.Time    `json:"read_at,omitempty"`
}

// cacheKey identifies a decryption. Message ids are chosen by senders, so the
// id alone is not trusted to name a ciphertext.
type cacheKey struct {
	conv   domain.ConversationID
	sender domain.UserID
	id     string
}

// decrypted is one cache slot; done closes when text is final. version and
// ciphertext are what was actually opened.
type decrypted struct {
	done       chan struct{}
	version    int
	ciphertext string
	text       string
	failed     bool
}

func (d *decrypted) matches(rec domain.MessageRecord) bool {
	return d.version == *rec.SchemeVersion && d.ciphertext == rec.Ciphertext
}

// Service is safe for concurrent use.
type Service struct {
	cfg     Config
	msgs    domain.MessageStore
	orch    Orchestrator
	peers   PeerCache
	mailbox domain.Mailbox
	log     *slog.Logger

	mu      sync.Mutex
	active  domain.UserID
	cache   map[cacheKey]*decrypted
	subs    map[domain.UserID]map[int]chan DisplayMessage
	nextSub int
}

// New returns a conversation service. mailbox may be nil when the ordinary
// channel is handled elsewhere.
func New(cfg Config, msgs domain.MessageStore, orch Orchestrator, peers PeerCache, mailbox domain.Mailbox) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		cfg:     cfg,
		msgs:    msgs,
		orch:    orch,
		peers:   peers,
		mailbox: mailbox,
		log:     log.With("component", "conversation"),
		cache:   make(map[cacheKey]*decrypted),
		subs:    make(map[domain.UserID]map[int]chan DisplayMessage),
	}
}

// IsEncrypted reports whether rec carries both ciphertext and a scheme
// version. Records with only one of them are treated as unencrypted.
func IsEncrypted(rec domain.MessageRecord) bool {
	return rec.Ciphertext != "" && rec.SchemeVersion != nil
}

// Open makes peer the active counterpart. The previous counterpart's cached
// public key is dropped so a rotation is picked up on return.
func (s *Service) Open(peer domain.UserID) {
	s.mu.Lock()
	prev := s.active
	s.active = peer
	s.mu.Unlock()
	if prev != "" && prev != peer && s.peers != nil {
		s.peers.InvalidatePeer(prev)
	}
}

// Active returns the current counterpart.
func (s *Service) Active() domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Display returns the text to show for rec, decrypting at most once per
// message. A cached result is reused only for the same conversation, sender,
// id and ciphertext.
func (s *Service) Display(ctx context.Context, rec domain.MessageRecord) string {
	return s.resolve(ctx, rec).Text
}

// History lists the conversation with peer, oldest first.
func (s *Service) History(ctx context.Context, peer domain.UserID) ([]DisplayMessage, error) {
	recs, err := s.msgs.ListMessages(domain.ConversationFor(s.cfg.User, peer))
	if err != nil {
		return nil, err
	}
	out := make([]DisplayMessage, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.resolve(ctx, rec))
	}
	return out, nil
}

// MarkRead records rec as read once its content has been resolved.
func (s *Service) MarkRead(ctx context.Context, rec domain.MessageRecord) error {
	s.resolve(ctx, rec)
	return s.msgs.MarkRead(conversationOf(rec), rec.ID, s.cfg.Now())
}

// Deliver persists an incoming record and pushes it to subscribers of the
// sender's conversation.
func (s *Service) Deliver(ctx context.Context, rec domain.MessageRecord) (DisplayMessage, error) {
	if rec.Recipient != s.cfg.User {
		return DisplayMessage{}, ErrNotRecipient
	}
	rec.ConversationID = conversationOf(rec)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.cfg.Now().UTC()
	}
	if IsEncrypted(rec) {
		rec.Body = ""
	}
	if err := s.msgs.AppendMessage(rec); err != nil {
		return DisplayMessage{}, err
	}
	msg := s.resolve(ctx, rec)
	s.publish(rec.Sender, msg)
	return msg, nil
}

// Subscribe returns a channel of messages delivered from peer and a function
// that ends the subscription. Slow subscribers miss messages rather than block
// delivery.
func (s *Service) Subscribe(peer domain.UserID) (<-chan DisplayMessage, func()) {
	ch := make(chan DisplayMessage, subscriberBuffer)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[peer] == nil {
		s.subs[peer] = make(map[int]chan DisplayMessage)
	}
	s.subs[peer][id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[peer], id)
			if len(s.subs[peer]) == 0 {
				delete(s.subs, peer)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Send encrypts text for peer, delivers it over the mailbox unless it was
// relayed through the mixnet, and records it.
func (s *Service) Send(ctx context.Context, peer domain.UserID, text string) (privacy.SendResult, error) {
	res, err := s.orch.SendPrivateMessage(ctx, peer, []byte(text))
	if err != nil {
		return res, err
	}
	if !res.MixnetRouted && s.mailbox != nil {
		env := domain.Envelope{
			ID:            res.MessageID,
			From:          s.cfg.User,
			To:            peer,
			SchemeVersion: res.EncryptedContent.Version(),
			Ciphertext:    res.EncryptedContent.Encode(),
			Timestamp:     s.cfg.Now().Unix(),
		}
		if err := s.mailbox.SendEnvelope(ctx, env); err != nil {
			return res, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
		}
	}
	if err := s.RecordSent(ctx, peer, res); err != nil {
		return res, err
	}
	return res, nil
}

// RecordSent persists a successful send to peer. The plaintext is not stored;
// the sender reads it back by decrypting like any other record.
func (s *Service) RecordSent(_ context.Context, peer domain.UserID, res privacy.SendResult) error {
	if !res.Success || res.EncryptedContent == nil {
		return errors.New("only successful sends are recorded")
	}
	v := res.EncryptedContent.Version()
	return s.msgs.AppendMessage(domain.MessageRecord{
		ID:             res.MessageID,
		ConversationID: domain.ConversationFor(s.cfg.User, peer),
		Sender:         s.cfg.User,
		Recipient:      peer,
		Ciphertext:     res.EncryptedContent.Encode(),
		SchemeVersion:  &v,
		CreatedAt:      s.cfg.Now().UTC(),
	})
}

// Sync fetches pending mailbox envelopes, delivers them and acknowledges the
// processed prefix. A storage failure stops the batch so the remainder is
// fetched again next time. It returns the number of envelopes processed.
func (s *Service) Sync(ctx context.Context) (int, error) {
	if s.mailbox == nil {
		return 0, nil
	}
	envs, err := s.mailbox.FetchEnvelopes(ctx, s.cfg.User, 0)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, env := range envs {
		v := env.SchemeVersion
		rec := domain.MessageRecord{
			ID:            env.ID,
			Sender:        env.From,
			Recipient:     env.To,
			Ciphertext:    env.Ciphertext,
			SchemeVersion: &v,
			CreatedAt:     time.Unix(env.Timestamp, 0).UTC(),
		}
		_, err := s.Deliver(ctx, rec)
		if errors.Is(err, ErrNotRecipient) {
			s.log.Warn("dropping misaddressed envelope", "message_id", env.ID)
		} else if err != nil {
			s.log.Warn("envelope not stored", "message_id", env.ID, "err", err)
			break
		}
		done++
	}
	if done > 0 {
		if err := s.mailbox.AckEnvelopes(ctx, s.cfg.User, done); err != nil {
			return done, err
		}
	}
	return done, nil
}

// resolve turns rec into a DisplayMessage, decrypting through the cache.
func (s *Service) resolve(ctx context.Context, rec domain.MessageRecord) DisplayMessage {
	msg := DisplayMessage{
		ID:        rec.ID,
		Sender:    rec.Sender,
		Recipient: rec.Recipient,
		Encrypted: IsEncrypted(rec),
		CreatedAt: rec.CreatedAt,
		ReadAt:    rec.ReadAt,
	}
	if !msg.Encrypted {
		if rec.Ciphertext != "" || rec.SchemeVersion != nil {
			s.log.Warn("partially written record shown as unencrypted", "message_id", rec.ID)
		}
		msg.Text = rec.Body
		return msg
	}

	key := cacheKey{conv: conversationOf(rec), sender: rec.Sender, id: rec.ID}
	s.mu.Lock()
	slot, ok := s.cache[key]
	if !ok {
		slot = &decrypted{done: make(chan struct{}), version: *rec.SchemeVersion, ciphertext: rec.Ciphertext}
		s.cache[key] = slot
	}
	s.mu.Unlock()

	if !ok {
		slot.text, slot.failed = s.decrypt(ctx, rec)
		if slot.failed && ctx.Err() != nil {
			// Cancellation is not a verdict on the ciphertext.
			s.mu.Lock()
			if s.cache[key] == slot {
				delete(s.cache, key)
			}
			s.mu.Unlock()
		}
		close(slot.done)
		msg.Text, msg.Failed = slot.text, slot.failed
		return msg
	}

	select {
	case <-slot.done:
	case <-ctx.Done():
		msg.Text, msg.Failed = UndecryptableText, true
		return msg
	}
	if !slot.matches(rec) {
		// Same id, different ciphertext: open this one on its own merits.
		msg.Text, msg.Failed = s.decrypt(ctx, rec)
		return msg
	}
	msg.Text, msg.Failed = slot.text, slot.failed
	return msg
}

func (s *Service) decrypt(ctx context.Context, rec domain.MessageRecord) (string, bool) {
	payload, err := e2e.ParsePayload(*rec.SchemeVersion, rec.Ciphertext)
	if err == nil {
		var pt []byte
		pt, err = s.orch.DecryptMessage(ctx, payload, s.counterpart(rec))
		if err == nil {
			return string(pt), false
		}
	}
	s.log.Warn("message could not be decrypted", "message_id", rec.ID, "kind", e2e.KindOf(err).String(), "err", err)
	return UndecryptableText, true
}

func (s *Service) publish(peer domain.UserID, msg DisplayMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs[peer] {
		select {
		case ch <- msg:
		default:
			s.log.Warn("subscriber full; realtime message dropped", "message_id", msg.ID)
		}
	}
}

// counterpart is the other party of rec from the local user's point of view.
func (s *Service) counterpart(rec domain.MessageRecord) domain.UserID {
	if rec.Sender == s.cfg.User {
		return rec.Recipient
	}
	return rec.Sender
}

func conversationOf(rec domain.MessageRecord) domain.ConversationID {
	if rec.ConversationID != "" {
		return rec.ConversationID
	}
	return domain.ConversationFor(rec.Sender, rec.Recipient)
}

var _ Orchestrator = (*privacy.Service)(nil)
