package mixnet

import (
	"time"

	"privmsg/internal/crypto"
	"privmsg/internal/domain"
	"privmsg/internal/e2e"
)

// Message is a unit relayed through the mix network. Its content is always an
// e2e.Payload and its id is a random reference unrelated to either party.
type Message struct {
	recipient domain.UserID
	payload   e2e.Payload
	id        string
	timestamp time.Time
}

// NewMessage wraps payload for recipient. A zero payload is rejected with
// ErrPlaintextContent.
func NewMessage(recipient domain.UserID, payload e2e.Payload) (Message, error) {
	if payload.IsZero() {
		return Message{}, ErrPlaintextContent
	}
	return Message{
		recipient: recipient,
		payload:   payload,
		id:        crypto.RandomReference(),
		timestamp: time.Now().UTC(),
	}, nil
}

func (m Message) Recipient() domain.UserID { return m.recipient }
func (m Message) Payload() e2e.Payload     { return m.payload }
func (m Message) ID() string               { return m.id }
func (m Message) Timestamp() time.Time     { return m.timestamp }
