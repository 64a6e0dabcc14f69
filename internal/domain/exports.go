package domain

import (
	interfaces "privmsg/internal/domain/interfaces"
	types "privmsg/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID         = types.UserID
	Fingerprint    = types.Fingerprint
	KeyID          = types.KeyID
	ConversationID = types.ConversationID
	X25519Public   = types.X25519Public
	X25519Private  = types.X25519Private
	KeyPair        = types.KeyPair
	Keyring        = types.Keyring
	PeerKey        = types.PeerKey
	PublishedKey   = types.PublishedKey
	PrivacyLevel   = types.PrivacyLevel
	PrivacyStatus  = types.PrivacyStatus
	MessageRecord  = types.MessageRecord
	Envelope       = types.Envelope
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	KeyringStore = interfaces.KeyringStore
	PeerKeyStore = interfaces.PeerKeyStore
	MessageStore = interfaces.MessageStore
	Directory    = interfaces.Directory
	Mailbox      = interfaces.Mailbox
)

// Privacy levels.
const (
	PrivacyFull    = types.PrivacyFull
	PrivacyPartial = types.PrivacyPartial
	PrivacyNone    = types.PrivacyNone
)

// ErrKeyNotFound reports that a user has not published a public key.
var ErrKeyNotFound = types.ErrKeyNotFound

// ConversationFor returns the order-independent id of the conversation between a and b.
func ConversationFor(a, b UserID) ConversationID { return types.ConversationFor(a, b) }

// ParseX25519Public validates and copies a public key.
func ParseX25519Public(b []byte) (X25519Public, error) { return types.ParseX25519Public(b) }
