package interfaces

import (
	"time"

	domaintypes "privmsg/internal/domain/types"
)

// KeyringStore persists the local keyring encrypted at rest.
type KeyringStore interface {
	SaveKeyring(passphrase string, ring domaintypes.Keyring) error
	// LoadKeyring reports ok=false when no keyring has been written yet.
	LoadKeyring(passphrase string) (ring domaintypes.Keyring, ok bool, err error)
}

// PeerKeyStore keeps every public key observed for each peer.
type PeerKeyStore interface {
	SavePeerKey(key domaintypes.PeerKey) error
	// LoadPeerKeys returns the history for peer, newest first.
	LoadPeerKeys(peer domaintypes.UserID) ([]domaintypes.PeerKey, error)
}

// MessageStore persists conversation messages.
type MessageStore interface {
	AppendMessage(rec domaintypes.MessageRecord) error
	ListMessages(conv domaintypes.ConversationID) ([]domaintypes.MessageRecord, error)
	MarkRead(conv domaintypes.ConversationID, id string, at time.Time) error
}
