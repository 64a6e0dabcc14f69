package interfaces

import (
	"context"

	domaintypes "privmsg/internal/domain/types"
)

// Directory is the peer public-key directory.
//
// FetchKey returns an error wrapping domaintypes.ErrKeyNotFound when the user
// has not published a key; any other error means the lookup itself failed.
type Directory interface {
	PublishKey(ctx context.Context, key domaintypes.PublishedKey) error
	FetchKey(ctx context.Context, user domaintypes.UserID) (domaintypes.PublishedKey, error)
}

// Mailbox is the ordinary, non-anonymized store-and-forward channel for
// ciphertext envelopes.
type Mailbox interface {
	SendEnvelope(ctx context.Context, env domaintypes.Envelope) error
	FetchEnvelopes(ctx context.Context, user domaintypes.UserID, limit int) ([]domaintypes.Envelope, error)
	AckEnvelopes(ctx context.Context, user domaintypes.UserID, count int) error
}
