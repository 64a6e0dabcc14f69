package types

import "time"

// KeyPair is the local user's X25519 encryption key pair.
//
// The private half never leaves the key store. Pairs are never mutated after
// creation except for the Retired and Published bookkeeping flags; rotation
// produces a new pair.
type KeyPair struct {
	ID         KeyID         `json:"id"`
	Public     X25519Public  `json:"public"`
	Private    X25519Private `json:"private"`
	CreatedUTC int64         `json:"created_utc"`
	Retired    bool          `json:"retired,omitempty"`
	Published  bool          `json:"published"`
}

// CreatedAt returns the creation time.
func (kp KeyPair) CreatedAt() time.Time { return time.Unix(kp.CreatedUTC, 0).UTC() }

// Keyring holds the active key pair and any retired pairs kept for decrypting
// old messages. Pairs are ordered oldest first.
type Keyring struct {
	Pairs []KeyPair `json:"pairs"`
}

// Active returns the current (non-retired) pair, if any.
func (r Keyring) Active() (KeyPair, bool) {
	for i := len(r.Pairs) - 1; i >= 0; i-- {
		if !r.Pairs[i].Retired {
			return r.Pairs[i], true
		}
	}
	return KeyPair{}, false
}

// PeerKey is a peer's published public key as observed by us.
type PeerKey struct {
	Peer       UserID       `json:"peer"`
	Public     X25519Public `json:"public"`
	ObservedAt int64        `json:"observed_at"`
}

// PublishedKey is the record a user publishes to the directory.
type PublishedKey struct {
	User      UserID       `json:"user"`
	KeyID     KeyID        `json:"key_id"`
	Public    X25519Public `json:"public"`
	CreatedAt int64        `json:"created_at"`
}
