package types

// UserID identifies an account in the peer directory.
type UserID string

// String returns the string form of the user id.
func (u UserID) String() string { return string(u) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// KeyID identifies one key pair in a keyring. It is derived from the public key.
type KeyID string

// String returns the string form of the key identifier.
func (id KeyID) String() string { return string(id) }

// ConversationID identifies a direct conversation with one counterpart.
type ConversationID string

// String returns the string form of the conversation identifier.
func (id ConversationID) String() string { return string(id) }

// ConversationFor returns the identifier of the direct conversation between a
// and b. The result does not depend on argument order.
func ConversationFor(a, b UserID) ConversationID {
	if b < a {
		a, b = b, a
	}
	return ConversationID(string(a) + "|" + string(b))
}
