package types

// PrivacyLevel describes how much of a message's protection is currently in
// effect.
type PrivacyLevel string

const (
	// PrivacyFull means end-to-end encryption and mixnet routing are both active.
	PrivacyFull PrivacyLevel = "full"
	// PrivacyPartial means end-to-end encryption only.
	PrivacyPartial PrivacyLevel = "partial"
	// PrivacyNone means no local key pair exists yet.
	PrivacyNone PrivacyLevel = "none"
)

// PrivacyStatus is computed on demand and never persisted.
type PrivacyStatus struct {
	Level       PrivacyLevel `json:"level"`
	Description string       `json:"description"`
}
