package mixnet

import "errors"

var (
	// ErrNotConnected is returned by Send when the client is not connected.
	ErrNotConnected = errors.New("mixnet: not connected")
	// ErrUnavailable wraps every bring-up and relay failure.
	ErrUnavailable = errors.New("mixnet: unavailable")
	// ErrDisabled is returned by Initialize when the mixnet is turned off.
	ErrDisabled = errors.New("mixnet: disabled")
	// ErrPlaintextContent rejects messages without an encrypted payload.
	ErrPlaintextContent = errors.New("mixnet: message content must be an encrypted payload")
	// ErrCapabilityMissing is reported by NopTransport.
	ErrCapabilityMissing = errors.New("mixnet: runtime module not available")
)
