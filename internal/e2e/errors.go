package e2e

import (
	"errors"
	"fmt"
)

// Kind classifies why a payload could not be opened.
type Kind int

const (
	// KindKeyMismatch covers wrong keys and tampered ciphertext alike.
	KindKeyMismatch Kind = iota + 1
	// KindCorruptPayload means the payload is structurally invalid.
	KindCorruptPayload
	// KindVersionMismatch means the scheme version is not supported.
	KindVersionMismatch
)

var (
	ErrKeyMismatch     = errors.New("e2e: key mismatch")
	ErrCorruptPayload  = errors.New("e2e: corrupt payload")
	ErrVersionMismatch = errors.New("e2e: unsupported scheme version")
)

func (k Kind) String() string {
	switch k {
	case KindKeyMismatch:
		return "key_mismatch"
	case KindCorruptPayload:
		return "corrupt_payload"
	case KindVersionMismatch:
		return "version_mismatch"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindKeyMismatch:
		return ErrKeyMismatch
	case KindCorruptPayload:
		return ErrCorruptPayload
	case KindVersionMismatch:
		return ErrVersionMismatch
	default:
		return nil
	}
}

// DecryptError is returned by Open and ParsePayload. It matches the Err*
// sentinels with errors.Is.
type DecryptError struct {
	Kind    Kind
	Version int
	Err     error
}

func (e *DecryptError) Error() string {
	msg := fmt.Sprintf("e2e: decrypt v%d: %s", e.Version, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecryptError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind.
func (e *DecryptError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf extracts the failure kind from err, or 0 when err is not a DecryptError.
func KindOf(err error) Kind {
	var de *DecryptError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

func decryptErr(kind Kind, version int, cause error) error {
	return &DecryptError{Kind: kind, Version: version, Err: cause}
}
