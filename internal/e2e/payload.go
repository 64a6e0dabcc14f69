package e2e

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Scheme versions.
const (
	VersionLegacy  = 1
	VersionCurrent = 2
)

// Payload is an encrypted message body tagged with its scheme version.
//
// The zero value is not a valid payload. Values come from Seal or
// ParsePayload and are immutable.
type Payload struct {
	version int
	ct      []byte
}

type wirePayload struct {
	V  int    `json:"v"`
	CT string `json:"ct"`
}

// Version returns the scheme version tag.
func (p Payload) Version() int { return p.version }

// Ciphertext returns a copy of the nonce-prefixed ciphertext.
func (p Payload) Ciphertext() []byte { return bytes.Clone(p.ct) }

// Encode returns the ciphertext as standard base64.
func (p Payload) Encode() string { return base64.StdEncoding.EncodeToString(p.ct) }

// IsZero reports whether p holds no ciphertext.
func (p Payload) IsZero() bool { return p.version == 0 || len(p.ct) == 0 }

// Equal reports whether p and o carry the same version and bytes.
func (p Payload) Equal(o Payload) bool {
	return p.version == o.version && bytes.Equal(p.ct, o.ct)
}

// ParsePayload validates a version tag and base64 ciphertext read from storage
// or the wire. Unknown versions and malformed or short ciphertext fail with a
// *DecryptError.
func ParsePayload(version int, encoded string) (Payload, error) {
	need, ok := minCiphertext(version)
	if !ok {
		return Payload{}, decryptErr(KindVersionMismatch, version, nil)
	}
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, decryptErr(KindCorruptPayload, version, err)
	}
	if len(ct) < need {
		return Payload{}, decryptErr(KindCorruptPayload, version,
			fmt.Errorf("ciphertext is %d bytes, need at least %d", len(ct), need))
	}
	return Payload{version: version, ct: ct}, nil
}

// MarshalJSON writes {"v":<version>,"ct":"<base64>"}.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(wirePayload{V: p.version, CT: p.Encode()})
}

// UnmarshalJSON parses the form written by MarshalJSON.
func (p *Payload) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*p = Payload{}
		return nil
	}
	var w wirePayload
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.CT == "" {
		return errors.New("e2e: payload missing ciphertext")
	}
	parsed, err := ParsePayload(w.V, w.CT)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
