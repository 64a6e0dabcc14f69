package types

import "errors"

// ErrKeyNotFound is returned by directories when a user has not published a
// public key, i.e. has not opted into end-to-end encryption.
var ErrKeyNotFound = errors.New("public key not found")
