// Package keystore manages the local user's X25519 key pairs and lookups of
// peers' public keys.
//
// The private key never leaves this package: it is persisted only through the
// encrypted domain.KeyringStore and used only inside EncryptForPeer and
// DecryptFromPeer. Public keys are published to and fetched from a
// domain.Directory.
//
// Peer lookups have three outcomes: a key, ErrPeerNotOpted when the peer has
// not published one, or ErrLookupFailed when the directory could not answer.
package keystore
