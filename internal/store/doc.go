// Package store provides local persistence for privmsg.
//
// It contains concrete implementations of the domain storage interfaces:
//   - The local keyring, encrypted at rest with a passphrase (KeyringFileStore)
//   - Every public key observed per peer (PeerKeyFileStore)
//   - Conversation messages in a bbolt database (BoltMessageStore)
//
// File-backed stores serialise JSON and replace files atomically. All methods
// are concurrency-safe via internal locking. Files live under the configured
// home directory.
package store
