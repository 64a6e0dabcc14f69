// Package domain holds the messaging privacy model: user and key identifiers,
// X25519 key pairs and keyrings, observed peer keys, stored message records,
// mailbox envelopes and privacy status, together with the store, directory and
// mailbox ports the services depend on.
//
// The definitions live in types/ and interfaces/ and are re-exported here.
package domain
