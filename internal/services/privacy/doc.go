// Package privacy composes end-to-end encryption and the mixnet transport into
// a single send/receive API and reports the privacy level currently in
// effect.
//
// Encryption is mandatory: if a message cannot be encrypted it is not sent.
// Mixnet routing is best effort: when the mixnet is unavailable the ciphertext
// is returned for delivery over the ordinary channel and the privacy level
// drops from full to partial.
package privacy
