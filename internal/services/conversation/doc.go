// Package conversation connects private messaging to the conversation view.
//
// It persists sent and received records, decides which records are encrypted
// (ciphertext and scheme version both present), decrypts each once and caches
// the text by message id, and shows a fixed placeholder when a record cannot
// be opened. Received messages are pushed to subscribers of the conversation.
//
// Records whose payload was not relayed through the mixnet are sent over the
// ordinary mailbox, and Sync pulls pending envelopes from it.
package conversation
