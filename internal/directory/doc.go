// Package directory provides the HTTP client for the keydir service: the peer
// public-key directory and the ordinary store-and-forward mailbox.
//
// Supported operations:
//   - Publishing our public key (PUT /keys/{user}).
//   - Fetching a peer's public key (GET /keys/{user}); 404 means the peer has
//     not opted in and is reported as domain.ErrKeyNotFound.
//   - Sending ciphertext envelopes to a peer (POST /msg/{user}).
//   - Fetching and acknowledging pending envelopes.
//
// All requests are JSON over HTTP and take a context for cancellation and
// deadlines. Non-2xx statuses are returned as *StatusError.
package directory
