// Package main runs the in-memory keydir used by privmsg during development
// and tests. It stores published X25519 public keys and queues ciphertext
// envelopes for recipients until they fetch them.
//
// HTTP API
//
//	PUT /keys/{user}
//	    Store {user}'s PublishedKey (key id, base64 public key, creation time).
//
//	GET /keys/{user}
//	    Return the latest PublishedKey for {user}. 404 means {user} has not
//	    enabled private messaging.
//
//	POST /msg/{user}
//	    Enqueue an Envelope destined to {user}. Envelopes without ciphertext
//	    are rejected with 422. If Timestamp is zero, the server fills it with
//	    the current Unix time.
//
//	GET /msg/{user}?limit=N
//	    Return up to N queued Envelopes for {user}. If limit is absent or
//	    greater than the queue length, all queued envelopes are returned.
//
//	POST /msg/{user}/ack { "count": N }
//	    Drop the first N queued envelopes for {user}. If N exceeds the queue
//	    length, the queue is cleared.
//
//	GET /metrics
//	    Prometheus metrics, unless disabled with -metrics=false.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Responses are JSON. Non-2xx statuses carry a short error message.
//   - Clients are rate limited per remote host; excess requests get 429.
//   - An access log records method, route, remote, status, bytes and
//     duration for each request. User ids are logged as salted fingerprints.
//   - The default listen address is :8080.
//
// The keydir is an untrusted middleman. It never sees plaintext or private
// keys; it only stores ciphertext and public keys.
package main
