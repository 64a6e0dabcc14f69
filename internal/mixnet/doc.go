// Package mixnet is the metadata-protection transport. It brings up a
// connection to a mix network and relays already-encrypted payloads through
// it.
//
// The Client is a small state machine:
//
//	uninitialized -> connecting -> connected
//	                            -> error
//
// Disconnect returns it to uninitialized from any state. Nothing reconnects
// automatically.
//
// The network itself is reached through a Transport. ThinTransport talks to a
// local mix-network daemon using length-prefixed CBOR frames; NopTransport is
// used when no daemon is available and always reports the capability missing.
package mixnet
