package memzero

// Zero overwrites b with zeros.
func Zero(b []byte) {
	clear(b)
}

// Key wipes a fixed-size X25519 key or shared secret in place.
func Key(k *[32]byte) {
	if k == nil {
		return
	}
	clear(k[:])
}
