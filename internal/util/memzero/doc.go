// Package memzero wipes sensitive byte slices such as derived keys and
// decrypted keyring contents.
package memzero
