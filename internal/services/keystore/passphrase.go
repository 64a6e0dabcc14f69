package keystore

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// minPassphraseLength is the minimum number of characters in a keyring passphrase.
const minPassphraseLength = 12

// ErrWeakPassphrase is matched by every *WeakPassphraseError.
var ErrWeakPassphrase = errors.New("passphrase is too weak")

// WeakPassphraseError lists what a rejected passphrase lacks.
type WeakPassphraseError struct {
	Missing []string
}

func (e *WeakPassphraseError) Error() string {
	return fmt.Sprintf("%v: needs %s", ErrWeakPassphrase, strings.Join(e.Missing, ", "))
}

func (e *WeakPassphraseError) Is(target error) bool { return target == ErrWeakPassphrase }

// CheckPassphrase enforces the strength policy applied when a keyring is first
// created: at least 12 characters with upper and lower case letters, a digit
// and a symbol.
func CheckPassphrase(passphrase string) error {
	var upper, lower, digit, symbol bool
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			symbol = true
		}
	}

	var missing []string
	if utf8.RuneCountInString(passphrase) < minPassphraseLength {
		missing = append(missing, fmt.Sprintf("%d characters", minPassphraseLength))
	}
	for _, c := range []struct {
		ok   bool
		name string
	}{{upper, "an upper-case letter"}, {lower, "a lower-case letter"}, {digit, "a digit"}, {symbol, "a symbol"}} {
		if !c.ok {
			missing = append(missing, c.name)
		}
	}
	if len(missing) > 0 {
		return &WeakPassphraseError{Missing: missing}
	}
	return nil
}
