package utils

import (
	"crypto/rand"
	"math/big"
)

// CodeAlphabet is the 62 symbol set access codes are drawn from.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// CodeLength is the number of symbols in an access code.
const CodeLength = 5

// GenerateAccessCode returns a random code of CodeLength symbols drawn
// uniformly from CodeAlphabet using crypto/rand.  Uniqueness is not
// checked here; callers compare against the active codes in the store.
func GenerateAccessCode() (string, error) {
	max := big.NewInt(int64(len(CodeAlphabet)))
	b := make([]byte, CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = CodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// IsAccessCode reports whether s has the shape of an access code.  It is
// used to reject obviously malformed input before touching the store.
func IsAccessCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
