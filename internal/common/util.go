package common

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	LowerAlpha        = "abcdefghijklmnopqrstuvwxyz"
	LowerAlphaNumeric = LowerAlpha + "0123456789"
)

// RandomString returns a string of length n drawn uniformly from alphabet
// using crypto/rand.
func RandomString(n int, alphabet string) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("negative length %d", n)
	}
	if alphabet == "" {
		return "", fmt.Errorf("empty alphabet")
	}

	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// Used for passwords read from the terminal. A nil slice is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
