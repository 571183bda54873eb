package room

import (
	"crypto/rand"
	"math/big"
)

const (
	// CodeAlphabet is the character set of room codes.
	CodeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	// CodeLength is the number of characters in a room code.
	CodeLength = 6
)

// GenerateCode returns a random room code.
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(CodeAlphabet)))
	code := make([]byte, CodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = CodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
