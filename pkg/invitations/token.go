package invitations

import (
	"crypto/rand"
	"fmt"
)

// TokenLength is the number of characters in an invitation token
const TokenLength = 48

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// maxUnbiased is the largest multiple of len(tokenAlphabet) that fits in a byte
const maxUnbiased = 256 - 256%len(tokenAlphabet)

// GenerateToken returns a TokenLength-character alphanumeric token read from
// crypto/rand. Bytes at or above maxUnbiased are discarded so every character
// is equally likely.
func GenerateToken() (string, error) {
	out := make([]byte, 0, TokenLength)
	buf := make([]byte, TokenLength*2)
	for len(out) < TokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == TokenLength {
				break
			}
		}
	}
	return string(out), nil
}
