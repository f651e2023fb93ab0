package codes

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// codeAlphabet omits 0/O/1/I/L so codes survive being read over the phone or
// typed off a printed letter.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const suffixLength = 8

// newCode draws a random code of the form {SHORTCODE}-{suffix}. Uniqueness
// is not guaranteed here; the store's unique constraint is the arbiter and
// the caller re-draws on collision.
func newCode(shortCode string) (string, error) {
	buf := make([]byte, suffixLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	var sb strings.Builder
	sb.Grow(len(shortCode) + 1 + suffixLength)
	sb.WriteString(strings.ToUpper(shortCode))
	sb.WriteByte('-')
	for _, b := range buf {
		sb.WriteByte(codeAlphabet[int(b)%len(codeAlphabet)])
	}
	return sb.String(), nil
}
