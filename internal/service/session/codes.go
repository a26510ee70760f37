package session

import (
	"crypto/rand"
	"strings"
)

// codeAlphabet drops 0/1/O/I so codes survive being read over the phone.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const codeLength = 6

// newSessionCode produces the short human-typable patient join code.
func newSessionCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}

// normalizeCode makes typed codes forgiving about case and whitespace.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
