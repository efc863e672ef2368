package app

import (
	"crypto/rand"
	"fmt"
)

// joinCodeAlphabet leaves out characters that are easy to misread on a
// projector (0/O, 1/I).
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	defaultCodeLength = 6
	maxCodeAttempts   = 10
)

// CodeGenerator returns a fresh candidate join code.
type CodeGenerator func() (string, error)

// RandomCodes returns a generator of length-character codes.
func RandomCodes(length int) CodeGenerator {
	if length <= 0 {
		length = defaultCodeLength
	}
	return func() (string, error) {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		for i := range buf {
			buf[i] = joinCodeAlphabet[int(buf[i])%len(joinCodeAlphabet)]
		}
		return string(buf), nil
	}
}
