package domain

import (
	"crypto/rand"
	"fmt"
)

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// DefaultRoomCodeLength matches the 6-digit codes participants type in.
	DefaultRoomCodeLength = 6
	// MaxRoomCodeLength caps codes so they stay shareable.
	MaxRoomCodeLength = 8
)

// NewRoomCode generates a random uppercase alphanumeric room code of the
// given length (clamped to [1, MaxRoomCodeLength]). Uniqueness among open
// sessions is the caller's responsibility via a lookup before use.
func NewRoomCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultRoomCodeLength
	}
	if length > MaxRoomCodeLength {
		length = MaxRoomCodeLength
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(buf), nil
}

// ValidRoomCode reports whether code could have been produced by NewRoomCode.
func ValidRoomCode(code string) bool {
	if len(code) == 0 || len(code) > MaxRoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
