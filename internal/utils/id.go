package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// IDBytes is the number of random bytes in a connection id; ids are
// 2*IDBytes hex characters long.
const IDBytes = 8

// NewID returns a random hex-encoded connection identifier.
func NewID() string {
	buf := make([]byte, IDBytes)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	// Fallback to timestamp if crypto/rand is unavailable; keeps the width.
	return fmt.Sprintf("%016x", uint64(time.Now().UnixNano()))
}
