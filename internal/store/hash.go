package store

import (
	"crypto/sha256"
	"fmt"
)

// ContentHash is the hash recorded for file contents.
func ContentHash(data []byte) string {
	h := sha256.New()
	h.Write(data)
	return fmt.Sprintf("%x", h.Sum(nil))
}
