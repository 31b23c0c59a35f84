package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 20-character hex identifier, the shape the document
// store assigns to newly created documents.
func NewID() string {
	bytes := make([]byte, 10)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
