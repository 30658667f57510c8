// Package util holds small helpers shared across the API.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 128-bit identifier rendered as hex, with an
// optional type prefix ("jti_...", "rft_...") so tokens stay
// recognizable in logs. Database rows get their ids from the database.
func NewID(prefix string) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	if prefix == "" {
		return hex.EncodeToString(buf)
	}
	return prefix + "_" + hex.EncodeToString(buf)
}
