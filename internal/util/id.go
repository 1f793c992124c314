package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random hex id, optionally namespaced with a prefix
// that matches the database defaults (usr_, prj_, prc_, ...).
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewToken returns a longer random hex value for refresh and
// verification tokens.
func NewToken() string {
	bytes := make([]byte, 32)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
