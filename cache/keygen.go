package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey turns an arbitrary lookup key (JSON with Hebrew text, usually)
// into a fixed-length storage key under prefix.
func HashKey(prefix, key string) string {
	sum := sha256.Sum256([]byte(key))
	return prefix + hex.EncodeToString(sum[:])
}
