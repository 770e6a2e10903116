package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// AudioKey derives the cache key for a synthesis request
func AudioKey(provider, voice, format, text string) string {
	h := sha256.Sum256([]byte(strings.Join([]string{provider, voice, format, text}, "\x00")))
	return hex.EncodeToString(h[:])
}
