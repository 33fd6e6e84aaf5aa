package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CacheKey derives the memoization key for one invocation from the tool id
// and the canonical JSON form of the resolved arguments. encoding/json
// emits map keys in sorted order, which is the canonicalization.
func CacheKey(toolID string, args map[string]any) (string, error) {
	canonical, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("canonicalize arguments: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(toolID))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
