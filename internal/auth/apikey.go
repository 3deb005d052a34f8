// Package auth verifies client API keys against bcrypt hashes.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const DefaultBcryptCost = 12

func HashKey(key string) (string, error) {
	return hashKey(key, DefaultBcryptCost)
}

func hashKey(key string, cost int) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("api key is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(trimmed), cost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(hash), nil
}

func VerifyKey(key, hash string) bool {
	trimmedKey := strings.TrimSpace(key)
	trimmedHash := strings.TrimSpace(hash)
	if trimmedKey == "" || trimmedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(trimmedHash), []byte(trimmedKey)) == nil
}

// KeySet holds the accepted key hashes. Keys that verified once are
// remembered by digest so bcrypt runs once per key, not once per request.
type KeySet struct {
	hashes   []string
	verified sync.Map
}

// NewKeySet validates every hash up front so a typo fails at startup.
func NewKeySet(hashes []string) (*KeySet, error) {
	set := &KeySet{hashes: make([]string, 0, len(hashes))}
	for i, raw := range hashes {
		hash := strings.TrimSpace(raw)
		if hash == "" {
			continue
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("api key hash #%d: %w", i+1, err)
		}
		set.hashes = append(set.hashes, hash)
	}
	return set, nil
}

// Enabled reports whether any key is configured.
func (s *KeySet) Enabled() bool {
	return s != nil && len(s.hashes) > 0
}

func (s *KeySet) Verify(key string) bool {
	if !s.Enabled() {
		return false
	}
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return false
	}

	digest := sha256.Sum256([]byte(trimmed))
	cacheKey := hex.EncodeToString(digest[:])
	if _, ok := s.verified.Load(cacheKey); ok {
		return true
	}
	for _, hash := range s.hashes {
		if VerifyKey(trimmed, hash) {
			s.verified.Store(cacheKey, struct{}{})
			return true
		}
	}
	return false
}
