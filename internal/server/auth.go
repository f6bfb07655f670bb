package server

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidAPIKey = errors.New("invalid API key")

// GenerateAPIKey returns a new random key and the bcrypt hash to put in
// server.api_key_hashes.
func GenerateAPIKey() (key, hash string, err error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate API key: %w", err)
	}
	key = base64.RawURLEncoding.EncodeToString(keyBytes)

	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return key, string(h), nil
}

// KeyAuth checks bearer API keys against bcrypt hashes. Keys that passed
// once are remembered by digest so bcrypt runs once per key.
type KeyAuth struct {
	hashes [][]byte

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]bool
}

// NewKeyAuth validates that every hash is a bcrypt hash.
func NewKeyAuth(hashes []string) (*KeyAuth, error) {
	a := &KeyAuth{verified: make(map[[sha256.Size]byte]bool)}
	for i, h := range hashes {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("api key hash %d: %w", i, err)
		}
		a.hashes = append(a.hashes, []byte(h))
	}
	return a, nil
}

// Validate reports whether key matches one of the hashes.
func (a *KeyAuth) Validate(key string) error {
	if key == "" {
		return ErrInvalidAPIKey
	}
	digest := sha256.Sum256([]byte(key))

	a.mu.RLock()
	ok := a.verified[digest]
	a.mu.RUnlock()
	if ok {
		return nil
	}

	for _, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			a.mu.Lock()
			a.verified[digest] = true
			a.mu.Unlock()
			return nil
		}
	}
	return ErrInvalidAPIKey
}

// Middleware rejects requests without a valid "Authorization: Bearer"
// key. Paths in open are served without a key.
func (a *KeyAuth) Middleware(open ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range open {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}
			key, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !found || a.Validate(strings.TrimSpace(key)) != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="covrun"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
