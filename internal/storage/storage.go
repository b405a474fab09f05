// Package storage is the key/value layer behind the cart, shopper preferences,
// admin sessions and short-lived availability caches.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"
)

// ErrNotFound is returned by Get when a key is absent or expired.
var ErrNotFound = errors.New("storage: key not found")

// Store is a byte-oriented key/value store. A zero ttl means the value does
// not expire.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// LoadJSON decodes the value at key into dst. Missing keys, backend failures
// and malformed JSON all report false; malformed values are logged and never
// surfaced to the caller.
func LoadJSON(ctx context.Context, s Store, key string, dst interface{}) bool {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("storage.LoadJSON - Read error for %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Printf("storage.LoadJSON - Ignoring malformed value for %s: %v", key, err)
		return false
	}
	return true
}

// SaveJSON encodes v and stores it at key.
func SaveJSON(ctx context.Context, s Store, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw, ttl)
}
