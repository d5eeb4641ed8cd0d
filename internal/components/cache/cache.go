package cache

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
)

var ErrInvalidTTL = errors.New("ttl must be positive")
var ErrInvalidKey = errors.New("key has no usable characters")

// Entry is a single cached value. ExpiresAt is always after CreatedAt.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is a key/value store where every value carries its own expiry.
//
// note: fault injection point
type Store interface {
	// Get returns the entry under key, expired entries are deleted and
	// reported as absent.
	Get(ctx context.Context, key string) (Entry, bool)
	// Set writes value under key, replacing any previous entry.
	Set(ctx context.Context, key, value string, ttl time.Duration) (Entry, error)
	// Delete removes key, it is not an error if key does not exist.
	Delete(ctx context.Context, key string) error
}

// sanitizeKey keeps only letters, digits, '-' and '_'.
func sanitizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func newEntry(key, value string, now time.Time, ttl time.Duration) (Entry, error) {
	if ttl <= 0 {
		return Entry{}, ErrInvalidTTL
	}
	return Entry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}
