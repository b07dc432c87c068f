// Package resilience provides the backoff, circuit breaker and key rotation
// used around every provider call.
package resilience

import (
	"sync"
	"time"

	"github.com/abdhe/frame-insight/pkg/apierr"
)

// KeyPool manages a pool of API keys with round-robin rotation
// and per-key cooldown after throttling.
type KeyPool struct {
	mu      sync.Mutex
	name    string
	keys    []keyEntry
	current int
	now     func() time.Time
}

type keyEntry struct {
	Key       string
	ResetAt   time.Time // When the cooldown ends
	Exhausted bool      // Temporarily unusable
}

// NewKeyPool creates a key pool from a list of API keys.
func NewKeyPool(name string, keys []string) *KeyPool {
	entries := make([]keyEntry, len(keys))
	for i, k := range keys {
		entries[i] = keyEntry{Key: k}
	}
	return &KeyPool{name: name, keys: entries, now: time.Now}
}

// Next returns the next available API key using round-robin selection.
// When every key is cooling down it returns a rate-limit error, which the
// backoff treats as retryable.
func (kp *KeyPool) Next() (string, error) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	n := len(kp.keys)
	if n == 0 {
		return "", apierr.Provider(kp.name, 0, "no API keys configured")
	}

	now := kp.now()

	for i := 0; i < n; i++ {
		idx := (kp.current + i) % n
		entry := &kp.keys[idx]

		if entry.Exhausted && !now.Before(entry.ResetAt) {
			entry.Exhausted = false
		}

		if !entry.Exhausted {
			kp.current = (idx + 1) % n
			return entry.Key, nil
		}
	}

	earliest := kp.keys[0].ResetAt
	for _, e := range kp.keys[1:] {
		if e.ResetAt.Before(earliest) {
			earliest = e.ResetAt
		}
	}

	return "", apierr.RateLimited(kp.name, earliest.Sub(now))
}

// MarkRateLimited takes a key out of rotation until resetAt.
func (kp *KeyPool) MarkRateLimited(key string, resetAt time.Time) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	for i := range kp.keys {
		if kp.keys[i].Key == key {
			kp.keys[i].Exhausted = true
			kp.keys[i].ResetAt = resetAt
			return
		}
	}
}

// Size returns the number of keys in the pool.
func (kp *KeyPool) Size() int {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return len(kp.keys)
}
