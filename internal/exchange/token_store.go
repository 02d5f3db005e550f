package exchange

import (
	"sync"
	"time"

	"github.com/streamward/assistant/pkg/logging"
)

// tokenExpiryMargin is the margin applied when checking expiration, covering
// clock skew and network latency between us and the resource server.
const tokenExpiryMargin = 30 * time.Second

// TokenStore is a thread-safe in-memory cache of exchanged tokens, indexed
// by (subject, audience, scope). A background goroutine prunes expired
// entries.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[TokenKey]*Token

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewTokenStore creates a token store and starts its cleanup goroutine.
func NewTokenStore() *TokenStore {
	ts := &TokenStore{
		tokens:          make(map[TokenKey]*Token),
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go ts.cleanupLoop()

	return ts
}

// Store saves a token under the given key.
func (ts *TokenStore) Store(key TokenKey, token *Token) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	token.SetExpiresAtFromExpiresIn()
	ts.tokens[key] = token
	logging.Debug("Exchange", "Cached token for audience=%s scope=%s (expires: %v)",
		key.Audience, key.Scope, token.ExpiresAt)
}

// Get returns the cached token for a key, or nil when absent or expired.
func (ts *TokenStore) Get(key TokenKey) *Token {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	token, exists := ts.tokens[key]
	if !exists {
		return nil
	}
	if token.IsExpired(tokenExpiryMargin) {
		logging.Debug("Exchange", "Cached token expired for audience=%s", key.Audience)
		return nil
	}
	return token
}

// Delete removes a token from the store.
func (ts *TokenStore) Delete(key TokenKey) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.tokens, key)
}

// Count returns the number of cached tokens.
func (ts *TokenStore) Count() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.tokens)
}

// Stop stops the cleanup goroutine.
func (ts *TokenStore) Stop() {
	ts.stopOnce.Do(func() {
		close(ts.stopCleanup)
	})
}

func (ts *TokenStore) cleanupLoop() {
	ticker := time.NewTicker(ts.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ts.cleanup()
		case <-ts.stopCleanup:
			return
		}
	}
}

func (ts *TokenStore) cleanup() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	count := 0
	for key, token := range ts.tokens {
		if token.IsExpired(0) {
			delete(ts.tokens, key)
			count++
		}
	}
	if count > 0 {
		logging.Debug("Exchange", "Cleaned up %d expired tokens", count)
	}
}
