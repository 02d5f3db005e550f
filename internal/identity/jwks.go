package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/streamward/assistant/pkg/logging"

	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"
)

// jwksCacheTTL bounds how long a fetched key set is trusted before the next
// use triggers a refresh.
const jwksCacheTTL = time.Hour

// jwksCache caches the published signing keys of one issuer. Concurrent
// refreshes are deduplicated; a stale key set is served when a refresh fails.
type jwksCache struct {
	url  string
	http *http.Client

	group singleflight.Group

	mu        sync.RWMutex
	keysByKID map[string]interface{}
	lastFetch time.Time
}

func newJWKSCache(url string, httpClient *http.Client) *jwksCache {
	return &jwksCache{
		url:       url,
		http:      httpClient,
		keysByKID: map[string]interface{}{},
	}
}

func (c *jwksCache) refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		return nil, c.doRefresh(ctx)
	})
	return err
}

func (c *jwksCache) doRefresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("jwks status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return err
	}

	keys := map[string]interface{}{}
	for _, k := range set.Keys {
		if k.Key == nil {
			continue
		}
		kid := strings.TrimSpace(k.KeyID)
		if kid == "" {
			continue
		}
		keys[kid] = k.Key
	}
	if len(keys) == 0 {
		return errors.New("jwks contained no usable keys")
	}

	c.mu.Lock()
	c.keysByKID = keys
	c.lastFetch = time.Now().UTC()
	c.mu.Unlock()

	logging.Debug("Verifier", "Refreshed JWKS from %s (%d keys)", c.url, len(keys))
	return nil
}

// get returns the key for a kid, refreshing the set on a miss or when the
// cached set is older than the TTL.
func (c *jwksCache) get(ctx context.Context, kid string) (interface{}, error) {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, errors.New("missing kid")
	}

	c.mu.RLock()
	key, ok := c.keysByKID[kid]
	last := c.lastFetch
	c.mu.RUnlock()

	if ok && time.Since(last) < jwksCacheTTL {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		if ok {
			// Serve the stale key rather than fail the request.
			logging.Warn("Verifier", "JWKS refresh failed for %s, serving stale key: %v", c.url, err)
			return key, nil
		}
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok = c.keysByKID[kid]
	if !ok {
		return nil, fmt.Errorf("no signing key found for kid %s", kid)
	}
	return key, nil
}
