package vault

import (
	"context"
	"sync"
	"time"
)

// DefaultProbeTTL is how long a cloud vault trusts its last availability
// probe before calling the service again. It applies when a config leaves
// ProbeTTL at zero; a negative ProbeTTL probes on every call.
const DefaultProbeTTL = 30 * time.Second

// probeCache remembers the outcome of the last availability probe. It is
// safe for concurrent use. A ttl <= 0 probes on every call.
type probeCache struct {
	ttl   time.Duration
	probe func(ctx context.Context) error
	now   func() time.Time

	mu        sync.Mutex
	lastErr   error
	expiresAt time.Time
}

func newProbeCache(ttl time.Duration, probe func(ctx context.Context) error) *probeCache {
	return &probeCache{ttl: ttl, probe: probe, now: time.Now}
}

// check returns the cached probe result, probing again once it has expired.
func (c *probeCache) check(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl > 0 && c.now().Before(c.expiresAt) {
		return c.lastErr
	}

	c.lastErr = c.probe(ctx)
	c.expiresAt = c.now().Add(c.ttl)
	return c.lastErr
}

// invalidate forces the next check to probe. Vault operations call it after
// a transport failure so the store falls back promptly.
func (c *probeCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiresAt = time.Time{}
}
