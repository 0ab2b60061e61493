package telemetry

import (
	"sync"
	"time"

	"github.com/voltwatch/voltwatch/pkg/types"
)

// Cache memoizes one generated demo series so repeated reads are cheap and
// stable across a session. It is safe for concurrent use; generation is
// non-trivial so a reset must not interleave with readers.
type Cache struct {
	mu  sync.Mutex
	gen *Generator
	now func() time.Time

	series []types.TelemetryPoint
}

// NewCache creates a Cache around the given generator. A nil now falls
// back to time.Now.
func NewCache(gen *Generator, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{gen: gen, now: now}
}

// GetOrCreate returns the cached series, generating it first if absent.
func (c *Cache) GetOrCreate() []types.TelemetryPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.series == nil {
		c.series = c.gen.Generate(c.now())
	}
	return c.series
}

// Reset unconditionally regenerates the series and returns it.
func (c *Cache) Reset() []types.TelemetryPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series = c.gen.Generate(c.now())
	return c.series
}
