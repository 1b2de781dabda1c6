package projection

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is how long a snapshot is served before the next read rebuilds.
const DefaultTTL = 60 * time.Second

// Builder produces a fresh snapshot. *Engine satisfies it.
type Builder interface {
	Build(ctx context.Context) (*Snapshot, error)
}

// Cache serves the latest snapshot until it expires, then rebuilds on the
// reading goroutine. Concurrent readers of an expired snapshot each rebuild
// and the last one to finish wins; both results come from the same log, so
// they converge.
type Cache struct {
	builder Builder
	ttl     time.Duration
	current atomic.Pointer[Snapshot]
	now     func() time.Time
	logger  zerolog.Logger
}

// NewCache creates an empty cache. A non-positive ttl means DefaultTTL.
func NewCache(b Builder, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		builder: b,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger.With().Str("component", "projection_cache").Logger(),
	}
}

// TTL returns the snapshot lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// GetOrRebuild returns the cached snapshot if it is younger than the TTL and
// otherwise rebuilds. If the rebuild fails the previous snapshot, however
// old, is returned instead; the error surfaces only when there is none.
func (c *Cache) GetOrRebuild(ctx context.Context) (*Snapshot, error) {
	cur := c.current.Load()
	if cur != nil && c.now().Sub(cur.BuiltAt) < c.ttl {
		return cur, nil
	}

	fresh, err := c.builder.Build(ctx)
	if err != nil {
		if cur != nil {
			c.logger.Warn().Err(err).Dur("age", c.now().Sub(cur.BuiltAt)).Msg("rebuild failed, serving stale snapshot")
			return cur, nil
		}
		return nil, err
	}
	c.current.Store(fresh)
	return fresh, nil
}

// Agents returns the agents of the current snapshot.
func (c *Cache) Agents(ctx context.Context) ([]Agent, error) {
	snap, err := c.GetOrRebuild(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Agents(), nil
}

// Tasks returns the tasks of the current snapshot.
func (c *Cache) Tasks(ctx context.Context) ([]Task, error) {
	snap, err := c.GetOrRebuild(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Tasks(), nil
}

// Curves returns the curves of the current snapshot.
func (c *Cache) Curves(ctx context.Context) ([]Curve, error) {
	snap, err := c.GetOrRebuild(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Curves(), nil
}

// Peek returns the cached snapshot without rebuilding. It may be nil.
func (c *Cache) Peek() *Snapshot {
	return c.current.Load()
}

// Age is the age of the cached snapshot, or -1 if nothing is cached.
func (c *Cache) Age() time.Duration {
	cur := c.current.Load()
	if cur == nil {
		return -1
	}
	return c.now().Sub(cur.BuiltAt)
}
