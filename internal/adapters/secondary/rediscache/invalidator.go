package rediscache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/lorrc/backoffice-realtime/internal/core/ports"
)

const scanBatch = 500

// Stats are the invalidator counters.
type Stats struct {
	Calls       int64 `json:"calls"`
	KeysRemoved int64 `json:"keysRemoved"`
	Failures    int64 `json:"failures"`
}

// Invalidator evicts entries from the shared Redis cache. Keys are laid out
// as "{prefix}{name}" and "{prefix}{name}:..." for named caches, and
// "{prefix}{kind}:{id}" plus "{prefix}{kind}:{id}:..." for entities.
type Invalidator struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger

	calls   atomic.Int64
	removed atomic.Int64
	failed  atomic.Int64
}

var _ ports.CacheInvalidator = (*Invalidator)(nil)

// NewInvalidator creates an invalidator over client. prefix namespaces every key.
func NewInvalidator(client redis.UniversalClient, prefix string, logger *slog.Logger) *Invalidator {
	return &Invalidator{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "redis_cache"),
	}
}

// Invalidate clears the named cache.
func (i *Invalidator) Invalidate(ctx context.Context, name string) error {
	return i.evict(ctx, "invalidate", i.prefix+name)
}

// InvalidateByPattern clears every key matching a glob pattern.
func (i *Invalidator) InvalidateByPattern(ctx context.Context, pattern string) error {
	i.calls.Add(1)
	n, err := i.unlinkMatching(ctx, i.prefix+pattern)
	i.removed.Add(n)
	if err != nil {
		i.failed.Add(1)
		return fmt.Errorf("invalidate pattern %q: %w", pattern, err)
	}
	i.logger.DebugContext(ctx, "cache pattern invalidated", "pattern", pattern, "keys", n)
	return nil
}

// InvalidateEntity clears one entity's cached form.
func (i *Invalidator) InvalidateEntity(ctx context.Context, kind ports.EntityKind, id string) error {
	return i.evict(ctx, "invalidate entity", EntityKey(i.prefix, kind, id))
}

// evict removes key and everything nested under it.
func (i *Invalidator) evict(ctx context.Context, op, key string) error {
	i.calls.Add(1)
	deleted, err := i.client.Unlink(ctx, key).Result()
	if err != nil {
		i.failed.Add(1)
		return fmt.Errorf("%s %q: %w", op, key, err)
	}
	nested, err := i.unlinkMatching(ctx, escapeGlob(key)+":*")
	total := deleted + nested
	i.removed.Add(total)
	if err != nil {
		i.failed.Add(1)
		return fmt.Errorf("%s %q: %w", op, key, err)
	}
	i.logger.DebugContext(ctx, "cache keys invalidated", "key", key, "keys", total)
	return nil
}

// unlinkMatching walks the keyspace with SCAN and unlinks matches in batches.
func (i *Invalidator) unlinkMatching(ctx context.Context, match string) (int64, error) {
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := i.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := i.client.Unlink(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += n
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

// Stats returns a snapshot of the counters.
func (i *Invalidator) Stats() Stats {
	return Stats{
		Calls:       i.calls.Load(),
		KeysRemoved: i.removed.Load(),
		Failures:    i.failed.Load(),
	}
}

// EntityKey is the Redis key of an entity's cached form.
func EntityKey(prefix string, kind ports.EntityKind, id string) string {
	return prefix + string(kind) + ":" + id
}

var globReplacer = strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string { return globReplacer.Replace(s) }
