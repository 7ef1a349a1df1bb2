package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/stocksim/trading-engine/internal/ticker"
)

// CachedOracle wraps a primary Oracle with a Redis read-through cache.
// Reads check Redis first then fall back to the primary; concurrent misses
// for the same ticker share one primary lookup. Listing updates call
// Invalidate so the next read re-populates.
type CachedOracle struct {
	primary Oracle
	rdb     *redis.Client
	ttl     time.Duration
	group   singleflight.Group

	// mu orders cache fills against invalidations. A fill only lands if no
	// invalidation for its key happened since its primary lookup started.
	mu  sync.Mutex
	gen map[string]uint64
}

// NewCachedOracle creates a cached wrapper around a primary oracle.
func NewCachedOracle(primary Oracle, rdb *redis.Client, ttl time.Duration) *CachedOracle {
	return &CachedOracle{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
		gen:     make(map[string]uint64),
	}
}

func (o *CachedOracle) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := priceKey(symbol)

	// Try cache.
	if s, err := o.rdb.Get(ctx, key).Result(); err == nil {
		if p, err := decimal.NewFromString(s); err == nil {
			return p, nil
		}
	}

	// Cache miss: read from primary. The flight is shared, so it must not
	// die with whichever caller happened to start it.
	v, err, _ := o.group.Do(key, func() (interface{}, error) {
		flightCtx := context.WithoutCancel(ctx)
		gen := o.generation(key)
		p, err := o.primary.Price(flightCtx, symbol)
		if err != nil {
			return decimal.Zero, err
		}
		o.fill(flightCtx, key, gen, p)
		return p, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

// Invalidate drops the cached price for symbol.
func (o *CachedOracle) Invalidate(ctx context.Context, symbol string) {
	key := priceKey(symbol)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen[key]++
	o.group.Forget(key)

	if err := o.rdb.Del(ctx, key).Err(); err != nil {
		// Stale for at most ttl.
		slog.Warn("price cache invalidation failed", "ticker", symbol, "err", err)
	}
}

func (o *CachedOracle) generation(key string) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen[key]
}

// fill caches p unless key was invalidated after gen was read, and reports
// whether it tried to store.
func (o *CachedOracle) fill(ctx context.Context, key string, gen uint64, p decimal.Decimal) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen[key] != gen {
		return false
	}
	if err := o.rdb.Set(ctx, key, p.String(), o.ttl).Err(); err != nil {
		slog.Debug("price cache fill failed", "key", key, "err", err)
	}
	return true
}

func priceKey(symbol string) string { return fmt.Sprintf("price:%s", ticker.Normalize(symbol)) }
