package pricing

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestStoreOracle_Price(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.UpsertStock(context.Background(), &model.Stock{Ticker: "AAPL", Price: d(189.5)})
	o := NewStoreOracle(ms)

	p, err := o.Price(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Equal(d(189.5)) {
		t.Errorf("expected 189.5, got %s", p)
	}
}

func TestStoreOracle_UnknownTicker(t *testing.T) {
	o := NewStoreOracle(store.NewMemoryStore())

	_, err := o.Price(context.Background(), "ZZZZ")
	if !errors.Is(err, ErrUnknownTicker) {
		t.Errorf("expected ErrUnknownTicker, got %v", err)
	}
}

type failingListings struct{}

func (failingListings) GetStock(context.Context, string) (*model.Stock, error) {
	return nil, errors.New("connection reset")
}

func TestStoreOracle_PropagatesStoreErrors(t *testing.T) {
	_, err := NewStoreOracle(failingListings{}).Price(context.Background(), "AAPL")
	if err == nil || errors.Is(err, ErrUnknownTicker) {
		t.Errorf("expected raw store error, got %v", err)
	}
}

func TestStaticOracle(t *testing.T) {
	o := StaticOracle{"AAPL": d(100)}

	if p, err := o.Price(context.Background(), " aapl "); err != nil || !p.Equal(d(100)) {
		t.Errorf("expected 100, got %s (%v)", p, err)
	}
	if _, err := o.Price(context.Background(), "MSFT"); !errors.Is(err, ErrUnknownTicker) {
		t.Errorf("expected ErrUnknownTicker, got %v", err)
	}
}

// countingOracle counts primary lookups.
type countingOracle struct {
	calls atomic.Int32
	price decimal.Decimal
}

func (o *countingOracle) Price(context.Context, string) (decimal.Decimal, error) {
	o.calls.Add(1)
	return o.price, nil
}

func TestCachedOracle_ReadThrough(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx := context.Background()
	primary := &countingOracle{price: d(42)}
	o := NewCachedOracle(primary, rdb, time.Minute)
	o.Invalidate(ctx, "CACHETEST")

	for i := 0; i < 3; i++ {
		p, err := o.Price(ctx, "cachetest")
		if err != nil {
			t.Fatalf("price: %v", err)
		}
		if !p.Equal(d(42)) {
			t.Errorf("expected 42, got %s", p)
		}
	}
	if n := primary.calls.Load(); n != 1 {
		t.Errorf("expected 1 primary lookup, got %d", n)
	}

	// Invalidation forces a fresh read.
	primary.price = d(43)
	o.Invalidate(ctx, "CACHETEST")
	p, _ := o.Price(ctx, "CACHETEST")
	if !p.Equal(d(43)) {
		t.Errorf("expected 43 after invalidation, got %s", p)
	}
	o.Invalidate(ctx, "CACHETEST")
}

// unreachableRedis returns a client whose commands fail fast, so the cache
// always misses and the primary is consulted.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// ctxOracle fails the way a real lookup would once its context is done.
type ctxOracle struct{ price decimal.Decimal }

func (o ctxOracle) Price(ctx context.Context, _ string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	return o.price, nil
}

func TestCachedOracle_SharedLookupIgnoresCallerCancel(t *testing.T) {
	o := NewCachedOracle(ctxOracle{price: d(12)}, unreachableRedis(t), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := o.Price(ctx, "AAPL")
	if err != nil {
		t.Fatalf("expected the shared lookup to survive caller cancel, got %v", err)
	}
	if !p.Equal(d(12)) {
		t.Errorf("expected 12, got %s", p)
	}
}

func TestCachedOracle_FillSkippedAfterInvalidate(t *testing.T) {
	o := NewCachedOracle(ctxOracle{price: d(1)}, unreachableRedis(t), time.Minute)
	ctx := context.Background()
	key := priceKey("aapl")

	gen := o.generation(key)
	if !o.fill(ctx, key, gen, d(1)) {
		t.Error("fill with a current generation should store")
	}

	// A listing update lands between the primary read and the cache write.
	o.Invalidate(ctx, "AAPL")
	if o.fill(ctx, key, gen, d(1)) {
		t.Error("fill with a stale generation must not store the old price")
	}
	if !o.fill(ctx, key, o.generation(key), d(2)) {
		t.Error("fill after re-reading the generation should store")
	}
}
