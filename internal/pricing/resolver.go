package pricing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

const (
	lookupWindow = 10 * time.Minute
	lookupLimit  = 30
)

// Resolver memoizes historical lookups per one-minute bucket. A failed
// lookup is cached as a negative entry so the same minute is never retried
// for the life of the Resolver. Lookups cut short by the caller's context
// are not cached. Concurrent requests for one bucket share a single lookup.
type Resolver struct {
	source CandleSource

	mu       sync.Mutex
	cache    map[int64]*decimal.Decimal
	inflight map[int64]*pending

	lookups atomic.Int64
}

// pending is a lookup in progress for one bucket. Its fields are written
// before done is closed.
type pending struct {
	done    chan struct{}
	price   decimal.Decimal
	ok      bool
	settled bool
}

func NewResolver(source CandleSource) *Resolver {
	return &Resolver{
		source:   source,
		cache:    make(map[int64]*decimal.Decimal),
		inflight: make(map[int64]*pending),
	}
}

// Bucket is the cache key for ts: whole minutes since the epoch.
func Bucket(ts time.Time) int64 {
	sec := ts.Unix()
	if sec < 0 {
		return (sec - 59) / 60
	}
	return sec / 60
}

// ResolvePrice returns the candle price nearest ts. The bool is false for an
// invalid timestamp or when no price could be found; failures are logged,
// never returned.
func (r *Resolver) ResolvePrice(ctx context.Context, ts time.Time) (decimal.Decimal, bool) {
	if ts.IsZero() || ts.Unix() <= 0 {
		return decimal.Zero, false
	}
	key := Bucket(ts)

	for {
		r.mu.Lock()
		if entry, hit := r.cache[key]; hit {
			r.mu.Unlock()
			if entry == nil {
				return decimal.Zero, false
			}
			return *entry, true
		}
		if p, busy := r.inflight[key]; busy {
			r.mu.Unlock()
			select {
			case <-p.done:
			case <-ctx.Done():
				return decimal.Zero, false
			}
			if p.settled {
				return p.price, p.ok
			}
			// The leader was cancelled; try again under this caller's context.
			continue
		}
		p := &pending{done: make(chan struct{})}
		r.inflight[key] = p
		r.mu.Unlock()

		price, ok, settled := r.lookup(ctx, ts)

		r.mu.Lock()
		delete(r.inflight, key)
		if settled {
			if ok {
				r.cache[key] = &price
			} else {
				r.cache[key] = nil
			}
		}
		p.price, p.ok, p.settled = price, ok, settled
		r.mu.Unlock()
		close(p.done)
		return price, ok
	}
}

// lookup queries the source around ts. settled is false when the result
// says nothing about ts because ctx ended first.
func (r *Resolver) lookup(ctx context.Context, ts time.Time) (price decimal.Decimal, ok, settled bool) {
	r.lookups.Add(1)
	samples, err := r.source.Candles(ctx, ts.Add(-lookupWindow), ts.Add(lookupWindow), lookupLimit)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			slog.Debug("pricing historical lookup interrupted", "at", ts.UTC().Format(time.RFC3339), "error", err)
			return decimal.Zero, false, false
		}
		slog.Warn("pricing historical lookup failed", "at", ts.UTC().Format(time.RFC3339), "error", err)
		return decimal.Zero, false, true
	}
	s, found := Closest(samples, ts)
	if !found && ctx.Err() != nil {
		return decimal.Zero, false, false
	}
	if !found {
		slog.Debug("pricing historical lookup empty", "at", ts.UTC().Format(time.RFC3339))
		return decimal.Zero, false, true
	}
	return s.Price, true, true
}

// Closest picks the sample nearest target; the first of equally near samples
// wins.
func Closest(samples []Sample, target time.Time) (Sample, bool) {
	best := -1
	var bestDist time.Duration
	for i, s := range samples {
		dist := s.Time.Sub(target)
		if dist < 0 {
			dist = -dist
		}
		if best < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return Sample{}, false
	}
	return samples[best], true
}

// Seed pre-populates a bucket; a nil price seeds a negative entry.
func (r *Resolver) Seed(ts time.Time, price *decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[Bucket(ts)] = price
}

// CacheLen reports the number of cached buckets, negative entries included.
func (r *Resolver) CacheLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// Lookups reports how many external queries have been issued.
func (r *Resolver) Lookups() int64 {
	return r.lookups.Load()
}
