package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited applies a per-DID token bucket in front of another resolver,
// keeping a misbehaving producer from hammering the ledger. Idle buckets are
// evicted periodically.
type RateLimited struct {
	inner   Resolver
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byDid map[string]*bucket
	hits  uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimited wraps inner; returns inner unchanged if the limits are not
// positive.
func NewRateLimited(inner Resolver, rps float64, burst int, idleTTL time.Duration) Resolver {
	if rps <= 0 || burst <= 0 {
		return inner
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &RateLimited{
		inner:   inner,
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byDid:   make(map[string]*bucket),
	}
}

func (r *RateLimited) Resolve(ctx context.Context, did string) (Resolution, error) {
	if !r.allow(did, time.Now()) {
		return Resolution{}, fmt.Errorf("%w: %s: lookup rate exceeded", ErrUnresolvable, did)
	}
	return r.inner.Resolve(ctx, did)
}

func (r *RateLimited) allow(did string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byDid[did]
	if !ok {
		b = &bucket{
			limiter:  rate.NewLimiter(r.limit, r.burst),
			lastSeen: now,
		}
		r.byDid[did] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	r.hits++
	if r.hits%512 == 0 {
		cutoff := now.Add(-r.idleTTL)
		for did, b := range r.byDid {
			if b.lastSeen.Before(cutoff) {
				delete(r.byDid, did)
			}
		}
	}
	return allowed
}
