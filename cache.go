package xacml

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
)

// DecisionCache stores evaluation results keyed by preprocessed request.
// GetAll must return a map with exactly one entry per input request; a nil
// value marks a miss. Implementations must be safe for concurrent use and
// must never serve results produced by a superseded policy set.
type DecisionCache interface {
	GetAll(reqs []*IndividualDecisionRequest) map[*IndividualDecisionRequest]*DecisionResult
	PutAll(results map[*IndividualDecisionRequest]*DecisionResult)
	Invalidate()
	Close() error
}

// RistrettoDecisionCache is the in-process decision cache: fingerprint to
// result with TTL and cost-based eviction. Invalidate bumps a revision that
// prefixes every key, so stale entries become unreachable immediately, and
// clears the underlying cache.
type RistrettoDecisionCache struct {
	cache    *ristretto.Cache
	ttl      time.Duration
	revision atomic.Uint64
}

// RistrettoDecisionCacheConfig sizes the cache. Zero values fall back to
// defaults suitable for a mid-sized PDP.
type RistrettoDecisionCacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	TTL         time.Duration
}

func NewRistrettoDecisionCache(cfg RistrettoDecisionCacheConfig) (*RistrettoDecisionCache, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1 << 16
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1 << 24
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoDecisionCache{cache: cache, ttl: cfg.TTL}, nil
}

func (c *RistrettoDecisionCache) key(req *IndividualDecisionRequest) string {
	return strconv.FormatUint(c.revision.Load(), 10) + "|" + req.Fingerprint()
}

func (c *RistrettoDecisionCache) GetAll(reqs []*IndividualDecisionRequest) map[*IndividualDecisionRequest]*DecisionResult {
	out := make(map[*IndividualDecisionRequest]*DecisionResult, len(reqs))
	for _, req := range reqs {
		var res *DecisionResult
		if v, hit := c.cache.Get(c.key(req)); hit {
			res, _ = v.(*DecisionResult)
		}
		out[req] = res
	}
	return out
}

func (c *RistrettoDecisionCache) PutAll(results map[*IndividualDecisionRequest]*DecisionResult) {
	for req, res := range results {
		if res == nil {
			continue
		}
		cost := int64(1 + len(res.Obligations) + len(res.Advices))
		if c.ttl > 0 {
			c.cache.SetWithTTL(c.key(req), res, cost, c.ttl)
		} else {
			c.cache.Set(c.key(req), res, cost)
		}
	}
}

// Wait blocks until buffered writes have been applied. Ristretto applies
// sets asynchronously; callers that need read-your-write (tests, warmup)
// flush explicitly.
func (c *RistrettoDecisionCache) Wait() {
	c.cache.Wait()
}

// Invalidate makes all current entries unreachable. Called on policy reload.
func (c *RistrettoDecisionCache) Invalidate() {
	c.revision.Add(1)
	c.cache.Clear()
}

func (c *RistrettoDecisionCache) Close() error {
	c.cache.Close()
	return nil
}
