package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/xacml"
)

// RedisDecisionCache is a distributed decision cache over Redis. Keys are
// namespaced by a revision counter; Invalidate bumps it so a policy reload
// can never serve results computed under the previous policy set. Batch
// lookups use MGET and stores go through one pipeline.
type RedisDecisionCache struct {
	client   *redis.Client
	keyFmt   string // e.g. "xacml:dec:%d:%s"
	ttl      time.Duration
	revision atomic.Uint64
}

func NewRedisDecisionCache(client *redis.Client, ttl time.Duration) *RedisDecisionCache {
	return &RedisDecisionCache{client: client, keyFmt: "xacml:dec:%d:%s", ttl: ttl}
}

func (c *RedisDecisionCache) key(req *xacml.IndividualDecisionRequest) string {
	return fmt.Sprintf(c.keyFmt, c.revision.Load(), req.Fingerprint())
}

func (c *RedisDecisionCache) GetAll(reqs []*xacml.IndividualDecisionRequest) map[*xacml.IndividualDecisionRequest]*xacml.DecisionResult {
	out := make(map[*xacml.IndividualDecisionRequest]*xacml.DecisionResult, len(reqs))
	for _, req := range reqs {
		out[req] = nil
	}
	if len(reqs) == 0 {
		return out
	}
	keys := make([]string, len(reqs))
	for i, req := range reqs {
		keys[i] = c.key(req)
	}
	vals, err := c.client.MGet(context.Background(), keys...).Result()
	if err != nil {
		return out
	}
	for i, raw := range vals {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var res xacml.DecisionResult
		if err := json.Unmarshal([]byte(s), &res); err != nil {
			continue
		}
		out[reqs[i]] = &res
	}
	return out
}

func (c *RedisDecisionCache) PutAll(results map[*xacml.IndividualDecisionRequest]*xacml.DecisionResult) {
	if len(results) == 0 {
		return
	}
	ctx := context.Background()
	pipe := c.client.Pipeline()
	for req, res := range results {
		if res == nil {
			continue
		}
		data, err := json.Marshal(res)
		if err != nil {
			continue
		}
		pipe.Set(ctx, c.key(req), data, c.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

// Invalidate moves the cache to a fresh key namespace; old entries expire
// through their TTL.
func (c *RedisDecisionCache) Invalidate() {
	c.revision.Add(1)
}

func (c *RedisDecisionCache) Close() error { return c.client.Close() }
