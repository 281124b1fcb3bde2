package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/monigenomi/openpgx/internal/domain"
)

// CachedEngine wraps a RecommendationEngine with a two-tier cache: an
// in-process LRU in front of an optional Redis tier. The Redis client is
// guarded by a circuit breaker so a degraded Redis falls back to the inner
// engine instead of stalling requests.
//
// Entries are keyed on the full genotype input, so a cache hit is exact.
// Swapping the snapshot requires a Purge.
type CachedEngine struct {
	inner domain.RecommendationEngine
	local *lru.Cache[string, map[string]map[domain.Source]*domain.Recommendation]
	redis *redis.Client
	cb    *gobreaker.CircuitBreaker
	ttl   time.Duration
	log   *logrus.Logger
}

// CacheOptions configures the cache tiers.
type CacheOptions struct {
	// LocalSize is the in-process LRU entry capacity.
	LocalSize int
	// Redis is the distributed tier; nil disables it.
	Redis *redis.Client
	// TTL bounds the lifetime of Redis entries.
	TTL time.Duration
}

// NewCachedEngine wraps engine with the configured cache tiers.
func NewCachedEngine(engine domain.RecommendationEngine, opts CacheOptions, logger *logrus.Logger) (*CachedEngine, error) {
	if opts.LocalSize <= 0 {
		opts.LocalSize = 1024
	}
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}

	local, err := lru.New[string, map[string]map[domain.Source]*domain.Recommendation](opts.LocalSize)
	if err != nil {
		return nil, err
	}

	ce := &CachedEngine{
		inner: engine,
		local: local,
		redis: opts.Redis,
		ttl:   opts.TTL,
		log:   logger,
	}
	if opts.Redis != nil {
		ce.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "recommendation-cache",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Cache circuit breaker state changed")
			},
		})
	}
	return ce, nil
}

// GetRecommendations serves from cache when possible, consulting the local
// tier, then Redis, then the inner engine. Misses populate both tiers.
func (c *CachedEngine) GetRecommendations(ctx context.Context, genotypes map[string]string) (map[string]map[domain.Source]*domain.Recommendation, error) {
	key := cacheKey(genotypes)

	if cached, ok := c.local.Get(key); ok {
		return cached, nil
	}
	if result, ok := c.redisGet(ctx, key); ok {
		c.local.Add(key, result)
		return result, nil
	}

	result, err := c.inner.GetRecommendations(ctx, genotypes)
	if err != nil {
		return nil, err
	}
	c.local.Add(key, result)
	c.redisSet(ctx, key, result)
	return result, nil
}

// Phenotype is not cached; it is a pure lookup against the in-memory
// snapshot and costs less than the cache round trip would.
func (c *CachedEngine) Phenotype(genotypes map[string]string) domain.FactorMap {
	return c.inner.Phenotype(genotypes)
}

// Drugs delegates to the inner engine.
func (c *CachedEngine) Drugs() []string {
	return c.inner.Drugs()
}

// Purge clears both cache tiers. Call after swapping the snapshot.
func (c *CachedEngine) Purge(ctx context.Context) {
	c.local.Purge()
	if c.redis == nil {
		return
	}
	_, err := c.cb.Execute(func() (interface{}, error) {
		iter := c.redis.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
				return nil, err
			}
		}
		return nil, iter.Err()
	})
	if err != nil {
		c.log.WithError(err).Warn("Failed to purge Redis cache tier")
	}
}

const redisKeyPrefix = "openpgx:rec:"

func (c *CachedEngine) redisGet(ctx context.Context, key string) (map[string]map[domain.Source]*domain.Recommendation, bool) {
	if c.redis == nil {
		return nil, false
	}
	raw, err := c.cb.Execute(func() (interface{}, error) {
		return c.redis.Get(ctx, redisKeyPrefix+key).Bytes()
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Debug("Redis cache read failed")
		}
		return nil, false
	}
	var result map[string]map[domain.Source]*domain.Recommendation
	if err := json.Unmarshal(raw.([]byte), &result); err != nil {
		c.log.WithError(err).Warn("Corrupt Redis cache entry dropped")
		return nil, false
	}
	return result, true
}

func (c *CachedEngine) redisSet(ctx context.Context, key string, result map[string]map[domain.Source]*domain.Recommendation) {
	if c.redis == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, c.redis.Set(ctx, redisKeyPrefix+key, payload, c.ttl).Err()
	})
	if err != nil {
		c.log.WithError(err).Debug("Redis cache write failed")
	}
}

// cacheKey derives a stable digest of the genotype input. Gene order in
// the request must not affect the key.
func cacheKey(genotypes map[string]string) string {
	genes := make([]string, 0, len(genotypes))
	for gene := range genotypes {
		genes = append(genes, gene)
	}
	sort.Strings(genes)

	h := sha256.New()
	for _, gene := range genes {
		h.Write([]byte(gene))
		h.Write([]byte{'='})
		h.Write([]byte(genotypes[gene]))
		h.Write([]byte{';'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
