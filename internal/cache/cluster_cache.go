// Package cache provides a redis-backed read cache for cluster documents.
// The cache is strictly an optimization: every cluster mutation invalidates
// the entry, and a cold or unreachable redis degrades to store reads.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/gotrs-io/dedup-ce/internal/models"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dedup_cluster_cache_hits_total",
		Help: "Cluster reads served from redis",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dedup_cluster_cache_misses_total",
		Help: "Cluster reads that fell through to the store",
	})
	cacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dedup_cluster_cache_errors_total",
		Help: "Redis operations that failed",
	})
)

// ClusterCache caches cluster documents by (partition, id). A nil
// *ClusterCache is valid and disables caching.
type ClusterCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Options configures the redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// New connects to redis and returns the cache.
func New(opts Options) (*ClusterCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "dedup"
	}
	return &ClusterCache{client: client, ttl: ttl, prefix: prefix}, nil
}

func (c *ClusterCache) key(pk, id string) string {
	return fmt.Sprintf("%s:cluster:%s:%s", c.prefix, pk, id)
}

// Get returns the cached cluster, or (nil, false) on miss or error.
func (c *ClusterCache) Get(ctx context.Context, pk, id string) (*models.Cluster, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.key(pk, id)).Bytes()
	if err == redis.Nil {
		cacheMisses.Inc()
		return nil, false
	}
	if err != nil {
		cacheErrors.Inc()
		return nil, false
	}
	var cl models.Cluster
	if err := json.Unmarshal(raw, &cl); err != nil {
		cacheErrors.Inc()
		return nil, false
	}
	cacheHits.Inc()
	return &cl, true
}

// Set stores a cluster for the configured TTL. Failures only count.
func (c *ClusterCache) Set(ctx context.Context, cl *models.Cluster) {
	if c == nil || cl == nil {
		return
	}
	raw, err := json.Marshal(cl)
	if err != nil {
		cacheErrors.Inc()
		return
	}
	if err := c.client.Set(ctx, c.key(cl.PK, cl.ID), raw, c.ttl).Err(); err != nil {
		cacheErrors.Inc()
	}
}

// Invalidate drops the cached entry after a mutation.
func (c *ClusterCache) Invalidate(ctx context.Context, pk, id string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, c.key(pk, id)).Err(); err != nil {
		cacheErrors.Inc()
	}
}

// Close releases the redis connection.
func (c *ClusterCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
