package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relata-io/relata/internal/relation"
)

// MetadataCache is a thread-safe cache in front of a Metadata service with
// TTL-based expiration and manual invalidation, so repeated relation
// instantiations do not re-read the catalogs.
type MetadataCache struct {
	mu          sync.RWMutex
	relations   map[string]*relation.RelationMeta
	ttl         time.Duration
	lastRefresh time.Time
	stale       bool
	meta        relation.Metadata
}

var _ relation.Metadata = (*MetadataCache)(nil)

// NewMetadataCache creates a cache over meta with the given TTL.
func NewMetadataCache(meta relation.Metadata, ttl time.Duration) *MetadataCache {
	return &MetadataCache{
		relations: make(map[string]*relation.RelationMeta),
		ttl:       ttl,
		meta:      meta,
	}
}

func cacheKey(fqrn relation.FQRN) string {
	return fmt.Sprintf("%s.%s.%s", fqrn.DB, fqrn.Schema, fqrn.Name)
}

func (c *MetadataCache) expired() bool {
	return c.stale || time.Since(c.lastRefresh) > c.ttl
}

// Relation returns the cached descriptor, loading it on a miss or after
// expiration.
func (c *MetadataCache) Relation(ctx context.Context, fqrn relation.FQRN) (*relation.RelationMeta, error) {
	key := cacheKey(fqrn)

	c.mu.RLock()
	if !c.expired() {
		if meta, ok := c.relations[key]; ok {
			c.mu.RUnlock()
			return meta, nil
		}
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired() {
		c.relations = make(map[string]*relation.RelationMeta)
		c.lastRefresh = time.Now()
		c.stale = false
	}
	if meta, ok := c.relations[key]; ok {
		return meta, nil
	}
	meta, err := c.meta.Relation(ctx, fqrn)
	if err != nil {
		return nil, err
	}
	c.relations[key] = meta
	return meta, nil
}

// Invalidate drops every cached descriptor; the next access reloads from the
// underlying service. Call it after DDL.
func (c *MetadataCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = true
	log.Debug().Msg("Metadata cache invalidated")
}
