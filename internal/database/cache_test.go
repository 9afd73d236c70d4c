package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relata-io/relata/internal/relation"
)

type countingMetadata struct {
	loads int
}

func (c *countingMetadata) Relation(_ context.Context, fqrn relation.FQRN) (*relation.RelationMeta, error) {
	c.loads++
	return &relation.RelationMeta{
		FQRN:    fqrn,
		Kind:    relation.KindTable,
		Columns: []relation.ColumnMeta{{Name: "id", SQLType: "int4", Position: 1}},
	}, nil
}

func TestMetadataCache_ServesFromCache(t *testing.T) {
	underlying := &countingMetadata{}
	cache := NewMetadataCache(underlying, time.Hour)
	fqrn := relation.FQRN{DB: "blogdb", Schema: "actor", Name: "person"}

	first, err := cache.Relation(context.Background(), fqrn)
	require.NoError(t, err)
	second, err := cache.Relation(context.Background(), fqrn)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, underlying.loads)

	other := relation.FQRN{DB: "blogdb", Schema: "blog", Name: "post"}
	_, err = cache.Relation(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 2, underlying.loads)
}

func TestMetadataCache_InvalidateForcesReload(t *testing.T) {
	underlying := &countingMetadata{}
	cache := NewMetadataCache(underlying, time.Hour)
	fqrn := relation.FQRN{DB: "blogdb", Schema: "actor", Name: "person"}

	_, err := cache.Relation(context.Background(), fqrn)
	require.NoError(t, err)
	cache.Invalidate()
	_, err = cache.Relation(context.Background(), fqrn)
	require.NoError(t, err)

	assert.Equal(t, 2, underlying.loads)
}

func TestMetadataCache_TTLExpiry(t *testing.T) {
	underlying := &countingMetadata{}
	cache := NewMetadataCache(underlying, time.Nanosecond)
	fqrn := relation.FQRN{DB: "blogdb", Schema: "actor", Name: "person"}

	_, err := cache.Relation(context.Background(), fqrn)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = cache.Relation(context.Background(), fqrn)
	require.NoError(t, err)

	assert.Equal(t, 2, underlying.loads)
}
