package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relata-io/relata/internal/relation"
)

func TestReverseFkeyName(t *testing.T) {
	other := relation.FQRN{DB: "blogdb", Schema: "blog", Name: "post"}
	name := reverseFkeyName("blogdb", other, []string{"author_first_name", "author_last_name"})
	assert.Equal(t, "_reverse_fkey_blogdb_blog_post_author_first_name_author_last_name", name)
}

func TestMarkKeyColumns(t *testing.T) {
	meta := &relation.RelationMeta{
		Columns: []relation.ColumnMeta{
			{Name: "id"},
			{Name: "first_name"},
			{Name: "last_name"},
		},
		PrimaryKey: []string{"first_name", "last_name"},
		Unique:     [][]string{{"id"}, {"first_name", "last_name"}},
	}
	markKeyColumns(meta)

	assert.True(t, meta.Columns[0].IsUnique)
	assert.False(t, meta.Columns[0].IsPK)
	assert.True(t, meta.Columns[1].IsPK)
	// Multi-column unique constraints do not mark individual columns.
	assert.False(t, meta.Columns[1].IsUnique)
	assert.True(t, meta.Columns[2].IsPK)
}
