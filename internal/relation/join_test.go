package relation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin_AttachesGroupedRowsAndDropsUnmatched(t *testing.T) {
	m, exec := newTestModel()
	pers := testRelation(t, m, "actor.person")
	post := testRelation(t, m, "blog.post")

	exec.enqueue(
		map[string]any{"id": int64(1), "first_name": "Gaston", "last_name": "Lagaffe", "birth_date": "1970-01-01"},
		map[string]any{"id": int64(2), "first_name": "Jeanne", "last_name": "Jeanmart", "birth_date": "1970-01-02"},
	)
	exec.enqueue(
		map[string]any{"title": "Spirou", "author_first_name": "Gaston", "author_last_name": "Lagaffe", "author_birth_date": "1970-01-01"},
		map[string]any{"title": "Fantasio", "author_first_name": "Gaston", "author_last_name": "Lagaffe", "author_birth_date": "1970-01-01"},
	)

	rows, err := pers.Join(ctx(), JoinSpec{Relation: post, Key: "posts", Field: "title"})
	require.NoError(t, err)

	require.Len(t, rows, 1, "persons without posts are dropped")
	assert.Equal(t, "Gaston", rows[0]["first_name"])
	assert.Equal(t, []any{"Spirou", "Fantasio"}, rows[0]["posts"])

	// The remote select is restricted to the requested fields plus the
	// foreign-key tuple.
	remoteSQL := exec.lastSQL()
	assert.Contains(t, remoteSQL, `"title"`)
	assert.Contains(t, remoteSQL, `"author_birth_date"`)
	assert.NotContains(t, remoteSQL, `"content"`)
	assert.Contains(t, remoteSQL, "DISTINCT")
}

func TestJoin_FieldsModeAttachesMappings(t *testing.T) {
	m, exec := newTestModel()
	pers := testRelation(t, m, "actor.person")
	post := testRelation(t, m, "blog.post")

	exec.enqueue(
		map[string]any{"id": int64(1), "first_name": "Gaston", "last_name": "Lagaffe", "birth_date": "1970-01-01"},
	)
	exec.enqueue(
		map[string]any{"id": int64(7), "title": "Spirou", "author_first_name": "Gaston", "author_last_name": "Lagaffe", "author_birth_date": "1970-01-01"},
	)

	rows, err := pers.Join(ctx(), JoinSpec{Relation: post, Key: "posts", Fields: []string{"id", "title"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []any{map[string]any{"id": int64(7), "title": "Spirou"}}, rows[0]["posts"])
}

func TestJoin_NoFkeyBetweenClasses(t *testing.T) {
	m, exec := newTestModel()
	post := testRelation(t, m, "blog.post")
	comment := testRelation(t, m, "blog.comment")
	exec.enqueue()

	_, err := post.Join(ctx(), JoinSpec{Relation: comment, Key: "comments"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no foreign key between")
}

func TestJoin_SpecValidation(t *testing.T) {
	m, exec := newTestModel()
	pers := testRelation(t, m, "actor.person")
	post := testRelation(t, m, "blog.post")

	exec.enqueue()
	_, err := pers.Join(ctx(), JoinSpec{Relation: post})
	assert.Error(t, err)

	exec.enqueue()
	_, err = pers.Join(ctx(), JoinSpec{Relation: post, Key: "posts", Field: "title", Fields: []string{"id"}})
	assert.Error(t, err)
}

func TestToJSONValue(t *testing.T) {
	id := uuid.MustParse("0f0e7a46-7d22-4f0f-98cf-d5b1f7f82d8a")
	when := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, id.String(), toJSONValue(id))
	assert.Equal(t, id.String(), toJSONValue([16]byte(id)))
	assert.Equal(t, "1970-01-01T00:00:00Z", toJSONValue(when))
	assert.Equal(t, "1h0m0s", toJSONValue(time.Hour))
	assert.Equal(t, int64(42), toJSONValue(int64(42)))
}
