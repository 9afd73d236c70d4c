package relation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField_SetScalar(t *testing.T) {
	m, _ := newTestModel()
	pers := testRelation(t, m, "actor.person")

	require.NoError(t, pers.Set("first_name", "jojo"))
	f, err := pers.Field("first_name")
	require.NoError(t, err)
	assert.True(t, f.IsSet())
	assert.Equal(t, "jojo", f.Value())
	assert.Equal(t, "=", f.Comp())
}

func TestField_UnsetWithNil(t *testing.T) {
	m, _ := newTestModel()
	pers := testRelation(t, m, "actor.person")

	require.NoError(t, pers.Set("first_name", "jojo"))
	require.NoError(t, pers.Set("first_name", nil))
	f, _ := pers.Field("first_name")
	assert.False(t, f.IsSet())
	assert.Nil(t, f.Value())
	assert.False(t, pers.IsSet())
}

func TestField_SetNull(t *testing.T) {
	m, _ := newTestModel()
	post := testRelation(t, m, "blog.post")

	require.NoError(t, post.Set("content", NULL))
	f, _ := post.Field("content")
	assert.True(t, f.IsSet())
	assert.Equal(t, "is", f.Comp())

	st := &sqlState{}
	assert.Equal(t, fmt.Sprintf("r%d.\"content\" IS NULL", post.aliasID()),
		f.whereRepr(querySelect, post.aliasID(), st))
	assert.Empty(t, st.args)
}

func TestField_SetCompIsNot(t *testing.T) {
	m, _ := newTestModel()
	post := testRelation(t, m, "blog.post")

	require.NoError(t, post.SetComp("content", "is not", NULL))
	f, _ := post.Field("content")
	st := &sqlState{}
	assert.Equal(t, fmt.Sprintf("r%d.\"content\" IS NOT NULL", post.aliasID()),
		f.whereRepr(querySelect, post.aliasID(), st))
}

func TestField_SetCompValidation(t *testing.T) {
	m, _ := newTestModel()
	post := testRelation(t, m, "blog.post")

	tests := []struct {
		name         string
		comp         string
		value        any
		invalidValue bool
	}{
		{"unknown comparator", "~~", "x", false},
		{"nil value with comparator", "=", nil, true},
		{"null with equality", "=", NULL, false},
		{"null with not-equal", "!=", NULL, false},
		{"is with non-null", "is", "x", false},
		{"sequence with nil element", "=", []any{"a", nil}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := post.SetComp("content", tt.comp, tt.value)
			require.Error(t, err)
			if tt.invalidValue {
				var want *InvalidValueError
				assert.ErrorAs(t, err, &want)
			} else {
				var want *InvalidComparatorError
				assert.ErrorAs(t, err, &want)
			}
		})
	}
}

func TestField_ComparatorClosedSet(t *testing.T) {
	m, _ := newTestModel()
	post := testRelation(t, m, "blog.post")

	for _, comp := range []string{"=", "!=", "<", "<=", ">", ">=", "like", "ilike", "@@", "%", "in", "any"} {
		assert.NoError(t, post.SetComp("title", comp, "x"), comp)
	}
}

func TestField_SimilarityComparatorRendersBare(t *testing.T) {
	// pgx binds values as $N parameters, so "%" needs no doubling.
	m, _ := newTestModel()
	post := testRelation(t, m, "blog.post")

	require.NoError(t, post.SetComp("title", "%", "spirou"))
	f, _ := post.Field("title")
	st := &sqlState{}
	assert.Equal(t, fmt.Sprintf("r%d.\"title\" %% $1", post.aliasID()),
		f.whereRepr(querySelect, post.aliasID(), st))
	assert.Equal(t, []any{"spirou"}, st.args)
}

func TestField_SequenceAgainstScalarColumn(t *testing.T) {
	m, _ := newTestModel()
	post := testRelation(t, m, "blog.post")

	require.NoError(t, post.Set("title", []string{"bonjour", "au revoir"}))
	f, _ := post.Field("title")
	require.IsType(t, []any{}, f.Value())

	st := &sqlState{}
	assert.Equal(t, fmt.Sprintf("r%d.\"title\" = any($1)", post.aliasID()),
		f.whereRepr(querySelect, post.aliasID(), st))
	assert.Equal(t, []any{[]any{"bonjour", "au revoir"}}, st.args)
}

func TestField_EmptySequenceMatchesNothing(t *testing.T) {
	m, _ := newTestModel()
	post := testRelation(t, m, "blog.post")

	require.NoError(t, post.Set("title", []string{}))
	f, _ := post.Field("title")
	st := &sqlState{}
	// An empty array is bound; "= any" over it is well-defined and false.
	assert.Equal(t, fmt.Sprintf("r%d.\"title\" = any($1)", post.aliasID()),
		f.whereRepr(querySelect, post.aliasID(), st))
	assert.Equal(t, []any{[]any{}}, st.args)
}

func TestField_ScalarAgainstArrayColumn(t *testing.T) {
	m, _ := newTestModel()
	comment := testRelation(t, m, "blog.comment")

	require.NoError(t, comment.Set("tags", "coucou"))
	f, _ := comment.Field("tags")
	st := &sqlState{}
	assert.Equal(t, "$1 = ANY(\"tags\")", f.whereRepr(queryUpdate, comment.aliasID(), st))
	assert.Equal(t, []any{"coucou"}, st.args)
}

func TestField_SequenceAgainstArrayColumn(t *testing.T) {
	m, _ := newTestModel()
	comment := testRelation(t, m, "blog.comment")

	require.NoError(t, comment.Set("tags", []string{"a", "b"}))
	f, _ := comment.Field("tags")
	st := &sqlState{}
	assert.Equal(t, fmt.Sprintf("r%d.\"tags\" = $1", comment.aliasID()),
		f.whereRepr(querySelect, comment.aliasID(), st))
}

func TestField_Unaccent(t *testing.T) {
	m, _ := newTestModel()
	pers := testRelation(t, m, "actor.person")

	require.NoError(t, pers.SetUnaccent("last_name"))
	require.NoError(t, pers.SetComp("last_name", "ilike", "herve%"))
	f, _ := pers.Field("last_name")
	st := &sqlState{}
	assert.Equal(t,
		fmt.Sprintf("unaccent(r%d.\"last_name\") ilike unaccent($1)", pers.aliasID()),
		f.whereRepr(querySelect, pers.aliasID(), st))
}

func TestField_BareNameOnMutatingQueries(t *testing.T) {
	m, _ := newTestModel()
	pers := testRelation(t, m, "actor.person")

	require.NoError(t, pers.Set("last_name", "Lagaffe"))
	f, _ := pers.Field("last_name")
	st := &sqlState{}
	assert.Equal(t, "\"last_name\" = $1", f.whereRepr(queryUpdate, pers.aliasID(), st))
	st = &sqlState{}
	assert.Equal(t, "\"last_name\" = $1", f.whereRepr(queryDelete, pers.aliasID(), st))
}

func TestField_String(t *testing.T) {
	m, _ := newTestModel()
	pers := testRelation(t, m, "actor.person")
	post := testRelation(t, m, "blog.post")

	content, _ := post.Field("content")
	assert.Equal(t, "(text)", content.String())
	id, _ := pers.Field("id")
	assert.Equal(t, "(int4) UNIQUE NOT NULL", id.String())
	birth, _ := pers.Field("birth_date")
	assert.Equal(t, "(date) PK", birth.String())

	require.NoError(t, pers.Set("birth_date", "1970-01-01"))
	assert.Equal(t, "(date) PK (birth_date = 1970-01-01)", birth.String())
}

func TestField_SetUnsetsSingleton(t *testing.T) {
	m, _ := newTestModel()
	pers := testRelation(t, m, "actor.person")
	pers.isSingleton = true

	require.NoError(t, pers.Set("first_name", "jojo"))
	assert.False(t, pers.IsSingleton())
}
