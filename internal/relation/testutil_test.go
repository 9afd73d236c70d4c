package relation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// The test schema mirrors a small blogging database: person carries a
// composite primary key plus unique columns, post references person through a
// three-column foreign key, comment carries an array column.

func personMeta() *RelationMeta {
	return &RelationMeta{
		FQRN: FQRN{DB: "blogdb", Schema: "actor", Name: "person"},
		Kind: KindTable,
		Columns: []ColumnMeta{
			{Name: "id", SQLType: "int4", NotNull: true, IsUnique: true, Position: 1},
			{Name: "first_name", SQLType: "text", NotNull: true, IsPK: true, Position: 2},
			{Name: "last_name", SQLType: "text", NotNull: true, IsPK: true, Position: 3},
			{Name: "birth_date", SQLType: "date", NotNull: true, IsPK: true, Position: 4},
		},
		PrimaryKey: []string{"first_name", "last_name", "birth_date"},
		Unique:     [][]string{{"id"}},
		ForeignKeys: []FKMeta{
			{
				Name:         "_reverse_fkey_blogdb_blog_post",
				SourceFields: []string{"first_name", "last_name", "birth_date"},
				Target:       FQRN{DB: "blogdb", Schema: "blog", Name: "post"},
				TargetFields: []string{"author_first_name", "author_last_name", "author_birth_date"},
				Reverse:      true,
			},
		},
	}
}

func postMeta() *RelationMeta {
	return &RelationMeta{
		FQRN: FQRN{DB: "blogdb", Schema: "blog", Name: "post"},
		Kind: KindTable,
		Columns: []ColumnMeta{
			{Name: "id", SQLType: "int4", NotNull: true, IsPK: true, Position: 1},
			{Name: "title", SQLType: "text", Position: 2},
			{Name: "content", SQLType: "text", Position: 3},
			{Name: "author_first_name", SQLType: "text", Position: 4},
			{Name: "author_last_name", SQLType: "text", Position: 5},
			{Name: "author_birth_date", SQLType: "date", Position: 6},
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: []FKMeta{
			{
				Name:         "post_author_fkey",
				SourceFields: []string{"author_first_name", "author_last_name", "author_birth_date"},
				Target:       FQRN{DB: "blogdb", Schema: "actor", Name: "person"},
				TargetFields: []string{"first_name", "last_name", "birth_date"},
			},
		},
	}
}

func commentMeta() *RelationMeta {
	return &RelationMeta{
		FQRN: FQRN{DB: "blogdb", Schema: "blog", Name: "comment"},
		Kind: KindTable,
		Columns: []ColumnMeta{
			{Name: "id", SQLType: "int4", NotNull: true, IsPK: true, Position: 1},
			{Name: "content", SQLType: "text", Position: 2},
			{Name: "post_id", SQLType: "int4", Position: 3},
			{Name: "tags", SQLType: "_text", Position: 4},
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: []FKMeta{
			{
				Name:         "comment_post_fkey",
				SourceFields: []string{"post_id"},
				Target:       FQRN{DB: "blogdb", Schema: "blog", Name: "post"},
				TargetFields: []string{"id"},
			},
		},
	}
}

type fakeMetadata struct {
	relations map[string]*RelationMeta
}

func (f *fakeMetadata) Relation(_ context.Context, fqrn FQRN) (*RelationMeta, error) {
	meta, ok := f.relations[fqrn.Schema+"."+fqrn.Name]
	if !ok {
		return nil, errors.New("relation not found: " + fqrn.String())
	}
	return meta, nil
}

type fakeRows struct {
	rows   []map[string]any
	idx    int
	err    error
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Values() (map[string]any, error) { return r.rows[r.idx-1], nil }
func (r *fakeRows) Err() error                      { return r.err }
func (r *fakeRows) Close()                          { r.closed = true }

type execCall struct {
	sql  string
	args []any
}

type queuedResult struct {
	rows     []map[string]any
	affected int64
	err      error
}

type fakeExecutor struct {
	calls   []execCall
	results []queuedResult
	pingErr error
	pings   int
}

func (e *fakeExecutor) enqueue(rows ...map[string]any) {
	e.results = append(e.results, queuedResult{rows: rows})
}

func (e *fakeExecutor) enqueueErr(err error) {
	e.results = append(e.results, queuedResult{err: err})
}

func (e *fakeExecutor) pop() queuedResult {
	if len(e.results) == 0 {
		return queuedResult{}
	}
	res := e.results[0]
	e.results = e.results[1:]
	return res
}

func (e *fakeExecutor) Query(_ context.Context, sql string, args ...any) (Rows, error) {
	e.calls = append(e.calls, execCall{sql: sql, args: args})
	res := e.pop()
	if res.err != nil {
		return nil, res.err
	}
	return &fakeRows{rows: res.rows}, nil
}

func (e *fakeExecutor) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	e.calls = append(e.calls, execCall{sql: sql, args: args})
	res := e.pop()
	return res.affected, res.err
}

func (e *fakeExecutor) Ping(context.Context) error {
	e.pings++
	return e.pingErr
}

func (e *fakeExecutor) lastSQL() string {
	return e.calls[len(e.calls)-1].sql
}

func (e *fakeExecutor) lastArgs() []any {
	return e.calls[len(e.calls)-1].args
}

// brokenConnErr mimics the executor's disconnect classification.
type brokenConnErr struct{}

func (brokenConnErr) Error() string      { return "conn closed" }
func (brokenConnErr) Disconnected() bool { return true }

func ctx() context.Context { return context.Background() }

func newTestModel() (*Model, *fakeExecutor) {
	exec := &fakeExecutor{}
	meta := &fakeMetadata{relations: map[string]*RelationMeta{
		"actor.person": personMeta(),
		"blog.post":    postMeta(),
		"blog.comment": commentMeta(),
	}}
	return NewModel("blogdb", exec, meta), exec
}

func testRelation(t *testing.T, m *Model, qrn string, opts ...Option) *Relation {
	t.Helper()
	rel, err := m.Relation(context.Background(), qrn, opts...)
	require.NoError(t, err)
	return rel
}
