// Package relation exposes PostgreSQL relations (tables, views, materialized
// views, foreign tables) as composable query objects. A caller constrains the
// fields of a Relation, combines relations with set operators, traverses
// foreign keys to build joins, and triggers insert, select, update or delete.
// The package consumes a Metadata service for catalog descriptors and an
// Executor for parameterized SQL; both are satisfied by internal/database.
package relation

import (
	"context"
	"fmt"
	"strings"
)

// FQRN is a fully-qualified relation name: database, schema, relation.
type FQRN struct {
	DB     string
	Schema string
	Name   string
}

func (f FQRN) String() string {
	return fmt.Sprintf("%q:%q.%q", f.DB, f.Schema, f.Name)
}

// QRN returns the quoted schema-qualified name as it appears in SQL.
func (f FQRN) QRN() string {
	return fmt.Sprintf("%s.%s", quoteIdentifier(f.Schema), quoteIdentifier(f.Name))
}

// Kind is the relation kind tag from pg_class.relkind.
type Kind string

const (
	KindTable            Kind = "r"
	KindPartitionedTable Kind = "p"
	KindView             Kind = "v"
	KindMaterializedView Kind = "m"
	KindForeignData      Kind = "f"
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "TABLE"
	case KindPartitionedTable:
		return "PARTITIONED TABLE"
	case KindView:
		return "VIEW"
	case KindMaterializedView:
		return "MATERIALIZED VIEW"
	case KindForeignData:
		return "FOREIGN DATA"
	}
	return "UNKNOWN"
}

// ColumnMeta describes one column of a relation, in database column order.
type ColumnMeta struct {
	Name     string
	SQLType  string
	NotNull  bool
	IsPK     bool
	IsUnique bool
	Position int
}

// FKMeta describes a foreign key as loaded from the catalogs. Reverse entries
// describe other relations referencing this one: SourceFields are columns of
// the owning relation, TargetFields the aligned columns of Target.
type FKMeta struct {
	Name         string
	SourceFields []string
	Target       FQRN
	TargetFields []string
	Reverse      bool
}

// RelationMeta is everything the engine needs to know about one relation.
type RelationMeta struct {
	FQRN        FQRN
	Kind        Kind
	Description string
	Columns     []ColumnMeta
	PrimaryKey  []string
	Unique      [][]string
	ForeignKeys []FKMeta
}

// Metadata is the catalog service the engine consumes.
type Metadata interface {
	Relation(ctx context.Context, fqrn FQRN) (*RelationMeta, error)
}

// Rows is a forward-only result cursor yielding column-name to value
// mappings. It must be closed by the consumer.
type Rows interface {
	Next() bool
	Values() (map[string]any, error)
	Err() error
	Close()
}

// Executor runs parameterized SQL. Implementations signal a broken connection
// through an error implementing Disconnected() bool; Ping must then attempt a
// reconnect so the engine can retry once.
type Executor interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Ping(ctx context.Context) error
}

// quoteIdentifier safely quotes a PostgreSQL identifier to prevent SQL
// injection. It wraps the identifier in double quotes and escapes any embedded
// double quotes.
func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
