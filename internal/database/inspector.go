package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/relata-io/relata/internal/relation"
)

// SchemaInspector loads relation descriptors from the PostgreSQL catalogs. It
// implements the Metadata service the engine consumes.
type SchemaInspector struct {
	conn *Connection
}

var _ relation.Metadata = (*SchemaInspector)(nil)

// NewSchemaInspector creates a new schema inspector
func NewSchemaInspector(conn *Connection) *SchemaInspector {
	return &SchemaInspector{conn: conn}
}

// Relation returns the full descriptor of one relation: ordered columns,
// primary key, unique constraints, and foreign keys in both directions.
func (si *SchemaInspector) Relation(ctx context.Context, fqrn relation.FQRN) (*relation.RelationMeta, error) {
	meta := &relation.RelationMeta{FQRN: fqrn}

	kind, description, err := si.relkind(ctx, fqrn)
	if err != nil {
		return nil, err
	}
	meta.Kind = kind
	meta.Description = description

	if meta.Columns, err = si.columns(ctx, fqrn); err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	if len(meta.Columns) == 0 {
		return nil, fmt.Errorf("relation %s has no columns", fqrn)
	}
	if meta.PrimaryKey, err = si.primaryKey(ctx, fqrn); err != nil {
		return nil, fmt.Errorf("failed to get primary key: %w", err)
	}
	if meta.Unique, err = si.uniqueConstraints(ctx, fqrn); err != nil {
		return nil, fmt.Errorf("failed to get unique constraints: %w", err)
	}
	if meta.ForeignKeys, err = si.foreignKeys(ctx, fqrn); err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}

	markKeyColumns(meta)
	log.Debug().
		Str("relation", fqrn.String()).
		Int("columns", len(meta.Columns)).
		Int("fkeys", len(meta.ForeignKeys)).
		Msg("Loaded relation metadata")
	return meta, nil
}

// markKeyColumns flags columns that are part of the primary key or of a
// single-column unique constraint.
func markKeyColumns(meta *relation.RelationMeta) {
	for i := range meta.Columns {
		for _, pk := range meta.PrimaryKey {
			if meta.Columns[i].Name == pk {
				meta.Columns[i].IsPK = true
			}
		}
		for _, uniq := range meta.Unique {
			if len(uniq) == 1 && uniq[0] == meta.Columns[i].Name {
				meta.Columns[i].IsUnique = true
			}
		}
	}
}

func (si *SchemaInspector) relkind(ctx context.Context, fqrn relation.FQRN) (relation.Kind, string, error) {
	query := `
		SELECT c.relkind::text AS relkind,
		       COALESCE(obj_description(c.oid, 'pg_class'), '') AS description
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2
	`
	rows, err := si.conn.Query(ctx, query, fqrn.Schema, fqrn.Name)
	if err != nil {
		return "", "", err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", "", err
		}
		return "", "", fmt.Errorf("relation %s not found", fqrn)
	}
	vals, err := rows.Values()
	if err != nil {
		return "", "", err
	}
	kind, _ := vals["relkind"].(string)
	description, _ := vals["description"].(string)
	return relation.Kind(kind), description, nil
}

// columns reads pg_attribute directly so tables, views, materialized views
// and foreign tables all resolve the same way, and array types keep their
// catalog name (_text, _int4, ...).
func (si *SchemaInspector) columns(ctx context.Context, fqrn relation.FQRN) ([]relation.ColumnMeta, error) {
	query := `
		SELECT a.attname AS column_name,
		       t.typname AS data_type,
		       a.attnotnull AS not_null,
		       a.attnum AS ordinal_position
		FROM pg_catalog.pg_attribute a
		JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_catalog.pg_type t ON t.oid = a.atttypid
		WHERE n.nspname = $1
		  AND c.relname = $2
		  AND a.attnum > 0
		  AND NOT a.attisdropped
		ORDER BY a.attnum
	`
	rows, err := si.conn.Query(ctx, query, fqrn.Schema, fqrn.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []relation.ColumnMeta
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		name, _ := vals["column_name"].(string)
		sqlType, _ := vals["data_type"].(string)
		notNull, _ := vals["not_null"].(bool)
		pos, _ := toInt(vals["ordinal_position"])
		cols = append(cols, relation.ColumnMeta{
			Name:     name,
			SQLType:  sqlType,
			NotNull:  notNull,
			Position: pos,
		})
	}
	return cols, rows.Err()
}

func (si *SchemaInspector) primaryKey(ctx context.Context, fqrn relation.FQRN) ([]string, error) {
	query := `
		SELECT a.attname AS column_name
		FROM pg_catalog.pg_index i
		JOIN pg_catalog.pg_class c ON c.oid = i.indrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(i.indkey)
		WHERE i.indisprimary AND n.nspname = $1 AND c.relname = $2
		ORDER BY array_position(i.indkey, a.attnum)
	`
	return si.columnList(ctx, query, fqrn)
}

func (si *SchemaInspector) columnList(ctx context.Context, query string, fqrn relation.FQRN) ([]string, error) {
	rows, err := si.conn.Query(ctx, query, fqrn.Schema, fqrn.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		name, _ := vals["column_name"].(string)
		out = append(out, name)
	}
	return out, rows.Err()
}

func (si *SchemaInspector) uniqueConstraints(ctx context.Context, fqrn relation.FQRN) ([][]string, error) {
	query := `
		SELECT con.conname, a.attname AS column_name
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(con.conkey)
		WHERE con.contype = 'u' AND n.nspname = $1 AND c.relname = $2
		ORDER BY con.conname, array_position(con.conkey, a.attnum)
	`
	rows, err := si.conn.Query(ctx, query, fqrn.Schema, fqrn.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]string
	var current string
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		name, _ := vals["conname"].(string)
		col, _ := vals["column_name"].(string)
		if name != current {
			current = name
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], col)
	}
	return out, rows.Err()
}

// foreignKeys loads the outbound foreign keys of the relation plus the
// reverse entries for every relation referencing it.
func (si *SchemaInspector) foreignKeys(ctx context.Context, fqrn relation.FQRN) ([]relation.FKMeta, error) {
	forward, err := si.fkeyConstraints(ctx, fqrn, false)
	if err != nil {
		return nil, err
	}
	reverse, err := si.fkeyConstraints(ctx, fqrn, true)
	if err != nil {
		return nil, err
	}
	return append(forward, reverse...), nil
}

func (si *SchemaInspector) fkeyConstraints(ctx context.Context, fqrn relation.FQRN, reverse bool) ([]relation.FKMeta, error) {
	// The unnest pairs conkey/confkey positionally, preserving the column
	// alignment of multi-column keys.
	filter := "n.nspname = $1 AND c.relname = $2"
	if reverse {
		filter = "tn.nspname = $1 AND tc.relname = $2"
	}
	query := fmt.Sprintf(`
		SELECT con.conname,
		       n.nspname AS src_schema, c.relname AS src_table, src.attname AS src_column,
		       tn.nspname AS tgt_schema, tc.relname AS tgt_table, tgt.attname AS tgt_column
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_catalog.pg_class tc ON tc.oid = con.confrelid
		JOIN pg_catalog.pg_namespace tn ON tn.oid = tc.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS pair(src_attnum, tgt_attnum, ord)
		JOIN pg_catalog.pg_attribute src ON src.attrelid = con.conrelid AND src.attnum = pair.src_attnum
		JOIN pg_catalog.pg_attribute tgt ON tgt.attrelid = con.confrelid AND tgt.attnum = pair.tgt_attnum
		WHERE con.contype = 'f' AND %s
		ORDER BY con.conname, pair.ord
	`, filter)

	rows, err := si.conn.Query(ctx, query, fqrn.Schema, fqrn.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []relation.FKMeta
	var current string
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		conname, _ := vals["conname"].(string)
		srcSchema, _ := vals["src_schema"].(string)
		srcTable, _ := vals["src_table"].(string)
		srcCol, _ := vals["src_column"].(string)
		tgtSchema, _ := vals["tgt_schema"].(string)
		tgtTable, _ := vals["tgt_table"].(string)
		tgtCol, _ := vals["tgt_column"].(string)

		// A reverse entry is seen from the referenced side: its source
		// fields are this relation's columns, its target the referencing
		// relation.
		ownCol, otherCol := srcCol, tgtCol
		other := relation.FQRN{DB: fqrn.DB, Schema: tgtSchema, Name: tgtTable}
		if reverse {
			ownCol, otherCol = tgtCol, srcCol
			other = relation.FQRN{DB: fqrn.DB, Schema: srcSchema, Name: srcTable}
		}
		if conname != current {
			current = conname
			name := conname
			if reverse {
				name = reverseFkeyName(fqrn.DB, other, nil)
			}
			out = append(out, relation.FKMeta{Name: name, Target: other, Reverse: reverse})
		}
		fk := &out[len(out)-1]
		fk.SourceFields = append(fk.SourceFields, ownCol)
		fk.TargetFields = append(fk.TargetFields, otherCol)
		if reverse {
			fk.Name = reverseFkeyName(fqrn.DB, other, fk.TargetFields)
		}
	}
	return out, rows.Err()
}

// Relations lists the relations of the given schemas (tables, partitioned
// tables, views, materialized views and foreign tables), in name order. The
// source generator iterates this list.
func (si *SchemaInspector) Relations(ctx context.Context, schemas ...string) ([]relation.FQRN, error) {
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}
	query := `
		SELECT n.nspname AS schema_name, c.relname AS relation_name
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p', 'v', 'm', 'f')
		  AND n.nspname = ANY($1)
		  AND c.relname NOT LIKE 'pg_%'
		ORDER BY n.nspname, c.relname
	`
	rows, err := si.conn.Query(ctx, query, schemas)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations: %w", err)
	}
	defer rows.Close()

	var out []relation.FQRN
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		schema, _ := vals["schema_name"].(string)
		name, _ := vals["relation_name"].(string)
		out = append(out, relation.FQRN{DB: si.conn.cfg.Database, Schema: schema, Name: name})
	}
	return out, rows.Err()
}

// reverseFkeyName builds the stable name of a reverse foreign key from the
// referencing relation and its columns.
func reverseFkeyName(db string, other relation.FQRN, cols []string) string {
	parts := append([]string{"_reverse_fkey", db, other.Schema, other.Name}, cols...)
	return strings.Join(parts, "_")
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	}
	return 0, false
}
