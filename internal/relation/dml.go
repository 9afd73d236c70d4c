package relation

import (
	"context"
	"errors"
)

// Insert inserts one row built from every set field; values of bound foreign
// keys are injected by subquery. It returns the inserted row (all columns
// unless returning names a subset).
func (r *Relation) Insert(ctx context.Context, returning ...string) (map[string]any, error) {
	if len(returning) == 0 {
		returning = []string{"*"}
	}
	sql, args := r.buildInsert(returning)
	rows, err := r.model.query(ctx, r.mogrify, sql, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if rows.Next() {
		vals, verr := rows.Values()
		if verr != nil {
			return nil, &ExecutorError{Err: verr}
		}
		return vals, nil
	}
	if rerr := rows.Err(); rerr != nil {
		return nil, &ExecutorError{Err: rerr}
	}
	return map[string]any{}, nil
}

// Select streams the rows matching the relation's constraint. cols names the
// columns to return (all by default); distinct, order-by, limit and offset
// follow the chainable modifiers.
func (r *Relation) Select(ctx context.Context, cols ...string) (*Cursor, error) {
	sql, args := r.buildSelect(cols, false, false)
	rows, err := r.model.query(ctx, r.mogrify, sql, args)
	if err != nil {
		return nil, err
	}
	return newCursor(rows), nil
}

// SelectAll drains Select into a slice.
func (r *Relation) SelectAll(ctx context.Context, cols ...string) ([]map[string]any, error) {
	cur, err := r.Select(ctx, cols...)
	if err != nil {
		return nil, err
	}
	return cur.All()
}

// Get fetches the single row the constraint references and returns a new
// singleton relation of the same class populated with the row's values.
// A cardinality other than one fails with ExpectedOneError.
func (r *Relation) Get(ctx context.Context, cols ...string) (*Relation, error) {
	count, err := r.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count != 1 {
		return nil, &ExpectedOneError{Relation: r.fqrn.String(), Count: count}
	}
	r.isSingleton = true
	rows, err := r.SelectAll(ctx, cols...)
	if err != nil {
		return nil, err
	}
	n, err := newRelation(r.model, r.meta)
	if err != nil {
		return nil, err
	}
	n.fkeyAliases = r.fkeyAliases
	if len(rows) > 0 {
		if err := n.SetValues(rows[0]); err != nil {
			return nil, err
		}
	}
	n.isSingleton = true
	return n, nil
}

// Singleton resolves the receiver to a singleton, running Get when needed.
// A non-unique constraint fails with NotASingletonError.
func (r *Relation) Singleton(ctx context.Context) (*Relation, error) {
	if r.isSingleton {
		return r, nil
	}
	n, err := r.Get(ctx)
	if err != nil {
		var one *ExpectedOneError
		if errors.As(err, &one) {
			return nil, &NotASingletonError{Err: one}
		}
		return nil, err
	}
	return n, nil
}

// Update updates the rows matching the constraint with values. It refuses to
// run on an unconstrained relation; use UpdateAll for a full-table update.
// Nil values are dropped; when nothing remains the call is a no-op emitting
// no SQL. Constraining to SQL NULL requires the NULL sentinel.
func (r *Relation) Update(ctx context.Context, values map[string]any, returning ...string) ([]map[string]any, error) {
	return r.update(ctx, false, values, returning)
}

// UpdateAll is Update without the safety barrier.
func (r *Relation) UpdateAll(ctx context.Context, values map[string]any, returning ...string) ([]map[string]any, error) {
	return r.update(ctx, true, values, returning)
}

func (r *Relation) update(ctx context.Context, all bool, values map[string]any, returning []string) ([]map[string]any, error) {
	if !all && !r.IsSet() {
		return nil, &SafetyBarrierError{Relation: r.fqrn.String(), Operation: "update"}
	}
	upd := make(map[string]any, len(values))
	for name, v := range values {
		if v == nil {
			continue
		}
		upd[name] = v
	}
	if len(upd) == 0 {
		return nil, nil
	}
	sql, args := r.buildUpdate(upd, returning)
	out, err := r.run(ctx, sql, args, returning)
	if err != nil {
		return nil, err
	}
	// The relation now describes the rows as updated.
	for name, v := range upd {
		if err := r.Set(name, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Delete removes the rows matching the constraint. It refuses to run on an
// unconstrained relation; use DeleteAll to empty the relation.
func (r *Relation) Delete(ctx context.Context, returning ...string) ([]map[string]any, error) {
	return r.delete(ctx, false, returning)
}

// DeleteAll is Delete without the safety barrier.
func (r *Relation) DeleteAll(ctx context.Context, returning ...string) ([]map[string]any, error) {
	return r.delete(ctx, true, returning)
}

func (r *Relation) delete(ctx context.Context, all bool, returning []string) ([]map[string]any, error) {
	if !all && !r.IsSet() {
		return nil, &SafetyBarrierError{Relation: r.fqrn.String(), Operation: "delete"}
	}
	sql, args := r.buildDelete(returning)
	return r.run(ctx, sql, args, returning)
}

// run executes a mutating statement, collecting rows only when a RETURNING
// clause was requested.
func (r *Relation) run(ctx context.Context, sql string, args []any, returning []string) ([]map[string]any, error) {
	if len(returning) == 0 {
		_, err := r.model.execute(ctx, r.mogrify, sql, args)
		return nil, err
	}
	rows, err := r.model.query(ctx, r.mogrify, sql, args)
	if err != nil {
		return nil, err
	}
	return newCursor(rows).All()
}

// Count returns the number of distinct rows matching the constraint.
func (r *Relation) Count(ctx context.Context) (int64, error) {
	sql, args := r.buildSelect(nil, true, false)
	rows, err := r.model.query(ctx, r.mogrify, sql, args)
	if err != nil {
		return 0, err
	}
	cur := newCursor(rows)
	defer cur.Close()
	if !cur.Next() {
		if err := cur.Err(); err != nil {
			return 0, err
		}
		return 0, &ExecutorError{Err: errors.New("count returned no row")}
	}
	return toInt64(cur.Row()["count"])
}

// IsEmpty reports whether the constraint matches no row. It limits the probe
// to a single row, which is cheaper than Count.
func (r *Relation) IsEmpty(ctx context.Context) (bool, error) {
	sql, args := r.buildSelect(nil, false, true)
	rows, err := r.model.query(ctx, r.mogrify, sql, args)
	if err != nil {
		return false, err
	}
	cur := newCursor(rows)
	defer cur.Close()
	if cur.Next() {
		return false, nil
	}
	return true, cur.Err()
}

// ContainedIn reports whether every row of r is in other.
func (r *Relation) ContainedIn(ctx context.Context, other *Relation) (bool, error) {
	count, err := r.Difference(other).Count(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Equivalent reports whether r and other define the same row set.
func (r *Relation) Equivalent(ctx context.Context, other *Relation) (bool, error) {
	sub, err := r.ContainedIn(ctx, other)
	if err != nil || !sub {
		return false, err
	}
	return other.ContainedIn(ctx, r)
}

// Cast returns a relation of the target class carrying the receiver's
// constraints, set-operator tree and join state. The receiver's identity is
// kept as the alias seed so alias-dependent joins stay resolvable. The caller
// asserts the kinship between the two relations.
func (r *Relation) Cast(ctx context.Context, qrn string) (*Relation, error) {
	n, err := r.model.Relation(ctx, qrn)
	if err != nil {
		return nil, err
	}
	for _, f := range r.setFields() {
		nf, ok := n.fields[f.name]
		if !ok {
			return nil, &UnknownAttributeError{Relation: n.fqrn.String(), Attribute: f.name}
		}
		nf.value = f.value
		nf.comp = f.comp
		nf.unaccent = f.unaccent
		nf.isSet = true
	}
	n.idCast = r.aliasID()
	n.mergeJoins(r)
	n.setOp = r.setOp
	n.negated = r.negated
	return n, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	}
	return 0, &ExecutorError{Err: errors.New("count value is not an integer")}
}
