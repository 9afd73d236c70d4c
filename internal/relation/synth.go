package relation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// queryKind selects how field predicates qualify their column: alias-prefixed
// on select, bare quoted name on mutating statements.
type queryKind int

const (
	querySelect queryKind = iota
	queryInsert
	queryUpdate
	queryDelete
)

// sqlState accumulates parameter-bound values while a fragment renders.
// Placeholders are numbered locally from $1; fragments are renumbered with
// shiftPlaceholders when assembled into the final statement.
type sqlState struct {
	args []any
}

func (st *sqlState) param(v any) string {
	if v == any(NULL) {
		v = nil
	}
	st.args = append(st.args, v)
	return fmt.Sprintf("$%d", len(st.args))
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// shiftPlaceholders renumbers $N placeholders by offset so independently
// rendered fragments compose into one statement. Values never appear in the
// SQL text, so the rewrite is purely structural.
func shiftPlaceholders(sql string, offset int) string {
	if offset == 0 {
		return sql
	}
	return placeholderRe.ReplaceAllStringFunc(sql, func(ph string) string {
		n, _ := strconv.Atoi(ph[1:])
		return "$" + strconv.Itoa(n+offset)
	})
}

// walkWhere renders the WHERE subtree of r. All leaf predicates qualify their
// columns with the root relation's alias; parameters accumulate in walk
// order: left subtree first, then right.
func walkWhere(r *Relation, kind queryKind, rootID int64, st *sqlState) string {
	if r.setOp != nil {
		var b strings.Builder
		b.WriteString("(")
		b.WriteString(walkWhere(r.setOp.left, kind, rootID, st))
		if r.setOp.right != nil {
			fmt.Fprintf(&b, " %s ", strings.ToUpper(string(r.setOp.op)))
			b.WriteString(walkWhere(r.setOp.right, kind, rootID, st))
		}
		b.WriteString(")")
		out := b.String()
		if r.negated {
			out = "NOT (" + out + ")"
		}
		return out
	}
	var frags []string
	for _, f := range r.setFields() {
		frags = append(frags, f.whereRepr(kind, rootID, st))
	}
	out := "(1 = 1)"
	if len(frags) > 0 {
		out = "(" + strings.Join(frags, " AND ") + ")"
	}
	if r.negated {
		out = "NOT (" + out + ")"
	}
	return out
}

// joinClause is one rendered JOIN fragment with locally numbered parameters.
type joinClause struct {
	sql  string
	args []any
}

// collectJoins walks the join graph depth-first from root, emitting one
// clause per (parent, foreign key, remote) edge. Revisited edges and
// self-cycles are skipped; identical fragments de-duplicate after collection.
func collectJoins(root *Relation) []joinClause {
	var out []joinClause
	visited := make(map[string]bool)
	var rec func(parent *Relation)
	rec = func(parent *Relation) {
		for _, e := range parent.joins {
			key := fmt.Sprintf("%d/%s/%d", parent.aliasID(), e.fk.name, e.remote.aliasID())
			if visited[key] || e.remote.aliasID() == root.aliasID() {
				continue
			}
			visited[key] = true
			st := &sqlState{}
			where := walkWhere(e.remote, querySelect, e.remote.aliasID(), st)
			out = append(out, joinClause{
				sql: fmt.Sprintf("JOIN %s AS r%d ON %s AND %s",
					e.remote.fqrn.QRN(), e.remote.aliasID(),
					e.fk.joinPredicate(parent, e.remote), where),
				args: st.args,
			})
			rec(e.remote)
		}
	}
	rec(root)
	return dedupJoins(out)
}

// dedupJoins drops join fragments identical to an earlier one. An identical
// fragment would only restate a predicate already part of the chain.
func dedupJoins(clauses []joinClause) []joinClause {
	seen := make(map[string]bool, len(clauses))
	out := clauses[:0]
	for _, c := range clauses {
		key := c.sql + "\x00" + fmt.Sprint(c.args...)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// buildSelect synthesizes the SELECT statement. Parameters bind join-subtree
// values first (DFS order), then set-operator-tree values (walk order).
func (r *Relation) buildSelect(cols []string, count, limitOne bool) (string, []any) {
	rootID := r.aliasID()
	var args []any

	var from strings.Builder
	fmt.Fprintf(&from, "%s AS r%d", r.fqrn.QRN(), rootID)
	for _, jc := range collectJoins(r) {
		from.WriteString("\n  ")
		from.WriteString(shiftPlaceholders(jc.sql, len(args)))
		args = append(args, jc.args...)
	}

	wst := &sqlState{}
	where := shiftPlaceholders(walkWhere(r, querySelect, rootID, wst), len(args))
	args = append(args, wst.args...)

	var q strings.Builder
	q.WriteString("SELECT ")
	switch {
	case count:
		fmt.Fprintf(&q, "count(distinct r%d.*)", rootID)
	default:
		if r.distinct {
			q.WriteString("DISTINCT ")
		}
		q.WriteString(selectList(rootID, cols))
	}
	q.WriteString("\nFROM ")
	if r.only {
		q.WriteString("ONLY ")
	}
	q.WriteString(from.String())
	q.WriteString("\nWHERE ")
	q.WriteString(where)
	if !count {
		if r.orderBy != "" {
			q.WriteString(" ORDER BY " + r.orderBy)
		}
		switch {
		case limitOne:
			q.WriteString(" LIMIT 1")
		case r.hasLimit:
			fmt.Fprintf(&q, " LIMIT %d", r.limit)
		}
		if r.hasOffset {
			fmt.Fprintf(&q, " OFFSET %d", r.offset)
		}
	}
	return q.String(), args
}

func selectList(rootID int64, cols []string) string {
	if len(cols) == 0 {
		return fmt.Sprintf("r%d.*", rootID)
	}
	quoted := make([]string, len(cols))
	for i, col := range cols {
		if col == "*" {
			quoted[i] = fmt.Sprintf("r%d.*", rootID)
			continue
		}
		quoted[i] = fmt.Sprintf("r%d.%s", rootID, quoteIdentifier(col))
	}
	return strings.Join(quoted, ", ")
}

// fkeyWhere renders the join constraints of a mutating statement as
// membership subqueries: (src...) IN (SELECT tgt... FROM remote WHERE ...).
func (r *Relation) fkeyWhere(args *[]any) []string {
	var frags []string
	for _, e := range r.joins {
		sub, subArgs := e.remote.buildSelect(e.fk.targetFields, false, false)
		cols := make([]string, len(e.fk.sourceFields))
		for i, src := range e.fk.sourceFields {
			cols[i] = quoteIdentifier(src)
		}
		frags = append(frags, fmt.Sprintf("(%s) IN (%s)",
			strings.Join(cols, ", "), shiftPlaceholders(sub, len(*args))))
		*args = append(*args, subArgs...)
	}
	return frags
}

// buildInsert synthesizes the INSERT statement from every set field, plus one
// scalar subquery per source column of each bound foreign key.
func (r *Relation) buildInsert(returning []string) (string, []any) {
	st := &sqlState{}
	var cols, exprs []string
	for _, f := range r.setFields() {
		cols = append(cols, quoteIdentifier(f.name))
		exprs = append(exprs, st.param(f.value))
	}
	args := st.args
	for _, e := range r.joins {
		for i, src := range e.fk.sourceFields {
			sub, subArgs := e.remote.buildSelect([]string{e.fk.targetFields[i]}, false, false)
			cols = append(cols, quoteIdentifier(src))
			exprs = append(exprs, "("+shiftPlaceholders(sub, len(args))+")")
			args = append(args, subArgs...)
		}
	}
	var q strings.Builder
	if len(cols) == 0 {
		fmt.Fprintf(&q, "INSERT INTO %s DEFAULT VALUES", r.fqrn.QRN())
	} else {
		fmt.Fprintf(&q, "INSERT INTO %s (%s) VALUES (%s)",
			r.fqrn.QRN(), strings.Join(cols, ", "), strings.Join(exprs, ", "))
	}
	q.WriteString(returningClause(returning))
	return q.String(), args
}

// buildUpdate synthesizes the UPDATE statement. Parameters bind the new
// values first, then the WHERE subtree, then the foreign-key subqueries.
func (r *Relation) buildUpdate(values map[string]any, returning []string) (string, []any) {
	st := &sqlState{}
	var sets []string
	for _, name := range sortedKeys(values) {
		sets = append(sets, fmt.Sprintf("%s = %s", quoteIdentifier(name), st.param(values[name])))
	}
	args := st.args

	wst := &sqlState{}
	where := shiftPlaceholders(walkWhere(r, queryUpdate, r.aliasID(), wst), len(args))
	args = append(args, wst.args...)
	conds := append([]string{where}, r.fkeyWhere(&args)...)

	var q strings.Builder
	fmt.Fprintf(&q, "UPDATE %s SET %s WHERE %s",
		r.fqrn.QRN(), strings.Join(sets, ", "), strings.Join(conds, " AND "))
	q.WriteString(returningClause(returning))
	return q.String(), args
}

// buildDelete synthesizes the DELETE statement.
func (r *Relation) buildDelete(returning []string) (string, []any) {
	var args []any
	wst := &sqlState{}
	where := walkWhere(r, queryDelete, r.aliasID(), wst)
	args = append(args, wst.args...)
	conds := append([]string{where}, r.fkeyWhere(&args)...)

	var q strings.Builder
	fmt.Fprintf(&q, "DELETE FROM %s WHERE %s", r.fqrn.QRN(), strings.Join(conds, " AND "))
	q.WriteString(returningClause(returning))
	return q.String(), args
}

func returningClause(cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	quoted := make([]string, len(cols))
	for i, col := range cols {
		if col == "*" {
			quoted[i] = "*"
			continue
		}
		quoted[i] = quoteIdentifier(col)
	}
	return " RETURNING " + strings.Join(quoted, ", ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
