package relation

import (
	"fmt"
	"reflect"
	"strings"
)

// comparators is the closed set of predicates a field accepts. "%" is the
// pg_trgm similarity operator; "@@" is full-text match.
//
// Driver quirks: values are bound as $N parameters through pgx, so "%" needs
// no doubling here. Printf-style drivers (psycopg and friends) interpolate
// the statement and must render "%" as "%%".
var comparators = map[string]bool{
	"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"like": true, "ilike": true, "@@": true, "%": true,
	"is": true, "is not": true, "in": true, "any": true,
}

// Field is one column of a Relation together with its optional constraint:
// a value, a comparator and an unaccent flag.
type Field struct {
	name     string
	sqlType  string
	notNull  bool
	isPK     bool
	isUnique bool

	rel      *Relation
	value    any
	comp     string
	unaccent bool
	isSet    bool
}

func newField(rel *Relation, meta ColumnMeta) *Field {
	return &Field{
		name:     meta.Name,
		sqlType:  meta.SQLType,
		notNull:  meta.NotNull,
		isPK:     meta.IsPK,
		isUnique: meta.IsUnique,
		rel:      rel,
		comp:     "=",
	}
}

func (f *Field) Name() string    { return f.name }
func (f *Field) SQLType() string { return f.sqlType }
func (f *Field) NotNull() bool   { return f.notNull }
func (f *Field) IsPK() bool      { return f.isPK }
func (f *Field) IsUnique() bool  { return f.isUnique }
func (f *Field) IsSet() bool     { return f.isSet }
func (f *Field) Value() any      { return f.value }
func (f *Field) Comp() string    { return f.comp }
func (f *Field) Unaccent() bool  { return f.unaccent }

// SetUnaccent wraps both sides of the rendered predicate in unaccent().
func (f *Field) SetUnaccent(v bool) { f.unaccent = v }

// isArrayType reports whether the column type is a PostgreSQL array
// (catalog array types are prefixed with an underscore, e.g. _text).
func (f *Field) isArrayType() bool {
	return strings.HasPrefix(f.sqlType, "_")
}

// Set assigns the field's constraint:
//   - nil unsets the constraint;
//   - NULL constrains to "IS NULL";
//   - another Field links the two owning relations through an implicit join;
//   - a slice is kept as an ordered tuple;
//   - any other value constrains with "=".
//
// Any assignment clears the owning relation's singleton mark.
func (f *Field) Set(value any) error {
	f.rel.isSingleton = false
	if value == nil {
		f.value = nil
		f.comp = "="
		f.isSet = false
		return nil
	}
	if value == any(NULL) {
		f.value = NULL
		f.comp = "is"
		f.isSet = true
		return nil
	}
	if other, ok := value.(*Field); ok {
		// Implicit join: no WHERE fragment is emitted for this field, the
		// join planner renders the synthetic foreign key instead.
		f.rel.addImplicitJoin(f, other)
		f.value = other
		f.comp = "in"
		f.isSet = false
		return nil
	}
	if seq, ok, err := normalizeSequence(value); err != nil {
		return err
	} else if ok {
		f.value = seq
		f.comp = "="
		f.isSet = true
		return nil
	}
	f.value = value
	f.comp = "="
	f.isSet = true
	return nil
}

// SetComp assigns value together with an explicit comparator from the closed
// set. NULL requires "is" or "is not"; a nil value is rejected.
func (f *Field) SetComp(comp string, value any) error {
	comp = strings.ToLower(strings.TrimSpace(comp))
	if !comparators[comp] {
		return &InvalidComparatorError{Comparator: comp}
	}
	if value == nil {
		return &InvalidValueError{Reason: "cannot pair a comparator with a nil value; use NULL to constrain to SQL NULL"}
	}
	if value == any(NULL) {
		if comp != "is" && comp != "is not" {
			return &InvalidComparatorError{Comparator: comp}
		}
		f.rel.isSingleton = false
		f.value = NULL
		f.comp = comp
		f.isSet = true
		return nil
	}
	if comp == "is" || comp == "is not" {
		return &InvalidComparatorError{Comparator: comp}
	}
	f.rel.isSingleton = false
	if seq, ok, err := normalizeSequence(value); err != nil {
		return err
	} else if ok {
		value = seq
	}
	f.value = value
	f.comp = comp
	f.isSet = true
	return nil
}

// normalizeSequence converts any slice or array value (except []byte) into an
// ordered []any tuple. Sequences containing nil are rejected.
func normalizeSequence(value any) ([]any, bool, error) {
	if _, ok := value.([]byte); ok {
		return nil, false, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false, nil
	}
	seq := make([]any, rv.Len())
	for i := range seq {
		elt := rv.Index(i).Interface()
		if elt == nil {
			return nil, false, &InvalidValueError{Reason: "sequence contains a nil element"}
		}
		seq[i] = elt
	}
	return seq, true, nil
}

// lhs returns the left-hand side of the predicate: alias-qualified on select,
// the bare quoted name on mutating queries.
func (f *Field) lhs(kind queryKind, relID int64) string {
	if kind == querySelect {
		return fmt.Sprintf("r%d.%s", relID, quoteIdentifier(f.name))
	}
	return quoteIdentifier(f.name)
}

// whereRepr renders the field's predicate fragment, binding the value into st.
func (f *Field) whereRepr(kind queryKind, relID int64, st *sqlState) string {
	lhs := f.lhs(kind, relID)
	if f.value == any(NULL) {
		if f.comp == "is not" {
			return fmt.Sprintf("%s IS NOT NULL", lhs)
		}
		return fmt.Sprintf("%s IS NULL", lhs)
	}
	if seq, ok := f.value.([]any); ok {
		if f.isArrayType() {
			// Whole-array comparison.
			return fmt.Sprintf("%s %s %s", lhs, f.comp, st.param(seq))
		}
		// The tuple is bound as a PostgreSQL array; "in"/"any" collapse to
		// "= any". An empty sequence therefore matches nothing.
		comp := f.comp
		if comp == "in" || comp == "any" {
			comp = "="
		}
		return fmt.Sprintf("%s %s any(%s)", lhs, comp, st.param(seq))
	}
	if f.isArrayType() {
		return fmt.Sprintf("%s = ANY(%s)", st.param(f.value), lhs)
	}
	comp := f.comp
	if comp == "any" {
		comp = "="
	}
	if f.unaccent {
		return fmt.Sprintf("unaccent(%s) %s unaccent(%s)", lhs, comp, st.param(f.value))
	}
	return fmt.Sprintf("%s %s %s", lhs, comp, st.param(f.value))
}

// String renders the field descriptor, e.g. `(int4) NOT NULL (id = 1772)`.
func (f *Field) String() string {
	var attrs string
	switch {
	case f.isPK:
		attrs = "PK"
	case f.isUnique && f.notNull:
		attrs = "UNIQUE NOT NULL"
	case f.isUnique:
		attrs = "UNIQUE"
	case f.notNull:
		attrs = "NOT NULL"
	}
	repr := strings.TrimSpace(fmt.Sprintf("(%s) %s", f.sqlType, attrs))
	if f.isSet {
		repr = fmt.Sprintf("%s (%s %s %v)", repr, f.name, f.comp, f.value)
	}
	return repr
}
