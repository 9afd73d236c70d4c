package relation

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// aliasCounter hands out the per-object identity used as the SQL alias seed
// (r1, r2, ...). A cast reuses the identity of its source relation.
var aliasCounter atomic.Int64

// joinEdge binds a foreign key of its owning relation to the related relation
// currently joined through it.
type joinEdge struct {
	fk     *ForeignKey
	remote *Relation
}

// Relation is a stateful query builder over one database relation. It is not
// safe for concurrent mutation; independent queries need independent
// instances.
type Relation struct {
	model *Model
	meta  *RelationMeta
	fqrn  FQRN
	kind  Kind

	id     int64
	idCast int64

	fields      map[string]*Field
	fieldOrder  []string
	fkeys       map[string]*ForeignKey
	fkeyOrder   []string
	fkeyAliases map[string]string

	joins   []*joinEdge
	setOp   *setOp
	negated bool

	only      bool
	distinct  bool
	orderBy   string
	limit     int
	hasLimit  bool
	offset    int
	hasOffset bool

	isSingleton bool
	mogrify     bool
}

// Option configures a Relation at construction time.
type Option func(*Relation) error

// WithFkeyAliases exposes each non-empty alias as a named handle for the
// corresponding foreign key, the way generated relation types declare their
// Fkeys mapping. Unknown foreign key names fail with WrongForeignKeyError.
func WithFkeyAliases(aliases map[string]string) Option {
	return func(r *Relation) error {
		for alias, name := range aliases {
			if alias == "" {
				continue
			}
			if _, ok := r.fkeys[name]; !ok {
				return &WrongForeignKeyError{Relation: r.fqrn.String(), Fkey: name}
			}
			r.fkeyAliases[alias] = name
		}
		return nil
	}
}

// WithValues assigns one constraint per named column, as if via Field.Set.
// Nil values are skipped.
func WithValues(values map[string]any) Option {
	return func(r *Relation) error {
		return r.SetValues(values)
	}
}

func newRelation(m *Model, meta *RelationMeta, opts ...Option) (*Relation, error) {
	r := &Relation{
		model:       m,
		meta:        meta,
		fqrn:        meta.FQRN,
		kind:        meta.Kind,
		id:          aliasCounter.Add(1),
		fields:      make(map[string]*Field, len(meta.Columns)),
		fkeys:       make(map[string]*ForeignKey, len(meta.ForeignKeys)),
		fkeyAliases: make(map[string]string),
	}
	for _, col := range meta.Columns {
		f := newField(r, col)
		r.fields[col.Name] = f
		r.fieldOrder = append(r.fieldOrder, col.Name)
	}
	for _, fkm := range meta.ForeignKeys {
		r.fkeys[fkm.Name] = newForeignKey(r, fkm)
		r.fkeyOrder = append(r.fkeyOrder, fkm.Name)
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// FQRN returns the fully-qualified relation name.
func (r *Relation) FQRN() FQRN { return r.fqrn }

// Kind returns the relation kind tag.
func (r *Relation) Kind() Kind { return r.kind }

// aliasID is the identity used in rendered SQL. A cast keeps the alias of its
// source so alias-dependent joins remain resolvable.
func (r *Relation) aliasID() int64 {
	if r.idCast != 0 {
		return r.idCast
	}
	return r.id
}

// Field returns the named column.
func (r *Relation) Field(name string) (*Field, error) {
	f, ok := r.fields[name]
	if !ok {
		return nil, &UnknownAttributeError{Relation: r.fqrn.String(), Attribute: name}
	}
	return f, nil
}

// Fields returns the columns in database column order.
func (r *Relation) Fields() []*Field {
	out := make([]*Field, len(r.fieldOrder))
	for i, name := range r.fieldOrder {
		out[i] = r.fields[name]
	}
	return out
}

// PKey returns the subset of Fields that are part of the primary key.
func (r *Relation) PKey() []*Field {
	var out []*Field
	for _, name := range r.fieldOrder {
		if r.fields[name].isPK {
			out = append(out, r.fields[name])
		}
	}
	return out
}

// Set assigns a field constraint; see Field.Set for the accepted values.
func (r *Relation) Set(name string, value any) error {
	f, err := r.Field(name)
	if err != nil {
		return err
	}
	return f.Set(value)
}

// SetComp assigns a field constraint with an explicit comparator.
func (r *Relation) SetComp(name, comp string, value any) error {
	f, err := r.Field(name)
	if err != nil {
		return err
	}
	return f.SetComp(comp, value)
}

// SetValues assigns one constraint per entry, skipping nil values.
func (r *Relation) SetValues(values map[string]any) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if values[name] == nil {
			continue
		}
		if err := r.Set(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// Fkey returns the named foreign key.
func (r *Relation) Fkey(name string) (*ForeignKey, error) {
	fk, ok := r.fkeys[name]
	if !ok {
		return nil, &WrongForeignKeyError{Relation: r.fqrn.String(), Fkey: name}
	}
	return fk, nil
}

// FkeyByAlias resolves a foreign key through the alias mapping declared with
// WithFkeyAliases.
func (r *Relation) FkeyByAlias(alias string) (*ForeignKey, error) {
	name, ok := r.fkeyAliases[alias]
	if !ok {
		return nil, &WrongForeignKeyError{Relation: r.fqrn.String(), Fkey: alias}
	}
	return r.Fkey(name)
}

// Fkeys returns the foreign keys in catalog order, reverse keys included.
func (r *Relation) Fkeys() []*ForeignKey {
	out := make([]*ForeignKey, len(r.fkeyOrder))
	for i, name := range r.fkeyOrder {
		out[i] = r.fkeys[name]
	}
	return out
}

// setJoin records remote as the join partner reached through fk, replacing
// any previous partner on the same key.
func (r *Relation) setJoin(fk *ForeignKey, remote *Relation) {
	for _, e := range r.joins {
		if e.fk.name == fk.name {
			e.fk = fk
			e.remote = remote
			return
		}
	}
	r.joins = append(r.joins, &joinEdge{fk: fk, remote: remote})
}

// addImplicitJoin links the owning relations of local and remote fields
// through a synthetic single-column foreign key.
func (r *Relation) addImplicitJoin(local, remote *Field) {
	fk := &ForeignKey{
		name:         fmt.Sprintf("_syn_%s_r%d_%s", local.name, remote.rel.aliasID(), remote.name),
		rel:          r,
		sourceFields: []string{local.name},
		target:       remote.rel.fqrn,
		targetFields: []string{remote.name},
	}
	r.setJoin(fk, remote.rel)
}

// setFields returns the constrained fields in column order.
func (r *Relation) setFields() []*Field {
	var out []*Field
	for _, name := range r.fieldOrder {
		if r.fields[name].isSet {
			out = append(out, r.fields[name])
		}
	}
	return out
}

// IsSet reports whether the relation carries any constraint: a set field, a
// constrained join partner, a set-operator tree or a negation.
func (r *Relation) IsSet() bool {
	for _, e := range r.joins {
		if e.remote.IsSet() {
			return true
		}
	}
	return r.setOp != nil || r.negated || len(r.setFields()) > 0
}

// IsSingleton reports whether the relation was resolved to exactly one row by
// Get. Any subsequent field assignment clears the mark.
func (r *Relation) IsSingleton() bool { return r.isSingleton }

// Dict returns the values of the set fields.
func (r *Relation) Dict() map[string]any {
	out := make(map[string]any)
	for _, f := range r.setFields() {
		out[f.name] = f.value
	}
	return out
}

// --- chainable select modifiers ---

// Distinct eliminates duplicates from the next select.
func (r *Relation) Distinct() *Relation {
	r.distinct = true
	return r
}

// OrderBy sets the raw ORDER BY expression, e.g. "last_name, birth_date desc".
// The expression is developer-supplied and interpolated as-is; never feed it
// end-user input.
func (r *Relation) OrderBy(order string) *Relation {
	r.orderBy = order
	return r
}

// Limit bounds the next select; a non-positive n removes the bound.
func (r *Relation) Limit(n int) *Relation {
	if n > 0 {
		r.limit = n
		r.hasLimit = true
	} else {
		r.hasLimit = false
	}
	return r
}

// Offset skips the first n rows of the next select.
func (r *Relation) Offset(n int) *Relation {
	r.offset = n
	r.hasOffset = true
	return r
}

// Only restricts the query to the relation's own rows, excluding rows of
// inheriting tables.
func (r *Relation) Only(v bool) *Relation {
	r.only = v
	return r
}

// Mogrify logs the rendered parameterized SQL of subsequent executions.
func (r *Relation) Mogrify() *Relation {
	r.mogrify = true
	return r
}

// SetUnaccent flags the named fields for accent-insensitive comparison.
func (r *Relation) SetUnaccent(names ...string) error {
	for _, name := range names {
		f, err := r.Field(name)
		if err != nil {
			return err
		}
		f.SetUnaccent(true)
	}
	return nil
}

// --- set algebra ---

// copyConstraints returns a fresh relation of the same class carrying copies
// of the receiver's field constraints and join edges.
func (r *Relation) copyConstraints() *Relation {
	n, _ := newRelation(r.model, r.meta)
	n.idCast = r.idCast
	n.fkeyAliases = r.fkeyAliases
	for name, f := range r.fields {
		nf := n.fields[name]
		nf.value = f.value
		nf.comp = f.comp
		nf.unaccent = f.unaccent
		nf.isSet = f.isSet
	}
	n.mergeJoins(r)
	return n
}

// mergeJoins copies other's join edges onto n, rebinding edges so that the
// new relation stands in for other as the join parent. Edges sharing a
// foreign key name are merged.
func (n *Relation) mergeJoins(other *Relation) {
	for _, e := range other.joins {
		fk := *e.fk
		fk.rel = n
		remote := e.remote
		if remote == other {
			remote = n
		}
		n.setJoin(&fk, remote)
	}
}

// setOperation builds a new relation combining the receiver and right. The
// operands are not mutated; the result carries the receiver's constraints and
// the merged join state of both operands.
func (r *Relation) setOperation(op setOperator, right *Relation) *Relation {
	n := r.copyConstraints()
	n.setOp = &setOp{left: r, op: op, right: right}
	if right != nil {
		n.mergeJoins(right)
	}
	return n
}

// Intersect returns the rows in both r and right.
func (r *Relation) Intersect(right *Relation) *Relation {
	return r.setOperation(opAnd, right)
}

// Union returns the rows in r or right.
func (r *Relation) Union(right *Relation) *Relation {
	return r.setOperation(opOr, right)
}

// Difference returns the rows in r and not in right.
func (r *Relation) Difference(right *Relation) *Relation {
	return r.setOperation(opAndNot, right)
}

// Complement returns the rows not in r.
func (r *Relation) Complement() *Relation {
	n := r.copyConstraints()
	n.setOp = &setOp{left: r}
	n.negated = true
	return n
}

// SymmetricDifference returns the rows in exactly one of r and right.
func (r *Relation) SymmetricDifference(right *Relation) *Relation {
	return r.Union(right).Difference(r.Intersect(right))
}

// String describes the relation: kind, name, fields with their constraints,
// key constraints and foreign keys, plus a ready-to-paste Fkeys alias
// template.
func (r *Relation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", r.kind, r.fqrn)
	if r.meta.Description != "" {
		fmt.Fprintf(&b, "DESCRIPTION:\n%s\n", r.meta.Description)
	}
	b.WriteString("FIELDS:\n")
	width := 0
	for _, name := range r.fieldOrder {
		if len(name) > width {
			width = len(name)
		}
	}
	for _, name := range r.fieldOrder {
		fmt.Fprintf(&b, "- %s:%s%s\n", name, strings.Repeat(" ", width+1-len(name)), r.fields[name])
	}
	if len(r.meta.PrimaryKey) > 0 {
		fmt.Fprintf(&b, "PRIMARY KEY (%s)\n", strings.Join(r.meta.PrimaryKey, ", "))
	}
	for _, uniq := range r.meta.Unique {
		fmt.Fprintf(&b, "UNIQUE CONSTRAINT (%s)\n", strings.Join(uniq, ", "))
	}
	if len(r.fkeyOrder) > 0 {
		b.WriteString("FOREIGN KEYS:\n")
		for _, name := range r.fkeyOrder {
			fmt.Fprintf(&b, "%s\n", r.fkeys[name])
		}
		b.WriteString("\nTo expose foreign keys as named handles, declare an alias map\nand pass it with WithFkeyAliases. Empty aliases are ignored.\n\nFkeys = map[string]string{\n")
		for _, name := range r.fkeyOrder {
			fmt.Fprintf(&b, "    %q: %q,\n", "", name)
		}
		b.WriteString("}\n")
	}
	return b.String()
}
