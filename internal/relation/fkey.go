package relation

import (
	"context"
	"fmt"
	"strings"
)

// ForeignKey links an ordered set of source fields in its owning relation to
// the aligned target fields of another relation. Reverse keys describe other
// relations referencing the owner; both directions join the same way.
type ForeignKey struct {
	name         string
	rel          *Relation
	sourceFields []string
	target       FQRN
	targetFields []string
	reverse      bool
}

func newForeignKey(rel *Relation, meta FKMeta) *ForeignKey {
	return &ForeignKey{
		name:         meta.Name,
		rel:          rel,
		sourceFields: meta.SourceFields,
		target:       meta.Target,
		targetFields: meta.TargetFields,
		reverse:      meta.Reverse,
	}
}

func (fk *ForeignKey) Name() string           { return fk.name }
func (fk *ForeignKey) SourceFields() []string { return fk.sourceFields }
func (fk *ForeignKey) Target() FQRN           { return fk.target }
func (fk *ForeignKey) TargetFields() []string { return fk.targetFields }
func (fk *ForeignKey) Reverse() bool          { return fk.reverse }

// Set binds remote as the join partner reached through this foreign key. The
// remote relation's own constraints become part of the join predicate.
func (fk *ForeignKey) Set(remote *Relation) error {
	if remote.fqrn.Schema != fk.target.Schema || remote.fqrn.Name != fk.target.Name {
		return &WrongForeignKeyError{Relation: remote.fqrn.String(), Fkey: fk.name}
	}
	fk.rel.setJoin(fk, remote)
	return nil
}

// Remote instantiates an unconstrained relation of the foreign key's target
// class.
func (fk *ForeignKey) Remote(ctx context.Context) (*Relation, error) {
	return fk.rel.model.Relation(ctx, fmt.Sprintf("%s.%s", fk.target.Schema, fk.target.Name))
}

// joinPredicate pairs each source column of parent with the aligned target
// column of child.
func (fk *ForeignKey) joinPredicate(parent, child *Relation) string {
	pairs := make([]string, len(fk.sourceFields))
	for i, src := range fk.sourceFields {
		pairs[i] = fmt.Sprintf("r%d.%s = r%d.%s",
			parent.aliasID(), quoteIdentifier(src),
			child.aliasID(), quoteIdentifier(fk.targetFields[i]))
	}
	return strings.Join(pairs, " AND ")
}

// String renders the key the way inspect prints it, on two lines: first
// `- fkey_name: ("src1", "src2")`, then ` ↳ "db":"schema"."name"(tgt1, tgt2)`.
func (fk *ForeignKey) String() string {
	return fmt.Sprintf("- %s: (\"%s\")\n ↳ %s(%s)",
		fk.name, strings.Join(fk.sourceFields, `", "`),
		fk.target, strings.Join(fk.targetFields, ", "))
}
