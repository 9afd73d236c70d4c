package relation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JoinSpec attaches the rows of a related relation to each row of the base
// select, grouped through the foreign key linking the two classes.
//
// With Field set, the attached value is a flat list of that column's values;
// with Fields (or neither), a list of row mappings restricted to Fields.
type JoinSpec struct {
	Relation *Relation
	Key      string
	Fields   []string
	Field    string
}

// Join materializes the receiver (distinct) and, for each spec, groups the
// related relation's rows by the foreign-key tuple and attaches them under
// the spec's key. Base rows without a match are dropped. Values that are not
// JSON-native (uuid, date, time, timestamp, interval) are rendered as
// strings.
func (r *Relation) Join(ctx context.Context, specs ...JoinSpec) ([]map[string]any, error) {
	base, err := r.Distinct().SelectAll(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]map[string]any, len(base))
	for i, row := range base {
		res[i] = stringifyRow(row)
	}

	for _, spec := range specs {
		if spec.Relation == nil || spec.Key == "" {
			return nil, &InvalidValueError{Reason: "join spec needs a relation and a result key"}
		}
		if spec.Field != "" && len(spec.Fields) > 0 {
			return nil, &InvalidValueError{Reason: "join spec takes either Field or Fields, not both"}
		}
		asList := spec.Field != ""
		fields := spec.Fields
		if asList {
			fields = []string{spec.Field}
		}
		if len(fields) == 0 {
			fields = spec.Relation.fieldOrder
		}

		fk := r.fkeyTo(spec.Relation)
		if fk == nil {
			return nil, fmt.Errorf("no foreign key between %s and %s", r.fqrn, spec.Relation.fqrn)
		}

		remote := spec.Relation.copyConstraints()
		cols := append(append([]string{}, fields...), missing(fields, fk.targetFields)...)
		remoteRows, err := remote.Distinct().SelectAll(ctx, cols...)
		if err != nil {
			return nil, err
		}

		grouped := make(map[string][]any)
		for _, row := range remoteRows {
			row = stringifyRow(row)
			key := tupleKey(row, fk.targetFields)
			if asList {
				grouped[key] = append(grouped[key], row[spec.Field])
				continue
			}
			sub := make(map[string]any, len(fields))
			for _, name := range fields {
				sub[name] = row[name]
			}
			grouped[key] = append(grouped[key], sub)
		}

		var kept []map[string]any
		for _, row := range res {
			matches := grouped[tupleKey(row, fk.sourceFields)]
			if len(matches) == 0 {
				continue
			}
			row[spec.Key] = matches
			kept = append(kept, row)
		}
		res = kept
	}
	return res, nil
}

// fkeyTo finds a foreign key of r whose target class matches other.
func (r *Relation) fkeyTo(other *Relation) *ForeignKey {
	for _, name := range r.fkeyOrder {
		fk := r.fkeys[name]
		if fk.target.Schema == other.fqrn.Schema && fk.target.Name == other.fqrn.Name {
			return fk
		}
	}
	return nil
}

func missing(have, want []string) []string {
	var out []string
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			out = append(out, w)
		}
	}
	return out
}

func tupleKey(row map[string]any, cols []string) string {
	key := ""
	for _, col := range cols {
		key += fmt.Sprintf("%v\x00", row[col])
	}
	return key
}

func stringifyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = toJSONValue(v)
	}
	return out
}

// toJSONValue renders driver values without a JSON-native representation as
// strings.
func toJSONValue(v any) any {
	switch x := v.(type) {
	case uuid.UUID:
		return x.String()
	case [16]byte:
		return uuid.UUID(x).String()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}
	return v
}
