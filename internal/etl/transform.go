package etl

// ── Transformer ────────────────────────────────────────────
// Transformers reshape merged records between the join and the destination.
// Each takes a record and returns a (possibly new) record and whether to keep it.

// Transformer processes a single record.
// Returns (transformed record, keep). If keep is false, the record is dropped.
type Transformer interface {
	Transform(Record) (Record, bool)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(Record) (Record, bool)

func (f TransformerFunc) Transform(r Record) (Record, bool) { return f(r) }

// SelectTransform keeps only the listed fields, in the listed order.
// Fields the record lacks are left out.
type SelectTransform struct {
	Fields []string
}

func (t *SelectTransform) Transform(r Record) (Record, bool) {
	out := NewRecord(len(t.Fields))
	for _, f := range t.Fields {
		if v, ok := r.Data[f]; ok {
			out.Set(f, v)
		}
	}
	return out, true
}

// RenameTransform renames fields. A renamed field keeps its position.
type RenameTransform struct {
	Mapping map[string]string // old name → new name
}

func (t *RenameTransform) Transform(r Record) (Record, bool) {
	out := NewRecord(r.Len())
	for _, k := range r.Keys {
		name := k
		if n, ok := t.Mapping[k]; ok && n != "" {
			name = n
		}
		out.Set(name, r.Data[k])
	}
	return out, true
}

// ApplyTransformers runs a chain of transformers on a record.
func ApplyTransformers(r Record, ts []Transformer) (Record, bool) {
	for _, t := range ts {
		var keep bool
		r, keep = t.Transform(r)
		if !keep {
			return r, false
		}
	}
	return r, true
}

// TransformAll runs the chain over every record and returns the ones kept.
// The input slice is not modified.
func TransformAll(records []Record, ts []Transformer) []Record {
	if len(ts) == 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if t, keep := ApplyTransformers(r, ts); keep {
			out = append(out, t)
		}
	}
	return out
}
