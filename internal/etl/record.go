package etl

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// Documents from the document store and merged output rows are both Records;
// relational results arrive as a RowSet and are overlaid onto Records by the Joiner.

// Schema describes the ordered set of output columns.
type Schema struct {
	Fields []string `json:"fields"`
}

// Has reports whether name is one of the schema's fields.
func (s *Schema) Has(name string) bool {
	for _, f := range s.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Record is a single row of data flowing through the pipeline.
// Keys keeps insertion order so headers derived from a record are stable.
type Record struct {
	Keys []string       `json:"keys"`
	Data map[string]any `json:"data"`
}

// NewRecord returns an empty record with room for n fields.
func NewRecord(n int) Record {
	return Record{
		Keys: make([]string, 0, n),
		Data: make(map[string]any, n),
	}
}

// Set adds or replaces a field. A replaced field keeps its original position.
func (r *Record) Set(key string, value any) {
	if r.Data == nil {
		r.Data = make(map[string]any)
	}
	if _, ok := r.Data[key]; !ok {
		r.Keys = append(r.Keys, key)
	}
	r.Data[key] = value
}

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.Data[key]
	return v, ok
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.Keys) }

// Clone returns a shallow copy that can be mutated without touching r.
func (r Record) Clone() Record {
	c := NewRecord(len(r.Keys))
	for _, k := range r.Keys {
		c.Set(k, r.Data[k])
	}
	return c
}

// Schema returns the record's field names as a schema.
func (r Record) Schema() *Schema {
	fields := make([]string, len(r.Keys))
	copy(fields, r.Keys)
	return &Schema{Fields: fields}
}

// RowSet is the materialized result of a relational query.
// Columns come from the result metadata; every row is positionally aligned to them.
type RowSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ColumnIndex returns the position of the named column, or -1.
func (rs *RowSet) ColumnIndex(name string) int {
	for i, c := range rs.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
