package etl

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
)

// ── Joiner ─────────────────────────────────────────────────
// Inner equality join of documents against relational rows.
// Every matching (document, row) pair yields one merged record: a copy of the
// document with the row's columns overlaid, row values winning on collision.
// Output order is document order, then row order within a document.

// DefaultDocumentKey is the document field matched against the row key.
const DefaultDocumentKey = "studentId"

// Strategy selects how the Joiner finds matching rows.
type Strategy string

const (
	StrategyNested Strategy = "nested" // scan every row for every document
	StrategyHash   Strategy = "hash"   // index rows by key once, then probe
)

// ParseStrategy validates a strategy name. The empty string means nested.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyNested:
		return StrategyNested, nil
	case StrategyHash:
		return StrategyHash, nil
	default:
		return "", fmt.Errorf("unknown join strategy: %q", s)
	}
}

// Joiner merges documents with rows sharing the same key.
type Joiner struct {
	DocumentKey  string   // document field holding the key; DefaultDocumentKey when empty
	RowKeyColumn string   // row column holding the key; first column when empty
	Strategy     Strategy // StrategyNested when empty
}

// Join returns one merged record per matching (document, row) pair.
// Documents matching no row produce nothing. The document key is only
// required once there is a row to compare it with.
func (j *Joiner) Join(docs []Record, rows *RowSet) ([]Record, error) {
	strategy, err := ParseStrategy(string(j.Strategy))
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = &RowSet{}
	}
	keyIdx, err := j.rowKeyIndex(rows)
	if err != nil {
		return nil, err
	}
	for i, row := range rows.Rows {
		if len(row) != len(rows.Columns) {
			return nil, fmt.Errorf("row %d has %d values for %d columns: %w",
				i, len(row), len(rows.Columns), ErrColumnMismatch)
		}
	}

	if len(rows.Rows) == 0 {
		return nil, nil
	}

	docKey := j.DocumentKey
	if docKey == "" {
		docKey = DefaultDocumentKey
	}
	docKeys := make([]any, len(docs))
	for i, d := range docs {
		v, ok := d.Get(docKey)
		if !ok {
			return nil, fmt.Errorf("document %d missing %q: %w", i, docKey, ErrMissingJoinKey)
		}
		docKeys[i] = v
	}

	if strategy == StrategyHash {
		return hashJoin(docs, docKeys, rows, keyIdx), nil
	}
	return nestedLoopJoin(docs, docKeys, rows, keyIdx), nil
}

func (j *Joiner) rowKeyIndex(rows *RowSet) (int, error) {
	if j.RowKeyColumn == "" {
		return 0, nil
	}
	idx := rows.ColumnIndex(j.RowKeyColumn)
	if idx < 0 {
		return 0, fmt.Errorf("%q not in %v: %w", j.RowKeyColumn, rows.Columns, ErrUnknownColumn)
	}
	return idx, nil
}

func nestedLoopJoin(docs []Record, docKeys []any, rows *RowSet, keyIdx int) []Record {
	var merged []Record
	for i, doc := range docs {
		dk := normalizeKey(docKeys[i])
		for _, row := range rows.Rows {
			if dk == normalizeKey(row[keyIdx]) {
				merged = append(merged, overlay(doc, rows.Columns, row))
			}
		}
	}
	return merged
}

func hashJoin(docs []Record, docKeys []any, rows *RowSet, keyIdx int) []Record {
	index := make(map[any][]int, len(rows.Rows))
	for i, row := range rows.Rows {
		k := normalizeKey(row[keyIdx])
		index[k] = append(index[k], i)
	}

	var merged []Record
	for i, doc := range docs {
		for _, ri := range index[normalizeKey(docKeys[i])] {
			merged = append(merged, overlay(doc, rows.Columns, rows.Rows[ri]))
		}
	}
	return merged
}

// overlay copies doc and sets every row column on the copy.
func overlay(doc Record, columns []string, row []any) Record {
	m := NewRecord(doc.Len() + len(columns))
	for _, k := range doc.Keys {
		m.Set(k, doc.Data[k])
	}
	for i, c := range columns {
		m.Set(c, row[i])
	}
	return m
}

// opaqueKey holds the rendering of a value that cannot be a map key.
// Its distinct type keeps it from ever equalling a plain string key.
type opaqueKey string

// ratKey is the exact rational form of a number outside int64.
type ratKey string

// normalizeKey maps a key value to a comparable canonical form.
// Numbers of any kind, decimals included, compare by exact value; strings and
// byte slices compare as text; strings never equal numbers.
func normalizeKey(v any) any {
	switch n := v.(type) {
	case nil:
		return nil
	case string:
		return n
	case []byte:
		return string(n)
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return normalizeUint(uint64(n))
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return normalizeUint(n)
	case float32:
		return normalizeFloat(float64(n))
	case float64:
		return normalizeFloat(n)
	case Decimal:
		if r, ok := n.Rat(); ok {
			return normalizeRat(r)
		}
		return opaqueKey("decimal:" + string(n))
	}
	if t := reflect.TypeOf(v); !t.Comparable() {
		return opaqueKey(fmt.Sprintf("%#v", v))
	}
	return v
}

func normalizeUint(n uint64) any {
	if n <= math.MaxInt64 {
		return int64(n)
	}
	return ratKey(strconv.FormatUint(n, 10))
}

// normalizeFloat folds integral floats into int64 so 7.0 matches 7.
// Other finite floats take their exact binary value, so 2.5 matches Decimal("2.50")
// but 0.1 does not match Decimal("0.1").
func normalizeFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return normalizeRat(new(big.Rat).SetFloat64(f))
}

func normalizeRat(r *big.Rat) any {
	if r.IsInt() && r.Num().IsInt64() {
		return r.Num().Int64()
	}
	return ratKey(r.RatString())
}
