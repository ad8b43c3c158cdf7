package etl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Formatter renders record values as delimited-text cells.
type Formatter struct {
	TimeLayout string         // time.RFC3339 when empty
	Location   *time.Location // UTC when nil
}

// Format converts a single value to its cell text. nil becomes an empty cell.
func (f *Formatter) Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return f.formatTime(val)
	case *time.Time:
		if val == nil {
			return ""
		}
		return f.formatTime(*val)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func (f *Formatter) formatTime(t time.Time) string {
	layout := f.TimeLayout
	if layout == "" {
		layout = time.RFC3339
	}
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(layout)
}

// Row renders the record's values in schema order.
// Fields the record lacks are left empty.
func (f *Formatter) Row(schema *Schema, r Record) []string {
	out := make([]string, len(schema.Fields))
	for i, name := range schema.Fields {
		if v, ok := r.Data[name]; ok {
			out[i] = f.Format(v)
		}
	}
	return out
}
