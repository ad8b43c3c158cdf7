package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectTransform(t *testing.T) {
	in := doc("studentId", "S1", "note", "x", "name", "Alice")
	out, keep := (&SelectTransform{Fields: []string{"name", "missing", "studentId"}}).Transform(in)
	require.True(t, keep)
	assert.Equal(t, []string{"name", "studentId"}, out.Keys)
	assert.Equal(t, map[string]any{"name": "Alice", "studentId": "S1"}, out.Data)
	assert.Equal(t, 3, in.Len(), "input is untouched")
}

func TestRenameTransform_KeepsPosition(t *testing.T) {
	in := doc("studentId", "S1", "name", "Alice", "gpa", 3.5)
	out, keep := (&RenameTransform{Mapping: map[string]string{
		"name":      "ชื่อ",
		"studentId": "รหัสนักศึกษา",
		"absent":    "x",
	}}).Transform(in)
	require.True(t, keep)
	assert.Equal(t, []string{"รหัสนักศึกษา", "ชื่อ", "gpa"}, out.Keys)
	assert.Equal(t, "Alice", out.Data["ชื่อ"])
	assert.Equal(t, []string{"studentId", "name", "gpa"}, in.Keys)
}

func TestTransformAll(t *testing.T) {
	records := []Record{doc("id", 1), doc("id", 2), doc("id", 3)}
	odd := TransformerFunc(func(r Record) (Record, bool) {
		return r, r.Data["id"].(int)%2 == 1
	})
	ts := []Transformer{odd, &RenameTransform{Mapping: map[string]string{"id": "n"}}}

	out := TransformAll(records, ts)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Data["n"])
	assert.Equal(t, 3, out[1].Data["n"])
	assert.Equal(t, []string{"id"}, records[0].Keys)

	assert.Equal(t, records, TransformAll(records, nil))
}
