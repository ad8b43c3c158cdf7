package etl

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes merged records into a target system.
// The only destination is a delimited text file.

// StdoutPath makes a CSVWriter write to its Stdout stream instead of a file.
const StdoutPath = "-"

const utf8BOM = "\xEF\xBB\xBF"

// Destination writes records to a target system.
type Destination interface {
	Write(ctx context.Context, schema *Schema, records []Record) (int, error)
}

// CSVWriter implements Destination for delimited text files.
// A given schema is a projection: only its fields are written and other fields
// are ignored. Without one the header is the keys of the first record, and a
// later record carrying any other field fails with ErrSchemaDrift.
type CSVWriter struct {
	Path      string
	Delimiter rune   // ',' when zero
	Encoding  string // WHATWG label, utf-8 when empty
	BOM       bool   // prefix UTF-8 output with a byte order mark
	Formatter *Formatter
	Stdout    io.Writer // used when Path is StdoutPath
	Logger    *zap.Logger
}

func (w *CSVWriter) Write(ctx context.Context, schema *Schema, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, ErrEmptyResult
	}
	if schema == nil {
		schema = records[0].Schema()
		if err := checkDrift(schema, records); err != nil {
			return 0, err
		}
	}

	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if w.Path == StdoutPath {
		out := w.Stdout
		if out == nil {
			out = os.Stdout
		}
		return w.encode(ctx, out, schema, records)
	}

	dir := filepath.Dir(w.Path)
	tmp, err := os.CreateTemp(dir, ".joindb-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	written, err := w.encode(ctx, tmp, schema, records)
	if err != nil {
		return written, err
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return written, fmt.Errorf("chmod output: %w", err)
	}
	if err := os.Rename(tmpName, w.Path); err != nil {
		return written, fmt.Errorf("rename output: %w", err)
	}
	committed = true

	logger.Info("output written",
		zap.String("path", w.Path),
		zap.Int("rows", written),
		zap.Int("columns", len(schema.Fields)),
	)
	return written, nil
}

// encode writes header and rows to out, applying the configured encoding.
func (w *CSVWriter) encode(ctx context.Context, out io.Writer, schema *Schema, records []Record) (int, error) {
	enc, err := htmlindex.Get(w.encodingLabel())
	if err != nil {
		return 0, fmt.Errorf("output encoding %q: %w", w.Encoding, err)
	}
	name, _ := htmlindex.Name(enc)
	isUTF8 := name == "utf-8"

	var sink io.Writer = out
	var tw *transform.Writer
	if !isUTF8 {
		tw = transform.NewWriter(out, enc.NewEncoder())
		sink = tw
	}
	if w.BOM && isUTF8 {
		if _, err := io.WriteString(sink, utf8BOM); err != nil {
			return 0, fmt.Errorf("write bom: %w", err)
		}
	}

	cw := csv.NewWriter(sink)
	if w.Delimiter != 0 {
		cw.Comma = w.Delimiter
	}
	sw := gocsv.NewSafeCSVWriter(cw)

	if err := sw.Write(schema.Fields); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	f := w.Formatter
	if f == nil {
		f = &Formatter{}
	}
	written := 0
	for i, rec := range records {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}
		if err := sw.Write(f.Row(schema, rec)); err != nil {
			return written, fmt.Errorf("write row %d: %w", i, err)
		}
		written++
	}

	sw.Flush()
	if err := sw.Error(); err != nil {
		return written, fmt.Errorf("flush: %w", err)
	}
	if tw != nil {
		if err := tw.Close(); err != nil {
			return written, fmt.Errorf("flush encoder: %w", err)
		}
	}
	return written, nil
}

func (w *CSVWriter) encodingLabel() string {
	if w.Encoding == "" {
		return "utf-8"
	}
	return w.Encoding
}

// checkDrift rejects records carrying fields outside a derived header.
func checkDrift(schema *Schema, records []Record) error {
	header := make(map[string]struct{}, len(schema.Fields))
	for _, f := range schema.Fields {
		header[f] = struct{}{}
	}
	for i, r := range records {
		for _, k := range r.Keys {
			if _, ok := header[k]; !ok {
				return fmt.Errorf("record %d field %q: %w", i, k, ErrSchemaDrift)
			}
		}
	}
	return nil
}
