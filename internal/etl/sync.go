package etl

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ── SyncJob ────────────────────────────────────────────────
// Orchestrates: fetch documents → fetch rows → join → transform → destination.Write.

// DocumentSource fetches every document of a collection.
type DocumentSource interface {
	FetchAll(ctx context.Context, collection string) ([]Record, error)
}

// RowSource fetches every row of a table along with its column names.
type RowSource interface {
	FetchAll(ctx context.Context, table string) (*RowSet, error)
}

// SyncJob holds the configuration for a single extract-join-load run.
type SyncJob struct {
	ID           string            `json:"id"`
	Collection   string            `json:"collection"`
	Table        string            `json:"table"`
	DocumentKey  string            `json:"documentKey"`
	RowKeyColumn string            `json:"rowKeyColumn,omitempty"`
	Strategy     Strategy          `json:"strategy"`
	Columns      []string          `json:"columns,omitempty"` // fields to write, in order; all when empty
	Rename       map[string]string `json:"rename,omitempty"`  // field → output header
}

// SyncResult is the outcome of running a sync job.
type SyncResult struct {
	JobID         string        `json:"jobId"`
	Status        string        `json:"status"` // "success" | "error"
	DocumentsRead int           `json:"documentsRead"`
	RowsRead      int           `json:"rowsRead"`
	RecordsMerged int           `json:"recordsMerged"`
	RowsWritten   int           `json:"rowsWritten"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs sync jobs against a document source, a row source and a destination.
type Engine struct {
	Docs   DocumentSource
	Rows   RowSource
	Dest   Destination
	Logger *zap.Logger
}

// RunSync executes a sync job end-to-end.
func (e *Engine) RunSync(ctx context.Context, job *SyncJob) (*SyncResult, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	start := time.Now()
	result := &SyncResult{JobID: job.ID}
	log := e.logger().With(zap.String("run_id", job.ID))

	fail := func(err error) (*SyncResult, error) {
		result.Status = "error"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		log.Error("sync failed", zap.String("stage", stageOf(err)), zap.Error(err))
		return result, err
	}

	merged, rs, docs, err := e.extractAndJoin(ctx, job, log)
	result.DocumentsRead = docs
	if rs != nil {
		result.RowsRead = len(rs.Rows)
	}
	if err != nil {
		return fail(err)
	}
	result.RecordsMerged = len(merged)

	written, err := e.Dest.Write(ctx, job.schema(), merged)
	if err != nil {
		return fail(&stageError{"write", err})
	}

	result.Status = "success"
	result.RowsWritten = written
	result.Duration = time.Since(start)
	log.Info("sync complete",
		zap.Int("documents", result.DocumentsRead),
		zap.Int("rows", result.RowsRead),
		zap.Int("merged", result.RecordsMerged),
		zap.Int("written", result.RowsWritten),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// Preview runs the fetch and join phases and returns up to maxRows merged records.
func (e *Engine) Preview(ctx context.Context, job *SyncJob, maxRows int) ([]Record, *Schema, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	log := e.logger().With(zap.String("run_id", job.ID))

	merged, _, _, err := e.extractAndJoin(ctx, job, log)
	if err != nil {
		return nil, nil, err
	}
	if maxRows > 0 && len(merged) > maxRows {
		merged = merged[:maxRows]
	}

	schema := job.schema()
	if schema == nil && len(merged) > 0 {
		schema = merged[0].Schema()
	}
	return merged, schema, nil
}

// stageError tags an error with the pipeline stage it came from.
type stageError struct {
	stage string
	err   error
}

func (s *stageError) Error() string { return s.stage + ": " + s.err.Error() }
func (s *stageError) Unwrap() error { return s.err }

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "run"
}

func (e *Engine) extractAndJoin(ctx context.Context, job *SyncJob, log *zap.Logger) ([]Record, *RowSet, int, error) {
	docs, err := e.Docs.FetchAll(ctx, job.Collection)
	if err != nil {
		return nil, nil, 0, &stageError{"fetch documents", err}
	}
	log.Info("documents fetched", zap.String("collection", job.Collection), zap.Int("count", len(docs)))

	rs, err := e.Rows.FetchAll(ctx, job.Table)
	if err != nil {
		return nil, nil, len(docs), &stageError{"fetch rows", err}
	}
	if rs == nil {
		rs = &RowSet{}
	}
	log.Info("rows fetched",
		zap.String("table", job.Table),
		zap.Int("count", len(rs.Rows)),
		zap.Strings("columns", rs.Columns),
	)

	joiner := &Joiner{
		DocumentKey:  job.DocumentKey,
		RowKeyColumn: job.RowKeyColumn,
		Strategy:     job.Strategy,
	}
	merged, err := joiner.Join(docs, rs)
	if err != nil {
		return nil, rs, len(docs), &stageError{"join", err}
	}
	log.Info("join complete", zap.String("strategy", string(job.Strategy)), zap.Int("merged", len(merged)))
	if len(merged) == 0 {
		log.Warn("join produced no records")
	}
	return TransformAll(merged, job.transformers()), rs, len(docs), nil
}

// transformers selects the configured columns, then renames them.
func (j *SyncJob) transformers() []Transformer {
	var ts []Transformer
	if len(j.Columns) > 0 {
		ts = append(ts, &SelectTransform{Fields: j.Columns})
	}
	if len(j.Rename) > 0 {
		ts = append(ts, &RenameTransform{Mapping: j.Rename})
	}
	return ts
}

// schema returns the output header for the configured columns, nil when
// the header is taken from the records.
func (j *SyncJob) schema() *Schema {
	if len(j.Columns) == 0 {
		return nil
	}
	fields := make([]string, len(j.Columns))
	for i, c := range j.Columns {
		fields[i] = c
		if h, ok := j.Rename[c]; ok && h != "" {
			fields[i] = h
		}
	}
	return &Schema{Fields: fields}
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
