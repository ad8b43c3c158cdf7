package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/katakarn/join-db-pg-mongo/internal/config"
	"github.com/katakarn/join-db-pg-mongo/internal/dbclient"
	"github.com/katakarn/join-db-pg-mongo/internal/domain"
	"github.com/katakarn/join-db-pg-mongo/internal/etl"
	"github.com/katakarn/join-db-pg-mongo/internal/secret"
)

// ─────────────────────────────────────────────────────────────
// Join Service: one extract-join-load run per call
// ─────────────────────────────────────────────────────────────

// DocumentFactory opens a document connector.
type DocumentFactory func(conn *domain.DatabaseConnection, password string, logger *zap.Logger) (dbclient.DocumentConnector, error)

// RowFactory opens a row connector.
type RowFactory func(conn *domain.DatabaseConnection, password string, logger *zap.Logger) (dbclient.RowConnector, error)

// PasswordResolver resolves connection passwords.
type PasswordResolver interface {
	Password(ref secret.Ref) (string, error)
}

// JoinService owns connector lifetimes. Nothing outlives a single call.
type JoinService struct {
	cfg     *config.Config
	secrets PasswordResolver
	logger  *zap.Logger
	stdout  io.Writer
	guard   runGuard

	NewDocuments DocumentFactory
	NewRows      RowFactory
}

// NewJoinService creates a JoinService using the real connectors.
func NewJoinService(cfg *config.Config, secrets PasswordResolver, logger *zap.Logger, stdout io.Writer) *JoinService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JoinService{
		cfg:          cfg,
		secrets:      secrets,
		logger:       logger,
		stdout:       stdout,
		NewDocuments: dbclient.NewDocumentConnector,
		NewRows:      dbclient.NewRowConnector,
	}
}

// Run extracts, joins and writes the configured output.
func (s *JoinService) Run(ctx context.Context) (*etl.SyncResult, error) {
	if !s.guard.TryLock(s.cfg.Output.Path) {
		return nil, fmt.Errorf("a run writing %s is already in progress", s.cfg.Output.Path)
	}
	defer s.guard.Unlock(s.cfg.Output.Path)

	dest, err := s.writer(s.cfg.Output.Path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var result *etl.SyncResult
	err = s.withConnectors(ctx, func(docs dbclient.DocumentConnector, rows dbclient.RowConnector) error {
		engine := &etl.Engine{Docs: docs, Rows: rows, Dest: dest, Logger: s.logger}
		var runErr error
		result, runErr = engine.RunSync(ctx, s.job())
		return runErr
	})
	return result, err
}

// Preview extracts and joins, then writes at most limit records to stdout.
func (s *JoinService) Preview(ctx context.Context, limit int) (int, error) {
	dest, err := s.writer(etl.StdoutPath)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var written int
	err = s.withConnectors(ctx, func(docs dbclient.DocumentConnector, rows dbclient.RowConnector) error {
		engine := &etl.Engine{Docs: docs, Rows: rows, Logger: s.logger}
		records, schema, err := engine.Preview(ctx, s.job(), limit)
		if err != nil {
			return err
		}
		written, err = dest.Write(ctx, schema, records)
		return err
	})
	return written, err
}

// PingResult is the outcome of testing one connection.
type PingResult struct {
	Name     string        `json:"name"`
	Driver   string        `json:"driver"`
	Endpoint string        `json:"endpoint"`
	Latency  time.Duration `json:"latency"`
	Error    string        `json:"error,omitempty"`
}

// Ping tests both connections independently. The error is non-nil if either failed.
func (s *JoinService) Ping(ctx context.Context) ([]PingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var errs []error
	results := make([]PingResult, 0, 2)

	res, err := s.pingOne(ctx, &s.cfg.Mongo, func(conn *domain.DatabaseConnection, pw string) (pinger, error) {
		return s.NewDocuments(conn, pw, s.logger)
	})
	results = append(results, res)
	errs = append(errs, err)

	res, err = s.pingOne(ctx, &s.cfg.Relational, func(conn *domain.DatabaseConnection, pw string) (pinger, error) {
		return s.NewRows(conn, pw, s.logger)
	})
	results = append(results, res)
	errs = append(errs, err)

	return results, errors.Join(errs...)
}

type pinger interface {
	TestConnection(ctx context.Context) error
	Close() error
}

func (s *JoinService) pingOne(ctx context.Context, c *config.Connection, open func(*domain.DatabaseConnection, string) (pinger, error)) (PingResult, error) {
	res := PingResult{Name: c.Name, Driver: string(c.Driver), Endpoint: c.Endpoint()}
	fail := func(err error) (PingResult, error) {
		res.Error = err.Error()
		return res, fmt.Errorf("%s: %w", c.Name, err)
	}

	pw, err := s.secrets.Password(c.SecretRef())
	if err != nil {
		return fail(err)
	}
	p, err := open(&c.DatabaseConnection, pw)
	if err != nil {
		return fail(err)
	}
	defer s.closeQuietly(c.Name, p)

	start := time.Now()
	err = p.TestConnection(ctx)
	res.Latency = time.Since(start)
	if err != nil {
		return fail(err)
	}
	return res, nil
}

// Discovery lists what both connections expose.
type Discovery struct {
	Collections *dbclient.SchemaInfo `json:"collections"`
	Tables      *dbclient.SchemaInfo `json:"tables"`
}

// Discover introspects both connections.
func (s *JoinService) Discover(ctx context.Context) (*Discovery, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	out := &Discovery{}
	err := s.withConnectors(ctx, func(docs dbclient.DocumentConnector, rows dbclient.RowConnector) error {
		var err error
		if out.Collections, err = docs.Introspect(ctx); err != nil {
			return fmt.Errorf("introspect %s: %w", s.cfg.Mongo.Name, err)
		}
		if out.Tables, err = rows.Introspect(ctx); err != nil {
			return fmt.Errorf("introspect %s: %w", s.cfg.Relational.Name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// withConnectors opens the document connector, then the row connector, runs fn,
// and closes whatever was opened on every path.
func (s *JoinService) withConnectors(ctx context.Context, fn func(dbclient.DocumentConnector, dbclient.RowConnector) error) error {
	docPW, err := s.secrets.Password(s.cfg.Mongo.SecretRef())
	if err != nil {
		return fmt.Errorf("%s password: %w", s.cfg.Mongo.Name, err)
	}
	rowPW, err := s.secrets.Password(s.cfg.Relational.SecretRef())
	if err != nil {
		return fmt.Errorf("%s password: %w", s.cfg.Relational.Name, err)
	}

	docs, err := s.NewDocuments(&s.cfg.Mongo.DatabaseConnection, docPW, s.logger)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.cfg.Mongo.Name, err)
	}
	defer s.closeQuietly(s.cfg.Mongo.Name, docs)
	s.logger.Debug("connector opened", zap.String("name", s.cfg.Mongo.Name), zap.String("endpoint", s.cfg.Mongo.Endpoint()))

	rows, err := s.NewRows(&s.cfg.Relational.DatabaseConnection, rowPW, s.logger)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.cfg.Relational.Name, err)
	}
	defer s.closeQuietly(s.cfg.Relational.Name, rows)
	s.logger.Debug("connector opened", zap.String("name", s.cfg.Relational.Name), zap.String("endpoint", s.cfg.Relational.Endpoint()))

	return fn(docs, rows)
}

func (s *JoinService) closeQuietly(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		s.logger.Warn("close connector", zap.String("name", name), zap.Error(err))
	}
}

func (s *JoinService) job() *etl.SyncJob {
	columns, rename := s.cfg.OutputColumns()
	return &etl.SyncJob{
		Collection:   s.cfg.Source.Collection,
		Table:        s.cfg.Source.Table,
		DocumentKey:  s.cfg.Join.DocumentKey,
		RowKeyColumn: s.cfg.Join.RowKeyColumn,
		Strategy:     s.cfg.Strategy(),
		Columns:      columns,
		Rename:       rename,
	}
}

func (s *JoinService) writer(path string) (*etl.CSVWriter, error) {
	loc, err := s.cfg.Location()
	if err != nil {
		return nil, err
	}
	return &etl.CSVWriter{
		Path:      path,
		Delimiter: s.cfg.DelimiterRune(),
		Encoding:  s.cfg.Output.Encoding,
		BOM:       s.cfg.Output.BOM,
		Formatter: &etl.Formatter{TimeLayout: s.cfg.Output.TimeLayout, Location: loc},
		Stdout:    s.stdout,
		Logger:    s.logger,
	}, nil
}
