package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/katakarn/join-db-pg-mongo/internal/config"
	"github.com/katakarn/join-db-pg-mongo/internal/logging"
	"github.com/katakarn/join-db-pg-mongo/internal/secret"
	"github.com/katakarn/join-db-pg-mongo/internal/service"
)

// App holds what a single command invocation needs.
// Startup builds it from configuration and Shutdown releases it.
type App struct {
	stdout io.Writer
	stderr io.Writer

	cfg    *config.Config
	logger *zap.Logger
	joins  *service.JoinService

	// factories override the real connectors when set
	docFactory service.DocumentFactory
	rowFactory service.RowFactory
	secrets    service.PasswordResolver
}

// Option customizes an App.
type Option func(*App)

// WithConnectors replaces the connector factories.
func WithConnectors(docs service.DocumentFactory, rows service.RowFactory) Option {
	return func(a *App) {
		a.docFactory = docs
		a.rowFactory = rows
	}
}

// WithSecrets replaces the password resolver.
func WithSecrets(r service.PasswordResolver) Option {
	return func(a *App) { a.secrets = r }
}

// New creates an App writing command output to stdout and logs to stderr.
func New(stdout, stderr io.Writer, opts ...Option) *App {
	a := &App{stdout: stdout, stderr: stderr}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Startup loads and validates configuration, then builds the logger and service.
func (a *App) Startup(ctx context.Context, opts config.Options) error {
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	if cfg.File != "" {
		logger.Debug("config loaded", zap.String("file", cfg.File))
	}

	secrets := a.secrets
	if secrets == nil {
		secrets = secret.NewResolver()
	}
	joins := service.NewJoinService(cfg, secrets, logger, a.stdout)
	if a.docFactory != nil {
		joins.NewDocuments = a.docFactory
	}
	if a.rowFactory != nil {
		joins.NewRows = a.rowFactory
	}

	a.cfg = cfg
	a.logger = logger
	a.joins = joins
	return nil
}

// Shutdown flushes the logger.
func (a *App) Shutdown() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// Execute runs the command line and returns the first error.
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("joindb: %w", err)
	}
	return nil
}
