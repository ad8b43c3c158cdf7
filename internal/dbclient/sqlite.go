package dbclient

import (
	"go.uber.org/zap"

	"github.com/katakarn/join-db-pg-mongo/internal/domain"

	_ "modernc.org/sqlite"
)

// newSQLiteConnector creates a connector for an external SQLite file.
func newSQLiteConnector(conn *domain.DatabaseConnection, logger *zap.Logger) (*sqlConnector, error) {
	dsn := conn.Host + "?_pragma=busy_timeout(5000)"
	c, err := newSQLConnector("sqlite", dsn, logger)
	if err != nil {
		return nil, err
	}
	// One connection, so every query sees the same database even for :memory:.
	c.db.SetMaxOpenConns(1)
	return c, nil
}
