package dbclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/katakarn/join-db-pg-mongo/internal/domain"
	"github.com/katakarn/join-db-pg-mongo/internal/etl"
)

// SchemaInfo describes the collections or tables visible on a connection.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes a table/collection.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes a column/field.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// DocumentConnector reads whole collections from a document store.
type DocumentConnector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// FetchAll returns every document in the collection, in server order.
	FetchAll(ctx context.Context, collection string) ([]etl.Record, error)

	// Introspect lists collections and the fields of one sample document each.
	Introspect(ctx context.Context) (*SchemaInfo, error)

	// Close disconnects from the server.
	Close() error
}

// RowConnector reads whole tables from a relational database.
type RowConnector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// FetchAll runs SELECT * against the table and returns rows with their column names.
	FetchAll(ctx context.Context, table string) (*etl.RowSet, error)

	// Introspect lists tables and their columns.
	Introspect(ctx context.Context) (*SchemaInfo, error)

	// Close closes the connection pool.
	Close() error
}

// NewDocumentConnector creates a DocumentConnector for the given connection.
// The password must be provided separately (from a SecretStore).
func NewDocumentConnector(conn *domain.DatabaseConnection, password string, logger *zap.Logger) (DocumentConnector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch conn.Driver {
	case domain.DatabaseDriverMongoDB:
		return newMongoConnector(conn, password, logger)
	default:
		return nil, fmt.Errorf("unsupported document driver: %s", conn.Driver)
	}
}

// NewRowConnector creates a RowConnector for the given connection.
func NewRowConnector(conn *domain.DatabaseConnection, password string, logger *zap.Logger) (RowConnector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLiteConnector(conn, logger)
	case domain.DatabaseDriverMySQL:
		return newSQLConnector("mysql", buildMySQLDSN(conn, password), logger)
	case domain.DatabaseDriverPostgres:
		return newSQLConnector("postgres", buildPostgresDSN(conn, password), logger)
	default:
		return nil, fmt.Errorf("unsupported relational driver: %s", conn.Driver)
	}
}
