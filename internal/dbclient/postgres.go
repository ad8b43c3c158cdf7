package dbclient

import (
	"fmt"
	"strings"

	"github.com/katakarn/join-db-pg-mongo/internal/domain"

	_ "github.com/lib/pq"
)

// buildPostgresDSN constructs a Postgres connection string from a DatabaseConnection.
func buildPostgresDSN(conn *domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts := []string{
		"host=" + pqQuote(conn.Host),
		fmt.Sprintf("port=%d", port),
		"user=" + pqQuote(conn.Username),
		"password=" + pqQuote(password),
		"dbname=" + pqQuote(conn.Database),
		"sslmode=" + pqQuote(sslMode),
	}
	for k, v := range conn.Extra {
		parts = append(parts, k+"="+pqQuote(v))
	}
	return strings.Join(parts, " ")
}

// pqQuote quotes a keyword/value connection parameter when it needs it.
func pqQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
