package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katakarn/join-db-pg-mongo/internal/domain"
	"github.com/katakarn/join-db-pg-mongo/internal/etl"
	"github.com/katakarn/join-db-pg-mongo/internal/secret"
)

// chdir runs the test from an empty directory so no stray joindb.yaml or .env is found.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, domain.DatabaseDriverMongoDB, cfg.Mongo.Driver)
	assert.Equal(t, 27017, cfg.Mongo.Port)
	assert.Equal(t, "newsdb", cfg.Mongo.Database)
	assert.Equal(t, domain.DatabaseDriverPostgres, cfg.Relational.Driver)
	assert.Equal(t, "subVoucher", cfg.Source.Collection)
	assert.Equal(t, "app_student", cfg.Source.Table)
	assert.Equal(t, etl.DefaultDocumentKey, cfg.Join.DocumentKey)
	assert.Equal(t, etl.StrategyNested, cfg.Strategy())
	assert.Equal(t, "combined_data.csv", cfg.Output.Path)
	assert.Equal(t, ',', cfg.DelimiterRune())
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
	assert.Empty(t, cfg.File)
}

func TestLoad_Precedence(t *testing.T) {
	dir := chdir(t)
	writeFile(t, filepath.Join(dir, "joindb.yaml"), `
relational:
  driver: mysql
  host: file-host
  port: 3306
  extra:
    timeout: 5s
source:
  table: from_file
output:
  path: from_file.csv
  columns: [a, b]
`)
	writeFile(t, filepath.Join(dir, ".env"), "JOINDB_SOURCE_TABLE=from_dotenv\nJOINDB_OUTPUT_TIME_LAYOUT=2006-01-02\nUNRELATED=x\n")
	t.Setenv("JOINDB_OUTPUT_PATH", "from_env.csv")
	t.Setenv("JOINDB_JOIN_STRATEGY", "hash")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("strategy", "nested", "")
	require.NoError(t, flags.Parse([]string{"--strategy=nested"}))

	cfg, err := Load(Options{Flags: flags})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "joindb.yaml"), cfg.File)
	assert.Equal(t, domain.DatabaseDriverMySQL, cfg.Relational.Driver)
	assert.Equal(t, "file-host", cfg.Relational.Host)
	assert.Equal(t, map[string]string{"timeout": "5s"}, cfg.Relational.Extra)
	assert.Equal(t, []string{"a", "b"}, cfg.Output.Columns)
	assert.Equal(t, "from_dotenv", cfg.Source.Table)
	assert.Equal(t, "2006-01-02", cfg.Output.TimeLayout)
	assert.Equal(t, "from_env.csv", cfg.Output.Path)
	assert.Equal(t, "nested", cfg.Join.Strategy, "flag beats env")
}

func TestLoad_UnsetFlagKeepsEnv(t *testing.T) {
	chdir(t)
	t.Setenv("JOINDB_JOIN_STRATEGY", "hash")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("strategy", "nested", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(Options{Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, etl.StrategyHash, cfg.Strategy())
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	dir := chdir(t)
	_, err := Load(Options{File: filepath.Join(dir, "nope.yaml")})
	assert.ErrorContains(t, err, "read config")
}

func TestLoad_EnvTypes(t *testing.T) {
	chdir(t)
	t.Setenv("JOINDB_TIMEOUT", "30s")
	t.Setenv("JOINDB_OUTPUT_BOM", "true")
	t.Setenv("JOINDB_RELATIONAL_PORT", "6543")
	t.Setenv("JOINDB_OUTPUT_COLUMNS", "studentId,studentcode")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.True(t, cfg.Output.BOM)
	assert.Equal(t, 6543, cfg.Relational.Port)
	assert.Equal(t, []string{"studentId", "studentcode"}, cfg.Output.Columns)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	chdir(t)
	cfg, err := Load(Options{})
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"mongo driver", func(c *Config) { c.Mongo.Driver = domain.DatabaseDriverMySQL }, "mongo.driver"},
		{"unknown driver", func(c *Config) { c.Relational.Driver = "oracle" }, `relational.driver: unsupported driver: "oracle"`},
		{"relational driver", func(c *Config) { c.Relational.Driver = domain.DatabaseDriverMongoDB }, "relational.driver"},
		{"password source", func(c *Config) { c.Relational.PasswordSource = "vault" }, "password_source"},
		{"empty host", func(c *Config) { c.Mongo.Host = "" }, "mongo.host"},
		{"empty collection", func(c *Config) { c.Source.Collection = "" }, "source.collection"},
		{"empty table", func(c *Config) { c.Source.Table = "" }, "source.table"},
		{"empty key", func(c *Config) { c.Join.DocumentKey = "" }, "join.document_key"},
		{"strategy", func(c *Config) { c.Join.Strategy = "merge" }, "join.strategy"},
		{"empty path", func(c *Config) { c.Output.Path = "" }, "output.path"},
		{"empty column header", func(c *Config) { c.Output.Columns = []string{"studentId="} }, "output.columns"},
		{"empty column field", func(c *Config) { c.Output.Columns = []string{"=Header"} }, "output.columns"},
		{"duplicate header", func(c *Config) { c.Output.Columns = []string{"a=X", "b=X"} }, `both write header "X"`},
		{"long delimiter", func(c *Config) { c.Output.Delimiter = ";;" }, "single character"},
		{"quote delimiter", func(c *Config) { c.Output.Delimiter = `"` }, "not allowed"},
		{"encoding", func(c *Config) { c.Output.Encoding = "klingon" }, "output.encoding"},
		{"bom without utf-8", func(c *Config) { c.Output.Encoding = "windows-874"; c.Output.BOM = true }, "output.bom"},
		{"timezone", func(c *Config) { c.Output.Timezone = "Mars/Olympus" }, "output.timezone"},
		{"timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestValidate_AcceptsVariants(t *testing.T) {
	cfg := validConfig(t)
	cfg.Relational.Driver = domain.DatabaseDriverSQLite
	cfg.Output.Delimiter = "tab"
	cfg.Output.Encoding = "windows-874"
	cfg.Output.Timezone = "Asia/Bangkok"
	cfg.Relational.PasswordSource = string(secret.SourceKeychain)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, '\t', cfg.DelimiterRune())

	cfg.Output.Delimiter = `\t`
	assert.Equal(t, '\t', cfg.DelimiterRune())
	cfg.Output.Delimiter = "|"
	assert.Equal(t, '|', cfg.DelimiterRune())
}

func TestValidate_NormalizesDrivers(t *testing.T) {
	cfg := validConfig(t)
	cfg.Mongo.Driver = "MongoDB"
	cfg.Relational.Driver = " SQLite"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, domain.DatabaseDriverMongoDB, cfg.Mongo.Driver)
	assert.Equal(t, domain.DatabaseDriverSQLite, cfg.Relational.Driver)
}

func TestOutputColumns(t *testing.T) {
	cfg := validConfig(t)
	fields, rename := cfg.OutputColumns()
	assert.Empty(t, fields)
	assert.Nil(t, rename)

	cfg.Output.Columns = []string{"studentId=รหัสนักศึกษา", "name", " gpa = GPA "}
	require.NoError(t, cfg.Validate())
	fields, rename = cfg.OutputColumns()
	assert.Equal(t, []string{"studentId", "name", "gpa"}, fields)
	assert.Equal(t, map[string]string{"studentId": "รหัสนักศึกษา", "gpa": "GPA"}, rename)
}

func TestLoad_ColumnsWithHeadersFromEnv(t *testing.T) {
	chdir(t)
	t.Setenv("JOINDB_OUTPUT_COLUMNS", "studentId=รหัสนักศึกษา,studentcode=StudentCode")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	fields, rename := cfg.OutputColumns()
	assert.Equal(t, []string{"studentId", "studentcode"}, fields)
	assert.Equal(t, "StudentCode", rename["studentcode"])
}

func TestConnection_SecretRef(t *testing.T) {
	c := Connection{
		DatabaseConnection: domain.DatabaseConnection{Name: "registry"},
		PasswordEnv:        "PG_PASSWORD",
		PasswordSource:     "keychain",
	}
	assert.Equal(t, secret.Ref{EnvVar: "PG_PASSWORD", Source: secret.SourceKeychain, Account: "registry"}, c.SecretRef())
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "JOINDB_OUTPUT_TIME_LAYOUT", EnvName("output.time_layout"))
	assert.Equal(t, "JOINDB_TIMEOUT", EnvName("timeout"))
}
