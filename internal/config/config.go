package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/katakarn/join-db-pg-mongo/internal/domain"
	"github.com/katakarn/join-db-pg-mongo/internal/etl"
	"github.com/katakarn/join-db-pg-mongo/internal/secret"
)

// EnvPrefix prefixes every environment override: JOINDB_MONGO_HOST → mongo.host.
const EnvPrefix = "JOINDB"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Connection is a database connection plus the way its password is resolved.
type Connection struct {
	domain.DatabaseConnection `mapstructure:",squash"`

	Password       string `mapstructure:"password"`
	PasswordEnv    string `mapstructure:"password_env"`
	PasswordSource string `mapstructure:"password_source"`
}

// SecretRef returns the password reference for this connection.
func (c *Connection) SecretRef() secret.Ref {
	return secret.Ref{
		Literal: c.Password,
		EnvVar:  c.PasswordEnv,
		Source:  secret.Source(c.PasswordSource),
		Account: c.Name,
	}
}

// Source names the collection and table to extract.
type Source struct {
	Collection string `mapstructure:"collection"`
	Table      string `mapstructure:"table"`
}

// Join configures key fields and the join strategy.
type Join struct {
	DocumentKey  string `mapstructure:"document_key"`
	RowKeyColumn string `mapstructure:"row_key_column"`
	Strategy     string `mapstructure:"strategy"`
}

// Output configures the delimited text file.
type Output struct {
	Path       string   `mapstructure:"path"`
	Delimiter  string   `mapstructure:"delimiter"`
	Encoding   string   `mapstructure:"encoding"`
	BOM        bool     `mapstructure:"bom"`
	Columns    []string `mapstructure:"columns"`
	TimeLayout string   `mapstructure:"time_layout"`
	Timezone   string   `mapstructure:"timezone"`
}

// Log configures the logger.
type Log struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// Config is the full runtime configuration.
type Config struct {
	Mongo      Connection    `mapstructure:"mongo"`
	Relational Connection    `mapstructure:"relational"`
	Source     Source        `mapstructure:"source"`
	Join       Join          `mapstructure:"join"`
	Output     Output        `mapstructure:"output"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Log        Log           `mapstructure:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"collection":     "source.collection",
	"table":          "source.table",
	"output":         "output.path",
	"delimiter":      "output.delimiter",
	"encoding":       "output.encoding",
	"bom":            "output.bom",
	"columns":        "output.columns",
	"document-key":   "join.document_key",
	"row-key-column": "join.row_key_column",
	"strategy":       "join.strategy",
	"timeout":        "timeout",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mongo.name", "mongo")
	v.SetDefault("mongo.driver", string(domain.DatabaseDriverMongoDB))
	v.SetDefault("mongo.host", "localhost")
	v.SetDefault("mongo.port", 27017)
	v.SetDefault("mongo.database", "newsdb")
	v.SetDefault("mongo.username", "")
	v.SetDefault("mongo.ssl_mode", "")
	v.SetDefault("mongo.password", "")
	v.SetDefault("mongo.password_env", "")
	v.SetDefault("mongo.password_source", string(secret.SourceConfig))

	v.SetDefault("relational.name", "relational")
	v.SetDefault("relational.driver", string(domain.DatabaseDriverPostgres))
	v.SetDefault("relational.host", "localhost")
	v.SetDefault("relational.port", 5432)
	v.SetDefault("relational.database", "")
	v.SetDefault("relational.username", "")
	v.SetDefault("relational.ssl_mode", "disable")
	v.SetDefault("relational.password", "")
	v.SetDefault("relational.password_env", "")
	v.SetDefault("relational.password_source", string(secret.SourceConfig))

	v.SetDefault("source.collection", "subVoucher")
	v.SetDefault("source.table", "app_student")

	v.SetDefault("join.document_key", etl.DefaultDocumentKey)
	v.SetDefault("join.row_key_column", "")
	v.SetDefault("join.strategy", string(etl.StrategyNested))

	v.SetDefault("output.path", "combined_data.csv")
	v.SetDefault("output.delimiter", ",")
	v.SetDefault("output.encoding", "utf-8")
	v.SetDefault("output.bom", false)
	v.SetDefault("output.columns", []string{})
	v.SetDefault("output.time_layout", time.RFC3339)
	v.SetDefault("output.timezone", "UTC")

	v.SetDefault("timeout", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Options controls where Load looks for configuration.
type Options struct {
	File   string         // explicit config file; searched for when empty
	DotEnv string         // dotenv file; ".env" when empty, missing file ignored
	Flags  *pflag.FlagSet // flags bound on top of everything else, may be nil
}

// Load builds the configuration from defaults, config file, .env,
// JOINDB_* environment variables and flags, in increasing precedence.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("joindb")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "joindb"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	dotenv := opts.DotEnv
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := mergeDotEnv(v, dotenv); err != nil {
		return nil, err
	}

	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key, EnvName(key)); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	return cfg, nil
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// mergeDotEnv merges JOINDB_* entries of a dotenv file over the config file.
// Only known keys are matched, so underscores inside key names are unambiguous.
func mergeDotEnv(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	dv := viper.New()
	dv.SetConfigFile(path)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	known := make(map[string]string)
	for _, key := range v.AllKeys() {
		known[EnvName(key)] = key
	}
	merged := make(map[string]any)
	for _, name := range dv.AllKeys() {
		key, ok := known[strings.ToUpper(name)]
		if !ok {
			continue
		}
		setNested(merged, strings.Split(key, "."), dv.GetString(name))
	}
	return v.MergeConfigMap(merged)
}

func setNested(m map[string]any, path []string, value string) {
	for _, p := range path[:len(path)-1] {
		next, _ := m[p].(map[string]any)
		if next == nil {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

// Strategy returns the parsed join strategy.
func (c *Config) Strategy() etl.Strategy {
	s, _ := etl.ParseStrategy(c.Join.Strategy)
	return s
}

// DelimiterRune returns the output delimiter as a rune. "tab" and `\t` mean a tab.
func (c *Config) DelimiterRune() rune {
	switch c.Output.Delimiter {
	case "tab", `\t`:
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(c.Output.Delimiter)
	return r
}

// OutputColumns parses output.columns. Each entry is a field name, optionally
// followed by "=Header" to write it under another name.
// rename is nil when no entry renames.
func (c *Config) OutputColumns() (fields []string, rename map[string]string) {
	for _, entry := range c.Output.Columns {
		field, header := splitColumn(entry)
		fields = append(fields, field)
		if header != field {
			if rename == nil {
				rename = make(map[string]string)
			}
			rename[field] = header
		}
	}
	return fields, rename
}

func splitColumn(entry string) (field, header string) {
	field, header, ok := strings.Cut(entry, "=")
	field = strings.TrimSpace(field)
	if !ok {
		return field, field
	}
	return field, strings.TrimSpace(header)
}

// Location returns the time zone used to render timestamps.
func (c *Config) Location() (*time.Location, error) {
	if c.Output.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Output.Timezone)
}

// Validate checks every field that would otherwise fail mid-run.
// Driver names are normalized in place.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if d, err := domain.ParseDatabaseDriver(string(c.Mongo.Driver)); err != nil {
		add("mongo.driver: %v", err)
	} else if d != domain.DatabaseDriverMongoDB {
		add("mongo.driver must be %q, got %q", domain.DatabaseDriverMongoDB, d)
	} else {
		c.Mongo.Driver = d
	}
	if d, err := domain.ParseDatabaseDriver(string(c.Relational.Driver)); err != nil {
		add("relational.driver: %v", err)
	} else if !d.IsRelational() {
		add("relational.driver must be postgres, mysql or sqlite, got %q", d)
	} else {
		c.Relational.Driver = d
	}
	for _, conn := range []*Connection{&c.Mongo, &c.Relational} {
		switch secret.Source(conn.PasswordSource) {
		case "", secret.SourceConfig, secret.SourceKeychain:
		default:
			add("%s.password_source %q is not config or keychain", conn.Name, conn.PasswordSource)
		}
		if conn.Host == "" {
			add("%s.host is required", conn.Name)
		}
	}

	if c.Source.Collection == "" {
		add("source.collection is required")
	}
	if c.Source.Table == "" {
		add("source.table is required")
	}
	if c.Join.DocumentKey == "" {
		add("join.document_key is required")
	}
	if _, err := etl.ParseStrategy(c.Join.Strategy); err != nil {
		add("join.strategy: %v", err)
	}

	if c.Output.Path == "" {
		add("output.path is required")
	}
	headers := make(map[string]string, len(c.Output.Columns))
	for _, entry := range c.Output.Columns {
		field, header := splitColumn(entry)
		if field == "" || header == "" {
			add("output.columns entry %q must be field or field=Header", entry)
			continue
		}
		if prev, ok := headers[header]; ok {
			add("output.columns %q and %q both write header %q", prev, entry, header)
			continue
		}
		headers[header] = entry
	}
	d := c.DelimiterRune()
	if c.Output.Delimiter != "tab" && c.Output.Delimiter != `\t` && utf8.RuneCountInString(c.Output.Delimiter) != 1 {
		add("output.delimiter must be a single character, got %q", c.Output.Delimiter)
	} else if d == '"' || d == '\r' || d == '\n' || d == utf8.RuneError {
		add("output.delimiter %q is not allowed", c.Output.Delimiter)
	}
	enc, err := htmlindex.Get(c.Output.Encoding)
	if err != nil {
		add("output.encoding %q is not supported", c.Output.Encoding)
	} else if name, _ := htmlindex.Name(enc); c.Output.BOM && name != "utf-8" {
		add("output.bom requires utf-8 encoding, got %q", c.Output.Encoding)
	}
	if _, err := c.Location(); err != nil {
		add("output.timezone: %v", err)
	}

	if c.Timeout <= 0 {
		add("timeout must be positive, got %s", c.Timeout)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level %q is not debug, info, warn or error", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		add("log.format %q is not console or json", c.Log.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
