package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported warehouse drivers, selected by the DATABASE_URL scheme.
const (
	DriverPostgres  = "postgres"
	DriverSQLServer = "sqlserver"
)

type Config struct {
	// Warehouse connection.
	DatabaseURL  string
	Driver       string // derived from the DATABASE_URL scheme
	ReadOnly     bool
	MaxRows      int
	QueryTimeout time.Duration

	// Catalog scope.
	Schemas       []string // empty means all non-system schemas
	SearchPath    string   // schema(s) unqualified OMOP table names resolve to
	AllowedTables []string // empty means every table may be queried
	PolicyFile    string   // optional path to policy YAML

	// Interpretation.
	TopN              int // entries in the Top-N split
	ProfileSampleRows int // rows sampled by profile_table

	LogLevel slog.Level

	// Transport.
	Transport       string // "stdio" or "http"
	HTTPAddr        string
	HTTPBearerToken string // required when transport=http

	// Connection pool.
	PoolMaxConns        int32
	PoolMinConns        int32
	PoolMaxConnLifetime time.Duration

	OTelEnabled bool

	// Flag-only settings.
	DryRun      bool
	ExplainOnly bool
	AuditLog    string // NDJSON audit log path
}

// Overrides holds command-line values. Nil pointers mean the flag was not
// given, so the environment value stands.
type Overrides struct {
	DatabaseURL     *string
	LogLevel        *string
	MaxRows         *int
	QueryTimeout    *time.Duration
	PolicyFile      *string
	SearchPath      *string
	TopN            *int
	Transport       *string
	HTTPAddr        *string
	HTTPBearerToken *string
	OTelEnabled     bool
	DryRun          bool
	ExplainOnly     bool
	AuditLog        string

	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are named) into the process environment. Variables already set win, and
// missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load layers defaults, environment variables and overrides, in that order,
// and validates the result. Every malformed variable is reported at once.
func Load(overrides Overrides) (*Config, error) {
	cfg := &Config{
		ReadOnly:            true,
		MaxRows:             100,
		QueryTimeout:        10 * time.Second,
		TopN:                10,
		ProfileSampleRows:   500,
		Transport:           "stdio",
		HTTPAddr:            ":8080",
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
	}

	if err := fromEnv(cfg); err != nil {
		return nil, err
	}
	if err := overrides.apply(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv(cfg *Config) error {
	var e envReader

	e.str("DATABASE_URL", &cfg.DatabaseURL)
	e.boolean("READ_ONLY", &cfg.ReadOnly)
	e.positive("MAX_ROWS", &cfg.MaxRows)
	e.duration("QUERY_TIMEOUT", &cfg.QueryTimeout)
	e.level("LOG_LEVEL", &cfg.LogLevel)

	cfg.Schemas = splitList(os.Getenv("SCHEMAS"))
	cfg.SearchPath = strings.TrimSpace(os.Getenv("SEARCH_PATH"))
	cfg.AllowedTables = splitList(os.Getenv("ALLOWED_TABLES"))
	e.str("POLICY_FILE", &cfg.PolicyFile)

	e.positive("TOP_N", &cfg.TopN)
	e.positive("PROFILE_SAMPLE_ROWS", &cfg.ProfileSampleRows)

	e.str("TRANSPORT", &cfg.Transport)
	e.str("HTTP_ADDR", &cfg.HTTPAddr)
	e.str("HTTP_BEARER_TOKEN", &cfg.HTTPBearerToken)
	e.boolean("OTEL_ENABLED", &cfg.OTelEnabled)

	e.conns("POOL_MAX_CONNS", &cfg.PoolMaxConns, 1)
	e.conns("POOL_MIN_CONNS", &cfg.PoolMinConns, 0)
	e.duration("POOL_MAX_CONN_LIFETIME", &cfg.PoolMaxConnLifetime)

	return errors.Join(e.errs...)
}

// envReader parses non-empty variables into typed fields, recording one
// error per malformed variable.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func (e *envReader) fail(key, value, want string) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s value %q: %s", key, value, want))
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, "must be true or false")
		return
	}
	*dst = b
}

func (e *envReader) positive(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		e.fail(key, v, "must be a positive integer")
		return
	}
	*dst = n
}

func (e *envReader) conns(key string, dst *int32, lowest int64) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < lowest {
		e.fail(key, v, fmt.Sprintf("must be an integer >= %d", lowest))
		return
	}
	*dst = int32(n)
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, "must be a duration such as 30s")
		return
	}
	*dst = d
}

func (e *envReader) level(key string, dst *slog.Level) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	l, err := parseLogLevel(v)
	if err != nil {
		e.errs = append(e.errs, err)
		return
	}
	*dst = l
}

func (o Overrides) apply(cfg *Config) error {
	if o.LogLevel != nil {
		l, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = l
	}
	if err := positiveFlag("--max-rows", o.MaxRows); err != nil {
		return err
	}
	if err := positiveFlag("--top-n", o.TopN); err != nil {
		return err
	}
	if o.PoolMaxConns != nil && *o.PoolMaxConns <= 0 {
		return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
	}
	if o.PoolMinConns != nil && *o.PoolMinConns < 0 {
		return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
	}

	override(&cfg.DatabaseURL, o.DatabaseURL)
	override(&cfg.MaxRows, o.MaxRows)
	override(&cfg.QueryTimeout, o.QueryTimeout)
	override(&cfg.PolicyFile, o.PolicyFile)
	override(&cfg.SearchPath, o.SearchPath)
	override(&cfg.TopN, o.TopN)
	override(&cfg.Transport, o.Transport)
	override(&cfg.HTTPAddr, o.HTTPAddr)
	override(&cfg.HTTPBearerToken, o.HTTPBearerToken)
	override(&cfg.PoolMaxConns, o.PoolMaxConns)
	override(&cfg.PoolMinConns, o.PoolMinConns)
	override(&cfg.PoolMaxConnLifetime, o.PoolMaxConnLifetime)

	cfg.DryRun = o.DryRun
	cfg.ExplainOnly = o.ExplainOnly
	cfg.AuditLog = o.AuditLog
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled
	return nil
}

func override[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func positiveFlag(name string, v *int) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("invalid %s value: must be a positive integer", name)
	}
	return nil
}

// validate resolves the driver and checks settings that depend on each other.
func (cfg *Config) validate() error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required (set via env var or --database-url flag)")
	}

	driver, err := driverFor(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	cfg.Driver = driver

	if driver == DriverSQLServer {
		switch {
		case cfg.SearchPath != "":
			return fmt.Errorf("SEARCH_PATH is only supported for postgres connections")
		case cfg.ExplainOnly:
			return fmt.Errorf("--explain-only is only supported for postgres connections")
		}
	}

	switch cfg.Transport {
	case "stdio":
	case "http":
		if cfg.HTTPBearerToken == "" {
			return fmt.Errorf("HTTP_BEARER_TOKEN is required when transport is \"http\" (set via env var or --http-bearer-token flag)")
		}
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be \"stdio\" or \"http\"", cfg.Transport)
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}
	return nil
}

// driverFor maps the DATABASE_URL scheme to a driver. A bare libpq
// keyword/value string ("host=... dbname=...") is treated as postgres.
func driverFor(dsn string) (string, error) {
	scheme, _, ok := strings.Cut(dsn, "://")
	if !ok {
		return DriverPostgres, nil
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return DriverPostgres, nil
	case "sqlserver", "mssql":
		return DriverSQLServer, nil
	}
	return "", fmt.Errorf("unsupported DATABASE_URL scheme %q: use postgres:// or sqlserver://", scheme)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	var l slog.Level
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "warning" {
		v = "warn"
	}
	if err := l.UnmarshalText([]byte(v)); err != nil || strings.ContainsAny(v, "+-") {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
	return l, nil
}
