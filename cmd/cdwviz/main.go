package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/choibumgyu/HYU-CDW/internal/adapter/mcp"
	"github.com/choibumgyu/HYU-CDW/internal/adapter/mssql"
	"github.com/choibumgyu/HYU-CDW/internal/adapter/policy"
	"github.com/choibumgyu/HYU-CDW/internal/adapter/postgres"
	"github.com/choibumgyu/HYU-CDW/internal/audit"
	"github.com/choibumgyu/HYU-CDW/internal/config"
	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/port"
	"github.com/choibumgyu/HYU-CDW/internal/core/service"
	"github.com/choibumgyu/HYU-CDW/internal/telemetry"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	overrides, err := parseFlags(args)
	if err != nil {
		return err
	}
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting cdwviz",
		slog.String("version", version),
		slog.String("db.system", cfg.Driver),
		slog.String("database_url", redactDSN(cfg.DatabaseURL)),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.Bool("read_only", cfg.ReadOnly),
		slog.Int("max_rows", cfg.MaxRows),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.String("transport", cfg.Transport),
		slog.Bool("explain_only", cfg.ExplainOnly),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Telemetry
	tracer := telemetry.NoopTracer()
	inst := telemetry.NoopInstruments()
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, telemetry.Service{
			Name:     "cdwviz",
			Version:  version,
			DBSystem: dbSystem(cfg.Driver),
		})
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.String("error.message", err.Error()))
			}
		}()
		tracer = provider.Tracer()
		inst = telemetry.NewInstruments()
		logger.Info("opentelemetry enabled")
	}

	// Policy (optional).
	var pol *policy.Policy
	if cfg.PolicyFile != "" {
		pol, err = policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
		logger.Info("policy loaded", slog.String("file", cfg.PolicyFile))
	}
	rules, err := pol.ExtendRules(domain.DefaultRules())
	if err != nil {
		return fmt.Errorf("applying policy rules: %w", err)
	}
	names := pol.Names()

	// Adapters
	wh, closeDB, err := openWarehouse(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	executor := wh.executor
	if cfg.ExplainOnly {
		executor = postgres.NewExplainOnlyExecutor(executor)
	}

	var auditor port.QueryAuditor = port.NoopAuditor{}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return err
		}
		defer func() { _ = fa.Close() }()
		auditor = fa
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	// Domain
	validator := domain.NewPgQueryValidator(domain.WithAllowedTables(cfg.AllowedTables...))

	// Services
	var masks map[string]domain.MaskType
	if pol != nil {
		masks = policy.MaskSpec(pol.Context)
	}
	analysis := service.NewAnalysisService(domain.NewEngine(rules),
		domain.InterpretOptions{TopN: cfg.TopN, DisplayNames: names}, logger, tracer, inst)

	svc := mcp.Services{
		Query: service.NewQueryService(validator, executor, analysis, auditor, logger, masks, tracer, inst).
			WithDBSystem(dbSystem(cfg.Driver)),
		Analysis: analysis,
	}
	if wh.explorer != nil {
		var explorer port.SchemaExplorer = wh.explorer
		if pol != nil {
			explorer = policy.NewPolicyExplorer(explorer, pol)
		}
		svc.Catalog = service.NewCatalogService(explorer, rules, names)
	}
	if wh.sampler != nil && !cfg.ExplainOnly {
		var sampler port.TableSampler = wh.sampler
		if pol != nil {
			sampler = policy.NewMaskingSampler(sampler, pol)
		}
		svc.Profiler = service.NewProfilerService(sampler, analysis, cfg.ProfileSampleRows)
	}

	mcpServer := mcp.NewServer(version, svc, logger, tracer, inst)

	if cfg.DryRun {
		logger.Info("dry run: configuration, policy and database connection are valid",
			slog.Bool("catalog", svc.Catalog != nil),
			slog.Bool("profiler", svc.Profiler != nil),
			slog.Int("allowed_tables", len(cfg.AllowedTables)),
		)
		return nil
	}

	switch cfg.Transport {
	case "http":
		err = serveHTTP(ctx, mcpServer, cfg, logger)
	default:
		err = serveStdio(ctx, mcpServer, logger)
	}
	if err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

type warehouse struct {
	executor port.QueryExecutor
	explorer port.SchemaExplorer // nil when the driver has no catalog support
	sampler  port.TableSampler
}

// openWarehouse connects to the warehouse and builds the driver's adapters.
// The returned func releases the connection pool.
func openWarehouse(ctx context.Context, cfg *config.Config, logger *slog.Logger) (warehouse, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLServer:
		db, err := mssql.Open(ctx, cfg.DatabaseURL, int(cfg.PoolMaxConns), cfg.PoolMaxConnLifetime)
		if err != nil {
			return warehouse{}, nil, fmt.Errorf("connecting to database: %w", err)
		}
		logger.Info("database connected", slog.String("db.system", "mssql"))
		return warehouse{
			executor: mssql.NewExecutor(db, cfg.MaxRows, cfg.QueryTimeout),
		}, func() { _ = db.Close() }, nil

	default:
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			DatabaseURL:     cfg.DatabaseURL,
			SearchPath:      cfg.SearchPath,
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return warehouse{}, nil, fmt.Errorf("connecting to database: %w", err)
		}
		logger.Info("database pool connected",
			slog.String("db.system", "postgresql"),
			slog.String("search_path", cfg.SearchPath),
		)
		return warehouse{
			executor: postgres.NewExecutor(pool, cfg.ReadOnly, cfg.MaxRows, cfg.QueryTimeout),
			explorer: postgres.NewExplorer(pool, cfg.Schemas),
			sampler:  postgres.NewSampler(pool, cfg.Schemas),
		}, pool.Close, nil
	}
}

func dbSystem(driver string) string {
	if driver == config.DriverSQLServer {
		return "mssql"
	}
	return "postgresql"
}

func serveStdio(ctx context.Context, s *mcpserver.MCPServer, logger *slog.Logger) error {
	stdioServer := mcpserver.NewStdioServer(s)

	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

func serveHTTP(ctx context.Context, s *mcpserver.MCPServer, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newHTTPHandler(mcpserver.NewStreamableHTTPServer(s, mcpserver.WithStateLess(true)), cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over http", slog.String("addr", cfg.HTTPAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// parseFlags maps command-line flags onto config overrides. Flags that are
// not given stay nil so environment variables keep their value.
func parseFlags(args []string) (config.Overrides, error) {
	var o config.Overrides
	fs := flag.NewFlagSet("cdwviz", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	databaseURL := fs.String("database-url", "", "warehouse connection string (postgres:// or sqlserver://)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	maxRows := fs.Int("max-rows", 0, "maximum rows returned per query")
	queryTimeout := fs.Duration("query-timeout", 0, "per-query timeout")
	policyFile := fs.String("policy-file", "", "policy YAML with rules, display names and masks")
	searchPath := fs.String("search-path", "", "postgres search_path for unqualified table names")
	topN := fs.Int("top-n", 0, "entries in the Top-N split")
	transport := fs.String("transport", "", "stdio or http")
	httpAddr := fs.String("http-addr", "", "listen address for the http transport")
	httpToken := fs.String("http-bearer-token", "", "bearer token required by the http transport")
	poolMaxConns := fs.Int("pool-max-conns", 0, "maximum pool connections")
	poolMinConns := fs.Int("pool-min-conns", 0, "minimum pool connections")
	poolLifetime := fs.Duration("pool-max-conn-lifetime", 0, "maximum connection lifetime")

	fs.BoolVar(&o.OTelEnabled, "otel", false, "enable OpenTelemetry tracing and metrics")
	fs.BoolVar(&o.DryRun, "dry-run", false, "validate configuration and connectivity, then exit")
	fs.BoolVar(&o.ExplainOnly, "explain-only", false, "return query plans instead of rows")
	fs.StringVar(&o.AuditLog, "audit-log", "", "path to an NDJSON audit log")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, fmt.Errorf("parsing flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "database-url":
			o.DatabaseURL = databaseURL
		case "log-level":
			o.LogLevel = logLevel
		case "max-rows":
			o.MaxRows = maxRows
		case "query-timeout":
			o.QueryTimeout = queryTimeout
		case "policy-file":
			o.PolicyFile = policyFile
		case "search-path":
			o.SearchPath = searchPath
		case "top-n":
			o.TopN = topN
		case "transport":
			o.Transport = transport
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "http-bearer-token":
			o.HTTPBearerToken = httpToken
		case "pool-max-conns":
			n := int32(*poolMaxConns)
			o.PoolMaxConns = &n
		case "pool-min-conns":
			n := int32(*poolMinConns)
			o.PoolMinConns = &n
		case "pool-max-conn-lifetime":
			o.PoolMaxConnLifetime = poolLifetime
		}
	})

	return o, nil
}

// redactDSN hides the password of a URL-form connection string.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// newHTTPHandler mounts the MCP endpoint behind bearer auth next to an
// unauthenticated health check.
func newHTTPHandler(mcpHandler http.Handler, cfg *config.Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", bearerAuthMiddleware(mcpHandler, cfg.HTTPBearerToken))
	mux.Handle("GET /health", healthHandler(dbSystem(cfg.Driver)))
	return recoveryMiddleware(mux, logger)
}

func healthHandler(system string) http.HandlerFunc {
	body := map[string]string{"status": "ok", "version": version, "db_system": system}
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

func recoveryMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic in http handler",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func bearerAuthMiddleware(next http.Handler, token string) http.Handler {
	want := []byte("Bearer " + token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("Authorization")
		if !strings.HasPrefix(got, "Bearer ") || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="cdwviz"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
