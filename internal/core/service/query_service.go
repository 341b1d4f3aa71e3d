package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/port"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// QueryResult is an executed query: masked rows plus their interpretation.
type QueryResult struct {
	QueryID   string           `json:"query_id"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated,omitempty"`
	Report    *domain.Report   `json:"report"`
}

// QueryService orchestrates SQL validation (domain), execution
// (infrastructure) and result interpretation.
type QueryService struct {
	validator port.QueryValidator
	executor  port.QueryExecutor
	analysis  *AnalysisService
	auditor   port.QueryAuditor
	logger    *slog.Logger
	masks     map[string]domain.MaskType // source column -> mask type (nil = policy masks off)
	tracer    trace.Tracer
	inst      port.Instrumentation
	dbSystem  string
}

func NewQueryService(validator port.QueryValidator, executor port.QueryExecutor, analysis *AnalysisService, auditor port.QueryAuditor, logger *slog.Logger, masks map[string]domain.MaskType, tracer trace.Tracer, inst port.Instrumentation) *QueryService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	if auditor == nil {
		auditor = port.NoopAuditor{}
	}
	if analysis == nil {
		analysis = NewAnalysisService(nil, domain.InterpretOptions{}, logger, tracer, inst)
	}
	return &QueryService{
		validator: validator,
		executor:  executor,
		analysis:  analysis,
		auditor:   auditor,
		logger:    logger,
		masks:     masks,
		tracer:    tracer,
		inst:      inst,
		dbSystem:  "postgresql",
	}
}

// WithDBSystem sets the db.system span attribute reported for this service.
func (s *QueryService) WithDBSystem(name string) *QueryService {
	s.dbSystem = name
	return s
}

// Execute validates the statement, runs it, masks identifying columns and
// interprets the masked rows.
func (s *QueryService) Execute(ctx context.Context, sql string) (*QueryResult, error) {
	queryID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "QueryService.Execute",
		trace.WithAttributes(
			attribute.String("db.system", s.dbSystem),
			attribute.String("db.operation.name", "query"),
			attribute.String("db.statement", sql),
			attribute.String("cdw.query.id", queryID),
		),
	)
	defer span.End()

	if err := s.validate(ctx, span, sql); err != nil {
		return nil, err
	}

	start := time.Now()
	rs, err := s.executor.Execute(ctx, sql)
	durationMS := time.Since(start).Milliseconds()
	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	entry := port.AuditEntry{
		QueryID:    queryID,
		Tool:       toolNameFromCtx(ctx),
		SQL:        sql,
		DurationMS: durationMS,
		Err:        err,
	}

	if err != nil {
		s.auditor.Record(ctx, entry)
		s.logger.ErrorContext(ctx, "query execution failed",
			slog.String("db.operation.name", "query"),
			slog.String("cdw.query.id", queryID),
			slog.String("error.message", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return nil, err
	}

	aliases := domain.BuildAliasMap(sql)
	domain.MaskRows(rs, domain.MergeMasks(
		domain.ResolveMasks(rs, aliases, s.masks),
		domain.SensitiveColumnMasks(rs, aliases, s.analysis.Rules()),
	))
	report := s.analysis.Interpret(ctx, rs, sql)

	entry.RowsReturned = rs.Len()
	entry.ColumnsSurfaced = len(report.Summaries)
	entry.ColumnsHidden = report.Hidden()
	s.auditor.Record(ctx, entry)

	s.inst.IncrementQueryCount(ctx)
	span.SetAttributes(
		attribute.Int("db.response.rows", rs.Len()),
		attribute.Bool("cdw.result.truncated", rs.Truncated),
	)
	if rs.Truncated {
		s.logger.InfoContext(ctx, "result truncated",
			slog.String("cdw.query.id", queryID),
			slog.Int("rows", rs.Len()),
		)
	}

	return &QueryResult{
		QueryID:   queryID,
		Columns:   rs.Columns,
		Rows:      rs.Maps(),
		Truncated: rs.Truncated,
		Report:    report,
	}, nil
}

// Explain returns the execution plan of sql. With analyze the statement is
// executed inside the executor's read-only transaction.
func (s *QueryService) Explain(ctx context.Context, sql string, analyze bool) (*domain.ResultSet, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Explain",
		trace.WithAttributes(
			attribute.String("db.system", s.dbSystem),
			attribute.String("db.operation.name", "explain"),
			attribute.String("db.statement", sql),
			attribute.Bool("db.explain.analyze", analyze),
		),
	)
	defer span.End()

	if err := s.validate(ctx, span, sql); err != nil {
		return nil, err
	}

	stmt := strings.TrimSpace(sql)
	if !strings.HasPrefix(strings.ToUpper(stmt), "EXPLAIN") {
		prefix := "EXPLAIN "
		if analyze {
			prefix = "EXPLAIN ANALYZE "
		}
		stmt = prefix + stmt
	}

	start := time.Now()
	rs, err := s.executor.Execute(ctx, stmt)
	durationMS := time.Since(start).Milliseconds()

	entry := port.AuditEntry{
		QueryID:    uuid.NewString(),
		Tool:       toolNameFromCtx(ctx),
		SQL:        stmt,
		DurationMS: durationMS,
		Err:        err,
	}
	if rs != nil {
		entry.RowsReturned = rs.Len()
	}
	s.auditor.Record(ctx, entry)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return nil, err
	}
	return rs, nil
}

func (s *QueryService) validate(ctx context.Context, span trace.Span, sql string) error {
	if err := s.validator.Validate(sql); err != nil {
		s.logger.WarnContext(ctx, "query validation rejected",
			slog.String("db.operation.name", "query"),
			slog.String("db.statement", sql),
			slog.String("error.type", "validation_error"),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return fmt.Errorf("validation: %w", err)
	}
	return nil
}
