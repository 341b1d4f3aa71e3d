package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// AnalysisService runs the result interpreter with tracing and metrics.
type AnalysisService struct {
	engine *domain.Engine
	opts   domain.InterpretOptions
	logger *slog.Logger
	tracer trace.Tracer
	inst   port.Instrumentation
}

func NewAnalysisService(engine *domain.Engine, opts domain.InterpretOptions, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *AnalysisService {
	if engine == nil {
		engine = domain.NewEngine(nil)
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &AnalysisService{
		engine: engine,
		opts:   opts,
		logger: logger,
		tracer: tracer,
		inst:   inst,
	}
}

// Rules returns the rule set the engine evaluates.
func (s *AnalysisService) Rules() *domain.Rules { return s.engine.Rules() }

// Options returns the interpretation options applied to every result.
func (s *AnalysisService) Options() domain.InterpretOptions { return s.opts }

// Interpret classifies rs and selects its chart pairing. sql may be empty.
func (s *AnalysisService) Interpret(ctx context.Context, rs *domain.ResultSet, sql string) *domain.Report {
	return s.InterpretWith(ctx, rs, sql, s.opts)
}

// InterpretWith is Interpret with per-call options. Unset display names
// fall back to the service's dictionary.
func (s *AnalysisService) InterpretWith(ctx context.Context, rs *domain.ResultSet, sql string, opts domain.InterpretOptions) *domain.Report {
	if opts.DisplayNames == nil {
		opts.DisplayNames = s.opts.DisplayNames
	}

	_, span := s.tracer.Start(ctx, "AnalysisService.Interpret",
		trace.WithAttributes(attribute.Int("cdw.result.rows", rs.Len())),
	)
	defer span.End()

	start := time.Now()
	report := s.engine.Interpret(rs, sql, opts)
	s.inst.RecordAnalysisDuration(ctx, float64(time.Since(start).Microseconds())/1000)

	hidden := report.Hidden()
	s.inst.AddHiddenColumns(ctx, hidden)

	origin := "none"
	if report.ChartSpec != nil {
		origin = string(report.ChartSpec.Origin)
	}
	span.SetAttributes(
		attribute.Int("cdw.columns.surfaced", len(report.Summaries)),
		attribute.Int("cdw.columns.hidden", hidden),
		attribute.String("cdw.alias.method", string(report.AliasMethod)),
		attribute.String("cdw.chart.origin", origin),
	)

	s.logger.DebugContext(ctx, "result interpreted",
		slog.Int("rows", report.RowCount),
		slog.Int("columns.surfaced", len(report.Summaries)),
		slog.Int("columns.hidden", hidden),
		slog.String("alias.method", string(report.AliasMethod)),
		slog.String("chart.origin", origin),
	)

	return report
}
