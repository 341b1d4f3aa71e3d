package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/choibumgyu/HYU-CDW"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	QueryCount       metric.Int64Counter
	QueryDuration    metric.Float64Histogram
	QueryErrors      metric.Int64Counter
	ToolDuration     metric.Float64Histogram
	AnalysisDuration metric.Float64Histogram
	HiddenColumns    metric.Int64Counter
}

// NewInstruments creates metric instruments from the global MeterProvider.
func NewInstruments() *Instruments {
	return newInstrumentsFromMeter(otel.Meter(meterName))
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return newInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	queryCount, _ := meter.Int64Counter("cdwviz.query.count",
		metric.WithDescription("Total number of SQL queries executed"),
	)
	queryDuration, _ := meter.Float64Histogram("cdwviz.query.duration",
		metric.WithDescription("SQL query execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	queryErrors, _ := meter.Int64Counter("cdwviz.query.errors",
		metric.WithDescription("Total number of failed SQL queries"),
	)
	toolDuration, _ := meter.Float64Histogram("cdwviz.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	analysisDuration, _ := meter.Float64Histogram("cdwviz.analysis.duration",
		metric.WithDescription("Result-set interpretation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	hiddenColumns, _ := meter.Int64Counter("cdwviz.analysis.hidden_columns",
		metric.WithDescription("Result columns left out of summaries"),
	)

	return &Instruments{
		QueryCount:       queryCount,
		QueryDuration:    queryDuration,
		QueryErrors:      queryErrors,
		ToolDuration:     toolDuration,
		AnalysisDuration: analysisDuration,
		HiddenColumns:    hiddenColumns,
	}
}

func (i *Instruments) RecordQueryDuration(ctx context.Context, ms float64) {
	i.QueryDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementQueryCount(ctx context.Context) {
	i.QueryCount.Add(ctx, 1)
}

func (i *Instruments) IncrementQueryErrors(ctx context.Context) {
	i.QueryErrors.Add(ctx, 1)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}

func (i *Instruments) RecordAnalysisDuration(ctx context.Context, ms float64) {
	i.AnalysisDuration.Record(ctx, ms)
}

func (i *Instruments) AddHiddenColumns(ctx context.Context, n int) {
	if n > 0 {
		i.HiddenColumns.Add(ctx, int64(n))
	}
}
