package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	RecordQueryDuration(ctx context.Context, ms float64)
	IncrementQueryCount(ctx context.Context)
	IncrementQueryErrors(ctx context.Context)
	RecordToolDuration(ctx context.Context, ms float64)
	RecordAnalysisDuration(ctx context.Context, ms float64)
	AddHiddenColumns(ctx context.Context, n int)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordQueryDuration(context.Context, float64)    {}
func (NoopInstrumentation) IncrementQueryCount(context.Context)             {}
func (NoopInstrumentation) IncrementQueryErrors(context.Context)            {}
func (NoopInstrumentation) RecordToolDuration(context.Context, float64)     {}
func (NoopInstrumentation) RecordAnalysisDuration(context.Context, float64) {}
func (NoopInstrumentation) AddHiddenColumns(context.Context, int)           {}
