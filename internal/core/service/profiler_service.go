package service

import (
	"context"
	"fmt"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/port"
)

// ProfilerService interprets a sample of a table as if it were a query result.
type ProfilerService struct {
	sampler  port.TableSampler
	analysis *AnalysisService
	limit    int
}

// NewProfilerService reads up to sampleRows rows per profile (500 when unset).
// Policy masks belong on the sampler; sensitive identifiers are always redacted here.
func NewProfilerService(sampler port.TableSampler, analysis *AnalysisService, sampleRows int) *ProfilerService {
	if sampleRows <= 0 {
		sampleRows = 500
	}
	return &ProfilerService{sampler: sampler, analysis: analysis, limit: sampleRows}
}

func (s *ProfilerService) ProfileTable(ctx context.Context, schema, tableName string) (*port.TableProfile, error) {
	sample, err := s.sampler.SampleTable(ctx, schema, tableName, s.limit)
	if err != nil {
		return nil, fmt.Errorf("sampling table: %w", err)
	}

	rs := sample.Rows
	domain.MaskRows(rs, domain.SensitiveColumnMasks(rs, nil, s.analysis.Rules()))

	return &port.TableProfile{
		Schema:       sample.Schema,
		Name:         sample.Name,
		RowEstimate:  sample.RowEstimate,
		SampledRows:  rs.Len(),
		SampleMethod: sample.Method,
		Report:       s.analysis.Interpret(ctx, rs, ""),
	}, nil
}
