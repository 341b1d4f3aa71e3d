package policy

import (
	"context"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/port"
)

// MaskingSampler decorates a TableSampler so sampled rows carry the masks
// the policy declares for that table.
type MaskingSampler struct {
	inner  port.TableSampler
	policy *Policy
}

func NewMaskingSampler(inner port.TableSampler, pol *Policy) *MaskingSampler {
	return &MaskingSampler{inner: inner, policy: pol}
}

func (s *MaskingSampler) SampleTable(ctx context.Context, schema, tableName string, limit int) (*port.TableSample, error) {
	sample, err := s.inner.SampleTable(ctx, schema, tableName, limit)
	if err != nil {
		return nil, err
	}
	domain.MaskRows(sample.Rows, TableMasks(s.policy.Context, sample.Schema, sample.Name))
	return sample, nil
}
