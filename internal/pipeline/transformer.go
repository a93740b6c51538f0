package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/raster"
)

// Transformer applies one edit step to a decoded source.
type Transformer interface {
	Transform(ctx context.Context, src *raster.Buffer, step domain.EditStep) (out *raster.Buffer, stages []string, err error)
}

type editTransformer struct {
	orchestrator Orchestrator
}

func (t editTransformer) Transform(ctx context.Context, src *raster.Buffer, step domain.EditStep) (*raster.Buffer, []string, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}

	switch strings.ToLower(strings.TrimSpace(step.Action)) {
	case domain.ActionProcess:
		if step.Adjust == nil {
			return nil, nil, fmt.Errorf("%w: process step requires adjust", ErrInvalidStepAction)
		}
		return t.orchestrator.RunAdjustAndFilter(src, *step.Adjust), AdjustStages(*step.Adjust), nil
	case domain.ActionTransform:
		if step.Transform == nil {
			return nil, nil, fmt.Errorf("%w: transform step requires transform", ErrInvalidStepAction)
		}
		out, err := t.orchestrator.RunTransform(src, *step.Transform)
		if err != nil {
			return nil, nil, err
		}
		return out, TransformStages(*step.Transform), nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidStepAction, step.Action)
	}
}
