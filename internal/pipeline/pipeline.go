// Package pipeline composes the reconciliation core into the operations
// exposed to the API and CLI: reconciling a batch of candidates, committing
// confirmed entries, discrepancy checks and obligation series management.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dvloznov/finance-reconciler/internal/logger"
)

var tracer = otel.Tracer("finance-reconciler/pipeline")

// PipelineStep represents a single step in the reconciliation pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *ReconcileState) error
}

// Pipeline orchestrates the execution of multiple steps in sequence.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{
		steps: steps,
	}
}

// Execute runs all pipeline steps in sequence, each inside its own span.
// If any step fails, execution stops and the error is returned.
func (p *Pipeline) Execute(ctx context.Context, state *ReconcileState) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		name := stepName(step)
		stepCtx, span := tracer.Start(ctx, name)
		span.SetAttributes(
			attribute.Int("pipeline.step", i+1),
			attribute.Int("pipeline.candidates", len(state.Candidates)),
		)

		err := step.Execute(stepCtx, state)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			log.Debug().Err(err).Int("step", i+1).Str("name", name).Msg("pipeline step failed")
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
		span.End()
		log.Debug().Int("step", i+1).Str("name", name).Int("candidates", len(state.Candidates)).Msg("pipeline step done")
	}
	return nil
}

func stepName(step PipelineStep) string {
	name := fmt.Sprintf("%T", step)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
