package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-reconciler/internal/extraction"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/pipeline"
)

// Processor extracts candidates from a job's input and reconciles them
// against the ledger. Nothing is committed.
type Processor struct {
	Extractor      extraction.Extractor
	Engine         *pipeline.Engine
	ChequeKeywords []string
}

// Handle implements JobHandler.
func (p *Processor) Handle(ctx context.Context, job *ExtractJob) (*pipeline.BatchResult, error) {
	log := logger.FromContext(ctx)

	base := job.Context.BaseCurrency
	if base == "" {
		base = p.Engine.BaseCurrency()
	}
	ec, err := extraction.LoadContext(ctx, p.Engine.Ledger(), base, p.ChequeKeywords)
	if err != nil {
		return nil, fmt.Errorf("Handle: %w", err)
	}

	candidates, err := p.Extractor.Extract(ctx, job.Input, ec)
	if err != nil {
		return nil, fmt.Errorf("Handle: extract: %w", err)
	}
	log.Debug().Int("extracted", len(candidates)).Msg("candidates extracted")

	res, err := p.Engine.ReconcileBatch(ctx, candidates, job.Context)
	if err != nil {
		return nil, fmt.Errorf("Handle: %w", err)
	}
	return res, nil
}

var _ JobHandler = (&Processor{}).Handle
