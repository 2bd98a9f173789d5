package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/cbwinslow/CloudCommerce/internal/credit"
	"github.com/cbwinslow/CloudCommerce/internal/export"
	"github.com/cbwinslow/CloudCommerce/internal/llm"
	"github.com/cbwinslow/CloudCommerce/internal/market"
	"github.com/cbwinslow/CloudCommerce/internal/metrics"
	"github.com/cbwinslow/CloudCommerce/internal/pricing"
	"github.com/cbwinslow/CloudCommerce/internal/scraper"
)

// Researcher gathers price comparables for a query. The pipeline treats a
// complete research failure as a degradation, not an error.
type Researcher interface {
	Research(ctx context.Context, query string) ([]scraper.Comparable, map[string]scraper.SiteStatus, error)
}

// Options configure one orchestrator instance.
type Options struct {
	Marketplaces       []market.Marketplace
	ArbitrageThreshold decimal.Decimal
	// Budget bounds the wall-clock time of one submission. Zero means no
	// pipeline-wide limit.
	Budget time.Duration
}

// Result is the successful pipeline output.
type Result struct {
	Submission       *Submission
	Analysis         *llm.AnalysisResult
	Listings         map[market.Marketplace]llm.ListingDraft
	Aggregate        *pricing.PriceAggregate
	RecommendedPrice decimal.Decimal
	Arbitrage        []scraper.Comparable
	SiteStatuses     map[string]scraper.SiteStatus
	CSV              []byte
	// Degraded is set when research produced nothing and the listings were
	// priced from analysis alone.
	Degraded bool
}

// Orchestrator runs the submission state machine: credit gate, concurrent
// research and vision analysis, listing generation, arbitrage detection,
// CSV export, and the one-shot credit debit.
type Orchestrator struct {
	ledger     credit.Ledger
	researcher Researcher
	model      llm.Gateway
	opts       Options
	metrics    *metrics.Metrics
}

func NewOrchestrator(ledger credit.Ledger, researcher Researcher, model llm.Gateway, opts Options, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		ledger:     ledger,
		researcher: researcher,
		model:      model,
		opts:       opts,
		metrics:    m,
	}
}

// Process runs one submission end to end.
//
// The debit is attempted only after generation and export succeed, and a
// debit failure does not block returning the already-generated listings:
// billing is eventually consistent with the response by design of the
// upstream ledger, which has no rollback primitive.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*Result, error) {
	sub := NewSubmission(req)
	log.Info().
		Str("submissionId", sub.ID).
		Str("ownerId", sub.OwnerID).
		Int("images", len(sub.ImageURIs)).
		Msg("submission received")

	// Credit gate. Denial is terminal: no scraping, no analysis, no debit.
	decision, err := o.ledger.CheckAndReserve(ctx, sub.OwnerID)
	if err != nil {
		o.finish(sub, StatusFailed)
		return nil, stageErr(StageCreditDenied, fmt.Errorf("credit check: %w", err))
	}
	if !decision.Allowed {
		o.finish(sub, StatusCreditDenied)
		return nil, stageErr(StageCreditDenied, errors.New("insufficient credit"))
	}
	o.transition(sub, StatusCreditChecked)

	runCtx := ctx
	if o.opts.Budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.opts.Budget)
		defer cancel()
	}

	// Research and vision analysis run concurrently and independently. The
	// research branch absorbs its own failures; a vision failure cancels the
	// group and abandons any outstanding research requests.
	o.transition(sub, StatusResearching)
	var (
		comparables  []scraper.Comparable
		siteStatuses map[string]scraper.SiteStatus
		researchErr  error
		analysis     *llm.AnalysisResult
	)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		comparables, siteStatuses, researchErr = o.researcher.Research(gctx, sub.Summary)
		return nil
	})
	g.Go(func() error {
		var visionErr error
		analysis, visionErr = o.model.Analyze(gctx, sub.ImageURIs, sub.Summary, llm.Hints{
			Category:  sub.Category,
			Condition: sub.Condition,
		})
		return visionErr
	})
	if err := g.Wait(); err != nil {
		o.finish(sub, StatusFailed)
		return nil, stageErr(StageAnalysisFailed, err)
	}

	for site, status := range siteStatuses {
		o.metrics.SiteScraped(site, status.OK)
	}
	degraded := false
	if researchErr != nil {
		if !errors.Is(researchErr, scraper.ErrAllSitesFailed) {
			o.finish(sub, StatusFailed)
			return nil, stageErr(StageAnalysisFailed, fmt.Errorf("research: %w", researchErr))
		}
		// Listings are still possible without comparables; proceed with the
		// aggregate absent and annotate the degradation.
		degraded = true
		sub.PartialFailure = true
		log.Warn().Str("submissionId", sub.ID).Msg("all sites failed, proceeding without price aggregate")
	}

	o.transition(sub, StatusGenerating)
	aggregate := pricing.Aggregate(comparables)
	var central *decimal.Decimal
	if aggregate != nil {
		central = &aggregate.Mean
	}
	drafts, err := o.model.Generate(runCtx, analysis, central, o.opts.Marketplaces)
	if err != nil {
		o.finish(sub, StatusFailed)
		return nil, stageErr(StageGenerationFailed, err)
	}

	o.transition(sub, StatusExporting)
	arbitrage := pricing.DetectArbitrage(comparables, aggregate, o.opts.ArbitrageThreshold)
	csvData, err := export.CSV(drafts)
	if err != nil {
		o.finish(sub, StatusFailed)
		return nil, stageErr(StageExportFailed, err)
	}

	o.debit(ctx, sub)
	o.finish(sub, StatusCompleted)

	return &Result{
		Submission:       sub,
		Analysis:         analysis,
		Listings:         drafts,
		Aggregate:        aggregate,
		RecommendedPrice: llm.BasePrice(analysis, central),
		Arbitrage:        arbitrage,
		SiteStatuses:     siteStatuses,
		CSV:              csvData,
		Degraded:         degraded,
	}, nil
}

// debit commits the one-shot credit debit for a completed run. The
// submission id is the idempotency key; an AlreadyDebited hit is a no-op.
func (o *Orchestrator) debit(ctx context.Context, sub *Submission) {
	err := o.ledger.Debit(ctx, sub.OwnerID, sub.ID)
	switch {
	case err == nil:
	case errors.Is(err, credit.ErrAlreadyDebited):
		log.Debug().Str("submissionId", sub.ID).Msg("debit skipped, already recorded")
	default:
		o.metrics.DebitFailed()
		log.Error().
			Err(err).
			Str("submissionId", sub.ID).
			Str("ownerId", sub.OwnerID).
			Msg("credit debit failed after successful run")
	}
}

func (o *Orchestrator) transition(sub *Submission, next Status) {
	log.Debug().
		Str("submissionId", sub.ID).
		Str("from", string(sub.Status)).
		Str("to", string(next)).
		Msg("submission transition")
	sub.Status = next
}

func (o *Orchestrator) finish(sub *Submission, terminal Status) {
	o.transition(sub, terminal)
	o.metrics.SubmissionFinished(string(terminal))
	log.Info().
		Str("submissionId", sub.ID).
		Str("status", string(terminal)).
		Bool("partialFailure", sub.PartialFailure).
		Msg("submission finished")
}
