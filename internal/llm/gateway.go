package llm

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/cbwinslow/CloudCommerce/internal/market"
)

// AnalysisResult contains the structured item analysis for one submission.
// Exactly one exists per submission that reached generation.
type AnalysisResult struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Condition         string          `json:"condition"`
	Damage            string          `json:"damage"`
	EstimatedAge      string          `json:"estimatedAge"`
	EstimatedPriceUSD decimal.Decimal `json:"estimatedPriceUsd"`
	Confidence        float64         `json:"confidence"`
}

// ListingDraft is a per-marketplace listing generated from an analysis.
type ListingDraft struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Condition   string          `json:"condition"`
}

// Hints are optional user-provided fields passed through to analysis.
type Hints struct {
	Category  string
	Condition string
}

// Usage contains token usage and cost information for one model call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

var (
	// ErrAnalysisTimeout reports that the vision call exceeded its budget.
	ErrAnalysisTimeout = errors.New("analysis timed out")
	// ErrAnalysisInvalidResponse reports model output that does not match the
	// expected schema, including dereference failures on expired image URIs.
	ErrAnalysisInvalidResponse = errors.New("analysis response invalid")
	// ErrAnalysisUpstream reports a failure in the model service itself.
	ErrAnalysisUpstream = errors.New("analysis upstream error")
	// ErrListingGeneration reports that draft generation failed for any
	// target marketplace. Generation is all-or-nothing.
	ErrListingGeneration = errors.New("listing generation failed")
)

// Gateway is the vision/listing model boundary. Images are always passed as
// URIs into externally-managed transient storage, never as embedded binary.
type Gateway interface {
	Analyze(ctx context.Context, imageURIs []string, summary string, hints Hints) (*AnalysisResult, error)
	Generate(ctx context.Context, analysis *AnalysisResult, aggregate *decimal.Decimal, marketplaces []market.Marketplace) (map[market.Marketplace]ListingDraft, error)
}
