package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/cbwinslow/CloudCommerce/internal/market"
)

const (
	defaultVisionModel  = "gemini-3-flash-preview"
	defaultListingModel = "gemini-2.5-flash-lite"
)

// Gemini pricing (per million tokens)
const (
	visionInputPricePerMillion   = 0.50
	visionOutputPricePerMillion  = 3.00
	listingInputPricePerMillion  = 0.075
	listingOutputPricePerMillion = 0.30
)

var analysisPrompt = dedent.Dedent(`
	Analyze the item shown in the attached images for selling on secondhand marketplaces.

	Seller's summary: %s
	%s
	Respond in JSON format with these fields:
	- name: The item's name including brand and model if identifiable
	- description: 2-3 sentences describing the item and notable features
	- condition: Condition assessment (new, like new, good, fair, poor)
	- damage: Any visible damage or wear (empty string if none)
	- estimated_age: Estimated age of the item, e.g. "2-3 years" (empty string if unknown)
	- estimated_price_usd: A fair secondhand asking price in US dollars as a number
	- confidence: Your confidence in this analysis from 0.0 to 1.0

	Example response:
	{"name": "Apple iPhone 12 64GB Red", "description": "Red iPhone 12 in good working order. Screen is free of cracks.", "condition": "good", "damage": "light scuffs on frame", "estimated_age": "3-4 years", "estimated_price_usd": 180, "confidence": 0.85}

	Respond ONLY with the JSON object, no markdown or other text.`)

var listingPrompt = dedent.Dedent(`
	Generate marketplace listings for this item.

	Item analysis:
	%s

	Recommended asking price: $%s USD
	Target marketplaces: %s

	Write a listing for EVERY target marketplace, adapted to each platform's
	style (eBay buyers expect specifics, Facebook Marketplace favors a casual
	tone, Amazon listings are factual). Every listing must have a non-empty
	title and description.

	Respond in JSON format:
	{"listings": {"<marketplace>": {"title": "...", "description": "...", "price_usd": 123.45, "condition": "good"}}}

	Respond ONLY with the JSON object, no markdown or other text.`)

// GeminiGateway implements Gateway using Google's Gemini API: a vision model
// for analysis and a cheaper text model for listing generation.
type GeminiGateway struct {
	client       *genai.Client
	visionModel  string
	listingModel string
}

// NewGeminiGateway creates a Gemini-backed model gateway.
func NewGeminiGateway(ctx context.Context, apiKey string) (*GeminiGateway, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGateway{
		client:       client,
		visionModel:  defaultVisionModel,
		listingModel: defaultListingModel,
	}, nil
}

// Analyze sends the image URIs and summary to the vision model and validates
// the response into an AnalysisResult at the boundary.
func (g *GeminiGateway) Analyze(ctx context.Context, imageURIs []string, summary string, hints Hints) (*AnalysisResult, error) {
	if len(imageURIs) == 0 {
		return nil, fmt.Errorf("%w: no images provided", ErrAnalysisInvalidResponse)
	}

	hintLines := ""
	if hints.Category != "" {
		hintLines += fmt.Sprintf("Seller's category hint: %s\n", hints.Category)
	}
	if hints.Condition != "" {
		hintLines += fmt.Sprintf("Seller's condition hint: %s\n", hints.Condition)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(fmt.Sprintf(analysisPrompt, summary, hintLines)),
	}
	for _, uri := range imageURIs {
		parts = append(parts, genai.NewPartFromURI(uri, guessMIMEType(uri)))
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.visionModel, contents, nil)
	if err != nil {
		return nil, classifyAnalysisError(err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrAnalysisInvalidResponse)
	}

	analysis, err := parseAnalysis(result.Text())
	if err != nil {
		return nil, err
	}

	usage := usageFrom(result, visionInputPricePerMillion, visionOutputPricePerMillion)
	log.Info().
		Str("model", g.visionModel).
		Int("imageCount", len(imageURIs)).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("vision llm call")

	return analysis, nil
}

// Generate produces one draft per target marketplace, all-or-nothing. The
// draft price defaults to the aggregate's central value when present, else
// to the analysis-derived estimate.
func (g *GeminiGateway) Generate(ctx context.Context, analysis *AnalysisResult, aggregate *decimal.Decimal, marketplaces []market.Marketplace) (map[market.Marketplace]ListingDraft, error) {
	if analysis == nil {
		return nil, fmt.Errorf("%w: nil analysis", ErrListingGeneration)
	}
	if len(marketplaces) == 0 {
		return nil, fmt.Errorf("%w: no target marketplaces", ErrListingGeneration)
	}

	basePrice := BasePrice(analysis, aggregate)

	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListingGeneration, err)
	}
	names := make([]string, len(marketplaces))
	for i, m := range marketplaces {
		names[i] = string(m)
	}

	prompt := fmt.Sprintf(listingPrompt, analysisJSON, basePrice.StringFixed(2), strings.Join(names, ", "))
	result, err := g.client.Models.GenerateContent(ctx, g.listingModel, []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt)}, genai.RoleUser),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListingGeneration, err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrListingGeneration)
	}

	drafts, err := parseDrafts(result.Text(), marketplaces, basePrice)
	if err != nil {
		return nil, err
	}

	usage := usageFrom(result, listingInputPricePerMillion, listingOutputPricePerMillion)
	log.Info().
		Str("model", g.listingModel).
		Int("marketplaces", len(drafts)).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("listing llm call")

	return drafts, nil
}

// BasePrice picks the default draft price: the aggregate's central value
// when present, else the analysis-derived estimate. Always 2-decimal USD.
func BasePrice(analysis *AnalysisResult, aggregate *decimal.Decimal) decimal.Decimal {
	if aggregate != nil {
		return aggregate.Round(2)
	}
	return analysis.EstimatedPriceUSD.Round(2)
}

// classifyAnalysisError maps transport errors into the analysis taxonomy. A
// 4xx from the model service means it rejected our input, most commonly an
// image URI that expired before dereference; that counts as an invalid
// response rather than an upstream failure.
func classifyAnalysisError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrAnalysisTimeout, err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 {
		return fmt.Errorf("%w: %v", ErrAnalysisInvalidResponse, err)
	}
	return fmt.Errorf("%w: %v", ErrAnalysisUpstream, err)
}

func usageFrom(result *genai.GenerateContentResponse, inputPrice, outputPrice float64) Usage {
	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateGeminiCost(usage.InputTokens, usage.OutputTokens, inputPrice, outputPrice)
	}
	return usage
}

func calculateGeminiCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}

func guessMIMEType(uri string) string {
	lower := strings.ToLower(uri)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".heic"):
		return "image/heic"
	default:
		return "image/jpeg"
	}
}
