package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cbwinslow/CloudCommerce/internal/market"
)

// extractJSONObject extracts a JSON object from text that may contain
// markdown code blocks or other formatting.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

type rawAnalysis struct {
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	Condition         string  `json:"condition"`
	Damage            string  `json:"damage"`
	EstimatedAge      string  `json:"estimated_age"`
	EstimatedPriceUSD float64 `json:"estimated_price_usd"`
	Confidence        float64 `json:"confidence"`
}

// parseAnalysis validates loosely-typed model output into an AnalysisResult.
// Any shape problem becomes ErrAnalysisInvalidResponse; untyped data is
// never passed downstream.
func parseAnalysis(text string) (*AnalysisResult, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisInvalidResponse, err)
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v (response: %s)", ErrAnalysisInvalidResponse, err, jsonStr)
	}

	if strings.TrimSpace(raw.Name) == "" {
		return nil, fmt.Errorf("%w: missing item name", ErrAnalysisInvalidResponse)
	}
	if strings.TrimSpace(raw.Description) == "" {
		return nil, fmt.Errorf("%w: missing description", ErrAnalysisInvalidResponse)
	}
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", ErrAnalysisInvalidResponse, raw.Confidence)
	}
	if raw.EstimatedPriceUSD < 0 {
		return nil, fmt.Errorf("%w: negative price estimate", ErrAnalysisInvalidResponse)
	}

	return &AnalysisResult{
		Name:              raw.Name,
		Description:       raw.Description,
		Condition:         raw.Condition,
		Damage:            raw.Damage,
		EstimatedAge:      raw.EstimatedAge,
		EstimatedPriceUSD: decimal.NewFromFloat(raw.EstimatedPriceUSD).Round(2),
		Confidence:        raw.Confidence,
	}, nil
}

type rawDraft struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	PriceUSD    float64 `json:"price_usd"`
	Condition   string  `json:"condition"`
}

type rawListings struct {
	Listings map[string]rawDraft `json:"listings"`
}

// parseDrafts validates the generation response. Every requested marketplace
// must be present with a non-empty title and description; otherwise the
// whole call fails. Drafts without a positive price fall back to basePrice.
func parseDrafts(text string, marketplaces []market.Marketplace, basePrice decimal.Decimal) (map[market.Marketplace]ListingDraft, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListingGeneration, err)
	}

	var raw rawListings
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v (response: %s)", ErrListingGeneration, err, jsonStr)
	}

	drafts := make(map[market.Marketplace]ListingDraft, len(marketplaces))
	for _, m := range marketplaces {
		rd, ok := raw.Listings[string(m)]
		if !ok {
			return nil, fmt.Errorf("%w: no draft for %s", ErrListingGeneration, m)
		}
		if strings.TrimSpace(rd.Title) == "" {
			return nil, fmt.Errorf("%w: empty title for %s", ErrListingGeneration, m)
		}
		if strings.TrimSpace(rd.Description) == "" {
			return nil, fmt.Errorf("%w: empty description for %s", ErrListingGeneration, m)
		}

		price := decimal.NewFromFloat(rd.PriceUSD).Round(2)
		if !price.IsPositive() {
			price = basePrice
		}
		drafts[m] = ListingDraft{
			Title:       rd.Title,
			Description: rd.Description,
			Price:       price,
			Condition:   rd.Condition,
		}
	}

	return drafts, nil
}
