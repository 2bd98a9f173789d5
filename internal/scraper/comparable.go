package scraper

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Comparable is one scraped market listing used as pricing evidence.
// Comparables are ephemeral and scoped to a single pipeline run.
type Comparable struct {
	Site      string          `json:"site"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

var priceRe = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)

// ParsePrice extracts a positive decimal price from a raw price string like
// "$1,299.99" or "USD 45". Returns false for strings with no parseable
// positive numeric value; such comparables are dropped, not errors.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	match := priceRe.FindString(raw)
	if match == "" {
		return decimal.Zero, false
	}
	match = strings.ReplaceAll(match, ",", "")
	price, err := decimal.NewFromString(match)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, false
	}
	return price.Round(2), true
}
