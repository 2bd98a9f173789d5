package pricing

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/cbwinslow/CloudCommerce/internal/scraper"
)

// PriceAggregate is a central-tendency statistic over valid comparable
// prices. A nil *PriceAggregate means no comparable qualified.
type PriceAggregate struct {
	Mean       decimal.Decimal
	SampleSize int
}

// Aggregate computes the arithmetic mean over comparables with a positive
// numeric price. Returns nil when none qualify.
func Aggregate(comparables []scraper.Comparable) *PriceAggregate {
	prices := lo.FilterMap(comparables, func(c scraper.Comparable, _ int) (decimal.Decimal, bool) {
		return c.Price, c.Price.IsPositive()
	})
	if len(prices) == 0 {
		return nil
	}

	sum := decimal.Zero
	for _, p := range prices {
		sum = sum.Add(p)
	}
	return &PriceAggregate{
		Mean:       sum.Div(decimal.NewFromInt(int64(len(prices)))),
		SampleSize: len(prices),
	}
}

// DetectArbitrage returns the comparables priced strictly below
// aggregate.Mean × threshold. Pure: no side effects, never fails. Returns an
// empty slice when the aggregate is absent or nothing qualifies.
func DetectArbitrage(comparables []scraper.Comparable, aggregate *PriceAggregate, threshold decimal.Decimal) []scraper.Comparable {
	if aggregate == nil {
		return nil
	}
	cutoff := aggregate.Mean.Mul(threshold)
	return lo.Filter(comparables, func(c scraper.Comparable, _ int) bool {
		return c.Price.IsPositive() && c.Price.LessThan(cutoff)
	})
}
