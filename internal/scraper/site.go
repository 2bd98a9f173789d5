package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// UserAgent identifies the scraper to marketplace sites. A distinct,
// self-identifying label is mandatory; browser impersonation is not.
const UserAgent = "CloudCommerceBot/1.0 (+https://github.com/cbwinslow/CloudCommerce)"

const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultRequestDelay   = time.Second
	DefaultMaxResults     = 5
	pageSize              = 25
	maxPages              = 10
)

// Site fetches price comparables from one marketplace. Implementations must
// be internally sequential; the batch runs sites concurrently.
type Site interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Comparable, error)
}

// SiteOpts configures a JSONSite.
type SiteOpts struct {
	Name    string
	BaseURL string
	// Delay is the mandatory pause between consecutive requests to the same
	// site. Values below one second are raised to one second.
	Delay   time.Duration
	Timeout time.Duration
}

// JSONSite queries a marketplace search endpoint returning JSON of the shape
// {"items": [{"title": "...", "price": "$123.45"}]}. Results are fetched
// page by page with the configured inter-request delay.
type JSONSite struct {
	name       string
	httpClient *resty.Client
	delay      time.Duration
}

func NewJSONSite(opts SiteOpts) *JSONSite {
	if opts.Delay < DefaultRequestDelay {
		opts.Delay = DefaultRequestDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}
	s := &JSONSite{
		name:  opts.Name,
		delay: opts.Delay,
	}
	s.httpClient = resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeaders(map[string]string{
			"Accept":     "application/json",
			"User-Agent": UserAgent,
		})
	return s
}

func (s *JSONSite) Name() string {
	return s.name
}

type searchItem struct {
	Title string `json:"title"`
	Price string `json:"price"`
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

// Search fetches up to maxResults comparables for query. Price strings with
// no parseable positive numeric value are dropped silently.
func (s *JSONSite) Search(ctx context.Context, query string, maxResults int) ([]Comparable, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	var comparables []Comparable
	for page := 1; len(comparables) < maxResults && page <= maxPages; page++ {
		if page > 1 {
			select {
			case <-ctx.Done():
				return comparables, ctx.Err()
			case <-time.After(s.delay):
			}
		}

		result := &searchResponse{}
		res, err := s.httpClient.NewRequest().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"q":    query,
				"page": fmt.Sprintf("%d", page),
			}).
			SetResult(result).
			Get("/search")
		if err = handleError(res, err); err != nil {
			return nil, err
		}

		if len(result.Items) == 0 {
			break
		}

		now := time.Now().UTC()
		dropped := 0
		for _, item := range result.Items {
			price, ok := ParsePrice(item.Price)
			if !ok {
				dropped++
				continue
			}
			comparables = append(comparables, Comparable{
				Site:      s.name,
				Title:     item.Title,
				Price:     price,
				Currency:  "USD",
				FetchedAt: now,
			})
			if len(comparables) >= maxResults {
				break
			}
		}
		if dropped > 0 {
			log.Debug().
				Str("site", s.name).
				Int("dropped", dropped).
				Msg("dropped comparables with unparseable prices")
		}
		if len(result.Items) < pageSize {
			break
		}
	}

	return comparables, nil
}

// handleError is a generic error handler for failing responses (>399 status
// code). Without this, failing responses would have nil error.
func handleError(res *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("request failed: %s %s (status: %d)", res.Request.Method, res.Request.URL, res.StatusCode())
	}
	return nil
}
