package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ErrAllSitesFailed reports that no site produced a usable response. It is a
// non-fatal degradation: the pipeline proceeds without a price aggregate.
var ErrAllSitesFailed = errors.New("all sites failed")

// SiteStatus records the per-site outcome of one research batch.
type SiteStatus struct {
	OK    bool
	Count int
	Err   error
}

// Scraper fans a query out to every configured site concurrently. Each site
// stays sequential internally to respect rate limits.
type Scraper struct {
	sites      []Site
	maxResults int
}

func New(sites []Site, maxResultsPerSite int) *Scraper {
	if maxResultsPerSite <= 0 {
		maxResultsPerSite = DefaultMaxResults
	}
	return &Scraper{sites: sites, maxResults: maxResultsPerSite}
}

type siteOutcome struct {
	site        string
	comparables []Comparable
	err         error
}

// Research queries all sites for comparables. A site that times out or
// errors is marked failed in the returned status map without aborting the
// batch. ErrAllSitesFailed is returned only when every site failed.
func (s *Scraper) Research(ctx context.Context, query string) ([]Comparable, map[string]SiteStatus, error) {
	if query == "" {
		return nil, nil, fmt.Errorf("empty search query")
	}
	if len(s.sites) == 0 {
		return nil, map[string]SiteStatus{}, ErrAllSitesFailed
	}

	outcomes := make(chan siteOutcome, len(s.sites))
	for _, site := range s.sites {
		go func(site Site) {
			comparables, err := site.Search(ctx, query, s.maxResults)
			if err == nil && len(comparables) == 0 {
				err = fmt.Errorf("no results")
			}
			outcomes <- siteOutcome{site: site.Name(), comparables: comparables, err: err}
		}(site)
	}

	var all []Comparable
	statuses := make(map[string]SiteStatus, len(s.sites))
	for range s.sites {
		outcome := <-outcomes
		if outcome.err != nil {
			log.Warn().
				Str("site", outcome.site).
				Err(outcome.err).
				Msg("site scrape failed")
			statuses[outcome.site] = SiteStatus{Err: outcome.err}
			continue
		}
		statuses[outcome.site] = SiteStatus{OK: true, Count: len(outcome.comparables)}
		all = append(all, outcome.comparables...)
	}

	failed := lo.CountBy(lo.Values(statuses), func(st SiteStatus) bool { return !st.OK })
	log.Info().
		Str("query", query).
		Int("comparables", len(all)).
		Int("sites", len(s.sites)).
		Int("failedSites", failed).
		Msg("market research finished")

	if failed == len(s.sites) {
		return nil, statuses, ErrAllSitesFailed
	}
	return all, statuses, nil
}
