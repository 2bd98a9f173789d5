package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSite struct {
	name        string
	comparables []Comparable
	err         error
	delay       time.Duration
}

func (f *fakeSite) Name() string { return f.name }

func (f *fakeSite) Search(ctx context.Context, query string, maxResults int) ([]Comparable, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.comparables, f.err
}

func fakeComparable(site string, price int64) Comparable {
	return Comparable{Site: site, Title: "item", Price: decimal.NewFromInt(price), Currency: "USD"}
}

func TestResearch_MergesSites(t *testing.T) {
	s := New([]Site{
		&fakeSite{name: "ebay", comparables: []Comparable{fakeComparable("ebay", 100)}},
		&fakeSite{name: "amazon", comparables: []Comparable{fakeComparable("amazon", 110), fakeComparable("amazon", 90)}},
	}, 5)

	comparables, statuses, err := s.Research(context.Background(), "iphone 12")
	require.NoError(t, err)
	assert.Len(t, comparables, 3)
	assert.True(t, statuses["ebay"].OK)
	assert.True(t, statuses["amazon"].OK)
	assert.Equal(t, 2, statuses["amazon"].Count)
}

func TestResearch_PartialFailureIsMetadataOnly(t *testing.T) {
	s := New([]Site{
		&fakeSite{name: "ebay", comparables: []Comparable{fakeComparable("ebay", 100)}},
		&fakeSite{name: "amazon", err: errors.New("503")},
	}, 5)

	comparables, statuses, err := s.Research(context.Background(), "iphone 12")
	require.NoError(t, err, "a single failed site must not abort the batch")
	assert.Len(t, comparables, 1)
	assert.True(t, statuses["ebay"].OK)
	assert.False(t, statuses["amazon"].OK)
	assert.Error(t, statuses["amazon"].Err)
}

func TestResearch_AllSitesFailed(t *testing.T) {
	s := New([]Site{
		&fakeSite{name: "ebay", err: errors.New("timeout")},
		&fakeSite{name: "amazon", err: errors.New("503")},
	}, 5)

	_, statuses, err := s.Research(context.Background(), "iphone 12")
	assert.ErrorIs(t, err, ErrAllSitesFailed)
	assert.Len(t, statuses, 2)
}

func TestResearch_NoResultsCountsAsFailure(t *testing.T) {
	s := New([]Site{&fakeSite{name: "ebay"}}, 5)

	_, statuses, err := s.Research(context.Background(), "something obscure")
	assert.ErrorIs(t, err, ErrAllSitesFailed)
	assert.False(t, statuses["ebay"].OK)
}

func TestResearch_EmptyQuery(t *testing.T) {
	s := New([]Site{&fakeSite{name: "ebay"}}, 5)

	_, _, err := s.Research(context.Background(), "")
	assert.Error(t, err)
}

func TestResearch_SitesRunConcurrently(t *testing.T) {
	s := New([]Site{
		&fakeSite{name: "a", delay: 100 * time.Millisecond, comparables: []Comparable{fakeComparable("a", 10)}},
		&fakeSite{name: "b", delay: 100 * time.Millisecond, comparables: []Comparable{fakeComparable("b", 20)}},
		&fakeSite{name: "c", delay: 100 * time.Millisecond, comparables: []Comparable{fakeComparable("c", 30)}},
	}, 5)

	start := time.Now()
	comparables, _, err := s.Research(context.Background(), "query")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, comparables, 3)
	assert.Less(t, elapsed, 250*time.Millisecond, "sites should not run sequentially")
}

func TestResearch_CancelledContext(t *testing.T) {
	s := New([]Site{
		&fakeSite{name: "slow", delay: time.Second, comparables: []Comparable{fakeComparable("slow", 10)}},
	}, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := s.Research(ctx, "query")
	assert.ErrorIs(t, err, ErrAllSitesFailed)
}
