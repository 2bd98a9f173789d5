package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbwinslow/CloudCommerce/internal/llm"
	"github.com/cbwinslow/CloudCommerce/internal/market"
	"github.com/cbwinslow/CloudCommerce/internal/metrics"
	"github.com/cbwinslow/CloudCommerce/internal/pipeline"
)

type fakeProcessor struct {
	result *pipeline.Result
	err    error
	calls  int
	gotReq pipeline.Request
}

func (f *fakeProcessor) Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.calls++
	f.gotReq = req
	return f.result, f.err
}

func successResult() *pipeline.Result {
	sub := pipeline.NewSubmission(pipeline.Request{OwnerID: "alice", Summary: "iphone"})
	sub.Status = pipeline.StatusCompleted
	return &pipeline.Result{
		Submission: sub,
		Listings: map[market.Marketplace]llm.ListingDraft{
			market.Ebay: {Title: "iPhone 12", Description: "Nice.", Price: decimal.RequireFromString("57.50"), Condition: "good"},
		},
		RecommendedPrice: decimal.RequireFromString("57.50"),
		CSV:              []byte("Platform,Title,Description,Price,Condition\n"),
	}
}

func doRequest(t *testing.T, processor Processor, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	srv := New(processor, metrics.New())
	req := httptest.NewRequest(http.MethodPost, "/api/submissions", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestPostSubmission_Success(t *testing.T) {
	processor := &fakeProcessor{result: successResult()}
	body := `{"images": ["https://img.example/1.jpg"], "summary": "Red iPhone 12", "condition": "good"}`

	rec := doRequest(t, processor, body, map[string]string{"X-User-ID": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SubmissionID)
	assert.Equal(t, "completed", resp.Status)
	assert.Contains(t, resp.Listings, "ebay")
	assert.Contains(t, resp.CSV, "Platform,Title")

	assert.Equal(t, "alice", processor.gotReq.OwnerID)
	assert.Equal(t, "good", processor.gotReq.Condition)
}

func TestPostSubmission_MissingSummary(t *testing.T) {
	processor := &fakeProcessor{result: successResult()}
	body := `{"images": ["https://img.example/1.jpg"], "summary": ""}`

	rec := doRequest(t, processor, body, map[string]string{"X-User-ID": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, processor.calls, "invalid requests never reach the pipeline")
}

func TestPostSubmission_MissingImages(t *testing.T) {
	processor := &fakeProcessor{result: successResult()}
	body := `{"images": [], "summary": "a lamp"}`

	rec := doRequest(t, processor, body, map[string]string{"X-User-ID": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, processor.calls)
}

func TestPostSubmission_MissingUser(t *testing.T) {
	processor := &fakeProcessor{result: successResult()}
	body := `{"images": ["https://img.example/1.jpg"], "summary": "a lamp"}`

	rec := doRequest(t, processor, body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostSubmission_CreditDenied(t *testing.T) {
	processor := &fakeProcessor{
		err: &pipeline.StageError{Stage: pipeline.StageCreditDenied, Err: errors.New("insufficient credit")},
	}
	body := `{"images": ["https://img.example/1.jpg"], "summary": "a lamp"}`

	rec := doRequest(t, processor, body, map[string]string{"X-User-ID": "bob"})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CreditDenied", resp.Stage)
	assert.NotEmpty(t, resp.Message)
}

func TestPostSubmission_AnalysisFailed(t *testing.T) {
	processor := &fakeProcessor{
		err: &pipeline.StageError{Stage: pipeline.StageAnalysisFailed, Err: llm.ErrAnalysisTimeout},
	}
	body := `{"images": ["https://img.example/1.jpg"], "summary": "a lamp"}`

	rec := doRequest(t, processor, body, map[string]string{"X-User-ID": "alice"})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "AnalysisFailed", resp.Stage)
}

func TestHealthz(t *testing.T) {
	srv := New(&fakeProcessor{}, metrics.New())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.SubmissionFinished("completed")
	srv := New(&fakeProcessor{}, m)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cloudcommerce_submissions_total")
}
