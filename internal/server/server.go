package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/cbwinslow/CloudCommerce/internal/metrics"
	"github.com/cbwinslow/CloudCommerce/internal/pipeline"
)

// Processor runs one submission through the pipeline.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Server is the HTTP entry point for the submission pipeline.
type Server struct {
	processor Processor
	metrics   *metrics.Metrics
	validate  *validator.Validate
}

func New(processor Processor, m *metrics.Metrics) *Server {
	return &Server{
		processor: processor,
		metrics:   m,
		validate:  validator.New(),
	}
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Post("/submissions", handler(s.postSubmission))
	})
	return r
}

// handler adapts error-returning handlers to http.HandlerFunc.
func handler(f func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			replyError(w, err)
		}
	}
}

type submitRequest struct {
	Images    []string `json:"images" validate:"required,min=1,dive,uri"`
	Summary   string   `json:"summary" validate:"required"`
	Category  string   `json:"category"`
	Condition string   `json:"condition"`
}

type draftJSON struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Condition   string          `json:"condition"`
}

type comparableJSON struct {
	Site  string          `json:"site"`
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
}

type submitResponse struct {
	SubmissionID     string               `json:"submissionId"`
	Status           string               `json:"status"`
	Listings         map[string]draftJSON `json:"listings"`
	CSV              string               `json:"csv"`
	RecommendedPrice decimal.Decimal      `json:"recommendedPrice"`
	Arbitrage        []comparableJSON     `json:"arbitrage"`
	Sites            map[string]bool      `json:"sites"`
	Degraded         bool                 `json:"degraded"`
}

type errorResponse struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func (s *Server) postSubmission(w http.ResponseWriter, r *http.Request) error {
	ownerID := r.Header.Get("X-User-ID")
	if ownerID == "" {
		return &badRequestError{msg: "missing X-User-ID header"}
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &badRequestError{msg: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	if err := s.validate.Struct(req); err != nil {
		return &badRequestError{msg: err.Error()}
	}

	result, err := s.processor.Process(r.Context(), pipeline.Request{
		OwnerID:   ownerID,
		Summary:   req.Summary,
		Category:  req.Category,
		Condition: req.Condition,
		ImageURIs: req.Images,
	})
	if err != nil {
		return err
	}

	replyJSON(w, http.StatusOK, toResponse(result))
	return nil
}

func toResponse(result *pipeline.Result) submitResponse {
	listings := make(map[string]draftJSON, len(result.Listings))
	for m, draft := range result.Listings {
		listings[string(m)] = draftJSON{
			Title:       draft.Title,
			Description: draft.Description,
			Price:       draft.Price,
			Condition:   draft.Condition,
		}
	}
	arbitrage := make([]comparableJSON, 0, len(result.Arbitrage))
	for _, c := range result.Arbitrage {
		arbitrage = append(arbitrage, comparableJSON{Site: c.Site, Title: c.Title, Price: c.Price})
	}
	sites := make(map[string]bool, len(result.SiteStatuses))
	for site, status := range result.SiteStatuses {
		sites[site] = status.OK
	}
	return submitResponse{
		SubmissionID:     result.Submission.ID,
		Status:           string(result.Submission.Status),
		Listings:         listings,
		CSV:              string(result.CSV),
		RecommendedPrice: result.RecommendedPrice,
		Arbitrage:        arbitrage,
		Sites:            sites,
		Degraded:         result.Degraded,
	}
}

type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string {
	return e.msg
}

func replyError(w http.ResponseWriter, err error) {
	var badReq *badRequestError
	if errors.As(err, &badReq) {
		replyJSON(w, http.StatusBadRequest, errorResponse{Stage: "InvalidRequest", Message: badReq.msg})
		return
	}

	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		status := http.StatusBadGateway
		if stageErr.Stage == pipeline.StageCreditDenied {
			status = http.StatusPaymentRequired
		}
		replyJSON(w, status, errorResponse{Stage: string(stageErr.Stage), Message: stageErr.Error()})
		return
	}

	log.Error().Err(err).Msg("unhandled pipeline error")
	replyJSON(w, http.StatusInternalServerError, errorResponse{Stage: "Internal", Message: "internal error"})
}

func replyJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
