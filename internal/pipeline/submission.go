package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Status is the submission state. Terminal states are Completed, Failed and
// CreditDenied; a submission never leaves a terminal state.
type Status string

const (
	StatusReceived      Status = "received"
	StatusCreditChecked Status = "credit_checked"
	StatusResearching   Status = "researching"
	StatusGenerating    Status = "generating"
	StatusExporting     Status = "exporting"
	StatusCompleted     Status = "completed"
	StatusCreditDenied  Status = "credit_denied"
	StatusFailed        Status = "failed"
)

// Submission is one end-to-end request turning images and text into
// listings. It is created on request receipt and mutated only by the
// orchestrator. A failed submission is never retried; resubmission gets a
// fresh id.
type Submission struct {
	ID        string
	OwnerID   string
	Summary   string
	Category  string
	Condition string
	ImageURIs []string
	Status    Status
	// PartialFailure marks a successful run that degraded (scraping produced
	// no comparables). It is an annotation, not a terminal state.
	PartialFailure bool
	CreatedAt      time.Time
}

// Request is the pipeline entry-point payload.
type Request struct {
	OwnerID   string
	Summary   string
	Category  string
	Condition string
	ImageURIs []string
}

// NewSubmission creates a submission in the Received state.
func NewSubmission(req Request) *Submission {
	return &Submission{
		ID:        uuid.NewString(),
		OwnerID:   req.OwnerID,
		Summary:   req.Summary,
		Category:  req.Category,
		Condition: req.Condition,
		ImageURIs: req.ImageURIs,
		Status:    StatusReceived,
		CreatedAt: time.Now().UTC(),
	}
}
