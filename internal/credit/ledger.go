package credit

import (
	"context"
	"errors"
)

// Decision is the result of a credit check before any pipeline work starts.
type Decision struct {
	Allowed   bool
	Unlimited bool
}

// ErrAlreadyDebited reports an idempotency-guard hit: a transaction for the
// submission id already exists. Callers surface it as a no-op.
var ErrAlreadyDebited = errors.New("submission already debited")

// Ledger is the credit ledger gateway. Atomicity of the debit itself is the
// ledger's responsibility; no rollback primitive is provided.
type Ledger interface {
	// CheckAndReserve reports whether the user may start a submission.
	CheckAndReserve(ctx context.Context, userID string) (Decision, error)
	// Debit records the one-shot debit for a submission. The submission id
	// acts as the idempotency key: at most one transaction per submission.
	Debit(ctx context.Context, userID, submissionID string) error
	Close() error
}
