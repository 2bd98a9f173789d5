package pipeline

import "fmt"

// Stage is the machine-readable tag on a terminal pipeline error.
type Stage string

const (
	StageCreditDenied     Stage = "CreditDenied"
	StageAnalysisFailed   Stage = "AnalysisFailed"
	StageGenerationFailed Stage = "GenerationFailed"
	StageExportFailed     Stage = "ExportFailed"
)

// StageError is the single structured error every terminal failure yields:
// a machine-readable stage plus the underlying cause.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return string(e.Stage)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
