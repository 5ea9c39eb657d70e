package model

import (
	"errors"
	"time"
)

// ErrInvalidJob indicates a malformed submission (missing query or response)
var ErrInvalidJob = errors.New("audit job requires both query and response")

// AuditJob is one end-to-end audit request. Immutable once submitted;
// JobID doubles as the idempotency key for duplicate detection.
type AuditJob struct {
	JobID       string    `json:"job_id"`
	Query       string    `json:"query"`
	Response    string    `json:"response"`
	ContextDocs []string  `json:"context_docs"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Validate checks the job is well formed. Empty context docs are legal:
// an audit with no context simply yields UNKNOWN verdicts.
func (j *AuditJob) Validate() error {
	if j.Query == "" || j.Response == "" {
		return ErrInvalidJob
	}
	return nil
}
