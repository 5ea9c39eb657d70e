package model

import (
	"fmt"
	"time"
)

// VerificationStatus is the outcome of checking one claim against evidence
type VerificationStatus string

const (
	StatusSupported          VerificationStatus = "SUPPORTED"           // Evidence entails the claim
	StatusUnsupported        VerificationStatus = "UNSUPPORTED"         // Evidence contradicts or lacks support
	StatusPartiallySupported VerificationStatus = "PARTIALLY_SUPPORTED" // Part of a compound claim is supported
	StatusUnknown            VerificationStatus = "UNKNOWN"             // No evidence or verification unavailable
)

// ClaimVerification is the verdict for a single claim. Immutable after creation.
type ClaimVerification struct {
	Claim      Claim              `json:"claim"`
	Status     VerificationStatus `json:"status"`
	Confidence float64            `json:"confidence"` // In [0,1]
	Evidence   []Evidence         `json:"evidence"`   // Ordered by descending relevance
}

// AuditState tracks progress of an audit through the pipeline
type AuditState string

const (
	StatePending    AuditState = "PENDING"
	StateDecomposed AuditState = "DECOMPOSED"
	StateRetrieved  AuditState = "RETRIEVED"
	StateVerified   AuditState = "VERIFIED"
	StateScored     AuditState = "SCORED"
	StateFailed     AuditState = "FAILED"
)

// nextState maps each state to its single legal successor. FAILED is
// reachable from any non-terminal state and handled separately.
var nextState = map[AuditState]AuditState{
	StatePending:    StateDecomposed,
	StateDecomposed: StateRetrieved,
	StateRetrieved:  StateVerified,
	StateVerified:   StateScored,
}

// Terminal reports whether the state admits no further transitions
func (s AuditState) Terminal() bool {
	return s == StateScored || s == StateFailed
}

// CanTransitionTo reports whether moving from s to next is legal
func (s AuditState) CanTransitionTo(next AuditState) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	return nextState[s] == next
}

// AuditRecord is the mutable working record of one audit. It is owned
// exclusively by the worker executing it; once the state reaches SCORED or
// FAILED it is published and must be treated as read-only.
type AuditRecord struct {
	JobID             string              `json:"job_id"`
	Query             string              `json:"query"`
	Response          string              `json:"response"`
	State             AuditState          `json:"state"`
	Claims            []Claim             `json:"claims"`
	Verifications     []ClaimVerification `json:"verifications"` // Index-aligned with Claims
	FaithfulnessScore float64             `json:"faithfulness_score"`
	Hallucination     bool                `json:"hallucination_detected"`
	DegradedQuality   bool                `json:"degraded_quality"` // Too many UNKNOWN verdicts
	ReasoningTrace    string              `json:"reasoning_trace"`
	FailedStage       string              `json:"failed_stage,omitempty"`
	Error             string              `json:"error,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	CompletedAt       time.Time           `json:"completed_at,omitempty"`
}

// NewAuditRecord creates a PENDING record for the given job
func NewAuditRecord(job *AuditJob) *AuditRecord {
	return &AuditRecord{
		JobID:     job.JobID,
		Query:     job.Query,
		Response:  job.Response,
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
	}
}

// Transition advances the record to the next state, enforcing the
// monotone PENDING → DECOMPOSED → RETRIEVED → VERIFIED → SCORED order
func (r *AuditRecord) Transition(next AuditState) error {
	if !r.State.CanTransitionTo(next) {
		return fmt.Errorf("illegal audit state transition: %s -> %s", r.State, next)
	}
	r.State = next
	if next.Terminal() {
		r.CompletedAt = time.Now().UTC()
	}
	return nil
}

// Fail moves the record to FAILED with the stage name and error reason
func (r *AuditRecord) Fail(stage string, err error) {
	if r.State.Terminal() {
		return
	}
	r.State = StateFailed
	r.FailedStage = stage
	if err != nil {
		r.Error = err.Error()
	}
	r.CompletedAt = time.Now().UTC()
}
