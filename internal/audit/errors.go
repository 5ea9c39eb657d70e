package audit

import "fmt"

// DecompositionError is job-fatal: without claims there is nothing to audit
type DecompositionError struct {
	Err error
}

func (e *DecompositionError) Error() string {
	return fmt.Sprintf("claim decomposition failed: %v", e.Err)
}

func (e *DecompositionError) Unwrap() error { return e.Err }

// RetrievalError degrades the affected claim to empty evidence
type RetrievalError struct {
	Claim string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("evidence retrieval failed for claim %q: %v", e.Claim, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// VerificationError degrades the affected claim to UNKNOWN
type VerificationError struct {
	Claim string
	Err   error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed for claim %q: %v", e.Claim, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }
