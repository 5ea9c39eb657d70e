package model

// Claim represents an atomic, independently verifiable factual assertion
// extracted from an LLM response
type Claim struct {
	Text string      `json:"text"`           // The claim text itself
	Span *SourceSpan `json:"span,omitempty"` // Offsets into the response, when locatable
}

// SourceSpan marks where a claim appears in the original response text.
// Offsets are byte positions; End is exclusive.
type SourceSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}
