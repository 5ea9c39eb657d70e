package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
)

var parisEvidence = []model.Evidence{
	{Text: "France's capital is Paris.", RelevanceScore: 0.91, SourceDocIndex: 0},
	{Text: "Paris is in northern France.", RelevanceScore: 0.74, SourceDocIndex: 1},
}

func TestVerifier_NoEvidence(t *testing.T) {
	provider := staticProvider(`{"status": "SUPPORTED", "confidence": 0.9}`)
	v := NewVerifier(provider)

	verification, err := v.Verify(context.Background(), model.Claim{Text: "unverifiable"}, nil)
	if err != nil {
		t.Fatalf("expected no error for missing evidence, got %v", err)
	}
	if verification.Status != model.StatusUnknown {
		t.Errorf("expected UNKNOWN, got %s", verification.Status)
	}
	if verification.Confidence != 0 {
		t.Errorf("expected zero confidence, got %v", verification.Confidence)
	}
	if provider.callCount() != 0 {
		t.Errorf("expected no backend call without evidence, got %d", provider.callCount())
	}
}

func TestVerifier_Verdicts(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantStatus model.VerificationStatus
	}{
		{
			name:       "supported",
			content:    `{"status": "SUPPORTED", "confidence": 0.95, "reasoning": "entailed"}`,
			wantStatus: model.StatusSupported,
		},
		{
			name:       "unsupported",
			content:    `{"status": "UNSUPPORTED", "confidence": 0.8, "reasoning": "contradicted"}`,
			wantStatus: model.StatusUnsupported,
		},
		{
			name:       "partially supported",
			content:    `{"status": "PARTIALLY_SUPPORTED", "confidence": 0.6, "reasoning": "half"}`,
			wantStatus: model.StatusPartiallySupported,
		},
		{
			name:       "lowercase status",
			content:    `{"status": "supported", "confidence": 0.9}`,
			wantStatus: model.StatusSupported,
		},
		{
			name:       "code fenced",
			content:    "```json\n{\"status\": \"UNSUPPORTED\", \"confidence\": 0.7}\n```",
			wantStatus: model.StatusUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(staticProvider(tt.content))
			verification, err := v.Verify(context.Background(), model.Claim{Text: "Paris is the capital of France"}, parisEvidence)
			if err != nil {
				t.Fatalf("verify failed: %v", err)
			}
			if verification.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", verification.Status, tt.wantStatus)
			}
		})
	}
}

func TestVerifier_SupportedConfidenceFromEvidence(t *testing.T) {
	v := NewVerifier(staticProvider(`{"status": "SUPPORTED", "confidence": 0.4}`))

	verification, err := v.Verify(context.Background(), model.Claim{Text: "claim"}, parisEvidence)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if verification.Confidence != 0.91 {
		t.Errorf("expected confidence from strongest evidence (0.91), got %v", verification.Confidence)
	}
}

func TestVerifier_BackendFailure(t *testing.T) {
	provider := &fakeProvider{
		available: true,
		respond: func(llm.CompletionRequest, int) (string, error) {
			return "", errors.New("judge unavailable")
		},
	}
	v := NewVerifier(provider)

	verification, err := v.Verify(context.Background(), model.Claim{Text: "claim"}, parisEvidence)

	var verifErr *VerificationError
	if !errors.As(err, &verifErr) {
		t.Fatalf("expected *VerificationError, got %v", err)
	}
	if verification.Status != model.StatusUnknown {
		t.Errorf("expected degraded UNKNOWN verdict, got %s", verification.Status)
	}
	if len(verification.Evidence) != len(parisEvidence) {
		t.Error("degraded verdict should keep the retrieved evidence")
	}
}

func TestVerifier_UnparseableVerdict(t *testing.T) {
	v := NewVerifier(staticProvider("the claim looks fine to me"))

	verification, err := v.Verify(context.Background(), model.Claim{Text: "claim"}, parisEvidence)

	var verifErr *VerificationError
	if !errors.As(err, &verifErr) {
		t.Fatalf("expected *VerificationError for unparseable verdict, got %v", err)
	}
	if verification.Status != model.StatusUnknown {
		t.Errorf("expected UNKNOWN, got %s", verification.Status)
	}
}

func TestVerifier_UnknownStatusString(t *testing.T) {
	v := NewVerifier(staticProvider(`{"status": "MAYBE", "confidence": 0.5}`))

	_, err := v.Verify(context.Background(), model.Claim{Text: "claim"}, parisEvidence)
	var verifErr *VerificationError
	if !errors.As(err, &verifErr) {
		t.Fatalf("expected *VerificationError for unknown status, got %v", err)
	}
}

func TestVerifier_ConfidenceClamped(t *testing.T) {
	v := NewVerifier(staticProvider(`{"status": "UNSUPPORTED", "confidence": 1.7}`))

	verification, err := v.Verify(context.Background(), model.Claim{Text: "claim"}, parisEvidence)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if verification.Confidence != 1.0 {
		t.Errorf("expected confidence clamped to 1.0, got %v", verification.Confidence)
	}
}
