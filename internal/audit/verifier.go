package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
)

const verifierSystemPrompt = `You are a fact verification expert. Given a claim and context documents, determine if the claim is supported by the context.

Your task:
1. Read the context carefully
2. Determine if the claim is supported, contradicted, or not addressed
3. Base your determination only on the context, never on outside knowledge

Classification:
- SUPPORTED: The claim is fully backed by the context
- UNSUPPORTED: The claim contradicts the context OR has no supporting evidence
- PARTIALLY_SUPPORTED: Some aspects are supported, others are not

Output format (JSON only, no markdown):
{
  "status": "SUPPORTED" | "UNSUPPORTED" | "PARTIALLY_SUPPORTED",
  "confidence": 0.95,
  "reasoning": "Brief explanation"
}`

// Verifier classifies a single claim against its retrieved evidence using
// the completion backend as a natural-language-inference judge. Each claim
// is verified in isolation; no state is shared between verifications, which
// is what lets the orchestrator fan them out concurrently.
type Verifier struct {
	provider llm.Provider
}

// NewVerifier creates a verifier backed by the given provider
func NewVerifier(provider llm.Provider) *Verifier {
	return &Verifier{provider: provider}
}

// Verify classifies one claim. With no evidence the verdict is UNKNOWN with
// zero confidence and no backend call is made. A backend failure returns the
// UNKNOWN verdict together with a *VerificationError so the orchestrator can
// count infrastructure failures without losing the degraded verdict.
func (v *Verifier) Verify(ctx context.Context, claim model.Claim, evidence []model.Evidence) (model.ClaimVerification, error) {
	if len(evidence) == 0 {
		return model.ClaimVerification{
			Claim:      claim,
			Status:     model.StatusUnknown,
			Confidence: 0,
			Evidence:   []model.Evidence{},
		}, nil
	}

	resp, err := llm.CompleteWithRetry(ctx, v.provider, llm.CompletionRequest{
		System:      verifierSystemPrompt,
		Prompt:      buildVerifierPrompt(claim, evidence),
		Temperature: 0,
		MaxTokens:   512,
	})
	if err != nil {
		return unknownVerdict(claim, evidence), &VerificationError{Claim: claim.Text, Err: err}
	}

	status, confidence, err := parseVerdict(resp.Content)
	if err != nil {
		// Unparseable output degrades the claim rather than failing the job
		return unknownVerdict(claim, evidence), &VerificationError{Claim: claim.Text, Err: err}
	}

	// A fully supported claim inherits its confidence from the strongest
	// evidence passage; the judge's self-reported confidence stands otherwise
	if status == model.StatusSupported {
		confidence = maxRelevance(evidence)
	}

	return model.ClaimVerification{
		Claim:      claim,
		Status:     status,
		Confidence: clamp01(confidence),
		Evidence:   evidence,
	}, nil
}

func unknownVerdict(claim model.Claim, evidence []model.Evidence) model.ClaimVerification {
	return model.ClaimVerification{
		Claim:      claim,
		Status:     model.StatusUnknown,
		Confidence: 0,
		Evidence:   evidence,
	}
}

// buildVerifierPrompt renders the claim and numbered context documents
func buildVerifierPrompt(claim model.Claim, evidence []model.Evidence) string {
	var b strings.Builder
	b.WriteString("Verify this claim against the context:\n\n<claim>\n")
	b.WriteString(claim.Text)
	b.WriteString("\n</claim>\n\n<context>\n")
	for i, ev := range evidence {
		fmt.Fprintf(&b, "[Document %d]\n%s\n\n", i+1, ev.Text)
	}
	b.WriteString("</context>\n\nReturn ONLY the JSON object, nothing else.")
	return b.String()
}

type verdictPayload struct {
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// parseVerdict parses the judge's JSON verdict, tolerating code fences
func parseVerdict(content string) (model.VerificationStatus, float64, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if !strings.HasPrefix(content, "{") {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start == -1 || end == -1 || end < start {
			return "", 0, fmt.Errorf("no JSON object in verdict")
		}
		content = content[start : end+1]
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return "", 0, err
	}

	switch model.VerificationStatus(strings.ToUpper(payload.Status)) {
	case model.StatusSupported:
		return model.StatusSupported, payload.Confidence, nil
	case model.StatusUnsupported:
		return model.StatusUnsupported, payload.Confidence, nil
	case model.StatusPartiallySupported:
		return model.StatusPartiallySupported, payload.Confidence, nil
	default:
		return "", 0, fmt.Errorf("unknown verdict status %q", payload.Status)
	}
}

func maxRelevance(evidence []model.Evidence) float64 {
	var max float64
	for _, ev := range evidence {
		if ev.RelevanceScore > max {
			max = ev.RelevanceScore
		}
	}
	return max
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
