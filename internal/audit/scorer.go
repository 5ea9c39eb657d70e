package audit

import (
	"fmt"
	"strings"

	"github.com/ppiankov/veracity/internal/model"
)

// traceSnippetLimit caps evidence snippets in the reasoning trace so the
// rendering stays deterministic and readable
const traceSnippetLimit = 160

// ScoreResult is the aggregated outcome of all claim verifications
type ScoreResult struct {
	FaithfulnessScore float64
	Hallucination     bool
	ReasoningTrace    string
}

// Scorer combines per-claim verdicts into a faithfulness score, a
// hallucination flag, and a human-readable trace. It performs no I/O and is
// fully deterministic: identical input always yields identical output.
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score aggregates verifications in claim order. With zero claims there is
// nothing to dispute, so the score is 1.0 and no hallucination is flagged.
// Any verdict short of fully SUPPORTED trips the hallucination flag, even
// when the numeric score stays high.
func (s *Scorer) Score(verifications []model.ClaimVerification) ScoreResult {
	total := len(verifications)
	if total == 0 {
		return ScoreResult{
			FaithfulnessScore: 1.0,
			Hallucination:     false,
			ReasoningTrace:    "No verifiable claims found in the response.",
		}
	}

	var supported, partial, unsupported, unknown int
	for _, v := range verifications {
		switch v.Status {
		case model.StatusSupported:
			supported++
		case model.StatusPartiallySupported:
			partial++
		case model.StatusUnsupported:
			unsupported++
		default:
			unknown++
		}
	}

	score := (float64(supported) + 0.5*float64(partial)) / float64(total)
	hallucination := score < 1.0 || unsupported > 0

	return ScoreResult{
		FaithfulnessScore: score,
		Hallucination:     hallucination,
		ReasoningTrace:    buildTrace(verifications, score, supported, partial, unsupported, unknown),
	}
}

// buildTrace renders each claim, its status, and its strongest evidence
// snippet (or "no evidence found"), in claim order
func buildTrace(verifications []model.ClaimVerification, score float64, supported, partial, unsupported, unknown int) string {
	total := len(verifications)

	var b strings.Builder
	fmt.Fprintf(&b, "Faithfulness Score: %.2f/1.00\n\n", score)
	fmt.Fprintf(&b, "Total Claims Analyzed: %d\n", total)
	fmt.Fprintf(&b, "  Supported: %d\n", supported)
	fmt.Fprintf(&b, "  Partially Supported: %d\n", partial)
	fmt.Fprintf(&b, "  Unsupported: %d\n", unsupported)
	fmt.Fprintf(&b, "  Unknown: %d\n\n", unknown)

	for i, v := range verifications {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, v.Status, v.Claim.Text)
		switch {
		case len(v.Evidence) == 0:
			b.WriteString("   no evidence found\n")
		case v.Status == model.StatusUnknown:
			// Evidence existed but the verification call failed
			b.WriteString("   verification unavailable\n")
		default:
			fmt.Fprintf(&b, "   evidence (%.2f): %s\n", v.Evidence[0].RelevanceScore, snippet(v.Evidence[0].Text))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func snippet(text string) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) <= traceSnippetLimit {
		return string(runes)
	}
	return string(runes[:traceSnippetLimit-3]) + "..."
}
