package audit

import (
	"context"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/vectorstore"
)

// Retriever finds the context passages most relevant to a claim. An empty
// result is a valid outcome: it means the corpus has nothing to say about
// the claim, which the verifier maps to UNKNOWN.
type Retriever struct {
	topK      int
	threshold float64
}

// NewRetriever creates a retriever with the given top-k and minimum
// relevance threshold
func NewRetriever(topK int, threshold float64) *Retriever {
	if topK <= 0 {
		topK = 3
	}
	return &Retriever{topK: topK, threshold: threshold}
}

// Retrieve returns up to top-k evidence passages for the claim, ordered by
// descending relevance and filtered by the minimum threshold
func (r *Retriever) Retrieve(ctx context.Context, store vectorstore.Store, claim model.Claim) ([]model.Evidence, error) {
	if store == nil {
		return []model.Evidence{}, nil
	}

	results, err := store.Search(ctx, claim.Text, r.topK)
	if err != nil {
		return nil, &RetrievalError{Claim: claim.Text, Err: err}
	}

	evidence := make([]model.Evidence, 0, len(results))
	for _, res := range results {
		if res.Score < r.threshold {
			continue
		}
		evidence = append(evidence, model.Evidence{
			Text:           res.Text,
			RelevanceScore: res.Score,
			SourceDocIndex: res.DocIndex,
		})
	}
	return evidence, nil
}
