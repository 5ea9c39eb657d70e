package vectorstore

import "context"

// SearchResult is one passage returned from a similarity search
type SearchResult struct {
	Text     string  // The passage text
	Score    float64 // Similarity in [0,1], higher is more relevant
	DocIndex int     // Index of the source document in the indexed corpus
}

// Store is the evidence search collaborator. Results come back ordered by
// descending score; an empty result set is a valid outcome, not an error.
type Store interface {
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)
}
