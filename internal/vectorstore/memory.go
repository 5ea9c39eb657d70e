package vectorstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"
)

// MemoryStore is an in-process similarity index over a small corpus of
// documents. Relevance is cosine similarity over term-frequency vectors,
// which is cheap, deterministic, and good enough for per-job context docs.
// Larger deployments can swap in a real vector database behind the Store
// interface.
type MemoryStore struct {
	docs    []string
	vectors []map[string]float64
	norms   []float64
}

// NewMemoryStore indexes the given documents
func NewMemoryStore(docs []string) *MemoryStore {
	s := &MemoryStore{
		docs:    docs,
		vectors: make([]map[string]float64, len(docs)),
		norms:   make([]float64, len(docs)),
	}
	for i, doc := range docs {
		vec := termVector(doc)
		s.vectors[i] = vec
		s.norms[i] = vectorNorm(vec)
	}
	return s
}

// Len returns the number of indexed documents
func (s *MemoryStore) Len() int {
	return len(s.docs)
}

// Search returns up to k documents ordered by descending cosine similarity.
// Ties break on document index so results are stable across runs.
func (s *MemoryStore) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.docs) == 0 || k <= 0 {
		return []SearchResult{}, nil
	}

	qVec := termVector(query)
	qNorm := vectorNorm(qVec)
	if qNorm == 0 {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, 0, len(s.docs))
	for i := range s.docs {
		if s.norms[i] == 0 {
			continue
		}
		score := dot(qVec, s.vectors[i]) / (qNorm * s.norms[i])
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{
			Text:     s.docs[i],
			Score:    score,
			DocIndex: i,
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].DocIndex < results[b].DocIndex
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// termVector builds a lowercase term-frequency map, splitting on anything
// that is not a letter or digit
func termVector(text string) map[string]float64 {
	vec := make(map[string]float64)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		vec[w]++
	}
	return vec
}

func vectorNorm(vec map[string]float64) float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func dot(a, b map[string]float64) float64 {
	// Iterate the smaller map
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for term, av := range a {
		if bv, ok := b[term]; ok {
			sum += av * bv
		}
	}
	return sum
}
