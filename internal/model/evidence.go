package model

// Evidence represents a context passage judged relevant to a claim
type Evidence struct {
	Text           string  `json:"text"`             // The passage text
	RelevanceScore float64 `json:"relevance_score"`  // Similarity score in [0,1]
	SourceDocIndex int     `json:"source_doc_index"` // Index into the job's context docs
}
