package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/cache"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
)

const decomposerSystemPrompt = `You are a claim extraction expert. Your job is to break down text into atomic, verifiable claims.

Rules:
1. Each claim should be a single factual statement
2. Claims should be self-contained (understandable without context)
3. A sentence with two facts yields two claims; a claim spanning multiple sentences is one claim
4. Preserve the original wording wherever possible
5. Do not add information not present in the original text
6. Do not evaluate truth - just extract claims

Output format:
Return ONLY a JSON array of strings, like:
["claim 1", "claim 2", "claim 3"]

If the text contains no factual claims (e.g., a greeting), return [].
No explanations, no markdown, just the JSON array.`

// minClaimLength filters fragments the extraction model sometimes emits
const minClaimLength = 6

// Decomposer turns a response string into an ordered list of atomic claims
// using the configured completion backend. Results are cached by response
// hash so identical input always yields identical claims in identical order.
type Decomposer struct {
	provider llm.Provider
	cache    cache.Cache
	cacheTTL time.Duration
}

// Option configures a Decomposer
type Option func(*Decomposer)

// WithCache enables the decomposition cache
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(d *Decomposer) {
		d.cache = c
		d.cacheTTL = ttl
	}
}

// NewDecomposer creates a decomposer backed by the given provider
func NewDecomposer(provider llm.Provider, opts ...Option) *Decomposer {
	d := &Decomposer{provider: provider}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decompose extracts atomic claims from a response, ordered by first
// appearance. Empty input yields an empty claim list. If the extraction
// backend returns empty output for non-empty input after one retry, the
// error is a *DecompositionError and the job is unsalvageable.
func (d *Decomposer) Decompose(ctx context.Context, response string) ([]model.Claim, error) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return []model.Claim{}, nil
	}

	if d.cache != nil {
		if data, found := d.cache.Get(cache.Key(trimmed)); found {
			var claims []model.Claim
			if err := json.Unmarshal(data, &claims); err == nil {
				return claims, nil
			}
		}
	}

	texts, err := d.extract(ctx, trimmed)
	if err != nil {
		return nil, &DecompositionError{Err: err}
	}

	// Empty output for non-empty input gets one retry before failing the job.
	// A legitimately claim-free response ("Hello.") also lands here; the
	// retry confirms it, and the empty list is then accepted.
	if len(texts) == 0 {
		texts, err = d.extract(ctx, trimmed)
		if err != nil {
			return nil, &DecompositionError{Err: err}
		}
	}

	claims := buildClaims(trimmed, texts)

	if d.cache != nil {
		if data, err := json.Marshal(claims); err == nil {
			_ = d.cache.Set(cache.Key(trimmed), data, d.cacheTTL)
		}
	}

	return claims, nil
}

// extract runs one extraction call and parses the JSON array
func (d *Decomposer) extract(ctx context.Context, response string) ([]string, error) {
	prompt := fmt.Sprintf("Extract all factual claims from this text:\n\n<text>\n%s\n</text>\n\nRemember: Return ONLY the JSON array of claims, nothing else.", response)

	resp, err := llm.CompleteWithRetry(ctx, d.provider, llm.CompletionRequest{
		System:      decomposerSystemPrompt,
		Prompt:      prompt,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	texts, err := parseClaimArray(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse extraction output: %w", err)
	}

	var filtered []string
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if len(t) >= minClaimLength {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// parseClaimArray parses a JSON array of strings, tolerating markdown code
// fences the model sometimes wraps around its output
func parseClaimArray(content string) ([]string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	// Recover the array when the model adds prose around it
	if !strings.HasPrefix(content, "[") {
		start := strings.Index(content, "[")
		end := strings.LastIndex(content, "]")
		if start == -1 || end == -1 || end < start {
			return nil, fmt.Errorf("no JSON array in output")
		}
		content = content[start : end+1]
	}

	var texts []string
	if err := json.Unmarshal([]byte(content), &texts); err != nil {
		return nil, err
	}
	return texts, nil
}

// buildClaims orders claims by first appearance in the response and attaches
// source spans where the claim text occurs verbatim
func buildClaims(response string, texts []string) []model.Claim {
	type located struct {
		claim model.Claim
		pos   int
		seq   int
	}

	seen := make(map[string]bool)
	items := make([]located, 0, len(texts))

	for seq, text := range texts {
		key := strings.ToLower(text)
		if seen[key] {
			continue
		}
		seen[key] = true

		c := model.Claim{Text: text}
		pos := strings.Index(response, text)
		if pos >= 0 {
			c.Span = &model.SourceSpan{Start: pos, End: pos + len(text)}
		}
		items = append(items, located{claim: c, pos: pos, seq: seq})
	}

	// Claims found verbatim sort by position; paraphrased claims keep the
	// extraction order, after located ones
	for i := 1; i < len(items); i++ {
		for j := i; j > 0; j-- {
			a, b := items[j-1], items[j]
			swap := false
			if a.pos >= 0 && b.pos >= 0 {
				swap = b.pos < a.pos
			} else if a.pos < 0 && b.pos >= 0 {
				swap = true
			}
			if !swap {
				break
			}
			items[j-1], items[j] = b, a
		}
	}

	claims := make([]model.Claim, len(items))
	for i, it := range items {
		claims[i] = it.claim
	}
	return claims
}
