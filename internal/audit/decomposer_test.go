package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/veracity/internal/cache"
	"github.com/ppiankov/veracity/internal/llm"
)

// fakeProvider scripts completion responses per call
type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	respond   func(req llm.CompletionRequest, call int) (string, error)
	available bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return f.available }

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	content, err := f.respond(req, call)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: content, Model: "fake"}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func staticProvider(content string) *fakeProvider {
	return &fakeProvider{
		available: true,
		respond: func(llm.CompletionRequest, int) (string, error) {
			return content, nil
		},
	}
}

func TestDecomposer_Decompose(t *testing.T) {
	response := "Paris is the capital of France. Paris was founded by the Romans."
	provider := staticProvider(`["Paris is the capital of France", "Paris was founded by the Romans"]`)

	d := NewDecomposer(provider)
	claims, err := d.Decompose(context.Background(), response)
	if err != nil {
		t.Fatalf("decompose failed: %v", err)
	}

	if len(claims) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(claims))
	}
	if claims[0].Text != "Paris is the capital of France" {
		t.Errorf("unexpected first claim: %s", claims[0].Text)
	}
	if claims[0].Span == nil || claims[0].Span.Start != 0 {
		t.Errorf("expected first claim span at offset 0, got %+v", claims[0].Span)
	}
	if claims[1].Span == nil || claims[1].Span.Start <= claims[0].Span.Start {
		t.Error("expected claims ordered by appearance in the response")
	}
}

func TestDecomposer_EmptyInput(t *testing.T) {
	provider := staticProvider(`["should never be called"]`)
	d := NewDecomposer(provider)

	claims, err := d.Decompose(context.Background(), "   ")
	if err != nil {
		t.Fatalf("decompose failed: %v", err)
	}
	if len(claims) != 0 {
		t.Errorf("expected no claims for empty input, got %d", len(claims))
	}
	if provider.callCount() != 0 {
		t.Errorf("expected no backend calls for empty input, got %d", provider.callCount())
	}
}

func TestDecomposer_CodeFences(t *testing.T) {
	provider := staticProvider("```json\n[\"claim one text\"]\n```")
	d := NewDecomposer(provider)

	claims, err := d.Decompose(context.Background(), "some response")
	if err != nil {
		t.Fatalf("decompose failed: %v", err)
	}
	if len(claims) != 1 || claims[0].Text != "claim one text" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestDecomposer_SurroundingProse(t *testing.T) {
	provider := staticProvider(`Here are the claims: ["first claim here", "second claim here"] Hope that helps!`)
	d := NewDecomposer(provider)

	claims, err := d.Decompose(context.Background(), "some response")
	if err != nil {
		t.Fatalf("decompose failed: %v", err)
	}
	if len(claims) != 2 {
		t.Errorf("expected 2 claims, got %d", len(claims))
	}
}

func TestDecomposer_Deduplication(t *testing.T) {
	provider := staticProvider(`["Paris is in France", "paris is in france", "Paris is in France"]`)
	d := NewDecomposer(provider)

	claims, err := d.Decompose(context.Background(), "Paris is in France.")
	if err != nil {
		t.Fatalf("decompose failed: %v", err)
	}
	if len(claims) != 1 {
		t.Errorf("expected case-insensitive dedup to 1 claim, got %d", len(claims))
	}
}

func TestDecomposer_RetryOnEmpty(t *testing.T) {
	// First call yields nothing, second call confirms the empty result
	provider := &fakeProvider{
		available: true,
		respond: func(llm.CompletionRequest, int) (string, error) {
			return "[]", nil
		},
	}
	d := NewDecomposer(provider)

	claims, err := d.Decompose(context.Background(), "Hello there!")
	if err != nil {
		t.Fatalf("decompose failed: %v", err)
	}
	if len(claims) != 0 {
		t.Errorf("expected no claims, got %d", len(claims))
	}
	if provider.callCount() != 2 {
		t.Errorf("expected empty output to be retried once, got %d calls", provider.callCount())
	}
}

func TestDecomposer_BackendError(t *testing.T) {
	provider := &fakeProvider{
		available: true,
		respond: func(llm.CompletionRequest, int) (string, error) {
			return "", errors.New("model exploded")
		},
	}
	d := NewDecomposer(provider)

	_, err := d.Decompose(context.Background(), "some response")
	var decompErr *DecompositionError
	if !errors.As(err, &decompErr) {
		t.Fatalf("expected *DecompositionError, got %v", err)
	}
}

func TestDecomposer_UnparseableOutput(t *testing.T) {
	provider := staticProvider("I cannot extract claims from this text.")
	d := NewDecomposer(provider)

	_, err := d.Decompose(context.Background(), "some response")
	var decompErr *DecompositionError
	if !errors.As(err, &decompErr) {
		t.Fatalf("expected *DecompositionError for unparseable output, got %v", err)
	}
}

func TestDecomposer_Cache(t *testing.T) {
	provider := staticProvider(`["cached claim text"]`)
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	d := NewDecomposer(provider, WithCache(c, time.Minute))

	first, err := d.Decompose(context.Background(), "the response body")
	if err != nil {
		t.Fatalf("decompose failed: %v", err)
	}
	second, err := d.Decompose(context.Background(), "the response body")
	if err != nil {
		t.Fatalf("cached decompose failed: %v", err)
	}

	if provider.callCount() != 1 {
		t.Errorf("expected second decomposition to hit the cache, got %d calls", provider.callCount())
	}
	if len(first) != len(second) || first[0].Text != second[0].Text {
		t.Errorf("cache returned different claims: %+v vs %+v", first, second)
	}
}

func TestDecomposer_ShortFragmentsFiltered(t *testing.T) {
	provider := staticProvider(`["ok", "a real claim survives"]`)
	d := NewDecomposer(provider)

	claims, err := d.Decompose(context.Background(), "a real claim survives, ok")
	if err != nil {
		t.Fatalf("decompose failed: %v", err)
	}
	if len(claims) != 1 || !strings.Contains(claims[0].Text, "real claim") {
		t.Errorf("expected short fragments filtered, got %+v", claims)
	}
}
