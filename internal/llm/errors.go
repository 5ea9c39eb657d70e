package llm

import (
	"context"
	"errors"
	"net"
	"time"
)

// Transport-level failures. The calling stage maps these to its own error
// policy: a timeout on a single verification degrades that claim, a timeout
// during decomposition is job-fatal.
var (
	// ErrProviderConnection indicates the backend could not be reached
	ErrProviderConnection = errors.New("llm provider connection failed")

	// ErrProviderTimeout indicates the backend did not answer in time
	ErrProviderTimeout = errors.New("llm provider timed out")
)

// classifyTransportErr maps low-level errors onto the provider error taxonomy
func classifyTransportErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrProviderTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(ErrProviderTimeout, err)
	}
	return errors.Join(ErrProviderConnection, err)
}

// retryBackoff is the pause before the single transient retry (injectable for tests)
var retryBackoff = 500 * time.Millisecond

// CompleteWithRetry calls the provider, retrying once with backoff on
// transient transport errors before giving up
func CompleteWithRetry(ctx context.Context, p Provider, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := p.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if !errors.Is(err, ErrProviderConnection) && !errors.Is(err, ErrProviderTimeout) {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(retryBackoff):
	}

	return p.Complete(ctx, req)
}
