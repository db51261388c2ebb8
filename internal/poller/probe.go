package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultRequestTimeout = 10 * time.Second

// ErrNotReady is returned by a probe when the origin answered with a non-2xx status.
var ErrNotReady = errors.New("transformation not ready")

// Prober checks whether a descriptor is retrievable. A nil error means ready;
// any error is a transient failure and the caller retries.
type Prober interface {
	Probe(ctx context.Context, descriptor string) error
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context, descriptor string) error

func (f ProbeFunc) Probe(ctx context.Context, descriptor string) error { return f(ctx, descriptor) }

// HTTPProber issues header-only requests with caching disabled, so every
// attempt reaches the origin instead of a stale negative cache entry.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber returns a prober whose requests time out after timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

// NewHTTPProberWithClient is used by tests to supply a custom transport.
func NewHTTPProberWithClient(client *http.Client) *HTTPProber {
	return &HTTPProber{client: client}
}

func (p *HTTPProber) Probe(ctx context.Context, descriptor string) error {
	target := strings.TrimSpace(descriptor)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe request: %w", err)
	}
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: http %d", ErrNotReady, resp.StatusCode)
	}
	return nil
}
