package container

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Prober checks whether a runner is ready to accept connections.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// HTTPProber issues GET requests; a 200 means ready.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober whose requests give up after timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProber) Probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &ProbeStatusError{URL: url, Status: resp.StatusCode}
	}
	return nil
}
