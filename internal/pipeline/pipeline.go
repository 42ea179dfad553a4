// Package pipeline is the boundary to the external multi-stage discovery
// pipeline. The pipeline is an opaque, minutes-scale operation that turns
// discovery inputs into a raw markdown report; everything downstream of the
// raw text lives elsewhere.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/scholarsource/scholarsource/pkg/models"
)

// Sentinel errors for pipeline failures.
var (
	ErrUnreachable = errors.New("pipeline unreachable")
	ErrTimeout     = errors.New("pipeline timeout")
)

// Runner executes the external pipeline. Run blocks for the full duration of
// the pipeline; implementations must honor ctx cancellation so a revoked job
// can abandon the call.
type Runner interface {
	Run(ctx context.Context, inputs models.DiscoveryInputs) (string, error)
}

// HTTPRunner implements Runner against the pipeline service's HTTP API.
type HTTPRunner struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPRunner creates an HTTPRunner. Each run is bounded by timeout; the
// HTTP client itself carries none so long runs are not cut off early.
func NewHTTPRunner(baseURL string, timeout time.Duration) *HTTPRunner {
	return &HTTPRunner{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// Run posts the inputs to the pipeline service and returns its raw markdown
// output.
func (r *HTTPRunner) Run(ctx context.Context, inputs models.DiscoveryInputs) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	body, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("marshal pipeline inputs: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/run", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build pipeline request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read pipeline output: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pipeline returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	return string(raw), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
