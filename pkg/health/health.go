// Package health polls the prediction API's /health endpoint.
//
// Two checks are distinguished:
//   - liveness: the process accepts connections and returns 2xx.
//   - readiness: the body additionally reports model_loaded=true, meaning the
//     model artifact was loaded and predictions will be served.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/absenteeism-ml/absdeploy/pkg/retry"
)

// Status is the terminal result of a liveness poll.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Readiness is the decoded /health body plus the transport-level outcome.
type Readiness struct {
	// Live is true when the endpoint returned 2xx.
	Live bool

	// Status is the service-reported status string ("healthy", ...).
	Status string `json:"status"`

	// ModelLoaded is the readiness marker: the model artifact has been
	// loaded and the service can produce predictions.
	ModelLoaded bool `json:"model_loaded"`
}

// Ready reports full readiness: live and model loaded.
func (r Readiness) Ready() bool { return r.Live && r.ModelLoaded }

// Client polls a single health URL.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient builds a health client for the given URL. A nil httpClient gets
// a short per-request timeout so a wedged service cannot stall the poll loop
// past its attempt budget.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{url: url, httpClient: httpClient}
}

// URL returns the polled endpoint.
func (c *Client) URL() string { return c.url }

// WaitLive polls until the endpoint returns 2xx, the attempt budget is
// exhausted, or ctx is cancelled. The first success terminates immediately;
// exhaustion yields StatusUnhealthy with the underlying error.
func (c *Client) WaitLive(ctx context.Context, maxAttempts int, interval time.Duration) (Status, error) {
	err := retry.Do(ctx, retry.Policy{MaxAttempts: maxAttempts, Interval: interval}, func(ctx context.Context) error {
		return c.checkLive(ctx)
	})
	if err != nil {
		return StatusUnhealthy, err
	}
	return StatusHealthy, nil
}

// CheckReady issues one GET and inspects the body for the readiness marker.
func (c *Client) CheckReady(ctx context.Context) (Readiness, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Readiness{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Readiness{}, fmt.Errorf("readiness check %s: %w", c.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var r Readiness
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&r); err != nil {
		return Readiness{}, fmt.Errorf("decode readiness body: %w", err)
	}
	r.Live = resp.StatusCode >= 200 && resp.StatusCode < 300
	return r, nil
}

func (c *Client) checkLive(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return retry.Abort(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	// Drain so the connection can be reused between attempts.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}
