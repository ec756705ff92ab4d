package handlers

import (
	"context"
	"fmt"

	"github.com/absenteeism-ml/absdeploy/pkg/health"
)

// UpstreamChecker probes the model API behind the gateway.
type UpstreamChecker struct {
	client *health.Client
}

// NewUpstreamChecker builds a checker for the model API health URL.
func NewUpstreamChecker(healthURL string) *UpstreamChecker {
	return &UpstreamChecker{client: health.NewClient(healthURL, nil)}
}

// CheckHealth reports unhealthy when the model API is unreachable, not
// live, or live without a loaded model.
func (c *UpstreamChecker) CheckHealth(ctx context.Context) error {
	readiness, err := c.client.CheckReady(ctx)
	if err != nil {
		return err
	}
	if !readiness.Ready() {
		return fmt.Errorf("model API not ready (status %q, model_loaded %v)",
			readiness.Status, readiness.ModelLoaded)
	}
	return nil
}
