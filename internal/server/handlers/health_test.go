package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubChecker struct {
	err   error
	delay time.Duration
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.err
}

func TestHealthHandlerReturnsHealthyStatus(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("model_api", stubChecker{})

	req := httptest.NewRequest(http.MethodGet, "/gateway/health", nil)
	rec := httptest.NewRecorder()

	manager.HealthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Fatalf("expected healthy status, got %s", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %s", resp.Version)
	}
	if resp.Checks["model_api"] != "healthy" {
		t.Fatalf("expected model_api check to be healthy, got %s", resp.Checks["model_api"])
	}
}

func TestHealthHandlerReturnsServiceUnavailableWhenUnhealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("model_api", stubChecker{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/gateway/health", nil)
	rec := httptest.NewRecorder()

	manager.HealthHandler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	var resp struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Error.Code != "SERVICE_UNAVAILABLE" {
		t.Fatalf("expected SERVICE_UNAVAILABLE error code, got %s", resp.Error.Code)
	}

	checks, ok := resp.Error.Details["checks"].(map[string]any)
	if !ok {
		t.Fatalf("expected checks in error details")
	}
	if status, ok := checks["model_api"].(string); !ok || status != "unhealthy" {
		t.Fatalf("expected model_api check to be unhealthy, got %v", checks["model_api"])
	}
}

func TestDetermineOverallStatusTreatsTimeoutAsDegraded(t *testing.T) {
	manager := NewHealthManager("dev")

	status := manager.determineOverallStatus(map[string]string{
		"model_api": "timeout",
	})

	if status != "degraded" {
		t.Fatalf("expected degraded status, got %s", status)
	}
}

func TestSlowCheckerReportsTimeout(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.perCheckTimeout = 10 * time.Millisecond
	manager.RegisterChecker("model_api", stubChecker{delay: time.Second})

	checks := manager.runChecks(context.Background())
	if checks["model_api"] != "timeout" {
		t.Fatalf("expected timeout, got %s", checks["model_api"])
	}
}

func TestLivenessHandlerAlwaysOK(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("model_api", stubChecker{err: errors.New("down")})

	req := httptest.NewRequest(http.MethodGet, "/gateway/health/live", nil)
	rec := httptest.NewRecorder()

	manager.LivenessHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestGlobalHandlers(t *testing.T) {
	original := globalHealthManager
	defer func() { globalHealthManager = original }()

	t.Run("503 before init", func(t *testing.T) {
		globalHealthManager = nil

		req := httptest.NewRequest(http.MethodGet, "/gateway/health", nil)
		rec := httptest.NewRecorder()
		HealthHandler(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503 when not initialized, got %d", rec.Code)
		}
	})

	t.Run("ok after init", func(t *testing.T) {
		InitHealthManager("test-version")
		if GetHealthManager() == nil {
			t.Fatal("expected global manager to be initialized")
		}

		req := httptest.NewRequest(http.MethodGet, "/gateway/health", nil)
		rec := httptest.NewRecorder()
		HealthHandler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
	})
}
