package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
)

const validPredictBody = `{
	"reason_for_absence": 23,
	"month_of_absence": 7,
	"day_of_the_week": 3,
	"seasons": 1,
	"transportation_expense": 289,
	"distance_from_residence_to_work": 36,
	"service_time": 13,
	"age": 33,
	"work_load_average_per_day": 239.554,
	"hit_target": 97,
	"disciplinary_failure": 0,
	"education": 1,
	"son": 2,
	"social_drinker": 1,
	"social_smoker": 0,
	"pet": 1,
	"weight": 90,
	"height": 172,
	"body_mass_index": 30
}`

func newTestServer(t *testing.T, upstreamURL string, rps float64) *Server {
	t.Helper()
	if upstreamURL == "" {
		upstreamURL = "http://127.0.0.1:18000"
	}
	srv, err := New(Options{
		Host:        "127.0.0.1",
		Port:        0,
		UpstreamURL: upstreamURL,
		PredictRPS:  rps,
		Version:     "test",
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return srv
}

func TestUnknownRouteReturnsErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, "", 5)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apperrors.CodeNotFound, body.Error.Code)
}

func TestMethodNotAllowedEnvelope(t *testing.T) {
	srv := newTestServer(t, "", 5)

	req := httptest.NewRequest(http.MethodPost, "/version", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apperrors.CodeMethodNotAllowed, body.Error.Code)
}

func TestFrontendServedFromEmbeddedAssets(t *testing.T) {
	srv := newTestServer(t, "", 5)

	tests := []struct {
		path        string
		contentType string
		marker      string
	}{
		{"/", "text/html", "Absenteeism Prediction"},
		{"/style.css", "text/css", "fieldset"},
		{"/app.js", "application/javascript", "predict-form"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), tt.contentType)
			assert.Contains(t, rec.Body.String(), tt.marker)
		})
	}
}

func TestPredictProxiesToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predicted_absenteeism_hours": 4.2, "model_version": "1.0.0"}`))
	}))
	defer upstream.Close()

	srv := newTestServer(t, upstream.URL, 100)

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(validPredictBody))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "predicted_absenteeism_hours")
}

func TestHealthProxiesToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "healthy", "model_loaded": true}`))
	}))
	defer upstream.Close()

	srv := newTestServer(t, upstream.URL, 5)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "model_loaded")
}

func TestPredictRateLimited(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	srv := newTestServer(t, upstream.URL, 1)

	codes := make(map[int]int)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(validPredictBody))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		codes[rec.Code]++
	}

	assert.Positive(t, codes[http.StatusOK])
	assert.Positive(t, codes[http.StatusTooManyRequests])
}

func TestUpstreamDownYieldsServiceUnavailable(t *testing.T) {
	// Port 1 is never listening.
	srv := newTestServer(t, "http://127.0.0.1:1", 100)

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(validPredictBody))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apperrors.CodeServiceUnavailable, body.Error.Code)
}

func TestVersionEndpoint(t *testing.T) {
	srv := newTestServer(t, "", 5)

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "test", body["version"])
}

func TestInvalidUpstreamURLRejected(t *testing.T) {
	_, err := New(Options{Host: "127.0.0.1", UpstreamURL: "://broken", Version: "test"})
	assert.Error(t, err)
}

func TestServerAddr(t *testing.T) {
	srv := newTestServer(t, "", 5)
	assert.Equal(t, 0, srv.Port())
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
}
