package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpstreamChecker(t *testing.T) {
	t.Run("ready upstream is healthy", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status": "healthy", "model_loaded": true}`))
		}))
		defer upstream.Close()

		err := NewUpstreamChecker(upstream.URL + "/health").CheckHealth(context.Background())
		assert.NoError(t, err)
	})

	t.Run("live without model is unhealthy", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status": "starting", "model_loaded": false}`))
		}))
		defer upstream.Close()

		err := NewUpstreamChecker(upstream.URL + "/health").CheckHealth(context.Background())
		assert.Error(t, err)
	})

	t.Run("unreachable upstream is unhealthy", func(t *testing.T) {
		err := NewUpstreamChecker("http://127.0.0.1:1/health").CheckHealth(context.Background())
		assert.Error(t, err)
	})
}
