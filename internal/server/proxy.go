package server

import (
	"io/fs"
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	webassets "github.com/absenteeism-ml/absdeploy/internal/assets/web"
	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
)

// newUpstreamProxy builds a reverse proxy to the model API. Upstream
// failures become 503 envelopes instead of the proxy's default bare 502.
func newUpstreamProxy(upstream *url.URL, logger *zap.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("Upstream request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		apperrors.RespondWithError(w, http.StatusServiceUnavailable,
			apperrors.CodeServiceUnavailable, "model API unavailable", nil)
	}
	return proxy
}

// rateLimited wraps next with a token bucket. Predictions are cheap for the
// gateway but not for the model process; the bucket protects it from bursts.
func rateLimited(next http.Handler, rps float64) http.HandlerFunc {
	if rps <= 0 {
		rps = 1
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			apperrors.RespondWithError(w, http.StatusTooManyRequests,
				apperrors.CodeRateLimited, "prediction rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// serveAsset serves one embedded frontend file with a fixed content type.
func serveAsset(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		data, err := fs.ReadFile(webassets.FS, name)
		if err != nil {
			apperrors.RespondWithError(w, http.StatusInternalServerError,
				apperrors.CodeInternal, "missing embedded asset "+name, nil)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}
}
