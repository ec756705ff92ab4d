// Package server implements the ops gateway: it serves the embedded
// prediction frontend and fronts the model API container with rate limiting
// and health aggregation.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
	"github.com/absenteeism-ml/absdeploy/internal/server/handlers"
	"github.com/absenteeism-ml/absdeploy/internal/server/middleware"
)

// Options configures the gateway.
type Options struct {
	Host string
	Port int

	// UpstreamURL is the model API base URL (e.g. http://localhost:8000).
	UpstreamURL string

	// PredictRPS bounds the rate of proxied /predict requests.
	PredictRPS float64

	Version string
	Logger  *zap.Logger
}

// Server is the ops gateway HTTP server.
type Server struct {
	host   string
	port   int
	router *chi.Mux
	logger *zap.Logger
}

// New builds the gateway and its routes.
func New(opts Options) (*Server, error) {
	upstream, err := url.Parse(opts.UpstreamURL)
	if err != nil || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", opts.UpstreamURL, err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		host:   opts.Host,
		port:   opts.Port,
		router: chi.NewRouter(),
		logger: opts.Logger,
	}

	manager := handlers.NewHealthManager(opts.Version)
	manager.RegisterChecker("model_api",
		handlers.NewUpstreamChecker(upstream.JoinPath("/health").String()))

	proxy := newUpstreamProxy(upstream, opts.Logger)
	limited := rateLimited(proxy, opts.PredictRPS)

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, http.StatusNotFound,
			apperrors.CodeNotFound, "resource not found: "+req.URL.Path, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, http.StatusMethodNotAllowed,
			apperrors.CodeMethodNotAllowed, "method not allowed: "+req.Method, nil)
	})

	// Embedded frontend.
	r.Get("/", serveAsset("index.html", "text/html; charset=utf-8"))
	r.Get("/index.html", serveAsset("index.html", "text/html; charset=utf-8"))
	r.Get("/style.css", serveAsset("style.css", "text/css; charset=utf-8"))
	r.Get("/app.js", serveAsset("app.js", "application/javascript; charset=utf-8"))

	// Model API passthrough.
	r.Post("/predict", validatedPredict(limited))
	r.Get("/health", proxy.ServeHTTP)

	// Gateway's own surface.
	r.Get("/gateway/health", manager.HealthHandler)
	r.Get("/gateway/health/live", manager.LivenessHandler)
	r.Get("/gateway/health/ready", manager.ReadinessHandler)
	r.Get("/gateway/health/startup", manager.StartupHandler)
	r.Get("/version", versionHandler(opts.Version))

	return s, nil
}

// Handler returns the gateway's root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the configured listen port.
func (s *Server) Port() int { return s.port }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return fmt.Sprintf("%s:%d", s.host, s.port) }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gateway listening", zap.String("addr", s.Addr()))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func versionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"version": version})
	}
}
