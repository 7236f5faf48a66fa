package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"neomap/core-go/internal/controller"
	"neomap/core-go/internal/metrics"
)

// ReadyCheck is one dependency probed by /readyz.
type ReadyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// CatalogInvalidator drops cached catalog answers before a forced refresh.
type CatalogInvalidator interface {
	InvalidateCatalog()
}

type Options struct {
	Metrics *metrics.Metrics
	// Limiter throttles layer updates and catalog refreshes; nil disables it.
	Limiter *rate.Limiter
	Ready   []ReadyCheck
	Catalog CatalogInvalidator
	// RequestTimeout bounds every request; it should exceed the fetch timeout.
	RequestTimeout time.Duration
}

type Handler struct {
	log            zerolog.Logger
	layers         *controller.Registry
	metrics        *metrics.Metrics
	limiter        *rate.Limiter
	ready          []ReadyCheck
	catalog        CatalogInvalidator
	requestTimeout time.Duration
}

func NewHandler(log zerolog.Logger, layers *controller.Registry, opts Options) *Handler {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Handler{
		log:            log,
		layers:         layers,
		metrics:        opts.Metrics,
		limiter:        opts.Limiter,
		ready:          opts.Ready,
		catalog:        opts.Catalog,
		requestTimeout: timeout,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.requestTimeout))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Get("/map", h.handleMap)

			r.Route("/layers", func(r chi.Router) {
				r.Get("/", h.handleListLayers)
				r.Post("/", h.handleCreateLayer)
				r.Route("/{key}", func(r chi.Router) {
					r.Get("/", h.handleGetLayer)
					r.Patch("/", h.handlePatchLayer)
					r.Delete("/", h.handleDeleteLayer)
					r.Put("/type", h.handleSetLayerType)
					r.Put("/node-labels", h.handleSetNodeLabels)
					r.Get("/query", h.handlePreviewQuery)
					r.With(h.throttle).Post("/update", h.handleUpdateLayer)
					r.With(h.throttle).Post("/catalog/refresh", h.handleRefreshCatalog)
				})
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), duration)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("http_request")
	})
}

// throttle rejects requests over the configured update rate.
func (h *Handler) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			h.writeError(w, http.StatusTooManyRequests, "rate_limited", "too many update requests, try again shortly", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.layers == nil {
		h.writeError(w, http.StatusServiceUnavailable, "not_configured", "layer registry not configured", nil)
		return
	}

	failed := map[string]any{}
	for _, c := range h.ready {
		if err := c.Ping(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		h.writeError(w, http.StatusServiceUnavailable, "dependency_unavailable", "dependencies not ready", failed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}
