// Package server serves a converted collection over HTTP.
//
// Routes:
//
//	GET /healthz              liveness and collection summary
//	GET /collection           the full FeatureCollection
//	GET /cells?bbox=x0,y0,x1,y1  features whose bounds intersect the box
//	GET /cells/{id}           one feature by numeric id or display name
//	GET /metrics              Prometheus metrics, when a gatherer is set
//
// Errors are JSON objects with "code" and "error" fields. The status code
// follows the error code of the failure.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gabrielascui/xenium-to-qupath/pkg/buildinfo"
	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
	"github.com/gabrielascui/xenium-to-qupath/pkg/index"
	xio "github.com/gabrielascui/xenium-to-qupath/pkg/io"
	"github.com/gabrielascui/xenium-to-qupath/pkg/observability"
)

const contentTypeGeoJSON = "application/geo+json"

// DefaultLimit caps the features returned by a bbox query when the request
// does not set one.
const DefaultLimit = 10000

// Options configures a [Server].
type Options struct {
	Logger *log.Logger

	// Gatherer exposes /metrics when set.
	Gatherer prometheus.Gatherer

	// Limit caps bbox results. Zero means DefaultLimit.
	Limit int
}

// Server answers queries against one indexed collection.
type Server struct {
	idx    *index.Index
	opts   Options
	logger *log.Logger

	once       sync.Once
	collection []byte
	encodeErr  error
}

// New creates a server for idx.
func New(idx *index.Index, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Server{idx: idx, opts: opts, logger: opts.Logger}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Get("/collection", s.handleCollection)
	r.Get("/cells", s.handleQuery)
	r.Get("/cells/{id}", s.handleCell)
	if s.opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", observability.Handler(s.opts.Gatherer))
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("Serving", "addr", addr, "features", s.idx.Len())

	select {
	case err := <-errCh:
		return apperrors.Wrap(apperrors.ErrCodeNetwork, err, "listen on %s", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// observe reports every request to the HTTP hooks and the debug log.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		hooks := observability.HTTP()
		hooks.OnRequest(r.Context(), r.Method, r.URL.Path)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		d := time.Since(start)
		hooks.OnResponse(r.Context(), r.Method, route, status, d)
		s.logger.Debug("http",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", d,
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "application/json", map[string]any{
		"status":   "ok",
		"features": s.idx.Len(),
		"bounds":   s.idx.Bounds(),
		"build":    buildinfo.Get(),
	})
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	s.once.Do(func() {
		s.collection, s.encodeErr = xio.MarshalGeoJSON(s.idx.Collection(), xio.WriteOptions{})
	})
	if s.encodeErr != nil {
		s.writeError(w, r, s.encodeErr)
		return
	}
	w.Header().Set("Content-Type", contentTypeGeoJSON)
	w.Header().Set("Content-Length", strconv.Itoa(len(s.collection)))
	w.Write(s.collection)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := q.Get("bbox")
	if raw == "" {
		s.writeError(w, r, apperrors.New(apperrors.ErrCodeInvalidInput, "bbox parameter is required"))
		return
	}
	box, err := index.ParseBox(raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit := s.opts.Limit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, apperrors.New(apperrors.ErrCodeInvalidInput, "limit %q must be a positive integer", v))
			return
		}
		limit = min(n, s.opts.Limit)
	}

	hits := s.idx.Query(box)
	if len(hits) > limit {
		w.Header().Set("X-Truncated", strconv.Itoa(len(hits)))
		hits = hits[:limit]
	}
	writeJSON(w, http.StatusOK, contentTypeGeoJSON, xio.NewFeatureCollection(cells.NewCollection(hits)))
}

func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	f, err := s.idx.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contentTypeGeoJSON, xio.NewFeature(f))
}

type errorBody struct {
	Code  apperrors.Code `json:"code,omitempty"`
	Error string         `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	route := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		route = rc.RoutePattern()
	}
	observability.HTTP().OnError(r.Context(), r.Method, route, err)

	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "route", route, "err", err)
	}
	writeJSON(w, status, "application/json", errorBody{
		Code:  apperrors.GetCode(err),
		Error: apperrors.UserMessage(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
