package govinfo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"uiverify/internal/logging"
	"uiverify/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const missingParams = "Missing required query parameters: congress, billType, billNumber"

// TitleFetcher looks up bill titles.
type TitleFetcher interface {
	FetchTitle(ctx context.Context, congress, billType, number string) (string, error)
}

// titleEndpoint is one title lookup route and the error bodies it answers
// with.
type titleEndpoint struct {
	name     string
	fetcher  TitleFetcher
	notFound string
	noTitle  string
	failed   string
}

// Server exposes /api/govinfo, and optionally /api/congress, over HTTP.
type Server struct {
	endpoints []titleEndpoint
	logger    *zap.Logger
	router    *chi.Mux
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCongress also serves /api/congress, backed by the Congress.gov bill API.
func WithCongress(fetcher TitleFetcher) ServerOption {
	return func(s *Server) {
		s.endpoints = append(s.endpoints, titleEndpoint{
			name:     "congress",
			fetcher:  fetcher,
			notFound: "Bill not found on Congress.gov",
			noTitle:  "Title not found in bill data.",
			failed:   "Failed to fetch bill title from Congress.gov",
		})
	}
}

// NewServer builds the router. fetcher backs /api/govinfo.
func NewServer(fetcher TitleFetcher, opts ...ServerOption) *Server {
	s := &Server{
		endpoints: []titleEndpoint{{
			name:     "govinfo",
			fetcher:  fetcher,
			notFound: "Bill not found",
			noTitle:  "Title not found in bill XML.",
			failed:   "Failed to fetch bill title",
		}},
		logger: logging.Get(logging.CategoryGovinfo),
	}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	for _, ep := range s.endpoints {
		r.Get("/api/"+ep.name, s.handleTitle(ep))
	}
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("serving bill titles", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleTitle(ep titleEndpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		congress := strings.TrimSpace(q.Get("congress"))
		billType := strings.TrimSpace(q.Get("billType"))
		number := strings.TrimSpace(q.Get("billNumber"))
		if congress == "" || billType == "" || number == "" {
			s.respondTitle(w, ep.name, http.StatusBadRequest, "error", missingParams)
			return
		}

		title, err := ep.fetcher.FetchTitle(r.Context(), congress, billType, number)
		switch {
		case err == nil:
			s.respondTitle(w, ep.name, http.StatusOK, "title", title)
		case errors.Is(err, ErrBillNotFound):
			s.respondTitle(w, ep.name, http.StatusNotFound, "error", ep.notFound)
		case errors.Is(err, ErrTitleNotFound):
			s.respondTitle(w, ep.name, http.StatusNotFound, "error", ep.noTitle)
		default:
			s.logger.Error("bill title lookup failed",
				zap.String("endpoint", ep.name),
				zap.String("congress", congress),
				zap.String("bill_type", billType),
				zap.String("bill_number", number),
				zap.Error(err))
			s.respondTitle(w, ep.name, http.StatusInternalServerError, "error", ep.failed)
		}
	}
}

// respondTitle writes a single-field body, {"title":...} or {"error":...}.
func (s *Server) respondTitle(w http.ResponseWriter, endpoint string, status int, key, value string) {
	metrics.RecordTitleResponse(endpoint, status)
	s.respondJSON(w, status, map[string]string{key: value})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}
