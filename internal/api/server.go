// Package api exposes the HTTP interface for the dashboard service.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webleadsnow/linkboard/internal/aggregate"
	"github.com/webleadsnow/linkboard/internal/config"
	"github.com/webleadsnow/linkboard/internal/metrics"
	"github.com/webleadsnow/linkboard/internal/seo"
)

const (
	authCookie   = "auth_token"
	cookieMaxAge = 7 * 24 * 60 * 60
	defaultDays  = 30
	gscFetchDays = 90
)

// Aggregator is the orchestration surface the handlers call.
type Aggregator interface {
	BacklinkProfile(ctx context.Context, targetURL string) (aggregate.Profile, error)
	CompetitorGap(ctx context.Context, domain, competitor string) (seo.CompetitorGap, error)
	RunProject(ctx context.Context, p seo.Project) (seo.Run, error)
	RunStored(ctx context.Context, projectID string) (seo.Run, error)
	Report(ctx context.Context, projectID string, days int) (aggregate.ReportData, error)
}

// ProjectStore is the persistence surface the handlers call.
type ProjectStore interface {
	SaveProject(ctx context.Context, p seo.Project) (seo.Project, error)
	GetProject(ctx context.Context, id string) (seo.Project, error)
	ListProjects(ctx context.Context) ([]seo.Project, error)
	DeleteProject(ctx context.Context, id string) error
	GetRuns(ctx context.Context, id string) ([]seo.Run, error)
	SaveRun(ctx context.Context, id string, run seo.Run) error
}

// Ranker runs the two-phase SERP position check.
type Ranker interface {
	Submit(ctx context.Context, keyword, domain string) (seo.RankCheck, error)
	Poll(ctx context.Context, keyword, domain, taskID string) (seo.RankCheck, error)
}

// Evaluator scores one backlink opportunity.
type Evaluator interface {
	Evaluate(ctx context.Context, sourceURL, targetURL string) (seo.Evaluation, error)
}

// TokenFlow is the OAuth connection surface.
type TokenFlow interface {
	AuthCodeURL(projectID string) string
	Exchange(ctx context.Context, projectID, code string) (seo.TokenSet, error)
	Load(ctx context.Context, projectID string) (seo.TokenSet, error)
	Disconnect(ctx context.Context, projectID string) error
}

// SearchConsole is the connected-analytics surface.
type SearchConsole interface {
	Sites(ctx context.Context, projectID string) ([]string, error)
	Snapshot(ctx context.Context, projectID, siteURL string, days int) (*seo.SearchSnapshot, error)
}

// Reporter builds and emails the client report.
type Reporter interface {
	Email(ctx context.Context, projectID, to, notes string, days int) (string, error)
}

// Server wires HTTP handlers to the orchestrator and stores.
type Server struct {
	router   chi.Router
	store    ProjectStore
	agg      Aggregator
	ranker   Ranker
	research Evaluator
	tokens   TokenFlow
	gsc      SearchConsole
	reports  Reporter
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store ProjectStore,
	agg Aggregator,
	ranker Ranker,
	research Evaluator,
	tokens TokenFlow,
	gsc SearchConsole,
	reports Reporter,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:    store,
		agg:      agg,
		ranker:   ranker,
		research: research,
		tokens:   tokens,
		gsc:      gsc,
		reports:  reports,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(cfg.ServerTimeout()))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth", s.handleAuth)
		r.Get("/auth/google", s.handleGoogleAuth)
		r.Get("/auth/google/callback", s.handleGoogleCallback)

		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)

			r.Get("/projects", s.handleProjectList)
			r.Post("/projects", s.handleProjectAction)
			r.Post("/projects/run", s.handleProjectRun)
			r.Post("/backlinks", s.handleBacklinks)
			r.Post("/competitor-gap", s.handleCompetitorGap)
			r.Post("/rank", s.handleRank)
			r.Post("/evaluate", s.handleEvaluate)
			r.Post("/gsc", s.handleGSC)
			r.Post("/reports", s.handleReports)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The KV store is the only hard dependency.
	if _, err := s.store.ListProjects(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

// sessionMiddleware admits requests carrying either the dashboard session
// cookie or the API key header.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Auth.APIKey != "" {
			key := r.Header.Get("X-API-Key")
			if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Auth.APIKey)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		if s.cfg.Auth.Password != "" {
			if c, err := r.Cookie(authCookie); err == nil &&
				subtle.ConstantTimeCompare([]byte(c.Value), []byte(s.sessionToken())) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}

func (s *Server) sessionToken() string {
	return base64.StdEncoding.EncodeToString([]byte(s.cfg.Auth.Password))
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, seo.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, seo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, seo.ErrNotConnected):
		return http.StatusUnauthorized
	case errors.Is(err, seo.ErrPollTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
