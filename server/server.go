package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"bondoracle/referral"
	"bondoracle/signer"
	"bondoracle/store"
	"bondoracle/verify"
)

const serviceName = "bond-oracle"

// Config captures the dependencies required to construct the server.
type Config struct {
	Store          *store.Store
	Ledger         referral.Ledger
	Signer         *signer.Signer
	Verifiers      *verify.Table
	Logger         *slog.Logger
	RequestTimeout time.Duration
	RateLimit      RateLimit
}

// Server is the HTTP front-end for task verification and referral tracking.
type Server struct {
	store          *store.Store
	ledger         referral.Ledger
	signer         *signer.Signer
	verifiers      *verify.Table
	logger         *slog.Logger
	requestTimeout time.Duration
	nowFn          func() time.Time

	metrics *metrics
	router  http.Handler
}

// New constructs a configured router with rate limiting and metrics wired in.
func New(cfg Config) *Server {
	if cfg.Store == nil {
		panic("completion store required")
	}
	if cfg.Ledger == nil {
		panic("referral ledger required")
	}
	if cfg.Signer == nil {
		panic("attestation signer required")
	}
	if cfg.Verifiers == nil {
		panic("verifier table required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	srv := &Server{
		store:          cfg.Store,
		ledger:         cfg.Ledger,
		signer:         cfg.Signer,
		verifiers:      cfg.Verifiers,
		logger:         logger,
		requestTimeout: timeout,
		nowFn:          time.Now,
		metrics:        newMetrics(),
	}
	srv.router = srv.buildRouter(cfg.RateLimit)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(limits RateLimit) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.metrics.middleware)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(newRateLimiter(limits, s.logger).middleware)

		api.Get("/health", s.handleHealth)
		api.Post("/verify-task", s.handleVerifyTask)
		api.Get("/stats", s.handleTaskStats)

		api.Route("/referral", func(ref chi.Router) {
			ref.Post("/generate", s.handleGenerateCode)
			ref.Post("/click", s.handleTrackClick)
			ref.Post("/convert", s.handleTrackConversion)
			ref.Get("/stats/{code}", s.handleReferralStats)
			ref.Get("/leaderboard", s.handleLeaderboard)
			ref.Get("/codes/{owner}", s.handleCodesByOwner)
		})
	})

	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"status":  "running",
		"endpoints": map[string]string{
			"health":           "GET /health",
			"verifyTask":       "POST /api/verify-task",
			"generateReferral": "POST /api/referral/generate",
			"trackClick":       "POST /api/referral/click",
			"trackConversion":  "POST /api/referral/convert",
			"referralStats":    "GET /api/referral/stats/{code}",
			"leaderboard":      "GET /api/referral/leaderboard",
			"codesByOwner":     "GET /api/referral/codes/{owner}",
			"taskStats":        "GET /api/stats",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.nowFn().UTC().Format(time.RFC3339),
		"service":   serviceName,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
