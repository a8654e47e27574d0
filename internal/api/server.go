// internal/api/server.go
//
// Package api exposes the keeper's on-demand triggers and mirror views over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/executor"
	"github.com/rovshanmuradov/bonk-keeper/internal/orchestrator"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
)

// Keeper is the orchestrator surface served over HTTP.
type Keeper interface {
	RunBatch(ctx context.Context) (*orchestrator.Summary, error)
	CompleteVictory(ctx context.Context, mint solana.PublicKey) *orchestrator.FlowResult
	Reconcile(ctx context.Context, mint solana.PublicKey) (*models.Token, error)
	MatchPass(ctx context.Context) (*orchestrator.MatchSummary, error)
	RefreshPrice(ctx context.Context) (*executor.Result, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr           string
	Secret         string
	AllowedOrigins []string
	// RequestTimeout bounds a triggered pass.
	RequestTimeout time.Duration
}

// Server is the keeper HTTP API.
type Server struct {
	keeper     Keeper
	store      storage.Store
	thresholds battle.Thresholds
	metrics    http.Handler
	cfg        Config
	srv        *http.Server
	logger     *zap.Logger
}

// New creates the server. metrics may be nil.
func New(keeper Keeper, store storage.Store, thresholds battle.Thresholds, metrics http.Handler, cfg Config, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	s := &Server{
		keeper:     keeper,
		store:      store,
		thresholds: thresholds,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger.Named("api"),
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(RequestID(s.logger))

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/battles/status", s.status).Methods(http.MethodGet)

	post := r.NewRoute().Subrouter()
	post.Use(BearerAuth(s.cfg.Secret))
	post.HandleFunc("/battles/auto-complete", s.autoComplete).Methods(http.MethodPost)
	post.HandleFunc("/battles/complete-victory", s.completeVictory).Methods(http.MethodPost)
	post.HandleFunc("/battles/reconcile", s.reconcile).Methods(http.MethodPost)
	post.HandleFunc("/battles/match", s.match).Methods(http.MethodPost)
	post.HandleFunc("/price/refresh", s.refreshPrice).Methods(http.MethodPost)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	})
	return c.Handler(r)
}

// Start serves in the background.
func (s *Server) Start() error {
	go func() {
		s.logger.Info("🌐 API listening", zap.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}
