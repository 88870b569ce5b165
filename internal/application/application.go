package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/keypad-calculator/internal/api"
	"github.com/eugenenazirov/keypad-calculator/internal/calculator"
	"github.com/eugenenazirov/keypad-calculator/internal/config"
	"github.com/eugenenazirov/keypad-calculator/internal/storage"
)

const (
	minJanitorInterval = time.Second
	maxJanitorInterval = time.Minute
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage storage.Storage
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server

	janitorInterval time.Duration
	stopJanitor     context.CancelFunc
	janitorDone     chan struct{}
	stopOnce        sync.Once
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if cfg.MaxDigits < 1 {
		return nil, fmt.Errorf("max digits must be positive, got %d", cfg.MaxDigits)
	}
	if cfg.MaxSessions < 1 {
		return nil, fmt.Errorf("max sessions must be positive, got %d", cfg.MaxSessions)
	}

	store := storage.NewMemoryStorage(
		storage.WithMaxSessions(cfg.MaxSessions),
		storage.WithIdleTTL(cfg.SessionIdleTTL),
		storage.WithEngineOptions(calculator.WithMaxDigits(cfg.MaxDigits)),
	)

	handler := api.NewHandler(store, api.WithLogger(logger))
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	return &App{
		storage:         store,
		handler:         handler,
		router:          apiRouter,
		logger:          logger,
		server:          NewServer(cfg, BuildRootHandler(apiRouter)),
		janitorInterval: janitorInterval(cfg.SessionIdleTTL),
	}, nil
}

// BuildRootHandler mounts the API under /api/ and answers everything else with 404.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", http.NotFoundHandler())
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server and the idle session janitor in goroutines.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopJanitor = cancel
	a.janitorDone = make(chan struct{})
	go a.runJanitor(ctx)

	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop halts the session janitor. It is safe to call more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		if a.stopJanitor == nil {
			return
		}
		a.stopJanitor()
		<-a.janitorDone
	})
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

func (a *App) runJanitor(ctx context.Context) {
	defer close(a.janitorDone)

	ticker := time.NewTicker(a.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("session janitor stopped", zap.Int("sessions", a.storage.Len()))
			return
		case now := <-ticker.C:
			a.evictIdle(now)
		}
	}
}

func (a *App) evictIdle(now time.Time) {
	evicted := a.storage.EvictIdle(now.UTC())
	if len(evicted) == 0 {
		return
	}
	a.logger.Debug("evicted idle sessions",
		zap.Int("count", len(evicted)),
		zap.Strings("session_ids", evicted),
		zap.Int("remaining", a.storage.Len()),
	)
}

// janitorInterval sweeps four times per TTL, clamped to a sane range.
func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < minJanitorInterval {
		return minJanitorInterval
	}
	if interval > maxJanitorInterval {
		return maxJanitorInterval
	}
	return interval
}
