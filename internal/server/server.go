package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/observability"
	"github.com/raaihank/pii-sentinel/internal/privacy"
	"github.com/raaihank/pii-sentinel/internal/security"
	"github.com/raaihank/pii-sentinel/internal/websocket"
)

// Version is reported by /info
var Version = "0.1.0"

// Server is the HTTP scan service. The active scanner is swapped atomically
// when the rules file changes; requests in flight finish on the catalog they
// started with.
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	scanner atomic.Pointer[privacy.Scanner]
	router  *mux.Router
	server  *http.Server
	wsHub   *websocket.Hub
	limiter *security.RateLimiter
	metrics *observability.Metrics
	watcher *privacy.Watcher
	started time.Time
	cancel  context.CancelFunc

	totalScans   atomic.Int64
	flaggedScans atomic.Int64
}

// statusInterval is how often connected dashboards get a system_status event
const statusInterval = 30 * time.Second

// New loads the rules and wires the service. A rules file that does not load
// is fatal.
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	catalog, err := privacy.LoadCatalog(cfg.Rules.Path, catalogOptions(cfg, log)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	limiter, err := security.NewRateLimiter(&cfg.RateLimit, log.WithComponent("ratelimit").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		router:  mux.NewRouter(),
		limiter: limiter,
		metrics: observability.NewMetrics(cfg.Metrics.Namespace),
		started: time.Now(),
	}
	s.setScanner(privacy.NewScanner(catalog))

	if cfg.WebSocket.Enabled {
		s.wsHub = websocket.NewHub(&websocket.HubConfig{
			BroadcastScans:       cfg.WebSocket.Events.BroadcastScans,
			BroadcastSystem:      cfg.WebSocket.Events.BroadcastSystem,
			BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
			Username:             cfg.WebSocket.Username,
			PasswordHash:         cfg.WebSocket.PasswordHash,
			MaxConnections:       cfg.WebSocket.MaxConnections,
		}, log.Logger)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

func catalogOptions(cfg *config.Config, log *logger.Logger) []privacy.CatalogOption {
	opts := []privacy.CatalogOption{privacy.WithCatalogLogger(log.WithComponent("rules"))}
	if cfg.Rules.StrictPlaceholders {
		opts = append(opts, privacy.WithStrictPlaceholders())
	}
	return opts
}

func (s *Server) setupRoutes() {
	s.router.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.config.Metrics.Enabled {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	if s.wsHub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/scan/batch", s.handleScanBatch).Methods(http.MethodPost)
	api.HandleFunc("/rules", s.handleRules).Methods(http.MethodGet)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Scanner returns the scanner currently in service.
func (s *Server) Scanner() *privacy.Scanner {
	return s.scanner.Load()
}

func (s *Server) setScanner(scanner *privacy.Scanner) {
	s.scanner.Store(scanner)
	catalog := scanner.Catalog()
	s.metrics.SetActiveRules(len(catalog.Standalone()), len(catalog.Combinatorial()))
}

// Reload swaps in a new catalog.
func (s *Server) Reload(catalog *privacy.Catalog) {
	s.scanner.Store(privacy.NewScanner(catalog))
	s.metrics.ObserveReload(true, len(catalog.Standalone()), len(catalog.Combinatorial()))

	if s.wsHub != nil {
		s.wsHub.BroadcastRulesReloaded(websocket.RulesReloadedEvent{
			Path:          s.config.Rules.Path,
			Standalone:    len(catalog.Standalone()),
			Combinatorial: len(catalog.Combinatorial()),
		})
	}
}

// Start runs background workers and blocks serving HTTP until Stop.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.config.Rules.Watch {
		watcher, err := privacy.NewWatcher(s.config.Rules.Path, s.config.Rules.ReloadDebounce, s.Reload,
			s.logger.WithComponent("rules"), catalogOptions(s.config, s.logger)...)
		if err != nil {
			return fmt.Errorf("failed to create rules watcher: %w", err)
		}
		watcher.OnError(func(error) {
			s.metrics.ObserveReload(false, 0, 0)
		})
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to watch rules file: %w", err)
		}
		s.watcher = watcher
	}

	if s.wsHub != nil {
		go s.wsHub.Run(ctx)
		go s.statusLoop(ctx)
	}
	s.limiter.StartCleanupRoutine(ctx)

	catalog := s.Scanner().Catalog()
	s.logger.Info("Starting PII scan service",
		zap.Int("port", s.config.Server.Port),
		zap.String("rules", s.config.Rules.Path),
		zap.Int("standalone_rules", len(catalog.Standalone())),
		zap.Int("combinatorial_sets", len(catalog.Combinatorial())),
		zap.Bool("watch_rules", s.config.Rules.Watch),
		zap.Bool("websocket", s.wsHub != nil),
		zap.Bool("rate_limit", s.config.RateLimit.Enabled))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := s.status()
			s.metrics.ActiveClients.Set(float64(status.ConnectedClients))
			s.wsHub.BroadcastEvent(websocket.Event{Type: websocket.EventTypeSystemStatus, Data: status})
		}
	}
}

func (s *Server) status() websocket.SystemStatusEvent {
	catalog := s.Scanner().Catalog()
	status := websocket.SystemStatusEvent{
		Status:       "healthy",
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		TotalScans:   s.totalScans.Load(),
		FlaggedScans: s.flaggedScans.Load(),
		ActiveRules:  len(catalog.Standalone()) + len(catalog.Combinatorial()),
	}
	if s.wsHub != nil {
		status.ConnectedClients = s.wsHub.ClientCount()
	}
	return status
}

// Stop gracefully stops the HTTP server and background workers
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping PII scan service")

	if s.cancel != nil {
		s.cancel()
	}
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn("Failed to stop rules watcher", zap.Error(err))
		}
	}
	if err := s.limiter.Close(); err != nil {
		s.logger.Warn("Failed to close rate limiter", zap.Error(err))
	}
	return s.server.Shutdown(ctx)
}
