package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/playground/internal/api/http"
	"github.com/GriffinCanCode/playground/internal/api/middleware"
	"github.com/GriffinCanCode/playground/internal/api/ws"
	"github.com/GriffinCanCode/playground/internal/domain/workspace"
	"github.com/GriffinCanCode/playground/internal/infrastructure/config"
	"github.com/GriffinCanCode/playground/internal/infrastructure/logging"
	"github.com/GriffinCanCode/playground/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/playground/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/playground/internal/providers/assets"
	"github.com/GriffinCanCode/playground/internal/sandbox/channel"
	"github.com/GriffinCanCode/playground/internal/sandbox/host"
	"github.com/GriffinCanCode/playground/internal/sandbox/runtime"
	"github.com/GriffinCanCode/playground/internal/sandbox/template"
	"github.com/GriffinCanCode/playground/internal/storage"
	"github.com/GriffinCanCode/playground/internal/storage/memory"
	"github.com/GriffinCanCode/playground/internal/storage/sqlite"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	workspaces *workspace.Manager
	documents  *host.DocumentStore
	store      storage.CodeStore
	assets     *assets.Provider
	tracer     *tracing.Tracer
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// Option customizes server construction
type Option func(*options)

type options struct {
	logger   *logging.Logger
	registry *prometheus.Registry
}

// WithLogger replaces the logger built from the logging config
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry registers metrics with reg instead of the default registry
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
		if err != nil {
			return nil, err
		}
	}

	logger.Info("Initializing playground server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("asset_proxy", cfg.Assets.Proxy),
	)

	var (
		metrics  *monitoring.Metrics
		gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	)
	if o.registry != nil {
		metrics = monitoring.NewMetricsWith(o.registry)
		gatherer = o.registry
	} else {
		metrics = monitoring.NewMetrics()
	}

	tracer := tracing.New("playground", logger.Logger)

	store, err := openStore(cfg.Storage)
	if err != nil {
		tracer.Close()
		return nil, err
	}
	logger.Info("Snippet store ready", zap.String("driver", cfg.Storage.Driver))

	var genOpts []template.Option
	if cfg.Assets.Proxy {
		genOpts = append(genOpts, template.WithAssetBase("/assets"))
	}
	gen := template.New(genOpts...)
	documents := host.NewDocumentStore()

	provider := assets.New(assets.Config{
		Timeout:  cfg.Assets.Timeout.Duration,
		Retries:  cfg.Assets.Retries,
		CacheTTL: cfg.Assets.CacheTTL.Duration,
		MaxBytes: cfg.Assets.MaxBytes,
	},
		assets.WithMetrics(metrics),
		assets.WithTracer(tracer),
		assets.WithLogger(logger.Named("assets")),
	)

	workspaces := workspace.NewManager(workspace.Deps{
		Generator: gen,
		Factory: host.RuntimeFactory{
			Config: runtime.Config{
				ExecTimeout:   cfg.Sandbox.ExecTimeout.Duration,
				FrameInterval: cfg.Sandbox.FrameInterval.Duration,
				Snapshots:     cfg.Sandbox.Snapshots,
			},
			Logger: logger.Named("sandbox"),
		},
		Documents: documents,
		Bus:       channel.NewBus(),
		Store:     store,
		Metrics:   metrics,
		Logger:    logger.Named("workspace"),
	}, workspace.Config{
		FlashDuration:  cfg.Sandbox.FlashDuration.Duration,
		RequestTimeout: cfg.Sandbox.RequestTimeout.Duration,
		MaxLogEntries:  cfg.Sandbox.MaxLogEntries,
	})

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery(logger.Logger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(middleware.Logger(logger.Logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowOrigins...)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Generator:  gen,
		Documents:  documents,
		Store:      store,
		Assets:     provider,
		Workspaces: workspaces,
		Metrics:    metrics,
		Logger:     logger.Logger,
	})
	handlers.Register(router)
	handlers.RegisterMetrics(router, gatherer)

	wsHandler := ws.NewHandler(workspaces, metrics, tracer, logger.Logger, cfg.Server.AllowOrigins...)
	router.GET("/stream", wsHandler.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		workspaces: workspaces,
		documents:  documents,
		store:      store,
		assets:     provider,
		tracer:     tracer,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
	}, nil
}

func openStore(cfg config.StorageConfig) (storage.CodeStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		store, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open snippet store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	return s.Close()
}

// Close releases every workspace and the snippet store
func (s *Server) Close() error {
	s.workspaces.CloseAll()
	err := s.store.Close()
	s.tracer.Close()
	_ = s.logger.Sync()
	return err
}
