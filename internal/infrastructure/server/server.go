package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/microhost/internal/api/http"
	"github.com/GriffinCanCode/microhost/internal/api/middleware"
	"github.com/GriffinCanCode/microhost/internal/api/ws"
	"github.com/GriffinCanCode/microhost/internal/domain/plugin"
	"github.com/GriffinCanCode/microhost/internal/host"
	"github.com/GriffinCanCode/microhost/internal/infrastructure/config"
	"github.com/GriffinCanCode/microhost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/microhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/microhost/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/microhost/internal/page"
)

// Server wires the page, the host and the HTTP API.
type Server struct {
	router  *gin.Engine
	http    *http.Server
	host    *host.Host
	page    *page.Page
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer

	stopTimers context.CancelFunc
	timersDone chan struct{}
	closeOnce  sync.Once
}

// Options overrides collaborators, mainly for tests. A Registry that is
// also a Gatherer serves /metrics unless Gatherer is set.
type Options struct {
	Logger   *logging.Logger
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
}

// NewServer builds a server from cfg with the default Prometheus registry.
func NewServer(cfg *config.Config) (*Server, error) {
	return NewServerWithOptions(cfg, Options{})
}

// NewServerWithOptions builds a server from cfg.
func NewServerWithOptions(cfg *config.Config, opts Options) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}
	registry, gatherer := opts.Registry, opts.Gatherer
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
		if g, ok := registry.(prometheus.Gatherer); ok {
			gatherer = g
		}
	}

	logger.Info("Initializing microhost",
		zap.String("port", cfg.Server.Port),
		zap.String("page_url", cfg.Page.URL),
		zap.Bool("sandbox", !cfg.Sandbox.Disabled),
	)

	var plugins *plugin.Declarations
	if cfg.Sandbox.PluginsFile != "" {
		var err error
		plugins, err = plugin.Load(cfg.Sandbox.PluginsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load plugins: %w", err)
		}
		logger.Info("Plugins loaded", zap.String("file", cfg.Sandbox.PluginsFile))
	}

	metrics := monitoring.NewMetrics(registry)
	tracer := tracing.New("microhost", logger.Logger)

	p, err := page.New(page.Config{
		URL:           cfg.Page.URL,
		ScriptTimeout: cfg.Page.ScriptTimeout,
		Logger:        logger.Component("page"),
	})
	if err != nil {
		metrics.Close()
		tracer.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	h, err := host.New(host.Config{Page: p, Logger: logger.Logger, Metrics: metrics})
	if err != nil {
		_ = p.Close()
		metrics.Close()
		tracer.Close()
		return nil, err
	}
	// A bad tag name is logged by the host; the API stays up and reports
	// the host as not started
	if err := h.Start(host.StartOptions{
		TagName:             cfg.Sandbox.TagName,
		Plugins:             plugins,
		DisableSandbox:      cfg.Sandbox.Disabled,
		DisableMemoryRouter: cfg.Sandbox.DisableMemoryRouter,
		DisablePatchRequest: cfg.Sandbox.DisablePatchRequest,
		KeepRouterState:     cfg.Sandbox.KeepRouterState,
		Dev:                 cfg.Logging.Development,
	}); err != nil {
		logger.Warn("Host not started", zap.Error(err))
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger.Logger))
	router.Use(middleware.Logger(logger.Logger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
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

	apihttp.NewHandlers(h, metrics, tracer, logger.Logger).Register(router)
	router.GET("/stream", ws.NewHandler(h, metrics, logger.Logger).HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:     router,
		host:       h,
		page:       p,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
		tracer:     tracer,
		stopTimers: cancel,
		timersDone: make(chan struct{}),
		http: &http.Server{
			Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}
	go func() {
		defer close(s.timersDone)
		p.Run(ctx, cfg.Page.TimerInterval)
	}()

	logger.Info("Server initialized successfully")
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Host returns the orchestration host.
func (s *Server) Host() *host.Host { return s.host }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

// Close stops timers, destroys all apps and flushes telemetry.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Info("Shutting down server...")

		s.stopTimers()
		<-s.timersDone

		if cerr := s.host.Close(); cerr != nil {
			s.logger.Error("Failed to close host", zap.Error(cerr))
			err = fmt.Errorf("failed to close host: %w", cerr)
		}
		s.tracer.Close()
		s.metrics.Close()
		_ = s.logger.Sync()
	})
	return err
}
