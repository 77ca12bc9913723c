package host

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/microhost/internal/domain/app"
	"github.com/GriffinCanCode/microhost/internal/domain/plugin"
	"github.com/GriffinCanCode/microhost/internal/interact"
	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/GriffinCanCode/microhost/internal/sandbox"
	"github.com/GriffinCanCode/microhost/internal/shared/types"
	"github.com/GriffinCanCode/microhost/internal/shared/utils"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var (
	ErrInvalidTagName = errors.New("invalid tag name")
	ErrElementDefined = errors.New("element is already defined")
	ErrNotStarted     = errors.New("host is not started")
	ErrInvalidURL     = errors.New("app url must be absolute")
	ErrAppNotFound    = app.ErrAppNotFound
	ErrAppExists      = app.ErrAppExists
	ErrTransition     = app.ErrInvalidTransition
	ErrNotLoaded      = errors.New("app source is not loaded")
	ErrInvalidGlobal  = errors.New("invalid global key")
	ErrInvalidInput   = errors.New("invalid input")
	ErrScriptTooLarge = errors.New("script exceeds size limit")
)

// DefaultTagName is the element name apps render into.
const DefaultTagName = "micro-app"

// Metrics receives host measurements.
type Metrics interface {
	sandbox.Observer
	app.Observer
	ScriptExecuted(app, kind string, duration time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) SandboxStarted(string)                               {}
func (nopMetrics) SandboxStopped(string)                               {}
func (nopMetrics) SharedEffectsChanged(bool)                           {}
func (nopMetrics) KeyEscaped(string, string)                           {}
func (nopMetrics) AppStateChanged(string, types.State)                 {}
func (nopMetrics) ScriptExecuted(string, string, time.Duration, error) {}

// StartOptions configures the host once before apps are created.
type StartOptions struct {
	TagName             string
	Plugins             *plugin.Declarations
	DisableSandbox      bool
	DisableMemoryRouter bool
	DisablePatchRequest bool
	KeepRouterState     bool
	Dev                 bool
}

// Config holds the collaborators of a Host.
type Config struct {
	Page    *page.Page
	Logger  *zap.Logger
	Metrics Metrics
}

// Host is the orchestration facade of the page.
type Host struct {
	page    *page.Page
	coord   *sandbox.Coordinator
	hub     *interact.Hub
	apps    *app.Manager
	logger  *zap.Logger
	metrics Metrics

	mu      sync.Mutex
	started bool
	options StartOptions
	defined map[string]bool
	records map[string]*record

	events *broadcaster
}

// New creates a host on p.
func New(cfg Config) (*Host, error) {
	if cfg.Page == nil {
		return nil, errors.New("host requires a page")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	h := &Host{
		page:    cfg.Page,
		hub:     interact.NewHub(logger),
		apps:    app.NewManager().WithObserver(metrics),
		logger:  logger.Named("host"),
		metrics: metrics,
		defined: make(map[string]bool),
		records: make(map[string]*record),
		events:  newBroadcaster(),
	}
	err := h.page.Do(func(*goja.Runtime) error {
		h.coord = sandbox.NewCoordinator(h.page, sandbox.CoordinatorOptions{
			Observer: metrics,
			Logger:   logger,
		})
		h.hub.AddGlobalDataListener(func(data interact.Data) {
			h.emit("global_data", "", data)
		}, false)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize host: %w", err)
	}
	return h, nil
}

// Start validates opts and defines the app element. An invalid or already
// defined tag name is logged and returned; the host stays usable.
func (h *Host) Start(opts StartOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if opts.TagName == "" {
		opts.TagName = DefaultTagName
	}
	if err := utils.ValidateTagName(opts.TagName); err != nil {
		h.logger.Error("invalid start options", zap.String("tag", opts.TagName), zap.Error(err))
		return fmt.Errorf("%w: %s", ErrInvalidTagName, opts.TagName)
	}
	if h.defined[opts.TagName] {
		h.logger.Warn("element is already defined", zap.String("tag", opts.TagName))
		return fmt.Errorf("%w: %s", ErrElementDefined, opts.TagName)
	}

	h.defined[opts.TagName] = true
	h.options = opts
	h.started = true
	h.logger.Info("host started",
		zap.String("tag", opts.TagName),
		zap.Bool("sandbox", !opts.DisableSandbox),
		zap.Bool("memory_router", !opts.DisableMemoryRouter))
	return nil
}

// Started reports whether Start succeeded.
func (h *Host) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// Page returns the host page.
func (h *Host) Page() *page.Page { return h.page }

// Hub returns the data hub.
func (h *Host) Hub() *interact.Hub { return h.hub }

// Stats combines registry and sandbox statistics.
type Stats struct {
	types.Stats
	ActiveSandboxes int  `json:"active_sandboxes"`
	SharedEffects   bool `json:"shared_effects"`
	PendingTimers   int  `json:"pending_timers"`
	Subscribers     int  `json:"subscribers"`
}

// Stats returns host statistics.
func (h *Host) Stats() (Stats, error) {
	stats := Stats{Stats: h.apps.Stats(), Subscribers: h.events.count()}
	err := h.page.Do(func(*goja.Runtime) error {
		stats.ActiveSandboxes = h.coord.ActiveCount()
		stats.SharedEffects = h.coord.EffectsInstalled()
		stats.PendingTimers = h.page.PendingTimers()
		return nil
	})
	return stats, err
}

// Close destroys every app and closes the page.
func (h *Host) Close() error {
	err := h.UnmountAll(UnmountOptions{Destroy: true})
	h.events.close()
	if cerr := h.page.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
