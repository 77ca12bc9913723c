package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/GriffinCanCode/microhost/internal/domain/plugin"
	"github.com/GriffinCanCode/microhost/internal/interact"
	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/GriffinCanCode/microhost/internal/sandbox/globals"
	"github.com/GriffinCanCode/microhost/internal/sandbox/router"
	"github.com/GriffinCanCode/microhost/internal/shared/id"
	"github.com/GriffinCanCode/microhost/internal/shared/utils"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var (
	ErrDuplicateApp  = errors.New("sandbox already exists for app")
	ErrInvalidName   = errors.New("invalid app name")
	ErrInvalidURL    = errors.New("app url must be absolute")
	ErrNoCoordinator = errors.New("sandbox requires a coordinator")
	ErrForeignPage   = errors.New("coordinator belongs to another page")
	ErrDisposed      = errors.New("sandbox is disposed")
)

// cachedParams binds the cached globals once per script, resolved through
// the app window when the script starts.
var cachedParams = strings.Join(globals.CachedGlobalKeys(), ", ")

// Keys the sandbox defines on every app window.
const (
	URLKey        = "__MICRO_APP_URL__"
	PublicPathKey = "__MICRO_APP_PUBLIC_PATH__"
	WindowKey     = "__MICRO_APP_WINDOW__"
	BaseRouteKey  = "__MICRO_APP_BASE_ROUTE__"
	BaseURLKey    = "__MICRO_APP_BASE_URL__"
	UMDModeKey    = "__MICRO_APP_UMD_MODE__"
)

var windowAliases = []string{"window", "self", "globalThis"}

// Options configures a sandbox.
type Options struct {
	Name            string
	URL             string
	UseMemoryRouter bool
	Plugins         plugin.Source
	Coordinator     *Coordinator
	Hub             *interact.Hub // nil gives the app a private hub
	Dev             bool
	Logger          *zap.Logger
}

// StartOptions configures one activation.
type StartOptions struct {
	UMDMode             bool
	BaseRoute           string
	UseMemoryRouter     bool
	DefaultPage         string
	DisablePatchRequest bool
}

// StopOptions configures one deactivation.
type StopOptions struct {
	UMDMode          bool
	KeepRouteState   bool
	ClearEventSource bool
}

// Container holds the nodes an app renders into. Head and Body receive the
// app nodes aimed at the real head and body.
type Container struct {
	Root *goja.Object
	Head *goja.Object
	Body *goja.Object
}

// SandBox isolates the globals of one app. All methods must be called while
// holding the page through page.Do.
type SandBox struct {
	id     id.SandboxID
	name   string
	url    string
	page   *page.Page
	vm     *goja.Runtime
	env    *page.Env
	coord  *Coordinator
	logger *zap.Logger

	classifier  *globals.Classifier
	store       *goja.Object
	proxyWindow *goja.Object

	document     *goja.Object
	documentCtor *goja.Object

	injected *keySet
	escaped  *keySet
	// accessors the app window owns for its lifetime.
	fixed *keySet

	active   bool
	hidden   bool
	disposed bool

	useMemoryRouter       bool
	routing               bool
	router                *router.MicroRouter
	removeHistoryListener func()

	effect    *effect
	handle    *microAppHandle
	requests  *requestRuntime
	image     goja.Value
	container Container
}

// New builds the sandbox of an app and registers it with the coordinator.
func New(p *page.Page, opts Options) (*SandBox, error) {
	if opts.Coordinator == nil {
		return nil, ErrNoCoordinator
	}
	if opts.Coordinator.page != p {
		return nil, ErrForeignPage
	}
	name := utils.FormatAppName(opts.Name)
	if name == "" || name != opts.Name {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, opts.Name)
	}
	u, err := url.Parse(opts.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, opts.URL)
	}
	if _, exists := opts.Coordinator.sandboxes[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateApp, name)
	}

	logger := opts.Logger
	if logger == nil {
		logger = opts.Coordinator.logger
	}
	hub := opts.Hub
	if hub == nil {
		hub = interact.NewHub(logger)
	}
	var scope, escape []string
	if opts.Plugins != nil {
		scope, escape = opts.Plugins.PropertiesFor(name)
	}

	sb := &SandBox{
		id:     id.NewSandboxID(),
		name:   name,
		url:    opts.URL,
		page:   p,
		vm:     p.VM(),
		env:    p.Env(),
		coord:  opts.Coordinator,
		logger: logger.With(zap.String("app", name)),
		classifier: globals.NewClassifier(globals.Options{
			ScopeProperties:  scope,
			EscapeProperties: escape,
			Dev:              opts.Dev,
		}),
		injected:        newKeySet(),
		escaped:         newKeySet(),
		fixed:           newKeySet(),
		useMemoryRouter: opts.UseMemoryRouter,
	}
	sb.store = sb.vm.NewObject()
	sb.proxyWindow = sb.createProxyWindow()

	sb.effect = newEffect(sb)
	if err := sb.effect.install(); err != nil {
		return nil, fmt.Errorf("failed to install app effects: %w", err)
	}
	if sb.requests, err = newRequestRuntime(sb); err != nil {
		return nil, err
	}
	if sb.image, err = sb.requests.image(); err != nil {
		return nil, fmt.Errorf("failed to create Image: %w", err)
	}
	sb.handle = newMicroAppHandle(sb, hub)

	if err := sb.initStaticGlobalKeys(); err != nil {
		return nil, fmt.Errorf("failed to initialize app window: %w", err)
	}
	if err := sb.coord.register(sb); err != nil {
		return nil, err
	}
	sb.logger.Debug("sandbox created", zap.String("id", sb.id.String()), zap.String("url", sb.url))
	return sb, nil
}

// ============================================================================
// App window setup
// ============================================================================

func (sb *SandBox) initStaticGlobalKeys() error {
	store := sb.store
	values := []struct {
		key   string
		value interface{}
	}{
		{EnvironmentKey, true},
		{AppNameKey, sb.name},
		{URLKey, sb.url},
		{PublicPathKey, utils.EffectivePath(sb.url)},
		{WindowKey, store},
		{"rawWindow", sb.env.RawWindow},
		{"rawDocument", sb.env.RawDocument},
		{"microApp", sb.handle.object},
	}
	for _, v := range values {
		if err := store.Set(v.key, v.value); err != nil {
			return err
		}
	}

	if err := sb.setProxyDocument(); err != nil {
		return err
	}
	if err := sb.setMappingProperties(); err != nil {
		return err
	}
	if sb.useMemoryRouter {
		return sb.setMicroAppRouter()
	}
	return nil
}

// defineAccessor puts a getter and optional setter on the store.
func (sb *SandBox) defineAccessor(key string, configurable, enumerable bool, get func() goja.Value, set func(goja.Value)) error {
	vm := sb.vm
	getter := vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	var setter goja.Value
	if set != nil {
		setter = vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	return sb.store.DefineAccessorProperty(key, getter, setter, boolFlag(configurable), boolFlag(enumerable))
}

// defineFixedAccessor defines an accessor that assignments and deletes from
// app code never replace. It stays configurable so the proxy can report it.
func (sb *SandBox) defineFixedAccessor(key string, enumerable bool, get func() goja.Value, set func(goja.Value)) error {
	if err := sb.defineAccessor(key, true, enumerable, get, set); err != nil {
		return err
	}
	sb.fixed.add(key)
	return nil
}

func (sb *SandBox) setProxyDocument() error {
	err := sb.defineFixedAccessor("document", true, func() goja.Value {
		sb.coord.SetDomScope(sb.name)
		if err := sb.ensureDocument(); err != nil {
			throw(sb.vm, err)
		}
		return sb.document
	}, nil)
	if err != nil {
		return err
	}
	return sb.defineFixedAccessor("Document", false, func() goja.Value {
		sb.coord.SetDomScope(sb.name)
		if err := sb.ensureDocument(); err != nil {
			throw(sb.vm, err)
		}
		return sb.documentCtor
	}, nil)
}

func (sb *SandBox) ensureDocument() error {
	if sb.document != nil {
		return nil
	}
	doc, ctor, err := sb.createProxyDocument()
	if err != nil {
		return fmt.Errorf("failed to create proxy document: %w", err)
	}
	sb.document, sb.documentCtor = doc, ctor
	return nil
}

// setMappingProperties points window, self, globalThis, top and parent at
// the proxy window. Inside a nested page top and parent stay real.
func (sb *SandBox) setMappingProperties() error {
	raw := sb.env.RawWindow
	var top, parent goja.Value = sb.proxyWindow, sb.proxyWindow
	if rawParent, ok := raw.Get("parent").(*goja.Object); ok && rawParent != nil && !rawParent.SameAs(raw) {
		top, parent = raw.Get("top"), rawParent
	}
	if err := sb.mapWindowProperty("top", top); err != nil {
		return err
	}
	if err := sb.mapWindowProperty("parent", parent); err != nil {
		return err
	}
	for _, key := range windowAliases {
		if err := sb.mapWindowProperty(key, sb.proxyWindow); err != nil {
			return err
		}
	}
	return nil
}

// mapWindowProperty defines key on the store with the shape the real window
// gives it.
func (sb *SandBox) mapWindowProperty(key string, value goja.Value) error {
	configurable, enumerable, writable := true, true, true
	if d := sb.env.Descriptor(sb.env.RawWindow, key); d != nil {
		pd := toPropertyDescriptor(sb.env, d)
		configurable = pd.Configurable != goja.FLAG_FALSE
		enumerable = pd.Enumerable != goja.FLAG_FALSE
		if pd.Writable != goja.FLAG_NOT_SET {
			writable = pd.Writable == goja.FLAG_TRUE
		} else {
			writable = isCallable(pd.Setter)
		}
	}
	return sb.store.DefineDataProperty(key, value, boolFlag(writable), boolFlag(configurable), boolFlag(enumerable))
}

func (sb *SandBox) setMicroAppRouter() error {
	r, err := router.CreateMicroRouter(router.Config{
		Page:           sb.page,
		App:            sb.name,
		URL:            sb.url,
		RemoveDomScope: sb.coord.RemoveDomScope,
		Logger:         sb.logger,
	})
	if err != nil {
		return err
	}
	sb.router = r

	err = sb.defineFixedAccessor("location", true,
		func() goja.Value { return r.Location() },
		func(v goja.Value) {
			if err := sb.env.RawWindow.Set("location", v); err != nil {
				throw(sb.vm, err)
			}
		})
	if err != nil {
		return err
	}
	return sb.defineFixedAccessor("history", true, func() goja.Value { return r.History() }, nil)
}

// initGlobalKeysWhenStart rewrites the keys a previous stop may have deleted.
func (sb *SandBox) initGlobalKeysWhenStart(disablePatchRequest bool) error {
	env := sb.env
	vm := sb.vm
	store := sb.store

	hasOwn := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		return vm.ToValue(env.HasOwn(store, key) || env.HasOwn(env.RawWindow, key))
	})
	if err := store.Set("hasOwnProperty", hasOwn); err != nil {
		return err
	}
	if err := sb.setHijackProperties(); err != nil {
		return err
	}
	if disablePatchRequest {
		return nil
	}
	return sb.requests.patch()
}

// setHijackProperties serves eval and Image from the app window. Assigned
// values replace them until the next start.
func (sb *SandBox) setHijackProperties() error {
	rawEval := sb.env.RawWindow.Get("eval")
	for _, h := range []struct {
		key      string
		fallback goja.Value
	}{
		{"eval", rawEval},
		{"Image", sb.image},
	} {
		fallback := h.fallback
		var modified goja.Value
		err := sb.defineAccessor(h.key, true, false,
			func() goja.Value {
				sb.coord.SetDomScope(sb.name)
				if modified != nil && modified.ToBoolean() {
					return modified
				}
				return fallback
			},
			func(v goja.Value) { modified = v })
		if err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Lifecycle
// ============================================================================

// Start activates the sandbox. Starting an active sandbox does nothing.
func (sb *SandBox) Start(opts StartOptions) error {
	if sb.disposed {
		return ErrDisposed
	}
	if sb.active {
		return nil
	}
	sb.active = true

	if opts.UseMemoryRouter && sb.router != nil {
		if err := sb.router.InitRouteStateWithURL(opts.DefaultPage); err != nil {
			sb.logger.Warn("failed to restore route state", zap.Error(err))
		}
		remove, err := router.AddHistoryListener(sb.page, sb.name, sb.coord)
		if err != nil {
			sb.logger.Error("failed to listen to history", zap.Error(err))
		} else {
			sb.removeHistoryListener = remove
		}
		sb.routing = true
	} else {
		sb.store.Set(BaseRouteKey, opts.BaseRoute)
		sb.store.Set(BaseURLKey, opts.BaseRoute)
	}

	if !opts.UMDMode {
		if err := sb.initGlobalKeysWhenStart(opts.DisablePatchRequest); err != nil {
			sb.logger.Error("failed to initialize start keys", zap.Error(err))
		}
	}

	if sb.coord.RegisterActivation() {
		sb.coord.installEffects()
	}
	sb.fixBabelPolyfill()

	sb.coord.observer.SandboxStarted(sb.name)
	sb.logger.Debug("sandbox started", zap.Bool("umd", opts.UMDMode), zap.Bool("memory_router", sb.routing))
	return nil
}

// fixBabelPolyfill lets a second babel-polyfill bundle load.
func (sb *SandBox) fixBabelPolyfill() {
	raw := sb.env.RawWindow
	if v := raw.Get("_babelPolyfill"); v != nil && v.ToBoolean() {
		raw.Set("_babelPolyfill", false)
	}
}

// Stop deactivates the sandbox. Stopping an inactive sandbox does nothing.
// Outside UMD mode every key the app wrote is removed.
func (sb *SandBox) Stop(opts StopOptions) {
	if !sb.active {
		return
	}
	sb.effect.release()
	sb.handle.clearDataListener()
	sb.handle.clearGlobalDataListener()

	if sb.removeHistoryListener != nil {
		if err := sb.router.ClearRouteStateFromURL(opts.KeepRouteState); err != nil {
			sb.logger.Warn("failed to clear route state", zap.Error(err))
		}
		sb.removeHistoryListener()
		sb.removeHistoryListener = nil
	}
	sb.routing = false

	if opts.ClearEventSource {
		if n := sb.requests.closeEventSources(); n > 0 {
			sb.logger.Debug("closed event sources", zap.Int("count", n))
		}
	}

	if !opts.UMDMode {
		for _, key := range sb.injected.keys() {
			sb.env.DeleteProperty(sb.store, key)
		}
		sb.injected.clear()
		for _, key := range sb.escaped.keys() {
			sb.coord.releaseEscape(key)
		}
		sb.escaped.clear()
	}

	if sb.coord.RegisterDeactivation() {
		sb.coord.releaseEffects()
	}
	sb.active = false

	sb.coord.observer.SandboxStopped(sb.name)
	sb.logger.Debug("sandbox stopped", zap.Bool("umd", opts.UMDMode))
}

// RecordUmdSnapshot keeps listeners and timers before the first UMD mount.
func (sb *SandBox) RecordUmdSnapshot() {
	sb.store.Set(UMDModeKey, true)
	sb.effect.record()
	sb.handle.recordSnapshot()
}

// RebuildUmdSnapshot restores what RecordUmdSnapshot kept before a remount.
func (sb *SandBox) RebuildUmdSnapshot() {
	sb.effect.rebuild()
	sb.handle.rebuildSnapshot()
}

// SetRouteInfoForKeepAliveApp writes the virtual location back into the page
// URL when a hidden keep-alive app is shown again.
func (sb *SandBox) SetRouteInfoForKeepAliveApp() error {
	if sb.router == nil {
		return nil
	}
	return sb.router.UpdateBrowserURLWithLocation("")
}

// RemoveRouteInfoForKeepAliveApp drops the app path from the page URL while
// a keep-alive app is hidden.
func (sb *SandBox) RemoveRouteInfoForKeepAliveApp() error {
	if sb.router == nil {
		return nil
	}
	return router.RemoveStateAndPathFromBrowser(sb.page, sb.name)
}

// Dispose stops the sandbox and removes it from the coordinator.
func (sb *SandBox) Dispose() {
	if sb.disposed {
		return
	}
	sb.Stop(StopOptions{ClearEventSource: true})
	sb.coord.unregister(sb)
	sb.disposed = true
}

// ============================================================================
// Script execution
// ============================================================================

// Exec runs code with the app window as window, self, globalThis and this.
func (sb *SandBox) Exec(ctx context.Context, code, filename string) (goja.Value, error) {
	return sb.run(ctx, filename,
		"(function(window, self, globalThis){with(window){;(function("+cachedParams+"){"+code+"\n}).call(window, "+cachedParams+")}})")
}

// Eval evaluates an expression against the app window.
func (sb *SandBox) Eval(ctx context.Context, expr string) (goja.Value, error) {
	return sb.run(ctx, "app:"+sb.name+":eval",
		"(function(window, self, globalThis){with(window){return (function("+cachedParams+"){return ("+expr+"\n)}).call(window, "+cachedParams+")}})")
}

func (sb *SandBox) run(ctx context.Context, filename, source string) (goja.Value, error) {
	if sb.disposed {
		return nil, ErrDisposed
	}
	if filename == "" {
		filename = "app:" + sb.name
	}
	v, err := sb.page.RunScript(ctx, filename, source)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("script wrapper did not evaluate to a function")
	}

	prev := sb.coord.CurrentApp()
	sb.coord.SetDomScope(sb.name)
	defer sb.coord.SetDomScope(prev)

	w := sb.proxyWindow
	return sb.page.Call(ctx, fn, w, w, w, w)
}

// ============================================================================
// Accessors
// ============================================================================

// ID returns the sandbox id.
func (sb *SandBox) ID() id.SandboxID { return sb.id }

// Name returns the app name.
func (sb *SandBox) Name() string { return sb.name }

// URL returns the app URL.
func (sb *SandBox) URL() string { return sb.url }

// Active reports whether the sandbox is started.
func (sb *SandBox) Active() bool { return sb.active }

// Hidden reports whether the app is a hidden keep-alive app.
func (sb *SandBox) Hidden() bool { return sb.hidden }

// SetHidden marks a keep-alive app hidden or shown.
func (sb *SandBox) SetHidden(hidden bool) { sb.hidden = hidden }

// SetContainer sets where the app's head and body nodes go.
func (sb *SandBox) SetContainer(c Container) { sb.container = c }

// Container returns the app container.
func (sb *SandBox) Container() Container { return sb.container }

// ProxyWindow returns the window scripts of the app observe.
func (sb *SandBox) ProxyWindow() *goja.Object { return sb.proxyWindow }

// ProxyDocument returns the document scripts of the app observe.
func (sb *SandBox) ProxyDocument() (*goja.Object, error) {
	if err := sb.ensureDocument(); err != nil {
		return nil, err
	}
	return sb.document, nil
}

// Router returns the memory router, or nil when the app uses the real one.
func (sb *SandBox) Router() *router.MicroRouter { return sb.router }

// Classifier returns how the sandbox routes property names.
func (sb *SandBox) Classifier() *globals.Classifier { return sb.classifier }

// InjectedKeys lists the keys the app wrote to its window.
func (sb *SandBox) InjectedKeys() []string { return sb.injected.keys() }

// EscapedKeys lists the keys the app mirrored to the real window.
func (sb *SandBox) EscapedKeys() []string { return sb.escaped.keys() }

// OpenEventSources counts the EventSources the app has open.
func (sb *SandBox) OpenEventSources() int { return sb.requests.openEventSources() }

// Get reads key through the app window.
func (sb *SandBox) Get(key string) goja.Value { return sb.proxyWindow.Get(key) }
