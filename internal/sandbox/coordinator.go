package sandbox

import (
	"fmt"
	"sort"

	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/GriffinCanCode/microhost/internal/sandbox/router"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Observer receives sandbox lifecycle notifications.
type Observer interface {
	SandboxStarted(app string)
	SandboxStopped(app string)
	SharedEffectsChanged(installed bool)
	KeyEscaped(app, key string)
}

type nopObserver struct{}

func (nopObserver) SandboxStarted(string)     {}
func (nopObserver) SandboxStopped(string)     {}
func (nopObserver) SharedEffectsChanged(bool) {}
func (nopObserver) KeyEscaped(string, string) {}

// SharedEffects are page-wide patches applied while any sandbox is active.
type SharedEffects interface {
	Install() error
	Release() error
}

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	Effects  SharedEffects // nil installs the page patches
	Observer Observer
	Logger   *zap.Logger
}

// escapeRecord tracks a real window key written by sandboxes.
type escapeRecord struct {
	pristine *goja.Object // descriptor before the first escape; nil if absent
	refs     int
}

// Coordinator owns the state sandboxes of one page share.
type Coordinator struct {
	page     *page.Page
	env      *page.Env
	logger   *zap.Logger
	observer Observer
	effects  SharedEffects

	active    int
	installed bool
	domScope  string

	sandboxes     map[string]*SandBox
	windowBinds   *binder
	documentBinds *binder
	escapes       map[string]*escapeRecord
}

// NewCoordinator creates the coordinator of p.
func NewCoordinator(p *page.Page, opts CoordinatorOptions) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = p.Logger()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	env := p.Env()
	c := &Coordinator{
		page:          p,
		env:           env,
		logger:        logger.Named("sandbox"),
		observer:      observer,
		sandboxes:     make(map[string]*SandBox),
		windowBinds:   newBinder(env, env.RawWindow),
		documentBinds: newBinder(env, env.RawDocument),
		escapes:       make(map[string]*escapeRecord),
	}
	c.effects = opts.Effects
	if c.effects == nil {
		c.effects = newPageEffects(c)
	}
	p.SetScopeResolver(c.CurrentApp)
	return c
}

// Page returns the coordinated page.
func (c *Coordinator) Page() *page.Page { return c.page }

// ============================================================================
// Active instance counter
// ============================================================================

// RegisterActivation counts a started sandbox and reports the 0 -> 1 transition.
func (c *Coordinator) RegisterActivation() bool {
	c.active++
	return c.active == 1
}

// RegisterDeactivation counts a stopped sandbox and reports the 1 -> 0
// transition. Going below zero is a defect and panics.
func (c *Coordinator) RegisterDeactivation() bool {
	if c.active <= 0 {
		panic("sandbox: active instance counter went below zero")
	}
	c.active--
	return c.active == 0
}

// ActiveCount returns the number of active sandboxes.
func (c *Coordinator) ActiveCount() int { return c.active }

// EffectsInstalled reports whether the shared effects are in place.
func (c *Coordinator) EffectsInstalled() bool { return c.installed }

func (c *Coordinator) installEffects() {
	if c.installed {
		panic("sandbox: shared effects installed twice")
	}
	if err := c.effects.Install(); err != nil {
		c.logger.Error("failed to install shared effects", zap.Error(err))
	}
	c.installed = true
	c.observer.SharedEffectsChanged(true)
	c.logger.Debug("shared effects installed")
}

func (c *Coordinator) releaseEffects() {
	if !c.installed {
		panic("sandbox: shared effects released without being installed")
	}
	if err := c.effects.Release(); err != nil {
		c.logger.Error("failed to release shared effects", zap.Error(err))
	}
	c.installed = false
	c.observer.SharedEffectsChanged(false)
	c.logger.Debug("shared effects released")
}

// ============================================================================
// Sandbox registry
// ============================================================================

func (c *Coordinator) register(sb *SandBox) error {
	if _, exists := c.sandboxes[sb.name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateApp, sb.name)
	}
	c.sandboxes[sb.name] = sb
	return nil
}

func (c *Coordinator) unregister(sb *SandBox) {
	if c.sandboxes[sb.name] == sb {
		delete(c.sandboxes, sb.name)
	}
}

// Sandbox returns the sandbox registered for app.
func (c *Coordinator) Sandbox(app string) (*SandBox, bool) {
	sb, ok := c.sandboxes[app]
	return sb, ok
}

// ActiveApps lists the names of active sandboxes. excludeHidden drops
// keep-alive apps that are currently hidden.
func (c *Coordinator) ActiveApps(excludeHidden bool) []string {
	var names []string
	for name, sb := range c.sandboxes {
		if sb.active && !(excludeHidden && sb.hidden) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// memoryRouterApps lists visible active apps that use the memory router.
func (c *Coordinator) memoryRouterApps() []string {
	var names []string
	for name, sb := range c.sandboxes {
		if sb.active && !sb.hidden && sb.routing {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ============================================================================
// DOM scope
// ============================================================================

// SetDomScope marks app as the owner of the code currently running.
func (c *Coordinator) SetDomScope(app string) { c.domScope = app }

// RemoveDomScope clears the current owner.
func (c *Coordinator) RemoveDomScope() { c.domScope = "" }

// CurrentApp returns the current owner, or "".
func (c *Coordinator) CurrentApp() string { return c.domScope }

// Target implements router.Resolver.
func (c *Coordinator) Target(app string) (*router.MicroRouter, *goja.Object, bool) {
	sb, ok := c.sandboxes[app]
	if !ok || !sb.active || sb.hidden || !sb.routing {
		return nil, nil, false
	}
	return sb.router, sb.proxyWindow, true
}

// ============================================================================
// Escaped keys
// ============================================================================

// acquireEscape records the real window value of key before the first
// sandbox writes it.
func (c *Coordinator) acquireEscape(key string) {
	rec, ok := c.escapes[key]
	if !ok {
		rec = &escapeRecord{pristine: c.env.Descriptor(c.env.RawWindow, key)}
		c.escapes[key] = rec
	}
	rec.refs++
}

// releaseEscape drops one writer of key. The last writer restores the value
// the real window had before, or deletes the key if it had none.
func (c *Coordinator) releaseEscape(key string) {
	rec, ok := c.escapes[key]
	if !ok {
		return
	}
	rec.refs--
	if rec.refs > 0 {
		return
	}
	delete(c.escapes, key)
	if rec.pristine == nil {
		c.env.DeleteProperty(c.env.RawWindow, key)
		return
	}
	if !c.env.DefineProperty(c.env.RawWindow, key, rec.pristine) {
		c.logger.Warn("failed to restore escaped key", zap.String("key", key))
	}
}

var _ router.Resolver = (*Coordinator)(nil)
