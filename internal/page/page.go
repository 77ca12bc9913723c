package page

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	_ "embed"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

//go:embed bootstrap.js
var bootstrapSource string

// Page is the shared host page.
type Page struct {
	mu     sync.Mutex
	vm     *goja.Runtime
	config Config
	logger *zap.Logger
	now    func() time.Time
	closed bool

	window *goja.Object
	outer  *goja.Object
	env    *Env

	events           *eventRegistry
	eventTargetProto *goja.Object
	dom              *dom
	nav              *navigation
	timers           *timerQueue
	console          *consoleBuffer

	requests []Request

	// scope names the app whose code is currently running, for console output.
	scope func() string
}

// New creates a page with a fresh runtime.
func New(config Config) (*Page, error) {
	if config.URL == "" {
		config.URL = DefaultConfig().URL
	}
	if config.ScriptTimeout <= 0 {
		config.ScriptTimeout = DefaultConfig().ScriptTimeout
	}
	u, err := url.Parse(config.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, config.URL)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(1024)

	p := &Page{
		vm:      vm,
		config:  config,
		logger:  logger.Named("page"),
		now:     now,
		window:  vm.GlobalObject(),
		events:  newEventRegistry(),
		timers:  newTimerQueue(),
		console: newConsoleBuffer(),
	}

	if err := p.setupGlobals(u); err != nil {
		return nil, fmt.Errorf("failed to set up page globals: %w", err)
	}

	return p, nil
}

// setupGlobals builds the window, in dependency order.
func (p *Page) setupGlobals(u *url.URL) error {
	vm := p.vm

	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	if err := p.setupEventTarget(); err != nil {
		return err
	}
	if err := p.setupWindowRefs(); err != nil {
		return err
	}
	if err := p.setupConsole(); err != nil {
		return err
	}
	p.setupTimers()
	if err := p.setupDOM(); err != nil {
		return err
	}
	if err := p.setupNavigation(u); err != nil {
		return err
	}
	p.setupNavigator()

	bootstrap, err := vm.RunScript("page:bootstrap.js", bootstrapSource)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	install, ok := goja.AssertFunction(bootstrap)
	if !ok {
		return fmt.Errorf("bootstrap did not evaluate to a function")
	}
	host := vm.NewObject()
	host.Set("record", p.recordRequest)
	if _, err := install(goja.Undefined(), host); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	env, err := captureEnv(p)
	if err != nil {
		return err
	}
	p.env = env
	return nil
}

func (p *Page) setupWindowRefs() error {
	w := p.window
	if err := w.DefineDataProperty("window", w, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}
	if err := w.DefineDataProperty("self", w, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return err
	}

	top := w
	if p.config.Nested {
		p.outer = p.vm.NewObject()
		p.outer.Set("window", p.outer)
		p.outer.Set("self", p.outer)
		p.outer.Set("top", p.outer)
		p.outer.Set("parent", p.outer)
		top = p.outer
	}
	if err := w.DefineDataProperty("top", top, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}
	return w.DefineDataProperty("parent", top, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (p *Page) setupNavigator() {
	navigator := p.vm.NewObject()
	navigator.Set("userAgent", "Mozilla/5.0 (microhost) goja")
	navigator.Set("language", "en-US")
	p.window.Set("navigator", navigator)

	start := p.now()
	performance := p.vm.NewObject()
	performance.Set("now", func(goja.FunctionCall) goja.Value {
		return p.vm.ToValue(float64(p.now().Sub(start).Microseconds()) / 1000)
	})
	performance.Set("timeOrigin", float64(start.UnixMilli()))
	p.window.Set("performance", performance)
}

func (p *Page) recordRequest(call goja.FunctionCall) goja.Value {
	req := Request{
		Kind:   call.Argument(0).String(),
		Method: call.Argument(1).String(),
		URL:    call.Argument(2).String(),
		Time:   p.now(),
	}
	p.requests = append(p.requests, req)
	p.logger.Debug("request recorded",
		zap.String("kind", req.Kind),
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.String("app", p.currentScope()))
	return goja.Undefined()
}

// Do runs fn with exclusive access to the runtime.
func (p *Page) Do(fn func(vm *goja.Runtime) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	return fn(p.vm)
}

// RunScript executes source under the page timeout. Callers must hold the
// page through Do.
func (p *Page) RunScript(ctx context.Context, name, source string) (goja.Value, error) {
	release := p.guard(ctx)
	val, err := p.vm.RunScript(name, source)
	release()
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Call invokes fn under the page timeout. Callers must hold the page through Do.
func (p *Page) Call(ctx context.Context, fn goja.Callable, this goja.Value, args ...goja.Value) (goja.Value, error) {
	release := p.guard(ctx)
	val, err := fn(this, args...)
	release()
	return val, err
}

// guard interrupts the runtime on timeout or cancellation until release is
// called. release waits for the watcher to exit before clearing the
// interrupt flag, so a late timeout cannot leak into the next script.
func (p *Page) guard(ctx context.Context) func() {
	timer := time.NewTimer(p.config.ScriptTimeout)
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		select {
		case <-timer.C:
			p.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			p.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	return func() {
		timer.Stop()
		close(done)
		<-exited
		p.vm.ClearInterrupt()
	}
}

// SetScopeResolver installs the function naming the app whose code runs.
func (p *Page) SetScopeResolver(resolver func() string) {
	p.scope = resolver
}

func (p *Page) currentScope() string {
	if p.scope == nil {
		return ""
	}
	return p.scope()
}

// VM returns the runtime. Only use it while holding the page through Do.
func (p *Page) VM() *goja.Runtime { return p.vm }

// Window returns the real window.
func (p *Page) Window() *goja.Object { return p.window }

// Outer returns the outer window of a nested page, or nil.
func (p *Page) Outer() *goja.Object { return p.outer }

// Env returns the natives captured when the page was built.
func (p *Page) Env() *Env { return p.env }

// Logger returns the page logger.
func (p *Page) Logger() *zap.Logger { return p.logger }

// Now returns the page clock time.
func (p *Page) Now() time.Time { return p.now() }

// Requests returns the network calls scripts attempted.
func (p *Page) Requests() []Request {
	return append([]Request(nil), p.requests...)
}

// Close releases the runtime.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.vm.Interrupt("page closed")
	p.timers.clear()
	return nil
}
