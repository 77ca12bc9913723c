package host

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/GriffinCanCode/microhost/internal/interact"
	"github.com/GriffinCanCode/microhost/internal/sandbox"
	"github.com/GriffinCanCode/microhost/internal/shared/types"
	"github.com/GriffinCanCode/microhost/internal/shared/utils"
	"github.com/GriffinCanCode/microhost/internal/source"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// CreateOptions describes an app to register.
type CreateOptions struct {
	Name                string
	URL                 string
	HTML                string
	UMD                 bool
	KeepAlive           bool
	DisableSandbox      bool
	DisableMemoryRouter bool
	DisablePatchRequest bool
	KeepRouterState     bool
	BaseRoute           string
	DefaultPage         string
	OnError             func(error) // called on load and script errors
}

// UnmountOptions configures an unmount.
type UnmountOptions struct {
	Destroy         bool
	ClearAliveState bool
}

// record is the host side of one app. Page objects in it are only touched
// while holding the page.
type record struct {
	opts       CreateOptions
	source     *source.Source
	sandbox    *sandbox.SandBox // nil without sandbox
	container  sandbox.Container
	umdMount   goja.Callable
	umdUnmount goja.Callable
}

func (r *record) fail(err error) {
	if r.opts.OnError != nil {
		r.opts.OnError(err)
	}
}

// CreateApp registers an app and extracts its markup. A markup error leaves
// the app in the load_failed state and is returned with the instance.
func (h *Host) CreateApp(opts CreateOptions) (*types.Instance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return nil, ErrNotStarted
	}
	name, err := utils.ValidateAppName(opts.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	opts.Name = name
	if u, err := url.Parse(opts.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, opts.URL)
	}
	opts.DisableSandbox = opts.DisableSandbox || h.options.DisableSandbox
	opts.DisableMemoryRouter = opts.DisableMemoryRouter || h.options.DisableMemoryRouter || opts.DisableSandbox
	opts.DisablePatchRequest = opts.DisablePatchRequest || h.options.DisablePatchRequest
	opts.KeepRouterState = opts.KeepRouterState || h.options.KeepRouterState

	instance, err := h.apps.Create(types.Instance{
		Name:                name,
		URL:                 opts.URL,
		UMD:                 opts.UMD,
		KeepAliveEnabled:    opts.KeepAlive,
		Sandbox:             !opts.DisableSandbox,
		MemoryRouter:        !opts.DisableMemoryRouter,
		DisablePatchRequest: opts.DisablePatchRequest,
		KeepRouterState:     opts.KeepRouterState,
		BaseRoute:           opts.BaseRoute,
		DefaultPage:         opts.DefaultPage,
	})
	if err != nil {
		return nil, err
	}
	rec := &record{opts: opts}
	h.records[name] = rec
	h.emit("created", name, nil)

	if err := h.apps.Transition(name, types.StateLoading); err != nil {
		return nil, err
	}
	src, err := source.Extract(opts.HTML, name, opts.URL)
	if err != nil {
		h.loadFailed(rec, err)
		instance, _ = h.apps.Get(name)
		return instance, err
	}
	rec.source = src
	for _, script := range src.Scripts {
		if !script.Inline() {
			h.logger.Debug("external script is not fetched", zap.String("app", name), zap.String("src", script.Src))
		}
	}

	err = h.page.Do(func(*goja.Runtime) error {
		return h.build(rec)
	})
	if err != nil {
		h.loadFailed(rec, err)
		instance, _ = h.apps.Get(name)
		return instance, err
	}

	if err := h.apps.Transition(name, types.StateBeforeMount); err != nil {
		return nil, err
	}
	h.logger.Info("app created", zap.String("app", name), zap.String("url", opts.URL), zap.Int("scripts", len(src.Scripts)))
	instance, _ = h.apps.Get(name)
	return instance, nil
}

func (h *Host) loadFailed(rec *record, err error) {
	name := rec.opts.Name
	if terr := h.apps.Transition(name, types.StateLoadFailed); terr != nil {
		h.logger.Warn("failed to record load failure", zap.String("app", name), zap.Error(terr))
	}
	h.apps.Fail(name, err)
	h.logger.Error("app failed to load", zap.String("app", name), zap.Error(err))
	rec.fail(err)
	h.emit("error", name, map[string]interface{}{"error": err.Error(), "stage": "load"})
}

// build creates the container and sandbox of rec. Callers hold the page.
func (h *Host) build(rec *record) error {
	p := h.page
	root, err := p.CreateElement(h.options.TagName)
	if err != nil {
		return err
	}
	p.SetAttr(root, "name", rec.opts.Name)
	head, err := p.CreateElement(source.HeadTag)
	if err != nil {
		return err
	}
	body, err := p.CreateElement(source.BodyTag)
	if err != nil {
		return err
	}
	for _, step := range [][2]*goja.Object{{root, head}, {root, body}, {p.Body(), root}} {
		if err := p.AppendChild(step[0], step[1]); err != nil {
			return err
		}
	}
	rec.container = sandbox.Container{Root: root, Head: head, Body: body}

	if rec.opts.DisableSandbox {
		return nil
	}
	sb, err := sandbox.New(p, sandbox.Options{
		Name:            rec.opts.Name,
		URL:             rec.opts.URL,
		UseMemoryRouter: !rec.opts.DisableMemoryRouter,
		Plugins:         h.options.Plugins,
		Coordinator:     h.coord,
		Hub:             h.hub,
		Dev:             h.options.Dev,
		Logger:          h.logger,
	})
	if err != nil {
		p.RemoveNode(root)
		return err
	}
	sb.SetContainer(rec.container)
	rec.sandbox = sb

	name := rec.opts.Name
	h.hub.AddDataListener(name, func(data interact.Data) {
		h.emit("data", name, data)
	}, false)
	return nil
}

func (h *Host) record(name string) (*record, *types.Instance, error) {
	rec, ok := h.records[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrAppNotFound, name)
	}
	instance, ok := h.apps.Get(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrAppNotFound, name)
	}
	return rec, instance, nil
}

// Mount renders an app and runs its scripts. A hidden keep-alive app is shown
// again instead. A script error stops the sandbox and leaves the app in the
// mounting state with the error recorded.
func (h *Host) Mount(ctx context.Context, name string) (*types.Instance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, instance, err := h.record(name)
	if err != nil {
		return nil, err
	}
	if instance.Hidden() {
		return h.show(rec)
	}
	if rec.source == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	if err := h.apps.Transition(name, types.StateMounting); err != nil {
		return nil, err
	}
	h.emit("beforemount", name, nil)

	err = h.page.Do(func(*goja.Runtime) error {
		h.dispatchLifecycle(rec, "beforemount")
		return h.mount(ctx, rec, instance.Mounts > 0)
	})
	if err != nil {
		h.apps.Fail(name, err)
		h.logger.Error("app failed to mount", zap.String("app", name), zap.Error(err))
		rec.fail(err)
		h.emit("error", name, map[string]interface{}{"error": err.Error(), "stage": "mount"})
		instance, _ = h.apps.Get(name)
		return instance, err
	}

	if err := h.apps.Transition(name, types.StateMounted); err != nil {
		return nil, err
	}
	h.emit("mounted", name, nil)
	h.logger.Info("app mounted", zap.String("app", name), zap.Bool("umd", rec.opts.UMD))
	instance, _ = h.apps.Get(name)
	return instance, nil
}

// mount runs inside page.Do.
func (h *Host) mount(ctx context.Context, rec *record, remount bool) error {
	p := h.page
	if err := p.SetInnerHTML(rec.container.Head, rec.source.Head); err != nil {
		return err
	}
	if err := p.SetInnerHTML(rec.container.Body, rec.source.Body); err != nil {
		return err
	}

	sb := rec.sandbox
	if sb != nil {
		err := sb.Start(sandbox.StartOptions{
			UMDMode:             rec.opts.UMD,
			BaseRoute:           rec.opts.BaseRoute,
			UseMemoryRouter:     !rec.opts.DisableMemoryRouter,
			DefaultPage:         rec.opts.DefaultPage,
			DisablePatchRequest: rec.opts.DisablePatchRequest,
		})
		if err != nil {
			return err
		}
	}

	if rec.opts.UMD && remount && rec.umdMount != nil {
		if sb != nil {
			sb.RebuildUmdSnapshot()
		}
		if err := h.callHook(ctx, rec, rec.umdMount, "mount"); err != nil {
			h.stopAfterError(rec)
			return err
		}
		h.dispatchLifecycle(rec, "mounted")
		return nil
	}

	for i, script := range rec.source.InlineScripts() {
		filename := fmt.Sprintf("%s:script:%d", rec.opts.Name, i)
		if _, err := h.run(ctx, rec, "exec", filename, script.Code); err != nil {
			h.stopAfterError(rec)
			return fmt.Errorf("script %d failed: %w", i, err)
		}
	}

	if rec.opts.UMD {
		rec.umdMount, rec.umdUnmount = h.umdHooks(rec)
		if rec.umdMount != nil {
			if sb != nil {
				sb.RecordUmdSnapshot()
			}
			if err := h.callHook(ctx, rec, rec.umdMount, "mount"); err != nil {
				h.stopAfterError(rec)
				return err
			}
		}
	}
	h.dispatchLifecycle(rec, "mounted")
	return nil
}

func (h *Host) stopAfterError(rec *record) {
	if rec.sandbox != nil {
		rec.sandbox.Stop(sandbox.StopOptions{UMDMode: rec.opts.UMD, ClearEventSource: true})
	}
}

// umdHooks finds the mount and unmount functions an app exposed, either on
// the library object window["micro-app-<name>"] or as globals.
func (h *Host) umdHooks(rec *record) (mount, unmount goja.Callable) {
	global := h.window(rec)
	if lib, ok := global.Get("micro-app-" + rec.opts.Name).(*goja.Object); ok && lib != nil {
		mount, _ = goja.AssertFunction(lib.Get("mount"))
		unmount, _ = goja.AssertFunction(lib.Get("unmount"))
		if mount != nil {
			return mount, unmount
		}
	}
	mount, _ = goja.AssertFunction(global.Get("mount"))
	unmount, _ = goja.AssertFunction(global.Get("unmount"))
	return mount, unmount
}

func (h *Host) callHook(ctx context.Context, rec *record, hook goja.Callable, kind string) error {
	vm := h.page.VM()
	data := vm.ToValue(h.hub.GetData(rec.opts.Name, true))
	start := time.Now()
	prev := h.coord.CurrentApp()
	if rec.sandbox != nil {
		h.coord.SetDomScope(rec.opts.Name)
	}
	_, err := h.page.Call(ctx, hook, h.window(rec), data)
	h.coord.SetDomScope(prev)
	h.metrics.ScriptExecuted(rec.opts.Name, kind, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("umd %s hook failed: %w", kind, err)
	}
	return nil
}

// window returns the global the scripts of rec observe.
func (h *Host) window(rec *record) *goja.Object {
	if rec.sandbox != nil {
		return rec.sandbox.ProxyWindow()
	}
	return h.page.Window()
}

// show brings a hidden keep-alive app back.
func (h *Host) show(rec *record) (*types.Instance, error) {
	name := rec.opts.Name
	err := h.page.Do(func(*goja.Runtime) error {
		if rec.sandbox == nil {
			return nil
		}
		rec.sandbox.SetHidden(false)
		return rec.sandbox.SetRouteInfoForKeepAliveApp()
	})
	if err != nil {
		h.logger.Warn("failed to restore route of keep-alive app", zap.String("app", name), zap.Error(err))
	}
	h.apps.SetKeepAlive(name, types.KeepAliveShow)
	h.emit(string(types.KeepAliveShow), name, nil)
	instance, _ := h.apps.Get(name)
	return instance, nil
}

// Unmount stops an app. A keep-alive app is hidden unless opts destroy it or
// clear its alive state.
func (h *Host) Unmount(ctx context.Context, name string, opts UnmountOptions) (*types.Instance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unmount(ctx, name, opts)
}

func (h *Host) unmount(ctx context.Context, name string, opts UnmountOptions) (*types.Instance, error) {
	rec, instance, err := h.record(name)
	if err != nil {
		return nil, err
	}

	running := instance.State == types.StateMounted || instance.State == types.StateMounting
	if instance.State == types.StateMounted && rec.opts.KeepAlive && !opts.Destroy && !opts.ClearAliveState {
		if instance.Hidden() {
			return instance, nil
		}
		return h.hide(rec)
	}

	if running {
		err = h.page.Do(func(*goja.Runtime) error {
			return h.stop(ctx, rec, opts)
		})
		if err != nil {
			h.logger.Warn("app unmount hook failed", zap.String("app", name), zap.Error(err))
			rec.fail(err)
		}
		if terr := h.apps.Transition(name, types.StateUnmount); terr != nil {
			return nil, terr
		}
		h.apps.SetKeepAlive(name, types.KeepAliveNone)
		h.emit("unmount", name, nil)
		h.logger.Info("app unmounted", zap.String("app", name), zap.Bool("destroy", opts.Destroy))
	}

	if !opts.Destroy {
		instance, _ = h.apps.Get(name)
		return instance, nil
	}

	derr := h.page.Do(func(*goja.Runtime) error {
		if rec.sandbox != nil {
			rec.sandbox.Dispose()
		}
		h.hub.ClearDataListener(name)
		h.hub.ClearData(name)
		if rec.container.Root != nil {
			h.page.RemoveNode(rec.container.Root)
		}
		return nil
	})
	delete(h.records, name)
	h.apps.Remove(name)
	instance.State = types.StateUnmount
	h.emit("destroyed", name, nil)
	return instance, errors.Join(err, derr)
}

// stop runs inside page.Do.
func (h *Host) stop(ctx context.Context, rec *record, opts UnmountOptions) error {
	var hookErr error
	if err := h.page.DispatchWindowEvent("CustomEvent", "unmount-"+rec.opts.Name, nil); err != nil {
		h.logger.Warn("failed to dispatch unmount event", zap.String("app", rec.opts.Name), zap.Error(err))
	}
	if rec.opts.UMD && rec.umdUnmount != nil {
		hookErr = h.callHook(ctx, rec, rec.umdUnmount, "unmount")
	}
	if rec.sandbox != nil {
		rec.sandbox.Stop(sandbox.StopOptions{
			UMDMode:          rec.opts.UMD && !opts.Destroy,
			KeepRouteState:   rec.opts.KeepRouterState && !opts.Destroy,
			ClearEventSource: true,
		})
		rec.sandbox.SetHidden(false)
	}
	h.dispatchLifecycle(rec, "unmount")
	for _, el := range []*goja.Object{rec.container.Head, rec.container.Body} {
		if err := h.page.SetInnerHTML(el, ""); err != nil {
			return errors.Join(hookErr, err)
		}
	}
	return hookErr
}

// hide moves a keep-alive app to the background without stopping it.
func (h *Host) hide(rec *record) (*types.Instance, error) {
	name := rec.opts.Name
	err := h.page.Do(func(*goja.Runtime) error {
		h.dispatchLifecycle(rec, "afterhidden")
		if rec.sandbox == nil {
			return nil
		}
		rec.sandbox.SetHidden(true)
		return rec.sandbox.RemoveRouteInfoForKeepAliveApp()
	})
	if err != nil {
		h.logger.Warn("failed to remove route of keep-alive app", zap.String("app", name), zap.Error(err))
	}
	h.apps.SetKeepAlive(name, types.KeepAliveHidden)
	h.emit(string(types.KeepAliveHidden), name, nil)
	instance, _ := h.apps.Get(name)
	return instance, nil
}

// UnmountAll unmounts every app with opts.
func (h *Host) UnmountAll(opts UnmountOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for _, instance := range h.apps.List(nil) {
		if _, err := h.unmount(context.Background(), instance.Name, opts); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", instance.Name, err))
		}
	}
	return errors.Join(errs...)
}

// dispatchLifecycle fires a CustomEvent on the app element. Callers hold
// the page.
func (h *Host) dispatchLifecycle(rec *record, typ string) {
	p := h.page
	event, err := p.NewEvent("CustomEvent", typ, map[string]interface{}{
		"detail": map[string]interface{}{"name": rec.opts.Name, "container": rec.container.Root},
	})
	if err != nil {
		h.logger.Warn("failed to create lifecycle event", zap.String("type", typ), zap.Error(err))
		return
	}
	p.Dispatch(rec.container.Root, event)
}

// App returns the instance of name.
func (h *Host) App(name string) (*types.Instance, bool) {
	return h.apps.Get(name)
}

// Apps returns every instance sorted by name.
func (h *Host) Apps() []*types.Instance {
	return h.apps.List(nil)
}

// AllApps returns the names of every registered app.
func (h *Host) AllApps() []string {
	instances := h.apps.List(nil)
	names := make([]string, 0, len(instances))
	for _, instance := range instances {
		names = append(names, instance.Name)
	}
	return names
}

// ActiveApps returns the names of apps that are mounting or mounted.
// excludeHidden drops hidden keep-alive apps.
func (h *Host) ActiveApps(excludeHidden bool) []string {
	var names []string
	for _, instance := range h.apps.List(nil) {
		switch instance.State {
		case types.StateBeforeMount, types.StateMounting, types.StateMounted:
		default:
			continue
		}
		if excludeHidden && instance.Hidden() {
			continue
		}
		names = append(names, instance.Name)
	}
	return names
}
