package router

import (
	"fmt"
	"net/url"

	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Config defines a micro router.
type Config struct {
	Page           *page.Page
	App            string
	URL            string // app entry URL; the initial virtual location
	RemoveDomScope func() // called before native events are fired
	Logger         *zap.Logger
}

// MicroRouter is the virtual location and history of one app.
type MicroRouter struct {
	page           *page.Page
	vm             *goja.Runtime
	app            string
	base           *url.URL
	cur            *url.URL
	location       *goja.Object
	history        *goja.Object
	removeDomScope func()
	logger         *zap.Logger
}

// CreateMicroRouter builds the location and history objects of an app.
func CreateMicroRouter(cfg Config) (*MicroRouter, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAppURL, cfg.URL)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &MicroRouter{
		page:           cfg.Page,
		vm:             cfg.Page.VM(),
		app:            cfg.App,
		base:           base,
		cur:            cloneURL(base),
		removeDomScope: cfg.RemoveDomScope,
		logger:         logger.Named("router").With(zap.String("app", cfg.App)),
	}
	if err := r.buildLocation(); err != nil {
		return nil, err
	}
	r.buildHistory()
	return r, nil
}

// Location returns the virtual location object.
func (r *MicroRouter) Location() *goja.Object { return r.location }

// History returns the virtual history object.
func (r *MicroRouter) History() *goja.Object { return r.history }

// App returns the app name.
func (r *MicroRouter) App() string { return r.app }

// Href returns the virtual href.
func (r *MicroRouter) Href() string { return r.cur.String() }

// Path returns the virtual path, query and fragment.
func (r *MicroRouter) Path() string { return microPath(r.cur) }

// UpdateMicroLocation moves the virtual location to path without touching
// the real history.
func (r *MicroRouter) UpdateMicroLocation(path string) error {
	target, err := r.cur.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid micro path %q: %w", path, err)
	}
	r.setCurrent(target)
	return nil
}

func (r *MicroRouter) setCurrent(target *url.URL) {
	next := cloneURL(r.base)
	next.Path, next.RawPath = target.Path, target.RawPath
	next.RawQuery = target.RawQuery
	next.Fragment, next.RawFragment = target.Fragment, target.RawFragment
	r.cur = next
}

func (r *MicroRouter) sameOrigin(u *url.URL) bool {
	return u.Scheme == r.base.Scheme && u.Host == r.base.Host
}

// ============================================================================
// Location
// ============================================================================

func (r *MicroRouter) buildLocation() error {
	loc := r.vm.NewObject()
	r.location = loc

	readOnly := map[string]func(u *url.URL) string{
		"origin":   func(u *url.URL) string { return u.Scheme + "://" + u.Host },
		"protocol": func(u *url.URL) string { return u.Scheme + ":" },
		"host":     func(u *url.URL) string { return u.Host },
		"hostname": func(u *url.URL) string { return u.Hostname() },
		"port":     func(u *url.URL) string { return u.Port() },
	}
	for _, name := range []string{"origin", "protocol", "host", "hostname", "port"} {
		get := readOnly[name]
		if err := loc.DefineAccessorProperty(name, r.vm.ToValue(func(goja.FunctionCall) goja.Value {
			return r.vm.ToValue(get(r.cur))
		}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return err
		}
	}

	writable := []struct {
		name string
		get  func(u *url.URL) string
		set  func(u *url.URL, v string)
	}{
		{"pathname", func(u *url.URL) string { return u.EscapedPath() }, func(u *url.URL, v string) {
			u.Path, u.RawPath = v, ""
		}},
		{"search", func(u *url.URL) string {
			if u.RawQuery == "" {
				return ""
			}
			return "?" + u.RawQuery
		}, func(u *url.URL, v string) {
			u.RawQuery = trimPrefix(v, '?')
		}},
		{"hash", func(u *url.URL) string {
			if u.Fragment == "" {
				return ""
			}
			return "#" + u.EscapedFragment()
		}, func(u *url.URL, v string) {
			u.Fragment, u.RawFragment = trimPrefix(v, '#'), ""
		}},
	}
	for _, w := range writable {
		w := w
		if err := loc.DefineAccessorProperty(w.name,
			r.vm.ToValue(func(goja.FunctionCall) goja.Value { return r.vm.ToValue(w.get(r.cur)) }),
			r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
				next := cloneURL(r.cur)
				w.set(next, call.Argument(0).String())
				r.navigate(next.String(), false)
				return goja.Undefined()
			}), goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return err
		}
	}

	if err := loc.DefineAccessorProperty("href",
		r.vm.ToValue(func(goja.FunctionCall) goja.Value { return r.vm.ToValue(r.cur.String()) }),
		r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			r.navigate(call.Argument(0).String(), false)
			return goja.Undefined()
		}), goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}

	loc.Set("assign", func(call goja.FunctionCall) goja.Value {
		r.navigate(call.Argument(0).String(), false)
		return goja.Undefined()
	})
	loc.Set("replace", func(call goja.FunctionCall) goja.Value {
		r.navigate(call.Argument(0).String(), true)
		return goja.Undefined()
	})
	loc.Set("reload", func(goja.FunctionCall) goja.Value {
		r.logger.Info("app reload requested", zap.String("href", r.cur.String()))
		return goja.Undefined()
	})
	loc.Set("toString", func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(r.cur.String())
	})
	return nil
}

// navigate handles location assignment. Same-origin targets update the app's
// path in the real URL and fire a native popstate so every mounted app
// resyncs; cross-origin targets go to the real location.
func (r *MicroRouter) navigate(value string, replace bool) {
	target, err := r.cur.Parse(value)
	if err != nil {
		panic(r.vm.NewTypeError(fmt.Sprintf("invalid url %q", value)))
	}
	if !r.sameOrigin(target) {
		if err := r.page.Location().Set("href", target.String()); err != nil {
			throw(r.vm, err)
		}
		return
	}

	full := setMicroPathToURL(r.page, r.app, target)
	if full == r.page.Href() {
		return
	}
	if err := nativeHistoryNavigate(r.page, replace, full, setMicroState(r.page, r.app, goja.Null())); err != nil {
		throw(r.vm, err)
	}
	r.dispatchNative(false, "")
	r.setCurrent(target)
}

func (r *MicroRouter) dispatchNative(onlyForBrowser bool, oldHref string) {
	if r.removeDomScope != nil {
		r.removeDomScope()
	}
	if err := DispatchNativeEvent(r.page, onlyForBrowser, oldHref); err != nil {
		r.logger.Warn("failed to dispatch native event", zap.Error(err))
	}
}

// ============================================================================
// History
// ============================================================================

func (r *MicroRouter) buildHistory() {
	h := r.vm.NewObject()
	r.history = h

	h.Set("pushState", func(call goja.FunctionCall) goja.Value {
		r.changeState(call, false)
		return goja.Undefined()
	})
	h.Set("replaceState", func(call goja.FunctionCall) goja.Value {
		r.changeState(call, true)
		return goja.Undefined()
	})
	for _, name := range []string{"go", "back", "forward"} {
		name := name
		h.Set(name, func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(r.page.History().Get(name))
			if !ok {
				return goja.Undefined()
			}
			if _, err := fn(r.page.History(), call.Arguments...); err != nil {
				throw(r.vm, err)
			}
			return goja.Undefined()
		})
	}
	h.DefineAccessorProperty("state", r.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return GetMicroState(r.page, r.app)
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	h.DefineAccessorProperty("length", r.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(r.page.HistoryLength())
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (r *MicroRouter) changeState(call goja.FunctionCall, replace bool) {
	state := call.Argument(0)
	arg := call.Argument(2)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		if err := nativeHistoryNavigate(r.page, replace, r.page.Href(), setMicroState(r.page, r.app, state)); err != nil {
			throw(r.vm, err)
		}
		return
	}

	target, err := r.cur.Parse(arg.String())
	if err != nil {
		panic(r.vm.NewTypeError(fmt.Sprintf("invalid url %q", arg.String())))
	}
	if !r.sameOrigin(target) {
		if err := nativeHistoryNavigate(r.page, replace, target.String(), state); err != nil {
			throw(r.vm, err)
		}
		return
	}
	full := setMicroPathToURL(r.page, r.app, target)
	if err := nativeHistoryNavigate(r.page, replace, full, setMicroState(r.page, r.app, state)); err != nil {
		throw(r.vm, err)
	}
	r.setCurrent(target)
}

// ============================================================================
// Route state in the real URL
// ============================================================================

// InitRouteStateWithURL restores the virtual location from the page URL, or
// writes the current one there when the URL carries nothing for the app.
func (r *MicroRouter) InitRouteStateWithURL(defaultPage string) error {
	if path := GetMicroPathFromURL(r.page, r.app); path != "" {
		return r.UpdateMicroLocation(path)
	}
	return r.UpdateBrowserURLWithLocation(defaultPage)
}

// UpdateBrowserURLWithLocation writes the virtual location into the page URL,
// moving to defaultPage first when one is given.
func (r *MicroRouter) UpdateBrowserURLWithLocation(defaultPage string) error {
	if defaultPage != "" {
		if err := r.UpdateMicroLocation(defaultPage); err != nil {
			return err
		}
	}
	return nativeHistoryNavigate(r.page, true,
		setMicroPathToURL(r.page, r.app, r.cur),
		setMicroState(r.page, r.app, goja.Null()))
}

// ClearRouteStateFromURL removes the app's path and state from the page and,
// unless keep is set, resets the virtual location to the app URL.
func (r *MicroRouter) ClearRouteStateFromURL(keep bool) error {
	if !keep {
		r.cur = cloneURL(r.base)
	}
	return RemoveStateAndPathFromBrowser(r.page, r.app)
}

// RemoveStateAndPathFromBrowser drops app's path and state from the page.
func RemoveStateAndPathFromBrowser(p *page.Page, app string) error {
	return nativeHistoryNavigate(p, true,
		removeMicroPathFromURL(p, app),
		removeMicroState(p, app, p.HistoryState()))
}

func cloneURL(u *url.URL) *url.URL {
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}

func trimPrefix(s string, c byte) string {
	if len(s) > 0 && s[0] == c {
		return s[1:]
	}
	return s
}
