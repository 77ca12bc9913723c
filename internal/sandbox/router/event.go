package router

import (
	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Resolver gives the history listener access to the apps it serves.
type Resolver interface {
	// Target returns the router and proxy window of app, with ok false when
	// the app should not receive navigation (unmounted or hidden)
	Target(app string) (r *MicroRouter, window *goja.Object, ok bool)
	// RemoveDomScope clears the current DOM scope
	RemoveDomScope()
}

// IsRouteEvent reports whether typ is renamed per app under the memory router.
func IsRouteEvent(typ string) bool {
	return typ == "popstate" || typ == "hashchange"
}

// FormatEventName returns the per-app name of a window event.
func FormatEventName(typ, app string) string {
	return typ + "-" + app
}

// AddHistoryListener translates native popstate events into app events. The
// returned function removes the listener.
func AddHistoryListener(p *page.Page, app string, resolver Resolver) (func(), error) {
	vm := p.VM()
	env := p.Env()
	logger := p.Logger().Named("router").With(zap.String("app", app))

	handler := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		event := call.Argument(0).ToObject(vm)
		if v := event.Get("onlyForBrowser"); v != nil && v.ToBoolean() {
			return goja.Undefined()
		}
		r, window, ok := resolver.Target(app)
		if !ok {
			return goja.Undefined()
		}

		oldHref := r.Href()
		hashChanged := false
		if path := GetMicroPathFromURL(p, app); path != "" {
			oldHash := r.cur.Fragment
			if err := r.UpdateMicroLocation(path); err != nil {
				logger.Warn("ignoring micro path", zap.Error(err))
			}
			hashChanged = r.cur.Fragment != oldHash
		}

		if err := DispatchPopStateEventToMicroApp(p, app, window); err != nil {
			logger.Warn("failed to dispatch popstate", zap.Error(err))
		}
		if hashChanged {
			if err := DispatchHashChangeEventToMicroApp(p, app, window, oldHref, r.Href()); err != nil {
				logger.Warn("failed to dispatch hashchange", zap.Error(err))
			}
		}
		resolver.RemoveDomScope()
		return goja.Undefined()
	})

	if _, err := env.RawAddEventListener(p.Window(), vm.ToValue("popstate"), handler); err != nil {
		return nil, err
	}
	return func() {
		if _, err := env.RawRemoveEventListener(p.Window(), vm.ToValue("popstate"), handler); err != nil {
			logger.Warn("failed to remove history listener", zap.Error(err))
		}
	}, nil
}

// DispatchPopStateEventToMicroApp fires popstate-<app> on the real window
// with the app's state, then calls the app's onpopstate.
func DispatchPopStateEventToMicroApp(p *page.Page, app string, window *goja.Object) error {
	event, err := p.NewEvent("PopStateEvent", FormatEventName("popstate", app), map[string]interface{}{
		"state": GetMicroState(p, app),
	})
	if err != nil {
		return err
	}
	p.Dispatch(p.Window(), event)
	return callHandler(window, "onpopstate", event)
}

// DispatchHashChangeEventToMicroApp fires hashchange-<app> on the real window,
// then calls the app's onhashchange.
func DispatchHashChangeEventToMicroApp(p *page.Page, app string, window *goja.Object, oldHref, newHref string) error {
	event, err := p.NewEvent("HashChangeEvent", FormatEventName("hashchange", app), map[string]interface{}{
		"oldURL": oldHref,
		"newURL": newHref,
	})
	if err != nil {
		return err
	}
	p.Dispatch(p.Window(), event)
	return callHandler(window, "onhashchange", event)
}

// DispatchNativeEvent fires popstate on the real window, plus hashchange when
// oldHref is given. onlyForBrowser events are ignored by app listeners.
func DispatchNativeEvent(p *page.Page, onlyForBrowser bool, oldHref string) error {
	event, err := p.NewEvent("PopStateEvent", "popstate", map[string]interface{}{"state": goja.Null()})
	if err != nil {
		return err
	}
	if onlyForBrowser {
		event.Set("onlyForBrowser", true)
	}
	p.Dispatch(p.Window(), event)

	if oldHref == "" {
		return nil
	}
	return p.DispatchWindowEvent("HashChangeEvent", "hashchange", map[string]interface{}{
		"oldURL": oldHref,
		"newURL": p.Href(),
	})
}

func callHandler(window *goja.Object, name string, event *goja.Object) error {
	if window == nil {
		return nil
	}
	fn, ok := goja.AssertFunction(window.Get(name))
	if !ok {
		return nil
	}
	_, err := fn(window, event)
	return err
}
