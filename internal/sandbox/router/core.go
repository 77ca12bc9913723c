package router

import (
	"errors"
	"net/url"

	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/dop251/goja"
)

// StateKey holds per-app state inside history.state.
const StateKey = "__MICRO_APP_STATE__"

var ErrInvalidAppURL = errors.New("app url must be absolute")

// GetMicroPathFromURL returns the path app stored in the page URL, or "".
func GetMicroPathFromURL(p *page.Page, app string) string {
	return p.URL().Query().Get(app)
}

// setMicroPathToURL returns the page href carrying target as app's path.
func setMicroPathToURL(p *page.Page, app string, target *url.URL) string {
	u := p.URL()
	q := u.Query()
	q.Set(app, microPath(target))
	u.RawQuery = q.Encode()
	return u.String()
}

// removeMicroPathFromURL returns the page href without app's path.
func removeMicroPathFromURL(p *page.Page, app string) string {
	u := p.URL()
	q := u.Query()
	q.Del(app)
	u.RawQuery = q.Encode()
	return u.String()
}

func microPath(u *url.URL) string {
	s := u.EscapedPath()
	if s == "" {
		s = "/"
	}
	if u.RawQuery != "" {
		s += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		s += "#" + u.EscapedFragment()
	}
	return s
}

// GetMicroState returns the history state app stored, or null.
func GetMicroState(p *page.Page, app string) goja.Value {
	vm := p.VM()
	states := stateMap(vm, p.HistoryState())
	if states == nil {
		return goja.Null()
	}
	if v := states.Get(app); v != nil && !goja.IsUndefined(v) {
		return v
	}
	return goja.Null()
}

// setMicroState returns a copy of the current history state with app's
// entry set to state.
func setMicroState(p *page.Page, app string, state goja.Value) goja.Value {
	vm := p.VM()
	raw := p.HistoryState()
	next := copyObject(vm, raw)
	states := vm.NewObject()
	if current := stateMap(vm, raw); current != nil {
		states = copyObject(vm, current)
	}
	if state == nil || goja.IsUndefined(state) {
		state = goja.Null()
	}
	states.Set(app, state)
	next.Set(StateKey, states)
	return next
}

// removeMicroState returns a copy of rawState without app's entry.
func removeMicroState(p *page.Page, app string, rawState goja.Value) goja.Value {
	vm := p.VM()
	if !isObject(rawState) {
		return rawState
	}
	next := copyObject(vm, rawState)
	if states := stateMap(vm, rawState); states != nil {
		states = copyObject(vm, states)
		states.Delete(app)
		if len(states.Keys()) == 0 {
			next.Delete(StateKey)
		} else {
			next.Set(StateKey, states)
		}
	}
	if len(next.Keys()) == 0 {
		return goja.Null()
	}
	return next
}

func stateMap(vm *goja.Runtime, state goja.Value) *goja.Object {
	if !isObject(state) {
		return nil
	}
	v := state.ToObject(vm).Get(StateKey)
	if !isObject(v) {
		return nil
	}
	return v.ToObject(vm)
}

func copyObject(vm *goja.Runtime, v goja.Value) *goja.Object {
	out := vm.NewObject()
	if !isObject(v) {
		return out
	}
	src := v.ToObject(vm)
	for _, k := range src.Keys() {
		out.Set(k, src.Get(k))
	}
	return out
}

func isObject(v goja.Value) bool {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false
	}
	obj, ok := v.(*goja.Object)
	return ok && obj != nil
}

// nativeHistoryNavigate changes the real history with the natives captured
// at page creation, bypassing any patch.
func nativeHistoryNavigate(p *page.Page, replace bool, fullPath string, state goja.Value) error {
	env := p.Env()
	method := env.RawPushState
	if replace {
		method = env.RawReplaceState
	}
	vm := p.VM()
	_, err := method(p.History(), state, vm.ToValue(""), vm.ToValue(fullPath))
	return err
}

// AttachAllRouteInfo resolves target against the page URL and carries over
// the paths of apps that target does not already name.
func AttachAllRouteInfo(p *page.Page, target string, apps []string) (string, error) {
	current := p.URL()
	ref, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	next := current.ResolveReference(ref)
	cq, nq := current.Query(), next.Query()
	changed := false
	for _, app := range apps {
		if path := cq.Get(app); path != "" && nq.Get(app) == "" {
			nq.Set(app, path)
			changed = true
		}
	}
	if changed {
		next.RawQuery = nq.Encode()
	}
	return next.String(), nil
}

// MergeRouteState carries the app states of the current history entry into
// state when state has none of its own.
func MergeRouteState(p *page.Page, state goja.Value) goja.Value {
	vm := p.VM()
	current := stateMap(vm, p.HistoryState())
	if current == nil || len(current.Keys()) == 0 {
		return state
	}
	if state == nil || goja.IsUndefined(state) || goja.IsNull(state) {
		next := vm.NewObject()
		next.Set(StateKey, copyObject(vm, current))
		return next
	}
	if !isObject(state) || stateMap(vm, state) != nil {
		return state
	}
	next := copyObject(vm, state)
	next.Set(StateKey, copyObject(vm, current))
	return next
}

func throw(vm *goja.Runtime, err error) {
	if ex, ok := err.(*goja.Exception); ok {
		panic(ex)
	}
	panic(vm.NewGoError(err))
}
