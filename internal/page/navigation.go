package page

import (
	"fmt"
	"net/url"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

type historyEntry struct {
	url   *url.URL
	state goja.Value
}

// navigation is the session history of the page.
type navigation struct {
	entries  []historyEntry
	index    int
	location *goja.Object
	history  *goja.Object
}

func (n *navigation) current() *url.URL {
	return n.entries[n.index].url
}

func (p *Page) setupNavigation(initial *url.URL) error {
	p.nav = &navigation{
		entries: []historyEntry{{url: initial, state: goja.Null()}},
	}
	if err := p.setupLocation(); err != nil {
		return err
	}
	p.setupHistory()

	if err := p.window.DefineAccessorProperty("location",
		p.vm.ToValue(func(goja.FunctionCall) goja.Value { return p.nav.location }),
		p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			p.assign(call.Argument(0).String(), false)
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}
	return p.window.DefineAccessorProperty("history",
		p.vm.ToValue(func(goja.FunctionCall) goja.Value { return p.nav.history }),
		nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

// ============================================================================
// Location
// ============================================================================

func (p *Page) setupLocation() error {
	loc := p.vm.NewObject()
	p.nav.location = loc

	part := func(name string, get func(u *url.URL) string, set func(u *url.URL, v string)) error {
		var setter goja.Value
		if set != nil {
			setter = p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
				next := *p.nav.current()
				set(&next, call.Argument(0).String())
				p.assign(next.String(), false)
				return goja.Undefined()
			})
		}
		return loc.DefineAccessorProperty(name,
			p.vm.ToValue(func(goja.FunctionCall) goja.Value {
				return p.vm.ToValue(get(p.nav.current()))
			}), setter, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}

	parts := []struct {
		name string
		get  func(u *url.URL) string
		set  func(u *url.URL, v string)
	}{
		{"origin", func(u *url.URL) string { return u.Scheme + "://" + u.Host }, nil},
		{"protocol", func(u *url.URL) string { return u.Scheme + ":" }, nil},
		{"host", func(u *url.URL) string { return u.Host }, nil},
		{"hostname", func(u *url.URL) string { return u.Hostname() }, nil},
		{"port", func(u *url.URL) string { return u.Port() }, nil},
		{"pathname", func(u *url.URL) string { return u.EscapedPath() }, func(u *url.URL, v string) {
			u.Path, u.RawPath = v, ""
		}},
		{"search", searchOf, func(u *url.URL, v string) {
			u.RawQuery = trimLeading(v, '?')
		}},
		{"hash", hashOf, func(u *url.URL, v string) {
			u.Fragment, u.RawFragment = trimLeading(v, '#'), ""
		}},
	}
	for _, pt := range parts {
		if err := part(pt.name, pt.get, pt.set); err != nil {
			return err
		}
	}

	if err := loc.DefineAccessorProperty("href",
		p.vm.ToValue(func(goja.FunctionCall) goja.Value { return p.vm.ToValue(p.nav.current().String()) }),
		p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			p.assign(call.Argument(0).String(), false)
			return goja.Undefined()
		}), goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}

	loc.Set("assign", func(call goja.FunctionCall) goja.Value {
		p.assign(call.Argument(0).String(), false)
		return goja.Undefined()
	})
	loc.Set("replace", func(call goja.FunctionCall) goja.Value {
		p.assign(call.Argument(0).String(), true)
		return goja.Undefined()
	})
	loc.Set("reload", func(goja.FunctionCall) goja.Value {
		p.logger.Info("page reload requested", zap.String("href", p.nav.current().String()))
		return goja.Undefined()
	})
	loc.Set("toString", func(goja.FunctionCall) goja.Value {
		return p.vm.ToValue(p.nav.current().String())
	})
	return nil
}

// assign navigates like setting location.href. A change that only touches the
// fragment fires popstate and hashchange; any other change is recorded as a
// document navigation, which a headless page cannot perform.
func (p *Page) assign(target string, replace bool) {
	next, err := p.resolve(target)
	if err != nil {
		panic(p.vm.NewTypeError(err.Error()))
	}
	current := p.nav.current()
	if next.String() == current.String() {
		return
	}

	p.commit(historyEntry{url: next, state: goja.Null()}, replace)

	if sameDocument(current, next) {
		p.firePopState()
		p.fireHashChange(current.String(), next.String())
		return
	}
	p.logger.Info("document navigation recorded",
		zap.String("from", current.String()),
		zap.String("to", next.String()))
}

func (p *Page) resolve(target string) (*url.URL, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, target)
	}
	return p.nav.current().ResolveReference(ref), nil
}

func (p *Page) commit(entry historyEntry, replace bool) {
	if replace {
		p.nav.entries[p.nav.index] = entry
		return
	}
	p.nav.entries = append(p.nav.entries[:p.nav.index+1], entry)
	p.nav.index++
}

// sameDocument reports whether a and b differ only in their fragment.
func sameDocument(a, b *url.URL) bool {
	x, y := *a, *b
	x.Fragment, x.RawFragment = "", ""
	y.Fragment, y.RawFragment = "", ""
	return x.String() == y.String()
}

// ============================================================================
// History
// ============================================================================

func (p *Page) setupHistory() {
	h := p.vm.NewObject()
	p.nav.history = h

	h.Set("pushState", func(call goja.FunctionCall) goja.Value {
		p.changeState(call, false)
		return goja.Undefined()
	})
	h.Set("replaceState", func(call goja.FunctionCall) goja.Value {
		p.changeState(call, true)
		return goja.Undefined()
	})
	h.Set("go", func(call goja.FunctionCall) goja.Value {
		p.traverse(int(call.Argument(0).ToInteger()))
		return goja.Undefined()
	})
	h.Set("back", func(goja.FunctionCall) goja.Value {
		p.traverse(-1)
		return goja.Undefined()
	})
	h.Set("forward", func(goja.FunctionCall) goja.Value {
		p.traverse(1)
		return goja.Undefined()
	})
	h.DefineAccessorProperty("state", p.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return p.HistoryState()
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	h.DefineAccessorProperty("length", p.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return p.vm.ToValue(len(p.nav.entries))
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (p *Page) changeState(call goja.FunctionCall, replace bool) {
	state := call.Argument(0)
	if goja.IsUndefined(state) {
		state = goja.Null()
	}
	next := p.nav.current()
	if arg := call.Argument(2); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		resolved, err := p.resolve(arg.String())
		if err != nil {
			panic(p.vm.NewTypeError(err.Error()))
		}
		if resolved.Scheme != next.Scheme || resolved.Host != next.Host {
			panic(p.vm.NewTypeError(fmt.Sprintf("%s: %s", ErrCrossOrigin, resolved)))
		}
		next = resolved
	}
	p.commit(historyEntry{url: next, state: state}, replace)
}

func (p *Page) traverse(delta int) {
	target := p.nav.index + delta
	if delta == 0 || target < 0 || target >= len(p.nav.entries) {
		return
	}
	previous := p.nav.current()
	p.nav.index = target
	p.firePopState()
	if sameDocument(previous, p.nav.current()) && previous.Fragment != p.nav.current().Fragment {
		p.fireHashChange(previous.String(), p.nav.current().String())
	}
}

func (p *Page) firePopState() {
	if err := p.DispatchWindowEvent("PopStateEvent", "popstate", map[string]interface{}{
		"state": p.HistoryState(),
	}); err != nil {
		p.logger.Warn("failed to dispatch popstate", zap.Error(err))
	}
}

func (p *Page) fireHashChange(oldURL, newURL string) {
	if err := p.DispatchWindowEvent("HashChangeEvent", "hashchange", map[string]interface{}{
		"oldURL": oldURL,
		"newURL": newURL,
	}); err != nil {
		p.logger.Warn("failed to dispatch hashchange", zap.Error(err))
	}
}

// ============================================================================
// Go-side navigation
// ============================================================================

// Href returns the current page URL.
func (p *Page) Href() string { return p.nav.current().String() }

// URL returns a copy of the current page URL.
func (p *Page) URL() *url.URL {
	u := *p.nav.current()
	return &u
}

// HistoryState returns the state of the current history entry.
func (p *Page) HistoryState() goja.Value {
	if s := p.nav.entries[p.nav.index].state; s != nil {
		return s
	}
	return goja.Null()
}

// HistoryLength returns the number of session history entries.
func (p *Page) HistoryLength() int { return len(p.nav.entries) }

// Location returns the real location object.
func (p *Page) Location() *goja.Object { return p.nav.location }

// History returns the real history object.
func (p *Page) History() *goja.Object { return p.nav.history }

// Navigate pushes target on the session history the way a user-driven
// router navigation would, then fires popstate so listeners resync.
func (p *Page) Navigate(target string) error {
	next, err := p.resolve(target)
	if err != nil {
		return err
	}
	current := p.nav.current()
	if next.Scheme != current.Scheme || next.Host != current.Host {
		return fmt.Errorf("%w: %s", ErrCrossOrigin, next)
	}
	p.commit(historyEntry{url: next, state: goja.Null()}, false)
	p.firePopState()
	if sameDocument(current, next) && current.Fragment != next.Fragment {
		p.fireHashChange(current.String(), next.String())
	}
	return nil
}

// Back moves one entry back in the session history.
func (p *Page) Back() { p.traverse(-1) }

// Forward moves one entry forward in the session history.
func (p *Page) Forward() { p.traverse(1) }

func searchOf(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	return "?" + u.RawQuery
}

func hashOf(u *url.URL) string {
	if u.Fragment == "" {
		return ""
	}
	return "#" + u.EscapedFragment()
}

func trimLeading(s string, c byte) string {
	if len(s) > 0 && s[0] == c {
		return s[1:]
	}
	return s
}
