package sandbox

import (
	"sort"

	"github.com/GriffinCanCode/microhost/internal/sandbox/router"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// listenerRecord is one listener an app registered on a real target.
type listenerRecord struct {
	typ      string
	listener *goja.Object
	capture  bool
	options  goja.Value
}

type listenerList []listenerRecord

func (l listenerList) indexOf(typ string, listener *goja.Object, capture bool) int {
	for i, r := range l {
		if r.typ == typ && r.listener == listener && r.capture == capture {
			return i
		}
	}
	return -1
}

func (l *listenerList) add(r listenerRecord) {
	if l.indexOf(r.typ, r.listener, r.capture) < 0 {
		*l = append(*l, r)
	}
}

func (l *listenerList) remove(typ string, listener *goja.Object, capture bool) {
	if i := l.indexOf(typ, listener, capture); i >= 0 {
		*l = append((*l)[:i:i], (*l)[i+1:]...)
	}
}

type timerRecord struct {
	handler goja.Value
	timeout goja.Value
	args    []goja.Value
	repeat  bool
}

type umdRecord struct {
	window   listenerList
	document listenerList
	timers   []*timerRecord
}

// effect tracks what an app leaves behind on the real window and document.
type effect struct {
	sb *SandBox

	window   listenerList
	document listenerList
	timers   map[int64]*timerRecord

	umd *umdRecord
}

func newEffect(sb *SandBox) *effect {
	return &effect{sb: sb, timers: make(map[int64]*timerRecord)}
}

// install puts the tracking listener and timer functions on the store.
func (e *effect) install() error {
	vm := e.sb.vm
	fns := map[string]func(goja.FunctionCall) goja.Value{
		"addEventListener":    e.addEventListener,
		"removeEventListener": e.removeEventListener,
		"setTimeout":          func(call goja.FunctionCall) goja.Value { return e.schedule(call, false) },
		"setInterval":         func(call goja.FunctionCall) goja.Value { return e.schedule(call, true) },
		"clearTimeout":        e.clearTimer,
		"clearInterval":       e.clearTimer,
	}
	for name, fn := range fns {
		if err := e.sb.store.Set(name, vm.ToValue(fn)); err != nil {
			return err
		}
	}
	return nil
}

// eventType renames window events that are delivered per app.
func (e *effect) eventType(typ string) string {
	if typ == "unmount" || (e.sb.useMemoryRouter && router.IsRouteEvent(typ)) {
		return router.FormatEventName(typ, e.sb.name)
	}
	return typ
}

func (e *effect) addEventListener(call goja.FunctionCall) goja.Value {
	vm := e.sb.vm
	typ := e.eventType(call.Argument(0).String())
	if listener, ok := call.Argument(1).(*goja.Object); ok && listener != nil {
		e.window.add(listenerRecord{typ: typ, listener: listener, capture: captureOf(call.Argument(2)), options: call.Argument(2)})
	}
	if _, err := e.sb.env.RawAddEventListener(e.sb.env.RawWindow, vm.ToValue(typ), call.Argument(1), call.Argument(2)); err != nil {
		throw(vm, err)
	}
	return goja.Undefined()
}

func (e *effect) removeEventListener(call goja.FunctionCall) goja.Value {
	vm := e.sb.vm
	typ := e.eventType(call.Argument(0).String())
	if listener, ok := call.Argument(1).(*goja.Object); ok && listener != nil {
		e.window.remove(typ, listener, captureOf(call.Argument(2)))
	}
	if _, err := e.sb.env.RawRemoveEventListener(e.sb.env.RawWindow, vm.ToValue(typ), call.Argument(1), call.Argument(2)); err != nil {
		throw(vm, err)
	}
	return goja.Undefined()
}

func (e *effect) schedule(call goja.FunctionCall, repeat bool) goja.Value {
	rec := &timerRecord{
		handler: call.Argument(0),
		timeout: call.Argument(1),
		repeat:  repeat,
	}
	if len(call.Arguments) > 2 {
		rec.args = append([]goja.Value(nil), call.Arguments[2:]...)
	}
	id, err := e.start(rec)
	if err != nil {
		throw(e.sb.vm, err)
	}
	return e.sb.vm.ToValue(id)
}

// start schedules rec on the real window and tracks its id. Function
// handlers run under the app's DOM scope; a fired timeout is forgotten.
func (e *effect) start(rec *timerRecord) (int64, error) {
	sb := e.sb
	vm := sb.vm
	var id int64

	handler := rec.handler
	if fn, ok := goja.AssertFunction(rec.handler); ok {
		handler = vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if !rec.repeat {
				delete(e.timers, id)
			}
			prev := sb.coord.CurrentApp()
			sb.coord.SetDomScope(sb.name)
			v, err := fn(call.This, call.Arguments...)
			sb.coord.SetDomScope(prev)
			if err != nil {
				throw(vm, err)
			}
			return v
		})
	}

	schedule := sb.env.RawSetTimeout
	if rec.repeat {
		schedule = sb.env.RawSetInterval
	}
	args := append([]goja.Value{handler, rec.timeout}, rec.args...)
	v, err := schedule(sb.env.RawWindow, args...)
	if err != nil {
		return 0, err
	}
	id = v.ToInteger()
	e.timers[id] = rec
	return id, nil
}

func (e *effect) clearTimer(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	delete(e.timers, id)
	if _, err := e.sb.env.RawClearTimeout(e.sb.env.RawWindow, call.Argument(0)); err != nil {
		throw(e.sb.vm, err)
	}
	return goja.Undefined()
}

// recordDocumentListener is called by the shared document patch while the
// app owns the DOM scope.
func (e *effect) recordDocumentListener(typ string, listener *goja.Object, options goja.Value) {
	e.document.add(listenerRecord{typ: typ, listener: listener, capture: captureOf(options), options: options})
}

func (e *effect) forgetDocumentListener(typ string, listener *goja.Object, options goja.Value) {
	e.document.remove(typ, listener, captureOf(options))
}

// release removes every listener and timer the app left behind.
func (e *effect) release() {
	env := e.sb.env
	vm := e.sb.vm
	for _, r := range e.window {
		if _, err := env.RawRemoveEventListener(env.RawWindow, vm.ToValue(r.typ), r.listener, vm.ToValue(r.capture)); err != nil {
			e.sb.logger.Debug("failed to remove window listener", zap.String("type", r.typ), zap.Error(err))
		}
	}
	e.window = nil

	for _, r := range e.document {
		if _, err := env.RawRemoveEventListener(env.RawDocument, vm.ToValue(r.typ), r.listener, vm.ToValue(r.capture)); err != nil {
			e.sb.logger.Debug("failed to remove document listener", zap.String("type", r.typ), zap.Error(err))
		}
	}
	e.document = nil

	for id := range e.timers {
		if _, err := env.RawClearTimeout(env.RawWindow, vm.ToValue(id)); err != nil {
			e.sb.logger.Debug("failed to clear timer", zap.Int64("timer", id), zap.Error(err))
		}
	}
	e.timers = make(map[int64]*timerRecord)
}

// record keeps the current listeners and pending timers for a UMD remount.
func (e *effect) record() {
	ids := make([]int64, 0, len(e.timers))
	for id := range e.timers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rec := &umdRecord{
		window:   append(listenerList(nil), e.window...),
		document: append(listenerList(nil), e.document...),
	}
	for _, id := range ids {
		rec.timers = append(rec.timers, e.timers[id])
	}
	e.umd = rec
}

// rebuild registers the recorded listeners and timers again.
func (e *effect) rebuild() {
	if e.umd == nil {
		return
	}
	env := e.sb.env
	vm := e.sb.vm
	for _, r := range e.umd.window {
		if e.window.indexOf(r.typ, r.listener, r.capture) >= 0 {
			continue
		}
		if _, err := env.RawAddEventListener(env.RawWindow, vm.ToValue(r.typ), r.listener, r.options); err != nil {
			e.sb.logger.Debug("failed to rebuild window listener", zap.String("type", r.typ), zap.Error(err))
			continue
		}
		e.window.add(r)
	}
	for _, r := range e.umd.document {
		if e.document.indexOf(r.typ, r.listener, r.capture) >= 0 {
			continue
		}
		if _, err := env.RawAddEventListener(env.RawDocument, vm.ToValue(r.typ), r.listener, r.options); err != nil {
			e.sb.logger.Debug("failed to rebuild document listener", zap.String("type", r.typ), zap.Error(err))
			continue
		}
		e.document.add(r)
	}
	for _, rec := range e.umd.timers {
		if _, err := e.start(rec); err != nil {
			e.sb.logger.Debug("failed to rebuild timer", zap.Error(err))
		}
	}
}

func captureOf(options goja.Value) bool {
	if options == nil || goja.IsUndefined(options) || goja.IsNull(options) {
		return false
	}
	if obj, ok := options.(*goja.Object); ok && obj != nil {
		c := obj.Get("capture")
		return c != nil && c.ToBoolean()
	}
	return options.ToBoolean()
}
