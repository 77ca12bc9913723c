package page

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

type listener struct {
	value   *goja.Object
	capture bool
	once    bool
}

// eventRegistry stores listeners per target object.
type eventRegistry struct {
	targets map[*goja.Object]map[string][]*listener
}

func newEventRegistry() *eventRegistry {
	return &eventRegistry{targets: make(map[*goja.Object]map[string][]*listener)}
}

func (r *eventRegistry) add(target *goja.Object, typ string, l *listener) {
	byType, ok := r.targets[target]
	if !ok {
		byType = make(map[string][]*listener)
		r.targets[target] = byType
	}
	for _, existing := range byType[typ] {
		if existing.value == l.value && existing.capture == l.capture {
			return
		}
	}
	byType[typ] = append(byType[typ], l)
}

func (r *eventRegistry) remove(target *goja.Object, typ string, value *goja.Object, capture bool) {
	byType := r.targets[target]
	list := byType[typ]
	for i, existing := range list {
		if existing.value == value && existing.capture == capture {
			byType[typ] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(byType[typ]) == 0 {
		delete(byType, typ)
	}
	if len(byType) == 0 {
		delete(r.targets, target)
	}
}

func (r *eventRegistry) snapshot(target *goja.Object, typ string) []*listener {
	return append([]*listener(nil), r.targets[target][typ]...)
}

func (r *eventRegistry) count(target *goja.Object, typ string) int {
	return len(r.targets[target][typ])
}

func (p *Page) setupEventTarget() error {
	proto := p.vm.NewObject()
	proto.Set("addEventListener", p.addEventListener)
	proto.Set("removeEventListener", p.removeEventListener)
	proto.Set("dispatchEvent", func(call goja.FunctionCall) goja.Value {
		target := p.thisObject(call)
		event, ok := call.Argument(0).(*goja.Object)
		if !ok {
			panic(p.vm.NewTypeError("Failed to execute 'dispatchEvent': parameter 1 is not of type 'Event'."))
		}
		return p.vm.ToValue(p.Dispatch(target, event))
	})

	if _, err := p.defineInterface("EventTarget", proto, nil, true); err != nil {
		return err
	}
	p.eventTargetProto = proto

	windowProto := p.vm.NewObject()
	windowProto.SetPrototype(proto)
	if _, err := p.defineInterface("Window", windowProto, nil, false); err != nil {
		return err
	}
	return p.window.SetPrototype(windowProto)
}

func (p *Page) addEventListener(call goja.FunctionCall) goja.Value {
	target := p.thisObject(call)
	typ := call.Argument(0).String()
	fn, ok := call.Argument(1).(*goja.Object)
	if !ok {
		return goja.Undefined()
	}
	capture, once := listenerOptions(call.Argument(2))
	p.events.add(target, typ, &listener{value: fn, capture: capture, once: once})
	return goja.Undefined()
}

func (p *Page) removeEventListener(call goja.FunctionCall) goja.Value {
	target := p.thisObject(call)
	fn, ok := call.Argument(1).(*goja.Object)
	if !ok {
		return goja.Undefined()
	}
	capture, _ := listenerOptions(call.Argument(2))
	p.events.remove(target, call.Argument(0).String(), fn, capture)
	return goja.Undefined()
}

func listenerOptions(v goja.Value) (capture, once bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false, false
	}
	if opts, ok := v.(*goja.Object); ok {
		if c := opts.Get("capture"); c != nil {
			capture = c.ToBoolean()
		}
		if o := opts.Get("once"); o != nil {
			once = o.ToBoolean()
		}
		return capture, once
	}
	return v.ToBoolean(), false
}

// Dispatch delivers event to the listeners of target, then to its
// on<type> handler. It returns false if a listener cancelled the event.
func (p *Page) Dispatch(target, event *goja.Object) bool {
	typ := event.Get("type").String()
	event.Set("target", target)
	event.Set("currentTarget", target)

	for _, l := range p.events.snapshot(target, typ) {
		if l.once {
			p.events.remove(target, typ, l.value, l.capture)
		}
		p.invokeListener(target, l.value, event, typ)
		if truthy(event.Get("__stoppedImmediate")) {
			break
		}
	}

	if handler := target.Get("on" + typ); handler != nil {
		if fn, ok := goja.AssertFunction(handler); ok {
			if _, err := fn(target, event); err != nil {
				p.logger.Warn("event handler threw",
					zap.String("type", typ),
					zap.String("app", p.currentScope()),
					zap.Error(err))
			}
		}
	}

	event.Set("currentTarget", goja.Null())
	return !truthy(event.Get("defaultPrevented"))
}

func (p *Page) invokeListener(target, value, event *goja.Object, typ string) {
	this := goja.Value(target)
	fn, ok := goja.AssertFunction(value)
	if !ok {
		handle, isFn := goja.AssertFunction(value.Get("handleEvent"))
		if !isFn {
			return
		}
		fn, this = handle, value
	}
	if _, err := fn(this, event); err != nil {
		p.logger.Warn("event listener threw",
			zap.String("type", typ),
			zap.String("app", p.currentScope()),
			zap.Error(err))
	}
}

// NewEvent constructs window[ctor](typ, init).
func (p *Page) NewEvent(ctor, typ string, init map[string]interface{}) (*goja.Object, error) {
	args := []goja.Value{p.vm.ToValue(typ)}
	if init != nil {
		args = append(args, p.vm.ToValue(init))
	}
	return p.vm.New(p.window.Get(ctor), args...)
}

// DispatchWindowEvent builds an event and dispatches it on the real window.
func (p *Page) DispatchWindowEvent(ctor, typ string, init map[string]interface{}) error {
	event, err := p.NewEvent(ctor, typ, init)
	if err != nil {
		return err
	}
	p.Dispatch(p.window, event)
	return nil
}

// ListenerCount reports how many listeners target has for typ.
func (p *Page) ListenerCount(target *goja.Object, typ string) int {
	return p.events.count(target, typ)
}

func (p *Page) thisObject(call goja.FunctionCall) *goja.Object {
	if call.This == nil || goja.IsUndefined(call.This) || goja.IsNull(call.This) {
		return p.window
	}
	return call.This.ToObject(p.vm)
}

// defineInterface publishes a constructor named name on the window whose
// prototype is proto. Only constructible interfaces can be called with new.
func (p *Page) defineInterface(name string, proto, parent *goja.Object, constructible bool) (*goja.Object, error) {
	body := "throw new TypeError('Illegal constructor')"
	if constructible {
		body = ""
	}
	v, err := p.vm.RunString("(function " + name + "() {" + body + "})")
	if err != nil {
		return nil, err
	}
	ctor := v.ToObject(p.vm)
	if parent != nil {
		if err := ctor.SetPrototype(parent); err != nil {
			return nil, err
		}
	}
	if err := ctor.Set("prototype", proto); err != nil {
		return nil, err
	}
	if err := proto.DefineDataProperty("constructor", ctor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return nil, err
	}
	if err := p.window.DefineDataProperty(name, ctor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return nil, err
	}
	return ctor, nil
}

func truthy(v goja.Value) bool {
	return v != nil && v.ToBoolean()
}
