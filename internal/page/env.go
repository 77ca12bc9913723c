package page

import (
	"fmt"
	"strconv"

	"github.com/dop251/goja"
)

// Env holds natives captured right after the page is built, before any app
// code can patch them. Sandboxes use these instead of reading the live
// window.
type Env struct {
	vm *goja.Runtime

	RawWindow   *goja.Object
	RawDocument *goja.Object

	NodePrototype     *goja.Object
	ElementPrototype  *goja.Object
	DocumentPrototype *goja.Object
	DocumentCtor      *goja.Object
	DocumentMarker    *goja.Symbol

	RawAddEventListener    goja.Callable
	RawRemoveEventListener goja.Callable
	RawCreateElement       goja.Callable
	RawAppendChild         goja.Callable
	RawInsertBefore        goja.Callable
	RawPushState           goja.Callable
	RawReplaceState        goja.Callable
	RawSetTimeout          goja.Callable
	RawSetInterval         goja.Callable
	RawClearTimeout        goja.Callable
	RawClearInterval       goja.Callable

	RawAddEventListenerValue goja.Value
	RawAppendChildValue      goja.Value
	RawInsertBeforeValue     goja.Value
	RawPushStateValue        goja.Value
	RawReplaceStateValue     goja.Value

	reflectHas            goja.Callable
	reflectDefineProperty goja.Callable
	reflectDeleteProperty goja.Callable
	reflectOwnKeys        goja.Callable
	getOwnPropertyDesc    goja.Callable
	getOwnPropertyNames   goja.Callable
	getPrototypeOf        goja.Callable
	hasOwnProperty        goja.Callable
	functionBind          goja.Callable
	functionToString      goja.Callable
	jsonStringify         goja.Callable
}

func captureEnv(p *Page) (*Env, error) {
	vm := p.vm
	e := &Env{
		vm:                vm,
		RawWindow:         p.window,
		RawDocument:       p.dom.document,
		NodePrototype:     p.dom.nodeProto,
		ElementPrototype:  p.dom.elementProto,
		DocumentPrototype: p.dom.documentProto,
		DocumentCtor:      p.dom.documentCtor,
		DocumentMarker:    p.dom.marker,
	}

	var missing []string
	fn := func(holder *goja.Object, name string) goja.Callable {
		if holder == nil {
			missing = append(missing, name)
			return nil
		}
		f, ok := goja.AssertFunction(holder.Get(name))
		if !ok {
			missing = append(missing, name)
		}
		return f
	}
	global := func(path ...string) *goja.Object {
		cur := p.window
		for _, seg := range path {
			v := cur.Get(seg)
			if v == nil {
				return nil
			}
			cur = v.ToObject(vm)
		}
		return cur
	}

	e.RawAddEventListener = fn(p.eventTargetProto, "addEventListener")
	e.RawRemoveEventListener = fn(p.eventTargetProto, "removeEventListener")
	e.RawCreateElement = fn(p.dom.documentProto, "createElement")
	e.RawAppendChild = fn(p.dom.nodeProto, "appendChild")
	e.RawInsertBefore = fn(p.dom.nodeProto, "insertBefore")
	e.RawPushState = fn(p.nav.history, "pushState")
	e.RawReplaceState = fn(p.nav.history, "replaceState")
	e.RawSetTimeout = fn(p.window, "setTimeout")
	e.RawSetInterval = fn(p.window, "setInterval")
	e.RawClearTimeout = fn(p.window, "clearTimeout")
	e.RawClearInterval = fn(p.window, "clearInterval")

	e.RawAddEventListenerValue = p.eventTargetProto.Get("addEventListener")
	e.RawAppendChildValue = p.dom.nodeProto.Get("appendChild")
	e.RawInsertBeforeValue = p.dom.nodeProto.Get("insertBefore")
	e.RawPushStateValue = p.nav.history.Get("pushState")
	e.RawReplaceStateValue = p.nav.history.Get("replaceState")

	e.reflectHas = fn(global("Reflect"), "has")
	e.reflectDefineProperty = fn(global("Reflect"), "defineProperty")
	e.reflectDeleteProperty = fn(global("Reflect"), "deleteProperty")
	e.reflectOwnKeys = fn(global("Reflect"), "ownKeys")
	e.getOwnPropertyDesc = fn(global("Object"), "getOwnPropertyDescriptor")
	e.getOwnPropertyNames = fn(global("Object"), "getOwnPropertyNames")
	e.getPrototypeOf = fn(global("Object"), "getPrototypeOf")
	e.hasOwnProperty = fn(global("Object", "prototype"), "hasOwnProperty")
	e.functionBind = fn(global("Function", "prototype"), "bind")
	e.functionToString = fn(global("Function", "prototype"), "toString")
	e.jsonStringify = fn(global("JSON"), "stringify")

	if len(missing) > 0 {
		return nil, fmt.Errorf("page natives missing: %v", missing)
	}
	return e, nil
}

// VM returns the runtime the natives belong to.
func (e *Env) VM() *goja.Runtime { return e.vm }

// Has is Reflect.has.
func (e *Env) Has(obj *goja.Object, key string) bool {
	v, err := e.reflectHas(goja.Undefined(), obj, e.vm.ToValue(key))
	return err == nil && v.ToBoolean()
}

// HasOwn is Object.prototype.hasOwnProperty.call(obj, key).
func (e *Env) HasOwn(obj *goja.Object, key string) bool {
	v, err := e.hasOwnProperty(obj, e.vm.ToValue(key))
	return err == nil && v.ToBoolean()
}

// Descriptor is Object.getOwnPropertyDescriptor; nil when absent.
func (e *Env) Descriptor(obj *goja.Object, key string) *goja.Object {
	v, err := e.getOwnPropertyDesc(goja.Undefined(), obj, e.vm.ToValue(key))
	if err != nil || v == nil || goja.IsUndefined(v) {
		return nil
	}
	return v.ToObject(e.vm)
}

// DefineProperty is Reflect.defineProperty with a JS descriptor object.
func (e *Env) DefineProperty(obj *goja.Object, key string, desc *goja.Object) bool {
	v, err := e.reflectDefineProperty(goja.Undefined(), obj, e.vm.ToValue(key), desc)
	return err == nil && v.ToBoolean()
}

// DeleteProperty is Reflect.deleteProperty.
func (e *Env) DeleteProperty(obj *goja.Object, key string) bool {
	v, err := e.reflectDeleteProperty(goja.Undefined(), obj, e.vm.ToValue(key))
	return err == nil && v.ToBoolean()
}

// OwnKeys is Reflect.ownKeys; entries are strings or symbols.
func (e *Env) OwnKeys(obj *goja.Object) []goja.Value {
	v, err := e.reflectOwnKeys(goja.Undefined(), obj)
	if err != nil {
		return nil
	}
	return e.Elements(v)
}

// Elements reads an array-like value into a slice.
func (e *Env) Elements(v goja.Value) []goja.Value {
	arr, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	n := int(arr.Get("length").ToInteger())
	out := make([]goja.Value, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr.Get(strconv.Itoa(i)))
	}
	return out
}

// OwnPropertyNames is Object.getOwnPropertyNames.
func (e *Env) OwnPropertyNames(obj *goja.Object) []string {
	v, err := e.getOwnPropertyNames(goja.Undefined(), obj)
	if err != nil {
		return nil
	}
	var names []string
	if err := e.vm.ExportTo(v, &names); err != nil {
		return nil
	}
	return names
}

// PrototypeOf is Object.getPrototypeOf; nil for null.
func (e *Env) PrototypeOf(v goja.Value) *goja.Object {
	proto, err := e.getPrototypeOf(goja.Undefined(), v)
	if err != nil || proto == nil || goja.IsNull(proto) || goja.IsUndefined(proto) {
		return nil
	}
	return proto.ToObject(e.vm)
}

// Bind is Function.prototype.bind.call(fn, this).
func (e *Env) Bind(fn *goja.Object, this goja.Value) (*goja.Object, error) {
	v, err := e.functionBind(fn, this)
	if err != nil {
		return nil, err
	}
	return v.ToObject(e.vm), nil
}

// Source is Function.prototype.toString.call(fn).
func (e *Env) Source(fn *goja.Object) string {
	v, err := e.functionToString(fn)
	if err != nil {
		return ""
	}
	return v.String()
}

// IsFunction reports whether v is callable.
func IsFunction(v goja.Value) bool {
	_, ok := goja.AssertFunction(v)
	return ok
}
