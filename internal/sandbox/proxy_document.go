package sandbox

import (
	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/dop251/goja"
)

// AppNameKey tags nodes and objects created by an app.
const AppNameKey = "__MICRO_APP_NAME__"

// ProxyDocumentKey reads true through any proxy document.
const ProxyDocumentKey = "__MICRO_APP_PROXY_DOCUMENT__"

// createProxyDocument builds the document and Document this app observes.
func (sb *SandBox) createProxyDocument() (document, ctor *goja.Object, err error) {
	env := sb.env
	vm := sb.vm
	rawDocument := env.RawDocument

	createElement := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		el, err := env.RawCreateElement(rawDocument, call.Arguments...)
		if err != nil {
			throw(vm, err)
		}
		if obj, ok := el.(*goja.Object); ok {
			obj.Set(AppNameKey, sb.name)
		}
		return el
	})

	traps := &goja.ProxyTrapConfig{
		Get: func(target *goja.Object, key string, _ goja.Value) goja.Value {
			sb.coord.SetDomScope(sb.name)
			switch key {
			case "createElement":
				return createElement
			case "defaultView":
				return sb.proxyWindow
			case ProxyDocumentKey:
				return vm.ToValue(true)
			}
			return sb.coord.documentBinds.bind(target.Get(key))
		},
		GetSym: func(target *goja.Object, sym *goja.Symbol, _ goja.Value) goja.Value {
			if sym == goja.SymToStringTag {
				return vm.ToValue("ProxyDocument")
			}
			return orUndefined(target.GetSymbol(sym))
		},
		Set: func(target *goja.Object, key string, value goja.Value, _ goja.Value) bool {
			target.Set(key, value)
			return true
		},
	}
	document = vm.ToValue(vm.NewProxy(rawDocument, traps)).(*goja.Object)

	ctor, err = sb.createMicroDocument()
	if err != nil {
		return nil, nil, err
	}
	return document, ctor, nil
}

// createMicroDocument builds a Document constructor whose prototype reads
// through to the real Document.prototype and whose instanceof check accepts
// the real document and this app's proxy document.
func (sb *SandBox) createMicroDocument() (*goja.Object, error) {
	env := sb.env
	vm := sb.vm

	v, err := vm.RunString("(function Document() { throw new TypeError('Illegal constructor') })")
	if err != nil {
		return nil, err
	}
	ctor := v.ToObject(vm)
	if err := ctor.SetPrototype(env.DocumentCtor); err != nil {
		return nil, err
	}

	protoTraps := &goja.ProxyTrapConfig{
		Get: func(target *goja.Object, key string, _ goja.Value) goja.Value {
			sb.coord.SetDomScope(sb.name)
			return sb.coord.documentBinds.bind(target.Get(key))
		},
		Set: func(target *goja.Object, key string, value goja.Value, _ goja.Value) bool {
			target.Set(key, value)
			return true
		},
	}
	protoProxy := vm.ToValue(vm.NewProxy(env.DocumentPrototype, protoTraps)).(*goja.Object)
	proto := vm.NewObject()
	if err := proto.SetPrototype(protoProxy); err != nil {
		return nil, err
	}
	if err := proto.DefineDataProperty("constructor", ctor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return nil, err
	}
	if err := ctor.Set("prototype", proto); err != nil {
		return nil, err
	}

	hasInstance := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		target := call.Argument(0)
		if IsDocumentLike(env, target) {
			doc := target.(*goja.Object)
			return vm.ToValue(doc.SameAs(env.RawDocument) || (sb.document != nil && doc.SameAs(sb.document)))
		}
		for cur := env.PrototypeOf(target); cur != nil; cur = env.PrototypeOf(cur) {
			if cur.SameAs(proto) || cur.SameAs(env.DocumentPrototype) {
				return vm.ToValue(true)
			}
		}
		return vm.ToValue(false)
	})
	if err := ctor.DefineDataPropertySymbol(goja.SymHasInstance, hasInstance, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		return nil, err
	}
	return ctor, nil
}

// IsDocumentLike reports whether v is the real document or a proxy of it.
func IsDocumentLike(env *page.Env, v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return false
	}
	marker := obj.GetSymbol(env.DocumentMarker)
	return marker != nil && marker.ToBoolean()
}

func throw(vm *goja.Runtime, err error) {
	if ex, ok := err.(*goja.Exception); ok {
		panic(ex)
	}
	panic(vm.NewGoError(err))
}
