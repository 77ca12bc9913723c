package sandbox

import (
	"regexp"
	"strings"

	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/dop251/goja"
)

var constructorSource = regexp.MustCompile(`^(function\s+[A-Z]|class\s+)`)

// binder memoizes functions bound to one receiver, so repeated reads of a
// native method return the same wrapper.
type binder struct {
	env      *page.Env
	receiver *goja.Object
	cache    map[*goja.Object]*goja.Object
}

func newBinder(env *page.Env, receiver *goja.Object) *binder {
	return &binder{env: env, receiver: receiver, cache: make(map[*goja.Object]*goja.Object)}
}

// bind returns v bound to the receiver when v is a plain function. Values,
// constructors and already bound functions are returned unchanged.
func (b *binder) bind(v goja.Value) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	fn, ok := v.(*goja.Object)
	if !ok || !page.IsFunction(fn) {
		return v
	}
	if bound, ok := b.cache[fn]; ok {
		return bound
	}
	if b.isConstructor(fn) || b.isBound(fn) {
		return v
	}

	bound, err := b.env.Bind(fn, b.receiver)
	if err != nil {
		return v
	}
	for _, key := range fn.Keys() {
		bound.Set(key, fn.Get(key))
	}
	if b.env.HasOwn(fn, "prototype") {
		bound.DefineDataProperty("prototype", fn.Get("prototype"), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	}
	b.cache[fn] = bound
	return bound
}

func (b *binder) isConstructor(fn *goja.Object) bool {
	if proto, ok := fn.Get("prototype").(*goja.Object); ok && proto != nil {
		if ctor := proto.Get("constructor"); ctor != nil && ctor.SameAs(fn) && len(b.env.OwnPropertyNames(proto)) > 1 {
			return true
		}
	}
	return constructorSource.MatchString(b.env.Source(fn))
}

func (b *binder) isBound(fn *goja.Object) bool {
	name := fn.Get("name")
	return name != nil && strings.HasPrefix(name.String(), "bound ") && !b.env.HasOwn(fn, "prototype")
}

// size reports how many wrappers are cached.
func (b *binder) size() int { return len(b.cache) }
