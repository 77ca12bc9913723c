package sandbox

import (
	"fmt"

	_ "embed"

	"github.com/GriffinCanCode/microhost/internal/shared/utils"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

//go:embed runtime.js
var runtimeSource string

var runtimeProgram = goja.MustCompile("sandbox:runtime.js", runtimeSource, true)

// requestRuntime holds the request and Image factories of one app.
type requestRuntime struct {
	sb      *SandBox
	factory *goja.Object

	createFetch          goja.Callable
	createXMLHttpRequest goja.Callable
	createEventSource    goja.Callable
	createImage          goja.Callable
	clearEventSources    goja.Callable
	eventSourceCount     goja.Callable
}

func newRequestRuntime(sb *SandBox) (*requestRuntime, error) {
	vm := sb.vm
	v, err := vm.RunProgram(runtimeProgram)
	if err != nil {
		return nil, fmt.Errorf("failed to load sandbox runtime: %w", err)
	}
	install, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("sandbox runtime did not evaluate to a function")
	}

	host := vm.NewObject()
	host.Set("rawWindow", sb.env.RawWindow)
	host.Set("appName", sb.name)
	host.Set("complete", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(utils.CompletePath(call.Argument(0).String(), sb.url))
	})
	host.Set("removeDomScope", func(goja.FunctionCall) goja.Value {
		sb.coord.RemoveDomScope()
		return goja.Undefined()
	})

	out, err := install(goja.Undefined(), host)
	if err != nil {
		return nil, fmt.Errorf("failed to install sandbox runtime: %w", err)
	}
	rt := &requestRuntime{sb: sb, factory: out.ToObject(vm)}

	var missing []string
	fn := func(name string) goja.Callable {
		f, ok := goja.AssertFunction(rt.factory.Get(name))
		if !ok {
			missing = append(missing, name)
		}
		return f
	}
	rt.createFetch = fn("createFetch")
	rt.createXMLHttpRequest = fn("createXMLHttpRequest")
	rt.createEventSource = fn("createEventSource")
	rt.createImage = fn("createImage")
	rt.clearEventSources = fn("clearEventSources")
	rt.eventSourceCount = fn("eventSourceCount")
	if len(missing) > 0 {
		return nil, fmt.Errorf("sandbox runtime missing: %v", missing)
	}
	return rt, nil
}

func (rt *requestRuntime) make(factory goja.Callable, target goja.Value) (goja.Value, error) {
	if target == nil {
		target = goja.Undefined()
	}
	return factory(goja.Undefined(), target)
}

// patch puts fetch, XMLHttpRequest and EventSource accessors on the store.
// Assigning one of them wraps the assigned value the same way.
func (rt *requestRuntime) patch() error {
	for _, p := range []struct {
		key     string
		factory goja.Callable
	}{
		{"fetch", rt.createFetch},
		{"XMLHttpRequest", rt.createXMLHttpRequest},
		{"EventSource", rt.createEventSource},
	} {
		factory := p.factory
		current, err := rt.make(factory, nil)
		if err != nil {
			return err
		}
		err = rt.sb.defineAccessor(p.key, true, true,
			func() goja.Value { return current },
			func(v goja.Value) {
				next, err := rt.make(factory, v)
				if err != nil {
					throw(rt.sb.vm, err)
				}
				current = next
			})
		if err != nil {
			return err
		}
	}
	return nil
}

// image returns the Image constructor that tags created elements.
func (rt *requestRuntime) image() (goja.Value, error) {
	return rt.make(rt.createImage, nil)
}

// closeEventSources closes every EventSource the app still has open.
func (rt *requestRuntime) closeEventSources() int {
	v, err := rt.clearEventSources(goja.Undefined())
	if err != nil {
		rt.sb.logger.Debug("failed to close event sources", zap.Error(err))
		return 0
	}
	return int(v.ToInteger())
}

// openEventSources counts the app's open EventSources.
func (rt *requestRuntime) openEventSources() int {
	v, err := rt.eventSourceCount(goja.Undefined())
	if err != nil {
		return 0
	}
	return int(v.ToInteger())
}
