package sandbox

import (
	"fmt"

	"github.com/GriffinCanCode/microhost/internal/sandbox/router"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// BaseApplicationKey is set on the real window when it is itself an app window.
const BaseApplicationKey = "__MICRO_APP_BASE_APPLICATION__"

// EnvironmentKey is true on every app window.
const EnvironmentKey = "__MICRO_APP_ENVIRONMENT__"

// savedProperty is an own property replaced by a patch.
type savedProperty struct {
	holder     *goja.Object
	key        string
	descriptor *goja.Object // nil when the holder had no own property
}

// pageEffects are the patches applied to the real page while any sandbox is
// active.
type pageEffects struct {
	c     *Coordinator
	saved []savedProperty
}

func newPageEffects(c *Coordinator) *pageEffects {
	return &pageEffects{c: c}
}

// Install patches document events, element insertion, the nested app
// environment and the history API.
func (e *pageEffects) Install() error {
	if len(e.saved) > 0 {
		return fmt.Errorf("page effects already installed")
	}
	steps := []func() error{
		e.patchDocumentEvents,
		e.patchElementPrototype,
		e.initNestedEnvironment,
		e.patchHistory,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			e.restore()
			return err
		}
	}
	return nil
}

// Release restores every replaced property.
func (e *pageEffects) Release() error {
	e.restore()
	return nil
}

func (e *pageEffects) restore() {
	env := e.c.env
	for i := len(e.saved) - 1; i >= 0; i-- {
		s := e.saved[i]
		if s.descriptor == nil {
			env.DeleteProperty(s.holder, s.key)
			continue
		}
		if !env.DefineProperty(s.holder, s.key, s.descriptor) {
			e.c.logger.Warn("failed to restore patched property", zap.String("key", s.key))
		}
	}
	e.saved = nil
}

// replace defines an own property on holder, remembering what was there.
func (e *pageEffects) replace(holder *goja.Object, key string, value goja.Value) error {
	e.saved = append(e.saved, savedProperty{
		holder:     holder,
		key:        key,
		descriptor: e.c.env.Descriptor(holder, key),
	})
	return holder.DefineDataProperty(key, value, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

// scopedSandbox returns the active sandbox owning the DOM scope.
func (e *pageEffects) scopedSandbox() *SandBox {
	app := e.c.domScope
	if app == "" {
		return nil
	}
	if sb, ok := e.c.sandboxes[app]; ok && sb.active {
		return sb
	}
	return nil
}

func (e *pageEffects) patchDocumentEvents() error {
	c := e.c
	env := c.env
	vm := env.VM()

	add := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if sb := e.scopedSandbox(); sb != nil {
			if listener, ok := call.Argument(1).(*goja.Object); ok && listener != nil {
				sb.effect.recordDocumentListener(call.Argument(0).String(), listener, call.Argument(2))
			}
		}
		v, err := env.RawAddEventListener(call.This, call.Arguments...)
		if err != nil {
			throw(vm, err)
		}
		return v
	})
	remove := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if sb := e.scopedSandbox(); sb != nil {
			if listener, ok := call.Argument(1).(*goja.Object); ok && listener != nil {
				sb.effect.forgetDocumentListener(call.Argument(0).String(), listener, call.Argument(2))
			}
		}
		v, err := env.RawRemoveEventListener(call.This, call.Arguments...)
		if err != nil {
			throw(vm, err)
		}
		return v
	})

	if err := e.replace(env.RawDocument, "addEventListener", add); err != nil {
		return err
	}
	return e.replace(env.RawDocument, "removeEventListener", remove)
}

// containerFor returns where an app node aimed at the real head or body
// goes instead, or nil to leave the insertion alone.
func (e *pageEffects) containerFor(parent, child goja.Value) *goja.Object {
	node, ok := child.(*goja.Object)
	if !ok || node == nil {
		return nil
	}
	tag := node.Get(AppNameKey)
	if tag == nil || goja.IsUndefined(tag) || goja.IsNull(tag) {
		return nil
	}
	sb, ok := e.c.sandboxes[tag.String()]
	if !ok || !sb.active {
		return nil
	}
	target, ok := parent.(*goja.Object)
	if !ok || target == nil {
		return nil
	}
	p := e.c.page
	switch {
	case sb.container.Head != nil && target.SameAs(p.Head()):
		return sb.container.Head
	case sb.container.Body != nil && target.SameAs(p.Body()):
		return sb.container.Body
	}
	return nil
}

func (e *pageEffects) patchElementPrototype() error {
	c := e.c
	env := c.env
	vm := env.VM()

	appendChild := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		parent := call.This
		if container := e.containerFor(parent, call.Argument(0)); container != nil {
			parent = container
		}
		v, err := env.RawAppendChild(parent, call.Arguments...)
		if err != nil {
			throw(vm, err)
		}
		return v
	})
	insertBefore := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		container := e.containerFor(call.This, call.Argument(0))
		if container == nil {
			v, err := env.RawInsertBefore(call.This, call.Arguments...)
			if err != nil {
				throw(vm, err)
			}
			return v
		}
		ref, _ := call.Argument(1).(*goja.Object)
		var v goja.Value
		var err error
		if ref != nil && c.page.Parent(ref) != nil && c.page.Parent(ref).SameAs(container) {
			v, err = env.RawInsertBefore(container, call.Argument(0), ref)
		} else {
			v, err = env.RawAppendChild(container, call.Argument(0))
		}
		if err != nil {
			throw(vm, err)
		}
		return v
	})

	if err := e.replace(env.NodePrototype, "appendChild", appendChild); err != nil {
		return err
	}
	return e.replace(env.NodePrototype, "insertBefore", insertBefore)
}

// initNestedEnvironment marks the real window as a base application when it
// is itself running inside an app sandbox.
func (e *pageEffects) initNestedEnvironment() error {
	env := e.c.env
	v := env.RawWindow.Get(EnvironmentKey)
	if v == nil || !v.ToBoolean() {
		return nil
	}
	return e.replace(env.RawWindow, BaseApplicationKey, env.VM().ToValue(true))
}

// patchHistory keeps the paths of memory-router apps in the page URL when
// the base application navigates with pushState or replaceState.
func (e *pageEffects) patchHistory() error {
	c := e.c
	env := c.env
	vm := env.VM()
	p := c.page

	patch := func(native goja.Callable) goja.Value {
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			args := append([]goja.Value(nil), call.Arguments...)
			for len(args) < 2 {
				args = append(args, goja.Undefined())
			}
			args[0] = router.MergeRouteState(p, args[0])
			if len(args) > 2 && !goja.IsUndefined(args[2]) && !goja.IsNull(args[2]) {
				full, err := router.AttachAllRouteInfo(p, args[2].String(), c.memoryRouterApps())
				if err != nil {
					throw(vm, err)
				}
				args[2] = vm.ToValue(full)
			}
			if _, err := native(call.This, args...); err != nil {
				throw(vm, err)
			}

			for _, app := range c.memoryRouterApps() {
				sb := c.sandboxes[app]
				if router.GetMicroPathFromURL(p, app) != "" {
					continue
				}
				if err := sb.router.UpdateBrowserURLWithLocation(""); err != nil {
					c.logger.Warn("failed to reattach route", zap.String("app", app), zap.Error(err))
				}
			}
			c.RemoveDomScope()
			return goja.Undefined()
		})
	}

	history := p.History()
	if err := e.replace(history, "pushState", patch(env.RawPushState)); err != nil {
		return err
	}
	return e.replace(history, "replaceState", patch(env.RawReplaceState))
}
