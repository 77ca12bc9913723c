package sandbox

import (
	"github.com/GriffinCanCode/microhost/internal/interact"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// PureElementKey marks elements created outside any app scope.
const PureElementKey = "__PURE_ELEMENT__"

// microAppHandle backs the microApp object scripts of one app see.
type microAppHandle struct {
	sb     *SandBox
	center *interact.AppCenter
	object *goja.Object

	dataIDs   map[*goja.Object]interact.ListenerID
	globalIDs map[*goja.Object]interact.ListenerID

	recordedData   map[*goja.Object]interact.ListenerID
	recordedGlobal map[*goja.Object]interact.ListenerID
}

func newMicroAppHandle(sb *SandBox, hub *interact.Hub) *microAppHandle {
	h := &microAppHandle{
		sb:        sb,
		center:    hub.ForApp(sb.name),
		dataIDs:   make(map[*goja.Object]interact.ListenerID),
		globalIDs: make(map[*goja.Object]interact.ListenerID),
	}
	h.object = h.build()
	return h
}

func (h *microAppHandle) build() *goja.Object {
	vm := h.sb.vm
	o := vm.NewObject()
	o.Set("appName", h.sb.name)

	o.Set("addDataListener", func(call goja.FunctionCall) goja.Value {
		if cb, ok := h.callback(call.Argument(0)); ok {
			if _, exists := h.dataIDs[cb]; !exists {
				h.dataIDs[cb] = h.center.AddDataListener(h.listener(cb), call.Argument(1).ToBoolean())
			}
		}
		return goja.Undefined()
	})
	o.Set("removeDataListener", func(call goja.FunctionCall) goja.Value {
		if cb, ok := h.callback(call.Argument(0)); ok {
			if id, exists := h.dataIDs[cb]; exists {
				h.center.RemoveDataListener(id)
				delete(h.dataIDs, cb)
			}
		}
		return goja.Undefined()
	})
	o.Set("clearDataListener", func(goja.FunctionCall) goja.Value {
		h.clearDataListener()
		return goja.Undefined()
	})
	o.Set("getData", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(h.center.GetData())
	})
	o.Set("dispatch", func(call goja.FunctionCall) goja.Value {
		if data, ok := h.data(call.Argument(0), "dispatch"); ok {
			if err := h.center.Dispatch(data); err != nil {
				h.sb.logger.Error("dispatch failed", zap.Error(err))
			}
		}
		return goja.Undefined()
	})

	o.Set("addGlobalDataListener", func(call goja.FunctionCall) goja.Value {
		if cb, ok := h.callback(call.Argument(0)); ok {
			if _, exists := h.globalIDs[cb]; !exists {
				h.globalIDs[cb] = h.center.AddGlobalDataListener(h.listener(cb), call.Argument(1).ToBoolean())
			}
		}
		return goja.Undefined()
	})
	o.Set("removeGlobalDataListener", func(call goja.FunctionCall) goja.Value {
		if cb, ok := h.callback(call.Argument(0)); ok {
			if id, exists := h.globalIDs[cb]; exists {
				h.center.RemoveGlobalDataListener(id)
				delete(h.globalIDs, cb)
			}
		}
		return goja.Undefined()
	})
	o.Set("clearGlobalDataListener", func(goja.FunctionCall) goja.Value {
		h.clearGlobalDataListener()
		return goja.Undefined()
	})
	o.Set("getGlobalData", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(h.center.GetGlobalData())
	})
	o.Set("setGlobalData", func(call goja.FunctionCall) goja.Value {
		if data, ok := h.data(call.Argument(0), "setGlobalData"); ok {
			if err := h.center.SetGlobalData(data); err != nil {
				h.sb.logger.Error("setGlobalData failed", zap.Error(err))
			}
		}
		return goja.Undefined()
	})

	o.Set("removeDomScope", func(goja.FunctionCall) goja.Value {
		h.sb.coord.RemoveDomScope()
		return goja.Undefined()
	})
	o.Set("pureCreateElement", func(call goja.FunctionCall) goja.Value {
		env := h.sb.env
		el, err := env.RawCreateElement(env.RawDocument, call.Arguments...)
		if err != nil {
			throw(vm, err)
		}
		if obj, ok := el.(*goja.Object); ok && obj != nil {
			obj.Delete(AppNameKey)
			obj.Set(PureElementKey, true)
		}
		return el
	})
	return o
}

func (h *microAppHandle) callback(v goja.Value) (*goja.Object, bool) {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil || !isCallable(obj) {
		return nil, false
	}
	return obj, true
}

// listener adapts a script callback. Listeners run inside page.Do, so the
// callback is invoked directly.
func (h *microAppHandle) listener(cb *goja.Object) interact.Listener {
	fn, _ := goja.AssertFunction(cb)
	return func(data interact.Data) {
		vm := h.sb.vm
		prev := h.sb.coord.CurrentApp()
		h.sb.coord.SetDomScope(h.sb.name)
		defer h.sb.coord.SetDomScope(prev)
		if _, err := fn(goja.Undefined(), vm.ToValue(data)); err != nil {
			h.sb.logger.Error("data listener threw", zap.Error(err))
		}
	}
}

func (h *microAppHandle) data(v goja.Value, op string) (interact.Data, bool) {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil || isCallable(obj) {
		h.sb.logger.Error("data must be an object", zap.String("op", op))
		return nil, false
	}
	data, ok := obj.Export().(map[string]interface{})
	if !ok {
		h.sb.logger.Error("data must be a plain object", zap.String("op", op))
		return nil, false
	}
	return data, true
}

func (h *microAppHandle) clearDataListener() {
	h.center.ClearDataListener()
	h.dataIDs = make(map[*goja.Object]interact.ListenerID)
}

func (h *microAppHandle) clearGlobalDataListener() {
	h.center.ClearGlobalDataListener()
	h.globalIDs = make(map[*goja.Object]interact.ListenerID)
}

// recordSnapshot keeps the registered listeners for a UMD remount.
func (h *microAppHandle) recordSnapshot() {
	h.center.Hub().RecordSnapshot(h.sb.name)
	h.recordedData = copyIDs(h.dataIDs)
	h.recordedGlobal = copyIDs(h.globalIDs)
}

// rebuildSnapshot restores the listeners kept by recordSnapshot.
func (h *microAppHandle) rebuildSnapshot() {
	if h.recordedData == nil && h.recordedGlobal == nil {
		return
	}
	h.center.Hub().RebuildSnapshot(h.sb.name)
	for cb, id := range h.recordedData {
		h.dataIDs[cb] = id
	}
	for cb, id := range h.recordedGlobal {
		h.globalIDs[cb] = id
	}
}

func copyIDs(src map[*goja.Object]interact.ListenerID) map[*goja.Object]interact.ListenerID {
	out := make(map[*goja.Object]interact.ListenerID, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
