package host

import (
	"context"
	"fmt"
	"time"

	"github.com/GriffinCanCode/microhost/internal/interact"
	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/GriffinCanCode/microhost/internal/shared/types"
	"github.com/GriffinCanCode/microhost/internal/shared/utils"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
)

// run executes code for rec and reports its duration. Callers hold the page.
func (h *Host) run(ctx context.Context, rec *record, kind, filename, code string) (goja.Value, error) {
	start := time.Now()
	var (
		v   goja.Value
		err error
	)
	switch {
	case rec.sandbox == nil:
		v, err = h.page.RunScript(ctx, filename, code)
	case kind == "eval":
		v, err = rec.sandbox.Eval(ctx, code)
	default:
		v, err = rec.sandbox.Exec(ctx, code, filename)
	}
	h.metrics.ScriptExecuted(rec.opts.Name, kind, time.Since(start), err)
	return v, err
}

// Exec runs code inside an app.
func (h *Host) Exec(ctx context.Context, name, code string) (types.ScriptResult, error) {
	return h.script(ctx, name, "exec", code)
}

// Eval evaluates an expression inside an app.
func (h *Host) Eval(ctx context.Context, name, expr string) (types.ScriptResult, error) {
	return h.script(ctx, name, "eval", expr)
}

func (h *Host) script(ctx context.Context, name, kind, code string) (types.ScriptResult, error) {
	if len(code) > utils.MaxScriptSize {
		return types.ScriptResult{}, fmt.Errorf("%w: %d bytes", ErrScriptTooLarge, len(code))
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, _, err := h.record(name)
	if err != nil {
		return types.ScriptResult{}, err
	}
	var result types.ScriptResult
	err = h.page.Do(func(*goja.Runtime) error {
		v, err := h.run(ctx, rec, kind, fmt.Sprintf("%s:%s", name, kind), code)
		if err != nil {
			return err
		}
		result = export(v)
		return nil
	})
	return result, err
}

// Global reads key through the window of an app.
func (h *Host) Global(name, key string) (types.ScriptResult, error) {
	if err := utils.ValidateGlobalKey(key); err != nil {
		return types.ScriptResult{}, fmt.Errorf("%w: %v", ErrInvalidGlobal, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, _, err := h.record(name)
	if err != nil {
		return types.ScriptResult{}, err
	}
	var result types.ScriptResult
	err = h.page.Do(func(*goja.Runtime) error {
		result = export(h.window(rec).Get(key))
		return nil
	})
	return result, err
}

// PageGlobal reads key from the real window.
func (h *Host) PageGlobal(key string) (types.ScriptResult, error) {
	if err := utils.ValidateGlobalKey(key); err != nil {
		return types.ScriptResult{}, fmt.Errorf("%w: %v", ErrInvalidGlobal, err)
	}
	var result types.ScriptResult
	err := h.page.Do(func(*goja.Runtime) error {
		result = export(h.page.Window().Get(key))
		return nil
	})
	return result, err
}

// export converts v into a JSON friendly result. Values that cannot be
// encoded are reported by their string form.
func export(v goja.Value) types.ScriptResult {
	if v == nil || goja.IsUndefined(v) {
		return types.ScriptResult{Type: "undefined"}
	}
	if goja.IsNull(v) {
		return types.ScriptResult{Type: "null"}
	}
	if page.IsFunction(v) {
		return types.ScriptResult{Type: "function", Value: v.String()}
	}
	exported := v.Export()
	typ := "object"
	switch exported.(type) {
	case string:
		typ = "string"
	case int64, float64:
		typ = "number"
	case bool:
		typ = "boolean"
	}
	if _, err := sonic.Marshal(exported); err != nil {
		return types.ScriptResult{Type: typ, Value: v.String()}
	}
	return types.ScriptResult{Type: typ, Value: exported}
}

// SetData sends data from the base to an app.
func (h *Host) SetData(name string, data interact.Data) error {
	if err := utils.ValidateData(data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, _, err := h.record(name); err != nil {
		return err
	}
	return h.page.Do(func(*goja.Runtime) error {
		return h.hub.SetData(name, data)
	})
}

// Data returns the data an app dispatched to the base.
func (h *Host) Data(name string) (interact.Data, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, _, err := h.record(name); err != nil {
		return nil, err
	}
	var data interact.Data
	err := h.page.Do(func(*goja.Runtime) error {
		data = h.hub.GetData(name, false)
		return nil
	})
	return data, err
}

// SetGlobalData sends data to every app.
func (h *Host) SetGlobalData(data interact.Data) error {
	if err := utils.ValidateData(data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return h.page.Do(func(*goja.Runtime) error {
		return h.hub.SetGlobalData(data)
	})
}

// GlobalData returns the current global data.
func (h *Host) GlobalData() (interact.Data, error) {
	var data interact.Data
	err := h.page.Do(func(*goja.Runtime) error {
		data = h.hub.GetGlobalData()
		return nil
	})
	return data, err
}

// Navigate pushes target on the real history.
func (h *Host) Navigate(target string) (string, error) {
	var href string
	err := h.page.Do(func(*goja.Runtime) error {
		if err := h.page.Navigate(target); err != nil {
			return err
		}
		href = h.page.Href()
		return nil
	})
	return href, err
}

// Back moves the real history one entry back.
func (h *Host) Back() (string, error) {
	var href string
	err := h.page.Do(func(*goja.Runtime) error {
		h.page.Back()
		href = h.page.Href()
		return nil
	})
	return href, err
}

// Console returns captured console output.
func (h *Host) Console() ([]page.LogEntry, error) {
	var entries []page.LogEntry
	err := h.page.Do(func(*goja.Runtime) error {
		entries = h.page.Console()
		return nil
	})
	return entries, err
}

// Requests returns the network calls scripts attempted.
func (h *Host) Requests() ([]page.Request, error) {
	var requests []page.Request
	err := h.page.Do(func(*goja.Runtime) error {
		requests = h.page.Requests()
		return nil
	})
	return requests, err
}
