package host

import (
	"context"
	"testing"
	"time"

	"github.com/GriffinCanCode/microhost/internal/interact"
	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/GriffinCanCode/microhost/internal/shared/types"
	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appURL = "http://localhost:3001/child/"

const counterApp = `<head><style>.app {}</style></head>
<body>
  <div id="root"></div>
  <script>
    window.counter = (window.counter || 0) + 1;
    document.getElementById('root').textContent = 'rendered';
  </script>
</body>`

const umdApp = `<head></head>
<body>
  <script>
    window.runs = (window.runs || 0) + 1;
    window.mount = function () { window.mounts = (window.mounts || 0) + 1 };
    window.unmount = function () { window.unmounts = (window.unmounts || 0) + 1 };
  </script>
</body>`

func newHost(t *testing.T, opts StartOptions) *Host {
	t.Helper()
	p, err := page.New(page.DefaultConfig())
	require.NoError(t, err)
	h, err := New(Config{Page: p})
	require.NoError(t, err)
	require.NoError(t, h.Start(opts))
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func (h *Host) mustCreate(t *testing.T, opts CreateOptions) *types.Instance {
	t.Helper()
	if opts.URL == "" {
		opts.URL = appURL
	}
	instance, err := h.CreateApp(opts)
	require.NoError(t, err)
	return instance
}

func (h *Host) mustMount(t *testing.T, name string) *types.Instance {
	t.Helper()
	instance, err := h.Mount(context.Background(), name)
	require.NoError(t, err)
	return instance
}

func (h *Host) eval(t *testing.T, name, expr string) interface{} {
	t.Helper()
	res, err := h.Eval(context.Background(), name, expr)
	require.NoError(t, err)
	return res.Value
}

func drain(ch <-chan types.Event) []string {
	var out []string
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev.Type+":"+ev.App)
		default:
			return out
		}
	}
}

func TestStartValidatesTagName(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want error
	}{
		{"default", "", nil},
		{"suffixed", "micro-app-shop", nil},
		{"other prefix", "my-app", ErrInvalidTagName},
		{"dangling dash", "micro-app-", ErrInvalidTagName},
		{"uppercase", "MICRO-APP", ErrInvalidTagName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := page.New(page.DefaultConfig())
			require.NoError(t, err)
			h, err := New(Config{Page: p})
			require.NoError(t, err)
			defer h.Close()

			err = h.Start(StartOptions{TagName: tt.tag})
			if tt.want == nil {
				assert.NoError(t, err)
				assert.True(t, h.Started())
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, h.Started())
		})
	}
}

func TestStartTwiceWithSameTag(t *testing.T) {
	h := newHost(t, StartOptions{})
	assert.ErrorIs(t, h.Start(StartOptions{}), ErrElementDefined)
	assert.NoError(t, h.Start(StartOptions{TagName: "micro-app-other"}))
}

func TestCreateAppRequiresStart(t *testing.T) {
	p, err := page.New(page.DefaultConfig())
	require.NoError(t, err)
	h, err := New(Config{Page: p})
	require.NoError(t, err)
	defer h.Close()

	_, err = h.CreateApp(CreateOptions{Name: "app-a", URL: appURL, HTML: counterApp})
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestCreateAppValidation(t *testing.T) {
	h := newHost(t, StartOptions{})

	instance := h.mustCreate(t, CreateOptions{Name: " 1shop.app ", HTML: counterApp})
	assert.Equal(t, "shopapp", instance.Name)
	assert.Equal(t, types.StateBeforeMount, instance.State)
	assert.Equal(t, []string{"shopapp"}, h.AllApps())

	_, err := h.CreateApp(CreateOptions{Name: "shopapp", URL: appURL, HTML: counterApp})
	assert.ErrorIs(t, err, ErrAppExists)
	_, err = h.CreateApp(CreateOptions{Name: "rel", URL: "/child/", HTML: counterApp})
	assert.ErrorIs(t, err, ErrInvalidURL)
	_, err = h.CreateApp(CreateOptions{Name: "...", URL: appURL, HTML: counterApp})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLoadFailureIsolated(t *testing.T) {
	h := newHost(t, StartOptions{})
	events, cancel := h.Subscribe()
	defer cancel()

	var reported error
	instance, err := h.CreateApp(CreateOptions{
		Name:    "broken",
		URL:     appURL,
		HTML:    "<div>no sections</div>",
		OnError: func(err error) { reported = err },
	})
	require.Error(t, err)
	assert.Equal(t, err, reported)
	assert.Equal(t, types.StateLoadFailed, instance.State)
	assert.Equal(t, "element head is missing", instance.Error)
	assert.Contains(t, drain(events), "error:broken")

	_, err = h.Mount(context.Background(), "broken")
	assert.ErrorIs(t, err, ErrNotLoaded)

	h.mustCreate(t, CreateOptions{Name: "app-a", HTML: counterApp})
	assert.Equal(t, types.StateMounted, h.mustMount(t, "app-a").State)
}

func TestMountRunsScriptsInSandbox(t *testing.T) {
	h := newHost(t, StartOptions{})
	events, cancel := h.Subscribe()
	defer cancel()

	h.mustCreate(t, CreateOptions{Name: "app-a", HTML: counterApp})
	instance := h.mustMount(t, "app-a")
	assert.Equal(t, types.StateMounted, instance.State)
	assert.Equal(t, 1, instance.Mounts)

	assert.Equal(t, int64(1), h.eval(t, "app-a", "counter"))
	assert.Equal(t, "rendered", h.eval(t, "app-a", "document.getElementById('root').textContent"))

	raw, err := h.PageGlobal("counter")
	require.NoError(t, err)
	assert.Equal(t, "undefined", raw.Type, "app globals stay in the sandbox")

	assert.Equal(t, []string{"created:app-a", "beforemount:app-a", "mounted:app-a"}, drain(events))
	assert.Equal(t, []string{"app-a"}, h.ActiveApps(false))

	stats, err := h.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveSandboxes)
	assert.True(t, stats.SharedEffects)
	assert.Equal(t, 1, stats.MountedApps)
}

func TestLifecycleEventsReachTheElement(t *testing.T) {
	h := newHost(t, StartOptions{})
	h.mustCreate(t, CreateOptions{Name: "app-a", HTML: counterApp})

	require.NoError(t, h.page.Do(func(vm *goja.Runtime) error {
		_, err := vm.RunString(`
			window.seen = [];
			var el = document.querySelector('micro-app[name="app-a"]');
			['beforemount', 'mounted', 'unmount'].forEach(function (type) {
				el.addEventListener(type, function (e) { seen.push(e.type + ':' + e.detail.name) });
			});
		`)
		return err
	}))
	h.mustMount(t, "app-a")
	_, err := h.Unmount(context.Background(), "app-a", UnmountOptions{})
	require.NoError(t, err)

	seen, err := h.PageGlobal("seen")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"beforemount:app-a", "mounted:app-a", "unmount:app-a"}, seen.Value)
}

func TestRemountRunsScriptsAgain(t *testing.T) {
	h := newHost(t, StartOptions{})
	h.mustCreate(t, CreateOptions{Name: "app-a", HTML: counterApp})
	h.mustMount(t, "app-a")

	instance, err := h.Unmount(context.Background(), "app-a", UnmountOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.StateUnmount, instance.State)

	stats, err := h.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ActiveSandboxes)
	assert.False(t, stats.SharedEffects)

	instance = h.mustMount(t, "app-a")
	assert.Equal(t, 2, instance.Mounts)
	assert.Equal(t, int64(1), h.eval(t, "app-a", "counter"), "keys written before the unmount are gone")
}

func TestUMDRemountCallsHooks(t *testing.T) {
	h := newHost(t, StartOptions{})
	h.mustCreate(t, CreateOptions{Name: "app-a", HTML: umdApp, UMD: true})

	h.mustMount(t, "app-a")
	assert.Equal(t, int64(1), h.eval(t, "app-a", "runs"))
	assert.Equal(t, int64(1), h.eval(t, "app-a", "mounts"))

	_, err := h.Unmount(context.Background(), "app-a", UnmountOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.eval(t, "app-a", "unmounts"))

	h.mustMount(t, "app-a")
	assert.Equal(t, int64(1), h.eval(t, "app-a", "runs"), "scripts are not run again")
	assert.Equal(t, int64(2), h.eval(t, "app-a", "mounts"))
}

func TestUMDLibraryHooks(t *testing.T) {
	h := newHost(t, StartOptions{})
	h.mustCreate(t, CreateOptions{Name: "app-a", UMD: true, HTML: `<head></head><body><script>
		window['micro-app-app-a'] = {
			mount: function (data) { window.mountedWith = data.user },
			unmount: function () { window.libUnmounted = true },
		};
	</script></body>`})

	require.NoError(t, h.SetData("app-a", interact.Data{"user": "ada"}))
	h.mustMount(t, "app-a")
	assert.Equal(t, "ada", h.eval(t, "app-a", "mountedWith"))

	_, err := h.Unmount(context.Background(), "app-a", UnmountOptions{})
	require.NoError(t, err)
	assert.Equal(t, true, h.eval(t, "app-a", "libUnmounted"))
}

func TestScriptErrorStopsSandbox(t *testing.T) {
	h := newHost(t, StartOptions{})
	var reported error
	h.mustCreate(t, CreateOptions{
		Name:    "app-a",
		HTML:    `<head></head><body><script>window.before = 1; throw new Error('boom')</script></body>`,
		OnError: func(err error) { reported = err },
	})

	instance, err := h.Mount(context.Background(), "app-a")
	require.Error(t, err)
	assert.Equal(t, err, reported)
	assert.Equal(t, types.StateMounting, instance.State)
	assert.Contains(t, instance.Error, "boom")

	stats, err := h.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ActiveSandboxes)

	instance, err = h.Unmount(context.Background(), "app-a", UnmountOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.StateUnmount, instance.State)
}

func TestKeepAliveHidesApp(t *testing.T) {
	h := newHost(t, StartOptions{})
	h.mustCreate(t, CreateOptions{Name: "app-a", HTML: counterApp, KeepAlive: true})
	h.mustCreate(t, CreateOptions{Name: "app-b", HTML: counterApp})
	h.mustMount(t, "app-a")
	h.mustMount(t, "app-b")

	instance, err := h.Unmount(context.Background(), "app-a", UnmountOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.StateMounted, instance.State)
	assert.Equal(t, types.KeepAliveHidden, instance.KeepAlive)
	assert.Equal(t, []string{"app-a", "app-b"}, h.ActiveApps(false))
	assert.Equal(t, []string{"app-b"}, h.ActiveApps(true))
	assert.Equal(t, int64(1), h.eval(t, "app-a", "counter"), "hidden app keeps running")

	instance = h.mustMount(t, "app-a")
	assert.Equal(t, types.KeepAliveShow, instance.KeepAlive)
	assert.Equal(t, 1, instance.Mounts)
	assert.Equal(t, int64(1), h.eval(t, "app-a", "counter"), "shown without running scripts")

	instance, err = h.Unmount(context.Background(), "app-a", UnmountOptions{ClearAliveState: true})
	require.NoError(t, err)
	assert.Equal(t, types.StateUnmount, instance.State)
	assert.Equal(t, types.KeepAliveNone, instance.KeepAlive)
}

func TestDestroyRemovesApp(t *testing.T) {
	h := newHost(t, StartOptions{})
	h.mustCreate(t, CreateOptions{Name: "app-a", HTML: counterApp})
	h.mustMount(t, "app-a")

	_, err := h.Unmount(context.Background(), "app-a", UnmountOptions{Destroy: true})
	require.NoError(t, err)
	assert.Empty(t, h.AllApps())
	_, ok := h.App("app-a")
	assert.False(t, ok)

	_, err = h.Eval(context.Background(), "app-a", "1")
	assert.ErrorIs(t, err, ErrAppNotFound)

	h.mustCreate(t, CreateOptions{Name: "app-a", HTML: counterApp})
	h.mustMount(t, "app-a")
	assert.Equal(t, int64(1), h.eval(t, "app-a", "counter"))
}

func TestUnmountAll(t *testing.T) {
	h := newHost(t, StartOptions{})
	for _, name := range []string{"app-a", "app-b", "app-c"} {
		h.mustCreate(t, CreateOptions{Name: name, HTML: counterApp})
		h.mustMount(t, name)
	}

	require.NoError(t, h.UnmountAll(UnmountOptions{}))
	assert.Empty(t, h.ActiveApps(false))
	assert.Len(t, h.AllApps(), 3)

	require.NoError(t, h.UnmountAll(UnmountOptions{Destroy: true}))
	assert.Empty(t, h.AllApps())
}

func TestDataFlow(t *testing.T) {
	h := newHost(t, StartOptions{})
	events, cancel := h.Subscribe("app-a")
	defer cancel()

	h.mustCreate(t, CreateOptions{Name: "app-a", HTML: `<head></head><body><script>
		microApp.addDataListener(function (data) { window.got = data.msg });
		microApp.addGlobalDataListener(function (data) { window.theme = data.theme });
		microApp.dispatch({type: 'ready'});
	</script></body>`})
	h.mustMount(t, "app-a")

	data, err := h.Data("app-a")
	require.NoError(t, err)
	assert.Equal(t, "ready", data["type"])
	assert.Contains(t, drain(events), "data:app-a")

	require.NoError(t, h.SetData("app-a", interact.Data{"msg": "hi"}))
	assert.Equal(t, "hi", h.eval(t, "app-a", "got"))

	require.NoError(t, h.SetGlobalData(interact.Data{"theme": "dark"}))
	assert.Equal(t, "dark", h.eval(t, "app-a", "theme"))
	global, err := h.GlobalData()
	require.NoError(t, err)
	assert.Equal(t, "dark", global["theme"])

	assert.ErrorIs(t, h.SetData("missing", interact.Data{}), ErrAppNotFound)
}

func TestGlobals(t *testing.T) {
	h := newHost(t, StartOptions{})
	h.mustCreate(t, CreateOptions{Name: "app-a", HTML: counterApp})
	h.mustMount(t, "app-a")

	res, err := h.Global("app-a", "counter")
	require.NoError(t, err)
	assert.Equal(t, types.ScriptResult{Value: int64(1), Type: "number"}, res)

	res, err = h.Global("app-a", "__MICRO_APP_NAME__")
	require.NoError(t, err)
	assert.Equal(t, "app-a", res.Value)

	_, err = h.Global("app-a", "not a key")
	assert.ErrorIs(t, err, ErrInvalidGlobal)
	_, err = h.PageGlobal("")
	assert.ErrorIs(t, err, ErrInvalidGlobal)
}

func TestSandboxDisabled(t *testing.T) {
	h := newHost(t, StartOptions{DisableSandbox: true})
	instance := h.mustCreate(t, CreateOptions{Name: "app-a", HTML: counterApp})
	assert.False(t, instance.Sandbox)
	assert.False(t, instance.MemoryRouter)
	h.mustMount(t, "app-a")

	raw, err := h.PageGlobal("counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), raw.Value, "scripts run on the real window")

	stats, err := h.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ActiveSandboxes)
}

func TestExecScriptSize(t *testing.T) {
	h := newHost(t, StartOptions{})
	h.mustCreate(t, CreateOptions{Name: "app-a", HTML: counterApp})
	h.mustMount(t, "app-a")

	res, err := h.Exec(context.Background(), "app-a", "window.fromExec = 3")
	require.NoError(t, err)
	assert.Equal(t, "undefined", res.Type)
	assert.Equal(t, int64(3), h.eval(t, "app-a", "fromExec"))

	big := make([]byte, 512*1024+1)
	for i := range big {
		big[i] = ' '
	}
	_, err = h.Exec(context.Background(), "app-a", string(big))
	assert.ErrorIs(t, err, ErrScriptTooLarge)
}

func TestNavigation(t *testing.T) {
	h := newHost(t, StartOptions{})

	href, err := h.Navigate("/orders?id=1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/orders?id=1", href)

	href, err = h.Back()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/", href)

	_, err = h.Navigate("http://elsewhere.test/")
	assert.ErrorIs(t, err, page.ErrCrossOrigin)
}

func TestSubscribeFiltersApps(t *testing.T) {
	h := newHost(t, StartOptions{})
	events, cancel := h.Subscribe("app-b")

	h.mustCreate(t, CreateOptions{Name: "app-a", HTML: counterApp})
	h.mustCreate(t, CreateOptions{Name: "app-b", HTML: counterApp})
	assert.Equal(t, []string{"created:app-b"}, drain(events))

	cancel()
	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestExport(t *testing.T) {
	vm := goja.New()
	tests := []struct {
		name string
		expr string
		want types.ScriptResult
	}{
		{"undefined", "undefined", types.ScriptResult{Type: "undefined"}},
		{"null", "null", types.ScriptResult{Type: "null"}},
		{"string", "'a'", types.ScriptResult{Type: "string", Value: "a"}},
		{"integer", "2", types.ScriptResult{Type: "number", Value: int64(2)}},
		{"float", "1.5", types.ScriptResult{Type: "number", Value: 1.5}},
		{"boolean", "true", types.ScriptResult{Type: "boolean", Value: true}},
		{"object", "({a: 1})", types.ScriptResult{Type: "object", Value: map[string]interface{}{"a": int64(1)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := vm.RunString(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, export(v))
		})
	}

	fn, err := vm.RunString("(function named() {})")
	require.NoError(t, err)
	assert.Equal(t, "function", export(fn).Type)
}
