package router

import (
	"context"
	"net/url"
	"testing"

	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appURL = "http://localhost:3001/child/"

type fakeResolver struct {
	routers map[string]*MicroRouter
	window  *goja.Object
	hidden  map[string]bool
	cleared int
}

func (f *fakeResolver) Target(app string) (*MicroRouter, *goja.Object, bool) {
	r, ok := f.routers[app]
	if !ok || f.hidden[app] {
		return nil, nil, false
	}
	return r, f.window, true
}

func (f *fakeResolver) RemoveDomScope() { f.cleared++ }

type fixture struct {
	page     *page.Page
	router   *MicroRouter
	resolver *fakeResolver
}

func newFixture(t *testing.T, pageURL string) *fixture {
	t.Helper()
	cfg := page.DefaultConfig()
	if pageURL != "" {
		cfg.URL = pageURL
	}
	p, err := page.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	f := &fixture{page: p}
	require.NoError(t, p.Do(func(vm *goja.Runtime) error {
		r, err := CreateMicroRouter(Config{Page: p, App: "app-a", URL: appURL})
		if err != nil {
			return err
		}
		f.router = r
		f.resolver = &fakeResolver{
			routers: map[string]*MicroRouter{"app-a": r},
			window:  vm.NewObject(),
			hidden:  map[string]bool{},
		}
		vm.Set("microLocation", r.Location())
		vm.Set("microHistory", r.History())
		return nil
	}))
	return f
}

func (f *fixture) do(t *testing.T, fn func(vm *goja.Runtime)) {
	t.Helper()
	require.NoError(t, f.page.Do(func(vm *goja.Runtime) error {
		fn(vm)
		return nil
	}))
}

func (f *fixture) run(t *testing.T, script string) goja.Value {
	t.Helper()
	var out goja.Value
	require.NoError(t, f.page.Do(func(*goja.Runtime) error {
		v, err := f.page.RunScript(context.Background(), "test.js", script)
		out = v
		return err
	}))
	return out
}

func (f *fixture) queryPath(app string) string {
	return f.page.URL().Query().Get(app)
}

func TestCreateMicroRouterRejectsRelativeURL(t *testing.T) {
	p, err := page.New(page.DefaultConfig())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Do(func(*goja.Runtime) error {
		_, err := CreateMicroRouter(Config{Page: p, App: "x", URL: "/relative"})
		assert.ErrorIs(t, err, ErrInvalidAppURL)
		return nil
	}))
}

func TestLocationStartsAtAppURL(t *testing.T) {
	f := newFixture(t, "")
	assert.Equal(t, appURL, f.run(t, "microLocation.href").String())
	assert.Equal(t, "/child/", f.run(t, "microLocation.pathname").String())
	assert.Equal(t, "http://localhost:3001", f.run(t, "microLocation.origin").String())
	assert.Equal(t, "localhost:3001", f.run(t, "microLocation.host").String())
	assert.Equal(t, "3001", f.run(t, "microLocation.port").String())
}

func TestInitRouteStateWritesPathToPageURL(t *testing.T) {
	f := newFixture(t, "")
	lengthBefore := f.page.HistoryLength()

	f.do(t, func(*goja.Runtime) {
		require.NoError(t, f.router.InitRouteStateWithURL(""))
	})

	assert.Equal(t, "/child/", f.queryPath("app-a"))
	assert.Equal(t, lengthBefore, f.page.HistoryLength(), "route state uses replaceState")
}

func TestInitRouteStateWithDefaultPage(t *testing.T) {
	f := newFixture(t, "")
	f.do(t, func(*goja.Runtime) {
		require.NoError(t, f.router.InitRouteStateWithURL("/child/home"))
	})
	assert.Equal(t, "/child/home", f.queryPath("app-a"))
	assert.Equal(t, "http://localhost:3001/child/home", f.router.Href())
}

func TestInitRouteStateRestoresFromPageURL(t *testing.T) {
	f := newFixture(t, "http://localhost:3000/?app-a="+url.QueryEscape("/child/about?tab=2#top"))
	f.do(t, func(*goja.Runtime) {
		require.NoError(t, f.router.InitRouteStateWithURL("/child/ignored"))
	})
	assert.Equal(t, "/child/about?tab=2#top", f.router.Path())
	assert.Equal(t, "?tab=2", f.run(t, "microLocation.search").String())
	assert.Equal(t, "#top", f.run(t, "microLocation.hash").String())
}

func TestPushStateStoresPathAndState(t *testing.T) {
	f := newFixture(t, "")
	f.run(t, `microHistory.pushState({step: 1}, '', '/child/list?x=1')`)

	assert.Equal(t, "/child/list?x=1", f.queryPath("app-a"))
	assert.Equal(t, "http://localhost:3001/child/list?x=1", f.router.Href())
	assert.Equal(t, int64(1), f.run(t, "microHistory.state.step").ToInteger())
	assert.Equal(t, int64(1), f.run(t, "history.state.__MICRO_APP_STATE__['app-a'].step").ToInteger())
	assert.Equal(t, int64(2), f.run(t, "microHistory.length").ToInteger())
}

func TestReplaceStateWithoutURLKeepsPath(t *testing.T) {
	f := newFixture(t, "")
	f.run(t, `microHistory.pushState(null, '', 'detail')`)
	f.run(t, `microHistory.replaceState({keep: true}, '')`)

	assert.Equal(t, "/child/detail", f.queryPath("app-a"))
	assert.True(t, f.run(t, "microHistory.state.keep").ToBoolean())
	assert.Equal(t, int64(2), f.run(t, "microHistory.length").ToInteger())
}

func TestPushStateCrossOriginThrows(t *testing.T) {
	f := newFixture(t, "")
	err := f.page.Do(func(*goja.Runtime) error {
		_, err := f.page.RunScript(context.Background(), "test.js", `microHistory.pushState(null, '', 'http://elsewhere.test/x')`)
		return err
	})
	assert.Error(t, err)
}

func TestHistoryListenerDispatchesAppEvents(t *testing.T) {
	f := newFixture(t, "")
	var remove func()
	f.do(t, func(*goja.Runtime) {
		var err error
		remove, err = AddHistoryListener(f.page, "app-a", f.resolver)
		require.NoError(t, err)
	})

	f.run(t, `
		var pops = [], hashes = [];
		window.addEventListener('popstate-app-a', function (e) { pops.push(e.type) });
		window.addEventListener('hashchange-app-a', function (e) { hashes.push(e.newURL) });
	`)

	f.do(t, func(*goja.Runtime) {
		require.NoError(t, f.page.Navigate("/?app-a="+url.QueryEscape("/child/page#sec")))
	})

	assert.Equal(t, int64(1), f.run(t, "pops.length").ToInteger())
	assert.Equal(t, "http://localhost:3001/child/page#sec", f.run(t, "hashes[0]").String())
	assert.Equal(t, "/child/page#sec", f.router.Path())
	assert.Equal(t, 1, f.resolver.cleared)

	f.do(t, func(*goja.Runtime) {
		require.NoError(t, DispatchNativeEvent(f.page, true, ""))
	})
	assert.Equal(t, int64(1), f.run(t, "pops.length").ToInteger(), "onlyForBrowser events are skipped")

	f.resolver.hidden["app-a"] = true
	f.do(t, func(*goja.Runtime) {
		require.NoError(t, DispatchNativeEvent(f.page, false, ""))
	})
	assert.Equal(t, int64(1), f.run(t, "pops.length").ToInteger(), "hidden apps are skipped")

	f.resolver.hidden["app-a"] = false
	f.do(t, func(*goja.Runtime) { remove() })
	f.do(t, func(*goja.Runtime) {
		require.NoError(t, DispatchNativeEvent(f.page, false, ""))
	})
	assert.Equal(t, int64(1), f.run(t, "pops.length").ToInteger(), "listener removed")
}

func TestOnPopStateHandlerOfAppWindow(t *testing.T) {
	f := newFixture(t, "")
	f.do(t, func(vm *goja.Runtime) {
		_, err := AddHistoryListener(f.page, "app-a", f.resolver)
		require.NoError(t, err)
		vm.Set("appWindow", f.resolver.window)
	})
	f.run(t, `var handled = 0; appWindow.onpopstate = function () { handled++ }`)

	f.do(t, func(*goja.Runtime) {
		require.NoError(t, f.page.Navigate("/?app-a=%2Fchild%2Fnext"))
	})
	assert.Equal(t, int64(1), f.run(t, "handled").ToInteger())
}

func TestLocationHashAssignmentFiresHashChange(t *testing.T) {
	f := newFixture(t, "")
	f.do(t, func(*goja.Runtime) {
		require.NoError(t, f.router.InitRouteStateWithURL(""))
		_, err := AddHistoryListener(f.page, "app-a", f.resolver)
		require.NoError(t, err)
	})
	f.run(t, `
		var changes = [];
		window.addEventListener('hashchange-app-a', function (e) { changes.push(e.oldURL + ' -> ' + e.newURL) });
		microLocation.hash = '#section';
	`)

	assert.Equal(t, "/child/#section", f.queryPath("app-a"))
	assert.Equal(t, "http://localhost:3001/child/ -> http://localhost:3001/child/#section",
		f.run(t, "changes[0]").String())
}

func TestLocationAssignCrossOriginGoesToPage(t *testing.T) {
	f := newFixture(t, "")
	before := f.page.HistoryLength()
	f.run(t, `microLocation.href = 'http://other.test/path'`)

	assert.Equal(t, "http://other.test/path", f.page.Href())
	assert.Equal(t, before+1, f.page.HistoryLength())
	assert.Equal(t, appURL, f.router.Href())
}

func TestClearRouteState(t *testing.T) {
	tests := []struct {
		name     string
		keep     bool
		wantHref string
	}{
		{"reset", false, appURL},
		{"keep", true, "http://localhost:3001/child/list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "")
			f.run(t, `microHistory.pushState({n: 1}, '', '/child/list')`)

			f.do(t, func(*goja.Runtime) {
				require.NoError(t, f.router.ClearRouteStateFromURL(tt.keep))
			})

			assert.Equal(t, "", f.queryPath("app-a"))
			assert.Equal(t, tt.wantHref, f.router.Href())
			assert.True(t, f.run(t, "history.state === null").ToBoolean())
		})
	}
}

func TestRemoveStateKeepsOtherApps(t *testing.T) {
	f := newFixture(t, "")
	f.do(t, func(vm *goja.Runtime) {
		other, err := CreateMicroRouter(Config{Page: f.page, App: "app-b", URL: "http://localhost:3002/"})
		require.NoError(t, err)
		vm.Set("otherHistory", other.History())
	})
	f.run(t, `
		microHistory.pushState({a: 1}, '', '/child/a');
		otherHistory.pushState({b: 1}, '', '/b');
	`)

	f.do(t, func(*goja.Runtime) {
		require.NoError(t, RemoveStateAndPathFromBrowser(f.page, "app-a"))
	})

	assert.Equal(t, "", f.queryPath("app-a"))
	assert.Equal(t, "/b", f.queryPath("app-b"))
	assert.True(t, f.run(t, "history.state.__MICRO_APP_STATE__['app-a'] === undefined").ToBoolean())
	assert.Equal(t, int64(1), f.run(t, "otherHistory.state.b").ToInteger())
}

func TestAttachAllRouteInfo(t *testing.T) {
	f := newFixture(t, "http://localhost:3000/?app-a=%2Fchild%2Fx&app-b=%2Fy")
	f.do(t, func(*goja.Runtime) {
		got, err := AttachAllRouteInfo(f.page, "/next?app-b=%2Fz", []string{"app-a", "app-b"})
		require.NoError(t, err)
		u, err := url.Parse(got)
		require.NoError(t, err)
		assert.Equal(t, "/next", u.Path)
		assert.Equal(t, "/child/x", u.Query().Get("app-a"))
		assert.Equal(t, "/z", u.Query().Get("app-b"))
	})
}

func TestMergeRouteState(t *testing.T) {
	f := newFixture(t, "")
	f.run(t, `microHistory.pushState({n: 1}, '', '/child/s')`)

	f.do(t, func(vm *goja.Runtime) {
		merged := MergeRouteState(f.page, goja.Null()).ToObject(vm)
		states := merged.Get(StateKey).ToObject(vm)
		assert.Equal(t, int64(1), states.Get("app-a").ToObject(vm).Get("n").ToInteger())

		own := vm.NewObject()
		own.Set("base", true)
		merged = MergeRouteState(f.page, own).ToObject(vm)
		assert.True(t, merged.Get("base").ToBoolean())
		assert.NotNil(t, merged.Get(StateKey))
	})
}

func TestFormatEventName(t *testing.T) {
	assert.Equal(t, "popstate-app-a", FormatEventName("popstate", "app-a"))
	assert.True(t, IsRouteEvent("hashchange"))
	assert.False(t, IsRouteEvent("click"))
}
