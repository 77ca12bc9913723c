package page

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationParts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "http://localhost:3000/base/page?x=1#top"
	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	out := run(t, p, "[location.origin, location.pathname, location.search, location.hash, location.port, String(location)].join('|')")
	assert.Equal(t, "http://localhost:3000|/base/page|?x=1|#top|3000|http://localhost:3000/base/page?x=1#top", out.String())
}

func TestPushStateAndBack(t *testing.T) {
	p := newTestPage(t)

	run(t, p, `
		var pops = [];
		window.addEventListener('popstate', function (e) { pops.push(JSON.stringify(e.state)) });
		history.pushState({n: 1}, '', '/one');
		history.pushState({n: 2}, '', '/two');
	`)
	assert.Equal(t, "http://localhost:3000/two", p.Href())
	assert.Equal(t, 3, p.HistoryLength())
	assert.Equal(t, int64(0), run(t, p, "pops.length").ToInteger(), "pushState must not fire popstate")

	run(t, p, "history.back()")
	assert.Equal(t, "http://localhost:3000/one", p.Href())
	assert.Equal(t, `{"n":1}`, run(t, p, "pops[0]").String())
	assert.Equal(t, int64(1), run(t, p, "history.state.n").ToInteger())

	run(t, p, "history.forward()")
	assert.Equal(t, "http://localhost:3000/two", p.Href())

	run(t, p, "history.go(-10)")
	assert.Equal(t, "http://localhost:3000/two", p.Href(), "out of range traversal is ignored")
}

func TestPushStateRejectsCrossOrigin(t *testing.T) {
	p := newTestPage(t)

	assert.True(t, run(t, p, `
		var threw = false;
		try { history.pushState(null, '', 'http://evil.example/') } catch (e) { threw = true }
		threw
	`).ToBoolean())
}

func TestHashChangeFiresEvents(t *testing.T) {
	p := newTestPage(t)

	run(t, p, `
		var seen = [];
		window.addEventListener('popstate', function () { seen.push('popstate') });
		window.onhashchange = function (e) { seen.push('hashchange:' + e.newURL) };
		location.hash = '#/detail';
	`)
	assert.Equal(t, "popstate,hashchange:http://localhost:3000/#/detail", run(t, p, "seen.join(',')").String())
}

func TestDocumentNavigationIsRecorded(t *testing.T) {
	p := newTestPage(t)

	run(t, p, `
		var fired = false;
		window.addEventListener('popstate', function () { fired = true });
		location.href = '/other';
	`)
	assert.Equal(t, "http://localhost:3000/other", p.Href())
	assert.False(t, run(t, p, "fired").ToBoolean())

	run(t, p, "location.replace('/replaced')")
	assert.Equal(t, "http://localhost:3000/replaced", p.Href())
	assert.Equal(t, 2, p.HistoryLength())
}

func TestNavigateFromGo(t *testing.T) {
	p := newTestPage(t)
	run(t, p, "var count = 0; window.addEventListener('popstate', function () { count++ })")

	require.NoError(t, p.Do(func(*goja.Runtime) error { return p.Navigate("/a?app=%2Fhome") }))
	assert.Equal(t, "http://localhost:3000/a?app=%2Fhome", p.Href())
	assert.Equal(t, int64(1), run(t, p, "count").ToInteger())

	err := p.Do(func(*goja.Runtime) error { return p.Navigate("http://other.example/") })
	assert.ErrorIs(t, err, ErrCrossOrigin)

	require.NoError(t, p.Do(func(*goja.Runtime) error {
		p.Back()
		return nil
	}))
	assert.Equal(t, "http://localhost:3000/", p.Href())
	assert.Equal(t, int64(2), run(t, p, "count").ToInteger())
}
