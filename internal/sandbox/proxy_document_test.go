package sandbox

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyDocument(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")
	f.start(a, StartOptions{})

	tests := []struct {
		name string
		expr string
	}{
		{"is not the real document", "document !== rawDocument"},
		{"marks itself", "document.__MICRO_APP_PROXY_DOCUMENT__ === true"},
		{"real document is unmarked", "rawDocument.__MICRO_APP_PROXY_DOCUMENT__ === undefined"},
		{"default view is the app window", "document.defaultView === window"},
		{"tags created elements", "document.createElement('div').__MICRO_APP_NAME__ === 'app-a'"},
		{"binds native methods", "document.querySelector('body') === rawDocument.body"},
		{"reads through to the real document", "document.body === rawDocument.body"},
		{"proxy passes instanceof", "document instanceof Document"},
		{"real document passes instanceof", "rawDocument instanceof Document"},
		{"plain objects fail instanceof", "!({} instanceof Document)"},
		{"prototype reads through", "typeof Document.prototype.createElement === 'function'"},
		{"is cached", "document === window.document"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, f.eval(a, tt.expr).ToBoolean(), tt.expr)
		})
	}
}

func TestDocumentInstanceofIsPerApp(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")
	b := f.sandbox("app-b")
	f.start(a, StartOptions{})
	f.start(b, StartOptions{})

	f.do(func() {
		doc, err := b.ProxyDocument()
		require.NoError(t, err)
		f.page.Window().Set("otherDocument", doc)
	})

	assert.False(t, f.eval(a, "rawWindow.otherDocument instanceof Document").ToBoolean(), "another app's document")
	assert.True(t, f.eval(b, "rawWindow.otherDocument instanceof Document").ToBoolean())
	assert.True(t, f.eval(a, "rawDocument instanceof Document").ToBoolean())
	assert.True(t, f.eval(a, "Object.create(Document.prototype) instanceof Document").ToBoolean())
}

func TestProxyDocumentConstructorThrows(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")
	f.start(a, StartOptions{})

	assert.True(t, f.eval(a, "(function () { try { new Document(); return false } catch (e) { return e instanceof TypeError } })()").ToBoolean())
}

func TestDocumentKeysAreFixed(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")
	f.start(a, StartOptions{})

	assert.True(t, f.eval(a, "typeof Object.getOwnPropertyDescriptor(window, 'document').get === 'function'").ToBoolean())
	assert.False(t, f.eval(a, "Object.keys(window).indexOf('Document') >= 0").ToBoolean())

	f.exec(a, "window.document = 1; window.Document = 2")
	assert.True(t, f.eval(a, "document.__MICRO_APP_PROXY_DOCUMENT__").ToBoolean())
	assert.False(t, f.eval(a, "delete window.document").ToBoolean())
	assert.True(t, f.eval(a, `
		(function () {
			try { Object.defineProperty(window, 'document', {value: 1}); return false } catch (e) { return e instanceof TypeError }
		})()
	`).ToBoolean())
	assert.NotContains(t, a.InjectedKeys(), "document")
	assert.NotContains(t, a.InjectedKeys(), "Document")

	f.stop(a, StopOptions{})
	f.start(a, StartOptions{})
	assert.True(t, f.eval(a, "document.__MICRO_APP_PROXY_DOCUMENT__").ToBoolean(), "kept across stop")
}

func TestEnumerateAppWindow(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a", func(o *Options) { o.UseMemoryRouter = true })
	f.start(a, StartOptions{UseMemoryRouter: true})
	f.exec(a, "window.mine = 1")

	assert.True(t, f.eval(a, "Object.keys(window).length > 0").ToBoolean())
	assert.True(t, f.eval(a, "Object.keys(window).indexOf('document') >= 0").ToBoolean())
	assert.True(t, f.eval(a, "Object.keys(window).indexOf('location') >= 0").ToBoolean())
	assert.True(t, f.eval(a, `
		(function () {
			var seen = {};
			for (var k in window) { seen[k] = true }
			return seen.mine === true && seen.document === true
		})()
	`).ToBoolean())
	assert.True(t, f.eval(a, "Object.getOwnPropertyDescriptor(window, 'Document').enumerable === false").ToBoolean())
	assert.True(t, f.eval(a, "Object.getOwnPropertyDescriptor(window, 'location').configurable").ToBoolean())
	assert.True(t, f.eval(a, "Object.getOwnPropertyNames(window).indexOf('history') >= 0").ToBoolean())
}

func TestIsDocumentLike(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")

	f.do(func() {
		env := f.page.Env()
		doc, err := a.ProxyDocument()
		require.NoError(t, err)

		assert.True(t, IsDocumentLike(env, doc))
		assert.True(t, IsDocumentLike(env, env.RawDocument))
		assert.False(t, IsDocumentLike(env, f.page.Body()))
		assert.False(t, IsDocumentLike(env, f.page.VM().NewObject()))
		assert.False(t, IsDocumentLike(env, goja.Undefined()))
		assert.False(t, IsDocumentLike(env, nil))
	})
}

func TestDomScopeFollowsAccess(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")
	b := f.sandbox("app-b")
	f.start(a, StartOptions{})
	f.start(b, StartOptions{})

	f.do(func() {
		f.coord.RemoveDomScope()
		doc, err := b.ProxyDocument()
		require.NoError(t, err)
		doc.Get("body")
		assert.Equal(t, "app-b", f.coord.CurrentApp())

		a.ProxyWindow().Get("navigator")
		assert.Equal(t, "app-a", f.coord.CurrentApp())
	})
}
