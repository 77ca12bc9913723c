package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentStructure(t *testing.T) {
	p := newTestPage(t)

	assert.Equal(t, "HEAD", run(t, p, "document.head.tagName").String())
	assert.Equal(t, "BODY", run(t, p, "document.body.tagName").String())
	assert.True(t, run(t, p, "document.defaultView === window").ToBoolean())
	assert.True(t, run(t, p, "document instanceof Document && document.body instanceof Element").ToBoolean())
	assert.Equal(t, int64(9), run(t, p, "document.nodeType").ToInteger())
}

func TestWrapperIdentity(t *testing.T) {
	p := newTestPage(t)

	assert.True(t, run(t, p, "document.body === document.body").ToBoolean())
	assert.True(t, run(t, p, `
		var el = document.createElement('div');
		el.expando = 42;
		document.body.appendChild(el);
		document.body.firstChild.expando === 42
	`).ToBoolean())
	assert.Same(t, p.Body(), p.Body())
}

func TestAppendInsertRemove(t *testing.T) {
	p := newTestPage(t)

	out := run(t, p, `
		var a = document.createElement('span'); a.id = 'a';
		var b = document.createElement('span'); b.id = 'b';
		document.body.appendChild(b);
		document.body.insertBefore(a, b);
		var ids = Array.prototype.map.call(document.body.children, function (c) { return c.id }).join(',');
		document.body.removeChild(a);
		ids + '|' + document.body.children.length
	`)
	assert.Equal(t, "a,b|1", out.String())
}

func TestAppendChildRejectsCycles(t *testing.T) {
	p := newTestPage(t)

	assert.True(t, run(t, p, `
		var threw = false;
		try { document.body.appendChild(document.documentElement) } catch (e) { threw = e instanceof TypeError }
		threw
	`).ToBoolean())
}

func TestInnerHTMLAndQueries(t *testing.T) {
	p := newTestPage(t)

	run(t, p, `document.body.innerHTML = '<div id="root"><p class="x">one</p><p class="x">two</p></div>'`)

	assert.Equal(t, "two", run(t, p, "document.querySelectorAll('.x')[1].textContent").String())
	assert.Equal(t, "DIV", run(t, p, "document.getElementById('root').tagName").String())
	assert.Equal(t, int64(2), run(t, p, "document.getElementsByTagName('p').length").ToInteger())
	assert.Equal(t, int64(2), run(t, p, "document.getElementById('root').getElementsByTagName('p').length").ToInteger())
	assert.True(t, run(t, p, "document.querySelector('.missing') === null").ToBoolean())
	assert.True(t, run(t, p, "document.querySelector('::not a selector') === null").ToBoolean())
	assert.Equal(t, `<p class="x">one</p>`, run(t, p, "document.querySelector('.x').outerHTML").String())
}

func TestAttributes(t *testing.T) {
	p := newTestPage(t)

	out := run(t, p, `
		var el = document.createElement('img');
		el.setAttribute('SRC', '/a.png');
		var before = el.getAttribute('src') + ':' + el.src;
		el.removeAttribute('src');
		before + ':' + el.hasAttribute('src') + ':' + el.getAttribute('src')
	`)
	assert.Equal(t, "/a.png:/a.png:false:null", out.String())
}

func TestDocumentTitle(t *testing.T) {
	p := newTestPage(t)

	run(t, p, "document.title = 'Host'")
	assert.Equal(t, "Host", run(t, p, "document.title").String())
}

func TestGoSideDOM(t *testing.T) {
	p := newTestPage(t)

	el, err := p.CreateElement("micro-app")
	require.NoError(t, err)
	require.NoError(t, p.SetInnerHTML(el, "<micro-app-head></micro-app-head><micro-app-body><b>hi</b></micro-app-body>"))
	require.NoError(t, p.AppendChild(p.Body(), el))

	p.SetAttr(el, "name", "app-a")
	name, ok := p.Attr(el, "name")
	assert.True(t, ok)
	assert.Equal(t, "app-a", name)

	assert.NotNil(t, p.QuerySelector(p.Document(), "micro-app[name=app-a] micro-app-body b"))
	assert.Len(t, p.QuerySelectorAll(el, "micro-app-head, micro-app-body"), 2)
	assert.Same(t, p.Body(), p.Parent(el))

	p.RemoveNode(el)
	assert.Nil(t, p.QuerySelector(p.Document(), "micro-app"))

	_, err = p.CreateElement("1bad")
	assert.Error(t, err)
	assert.ErrorIs(t, p.AppendChild(p.Window(), el), ErrNotAnElement)
}

func TestDocumentMarker(t *testing.T) {
	p := newTestPage(t)

	v := p.Document().GetSymbol(p.DocumentMarker())
	require.NotNil(t, v)
	assert.True(t, v.ToBoolean())
	assert.Nil(t, p.Body().GetSymbol(p.DocumentMarker()))
}
