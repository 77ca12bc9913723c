package page

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const initialMarkup = "<!DOCTYPE html><html><head><title></title></head><body></body></html>"

var tagNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)

// dom keeps one wrapper object per html node so identity and expandos
// survive repeated lookups.
type dom struct {
	root     *html.Node
	document *goja.Object
	wrappers map[*html.Node]*goja.Object
	nodes    map[*goja.Object]*html.Node

	nodeProto     *goja.Object
	elementProto  *goja.Object
	textProto     *goja.Object
	documentProto *goja.Object
	documentCtor  *goja.Object
	marker        *goja.Symbol
}

func (p *Page) setupDOM() error {
	root, err := html.Parse(strings.NewReader(initialMarkup))
	if err != nil {
		return fmt.Errorf("failed to parse initial document: %w", err)
	}

	d := &dom{
		root:     root,
		wrappers: make(map[*html.Node]*goja.Object),
		nodes:    make(map[*goja.Object]*html.Node),
		marker:   goja.NewSymbol("microhost.document"),
	}
	p.dom = d

	d.nodeProto = p.vm.NewObject()
	d.nodeProto.SetPrototype(p.eventTargetProto)
	d.elementProto = p.vm.NewObject()
	d.elementProto.SetPrototype(d.nodeProto)
	d.textProto = p.vm.NewObject()
	d.textProto.SetPrototype(d.nodeProto)
	d.documentProto = p.vm.NewObject()
	d.documentProto.SetPrototype(d.nodeProto)

	p.setupNodePrototype(d.nodeProto)
	p.setupElementPrototype(d.elementProto)
	p.setupDocumentPrototype(d.documentProto)

	eventTarget := p.window.Get("EventTarget").ToObject(p.vm)
	nodeCtor, err := p.defineInterface("Node", d.nodeProto, eventTarget, false)
	if err != nil {
		return err
	}
	elementCtor, err := p.defineInterface("Element", d.elementProto, nodeCtor, false)
	if err != nil {
		return err
	}
	if err := p.window.DefineDataProperty("HTMLElement", elementCtor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return err
	}
	if _, err := p.defineInterface("Text", d.textProto, nodeCtor, false); err != nil {
		return err
	}
	d.documentCtor, err = p.defineInterface("Document", d.documentProto, nodeCtor, false)
	if err != nil {
		return err
	}

	for _, c := range []struct {
		name  string
		value int
	}{{"ELEMENT_NODE", 1}, {"TEXT_NODE", 3}, {"COMMENT_NODE", 8}, {"DOCUMENT_NODE", 9}} {
		nodeCtor.Set(c.name, c.value)
	}

	d.document = p.wrap(root)
	if err := d.document.DefineDataPropertySymbol(d.marker, p.vm.ToValue(true), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		return err
	}
	return p.window.DefineAccessorProperty("document", p.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return d.document
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
}

// ============================================================================
// Wrapping
// ============================================================================

func (p *Page) wrap(n *html.Node) *goja.Object {
	if n == nil {
		return nil
	}
	if obj, ok := p.dom.wrappers[n]; ok {
		return obj
	}
	obj := p.vm.NewObject()
	switch n.Type {
	case html.ElementNode:
		obj.SetPrototype(p.dom.elementProto)
	case html.TextNode:
		obj.SetPrototype(p.dom.textProto)
	case html.DocumentNode:
		obj.SetPrototype(p.dom.documentProto)
	default:
		obj.SetPrototype(p.dom.nodeProto)
	}
	p.dom.wrappers[n] = obj
	p.dom.nodes[obj] = n
	return obj
}

func (p *Page) wrapValue(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	return p.wrap(n)
}

func (p *Page) wrapAll(nodes []*html.Node) goja.Value {
	items := make([]interface{}, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, p.wrap(n))
	}
	return p.vm.NewArray(items...)
}

// NodeOf returns the html node behind a page node object.
func (p *Page) NodeOf(v goja.Value) (*html.Node, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	n, ok := p.dom.nodes[obj]
	return n, ok
}

// node resolves a JS argument or receiver, throwing a TypeError otherwise.
func (p *Page) node(v goja.Value, what string) *html.Node {
	n, ok := p.NodeOf(v)
	if !ok {
		panic(p.vm.NewTypeError(fmt.Sprintf("%s is not of type 'Node'", what)))
	}
	return n
}

// ============================================================================
// Node.prototype
// ============================================================================

func (p *Page) getter(proto *goja.Object, name string, get func(n *html.Node) goja.Value) {
	proto.DefineAccessorProperty(name, p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		n, ok := p.NodeOf(call.This)
		if !ok {
			return goja.Undefined()
		}
		return get(n)
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (p *Page) accessor(proto *goja.Object, name string, get func(n *html.Node) goja.Value, set func(n *html.Node, v goja.Value)) {
	proto.DefineAccessorProperty(name,
		p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			n, ok := p.NodeOf(call.This)
			if !ok {
				return goja.Undefined()
			}
			return get(n)
		}),
		p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if n, ok := p.NodeOf(call.This); ok {
				set(n, call.Argument(0))
			}
			return goja.Undefined()
		}),
		goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (p *Page) method(proto *goja.Object, name string, fn func(n *html.Node, call goja.FunctionCall) goja.Value) {
	proto.Set(name, func(call goja.FunctionCall) goja.Value {
		return fn(p.node(call.This, "Receiver"), call)
	})
}

func (p *Page) setupNodePrototype(proto *goja.Object) {
	p.getter(proto, "nodeType", func(n *html.Node) goja.Value {
		return p.vm.ToValue(nodeType(n))
	})
	p.getter(proto, "nodeName", func(n *html.Node) goja.Value {
		return p.vm.ToValue(nodeName(n))
	})
	p.getter(proto, "parentNode", func(n *html.Node) goja.Value {
		return p.wrapValue(n.Parent)
	})
	p.getter(proto, "parentElement", func(n *html.Node) goja.Value {
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			return goja.Null()
		}
		return p.wrap(n.Parent)
	})
	p.getter(proto, "childNodes", func(n *html.Node) goja.Value {
		return p.wrapAll(childNodes(n))
	})
	p.getter(proto, "firstChild", func(n *html.Node) goja.Value {
		return p.wrapValue(n.FirstChild)
	})
	p.getter(proto, "lastChild", func(n *html.Node) goja.Value {
		return p.wrapValue(n.LastChild)
	})
	p.getter(proto, "nextSibling", func(n *html.Node) goja.Value {
		return p.wrapValue(n.NextSibling)
	})
	p.getter(proto, "previousSibling", func(n *html.Node) goja.Value {
		return p.wrapValue(n.PrevSibling)
	})
	p.getter(proto, "ownerDocument", func(n *html.Node) goja.Value {
		if n.Type == html.DocumentNode {
			return goja.Null()
		}
		return p.dom.document
	})
	p.accessor(proto, "textContent", func(n *html.Node) goja.Value {
		if n.Type == html.DocumentNode {
			return goja.Null()
		}
		return p.vm.ToValue(textContent(n))
	}, func(n *html.Node, v goja.Value) {
		if n.Type == html.TextNode {
			n.Data = v.String()
			return
		}
		removeChildren(n)
		n.AppendChild(&html.Node{Type: html.TextNode, Data: v.String()})
	})

	p.method(proto, "appendChild", func(n *html.Node, call goja.FunctionCall) goja.Value {
		child := p.node(call.Argument(0), "parameter 1")
		p.insert(n, child, nil)
		return call.Argument(0)
	})
	p.method(proto, "insertBefore", func(n *html.Node, call goja.FunctionCall) goja.Value {
		child := p.node(call.Argument(0), "parameter 1")
		var ref *html.Node
		if arg := call.Argument(1); !goja.IsNull(arg) && !goja.IsUndefined(arg) {
			ref = p.node(arg, "parameter 2")
			if ref.Parent != n {
				panic(p.vm.NewTypeError("Failed to execute 'insertBefore': The node before which the new node is to be inserted is not a child of this node."))
			}
		}
		p.insert(n, child, ref)
		return call.Argument(0)
	})
	p.method(proto, "removeChild", func(n *html.Node, call goja.FunctionCall) goja.Value {
		child := p.node(call.Argument(0), "parameter 1")
		if child.Parent != n {
			panic(p.vm.NewTypeError("Failed to execute 'removeChild': The node to be removed is not a child of this node."))
		}
		n.RemoveChild(child)
		return call.Argument(0)
	})
	p.method(proto, "contains", func(n *html.Node, call goja.FunctionCall) goja.Value {
		other, ok := p.NodeOf(call.Argument(0))
		if !ok {
			return p.vm.ToValue(false)
		}
		for cur := other; cur != nil; cur = cur.Parent {
			if cur == n {
				return p.vm.ToValue(true)
			}
		}
		return p.vm.ToValue(false)
	})
	p.method(proto, "hasChildNodes", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return p.vm.ToValue(n.FirstChild != nil)
	})
	p.method(proto, "cloneNode", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return p.wrap(cloneNode(n, call.Argument(0).ToBoolean()))
	})
}

func (p *Page) insert(parent, child, ref *html.Node) {
	if parent.Type != html.ElementNode && parent.Type != html.DocumentNode {
		panic(p.vm.NewTypeError("Failed to execute 'appendChild': This node type does not support this method."))
	}
	for cur := parent; cur != nil; cur = cur.Parent {
		if cur == child {
			panic(p.vm.NewTypeError("Failed to execute 'appendChild': The new child element contains the parent."))
		}
	}
	if child == ref {
		return
	}
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	if ref == nil {
		parent.AppendChild(child)
		return
	}
	parent.InsertBefore(child, ref)
}

// ============================================================================
// Element.prototype
// ============================================================================

func (p *Page) setupElementPrototype(proto *goja.Object) {
	p.getter(proto, "tagName", func(n *html.Node) goja.Value {
		return p.vm.ToValue(strings.ToUpper(n.Data))
	})
	p.getter(proto, "localName", func(n *html.Node) goja.Value {
		return p.vm.ToValue(n.Data)
	})
	for _, reflected := range []struct{ prop, attr string }{
		{"id", "id"}, {"className", "class"}, {"src", "src"}, {"href", "href"},
		{"type", "type"}, {"name", "name"}, {"rel", "rel"},
	} {
		attr := reflected.attr
		p.accessor(proto, reflected.prop, func(n *html.Node) goja.Value {
			v, _ := getAttr(n, attr)
			return p.vm.ToValue(v)
		}, func(n *html.Node, v goja.Value) {
			setAttr(n, attr, v.String())
		})
	}
	p.getter(proto, "children", func(n *html.Node) goja.Value {
		return p.wrapAll(elementChildren(n))
	})
	p.accessor(proto, "innerHTML", func(n *html.Node) goja.Value {
		return p.vm.ToValue(innerHTML(n))
	}, func(n *html.Node, v goja.Value) {
		if err := setInnerHTML(n, v.String()); err != nil {
			panic(p.vm.NewGoError(err))
		}
	})
	p.getter(proto, "outerHTML", func(n *html.Node) goja.Value {
		return p.vm.ToValue(outerHTML(n))
	})

	p.method(proto, "getAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		if v, ok := getAttr(n, call.Argument(0).String()); ok {
			return p.vm.ToValue(v)
		}
		return goja.Null()
	})
	p.method(proto, "setAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		setAttr(n, call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	p.method(proto, "removeAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		removeAttr(n, call.Argument(0).String())
		return goja.Undefined()
	})
	p.method(proto, "hasAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		_, ok := getAttr(n, call.Argument(0).String())
		return p.vm.ToValue(ok)
	})
	p.method(proto, "remove", func(n *html.Node, call goja.FunctionCall) goja.Value {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return goja.Undefined()
	})
	p.setupQueryMethods(proto)
}

// ============================================================================
// Document.prototype
// ============================================================================

func (p *Page) setupDocumentPrototype(proto *goja.Object) {
	p.method(proto, "createElement", func(n *html.Node, call goja.FunctionCall) goja.Value {
		tag := call.Argument(0).String()
		if !tagNamePattern.MatchString(tag) {
			panic(p.vm.NewTypeError(fmt.Sprintf("Failed to execute 'createElement': The tag name provided ('%s') is not a valid name.", tag)))
		}
		return p.wrap(newElement(tag))
	})
	p.method(proto, "createTextNode", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return p.wrap(&html.Node{Type: html.TextNode, Data: call.Argument(0).String()})
	})
	p.method(proto, "createComment", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return p.wrap(&html.Node{Type: html.CommentNode, Data: call.Argument(0).String()})
	})
	p.method(proto, "getElementById", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return p.wrapValue(findByID(n, call.Argument(0).String()))
	})
	p.getter(proto, "documentElement", func(n *html.Node) goja.Value {
		return p.wrapValue(htmlquery.FindOne(n, "/html"))
	})
	p.getter(proto, "head", func(n *html.Node) goja.Value {
		return p.wrapValue(htmlquery.FindOne(n, "/html/head"))
	})
	p.getter(proto, "body", func(n *html.Node) goja.Value {
		return p.wrapValue(htmlquery.FindOne(n, "/html/body"))
	})
	p.accessor(proto, "title", func(n *html.Node) goja.Value {
		if title := htmlquery.FindOne(n, "//title"); title != nil {
			return p.vm.ToValue(strings.TrimSpace(textContent(title)))
		}
		return p.vm.ToValue("")
	}, func(n *html.Node, v goja.Value) {
		title := htmlquery.FindOne(n, "//title")
		if title == nil {
			head := htmlquery.FindOne(n, "/html/head")
			if head == nil {
				return
			}
			title = newElement("title")
			head.AppendChild(title)
		}
		removeChildren(title)
		title.AppendChild(&html.Node{Type: html.TextNode, Data: v.String()})
	})
	p.getter(proto, "defaultView", func(n *html.Node) goja.Value {
		return p.window
	})
	p.setupQueryMethods(proto)
}

func (p *Page) setupQueryMethods(proto *goja.Object) {
	p.method(proto, "querySelector", func(n *html.Node, call goja.FunctionCall) goja.Value {
		found := goquery.NewDocumentFromNode(n).Find(call.Argument(0).String()).First()
		if found.Length() == 0 {
			return goja.Null()
		}
		return p.wrap(found.Nodes[0])
	})
	p.method(proto, "querySelectorAll", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return p.wrapAll(goquery.NewDocumentFromNode(n).Find(call.Argument(0).String()).Nodes)
	})
	p.method(proto, "getElementsByTagName", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return p.wrapAll(findByTag(n, call.Argument(0).String()))
	})
}

// ============================================================================
// Go-side document access
// ============================================================================

// Document returns the real document.
func (p *Page) Document() *goja.Object { return p.dom.document }

// DocumentConstructor returns the real Document constructor.
func (p *Page) DocumentConstructor() *goja.Object { return p.dom.documentCtor }

// DocumentMarker is the symbol set on the real document.
func (p *Page) DocumentMarker() *goja.Symbol { return p.dom.marker }

// Head returns the real head element.
func (p *Page) Head() *goja.Object {
	return p.wrap(htmlquery.FindOne(p.dom.root, "/html/head"))
}

// Body returns the real body element.
func (p *Page) Body() *goja.Object {
	return p.wrap(htmlquery.FindOne(p.dom.root, "/html/body"))
}

// CreateElement creates a detached element.
func (p *Page) CreateElement(tag string) (*goja.Object, error) {
	if !tagNamePattern.MatchString(tag) {
		return nil, fmt.Errorf("invalid tag name %q", tag)
	}
	return p.wrap(newElement(tag)), nil
}

// AppendChild moves child under parent.
func (p *Page) AppendChild(parent, child *goja.Object) error {
	pn, ok := p.NodeOf(parent)
	if !ok {
		return ErrNotAnElement
	}
	cn, ok := p.NodeOf(child)
	if !ok {
		return ErrNotAnElement
	}
	if cn.Parent != nil {
		cn.Parent.RemoveChild(cn)
	}
	pn.AppendChild(cn)
	return nil
}

// RemoveNode detaches el from its parent.
func (p *Page) RemoveNode(el *goja.Object) {
	if n, ok := p.NodeOf(el); ok && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// SetInnerHTML replaces the children of el with parsed markup.
func (p *Page) SetInnerHTML(el *goja.Object, markup string) error {
	n, ok := p.NodeOf(el)
	if !ok || n.Type != html.ElementNode {
		return ErrNotAnElement
	}
	return setInnerHTML(n, markup)
}

// OuterHTML renders el.
func (p *Page) OuterHTML(el *goja.Object) string {
	if n, ok := p.NodeOf(el); ok {
		return outerHTML(n)
	}
	return ""
}

// QuerySelector returns the first match under root, or nil.
func (p *Page) QuerySelector(root *goja.Object, selector string) *goja.Object {
	n, ok := p.NodeOf(root)
	if !ok {
		return nil
	}
	found := goquery.NewDocumentFromNode(n).Find(selector).First()
	if found.Length() == 0 {
		return nil
	}
	return p.wrap(found.Nodes[0])
}

// QuerySelectorAll returns all matches under root.
func (p *Page) QuerySelectorAll(root *goja.Object, selector string) []*goja.Object {
	n, ok := p.NodeOf(root)
	if !ok {
		return nil
	}
	var out []*goja.Object
	for _, m := range goquery.NewDocumentFromNode(n).Find(selector).Nodes {
		out = append(out, p.wrap(m))
	}
	return out
}

// Parent returns the parent node object of el, or nil.
func (p *Page) Parent(el *goja.Object) *goja.Object {
	if n, ok := p.NodeOf(el); ok {
		return p.wrap(n.Parent)
	}
	return nil
}

// Attr reads an attribute of el.
func (p *Page) Attr(el *goja.Object, name string) (string, bool) {
	if n, ok := p.NodeOf(el); ok {
		return getAttr(n, name)
	}
	return "", false
}

// SetAttr writes an attribute of el.
func (p *Page) SetAttr(el *goja.Object, name, value string) {
	if n, ok := p.NodeOf(el); ok {
		setAttr(n, name, value)
	}
}

// ============================================================================
// html.Node helpers
// ============================================================================

func newElement(tag string) *html.Node {
	lower := strings.ToLower(tag)
	return &html.Node{Type: html.ElementNode, Data: lower, DataAtom: atom.Lookup([]byte(lower))}
}

func nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DocumentNode:
		return 9
	case html.DoctypeNode:
		return 10
	default:
		return 0
	}
}

func nodeName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return strings.ToUpper(n.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	default:
		return n.Data
	}
}

func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			} else {
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}

func innerHTML(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&b, c)
	}
	return b.String()
}

func outerHTML(n *html.Node) string {
	var b strings.Builder
	html.Render(&b, n)
	return b.String()
}

func setInnerHTML(n *html.Node, markup string) error {
	context := n
	if n.Type != html.ElementNode {
		context = newElement("div")
	}
	parsed, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return fmt.Errorf("failed to parse markup: %w", err)
	}
	removeChildren(n)
	for _, c := range parsed {
		n.AppendChild(c)
	}
	return nil
}

func cloneNode(n *html.Node, deep bool) *html.Node {
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if deep {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			clone.AppendChild(cloneNode(c, true))
		}
	}
	return clone
}

func getAttr(n *html.Node, name string) (string, bool) {
	name = strings.ToLower(name)
	for _, a := range n.Attr {
		if a.Key == name && a.Namespace == "" {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	name = strings.ToLower(name)
	for i, a := range n.Attr {
		if a.Key == name && a.Namespace == "" {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	name = strings.ToLower(name)
	for i, a := range n.Attr {
		if a.Key == name && a.Namespace == "" {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func findByTag(n *html.Node, tag string) []*html.Node {
	expr := ".//*"
	if tag != "*" {
		if !tagNamePattern.MatchString(tag) {
			return nil
		}
		expr = ".//" + strings.ToLower(tag)
	}
	nodes, err := htmlquery.QueryAll(n, expr)
	if err != nil {
		return nil
	}
	return nodes
}

func findByID(n *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	if !strings.Contains(id, "'") {
		found, err := htmlquery.Query(n, "//*[@id='"+id+"']")
		if err == nil {
			return found
		}
	}
	var match *html.Node
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		for c := cur.FirstChild; c != nil && match == nil; c = c.NextSibling {
			if v, ok := getAttr(c, "id"); ok && v == id {
				match = c
				return
			}
			walk(c)
		}
	}
	walk(n)
	return match
}
