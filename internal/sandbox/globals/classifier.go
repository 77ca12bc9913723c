package globals

// Class is the routing decision for one property name.
type Class int

const (
	// Default resolves against the store first, then the real window.
	Default Class = iota
	// Scoped lives only in the app store.
	Scoped
	// EscapeExplicit is mirrored to the real window on write.
	EscapeExplicit
	// EscapeStaticIfAbsent is mirrored only when the real window lacks it.
	EscapeStaticIfAbsent
)

func (c Class) String() string {
	switch c {
	case Scoped:
		return "scoped"
	case EscapeExplicit:
		return "escape-explicit"
	case EscapeStaticIfAbsent:
		return "escape-static-if-absent"
	default:
		return "default"
	}
}

// Classifier decides how a sandbox routes each property name. It is built
// once per sandbox and is read-only afterwards.
type Classifier struct {
	scope        []string
	escape       []string
	scopeSet     map[string]struct{}
	escapeSet    map[string]struct{}
	staticEscape map[string]struct{}
	escapeSetter map[string]struct{}
}

// Options configures a Classifier.
type Options struct {
	// ScopeProperties declared by plugins, in declaration order.
	ScopeProperties []string
	// EscapeProperties declared by plugins, in declaration order.
	EscapeProperties []string
	// Dev adds the development-only scope keys.
	Dev bool
}

// NewClassifier merges the static lists with plugin declarations.
func NewClassifier(opts Options) *Classifier {
	scope := append([]string(nil), StaticScopeProperties...)
	if opts.Dev {
		scope = append(scope, DevScopeProperties...)
	}
	scope = appendUnique(scope, opts.ScopeProperties...)
	escape := appendUnique(nil, opts.EscapeProperties...)

	return &Classifier{
		scope:        scope,
		escape:       escape,
		scopeSet:     toSet(scope),
		escapeSet:    toSet(escape),
		staticEscape: toSet(StaticEscapeProperties),
		escapeSetter: toSet(EscapeSetterKeys),
	}
}

// Classify returns the class of name. Scoped wins over every escape rule.
// rawHas reports whether the real window currently has the name and is only
// consulted for static escape keys.
func (c *Classifier) Classify(name string, rawHas func(string) bool) Class {
	switch {
	case c.IsScoped(name):
		return Scoped
	case c.IsEscapeExplicit(name):
		return EscapeExplicit
	case c.IsStaticEscape(name) && (rawHas == nil || !rawHas(name)):
		return EscapeStaticIfAbsent
	default:
		return Default
	}
}

// IsScoped reports whether name is confined to the store.
func (c *Classifier) IsScoped(name string) bool {
	_, ok := c.scopeSet[name]
	return ok
}

// IsEscapeExplicit reports whether name was declared escaping and is not scoped.
func (c *Classifier) IsEscapeExplicit(name string) bool {
	_, ok := c.escapeSet[name]
	return ok && !c.IsScoped(name)
}

// IsStaticEscape reports whether name is on the static escape list and not scoped.
func (c *Classifier) IsStaticEscape(name string) bool {
	_, ok := c.staticEscape[name]
	return ok && !c.IsScoped(name)
}

// IsEscapeSetter reports whether writes to name go straight to the real window.
func (c *Classifier) IsEscapeSetter(name string) bool {
	_, ok := c.escapeSetter[name]
	return ok
}

// ScopeProperties returns the merged scope list in order.
func (c *Classifier) ScopeProperties() []string {
	return append([]string(nil), c.scope...)
}

// EscapeProperties returns the merged escape list in order.
func (c *Classifier) EscapeProperties() []string {
	return append([]string(nil), c.escape...)
}

func appendUnique(dst []string, keys ...string) []string {
	seen := toSet(dst)
	for _, k := range keys {
		if _, ok := seen[k]; ok || k == "" {
			continue
		}
		seen[k] = struct{}{}
		dst = append(dst, k)
	}
	return dst
}
