package globals

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCachedGlobalKeys(t *testing.T) {
	keys := CachedGlobalKeys()
	assert.Contains(t, keys, "window")
	assert.Contains(t, keys, "history")
	assert.NotContains(t, keys, "fetch")

	keys[0] = "mutated"
	assert.Equal(t, "window", CachedGlobalKeys()[0], "returned slice must be a copy")
}

func TestIsReserved(t *testing.T) {
	assert.True(t, IsReserved("__MICRO_APP_NAME__"))
	assert.True(t, IsReserved("__MICRO_APP_ANYTHING"))
	assert.False(t, IsReserved("__MICRO_APPNAME"))
	assert.False(t, IsReserved("microApp"))
}

func TestClassify(t *testing.T) {
	c := NewClassifier(Options{
		ScopeProperties:  []string{"scopedOnly", "both"},
		EscapeProperties: []string{"sharedFlag", "both", "sharedFlag"},
	})
	rawHas := func(string) bool { return false }

	tests := []struct {
		name string
		want Class
	}{
		{"webpackJsonp", Scoped},
		{"scopedOnly", Scoped},
		{"both", Scoped},
		{"sharedFlag", EscapeExplicit},
		{"System", EscapeStaticIfAbsent},
		{"counter", Default},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.name, rawHas))
		})
	}

	assert.Equal(t, []string{"sharedFlag", "both"}, c.EscapeProperties())
}

func TestClassifyStaticEscapePresentOnRaw(t *testing.T) {
	c := NewClassifier(Options{})

	assert.Equal(t, EscapeStaticIfAbsent, c.Classify("System", func(string) bool { return false }))
	assert.Equal(t, Default, c.Classify("System", func(string) bool { return true }))
}

func TestScopedOverridesStaticEscape(t *testing.T) {
	c := NewClassifier(Options{ScopeProperties: []string{"System"}})

	assert.Equal(t, Scoped, c.Classify("System", nil))
	assert.False(t, c.IsStaticEscape("System"))
}

func TestDevScopeProperties(t *testing.T) {
	assert.False(t, NewClassifier(Options{}).IsScoped("__reactRefreshInjected"))
	assert.True(t, NewClassifier(Options{Dev: true}).IsScoped("__reactRefreshInjected"))
}

func TestEscapeSetter(t *testing.T) {
	c := NewClassifier(Options{})
	assert.True(t, c.IsEscapeSetter("location"))
	assert.False(t, c.IsEscapeSetter("history"))
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "scoped", Scoped.String())
	assert.Equal(t, "default", Default.String())
	assert.Equal(t, "escape-explicit", EscapeExplicit.String())
	assert.Equal(t, "escape-static-if-absent", EscapeStaticIfAbsent.String())
}
