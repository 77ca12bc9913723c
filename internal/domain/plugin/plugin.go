package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/GriffinCanCode/microhost/internal/shared/utils"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

var (
	ErrUnknownFormat = errors.New("unknown plugin file format")
	ErrInvalidKey    = errors.New("invalid property name in plugin")
)

// Format is a declaration file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// Plugin declares properties an app keeps private or shares.
type Plugin struct {
	Name             string                 `yaml:"name" toml:"name" json:"name"`
	ScopeProperties  []string               `yaml:"scopeProperties" toml:"scopeProperties" json:"scopeProperties"`
	EscapeProperties []string               `yaml:"escapeProperties" toml:"escapeProperties" json:"escapeProperties"`
	Options          map[string]interface{} `yaml:"options,omitempty" toml:"options,omitempty" json:"options,omitempty"`
}

// Declarations is the content of a plugin file.
type Declarations struct {
	Global  []Plugin            `yaml:"global" toml:"global" json:"global"`
	Modules map[string][]Plugin `yaml:"modules" toml:"modules" json:"modules"`
}

// Source supplies the plugin properties of an app.
type Source interface {
	PropertiesFor(app string) (scope, escape []string)
}

// Load reads a declaration file, choosing the format by extension.
func Load(path string) (*Declarations, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin file: %w", err)
	}
	return Parse(data, format)
}

// FormatOf maps a file extension to its format.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Parse decodes declarations and normalizes module keys.
func Parse(data []byte, format Format) (*Declarations, error) {
	var d Declarations
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &d)
	case FormatTOML:
		err = toml.Unmarshal(data, &d)
	case FormatJSON:
		err = sonic.Unmarshal(data, &d)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s plugin declarations: %w", format, err)
	}
	if err := d.normalize(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Declarations) normalize() error {
	check := func(plugins []Plugin) error {
		for _, p := range plugins {
			for _, key := range append(append([]string(nil), p.ScopeProperties...), p.EscapeProperties...) {
				if err := utils.ValidateGlobalKey(key); err != nil {
					return fmt.Errorf("%w: plugin %q: %v", ErrInvalidKey, p.Name, err)
				}
			}
		}
		return nil
	}
	if err := check(d.Global); err != nil {
		return err
	}
	if len(d.Modules) == 0 {
		return nil
	}
	modules := make(map[string][]Plugin, len(d.Modules))
	for key, plugins := range d.Modules {
		if err := check(plugins); err != nil {
			return err
		}
		if !isPattern(key) {
			key = utils.FormatAppName(key)
		}
		modules[key] = append(modules[key], plugins...)
	}
	d.Modules = modules
	return nil
}

// PropertiesFor collects scope and escape names for app: global plugins
// first, then the exact module entry, then matching patterns sorted by key.
func (d *Declarations) PropertiesFor(app string) (scope, escape []string) {
	if d == nil {
		return nil, nil
	}
	for _, p := range d.PluginsFor(app) {
		scope = append(scope, p.ScopeProperties...)
		escape = append(escape, p.EscapeProperties...)
	}
	return scope, escape
}

// PluginsFor returns the plugins applied to app in application order.
func (d *Declarations) PluginsFor(app string) []Plugin {
	if d == nil {
		return nil
	}
	plugins := append([]Plugin(nil), d.Global...)
	plugins = append(plugins, d.Modules[app]...)

	var patterns []string
	for key := range d.Modules {
		if isPattern(key) {
			patterns = append(patterns, key)
		}
	}
	sort.Strings(patterns)
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, app); err == nil && ok {
			plugins = append(plugins, d.Modules[pattern]...)
		}
	}
	return plugins
}

// Merge appends other's plugins to d.
func (d *Declarations) Merge(other *Declarations) {
	if other == nil {
		return
	}
	d.Global = append(d.Global, other.Global...)
	if d.Modules == nil {
		d.Modules = make(map[string][]Plugin)
	}
	for key, plugins := range other.Modules {
		d.Modules[key] = append(d.Modules[key], plugins...)
	}
}

func isPattern(key string) bool {
	return strings.ContainsAny(key, "*?[{")
}
