package sandbox

import (
	"github.com/GriffinCanCode/microhost/internal/sandbox/globals"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

type descriptorSource int

const (
	fromStore descriptorSource = iota
	fromRaw
)

// createProxyWindow builds the window scripts of this app observe.
func (sb *SandBox) createProxyWindow() *goja.Object {
	env := sb.env
	raw := env.RawWindow
	descriptorSources := make(map[string]descriptorSource)

	traps := &goja.ProxyTrapConfig{
		Get: func(target *goja.Object, key string, _ goja.Value) goja.Value {
			sb.coord.SetDomScope(sb.name)
			if env.Has(target, key) || globals.IsReserved(key) || sb.classifier.IsScoped(key) {
				return orUndefined(target.Get(key))
			}
			return sb.coord.windowBinds.bind(raw.Get(key))
		},

		Set: func(target *goja.Object, key string, value goja.Value, _ goja.Value) bool {
			if !sb.active {
				return true
			}
			scoped := sb.classifier.IsScoped(key)

			switch {
			case sb.fixed.has(key):
				if err := target.Set(key, value); err != nil {
					sb.logger.Debug("write to fixed key ignored", zap.String("key", key), zap.Error(err))
				}
				return true
			case sb.classifier.IsEscapeSetter(key):
				if err := raw.Set(key, value); err != nil {
					sb.logger.Debug("write through failed", zap.String("key", key), zap.Error(err))
				}
				return true
			case !env.HasOwn(target, key) && env.HasOwn(raw, key) && !scoped:
				// keep the shape of the real property
				pd := toPropertyDescriptor(env, env.Descriptor(raw, key))
				writable := pd.Writable == goja.FLAG_TRUE || (pd.Writable == goja.FLAG_NOT_SET && isCallable(pd.Setter))
				if err := target.DefineDataProperty(key, value, boolFlag(writable), pd.Configurable, pd.Enumerable); err != nil {
					sb.logger.Debug("define on store failed", zap.String("key", key), zap.Error(err))
					return true
				}
				sb.injected.add(key)
			default:
				if err := target.Set(key, value); err != nil {
					sb.logger.Debug("store write failed", zap.String("key", key), zap.Error(err))
					return true
				}
				sb.injected.add(key)
			}

			switch sb.classifier.Classify(key, func(k string) bool { return env.Has(raw, k) }) {
			case globals.EscapeExplicit, globals.EscapeStaticIfAbsent:
				sb.escape(key, value)
			}
			return true
		},

		Has: func(target *goja.Object, key string) bool {
			if sb.classifier.IsScoped(key) {
				return env.Has(target, key)
			}
			return env.Has(target, key) || env.Has(raw, key)
		},

		GetOwnPropertyDescriptor: func(target *goja.Object, key string) goja.PropertyDescriptor {
			if env.HasOwn(target, key) {
				descriptorSources[key] = fromStore
				return toPropertyDescriptor(env, env.Descriptor(target, key))
			}
			if env.HasOwn(raw, key) {
				descriptorSources[key] = fromRaw
				pd := toPropertyDescriptor(env, env.Descriptor(raw, key))
				pd.Configurable = goja.FLAG_TRUE
				return pd
			}
			return goja.PropertyDescriptor{}
		},

		DefineProperty: func(target *goja.Object, key string, pd goja.PropertyDescriptor) bool {
			if sb.fixed.has(key) {
				return false
			}
			dst := target
			if descriptorSources[key] == fromRaw {
				dst = raw
			}
			return env.DefineProperty(dst, key, descriptorObject(sb.vm, pd))
		},

		OwnKeys: func(target *goja.Object) *goja.Object {
			return sb.vm.NewArray(uniqueKeys(env.OwnKeys(raw), env.OwnKeys(target))...)
		},

		DeleteProperty: func(target *goja.Object, key string) bool {
			if !env.HasOwn(target, key) {
				return true
			}
			if sb.fixed.has(key) {
				return false
			}
			sb.injected.remove(key)
			if sb.escaped.has(key) {
				sb.escaped.remove(key)
				sb.coord.releaseEscape(key)
			}
			return env.DeleteProperty(target, key)
		},
	}

	return sb.vm.ToValue(sb.vm.NewProxy(sb.store, traps)).(*goja.Object)
}

// escape mirrors key onto the real window.
func (sb *SandBox) escape(key string, value goja.Value) {
	if !sb.escaped.has(key) {
		sb.coord.acquireEscape(key)
		sb.escaped.add(key)
		sb.coord.observer.KeyEscaped(sb.name, key)
	}
	if err := sb.env.RawWindow.Set(key, value); err != nil {
		sb.logger.Warn("escape to real window failed", zap.String("key", key), zap.Error(err))
	}
}

// uniqueKeys concatenates key lists, dropping repeats.
func uniqueKeys(lists ...[]goja.Value) []interface{} {
	seenNames := make(map[string]bool)
	seenSymbols := make(map[*goja.Symbol]bool)
	var out []interface{}
	for _, list := range lists {
		for _, k := range list {
			if sym, ok := k.(*goja.Symbol); ok {
				if !seenSymbols[sym] {
					seenSymbols[sym] = true
					out = append(out, sym)
				}
				continue
			}
			name := k.String()
			if !seenNames[name] {
				seenNames[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

func isCallable(v goja.Value) bool {
	if v == nil {
		return false
	}
	_, ok := goja.AssertFunction(v)
	return ok
}
