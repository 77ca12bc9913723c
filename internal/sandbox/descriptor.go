package sandbox

import (
	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/dop251/goja"
)

// toPropertyDescriptor converts the result of Object.getOwnPropertyDescriptor.
func toPropertyDescriptor(env *page.Env, d *goja.Object) goja.PropertyDescriptor {
	var pd goja.PropertyDescriptor
	if d == nil {
		return pd
	}
	flag := func(name string) goja.Flag {
		if !env.HasOwn(d, name) {
			return goja.FLAG_NOT_SET
		}
		if d.Get(name).ToBoolean() {
			return goja.FLAG_TRUE
		}
		return goja.FLAG_FALSE
	}
	pd.Configurable = flag("configurable")
	pd.Enumerable = flag("enumerable")
	if env.HasOwn(d, "get") || env.HasOwn(d, "set") {
		pd.Getter = orUndefined(d.Get("get"))
		pd.Setter = orUndefined(d.Get("set"))
		return pd
	}
	pd.Value = orUndefined(d.Get("value"))
	pd.Writable = flag("writable")
	return pd
}

// descriptorObject builds a JS descriptor holding only the fields pd sets.
func descriptorObject(vm *goja.Runtime, pd goja.PropertyDescriptor) *goja.Object {
	o := vm.NewObject()
	setFlag := func(name string, f goja.Flag) {
		if f != goja.FLAG_NOT_SET {
			o.Set(name, f == goja.FLAG_TRUE)
		}
	}
	setFlag("configurable", pd.Configurable)
	setFlag("enumerable", pd.Enumerable)
	setFlag("writable", pd.Writable)
	if pd.Value != nil {
		o.Set("value", pd.Value)
	}
	if pd.Getter != nil {
		o.Set("get", pd.Getter)
	}
	if pd.Setter != nil {
		o.Set("set", pd.Setter)
	}
	return o
}

func boolFlag(b bool) goja.Flag {
	if b {
		return goja.FLAG_TRUE
	}
	return goja.FLAG_FALSE
}

func orUndefined(v goja.Value) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	return v
}
