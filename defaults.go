package dalcore

import (
	"reflect"
	"strings"
)

// ApplyDefaults assigns annotated defaults on instance (*T) for every property
// whose sql name is absent from columns. Nested models are visited against the
// same column set. A column that is present but null does not count as absent.
func (e *Engine) ApplyDefaults(instance any, columns []string) error {
	t := reflect.TypeOf(instance)
	if t == nil || t.Kind() != reflect.Pointer {
		return configErrorf(ErrInvalidModel, t, "", "instance must be a pointer to a model")
	}
	d, err := e.Describe(t)
	if err != nil {
		return err
	}
	root, err := structValue(instance, d.Type)
	if err != nil {
		return err
	}
	applyDefaults(root, d, columnNameSet(columns))
	return nil
}

func applyDefaults(root reflect.Value, d *ModelDescriptor, present map[string]struct{}) {
	for _, p := range d.Properties {
		if p.Ignored {
			continue
		}
		if p.HasDefault {
			if _, ok := present[strings.ToLower(p.SQLName)]; !ok {
				setDefault(fieldByIndexAlloc(root, p.index), p)
			}
		}
		if p.Nested == nil || !p.Nested.hasDefaults {
			continue
		}
		f := fieldByIndexAlloc(root, p.index)
		if f.Kind() == reflect.Pointer {
			if f.IsNil() {
				f.Set(newInstance(f.Type().Elem()))
			}
			f = f.Elem()
		}
		applyDefaults(f, p.Nested, present)
	}
}

func setDefault(f reflect.Value, p *PropertyMeta) {
	dv := reflect.ValueOf(p.Default)
	if p.Type.Kind() == reflect.Pointer {
		ptr := reflect.New(p.Type.Elem())
		ptr.Elem().Set(dv)
		f.Set(ptr)
		return
	}
	f.Set(dv)
}
