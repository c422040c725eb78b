package dalcore

import (
	"fmt"
	"reflect"
)

// Accessor gets and sets one property of a model instance.
type Accessor struct {
	Name    string
	Ordinal int
	Type    reflect.Type

	modelType reflect.Type
	get       func(root reflect.Value) reflect.Value
	set       func(root reflect.Value, v any) error
}

// AccessorSet holds the accessors of every property of a model, reachable by
// Go field name and by ordinal (descriptor order).
type AccessorSet struct {
	Type      reflect.Type
	byName    map[string]*Accessor
	byOrdinal []*Accessor
}

// Accessors returns the cached accessor set for t.
func (e *Engine) Accessors(t reflect.Type) (*AccessorSet, error) {
	d, err := e.Describe(t)
	if err != nil {
		return nil, err
	}
	return e.accessors.get(d.Type, func() (*AccessorSet, error) {
		set := &AccessorSet{
			Type:      d.Type,
			byName:    make(map[string]*Accessor, len(d.Properties)),
			byOrdinal: make([]*Accessor, len(d.Properties)),
		}
		for i, p := range d.Properties {
			a := newAccessor(d.Type, p)
			set.byOrdinal[i] = a
			set.byName[p.Name] = a
		}
		LogDebugf("built accessor set for %s", d.Type)
		return set, nil
	})
}

// ByName returns the accessor of the Go field name.
func (s *AccessorSet) ByName(name string) (*Accessor, bool) {
	a, ok := s.byName[name]
	return a, ok
}

// ByOrdinal returns the accessor at descriptor position i.
func (s *AccessorSet) ByOrdinal(i int) (*Accessor, bool) {
	if i < 0 || i >= len(s.byOrdinal) {
		return nil, false
	}
	return s.byOrdinal[i], true
}

// Len returns the number of accessors.
func (s *AccessorSet) Len() int {
	return len(s.byOrdinal)
}

func newAccessor(model reflect.Type, p *PropertyMeta) *Accessor {
	index := p.index
	ft := p.Type
	return &Accessor{
		Name:      p.Name,
		Ordinal:   p.Ordinal,
		Type:      ft,
		modelType: model,
		get: func(root reflect.Value) reflect.Value {
			f, ok := fieldByIndex(root, index)
			if !ok {
				return reflect.Zero(ft)
			}
			return f
		},
		set: func(root reflect.Value, v any) error {
			cv, err := coerce(v, ft)
			if err != nil {
				return fmt.Errorf("dalcore: set %s.%s (%s) from %T: %w", model, p.Name, ft, v, err)
			}
			fieldByIndexAlloc(root, index).Set(cv)
			return nil
		},
	}
}

// Get returns the property value of instance, a non-nil pointer to the model.
func (a *Accessor) Get(instance any) (any, error) {
	root, err := structValue(instance, a.modelType)
	if err != nil {
		return nil, err
	}
	return a.get(root).Interface(), nil
}

// Set coerces v to the exact property type and stores it on instance.
func (a *Accessor) Set(instance any, v any) error {
	root, err := structValue(instance, a.modelType)
	if err != nil {
		return err
	}
	return a.set(root, v)
}

// structValue unwraps a *T into its addressable struct value.
func structValue(instance any, t reflect.Type) (reflect.Value, error) {
	rv := reflect.ValueOf(instance)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("dalcore: instance must be a non-nil *%s, got %T", t, instance)
	}
	rv = rv.Elem()
	if rv.Type() != t {
		return reflect.Value{}, fmt.Errorf("dalcore: instance must be a non-nil *%s, got %T", t, instance)
	}
	return rv, nil
}

// fieldByIndex walks path without allocating; ok is false when an embedded
// pointer on the way is nil.
func fieldByIndex(root reflect.Value, path []int) (reflect.Value, bool) {
	v := root
	for i, idx := range path {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(idx)
	}
	return v, true
}

// fieldByIndexAlloc walks a struct by index path, allocating intermediate
// pointer nodes on the way (but NOT allocating the leaf pointer itself).
func fieldByIndexAlloc(root reflect.Value, path []int) reflect.Value {
	v := root
	for i, idx := range path {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(idx)
	}
	return v
}
