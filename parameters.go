package dalcore

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/kent-id/dalcore/types"
)

// PrepareParameters turns a model instance into query parameters, one per
// non-ignored column-bearing property. Nested models are flattened in column
// claiming order: a model's own properties first, then each nested model.
// A []types.Parameter argument is returned unchanged.
//
// Nil pointers become types.DBNull, string values pass through their write
// format, and table values are expanded to their TabularResult. Output
// parameters keep the current property value and report Size -1.
func (e *Engine) PrepareParameters(v any) ([]types.Parameter, error) {
	if params, ok := v.([]types.Parameter); ok {
		return params, nil
	}
	if v == nil {
		return nil, configErrorf(ErrInvalidModel, nil, "", "cannot prepare parameters from nil")
	}
	d, err := e.Describe(reflect.TypeOf(v))
	if err != nil {
		return nil, err
	}
	root := reflect.ValueOf(v)
	for root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root = reflect.Value{}
			break
		}
		root = root.Elem()
	}

	var params []types.Parameter
	if err := appendParameters(&params, d, root); err != nil {
		return nil, err
	}
	return params, nil
}

// appendParameters adds the parameters of d read from root. An invalid root
// stands for a nil nested model; all of its parameters are DBNull.
func appendParameters(params *[]types.Parameter, d *ModelDescriptor, root reflect.Value) error {
	for _, p := range d.Properties {
		if !p.mapsColumn() {
			continue
		}
		param := types.Parameter{Name: p.SQLName, Direction: p.Direction, Value: types.DBNull}
		if root.IsValid() {
			if f, ok := fieldByIndex(root, p.index); ok {
				v, err := parameterValue(p, f)
				if err != nil {
					return err
				}
				param.Value = v
			}
		}
		switch val := param.Value.(type) {
		case string:
			param.Size = len(val)
		case []byte:
			param.Size = len(val)
		}
		if p.Direction == types.Output {
			param.Size = -1
		}
		*params = append(*params, param)
	}

	for _, p := range d.Properties {
		if p.Nested == nil || p.Ignored {
			continue
		}
		var sub reflect.Value
		if root.IsValid() {
			if f, ok := fieldByIndex(root, p.index); ok {
				if f.Kind() != reflect.Pointer {
					sub = f
				} else if !f.IsNil() {
					sub = f.Elem()
				}
			}
		}
		if err := appendParameters(params, p.Nested, sub); err != nil {
			return err
		}
	}
	return nil
}

func parameterValue(p *PropertyMeta, f reflect.Value) (any, error) {
	if nillable(f.Type()) && f.IsNil() {
		return types.DBNull, nil
	}
	if p.IsTableValue {
		tv, ok := f.Interface().(types.TableValuer)
		if !ok && f.CanAddr() {
			tv, ok = f.Addr().Interface().(types.TableValuer)
		}
		if !ok {
			return types.DBNull, nil
		}
		res, err := tv.TableValue()
		if err != nil {
			return nil, fmt.Errorf("dalcore: table value of %s: %w", p.Name, err)
		}
		return res, nil
	}
	if f.Kind() == reflect.Pointer {
		f = f.Elem()
	}
	v := f.Interface()
	if p.WriteFormat != "" && f.Kind() == reflect.String {
		v = fmt.Sprintf(p.WriteFormat, f.String())
	}
	return v, nil
}

// ApplyOutputs writes the values of Output parameters back onto instance, a
// pointer to the model the parameters were prepared from. Parameters are
// matched to Output properties by sql name, case-insensitively; Input
// parameters are ignored.
func (e *Engine) ApplyOutputs(instance any, params []types.Parameter) error {
	d, err := e.Describe(reflect.TypeOf(instance))
	if err != nil {
		return err
	}
	root, err := structValue(instance, d.Type)
	if err != nil {
		return err
	}
	for _, param := range params {
		if param.Direction != types.Output {
			continue
		}
		chain := findOutput(d, param.Name)
		if chain == nil {
			return configErrorf(ErrInvalidOutput, d.Type, param.Name, "no output property for parameter %q", param.Name)
		}
		if err := setOutput(root, chain, param); err != nil {
			return err
		}
	}
	return nil
}

// findOutput returns the nested properties leading to the Output property
// named name, ending with that property.
func findOutput(d *ModelDescriptor, name string) []*PropertyMeta {
	for _, p := range d.Properties {
		if p.mapsColumn() && p.Direction == types.Output && strings.EqualFold(p.SQLName, name) {
			return []*PropertyMeta{p}
		}
	}
	for _, p := range d.Properties {
		if p.Nested == nil || p.Ignored {
			continue
		}
		if sub := findOutput(p.Nested, name); sub != nil {
			return append([]*PropertyMeta{p}, sub...)
		}
	}
	return nil
}

func setOutput(root reflect.Value, chain []*PropertyMeta, param types.Parameter) error {
	v := root
	for _, p := range chain[:len(chain)-1] {
		v = fieldByIndexAlloc(v, p.index)
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(newInstance(v.Type().Elem()))
			}
			v = v.Elem()
		}
	}
	leaf := chain[len(chain)-1]
	model := v.Type().String()
	if isNull(param.Value) && !acceptsNull(leaf.Type) {
		return &ModelPropertyNotNullableError{Model: model, Property: leaf.Name, PropertyType: leaf.Type, Column: param.Name}
	}
	cv, err := coerce(param.Value, leaf.Type)
	if err != nil {
		return &ModelPropertyColumnMismatchError{
			ValueType:    reflect.TypeOf(param.Value),
			Model:        model,
			Property:     leaf.Name,
			PropertyType: leaf.Type,
			Column:       param.Name,
			Err:          err,
		}
	}
	fieldByIndexAlloc(v, leaf.index).Set(cv)
	return nil
}
