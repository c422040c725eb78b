package dalcore

import (
	"reflect"
	"strings"

	"github.com/kent-id/dalcore/types"
)

// ModelDescriptor is the validated mapping metadata of one struct type.
// It is built once per type and must not be modified.
type ModelDescriptor struct {
	Type       reflect.Type
	Properties []*PropertyMeta

	byName      map[string]*PropertyMeta // lower-case sql name -> column-bearing property
	hasDefaults bool                     // this model or a nested one carries defaults
}

// PropertyMeta describes one exported field of a model.
type PropertyMeta struct {
	// Name is the Go field name.
	Name string
	// SQLName is the explicit override, else Name.
	SQLName   string
	Direction types.Direction
	Ignored   bool
	// IsNullableValue is set for pointers to scalar value types.
	IsNullableValue bool
	Type            reflect.Type
	HasDefault      bool
	// Default holds a value of the non-pointer field type.
	Default     any
	ReadFormat  string
	WriteFormat string
	Nested      *ModelDescriptor
	// IsChildCollection marks lists of models, filled only by relationships.
	IsChildCollection bool
	ElemType          reflect.Type
	IsTableValue      bool
	Ordinal           int

	index    []int
	explicit bool
	kind     propertyKind
}

// Property looks up a property by Go field name.
func (d *ModelDescriptor) Property(name string) (*PropertyMeta, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Lookup finds the column-bearing property for a sql name, case-insensitively.
func (d *ModelDescriptor) Lookup(sqlName string) (*PropertyMeta, bool) {
	p, ok := d.byName[strings.ToLower(sqlName)]
	return p, ok
}

// mapsColumn reports whether the property is filled from a result column.
func (p *PropertyMeta) mapsColumn() bool {
	return !p.Ignored && (p.kind == kindScalar || p.kind == kindTableValue)
}

// Describe returns the cached descriptor for t (a struct or pointer to struct),
// building and validating it on first use.
func (e *Engine) Describe(t reflect.Type) (*ModelDescriptor, error) {
	if t == nil {
		return nil, configErrorf(ErrInvalidModel, nil, "", "nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return e.descriptors.get(t, func() (*ModelDescriptor, error) {
		if t.Kind() != reflect.Struct {
			return nil, configErrorf(ErrInvalidModel, t, "", "model must be a struct, got %s", t.Kind())
		}
		if err := checkRecursion(t, []reflect.Type{t}); err != nil {
			return nil, err
		}
		d, err := e.buildDescriptor(t)
		if err == nil {
			LogDebugf("built model descriptor for %s with %d properties", t, len(d.Properties))
		}
		return d, err
	})
}

// modelField is one exported field reachable from a model, embedded structs flattened.
type modelField struct {
	sf    reflect.StructField
	index []int
	tag   fieldTag
	kind  propertyKind
}

// collectFields walks t and its embedded structs in declaration order. An
// embedded struct that embeds one of its own ancestors is a recursive model.
func collectFields(t reflect.Type) ([]modelField, error) {
	var out []modelField
	annotations := annotationsOf(t)

	var walk func(rt reflect.Type, base []int, chain []reflect.Type) error
	walk = func(rt reflect.Type, base []int, chain []reflect.Type) error {
		for i := 0; i < rt.NumField(); i++ {
			sf := rt.Field(i)
			path := appendIndex(base, i)
			tag := parseFieldTag(sf)
			if sf.Anonymous && !tag.explicit && !tag.ignore {
				et := sf.Type
				isPtr := et.Kind() == reflect.Pointer
				if isPtr {
					et = et.Elem()
				}
				if et.Kind() == reflect.Struct && !isScalarStruct(et) {
					// fields behind an unexported embedded pointer cannot be allocated
					if !(isPtr && !sf.IsExported()) {
						for _, anc := range chain {
							if anc == et {
								return configErrorf(ErrRecursiveModel, t, sf.Name, "embedded %s already occurs in %s", et, chainString(chain))
							}
						}
						if err := walk(et, path, append(chain[:len(chain):len(chain)], et)); err != nil {
							return err
						}
					}
					continue
				}
			}
			if !sf.IsExported() {
				continue
			}
			if a, ok := annotations[sf.Name]; ok {
				tag.apply(a)
			}
			out = append(out, modelField{sf: sf, index: path, tag: tag, kind: classify(sf.Type)})
		}
		return nil
	}
	if err := walk(t, nil, []reflect.Type{t}); err != nil {
		return nil, err
	}
	return out, nil
}

// checkRecursion rejects any nested model type that re-occurs in its own
// ancestor chain. It runs before cache entries are built, so cyclic models
// never recurse into Describe.
func checkRecursion(t reflect.Type, chain []reflect.Type) error {
	fields, err := collectFields(t)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if f.kind != kindNested || f.tag.ignore {
			continue
		}
		nt := f.sf.Type
		if nt.Kind() == reflect.Pointer {
			nt = nt.Elem()
		}
		for _, anc := range chain {
			if anc == nt {
				return configErrorf(ErrRecursiveModel, chain[0], f.sf.Name, "%s already occurs in %s", nt, chainString(chain))
			}
		}
		if err := checkRecursion(nt, append(chain[:len(chain):len(chain)], nt)); err != nil {
			return err
		}
	}
	return nil
}

func chainString(chain []reflect.Type) string {
	parts := make([]string, len(chain))
	for i, t := range chain {
		parts[i] = t.String()
	}
	return strings.Join(parts, " -> ")
}

func (e *Engine) buildDescriptor(t reflect.Type) (*ModelDescriptor, error) {
	fields, err := collectFields(t)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, configErrorf(ErrInvalidModel, t, "", "at least one exported field should be defined")
	}

	d := &ModelDescriptor{
		Type:       t,
		Properties: make([]*PropertyMeta, 0, len(fields)),
		byName:     make(map[string]*PropertyMeta, len(fields)),
	}
	for _, f := range fields {
		p, err := e.buildProperty(t, f)
		if err != nil {
			return nil, err
		}
		p.Ordinal = len(d.Properties)
		d.Properties = append(d.Properties, p)
		if p.HasDefault || (p.Nested != nil && !p.Ignored && p.Nested.hasDefaults) {
			d.hasDefaults = true
		}
	}

	if err := validateNames(d); err != nil {
		return nil, err
	}
	for _, p := range d.Properties {
		if p.mapsColumn() {
			d.byName[strings.ToLower(p.SQLName)] = p
		}
	}
	return d, nil
}

func (e *Engine) buildProperty(model reflect.Type, f modelField) (*PropertyMeta, error) {
	ft := f.sf.Type
	p := &PropertyMeta{
		Name:        f.sf.Name,
		SQLName:     f.sf.Name,
		Direction:   types.Input,
		Ignored:     f.tag.ignore,
		Type:        ft,
		ReadFormat:  f.tag.readFormat,
		WriteFormat: f.tag.writeFormat,
		index:       f.index,
		explicit:    f.tag.explicit,
		kind:        f.kind,
	}
	if f.tag.explicit {
		p.SQLName = f.tag.name
	}
	if f.tag.output {
		p.Direction = types.Output
	}
	p.IsNullableValue = ft.Kind() == reflect.Pointer && f.kind == kindScalar
	p.IsTableValue = f.kind == kindTableValue
	if f.kind == kindChildCollection {
		p.IsChildCollection = true
		p.ElemType = ft.Elem()
	}

	if p.WriteFormat != "" && !isStringType(ft) {
		return nil, configErrorf(ErrFormatPlacement, model, p.Name, "write format requires a string property, got %s", ft)
	}
	if p.ReadFormat != "" && !isStringType(ft) {
		return nil, configErrorf(ErrFormatPlacement, model, p.Name, "read format requires a string property, got %s", ft)
	}
	if f.tag.hasDefault {
		if f.kind != kindScalar {
			return nil, configErrorf(ErrDefaultType, model, p.Name, "defaults require a scalar property, got %s", f.kind)
		}
		dv, err := f.tag.resolveDefault(ft)
		if err != nil {
			return nil, configErrorf(ErrDefaultType, model, p.Name, "%v", err)
		}
		p.HasDefault = true
		p.Default = dv.Interface()
	}
	if p.Direction == types.Output && f.kind != kindScalar {
		return nil, configErrorf(ErrInvalidOutput, model, p.Name, "%s cannot be an output", f.kind)
	}

	if p.Ignored {
		return p, nil
	}
	switch f.kind {
	case kindCollection:
		return nil, configErrorf(ErrInvalidCollection, model, p.Name, "%s is neither a child collection nor a table value; ignore it", ft)
	case kindUnsupported:
		return nil, configErrorf(ErrUnsupportedProperty, model, p.Name, "%s cannot be mapped; ignore it", ft)
	case kindNested:
		nested, err := e.Describe(ft)
		if err != nil {
			return nil, err
		}
		p.Nested = nested
	}
	return p, nil
}

// validateNames enforces unique effective sql names among column-bearing,
// non-ignored properties.
func validateNames(d *ModelDescriptor) error {
	props := make([]*PropertyMeta, 0, len(d.Properties))
	for _, p := range d.Properties {
		if p.mapsColumn() {
			props = append(props, p)
		}
	}

	for _, p := range props {
		if !p.explicit {
			continue
		}
		for _, q := range props {
			if q != p && strings.EqualFold(q.Name, p.SQLName) && q.Name != p.Name {
				return configErrorf(ErrNameRedeclared, d.Type, p.Name, "override %q is the name of property %s", p.SQLName, q.Name)
			}
		}
	}

	seen := make(map[string]*PropertyMeta, len(props))
	for _, p := range props {
		key := strings.ToLower(p.SQLName)
		q, ok := seen[key]
		if !ok {
			seen[key] = p
			continue
		}
		if p.Direction == types.Output || q.Direction == types.Output {
			return configErrorf(ErrOutputCollision, d.Type, p.Name, "output shares sql name %q with %s", p.SQLName, q.Name)
		}
		return configErrorf(ErrNameCollision, d.Type, p.Name, "sql name %q already used by %s", p.SQLName, q.Name)
	}
	return nil
}

// appendIndex returns a new index path with idx appended.
func appendIndex(path []int, idx int) []int {
	out := make([]int, len(path)+1)
	copy(out, path)
	out[len(path)] = idx
	return out
}
