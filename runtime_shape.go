package dalcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/kent-id/dalcore/types"
)

// NoColumnsProperty names the placeholder property of a shape synthesized
// from a result without columns.
const NoColumnsProperty = "NoColumns"

// ChildList is a list property required on a synthesized shape. Exactly one of
// Shape (children are *Record) or Type (children are *Type) is set.
type ChildList struct {
	Name  string
	Shape *RuntimeShape
	Type  reflect.Type
}

// ShapeProperty is one property of a RuntimeShape: a scalar column, the
// NoColumns placeholder, or a child list.
type ShapeProperty struct {
	Name string
	// Type is the semantic column type; empty for child lists and the placeholder.
	Type        string
	Child       *ChildList
	Placeholder bool
}

// IsColumn reports whether p is backed by a result column.
func (p ShapeProperty) IsColumn() bool {
	return p.Child == nil && !p.Placeholder
}

// RuntimeShape is a schema synthesized from a result's columns, used in place
// of a model type. Shapes are immutable and shared through the engine cache.
type RuntimeShape struct {
	Columns    []types.Column
	Properties []ShapeProperty

	key   string
	index map[string]int
	fold  map[string]int
}

// Synthesize returns the cached shape for the ordered column signature plus
// the required child lists.
func (e *Engine) Synthesize(columns []types.Column, children ...ChildList) (*RuntimeShape, error) {
	key := e.shapeKey(columns, children)
	return e.shapes.get(key, func() (*RuntimeShape, error) {
		s, err := buildShape(key, columns, children)
		if err != nil {
			return nil, err
		}
		LogDebugf("synthesized runtime shape with %d columns and %d child lists", len(columns), len(children))
		return s, nil
	})
}

// ShapeOf synthesizes the shape of result without child lists.
func (e *Engine) ShapeOf(result types.TabularResult) (*RuntimeShape, error) {
	return e.Synthesize(result.Columns)
}

// shapeKey identifies typed child lists by reflect.Type identity, so distinct
// types sharing a name never share a shape.
func (e *Engine) shapeKey(columns []types.Column, children []ChildList) string {
	var b strings.Builder
	b.WriteString(types.TabularResult{Columns: columns}.Signature())
	for _, c := range children {
		b.WriteString("\x1e")
		b.WriteString(c.Name)
		b.WriteString("\x1d")
		switch {
		case c.Shape != nil:
			b.WriteString("{")
			b.WriteString(c.Shape.key)
			b.WriteString("}")
		case c.Type != nil:
			t := c.Type
			if t.Kind() == reflect.Pointer {
				t = t.Elem()
			}
			b.WriteString(t.String())
			b.WriteString("#")
			b.WriteString(strconv.FormatUint(e.typeID(t), 10))
		}
	}
	return b.String()
}

func buildShape(key string, columns []types.Column, children []ChildList) (*RuntimeShape, error) {
	s := &RuntimeShape{
		Columns: append([]types.Column(nil), columns...),
		key:     key,
		index:   make(map[string]int, len(columns)+len(children)+1),
		fold:    make(map[string]int, len(columns)+len(children)+1),
	}
	add := func(p ShapeProperty) {
		i := len(s.Properties)
		s.Properties = append(s.Properties, p)
		if _, ok := s.index[p.Name]; !ok {
			s.index[p.Name] = i
		}
		if _, ok := s.fold[strings.ToLower(p.Name)]; !ok {
			s.fold[strings.ToLower(p.Name)] = i
		}
	}
	for _, c := range columns {
		add(ShapeProperty{Name: c.Name, Type: c.Type})
	}
	if len(columns) == 0 {
		add(ShapeProperty{Name: NoColumnsProperty, Placeholder: true})
	}
	for i := range children {
		c := children[i]
		if c.Name == "" {
			return nil, &ConfigurationError{Code: ErrInvalidShape, Message: "child list without a name"}
		}
		if (c.Shape == nil) == (c.Type == nil) {
			return nil, &ConfigurationError{Code: ErrInvalidShape, Property: c.Name,
				Message: "child list needs exactly one of a shape or a type"}
		}
		if _, ok := s.fold[strings.ToLower(c.Name)]; ok {
			return nil, &ConfigurationError{Code: ErrInvalidShape, Property: c.Name,
				Message: fmt.Sprintf("child list %q collides with an existing property", c.Name)}
		}
		if c.Type != nil && c.Type.Kind() == reflect.Pointer {
			c.Type = c.Type.Elem()
		}
		add(ShapeProperty{Name: c.Name, Child: &c})
	}
	return s, nil
}

// Property returns the property named name: exact match first, then
// case-insensitive.
func (s *RuntimeShape) Property(name string) (ShapeProperty, int, bool) {
	i, ok := s.lookup(name)
	if !ok {
		return ShapeProperty{}, -1, false
	}
	return s.Properties[i], i, true
}

func (s *RuntimeShape) lookup(name string) (int, bool) {
	if i, ok := s.index[name]; ok {
		return i, true
	}
	i, ok := s.fold[strings.ToLower(name)]
	return i, ok
}

// elemType returns the slice element type of a child list: *Record or *T.
func (c *ChildList) elemType() reflect.Type {
	if c.Shape != nil {
		return reflect.PointerTo(recordType)
	}
	return reflect.PointerTo(c.Type)
}

// compileShape returns the cached routine that copies result columns into
// records of s.
func (e *Engine) compileShape(s *RuntimeShape, columns []string) (*PopulateRoutine, error) {
	claims := newColumnClaims(columns)
	sources := make([]int, len(s.Properties))
	for i, p := range s.Properties {
		sources[i] = -1
		if p.IsColumn() {
			sources[i] = claims.claim(p.Name)
		}
	}
	m := &columnMapping{ordinals: sources, nested: make([]*columnMapping, len(sources))}
	hash, n := m.key()
	return e.routines.get(routineKey{shape: s, hash: hash, n: n}, func() (*PopulateRoutine, error) {
		r := &PopulateRoutine{Shape: s, sources: sources}
		for _, ord := range sources {
			if ord+1 > r.width {
				r.width = ord + 1
			}
		}
		LogDebugf("compiled populate routine for runtime shape (mapping %x)", hash)
		return r, nil
	})
}

func (e *Engine) populateShape(ctx context.Context, s *RuntimeShape, result types.TabularResult) ([]any, error) {
	r, err := e.compileShape(s, result.ColumnNames())
	if err != nil {
		return nil, err
	}
	return e.populateRows(ctx, r, result.Rows, nil)
}

// Record is the generic ordered name/value record populated for a runtime shape.
type Record struct {
	shape  *RuntimeShape
	values []any
}

// NewRecord returns an empty record of s.
func NewRecord(s *RuntimeShape) *Record {
	return newRecord(s)
}

func newRecord(s *RuntimeShape) *Record {
	return &Record{shape: s, values: make([]any, len(s.Properties))}
}

// Shape returns the record's shape.
func (r *Record) Shape() *RuntimeShape {
	return r.shape
}

// Len returns the number of properties.
func (r *Record) Len() int {
	return len(r.values)
}

// Get returns the value of name (exact match first, then case-insensitive).
// Database nulls are reported as nil.
func (r *Record) Get(name string) (any, bool) {
	i, ok := r.shape.lookup(name)
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Value returns the value at property position i.
func (r *Record) Value(i int) any {
	return r.values[i]
}

// Set assigns name. Child list properties only accept slices of their
// element type.
func (r *Record) Set(name string, v any) error {
	i, ok := r.shape.lookup(name)
	if !ok {
		return fmt.Errorf("dalcore: record has no property %q", name)
	}
	if c := r.shape.Properties[i].Child; c != nil && v != nil {
		want := reflect.SliceOf(c.elemType())
		if reflect.TypeOf(v) != want {
			return fmt.Errorf("dalcore: child list %q must be %s, got %T", name, want, v)
		}
	}
	r.values[i] = v
	return nil
}

// Children returns the child records of a list property of synthesized
// children; nil when the property is unset or holds typed models.
func (r *Record) Children(name string) []*Record {
	v, _ := r.Get(name)
	children, _ := v.([]*Record)
	return children
}

// Map copies the record into a map. Child record lists become []map[string]any.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for i, p := range r.shape.Properties {
		if _, dup := m[p.Name]; dup {
			continue
		}
		if children, ok := r.values[i].([]*Record); ok {
			list := make([]map[string]any, len(children))
			for j, c := range children {
				list[j] = c.Map()
			}
			m[p.Name] = list
			continue
		}
		m[p.Name] = r.values[i]
	}
	return m
}

// MarshalJSON writes the record as an object in property order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range r.shape.Properties {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, fmt.Errorf("dalcore: marshal %q: %w", p.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
