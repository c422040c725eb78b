package dalcore

import (
	"context"
	"fmt"
	"reflect"

	"github.com/kent-id/dalcore/types"
	"golang.org/x/sync/errgroup"
)

// minRowsPerWorker keeps small results on the calling goroutine.
const minRowsPerWorker = 64

// Initializer is implemented by models that set their own defaults when
// constructed. Init is called on every instance the engine allocates, before
// mapped columns are assigned.
type Initializer interface {
	Init()
}

type routineKey struct {
	t     reflect.Type
	shape *RuntimeShape
	hash  uint64
	n     int
}

type fillStep func(root reflect.Value, row []any) error

// PopulateRoutine fills one instance from one raw row for a fixed column
// mapping. Routines are immutable and safe for concurrent use.
type PopulateRoutine struct {
	// Type is the model type; nil for runtime shapes.
	Type reflect.Type
	// Shape is the runtime shape; nil for model types.
	Shape *RuntimeShape

	steps   []fillStep
	sources []int
	width   int
}

// Compile returns the cached populate routine of t for the given column order.
func (e *Engine) Compile(t reflect.Type, columns []string) (*PopulateRoutine, error) {
	d, err := e.Describe(t)
	if err != nil {
		return nil, err
	}
	return e.compileMapping(newColumnMapping(d, columns))
}

func (e *Engine) compileMapping(m *columnMapping) (*PopulateRoutine, error) {
	hash, n := m.key()
	key := routineKey{t: m.desc.Type, hash: hash, n: n}
	return e.routines.get(key, func() (*PopulateRoutine, error) {
		r := &PopulateRoutine{Type: m.desc.Type}
		r.steps, r.width = compileSteps(m)
		LogDebugf("compiled populate routine for %s (%d steps, mapping %x)", m.desc.Type, len(r.steps), hash)
		return r, nil
	})
}

// compileSteps returns the fill steps of m and the row width they need.
func compileSteps(m *columnMapping) ([]fillStep, int) {
	model := m.desc.Type.String()
	width := 0
	steps := make([]fillStep, 0, len(m.ordinals))
	for i, p := range m.desc.Properties {
		if ord := m.ordinals[i]; ord >= 0 {
			steps = append(steps, columnStep(model, p, ord))
			if ord+1 > width {
				width = ord + 1
			}
		}
	}
	for i, p := range m.desc.Properties {
		sub := m.nested[i]
		if sub == nil || !sub.mapped() {
			continue
		}
		subSteps, subWidth := compileSteps(sub)
		steps = append(steps, nestedStep(p, subSteps))
		if subWidth > width {
			width = subWidth
		}
	}
	return steps, width
}

func columnStep(model string, p *PropertyMeta, ord int) fillStep {
	ft := p.Type
	index := p.index
	return func(root reflect.Value, row []any) error {
		raw := row[ord]
		if isNull(raw) {
			if !acceptsNull(ft) {
				return &ModelPropertyNotNullableError{Model: model, Property: p.Name, PropertyType: ft, Column: p.SQLName}
			}
		} else if p.ReadFormat != "" {
			raw = formatRead(raw, p.ReadFormat)
		}
		cv, err := coerce(raw, ft)
		if err != nil {
			return &ModelPropertyColumnMismatchError{
				ValueType:    reflect.TypeOf(raw),
				Model:        model,
				Property:     p.Name,
				PropertyType: ft,
				Column:       p.SQLName,
				Err:          err,
			}
		}
		fieldByIndexAlloc(root, index).Set(cv)
		return nil
	}
}

func nestedStep(p *PropertyMeta, sub []fillStep) fillStep {
	index := p.index
	return func(root reflect.Value, row []any) error {
		f := fieldByIndexAlloc(root, index)
		if f.Kind() == reflect.Pointer {
			if f.IsNil() {
				f.Set(newInstance(f.Type().Elem()))
			}
			f = f.Elem()
		}
		for _, step := range sub {
			if err := step(f, row); err != nil {
				return err
			}
		}
		return nil
	}
}

// newInstance allocates a *t and runs its Initializer.
func newInstance(t reflect.Type) reflect.Value {
	ptr := reflect.New(t)
	if in, ok := ptr.Interface().(Initializer); ok {
		in.Init()
	}
	return ptr
}

// New allocates an instance (*T or *Record) and fills it from row.
func (r *PopulateRoutine) New(row []any) (any, error) {
	if r.Shape != nil {
		rec := newRecord(r.Shape)
		if err := r.fillRecord(rec, row); err != nil {
			return nil, err
		}
		return rec, nil
	}
	ptr := newInstance(r.Type)
	if err := r.fill(ptr.Elem(), row); err != nil {
		return nil, err
	}
	return ptr.Interface(), nil
}

// Populate fills an existing instance (*T or *Record) from row.
func (r *PopulateRoutine) Populate(instance any, row []any) error {
	if r.Shape != nil {
		rec, ok := instance.(*Record)
		if !ok || rec == nil || rec.shape != r.Shape {
			return fmt.Errorf("dalcore: instance must be a *Record of the routine's shape, got %T", instance)
		}
		return r.fillRecord(rec, row)
	}
	root, err := structValue(instance, r.Type)
	if err != nil {
		return err
	}
	return r.fill(root, row)
}

func (r *PopulateRoutine) fill(root reflect.Value, row []any) error {
	if len(row) < r.width {
		return fmt.Errorf("dalcore: row has %d values, mapping of %s needs %d", len(row), r.Type, r.width)
	}
	for _, step := range r.steps {
		if err := step(root, row); err != nil {
			return err
		}
	}
	return nil
}

func (r *PopulateRoutine) fillRecord(rec *Record, row []any) error {
	if len(row) < r.width {
		return fmt.Errorf("dalcore: row has %d values, shape needs %d", len(row), r.width)
	}
	for i, ord := range r.sources {
		if ord < 0 {
			continue
		}
		v := row[ord]
		if types.IsDBNull(v) {
			v = nil
		}
		rec.values[i] = v
	}
	return nil
}

// populateRows builds one instance per row, spreading row ranges over at most
// Options.Parallelism goroutines. after runs on every instance once it is filled.
func (e *Engine) populateRows(ctx context.Context, r *PopulateRoutine, rows [][]any, after func(any)) ([]any, error) {
	out := make([]any, len(rows))
	fill := func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			v, err := r.New(rows[i])
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			if after != nil {
				after(v)
			}
			out[i] = v
		}
		return nil
	}

	p := e.opts.parallelism()
	if p == 1 || len(rows) < p*minRowsPerWorker {
		if err := fill(0, len(rows)); err != nil {
			return nil, err
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p)
	chunk := (len(rows) + p - 1) / p
	for lo := 0; lo < len(rows); lo += chunk {
		lo, hi := lo, min(lo+chunk, len(rows))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fill(lo, hi)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Populate maps every row of result into a new *T (t being T or *T). A nil t
// synthesizes a runtime shape from the result and returns *Record values.
func (e *Engine) Populate(ctx context.Context, t reflect.Type, result types.TabularResult) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t == nil {
		shape, err := e.Synthesize(result.Columns)
		if err != nil {
			return nil, err
		}
		return e.populateShape(ctx, shape, result)
	}

	d, err := e.Describe(t)
	if err != nil {
		return nil, err
	}
	columns := result.ColumnNames()
	r, err := e.compileMapping(newColumnMapping(d, columns))
	if err != nil {
		return nil, err
	}

	var after func(any)
	if e.opts.PopulateDefaults && d.hasDefaults {
		present := columnNameSet(columns)
		after = func(v any) {
			applyDefaults(reflect.ValueOf(v).Elem(), d, present)
		}
	}
	return e.populateRows(ctx, r, result.Rows, after)
}

type dataMapper struct {
	engine    *Engine
	modelType reflect.Type
}

// DataMapper provides abstraction to convert a TabularResult to arbitrary user-defined struct
type DataMapper interface {
	FromTabularResult(ctx context.Context, input types.TabularResult) ([]interface{}, error)
}

// NewMapperFor creates new DataMapper for given reflect.Type.
// The model is described and validated here, before any result is read.
//
// Example:
//
// mapper, err := engine.NewMapperFor(reflect.TypeOf(MyStruct{}))
func (e *Engine) NewMapperFor(modelType reflect.Type) (DataMapper, error) {
	if _, err := e.Describe(modelType); err != nil {
		return nil, err
	}
	return &dataMapper{engine: e, modelType: modelType}, nil
}

// NewMapperFor creates a DataMapper on DefaultEngine().
func NewMapperFor(modelType reflect.Type) (DataMapper, error) {
	return DefaultEngine().NewMapperFor(modelType)
}

// FromTabularResult converts every row of input into a new *T.
func (m *dataMapper) FromTabularResult(ctx context.Context, input types.TabularResult) ([]interface{}, error) {
	return m.engine.Populate(ctx, m.modelType, input)
}
