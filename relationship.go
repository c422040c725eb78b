package dalcore

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/kent-id/dalcore/internal/ordering"
	"github.com/kent-id/dalcore/types"
	"github.com/shopspring/decimal"
)

// RelationshipRule links the rows of a child result into a list property of
// the matching parent rows. Children match parents where the child's
// ChildColumn equals the parent's ParentColumn.
//
// When ParentTable and ChildTable are both zero, the i-th rule of a sequence
// links table i to table i+1.
type RelationshipRule struct {
	ParentTable    int    `yaml:"parentTable"`
	ChildTable     int    `yaml:"childTable"`
	ParentColumn   string `yaml:"parentColumn"`
	ChildColumn    string `yaml:"childColumn"`
	ParentProperty string `yaml:"parentProperty"`
}

func (r RelationshipRule) resolve(i int) RelationshipRule {
	if r.ParentTable == 0 && r.ChildTable == 0 {
		r.ParentTable, r.ChildTable = i, i+1
	}
	return r
}

func (r RelationshipRule) String() string {
	return fmt.Sprintf("%d.%s -> %d.%s (%s)", r.ParentTable, r.ParentColumn, r.ChildTable, r.ChildColumn, r.ParentProperty)
}

func ruleErrorf(code error, i int, r RelationshipRule, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Code:     code,
		Model:    fmt.Sprintf("rule %d", i),
		Property: r.ParentProperty,
		Message:  fmt.Sprintf(format, args...),
	}
}

// table is one result of an assembly, static or synthesized.
type table struct {
	result types.TabularResult
	desc   *ModelDescriptor
	shape  *RuntimeShape
	// children lists the rules whose parent is this table.
	children []int
}

// link is a validated rule bound to its parent property.
type link struct {
	rule      RelationshipRule
	parentCol int
	childCol  int
	// prop is set for static parents, shapeIndex for synthesized ones.
	prop       *PropertyMeta
	shapeIndex int
	elemType   reflect.Type
}

// Assemble populates every result and stitches child rows into their parents'
// list properties following rules. modelTypes[i] is the model of results[i];
// a nil or missing entry synthesizes a runtime shape and yields *Record values.
// The returned lists are parallel to results.
//
// All wiring is validated before any row is populated.
func (e *Engine) Assemble(ctx context.Context, results []types.TabularResult, rules []RelationshipRule, modelTypes []reflect.Type) ([][]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resolved := make([]RelationshipRule, len(rules))
	for i, r := range rules {
		r = r.resolve(i)
		if r.ParentTable < 0 || r.ParentTable >= len(results) || r.ChildTable < 0 || r.ChildTable >= len(results) {
			return nil, ruleErrorf(ErrRelationshipMisconfigured, i, r,
				"table index out of range: %d results", len(results))
		}
		if r.ParentTable == r.ChildTable {
			return nil, ruleErrorf(ErrRelationshipMisconfigured, i, r,
				"parent and child are the same table %d", r.ParentTable)
		}
		resolved[i] = r
	}

	order, err := ordering.Sort(len(resolved), func(i int) []int {
		var deps []int
		for j, r := range resolved {
			if j != i && r.ParentTable == resolved[i].ChildTable {
				deps = append(deps, j)
			}
		}
		return deps
	}, func(a, b int) bool {
		if resolved[a].ChildTable != resolved[b].ChildTable {
			return resolved[a].ChildTable > resolved[b].ChildTable
		}
		return a < b
	})
	if err != nil {
		return nil, &ConfigurationError{Code: ErrRelationshipMisconfigured, Message: "cyclic relationship rules: " + err.Error()}
	}

	tables := make([]*table, len(results))
	for i, res := range results {
		tables[i] = &table{result: res}
		if i < len(modelTypes) && modelTypes[i] != nil {
			if tables[i].desc, err = e.Describe(modelTypes[i]); err != nil {
				return nil, err
			}
		}
	}
	for i, r := range resolved {
		tables[r.ParentTable].children = append(tables[r.ParentTable].children, i)
	}
	for i := range tables {
		if err := e.synthesizeTable(tables, resolved, i); err != nil {
			return nil, err
		}
	}

	links := make([]link, len(resolved))
	for i, r := range resolved {
		if links[i], err = bindRule(tables, i, r); err != nil {
			return nil, err
		}
	}

	lists := make([][]any, len(tables))
	for i, t := range tables {
		if t.desc != nil {
			lists[i], err = e.Populate(ctx, t.desc.Type, t.result)
		} else {
			lists[i], err = e.populateShape(ctx, t.shape, t.result)
		}
		if err != nil {
			return nil, fmt.Errorf("table %d: %w", i, err)
		}
	}

	for _, i := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stitch(links[i], tables, lists)
	}
	LogDebugf("assembled %d results with %d relationship rules", len(results), len(rules))
	return lists, nil
}

// synthesizeTable builds the shape of a dynamic table after the shapes of its
// dynamic children. The rule graph is acyclic at this point.
func (e *Engine) synthesizeTable(tables []*table, rules []RelationshipRule, i int) error {
	t := tables[i]
	if t.desc != nil || t.shape != nil {
		return nil
	}
	var lists []ChildList
	seen := make(map[string]int)
	for _, ri := range t.children {
		r := rules[ri]
		if t.result.ColumnIndex(r.ParentProperty) >= 0 {
			return ruleErrorf(ErrParentPropertyNotList, ri, r,
				"%q is a column of table %d", r.ParentProperty, i)
		}
		if err := e.synthesizeTable(tables, rules, r.ChildTable); err != nil {
			return err
		}
		child := tables[r.ChildTable]
		cl := ChildList{Name: r.ParentProperty, Shape: child.shape}
		if child.desc != nil {
			cl = ChildList{Name: r.ParentProperty, Type: child.desc.Type}
		}
		key := strings.ToLower(r.ParentProperty)
		if prev, ok := seen[key]; ok {
			if lists[prev].Shape != cl.Shape || lists[prev].Type != cl.Type {
				return ruleErrorf(ErrRelationshipMisconfigured, ri, r,
					"%q of table %d already lists a different child type", r.ParentProperty, i)
			}
			continue
		}
		seen[key] = len(lists)
		lists = append(lists, cl)
	}
	s, err := e.Synthesize(t.result.Columns, lists...)
	if err != nil {
		return err
	}
	t.shape = s
	return nil
}

func bindRule(tables []*table, i int, r RelationshipRule) (link, error) {
	parent, child := tables[r.ParentTable], tables[r.ChildTable]
	l := link{rule: r, shapeIndex: -1}

	want := recordType
	if child.desc != nil {
		want = child.desc.Type
	}
	if parent.desc != nil {
		p, ok := findParentProperty(parent.desc, r.ParentProperty)
		if !ok {
			return l, ruleErrorf(ErrParentPropertyMissing, i, r, "%s has no property %q", parent.desc.Type, r.ParentProperty)
		}
		if p.Type.Kind() != reflect.Slice || p.Type.Elem().Kind() == reflect.Uint8 {
			return l, ruleErrorf(ErrParentPropertyNotList, i, r, "%s.%s is %s", parent.desc.Type, p.Name, p.Type)
		}
		elem := p.Type.Elem()
		base := elem
		if base.Kind() == reflect.Pointer {
			base = base.Elem()
		}
		if base != want {
			return l, ruleErrorf(ErrParentPropertyListIncorrectType, i, r,
				"%s.%s holds %s, child table %d is %s", parent.desc.Type, p.Name, elem, r.ChildTable, want)
		}
		l.prop, l.elemType = p, elem
	} else {
		sp, idx, ok := parent.shape.Property(r.ParentProperty)
		if !ok {
			return l, ruleErrorf(ErrParentPropertyMissing, i, r, "runtime shape of table %d has no property %q", r.ParentTable, r.ParentProperty)
		}
		if sp.Child == nil {
			return l, ruleErrorf(ErrParentPropertyNotList, i, r, "%q of table %d is not a list", r.ParentProperty, r.ParentTable)
		}
		l.shapeIndex, l.elemType = idx, sp.Child.elemType()
	}

	if l.parentCol = parent.result.ColumnIndex(r.ParentColumn); l.parentCol < 0 {
		return l, ruleErrorf(ErrRelationshipColumnMissing, i, r, "table %d has no column %q", r.ParentTable, r.ParentColumn)
	}
	if l.childCol = child.result.ColumnIndex(r.ChildColumn); l.childCol < 0 {
		return l, ruleErrorf(ErrRelationshipColumnMissing, i, r, "table %d has no column %q", r.ChildTable, r.ChildColumn)
	}
	return l, nil
}

// findParentProperty resolves name by Go field name, then case-insensitively,
// then by sql name.
func findParentProperty(d *ModelDescriptor, name string) (*PropertyMeta, bool) {
	if p, ok := d.Property(name); ok {
		return p, true
	}
	for _, p := range d.Properties {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	for _, p := range d.Properties {
		if strings.EqualFold(p.SQLName, name) {
			return p, true
		}
	}
	return nil, false
}

// stitch assigns to every parent the children whose key matches, in child
// row order. Parents without children receive an empty list.
func stitch(l link, tables []*table, lists [][]any) {
	r := l.rule
	byKey := make(map[any][]int)
	for j, row := range tables[r.ChildTable].result.Rows {
		if l.childCol >= len(row) {
			continue
		}
		if k, ok := relationKey(row[l.childCol]); ok {
			byKey[k] = append(byKey[k], j)
		}
	}

	children := lists[r.ChildTable]
	sliceType := reflect.SliceOf(l.elemType)
	byValue := l.elemType.Kind() != reflect.Pointer
	for pi, row := range tables[r.ParentTable].result.Rows {
		var matches []int
		if l.parentCol < len(row) {
			if k, ok := relationKey(row[l.parentCol]); ok {
				matches = byKey[k]
			}
		}
		list := reflect.MakeSlice(sliceType, 0, len(matches))
		for _, j := range matches {
			cv := reflect.ValueOf(children[j])
			if byValue {
				cv = cv.Elem()
			}
			list = reflect.Append(list, cv)
		}

		parent := lists[r.ParentTable][pi]
		if l.prop != nil {
			fieldByIndexAlloc(reflect.ValueOf(parent).Elem(), l.prop.index).Set(list)
		} else {
			parent.(*Record).values[l.shapeIndex] = list.Interface()
		}
	}
}

type timeKey int64

// relationKey normalizes a raw value for equality across column types.
// Nulls never match.
func relationKey(raw any) (any, bool) {
	if isNull(raw) {
		return nil, false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case bool:
		return v, true
	case time.Time:
		return timeKey(v.UnixNano()), true
	case decimal.Decimal:
		if v.IsInteger() && v.BigInt().IsInt64() {
			return v.IntPart(), true
		}
		return "decimal:" + v.String(), true
	}

	rv := reflect.ValueOf(raw)
	switch k := rv.Kind(); {
	case isIntKind(k):
		return rv.Int(), true
	case isUintKind(k):
		u := rv.Uint()
		if u > math.MaxInt64 {
			return u, true
		}
		return int64(u), true
	case isFloatKind(k):
		f := rv.Float()
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f), true
		}
		return f, true
	case k == reflect.String:
		return rv.String(), true
	}
	if rv.Type().Comparable() {
		return raw, true
	}
	return fmt.Sprint(raw), true
}

// AssembleAsync runs Assemble on a new goroutine and calls done exactly once
// with its outcome.
func (e *Engine) AssembleAsync(ctx context.Context, results []types.TabularResult, rules []RelationshipRule, modelTypes []reflect.Type, done func([][]any, error)) {
	go func() {
		done(e.Assemble(ctx, results, rules, modelTypes))
	}()
}

// Populate maps result into new *T values on e.
func Populate[T any](ctx context.Context, e *Engine, result types.TabularResult) ([]*T, error) {
	items, err := e.Populate(ctx, reflect.TypeOf((*T)(nil)).Elem(), result)
	if err != nil {
		return nil, err
	}
	return ListOf[T](items), nil
}

// ListOf converts one list returned by Assemble or Populate into []*T.
// Items of another type are skipped.
func ListOf[T any](items []any) []*T {
	out := make([]*T, 0, len(items))
	for _, it := range items {
		if v, ok := it.(*T); ok {
			out = append(out, v)
		}
	}
	return out
}
