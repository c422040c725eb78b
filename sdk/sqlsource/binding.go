package sqlsource

import (
	"database/sql"
	"reflect"

	"github.com/kent-id/dalcore/types"
)

// Binding holds driver arguments for prepared parameters. Output parameters
// are bound through sql.Out and read back with Outputs after execution.
type Binding struct {
	params []types.Parameter
	args   []any
	dests  map[int]*any
}

// Bind converts params into named driver arguments. types.DBNull becomes nil.
func Bind(params []types.Parameter) *Binding {
	b := &Binding{params: params, args: make([]any, 0, len(params)), dests: make(map[int]*any)}
	for i, p := range params {
		v := p.Value
		if types.IsDBNull(v) {
			v = nil
		}
		if p.Direction == types.Output {
			dest := new(any)
			*dest = v
			b.dests[i] = dest
			b.args = append(b.args, sql.Named(p.Name, sql.Out{Dest: dest, In: true}))
			continue
		}
		b.args = append(b.args, sql.Named(p.Name, v))
	}
	return b
}

// Args returns the driver arguments in parameter order.
func (b *Binding) Args() []any {
	return b.args
}

// Outputs returns the Output parameters carrying the values the driver wrote.
// A nil value is reported as types.DBNull.
func (b *Binding) Outputs() []types.Parameter {
	var out []types.Parameter
	for i, p := range b.params {
		dest, ok := b.dests[i]
		if !ok {
			continue
		}
		v := *dest
		if v == nil || (reflect.ValueOf(v).Kind() == reflect.Pointer && reflect.ValueOf(v).IsNil()) {
			v = types.DBNull
		}
		p.Value = v
		out = append(out, p)
	}
	return out
}
