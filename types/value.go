package types

type dbNull struct{}

func (dbNull) String() string { return "DBNull" }

// DBNull is the raw value representing SQL NULL. It is distinct from a column
// being absent from the result and from a Go nil.
var DBNull = dbNull{}

// IsDBNull reports whether v is the database null marker.
func IsDBNull(v any) bool {
	_, ok := v.(dbNull)
	return ok
}

// Direction of a prepared parameter.
type Direction int

const (
	Input Direction = iota
	Output
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return "unknown"
	}
}

// Parameter is one prepared query parameter handed to the query-execution collaborator.
type Parameter struct {
	Name      string
	Value     any
	Direction Direction
	// Size is a hint for variable-length values; -1 means unbounded.
	Size int
}

// TableValuer is implemented by property types that can be sent as a
// table-valued parameter.
type TableValuer interface {
	TableValue() (TabularResult, error)
}
