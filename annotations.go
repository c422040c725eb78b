package dalcore

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/kent-id/dalcore/types"
	"github.com/shopspring/decimal"
)

// Struct tag keys read by the descriptor builder.
//
//	ID      int       `dal:"customer_id"`
//	Total   int       `dal:",output"`
//	Cache   string    `dal:"-"`
//	Region  string    `dal_default:"eu"`
//	Created string    `dal_read:"2006-01-02"`
//	Pattern string    `dal_write:"%%%s%%"`
const (
	tagName        = "dal"
	tagDefault     = "dal_default"
	tagReadFormat  = "dal_read"
	tagWriteFormat = "dal_write"
)

// Annotation is the typed form of the per-property markers. It lets a model
// supply values that struct tags cannot express, such as typed defaults.
type Annotation struct {
	Name        string
	Ignore      bool
	Output      bool
	Default     any
	ReadFormat  string
	WriteFormat string
}

// PropertyAnnotator is implemented by models that declare annotations in code.
// Keys are Go field names. Annotation values override struct tags.
type PropertyAnnotator interface {
	DALAnnotations() map[string]Annotation
}

var (
	timeType        = reflect.TypeOf(time.Time{})
	decimalType     = reflect.TypeOf(decimal.Decimal{})
	bytesType       = reflect.TypeOf([]byte(nil))
	scannerType     = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType      = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	tableValuerType = reflect.TypeOf((*types.TableValuer)(nil)).Elem()
	annotatorType   = reflect.TypeOf((*PropertyAnnotator)(nil)).Elem()
	recordType      = reflect.TypeOf(Record{})
)

type propertyKind uint8

const (
	kindScalar propertyKind = iota
	kindNested
	kindChildCollection
	kindTableValue
	kindCollection
	kindUnsupported
)

func (k propertyKind) String() string {
	switch k {
	case kindScalar:
		return "scalar"
	case kindNested:
		return "nested model"
	case kindChildCollection:
		return "child collection"
	case kindTableValue:
		return "table value"
	case kindCollection:
		return "collection"
	default:
		return "unsupported"
	}
}

// classify decides how a field of type t takes part in mapping.
func classify(t reflect.Type) propertyKind {
	if t.Implements(tableValuerType) || reflect.PointerTo(t).Implements(tableValuerType) {
		return kindTableValue
	}
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	switch base.Kind() {
	case reflect.Struct:
		if isScalarStruct(base) {
			return kindScalar
		}
		if base == recordType {
			return kindUnsupported
		}
		return kindNested
	case reflect.Slice:
		if base.Elem().Kind() == reflect.Uint8 {
			return kindScalar
		}
		if t.Kind() == reflect.Pointer {
			return kindCollection
		}
		if isModelElem(base.Elem()) {
			return kindChildCollection
		}
		return kindCollection
	case reflect.Array, reflect.Map:
		return kindCollection
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Pointer:
		return kindUnsupported
	default:
		return kindScalar
	}
}

// isModelElem reports whether a list element type can hold populated rows.
func isModelElem(elem reflect.Type) bool {
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if elem == recordType {
		return true
	}
	return elem.Kind() == reflect.Struct && !isScalarStruct(elem)
}

// isScalarStruct reports struct types that map to a single column.
func isScalarStruct(t reflect.Type) bool {
	if t == timeType || t == decimalType {
		return true
	}
	return reflect.PointerTo(t).Implements(scannerType) || t.Implements(valuerType)
}

func isStringType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.String
}

// fieldTag is the parsed annotation of one struct field.
type fieldTag struct {
	name        string
	explicit    bool
	ignore      bool
	output      bool
	hasDefault  bool
	defaultRaw  string
	defaultVal  any
	typedDflt   bool
	readFormat  string
	writeFormat string
}

// parseFieldTag supports "-", "name", ",output", ",ignore", "name,output".
func parseFieldTag(sf reflect.StructField) fieldTag {
	var ft fieldTag
	tag, ok := sf.Tag.Lookup(tagName)
	if ok {
		if tag == "-" {
			ft.ignore = true
		} else {
			parts := strings.Split(tag, ",")
			if name := strings.TrimSpace(parts[0]); name != "" {
				ft.name = name
				ft.explicit = true
			}
			for _, opt := range parts[1:] {
				switch strings.TrimSpace(opt) {
				case "output":
					ft.output = true
				case "ignore":
					ft.ignore = true
				}
			}
		}
	}
	if v, ok := sf.Tag.Lookup(tagDefault); ok {
		ft.hasDefault = true
		ft.defaultRaw = v
	}
	ft.readFormat = sf.Tag.Get(tagReadFormat)
	ft.writeFormat = sf.Tag.Get(tagWriteFormat)
	return ft
}

// apply overrides tag values with a code annotation.
func (ft *fieldTag) apply(a Annotation) {
	if a.Name != "" {
		ft.name = a.Name
		ft.explicit = true
	}
	ft.ignore = ft.ignore || a.Ignore
	ft.output = ft.output || a.Output
	if a.Default != nil {
		ft.hasDefault = true
		ft.typedDflt = true
		ft.defaultVal = a.Default
	}
	if a.ReadFormat != "" {
		ft.readFormat = a.ReadFormat
	}
	if a.WriteFormat != "" {
		ft.writeFormat = a.WriteFormat
	}
}

func annotationsOf(t reflect.Type) map[string]Annotation {
	if !t.Implements(annotatorType) && !reflect.PointerTo(t).Implements(annotatorType) {
		return nil
	}
	return reflect.New(t).Interface().(PropertyAnnotator).DALAnnotations()
}

// resolveDefault returns the default as a value of the non-pointer field type.
func (ft *fieldTag) resolveDefault(t reflect.Type) (reflect.Value, error) {
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if ft.typedDflt {
		dv := reflect.ValueOf(ft.defaultVal)
		switch dv.Type() {
		case base:
			return dv, nil
		case t:
			if dv.IsNil() {
				return reflect.Value{}, fmt.Errorf("nil default for %s", t)
			}
			return dv.Elem(), nil
		}
		return reflect.Value{}, fmt.Errorf("default of type %s does not match %s", dv.Type(), t)
	}
	return parseDefault(ft.defaultRaw, base)
}

// parseDefault parses a tag default into a value of type t.
func parseDefault(raw string, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	switch t {
	case timeType:
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return reflect.Value{}, err
		}
		out.Set(reflect.ValueOf(ts))
		return out, nil
	case decimalType:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		out.Set(reflect.ValueOf(d))
		return out, nil
	}
	switch t.Kind() {
	case reflect.String:
		out.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetFloat(f)
	default:
		return reflect.Value{}, fmt.Errorf("defaults are not supported for %s", t)
	}
	return out, nil
}
