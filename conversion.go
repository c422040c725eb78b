package dalcore

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/kent-id/dalcore/types"
	"github.com/shopspring/decimal"
)

var (
	errNullValue    = errors.New("null value")
	errTypeMismatch = errors.New("type mismatch")
	errOverflow     = errors.New("value out of range")
)

// isNull reports a database null or a Go nil.
func isNull(raw any) bool {
	return raw == nil || types.IsDBNull(raw)
}

// nillable reports whether a value of type t can hold null.
func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return true
	}
	return false
}

// acceptsNull reports whether a null can be stored in type t: nillable types
// and sql.Scanner implementations, which receive the nil.
func acceptsNull(t reflect.Type) bool {
	return nillable(t) || reflect.PointerTo(t).Implements(scannerType)
}

// coerce converts raw to a value of exactly type t. Pointer destinations are
// unwrapped, converted and re-wrapped. Strings never convert to non-string types.
func coerce(raw any, t reflect.Type) (reflect.Value, error) {
	if isNull(raw) {
		switch {
		case nillable(t):
			return reflect.Zero(t), nil
		case reflect.PointerTo(t).Implements(scannerType):
			return scan(nil, t)
		}
		return reflect.Value{}, errNullValue
	}

	rv := reflect.ValueOf(raw)
	rt := rv.Type()
	if rt == t {
		return rv, nil
	}

	if t.Kind() == reflect.Pointer {
		inner, err := coerce(raw, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(inner)
		return ptr, nil
	}

	if reflect.PointerTo(t).Implements(scannerType) {
		return scan(raw, t)
	}

	if t == decimalType {
		return toDecimal(rv)
	}
	if rt == decimalType && isNumberKind(t.Kind()) {
		return fromDecimal(raw.(decimal.Decimal), t)
	}

	switch {
	case isNumberKind(rt.Kind()) && isNumberKind(t.Kind()):
		return convertNumber(rv, t)
	case rt.Kind() == reflect.Bool && t.Kind() == reflect.Bool,
		rt.Kind() == reflect.String && t.Kind() == reflect.String:
		return rv.Convert(t), nil
	case rt.Kind() == reflect.Slice && t.Kind() == reflect.Slice &&
		rt.Elem().Kind() == reflect.Uint8 && t.Elem().Kind() == reflect.Uint8:
		return rv.Convert(t), nil
	case rt.Kind() == reflect.Struct && t.Kind() == reflect.Struct && rt.ConvertibleTo(t) && rt == timeType:
		return rv.Convert(t), nil
	case rt.AssignableTo(t):
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out, nil
	}
	return reflect.Value{}, errTypeMismatch
}

func scan(raw any, t reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(t)
	if err := ptr.Interface().(sql.Scanner).Scan(raw); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %v", errTypeMismatch, err)
	}
	return ptr.Elem(), nil
}

func isIntKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumberKind(k reflect.Kind) bool {
	return isIntKind(k) || isUintKind(k) || isFloatKind(k)
}

// convertNumber converts between numeric kinds, refusing to truncate.
func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	src := rv.Kind()
	dst := t.Kind()
	switch {
	case isIntKind(src):
		n := rv.Int()
		switch {
		case isIntKind(dst):
			if out.OverflowInt(n) {
				return reflect.Value{}, errOverflow
			}
			out.SetInt(n)
		case isUintKind(dst):
			if n < 0 || out.OverflowUint(uint64(n)) {
				return reflect.Value{}, errOverflow
			}
			out.SetUint(uint64(n))
		default:
			out.SetFloat(float64(n))
		}
	case isUintKind(src):
		u := rv.Uint()
		switch {
		case isIntKind(dst):
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return reflect.Value{}, errOverflow
			}
			out.SetInt(int64(u))
		case isUintKind(dst):
			if out.OverflowUint(u) {
				return reflect.Value{}, errOverflow
			}
			out.SetUint(u)
		default:
			out.SetFloat(float64(u))
		}
	default:
		f := rv.Float()
		switch {
		case isFloatKind(dst):
			if out.OverflowFloat(f) {
				return reflect.Value{}, errOverflow
			}
			out.SetFloat(f)
		case math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f):
			return reflect.Value{}, errTypeMismatch
		case isIntKind(dst):
			if f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
				return reflect.Value{}, errOverflow
			}
			out.SetInt(int64(f))
		default:
			if f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
				return reflect.Value{}, errOverflow
			}
			out.SetUint(uint64(f))
		}
	}
	return out, nil
}

func toDecimal(rv reflect.Value) (reflect.Value, error) {
	var d decimal.Decimal
	switch k := rv.Kind(); {
	case isIntKind(k):
		d = decimal.NewFromInt(rv.Int())
	case isUintKind(k):
		u := rv.Uint()
		if u <= math.MaxInt64 {
			d = decimal.NewFromInt(int64(u))
		} else {
			d = decimal.RequireFromString(strconv.FormatUint(u, 10))
		}
	case isFloatKind(k):
		d = decimal.NewFromFloat(rv.Float())
	default:
		return reflect.Value{}, errTypeMismatch
	}
	return reflect.ValueOf(d), nil
}

func fromDecimal(d decimal.Decimal, t reflect.Type) (reflect.Value, error) {
	if isFloatKind(t.Kind()) {
		out := reflect.New(t).Elem()
		f := d.InexactFloat64()
		if out.OverflowFloat(f) {
			return reflect.Value{}, errOverflow
		}
		out.SetFloat(f)
		return out, nil
	}
	if !d.IsInteger() {
		return reflect.Value{}, errTypeMismatch
	}
	if isUintKind(t.Kind()) {
		if d.Sign() < 0 || d.BigInt().BitLen() > 64 {
			return reflect.Value{}, errOverflow
		}
		return convertNumber(reflect.ValueOf(d.BigInt().Uint64()), t)
	}
	if !d.BigInt().IsInt64() {
		return reflect.Value{}, errOverflow
	}
	return convertNumber(reflect.ValueOf(d.IntPart()), t)
}

// formatRead renders raw through a read format. Time values take the format as
// a layout, everything else as a fmt verb string.
func formatRead(raw any, format string) string {
	switch v := raw.(type) {
	case time.Time:
		return v.Format(format)
	case *time.Time:
		return v.Format(format)
	}
	return fmt.Sprintf(format, raw)
}
