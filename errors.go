package dalcore

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Configuration error codes. They are raised once, when a model, mapping or
// relationship set is first described, never while populating a row.
var (
	ErrInvalidModel                    = errors.New("dalcore: invalid model type")
	ErrNameCollision                   = errors.New("dalcore: sql name collision")
	ErrNameRedeclared                  = errors.New("dalcore: sql name redeclared by override")
	ErrOutputCollision                 = errors.New("dalcore: output property shares sql name")
	ErrFormatPlacement                 = errors.New("dalcore: format on non-string property")
	ErrDefaultType                     = errors.New("dalcore: default value type mismatch")
	ErrInvalidOutput                   = errors.New("dalcore: output property must be scalar")
	ErrInvalidCollection               = errors.New("dalcore: collection property cannot be mapped")
	ErrUnsupportedProperty             = errors.New("dalcore: unsupported property type")
	ErrRecursiveModel                  = errors.New("dalcore: nested model recurs in its ancestor chain")
	ErrInvalidShape                    = errors.New("dalcore: invalid runtime shape")
	ErrRelationshipMisconfigured       = errors.New("dalcore: relationship misconfigured")
	ErrRelationshipColumnMissing       = errors.New("dalcore: relationship column missing")
	ErrParentPropertyMissing           = errors.New("dalcore: parent property missing")
	ErrParentPropertyNotList           = errors.New("dalcore: parent property is not a list")
	ErrParentPropertyListIncorrectType = errors.New("dalcore: parent property list has incorrect element type")
)

// ErrCoercion matches every runtime coercion error raised while populating a row.
var ErrCoercion = errors.New("dalcore: coercion failed")

// ConfigurationError reports a model or relationship wiring problem. Code is
// one of the Err* sentinels above and is matched by errors.Is.
type ConfigurationError struct {
	Code     error
	Model    string
	Property string
	Message  string
}

func (e *ConfigurationError) Error() string {
	var prefix []string
	if e.Model != "" {
		prefix = append(prefix, "["+e.Model+"]")
	}
	if e.Property != "" {
		prefix = append(prefix, e.Property)
	}
	msg := e.Code.Error()
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	if len(prefix) > 0 {
		return strings.Join(prefix, " ") + ": " + msg
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Code
}

func configErrorf(code error, model reflect.Type, property string, format string, args ...any) *ConfigurationError {
	name := ""
	if model != nil {
		name = model.String()
	}
	return &ConfigurationError{
		Code:     code,
		Model:    name,
		Property: property,
		Message:  fmt.Sprintf(format, args...),
	}
}

// ModelPropertyColumnMismatchError is raised when a raw column value cannot be
// converted to the declared type of the destination property.
type ModelPropertyColumnMismatchError struct {
	ValueType    reflect.Type
	Model        string
	Property     string
	PropertyType reflect.Type
	Column       string
	Err          error
}

func (e *ModelPropertyColumnMismatchError) Error() string {
	msg := fmt.Sprintf("dalcore: cannot assign value of type %s from column %q to %s.%s of type %s",
		typeName(e.ValueType), e.Column, e.Model, e.Property, typeName(e.PropertyType))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ModelPropertyColumnMismatchError) Is(target error) bool {
	return target == ErrCoercion
}

func (e *ModelPropertyColumnMismatchError) Unwrap() error {
	return e.Err
}

// ModelPropertyNotNullableError is raised when a null is read for a property
// whose type cannot hold one.
type ModelPropertyNotNullableError struct {
	Model        string
	Property     string
	PropertyType reflect.Type
	Column       string
}

func (e *ModelPropertyNotNullableError) Error() string {
	return fmt.Sprintf("dalcore: column %q is null but %s.%s of type %s is not nullable",
		e.Column, e.Model, e.Property, typeName(e.PropertyType))
}

func (e *ModelPropertyNotNullableError) Is(target error) bool {
	return target == ErrCoercion
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
