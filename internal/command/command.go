// ABOUTME: Structured command type shared by direct clients and the NL translator
// ABOUTME: Validates names and that parameters are plain JSON-shaped values

package command

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Validation errors
var (
	ErrEmptyName    = errors.New("command name is required")
	ErrInvalidValue = errors.New("parameter is not a JSON value")
)

// Command is a named instruction for the control endpoint.
type Command struct {
	Name       string         `json:"command"`
	Parameters map[string]any `json:"parameters"`
}

// New builds a Command, normalising a nil parameter map to an empty one.
func New(name string, params map[string]any) Command {
	if params == nil {
		params = map[string]any{}
	}
	return Command{Name: name, Parameters: params}
}

// Validate checks that the name is non-empty and every parameter value is a
// JSON scalar, a sequence, or a string-keyed mapping of such values.
func (c Command) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	for key, value := range c.Parameters {
		if err := validateValue(reflect.ValueOf(value)); err != nil {
			return fmt.Errorf("parameter %q: %w", key, err)
		}
	}
	return nil
}

func validateValue(v reflect.Value) error {
	if !v.IsValid() {
		// untyped nil -> JSON null
		return nil
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite number", ErrInvalidValue)
		}
		return nil

	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return validateValue(v.Elem())

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := validateValue(v.Index(i)); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		return nil

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: map keys must be strings", ErrInvalidValue)
		}
		iter := v.MapRange()
		for iter.Next() {
			if err := validateValue(iter.Value()); err != nil {
				return fmt.Errorf("key %q: %w", iter.Key().String(), err)
			}
		}
		return nil
	}

	return fmt.Errorf("%w: unsupported type %s", ErrInvalidValue, v.Type())
}
