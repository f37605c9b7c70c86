// Package port implements the node port contract for the Dropstage graph.
//
// Node inputs are mappings from port name to an ordered list of values; a
// value is either a primitive (number, string, boolean encoded as "T"/"F")
// or an object handle. Outputs map port names to a single value or a list.
//
// An empty-string sentinel in a list denotes "no input supplied" on optional
// multi-object ports. A port consumed as "exactly one" must contain exactly
// one element; a violation is an error, never a default.
package port

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dropstage/dropstage/pkg/errors"
)

// List is the ordered sequence of values wired into one port.
type List []any

// Map holds the full set of named ports for a node.
type Map map[string]List

// Get returns the list wired into the named port. A missing port is an empty
// list; nodes that require the port use One or NonEmpty instead.
func (m Map) Get(name string) List {
	return m[name]
}

// Empty reports whether the list carries the empty-string sentinel, meaning
// "no input supplied" for an optional multi-object port.
func (l List) Empty() bool {
	if len(l) == 0 {
		return true
	}
	s, ok := l[0].(string)
	return ok && s == ""
}

// One returns the single value on the named port.
// It fails with a PORT_ARITY error unless the port holds exactly one element.
func (m Map) One(name string) (any, error) {
	l := m[name]
	if len(l) != 1 {
		return nil, errors.New(errors.ErrCodePortArity,
			"port %q requires exactly 1 link, got %d", name, len(l))
	}
	return l[0], nil
}

// String returns the single value on the named port as a string.
func (m Map) String(name string) (string, error) {
	v, err := m.One(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.New(errors.ErrCodeValueConversion,
			"port %q: expected string, got %T", name, v)
	}
	return s, nil
}

// Float returns the single value on the named port converted to float64.
// Numeric strings are parsed; anything else is a VALUE_CONVERSION error.
func (m Map) Float(name string) (float64, error) {
	v, err := m.One(name)
	if err != nil {
		return 0, err
	}
	f, err := ToFloat(v)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeValueConversion, err,
			"port %q is not numeric", name)
	}
	return f, nil
}

// Int returns the single value on the named port converted to int.
func (m Map) Int(name string) (int, error) {
	f, err := m.Float(name)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// Bool returns the single value on the named port as a boolean.
// Booleans travel through ports encoded as "T"/"F"; native bools are also
// accepted.
func (m Map) Bool(name string) (bool, error) {
	v, err := m.One(name)
	if err != nil {
		return false, err
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch t {
		case "T":
			return true, nil
		case "F":
			return false, nil
		}
	}
	return false, errors.New(errors.ErrCodeValueConversion,
		"port %q: expected T/F, got %v", name, v)
}

// ToFloat converts a port value to float64.
func ToFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", t, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot convert %T to float", v)
}

// Resolution parses a resolution port value into a width/height pair.
// It accepts a pre-parsed pair ([2]int, []int, []float64) or the bracketed
// string form "[w,h]".
func Resolution(v any) (w, h int, err error) {
	switch t := v.(type) {
	case [2]int:
		return t[0], t[1], nil
	case []int:
		if len(t) == 2 {
			return t[0], t[1], nil
		}
	case []float64:
		if len(t) == 2 {
			return int(t[0]), int(t[1]), nil
		}
	case []any:
		if len(t) == 2 {
			fw, errW := ToFloat(t[0])
			fh, errH := ToFloat(t[1])
			if errW == nil && errH == nil {
				return int(fw), int(fh), nil
			}
		}
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimPrefix(s, "[")
		s = strings.TrimSuffix(s, "]")
		parts := strings.Split(s, ",")
		if len(parts) == 2 {
			pw, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
			ph, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
			if errW == nil && errH == nil {
				return pw, ph, nil
			}
		}
	}
	return 0, 0, errors.New(errors.ErrCodeValueConversion,
		"cannot parse resolution from %v", v)
}

// Vec3 parses a 3-component vector from a port value: either []float64 or
// the bracketed string form "[x,y,z]".
func Vec3(v any) ([3]float64, error) {
	switch t := v.(type) {
	case [3]float64:
		return t, nil
	case []float64:
		if len(t) == 3 {
			return [3]float64{t[0], t[1], t[2]}, nil
		}
	case []any:
		if len(t) == 3 {
			var out [3]float64
			for i, e := range t {
				f, err := ToFloat(e)
				if err != nil {
					return out, errors.Wrap(errors.ErrCodeValueConversion, err,
						"vector component %d", i)
				}
				out[i] = f
			}
			return out, nil
		}
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimPrefix(s, "[")
		s = strings.TrimSuffix(s, "]")
		parts := strings.Split(s, ",")
		if len(parts) == 3 {
			var out [3]float64
			for i, p := range parts {
				f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
				if err != nil {
					return out, errors.Wrap(errors.ErrCodeValueConversion, err,
						"vector component %d", i)
				}
				out[i] = f
			}
			return out, nil
		}
	}
	return [3]float64{}, errors.New(errors.ErrCodeValueConversion,
		"cannot parse vector from %v", v)
}
