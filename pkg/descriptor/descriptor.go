// pkg/descriptor/descriptor.go
package descriptor

import (
	"fmt"
	"reflect"

	"github.com/apifunc/go-apifunc/pkg/codec"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// GenerationError reports a function whose shape cannot be expressed as a
// service contract. Surfaced at registration time, never retried.
type GenerationError struct {
	Func   string
	Reason string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("contract generation for %q: %s", e.Func, e.Reason)
}

// Param is one declared parameter of a registered transform.
type Param struct {
	Name string
	Type reflect.Type
}

// Descriptor identifies a registered transform: name, parameter list and
// return shape. Derived once at registration time; immutable thereafter.
type Descriptor struct {
	Name   string
	Params []Param
	Return reflect.Type

	// Binary marks byte-sequence output (e.g. a render-to-document stage);
	// the generated response field becomes bytes instead of string.
	Binary bool

	hasErr bool
	fn     reflect.Value
}

// Describe introspects fn and builds its Descriptor. Parameter names are
// explicit because Go reflection does not carry them; when omitted, a single
// parameter is exposed as one opaque "data" field and multiple parameters
// are numbered p1..pN.
//
// fn must be a non-variadic func with at least one parameter returning either
// (T) or (T, error).
func Describe(name string, fn any, paramNames ...string) (*Descriptor, error) {
	if name == "" {
		return nil, &GenerationError{Func: name, Reason: "function name required"}
	}
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, &GenerationError{Func: name, Reason: "not a function"}
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, &GenerationError{Func: name, Reason: "variadic parameters unsupported"}
	}
	if t.NumIn() == 0 {
		return nil, &GenerationError{Func: name, Reason: "function must accept at least one parameter"}
	}
	switch t.NumOut() {
	case 1:
		if t.Out(0) == errType {
			return nil, &GenerationError{Func: name, Reason: "function must return a value"}
		}
	case 2:
		if t.Out(1) != errType {
			return nil, &GenerationError{Func: name, Reason: "second result must be error"}
		}
	default:
		return nil, &GenerationError{Func: name, Reason: fmt.Sprintf("unsupported result count %d", t.NumOut())}
	}

	if len(paramNames) > 0 && len(paramNames) != t.NumIn() {
		return nil, &GenerationError{
			Func:   name,
			Reason: fmt.Sprintf("%d parameter names for %d parameters", len(paramNames), t.NumIn()),
		}
	}

	params := make([]Param, t.NumIn())
	for i := range params {
		pn := ""
		if len(paramNames) > 0 {
			pn = paramNames[i]
		} else if t.NumIn() == 1 {
			pn = "data"
		} else {
			pn = fmt.Sprintf("p%d", i+1)
		}
		if pn == "" {
			return nil, &GenerationError{Func: name, Reason: fmt.Sprintf("empty name for parameter %d", i+1)}
		}
		params[i] = Param{Name: pn, Type: t.In(i)}
	}

	return &Descriptor{
		Name:   name,
		Params: params,
		Return: t.Out(0),
		Binary: t.Out(0) == reflect.TypeOf([]byte(nil)),
		hasErr: t.NumOut() == 2,
		fn:     v,
	}, nil
}

// MustDescribe is Describe for static registration tables.
func MustDescribe(name string, fn any, paramNames ...string) *Descriptor {
	d, err := Describe(name, fn, paramNames...)
	if err != nil {
		panic(err)
	}
	return d
}

// Call applies the input dispatch policy and invokes the function:
//   - one declared parameter + mapping input: the whole mapping is the argument
//   - multiple declared parameters + mapping input: destructured by key
//   - anything else: verbatim as the sole argument
func (d *Descriptor) Call(input any) (any, error) {
	m, isMap := input.(map[string]any)

	var args []reflect.Value
	switch {
	case len(d.Params) == 1:
		a, err := coerce(input, d.Params[0].Type)
		if err != nil {
			return nil, fmt.Errorf("%s(%s): %w", d.Name, d.Params[0].Name, err)
		}
		args = []reflect.Value{a}
	case isMap:
		args = make([]reflect.Value, len(d.Params))
		for i, p := range d.Params {
			raw, ok := m[p.Name]
			if !ok {
				return nil, fmt.Errorf("%s: missing parameter %q", d.Name, p.Name)
			}
			a, err := coerce(raw, p.Type)
			if err != nil {
				return nil, fmt.Errorf("%s(%s): %w", d.Name, p.Name, err)
			}
			args[i] = a
		}
	default:
		return nil, fmt.Errorf("%s: %d parameters declared but input is %T", d.Name, len(d.Params), input)
	}

	res := d.fn.Call(args)
	if d.hasErr {
		if e, _ := res[1].Interface().(error); e != nil {
			return nil, e
		}
	}
	return res[0].Interface(), nil
}

// coerce adapts an opaque stage value to the declared parameter type.
func coerce(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(t) && rv.Kind() != reflect.String && t.Kind() != reflect.String {
		return rv.Convert(t), nil
	}
	// String boundary: wire fields are strings, parameters may not be.
	if s, ok := v.(string); ok {
		decoded := codec.DecodeOpaque(s)
		dv := reflect.ValueOf(decoded)
		if dv.IsValid() && dv.Type().AssignableTo(t) {
			return dv, nil
		}
		if t.Kind() == reflect.String {
			return rv.Convert(t), nil
		}
		return reflect.Value{}, fmt.Errorf("string value not decodable into %v", t)
	}
	if t.Kind() == reflect.String {
		s, err := codec.EncodeOpaque(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(s), nil
	}
	return reflect.Value{}, fmt.Errorf("value type %v not assignable to %v", rv.Type(), t)
}
