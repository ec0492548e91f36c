package saga

import (
	"encoding/json"
	"sort"
)

type paramSource int

const (
	sourceCall paramSource = iota
	sourceResult
)

// Param describes where one named input of a step comes from.
//
// A call parameter resolves from the saga's call arguments by name, then falls back
// to its default. A result parameter resolves to the committed result of an earlier
// step, or nil when that step has not committed.
type Param struct {
	name       string
	source     paramSource
	ref        StepRef
	def        any
	hasDefault bool
}

// Arg declares a parameter bound from the saga's call arguments.
func Arg(name string) Param {
	return Param{name: name, source: sourceCall}
}

// Default declares a call parameter with a fallback value.
func Default(name string, value any) Param {
	return Arg(name).Default(value)
}

// Result declares a parameter bound to the result of an earlier step.
func Result(name string, ref StepRef) Param {
	return Param{name: name, source: sourceResult, ref: ref}
}

// Default returns a copy of p that falls back to value when no call argument matches.
func (p Param) Default(value any) Param {
	p.def = value
	p.hasDefault = true
	return p
}

// Name returns the parameter name.
func (p Param) Name() string { return p.name }

// Args are the call-time arguments of one saga invocation.
type Args struct {
	Positional []any          `json:"args"`
	Named      map[string]any `json:"kwargs"`
}

// Positional builds Args from positional values only.
func Positional(values ...any) Args {
	return Args{Positional: values}
}

// Named builds Args from keyword values only.
func Named(values map[string]any) Args {
	return Args{Named: values}
}

func (a Args) clone() Args {
	out := Args{}
	if a.Positional != nil {
		out.Positional = append([]any(nil), a.Positional...)
	}
	if a.Named != nil {
		out.Named = make(map[string]any, len(a.Named))
		for k, v := range a.Named {
			out.Named[k] = v
		}
	}
	return out
}

// expand maps the call arguments onto declared parameter names.
// Positional values fill params in order; named values win over positional ones.
func (a Args) expand(params []string) map[string]any {
	values := make(map[string]any, len(a.Positional)+len(a.Named))
	for i, v := range a.Positional {
		if i >= len(params) {
			break
		}
		values[params[i]] = v
	}
	for k, v := range a.Named {
		values[k] = v
	}
	return values
}

// Inputs holds the bound values handed to a declaration, step or rollback.
type Inputs struct {
	values map[string]any
	args   []any
}

func newInputs(values map[string]any, args []any) Inputs {
	return Inputs{values: values, args: args}
}

// Lookup returns the value bound to name.
func (in Inputs) Lookup(name string) (any, bool) {
	v, ok := in.values[name]
	return v, ok
}

// Get returns the value bound to name, or nil.
func (in Inputs) Get(name string) any {
	return in.values[name]
}

// Arg returns the i-th positional call argument, or nil when out of range.
func (in Inputs) Arg(i int) any {
	if i < 0 || i >= len(in.args) {
		return nil
	}
	return in.args[i]
}

// Len returns the number of bound names.
func (in Inputs) Len() int { return len(in.values) }

// Names returns the bound names in sorted order.
func (in Inputs) Names() []string {
	names := make([]string, 0, len(in.values))
	for name := range in.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Value returns the input bound to name converted to T.
//
// Values restored from a snapshot come back in their JSON shape (numbers as float64,
// structs as maps), so when a direct type assertion fails Value re-decodes the value
// into T. The zero value is returned when the name is unbound or cannot be converted.
func Value[T any](in Inputs, name string) T {
	var zero T
	raw, ok := in.values[name]
	if !ok || raw == nil {
		return zero
	}
	if v, ok := raw.(T); ok {
		return v
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return zero
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero
	}
	return out
}

// bind resolves every declared param of one step.
//
// Resolution order: result marker, call argument by name, default. A call param
// with no match and no default is a BindingError.
func bind(step string, params []Param, call map[string]any, results map[string]any) (Inputs, error) {
	values := make(map[string]any, len(params))
	for _, p := range params {
		switch p.source {
		case sourceResult:
			values[p.name] = results[p.ref.name]
		default:
			if v, ok := call[p.name]; ok {
				values[p.name] = v
				continue
			}
			if p.hasDefault {
				values[p.name] = p.def
				continue
			}
			return Inputs{}, &BindingError{Step: step, Param: p.name}
		}
	}
	return newInputs(values, nil), nil
}
