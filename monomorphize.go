package etch

import "sort"

// Monomorphizer tracks, per generic function, the distinct type-parameter
// bindings observed at call sites and assigns each a mangled instance name
// the bytecode compiler emits exactly once.
type Monomorphizer struct {
	instances map[string]map[string][]*Type // fn name -> mangled key -> bound types
}

func NewMonomorphizer() *Monomorphizer {
	return &Monomorphizer{instances: map[string]map[string][]*Type{}}
}

// Bind registers a concrete instantiation and returns its mangled instance
// name, e.g. "max<int>".
func (m *Monomorphizer) Bind(fnName string, bindings []*Type) string {
	key := instanceKey(bindings)
	if m.instances[fnName] == nil {
		m.instances[fnName] = map[string][]*Type{}
	}
	m.instances[fnName][key] = bindings
	return fnName + "<" + key + ">"
}

func instanceKey(bindings []*Type) string {
	s := ""
	for i, b := range bindings {
		if i > 0 {
			s += ","
		}
		s += b.String()
	}
	return s
}

// Instances returns every mangled instance name for a generic function,
// deterministically ordered so bytecode emission order is stable across
// compiles, which is what keeps the compile cache idempotent.
func (m *Monomorphizer) Instances(fnName string) []string {
	keys := make([]string, 0, len(m.instances[fnName]))
	for k := range m.instances[fnName] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fnName + "<" + k + ">"
	}
	return out
}

// bindGenerics walks a generic function's declared parameter types against
// concrete call-site argument types and produces the ordered list of bound
// types for each declared generic name.
func bindGenerics(generics []string, params []*Type, argTypes []*Type) []*Type {
	bound := map[string]*Type{}
	for i, p := range params {
		if i >= len(argTypes) {
			break
		}
		bindOne(p, argTypes[i], bound)
	}
	out := make([]*Type, len(generics))
	for i, g := range generics {
		if t, ok := bound[g]; ok {
			out[i] = t
		} else {
			out[i] = Void()
		}
	}
	return out
}

func bindOne(param, arg *Type, bound map[string]*Type) {
	if param == nil || arg == nil {
		return
	}
	if param.Kind == TGeneric {
		if _, ok := bound[param.Name]; !ok {
			bound[param.Name] = arg
		}
		return
	}
	switch param.Kind {
	case TArray, TOption, TResult, TRef, TWeak, TCoroutine, TChannel:
		if arg.Elem != nil {
			bindOne(param.Elem, arg.Elem, bound)
		}
	}
}
