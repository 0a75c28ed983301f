package etch

import (
	"fmt"
	"strings"
)

// TypeKind is the tag of the Type variant.
type TypeKind int

const (
	TVoid TypeKind = iota
	TBool
	TChar
	TInt
	TFloat
	TString
	TArray
	TTuple
	TOption
	TResult
	TRef
	TWeak
	TCoroutine
	TChannel
	TFunction
	TObject
	TEnum
	TUnion
	TUserDefined
	TGeneric
	TTypedesc
	TDistinct
)

// ObjectFieldType describes one field of an object(...) type.
type ObjectFieldType struct {
	Name        string
	Type        *Type
	DefaultInit bool
	Exported    bool
}

// EnumMemberType describes one member of an enum(...) type.
type EnumMemberType struct {
	Name   string
	IntVal int64
	StrVal string
}

// Type is the tagged variant representing every type in the language. It
// is an immutable value once constructed; distinct instances compare via
// Equals, not `==`, because object/union/function types carry slice
// fields.
type Type struct {
	Kind TypeKind

	// TArray / TOption / TResult / TRef / TWeak / TCoroutine / TChannel /
	// TDistinct
	Elem *Type

	// TTuple
	Elems []*Type

	// TFunction
	Params []*Type
	Ret    *Type

	// TObject / TEnum / TUnion / TUserDefined / TGeneric
	Name string

	// TObject
	Fields []ObjectFieldType

	// TEnum
	Members []EnumMemberType

	// TUnion
	Variants []*Type
}

func Void() *Type     { return &Type{Kind: TVoid} }
func Bool() *Type     { return &Type{Kind: TBool} }
func Char() *Type     { return &Type{Kind: TChar} }
func Int() *Type      { return &Type{Kind: TInt} }
func Float() *Type    { return &Type{Kind: TFloat} }
func StringTy() *Type { return &Type{Kind: TString} }
func Typedesc() *Type { return &Type{Kind: TTypedesc} }

func ArrayOf(elem *Type) *Type  { return &Type{Kind: TArray, Elem: elem} }
func OptionOf(elem *Type) *Type { return &Type{Kind: TOption, Elem: elem} }
func ResultOf(elem *Type) *Type { return &Type{Kind: TResult, Elem: elem} }
func RefOf(elem *Type) *Type    { return &Type{Kind: TRef, Elem: elem} }
func WeakOf(elem *Type) *Type   { return &Type{Kind: TWeak, Elem: elem} }
func CoroutineOf(elem *Type) *Type { return &Type{Kind: TCoroutine, Elem: elem} }
func ChannelOf(elem *Type) *Type   { return &Type{Kind: TChannel, Elem: elem} }
func TupleOf(elems ...*Type) *Type { return &Type{Kind: TTuple, Elems: elems} }
func FunctionOf(params []*Type, ret *Type) *Type {
	return &Type{Kind: TFunction, Params: params, Ret: ret}
}
func GenericNamed(name string) *Type { return &Type{Kind: TGeneric, Name: name} }
func UserDefinedNamed(name string) *Type { return &Type{Kind: TUserDefined, Name: name} }
func DistinctOf(name string, base *Type) *Type {
	return &Type{Kind: TDistinct, Name: name, Elem: base}
}

// NilRefType is the canonical nil type: ref(void).  It is
// assignable to any ref(T) or weak(T).
func NilRefType() *Type { return RefOf(Void()) }

func dedupVariants(vs []*Type) []*Type {
	var out []*Type
	for _, v := range vs {
		dup := false
		for _, o := range out {
			if o.Equals(v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

// UnionOf builds a deduplicated union type.
func UnionOf(variants ...*Type) *Type {
	return &Type{Kind: TUnion, Variants: dedupVariants(variants)}
}

// Equals performs structural equality, treating object/enum/union/user
// types as equal when their Name matches (nominal typing for those kinds).
func (t *Type) Equals(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TVoid, TBool, TChar, TInt, TFloat, TString, TTypedesc:
		return true
	case TArray, TOption, TResult, TRef, TWeak, TCoroutine, TChannel:
		return t.Elem.Equals(o.Elem)
	case TDistinct:
		return t.Name == o.Name
	case TTuple:
		if len(t.Elems) != len(o.Elems) {
			return false
		}
		for i := range t.Elems {
			if !t.Elems[i].Equals(o.Elems[i]) {
				return false
			}
		}
		return true
	case TFunction:
		if !t.Ret.Equals(o.Ret) || len(t.Params) != len(o.Params) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equals(o.Params[i]) {
				return false
			}
		}
		return true
	case TObject, TEnum, TUserDefined, TGeneric:
		return t.Name == o.Name
	case TUnion:
		if len(t.Variants) != len(o.Variants) {
			return false
		}
		for _, v := range t.Variants {
			found := false
			for _, ov := range o.Variants {
				if v.Equals(ov) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	return false
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case TVoid:
		return "void"
	case TBool:
		return "bool"
	case TChar:
		return "char"
	case TInt:
		return "int"
	case TFloat:
		return "float"
	case TString:
		return "string"
	case TTypedesc:
		return "typedesc"
	case TArray:
		return fmt.Sprintf("array[%s]", t.Elem)
	case TTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, ", "))
	case TOption:
		return fmt.Sprintf("option[%s]", t.Elem)
	case TResult:
		return fmt.Sprintf("result[%s]", t.Elem)
	case TRef:
		return fmt.Sprintf("ref[%s]", t.Elem)
	case TWeak:
		return fmt.Sprintf("weak[%s]", t.Elem)
	case TCoroutine:
		return fmt.Sprintf("coroutine[%s]", t.Elem)
	case TChannel:
		return fmt.Sprintf("channel[%s]", t.Elem)
	case TFunction:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		return fmt.Sprintf("fn(%s) -> %s", strings.Join(parts, ", "), t.Ret)
	case TObject:
		return t.Name
	case TEnum:
		return t.Name
	case TUnion:
		parts := make([]string, len(t.Variants))
		for i, v := range t.Variants {
			parts[i] = v.String()
		}
		return strings.Join(parts, " | ")
	case TUserDefined:
		return t.Name
	case TGeneric:
		return t.Name
	case TDistinct:
		return t.Name
	}
	return "?"
}

// IsRefKind reports whether values of this type are heap references whose
// lifetime is tracked by the compiler's reference-counting emission.
func (t *Type) IsRefKind() bool {
	return t != nil && (t.Kind == TRef || t.Kind == TWeak)
}

// IsScalarNumeric reports whether t is int or float.
func (t *Type) IsScalarNumeric() bool {
	return t != nil && (t.Kind == TInt || t.Kind == TFloat)
}

// Scope is a per-block environment mapping names to resolved types, used by
// both the analyzer (variable types) and the module resolver (user-defined
// types), which resolve by walking the scope chain outward.
type Scope struct {
	parent *Scope
	vars   map[string]*Type
	types  map[string]*Type
}

func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, vars: map[string]*Type{}, types: map[string]*Type{}}
}

func (s *Scope) DefineVar(name string, t *Type) {
	s.vars[name] = t
}

func (s *Scope) LookupVar(name string) (*Type, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if t, ok := sc.vars[name]; ok {
			return t, true
		}
	}
	return nil, false
}

func (s *Scope) DefineType(name string, t *Type) {
	s.types[name] = t
}

func (s *Scope) LookupType(name string) (*Type, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if t, ok := sc.types[name]; ok {
			return t, true
		}
	}
	return nil, false
}

// Child opens a nested lexical scope.
func (s *Scope) Child() *Scope {
	return NewScope(s)
}

// assignableTo implements the assignability rules:
// identity, union membership, ref(void)->ref(T)/weak(T), distinct<->base
// via explicit cast only (not here), object->union containing it,
// generic-bind.
func assignableTo(from, to *Type) bool {
	if from == nil || to == nil {
		return false
	}
	if from.Equals(to) {
		return true
	}
	// ref(void) (canonical nil) assignable to any ref/weak.
	if from.Kind == TRef && from.Elem.Kind == TVoid && (to.Kind == TRef || to.Kind == TWeak) {
		return true
	}
	// object -> union containing it.
	if to.Kind == TUnion {
		for _, v := range to.Variants {
			if assignableTo(from, v) {
				return true
			}
		}
	}
	// generic-bind: a generic type parameter accepts anything; the
	// monomorphizer is responsible for recording the concrete binding.
	if to.Kind == TGeneric || from.Kind == TGeneric {
		return true
	}
	// covariant element assignability for ref/weak/array (structural,
	// conservative: require elem equality except through the rules
	// above, to avoid unsound covariant ref aliasing).
	return false
}
