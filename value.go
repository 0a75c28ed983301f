package etch

import "fmt"

// ValueKind tags the VM's runtime Value variant.
type ValueKind int

const (
	VNil ValueKind = iota
	VBool
	VChar
	VInt
	VFloat
	VString
	VArray
	VTable
	VEnum
	VSome
	VNone
	VOk
	VErr
	VRef
	VWeak
	VCoroutine
	VChannel
	VClosure
	VTypedesc
)

// Value is the tagged runtime value. Heap-shaped kinds (array/table/ref/
// weak/coroutine/channel) store an id into the Heap/Coroutine tables rather
// than an inline payload,len,cap}"
// design realized via heap object ids.
type Value struct {
	Kind ValueKind

	B bool
	C rune
	I int64
	F float64
	S string

	HeapID int // VArray, VTable, VRef, VWeak
	CoroID int // VCoroutine
	ChanID int // VChannel

	Boxed    *Value // VSome, VOk, VErr
	EnumName string
	EnumTag  string

	ClosureFn       int
	ClosureCaptures []Value
}

func NilValue() Value          { return Value{Kind: VNil} }
func BoolValue(b bool) Value   { return Value{Kind: VBool, B: b} }
func CharValue(c rune) Value   { return Value{Kind: VChar, C: c} }
func IntValue(i int64) Value   { return Value{Kind: VInt, I: i} }
func FloatValue(f float64) Value { return Value{Kind: VFloat, F: f} }
func StringValue(s string) Value { return Value{Kind: VString, S: s} }
func NoneValue() Value         { return Value{Kind: VNone} }
func SomeValue(v Value) Value  { return Value{Kind: VSome, Boxed: &v} }
func OkValue(v Value) Value    { return Value{Kind: VOk, Boxed: &v} }
func ErrValue(v Value) Value   { return Value{Kind: VErr, Boxed: &v} }
func RefValue(id int) Value    { return Value{Kind: VRef, HeapID: id} }
func WeakValue(id int) Value   { return Value{Kind: VWeak, HeapID: id} }
func CoroutineValue(id int) Value { return Value{Kind: VCoroutine, CoroID: id} }

func (v Value) IsTruthy() bool {
	switch v.Kind {
	case VBool:
		return v.B
	case VNil, VNone:
		return false
	default:
		return true
	}
}

// Equal implements value equality for scalar kinds, used for constant
// deduplication (program.go) and the `In`/`Eq` opcodes.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case VNil, VNone:
		return true
	case VBool:
		return v.B == o.B
	case VChar:
		return v.C == o.C
	case VInt:
		return v.I == o.I
	case VFloat:
		return v.F == o.F
	case VString:
		return v.S == o.S
	case VRef, VWeak:
		return v.HeapID == o.HeapID
	case VCoroutine:
		return v.CoroID == o.CoroID
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case VNil:
		return "nil"
	case VBool:
		return fmt.Sprintf("%v", v.B)
	case VChar:
		return string(v.C)
	case VInt:
		return fmt.Sprintf("%d", v.I)
	case VFloat:
		return fmt.Sprintf("%g", v.F)
	case VString:
		return v.S
	case VNone:
		return "none"
	case VSome:
		return fmt.Sprintf("some(%s)", v.Boxed)
	case VOk:
		return fmt.Sprintf("ok(%s)", v.Boxed)
	case VErr:
		return fmt.Sprintf("err(%s)", v.Boxed)
	case VRef:
		return fmt.Sprintf("ref(#%d)", v.HeapID)
	case VWeak:
		return fmt.Sprintf("weak(#%d)", v.HeapID)
	case VCoroutine:
		return fmt.Sprintf("coroutine(#%d)", v.CoroID)
	case VArray:
		return fmt.Sprintf("array(#%d)", v.HeapID)
	case VTable:
		return fmt.Sprintf("table(#%d)", v.HeapID)
	case VClosure:
		return fmt.Sprintf("closure(#%d)", v.ClosureFn)
	default:
		return "?"
	}
}
