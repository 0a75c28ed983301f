package etch

import (
	"fmt"
	"math"
)

// execValueOp handles every instruction not already dispatched inline by
// the fetch loop in vm.go: arithmetic, comparisons, logical ops, and
// (falling through to execRefOp) heap/table/array/global operations.
// Generic forms perform a runtime tag check and int/float promotion;
// Int/Float-suffixed and `*I` immediate forms assume the
// compiler/optimizer already proved operand kinds and skip the check.
func (vm *VM) execValueOp(ins Instruction, regs []Value) error {
	switch ins.Op {
	case OpAdd:
		return vm.binArith(ins, regs, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b }, true)
	case OpSub:
		return vm.binArith(ins, regs, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b }, false)
	case OpMul:
		return vm.binArith(ins, regs, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b }, false)
	case OpDiv:
		return vm.binDiv(ins, regs)
	case OpMod:
		return vm.binMod(ins, regs)

	case OpAddInt:
		regs[ins.A] = IntValue(regs[ins.B].I + regs[ins.C].I)
	case OpSubInt:
		regs[ins.A] = IntValue(regs[ins.B].I - regs[ins.C].I)
	case OpMulInt:
		regs[ins.A] = IntValue(regs[ins.B].I * regs[ins.C].I)
	case OpDivInt:
		if regs[ins.C].I == 0 {
			return RuntimeError{Kind: RuntimeErrDivByZero, Message: "integer division by zero"}
		}
		regs[ins.A] = IntValue(regs[ins.B].I / regs[ins.C].I)
	case OpModInt:
		if regs[ins.C].I == 0 {
			return RuntimeError{Kind: RuntimeErrDivByZero, Message: "integer modulo by zero"}
		}
		regs[ins.A] = IntValue(regs[ins.B].I % regs[ins.C].I)

	case OpAddFloat:
		regs[ins.A] = FloatValue(regs[ins.B].F + regs[ins.C].F)
	case OpSubFloat:
		regs[ins.A] = FloatValue(regs[ins.B].F - regs[ins.C].F)
	case OpMulFloat:
		regs[ins.A] = FloatValue(regs[ins.B].F * regs[ins.C].F)
	case OpDivFloat:
		regs[ins.A] = FloatValue(regs[ins.B].F / regs[ins.C].F)
	case OpModFloat:
		regs[ins.A] = FloatValue(math.Mod(regs[ins.B].F, regs[ins.C].F))

	case OpAddI:
		regs[ins.A] = intImmResult(regs[ins.B], int64(ins.C), func(a, b int64) int64 { return a + b })
	case OpSubI:
		regs[ins.A] = intImmResult(regs[ins.B], int64(ins.C), func(a, b int64) int64 { return a - b })
	case OpMulI:
		regs[ins.A] = intImmResult(regs[ins.B], int64(ins.C), func(a, b int64) int64 { return a * b })
	case OpDivI:
		if ins.C == 0 {
			return RuntimeError{Kind: RuntimeErrDivByZero, Message: "integer division by zero"}
		}
		regs[ins.A] = intImmResult(regs[ins.B], int64(ins.C), func(a, b int64) int64 { return a / b })
	case OpModI:
		if ins.C == 0 {
			return RuntimeError{Kind: RuntimeErrDivByZero, Message: "integer modulo by zero"}
		}
		regs[ins.A] = intImmResult(regs[ins.B], int64(ins.C), func(a, b int64) int64 { return a % b })

	case OpPow:
		regs[ins.A] = FloatValue(math.Pow(regs[ins.B].F, regs[ins.C].F))
	case OpUnm:
		v := regs[ins.B]
		if v.Kind == VFloat {
			regs[ins.A] = FloatValue(-v.F)
		} else {
			regs[ins.A] = IntValue(-v.I)
		}
	case OpNot:
		regs[ins.A] = BoolValue(!regs[ins.B].IsTruthy())
	case OpAnd:
		regs[ins.A] = BoolValue(regs[ins.B].IsTruthy() && regs[ins.C].IsTruthy())
	case OpOr:
		regs[ins.A] = BoolValue(regs[ins.B].IsTruthy() || regs[ins.C].IsTruthy())

	case OpEq:
		regs[ins.A] = BoolValue(regs[ins.B].Equal(regs[ins.C]))
	case OpLt:
		return vm.cmpLess(ins, regs, false)
	case OpLe:
		return vm.cmpLess(ins, regs, true)
	case OpEqInt, OpEqFloat:
		regs[ins.A] = BoolValue(regs[ins.B].Equal(regs[ins.C]))
	case OpLtInt:
		regs[ins.A] = BoolValue(regs[ins.B].I < regs[ins.C].I)
	case OpLeInt:
		regs[ins.A] = BoolValue(regs[ins.B].I <= regs[ins.C].I)
	case OpLtFloat:
		regs[ins.A] = BoolValue(regs[ins.B].F < regs[ins.C].F)
	case OpLeFloat:
		regs[ins.A] = BoolValue(regs[ins.B].F <= regs[ins.C].F)

	default:
		return vm.execRefOp(ins, regs)
	}
	return nil
}

func intImmResult(v Value, imm int64, f func(a, b int64) int64) Value {
	return IntValue(f(v.I, imm))
}

// binArith implements the Add/Sub/Mul promotion rule: string
// concatenation and array concatenation for Add, numeric promotion to
// float when either operand is float, otherwise integer arithmetic.
func (vm *VM) binArith(ins Instruction, regs []Value, fi func(a, b int64) int64, ff func(a, b float64) float64, allowConcat bool) error {
	l, r := regs[ins.B], regs[ins.C]
	if allowConcat && l.Kind == VString && r.Kind == VString {
		regs[ins.A] = StringValue(l.S + r.S)
		return nil
	}
	if allowConcat && l.Kind == VArray && r.Kind == VArray {
		return vm.concatArrays(ins, regs)
	}
	if l.Kind == VFloat || r.Kind == VFloat {
		regs[ins.A] = FloatValue(ff(asFloat(l), asFloat(r)))
		return nil
	}
	regs[ins.A] = IntValue(fi(l.I, r.I))
	return nil
}

func (vm *VM) binDiv(ins Instruction, regs []Value) error {
	l, r := regs[ins.B], regs[ins.C]
	if l.Kind == VFloat || r.Kind == VFloat {
		regs[ins.A] = FloatValue(asFloat(l) / asFloat(r))
		return nil
	}
	if r.I == 0 {
		return RuntimeError{Kind: RuntimeErrDivByZero, Message: "integer division by zero"}
	}
	regs[ins.A] = IntValue(l.I / r.I) // truncating toward zero
	return nil
}

func (vm *VM) binMod(ins Instruction, regs []Value) error {
	l, r := regs[ins.B], regs[ins.C]
	if l.Kind == VFloat || r.Kind == VFloat {
		regs[ins.A] = FloatValue(math.Mod(asFloat(l), asFloat(r)))
		return nil
	}
	if r.I == 0 {
		return RuntimeError{Kind: RuntimeErrDivByZero, Message: "integer modulo by zero"}
	}
	regs[ins.A] = IntValue(l.I % r.I)
	return nil
}

func (vm *VM) cmpLess(ins Instruction, regs []Value, orEqual bool) error {
	l, r := regs[ins.B], regs[ins.C]
	var less, equal bool
	switch {
	case l.Kind == VString && r.Kind == VString:
		less, equal = l.S < r.S, l.S == r.S
	case l.Kind == VFloat || r.Kind == VFloat:
		lf, rf := asFloat(l), asFloat(r)
		less, equal = lf < rf, lf == rf
	case l.Kind == VInt && r.Kind == VInt:
		less, equal = l.I < r.I, l.I == r.I
	default:
		return fmt.Errorf("etch: comparison between incompatible kinds %v and %v", l.Kind, r.Kind)
	}
	if orEqual {
		regs[ins.A] = BoolValue(less || equal)
	} else {
		regs[ins.A] = BoolValue(less)
	}
	return nil
}

func asFloat(v Value) float64 {
	if v.Kind == VFloat {
		return v.F
	}
	return float64(v.I)
}
