package etch

import "fmt"

// stepOf resolves a for-range step operand: stepReg < 0 means no step
// expression was given, per compiler_stmt.go's compileFor, which leaves
// C at -1 in that case and defaults to a step of 1.
func stepOf(regs []Value, stepReg int) int64 {
	if stepReg < 0 {
		return 1
	}
	return regs[stepReg].I
}

// forIntDone reports whether a range-for loop's counter has already run
// past its bound, accounting for step direction, so ForIntPrep can skip
// a body that would never execute (e.g. `for i in 5:0`).
func forIntDone(idx, hi, step int64) bool {
	if step >= 0 {
		return idx >= hi
	}
	return idx <= hi
}

func (vm *VM) arrayLen(v Value) (int, error) {
	switch v.Kind {
	case VArray:
		o, ok := vm.heap.Get(v.HeapID)
		if !ok {
			return 0, RuntimeError{Kind: RuntimeErrNilDeref, Message: "iterate over freed array"}
		}
		return len(o.Array), nil
	case VString:
		return len(v.S), nil
	default:
		return 0, fmt.Errorf("etch: value of kind %v is not iterable", v.Kind)
	}
}

func (vm *VM) arrayGet(v Value, idx int64) (Value, error) {
	switch v.Kind {
	case VArray:
		o, ok := vm.heap.Get(v.HeapID)
		if !ok {
			return Value{}, RuntimeError{Kind: RuntimeErrNilDeref, Message: "index into freed array"}
		}
		if idx < 0 || int(idx) >= len(o.Array) {
			return Value{}, RuntimeError{Kind: RuntimeErrOutOfBounds, Message: fmt.Sprintf("index %d out of bounds (len %d)", idx, len(o.Array))}
		}
		return o.Array[idx], nil
	case VString:
		if idx < 0 || int(idx) >= len(v.S) {
			return Value{}, RuntimeError{Kind: RuntimeErrOutOfBounds, Message: fmt.Sprintf("index %d out of bounds (len %d)", idx, len(v.S))}
		}
		return CharValue(rune(v.S[idx])), nil
	default:
		return Value{}, fmt.Errorf("etch: value of kind %v is not indexable", v.Kind)
	}
}

// evalCmpJmp implements the CmpJmp family of fused compare-and-branch
// instructions. These are not emitted by the current compiler (whose
// If/While lowering uses a separate Lt/Le/Eq followed by a plain Test),
// but are implemented here so a future optimizer pass that fuses
// comparison+branch pairs has a working target.
func (vm *VM) evalCmpJmp(ins Instruction, regs []Value) (bool, error) {
	l, r := regs[ins.A], regs[ins.B]
	var less, equal bool
	switch ins.Op {
	case OpCmpJmpInt:
		less, equal = l.I < r.I, l.I == r.I
	case OpCmpJmpFloat:
		less, equal = l.F < r.F, l.F == r.F
	case OpLtJmp:
		less = l.I < r.I
		return less, nil
	default:
		switch {
		case l.Kind == VString && r.Kind == VString:
			less, equal = l.S < r.S, l.S == r.S
		case l.Kind == VFloat || r.Kind == VFloat:
			less, equal = asFloat(l) < asFloat(r), asFloat(l) == asFloat(r)
		default:
			less, equal = l.I < r.I, l.I == r.I
		}
	}
	switch CmpOp(ins.C) {
	case CmpEq:
		return equal, nil
	case CmpNe:
		return !equal, nil
	case CmpLt:
		return less, nil
	case CmpLe:
		return less || equal, nil
	case CmpGt:
		return !less && !equal, nil
	case CmpGe:
		return !less, nil
	default:
		return false, fmt.Errorf("etch: unknown comparison operator %d", ins.C)
	}
}
