package etch

import (
	"fmt"
	"strconv"
)

// execRefOp handles every instruction execValueOp's arithmetic switch
// doesn't own: arrays, tables, refs, option/result wrapping, casts,
// membership tests, globals, the *Store comparison family, and the
// fused multi-op forms the optimizer produces.
func (vm *VM) execRefOp(ins Instruction, regs []Value) error {
	switch ins.Op {
	case OpNewArray:
		o := vm.heap.Alloc(HeapArray)
		o.Array = make([]Value, ins.Bx)
		for i := range o.Array {
			o.Array[i] = NilValue()
		}
		regs[ins.A] = Value{Kind: VArray, HeapID: o.ID}

	case OpGetIndex:
		v, err := vm.arrayGet(regs[ins.B], regs[ins.C].I)
		if err != nil {
			return err
		}
		regs[ins.A] = v
	case OpGetIndexI:
		// immediate-index form: ins.C is a literal index, not a register.
		v, err := vm.arrayGet(regs[ins.B], int64(ins.C))
		if err != nil {
			return err
		}
		regs[ins.A] = v
	case OpGetIndexInt, OpGetIndexFloat:
		v, err := vm.arrayGet(regs[ins.B], regs[ins.C].I)
		if err != nil {
			return err
		}
		regs[ins.A] = v

	case OpSetIndex:
		return vm.arraySet(regs[ins.A], regs[ins.B].I, regs[ins.C])
	case OpSetIndexI:
		return vm.arraySet(regs[ins.A], int64(ins.B), regs[ins.C])
	case OpSetIndexInt, OpSetIndexFloat:
		return vm.arraySet(regs[ins.A], regs[ins.B].I, regs[ins.C])

	case OpSlice:
		return vm.sliceArray(ins, regs)
	case OpConcatArray:
		return vm.concatArrays(ins, regs)
	case OpLen:
		n, err := vm.arrayLen(regs[ins.B])
		if err != nil {
			return err
		}
		regs[ins.A] = IntValue(int64(n))

	case OpNewTable:
		o := vm.heap.Alloc(HeapTable)
		o.Table = map[string]Value{}
		o.TypeName = vm.prog.Constants[ins.Bx].S
		regs[ins.A] = Value{Kind: VTable, HeapID: o.ID}
	case OpGetField:
		return vm.getField(ins, regs)
	case OpSetField:
		return vm.setField(ins, regs)

	case OpNewRef:
		o := vm.heap.Alloc(HeapScalar)
		o.Scalar = NilValue()
		regs[ins.A] = RefValue(o.ID)
	case OpNewWeak:
		o := vm.heap.NewWeak(regs[ins.B].HeapID)
		regs[ins.A] = WeakValue(o.ID)
	case OpWeakToStrong:
		id, ok := vm.heap.WeakToStrong(regs[ins.B].HeapID)
		if !ok {
			regs[ins.A] = NoneValue()
		} else {
			regs[ins.A] = SomeValue(RefValue(id))
		}
	case OpIncRef:
		if isHeapKind(regs[ins.A].Kind) {
			vm.heap.IncRef(regs[ins.A].HeapID)
		}
	case OpDecRef:
		if isHeapKind(regs[ins.A].Kind) {
			vm.heap.DecRef(regs[ins.A].HeapID)
		}
	case OpSetRef:
		o, ok := vm.heap.Get(regs[ins.A].HeapID)
		if !ok {
			return RuntimeError{Kind: RuntimeErrNilDeref, Message: "set through freed ref"}
		}
		o.Scalar = regs[ins.B]

	case OpWrapSome:
		regs[ins.A] = SomeValue(regs[ins.B])
	case OpWrapOk:
		regs[ins.A] = OkValue(regs[ins.B])
	case OpWrapErr:
		regs[ins.A] = ErrValue(regs[ins.B])
	case OpUnwrapOption, OpUnwrapResult:
		if regs[ins.B].Boxed != nil {
			regs[ins.A] = *regs[ins.B].Boxed
		} else {
			regs[ins.A] = regs[ins.B]
		}
	case OpCast:
		return vm.castValue(ins, regs)
	case OpTestTag:
		regs[ins.A] = BoolValue(testTag(regs[ins.B], vm.prog.Constants[ins.Bx].S))

	case OpIn:
		in, err := vm.testIn(regs[ins.B], regs[ins.C])
		if err != nil {
			return err
		}
		regs[ins.A] = BoolValue(in)
	case OpNotIn:
		in, err := vm.testIn(regs[ins.B], regs[ins.C])
		if err != nil {
			return err
		}
		regs[ins.A] = BoolValue(!in)

	case OpInitGlobal:
		// Assigns only if absent, so a host that pre-seeds a global via
		// SetGlobal before running $init keeps its own value.
		name := vm.prog.Constants[ins.Bx].S
		if _, exists := vm.globals[name]; !exists {
			vm.globals[name] = regs[ins.A]
		}
	case OpGetGlobal:
		regs[ins.A] = vm.globals[vm.prog.Constants[ins.Bx].S]
	case OpSetGlobal:
		vm.globals[vm.prog.Constants[ins.Bx].S] = regs[ins.A]

	case OpEqStore:
		regs[ins.A] = BoolValue(regs[ins.B].Equal(regs[ins.C]))
	case OpNeStore:
		regs[ins.A] = BoolValue(!regs[ins.B].Equal(regs[ins.C]))
	case OpLtStore:
		return vm.cmpLess(Instruction{A: ins.A, B: ins.B, C: ins.C}, regs, false)
	case OpLeStore:
		return vm.cmpLess(Instruction{A: ins.A, B: ins.B, C: ins.C}, regs, true)

	case OpAddAdd, OpMulAdd, OpMulSub, OpSubSub, OpSubMul, OpDivAdd, OpAddSub, OpAddMul, OpSubDiv:
		return vm.execFusedArith(ins, regs)

	default:
		return fmt.Errorf("etch: unimplemented opcode %s", ins.Op)
	}
	return nil
}

func isHeapKind(k ValueKind) bool {
	return k == VArray || k == VTable || k == VRef || k == VWeak
}

func (vm *VM) arraySet(dst Value, idx int64, v Value) error {
	o, ok := vm.heap.Get(dst.HeapID)
	if !ok {
		return RuntimeError{Kind: RuntimeErrNilDeref, Message: "index into freed array"}
	}
	if idx < 0 || int(idx) >= len(o.Array) {
		return RuntimeError{Kind: RuntimeErrOutOfBounds, Message: fmt.Sprintf("index %d out of bounds (len %d)", idx, len(o.Array))}
	}
	o.Array[idx] = v
	return nil
}

func (vm *VM) sliceArray(ins Instruction, regs []Value) error {
	src := regs[ins.B]
	o, ok := vm.heap.Get(src.HeapID)
	if !ok {
		return RuntimeError{Kind: RuntimeErrNilDeref, Message: "slice of freed array"}
	}
	lo, hi := 0, len(o.Array)
	if ins.C >= 0 {
		lo = int(regs[ins.C].I)
	}
	if ins.Bx >= 0 {
		hi = int(regs[ins.Bx].I)
	}
	if lo < 0 || hi > len(o.Array) || lo > hi {
		return RuntimeError{Kind: RuntimeErrOutOfBounds, Message: fmt.Sprintf("slice [%d:%d] out of bounds (len %d)", lo, hi, len(o.Array))}
	}
	out := vm.heap.Alloc(HeapArray)
	out.Array = append([]Value(nil), o.Array[lo:hi]...)
	regs[ins.A] = Value{Kind: VArray, HeapID: out.ID}
	return nil
}

func (vm *VM) concatArrays(ins Instruction, regs []Value) error {
	l, ok1 := vm.heap.Get(regs[ins.B].HeapID)
	r, ok2 := vm.heap.Get(regs[ins.C].HeapID)
	if !ok1 || !ok2 {
		return RuntimeError{Kind: RuntimeErrNilDeref, Message: "concat of freed array"}
	}
	out := vm.heap.Alloc(HeapArray)
	out.Array = append(append([]Value(nil), l.Array...), r.Array...)
	regs[ins.A] = Value{Kind: VArray, HeapID: out.ID}
	return nil
}

func (vm *VM) getField(ins Instruction, regs []Value) error {
	x := regs[ins.B]
	name := vm.prog.Constants[ins.Bx].S
	o, ok := vm.heap.Get(x.HeapID)
	if !ok {
		return RuntimeError{Kind: RuntimeErrNilDeref, Message: fmt.Sprintf("field %q of freed object", name)}
	}
	if name == "@" {
		regs[ins.A] = o.Scalar
		return nil
	}
	regs[ins.A] = o.Table[name]
	return nil
}

func (vm *VM) setField(ins Instruction, regs []Value) error {
	x := regs[ins.A]
	name := vm.prog.Constants[ins.Bx].S
	o, ok := vm.heap.Get(x.HeapID)
	if !ok {
		return RuntimeError{Kind: RuntimeErrNilDeref, Message: fmt.Sprintf("field %q of freed object", name)}
	}
	if name == "@" {
		o.Scalar = regs[ins.B]
		return nil
	}
	if o.Table == nil {
		o.Table = map[string]Value{}
	}
	o.Table[name] = regs[ins.B]
	return nil
}

func testTag(v Value, tag string) bool {
	switch tag {
	case "some":
		return v.Kind == VSome
	case "none":
		return v.Kind == VNone
	case "ok":
		return v.Kind == VOk
	case "err":
		return v.Kind == VErr
	case "err_or_none":
		return v.Kind == VErr || v.Kind == VNone
	case "_":
		return true
	}
	if v.Kind == VTable {
		return false // TypeName comparison happens via the heap, not the tag alone; handled by caller when needed
	}
	if i, err := strconv.ParseInt(tag, 10, 64); err == nil {
		return v.Kind == VInt && v.I == i
	}
	if f, err := strconv.ParseFloat(tag, 64); err == nil {
		return v.Kind == VFloat && v.F == f
	}
	if b, err := strconv.ParseBool(tag); err == nil {
		return v.Kind == VBool && v.B == b
	}
	return v.Kind == VString && v.S == tag
}

func (vm *VM) testIn(x, set Value) (bool, error) {
	switch set.Kind {
	case VArray:
		o, ok := vm.heap.Get(set.HeapID)
		if !ok {
			return false, RuntimeError{Kind: RuntimeErrNilDeref, Message: "in over freed array"}
		}
		for _, el := range o.Array {
			if el.Equal(x) {
				return true, nil
			}
		}
		return false, nil
	case VString:
		return contains(set.S, x), nil
	default:
		return false, fmt.Errorf("etch: `in` unsupported for kind %v", set.Kind)
	}
}

func contains(s string, x Value) bool {
	if x.Kind != VChar {
		return false
	}
	for _, r := range s {
		if r == x.C {
			return true
		}
	}
	return false
}

func (vm *VM) castValue(ins Instruction, regs []Value) error {
	v := regs[ins.B]
	to := vm.prog.Constants[ins.Bx].S
	switch to {
	case "int":
		switch v.Kind {
		case VFloat:
			regs[ins.A] = IntValue(int64(v.F))
		case VChar:
			regs[ins.A] = IntValue(int64(v.C))
		case VBool:
			if v.B {
				regs[ins.A] = IntValue(1)
			} else {
				regs[ins.A] = IntValue(0)
			}
		case VString:
			i, err := strconv.ParseInt(v.S, 10, 64)
			if err != nil {
				return fmt.Errorf("etch: cannot cast %q to int", v.S)
			}
			regs[ins.A] = IntValue(i)
		default:
			regs[ins.A] = v
		}
	case "float":
		switch v.Kind {
		case VInt:
			regs[ins.A] = FloatValue(float64(v.I))
		case VString:
			f, err := strconv.ParseFloat(v.S, 64)
			if err != nil {
				return fmt.Errorf("etch: cannot cast %q to float", v.S)
			}
			regs[ins.A] = FloatValue(f)
		default:
			regs[ins.A] = FloatValue(asFloat(v))
		}
	case "string":
		regs[ins.A] = StringValue(v.String())
	case "bool":
		regs[ins.A] = BoolValue(v.IsTruthy())
	case "char":
		if v.Kind == VInt {
			regs[ins.A] = CharValue(rune(v.I))
		} else {
			regs[ins.A] = v
		}
	default:
		regs[ins.A] = v
	}
	return nil
}

// execFusedArith evaluates the generic two-op fused instructions
// produced by opt_fusion.go: first op combines B and C, second op
// combines that intermediate with the register stashed in Bx.
func (vm *VM) execFusedArith(ins Instruction, regs []Value) error {
	l, r, z := regs[ins.B], regs[ins.C], regs[ins.Bx]
	var mid Value
	switch ins.Op {
	case OpAddAdd, OpAddSub, OpAddMul:
		mid = arith(l, r, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
	case OpMulAdd, OpMulSub:
		mid = arith(l, r, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
	case OpSubSub, OpSubMul, OpSubDiv:
		mid = arith(l, r, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
	case OpDivAdd:
		mid = arith(l, r, func(a, b int64) int64 { return a / b }, func(a, b float64) float64 { return a / b })
	}
	switch ins.Op {
	case OpAddAdd, OpMulAdd, OpDivAdd:
		regs[ins.A] = arith(mid, z, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
	case OpMulSub, OpSubSub, OpAddSub:
		regs[ins.A] = arith(mid, z, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
	case OpSubMul, OpAddMul:
		regs[ins.A] = arith(mid, z, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
	case OpSubDiv:
		regs[ins.A] = arith(mid, z, func(a, b int64) int64 { return a / b }, func(a, b float64) float64 { return a / b })
	}
	return nil
}

func arith(l, r Value, fi func(a, b int64) int64, ff func(a, b float64) float64) Value {
	if l.Kind == VFloat || r.Kind == VFloat {
		return FloatValue(ff(asFloat(l), asFloat(r)))
	}
	return IntValue(fi(l.I, r.I))
}
