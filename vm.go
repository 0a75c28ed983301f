package etch

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// HostFunc is a Go function registered into a VM's host-call table via
// the embedding API's register_function, dispatched by OpCallHost.
type HostFunc func(vm *VM, args []Value) (Value, error)

// VM is the register-based interpreter: single-threaded, one global
// constant pool and variable map, a per-activation register window, a
// defer stack, and an argument queue that Arg/ArgImm push onto and Call*
// consume.
type VM struct {
	prog    *Program
	heap    *Heap
	gc      *CycleCollector
	log     logrus.FieldLogger
	globals map[string]Value
	hostFns map[string]HostFunc
	ffi     *FFIBridge

	argQueue []Value

	coros      map[int]*Coroutine
	nextCoroID int

	gcInterval   int
	frameDeadline time.Time
}

func NewVM(prog *Program, log logrus.FieldLogger) *VM {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := NewHeap()
	return &VM{
		prog:       prog,
		heap:       h,
		gc:         NewCycleCollector(h),
		log:        log,
		globals:    map[string]Value{},
		hostFns:    map[string]HostFunc{},
		coros:      map[int]*Coroutine{},
		gcInterval: 256,
	}
}

func (vm *VM) RegisterHost(name string, fn HostFunc) { vm.hostFns[name] = fn }
func (vm *VM) SetFFI(bridge *FFIBridge)              { vm.ffi = bridge }

func (vm *VM) GetGlobal(name string) (Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

func (vm *VM) SetGlobal(name string, v Value) { vm.globals[name] = v }

// SetGCInterval changes the allocation count that trips NeedsGCFrame,
// the embedding API's `--gc-interval`/gcCycleInterval knob.
func (vm *VM) SetGCInterval(n int) { vm.gcInterval = n }

// BeginFrame marks the start of a host-driven frame budget; callers poll
// NeedsGCFrame against it to decide whether there's time left to run the
// collector before the budget (in microseconds) expires. Mirrors the
// embedding API's begin_frame GC budget accounting.
func (vm *VM) BeginFrame(usBudget int64) {
	vm.frameDeadline = time.Now().Add(time.Duration(usBudget) * time.Microsecond)
}

// NeedsGCFrame reports whether enough allocations have piled up since the
// last collection, and the current frame still has budget left, to make
// running a collection cycle worthwhile right now.
func (vm *VM) NeedsGCFrame() bool {
	if vm.heap.allocsSinceGC < vm.gcInterval {
		return false
	}
	return vm.frameDeadline.IsZero() || time.Now().Before(vm.frameDeadline)
}

// HeapNeedsCollection reports whether the cycle collector has candidate
// objects queued, independent of any frame budget.
func (vm *VM) HeapNeedsCollection() bool { return len(vm.heap.purple) > 0 }

// CollectGarbage runs one cycle-collector pass immediately and returns
// the updated cumulative stats, the embedding API's get_gc_stats.
func (vm *VM) CollectGarbage() GCStats {
	vm.gc.Collect()
	return vm.gc.Stats
}

func (vm *VM) GCStats() GCStats { return vm.gc.Stats }

// Call invokes a compiled function by name with the given arguments,
// running it to completion. A coroutine function called this way fails
// with an error when it reaches its first yield.
func (vm *VM) Call(name string, args []Value) (Value, error) {
	rec, ok := vm.prog.Functions[name]
	if !ok {
		return Value{}, fmt.Errorf("etch: unknown function %q", name)
	}
	switch rec.Kind {
	case FnNative:
		regs := make([]Value, rec.MaxRegister+1)
		copy(regs, args)
		result, _, _, err := vm.execFrom(rec, regs, rec.StartPC, false)
		return result, err
	case FnHost:
		fn, ok := vm.hostFns[name]
		if !ok {
			return Value{}, fmt.Errorf("etch: unregistered host function %q", name)
		}
		return fn(vm, args)
	case FnFFI:
		if vm.ffi == nil {
			return Value{}, fmt.Errorf("etch: no FFI bridge configured for %q", name)
		}
		return vm.ffi.Invoke(rec, args)
	case FnBuiltin:
		return vm.callBuiltin(name, args)
	default:
		return Value{}, fmt.Errorf("etch: function %q has unknown kind", name)
	}
}

// execFrom runs instructions starting at pc against regs until Return
// (done) or, when stopAtYield, until Yield (suspended). It is shared by
// plain function calls and coroutine resumption, since a coroutine's
// suspend point is just another position in its own flat instruction
// stream.
func (vm *VM) execFrom(rec *FunctionRecord, regs []Value, pc int, stopAtYield bool) (result Value, nextPC int, yielded bool, err error) {
	var deferStack []int

	for {
		if pc >= rec.EndPC {
			return NilValue(), pc, false, nil
		}
		ins := vm.prog.Instructions[pc]

		switch ins.Op {
		case OpLoadK:
			regs[ins.A] = vm.prog.Constants[ins.Bx]
			pc++
		case OpLoadBool:
			regs[ins.A] = BoolValue(ins.B != 0)
			pc++
		case OpLoadNil:
			regs[ins.A] = NilValue()
			pc++
		case OpLoadNone:
			regs[ins.A] = NoneValue()
			pc++
		case OpMove:
			regs[ins.A] = regs[ins.B]
			pc++

		case OpJmp:
			pc = pc + ins.SBx + 1
		case OpTest:
			if regs[ins.A].IsTruthy() {
				pc++
			} else {
				pc = pc + ins.SBx + 1
			}
		case OpTestSet:
			if regs[ins.B].IsTruthy() {
				regs[ins.A] = regs[ins.B]
				pc++
			} else {
				pc = pc + ins.SBx + 1
			}

		case OpForIntPrep:
			if forIntDone(regs[ins.A].I, regs[ins.B].I, stepOf(regs, ins.C)) {
				pc = pc + ins.SBx + 1
			} else {
				pc++
			}
		case OpForIntLoop:
			regs[ins.A] = IntValue(regs[ins.A].I + stepOf(regs, ins.C))
			pc = pc + ins.SBx + 1

		case OpForPrep:
			n, err := vm.arrayLen(regs[ins.B])
			if err != nil {
				return Value{}, pc, false, err
			}
			if regs[ins.A].I >= int64(n) {
				pc = pc + ins.SBx + 1
			} else {
				elem, err := vm.arrayGet(regs[ins.B], regs[ins.A].I)
				if err != nil {
					return Value{}, pc, false, err
				}
				regs[ins.C] = elem
				pc++
			}
		case OpForLoop:
			regs[ins.A] = IntValue(regs[ins.A].I + 1)
			pc = pc + ins.SBx + 1

		case OpCmpJmp, OpCmpJmpInt, OpCmpJmpFloat, OpLtJmp:
			taken, err := vm.evalCmpJmp(ins, regs)
			if err != nil {
				return Value{}, pc, false, err
			}
			if taken {
				pc = pc + ins.Ax + 1
			} else {
				pc++
			}
		case OpIncTest:
			regs[ins.A] = IntValue(regs[ins.A].I + 1)
			if regs[ins.A].I < regs[ins.B].I {
				pc = pc + ins.Ax + 1
			} else {
				pc++
			}

		case OpReturn:
			if ins.A < 0 {
				return NilValue(), pc + 1, false, nil
			}
			return regs[ins.A], pc + 1, false, nil

		case OpYield:
			if !stopAtYield {
				return Value{}, pc, false, fmt.Errorf("yield outside coroutine at pc=%d", pc)
			}
			var v Value
			if ins.B >= 0 {
				v = regs[ins.B]
			} else {
				v = NilValue()
			}
			return v, pc + 1, true, nil

		case OpArg:
			vm.argQueue = append(vm.argQueue, regs[ins.A])
			pc++
		case OpArgImm:
			vm.argQueue = append(vm.argQueue, IntValue(int64(ins.A)))
			pc++

		case OpCall, OpCallBuiltin, OpCallHost, OpCallFFI, OpTailCall:
			result, err := vm.dispatchCall(ins)
			if err != nil {
				return Value{}, pc, false, err
			}
			regs[ins.A] = result
			pc++

		case OpSpawn:
			name := vm.prog.Constants[ins.Bx].S
			n := ins.Ax
			args := append([]Value(nil), vm.argQueue[len(vm.argQueue)-n:]...)
			vm.argQueue = vm.argQueue[:len(vm.argQueue)-n]
			id := vm.spawn(name, args)
			regs[ins.A] = CoroutineValue(id)
			pc++
		case OpResume:
			v, err := vm.resume(regs[ins.B].CoroID)
			if err != nil {
				return Value{}, pc, false, err
			}
			regs[ins.A] = v
			pc++

		case OpPushDefer:
			target := vm.findFunctionPC(vm.prog.Constants[ins.Bx].S)
			deferStack = append(deferStack, target)
			pc++
		case OpExecDefers:
			for len(deferStack) > 0 {
				top := deferStack[len(deferStack)-1]
				deferStack = deferStack[:len(deferStack)-1]
				deferRec := vm.recordAt(top)
				if _, _, _, err := vm.execFrom(deferRec, regs, top, false); err != nil {
					return Value{}, pc, false, err
				}
			}
			pc++
		case OpDeferEnd:
			pc++

		case OpCheckCycles:
			vm.gc.Collect()
			pc++
		case OpNoOp:
			pc++

		default:
			if err := vm.execValueOp(ins, regs); err != nil {
				return Value{}, pc, false, err
			}
			pc++
		}
	}
}

// recordAt and findFunctionPC support defer-body dispatch: a deferred
// block is compiled as a synthetic FunctionRecord (compiler_defer.go),
// looked up by the constant-pooled name pushed with PushDefer.
func (vm *VM) findFunctionPC(name string) int {
	if rec, ok := vm.prog.Functions[name]; ok {
		return rec.StartPC
	}
	return -1
}

func (vm *VM) recordAt(pc int) *FunctionRecord {
	for _, name := range vm.prog.FuncNames {
		rec := vm.prog.Functions[name]
		if rec.Kind == FnNative && pc >= rec.StartPC && pc < rec.EndPC {
			return rec
		}
	}
	return &FunctionRecord{Kind: FnNative, StartPC: pc, EndPC: len(vm.prog.Instructions), MaxRegister: 255}
}
