package etch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFn assembles a single-function Program whose body is exactly the
// instructions returned by body, then registers it as name with the
// given highest register index (MaxRegister).
func buildFn(name string, maxReg int, body func(p *Program)) *Program {
	p := NewProgram()
	rec := &FunctionRecord{Kind: FnNative, Name: name, StartPC: 0, MaxRegister: maxReg}
	body(p)
	rec.EndPC = p.PC() // exclusive, matching compileFunction's convention
	p.AddFunction(name, rec)
	return p
}

func TestArithIntOps(t *testing.T) {
	tests := []struct {
		name string
		op   OpCode
		b, c int64
		want int64
	}{
		{"add", OpAddInt, 3, 4, 7},
		{"sub", OpSubInt, 10, 3, 7},
		{"mul", OpMulInt, 6, 7, 42},
		{"div", OpDivInt, 20, 4, 5},
		{"mod", OpModInt, 20, 6, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := buildFn("main", 2, func(p *Program) {
				p.Emit(Instruction{Op: OpLoadK, A: 0, Bx: p.AddConstant(IntValue(tt.b))})
				p.Emit(Instruction{Op: OpLoadK, A: 1, Bx: p.AddConstant(IntValue(tt.c))})
				p.Emit(Instruction{Op: tt.op, A: 2, B: 0, C: 1})
				p.Emit(Instruction{Op: OpReturn, A: 2})
			})
			vm := NewVM(prog, nil)
			v, err := vm.Call("main", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.I)
		})
	}
}

func TestDivByZeroTraps(t *testing.T) {
	prog := buildFn("main", 2, func(p *Program) {
		p.Emit(Instruction{Op: OpLoadK, A: 0, Bx: p.AddConstant(IntValue(10))})
		p.Emit(Instruction{Op: OpLoadK, A: 1, Bx: p.AddConstant(IntValue(0))})
		p.Emit(Instruction{Op: OpDivInt, A: 2, B: 0, C: 1})
		p.Emit(Instruction{Op: OpReturn, A: 2})
	})
	vm := NewVM(prog, nil)
	_, err := vm.Call("main", nil)
	require.Error(t, err)
	var rerr RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, RuntimeErrDivByZero, rerr.Kind)
}

func TestForIntLoopAccumulates(t *testing.T) {
	// for i in 0..5 { sum = sum + i }, sum starts at r1=0, loop var r0.
	prog := buildFn("main", 3, func(p *Program) {
		p.Emit(Instruction{Op: OpLoadK, A: 0, Bx: p.AddConstant(IntValue(0))}) // i = 0
		p.Emit(Instruction{Op: OpLoadK, A: 1, Bx: p.AddConstant(IntValue(0))}) // sum = 0
		hi := p.Emit(Instruction{Op: OpLoadK, A: 3, Bx: p.AddConstant(IntValue(5))})
		_ = hi
		prepPC := p.PC()
		prep := Instruction{Op: OpForIntPrep, A: 0, B: 3, C: -1}
		prepIdx := p.Emit(prep)
		p.Emit(Instruction{Op: OpAddInt, A: 1, B: 1, C: 0})
		loop := Instruction{Op: OpForIntLoop, A: 0, B: 3, C: -1}
		loopIdx := p.Emit(loop)
		end := p.PC()

		p.Instructions[prepIdx] = patchSBx(p.Instructions[prepIdx], prepIdx, end)
		p.Instructions[loopIdx] = patchSBx(p.Instructions[loopIdx], loopIdx, prepPC)
		p.Emit(Instruction{Op: OpReturn, A: 1})
	})
	vm := NewVM(prog, nil)
	v, err := vm.Call("main", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0+1+2+3+4), v.I)
}

func patchSBx(ins Instruction, pc, target int) Instruction {
	ins.SBx = target - pc - 1
	return ins
}

func TestArrayIndexRoundTrip(t *testing.T) {
	prog := buildFn("main", 3, func(p *Program) {
		p.Emit(Instruction{Op: OpNewArray, A: 0, Bx: 3})
		p.Emit(Instruction{Op: OpLoadK, A: 1, Bx: p.AddConstant(IntValue(1))})
		p.Emit(Instruction{Op: OpLoadK, A: 2, Bx: p.AddConstant(IntValue(99))})
		p.Emit(Instruction{Op: OpSetIndex, A: 0, B: 1, C: 2})
		p.Emit(Instruction{Op: OpGetIndex, A: 2, B: 0, C: 1})
		p.Emit(Instruction{Op: OpReturn, A: 2})
	})
	vm := NewVM(prog, nil)
	v, err := vm.Call("main", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(99), v.I)
}

func TestOutOfBoundsTraps(t *testing.T) {
	prog := buildFn("main", 3, func(p *Program) {
		p.Emit(Instruction{Op: OpNewArray, A: 0, Bx: 2})
		p.Emit(Instruction{Op: OpLoadK, A: 1, Bx: p.AddConstant(IntValue(5))})
		p.Emit(Instruction{Op: OpGetIndex, A: 2, B: 0, C: 1})
		p.Emit(Instruction{Op: OpReturn, A: 2})
	})
	vm := NewVM(prog, nil)
	_, err := vm.Call("main", nil)
	require.Error(t, err)
	var rerr RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, RuntimeErrOutOfBounds, rerr.Kind)
}

func TestBuiltinAssertFailure(t *testing.T) {
	prog := buildFn("main", 1, func(p *Program) {
		p.Emit(Instruction{Op: OpLoadBool, A: 0, B: 0})
		p.Emit(Instruction{Op: OpArg, A: 0})
		p.Emit(Instruction{Op: OpCallBuiltin, A: 0, Bx: p.AddConstant(StringValue("assert")), Ax: 1})
		p.Emit(Instruction{Op: OpReturn, A: 0})
	})
	vm := NewVM(prog, nil)
	_, err := vm.Call("main", nil)
	require.Error(t, err)
	var rerr RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, RuntimeErrAssertion, rerr.Kind)
}
