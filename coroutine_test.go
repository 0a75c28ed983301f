package etch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildCounter assembles the "counter" coroutine body: yield 1, yield 2,
// yield 3, return -1, matching the counter-ordering scenario.
func buildCounter() *Program {
	return buildFn("counter", 0, func(p *Program) {
		p.Emit(Instruction{Op: OpLoadK, A: 0, Bx: p.AddConstant(IntValue(1))})
		p.Emit(Instruction{Op: OpYield, B: 0})
		p.Emit(Instruction{Op: OpLoadK, A: 0, Bx: p.AddConstant(IntValue(2))})
		p.Emit(Instruction{Op: OpYield, B: 0})
		p.Emit(Instruction{Op: OpLoadK, A: 0, Bx: p.AddConstant(IntValue(3))})
		p.Emit(Instruction{Op: OpYield, B: 0})
		p.Emit(Instruction{Op: OpLoadK, A: 0, Bx: p.AddConstant(IntValue(-1))})
		p.Emit(Instruction{Op: OpReturn, A: 0})
	})
}

func TestCoroutineYieldResumeOrdering(t *testing.T) {
	prog := buildCounter()
	vm := NewVM(prog, nil)

	id := vm.spawn("counter", nil)
	require.NotEqual(t, -1, id)

	var got []int64
	for i := 0; i < 4; i++ {
		v, err := vm.resume(id)
		require.NoError(t, err)
		require.Equal(t, VOk, v.Kind)
		got = append(got, v.Boxed.I)
	}

	assert.Equal(t, []int64{1, 2, 3, -1}, got)

	coro := vm.coros[id]
	assert.Equal(t, CoroCompleted, coro.State)
}

func TestCoroutineResumeAfterCompletionErrors(t *testing.T) {
	prog := buildCounter()
	vm := NewVM(prog, nil)
	id := vm.spawn("counter", nil)

	for i := 0; i < 4; i++ {
		_, err := vm.resume(id)
		require.NoError(t, err)
	}

	v, err := vm.resume(id)
	require.NoError(t, err)
	assert.Equal(t, VErr, v.Kind)
}

func TestCoroutineResumeWhileRunningErrors(t *testing.T) {
	prog := buildCounter()
	vm := NewVM(prog, nil)
	id := vm.spawn("counter", nil)

	coro := vm.coros[id]
	coro.State = CoroRunning

	v, err := vm.resume(id)
	require.NoError(t, err)
	assert.Equal(t, VErr, v.Kind)
}

func TestResumeUnknownCoroutineTraps(t *testing.T) {
	prog := buildCounter()
	vm := NewVM(prog, nil)

	_, err := vm.resume(999)
	require.Error(t, err)
	var rerr RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, RuntimeErrCoroutineMisuse, rerr.Kind)
}

func TestSpawnArgsLandInFirstRegisters(t *testing.T) {
	prog := buildFn("echoFirst", 0, func(p *Program) {
		p.Emit(Instruction{Op: OpReturn, A: 0})
	})
	vm := NewVM(prog, nil)
	id := vm.spawn("echoFirst", []Value{IntValue(42)})
	v, err := vm.resume(id)
	require.NoError(t, err)
	require.Equal(t, VOk, v.Kind)
	assert.Equal(t, int64(42), v.Boxed.I)
}
