package etch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldConstantsCollapsesLoadKPairIntoSingleLoad(t *testing.T) {
	p := NewProgram()
	p.Emit(Instruction{Op: OpLoadK, A: 0, Bx: p.AddConstant(IntValue(3))})
	p.Emit(Instruction{Op: OpLoadK, A: 1, Bx: p.AddConstant(IntValue(4))})
	p.Emit(Instruction{Op: OpAdd, A: 2, B: 0, C: 1})
	p.Emit(Instruction{Op: OpReturn, A: 2})

	foldConstants(p, 0, p.PC())

	assert.Equal(t, OpNoOp, p.Instructions[0].Op)
	assert.Equal(t, OpNoOp, p.Instructions[1].Op)
	require.Equal(t, OpLoadK, p.Instructions[2].Op)
	assert.Equal(t, int64(7), p.Constants[p.Instructions[2].Bx].I)
}

func TestFoldConstantsLeavesDivByZeroUnfolded(t *testing.T) {
	p := NewProgram()
	p.Emit(Instruction{Op: OpLoadK, A: 0, Bx: p.AddConstant(IntValue(10))})
	p.Emit(Instruction{Op: OpLoadK, A: 1, Bx: p.AddConstant(IntValue(0))})
	p.Emit(Instruction{Op: OpDiv, A: 2, B: 0, C: 1})
	p.Emit(Instruction{Op: OpReturn, A: 2})

	foldConstants(p, 0, p.PC())

	assert.Equal(t, OpLoadK, p.Instructions[0].Op)
	assert.Equal(t, OpLoadK, p.Instructions[1].Op)
	assert.Equal(t, OpDiv, p.Instructions[2].Op)
}

func TestRemoveNoOpsAndRepairJumpsCompactsAndRetargets(t *testing.T) {
	p := NewProgram()
	p.Emit(Instruction{Op: OpNoOp})
	jmpPC := p.Emit(Instruction{Op: OpJmp})
	p.Emit(Instruction{Op: OpNoOp})
	targetPC := p.Emit(Instruction{Op: OpReturn, A: -1})
	p.Instructions[jmpPC].SBx = targetPC - jmpPC - 1

	p.AddFunction("main", &FunctionRecord{Kind: FnNative, Name: "main", StartPC: 0, EndPC: p.PC(), MaxRegister: 0})

	removeNoOpsAndRepairJumps(p)

	require.Len(t, p.Instructions, 2)
	assert.Equal(t, OpJmp, p.Instructions[0].Op)
	assert.Equal(t, OpReturn, p.Instructions[1].Op)
	wantTarget := 1
	gotTarget := 0 + p.Instructions[0].SBx + 1
	assert.Equal(t, wantTarget, gotTarget)

	rec := p.Functions["main"]
	assert.Equal(t, 0, rec.StartPC)
	assert.Equal(t, 2, rec.EndPC)
}

// optimizedAndUnoptimized compiles src twice, once through the full
// optimizer pipeline and once left alone, and runs fn in both to confirm
// the passes never change observable behavior.
func optimizedAndUnoptimized(t *testing.T, src, fn string, args []Value) (Value, Value) {
	t.Helper()
	raw := compileSource(t, src)
	vmRaw := NewVM(raw, nil)
	wantV, err := vmRaw.Call(fn, args)
	require.NoError(t, err)

	opt := compileSource(t, src)
	NewOptimizer(opt, nil).Run()
	vmOpt := NewVM(opt, nil)
	gotV, err := vmOpt.Call(fn, args)
	require.NoError(t, err)

	return wantV, gotV
}

func TestOptimizerPreservesArithmeticResult(t *testing.T) {
	want, got := optimizedAndUnoptimized(t, `
fn main() -> int {
	let a = 2 + 3;
	let b = a * 10;
	return b - 4;
}
`, "main", nil)
	assert.Equal(t, want.I, got.I)
	assert.Equal(t, int64(46), got.I)
}

func TestOptimizerPreservesLoopResult(t *testing.T) {
	want, got := optimizedAndUnoptimized(t, `
fn main() -> int {
	var sum = 0;
	for i in 0:5 {
		sum = sum + i;
	}
	return sum;
}
`, "main", nil)
	assert.Equal(t, want.I, got.I)
	assert.Equal(t, int64(0+1+2+3+4), got.I)
}

func TestOptimizerPreservesRecursiveResult(t *testing.T) {
	want, got := optimizedAndUnoptimized(t, `
fn factorial(n: int) -> int {
	if n <= 1 {
		return 1;
	}
	return n * factorial(n - 1);
}

fn main() -> int {
	return factorial(6);
}
`, "main", nil)
	assert.Equal(t, want.I, got.I)
	assert.Equal(t, int64(720), got.I)
}
