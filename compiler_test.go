package etch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compileSource runs the same analyze -> compile pipeline as Context,
// stopping short of the optimizer and VM adoption so tests can inspect
// the raw Program a Compiler produced.
func compileSource(t *testing.T, src string) *Program {
	t.Helper()
	mod, err := ParseModule("test.etch", []byte(src))
	require.NoError(t, err)

	fns := collectFns(mod)
	diags := NewAnalyzer(nil).Analyze(mod)
	require.False(t, diags.HasErrors(), "%v", diags.Errors())

	comp := NewCompiler(fns, collectFFIFns(mod), nil)
	prog, err := comp.Compile(mod)
	require.NoError(t, err)
	return prog
}

func TestCompilerEmitsGlobalInitOnlyWhenGlobalsExist(t *testing.T) {
	prog := compileSource(t, `
let count = 3;

fn main() -> int {
	return count;
}
`)
	_, ok := prog.Functions[globalInitFuncName]
	assert.True(t, ok, "expected %q to be registered when a global exists", globalInitFuncName)

	vm := NewVM(prog, nil)
	_, err := vm.Call(globalInitFuncName, nil)
	require.NoError(t, err)

	v, err := vm.Call("main", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.I)
}

func TestCompilerOmitsGlobalInitWithNoGlobals(t *testing.T) {
	prog := compileSource(t, `
fn main() -> int {
	return 1;
}
`)
	_, ok := prog.Functions[globalInitFuncName]
	assert.False(t, ok, "expected no %q function when the module declares no globals", globalInitFuncName)
}

func TestCompilerForwardAndMutualRecursionResolve(t *testing.T) {
	prog := compileSource(t, `
fn isEven(n: int) -> bool {
	if n == 0 {
		return true;
	}
	return isOdd(n - 1);
}

fn isOdd(n: int) -> bool {
	if n == 0 {
		return false;
	}
	return isEven(n - 1);
}

fn main() -> int {
	if isEven(10) {
		return 1;
	}
	return 0;
}
`)
	vm := NewVM(prog, nil)
	v, err := vm.Call("main", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.I)
}

func TestCompilerDirectRecursionComputesFactorial(t *testing.T) {
	prog := compileSource(t, `
fn factorial(n: int) -> int {
	if n <= 1 {
		return 1;
	}
	return n * factorial(n - 1);
}

fn main() -> int {
	return factorial(6);
}
`)
	vm := NewVM(prog, nil)
	v, err := vm.Call("main", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(720), v.I)
}

func TestCompilerMonomorphizesOneInstancePerCallSiteBinding(t *testing.T) {
	prog := compileSource(t, `
fn identity<T>(x: T) -> T {
	return x;
}

fn main() -> int {
	let a: int = identity(41);
	let b: bool = identity(true);
	if b {
		return a;
	}
	return 0;
}
`)
	_, hasIntInst := prog.Functions["identity<int>"]
	_, hasBoolInst := prog.Functions["identity<bool>"]
	assert.True(t, hasIntInst, "expected a monomorphized identity<int> instance")
	assert.True(t, hasBoolInst, "expected a monomorphized identity<bool> instance")
	_, hasGenericName := prog.Functions["identity"]
	assert.False(t, hasGenericName, "the unspecialized generic function itself should never be emitted")

	vm := NewVM(prog, nil)
	v, err := vm.Call("main", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(41), v.I)
}

func TestCompilerScopedBlockDecRefsRefLocalsOnExit(t *testing.T) {
	prog := compileSource(t, `
fn main() -> int {
	var i = 0;
	while i < 1 {
		let r: ref[int] = new(5);
		i = i + 1;
	}
	return 0;
}
`)
	fn, ok := prog.Functions["main"]
	require.True(t, ok)
	sawDecRef := false
	for pc := fn.StartPC; pc < fn.EndPC; pc++ {
		if prog.Instructions[pc].Op == OpDecRef {
			sawDecRef = true
		}
	}
	assert.True(t, sawDecRef, "expected a DecRef emitted for the ref-typed local leaving scope")
}
