package etch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextCompileStringAndExecuteArithmetic(t *testing.T) {
	ctx := NewContext(WithOptimizer(false))
	src := []byte(`
fn main() -> int {
	return 2 + 3;
}
`)
	require.NoError(t, ctx.CompileString("arith.etch", src))

	v, err := ctx.CallFunction("main")
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.I)
}

func TestContextExecuteSurfacesAssertionFailure(t *testing.T) {
	ctx := NewContext(WithOptimizer(false))
	src := []byte(`
fn main() -> int {
	assert(false);
	return 0;
}
`)
	require.NoError(t, ctx.CompileString("assert_fail.etch", src))

	_, err := ctx.Execute()
	require.Error(t, err)

	var rerr RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, RuntimeErrAssertion, rerr.Kind)
}

func TestContextGlobalInitializerRunsBeforeMain(t *testing.T) {
	ctx := NewContext(WithOptimizer(false))
	src := []byte(`
let limit = comptime(2 + 2);

fn main() -> int {
	return limit;
}
`)
	require.NoError(t, ctx.CompileString("global_init.etch", src))

	v, err := ctx.CallFunction("main")
	require.NoError(t, err)
	assert.Equal(t, int64(4), v.I)
}

func TestContextHostPreAssignmentWinsOverGlobalInit(t *testing.T) {
	ctx := NewContext(WithOptimizer(false))
	src := []byte(`
let limit = 4;

fn main() -> int {
	return limit;
}
`)
	require.NoError(t, ctx.CompileString("preassign.etch", src))

	// A host setting the global right after compile, before the first
	// call, should survive $init's absence-gated assignment.
	ctx.SetGlobal("limit", IntValue(99))

	v, err := ctx.CallFunction("main")
	require.NoError(t, err)
	assert.Equal(t, int64(99), v.I)
}

func TestContextCompileStringUnknownNameFails(t *testing.T) {
	ctx := NewContext(WithOptimizer(false))
	src := []byte(`
fn main() -> int {
	return unknownThing;
}
`)
	err := ctx.CompileString("bad.etch", src)
	require.Error(t, err)
}

func TestContextCallFunctionBeforeCompileErrors(t *testing.T) {
	ctx := NewContext(WithOptimizer(false))
	_, err := ctx.CallFunction("main")
	require.Error(t, err)

	var rerr RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, RuntimeErrHostCallback, rerr.Kind)
}
