package etch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedExecuteOkReturnsExitZero(t *testing.T) {
	e := ContextNew(EmbedOptions{Optimize: false})
	defer e.Close()

	require.NoError(t, e.CompileString([]byte(`
fn main() -> int {
	return 0;
}
`), "ok.etch"))

	code, err := e.Execute()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "", e.GetError())
}

func TestEmbedExecuteErrValueReturnsExitOne(t *testing.T) {
	e := ContextNew(EmbedOptions{Optimize: false})
	defer e.Close()

	require.NoError(t, e.CompileString([]byte(`
fn main() -> int {
	return fail();
}
`), "errval.etch"))

	require.NoError(t, e.RegisterFunction("fail", func(vm *VM, args []Value) (Value, error) {
		return ErrValue(IntValue(1)), nil
	}))

	code, err := e.Execute()
	require.NoError(t, err)
	assert.Equal(t, 1, code)
}

func TestEmbedExecuteRuntimeErrorReturnsExitOneWithError(t *testing.T) {
	e := ContextNew(EmbedOptions{Optimize: false})
	defer e.Close()

	require.NoError(t, e.CompileString([]byte(`
fn main() -> int {
	assert(false);
	return 0;
}
`), "trap.etch"))

	code, err := e.Execute()
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.NotEqual(t, "", e.GetError())
}

func TestEmbedGetSetHasGlobal(t *testing.T) {
	e := ContextNew(EmbedOptions{Optimize: false})
	defer e.Close()

	require.NoError(t, e.CompileString([]byte(`
let counter = 0;

fn main() -> int {
	return counter;
}
`), "globals.etch"))

	assert.False(t, e.HasGlobal("missing"))

	e.SetGlobal("counter", IntValue(7))
	assert.True(t, e.HasGlobal("counter"))

	v, ok := e.GetGlobal("counter")
	require.True(t, ok)
	assert.Equal(t, int64(7), v.I)

	code, err := e.Execute()
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	v, _ = e.GetGlobal("counter")
	assert.Equal(t, int64(7), v.I)
}

func TestEmbedRegisterFunctionIsCallableFromEtch(t *testing.T) {
	e := ContextNew(EmbedOptions{Optimize: false})
	defer e.Close()

	require.NoError(t, e.CompileString([]byte(`
fn main() -> int {
	return double(21);
}
`), "host_call.etch"))

	err := e.RegisterFunction("double", func(vm *VM, args []Value) (Value, error) {
		return IntValue(args[0].I * 2), nil
	})
	require.NoError(t, err)

	v, err := e.CallFunction("main")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.I)
}

func TestEmbedCallFunctionUnknownReturnsNil(t *testing.T) {
	e := ContextNew(EmbedOptions{Optimize: false})
	defer e.Close()

	require.NoError(t, e.CompileString([]byte(`
fn main() -> int {
	return 0;
}
`), "nofn.etch"))

	v, err := e.CallFunction("doesNotExist")
	require.Error(t, err)
	assert.Equal(t, VNil, v.Kind)
}

func TestEmbedRegisterFunctionAfterCloseErrors(t *testing.T) {
	e := ContextNew(EmbedOptions{Optimize: false})
	e.Close()

	err := e.RegisterFunction("double", func(vm *VM, args []Value) (Value, error) {
		return NilValue(), nil
	})
	require.Error(t, err)
}
