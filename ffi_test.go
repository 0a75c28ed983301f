package etch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFFIBridgeLoadLibraryUnknownPathErrors(t *testing.T) {
	b := NewFFIBridge()
	err := b.LoadLibrary("/nonexistent/path/libetch-test-missing.so")
	require.Error(t, err)
}

func TestFFIBridgeBindSymbolUnloadedLibraryErrors(t *testing.T) {
	b := NewFFIBridge()
	err := b.BindSymbol("never-loaded", FFIFuncSig{Name: "foo"})
	require.Error(t, err)
}

func TestFFIBridgeInvokeUnresolvedSymbolErrors(t *testing.T) {
	b := NewFFIBridge()
	_, err := b.Invoke(&FunctionRecord{Symbol: "unresolved"}, nil)
	require.Error(t, err)

	var rerr RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, RuntimeErrFFI, rerr.Kind)
}

func TestFFIBridgeInvokeRejectsFloatArguments(t *testing.T) {
	b := &FFIBridge{
		libs:    map[string]uintptr{},
		symbols: map[string]uintptr{"takesFloat": 1},
		sigs:    map[string]FFIFuncSig{},
	}
	_, err := b.Invoke(&FunctionRecord{Symbol: "takesFloat"}, []Value{FloatValue(1.5)})
	require.Error(t, err)

	var rerr RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, RuntimeErrFFI, rerr.Kind)
}

func TestFFIBridgeInvokeRejectsUnsupportedValueKind(t *testing.T) {
	b := &FFIBridge{
		libs:    map[string]uintptr{},
		symbols: map[string]uintptr{"takesArray": 1},
		sigs:    map[string]FFIFuncSig{},
	}
	_, err := b.Invoke(&FunctionRecord{Symbol: "takesArray"}, []Value{{Kind: VArray}})
	require.Error(t, err)

	var rerr RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, RuntimeErrFFI, rerr.Kind)
}

func TestResolverResolveFFIPropagatesLoadFailure(t *testing.T) {
	mod, err := ParseModule("ffi.etch", []byte(`
import ffi bogus {
	fn foo(x: int) -> int;
}

fn main() -> int {
	return foo(1);
}
`))
	require.NoError(t, err)

	resolver := NewResolver(".", nil)
	bridge := NewFFIBridge()
	err = resolver.ResolveFFI(mod, bridge)
	require.Error(t, err, "a library name that resolves to no real shared object must fail to load")
}

func TestAnalyzerFFIImportRegistersMultipleSignatures(t *testing.T) {
	_, diags := analyzeSource(t, `
import ffi libm {
	fn sqrt(x: float) -> float;
	fn abs(x: int) -> int;
}

fn main() -> int {
	return abs(-3);
}
`)
	assert.False(t, diags.HasErrors(), "%v", diags.Errors())
}
