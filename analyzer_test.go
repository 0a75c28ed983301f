package etch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyzeSource(t *testing.T, src string) (*Module, *Diagnostics) {
	t.Helper()
	mod, err := ParseModule("test.etch", []byte(src))
	require.NoError(t, err)
	diags := NewAnalyzer(nil).Analyze(mod)
	return mod, diags
}

func TestAnalyzerAcceptsWellTypedFunction(t *testing.T) {
	_, diags := analyzeSource(t, `
fn add(a: int, b: int) -> int {
    return a + b;
}
`)
	assert.False(t, diags.HasErrors(), "%v", diags.Errors())
}

func TestAnalyzerRejectsReturnTypeMismatch(t *testing.T) {
	_, diags := analyzeSource(t, `
fn broken() -> int {
    return "not an int";
}
`)
	require.True(t, diags.HasErrors())
	assert.Equal(t, ErrTypeMismatch, diags.Errors()[0].Kind)
}

func TestAnalyzerRejectsUnknownType(t *testing.T) {
	_, diags := analyzeSource(t, `
fn f(x: NoSuchType) -> int {
    return 0;
}
`)
	require.True(t, diags.HasErrors())
	assert.Equal(t, ErrUnknownName, diags.Errors()[0].Kind)
}

func TestAnalyzerAllowsForwardAndMutualRecursion(t *testing.T) {
	_, diags := analyzeSource(t, `
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
`)
	assert.False(t, diags.HasErrors(), "%v", diags.Errors())
}

func TestAnalyzerRejectsBreakOutsideLoop(t *testing.T) {
	_, diags := analyzeSource(t, `
fn f() -> int {
    break;
    return 0;
}
`)
	require.True(t, diags.HasErrors())
}

func TestAnalyzerAllowsBreakInsideWhile(t *testing.T) {
	_, diags := analyzeSource(t, `
fn f() -> int {
    var i = 0;
    while i < 10 {
        i = i + 1;
        break;
    }
    return i;
}
`)
	assert.False(t, diags.HasErrors(), "%v", diags.Errors())
}

func TestAnalyzerGlobalVarInfersTypeFromInit(t *testing.T) {
	mod, diags := analyzeSource(t, `
let limit = 5;

fn main() -> int {
    return limit;
}
`)
	assert.False(t, diags.HasErrors(), "%v", diags.Errors())

	var g *GlobalVarDecl
	for _, d := range mod.Decls {
		if gv, ok := d.(*GlobalVarDecl); ok {
			g = gv
		}
	}
	require.NotNil(t, g)
}

func TestAnalyzerMarksDeadBranchOnConstantCondition(t *testing.T) {
	mod, diags := analyzeSource(t, `
fn f() -> int {
    if 1 > 2 {
        return 1;
    } else {
        return 2;
    }
}
`)
	assert.False(t, diags.HasErrors(), "%v", diags.Errors())

	fn := mod.Decls[0].(*FnDecl)
	ifStmt := fn.Body.Stmts[0].(*IfStmt)
	assert.True(t, ifStmt.ThenUnreachable)
}

func TestAnalyzerImplicitHostCallAssumesIntReturn(t *testing.T) {
	mod, diags := analyzeSource(t, `
fn main() -> int {
    return double(21);
}
`)
	require.False(t, diags.HasErrors(), "%v", diags.Errors())

	fn := mod.Decls[0].(*FnDecl)
	ret := fn.Body.Stmts[0].(*ReturnStmt)
	call, ok := ret.Value.(*CallExpr)
	require.True(t, ok)
	require.NotNil(t, call.Type())
	assert.Equal(t, TInt, call.Type().Kind)
}

func TestAnalyzerFFIImportRegistersCallSignature(t *testing.T) {
	_, diags := analyzeSource(t, `
import ffi libm {
    fn sqrt(x: float) -> float;
}

fn main() -> float {
    return sqrt(4.0);
}
`)
	assert.False(t, diags.HasErrors(), "%v", diags.Errors())
}
