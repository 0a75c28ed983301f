package etch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intLit(v int64) *IntLit {
	return &IntLit{baseExpr: baseExpr{typ: Int()}, Value: v}
}

func TestFoldComptimeReplacesExprWithLiteral(t *testing.T) {
	ce := NewComptimeEvaluator(map[string]*FnDecl{}, "")

	body := &BinaryExpr{Op: TokPlus, L: intLit(2), R: intLit(3)}
	cexpr := &ComptimeExpr{Body: body}
	ret := &ReturnStmt{Value: cexpr}
	fn := &FnDecl{Name: "main", Body: &BlockStmt{Stmts: []Stmt{ret}}}
	mod := &Module{Decls: []Decl{fn}}

	require.NoError(t, FoldComptime(mod, ce))

	lit, ok := ret.Value.(*IntLit)
	require.True(t, ok, "expected ReturnStmt.Value to be folded to *IntLit, got %T", ret.Value)
	assert.Equal(t, int64(5), lit.Value)
}

func TestFoldComptimeGlobalInitializer(t *testing.T) {
	ce := NewComptimeEvaluator(map[string]*FnDecl{}, "")

	cexpr := &ComptimeExpr{Body: intLit(9)}
	g := &GlobalVarDecl{Name: "limit", Init: cexpr}
	mod := &Module{Decls: []Decl{g}}

	require.NoError(t, FoldComptime(mod, ce))

	lit, ok := g.Init.(*IntLit)
	require.True(t, ok)
	assert.Equal(t, int64(9), lit.Value)
}

func TestFoldComptimeSplicesInjectedGlobals(t *testing.T) {
	ce := NewComptimeEvaluator(map[string]*FnDecl{}, "")
	ce.Injected = append(ce.Injected, &InjectDecl{
		Name:  "buildTag",
		Typ:   &TypeExpr{Name: "string"},
		Value: &StringLit{Value: "release"},
	})

	mod := &Module{Decls: []Decl{}}
	require.NoError(t, FoldComptime(mod, ce))

	require.Len(t, mod.Decls, 1)
	g, ok := mod.Decls[0].(*GlobalVarDecl)
	require.True(t, ok)
	assert.Equal(t, "buildTag", g.Name)
	assert.False(t, g.Mutable)
	lit, ok := g.Init.(*StringLit)
	require.True(t, ok)
	assert.Equal(t, "release", lit.Value)
}

// TestFoldComptimeMatchArmsPersist guards against folding a *MatchExpr's
// arms into a copy: Arms is a value slice, so folding must write back
// through &n.Arms[i].Body rather than a ranged copy.
func TestFoldComptimeMatchArmsPersist(t *testing.T) {
	ce := NewComptimeEvaluator(map[string]*FnDecl{}, "")

	arm := MatchArm{Pattern: "_", Body: &ComptimeExpr{Body: intLit(11)}}
	match := &MatchExpr{Subject: intLit(0), Arms: []MatchArm{arm}}
	ret := &ReturnStmt{Value: match}
	fn := &FnDecl{Name: "main", Body: &BlockStmt{Stmts: []Stmt{ret}}}
	mod := &Module{Decls: []Decl{fn}}

	require.NoError(t, FoldComptime(mod, ce))

	folded, ok := match.Arms[0].Body.(*IntLit)
	require.True(t, ok, "expected match arm body folded in place, got %T", match.Arms[0].Body)
	assert.Equal(t, int64(11), folded.Value)
}

func TestFoldComptimeAssignFoldsBothSides(t *testing.T) {
	ce := NewComptimeEvaluator(map[string]*FnDecl{}, "")

	assign := &AssignStmt{Lhs: &ComptimeExpr{Body: intLit(1)}, Rhs: &ComptimeExpr{Body: intLit(2)}}
	fn := &FnDecl{Name: "main", Body: &BlockStmt{Stmts: []Stmt{assign}}}
	mod := &Module{Decls: []Decl{fn}}

	require.NoError(t, FoldComptime(mod, ce))

	_, lhsOk := assign.Lhs.(*IntLit)
	_, rhsOk := assign.Rhs.(*IntLit)
	assert.True(t, lhsOk)
	assert.True(t, rhsOk)
}
