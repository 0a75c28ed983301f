package etch

import (
	"github.com/sirupsen/logrus"
)

// Analyzer drives the combined type inference / range prover / nil-state
// prover / definite-init checker / dead-branch marker as one fixed-point
// walk over a module: a struct holding shared state plus one error
// collector, walked top-down with small per-construct methods.
type Analyzer struct {
	global *Scope
	diags  *Diagnostics
	log    logrus.FieldLogger

	funcs map[string][]*Type // name -> overload set, built during the first pass
	fnDecl map[string]*FnDecl

	curFnName string
}

func NewAnalyzer(log logrus.FieldLogger) *Analyzer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Analyzer{
		global: NewScope(nil),
		diags:  &Diagnostics{},
		log:    log,
		funcs:  map[string][]*Type{},
		fnDecl: map[string]*FnDecl{},
	}
}

// Analyze type-checks and proves safety for an entire module, mutating its
// AST in place with resolved types/ranges and returning the accumulated
// diagnostics. Analysis aborts further work on a function after its first
// error but continues with the remaining functions, collecting
// file-level errors where possible.
func (a *Analyzer) Analyze(mod *Module) *Diagnostics {
	a.registerBuiltins()
	for _, d := range mod.Decls {
		a.declareTop(d)
	}
	for _, d := range mod.Decls {
		switch n := d.(type) {
		case *FnDecl:
			a.analyzeFn(n)
		case *GlobalVarDecl:
			a.analyzeGlobalVar(n)
		}
	}
	return a.diags
}

func (a *Analyzer) errf(pos Position, kind ErrorKind, format string, args ...any) {
	a.diags.Add(newCompileError(kind, pos, format, args...))
}

// declareTop populates the global scope with type declarations and
// function signatures before any body is walked, so forward references and
// mutual recursion resolve.
func (a *Analyzer) declareTop(d Decl) {
	switch n := d.(type) {
	case *TypeDecl:
		a.declareType(n)
	case *FnDecl:
		declScope := a.global
		if len(n.Generics) > 0 {
			declScope = a.global.Child()
			for _, g := range n.Generics {
				declScope.DefineType(g, GenericNamed(g))
			}
		}
		params := make([]*Type, len(n.Params))
		for i, p := range n.Params {
			t, err := resolveTypeExpr(declScope, p.TypeHint)
			if err != nil {
				a.errf(n.Span().Start, ErrUnknownName, "%s", err)
				t = Void()
			}
			params[i] = t
		}
		ret, err := resolveTypeExpr(declScope, n.Ret)
		if err != nil {
			a.errf(n.Span().Start, ErrUnknownName, "%s", err)
			ret = Void()
		}
		ft := FunctionOf(params, ret)
		n.ResolvedType = ft
		a.funcs[n.Name] = append(a.funcs[n.Name], ft)
		a.fnDecl[n.Name] = n
	case *ImportDecl:
		// Module imports are merged into mod.Decls as plain FnDecls by
		// the resolver before analysis starts, so they fall into the
		// *FnDecl case above. FFI imports aren't: their signatures
		// live only on the ImportDecl, so register them here or calls
		// to them would trip inferCall's undefined-function check.
		if n.Kind != ImportFFI {
			return
		}
		for _, sig := range n.FFIFns {
			params := make([]*Type, len(sig.Params))
			for i, p := range sig.Params {
				t, err := resolveTypeExpr(a.global, p)
				if err != nil {
					a.errf(n.Span().Start, ErrUnknownName, "%s", err)
					t = Void()
				}
				params[i] = t
			}
			ret, err := resolveTypeExpr(a.global, sig.Ret)
			if err != nil {
				a.errf(n.Span().Start, ErrUnknownName, "%s", err)
				ret = Void()
			}
			a.funcs[sig.Name] = append(a.funcs[sig.Name], FunctionOf(params, ret))
		}
	}
}

func (a *Analyzer) declareType(n *TypeDecl) {
	switch n.Kind {
	case TypeDeclObject:
		fields := make([]ObjectFieldType, len(n.Fields))
		for i, f := range n.Fields {
			t, err := resolveTypeExpr(a.global, f.TypeHint)
			if err != nil {
				a.errf(n.Span().Start, ErrUnknownName, "%s", err)
				t = Void()
			}
			fields[i] = ObjectFieldType{Name: f.Name, Type: t, DefaultInit: f.Default != nil, Exported: f.Exported}
		}
		a.global.DefineType(n.Name, &Type{Kind: TObject, Name: n.Name, Fields: fields})
	case TypeDeclEnum:
		members := make([]EnumMemberType, len(n.Members))
		for i, m := range n.Members {
			members[i] = EnumMemberType{Name: m.Name, IntVal: m.IntVal, StrVal: m.StrVal}
		}
		a.global.DefineType(n.Name, &Type{Kind: TEnum, Name: n.Name, Members: members})
	case TypeDeclDistinct:
		base, err := resolveTypeExpr(a.global, n.Aliased)
		if err != nil {
			a.errf(n.Span().Start, ErrUnknownName, "%s", err)
			base = Void()
		}
		a.global.DefineType(n.Name, DistinctOf(n.Name, base))
	case TypeDeclUnion:
		variants := make([]*Type, len(n.Variants))
		for i, v := range n.Variants {
			t, err := resolveTypeExpr(a.global, v)
			if err != nil {
				a.errf(n.Span().Start, ErrUnknownName, "%s", err)
				t = Void()
			}
			variants[i] = t
		}
		a.global.DefineType(n.Name, UnionOf(variants...))
	case TypeDeclAlias:
		t, err := resolveTypeExpr(a.global, n.Aliased)
		if err != nil {
			a.errf(n.Span().Start, ErrUnknownName, "%s", err)
			t = Void()
		}
		a.global.DefineType(n.Name, t)
	}
}

func (a *Analyzer) registerBuiltins() {
	a.funcs["print"] = []*Type{FunctionOf([]*Type{StringTy()}, Void()), FunctionOf([]*Type{Int()}, Void())}
	a.funcs["rand"] = []*Type{FunctionOf([]*Type{Int(), Int()}, Int())}
	a.funcs["assert"] = []*Type{FunctionOf([]*Type{Bool()}, Void())}
}

func (a *Analyzer) analyzeGlobalVar(n *GlobalVarDecl) {
	scope := a.global.Child()
	initEnv, nilEnv, rangeEnv := InitEnv{}, NilEnv{}, RangeEnv{}
	var declared *Type
	if n.TypeHint != nil {
		t, err := resolveTypeExpr(a.global, n.TypeHint)
		if err != nil {
			a.errf(n.Span().Start, ErrUnknownName, "%s", err)
			return
		}
		declared = t
	}
	if n.Init != nil {
		t, _, err := a.inferExpr(n.Init, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			a.diags.Add(err.(CompileError))
			return
		}
		if declared == nil {
			declared = t
		} else if !assignableTo(t, declared) {
			a.errf(n.Init.Span().Start, ErrTypeMismatch, "cannot assign %s to %s", t, declared)
			return
		}
	}
	a.global.DefineVar(n.Name, declared)
}

// fnCtx carries the per-function state threaded through statement/expr
// walking: the loop nesting depth (for break/continue validity), whether
// we're inside a coroutine function (for yield validity), and the declared
// return type (for return-statement checking).
type fnCtx struct {
	retType   *Type
	loopDepth int
	isCoro    bool
	hadError  bool
}

func (a *Analyzer) analyzeFn(n *FnDecl) {
	a.curFnName = n.Name
	a.log.WithField("function", n.Name).Debug("analyzing function")
	scope := a.global.Child()
	for _, g := range n.Generics {
		scope.DefineType(g, GenericNamed(g))
	}
	for i, p := range n.Params {
		scope.DefineVar(p.Name, n.ResolvedType.Params[i])
	}
	ctx := &fnCtx{retType: n.ResolvedType.Ret, isCoro: n.ResolvedType.Ret.Kind == TCoroutine}
	initEnv, nilEnv, rangeEnv := InitEnv{}, NilEnv{}, RangeEnv{}
	for i, p := range n.Params {
		initEnv[p.Name] = InitYes
		if n.ResolvedType.Params[i].Kind == TInt {
			rangeEnv[p.Name] = fullRange()
		}
	}
	a.analyzeBlock(n.Body, scope, initEnv, nilEnv, rangeEnv, ctx)
}

func (a *Analyzer) analyzeBlock(b *BlockStmt, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv, ctx *fnCtx) {
	for _, s := range b.Stmts {
		if ctx.hadError {
			return
		}
		a.analyzeStmt(s, scope, initEnv, nilEnv, rangeEnv, ctx)
	}
}

func (a *Analyzer) analyzeStmt(s Stmt, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv, ctx *fnCtx) {
	switch n := s.(type) {
	case *VarDeclStmt:
		a.analyzeVarDecl(n, scope, initEnv, nilEnv, rangeEnv)
	case *ExprStmt:
		_, _, err := a.inferExpr(n.X, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			a.addErr(err, ctx)
		}
	case *AssignStmt:
		a.analyzeAssign(n, scope, initEnv, nilEnv, rangeEnv, ctx)
	case *IfStmt:
		a.analyzeIf(n, scope, initEnv, nilEnv, rangeEnv, ctx)
	case *WhileStmt:
		a.analyzeWhile(n, scope, initEnv, nilEnv, rangeEnv, ctx)
	case *ForStmt:
		a.analyzeFor(n, scope, initEnv, nilEnv, rangeEnv, ctx)
	case *BreakStmt, *ContinueStmt:
		if ctx.loopDepth == 0 {
			a.errf(s.Span().Start, ErrInternal, "break/continue outside a loop")
		}
	case *ReturnStmt:
		if n.Value != nil {
			t, _, err := a.inferExpr(n.Value, scope, initEnv, nilEnv, rangeEnv)
			if err != nil {
				a.addErr(err, ctx)
				return
			}
			if !assignableTo(t, ctx.retType) {
				a.errf(n.Value.Span().Start, ErrTypeMismatch, "cannot return %s from function declared to return %s", t, ctx.retType)
			}
		}
	case *DeferStmt:
		a.analyzeBlock(n.Body, scope.Child(), initEnv.Clone(), nilEnv.Clone(), rangeEnv.Clone(), ctx)
	case *MatchStmt:
		a.analyzeMatchStmt(n, scope, initEnv, nilEnv, rangeEnv, ctx)
	}
}

func (a *Analyzer) addErr(err error, ctx *fnCtx) {
	if ce, ok := err.(CompileError); ok {
		a.diags.Add(ce)
	}
	ctx.hadError = true
}

func (a *Analyzer) analyzeVarDecl(n *VarDeclStmt, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv) {
	var declared *Type
	if n.TypeHint != nil {
		t, err := resolveTypeExpr(scope, n.TypeHint)
		if err != nil {
			a.errf(n.Span().Start, ErrUnknownName, "%s", err)
			return
		}
		declared = t
	}
	if n.Init != nil {
		t, rng, err := a.inferExpr(n.Init, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			a.diags.Add(err.(CompileError))
			return
		}
		if declared == nil {
			declared = t
		} else if !assignableTo(t, declared) {
			a.errf(n.Init.Span().Start, ErrTypeMismatch, "cannot assign %s to %s", t, declared)
			return
		}
		scope.DefineVar(n.Name, declared)
		initEnv[n.Name] = InitYes
		if declared.IsRefKind() {
			nilEnv[n.Name] = nilStateOfRangeExpr(n.Init)
		}
		if declared.Kind == TInt {
			if rng == nil {
				rng = fullRange()
			}
			rangeEnv[n.Name] = rng
		}
	} else {
		scope.DefineVar(n.Name, declared)
		initEnv[n.Name] = InitNo
		if declared.Kind == TInt {
			rangeEnv[n.Name] = fullRange()
		}
	}
}

func nilStateOfRangeExpr(e Expr) NilState {
	if _, ok := e.(*NilLit); ok {
		return NilAlways
	}
	return NilNever
}

// identConstOperands recognizes `ident OP intLit` or `intLit OP ident`,
// reporting whether the literal was on the left (swapped) so the caller
// can flip the comparison direction before narrowing.
func identConstOperands(n *BinaryExpr) (id *Ident, c int64, swapped, ok bool) {
	if lid, isID := n.L.(*Ident); isID {
		if lit, isLit := n.R.(*IntLit); isLit {
			return lid, lit.Value, false, true
		}
	}
	if rid, isID := n.R.(*Ident); isID {
		if lit, isLit := n.L.(*IntLit); isLit {
			return rid, lit.Value, true, true
		}
	}
	return nil, 0, false, false
}

// identNilOperands recognizes `ident == nil` / `ident != nil` (in either
// operand order), reporting the equality sense for NarrowNilCheck.
func identNilOperands(n *BinaryExpr) (id *Ident, eq, ok bool) {
	if n.Op != TokEq && n.Op != TokNe {
		return nil, false, false
	}
	eq = n.Op == TokEq
	if lid, isID := n.L.(*Ident); isID {
		if _, isNil := n.R.(*NilLit); isNil {
			return lid, eq, true
		}
	}
	if rid, isID := n.R.(*Ident); isID {
		if _, isNil := n.L.(*NilLit); isNil {
			return rid, eq, true
		}
	}
	return nil, false, false
}

// flipComparison swaps a comparison's sense for `lit OP ident` operand
// order, so narrowing can always reason in `ident OP lit` form.
func flipComparison(op TokenKind) TokenKind {
	switch op {
	case TokGt:
		return TokLt
	case TokGe:
		return TokLe
	case TokLt:
		return TokGt
	case TokLe:
		return TokGe
	default:
		return op
	}
}

// negateComparison gives the comparison proven by the false branch of
// `ident OP lit`.
func negateComparison(op TokenKind) TokenKind {
	switch op {
	case TokGt:
		return TokLe
	case TokGe:
		return TokLt
	case TokLt:
		return TokGe
	case TokLe:
		return TokGt
	case TokEq:
		return TokNe
	case TokNe:
		return TokEq
	default:
		return op
	}
}

func narrowByOp(r *IntRange, op TokenKind, c int64) *IntRange {
	switch op {
	case TokGt:
		return NarrowGT(r, c)
	case TokGe:
		return NarrowGE(r, c)
	case TokLt:
		return NarrowLT(r, c)
	case TokLe:
		return NarrowLE(r, c)
	case TokEq:
		return NarrowEQ(c)
	case TokNe:
		return NarrowNE(r, c)
	default:
		return r
	}
}

// applyCondNarrowing recognizes the condition shapes the prover
// understands (`ident CMP intLit`, `ident == nil`/`ident != nil`, and
// `not` of either) and narrows the then/else range and nil environments
// accordingly. Conditions it doesn't recognize leave both sides
// untouched.
func applyCondNarrowing(cond Expr, thenRange, elseRange RangeEnv, thenNil, elseNil NilEnv) {
	if u, ok := cond.(*UnaryExpr); ok && u.Op == TokNot {
		applyCondNarrowing(u.X, elseRange, thenRange, elseNil, thenNil)
		return
	}
	bin, ok := cond.(*BinaryExpr)
	if !ok {
		return
	}
	if id, eq, ok := identNilOperands(bin); ok {
		thenState, elseState := NarrowNilCheck(eq)
		thenNil[id.Name] = thenState
		elseNil[id.Name] = elseState
		return
	}
	id, c, swapped, ok := identConstOperands(bin)
	if !ok {
		return
	}
	op := bin.Op
	if swapped {
		op = flipComparison(op)
	}
	if r, present := thenRange[id.Name]; present {
		thenRange[id.Name] = narrowByOp(r, op, c)
	}
	if r, present := elseRange[id.Name]; present {
		elseRange[id.Name] = narrowByOp(r, negateComparison(op), c)
	}
}

// narrowCond clones rangeEnv/nilEnv into then/else environments narrowed
// by cond, the range-prover's branch-split step (spec §4.2(b)).
func narrowCond(cond Expr, rangeEnv RangeEnv, nilEnv NilEnv) (thenRange, elseRange RangeEnv, thenNil, elseNil NilEnv) {
	thenRange, elseRange = rangeEnv.Clone(), rangeEnv.Clone()
	thenNil, elseNil = nilEnv.Clone(), nilEnv.Clone()
	applyCondNarrowing(cond, thenRange, elseRange, thenNil, elseNil)
	return thenRange, elseRange, thenNil, elseNil
}

func (a *Analyzer) analyzeAssign(n *AssignStmt, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv, ctx *fnCtx) {
	lt, _, err := a.inferExpr(n.Lhs, scope, initEnv, nilEnv, rangeEnv)
	if err != nil {
		a.addErr(err, ctx)
		return
	}
	rt, rr, err := a.inferExpr(n.Rhs, scope, initEnv, nilEnv, rangeEnv)
	if err != nil {
		a.addErr(err, ctx)
		return
	}
	if !assignableTo(rt, lt) {
		a.errf(n.Rhs.Span().Start, ErrTypeMismatch, "cannot assign %s to %s", rt, lt)
		return
	}
	if id, ok := n.Lhs.(*Ident); ok {
		initEnv[id.Name] = InitYes
		if lt.IsRefKind() {
			nilEnv[id.Name] = nilStateOfRangeExpr(n.Rhs)
		}
		if lt.Kind == TInt {
			if rr == nil {
				rr = fullRange()
			}
			rangeEnv[id.Name] = rr
		}
	}
}

func (a *Analyzer) analyzeIf(n *IfStmt, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv, ctx *fnCtx) {
	_, _, err := a.inferExpr(n.Cond, scope, initEnv, nilEnv, rangeEnv)
	if err != nil {
		a.addErr(err, ctx)
		return
	}
	markDeadBranches(n)

	thenRange, elseRange, thenNil, elseNil := narrowCond(n.Cond, rangeEnv, nilEnv)

	thenInit := initEnv.Clone()
	if !n.ThenUnreachable {
		a.analyzeBlock(n.Then, scope.Child(), thenInit, thenNil, thenRange, ctx)
	}
	merged, mergedNil, mergedRange := thenInit, thenNil, thenRange
	for i := range n.Elifs {
		eRange, _, eNil, _ := narrowCond(n.Elifs[i].Cond, elseRange, elseNil)
		ei := initEnv.Clone()
		if !n.Elifs[i].Unreachable {
			a.analyzeBlock(n.Elifs[i].Body, scope.Child(), ei, eNil, eRange, ctx)
		}
		merged = JoinInitEnv(merged, ei)
		mergedNil = JoinEnv(mergedNil, eNil)
		mergedRange = JoinRangeEnv(mergedRange, eRange)
	}
	if n.Else != nil && !n.ElseUnreachable {
		elseInit := initEnv.Clone()
		a.analyzeBlock(n.Else, scope.Child(), elseInit, elseNil, elseRange, ctx)
		merged = JoinInitEnv(merged, elseInit)
		mergedNil = JoinEnv(mergedNil, elseNil)
		mergedRange = JoinRangeEnv(mergedRange, elseRange)
	} else {
		merged = JoinInitEnv(merged, initEnv)
		mergedNil = JoinEnv(mergedNil, nilEnv)
		mergedRange = JoinRangeEnv(mergedRange, rangeEnv)
	}
	for k, v := range merged {
		initEnv[k] = v
	}
	for k, v := range mergedNil {
		nilEnv[k] = v
	}
	for k, v := range mergedRange {
		rangeEnv[k] = v
	}
}

// maxWidenRounds bounds the trial passes analyzeWhile runs to find the
// loop's range fixpoint before committing to a real walk; any bound still
// moving after this many rounds widens to infinity (Widen).
const maxWidenRounds = 3

func (a *Analyzer) analyzeWhile(n *WhileStmt, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv, ctx *fnCtx) {
	_, _, err := a.inferExpr(n.Cond, scope, initEnv, nilEnv, rangeEnv)
	if err != nil {
		a.addErr(err, ctx)
		return
	}

	entryRange := rangeEnv.Clone()
	savedDiags, savedHadError := a.diags, ctx.hadError
	for round := 0; round < maxWidenRounds; round++ {
		a.diags = &Diagnostics{}
		ctx.hadError = false
		trialRange, _, trialNil, _ := narrowCond(n.Cond, entryRange, nilEnv)
		ctx.loopDepth++
		a.analyzeBlock(n.Body, scope.Child(), initEnv.Clone(), trialNil, trialRange, ctx)
		ctx.loopDepth--
		if rangeEnvEqual(entryRange, trialRange) {
			entryRange = trialRange
			break
		}
		entryRange = WidenRangeEnv(entryRange, trialRange)
	}
	a.diags, ctx.hadError = savedDiags, savedHadError

	bodyRange, _, bodyNil, _ := narrowCond(n.Cond, entryRange, nilEnv)
	ctx.loopDepth++
	a.analyzeBlock(n.Body, scope.Child(), initEnv.Clone(), bodyNil, bodyRange, ctx)
	ctx.loopDepth--

	for k, v := range entryRange {
		rangeEnv[k] = v
	}
}

func (a *Analyzer) analyzeFor(n *ForStmt, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv, ctx *fnCtx) {
	inner := scope.Child()
	loopInit := initEnv.Clone()
	loopNil := nilEnv.Clone()
	loopRange := rangeEnv.Clone()
	if n.IsRange {
		lt, _, err := a.inferExpr(n.Lo, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			a.addErr(err, ctx)
			return
		}
		if lt.Kind != TInt {
			a.errf(n.Lo.Span().Start, ErrTypeMismatch, "for-range bounds must be int")
			return
		}
		inner.DefineVar(n.VarName, Int())
		loopRange[n.VarName] = fullRange()
	} else {
		it, _, err := a.inferExpr(n.Iterable, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			a.addErr(err, ctx)
			return
		}
		switch it.Kind {
		case TArray:
			inner.DefineVar(n.VarName, it.Elem)
			if it.Elem.Kind == TInt {
				loopRange[n.VarName] = fullRange()
			}
		case TString:
			inner.DefineVar(n.VarName, Char())
		default:
			a.errf(n.Iterable.Span().Start, ErrTypeMismatch, "cannot iterate over %s", it)
			return
		}
	}
	loopInit[n.VarName] = InitYes
	ctx.loopDepth++
	a.analyzeBlock(n.Body, inner, loopInit, loopNil, loopRange, ctx)
	ctx.loopDepth--
}

func (a *Analyzer) analyzeMatchStmt(n *MatchStmt, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv, ctx *fnCtx) {
	st, _, err := a.inferExpr(n.Subject, scope, initEnv, nilEnv, rangeEnv)
	if err != nil {
		a.addErr(err, ctx)
		return
	}
	for _, arm := range n.Arms {
		armScope := scope.Child()
		if arm.Bind != "" {
			armScope.DefineVar(arm.Bind, matchBindType(st, arm.Pattern))
		}
		a.analyzeBlock(arm.Body, armScope, initEnv.Clone(), nilEnv.Clone(), rangeEnv.Clone(), ctx)
	}
}

func matchBindType(subject *Type, pattern string) *Type {
	switch pattern {
	case "some", "ok":
		if subject.Elem != nil {
			return subject.Elem
		}
	case "err":
		return StringTy()
	}
	return Void()
}
