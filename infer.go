package etch

import "fmt"

// inferExpr is the heart of the combined type/range pass: it assigns
// ResolvedType and, for int expressions, an IntRange to e, enforces the
// safety obligations (division, overflow, bounds,
// nil-deref), and returns the expression's type and range to the caller.
func (a *Analyzer) inferExpr(e Expr, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv) (*Type, *IntRange, error) {
	switch n := e.(type) {
	case *IntLit:
		t, r := Int(), singleton(n.Value)
		n.SetType(t)
		n.SetRange(r)
		return t, r, nil
	case *FloatLit:
		n.SetType(Float())
		return Float(), nil, nil
	case *BoolLit:
		n.SetType(Bool())
		return Bool(), nil, nil
	case *CharLit:
		n.SetType(Char())
		return Char(), nil, nil
	case *StringLit:
		n.SetType(StringTy())
		return StringTy(), nil, nil
	case *NilLit:
		t := NilRefType()
		n.SetType(t)
		return t, nil, nil
	case *Ident:
		t, ok := scope.LookupVar(n.Name)
		if !ok {
			return nil, nil, newCompileError(ErrUnknownName, n.Span().Start, "undefined name %q", n.Name)
		}
		if st, ok := initEnv[n.Name]; ok && st != InitYes {
			return nil, nil, newCompileError(ErrUninitialized, n.Span().Start, "%q may be used before being initialized", n.Name)
		}
		if st, ok := nilEnv[n.Name]; ok && st == NilAlways && t.Kind == TRef {
			return nil, nil, newCompileError(ErrNilDeref, n.Span().Start, "%q is definitely nil here", n.Name)
		}
		n.SetType(t)
		if t.Kind == TInt {
			if r, ok := rangeEnv[n.Name]; ok {
				n.SetRange(r)
			} else {
				n.SetRange(fullRange())
			}
		}
		return t, n.Range(), nil
	case *UnaryExpr:
		return a.inferUnary(n, scope, initEnv, nilEnv, rangeEnv)
	case *BinaryExpr:
		return a.inferBinary(n, scope, initEnv, nilEnv, rangeEnv)
	case *CallExpr:
		return a.inferCall(n, scope, initEnv, nilEnv, rangeEnv)
	case *IndexExpr:
		return a.inferIndex(n, scope, initEnv, nilEnv, rangeEnv)
	case *SliceExpr:
		xt, _, err := a.inferExpr(n.X, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			return nil, nil, err
		}
		if n.Lo != nil {
			if _, _, err := a.inferExpr(n.Lo, scope, initEnv, nilEnv, rangeEnv); err != nil {
				return nil, nil, err
			}
		}
		if n.Hi != nil {
			if _, _, err := a.inferExpr(n.Hi, scope, initEnv, nilEnv, rangeEnv); err != nil {
				return nil, nil, err
			}
		}
		n.SetType(xt)
		return xt, nil, nil
	case *FieldExpr:
		xt, _, err := a.inferExpr(n.X, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			return nil, nil, err
		}
		base := xt
		if base.IsRefKind() {
			base = base.Elem
		}
		if base.Kind != TObject {
			return nil, nil, newCompileError(ErrTypeMismatch, n.Span().Start, "%s has no fields", xt)
		}
		for _, f := range base.Fields {
			if f.Name == n.Field {
				n.SetType(f.Type)
				return f.Type, nil, nil
			}
		}
		return nil, nil, newCompileError(ErrUnknownName, n.Span().Start, "%s has no field %q", base, n.Field)
	case *DerefExpr:
		xt, _, err := a.inferExpr(n.X, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			return nil, nil, err
		}
		if !xt.IsRefKind() {
			return nil, nil, newCompileError(ErrTypeMismatch, n.Span().Start, "cannot dereference non-ref type %s", xt)
		}
		n.SetType(xt.Elem)
		return xt.Elem, nil, nil
	case *LenExpr:
		xt, _, err := a.inferExpr(n.X, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			return nil, nil, err
		}
		if xt.Kind != TArray && xt.Kind != TString {
			return nil, nil, newCompileError(ErrTypeMismatch, n.Span().Start, "# requires array or string, got %s", xt)
		}
		n.SetType(Int())
		n.SetRange(&IntRange{Lo: 0, Hi: rangePosInf})
		return Int(), n.Range(), nil
	case *NewExpr:
		return a.inferNew(n, scope, initEnv, nilEnv, rangeEnv)
	case *ObjectLit:
		return a.inferObjectLit(n, scope, initEnv, nilEnv, rangeEnv)
	case *ArrayLit:
		var elem *Type
		for _, el := range n.Elems {
			t, _, err := a.inferExpr(el, scope, initEnv, nilEnv, rangeEnv)
			if err != nil {
				return nil, nil, err
			}
			if elem == nil {
				elem = t
			} else if !elem.Equals(t) {
				return nil, nil, newCompileError(ErrTypeMismatch, el.Span().Start, "array elements must share one type: %s vs %s", elem, t)
			}
		}
		if elem == nil {
			elem = Void()
		}
		t := ArrayOf(elem)
		n.SetType(t)
		return t, nil, nil
	case *TupleLit:
		elems := make([]*Type, len(n.Elems))
		for i, el := range n.Elems {
			t, _, err := a.inferExpr(el, scope, initEnv, nilEnv, rangeEnv)
			if err != nil {
				return nil, nil, err
			}
			elems[i] = t
		}
		t := TupleOf(elems...)
		n.SetType(t)
		return t, nil, nil
	case *LambdaExpr:
		params := make([]*Type, len(n.Params))
		inner := scope.Child()
		for i, p := range n.Params {
			t, err := resolveTypeExpr(scope, p.TypeHint)
			if err != nil {
				return nil, nil, newCompileError(ErrUnknownName, n.Span().Start, "%s", err)
			}
			params[i] = t
			inner.DefineVar(p.Name, t)
		}
		ret, err := resolveTypeExpr(scope, n.Ret)
		if err != nil {
			return nil, nil, newCompileError(ErrUnknownName, n.Span().Start, "%s", err)
		}
		innerInit := initEnv.Clone()
		for _, p := range n.Params {
			innerInit[p.Name] = InitYes
		}
		ctx := &fnCtx{retType: ret}
		a.analyzeBlock(n.Body, inner, innerInit, nilEnv.Clone(), rangeEnv.Clone(), ctx)
		t := FunctionOf(params, ret)
		n.SetType(t)
		return t, nil, nil
	case *InExpr:
		_, _, err := a.inferExpr(n.X, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			return nil, nil, err
		}
		_, _, err = a.inferExpr(n.Set, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			return nil, nil, err
		}
		n.SetType(Bool())
		return Bool(), nil, nil
	case *PropagateExpr:
		xt, _, err := a.inferExpr(n.X, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			return nil, nil, err
		}
		if xt.Kind != TResult && xt.Kind != TOption {
			return nil, nil, newCompileError(ErrTypeMismatch, n.Span().Start, "postfix ? requires result/option, got %s", xt)
		}
		n.SetType(xt.Elem)
		return xt.Elem, nil, nil
	case *CastExpr:
		if _, _, err := a.inferExpr(n.X, scope, initEnv, nilEnv, rangeEnv); err != nil {
			return nil, nil, err
		}
		t, err := resolveTypeExpr(scope, n.To)
		if err != nil {
			return nil, nil, newCompileError(ErrInvalidCast, n.Span().Start, "%s", err)
		}
		n.SetType(t)
		return t, nil, nil
	case *MatchExpr:
		st, _, err := a.inferExpr(n.Subject, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			return nil, nil, err
		}
		var result *Type
		for _, arm := range n.Arms {
			armScope := scope.Child()
			if arm.Bind != "" {
				armScope.DefineVar(arm.Bind, matchBindType(st, arm.Pattern))
			}
			t, _, err := a.inferExpr(arm.Body, armScope, initEnv.Clone(), nilEnv.Clone(), rangeEnv.Clone())
			if err != nil {
				return nil, nil, err
			}
			if result == nil {
				result = t
			}
		}
		n.SetType(result)
		return result, nil, nil
	case *SpawnExpr:
		ft, ok := a.funcs[calleeName(n.Callee)]
		if !ok || len(ft) == 0 {
			return nil, nil, newCompileError(ErrUnknownName, n.Span().Start, "unknown coroutine function")
		}
		for _, arg := range n.Args {
			if _, _, err := a.inferExpr(arg, scope, initEnv, nilEnv, rangeEnv); err != nil {
				return nil, nil, err
			}
		}
		t := CoroutineOf(ft[0].Ret)
		n.SetType(t)
		return t, nil, nil
	case *ResumeExpr:
		ct, _, err := a.inferExpr(n.Coro, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			return nil, nil, err
		}
		if ct.Kind != TCoroutine {
			return nil, nil, newCompileError(ErrTypeMismatch, n.Span().Start, "resume requires a coroutine, got %s", ct)
		}
		t := ResultOf(ct.Elem)
		n.SetType(t)
		return t, nil, nil
	case *ComptimeExpr:
		t, _, err := a.inferExpr(n.Body, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			return nil, nil, err
		}
		n.SetType(t)
		return t, nil, nil
	}
	return nil, nil, newCompileError(ErrInternal, e.Span().Start, "analyzer: unhandled expression %T", e)
}

func calleeName(e Expr) string {
	if id, ok := e.(*Ident); ok {
		return id.Name
	}
	return ""
}

func (a *Analyzer) inferUnary(n *UnaryExpr, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv) (*Type, *IntRange, error) {
	xt, xr, err := a.inferExpr(n.X, scope, initEnv, nilEnv, rangeEnv)
	if err != nil {
		return nil, nil, err
	}
	switch n.Op {
	case TokMinus:
		if !xt.IsScalarNumeric() {
			return nil, nil, newCompileError(ErrTypeMismatch, n.Span().Start, "unary - requires numeric operand, got %s", xt)
		}
		n.SetType(xt)
		if xt.Kind == TInt && xr != nil {
			r := &IntRange{Lo: safeNeg(xr.Hi), Hi: safeNeg(xr.Lo)}
			n.SetRange(r)
			return xt, r, nil
		}
		return xt, nil, nil
	case TokBang, TokNot:
		if xt.Kind != TBool {
			return nil, nil, newCompileError(ErrTypeMismatch, n.Span().Start, "! requires bool operand, got %s", xt)
		}
		n.SetType(Bool())
		return Bool(), nil, nil
	case TokYield:
		n.SetType(Void())
		return Void(), nil, nil
	}
	return nil, nil, newCompileError(ErrInternal, n.Span().Start, "unhandled unary operator")
}

func (a *Analyzer) inferBinary(n *BinaryExpr, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv) (*Type, *IntRange, error) {
	lt, lr, err := a.inferExpr(n.L, scope, initEnv, nilEnv, rangeEnv)
	if err != nil {
		return nil, nil, err
	}
	rt, rr, err := a.inferExpr(n.R, scope, initEnv, nilEnv, rangeEnv)
	if err != nil {
		return nil, nil, err
	}
	result, err := binaryResultType(n.Op, lt, rt)
	if err != nil {
		return nil, nil, newCompileError(ErrTypeMismatch, n.Span().Start, "%s", err)
	}
	n.SetType(result)
	if result.Kind != TInt || lr == nil || rr == nil {
		return result, nil, nil
	}
	var rng *IntRange
	switch n.Op {
	case TokPlus:
		rng = RangeAdd(lr, rr)
	case TokMinus:
		rng = RangeSub(lr, rr)
	case TokStar:
		rng = RangeMul(lr, rr)
	case TokSlash:
		if rr.ContainsZero() {
			return nil, nil, newCompileError(ErrDivByZero, n.Span().Start, "divisor range %v may include zero", rr)
		}
		rng = RangeDiv(lr, rr)
	case TokPercent:
		if rr.ContainsZero() {
			return nil, nil, newCompileError(ErrDivByZero, n.Span().Start, "divisor range %v may include zero", rr)
		}
		rng = RangeMod(lr, rr)
	default:
		return result, nil, nil
	}
	if rng.Lo < minInt64Bound || rng.Hi > maxInt64Bound {
		return nil, nil, newCompileError(ErrOverflow, n.Span().Start, "result range %v overflows int", rng)
	}
	n.SetRange(rng)
	return result, rng, nil
}

const minInt64Bound = rangeNegInf
const maxInt64Bound = rangePosInf

func (a *Analyzer) inferCall(n *CallExpr, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv) (*Type, *IntRange, error) {
	name := calleeName(n.Callee)
	if name == "" {
		return nil, nil, newCompileError(ErrTypeMismatch, n.Span().Start, "call target must be a named function")
	}
	candidates, ok := a.funcs[name]
	if !ok {
		// No declared signature anywhere (not a user fn, not an `import
		// ffi` fn): treat it as an implicit host callback dispatched by
		// OpCallHost, which has no static signature to check against.
		// Arguments are still individually type-checked; the call is
		// assumed to return int, the common case for this corpus's host
		// callbacks. A host function that needs to return something else
		// should be declared through `import ffi` instead, where its
		// signature is known.
		for _, arg := range n.Args {
			if _, _, err := a.inferExpr(arg, scope, initEnv, nilEnv, rangeEnv); err != nil {
				return nil, nil, err
			}
		}
		n.SetType(Int())
		n.SetRange(fullRange())
		return Int(), n.Range(), nil
	}
	argTypes := make([]*Type, len(n.Args))
	for i, arg := range n.Args {
		t, _, err := a.inferExpr(arg, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			return nil, nil, err
		}
		argTypes[i] = t
	}
	ft, ok := resolveOverload(candidates, argTypes)
	if !ok {
		return nil, nil, newCompileError(ErrAmbiguousOverload, n.Span().Start, "no overload of %q accepts the given argument types", name)
	}
	n.SetType(ft.Ret)
	if name == "rand" && len(n.Args) == 2 {
		if lo, hi, ok := constIntPair(n.Args[0], n.Args[1]); ok {
			rng := &IntRange{Lo: lo, Hi: hi}
			n.SetRange(rng)
			return ft.Ret, rng, nil
		}
	}
	if ft.Ret.Kind == TInt {
		n.SetRange(fullRange())
	}
	return ft.Ret, n.Range(), nil
}

func constIntPair(a, b Expr) (int64, int64, bool) {
	la, ok1 := a.(*IntLit)
	lb, ok2 := b.(*IntLit)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	if la.Value <= lb.Value {
		return la.Value, lb.Value, true
	}
	return lb.Value, la.Value, true
}

func (a *Analyzer) inferIndex(n *IndexExpr, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv) (*Type, *IntRange, error) {
	xt, _, err := a.inferExpr(n.X, scope, initEnv, nilEnv, rangeEnv)
	if err != nil {
		return nil, nil, err
	}
	it, ir, err := a.inferExpr(n.Index, scope, initEnv, nilEnv, rangeEnv)
	if err != nil {
		return nil, nil, err
	}
	if it.Kind != TInt {
		return nil, nil, newCompileError(ErrTypeMismatch, n.Span().Start, "index must be int, got %s", it)
	}
	if xt.Kind == TTuple {
		lit, ok := n.Index.(*IntLit)
		if !ok {
			return nil, nil, newCompileError(ErrTypeMismatch, n.Span().Start, "tuples may only be indexed by compile-time constant integers")
		}
		if lit.Value < 0 || int(lit.Value) >= len(xt.Elems) {
			return nil, nil, newCompileError(ErrOutOfBounds, n.Span().Start, "tuple index %d out of bounds for %d elements", lit.Value, len(xt.Elems))
		}
		t := xt.Elems[lit.Value]
		n.SetType(t)
		return t, nil, nil
	}
	if xt.Kind != TArray && xt.Kind != TString {
		return nil, nil, newCompileError(ErrTypeMismatch, n.Span().Start, "cannot index %s", xt)
	}
	if ir != nil && ir.Lo < 0 {
		return nil, nil, newCompileError(ErrOutOfBounds, n.Span().Start, "index range %v may be negative", ir)
	}
	var t *Type
	if xt.Kind == TArray {
		t = xt.Elem
	} else {
		t = Char()
	}
	n.SetType(t)
	return t, nil, nil
}

func (a *Analyzer) inferNew(n *NewExpr, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv) (*Type, *IntRange, error) {
	var elem *Type
	if n.TypeHint != nil {
		t, err := resolveTypeExpr(scope, n.TypeHint)
		if err != nil {
			return nil, nil, newCompileError(ErrUnknownName, n.Span().Start, "%s", err)
		}
		elem = t
	}
	if n.Init != nil {
		t, _, err := a.inferExpr(n.Init, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			return nil, nil, err
		}
		if elem == nil {
			elem = t
		}
	}
	if elem == nil {
		elem = Void()
	}
	t := RefOf(elem)
	n.SetType(t)
	return t, nil, nil
}

func (a *Analyzer) inferObjectLit(n *ObjectLit, scope *Scope, initEnv InitEnv, nilEnv NilEnv, rangeEnv RangeEnv) (*Type, *IntRange, error) {
	ot, ok := scope.LookupType(n.TypeName)
	if !ok || ot.Kind != TObject {
		return nil, nil, newCompileError(ErrUnknownName, n.Span().Start, "unknown object type %q", n.TypeName)
	}
	seen := map[string]bool{}
	for _, f := range n.Fields {
		t, _, err := a.inferExpr(f.Value, scope, initEnv, nilEnv, rangeEnv)
		if err != nil {
			return nil, nil, err
		}
		var fieldType *Type
		for _, of := range ot.Fields {
			if of.Name == f.Name {
				fieldType = of.Type
			}
		}
		if fieldType == nil {
			return nil, nil, newCompileError(ErrUnknownName, n.Span().Start, "%s has no field %q", n.TypeName, f.Name)
		}
		if !assignableTo(t, fieldType) {
			return nil, nil, newCompileError(ErrTypeMismatch, f.Value.Span().Start, "field %q expects %s, got %s", f.Name, fieldType, t)
		}
		seen[f.Name] = true
	}
	for _, of := range ot.Fields {
		if !seen[of.Name] && !of.DefaultInit {
			return nil, nil, newCompileError(ErrUninitialized, n.Span().Start, "field %q of %s has no initializer", of.Name, n.TypeName)
		}
	}
	n.SetType(ot)
	return ot, nil, nil
}

// resolveTypeExpr turns parsed type syntax into a resolved *Type, looking
// user-defined names up through a per-scope environment.
func resolveTypeExpr(scope *Scope, te *TypeExpr) (*Type, error) {
	if te == nil {
		return Void(), nil
	}
	switch te.Name {
	case "void":
		return Void(), nil
	case "bool":
		return Bool(), nil
	case "char":
		return Char(), nil
	case "int":
		return Int(), nil
	case "float":
		return Float(), nil
	case "string":
		return StringTy(), nil
	case "array":
		elem, err := resolveTypeExpr(scope, te.Args[0])
		if err != nil {
			return nil, err
		}
		return ArrayOf(elem), nil
	case "tuple":
		elems := make([]*Type, len(te.Args))
		for i, a := range te.Args {
			t, err := resolveTypeExpr(scope, a)
			if err != nil {
				return nil, err
			}
			elems[i] = t
		}
		return TupleOf(elems...), nil
	case "option":
		elem, err := resolveTypeExpr(scope, te.Args[0])
		if err != nil {
			return nil, err
		}
		return OptionOf(elem), nil
	case "result":
		elem, err := resolveTypeExpr(scope, te.Args[0])
		if err != nil {
			return nil, err
		}
		return ResultOf(elem), nil
	case "ref":
		elem, err := resolveTypeExpr(scope, te.Args[0])
		if err != nil {
			return nil, err
		}
		return RefOf(elem), nil
	case "weak":
		elem, err := resolveTypeExpr(scope, te.Args[0])
		if err != nil {
			return nil, err
		}
		return WeakOf(elem), nil
	case "coroutine":
		elem, err := resolveTypeExpr(scope, te.Args[0])
		if err != nil {
			return nil, err
		}
		return CoroutineOf(elem), nil
	case "channel":
		elem, err := resolveTypeExpr(scope, te.Args[0])
		if err != nil {
			return nil, err
		}
		return ChannelOf(elem), nil
	default:
		if t, ok := scope.LookupType(te.Name); ok {
			if len(te.Args) > 0 && t.Kind == TUserDefined {
				// generic instantiation: record the mangled name, the
				// monomorphizer binds the concrete args at call sites.
				return UserDefinedNamed(mangleGeneric(te.Name, te.Args)), nil
			}
			return t, nil
		}
		if len(te.Args) > 0 {
			return GenericNamed(te.Name), nil
		}
		return nil, newCompileError(ErrUnknownName, te.Span().Start, "unknown type %q", te.Name)
	}
}

func mangleGeneric(name string, args []*TypeExpr) string {
	s := name + "<"
	for i, a := range args {
		if i > 0 {
			s += ","
		}
		s += a.Name
	}
	return s + ">"
}

// binaryResultType implements the arithmetic/comparison/logical typing
// rules: numeric promotion to float when either side is float,
// string/array concatenation for `+`, bool results for comparisons and
// logical operators.
func binaryResultType(op TokenKind, l, r *Type) (*Type, error) {
	switch op {
	case TokPlus:
		if l.Kind == TString && r.Kind == TString {
			return StringTy(), nil
		}
		if l.Kind == TArray && r.Kind == TArray {
			if !l.Elem.Equals(r.Elem) {
				return nil, fmt.Errorf("cannot concatenate array[%s] with array[%s]", l.Elem, r.Elem)
			}
			return ArrayOf(l.Elem), nil
		}
		return numericPromote(l, r)
	case TokMinus, TokStar, TokSlash, TokPercent, TokPow:
		return numericPromote(l, r)
	case TokEq, TokNe, TokLt, TokLe, TokGt, TokGe:
		return Bool(), nil
	case TokAnd, TokOr:
		if l.Kind != TBool || r.Kind != TBool {
			return nil, fmt.Errorf("operands of %v must be bool", op)
		}
		return Bool(), nil
	default:
		return nil, fmt.Errorf("unsupported binary operator")
	}
}

func numericPromote(l, r *Type) (*Type, error) {
	if !l.IsScalarNumeric() || !r.IsScalarNumeric() {
		return nil, fmt.Errorf("arithmetic requires int or float operands, got %s and %s", l, r)
	}
	if l.Kind == TFloat || r.Kind == TFloat {
		return Float(), nil
	}
	return Int(), nil
}

// resolveOverload picks among candidate function types for a call: an
// exact arity+type match wins outright; failing that, the first
// candidate with at least as many parameters as there are arguments,
// whose leading parameters accept the argument types, is used.
// Parameter defaults are not consulted, so a candidate is accepted even
// when the call leaves out a parameter that has no default.
func resolveOverload(candidates []*Type, argTypes []*Type) (*Type, bool) {
	for _, c := range candidates {
		if len(c.Params) != len(argTypes) {
			continue
		}
		exact := true
		for i, p := range c.Params {
			if !p.Equals(argTypes[i]) {
				exact = false
				break
			}
		}
		if exact {
			return c, true
		}
	}
	for _, c := range candidates {
		if len(argTypes) > len(c.Params) {
			continue
		}
		ok := true
		for i := range argTypes {
			if !assignableTo(argTypes[i], c.Params[i]) {
				ok = false
				break
			}
		}
		if ok {
			return c, true
		}
	}
	return nil, false
}
