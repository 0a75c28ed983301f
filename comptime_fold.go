package etch

// FoldComptime walks every function body and global initializer in mod,
// replacing each ComptimeExpr with the literal ComptimeEvaluator.Eval
// produces, and splices any `inject(...)`-synthesized globals it
// collected into mod's declarations. Must run before Analyze: by the time
// the analyzer's ComptimeExpr case sees an expression, it expects it
// already folded into a literal.
func FoldComptime(mod *Module, ce *ComptimeEvaluator) error {
	for _, d := range mod.Decls {
		switch n := d.(type) {
		case *FnDecl:
			if err := foldBlock(ce, n.Body); err != nil {
				return err
			}
		case *GlobalVarDecl:
			if n.Init != nil {
				folded, err := foldExpr(ce, n.Init)
				if err != nil {
					return err
				}
				n.Init = folded
			}
		}
	}
	for _, inj := range ce.Injected {
		mod.Decls = append(mod.Decls, &GlobalVarDecl{
			sp:       inj.Span(),
			Name:     inj.Name,
			Mutable:  false,
			Exported: false,
			TypeHint: inj.Typ,
			Init:     inj.Value,
		})
	}
	return nil
}

func foldBlock(ce *ComptimeEvaluator, b *BlockStmt) error {
	if b == nil {
		return nil
	}
	for _, s := range b.Stmts {
		if err := foldStmt(ce, s); err != nil {
			return err
		}
	}
	return nil
}

func foldStmt(ce *ComptimeEvaluator, s Stmt) error {
	switch n := s.(type) {
	case *VarDeclStmt:
		return foldInto(ce, &n.Init)
	case *ExprStmt:
		return foldInto(ce, &n.X)
	case *AssignStmt:
		if err := foldInto(ce, &n.Lhs); err != nil {
			return err
		}
		return foldInto(ce, &n.Rhs)
	case *ReturnStmt:
		return foldInto(ce, &n.Value)
	case *IfStmt:
		if err := foldInto(ce, &n.Cond); err != nil {
			return err
		}
		if err := foldBlock(ce, n.Then); err != nil {
			return err
		}
		for i := range n.Elifs {
			if err := foldInto(ce, &n.Elifs[i].Cond); err != nil {
				return err
			}
			if err := foldBlock(ce, n.Elifs[i].Body); err != nil {
				return err
			}
		}
		return foldBlock(ce, n.Else)
	case *WhileStmt:
		if err := foldInto(ce, &n.Cond); err != nil {
			return err
		}
		return foldBlock(ce, n.Body)
	case *ForStmt:
		if n.IsRange {
			if err := foldInto(ce, &n.Lo); err != nil {
				return err
			}
			if err := foldInto(ce, &n.Hi); err != nil {
				return err
			}
			if n.Step != nil {
				if err := foldInto(ce, &n.Step); err != nil {
					return err
				}
			}
		} else if err := foldInto(ce, &n.Iterable); err != nil {
			return err
		}
		return foldBlock(ce, n.Body)
	case *MatchStmt:
		if err := foldInto(ce, &n.Subject); err != nil {
			return err
		}
		for _, arm := range n.Arms {
			if err := foldBlock(ce, arm.Body); err != nil {
				return err
			}
		}
	case *DeferStmt:
		return foldBlock(ce, n.Body)
	}
	return nil
}

// foldInto replaces *slot with its folded form, recursing into the
// expression tree first so nested comptime{} blocks fold bottom-up.
func foldInto(ce *ComptimeEvaluator, slot *Expr) error {
	if slot == nil || *slot == nil {
		return nil
	}
	folded, err := foldExpr(ce, *slot)
	if err != nil {
		return err
	}
	*slot = folded
	return nil
}

func foldExpr(ce *ComptimeEvaluator, e Expr) (Expr, error) {
	if e == nil {
		return nil, nil
	}
	switch n := e.(type) {
	case *ComptimeExpr:
		folded, err := foldExpr(ce, n.Body)
		if err != nil {
			return nil, err
		}
		return ce.Eval(folded)
	case *BinaryExpr:
		if err := foldInto(ce, &n.L); err != nil {
			return nil, err
		}
		if err := foldInto(ce, &n.R); err != nil {
			return nil, err
		}
	case *UnaryExpr:
		if err := foldInto(ce, &n.X); err != nil {
			return nil, err
		}
	case *CallExpr:
		for i := range n.Args {
			if err := foldInto(ce, &n.Args[i]); err != nil {
				return nil, err
			}
		}
	case *IndexExpr:
		if err := foldInto(ce, &n.X); err != nil {
			return nil, err
		}
		if err := foldInto(ce, &n.Index); err != nil {
			return nil, err
		}
	case *SliceExpr:
		if err := foldInto(ce, &n.X); err != nil {
			return nil, err
		}
		if err := foldInto(ce, &n.Lo); err != nil {
			return nil, err
		}
		if err := foldInto(ce, &n.Hi); err != nil {
			return nil, err
		}
	case *FieldExpr:
		return e, foldInto(ce, &n.X)
	case *DerefExpr:
		return e, foldInto(ce, &n.X)
	case *LenExpr:
		return e, foldInto(ce, &n.X)
	case *CastExpr:
		return e, foldInto(ce, &n.X)
	case *InExpr:
		if err := foldInto(ce, &n.X); err != nil {
			return nil, err
		}
		if err := foldInto(ce, &n.Set); err != nil {
			return nil, err
		}
	case *PropagateExpr:
		return e, foldInto(ce, &n.X)
	case *ArrayLit:
		for i := range n.Elems {
			if err := foldInto(ce, &n.Elems[i]); err != nil {
				return nil, err
			}
		}
	case *TupleLit:
		for i := range n.Elems {
			if err := foldInto(ce, &n.Elems[i]); err != nil {
				return nil, err
			}
		}
	case *ObjectLit:
		for i := range n.Fields {
			if err := foldInto(ce, &n.Fields[i].Value); err != nil {
				return nil, err
			}
		}
	case *MatchExpr:
		if err := foldInto(ce, &n.Subject); err != nil {
			return nil, err
		}
		for i := range n.Arms {
			if err := foldInto(ce, &n.Arms[i].Body); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}
