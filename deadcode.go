package etch

// evalConstBool tries to prove an expression statically true or false, the
// dead-branch trigger. It recognizes bool literals
// directly and integer comparisons whose operand ranges are disjoint or
// certain, which is how `if x > 200` becomes provably false when the
// prover has bounded `x` to `[50, 100]`.
func evalConstBool(e Expr) (value bool, known bool) {
	switch n := e.(type) {
	case *BoolLit:
		return n.Value, true
	case *UnaryExpr:
		if n.Op == TokNot {
			if v, ok := evalConstBool(n.X); ok {
				return !v, true
			}
		}
	case *BinaryExpr:
		lr, rr := n.L.Range(), n.R.Range()
		if lr == nil || rr == nil {
			break
		}
		switch n.Op {
		case TokGt:
			if lr.Lo > rr.Hi {
				return true, true
			}
			if lr.Hi <= rr.Lo {
				return false, true
			}
		case TokGe:
			if lr.Lo >= rr.Hi {
				return true, true
			}
			if lr.Hi < rr.Lo {
				return false, true
			}
		case TokLt:
			if lr.Hi < rr.Lo {
				return true, true
			}
			if lr.Lo >= rr.Hi {
				return false, true
			}
		case TokLe:
			if lr.Hi <= rr.Lo {
				return true, true
			}
			if lr.Lo > rr.Hi {
				return false, true
			}
		case TokEq:
			if lr.IsConstant() && rr.IsConstant() {
				return lr.Lo == rr.Lo, true
			}
			if lr.Hi < rr.Lo || lr.Lo > rr.Hi {
				return false, true
			}
		case TokNe:
			if lr.IsConstant() && rr.IsConstant() {
				return lr.Lo != rr.Lo, true
			}
			if lr.Hi < rr.Lo || lr.Lo > rr.Hi {
				return true, true
			}
		}
	}
	return false, false
}

// markDeadBranches annotates IfStmt.ThenUnreachable/ElseUnreachable once the
// condition's constant value is known. The bytecode compiler consults these
// flags and emits nothing for the unreachable arm; analysis performed
// inside an unreachable arm never contributes diagnostics (the analyzer
// skips walking it for error-collection purposes, so dead code tolerates
// otherwise-unsafe operations).
func markDeadBranches(s *IfStmt) {
	v, known := evalConstBool(s.Cond)
	if !known {
		return
	}
	if v {
		s.ElseUnreachable = true
		for i := range s.Elifs {
			s.Elifs[i].Unreachable = true
		}
	} else {
		s.ThenUnreachable = true
		if len(s.Elifs) == 0 {
			// no elif chain: Else, if present, remains live.
			return
		}
	}
}
