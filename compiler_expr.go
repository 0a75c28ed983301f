package etch

import "fmt"

// compileExpr emits code to evaluate e into a fresh register and returns
// that register. Sub-expressions are compiled into scratch registers
// freed immediately after use, leaving only named locals and the final
// result register live across statements.
func (c *Compiler) compileExpr(e Expr) (int, error) {
	switch n := e.(type) {
	case *IntLit:
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpLoadK, A: dst, Bx: c.prog.AddConstant(IntValue(n.Value)), Debug: debugFrom(n.Span().Start)})
		return dst, nil
	case *FloatLit:
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpLoadK, A: dst, Bx: c.prog.AddConstant(FloatValue(n.Value)), Debug: debugFrom(n.Span().Start)})
		return dst, nil
	case *CharLit:
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpLoadK, A: dst, Bx: c.prog.AddConstant(CharValue(n.Value)), Debug: debugFrom(n.Span().Start)})
		return dst, nil
	case *StringLit:
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpLoadK, A: dst, Bx: c.prog.AddConstant(StringValue(n.Value)), Debug: debugFrom(n.Span().Start)})
		return dst, nil
	case *BoolLit:
		dst := c.regs.AllocTemp()
		v := 0
		if n.Value {
			v = 1
		}
		c.prog.Emit(Instruction{Op: OpLoadBool, A: dst, B: v, Debug: debugFrom(n.Span().Start)})
		return dst, nil
	case *NilLit:
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpLoadNil, A: dst, Debug: debugFrom(n.Span().Start)})
		return dst, nil
	case *Ident:
		if reg, ok := c.regs.Lookup(n.Name); ok {
			return reg, nil
		}
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpGetGlobal, A: dst, Bx: c.prog.AddConstant(StringValue(n.Name)), Debug: debugFrom(n.Span().Start)})
		return dst, nil
	case *UnaryExpr:
		return c.compileUnary(n)
	case *BinaryExpr:
		return c.compileBinary(n)
	case *CallExpr:
		return c.compileCall(n)
	case *IndexExpr:
		xr, err := c.compileExpr(n.X)
		if err != nil {
			return 0, err
		}
		ir, err := c.compileExpr(n.Index)
		if err != nil {
			return 0, err
		}
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpGetIndex, A: dst, B: xr, C: ir, Debug: debugFrom(n.Span().Start)})
		return dst, nil
	case *SliceExpr:
		xr, err := c.compileExpr(n.X)
		if err != nil {
			return 0, err
		}
		lo := -1
		if n.Lo != nil {
			lo, err = c.compileExpr(n.Lo)
			if err != nil {
				return 0, err
			}
		}
		hi := -1
		if n.Hi != nil {
			hi, err = c.compileExpr(n.Hi)
			if err != nil {
				return 0, err
			}
		}
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpSlice, A: dst, B: xr, C: lo, Bx: hi, Debug: debugFrom(n.Span().Start)})
		return dst, nil
	case *FieldExpr:
		xr, err := c.compileExpr(n.X)
		if err != nil {
			return 0, err
		}
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpGetField, A: dst, B: xr, Bx: c.prog.AddConstant(StringValue(n.Field)), Debug: debugFrom(n.Span().Start)})
		return dst, nil
	case *DerefExpr:
		xr, err := c.compileExpr(n.X)
		if err != nil {
			return 0, err
		}
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpGetField, A: dst, B: xr, Bx: c.prog.AddConstant(StringValue("@")), Debug: debugFrom(n.Span().Start)})
		return dst, nil
	case *LenExpr:
		xr, err := c.compileExpr(n.X)
		if err != nil {
			return 0, err
		}
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpLen, A: dst, B: xr, Debug: debugFrom(n.Span().Start)})
		return dst, nil
	case *NewExpr:
		return c.compileNew(n)
	case *ObjectLit:
		return c.compileObjectLit(n)
	case *ArrayLit:
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpNewArray, A: dst, Bx: len(n.Elems), Debug: debugFrom(n.Span().Start)})
		for i, el := range n.Elems {
			er, err := c.compileExpr(el)
			if err != nil {
				return 0, err
			}
			c.prog.Emit(Instruction{Op: OpSetIndexI, A: dst, B: i, C: er})
			c.regs.FreeTemp(er)
		}
		return dst, nil
	case *TupleLit:
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpNewArray, A: dst, Bx: len(n.Elems), Debug: debugFrom(n.Span().Start)})
		for i, el := range n.Elems {
			er, err := c.compileExpr(el)
			if err != nil {
				return 0, err
			}
			c.prog.Emit(Instruction{Op: OpSetIndexI, A: dst, B: i, C: er})
			c.regs.FreeTemp(er)
		}
		return dst, nil
	case *InExpr:
		return c.compileIn(n)
	case *PropagateExpr:
		return c.compilePropagate(n)
	case *CastExpr:
		xr, err := c.compileExpr(n.X)
		if err != nil {
			return 0, err
		}
		dst := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpCast, A: dst, B: xr, Bx: c.prog.AddConstant(StringValue(n.To.Name)), Debug: debugFrom(n.Span().Start)})
		return dst, nil
	case *MatchExpr:
		return c.compileMatchExpr(n)
	case *LambdaExpr:
		return 0, fmt.Errorf("closures are lowered by a nested-function pass not yet reached at %s", n.Span().Start)
	case *SpawnExpr:
		return c.compileSpawn(n)
	case *ResumeExpr:
		return c.compileResume(n)
	case *ComptimeExpr:
		// FoldComptime (comptime_fold.go) replaces comptime expressions
		// with literals before analysis; a wrapper still present here is
		// compiled through its body.
		return c.compileExpr(n.Body)
	default:
		return 0, fmt.Errorf("compiler: unhandled expression %T", e)
	}
}

func (c *Compiler) compileUnary(n *UnaryExpr) (int, error) {
	if n.Op == TokYield {
		return c.compileYield(n)
	}
	xr, err := c.compileExpr(n.X)
	if err != nil {
		return 0, err
	}
	dst := c.regs.AllocTemp()
	switch n.Op {
	case TokMinus:
		c.prog.Emit(Instruction{Op: OpUnm, A: dst, B: xr, Debug: debugFrom(n.Span().Start)})
	case TokBang, TokNot:
		c.prog.Emit(Instruction{Op: OpNot, A: dst, B: xr, Debug: debugFrom(n.Span().Start)})
	default:
		return 0, fmt.Errorf("unsupported unary operator at %s", n.Span().Start)
	}
	return dst, nil
}

// compileYield lowers `yield expr` to an OpYield carrying the yielded
// value; the instruction's destination register receives whatever value
// the next Resume call passes back in.
func (c *Compiler) compileYield(n *UnaryExpr) (int, error) {
	var src int = -1
	if n.X != nil {
		var err error
		src, err = c.compileExpr(n.X)
		if err != nil {
			return 0, err
		}
	}
	dst := c.regs.AllocTemp()
	c.prog.Emit(Instruction{Op: OpYield, A: dst, B: src, Debug: debugFrom(n.Span().Start)})
	if src >= 0 {
		c.regs.FreeTemp(src)
	}
	return dst, nil
}

var binOpTable = map[TokenKind]OpCode{
	TokPlus: OpAdd, TokMinus: OpSub, TokStar: OpMul, TokSlash: OpDiv,
	TokPercent: OpMod, TokPow: OpPow, TokAnd: OpAnd, TokOr: OpOr,
	TokEq: OpEq, TokLt: OpLt, TokLe: OpLe,
}

func (c *Compiler) compileBinary(n *BinaryExpr) (int, error) {
	lr, err := c.compileExpr(n.L)
	if err != nil {
		return 0, err
	}
	rr, err := c.compileExpr(n.R)
	if err != nil {
		return 0, err
	}
	dst := c.regs.AllocTemp()
	switch n.Op {
	case TokNe:
		c.prog.Emit(Instruction{Op: OpEq, A: dst, B: lr, C: rr, Debug: debugFrom(n.Span().Start)})
		c.prog.Emit(Instruction{Op: OpNot, A: dst, B: dst})
	case TokGt:
		c.prog.Emit(Instruction{Op: OpLe, A: dst, B: lr, C: rr, Debug: debugFrom(n.Span().Start)})
		c.prog.Emit(Instruction{Op: OpNot, A: dst, B: dst})
	case TokGe:
		c.prog.Emit(Instruction{Op: OpLt, A: dst, B: lr, C: rr, Debug: debugFrom(n.Span().Start)})
		c.prog.Emit(Instruction{Op: OpNot, A: dst, B: dst})
	default:
		op, ok := binOpTable[n.Op]
		if !ok {
			return 0, fmt.Errorf("unsupported binary operator at %s", n.Span().Start)
		}
		c.prog.Emit(Instruction{Op: op, A: dst, B: lr, C: rr, Debug: debugFrom(n.Span().Start)})
	}
	c.regs.FreeTemp(lr)
	c.regs.FreeTemp(rr)
	return dst, nil
}

func (c *Compiler) compileIn(n *InExpr) (int, error) {
	xr, err := c.compileExpr(n.X)
	if err != nil {
		return 0, err
	}
	sr, err := c.compileExpr(n.Set)
	if err != nil {
		return 0, err
	}
	dst := c.regs.AllocTemp()
	op := OpIn
	if n.Not {
		op = OpNotIn
	}
	c.prog.Emit(Instruction{Op: op, A: dst, B: xr, C: sr, Debug: debugFrom(n.Span().Start)})
	return dst, nil
}

func (c *Compiler) compilePropagate(n *PropagateExpr) (int, error) {
	xr, err := c.compileExpr(n.X)
	if err != nil {
		return 0, err
	}
	// Test tag: if err/none, return immediately; otherwise unwrap.
	testReg := c.regs.AllocTemp()
	c.prog.Emit(Instruction{Op: OpTestTag, A: testReg, B: xr, Bx: c.prog.AddConstant(StringValue("err_or_none")), Debug: debugFrom(n.Span().Start)})
	jmp := c.prog.Emit(Instruction{Op: OpTest, A: testReg, B: 1})
	c.prog.Emit(Instruction{Op: OpReturn, A: xr})
	c.patchJump(jmp, c.prog.PC())
	dst := c.regs.AllocTemp()
	c.prog.Emit(Instruction{Op: OpUnwrapResult, A: dst, B: xr})
	c.regs.FreeTemp(testReg)
	return dst, nil
}

func (c *Compiler) compileNew(n *NewExpr) (int, error) {
	dst := c.regs.AllocTemp()
	c.prog.Emit(Instruction{Op: OpNewRef, A: dst, Debug: debugFrom(n.Span().Start)})
	if n.Init != nil {
		vr, err := c.compileExpr(n.Init)
		if err != nil {
			return 0, err
		}
		c.prog.Emit(Instruction{Op: OpSetRef, A: dst, B: vr})
		c.regs.FreeTemp(vr)
	}
	return dst, nil
}

func (c *Compiler) compileObjectLit(n *ObjectLit) (int, error) {
	dst := c.regs.AllocTemp()
	c.prog.Emit(Instruction{Op: OpNewTable, A: dst, Bx: c.prog.AddConstant(StringValue(n.TypeName)), Debug: debugFrom(n.Span().Start)})
	for _, f := range n.Fields {
		vr, err := c.compileExpr(f.Value)
		if err != nil {
			return 0, err
		}
		c.prog.Emit(Instruction{Op: OpSetField, A: dst, B: vr, Bx: c.prog.AddConstant(StringValue(f.Name))})
		c.regs.FreeTemp(vr)
	}
	return dst, nil
}

func (c *Compiler) compileMatchExpr(n *MatchExpr) (int, error) {
	sr, err := c.compileExpr(n.Subject)
	if err != nil {
		return 0, err
	}
	dst := c.regs.AllocTemp()
	var endJumps []int
	for i, arm := range n.Arms {
		testReg := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpTestTag, A: testReg, B: sr, Bx: c.prog.AddConstant(StringValue(arm.Pattern)), Debug: debugFrom(n.Span().Start)})
		var skip int
		if i < len(n.Arms)-1 {
			skip = c.prog.Emit(Instruction{Op: OpTest, A: testReg, B: 1})
		}
		c.regs.FreeTemp(testReg)

		c.regs.PushScope()
		if arm.Bind != "" {
			breg := c.regs.Alloc(arm.Bind, false)
			c.prog.Emit(Instruction{Op: OpUnwrapOption, A: breg, B: sr})
		}
		vr, err := c.compileExpr(arm.Body)
		if err != nil {
			return 0, err
		}
		c.prog.Emit(Instruction{Op: OpMove, A: dst, B: vr})
		c.regs.PopScope()

		if i < len(n.Arms)-1 {
			endJumps = append(endJumps, c.emitJump(n.Span().Start))
			c.patchJump(skip, c.prog.PC())
		}
	}
	for _, j := range endJumps {
		c.patchJump(j, c.prog.PC())
	}
	return dst, nil
}
