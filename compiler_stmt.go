package etch

import "fmt"

// compileStmt emits code for one statement.
func (c *Compiler) compileStmt(s Stmt) error {
	switch n := s.(type) {
	case *VarDeclStmt:
		return c.compileVarDecl(n)
	case *ExprStmt:
		reg, err := c.compileExpr(n.X)
		if err != nil {
			return err
		}
		c.regs.FreeTemp(reg)
		return nil
	case *AssignStmt:
		return c.compileAssign(n)
	case *IfStmt:
		return c.compileIf(n)
	case *WhileStmt:
		return c.compileWhile(n)
	case *ForStmt:
		return c.compileFor(n)
	case *BreakStmt:
		if len(c.breakPC) == 0 {
			return fmt.Errorf("break outside loop at %s", n.Span().Start)
		}
		pc := c.emitJump(n.Span().Start)
		top := len(c.breakPC) - 1
		c.breakPC[top] = append(c.breakPC[top], pc)
		return nil
	case *ContinueStmt:
		if len(c.continuePC) == 0 {
			return fmt.Errorf("continue outside loop at %s", n.Span().Start)
		}
		pc := c.emitJump(n.Span().Start)
		top := len(c.continuePC) - 1
		c.continuePC[top] = append(c.continuePC[top], pc)
		return nil
	case *ReturnStmt:
		if c.deferDepth > 0 {
			c.prog.Emit(Instruction{Op: OpExecDefers, Debug: debugFrom(n.Span().Start)})
		}
		if n.Value == nil {
			c.prog.Emit(Instruction{Op: OpReturn, A: -1, Debug: debugFrom(n.Span().Start)})
			return nil
		}
		reg, err := c.compileExpr(n.Value)
		if err != nil {
			return err
		}
		c.prog.Emit(Instruction{Op: OpReturn, A: reg, Debug: debugFrom(n.Span().Start)})
		return nil
	case *DeferStmt:
		return c.compileDefer(n)
	case *MatchStmt:
		return c.compileMatchStmt(n)
	default:
		return fmt.Errorf("compiler: unhandled statement %T", s)
	}
}

func (c *Compiler) compileVarDecl(n *VarDeclStmt) error {
	isRef := n.TypeHint != nil && (n.TypeHint.Name == "ref" || n.TypeHint.Name == "weak")
	if n.Init == nil {
		reg := c.regs.Alloc(n.Name, isRef)
		c.prog.Emit(Instruction{Op: OpLoadNil, A: reg, Debug: debugFrom(n.Span().Start)})
		return nil
	}
	vreg, err := c.compileExpr(n.Init)
	if err != nil {
		return err
	}
	reg := c.regs.Alloc(n.Name, isRef)
	if reg != vreg {
		c.prog.Emit(Instruction{Op: OpMove, A: reg, B: vreg, Debug: debugFrom(n.Span().Start)})
		c.regs.FreeTemp(vreg)
	}
	if isRef {
		c.prog.Emit(Instruction{Op: OpIncRef, A: reg})
	}
	return nil
}

func (c *Compiler) compileAssign(n *AssignStmt) error {
	vreg, err := c.compileExpr(n.Rhs)
	if err != nil {
		return err
	}
	switch lhs := n.Lhs.(type) {
	case *Ident:
		if reg, ok := c.regs.Lookup(lhs.Name); ok {
			if c.regs.IsRef(reg) {
				c.prog.Emit(Instruction{Op: OpDecRef, A: reg})
			}
			c.prog.Emit(Instruction{Op: OpMove, A: reg, B: vreg, Debug: debugFrom(n.Span().Start)})
			if c.regs.IsRef(reg) {
				c.prog.Emit(Instruction{Op: OpIncRef, A: reg})
			}
			c.regs.FreeTemp(vreg)
			return nil
		}
		c.prog.Emit(Instruction{Op: OpSetGlobal, A: vreg, Bx: c.prog.AddConstant(StringValue(lhs.Name)), Debug: debugFrom(n.Span().Start)})
		c.regs.FreeTemp(vreg)
		return nil
	case *IndexExpr:
		xr, err := c.compileExpr(lhs.X)
		if err != nil {
			return err
		}
		ir, err := c.compileExpr(lhs.Index)
		if err != nil {
			return err
		}
		c.prog.Emit(Instruction{Op: OpSetIndex, A: xr, B: ir, C: vreg, Debug: debugFrom(n.Span().Start)})
		c.regs.FreeTemp(xr)
		c.regs.FreeTemp(ir)
		c.regs.FreeTemp(vreg)
		return nil
	case *FieldExpr:
		xr, err := c.compileExpr(lhs.X)
		if err != nil {
			return err
		}
		c.prog.Emit(Instruction{Op: OpSetField, A: xr, B: vreg, Bx: c.prog.AddConstant(StringValue(lhs.Field)), Debug: debugFrom(n.Span().Start)})
		c.regs.FreeTemp(xr)
		c.regs.FreeTemp(vreg)
		return nil
	case *DerefExpr:
		xr, err := c.compileExpr(lhs.X)
		if err != nil {
			return err
		}
		c.prog.Emit(Instruction{Op: OpSetRef, A: xr, B: vreg, Debug: debugFrom(n.Span().Start)})
		c.regs.FreeTemp(xr)
		c.regs.FreeTemp(vreg)
		return nil
	default:
		return fmt.Errorf("invalid assignment target at %s", n.Span().Start)
	}
}

// compileIf emits the elif chain as a ladder of negated-condition jumps,
// falling through to Else when none match. Branches the dead-code pass
// (deadcode.go) proved unreachable are skipped entirely so the optimizer
// never sees dead blocks.
func (c *Compiler) compileIf(n *IfStmt) error {
	var endJumps []int

	if !n.ThenUnreachable {
		condReg, err := c.compileExpr(n.Cond)
		if err != nil {
			return err
		}
		skip := c.prog.Emit(Instruction{Op: OpTest, A: condReg, B: 1, Debug: debugFrom(n.Span().Start)})
		c.regs.FreeTemp(condReg)
		if err := c.compileScopedBlock(n.Then); err != nil {
			return err
		}
		hasMore := len(n.Elifs) > 0 || n.Else != nil
		if hasMore {
			endJumps = append(endJumps, c.emitJump(n.Span().Start))
		}
		c.patchJump(skip, c.prog.PC())
	}

	for i, elif := range n.Elifs {
		if elif.Unreachable {
			continue
		}
		condReg, err := c.compileExpr(elif.Cond)
		if err != nil {
			return err
		}
		skip := c.prog.Emit(Instruction{Op: OpTest, A: condReg, B: 1})
		c.regs.FreeTemp(condReg)
		if err := c.compileScopedBlock(elif.Body); err != nil {
			return err
		}
		hasMore := i < len(n.Elifs)-1 || n.Else != nil
		if hasMore {
			endJumps = append(endJumps, c.emitJump(n.Span().Start))
		}
		c.patchJump(skip, c.prog.PC())
	}

	if n.Else != nil && !n.ElseUnreachable {
		if err := c.compileScopedBlock(n.Else); err != nil {
			return err
		}
	}

	for _, j := range endJumps {
		c.patchJump(j, c.prog.PC())
	}
	return nil
}

func (c *Compiler) compileWhile(n *WhileStmt) error {
	c.breakPC = append(c.breakPC, nil)
	c.continuePC = append(c.continuePC, nil)

	loopStart := c.prog.PC()
	condReg, err := c.compileExpr(n.Cond)
	if err != nil {
		return err
	}
	exitJmp := c.prog.Emit(Instruction{Op: OpTest, A: condReg, B: 1, Debug: debugFrom(n.Span().Start)})
	c.regs.FreeTemp(condReg)

	if err := c.compileScopedBlock(n.Body); err != nil {
		return err
	}
	c.prog.Emit(Instruction{Op: OpJmp, SBx: loopStart - c.prog.PC() - 1, Debug: debugFrom(n.Span().Start)})
	loopEnd := c.prog.PC()
	c.patchJump(exitJmp, loopEnd)

	continues := c.continuePC[len(c.continuePC)-1]
	for _, pc := range continues {
		c.patchJump(pc, loopStart)
	}
	breaks := c.breakPC[len(c.breakPC)-1]
	for _, pc := range breaks {
		c.patchJump(pc, loopEnd)
	}
	c.breakPC = c.breakPC[:len(c.breakPC)-1]
	c.continuePC = c.continuePC[:len(c.continuePC)-1]
	return nil
}

// compileFor lowers both range form (for i in lo:hi[:step]) and iterable
// form (for x in arr) via the fused ForPrep/ForLoop pair: fused loop
// opcodes avoid re-testing bounds every iteration.
func (c *Compiler) compileFor(n *ForStmt) error {
	c.breakPC = append(c.breakPC, nil)
	c.continuePC = append(c.continuePC, nil)
	c.regs.PushScope()

	if n.IsRange {
		loReg, err := c.compileExpr(n.Lo)
		if err != nil {
			return err
		}
		hiReg, err := c.compileExpr(n.Hi)
		if err != nil {
			return err
		}
		stepReg := -1
		if n.Step != nil {
			stepReg, err = c.compileExpr(n.Step)
			if err != nil {
				return err
			}
		}
		idxReg := c.regs.Alloc(n.VarName, false)
		c.prog.Emit(Instruction{Op: OpMove, A: idxReg, B: loReg, Debug: debugFrom(n.Span().Start)})
		c.regs.FreeTemp(loReg)

		loopStart := c.prog.PC()
		prepPC := c.prog.Emit(Instruction{Op: OpForIntPrep, A: idxReg, B: hiReg, C: stepReg, Debug: debugFrom(n.Span().Start)})

		if err := c.compileScopedBlock(n.Body); err != nil {
			return err
		}
		c.prog.Emit(Instruction{Op: OpForIntLoop, A: idxReg, B: hiReg, C: stepReg, SBx: loopStart - c.prog.PC() - 1, Debug: debugFrom(n.Span().Start)})
		loopEnd := c.prog.PC()
		c.patchJump(prepPC, loopEnd)
		c.regs.FreeTemp(hiReg)
		if stepReg >= 0 {
			c.regs.FreeTemp(stepReg)
		}

		c.patchLoopExits(loopStart, loopEnd)
	} else {
		iterReg, err := c.compileExpr(n.Iterable)
		if err != nil {
			return err
		}
		idxReg := c.regs.AllocTemp()
		c.prog.Emit(Instruction{Op: OpLoadK, A: idxReg, Bx: c.prog.AddConstant(IntValue(0)), Debug: debugFrom(n.Span().Start)})
		elemReg := c.regs.Alloc(n.VarName, false)

		loopStart := c.prog.PC()
		prepPC := c.prog.Emit(Instruction{Op: OpForPrep, A: idxReg, B: iterReg, C: elemReg, Debug: debugFrom(n.Span().Start)})

		if err := c.compileScopedBlock(n.Body); err != nil {
			return err
		}
		c.prog.Emit(Instruction{Op: OpForLoop, A: idxReg, B: iterReg, C: elemReg, SBx: loopStart - c.prog.PC() - 1, Debug: debugFrom(n.Span().Start)})
		loopEnd := c.prog.PC()
		c.patchJump(prepPC, loopEnd)
		c.regs.FreeTemp(iterReg)
		c.regs.FreeTemp(idxReg)

		c.patchLoopExits(loopStart, loopEnd)
	}

	c.regs.PopScope()
	return nil
}

func (c *Compiler) patchLoopExits(loopStart, loopEnd int) {
	continues := c.continuePC[len(c.continuePC)-1]
	for _, pc := range continues {
		c.patchJump(pc, loopEnd)
	}
	breaks := c.breakPC[len(c.breakPC)-1]
	for _, pc := range breaks {
		c.patchJump(pc, loopEnd)
	}
	c.breakPC = c.breakPC[:len(c.breakPC)-1]
	c.continuePC = c.continuePC[:len(c.continuePC)-1]
}


func (c *Compiler) compileMatchStmt(n *MatchStmt) error {
	sr, err := c.compileExpr(n.Subject)
	if err != nil {
		return err
	}
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
		if err := c.compileBlockBody(arm.Body); err != nil {
			return err
		}
		c.regs.PopScope()

		if i < len(n.Arms)-1 {
			endJumps = append(endJumps, c.emitJump(n.Span().Start))
			c.patchJump(skip, c.prog.PC())
		}
	}
	for _, j := range endJumps {
		c.patchJump(j, c.prog.PC())
	}
	c.regs.FreeTemp(sr)
	return nil
}
