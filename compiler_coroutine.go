package etch

import "fmt"

// compileSpawn lowers `spawn fn(args)` into an argument queue followed by
// Spawn, which allocates a coroutine state machine primed to start at the
// callee's entry point.
func (c *Compiler) compileSpawn(n *SpawnExpr) (int, error) {
	name := calleeName(n.Callee)
	if name == "" {
		return 0, fmt.Errorf("spawn target must be a named function at %s", n.Span().Start)
	}
	for _, a := range n.Args {
		reg, err := c.compileExpr(a)
		if err != nil {
			return 0, err
		}
		c.prog.Emit(Instruction{Op: OpArg, A: reg, Debug: debugFrom(a.Span().Start)})
		c.regs.FreeTemp(reg)
	}
	dst := c.regs.AllocTemp()
	c.prog.Emit(Instruction{Op: OpSpawn, A: dst, Bx: c.prog.AddConstant(StringValue(name)), Ax: len(n.Args), Debug: debugFrom(n.Span().Start)})
	return dst, nil
}

// compileResume lowers `resume coro` into a single Resume instruction,
// which runs the coroutine's state machine until its next yield or
// completion and returns the yielded/final value.
func (c *Compiler) compileResume(n *ResumeExpr) (int, error) {
	coroReg, err := c.compileExpr(n.Coro)
	if err != nil {
		return 0, err
	}
	dst := c.regs.AllocTemp()
	c.prog.Emit(Instruction{Op: OpResume, A: dst, B: coroReg, Debug: debugFrom(n.Span().Start)})
	c.regs.FreeTemp(coroReg)
	return dst, nil
}
