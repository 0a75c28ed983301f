package etch

import "fmt"

// compileDefer captures the deferred block as its own out-of-line function
// so ExecDefers can invoke it LIFO at scope exit or return: PushDefer
// records a closure-like continuation. The block is compiled out-of-line
// (skipped over at its declaration site) because a defer body runs later,
// at the owning function's every exit point, not inline where it's
// written.
func (c *Compiler) compileDefer(n *DeferStmt) error {
	name := fmt.Sprintf("$defer$%d$%d", c.prog.PC(), len(c.prog.FuncNames))
	skip := c.emitJump(n.Span().Start)
	start := c.prog.PC()
	if err := c.compileScopedBlock(n.Body); err != nil {
		return err
	}
	c.prog.Emit(Instruction{Op: OpReturn, A: -1})
	end := c.prog.PC()
	c.patchJump(skip, end)
	c.prog.AddFunction(name, &FunctionRecord{Kind: FnNative, Name: name, StartPC: start, EndPC: end, MaxRegister: c.regs.MaxRegister()})
	c.prog.Emit(Instruction{Op: OpPushDefer, Bx: c.prog.AddConstant(StringValue(name)), Debug: debugFrom(n.Span().Start)})
	c.deferDepth++
	return nil
}
