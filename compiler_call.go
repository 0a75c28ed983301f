package etch

import "fmt"

// compileCall lowers a call expression's argument queue (Arg/ArgImm) and
// dispatch opcode. Generic callees are bound through the Monomorphizer so
// the compiler can emit a direct reference to the concrete instance once
// it has been scheduled for lazy compilation.
func (c *Compiler) compileCall(n *CallExpr) (int, error) {
	name := calleeName(n.Callee)
	if name == "" {
		return 0, fmt.Errorf("indirect calls through non-identifier callees are not yet supported at %s", n.Span().Start)
	}

	fn, isUser := c.fns[name]
	emitName := name
	if isUser && len(fn.Generics) > 0 {
		argTypes := make([]*Type, len(n.Args))
		for i, a := range n.Args {
			argTypes[i] = a.Type()
		}
		bound := bindGenerics(fn.Generics, fn.ResolvedType.Params, argTypes)
		emitName = c.mono.Bind(name, bound)
	}

	argRegs := make([]int, len(n.Args))
	for i, a := range n.Args {
		reg, err := c.compileExpr(a)
		if err != nil {
			return 0, err
		}
		argRegs[i] = reg
		c.prog.Emit(Instruction{Op: OpArg, A: reg, Debug: debugFrom(a.Span().Start)})
	}

	dst := c.regs.AllocTemp()
	switch {
	case isBuiltinName(name):
		c.prog.Emit(Instruction{Op: OpCallBuiltin, A: dst, Bx: c.prog.AddConstant(StringValue(name)), Ax: len(n.Args), Debug: debugFrom(n.Span().Start)})
	case c.ffiFns[name]:
		c.prog.Emit(Instruction{Op: OpCallFFI, A: dst, Bx: c.prog.AddConstant(StringValue(name)), Ax: len(n.Args), Debug: debugFrom(n.Span().Start)})
	case !isUser:
		c.prog.Emit(Instruction{Op: OpCallHost, A: dst, Bx: c.prog.AddConstant(StringValue(name)), Ax: len(n.Args), Debug: debugFrom(n.Span().Start)})
	default:
		c.prog.Emit(Instruction{Op: OpCall, A: dst, Bx: c.prog.AddConstant(StringValue(emitName)), Ax: len(n.Args), Debug: debugFrom(n.Span().Start)})
	}
	for _, r := range argRegs {
		c.regs.FreeTemp(r)
	}
	return dst, nil
}

// isBuiltinName reports whether name is one of the process-wide natives
// registered by builtins.go (print, rand, assert).
func isBuiltinName(name string) bool {
	switch name {
	case "print", "rand", "assert":
		return true
	default:
		return false
	}
}
