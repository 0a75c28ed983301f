package etch

import "github.com/sirupsen/logrus"

// globalInitFuncName is the reserved function name Compile registers
// module-level variable initializers under; not a legal identifier, so it
// can never collide with a user-declared function.
const globalInitFuncName = "$init"

// Compiler translates an analyzed module into a Program. One Compiler
// instance is reused across every function in the module so the constant
// pool and function table are shared.
type Compiler struct {
	prog   *Program
	log    logrus.FieldLogger
	mono   *Monomorphizer
	fns    map[string]*FnDecl
	ffiFns map[string]bool

	// per-function state, reset by compileFunction
	regs       *RegAlloc
	breakPC    [][]int // one slice per enclosing loop: PCs needing patch to loop-end
	continuePC [][]int
	deferDepth int
	curRet     *Type
}

// NewCompiler builds a Compiler over a module's user-defined functions.
// ffiFns names every function declared by an `import ffi` block, so
// compileCall can route calls to OpCallFFI instead of OpCall/OpCallHost.
func NewCompiler(fns map[string]*FnDecl, ffiFns map[string]bool, log logrus.FieldLogger) *Compiler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if ffiFns == nil {
		ffiFns = map[string]bool{}
	}
	return &Compiler{prog: NewProgram(), log: log, mono: NewMonomorphizer(), fns: fns, ffiFns: ffiFns}
}

// Compile lowers every function and global declaration in mod into c.prog,
// returning the finished Program.  Analysis must have already run over mod
// (types/ranges are assumed resolved).
func (c *Compiler) Compile(mod *Module) (*Program, error) {
	c.regs = NewRegAlloc()
	for _, d := range mod.Decls {
		if g, ok := d.(*GlobalVarDecl); ok {
			if err := c.compileGlobalVar(g); err != nil {
				return nil, err
			}
		}
	}
	if c.prog.PC() > 0 {
		// Global initializers run exactly once, ahead of any user call.
		// The VM has nothing else to dispatch to at load time, so wrap
		// them in a reserved FunctionRecord that the embedding layer
		// (Context.runGlobalsOnce) runs once, before the first
		// CallFunction or Execute.
		end := c.prog.Emit(Instruction{Op: OpReturn, A: -1})
		c.prog.AddFunction(globalInitFuncName, &FunctionRecord{
			Kind: FnNative, Name: globalInitFuncName,
			StartPC: 0, EndPC: end + 1, MaxRegister: c.regs.MaxRegister(),
		})
	}
	for _, d := range mod.Decls {
		if fn, ok := d.(*FnDecl); ok {
			if len(fn.Generics) > 0 {
				continue // emitted lazily once call sites bind concrete types
			}
			if err := c.compileFunction(fn, fn.Name); err != nil {
				return nil, err
			}
		}
	}
	for name := range c.fns {
		fn := c.fns[name]
		for _, inst := range c.mono.Instances(name) {
			if _, already := c.prog.Functions[inst]; already {
				continue
			}
			if err := c.compileFunction(fn, inst); err != nil {
				return nil, err
			}
		}
	}
	return c.prog, nil
}

func (c *Compiler) compileGlobalVar(g *GlobalVarDecl) error {
	rec, err := resolveTypeExpr(NewScope(nil), g.TypeHint)
	_ = rec
	_ = err
	if g.Init != nil {
		reg, err := c.compileExpr(g.Init)
		if err != nil {
			return err
		}
		c.prog.Emit(Instruction{Op: OpInitGlobal, A: reg, Bx: c.prog.AddConstant(StringValue(g.Name)), Debug: debugFrom(g.Span().Start)})
	}
	return nil
}

// compileFunction emits one function's body and records its FunctionRecord
// under the given emitted name (the plain name, or a monomorphized mangled
// instance name for generics).
func (c *Compiler) compileFunction(fn *FnDecl, emitName string) error {
	c.regs = NewRegAlloc()
	c.breakPC = nil
	c.continuePC = nil
	c.deferDepth = 0
	c.curRet = fn.ResolvedType.Ret

	start := c.prog.PC()
	paramNames := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		isRef := p.TypeHint != nil && (p.TypeHint.Name == "ref" || p.TypeHint.Name == "weak")
		c.regs.Alloc(p.Name, isRef)
		paramNames[i] = p.Name
	}

	isCoro := fn.ResolvedType.Ret.Kind == TCoroutine
	if err := c.compileBlockBody(fn.Body); err != nil {
		return err
	}
	// implicit return at fall-through end of a void function: still has
	// to drain any defers registered in the function's top-level scope,
	// the same as an explicit return does.
	if fn.ResolvedType.Ret.Kind == TVoid {
		if c.deferDepth > 0 {
			c.prog.Emit(Instruction{Op: OpExecDefers, Debug: debugFrom(fn.Span().End)})
			c.deferDepth = 0
		}
		c.prog.Emit(Instruction{Op: OpReturn, A: -1, Debug: debugFrom(fn.Span().End)})
	}
	end := c.prog.PC()

	c.prog.AddFunction(emitName, &FunctionRecord{
		Kind:        FnNative,
		Name:        emitName,
		ParamTypes:  fn.ResolvedType.Params,
		ReturnType:  fn.ResolvedType.Ret,
		ParamNames:  paramNames,
		StartPC:     start,
		EndPC:       end,
		MaxRegister: c.regs.MaxRegister(),
		IsCoroutine: isCoro,
	})
	return nil
}

// compileBlockBody compiles a function top-level block without opening an
// extra lexical scope (the parameter scope already serves as the
// function's outermost scope).
func (c *Compiler) compileBlockBody(b *BlockStmt) error {
	for _, s := range b.Stmts {
		if err := c.compileStmt(s); err != nil {
			return err
		}
	}
	return nil
}

// compileScopedBlock opens a fresh register scope, compiles the block, and
// on exit emits ExecDefers followed by reverse-order DecRef for every
// ref-tracked local the scope allocated.
func (c *Compiler) compileScopedBlock(b *BlockStmt) error {
	c.regs.PushScope()
	deferBase := c.deferDepth
	for _, s := range b.Stmts {
		if err := c.compileStmt(s); err != nil {
			return err
		}
	}
	if c.deferDepth > deferBase {
		c.prog.Emit(Instruction{Op: OpExecDefers, Debug: debugFrom(b.Span().End)})
		c.deferDepth = deferBase
	}
	regs := c.regs.PopScope()
	for i := len(regs) - 1; i >= 0; i-- {
		if c.regs.IsRef(regs[i]) {
			c.prog.Emit(Instruction{Op: OpDecRef, A: regs[i]})
		}
	}
	return nil
}

func (c *Compiler) patchJump(pc int, target int) {
	c.prog.Instructions[pc].SBx = target - pc - 1
}

func (c *Compiler) emitJump(debug Position) int {
	return c.prog.Emit(Instruction{Op: OpJmp, Debug: debugFrom(debug)})
}
