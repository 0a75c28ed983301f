package etch

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Context is the embedding API's process-wide:
// one resolved module, one compiled Program, one VM, and the FFI bridge
// and on-disk cache that feed it. It is the thing cmd/etch/main.go and
// embed.go both sit on top of.
type Context struct {
	log      logrus.FieldLogger
	bridge   *FFIBridge
	cache    *Cache
	optimize bool

	mod  *Module
	prog *Program
	vm   *VM

	diags      *Diagnostics
	globalsRan bool
}

// ContextOption configures a Context at construction time.
type ContextOption func(*Context)

func WithLogger(log logrus.FieldLogger) ContextOption {
	return func(c *Context) { c.log = log }
}

func WithOptimizer(enabled bool) ContextOption {
	return func(c *Context) { c.optimize = enabled }
}

func WithForceRecompile(force bool) ContextOption {
	return func(c *Context) { c.cache = NewCache(c.log, force) }
}

// NewContext constructs an idle Context. CompileFile/CompileString must
// run before Execute or CallFunction do anything useful.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{
		log:      logrus.StandardLogger(),
		bridge:   NewFFIBridge(),
		optimize: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = NewCache(c.log, false)
	}
	return c
}

// CompileFile resolves, comptime-folds, analyzes, compiles, optimizes and
// caches the module rooted at path. A cache hit skips straight to
// building the VM around the stored Program.
func (c *Context) CompileFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.compile(path, src)
}

// CompileString compiles src as if it were the file at virtualPath,
// without touching the on-disk cache (there is no stable source file to
// key cache entries against).
func (c *Context) CompileString(virtualPath string, src []byte) error {
	resolver := NewResolver(dirOf(virtualPath), c.log)
	mod, err := resolver.resolveSource(virtualPath, src)
	if err != nil {
		return err
	}
	return c.buildFrom(virtualPath, mod, false)
}

func (c *Context) compile(path string, src []byte) error {
	hash := SourceHash(src, c.optimize)
	if prog := c.cache.Load(path, hash); prog != nil {
		return c.adopt(prog)
	}

	resolver := NewResolver(dirOf(path), c.log)
	mod, err := resolver.ResolveFile(path)
	if err != nil {
		return err
	}
	if err := c.buildFrom(path, mod, true); err != nil {
		return err
	}
	c.prog.SourceHash = hash
	return c.cache.Store(path, c.prog)
}

// buildFrom runs the comptime-fold -> analyze -> compile -> optimize
// pipeline over an already-resolved module and wires the resulting
// Program into a fresh VM. store controls whether the result is written
// back to the on-disk cache by the caller.
func (c *Context) buildFrom(path string, mod *Module, store bool) error {
	fns := collectFns(mod)

	ce := NewComptimeEvaluator(fns, dirOf(path))
	if err := FoldComptime(mod, ce); err != nil {
		return err
	}

	analyzer := NewAnalyzer(c.log)
	diags := analyzer.Analyze(mod)
	c.diags = diags
	if diags.HasErrors() {
		return diags
	}

	resolver := NewResolver(dirOf(path), c.log)
	if err := resolver.ResolveFFI(mod, c.bridge); err != nil {
		return err
	}

	comp := NewCompiler(fns, collectFFIFns(mod), c.log)
	prog, err := comp.Compile(mod)
	if err != nil {
		return err
	}

	if c.optimize {
		NewOptimizer(prog, c.log).Run()
	}

	c.mod = mod
	_ = store
	return c.adopt(prog)
}

func (c *Context) adopt(prog *Program) error {
	c.prog = prog
	c.vm = NewVM(prog, c.log)
	c.vm.SetFFI(c.bridge)
	c.globalsRan = false
	return nil
}

// runGlobalsOnce executes the module's global-variable initializers the
// first time anything calls into the VM, giving a host a pre-assignment
// window: SetGlobal calls made between CompileFile/CompileString and the
// first CallFunction/Execute still win, since InitGlobal only assigns when
// a global is absent.
func (c *Context) runGlobalsOnce() error {
	if c.globalsRan {
		return nil
	}
	c.globalsRan = true
	if _, ok := c.prog.Functions[globalInitFuncName]; !ok {
		return nil
	}
	_, err := c.vm.Call(globalInitFuncName, nil)
	return err
}

// Execute runs the module's entry point, "main", with no arguments.
func (c *Context) Execute() (Value, error) {
	return c.CallFunction("main")
}

func (c *Context) CallFunction(name string, args ...Value) (Value, error) {
	if c.vm == nil {
		return Value{}, RuntimeError{Kind: RuntimeErrHostCallback, Message: "context has no compiled program loaded"}
	}
	if err := c.runGlobalsOnce(); err != nil {
		return Value{}, err
	}
	return c.vm.Call(name, args)
}

func (c *Context) RegisterFunction(name string, fn HostFunc) {
	if c.vm != nil {
		c.vm.RegisterHost(name, fn)
	}
}

func (c *Context) GetGlobal(name string) (Value, bool) {
	if c.vm == nil {
		return Value{}, false
	}
	return c.vm.GetGlobal(name)
}

func (c *Context) SetGlobal(name string, v Value) {
	if c.vm != nil {
		c.vm.SetGlobal(name, v)
	}
}

func (c *Context) Diagnostics() *Diagnostics { return c.diags }

// Program exposes the compiled artifact for tooling (--dump disassembly).
func (c *Context) Program() *Program { return c.prog }

func collectFns(mod *Module) map[string]*FnDecl {
	fns := map[string]*FnDecl{}
	for _, d := range mod.Decls {
		if fn, ok := d.(*FnDecl); ok {
			fns[fn.Name] = fn
		}
	}
	return fns
}

func collectFFIFns(mod *Module) map[string]bool {
	ffiFns := map[string]bool{}
	for _, d := range mod.Decls {
		imp, ok := d.(*ImportDecl)
		if !ok || imp.Kind != ImportFFI {
			continue
		}
		for _, fn := range imp.FFIFns {
			ffiFns[fn.Name] = true
		}
	}
	return ffiFns
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
