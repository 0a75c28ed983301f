package etch

import (
	"fmt"

	"github.com/ebitengine/purego"
	"github.com/sirupsen/logrus"
)

// EmbedOptions mirrors the `opts` bag context_new takes: verbose/debug
// logging toggles and the cycle-collector's allocation budget.
type EmbedOptions struct {
	Verbose         bool
	Debug           bool
	Optimize        bool
	Force           bool
	GCCycleInterval int
}

// Embed is the host-facing contract: a thin, error-returning wrapper
// around Context shaped like a C-style API (context_new/free,
// compile_string/file, execute, get/set/has_global, call_function,
// register_function, the GC budget calls, get_error), so a future cgo
// export layer has a single place to bind against. There is no separate
// context_free: Go's GC reclaims an Embed once the host drops its last
// reference, so Close only releases native FFI library handles.
type Embed struct {
	ctx        *Context
	lastErr    error
	gcInterval int
}

// ContextNew is the embedding API's context_new.
func ContextNew(opts EmbedOptions) *Embed {
	cfg := NewConfig()
	cfg.SetBool("vm.verbose", opts.Verbose)
	cfg.SetBool("vm.debug", opts.Debug)
	if opts.GCCycleInterval > 0 {
		cfg.SetInt("vm.gcCycleInterval", opts.GCCycleInterval)
	}
	cfg.SetBool("compiler.optimize", opts.Optimize)
	cfg.SetBool("compiler.force", opts.Force)

	log := newLoggerFromConfig(cfg)
	ctx := NewContext(WithLogger(log), WithOptimizer(opts.Optimize), WithForceRecompile(opts.Force))
	interval := opts.GCCycleInterval
	if interval <= 0 {
		interval = cfg.GetInt("vm.gcCycleInterval")
	}
	return &Embed{ctx: ctx, gcInterval: interval}
}

// Close releases resources the Embed owns that Go's GC doesn't, namely
// any dynamic libraries the FFI bridge dlopen'd.
func (e *Embed) Close() {
	if e.ctx != nil && e.ctx.bridge != nil {
		for _, h := range e.ctx.bridge.libs {
			purego.Dlclose(h)
		}
	}
	e.ctx = nil
}

func (e *Embed) CompileString(source []byte, name string) error {
	err := e.ctx.CompileString(name, source)
	e.lastErr = err
	if err == nil {
		e.applyGCInterval()
	}
	return err
}

func (e *Embed) CompileFile(path string) error {
	err := e.ctx.CompileFile(path)
	e.lastErr = err
	if err == nil {
		e.applyGCInterval()
	}
	return err
}

func (e *Embed) applyGCInterval() {
	if e.ctx.vm != nil && e.gcInterval > 0 {
		e.ctx.vm.SetGCInterval(e.gcInterval)
	}
}

// Execute runs "main" and reduces its result to a process exit code:
// Ok(0) (or any non-error, non-result return) is success, Err(_) is 1,
// any Go error from the call itself is also 1.
func (e *Embed) Execute() (int, error) {
	v, err := e.ctx.Execute()
	e.lastErr = err
	if err != nil {
		return 1, err
	}
	if v.Kind == VErr {
		return 1, nil
	}
	return 0, nil
}

func (e *Embed) GetGlobal(name string) (Value, bool) { return e.ctx.GetGlobal(name) }
func (e *Embed) SetGlobal(name string, v Value)       { e.ctx.SetGlobal(name, v) }

func (e *Embed) HasGlobal(name string) bool {
	_, ok := e.ctx.GetGlobal(name)
	return ok
}

// CallFunction is call_function: on failure, including an unknown
// function name, it returns a nil Value (callers check value_is_nil)
// together with the Go error, matching a "Value | null" return shape.
func (e *Embed) CallFunction(name string, args ...Value) (Value, error) {
	v, err := e.ctx.CallFunction(name, args...)
	e.lastErr = err
	if err != nil {
		return NilValue(), err
	}
	return v, nil
}

// RegisterFunction is register_function. userData is folded into the
// closure the caller provides rather than threaded separately, since Go
// closures already capture what a C callback would need a void* for.
func (e *Embed) RegisterFunction(name string, fn HostFunc) error {
	if e.ctx == nil {
		return fmt.Errorf("etch: embed context is closed")
	}
	e.ctx.RegisterFunction(name, fn)
	return nil
}

// BeginFrame/GetGCStats/NeedsGCFrame/HeapNeedsCollection form the GC
// budget group, letting a host interleave collection with its own frame
// loop instead of taking a cycle-collector pause mid-frame.
func (e *Embed) BeginFrame(usBudget int64) {
	if e.ctx.vm != nil {
		e.ctx.vm.BeginFrame(usBudget)
	}
}

func (e *Embed) GetGCStats() GCStats {
	if e.ctx.vm == nil {
		return GCStats{}
	}
	return e.ctx.vm.GCStats()
}

func (e *Embed) NeedsGCFrame() bool {
	return e.ctx.vm != nil && e.ctx.vm.NeedsGCFrame()
}

func (e *Embed) HeapNeedsCollection() bool {
	return e.ctx.vm != nil && e.ctx.vm.HeapNeedsCollection()
}

// GetError is the embedding API's error channel: the message of the
// last CompileString/CompileFile/Execute/CallFunction failure, or "" if
// the last such call succeeded.
func (e *Embed) GetError() string {
	if e.lastErr == nil {
		return ""
	}
	return e.lastErr.Error()
}

// newLoggerFromConfig maps the `--verbose`/`--debug` flags onto a
// logrus level, the way a CLI entry point configures its shared logger
// from parsed flags.
func newLoggerFromConfig(cfg *Config) logrus.FieldLogger {
	log := logrus.New()
	switch {
	case cfg.GetBool("vm.debug"):
		log.SetLevel(logrus.DebugLevel)
	case cfg.GetBool("vm.verbose"):
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}
