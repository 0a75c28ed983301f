package etch

import "github.com/sirupsen/logrus"

// Optimizer runs a seven-pass pipeline over every function in a compiled
// Program, in a fixed order. Each pass operates on one function's
// [StartPC, EndPC) instruction range and must leave the stream
// semantically equivalent; only the final pass changes instruction count
// (NoOp removal), so every jump target in the program is patched exactly
// once, at the very end.
type Optimizer struct {
	prog *Program
	log  logrus.FieldLogger
}

func NewOptimizer(prog *Program, log logrus.FieldLogger) *Optimizer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Optimizer{prog: prog, log: log}
}

// Run executes the six per-function passes over every native function
// record, then the final program-wide no-op removal and jump repair pass.
func (o *Optimizer) Run() {
	names := make([]string, 0, len(o.prog.Functions))
	for _, name := range o.prog.FuncNames {
		rec := o.prog.Functions[name]
		if rec.Kind != FnNative {
			continue
		}
		names = append(names, name)
	}

	for _, name := range names {
		rec := o.prog.Functions[name]
		o.log.WithField("func", name).Debug("optimizing")
		foldConstants(o.prog, rec.StartPC, rec.EndPC)
		convertImmediates(o.prog, rec.StartPC, rec.EndPC)
		peephole(o.prog, rec.StartPC, rec.EndPC)
		fuseInstructions(o.prog, rec.StartPC, rec.EndPC)
		fuseMoves(o.prog, rec.StartPC, rec.EndPC)
		optimizeLoops(o.prog, rec.StartPC, rec.EndPC)
	}

	removeNoOpsAndRepairJumps(o.prog)
}
