package etch

// pureOp reports whether an instruction has no side effect beyond
// writing its destination register, and so is a hoisting candidate.
func pureOp(op OpCode) bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpAddInt, OpSubInt, OpMulInt,
		OpDivInt, OpModInt, OpAddFloat, OpSubFloat, OpMulFloat, OpDivFloat,
		OpModFloat, OpAddI, OpSubI, OpMulI, OpDivI, OpModI, OpPow, OpUnm,
		OpNot, OpAnd, OpOr, OpEq, OpLt, OpLe, OpEqInt, OpLtInt, OpLeInt,
		OpEqFloat, OpLtFloat, OpLeFloat, OpMove, OpLoadK, OpLoadBool,
		OpLen, OpCast:
		return true
	default:
		return false
	}
}

// optimizeLoops finds back-edges (a Jmp/ForLoop/ForIntLoop whose target
// precedes it), then hoists a contiguous prefix of loop-invariant, pure
// instructions out of the repeated region by retargeting the back-edge
// (and any continue-jump landing on the original loop start) past the
// hoisted prefix. The prefix still executes once, on first fall-through
// entry, so no instruction is duplicated or moved — only the repeated
// jump target changes.
//
// Converting the generic iterable ForPrep/ForLoop to an Int-specialized
// form is not attempted here: specialization needs the iterable's
// element type, which this instruction-level pass has no access to (the
// range-form loop is already emitted directly as ForIntPrep/ForIntLoop
// by the compiler, so there is nothing left to specialize there).
func optimizeLoops(p *Program, start, end int) {
	for pc := start; pc < end; pc++ {
		ins := p.Instructions[pc]
		if !isBackEdge(ins.Op) {
			continue
		}
		target := pc + ins.SBx + 1
		if target >= pc || target < start {
			continue
		}
		k := invariantPrefixLen(p, target, pc)
		if k == 0 {
			continue
		}
		newTarget := target + k
		p.Instructions[pc] = Instruction{Op: ins.Op, A: ins.A, B: ins.B, C: ins.C, SBx: newTarget - pc - 1, Debug: ins.Debug}
		retargetContinues(p, start, end, target, newTarget)
	}
}

func isBackEdge(op OpCode) bool {
	return op == OpJmp || op == OpForLoop || op == OpForIntLoop
}

// invariantPrefixLen returns the length of the longest prefix of
// [loopStart, backEdgePC) consisting of pure instructions whose source
// registers are never written anywhere in the loop body (so they must
// be defined outside it).
func invariantPrefixLen(p *Program, loopStart, backEdgePC int) int {
	written := map[int]bool{}
	for pc := loopStart; pc < backEdgePC; pc++ {
		if reg, ok := writeRegister(p.Instructions[pc]); ok {
			written[reg] = true
		}
	}
	k := 0
	for pc := loopStart; pc < backEdgePC; pc++ {
		ins := p.Instructions[pc]
		if !pureOp(ins.Op) {
			break
		}
		safe := true
		for _, r := range readRegisters(ins) {
			if written[r] {
				safe = false
				break
			}
		}
		if !safe {
			break
		}
		k++
	}
	return k
}

// retargetContinues repoints every jump in [start,end) whose computed
// target is exactly oldTarget to newTarget, so continue-statements skip
// the hoisted prefix exactly like the back-edge does.
func retargetContinues(p *Program, start, end, oldTarget, newTarget int) {
	for pc := start; pc < end; pc++ {
		ins := p.Instructions[pc]
		switch ins.Op {
		case OpJmp, OpTest, OpTestSet:
			if pc+ins.SBx+1 == oldTarget {
				p.Instructions[pc].SBx = newTarget - pc - 1
			}
		}
	}
}
