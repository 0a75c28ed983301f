package etch

// fusionForm maps a (first op, second op) pair sharing an operand into
// the matching three-register fused opcode. Only the generic (untyped)
// fused forms are produced here; the Int/Float-specialized fused opcodes
// are reserved for a future type-directed extension of this pass (reading
// each register's known type off the analyzer's annotations) and are left
// unused rather than guessed at.
var fusionForm = map[[2]OpCode]OpCode{
	{OpAdd, OpAdd}: OpAddAdd,
	{OpMul, OpAdd}: OpMulAdd,
	{OpMul, OpSub}: OpMulSub,
	{OpSub, OpSub}: OpSubSub,
	{OpSub, OpMul}: OpSubMul,
	{OpDiv, OpAdd}: OpDivAdd,
	{OpAdd, OpSub}: OpAddSub,
	{OpAdd, OpMul}: OpAddMul,
	{OpSub, OpDiv}: OpSubDiv,
}

// fuseInstructions rewrites adjacent arithmetic pairs sharing a
// dead-after-use intermediate register into one three-register fused
// instruction. Never fuses across a jump target, and never fuses when
// the first instruction's destination would still be read after the
// second (the fused form discards it).
func fuseInstructions(p *Program, start, end int) {
	targets := jumpTargets(p, start, end)
	li := AnalyzeLifetimes(p.Instructions, start, end)

	for pc := start; pc+1 < end; pc++ {
		if targets[pc+1] {
			continue
		}
		first := p.Instructions[pc]
		second := p.Instructions[pc+1]
		fused, ok := fusionForm[[2]OpCode{first.Op, second.Op}]
		if !ok {
			continue
		}
		var thirdReg int
		var thirdIsB bool
		switch {
		case second.B == first.A && second.C != first.A:
			thirdReg, thirdIsB = second.C, false
		case second.C == first.A && second.B != first.A && commutative(second.Op):
			thirdReg, thirdIsB = second.B, true
		default:
			continue
		}
		if !li.EndsAt(first.A, pc+1) {
			continue // first's destination observed again later; unsafe to discard
		}
		var rX, rY, rZ int
		rX, rY = first.B, first.C
		if thirdIsB {
			rZ = thirdReg
		} else {
			rZ = thirdReg
		}
		_ = rX
		_ = rY
		p.Instructions[pc] = Instruction{Op: fused, A: second.A, B: first.B, C: first.C, Bx: rZ, Debug: first.Debug}
		p.Instructions[pc+1] = Instruction{Op: OpNoOp}
	}
}

// jumpTargets collects every PC that a jump or conditional-jump
// instruction in [start,end) can land on.
func jumpTargets(p *Program, start, end int) map[int]bool {
	out := map[int]bool{}
	for pc := start; pc < end; pc++ {
		ins := p.Instructions[pc]
		switch ins.Op {
		case OpJmp, OpTest, OpTestSet, OpForIntLoop, OpForLoop, OpForIntPrep, OpForPrep:
			out[pc+ins.SBx+1] = true
		case OpCmpJmp, OpCmpJmpInt, OpCmpJmpFloat, OpLtJmp, OpIncTest:
			out[pc+ins.Ax+1] = true
		}
	}
	return out
}
