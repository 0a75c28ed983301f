package etch

var immediateForm = map[OpCode]OpCode{
	OpAdd: OpAddI, OpSub: OpSubI, OpMul: OpMulI, OpDiv: OpDivI, OpMod: OpModI,
}

// convertImmediates rewrites `LoadK rK, c; BinOp rDst, rA, rK` into the
// matching `*I` immediate form when c is an 8-bit signed integer
// constant. The wiped LoadK becomes NoOp.
func convertImmediates(p *Program, start, end int) {
	for pc := start; pc+1 < end; pc++ {
		load := p.Instructions[pc]
		if load.Op != OpLoadK {
			continue
		}
		c := p.Constants[load.Bx]
		if c.Kind != VInt || c.I < -128 || c.I > 127 {
			continue
		}
		op := p.Instructions[pc+1]
		immOp, ok := immediateForm[op.Op]
		if !ok {
			continue
		}
		switch {
		case op.C == load.A:
			p.Instructions[pc+1] = Instruction{Op: immOp, A: op.A, B: op.B, C: int(c.I), Debug: op.Debug}
			p.Instructions[pc] = Instruction{Op: OpNoOp}
		case op.B == load.A && commutative(op.Op):
			p.Instructions[pc+1] = Instruction{Op: immOp, A: op.A, B: op.C, C: int(c.I), Debug: op.Debug}
			p.Instructions[pc] = Instruction{Op: OpNoOp}
		}
	}
}

func commutative(op OpCode) bool {
	return op == OpAdd || op == OpMul
}
