package etch

// fuseMoves re-runs the Arith+Move forwarding rule of the peephole pass
// after fusion: collapses `Op r_tmp, rX, rY; Move r_dst, r_tmp` into
// `Op r_dst, rX, rY` when r_tmp is dead afterward. A second sweep is
// needed here because the earlier fusion pass can introduce new Op+Move
// pairs the peephole pass never saw.
func fuseMoves(p *Program, start, end int) {
	li := AnalyzeLifetimes(p.Instructions, start, end)
	for pc := start; pc+1 < end; pc++ {
		first := p.Instructions[pc]
		second := p.Instructions[pc+1]
		if second.Op != OpMove || first.Op == OpNoOp {
			continue
		}
		tmp, ok := writeRegister(first)
		if !ok || tmp != second.B {
			continue
		}
		if !li.EndsAt(tmp, pc+1) {
			continue
		}
		forwarded := first
		forwarded.A = second.A
		p.Instructions[pc] = forwarded
		p.Instructions[pc+1] = Instruction{Op: OpNoOp}
	}
}
