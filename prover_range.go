package etch

import "math"

// IntRange is the integer interval `[Lo, Hi]` the prover tracks for every
// int-typed expression. Infinity sentinels let the
// lattice express "unbounded above/below" without a pointer indirection.
type IntRange struct {
	Lo, Hi int64
}

const (
	rangeNegInf = math.MinInt64
	rangePosInf = math.MaxInt64
)

func fullRange() *IntRange { return &IntRange{Lo: rangeNegInf, Hi: rangePosInf} }

func singleton(v int64) *IntRange { return &IntRange{Lo: v, Hi: v} }

func (r *IntRange) ContainsZero() bool { return r.Lo <= 0 && 0 <= r.Hi }

func (r *IntRange) IsConstant() bool { return r.Lo == r.Hi }

// addSat/subSat/mulSat saturate to the infinity sentinels instead of
// overflowing int64 during interval arithmetic itself (the prover is
// allowed unbounded math; only the *target* range is checked against the
// destination type's width).
func addSat(a, b int64) int64 {
	if a == rangeNegInf || b == rangeNegInf {
		return rangeNegInf
	}
	if a == rangePosInf || b == rangePosInf {
		return rangePosInf
	}
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		if b > 0 {
			return rangePosInf
		}
		return rangeNegInf
	}
	return sum
}

func mulSat(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a == rangeNegInf || a == rangePosInf || b == rangeNegInf || b == rangePosInf {
		if (a < 0) != (b < 0) {
			return rangeNegInf
		}
		return rangePosInf
	}
	p := a * b
	if p/a != b {
		if (a < 0) != (b < 0) {
			return rangeNegInf
		}
		return rangePosInf
	}
	return p
}

func minI(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
func maxI(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// RangeAdd, RangeSub, RangeMul implement interval arithmetic for the range prover.
func RangeAdd(a, b *IntRange) *IntRange {
	return &IntRange{Lo: addSat(a.Lo, b.Lo), Hi: addSat(a.Hi, b.Hi)}
}

func RangeSub(a, b *IntRange) *IntRange {
	return &IntRange{Lo: addSat(a.Lo, safeNeg(b.Hi)), Hi: addSat(a.Hi, safeNeg(b.Lo))}
}

func safeNeg(v int64) int64 {
	if v == rangeNegInf {
		return rangePosInf
	}
	if v == rangePosInf {
		return rangeNegInf
	}
	return -v
}

func RangeMul(a, b *IntRange) *IntRange {
	candidates := []int64{
		mulSat(a.Lo, b.Lo), mulSat(a.Lo, b.Hi),
		mulSat(a.Hi, b.Lo), mulSat(a.Hi, b.Hi),
	}
	lo, hi := candidates[0], candidates[0]
	for _, c := range candidates[1:] {
		lo, hi = minI(lo, c), maxI(hi, c)
	}
	return &IntRange{Lo: lo, Hi: hi}
}

// RangeDiv implements truncating-toward-zero division, matching the VM's
// `/` semantics. Callers must check b.ContainsZero() before calling.
func RangeDiv(a, b *IntRange) *IntRange {
	if b.Lo == 0 && b.Hi == 0 {
		return fullRange()
	}
	var candidates []int64
	for _, bv := range []int64{b.Lo, b.Hi} {
		if bv == 0 {
			continue
		}
		for _, av := range []int64{a.Lo, a.Hi} {
			candidates = append(candidates, truncDiv(av, bv))
		}
	}
	if len(candidates) == 0 {
		return fullRange()
	}
	lo, hi := candidates[0], candidates[0]
	for _, c := range candidates[1:] {
		lo, hi = minI(lo, c), maxI(hi, c)
	}
	return &IntRange{Lo: lo, Hi: hi}
}

func truncDiv(a, b int64) int64 {
	if a == rangeNegInf || a == rangePosInf {
		if (a < 0) != (b < 0) {
			return rangeNegInf
		}
		return rangePosInf
	}
	return a / b
}

// RangeMod bounds the remainder of truncating division: result magnitude is
// strictly less than the divisor's magnitude and carries the dividend's
// sign, matching the VM's `%` semantics.
func RangeMod(a, b *IntRange) *IntRange {
	bound := maxI(absI(b.Lo), absI(b.Hi))
	if bound == rangePosInf || bound == 0 {
		return fullRange()
	}
	lo, hi := -(bound - 1), bound-1
	if a.Lo >= 0 {
		lo = 0
	}
	if a.Hi <= 0 {
		hi = 0
	}
	return &IntRange{Lo: lo, Hi: hi}
}

func absI(v int64) int64 {
	if v == rangeNegInf {
		return rangePosInf
	}
	if v < 0 {
		return -v
	}
	return v
}

// NarrowGT/NarrowLT/etc. narrow a range given a comparison against a
// constant, used to split ranges across `if` branches.
func NarrowGT(r *IntRange, c int64) *IntRange {
	if c == rangePosInf {
		return &IntRange{Lo: rangePosInf, Hi: rangeNegInf} // empty
	}
	return &IntRange{Lo: maxI(r.Lo, c+1), Hi: r.Hi}
}
func NarrowGE(r *IntRange, c int64) *IntRange {
	return &IntRange{Lo: maxI(r.Lo, c), Hi: r.Hi}
}
func NarrowLT(r *IntRange, c int64) *IntRange {
	if c == rangeNegInf {
		return &IntRange{Lo: rangePosInf, Hi: rangeNegInf}
	}
	return &IntRange{Lo: r.Lo, Hi: minI(r.Hi, c-1)}
}
func NarrowLE(r *IntRange, c int64) *IntRange {
	return &IntRange{Lo: r.Lo, Hi: minI(r.Hi, c)}
}
func NarrowEQ(c int64) *IntRange { return singleton(c) }
func NarrowNE(r *IntRange, c int64) *IntRange {
	if r.IsConstant() && r.Lo == c {
		return &IntRange{Lo: rangePosInf, Hi: rangeNegInf}
	}
	return r
}

// IsEmpty reports a range made empty by narrowing (proves the guarded
// branch unreachable).
func (r *IntRange) IsEmpty() bool { return r.Lo > r.Hi }

// Widen applies the loop back-edge widening rule: after a small fixed
// number of narrowing rounds, any bound that kept moving is widened to
// infinity rather than iterated further.
func Widen(prev, next *IntRange) *IntRange {
	lo, hi := next.Lo, next.Hi
	if next.Lo < prev.Lo {
		lo = rangeNegInf
	}
	if next.Hi > prev.Hi {
		hi = rangePosInf
	}
	return &IntRange{Lo: lo, Hi: hi}
}

// FitsInInt64 always holds since Value ints are int64; this hook exists
// for parity with a future narrower integer width.
func (r *IntRange) FitsInInt64() bool { return true }

// RangeEnv is a flat map from int-typed variable name to its proven
// IntRange within one analyzer scope walk; the analyzer clones it at
// branch/loop points and joins or widens clones back together at merge
// points, mirroring NilEnv/InitEnv.
type RangeEnv map[string]*IntRange

func (e RangeEnv) Clone() RangeEnv {
	out := make(RangeEnv, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// JoinRangeEnv merges two range environments produced by divergent
// branches, unioning each variable known to both; a variable known to
// only one side carries over unwidened, mirroring JoinEnv's nil-lattice
// one-sided behavior.
func JoinRangeEnv(a, b RangeEnv) RangeEnv {
	out := make(RangeEnv, len(a))
	for k, av := range a {
		if bv, ok := b[k]; ok {
			out[k] = &IntRange{Lo: minI(av.Lo, bv.Lo), Hi: maxI(av.Hi, bv.Hi)}
		} else {
			out[k] = av
		}
	}
	for k, bv := range b {
		if _, ok := out[k]; !ok {
			out[k] = bv
		}
	}
	return out
}

// WidenRangeEnv applies the loop back-edge widening rule per variable: a
// bound that moved between the loop's entry range and its post-body exit
// range is widened to infinity instead of iterated further.
func WidenRangeEnv(prev, next RangeEnv) RangeEnv {
	out := make(RangeEnv, len(prev))
	for k, pv := range prev {
		if nv, ok := next[k]; ok {
			out[k] = Widen(pv, nv)
		} else {
			out[k] = pv
		}
	}
	for k, nv := range next {
		if _, ok := out[k]; !ok {
			out[k] = nv
		}
	}
	return out
}

// rangeEnvEqual reports whether two range environments carry identical
// bounds for every variable, used to detect the widening fixpoint.
func rangeEnvEqual(a, b RangeEnv) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || av.Lo != bv.Lo || av.Hi != bv.Hi {
			return false
		}
	}
	return true
}
