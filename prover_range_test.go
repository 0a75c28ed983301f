package etch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeAddSubMul(t *testing.T) {
	a := &IntRange{Lo: 1, Hi: 5}
	b := &IntRange{Lo: 10, Hi: 20}

	assert.Equal(t, &IntRange{Lo: 11, Hi: 25}, RangeAdd(a, b))
	assert.Equal(t, &IntRange{Lo: -19, Hi: -5}, RangeSub(a, b))
	assert.Equal(t, &IntRange{Lo: 10, Hi: 100}, RangeMul(a, b))
}

func TestRangeAddSaturatesAtInfinity(t *testing.T) {
	a := &IntRange{Lo: math.MaxInt64 - 1, Hi: math.MaxInt64}
	b := &IntRange{Lo: 1, Hi: 1}

	got := RangeAdd(a, b)
	assert.Equal(t, int64(rangePosInf), got.Hi)
}

func TestRangeDivExcludesZeroDivisor(t *testing.T) {
	a := &IntRange{Lo: 10, Hi: 20}
	b := &IntRange{Lo: -1, Hi: 2} // includes zero

	got := RangeDiv(a, b)
	// -1 and 2 survive as divisors, 0 is skipped.
	assert.Equal(t, &IntRange{Lo: -20, Hi: 10}, got)
}

func TestRangeDivAllZeroDivisorFullRange(t *testing.T) {
	a := &IntRange{Lo: 10, Hi: 20}
	b := &IntRange{Lo: 0, Hi: 0}

	got := RangeDiv(a, b)
	assert.Equal(t, fullRange(), got)
}

func TestRangeModBoundedByDivisorMagnitude(t *testing.T) {
	a := &IntRange{Lo: -100, Hi: 100}
	b := &IntRange{Lo: 3, Hi: 3}

	got := RangeMod(a, b)
	assert.Equal(t, &IntRange{Lo: -2, Hi: 2}, got)
}

func TestRangeModNonNegativeDividendIsNonNegative(t *testing.T) {
	a := &IntRange{Lo: 0, Hi: 100}
	b := &IntRange{Lo: 3, Hi: 3}

	got := RangeMod(a, b)
	assert.Equal(t, int64(0), got.Lo)
}

func TestNarrowGTExcludesBoundary(t *testing.T) {
	r := &IntRange{Lo: 0, Hi: 100}
	got := NarrowGT(r, 50)
	assert.Equal(t, &IntRange{Lo: 51, Hi: 100}, got)
}

func TestNarrowLEIncludesBoundary(t *testing.T) {
	r := &IntRange{Lo: 0, Hi: 100}
	got := NarrowLE(r, 50)
	assert.Equal(t, &IntRange{Lo: 0, Hi: 50}, got)
}

func TestNarrowEQProducesSingleton(t *testing.T) {
	got := NarrowEQ(7)
	assert.True(t, got.IsConstant())
	assert.Equal(t, int64(7), got.Lo)
}

func TestNarrowProducesEmptyRangeWhenDisjoint(t *testing.T) {
	r := &IntRange{Lo: 0, Hi: 10}
	got := NarrowGT(r, 100)
	assert.True(t, got.IsEmpty())
}

func TestWidenExpandsMovingBoundToInfinity(t *testing.T) {
	prev := &IntRange{Lo: 0, Hi: 10}
	next := &IntRange{Lo: 0, Hi: 20}

	got := Widen(prev, next)
	assert.Equal(t, int64(rangePosInf), got.Hi)
	assert.Equal(t, int64(0), got.Lo)
}

func TestWidenKeepsStableBound(t *testing.T) {
	prev := &IntRange{Lo: 0, Hi: 10}
	next := &IntRange{Lo: 0, Hi: 10}

	got := Widen(prev, next)
	assert.Equal(t, prev, got)
}

func TestContainsZero(t *testing.T) {
	assert.True(t, (&IntRange{Lo: -5, Hi: 5}).ContainsZero())
	assert.False(t, (&IntRange{Lo: 1, Hi: 5}).ContainsZero())
}
