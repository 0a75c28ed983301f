package etch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinNilSameStateUnchanged(t *testing.T) {
	assert.Equal(t, NilNever, JoinNil(NilNever, NilNever))
	assert.Equal(t, NilAlways, JoinNil(NilAlways, NilAlways))
}

func TestJoinNilDisagreementWidensToMaybe(t *testing.T) {
	assert.Equal(t, NilMaybe, JoinNil(NilNever, NilAlways))
}

func TestJoinNilUnknownDominates(t *testing.T) {
	assert.Equal(t, NilUnknown, JoinNil(NilUnknown, NilNever))
	assert.Equal(t, NilUnknown, JoinNil(NilAlways, NilUnknown))
}

func TestNilEnvCloneIsIndependent(t *testing.T) {
	env := NilEnv{"x": NilNever}
	clone := env.Clone()
	clone["x"] = NilAlways

	assert.Equal(t, NilNever, env["x"])
	assert.Equal(t, NilAlways, clone["x"])
}

func TestJoinEnvMergesSharedAndUniqueKeys(t *testing.T) {
	a := NilEnv{"x": NilNever, "y": NilAlways}
	b := NilEnv{"x": NilAlways, "z": NilNever}

	merged := JoinEnv(a, b)
	assert.Equal(t, NilMaybe, merged["x"])
	assert.Equal(t, NilAlways, merged["y"])
	assert.Equal(t, NilNever, merged["z"])
}

func TestNarrowNilCheckEqualityGuard(t *testing.T) {
	thenState, elseState := NarrowNilCheck(true)
	assert.Equal(t, NilAlways, thenState)
	assert.Equal(t, NilNever, elseState)
}

func TestNarrowNilCheckInequalityGuard(t *testing.T) {
	thenState, elseState := NarrowNilCheck(false)
	assert.Equal(t, NilNever, thenState)
	assert.Equal(t, NilAlways, elseState)
}
