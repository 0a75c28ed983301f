package etch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinInitSameStateUnchanged(t *testing.T) {
	assert.Equal(t, InitYes, JoinInit(InitYes, InitYes))
	assert.Equal(t, InitNo, JoinInit(InitNo, InitNo))
}

func TestJoinInitDisagreementBecomesMaybe(t *testing.T) {
	assert.Equal(t, InitMaybe, JoinInit(InitYes, InitNo))
}

func TestInitEnvCloneIsIndependent(t *testing.T) {
	env := InitEnv{"x": InitYes}
	clone := env.Clone()
	clone["x"] = InitNo

	assert.Equal(t, InitYes, env["x"])
	assert.Equal(t, InitNo, clone["x"])
}

func TestJoinInitEnvMergesSharedAndUniqueKeys(t *testing.T) {
	a := InitEnv{"x": InitYes, "y": InitNo}
	b := InitEnv{"x": InitNo, "z": InitYes}

	merged := JoinInitEnv(a, b)
	assert.Equal(t, InitMaybe, merged["x"])
	assert.Equal(t, InitMaybe, merged["y"], "key only present in a joins against the implicit InitMaybe default")
	assert.Equal(t, InitMaybe, merged["z"], "key only present in b joins against the implicit InitMaybe default")
}
