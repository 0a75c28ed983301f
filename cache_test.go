package etch

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheStoreThenLoadHits(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.etch")

	prog := buildFn("main", 1, func(p *Program) {
		p.Emit(Instruction{Op: OpLoadK, A: 0, Bx: p.AddConstant(IntValue(7))})
		p.Emit(Instruction{Op: OpReturn, A: 0})
	})
	hash := SourceHash([]byte("fn main() i32 { 7 }"), true)
	prog.SourceHash = hash

	c := NewCache(nil, false)
	require.NoError(t, c.Store(src, prog))

	loaded := c.Load(src, hash)
	require.NotNil(t, loaded)
	assert.Equal(t, prog.Instructions, loaded.Instructions)
	assert.Equal(t, prog.Constants, loaded.Constants)
}

func TestCacheLoadMissesOnHashMismatch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.etch")

	prog := buildFn("main", 0, func(p *Program) {
		p.Emit(Instruction{Op: OpReturn, A: -1})
	})
	prog.SourceHash = SourceHash([]byte("old"), true)

	c := NewCache(nil, false)
	require.NoError(t, c.Store(src, prog))

	assert.Nil(t, c.Load(src, SourceHash([]byte("new"), true)))
}

func TestCacheForceAlwaysMisses(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.etch")

	prog := buildFn("main", 0, func(p *Program) {
		p.Emit(Instruction{Op: OpReturn, A: -1})
	})
	hash := SourceHash([]byte("src"), true)
	prog.SourceHash = hash

	c := NewCache(nil, false)
	require.NoError(t, c.Store(src, prog))

	forced := NewCache(nil, true)
	assert.Nil(t, forced.Load(src, hash))
}

func TestCacheLoadMissesOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(nil, false)
	assert.Nil(t, c.Load(filepath.Join(dir, "nope.etch"), 0))
}

func TestSourceHashDiffersByOptimizeFlag(t *testing.T) {
	src := []byte("fn main() i32 { 1 }")
	assert.NotEqual(t, SourceHash(src, true), SourceHash(src, false))
}
