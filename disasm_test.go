package etch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kunitoki/etch/ascii"
)

func TestDisassembleMentionsFunctionAndMnemonics(t *testing.T) {
	prog := buildFn("main", 2, func(p *Program) {
		p.Emit(Instruction{Op: OpLoadK, A: 0, Bx: p.AddConstant(IntValue(3))})
		p.Emit(Instruction{Op: OpLoadK, A: 1, Bx: p.AddConstant(IntValue(4))})
		p.Emit(Instruction{Op: OpAddInt, A: 0, B: 0, C: 1})
		p.Emit(Instruction{Op: OpReturn, A: 0})
	})

	out := Disassemble(prog)

	assert.Contains(t, out, ";; main @")
	assert.Contains(t, out, OpLoadK.String())
	assert.Contains(t, out, OpAddInt.String())
	assert.Contains(t, out, OpReturn.String())
	assert.Contains(t, out, " r0")
	assert.Contains(t, out, " 3")
}

func TestDisassembleSkipsNonNativeFunctions(t *testing.T) {
	prog := NewProgram()
	prog.AddFunction("puts", &FunctionRecord{Kind: FnHost, Name: "puts"})

	out := Disassemble(prog)
	assert.Equal(t, "", strings.TrimSpace(out))
}

func TestDisassembleHighlightedAddsColorWithoutChangingText(t *testing.T) {
	prog := buildFn("main", 1, func(p *Program) {
		p.Emit(Instruction{Op: OpLoadK, A: 0, Bx: p.AddConstant(IntValue(1))})
		p.Emit(Instruction{Op: OpReturn, A: 0})
	})

	plain := Disassemble(prog)
	highlighted := DisassembleHighlighted(prog, &ascii.DefaultTheme)

	assert.NotEqual(t, plain, highlighted)
	assert.Greater(t, len(highlighted), len(plain))

	stripped := stripANSI(highlighted)
	assert.Equal(t, plain, stripped)
}

// stripANSI removes the "\x1b[...m" escape sequences ascii.Color wraps
// tokens in, so the underlying text can be compared against the
// uncolored rendering.
func stripANSI(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b {
			j := strings.IndexByte(s[i:], 'm')
			if j >= 0 {
				i += j
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func TestDisassembleJumpTargetsAreAbsolute(t *testing.T) {
	prog := buildFn("main", 1, func(p *Program) {
		p.Emit(Instruction{Op: OpLoadK, A: 0, Bx: p.AddConstant(IntValue(0))})
		jmp := p.Emit(Instruction{Op: OpJmp})
		target := p.Emit(Instruction{Op: OpReturn, A: 0})
		p.Instructions[jmp] = patchSBx(p.Instructions[jmp], jmp, target)
	})

	out := Disassemble(prog)
	assert.Contains(t, out, "=>000002")
}
