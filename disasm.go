package etch

import (
	"fmt"
	"strings"

	"github.com/kunitoki/etch/ascii"
)

// asmToken classifies a chunk of disassembly output for syntax
// highlighting, feeding the Disassemble/DisassembleHighlighted pair.
type asmToken int

const (
	tokNone asmToken = iota
	tokComment
	tokLabel
	tokOperand
	tokLiteral
)

type asmFormatFunc func(s string, tok asmToken) string

// Disassemble renders prog as plain, uncolored text.
func Disassemble(prog *Program) string {
	return disassemble(prog, func(s string, _ asmToken) string { return s })
}

// DisassembleHighlighted renders prog with ANSI colors from theme.
func DisassembleHighlighted(prog *Program, theme *ascii.Theme) string {
	if theme == nil {
		theme = &ascii.DefaultTheme
	}
	return disassemble(prog, func(s string, tok asmToken) string {
		switch tok {
		case tokComment:
			return ascii.Color(theme.Comment, "%s", s)
		case tokLabel:
			return ascii.Color(theme.Label, "%s", s)
		case tokOperand:
			return ascii.Color(theme.Operand, "%s", s)
		case tokLiteral:
			return ascii.Color(theme.Literal, "%s", s)
		default:
			return s
		}
	})
}

func disassemble(prog *Program, format asmFormatFunc) string {
	var s strings.Builder

	for _, name := range prog.FuncNames {
		rec, ok := prog.Functions[name]
		if !ok || rec.Kind != FnNative {
			continue
		}

		loc := "?"
		if rec.StartPC < len(prog.DebugInfo) {
			d := prog.DebugInfo[rec.StartPC]
			loc = fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Col)
		}
		s.WriteString(format(fmt.Sprintf("\n;; %s @ %s\n", name, loc), tokComment))

		for pc := rec.StartPC; pc < rec.EndPC && pc < len(prog.Instructions); pc++ {
			ins := prog.Instructions[pc]
			s.WriteString(format(fmt.Sprintf("%06d  ", pc), tokComment))
			s.WriteString(format(fmt.Sprintf("%-14s", ins.Op.String()), tokOperand))
			s.WriteString(operandString(prog, ins, pc, format))
			s.WriteString("\n")
		}
	}
	return s.String()
}

// operandString renders the operand fields meaningful for ins.Op's
// actual layout, per the per-opcode conventions vm_ops_*.go executes
// against. Opcodes without a dedicated case (the reserved Int/Float
// fused and Load/Get-Store-Set forms the optimizer does not yet emit)
// fall through to a generic labeled dump of every field.
func operandString(prog *Program, ins Instruction, pc int, format asmFormatFunc) string {
	reg := func(n int) string { return format(fmt.Sprintf(" r%d", n), tokLiteral) }
	imm := func(n int) string { return format(fmt.Sprintf(" #%d", n), tokLiteral) }
	jmp := func(offset int) string { return format(fmt.Sprintf(" =>%06d", pc+offset+1), tokLabel) }
	k := func(idx int) string {
		if idx < 0 || idx >= len(prog.Constants) {
			return format(fmt.Sprintf(" k%d", idx), tokLiteral)
		}
		return format(fmt.Sprintf(" %s", prog.Constants[idx].String()), tokLiteral)
	}

	switch ins.Op {
	case OpLoadK:
		return reg(ins.A) + k(ins.Bx)
	case OpLoadBool:
		return reg(ins.A) + imm(ins.B)
	case OpLoadNil, OpLoadNone:
		return reg(ins.A)
	case OpMove, OpUnm, OpNot, OpLen, OpNewWeak, OpWeakToStrong, OpIncRef, OpDecRef,
		OpWrapSome, OpWrapOk, OpWrapErr, OpUnwrapOption, OpUnwrapResult:
		return reg(ins.A) + reg(ins.B)
	case OpSetRef, OpAnd, OpOr:
		return reg(ins.A) + reg(ins.B)

	case OpAdd, OpSub, OpMul, OpDiv, OpMod,
		OpAddInt, OpSubInt, OpMulInt, OpDivInt, OpModInt,
		OpAddFloat, OpSubFloat, OpMulFloat, OpDivFloat, OpModFloat,
		OpPow, OpEq, OpLt, OpLe, OpEqInt, OpLtInt, OpLeInt, OpEqFloat, OpLtFloat, OpLeFloat,
		OpGetIndex, OpSetIndex, OpGetIndexInt, OpSetIndexInt, OpGetIndexFloat, OpSetIndexFloat,
		OpConcatArray, OpIn, OpNotIn:
		return reg(ins.A) + reg(ins.B) + reg(ins.C)

	case OpAddI, OpSubI, OpMulI, OpDivI, OpModI:
		return reg(ins.A) + reg(ins.B) + imm(ins.C)
	case OpGetIndexI:
		return reg(ins.A) + reg(ins.B) + imm(ins.C)
	case OpSetIndexI:
		return reg(ins.A) + imm(ins.B) + reg(ins.C)

	case OpEqStore, OpLtStore, OpLeStore, OpNeStore:
		return reg(ins.A) + reg(ins.B) + reg(ins.C)

	case OpNewArray:
		return reg(ins.A) + imm(ins.Bx)
	case OpNewTable:
		return reg(ins.A) + k(ins.Bx)
	case OpSlice:
		lo, hi := "nil", "nil"
		if ins.C >= 0 {
			lo = fmt.Sprintf("r%d", ins.C)
		}
		if ins.Bx >= 0 {
			hi = fmt.Sprintf("r%d", ins.Bx)
		}
		return reg(ins.A) + reg(ins.B) + format(" "+lo+".."+hi, tokLiteral)

	case OpGetField, OpSetField, OpCast, OpTestTag:
		return reg(ins.A) + reg(ins.B) + k(ins.Bx)

	case OpNewRef:
		return reg(ins.A)

	case OpForIntPrep, OpForPrep:
		return reg(ins.A) + reg(ins.B) + imm(ins.C) + jmp(ins.SBx)
	case OpForIntLoop, OpForLoop:
		return reg(ins.A) + reg(ins.B) + imm(ins.C) + jmp(ins.SBx)

	case OpArg:
		return reg(ins.A)
	case OpArgImm:
		return imm(ins.A)
	case OpCall, OpTailCall, OpCallBuiltin, OpCallHost, OpCallFFI, OpSpawn:
		return reg(ins.A) + k(ins.Bx) + format(fmt.Sprintf(" argc=%d", ins.Ax), tokLiteral)
	case OpResume:
		return reg(ins.A) + reg(ins.B)

	case OpInitGlobal, OpGetGlobal, OpSetGlobal:
		return reg(ins.A) + k(ins.Bx)

	case OpJmp:
		return jmp(ins.SBx)
	case OpTest, OpTestSet:
		return reg(ins.A) + imm(ins.B)
	case OpCmpJmp, OpCmpJmpInt, OpCmpJmpFloat, OpLtJmp:
		return reg(ins.A) + reg(ins.B) + format(fmt.Sprintf(" %s", CmpOp(ins.C)), tokLiteral) + jmp(ins.Ax)
	case OpIncTest:
		return reg(ins.A) + reg(ins.B) + jmp(ins.Ax)

	case OpReturn:
		return reg(ins.A)
	case OpYield:
		return reg(ins.B)
	case OpPushDefer:
		return k(ins.Bx)

	case OpNoOp, OpExecDefers, OpDeferEnd, OpCheckCycles:
		return ""

	default:
		return format(fmt.Sprintf(" A=%d B=%d C=%d Bx=%d SBx=%d Ax=%d", ins.A, ins.B, ins.C, ins.Bx, ins.SBx, ins.Ax), tokLiteral)
	}
}
