package etch

// OpCode enumerates the bytecode instruction set: one per-opcode
// struct/name-table entry, register-machine rather than PEG-matching in
// shape.
type OpCode int

const (
	OpLoadK OpCode = iota
	OpLoadBool
	OpLoadNil
	OpLoadNone
	OpMove

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAddInt
	OpSubInt
	OpMulInt
	OpDivInt
	OpModInt
	OpAddFloat
	OpSubFloat
	OpMulFloat
	OpDivFloat
	OpModFloat
	OpAddI
	OpSubI
	OpMulI
	OpDivI
	OpModI
	OpPow
	OpUnm
	OpNot
	OpAnd
	OpOr

	OpEq
	OpLt
	OpLe
	OpEqInt
	OpLtInt
	OpLeInt
	OpEqFloat
	OpLtFloat
	OpLeFloat
	OpEqStore
	OpLtStore
	OpLeStore
	OpNeStore

	OpNewArray
	OpGetIndex
	OpSetIndex
	OpGetIndexI
	OpSetIndexI
	OpGetIndexInt
	OpSetIndexInt
	OpGetIndexFloat
	OpSetIndexFloat
	OpSlice
	OpConcatArray
	OpLen

	OpNewTable
	OpGetField
	OpSetField

	OpNewRef
	OpNewWeak
	OpWeakToStrong
	OpIncRef
	OpDecRef
	OpCheckCycles
	OpSetRef

	OpWrapSome
	OpWrapOk
	OpWrapErr
	OpUnwrapOption
	OpUnwrapResult
	OpCast
	OpTestTag

	OpIn
	OpNotIn

	OpForPrep
	OpForLoop
	OpForIntPrep
	OpForIntLoop

	OpArg
	OpArgImm
	OpCall
	OpCallBuiltin
	OpCallHost
	OpCallFFI

	OpInitGlobal
	OpGetGlobal
	OpSetGlobal

	OpJmp
	OpTest
	OpTestSet
	OpCmpJmp
	OpCmpJmpInt
	OpCmpJmpFloat
	OpLtJmp
	OpIncTest

	OpReturn
	OpTailCall

	OpPushDefer
	OpExecDefers
	OpDeferEnd

	OpSpawn
	OpResume
	OpYield

	// fused forms
	OpAddAdd
	OpMulAdd
	OpMulSub
	OpSubSub
	OpSubMul
	OpDivAdd
	OpAddSub
	OpAddMul
	OpSubDiv
	OpAddAddInt
	OpMulAddInt
	OpMulSubInt
	OpSubSubInt
	OpSubMulInt
	OpDivAddInt
	OpAddSubInt
	OpAddMulInt
	OpSubDivInt
	OpAddAddFloat
	OpMulAddFloat
	OpMulSubFloat
	OpSubSubFloat
	OpSubMulFloat
	OpDivAddFloat
	OpAddSubFloat
	OpAddMulFloat
	OpSubDivFloat

	OpLoadAddStore
	OpLoadSubStore
	OpLoadMulStore
	OpLoadDivStore
	OpLoadModStore
	OpGetAddSet
	OpGetSubSet
	OpGetMulSet
	OpGetDivSet
	OpGetModSet

	OpNoOp

	opCodeCount
)

var opNames = [...]string{
	"LoadK", "LoadBool", "LoadNil", "LoadNone", "Move",
	"Add", "Sub", "Mul", "Div", "Mod",
	"AddInt", "SubInt", "MulInt", "DivInt", "ModInt",
	"AddFloat", "SubFloat", "MulFloat", "DivFloat", "ModFloat",
	"AddI", "SubI", "MulI", "DivI", "ModI",
	"Pow", "Unm", "Not", "And", "Or",
	"Eq", "Lt", "Le", "EqInt", "LtInt", "LeInt", "EqFloat", "LtFloat", "LeFloat",
	"EqStore", "LtStore", "LeStore", "NeStore",
	"NewArray", "GetIndex", "SetIndex", "GetIndexI", "SetIndexI",
	"GetIndexInt", "SetIndexInt", "GetIndexFloat", "SetIndexFloat",
	"Slice", "ConcatArray", "Len",
	"NewTable", "GetField", "SetField",
	"NewRef", "NewWeak", "WeakToStrong", "IncRef", "DecRef", "CheckCycles", "SetRef",
	"WrapSome", "WrapOk", "WrapErr", "UnwrapOption", "UnwrapResult", "Cast", "TestTag",
	"In", "NotIn",
	"ForPrep", "ForLoop", "ForIntPrep", "ForIntLoop",
	"Arg", "ArgImm", "Call", "CallBuiltin", "CallHost", "CallFFI",
	"InitGlobal", "GetGlobal", "SetGlobal",
	"Jmp", "Test", "TestSet", "CmpJmp", "CmpJmpInt", "CmpJmpFloat", "LtJmp", "IncTest",
	"Return", "TailCall",
	"PushDefer", "ExecDefers", "DeferEnd",
	"Spawn", "Resume", "Yield",
	"AddAdd", "MulAdd", "MulSub", "SubSub", "SubMul", "DivAdd", "AddSub", "AddMul", "SubDiv",
	"AddAddInt", "MulAddInt", "MulSubInt", "SubSubInt", "SubMulInt", "DivAddInt", "AddSubInt", "AddMulInt", "SubDivInt",
	"AddAddFloat", "MulAddFloat", "MulSubFloat", "SubSubFloat", "SubMulFloat", "DivAddFloat", "AddSubFloat", "AddMulFloat", "SubDivFloat",
	"LoadAddStore", "LoadSubStore", "LoadMulStore", "LoadDivStore", "LoadModStore",
	"GetAddSet", "GetSubSet", "GetMulSet", "GetDivSet", "GetModSet",
	"NoOp",
}

func (op OpCode) String() string {
	if int(op) >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return "?"
}

// CmpOp enumerates the six comparison operators fused into CmpJmp.
type CmpOp int

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

var cmpOpNames = [...]string{"eq", "ne", "lt", "le", "gt", "ge"}

func (c CmpOp) String() string {
	if int(c) >= 0 && int(c) < len(cmpOpNames) {
		return cmpOpNames[c]
	}
	return "?"
}
