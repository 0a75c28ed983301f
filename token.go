package etch

import "fmt"

// TokenKind enumerates every lexical category the lexer produces.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent

	// literals
	TokInt
	TokFloat
	TokChar
	TokString

	// keywords
	TokFn
	TokVar
	TokLet
	TokIf
	TokElif
	TokElse
	TokWhile
	TokFor
	TokIn
	TokBreak
	TokContinue
	TokReturn
	TokDefer
	TokMatch
	TokComptime
	TokImport
	TokExport
	TokInject
	TokType
	TokObject
	TokEnum
	TokDistinct
	TokUnion
	TokNew
	TokSpawn
	TokResume
	TokYield
	TokFFI
	TokNot
	TokAnd
	TokOr
	TokTrue
	TokFalse
	TokNil

	// type keywords
	TokKwVoid
	TokKwBool
	TokKwChar
	TokKwInt
	TokKwFloat
	TokKwString
	TokKwOption
	TokKwResult
	TokKwRef
	TokKwWeak
	TokKwCoroutine
	TokKwChannel

	// operators and punctuation
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokPercent
	TokPow
	TokAssign
	TokEq
	TokNe
	TokLt
	TokLe
	TokGt
	TokGe
	TokBang
	TokQuestion
	TokHash
	TokAt
	TokAmp
	TokDot
	TokComma
	TokColon
	TokSemi
	TokArrow
	TokLParen
	TokRParen
	TokLBrace
	TokRBrace
	TokLBracket
	TokRBracket
)

var keywords = map[string]TokenKind{
	"fn": TokFn, "var": TokVar, "let": TokLet, "if": TokIf, "elif": TokElif,
	"else": TokElse, "while": TokWhile, "for": TokFor, "in": TokIn,
	"break": TokBreak, "continue": TokContinue, "return": TokReturn,
	"defer": TokDefer, "match": TokMatch, "comptime": TokComptime,
	"import": TokImport, "export": TokExport, "inject": TokInject,
	"type": TokType, "object": TokObject, "enum": TokEnum,
	"distinct": TokDistinct, "union": TokUnion, "new": TokNew,
	"spawn": TokSpawn, "resume": TokResume, "yield": TokYield,
	"ffi": TokFFI, "not": TokNot, "and": TokAnd, "or": TokOr,
	"true": TokTrue, "false": TokFalse, "nil": TokNil,
	"void": TokKwVoid, "bool": TokKwBool, "char": TokKwChar,
	"int": TokKwInt, "float": TokKwFloat, "string": TokKwString,
	"option": TokKwOption, "result": TokKwResult, "ref": TokKwRef,
	"weak": TokKwWeak, "coroutine": TokKwCoroutine, "channel": TokKwChannel,
}

// Token is a single lexical unit with its source position attached.
type Token struct {
	Kind  TokenKind
	Text  string
	IVal  int64
	FVal  float64
	CVal  rune
	Pos   Position
	Start int
	End   int
}

func (t Token) String() string {
	return fmt.Sprintf("%v(%q)@%s", t.Kind, t.Text, t.Pos)
}
