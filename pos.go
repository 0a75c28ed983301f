package etch

import "fmt"

// Position identifies a single point in a source file.  It is attached to
// every token, AST node, instruction debug slot and diagnostic produced by
// the front end.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// IsZero reports whether p was never assigned a real location.
func (p Position) IsZero() bool {
	return p.Line == 0 && p.Column == 0
}

// Span covers the source text from Start through End. The parser sets End
// to the position where a node's last token begins, so End is inclusive.
type Span struct {
	Start Position
	End   Position
}

func (s Span) String() string {
	if s.Start.File == s.End.File && s.Start.Line == s.End.Line {
		return fmt.Sprintf("%s:%d:%d-%d", s.Start.File, s.Start.Line, s.Start.Column, s.End.Column)
	}
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}

// NewSpan builds a Span from two positions.
func NewSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}

// LineIndex converts byte offsets into a source file into line/column
// pairs using a binary search over the precomputed start-of-line offsets.
type LineIndex struct {
	file      string
	lineStart []int
}

// NewLineIndex scans src once, recording the byte offset of the start of
// each line.
func NewLineIndex(file string, src []byte) *LineIndex {
	lineStart := make([]int, 1, 64)
	lineStart[0] = 0
	for i, b := range src {
		if b == '\n' {
			lineStart = append(lineStart, i+1)
		}
	}
	return &LineIndex{file: file, lineStart: lineStart}
}

// PositionAt returns the 1-based line/column for a byte offset.
func (li *LineIndex) PositionAt(offset int) Position {
	lo, hi := 0, len(li.lineStart)-1
	line := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if li.lineStart[mid] <= offset {
			line = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return Position{File: li.file, Line: line + 1, Column: offset - li.lineStart[line] + 1}
}
