package etch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// magic identifies an Etch bytecode cache file, written first in every
// encoded Program.
const magic uint32 = 0x45544348 // "ETCH"

// Serialize encodes a compiled Program into the on-disk cache format:
// magic, compiler version, source hash, function table, constants,
// instruction stream, debug info. Uses little-endian fixed-width encoding
// throughout, sized to this format's 32/64-bit operand widths.
func Serialize(p *Program) ([]byte, error) {
	var buf bytes.Buffer
	w := &encoder{w: &buf}

	w.u32(magic)
	w.u32(uint32(p.CompilerVersion))
	w.u64(p.SourceHash)

	w.u32(uint32(len(p.FuncNames)))
	for _, name := range p.FuncNames {
		rec := p.Functions[name]
		w.str(name)
		w.u8(uint8(rec.Kind))
		w.u32(uint32(rec.StartPC))
		w.u32(uint32(rec.EndPC))
		w.u32(uint32(rec.MaxRegister))
		w.str(rec.Symbol)
		w.str(rec.Library)
		w.u8(boolByte(rec.IsCoroutine))
	}

	w.u32(uint32(len(p.Constants)))
	for _, c := range p.Constants {
		encodeValue(w, c)
	}

	w.u32(uint32(len(p.Instructions)))
	for i, ins := range p.Instructions {
		w.u16(uint16(ins.Op))
		w.i32(int32(ins.A))
		w.i32(int32(ins.B))
		w.i32(int32(ins.C))
		w.i32(int32(ins.Bx))
		w.i32(int32(ins.SBx))
		w.i32(int32(ins.Ax))
		dbg := p.DebugInfo[i]
		w.str(dbg.File)
		w.u32(uint32(dbg.Line))
		w.u32(uint32(dbg.Col))
	}

	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

// Deserialize decodes bytes produced by Serialize back into a Program.
// Returns an error on a magic mismatch; the cache layer is responsible
// for checking the version/hash fields before trusting the result.
func Deserialize(data []byte) (*Program, error) {
	r := &decoder{r: bytes.NewReader(data)}
	if got := r.u32(); got != magic {
		return nil, fmt.Errorf("etch cache: bad magic %08x", got)
	}

	p := NewProgram()
	p.CompilerVersion = int(r.u32())
	p.SourceHash = r.u64()

	funcCount := int(r.u32())
	p.FuncNames = make([]string, 0, funcCount)
	p.Functions = make(map[string]*FunctionRecord, funcCount)
	for i := 0; i < funcCount; i++ {
		name := r.str()
		rec := &FunctionRecord{Name: name}
		rec.Kind = FunctionKind(r.u8())
		rec.StartPC = int(r.u32())
		rec.EndPC = int(r.u32())
		rec.MaxRegister = int(r.u32())
		rec.Symbol = r.str()
		rec.Library = r.str()
		rec.IsCoroutine = r.u8() != 0
		p.FuncNames = append(p.FuncNames, name)
		p.Functions[name] = rec
	}

	constCount := int(r.u32())
	p.Constants = make([]Value, constCount)
	for i := range p.Constants {
		p.Constants[i] = decodeValue(r)
	}

	insCount := int(r.u32())
	p.Instructions = make([]Instruction, insCount)
	p.DebugInfo = make([]DebugInfo, insCount)
	for i := 0; i < insCount; i++ {
		ins := Instruction{
			Op:  OpCode(r.u16()),
			A:   int(r.i32()),
			B:   int(r.i32()),
			C:   int(r.i32()),
			Bx:  int(r.i32()),
			SBx: int(r.i32()),
			Ax:  int(r.i32()),
		}
		dbg := DebugInfo{File: r.str(), Line: int(r.u32()), Col: int(r.u32())}
		ins.Debug = dbg
		p.Instructions[i] = ins
		p.DebugInfo[i] = dbg
	}

	if r.err != nil && r.err != io.EOF {
		return nil, r.err
	}
	return p, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func encodeValue(w *encoder, v Value) {
	w.u8(uint8(v.Kind))
	switch v.Kind {
	case VBool:
		w.u8(boolByte(v.B))
	case VChar:
		w.i32(int32(v.C))
	case VInt:
		w.u64(uint64(v.I))
	case VFloat:
		w.u64(math.Float64bits(v.F))
	case VString:
		w.str(v.S)
	}
}

func decodeValue(r *decoder) Value {
	kind := ValueKind(r.u8())
	switch kind {
	case VBool:
		return BoolValue(r.u8() != 0)
	case VChar:
		return CharValue(rune(r.i32()))
	case VInt:
		return IntValue(int64(r.u64()))
	case VFloat:
		return FloatValue(math.Float64frombits(r.u64()))
	case VString:
		return StringValue(r.str())
	default:
		return NilValue()
	}
}

// encoder writes little-endian fixed-width fields, tracking the first
// error encountered so call sites can chain writes without checking
// each one, per vm_encoder.go's style.
type encoder struct {
	w   *bytes.Buffer
	err error
}

func (e *encoder) u8(v uint8)   { e.write([]byte{v}) }
func (e *encoder) u16(v uint16) { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); e.write(b) }
func (e *encoder) u32(v uint32) { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); e.write(b) }
func (e *encoder) i32(v int32)  { e.u32(uint32(v)) }
func (e *encoder) u64(v uint64) { b := make([]byte, 8); binary.LittleEndian.PutUint64(b, v); e.write(b) }
func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.write([]byte(s))
}
func (e *encoder) write(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

type decoder struct {
	r   *bytes.Reader
	err error
}

func (d *decoder) u8() uint8 {
	b := d.read(1)
	if len(b) < 1 {
		return 0
	}
	return b[0]
}
func (d *decoder) u16() uint16 {
	b := d.read(2)
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}
func (d *decoder) u32() uint32 {
	b := d.read(4)
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}
func (d *decoder) i32() int32 { return int32(d.u32()) }
func (d *decoder) u64() uint64 {
	b := d.read(8)
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}
func (d *decoder) str() string {
	n := d.u32()
	return string(d.read(int(n)))
}
func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return nil
	}
	b := make([]byte, n)
	_, err := io.ReadFull(d.r, b)
	if err != nil {
		d.err = err
		return nil
	}
	return b
}
