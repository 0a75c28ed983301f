package etch

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
)

// FFIBridge loads shared libraries and resolves symbols declared by
// `import ffi libname { ... }` blocks, then invokes them through
// purego's dynamic C-ABI call path (SyscallN) rather than
// RegisterLibFunc, since a function's parameter shapes aren't known
// until the source module declares them — there is no static Go
// function type to register against.
type FFIBridge struct {
	libs    map[string]uintptr
	symbols map[string]uintptr // fnname -> address
	sigs    map[string]FFIFuncSig
}

func NewFFIBridge() *FFIBridge {
	return &FFIBridge{
		libs:    map[string]uintptr{},
		symbols: map[string]uintptr{},
		sigs:    map[string]FFIFuncSig{},
	}
}

func (b *FFIBridge) LoadLibrary(path string) error {
	if _, ok := b.libs[path]; ok {
		return nil
	}
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return fmt.Errorf("etch ffi: load %q: %w", path, err)
	}
	b.libs[path] = h
	return nil
}

func (b *FFIBridge) BindSymbol(libPath string, fn FFIFuncSig) error {
	h, ok := b.libs[libPath]
	if !ok {
		return fmt.Errorf("etch ffi: library %q not loaded", libPath)
	}
	addr, err := purego.Dlsym(h, fn.Name)
	if err != nil {
		return fmt.Errorf("etch ffi: symbol %q in %q: %w", fn.Name, libPath, err)
	}
	b.symbols[fn.Name] = addr
	b.sigs[fn.Name] = fn
	return nil
}

// Invoke marshals args to the uintptr-per-register C-ABI purego
// expects and calls the resolved symbol. Strings are passed as
// NUL-terminated byte pointers kept alive for the call's duration;
// ints/bools/chars pass through as their bit pattern. Float arguments
// are not supported by this bridge's SyscallN path (it carries the
// general-purpose register set only) and are rejected before the
// call.
func (b *FFIBridge) Invoke(rec *FunctionRecord, args []Value) (Value, error) {
	addr, ok := b.symbols[rec.Symbol]
	if !ok {
		return Value{}, RuntimeError{Kind: RuntimeErrFFI, Message: fmt.Sprintf("unresolved FFI symbol %q", rec.Symbol)}
	}

	var keepAlive [][]byte
	callArgs := make([]uintptr, 0, len(args))
	for _, a := range args {
		switch a.Kind {
		case VInt:
			callArgs = append(callArgs, uintptr(a.I))
		case VBool:
			if a.B {
				callArgs = append(callArgs, 1)
			} else {
				callArgs = append(callArgs, 0)
			}
		case VChar:
			callArgs = append(callArgs, uintptr(a.C))
		case VString:
			b := append([]byte(a.S), 0)
			keepAlive = append(keepAlive, b)
			callArgs = append(callArgs, uintptr(unsafe.Pointer(&b[0])))
		case VFloat:
			return Value{}, RuntimeError{Kind: RuntimeErrFFI, Message: "float arguments are not supported by the FFI bridge"}
		default:
			return Value{}, RuntimeError{Kind: RuntimeErrFFI, Message: fmt.Sprintf("value of kind %v cannot cross the FFI boundary", a.Kind)}
		}
	}

	r1, _, errno := purego.SyscallN(addr, callArgs...)
	_ = keepAlive
	if errno != 0 {
		return Value{}, RuntimeError{Kind: RuntimeErrFFI, Message: fmt.Sprintf("%s: errno %d", rec.Symbol, errno)}
	}

	if rec.ReturnType == nil {
		return NilValue(), nil
	}
	switch rec.ReturnType.Kind {
	case TBool:
		return BoolValue(r1 != 0), nil
	case TChar:
		return CharValue(rune(r1)), nil
	default:
		return IntValue(int64(r1)), nil
	}
}
