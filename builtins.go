package etch

import (
	"fmt"
	"math/rand"
)

// callBuiltin implements the handful of process-wide natives that never
// go through the host-function table: print, rand, assert. These resolve
// a fixed small set of names directly rather than through a registry.
func (vm *VM) callBuiltin(name string, args []Value) (Value, error) {
	switch name {
	case "print":
		for i, a := range args {
			if i > 0 {
				fmt.Print(" ")
			}
			fmt.Print(a.String())
		}
		fmt.Println()
		return NilValue(), nil

	case "rand":
		switch len(args) {
		case 0:
			return FloatValue(rand.Float64()), nil
		case 1:
			return IntValue(rand.Int63n(args[0].I)), nil
		default:
			lo, hi := args[0].I, args[1].I
			if lo > hi {
				lo, hi = hi, lo
			}
			return IntValue(lo + rand.Int63n(hi-lo+1)), nil
		}

	case "assert":
		if len(args) == 0 || !args[0].IsTruthy() {
			msg := "assertion failed"
			if len(args) > 1 {
				msg = args[1].String()
			}
			return Value{}, RuntimeError{Kind: RuntimeErrAssertion, Message: msg}
		}
		return NilValue(), nil

	default:
		return Value{}, fmt.Errorf("etch: unknown builtin %q", name)
	}
}
