package interp

import (
	"setl/internal/bytecode"
	"setl/internal/serr"
	"setl/internal/value"
)

// execCall implements the lcall/call opcodes: operand A names the spec-block slot holding the callee (a
// proc specifier, possibly bound to self via slotof), operand B is
// the argument count. Arguments are popped off the procedure stack in
// reverse push order and re-assembled left to right before invocation.
func (vm *VM) execCall(frame *Frame, instr bytecode.Instr) (value.Specifier, error) {
	callee, err := vm.specBlockValue(frame, instr.A)
	if err != nil {
		return value.Omega, err
	}
	if callee.Form != value.FormProc {
		return value.Omega, serr.Typef(callee.Form.String(), "bad argument kind for builtin call")
	}
	proc := callee.Ptr.(*value.Procedure)

	argc := int(operandInt(instr.B))
	args := make([]value.Specifier, argc)
	for i := argc - 1; i >= 0; i-- {
		v, err := vm.popPstack()
		if err != nil {
			return value.Omega, err
		}
		args[i] = v
	}

	return vm.CallAny(proc, args)
}

// CallAny routes through native or bytecode invocation as proc
// requires; the loader and the scheduler both call procedures without
// wanting to care which kind they hold.
func (vm *VM) CallAny(proc *value.Procedure, args []value.Specifier) (value.Specifier, error) {
	if proc.Native != nil {
		fn, ok := proc.Native.(NativeFunc)
		if !ok {
			return value.Omega, serr.Giveup("native procedure %s has no bound function", proc.Unit)
		}
		return fn(vm, args)
	}
	if proc.Self != nil {
		return vm.CallBound(proc, proc.Self, args)
	}
	return vm.Call(proc, args)
}
