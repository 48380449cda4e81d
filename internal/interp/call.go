package interp

import (
	"setl/internal/serr"
	"setl/internal/value"
)

// Call invokes proc with args: pushes
// the current ip/spec block, installs the callee's spec block, binds
// formals, and runs until the matching return. The at-most-one-active-
// copy rule is enforced via proc's activeUses bookkeeping: a
// re-entered procedure gets a fresh spec block chained from the
// previous contents rather than clobbering the still-live one, and
// the original is restored on return.
func (vm *VM) Call(proc *value.Procedure, args []value.Specifier) (value.Specifier, error) {
	return vm.callInternal(proc, nil, args)
}

// CallBound invokes proc with self bound.
func (vm *VM) CallBound(proc *value.Procedure, self *value.ObjectHeader, args []value.Specifier) (value.Specifier, error) {
	return vm.callInternal(proc, self, args)
}

func (vm *VM) callInternal(proc *value.Procedure, self *value.ObjectHeader, args []value.Specifier) (value.Specifier, error) {
	if len(args) != proc.NumFormals {
		return value.Omega, serr.Typef(proc.Unit, "wrong number of parameters")
	}

	savedSpecBlock := proc.SpecBlock
	proc.IncActiveUse()

	fresh := make([]value.Specifier, len(proc.Env))
	copy(fresh, proc.Env)
	for i, a := range args {
		if i < len(fresh) {
			fresh[i] = value.Retain(a)
		}
	}
	proc.SpecBlock = fresh

	frame := &Frame{Chunk: proc.Chunk, IP: proc.CodeOffset, SpecBlock: fresh, Proc: proc, Self: self}
	vm.Frames = append(vm.Frames, frame)

	result, err := vm.runFrame()

	vm.Frames = vm.Frames[:len(vm.Frames)-1]
	proc.SpecBlock = savedSpecBlock
	proc.DecActiveUse()

	return result, err
}

// Penviron captures the enclosing spec block to build a closure:
// taking penviron of a procedure at run time saves a copy of the
// enclosing spec block.
func (vm *VM) Penviron(template *value.Procedure) *value.Procedure {
	frame := vm.curFrame()
	env := make([]value.Specifier, len(frame.SpecBlock))
	for i, s := range frame.SpecBlock {
		env[i] = value.Retain(s)
	}
	closure := *template
	closure.Env = env
	closure.Parent = template
	return &closure
}
