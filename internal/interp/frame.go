// Package interp is the bytecode dispatch loop: call/return, the
// operator dispatch protocol (including reflected right-operand
// method lookup), iterators, and process switching.
package interp

import (
	"setl/internal/bytecode"
	"setl/internal/serr"
	"setl/internal/symtab"
	"setl/internal/value"
)

// Frame is one call-stack entry: the executing chunk, instruction
// pointer, and the callee's spec block. Procedures
// push the caller's ip and spec block here on invocation and pop them
// on return.
type Frame struct {
	Chunk     *bytecode.Chunk
	IP        int
	SpecBlock []value.Specifier
	Proc      *value.Procedure
	Self      *value.ObjectHeader
}

// TryFrame marks an installed error-extension boundary; left minimal
// since the error model is abend-and-unwind, not try/catch
// resumption.
type TryFrame struct {
	ExtMap *serr.ExtensionMap
}

// VM bundles every piece of process-wide state into a single
// interpreter-instance struct, so reentrant embedding is possible.
type VM struct {
	Atoms *symtab.AtomTable
	Slots *symtab.SlotTable
	Units *symtab.UnitTable

	Stack  []value.Specifier
	Frames []*Frame

	tryStack []TryFrame

	Natives map[string]NativeFunc

	// RootExt is the top-level unit's error-extension map, consulted
	// last after every frame's own installed extensions.
	RootExt *serr.ExtensionMap

	// Trace, when non-nil, is called before each instruction executes.
	// The CLI driver's -trace flag installs a pretty-printing hook
	// here; nil costs one branch per dispatch.
	Trace func(frame *Frame, instr bytecode.Instr)

	// Steps counts executed instructions, reported by the driver's
	// -stats flag.
	Steps uint64

	// Host abstracts the process/mailbox scheduler (internal/procsched)
	// so this package never imports it; nil when running without a
	// scheduler (pure expression evaluation, tests).
	Host ProcessHost

	// Files abstracts file-handle built-ins (internal/fileio); nil
	// disables get/put/open/close opcodes' native side (those are
	// compiled as lcall to native procedures, not dedicated opcodes,
	// so this is consulted from native bindings, not the dispatch loop).
	Files interface{}

	stopped bool
}

// ProcessHost is implemented by internal/procsched.Scheduler. Kept as
// an interface here so the dispatch loop can drive process-switching
// opcodes (initproc, menviron) without this package depending on the
// scheduler package (which itself depends on interp.VM to run a
// process's bytecode).
type ProcessHost interface {
	// Spawn starts proc as a new process's entry procedure, returning
	// the new process's object header.
	Spawn(proc *value.Procedure, args []value.Specifier) (*value.ObjectHeader, error)
	// Mailbox returns the mailbox specifier belonging to the process
	// currently executing on this VM (the menviron opcode).
	Mailbox(vm *VM) value.Specifier
	// Yield voluntarily suspends the current process at a designated
	// opcode (intcheck or an explicit yield).
	Yield(vm *VM)
}

// NativeFunc is the signature native-unit exported procedures are
// bound to: it receives the interpreter and its
// arguments and returns a result specifier.
type NativeFunc func(vm *VM, args []value.Specifier) (value.Specifier, error)

func New() *VM {
	return &VM{
		Atoms:   symtab.NewAtomTable(),
		Slots:   symtab.NewSlotTable(),
		Units:   symtab.NewUnitTable(),
		Natives: make(map[string]NativeFunc),
		RootExt: serr.NewExtensionMap(),
	}
}

// RegisterNative installs a native procedure under (libraryPath,
// symbolName), consulted by the loader's NATIVE unit branch instead of dlopen, since dynamic library loading is an
// OS-level concern this runtime leaves to its embedder.
func (vm *VM) RegisterNative(libraryPath, symbol string, fn NativeFunc) {
	vm.Natives[libraryPath+"#"+symbol] = fn
}

// Fork returns a VM sharing every process-wide table (atoms, slots,
// units, natives, error extensions, host) but with its own procedure
// stack and call frames, the per-process execution state: each
// process holds its own call stack and spec blocks.
func (vm *VM) Fork() *VM {
	return &VM{
		Atoms:   vm.Atoms,
		Slots:   vm.Slots,
		Units:   vm.Units,
		Natives: vm.Natives,
		RootExt: vm.RootExt,
		Host:    vm.Host,
		Files:   vm.Files,
		Trace:   vm.Trace,
	}
}

func (vm *VM) pushPstack(s value.Specifier) { vm.Stack = append(vm.Stack, s) }

func (vm *VM) popPstack() (value.Specifier, error) {
	if len(vm.Stack) == 0 {
		return value.Omega, serr.Giveup("procedure stack underflow")
	}
	top := vm.Stack[len(vm.Stack)-1]
	vm.Stack = vm.Stack[:len(vm.Stack)-1]
	return top, nil
}

func (vm *VM) topPstack() (value.Specifier, error) {
	if len(vm.Stack) == 0 {
		return value.Omega, serr.Giveup("procedure stack underflow")
	}
	return vm.Stack[len(vm.Stack)-1], nil
}

func (vm *VM) curFrame() *Frame { return vm.Frames[len(vm.Frames)-1] }
