package value

import "setl/internal/bytecode"

// Procedure is the heap payload for FormProc: a
// unit pointer (by name, to avoid a dependency on internal/loader),
// code offset, formal count, the procedure's spec block, and an
// optional closure environment / bound receiver.
type Procedure struct {
	Counted
	Unit       string
	Chunk      *bytecode.Chunk
	CodeOffset int
	NumFormals int
	SpecBlock  []Specifier
	Env        []Specifier // captured enclosing spec block, for closures
	Self       *ObjectHeader
	Parent     *Procedure // enclosing procedure, for nested-closure chaining
	activeUses int        // at-most-one-active-copy bookkeeping

	// Native, when non-nil, marks a native-unit export: the
	// interpreter calls it (an interp.NativeFunc) instead of entering
	// bytecode. Chunk and CodeOffset are ignored for native procs.
	Native interface{}
}

func MakeProc(p *Procedure) Specifier { return Specifier{Form: FormProc, Ptr: p} }

// ActiveUses, IncActiveUse, and DecActiveUse track the at-most-one-
// active-copy rule: the interpreter increments on
// entry/re-entry and decrements on the corresponding return.
func (p *Procedure) ActiveUses() int { return p.activeUses }
func (p *Procedure) IncActiveUse()   { p.activeUses++ }
func (p *Procedure) DecActiveUse()   { p.activeUses-- }

// Label is the heap payload for FormLabel: a pointer into a compiled
// instruction array.
type Label struct {
	Counted
	Chunk *bytecode.Chunk
	IP    int
}

func MakeLabel(l *Label) Specifier { return Specifier{Form: FormLabel, Ptr: l} }

// Opaque is the heap payload for FormOpaque: an uninterpreted native
// pointer, used by native-unit bindings.
type Opaque struct {
	Counted
	Data interface{}
}

func MakeOpaque(o *Opaque) Specifier { return Specifier{Form: FormOpaque, Ptr: o} }

// FileRef is the heap payload for FormFile: an atom-keyed indirection
// into the process-wide file map (internal/fileio owns the concrete
// record; this package only needs a comparable placeholder so
// specifiers of form file are well-typed).
type FileRef struct {
	Counted
	Handle interface{}
}

func MakeFile(f *FileRef) Specifier { return Specifier{Form: FormFile, Ptr: f} }

// Mailbox is the heap payload for FormMailbox. The queue and
// synchronization live in internal/procsched.Mailbox; this is a thin
// indirection so a Specifier can reference one without this package
// depending on the scheduler.
type Mailbox struct {
	Counted
	Impl interface{}
}

func MakeMailbox(m *Mailbox) Specifier { return Specifier{Form: FormMailbox, Ptr: m} }
