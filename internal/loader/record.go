// Package loader implements the unit loader: resolving a unit's
// imports and inherits, materializing its literal pools, slot table,
// and code, and running its initializer. The loader consumes whatever
// a Library implementation hands it as a UnitControlRecord, keeping
// the on-disk format behind that interface.
package loader

import (
	"setl/internal/bytecode"
	"setl/internal/symtab"
)

// ProcLiteral is one entry of a unit's procedure literal pool: a unit index + code offset, formal count, the slice of
// the unit's spec block that is this procedure's own storage, and an
// optional parent procedure index for nested-closure chaining.
type ProcLiteral struct {
	UnitIndex     int
	InBody        bool // code offset is into BodyCode rather than InitCode
	CodeOffset    int
	NumFormals    int
	SpecBlockBase int
	SpecBlockSize int
	ParentIndex   int // index into the same pool, or -1
	// NativeSymbol, for native units, is the exported symbol name the
	// procedure's native function pointer is bound by.
	NativeSymbol string
}

// LabelLiteral is one entry of a unit's label literal pool: an
// instruction pointer into either the init or body chunk.
type LabelLiteral struct {
	InBody bool
	Offset int
}

// SlotDecl is one row of the loader's two-pass slot table load.
type SlotDecl struct {
	Name        string
	IsMethod    bool
	IsPublic    bool
	ProcIndex   int // into ProcLits, when IsMethod
	InstanceVar bool
}

// UnitRef is one inherit/import reference together with the
// referencing unit's recorded expectation of the target's source name,
// timestamp, and build fingerprint.
type UnitRef struct {
	Name       string
	SourceName string
	Timestamp  int64
	BuildID    string
}

// UnitControlRecord is everything the loader reads from a unit's
// library record: counts, inherits/imports, slot declarations, literal
// pools, and init/body code.
type UnitControlRecord struct {
	Name       string
	Type       symtab.UnitType
	SourceName string
	Timestamp  int64
	BuildID    string
	NeedsBody  bool // package spec without compiled body

	// SpecCount is the declared size of the unit's specifier data
	// block (the loader allocates SpecCount+1 slots); the literal
	// pools occupy a prefix of it, in int/real/string/proc/label
	// order, and the remainder is variable storage initialized to
	// omega.
	SpecCount int

	Inherits []UnitRef // must each resolve to a class (propagated into ancestors)
	Imports  []UnitRef // must each resolve to a package, not a program

	Slots []SlotDecl

	IntLits    []int64
	RealLits   []float64
	StringLits []string
	ProcLits   []ProcLiteral
	LabelLits  []LabelLiteral

	InitCode *bytecode.Chunk
	BodyCode *bytecode.Chunk

	// PublicSymbols maps an exported name to an index into ProcLits.
	PublicSymbols map[string]int

	// Native-unit fields; set when Type == symtab.UnitNative.
	NativeLibraryPath string
	NativeInitSymbol  string
	// NativeExports maps an exported procedure name to the native
	// symbol name bound to it.
	NativeExports map[string]string
}

// Library abstracts the on-disk (or in-memory, for tests) source of
// unit control records, keeping this package free of any assumption
// about the compiled-library file format beyond what it consumes.
type Library interface {
	ReadUnit(name string) (*UnitControlRecord, error)
}
