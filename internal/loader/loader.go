package loader

import (
	"sync"

	"setl/internal/bytecode"
	"setl/internal/interp"
	"setl/internal/serr"
	"setl/internal/symtab"
	"setl/internal/value"
)

// Unit is a fully loaded unit: its table entry, control record, the
// materialized specifier data block, resolved code, and the flattened
// unit vector (position 0 = "$predefined", position 1 = self, then
// inherited units, then imported units).
type Unit struct {
	Entry     *symtab.UnitEntry
	Rec       *UnitControlRecord
	SpecBlock []value.Specifier
	InitCode  *bytecode.Chunk
	BodyCode  *bytecode.Chunk
	Vector    []*Unit
	Procs     []*value.Procedure

	// ObjHeight is floor(log_OBJ_HEADER_SIZE(var_count)), computed at
	// slot-table load time for class and process units.
	ObjHeight int
}

// Loader resolves unit names to loaded Units against a Library,
// caching loads in the interpreter's unit table.
type Loader struct {
	VM  *interp.VM
	Lib Library

	mu      sync.Mutex
	units   map[string]*Unit
	loading map[string]bool
}

func New(vm *interp.VM, lib Library) *Loader {
	return &Loader{
		VM:      vm,
		Lib:     lib,
		units:   make(map[string]*Unit),
		loading: make(map[string]bool),
	}
}

// PackOperand encodes a compile-time (unit-index, offset) operand
// reference into the single int64 an Operand carries; unit-index is a
// position in the flattened unit vector (1 == the referencing unit
// itself). UnpackOperand reverses it.
func PackOperand(unitIndex, offset int) int64 {
	return int64(unitIndex)<<32 | int64(uint32(offset))
}

func UnpackOperand(v int64) (unitIndex, offset int) {
	return int(v >> 32), int(uint32(v))
}

// Load loads unit name and everything it transitively inherits or
// imports, returning the cached
// Unit if name was already loaded.
func (l *Loader) Load(name string) (*Unit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(name)
}

func (l *Loader) load(name string) (*Unit, error) {
	// Step 1: intern, return the cached entry if already loaded.
	entry, loaded := l.VM.Units.Intern(name)
	if loaded {
		return l.units[name], nil
	}
	if l.loading[name] {
		return nil, serr.Loaderf(name, "circular unit dependency")
	}
	l.loading[name] = true
	defer delete(l.loading, name)

	// Step 2: read the unit control record.
	rec, err := l.Lib.ReadUnit(name)
	if err != nil {
		return nil, serr.Loaderf(name, "cannot read unit: %v", err)
	}

	// Step 3: a package spec without a compiled body cannot run.
	if rec.NeedsBody {
		return nil, serr.Loaderf(name, "package needs compiled body")
	}

	u := &Unit{Entry: entry, Rec: rec, InitCode: rec.InitCode, BodyCode: rec.BodyCode}
	if u.InitCode == nil {
		u.InitCode = bytecode.NewChunk()
	}
	if u.BodyCode == nil {
		u.BodyCode = bytecode.NewChunk()
	}

	// Step 4: native units resolve their per-unit init symbol through
	// the interpreter's native registry (RegisterNative stands in for
	// dlopen, since shared-library loading stays with the embedder).
	if rec.Type == symtab.UnitNative {
		key := rec.NativeLibraryPath + "#" + rec.NativeInitSymbol
		init, ok := l.VM.Natives[key]
		if !ok {
			return nil, serr.Loaderf(name, "native library %s has no init symbol %s",
				rec.NativeLibraryPath, rec.NativeInitSymbol)
		}
		if _, err := init(l.VM, nil); err != nil {
			return nil, serr.Loaderf(name, "native init failed: %v", err)
		}
	}

	// Step 5: allocate the specifier data block, declared count + 1.
	u.SpecBlock = make([]value.Specifier, rec.SpecCount+1)

	// Step 6: flattened unit vector. Position 0 is "$predefined"
	// (built-ins, represented by a nil Unit here), position 1 is
	// self; inherited units propagate their own inherits, imported
	// units do not.
	u.Vector = []*Unit{nil, u}
	for _, ref := range rec.Inherits {
		child, err := l.load(ref.Name)
		if err != nil {
			return nil, err
		}
		if err := checkRef(ref, child); err != nil {
			return nil, err
		}
		if child.Rec.Type != symtab.UnitClass {
			return nil, serr.Loaderf(ref.Name, "inherited unit is a %s, not a class", child.Rec.Type)
		}
		u.Vector = append(u.Vector, child)
		// Propagate the ancestor's own inherits into this vector.
		for _, anc := range child.Vector[2:] {
			if anc != nil && anc.Rec.Type == symtab.UnitClass && !vectorHas(u.Vector, anc) {
				u.Vector = append(u.Vector, anc)
			}
		}
	}
	for _, ref := range rec.Imports {
		child, err := l.load(ref.Name)
		if err != nil {
			return nil, err
		}
		if err := checkRef(ref, child); err != nil {
			return nil, err
		}
		if child.Rec.Type == symtab.UnitProgram {
			return nil, serr.Loaderf(ref.Name, "expected package, not program")
		}
		u.Vector = append(u.Vector, child)
	}

	// Step 7: slot table, two passes. Pass one interns every name;
	// pass two (classes and processes only) fills the slot-info rows.
	ids := make([]symtab.SlotID, len(rec.Slots))
	for i, decl := range rec.Slots {
		ids[i] = l.VM.Slots.Intern(decl.Name)
	}

	// Step 9 (procedures precede pass two so method rows can point at
	// them): materialize the literal pools into the spec block. The
	// pools occupy positions [1, 1+n) in int, real, string, proc,
	// label order; the rest of the block is variable storage.
	pos := 1
	for _, n := range rec.IntLits {
		u.SpecBlock[pos] = value.MakeShort(n)
		pos++
	}
	for _, f := range rec.RealLits {
		u.SpecBlock[pos] = value.MakeReal(f)
		pos++
	}
	for _, s := range rec.StringLits {
		u.SpecBlock[pos] = value.Specifier{Form: value.FormString, Ptr: value.NewString(s)}
		pos++
	}
	u.Procs = make([]*value.Procedure, len(rec.ProcLits))
	for i, pl := range rec.ProcLits {
		target := u
		if pl.UnitIndex > 1 {
			if pl.UnitIndex >= len(u.Vector) || u.Vector[pl.UnitIndex] == nil {
				return nil, serr.Loaderf(name, "procedure literal references unit vector slot %d out of range", pl.UnitIndex)
			}
			target = u.Vector[pl.UnitIndex]
		}
		chunk := target.InitCode
		if pl.InBody {
			chunk = target.BodyCode
		}
		base, size := pl.SpecBlockBase, pl.SpecBlockSize
		if base < 0 || base+size > len(target.SpecBlock) {
			return nil, serr.Loaderf(name, "procedure literal spec-block slice out of range")
		}
		p := &value.Procedure{
			Unit:       target.Entry.Name,
			Chunk:      chunk,
			CodeOffset: pl.CodeOffset,
			NumFormals: pl.NumFormals,
			SpecBlock:  target.SpecBlock[base : base+size],
			Env:        target.SpecBlock[base : base+size],
		}
		if rec.Type == symtab.UnitNative && pl.NativeSymbol != "" {
			fn, ok := l.VM.Natives[rec.NativeLibraryPath+"#"+pl.NativeSymbol]
			if !ok {
				return nil, serr.Loaderf(name, "native symbol %s not found in %s", pl.NativeSymbol, rec.NativeLibraryPath)
			}
			p.Native = fn
		}
		u.Procs[i] = p
	}
	for i, pl := range rec.ProcLits {
		if pl.ParentIndex >= 0 && pl.ParentIndex < len(u.Procs) {
			u.Procs[i].Parent = u.Procs[pl.ParentIndex]
		}
	}
	for _, p := range u.Procs {
		u.SpecBlock[pos] = value.MakeProc(p)
		pos++
	}
	for _, ll := range rec.LabelLits {
		chunk := u.InitCode
		if ll.InBody {
			chunk = u.BodyCode
		}
		u.SpecBlock[pos] = value.MakeLabel(&value.Label{Chunk: chunk, IP: ll.Offset})
		pos++
	}
	if pos > len(u.SpecBlock) {
		return nil, serr.Loaderf(name, "literal pools exceed declared specifier count")
	}

	// Pass two of step 7.
	if rec.Type == symtab.UnitClass || rec.Type == symtab.UnitProcess {
		for i, decl := range rec.Slots {
			switch {
			case decl.InstanceVar:
				l.VM.Slots.DefineInstanceVar(name, ids[i], decl.IsPublic)
			case decl.IsMethod:
				if decl.ProcIndex < 0 || decl.ProcIndex >= len(u.Procs) {
					return nil, serr.Loaderf(name, "method slot %s references procedure %d out of range", decl.Name, decl.ProcIndex)
				}
				l.VM.Slots.DefineMethod(name, ids[i], decl.IsPublic, u.Procs[decl.ProcIndex])
			}
		}
		u.ObjHeight = objHeight(l.VM.Slots.VarCount(name))
	}

	// Step 8: resolve every code operand against the unit vector.
	if err := l.resolveChunk(u, u.InitCode); err != nil {
		return nil, err
	}
	if err := l.resolveChunk(u, u.BodyCode); err != nil {
		return nil, err
	}

	// Step 10: public-symbol stream, also composed into the
	// interpreter's error-extension map.
	for sym, pi := range rec.PublicSymbols {
		if pi < 0 || pi >= len(u.Procs) {
			return nil, serr.Loaderf(name, "public symbol %s references procedure %d out of range", sym, pi)
		}
		entry.PublicSyms[sym] = u.Procs[pi]
		l.VM.RootExt.Register(sym, u.Procs[pi])
	}

	entry.Type = rec.Type
	entry.SourceName = rec.SourceName
	entry.Timestamp = rec.Timestamp
	entry.BuildID = rec.BuildID
	entry.Loaded = true
	entry.UnitVector = unitVectorEntries(u.Vector)
	l.units[name] = u

	// Step 11: run the initialization code in a fresh frame.
	if u.InitCode.Len() > 0 {
		if _, err := l.VM.RunChunk(u.InitCode, u.SpecBlock); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// checkRef enforces the step-7 version check: the referencing unit's
// recorded source name, timestamp, and build fingerprint must match
// what was actually loaded.
func checkRef(ref UnitRef, child *Unit) error {
	if ref.SourceName != "" && ref.SourceName != child.Rec.SourceName {
		return serr.Loaderf(ref.Name, "package needs recompile")
	}
	if ref.Timestamp != 0 && ref.Timestamp != child.Rec.Timestamp {
		return serr.Loaderf(ref.Name, "package needs recompile")
	}
	if ref.BuildID != "" && ref.BuildID != child.Rec.BuildID {
		return serr.Loaderf(ref.Name, "package needs recompile")
	}
	return nil
}

func vectorHas(v []*Unit, u *Unit) bool {
	for _, e := range v {
		if e == u {
			return true
		}
	}
	return false
}

func unitVectorEntries(v []*Unit) []*symtab.UnitEntry {
	out := make([]*symtab.UnitEntry, len(v))
	for i, u := range v {
		if u != nil {
			out[i] = u.Entry
		}
	}
	return out
}

// objHeight is floor(log_OBJ_HEADER_SIZE(var_count)), the object
// header height recorded for the class (0 when var_count < 4).
func objHeight(varCount int) int {
	h := 0
	for n := varCount; n >= value.TupHeaderSize; n /= value.TupHeaderSize {
		h++
	}
	return h
}

// resolveChunk rewrites each operand's compile-time (unit-index,
// offset) reference into the in-memory pointer the interpreter
// executes against: label operands become LabelTargets,
// cross-unit specifier operands become SpecRefs, and class/process
// operands become the target unit's name.
func (l *Loader) resolveChunk(u *Unit, chunk *bytecode.Chunk) error {
	for i := range chunk.Code {
		in := &chunk.Code[i]
		for _, op := range []*bytecode.Operand{&in.A, &in.B, &in.C} {
			if err := l.resolveOperand(u, op); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Loader) resolveOperand(u *Unit, op *bytecode.Operand) error {
	switch op.Kind {
	case bytecode.OperandLabel:
		if op.Ref != nil {
			return nil // already resolved (hand-built chunks in tests)
		}
		ui, idx := UnpackOperand(op.Int)
		target := u
		if ui > 1 {
			if ui >= len(u.Vector) || u.Vector[ui] == nil {
				return serr.Loaderf(u.Entry.Name, "label operand references unit vector slot %d out of range", ui)
			}
			target = u.Vector[ui]
		}
		if idx < 0 || idx >= len(target.Rec.LabelLits) {
			return serr.Loaderf(u.Entry.Name, "label operand index %d out of range", idx)
		}
		ll := target.Rec.LabelLits[idx]
		chunk := target.InitCode
		if ll.InBody {
			chunk = target.BodyCode
		}
		op.Ref = &bytecode.LabelTarget{Chunk: chunk, IP: ll.Offset}
	case bytecode.OperandSpec:
		ui, off := UnpackOperand(op.Int)
		if ui <= 1 {
			// Self-relative: the executing frame's spec block (the
			// unit block for init/body code, the procedure's own
			// slice inside procedure code).
			op.Int = int64(off)
			return nil
		}
		if ui >= len(u.Vector) || u.Vector[ui] == nil {
			return serr.Loaderf(u.Entry.Name, "specifier operand references unit vector slot %d out of range", ui)
		}
		target := u.Vector[ui]
		if off < 0 || off >= len(target.SpecBlock) {
			return serr.Loaderf(u.Entry.Name, "specifier operand offset %d out of range", off)
		}
		op.Ref = &interp.SpecRef{Block: target.SpecBlock, Index: off}
	case bytecode.OperandClass, bytecode.OperandProc:
		if op.Ref != nil {
			return nil
		}
		ui := int(op.Int)
		if ui == 1 || ui == 0 {
			op.Ref = u.Entry.Name
			return nil
		}
		if ui >= len(u.Vector) || u.Vector[ui] == nil {
			return serr.Loaderf(u.Entry.Name, "class operand references unit vector slot %d out of range", ui)
		}
		op.Ref = u.Vector[ui].Entry.Name
	}
	return nil
}
