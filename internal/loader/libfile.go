package loader

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/uuid"

	"setl/internal/bytecode"
	"setl/internal/serr"
	"setl/internal/symtab"
)

// libMagic heads every compiled library file. The byte layout below is
// little-endian fixed-width records throughout; like the binstr
// value stream it makes no cross-host promises.
const libMagic = "setl2lib"

const libVersion uint32 = 1

// FileLibrary is the on-disk Library implementation the CLI driver
// opens: one file holding every unit of a compiled library, read
// fully into memory on open.
type FileLibrary struct {
	units map[string]*UnitControlRecord
}

// OpenFile reads a compiled library file written by WriteFile.
func OpenFile(path string) (*FileLibrary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, serr.Loaderf(path, "cannot open library: %v", err)
	}
	defer f.Close()
	return ReadLibrary(bufio.NewReader(f))
}

func (l *FileLibrary) ReadUnit(name string) (*UnitControlRecord, error) {
	rec, ok := l.units[name]
	if !ok {
		return nil, fmt.Errorf("unit %s not in library", name)
	}
	return rec, nil
}

// Units lists the unit names present, in no particular order.
func (l *FileLibrary) Units() []string {
	out := make([]string, 0, len(l.units))
	for n := range l.units {
		out = append(out, n)
	}
	return out
}

// MemLibrary serves records straight from memory; the loader tests
// and embedders construct these directly.
type MemLibrary map[string]*UnitControlRecord

func (l MemLibrary) ReadUnit(name string) (*UnitControlRecord, error) {
	rec, ok := l[name]
	if !ok {
		return nil, fmt.Errorf("unit %s not in library", name)
	}
	return rec, nil
}

// StampBuildID fills rec.BuildID with a content-derived UUID over the
// record's encoded form, the comparable fingerprint the loader's
// version check reads alongside the source-name/timestamp pair.
func StampBuildID(rec *UnitControlRecord) {
	saved := rec.BuildID
	rec.BuildID = ""
	var buf bytes.Buffer
	if err := writeUnit(&buf, rec); err != nil {
		rec.BuildID = saved
		return
	}
	rec.BuildID = uuid.NewSHA1(uuid.NameSpaceOID, buf.Bytes()).String()
}

// WriteFile writes a compiled library holding recs to path. Records
// without a BuildID are stamped first.
func WriteFile(path string, recs []*UnitControlRecord) error {
	var buf bytes.Buffer
	if err := WriteLibrary(&buf, recs); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func WriteLibrary(w io.Writer, recs []*UnitControlRecord) error {
	if _, err := io.WriteString(w, libMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, libVersion); err != nil {
		return err
	}
	if err := wInt(w, len(recs)); err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.BuildID == "" {
			StampBuildID(rec)
		}
		if err := writeUnit(w, rec); err != nil {
			return err
		}
	}
	return nil
}

func ReadLibrary(r io.Reader) (*FileLibrary, error) {
	magic := make([]byte, len(libMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != libMagic {
		return nil, serr.Loaderf("library", "not a compiled library")
	}
	var ver uint32
	if err := binary.Read(r, binary.LittleEndian, &ver); err != nil || ver != libVersion {
		return nil, serr.Loaderf("library", "unsupported library version")
	}
	n, err := rInt(r)
	if err != nil {
		return nil, err
	}
	lib := &FileLibrary{units: make(map[string]*UnitControlRecord, n)}
	for i := 0; i < n; i++ {
		rec, err := readUnit(r)
		if err != nil {
			return nil, err
		}
		lib.units[rec.Name] = rec
	}
	return lib, nil
}

func writeUnit(w io.Writer, rec *UnitControlRecord) error {
	if err := wStr(w, rec.Name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(rec.Type)); err != nil {
		return err
	}
	if err := wStr(w, rec.SourceName); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, rec.Timestamp); err != nil {
		return err
	}
	if err := wStr(w, rec.BuildID); err != nil {
		return err
	}
	if err := wBool(w, rec.NeedsBody); err != nil {
		return err
	}
	if err := wInt(w, rec.SpecCount); err != nil {
		return err
	}

	if err := wRefs(w, rec.Inherits); err != nil {
		return err
	}
	if err := wRefs(w, rec.Imports); err != nil {
		return err
	}

	if err := wInt(w, len(rec.Slots)); err != nil {
		return err
	}
	for _, s := range rec.Slots {
		if err := wStr(w, s.Name); err != nil {
			return err
		}
		if err := wBool(w, s.IsMethod); err != nil {
			return err
		}
		if err := wBool(w, s.IsPublic); err != nil {
			return err
		}
		if err := wInt(w, s.ProcIndex); err != nil {
			return err
		}
		if err := wBool(w, s.InstanceVar); err != nil {
			return err
		}
	}

	if err := wInt(w, len(rec.IntLits)); err != nil {
		return err
	}
	for _, v := range rec.IntLits {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := wInt(w, len(rec.RealLits)); err != nil {
		return err
	}
	for _, v := range rec.RealLits {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := wInt(w, len(rec.StringLits)); err != nil {
		return err
	}
	for _, v := range rec.StringLits {
		if err := wStr(w, v); err != nil {
			return err
		}
	}
	if err := wInt(w, len(rec.ProcLits)); err != nil {
		return err
	}
	for _, p := range rec.ProcLits {
		for _, v := range []int{p.UnitIndex, p.CodeOffset, p.NumFormals, p.SpecBlockBase, p.SpecBlockSize, p.ParentIndex} {
			if err := wInt(w, v); err != nil {
				return err
			}
		}
		if err := wBool(w, p.InBody); err != nil {
			return err
		}
		if err := wStr(w, p.NativeSymbol); err != nil {
			return err
		}
	}
	if err := wInt(w, len(rec.LabelLits)); err != nil {
		return err
	}
	for _, lb := range rec.LabelLits {
		if err := wBool(w, lb.InBody); err != nil {
			return err
		}
		if err := wInt(w, lb.Offset); err != nil {
			return err
		}
	}

	if err := wChunk(w, rec.InitCode); err != nil {
		return err
	}
	if err := wChunk(w, rec.BodyCode); err != nil {
		return err
	}

	// Map streams are written in sorted key order so the
	// content-derived build fingerprint is stable.
	if err := wInt(w, len(rec.PublicSymbols)); err != nil {
		return err
	}
	for _, name := range sortedKeys(rec.PublicSymbols) {
		if err := wStr(w, name); err != nil {
			return err
		}
		if err := wInt(w, rec.PublicSymbols[name]); err != nil {
			return err
		}
	}

	if err := wStr(w, rec.NativeLibraryPath); err != nil {
		return err
	}
	if err := wStr(w, rec.NativeInitSymbol); err != nil {
		return err
	}
	if err := wInt(w, len(rec.NativeExports)); err != nil {
		return err
	}
	for _, name := range sortedKeys2(rec.NativeExports) {
		if err := wStr(w, name); err != nil {
			return err
		}
		if err := wStr(w, rec.NativeExports[name]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeys2(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func readUnit(r io.Reader) (*UnitControlRecord, error) {
	rec := &UnitControlRecord{}
	var err error
	if rec.Name, err = rStr(r); err != nil {
		return nil, err
	}
	var typ uint32
	if err = binary.Read(r, binary.LittleEndian, &typ); err != nil {
		return nil, err
	}
	rec.Type = symtab.UnitType(typ)
	if rec.SourceName, err = rStr(r); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.LittleEndian, &rec.Timestamp); err != nil {
		return nil, err
	}
	if rec.BuildID, err = rStr(r); err != nil {
		return nil, err
	}
	if rec.NeedsBody, err = rBool(r); err != nil {
		return nil, err
	}
	if rec.SpecCount, err = rInt(r); err != nil {
		return nil, err
	}

	if rec.Inherits, err = rRefs(r); err != nil {
		return nil, err
	}
	if rec.Imports, err = rRefs(r); err != nil {
		return nil, err
	}

	n, err := rInt(r)
	if err != nil {
		return nil, err
	}
	rec.Slots = make([]SlotDecl, n)
	for i := range rec.Slots {
		s := &rec.Slots[i]
		if s.Name, err = rStr(r); err != nil {
			return nil, err
		}
		if s.IsMethod, err = rBool(r); err != nil {
			return nil, err
		}
		if s.IsPublic, err = rBool(r); err != nil {
			return nil, err
		}
		if s.ProcIndex, err = rInt(r); err != nil {
			return nil, err
		}
		if s.InstanceVar, err = rBool(r); err != nil {
			return nil, err
		}
	}

	if n, err = rInt(r); err != nil {
		return nil, err
	}
	rec.IntLits = make([]int64, n)
	for i := range rec.IntLits {
		if err = binary.Read(r, binary.LittleEndian, &rec.IntLits[i]); err != nil {
			return nil, err
		}
	}
	if n, err = rInt(r); err != nil {
		return nil, err
	}
	rec.RealLits = make([]float64, n)
	for i := range rec.RealLits {
		if err = binary.Read(r, binary.LittleEndian, &rec.RealLits[i]); err != nil {
			return nil, err
		}
	}
	if n, err = rInt(r); err != nil {
		return nil, err
	}
	rec.StringLits = make([]string, n)
	for i := range rec.StringLits {
		if rec.StringLits[i], err = rStr(r); err != nil {
			return nil, err
		}
	}
	if n, err = rInt(r); err != nil {
		return nil, err
	}
	rec.ProcLits = make([]ProcLiteral, n)
	for i := range rec.ProcLits {
		p := &rec.ProcLits[i]
		for _, dst := range []*int{&p.UnitIndex, &p.CodeOffset, &p.NumFormals, &p.SpecBlockBase, &p.SpecBlockSize, &p.ParentIndex} {
			if *dst, err = rInt(r); err != nil {
				return nil, err
			}
		}
		if p.InBody, err = rBool(r); err != nil {
			return nil, err
		}
		if p.NativeSymbol, err = rStr(r); err != nil {
			return nil, err
		}
	}
	if n, err = rInt(r); err != nil {
		return nil, err
	}
	rec.LabelLits = make([]LabelLiteral, n)
	for i := range rec.LabelLits {
		lb := &rec.LabelLits[i]
		if lb.InBody, err = rBool(r); err != nil {
			return nil, err
		}
		if lb.Offset, err = rInt(r); err != nil {
			return nil, err
		}
	}

	if rec.InitCode, err = rChunk(r); err != nil {
		return nil, err
	}
	if rec.BodyCode, err = rChunk(r); err != nil {
		return nil, err
	}

	if n, err = rInt(r); err != nil {
		return nil, err
	}
	rec.PublicSymbols = make(map[string]int, n)
	for i := 0; i < n; i++ {
		name, err := rStr(r)
		if err != nil {
			return nil, err
		}
		pi, err := rInt(r)
		if err != nil {
			return nil, err
		}
		rec.PublicSymbols[name] = pi
	}

	if rec.NativeLibraryPath, err = rStr(r); err != nil {
		return nil, err
	}
	if rec.NativeInitSymbol, err = rStr(r); err != nil {
		return nil, err
	}
	if n, err = rInt(r); err != nil {
		return nil, err
	}
	rec.NativeExports = make(map[string]string, n)
	for i := 0; i < n; i++ {
		name, err := rStr(r)
		if err != nil {
			return nil, err
		}
		sym, err := rStr(r)
		if err != nil {
			return nil, err
		}
		rec.NativeExports[name] = sym
	}
	return rec, nil
}

func wChunk(w io.Writer, c *bytecode.Chunk) error {
	if c == nil {
		return wInt(w, 0)
	}
	if err := wInt(w, c.Len()); err != nil {
		return err
	}
	for _, in := range c.Code {
		if err := binary.Write(w, binary.LittleEndian, byte(in.Op)); err != nil {
			return err
		}
		for _, op := range []bytecode.Operand{in.A, in.B, in.C} {
			if err := binary.Write(w, binary.LittleEndian, byte(op.Kind)); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, op.Int); err != nil {
				return err
			}
		}
		if err := wInt(w, in.Line); err != nil {
			return err
		}
		if err := wStr(w, in.File); err != nil {
			return err
		}
	}
	return nil
}

func rChunk(r io.Reader) (*bytecode.Chunk, error) {
	n, err := rInt(r)
	if err != nil {
		return nil, err
	}
	c := bytecode.NewChunk()
	for i := 0; i < n; i++ {
		var in bytecode.Instr
		var op byte
		if err := binary.Read(r, binary.LittleEndian, &op); err != nil {
			return nil, err
		}
		in.Op = bytecode.Op(op)
		if !in.Op.Valid() {
			return nil, serr.Loaderf("library", "unknown opcode %d in compiled code", op)
		}
		for _, dst := range []*bytecode.Operand{&in.A, &in.B, &in.C} {
			var kind byte
			if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
				return nil, err
			}
			dst.Kind = bytecode.OperandKind(kind)
			if err := binary.Read(r, binary.LittleEndian, &dst.Int); err != nil {
				return nil, err
			}
		}
		if in.Line, err = rInt(r); err != nil {
			return nil, err
		}
		if in.File, err = rStr(r); err != nil {
			return nil, err
		}
		c.Emit(in)
	}
	return c, nil
}

func wRefs(w io.Writer, refs []UnitRef) error {
	if err := wInt(w, len(refs)); err != nil {
		return err
	}
	for _, ref := range refs {
		if err := wStr(w, ref.Name); err != nil {
			return err
		}
		if err := wStr(w, ref.SourceName); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, ref.Timestamp); err != nil {
			return err
		}
		if err := wStr(w, ref.BuildID); err != nil {
			return err
		}
	}
	return nil
}

func rRefs(r io.Reader) ([]UnitRef, error) {
	n, err := rInt(r)
	if err != nil {
		return nil, err
	}
	refs := make([]UnitRef, n)
	for i := range refs {
		ref := &refs[i]
		if ref.Name, err = rStr(r); err != nil {
			return nil, err
		}
		if ref.SourceName, err = rStr(r); err != nil {
			return nil, err
		}
		if err = binary.Read(r, binary.LittleEndian, &ref.Timestamp); err != nil {
			return nil, err
		}
		if ref.BuildID, err = rStr(r); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

func wStr(w io.Writer, s string) error {
	if err := wInt(w, len(s)); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func rStr(r io.Reader) (string, error) {
	n, err := rInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 || n > 1<<24 {
		return "", serr.Loaderf("library", "string record length %d out of range", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func wInt(w io.Writer, v int) error {
	return binary.Write(w, binary.LittleEndian, int32(v))
}

func rInt(r io.Reader) (int, error) {
	var v int32
	err := binary.Read(r, binary.LittleEndian, &v)
	return int(v), err
}

func wBool(w io.Writer, b bool) error {
	var v byte
	if b {
		v = 1
	}
	return binary.Write(w, binary.LittleEndian, v)
}

func rBool(r io.Reader) (bool, error) {
	var v byte
	err := binary.Read(r, binary.LittleEndian, &v)
	return v != 0, err
}
