// Package value implements the runtime value model:
// the uniform tagged specifier, its reference-counted copy-on-write
// heap objects, and the hash-trie containers built on top of them.
package value

import "setl/internal/symtab"

// Form is a specifier's tag. The form strictly determines which
// payload is live.
type Form byte

const (
	FormOmega Form = iota
	FormAtom
	FormShort
	FormLong
	FormReal
	FormString
	FormSet
	FormMap
	FormTuple
	FormObject
	FormProcess
	FormMailbox
	FormProc
	FormIter
	FormFile
	FormLabel
	FormOpaque
)

func (f Form) String() string {
	switch f {
	case FormOmega:
		return "omega"
	case FormAtom:
		return "atom"
	case FormShort:
		return "short"
	case FormLong:
		return "long"
	case FormReal:
		return "real"
	case FormString:
		return "string"
	case FormSet:
		return "set"
	case FormMap:
		return "map"
	case FormTuple:
		return "tuple"
	case FormObject:
		return "object"
	case FormProcess:
		return "process"
	case FormMailbox:
		return "mailbox"
	case FormProc:
		return "proc"
	case FormIter:
		return "iter"
	case FormFile:
		return "file"
	case FormLabel:
		return "label"
	case FormOpaque:
		return "opaque"
	default:
		return "?"
	}
}

// Portable reports whether values of this form may cross a binstr
// round trip outside the originating process lifetime. atom is
// special-cased by the binstr decoder for the predefined true/false
// atoms only; that exception lives in the ioformat package, not here.
func (f Form) Portable() bool {
	switch f {
	case FormFile, FormProc, FormIter, FormMailbox, FormLabel, FormOpaque, FormAtom:
		return false
	default:
		return true
	}
}

// Heap is implemented by every payload a specifier may point to. No
// specifier of a pointer-carrying form holds a nil Heap.
type Heap interface {
	UseCount() int32
	incRef() int32
	decRef() int32
}

// Counted is embedded by every heap payload type to provide the
// reference-counting half of Heap. Mutating operations consult
// UseCount() == 1 before mutating in place; the make_mut helper is
// the per-type CloneForWrite method next to each container (set.go,
// mapv.go, tuple.go, object.go), which all check UseCount first.
type Counted struct {
	uses int32
}

func (c *Counted) UseCount() int32 { return c.uses }
func (c *Counted) incRef() int32   { c.uses++; return c.uses }
func (c *Counted) decRef() int32   { c.uses--; return c.uses }

// Specifier is the uniform tagged runtime value. Ptr carries the
// payload for every pointer-carrying form; Short carries the inline
// small-integer payload; Atom carries the atom id.
type Specifier struct {
	Form  Form
	Short int64
	Atom  symtab.AtomID
	Ptr   Heap
}

// Omega is the undefined value.
var Omega = Specifier{Form: FormOmega}

func MakeShort(n int64) Specifier { return Specifier{Form: FormShort, Short: n} }

func MakeAtom(id symtab.AtomID) Specifier { return Specifier{Form: FormAtom, Atom: id} }

var (
	True  = MakeAtom(symtab.AtomTrue)
	False = MakeAtom(symtab.AtomFalse)
)

func MakeBool(b bool) Specifier {
	if b {
		return True
	}
	return False
}

func (s Specifier) IsOmega() bool { return s.Form == FormOmega }

func (s Specifier) Truthy() bool {
	return s.Form == FormAtom && s.Atom == symtab.AtomTrue
}

// Retain increments the use count of s's payload, if any. Call this
// whenever a specifier is duplicated into a second slot.
func Retain(s Specifier) Specifier {
	if s.Ptr != nil {
		s.Ptr.incRef()
	}
	return s
}

// Release decrements the use count of s's payload, if any, and
// reports the resulting count ("unmarking"). Once the count reaches
// zero the Go garbage collector reclaims the object;
// this runtime does not otherwise pool or free the memory explicitly.
func Release(s Specifier) int32 {
	if s.Ptr != nil {
		return s.Ptr.decRef()
	}
	return 0
}
