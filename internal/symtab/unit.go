package symtab

import "sync"

// UnitType classifies a compiled module the way the loader's unit
// control record does.
type UnitType int

const (
	UnitProgram UnitType = iota
	UnitClass
	UnitPackage
	UnitProcess
	UnitNative
)

func (t UnitType) String() string {
	switch t {
	case UnitProgram:
		return "program"
	case UnitClass:
		return "class"
	case UnitPackage:
		return "package"
	case UnitProcess:
		return "process"
	case UnitNative:
		return "native"
	default:
		return "unit"
	}
}

// UnitEntry is one unit table row: its interned name, load state, and
// the public-symbol stream (string -> procedure) the loader installs
// at step 10. Proc is left abstract (an *interp.Procedure in
// practice) to keep this package interpreter-agnostic.
type UnitEntry struct {
	Name        string
	Type        UnitType
	Loaded      bool
	SourceName  string
	Timestamp   int64
	BuildID     string // content fingerprint checked alongside the timestamp
	PublicSyms  map[string]interface{}
	UnitVector  []*UnitEntry // flattened: [0]=$predefined, [1]=self, then inherits/imports
}

// UnitTable interns unit names and caches their loaded state.
type UnitTable struct {
	mu      sync.RWMutex
	entries map[string]*UnitEntry
}

func NewUnitTable() *UnitTable {
	return &UnitTable{entries: make(map[string]*UnitEntry)}
}

// Intern returns the entry for name plus its Loaded flag, allocating a
// fresh, not-yet-loaded entry (returned with false) the first time
// name is seen; an existing entry that is not yet loaded is returned
// as is, with false.
func (t *UnitTable) Intern(name string) (*UnitEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[name]; ok {
		return e, e.Loaded
	}
	e := &UnitEntry{Name: name, PublicSyms: make(map[string]interface{})}
	t.entries[name] = e
	return e, false
}

func (t *UnitTable) Get(name string) (*UnitEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[name]
	return e, ok
}
