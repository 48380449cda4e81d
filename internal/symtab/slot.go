package symtab

import "sync"

// SlotID is a globally-numbered named attribute id used for object
// field access and method lookup.
type SlotID int

// SlotKind distinguishes what a slot id means for a given class: an
// instance variable, a method, or simply absent from that class.
type SlotKind int

const (
	SlotAbsent SlotKind = iota
	SlotInstanceVar
	SlotMethod
)

// SlotInfo is one row of a class's slot-info array: whether the slot is a method or instance variable on this
// class, whether it is publicly callable, which unit declares it, and
// (for instance variables) the declaration-order index used both by
// the object header's cell array and by binstr's declaration-order
// encoding.
type SlotInfo struct {
	Kind     SlotKind
	IsPublic bool
	InClass  string // defining unit's name
	VarIndex int    // valid when Kind == SlotInstanceVar; prefix [0,VarCount)
	// Proc, for SlotMethod, is left abstract (an *interp.Procedure in
	// practice) so this package does not depend on the interpreter.
	Proc interface{}
}

// SlotTable interns slot names into dense global ids (pass one of
// the loader's first slot pass) and holds, per class, the per-slot
// info rows its second pass fills in (classes and processes only).
type SlotTable struct {
	mu       sync.RWMutex
	byName   map[string]SlotID
	names    []string
	classes  map[string][]SlotInfo // class name -> slot-info array indexed by SlotID
	varCount map[string]int
}

func NewSlotTable() *SlotTable {
	return &SlotTable{
		byName:   make(map[string]SlotID),
		classes:  make(map[string][]SlotInfo),
		varCount: make(map[string]int),
	}
}

// Intern returns the dense id for name, allocating one if this is the
// first time any unit has mentioned it.
func (t *SlotTable) Intern(name string) SlotID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byName[name]; ok {
		return id
	}
	id := SlotID(len(t.names))
	t.byName[name] = id
	t.names = append(t.names, name)
	return id
}

func (t *SlotTable) Name(id SlotID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) < 0 || int(id) >= len(t.names) {
		return ""
	}
	return t.names[id]
}

// DefineInstanceVar fills in the slot-info row for an instance
// variable of class, assigning it the next VarIndex in declaration
// order. The invariant that instance-variable slot indices form the
// prefix [0, var_count) exactly once is enforced here by
// construction: each call appends the next index.
func (t *SlotTable) DefineInstanceVar(class string, id SlotID, isPublic bool) SlotInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	arr := t.ensureClassLocked(class)
	idx := t.varCount[class]
	t.varCount[class] = idx + 1
	info := SlotInfo{Kind: SlotInstanceVar, IsPublic: isPublic, InClass: class, VarIndex: idx}
	t.classes[class] = setSlot(arr, id, info)
	return info
}

// DefineMethod fills in the slot-info row for a method.
func (t *SlotTable) DefineMethod(class string, id SlotID, isPublic bool, proc interface{}) SlotInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	arr := t.ensureClassLocked(class)
	info := SlotInfo{Kind: SlotMethod, IsPublic: isPublic, InClass: class, Proc: proc}
	t.classes[class] = setSlot(arr, id, info)
	return info
}

func setSlot(arr []SlotInfo, id SlotID, info SlotInfo) []SlotInfo {
	for len(arr) <= int(id) {
		arr = append(arr, SlotInfo{})
	}
	arr[id] = info
	return arr
}

func (t *SlotTable) ensureClassLocked(class string) []SlotInfo {
	return t.classes[class]
}

// Lookup returns the slot-info row for id on class, or SlotAbsent if
// the class (or an ancestor not yet flattened into it) never declares
// that slot.
func (t *SlotTable) Lookup(class string, id SlotID) SlotInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	arr := t.classes[class]
	if int(id) < 0 || int(id) >= len(arr) {
		return SlotInfo{Kind: SlotAbsent}
	}
	return arr[id]
}

// VarCount returns the number of instance variables declared on class.
func (t *SlotTable) VarCount(class string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.varCount[class]
}

// InstanceVars returns the class's instance-variable slot ids in
// declaration order, suitable for binstr's object encoder and for the object header's cell-array layout.
func (t *SlotTable) InstanceVars(class string) []SlotID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	arr := t.classes[class]
	out := make([]SlotID, t.varCount[class])
	for id, info := range arr {
		if info.Kind == SlotInstanceVar {
			out[info.VarIndex] = SlotID(id)
		}
	}
	return out
}
