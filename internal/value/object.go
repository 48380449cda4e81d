package value

// ObjectHeader is the heap payload for FormObject and, when Process
// is non-nil, FormProcess: a process specifier carries an object
// header with an optional process record. Instance variables are
// stored in a tuple-shaped header tree keyed by the slot table's
// VarIndex, whose values form the prefix [0, var_count) in
// declaration order.
type ObjectHeader struct {
	Counted
	Class string
	vars  *TupleHeader
	// Process, left abstract as interface{}, holds the scheduler's
	// process record (internal/procsched.Process) when this header
	// backs a FormProcess specifier, keeping this package free of a
	// dependency on the scheduler.
	Process interface{}
}

func NewObject(class string, varCount int) *ObjectHeader {
	return &ObjectHeader{Class: class, vars: NewTuple()}
}

func MakeObject(o *ObjectHeader) Specifier { return Specifier{Form: FormObject, Ptr: o} }
func MakeProcess(o *ObjectHeader) Specifier { return Specifier{Form: FormProcess, Ptr: o} }

func (o *ObjectHeader) CloneForWrite() *ObjectHeader {
	if o.UseCount() <= 1 {
		return o
	}
	return &ObjectHeader{Class: o.Class, vars: o.vars.CloneForWrite(), Process: o.Process}
}

// GetVar / SetVar address instance variables by the slot table's
// VarIndex.
func (o *ObjectHeader) GetVar(idx int) Specifier { return o.vars.Get(idx) }

func (o *ObjectHeader) SetVar(idx int, v Specifier) *ObjectHeader {
	out := o.CloneForWrite()
	out.vars = out.vars.Set(idx, v)
	return out
}

// Hash XORs the hashes of all instance variables, each multiplied by
// its 1-based position (as tuple hashing does), the container
// hash discipline generalized to objects so they are usable as set
// elements and map keys.
func (o *ObjectHeader) Hash() uint64 {
	var h uint64
	o.vars.Walk(func(i int, v Specifier) { h ^= Hash(v) * uint64(i+1) })
	return h
}

// InstanceVars returns the declared-order slice of instance variable
// values, the shape binstr's object encoder needs.
func (o *ObjectHeader) InstanceVars(varCount int) []Specifier {
	out := make([]Specifier, varCount)
	for i := range out {
		out[i] = o.vars.Get(i)
	}
	return out
}
