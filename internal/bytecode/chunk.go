package bytecode

// Operand is one of an instruction's three tagged operand slots. Kind
// says how Int must be interpreted: a raw count, an index into a
// literal pool, an unresolved/resolved label, a slot id, or a
// unit-table index naming a class or process. The loader (internal/loader)
// is what turns compile-time operand references into values an
// executing interpreter can use directly.
type Operand struct {
	Kind OperandKind
	Int  int64
	// Ref holds the loader-resolved in-memory pointer for operand
	// kinds the loader must materialize (OperandLabel -> a label
	// target, OperandClass/OperandProc -> a unit name, OperandSpec ->
	// a literal value). Interpreted by internal/interp and
	// internal/loader, never by this package.
	Ref interface{}
}

// Instr is one bytecode instruction: an opcode plus exactly three
// operands (unused trailing operands carry Kind == OperandNone).
type Instr struct {
	Op       Op
	A, B, C  Operand
	Line     int
	File     string
}

// Chunk is a unit's compiled instruction stream, either its
// initialization code or its body code; the loader keeps these as
// two separate chunks per unit.
type Chunk struct {
	Code []Instr
}

func NewChunk() *Chunk {
	return &Chunk{Code: []Instr{}}
}

func (c *Chunk) Emit(in Instr) int {
	c.Code = append(c.Code, in)
	return len(c.Code) - 1
}

func (c *Chunk) At(ip int) (Instr, bool) {
	if ip < 0 || ip >= len(c.Code) {
		return Instr{}, false
	}
	return c.Code[ip], true
}

func (c *Chunk) Len() int { return len(c.Code) }

// LabelTarget is what an OperandLabel operand's Ref points to once
// the loader has resolved it.
type LabelTarget struct {
	Chunk *Chunk
	IP    int
}
