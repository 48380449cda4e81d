// Package bytecode defines the instruction set the interpreter dispatches.
package bytecode

// Op is a single bytecode opcode. Every instruction is an Op followed
// by exactly three operands, each tagged at compile time (see
// OperandKind) so the loader knows how to resolve it.
type Op byte

const (
	// Stack mechanics
	OpPush1 Op = iota
	OpPush2
	OpPush3
	OpPop1
	OpPop2
	OpPop3
	OpErase

	// Arithmetic / relational
	OpAdd
	OpSub
	OpMult
	OpDiv
	OpExp
	OpMod
	OpMin
	OpMax
	OpUminus
	OpEq
	OpNe
	OpLt
	OpLe
	OpNotEq
	OpNotLt
	OpNotLe
	OpIn
	OpNotin
	OpIncs

	// Container
	OpWith
	OpLess
	OpLessf
	OpFrom
	OpFromb
	OpFrome
	OpPow
	OpArb
	OpNelt
	OpDomain
	OpRange
	OpOf
	OpOfa
	OpOf1
	OpTupof
	OpSlice
	OpEnd
	OpSof
	OpSofa
	OpSslice
	OpSend
	OpSmap
	OpSetLit
	OpTupleLit

	// Control flow
	OpGo
	OpGoind
	OpGotrue
	OpGofalse
	OpGoeq
	OpGone
	OpGolt
	OpGonlt
	OpGole
	OpGonle
	OpGoin
	OpGonotin
	OpGoincs
	OpGonincs
	OpIntcheck
	OpStop
	OpStopall

	// Calls and iteration
	OpLcall
	OpCall
	OpReturn
	OpIter
	OpInext

	// Objects / processes
	OpInitobj
	OpInitend
	OpInitproc
	OpInitpend
	OpSlot
	OpSslot
	OpSlotof
	OpSelf
	OpPenviron
	OpMenviron

	// Debug
	OpFilepos
	OpAssert

	opCount
)

// OperandKind tags how a compiled operand slot must be resolved by the
// unit loader before the interpreter can execute against it.
type OperandKind byte

const (
	OperandNone OperandKind = iota
	OperandInt              // raw integer (count, formal index, ...)
	OperandSpec             // index into the unit's literal specifier pool
	OperandLabel            // instruction-pointer operand, resolved at load time
	OperandSlot             // slot id
	OperandClass            // unit-table index naming a class
	OperandProc             // unit-table index naming a process class
)

// names is used only for diagnostics (trace/pretty dumps); it is not
// consulted by the dispatch loop.
var names = map[Op]string{
	OpPush1: "push1", OpPush2: "push2", OpPush3: "push3",
	OpPop1: "pop1", OpPop2: "pop2", OpPop3: "pop3", OpErase: "erase",
	OpAdd: "add", OpSub: "sub", OpMult: "mult", OpDiv: "div", OpExp: "exp",
	OpMod: "mod", OpMin: "min", OpMax: "max", OpUminus: "uminus",
	OpEq: "eq", OpNe: "ne", OpLt: "lt", OpLe: "le",
	OpNotEq: "noteq", OpNotLt: "notlt", OpNotLe: "notle",
	OpIn: "in", OpNotin: "notin", OpIncs: "incs",
	OpWith: "with", OpLess: "less", OpLessf: "lessf",
	OpFrom: "from", OpFromb: "fromb", OpFrome: "frome",
	OpPow: "pow", OpArb: "arb", OpNelt: "nelt",
	OpDomain: "domain", OpRange: "range",
	OpOf: "of", OpOfa: "ofa", OpOf1: "of1", OpTupof: "tupof",
	OpSlice: "slice", OpEnd: "end",
	OpSof: "sof", OpSofa: "sofa", OpSslice: "sslice", OpSend: "send",
	OpSmap: "smap", OpSetLit: "setlit", OpTupleLit: "tuplit",
	OpGo: "go", OpGoind: "goind", OpGotrue: "gotrue", OpGofalse: "gofalse",
	OpGoeq: "goeq", OpGone: "gone", OpGolt: "golt", OpGonlt: "gonlt",
	OpGole: "gole", OpGonle: "gonle", OpGoin: "goin", OpGonotin: "gonotin",
	OpGoincs: "goincs", OpGonincs: "gonincs",
	OpIntcheck: "intcheck", OpStop: "stop", OpStopall: "stopall",
	OpLcall: "lcall", OpCall: "call", OpReturn: "return",
	OpIter: "iter", OpInext: "inext",
	OpInitobj: "initobj", OpInitend: "initend",
	OpInitproc: "initproc", OpInitpend: "initpend",
	OpSlot: "slot", OpSslot: "sslot", OpSlotof: "slotof",
	OpSelf: "self", OpPenviron: "penviron", OpMenviron: "menviron",
	OpFilepos: "filepos", OpAssert: "assert",
}

func (op Op) String() string {
	if n, ok := names[op]; ok {
		return n
	}
	return "op?"
}

// Valid reports whether op is a known opcode.
func (op Op) Valid() bool { return op < opCount }
