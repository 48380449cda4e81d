package interp

import (
	"errors"

	"setl/internal/bytecode"
	"setl/internal/serr"
	"setl/internal/value"
)

// ErrStopAll is returned up through every call frame by the stopall
// opcode. The CLI driver maps it to a clean exit
// rather than an abend.
var ErrStopAll = errors.New("stopall")

// RunChunk executes chunk from offset 0 as a fresh top-level frame
// with the given spec block (used by the unit loader to run a unit's
// initialization code, and by the CLI driver to
// run the top-level body).
func (vm *VM) RunChunk(chunk *bytecode.Chunk, specBlock []value.Specifier) (value.Specifier, error) {
	frame := &Frame{Chunk: chunk, IP: 0, SpecBlock: specBlock}
	vm.Frames = append(vm.Frames, frame)
	defer func() { vm.Frames = vm.Frames[:len(vm.Frames)-1] }()
	return vm.runFrame()
}

// runFrame is the bytecode dispatch loop: a switch
// over (opcode, operand[0..3]) that runs until the current frame
// executes a return, stop, or stopall, or an error unwinds it.
func (vm *VM) runFrame() (value.Specifier, error) {
	frame := vm.curFrame()
	for {
		instr, ok := frame.Chunk.At(frame.IP)
		if !ok {
			return value.Omega, serr.Giveup("instruction pointer %d out of range", frame.IP)
		}
		next := frame.IP + 1
		vm.Steps++
		if vm.Trace != nil {
			vm.Trace(frame, instr)
		}

		switch instr.Op {

		// --- stack mechanics ---
		case bytecode.OpPush1, bytecode.OpPush2, bytecode.OpPush3:
			ops := operandsFor(instr, instr.Op)
			for _, op := range ops {
				v, err := vm.specBlockValue(frame, op)
				if err != nil {
					return value.Omega, err
				}
				vm.pushPstack(value.Retain(v))
			}

		case bytecode.OpPop1, bytecode.OpPop2, bytecode.OpPop3:
			ops := operandsFor(instr, instr.Op)
			for _, op := range ops {
				v, err := vm.popPstack()
				if err != nil {
					return value.Omega, err
				}
				if op.Kind == bytecode.OperandSpec {
					if err := vm.storeSlot(frame, op, v); err != nil {
						return value.Omega, err
					}
				} else {
					value.Release(v)
				}
			}

		case bytecode.OpErase:
			v, err := vm.popPstack()
			if err != nil {
				return value.Omega, err
			}
			value.Release(v)

		// --- arithmetic / relational ---
		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMult, bytecode.OpDiv,
			bytecode.OpExp, bytecode.OpMod, bytecode.OpMin, bytecode.OpMax,
			bytecode.OpEq, bytecode.OpNe, bytecode.OpLt, bytecode.OpLe,
			bytecode.OpNotEq, bytecode.OpNotLt, bytecode.OpNotLe,
			bytecode.OpIn, bytecode.OpNotin, bytecode.OpIncs:
			r, err := vm.popPstack()
			if err != nil {
				return value.Omega, err
			}
			l, err := vm.popPstack()
			if err != nil {
				return value.Omega, err
			}
			res, err := vm.binaryOpcode(instr.Op, l, r)
			if err != nil {
				return value.Omega, err
			}
			vm.pushPstack(res)

		case bytecode.OpUminus:
			v, err := vm.popPstack()
			if err != nil {
				return value.Omega, err
			}
			res, err := vm.Uminus(v)
			if err != nil {
				return value.Omega, err
			}
			vm.pushPstack(res)

		// --- container family ---
		case bytecode.OpWith, bytecode.OpLess, bytecode.OpLessf,
			bytecode.OpFrom, bytecode.OpFromb, bytecode.OpFrome,
			bytecode.OpPow, bytecode.OpArb, bytecode.OpNelt,
			bytecode.OpDomain, bytecode.OpRange,
			bytecode.OpOf, bytecode.OpOfa, bytecode.OpOf1, bytecode.OpTupof,
			bytecode.OpSlice, bytecode.OpEnd,
			bytecode.OpSof, bytecode.OpSofa, bytecode.OpSslice, bytecode.OpSend,
			bytecode.OpSmap, bytecode.OpSetLit, bytecode.OpTupleLit:
			if err := vm.execContainerOp(frame, instr); err != nil {
				return value.Omega, err
			}

		// --- control flow ---
		case bytecode.OpGo:
			lt, err := operandLabel(instr.A)
			if err != nil {
				return value.Omega, err
			}
			frame.Chunk, next = lt.Chunk, lt.IP

		case bytecode.OpGoind:
			v, err := vm.specBlockValue(frame, instr.A)
			if err != nil {
				return value.Omega, err
			}
			if v.Form != value.FormLabel {
				return value.Omega, serr.Typef(v.Form.String(), "bad argument kind for builtin goind")
			}
			lbl := v.Ptr.(*value.Label)
			frame.Chunk, next = lbl.Chunk, lbl.IP

		case bytecode.OpGotrue, bytecode.OpGofalse:
			v, err := vm.popPstack()
			if err != nil {
				return value.Omega, err
			}
			if v.Truthy() == (instr.Op == bytecode.OpGotrue) {
				lt, err := operandLabel(instr.A)
				if err != nil {
					return value.Omega, err
				}
				frame.Chunk, next = lt.Chunk, lt.IP
			}

		case bytecode.OpGoeq, bytecode.OpGone, bytecode.OpGolt, bytecode.OpGonlt,
			bytecode.OpGole, bytecode.OpGonle, bytecode.OpGoin, bytecode.OpGonotin,
			bytecode.OpGoincs, bytecode.OpGonincs:
			r, err := vm.popPstack()
			if err != nil {
				return value.Omega, err
			}
			l, err := vm.popPstack()
			if err != nil {
				return value.Omega, err
			}
			take, err := vm.condGoBranch(instr.Op, l, r)
			if err != nil {
				return value.Omega, err
			}
			if take {
				lt, err := operandLabel(instr.A)
				if err != nil {
					return value.Omega, err
				}
				frame.Chunk, next = lt.Chunk, lt.IP
			}

		case bytecode.OpIntcheck:
			if vm.Host != nil {
				vm.Host.Yield(vm)
			}

		case bytecode.OpStop:
			return value.Omega, nil

		case bytecode.OpStopall:
			vm.stopped = true
			return value.Omega, ErrStopAll

		// --- calls and iteration ---
		case bytecode.OpLcall, bytecode.OpCall:
			res, err := vm.execCall(frame, instr)
			if err != nil {
				return value.Omega, err
			}
			vm.pushPstack(res)

		case bytecode.OpReturn:
			if len(vm.Stack) > 0 {
				v, err := vm.topPstack()
				if err == nil {
					if _, perr := vm.popPstack(); perr == nil {
						return v, nil
					}
				}
			}
			return value.Omega, nil

		case bytecode.OpIter:
			if err := vm.execIter(frame, instr); err != nil {
				return value.Omega, err
			}

		case bytecode.OpInext:
			branched, err := vm.execInext(frame, instr)
			if err != nil {
				return value.Omega, err
			}
			if branched {
				lt, err := operandLabel(instr.C)
				if err != nil {
					return value.Omega, err
				}
				frame.Chunk, next = lt.Chunk, lt.IP
			}

		// --- objects / processes ---
		case bytecode.OpInitobj, bytecode.OpInitend, bytecode.OpInitproc,
			bytecode.OpInitpend, bytecode.OpSlot, bytecode.OpSslot,
			bytecode.OpSlotof, bytecode.OpSelf, bytecode.OpPenviron,
			bytecode.OpMenviron:
			if err := vm.execObjectOp(frame, instr); err != nil {
				return value.Omega, err
			}

		// --- debug ---
		case bytecode.OpFilepos:
			// Source-position marker only; no runtime effect.

		case bytecode.OpAssert:
			v, err := vm.popPstack()
			if err != nil {
				return value.Omega, err
			}
			if !v.Truthy() {
				return value.Omega, serr.Typef(v.Form.String(), "assertion failed")
			}

		default:
			return value.Omega, serr.Giveup("unimplemented opcode %v", instr.Op)
		}

		frame.IP = next
	}
}

// operandsFor returns the live operand slots for a push/pop family
// opcode: push1/pop1 touch only A, push2/pop2 touch A,B, push3/pop3
// touch A,B,C.
func operandsFor(in bytecode.Instr, op bytecode.Op) []bytecode.Operand {
	switch op {
	case bytecode.OpPush1, bytecode.OpPop1:
		return []bytecode.Operand{in.A}
	case bytecode.OpPush2, bytecode.OpPop2:
		return []bytecode.Operand{in.A, in.B}
	default:
		return []bytecode.Operand{in.A, in.B, in.C}
	}
}

func (vm *VM) binaryOpcode(op bytecode.Op, l, r value.Specifier) (value.Specifier, error) {
	switch op {
	case bytecode.OpAdd:
		return vm.Add(l, r)
	case bytecode.OpSub:
		return vm.Sub(l, r)
	case bytecode.OpMult:
		return vm.Mult(l, r)
	case bytecode.OpDiv:
		return vm.Div(l, r)
	case bytecode.OpExp:
		return vm.Exp(l, r)
	case bytecode.OpMod:
		return vm.Mod(l, r)
	case bytecode.OpMin:
		return vm.Min(l, r)
	case bytecode.OpMax:
		return vm.Max(l, r)
	case bytecode.OpEq:
		return vm.Eq(l, r)
	case bytecode.OpNe, bytecode.OpNotEq:
		return vm.Ne(l, r)
	case bytecode.OpLt:
		return vm.Lt(l, r)
	case bytecode.OpLe:
		return vm.Le(l, r)
	case bytecode.OpNotLt:
		res, err := vm.Lt(l, r)
		if err != nil {
			return res, err
		}
		return value.MakeBool(!res.Truthy()), nil
	case bytecode.OpNotLe:
		res, err := vm.Le(l, r)
		if err != nil {
			return res, err
		}
		return value.MakeBool(!res.Truthy()), nil
	case bytecode.OpIn:
		return vm.In(l, r)
	case bytecode.OpNotin:
		return vm.Notin(l, r)
	case bytecode.OpIncs:
		return vm.Incs(l, r)
	default:
		return value.Omega, serr.Giveup("unhandled binary opcode %v", op)
	}
}

// condGoBranch evaluates a go{eq,ne,lt,...} conditional-branch opcode
// against the popped (left,
// right) operand pair.
func (vm *VM) condGoBranch(op bytecode.Op, l, r value.Specifier) (bool, error) {
	var base bytecode.Op
	negate := false
	switch op {
	case bytecode.OpGoeq:
		base = bytecode.OpEq
	case bytecode.OpGone:
		base = bytecode.OpNe
	case bytecode.OpGolt:
		base = bytecode.OpLt
	case bytecode.OpGonlt:
		base, negate = bytecode.OpLt, true
	case bytecode.OpGole:
		base = bytecode.OpLe
	case bytecode.OpGonle:
		base, negate = bytecode.OpLe, true
	case bytecode.OpGoin:
		base = bytecode.OpIn
	case bytecode.OpGonotin:
		base, negate = bytecode.OpIn, true
	case bytecode.OpGoincs:
		base = bytecode.OpIncs
	case bytecode.OpGonincs:
		base, negate = bytecode.OpIncs, true
	default:
		return false, serr.Giveup("unhandled conditional branch opcode %v", op)
	}
	res, err := vm.binaryOpcode(base, l, r)
	if err != nil {
		return false, err
	}
	return res.Truthy() != negate, nil
}
