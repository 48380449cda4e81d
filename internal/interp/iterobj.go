package interp

import (
	"setl/internal/bytecode"
	"setl/internal/serr"
	"setl/internal/symtab"
	"setl/internal/value"
)

// execIter implements the iter opcode: operand A
// names the spec-block slot holding the source value, operand B the
// destination slot for the freshly built iterator.
func (vm *VM) execIter(frame *Frame, instr bytecode.Instr) error {
	src, err := vm.specBlockValue(frame, instr.A)
	if err != nil {
		return err
	}
	it, err := vm.newIterator(src)
	if err != nil {
		return err
	}
	return vm.storeSlot(frame, instr.B, value.MakeIter(it))
}

func (vm *VM) newIterator(src value.Specifier) (*value.Iterator, error) {
	switch src.Form {
	case value.FormSet:
		return value.NewSetIterator(src.Ptr.(*value.SetHeader)), nil
	case value.FormMap:
		return value.NewMapIterator(src.Ptr.(*value.MapHeader)), nil
	case value.FormTuple:
		return value.NewTupleIterator(src.Ptr.(*value.TupleHeader)), nil
	case value.FormString:
		return value.NewStringIterator(src.Ptr.(*value.StringHeader).String()), nil
	case value.FormShort:
		return value.NewShortRangeIterator(src.Short), nil
	case value.FormObject:
		return vm.newObjectIterator(src.Ptr.(*value.ObjectHeader))
	default:
		return nil, serr.Typef(src.Form.String(), "bad argument kind for builtin iter")
	}
}

// newObjectIterator drives the m_iterstart/m_iternext method pair
// through a value.Iterator whose continuation state is the object
// plus its current m_iterstart-returned token.
func (vm *VM) newObjectIterator(obj *value.ObjectHeader) (*value.Iterator, error) {
	start, ok, err := vm.invokeSlotMethod(obj, "m_iterstart", nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, serr.Typef(obj.Class, "bad argument kind for builtin iter")
	}
	type objIterState struct {
		token value.Specifier
	}
	return value.NewObjectIterator(objIterState{token: start}, func(state interface{}) (value.Specifier, interface{}, bool) {
		st := state.(objIterState)
		res, ok, err := vm.invokeSlotMethod(obj, "m_iternext", []value.Specifier{st.token})
		if err != nil || !ok || res.IsOmega() {
			return value.Omega, st, false
		}
		if res.Form != value.FormTuple || res.Ptr.(*value.TupleHeader).Len() != 2 {
			return value.Omega, st, false
		}
		t := res.Ptr.(*value.TupleHeader)
		return t.Get(0), objIterState{token: t.Get(1)}, true
	}), nil
}

// execInext implements the inext opcode: operand A is the iterator
// slot, operand B the destination value slot. Returns true when the
// iterator is exhausted, telling the dispatch loop to branch to
// operand C's label instead of falling through.
func (vm *VM) execInext(frame *Frame, instr bytecode.Instr) (bool, error) {
	v, err := vm.specBlockValue(frame, instr.A)
	if err != nil {
		return false, err
	}
	if v.Form != value.FormIter {
		return false, serr.Typef(v.Form.String(), "bad argument kind for builtin inext")
	}
	it := v.Ptr.(*value.Iterator)
	next, ok := it.Next()
	if !ok {
		return true, nil
	}
	return false, vm.storeSlot(frame, instr.B, next)
}

// execObjectOp implements the objects/processes opcode family of
// initobj/initend (plain object construction),
// initproc/initpend (process construction), slot/sslot (instance
// variable and bound-method access), slotof (method reference), self,
// penviron (closures) and menviron (current
// process's mailbox).
func (vm *VM) execObjectOp(frame *Frame, instr bytecode.Instr) error {
	switch instr.Op {

	case bytecode.OpInitobj:
		class, err := operandClassName(instr.A)
		if err != nil {
			return err
		}
		obj := value.NewObject(class, vm.Slots.VarCount(class))
		return vm.storeSlot(frame, instr.B, value.MakeObject(obj))

	case bytecode.OpInitend:
		// Marks the end of an initobj sequence for the compiler; no
		// runtime effect once instance variables are already set by
		// preceding sslot instructions.

	case bytecode.OpInitproc:
		class, err := operandClassName(instr.A)
		if err != nil {
			return err
		}
		entry, err := vm.specBlockValue(frame, instr.C)
		if err != nil {
			return err
		}
		var obj *value.ObjectHeader
		if vm.Host != nil && entry.Form == value.FormProc {
			obj, err = vm.Host.Spawn(entry.Ptr.(*value.Procedure), nil)
			if err != nil {
				return err
			}
		} else {
			obj = value.NewObject(class, vm.Slots.VarCount(class))
		}
		return vm.storeSlot(frame, instr.B, value.MakeProcess(obj))

	case bytecode.OpInitpend:
		// Marks the end of an initproc sequence; no runtime effect.

	case bytecode.OpSlot:
		return vm.execSlotRead(frame, instr)

	case bytecode.OpSslot:
		obj, err := vm.specBlockValue(frame, instr.A)
		if err != nil {
			return err
		}
		if obj.Form != value.FormObject && obj.Form != value.FormProcess {
			return serr.Typef(obj.Form.String(), "bad argument kind for builtin slot")
		}
		info := vm.Slots.Lookup(obj.Ptr.(*value.ObjectHeader).Class, operandSlotID(instr.B))
		if info.Kind != symtab.SlotInstanceVar {
			return serr.Typef(obj.Form.String(), "bad argument kind for builtin slot")
		}
		val, err := vm.specBlockValue(frame, instr.C)
		if err != nil {
			return err
		}
		updated := obj.Ptr.(*value.ObjectHeader).SetVar(info.VarIndex, val)
		var out value.Specifier
		if obj.Form == value.FormProcess {
			out = value.MakeProcess(updated)
		} else {
			out = value.MakeObject(updated)
		}
		return vm.storeSlot(frame, instr.A, out)

	case bytecode.OpSlotof:
		return vm.execSlotRead(frame, instr)

	case bytecode.OpSelf:
		if frame.Self == nil {
			return vm.storeSlot(frame, instr.A, value.Omega)
		}
		return vm.storeSlot(frame, instr.A, value.MakeObject(frame.Self))

	case bytecode.OpPenviron:
		tmpl, err := vm.specBlockValue(frame, instr.A)
		if err != nil {
			return err
		}
		if tmpl.Form != value.FormProc {
			return serr.Typef(tmpl.Form.String(), "bad argument kind for builtin penviron")
		}
		closure := vm.Penviron(tmpl.Ptr.(*value.Procedure))
		return vm.storeSlot(frame, instr.B, value.MakeProc(closure))

	case bytecode.OpMenviron:
		var mb value.Specifier
		if vm.Host != nil {
			mb = vm.Host.Mailbox(vm)
		}
		return vm.storeSlot(frame, instr.A, mb)

	default:
		return serr.Giveup("unhandled object opcode %v", instr.Op)
	}
	return nil
}

// execSlotRead implements both slot (ordinary field/method access)
// and slotof (method reference). Both resolve through the same
// slot-info lookup when this instruction executes, so slotof binds the
// method found at that moment rather than at a later call, and a slot
// absent from the object's class is a type error for both.
func (vm *VM) execSlotRead(frame *Frame, instr bytecode.Instr) error {
	obj, err := vm.specBlockValue(frame, instr.A)
	if err != nil {
		return err
	}
	if obj.Form != value.FormObject && obj.Form != value.FormProcess {
		return serr.Typef(obj.Form.String(), "bad argument kind for builtin slot")
	}
	oh := obj.Ptr.(*value.ObjectHeader)
	info := vm.Slots.Lookup(oh.Class, operandSlotID(instr.B))
	switch info.Kind {
	case symtab.SlotInstanceVar:
		return vm.storeSlot(frame, instr.C, oh.GetVar(info.VarIndex))
	case symtab.SlotMethod:
		proc, ok := info.Proc.(*value.Procedure)
		if !ok || proc == nil {
			return serr.Typef(oh.Class, "bad argument kind for builtin slot")
		}
		bound := *proc
		bound.Self = oh
		return vm.storeSlot(frame, instr.C, value.MakeProc(&bound))
	default:
		return serr.Typef(oh.Class, "bad argument kind for builtin slot")
	}
}
