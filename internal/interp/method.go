package interp

import (
	"setl/internal/symtab"
	"setl/internal/value"
)

// dispatchUser implements the operator dispatch protocol: for every
// binary operator, if the left operand is an object, look up the
// corresponding m_<op> slot on its
// class; if present and public, invoke it with the right operand as
// sole argument. Otherwise, if the right operand is an object, look
// up the reflected m_<op>_r slot on its class and invoke with the
// left operand. Returns handled=false when neither side has a
// matching method, meaning the built-in form-case logic must decide.
func (vm *VM) dispatchUser(opName string, left, right value.Specifier) (value.Specifier, bool, error) {
	if left.Form == value.FormObject {
		obj := left.Ptr.(*value.ObjectHeader)
		if res, ok, err := vm.invokeSlotMethod(obj, "m_"+opName, []value.Specifier{right}); ok || err != nil {
			return res, ok, err
		}
	}
	if right.Form == value.FormObject {
		obj := right.Ptr.(*value.ObjectHeader)
		if res, ok, err := vm.invokeSlotMethod(obj, "m_"+opName+"_r", []value.Specifier{left}); ok || err != nil {
			return res, ok, err
		}
	}
	return value.Omega, false, nil
}

// dispatchUnary implements the unary-operator fallback (arb, nelt,
// domain, range, pow, uminus, str, iterator
// start/next): if operand is an object and its class defines m_<name>,
// invoke it with no arguments.
func (vm *VM) dispatchUnary(name string, operand value.Specifier) (value.Specifier, bool, error) {
	if operand.Form != value.FormObject {
		return value.Omega, false, nil
	}
	obj := operand.Ptr.(*value.ObjectHeader)
	return vm.invokeSlotMethod(obj, "m_"+name, nil)
}

// StrOverride invokes an object's m_str method if its class defines
// one, overriding the default printable form of the instance. The
// printer in internal/ioformat consults this through a callback so
// that package never depends on the interpreter.
func (vm *VM) StrOverride(obj *value.ObjectHeader) (value.Specifier, bool, error) {
	return vm.invokeSlotMethod(obj, "m_str", nil)
}

func (vm *VM) invokeSlotMethod(obj *value.ObjectHeader, slotName string, args []value.Specifier) (value.Specifier, bool, error) {
	slotID := vm.Slots.Intern(slotName)
	info := vm.Slots.Lookup(obj.Class, slotID)
	if info.Kind != symtab.SlotMethod || !info.IsPublic {
		return value.Omega, false, nil
	}
	proc, ok := info.Proc.(*value.Procedure)
	if !ok || proc == nil {
		return value.Omega, false, nil
	}
	res, err := vm.CallBound(proc, obj, args)
	return res, true, err
}
