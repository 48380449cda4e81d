package interp

import (
	"setl/internal/serr"
	"setl/internal/value"
)

// ConsultAbend gives installed error extensions a chance to intercept
// an abend before it terminates the program: the
// composed extension map is searched under the error's message name,
// and a registered procedure is invoked with the formatted message as
// its sole argument. Giveups (tier-2 invariant violations) are never
// interceptable. Returns handled=false when no extension claims the
// error, in which case the caller aborts as usual.
func (vm *VM) ConsultAbend(err error) (value.Specifier, bool) {
	re, ok := err.(*serr.RuntimeError)
	if !ok || re.Tier == serr.TierInvariant {
		return value.Omega, false
	}
	var maps []*serr.ExtensionMap
	for _, tf := range vm.tryStack {
		maps = append(maps, tf.ExtMap)
	}
	maps = append(maps, vm.RootExt)
	h, found := serr.Lookup(re.Message, maps...)
	if !found {
		return value.Omega, false
	}
	proc, ok := h.(*value.Procedure)
	if !ok {
		return value.Omega, false
	}
	msg := value.Specifier{Form: value.FormString, Ptr: value.NewString(re.Error())}
	res, callErr := vm.CallAny(proc, []value.Specifier{msg})
	if callErr != nil {
		return value.Omega, false
	}
	return res, true
}
