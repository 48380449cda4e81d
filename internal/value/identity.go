package value

import "reflect"

// uintptrOf gives a stable identity hash for heap payloads that have
// no value-equality of their own (processes, mailboxes, procs,
// iterators, files, labels, opaque pointers): these compare and hash
// by pointer identity, which is the correct notion of equality for
// them. Every Heap implementation here is a
// pointer-to-struct, so reflect.Value.Pointer is well-defined.
func uintptrOf(h Heap) uintptr {
	v := reflect.ValueOf(h)
	if v.Kind() != reflect.Ptr {
		return 0
	}
	return v.Pointer()
}
