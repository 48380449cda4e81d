package value

import "math"

// Hash computes a specifier's hash code. Containers cache their own
// header hash and simply return it here rather than
// recursing every time; only the leaf scalar forms compute on demand.
func Hash(s Specifier) uint64 {
	switch s.Form {
	case FormOmega:
		return 0x9e3779b97f4a7c15
	case FormAtom:
		return uint64(s.Atom)*2654435761 + 1
	case FormShort:
		return uint64(s.Short) * 2654435761
	case FormLong:
		bn := s.Ptr.(*Bignum)
		var h uint64
		for _, d := range bn.Digits() {
			h = h*31 + uint64(d)
		}
		if bn.IsNegative() {
			h ^= 0xffffffff
		}
		return h
	case FormReal:
		return math.Float64bits(s.Ptr.(*RealCell).V)
	case FormString:
		return s.Ptr.(*StringHeader).Hash()
	case FormSet:
		return s.Ptr.(*SetHeader).hash
	case FormMap:
		return s.Ptr.(*MapHeader).hash
	case FormTuple:
		return s.Ptr.(*TupleHeader).hash
	case FormObject:
		return s.Ptr.(*ObjectHeader).Hash()
	default:
		// Non-portable, non-hash-bearing forms: identity hash by pointer.
		return uint64(uintptr(ptrOf(s.Ptr)))
	}
}

// Equal reports value equality between two specifiers, recursing
// structurally into containers (no cycles are possible).
func Equal(a, b Specifier) bool {
	if a.Form != b.Form {
		// short/long cross-form equality: normalized representation
		// means a well-formed program never has long==short in value,
		// but guard anyway for mixed arithmetic results.
		ai, aok := AsBigInt(a)
		bi, bok := AsBigInt(b)
		if aok && bok {
			return ai.Cmp(bi) == 0
		}
		return false
	}
	switch a.Form {
	case FormOmega:
		return true
	case FormAtom:
		return a.Atom == b.Atom
	case FormShort:
		return a.Short == b.Short
	case FormLong:
		ai, _ := AsBigInt(a)
		bi, _ := AsBigInt(b)
		return ai.Cmp(bi) == 0
	case FormReal:
		return a.Ptr.(*RealCell).V == b.Ptr.(*RealCell).V
	case FormString:
		return a.Ptr.(*StringHeader).String() == b.Ptr.(*StringHeader).String()
	case FormSet:
		return setEqual(a.Ptr.(*SetHeader), b.Ptr.(*SetHeader))
	case FormMap:
		return mapEqual(a.Ptr.(*MapHeader), b.Ptr.(*MapHeader))
	case FormTuple:
		return tupleEqual(a.Ptr.(*TupleHeader), b.Ptr.(*TupleHeader))
	case FormObject:
		return a.Ptr == b.Ptr
	default:
		return a.Ptr == b.Ptr
	}
}

func ptrOf(h Heap) uintptr {
	return uintptrOf(h)
}
