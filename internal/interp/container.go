package interp

import (
	"setl/internal/bytecode"
	"setl/internal/serr"
	"setl/internal/value"
)

// execContainerOp implements the container opcode family: with, less, lessf, from/fromb/frome, pow, arb, nelt,
// domain, range, of/ofa/of1, tupof, slice/end, the sinister
// (assigning) duals sof/sofa/sslice/send, smap, and the set/tuple
// literal builders. Every built-in binary/unary form here first tries
// the object-method dispatch protocol before falling back
// to the container algorithms in internal/value.
func (vm *VM) execContainerOp(frame *Frame, instr bytecode.Instr) error {
	switch instr.Op {

	case bytecode.OpWith:
		elem, err := vm.popPstack()
		if err != nil {
			return err
		}
		c, err := vm.popPstack()
		if err != nil {
			return err
		}
		res, err := vm.binOp("with", c, elem, func(c, elem value.Specifier) (value.Specifier, error) {
			switch c.Form {
			case value.FormSet:
				return value.MakeSet(c.Ptr.(*value.SetHeader).With(elem)), nil
			case value.FormMap:
				// A map is a set of pairs, so `m with [k,v]` adds the
				// pair; a second pair under the same key grows its
				// value set, just as it would in the set view.
				if elem.Form != value.FormTuple || elem.Ptr.(*value.TupleHeader).Len() != 2 {
					return value.Omega, serr.Typef(elem.Form.String(), "bad argument kind for builtin with")
				}
				pair := elem.Ptr.(*value.TupleHeader)
				return value.MakeMap(c.Ptr.(*value.MapHeader).With(pair.Get(0), pair.Get(1))), nil
			case value.FormTuple:
				t := c.Ptr.(*value.TupleHeader)
				return value.MakeTuple(t.Set(t.Len(), elem)), nil
			default:
				return value.Omega, serr.Typef(c.Form.String(), "bad argument kind for builtin with")
			}
		})
		if err != nil {
			return err
		}
		vm.pushPstack(res)

	case bytecode.OpLess:
		elem, err := vm.popPstack()
		if err != nil {
			return err
		}
		c, err := vm.popPstack()
		if err != nil {
			return err
		}
		res, err := vm.binOp("less", c, elem, func(c, elem value.Specifier) (value.Specifier, error) {
			switch c.Form {
			case value.FormSet:
				return value.MakeSet(c.Ptr.(*value.SetHeader).Less(elem)), nil
			case value.FormMap:
				return value.MakeMap(c.Ptr.(*value.MapHeader).Less(elem)), nil
			default:
				return value.Omega, serr.Typef(c.Form.String(), "bad argument kind for builtin less")
			}
		})
		if err != nil {
			return err
		}
		vm.pushPstack(res)

	case bytecode.OpLessf:
		val, err := vm.popPstack()
		if err != nil {
			return err
		}
		key, err := vm.popPstack()
		if err != nil {
			return err
		}
		m, err := vm.popPstack()
		if err != nil {
			return err
		}
		if m.Form != value.FormMap {
			return serr.Typef(m.Form.String(), "bad argument kind for builtin lessf")
		}
		vm.pushPstack(value.MakeMap(m.Ptr.(*value.MapHeader).Lessf(key, val)))

	case bytecode.OpFrom, bytecode.OpFromb, bytecode.OpFrome:
		c, err := vm.popPstack()
		if err != nil {
			return err
		}
		elem, rest, err := extractFrom(instr.Op, c)
		if err != nil {
			return err
		}
		vm.pushPstack(elem)
		vm.pushPstack(rest)

	case bytecode.OpPow:
		c, err := vm.popPstack()
		if err != nil {
			return err
		}
		res, ok, err := vm.dispatchUnary("pow", c)
		if err != nil {
			return err
		}
		if !ok {
			if c.Form != value.FormSet {
				return serr.Typef(c.Form.String(), "bad argument kind for builtin pow")
			}
			res = value.MakeSet(powerset(c.Ptr.(*value.SetHeader)))
		}
		vm.pushPstack(res)

	case bytecode.OpArb:
		c, err := vm.popPstack()
		if err != nil {
			return err
		}
		res, ok, err := vm.dispatchUnary("arb", c)
		if err != nil {
			return err
		}
		if !ok {
			switch c.Form {
			case value.FormSet:
				res, _ = c.Ptr.(*value.SetHeader).Arb()
			case value.FormTuple:
				res = c.Ptr.(*value.TupleHeader).Get(0)
			default:
				return serr.Typef(c.Form.String(), "bad argument kind for builtin arb")
			}
		}
		vm.pushPstack(res)

	case bytecode.OpNelt:
		c, err := vm.popPstack()
		if err != nil {
			return err
		}
		res, ok, err := vm.dispatchUnary("nelt", c)
		if err != nil {
			return err
		}
		if !ok {
			switch c.Form {
			case value.FormSet:
				res = value.MakeShort(int64(c.Ptr.(*value.SetHeader).Card()))
			case value.FormMap:
				res = value.MakeShort(int64(c.Ptr.(*value.MapHeader).Card()))
			case value.FormTuple:
				res = value.MakeShort(int64(c.Ptr.(*value.TupleHeader).Len()))
			case value.FormString:
				res = value.MakeShort(int64(c.Ptr.(*value.StringHeader).Len()))
			default:
				return serr.Typef(c.Form.String(), "bad argument kind for builtin nelt")
			}
		}
		vm.pushPstack(res)

	case bytecode.OpDomain:
		c, err := vm.popPstack()
		if err != nil {
			return err
		}
		res, ok, err := vm.dispatchUnary("domain", c)
		if err != nil {
			return err
		}
		if !ok {
			if c.Form != value.FormMap {
				return serr.Typef(c.Form.String(), "bad argument kind for builtin domain")
			}
			res = value.MakeSet(c.Ptr.(*value.MapHeader).Domain())
		}
		vm.pushPstack(res)

	case bytecode.OpRange:
		c, err := vm.popPstack()
		if err != nil {
			return err
		}
		res, ok, err := vm.dispatchUnary("range", c)
		if err != nil {
			return err
		}
		if !ok {
			if c.Form != value.FormMap {
				return serr.Typef(c.Form.String(), "bad argument kind for builtin range")
			}
			res = value.MakeSet(c.Ptr.(*value.MapHeader).Range())
		}
		vm.pushPstack(res)

	case bytecode.OpOf, bytecode.OpOfa, bytecode.OpOf1:
		key, err := vm.popPstack()
		if err != nil {
			return err
		}
		c, err := vm.popPstack()
		if err != nil {
			return err
		}
		res, err := applyOf(instr.Op, c, key)
		if err != nil {
			return err
		}
		vm.pushPstack(res)

	case bytecode.OpTupof:
		idxs, err := vm.popPstack()
		if err != nil {
			return err
		}
		c, err := vm.popPstack()
		if err != nil {
			return err
		}
		if c.Form != value.FormTuple || idxs.Form != value.FormTuple {
			return serr.Typef(c.Form.String(), "bad argument kind for builtin tupof")
		}
		src := c.Ptr.(*value.TupleHeader)
		gathered := value.NewTuple()
		idxs.Ptr.(*value.TupleHeader).Walk(func(i int, v value.Specifier) {
			if v.Form == value.FormShort {
				gathered = gathered.Set(i, src.Get(int(v.Short)-1))
			}
		})
		vm.pushPstack(value.MakeTuple(gathered))

	case bytecode.OpSlice:
		b, err := vm.popPstack()
		if err != nil {
			return err
		}
		a, err := vm.popPstack()
		if err != nil {
			return err
		}
		c, err := vm.popPstack()
		if err != nil {
			return err
		}
		if c.Form != value.FormTuple || a.Form != value.FormShort || b.Form != value.FormShort {
			return serr.Typef(c.Form.String(), "bad argument kind for builtin slice")
		}
		t := c.Ptr.(*value.TupleHeader)
		vm.pushPstack(value.MakeTuple(t.Slice(int(a.Short)-1, int(b.Short))))

	case bytecode.OpEnd:
		a, err := vm.popPstack()
		if err != nil {
			return err
		}
		c, err := vm.popPstack()
		if err != nil {
			return err
		}
		if c.Form != value.FormTuple || a.Form != value.FormShort {
			return serr.Typef(c.Form.String(), "bad argument kind for builtin end")
		}
		t := c.Ptr.(*value.TupleHeader)
		vm.pushPstack(value.MakeTuple(t.Slice(int(a.Short)-1, t.Len())))

	case bytecode.OpSof:
		val, err := vm.popPstack()
		if err != nil {
			return err
		}
		key, err := vm.popPstack()
		if err != nil {
			return err
		}
		cur, err := vm.specBlockValue(frame, instr.A)
		if err != nil {
			return err
		}
		updated, err := assignSinisterOf(cur, key, val)
		if err != nil {
			return err
		}
		if err := vm.storeSlot(frame, instr.A, updated); err != nil {
			return err
		}

	case bytecode.OpSofa:
		vals, err := vm.popPstack()
		if err != nil {
			return err
		}
		key, err := vm.popPstack()
		if err != nil {
			return err
		}
		cur, err := vm.specBlockValue(frame, instr.A)
		if err != nil {
			return err
		}
		if vals.Form != value.FormSet {
			return serr.Typef(vals.Form.String(), "bad argument kind for builtin sofa")
		}
		var m *value.MapHeader
		switch cur.Form {
		case value.FormMap:
			m = cur.Ptr.(*value.MapHeader).Less(key)
		case value.FormOmega:
			// First assignment to an unset map-shaped variable, same
			// as the sof path below.
			m = value.NewMap()
		default:
			return serr.Typef(cur.Form.String(), "bad argument kind for builtin sofa")
		}
		vals.Ptr.(*value.SetHeader).Walk(func(e value.Specifier) { m = m.With(key, e) })
		if err := vm.storeSlot(frame, instr.A, value.MakeMap(m)); err != nil {
			return err
		}

	case bytecode.OpSslice:
		src, err := vm.popPstack()
		if err != nil {
			return err
		}
		b, err := vm.popPstack()
		if err != nil {
			return err
		}
		a, err := vm.popPstack()
		if err != nil {
			return err
		}
		cur, err := vm.specBlockValue(frame, instr.A)
		if err != nil {
			return err
		}
		if cur.Form != value.FormTuple || src.Form != value.FormTuple {
			return serr.Typef(cur.Form.String(), "bad argument kind for builtin sslice")
		}
		updated := value.SliceAssign(cur.Ptr.(*value.TupleHeader), int(shortOf(a))-1, int(shortOf(b)), src.Ptr.(*value.TupleHeader))
		if err := vm.storeSlot(frame, instr.A, value.MakeTuple(updated)); err != nil {
			return err
		}

	case bytecode.OpSend:
		src, err := vm.popPstack()
		if err != nil {
			return err
		}
		a, err := vm.popPstack()
		if err != nil {
			return err
		}
		cur, err := vm.specBlockValue(frame, instr.A)
		if err != nil {
			return err
		}
		if cur.Form != value.FormTuple || src.Form != value.FormTuple {
			return serr.Typef(cur.Form.String(), "bad argument kind for builtin send")
		}
		t := cur.Ptr.(*value.TupleHeader)
		updated := value.SliceAssign(t, int(shortOf(a))-1, t.Len(), src.Ptr.(*value.TupleHeader))
		if err := vm.storeSlot(frame, instr.A, value.MakeTuple(updated)); err != nil {
			return err
		}

	case bytecode.OpSmap:
		c, err := vm.popPstack()
		if err != nil {
			return err
		}
		if c.Form != value.FormSet {
			return serr.Typef(c.Form.String(), "bad argument kind for builtin smap")
		}
		m := value.NewMap()
		var convErr error
		c.Ptr.(*value.SetHeader).Walk(func(e value.Specifier) {
			if convErr != nil {
				return
			}
			if e.Form != value.FormTuple || e.Ptr.(*value.TupleHeader).Len() != 2 {
				convErr = serr.Typef(e.Form.String(), "bad argument kind for builtin smap")
				return
			}
			t := e.Ptr.(*value.TupleHeader)
			m = m.With(t.Get(0), t.Get(1))
		})
		if convErr != nil {
			return convErr
		}
		vm.pushPstack(value.MakeMap(m))

	case bytecode.OpSetLit:
		n := int(operandInt(instr.A))
		elems := make([]value.Specifier, n)
		for i := n - 1; i >= 0; i-- {
			v, err := vm.popPstack()
			if err != nil {
				return err
			}
			elems[i] = v
		}
		s := value.NewSet()
		for _, e := range elems {
			s = s.With(e)
		}
		vm.pushPstack(value.MakeSet(s))

	case bytecode.OpTupleLit:
		n := int(operandInt(instr.A))
		elems := make([]value.Specifier, n)
		for i := n - 1; i >= 0; i-- {
			v, err := vm.popPstack()
			if err != nil {
				return err
			}
			elems[i] = v
		}
		vm.pushPstack(value.MakeTuple(value.NewTupleFrom(elems)))

	default:
		return serr.Giveup("unhandled container opcode %v", instr.Op)
	}
	return nil
}

func shortOf(s value.Specifier) int64 {
	if s.Form == value.FormShort {
		return s.Short
	}
	return 0
}

func extractFrom(op bytecode.Op, c value.Specifier) (elem, rest value.Specifier, err error) {
	switch c.Form {
	case value.FormSet:
		s := c.Ptr.(*value.SetHeader)
		e, r := s.Arb()
		return e, value.MakeSet(r), nil
	case value.FormTuple:
		t := c.Ptr.(*value.TupleHeader)
		var e value.Specifier
		var r *value.TupleHeader
		switch op {
		case bytecode.OpFrome:
			e, r = t.Frome()
		default:
			e, r = t.Fromb()
		}
		return e, value.MakeTuple(r), nil
	default:
		return value.Omega, value.Omega, serr.Typef(c.Form.String(), "bad argument kind for builtin from")
	}
}

// powerset computes the set of all subsets of s. This is inherently
// exponential in #s, matching the source language's own `pow`.
func powerset(s *value.SetHeader) *value.SetHeader {
	var elems []value.Specifier
	s.Walk(func(e value.Specifier) { elems = append(elems, e) })
	out := value.NewSet()
	n := len(elems)
	for mask := 0; mask < (1 << uint(n)); mask++ {
		sub := value.NewSet()
		for i, e := range elems {
			if mask&(1<<uint(i)) != 0 {
				sub = sub.With(e)
			}
		}
		out = out.With(value.MakeSet(sub))
	}
	return out
}

// applyOf evaluates of/ofa/of1. of1 is the single-argument form: it
// additionally covers string indexing, which only ever takes one
// subscript; of and ofa stay map/tuple applications.
func applyOf(op bytecode.Op, c, key value.Specifier) (value.Specifier, error) {
	switch c.Form {
	case value.FormMap:
		m := c.Ptr.(*value.MapHeader)
		switch op {
		case bytecode.OpOfa:
			return m.Ofa(key), nil
		default:
			return m.Of(key), nil
		}
	case value.FormTuple:
		if key.Form != value.FormShort {
			return value.Omega, serr.Typef(key.Form.String(), "bad argument kind for builtin of")
		}
		return c.Ptr.(*value.TupleHeader).Get(int(key.Short) - 1), nil
	case value.FormString:
		if op != bytecode.OpOf1 {
			return value.Omega, serr.Typef(c.Form.String(), "bad argument kind for builtin of")
		}
		if key.Form != value.FormShort {
			return value.Omega, serr.Typef(key.Form.String(), "bad argument kind for builtin of")
		}
		s := c.Ptr.(*value.StringHeader).String()
		idx := int(key.Short)
		if idx < 1 || idx > len(s) {
			return value.Omega, nil
		}
		return value.Specifier{Form: value.FormString, Ptr: value.NewString(s[idx-1 : idx])}, nil
	default:
		return value.Omega, serr.Typef(c.Form.String(), "bad argument kind for builtin of")
	}
}

func assignSinisterOf(cur, key, val value.Specifier) (value.Specifier, error) {
	switch cur.Form {
	case value.FormMap:
		// Replace, never promote: `m(x) := y` drops whatever range x
		// had (single or multi) and stores y single-valued. Assigning
		// omega removes the key outright.
		m := cur.Ptr.(*value.MapHeader).Less(key)
		if !val.IsOmega() {
			m = m.With(key, val)
		}
		return value.MakeMap(m), nil
	case value.FormTuple:
		if key.Form != value.FormShort {
			return value.Omega, serr.Typef(key.Form.String(), "bad argument kind for builtin sof")
		}
		return value.MakeTuple(cur.Ptr.(*value.TupleHeader).Set(int(key.Short)-1, val)), nil
	case value.FormOmega:
		// `sof` on an undefined base creates a fresh map, the
		// conventional SETL behavior for first assignment to an
		// unset map-shaped variable.
		if val.IsOmega() {
			return value.MakeMap(value.NewMap()), nil
		}
		return value.MakeMap(value.NewMap().With(key, val)), nil
	default:
		return value.Omega, serr.Typef(cur.Form.String(), "bad argument kind for builtin sof")
	}
}
