package interp

import (
	"setl/internal/serr"
	"setl/internal/value"
)

func (vm *VM) Eq(l, r value.Specifier) (value.Specifier, error) {
	return vm.binOp("eq", l, r, func(l, r value.Specifier) (value.Specifier, error) {
		return value.MakeBool(value.Equal(l, r)), nil
	})
}

func (vm *VM) Ne(l, r value.Specifier) (value.Specifier, error) {
	res, err := vm.Eq(l, r)
	if err != nil {
		return res, err
	}
	return value.MakeBool(!res.Truthy()), nil
}

func (vm *VM) relOp(name string, l, r value.Specifier, want func(cmp int) bool) (value.Specifier, error) {
	return vm.binOp(name, l, r, func(l, r value.Specifier) (value.Specifier, error) {
		if isNumeric(l) && isNumeric(r) {
			c, err := compareNumeric(l, r)
			if err != nil {
				return value.Omega, err
			}
			return value.MakeBool(want(c)), nil
		}
		if l.Form == value.FormString && r.Form == value.FormString {
			a, b := l.Ptr.(*value.StringHeader).String(), r.Ptr.(*value.StringHeader).String()
			switch {
			case a < b:
				return value.MakeBool(want(-1)), nil
			case a > b:
				return value.MakeBool(want(1)), nil
			default:
				return value.MakeBool(want(0)), nil
			}
		}
		return value.Omega, serr.Typef(l.Form.String()+"/"+r.Form.String(), "bad argument kind for relational builtin")
	})
}

func (vm *VM) Lt(l, r value.Specifier) (value.Specifier, error) {
	return vm.relOp("lt", l, r, func(c int) bool { return c < 0 })
}

func (vm *VM) Le(l, r value.Specifier) (value.Specifier, error) {
	return vm.relOp("le", l, r, func(c int) bool { return c <= 0 })
}

// In implements the `in` operator: set/value-set/map-domain/tuple
// membership.
func (vm *VM) In(elem, container value.Specifier) (value.Specifier, error) {
	return vm.binOp("in", container, elem, func(container, elem value.Specifier) (value.Specifier, error) {
		switch container.Form {
		case value.FormSet:
			return value.MakeBool(container.Ptr.(*value.SetHeader).Has(elem)), nil
		case value.FormMap:
			return value.MakeBool(container.Ptr.(*value.MapHeader).HasKey(elem)), nil
		case value.FormTuple:
			found := false
			container.Ptr.(*value.TupleHeader).Walk(func(_ int, v value.Specifier) {
				if !found && value.Equal(v, elem) {
					found = true
				}
			})
			return value.MakeBool(found), nil
		case value.FormString:
			if elem.Form != value.FormString {
				return value.Omega, serr.Typef(elem.Form.String(), "bad argument kind for builtin in")
			}
			hay := container.Ptr.(*value.StringHeader).String()
			needle := elem.Ptr.(*value.StringHeader).String()
			return value.MakeBool(contains(hay, needle)), nil
		default:
			return value.Omega, serr.Typef(container.Form.String(), "bad argument kind for builtin in")
		}
	})
}

func (vm *VM) Notin(elem, container value.Specifier) (value.Specifier, error) {
	res, err := vm.In(elem, container)
	if err != nil {
		return res, err
	}
	return value.MakeBool(!res.Truthy()), nil
}

// Incs implements the `incs` (set/map inclusion, i.e. subset-of)
// operator.
func (vm *VM) Incs(sub, super value.Specifier) (value.Specifier, error) {
	return vm.binOp("incs", sub, super, func(sub, super value.Specifier) (value.Specifier, error) {
		if sub.Form != value.FormSet || super.Form != value.FormSet {
			return value.Omega, serr.Typef(sub.Form.String()+"/"+super.Form.String(), "bad argument kind for builtin incs")
		}
		ss, bs := sub.Ptr.(*value.SetHeader), super.Ptr.(*value.SetHeader)
		ok := true
		ss.Walk(func(e value.Specifier) {
			if ok && !bs.Has(e) {
				ok = false
			}
		})
		return value.MakeBool(ok), nil
	})
}

func contains(hay, needle string) bool {
	if len(needle) == 0 {
		return true
	}
	if len(needle) > len(hay) {
		return false
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		if hay[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
