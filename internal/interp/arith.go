package interp

import (
	"math"
	"math/big"

	"setl/internal/serr"
	"setl/internal/value"
)

// asFloat promotes any numeric specifier to float64 for mixed
// int/real arithmetic.
func asFloat(s value.Specifier) (float64, bool) {
	switch s.Form {
	case value.FormShort:
		return float64(s.Short), true
	case value.FormLong:
		bi, _ := value.AsBigInt(s)
		f := new(big.Float).SetInt(bi)
		v, _ := f.Float64()
		return v, true
	case value.FormReal:
		return s.Ptr.(*value.RealCell).V, true
	default:
		return 0, false
	}
}

func isNumeric(s value.Specifier) bool {
	return s.Form == value.FormShort || s.Form == value.FormLong || s.Form == value.FormReal
}

// binOp dispatches a binary operator through the user-method protocol
// first, falling back to fn for the built-in
// form-case logic when neither operand declines nor accepts.
func (vm *VM) binOp(name string, left, right value.Specifier, fn func(l, r value.Specifier) (value.Specifier, error)) (value.Specifier, error) {
	if res, handled, err := vm.dispatchUser(name, left, right); handled || err != nil {
		return res, err
	}
	return fn(left, right)
}

func (vm *VM) Add(l, r value.Specifier) (value.Specifier, error) {
	return vm.binOp("add", l, r, func(l, r value.Specifier) (value.Specifier, error) {
		if l.Form == value.FormString && r.Form == value.FormString {
			return value.Specifier{Form: value.FormString, Ptr: l.Ptr.(*value.StringHeader).Concat(r.Ptr.(*value.StringHeader))}, nil
		}
		if l.Form == value.FormSet && r.Form == value.FormSet {
			return value.MakeSet(l.Ptr.(*value.SetHeader).Union(r.Ptr.(*value.SetHeader))), nil
		}
		if l.Form == value.FormTuple && r.Form == value.FormTuple {
			return value.MakeTuple(l.Ptr.(*value.TupleHeader).Concat(r.Ptr.(*value.TupleHeader))), nil
		}
		return numeric2(l, r, func(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) }, func(a, b float64) float64 { return a + b })
	})
}

func (vm *VM) Sub(l, r value.Specifier) (value.Specifier, error) {
	return vm.binOp("sub", l, r, func(l, r value.Specifier) (value.Specifier, error) {
		if l.Form == value.FormSet && r.Form == value.FormSet {
			return value.MakeSet(l.Ptr.(*value.SetHeader).Diff(r.Ptr.(*value.SetHeader))), nil
		}
		return numeric2(l, r, func(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) }, func(a, b float64) float64 { return a - b })
	})
}

func (vm *VM) Mult(l, r value.Specifier) (value.Specifier, error) {
	return vm.binOp("mult", l, r, func(l, r value.Specifier) (value.Specifier, error) {
		if l.Form == value.FormSet && r.Form == value.FormSet {
			return value.MakeSet(l.Ptr.(*value.SetHeader).Intersect(r.Ptr.(*value.SetHeader))), nil
		}
		return numeric2(l, r, func(a, b *big.Int) *big.Int { return new(big.Int).Mul(a, b) }, func(a, b float64) float64 { return a * b })
	})
}

func (vm *VM) Div(l, r value.Specifier) (value.Specifier, error) {
	return vm.binOp("div", l, r, func(l, r value.Specifier) (value.Specifier, error) {
		if l.Form == value.FormReal || r.Form == value.FormReal {
			lf, _ := asFloat(l)
			rf, _ := asFloat(r)
			if rf == 0 {
				return value.Omega, serr.Typef("0", "division by zero")
			}
			return value.MakeReal(lf / rf), nil
		}
		li, lok := value.AsBigInt(l)
		ri, rok := value.AsBigInt(r)
		if !lok || !rok {
			return value.Omega, serr.Typef(l.Form.String()+"/"+r.Form.String(), "bad argument kind for builtin div")
		}
		if ri.Sign() == 0 {
			return value.Omega, serr.Typef("0", "division by zero")
		}
		q := new(big.Int)
		m := new(big.Int)
		q.QuoRem(li, ri, m)
		if m.Sign() != 0 && (m.Sign() < 0) != (ri.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
		}
		return value.NormalizeSpecifier(q), nil
	})
}

func (vm *VM) Mod(l, r value.Specifier) (value.Specifier, error) {
	return vm.binOp("mod", l, r, func(l, r value.Specifier) (value.Specifier, error) {
		li, lok := value.AsBigInt(l)
		ri, rok := value.AsBigInt(r)
		if !lok || !rok {
			return value.Omega, serr.Typef(l.Form.String()+"/"+r.Form.String(), "bad argument kind for builtin mod")
		}
		if ri.Sign() == 0 {
			return value.Omega, serr.Typef("0", "division by zero")
		}
		m := new(big.Int).Mod(li, ri)
		if m.Sign() != 0 && ri.Sign() < 0 {
			m.Add(m, ri)
		}
		return value.NormalizeSpecifier(m), nil
	})
}

func (vm *VM) Exp(l, r value.Specifier) (value.Specifier, error) {
	return vm.binOp("exp", l, r, func(l, r value.Specifier) (value.Specifier, error) {
		if l.Form == value.FormReal || r.Form == value.FormReal {
			lf, _ := asFloat(l)
			rf, _ := asFloat(r)
			return value.MakeReal(math.Pow(lf, rf)), nil
		}
		li, _ := value.AsBigInt(l)
		ri, rok := value.AsBigInt(r)
		if !rok || ri.Sign() < 0 {
			lf, _ := asFloat(l)
			rf, _ := asFloat(r)
			return value.MakeReal(math.Pow(lf, rf)), nil
		}
		return value.NormalizeSpecifier(new(big.Int).Exp(li, ri, nil)), nil
	})
}

func (vm *VM) Min(l, r value.Specifier) (value.Specifier, error) {
	return vm.binOp("min", l, r, func(l, r value.Specifier) (value.Specifier, error) {
		c, err := compareNumeric(l, r)
		if err != nil {
			return value.Omega, err
		}
		if c <= 0 {
			return l, nil
		}
		return r, nil
	})
}

func (vm *VM) Max(l, r value.Specifier) (value.Specifier, error) {
	return vm.binOp("max", l, r, func(l, r value.Specifier) (value.Specifier, error) {
		c, err := compareNumeric(l, r)
		if err != nil {
			return value.Omega, err
		}
		if c >= 0 {
			return l, nil
		}
		return r, nil
	})
}

func (vm *VM) Uminus(operand value.Specifier) (value.Specifier, error) {
	if res, handled, err := vm.dispatchUnary("uminus", operand); handled || err != nil {
		return res, err
	}
	switch operand.Form {
	case value.FormReal:
		return value.MakeReal(-operand.Ptr.(*value.RealCell).V), nil
	case value.FormShort, value.FormLong:
		bi, _ := value.AsBigInt(operand)
		return value.NormalizeSpecifier(new(big.Int).Neg(bi)), nil
	default:
		return value.Omega, serr.Typef(operand.Form.String(), "bad argument kind for builtin uminus")
	}
}

func numeric2(l, r value.Specifier, intOp func(a, b *big.Int) *big.Int, floatOp func(a, b float64) float64) (value.Specifier, error) {
	if l.Form == value.FormReal || r.Form == value.FormReal {
		lf, lok := asFloat(l)
		rf, rok := asFloat(r)
		if !lok || !rok {
			return value.Omega, serr.Typef(l.Form.String()+"/"+r.Form.String(), "bad argument kind for builtin")
		}
		return value.MakeReal(floatOp(lf, rf)), nil
	}
	li, lok := value.AsBigInt(l)
	ri, rok := value.AsBigInt(r)
	if !lok || !rok {
		return value.Omega, serr.Typef(l.Form.String()+"/"+r.Form.String(), "bad argument kind for builtin")
	}
	return value.NormalizeSpecifier(intOp(li, ri)), nil
}

// compareNumeric orders two numeric specifiers; used by min/max and
// the relational opcodes.
func compareNumeric(l, r value.Specifier) (int, error) {
	if l.Form == value.FormReal || r.Form == value.FormReal {
		lf, lok := asFloat(l)
		rf, rok := asFloat(r)
		if !lok || !rok {
			return 0, serr.Typef(l.Form.String()+"/"+r.Form.String(), "bad argument kind for relational builtin")
		}
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	li, lok := value.AsBigInt(l)
	ri, rok := value.AsBigInt(r)
	if !lok || !rok {
		return 0, serr.Typef(l.Form.String()+"/"+r.Form.String(), "bad argument kind for relational builtin")
	}
	return li.Cmp(ri), nil
}
