package value

import "math/big"

// Bignum is the heap payload for FormLong. The canonical external
// representation is a cell-chained digit list,
// least-significant-first, with an is_negative flag; this
// implementation keeps that chain only as the decode/encode view
// (Digits/IsNegative, consumed by internal/ioformat's binstr codec)
// and holds the value itself as a math/big.Int for arithmetic.
type Bignum struct {
	Counted
	v big.Int
}

func NewBignum(v *big.Int) *Bignum {
	b := &Bignum{}
	b.v.Set(v)
	return b
}

func (b *Bignum) Int() *big.Int { return &b.v }

func (b *Bignum) IsNegative() bool { return b.v.Sign() < 0 }

// Digits returns the absolute value's base-2^32 digits,
// least-significant word first, matching the chain order.
func (b *Bignum) Digits() []uint32 {
	bytes := new(big.Int).Abs(&b.v).Bytes() // big-endian
	n := (len(bytes) + 3) / 4
	out := make([]uint32, n)
	for i := 0; i < len(bytes); i++ {
		// byte i from the big end contributes to digit (len-1-i)/4.
		pos := len(bytes) - 1 - i
		out[pos/4] |= uint32(bytes[i]) << (uint(pos%4) * 8)
	}
	// The top digit is nonzero by construction unless the value is
	// zero, which the short/long normalization never stores as long.
	return out
}

// NormalizeSpecifier converts a Bignum specifier to FormShort whenever
// the magnitude fits in an int64; every arithmetic op normalizes
// through here.
func NormalizeSpecifier(v *big.Int) Specifier {
	if v.IsInt64() {
		return MakeShort(v.Int64())
	}
	return Specifier{Form: FormLong, Ptr: NewBignum(v)}
}

// AsBigInt extracts the arithmetic value of any integer-form specifier
// (short or long) into a big.Int for uniform arithmetic.
func AsBigInt(s Specifier) (*big.Int, bool) {
	switch s.Form {
	case FormShort:
		return big.NewInt(s.Short), true
	case FormLong:
		bn, ok := s.Ptr.(*Bignum)
		if !ok {
			return nil, false
		}
		return new(big.Int).Set(bn.Int()), true
	default:
		return nil, false
	}
}
