package value

import (
	"math/big"
	"testing"
)

func str(s string) Specifier { return Specifier{Form: FormString, Ptr: NewString(s)} }

func TestSetWithIdempotent(t *testing.T) {
	s := NewSet().With(MakeShort(1)).With(MakeShort(2)).With(MakeShort(3))
	again := s.With(MakeShort(2))
	if !setEqual(s, again) {
		t.Fatalf("s with e with e != s with e")
	}
	if again.Card() != 3 {
		t.Fatalf("card = %d, want 3", again.Card())
	}
}

func TestSetCardinalityLaw(t *testing.T) {
	s := NewSet().With(MakeShort(1)).With(MakeShort(2))
	// Share the header so each insertion below copies instead of
	// mutating the common fixture.
	Retain(MakeSet(s))
	Retain(MakeSet(s))
	cases := []struct {
		elem Specifier
		want int
	}{
		{MakeShort(1), 2},
		{MakeShort(3), 3},
		{str("x"), 3},
	}
	for _, c := range cases {
		got := s.With(c.elem).Card()
		if got != c.want {
			t.Errorf("#(s with %v) = %d, want %d", c.elem, got, c.want)
		}
	}
}

func TestSetIterateReinsert(t *testing.T) {
	s := NewSet()
	for i := int64(0); i < 100; i++ {
		s = s.With(MakeShort(i * 7))
	}
	rebuilt := NewSet()
	s.Walk(func(e Specifier) { rebuilt = rebuilt.With(e) })
	if !setEqual(s, rebuilt) {
		t.Fatalf("iteration + reinsertion lost elements")
	}
}

func TestSetHashIsXorOfElements(t *testing.T) {
	s := NewSet()
	var want uint64
	for i := int64(0); i < 200; i++ {
		e := MakeShort(i)
		want ^= Hash(e)
		s = s.With(e)
	}
	if s.HashCode() != want {
		t.Fatalf("cached hash %x != xor of element hashes %x", s.HashCode(), want)
	}
	// Deleting must XOR back out.
	want ^= Hash(MakeShort(13))
	s = s.Less(MakeShort(13))
	if s.HashCode() != want {
		t.Fatalf("hash after delete %x, want %x", s.HashCode(), want)
	}
}

func TestSetGrowthKeepsMembership(t *testing.T) {
	s := NewSet()
	const n = 500 // forces several header expansions
	for i := int64(0); i < n; i++ {
		s = s.With(MakeShort(i))
	}
	if s.Card() != n {
		t.Fatalf("card = %d, want %d", s.Card(), n)
	}
	for i := int64(0); i < n; i++ {
		if !s.Has(MakeShort(i)) {
			t.Fatalf("lost element %d after growth", i)
		}
	}
	if s.Has(MakeShort(n)) {
		t.Fatalf("phantom element after growth")
	}
}

func TestSetCopyOnWriteLeavesSharedIntact(t *testing.T) {
	s := NewSet().With(MakeShort(1)).With(MakeShort(2))
	spec := MakeSet(s)
	Retain(spec)
	Retain(spec) // use count now 2: shared

	snapshot := NewSet()
	s.Walk(func(e Specifier) { snapshot = snapshot.With(e) })

	grown := s.With(MakeShort(3))
	if grown == s {
		t.Fatalf("shared set mutated in place")
	}
	if !setEqual(s, snapshot) {
		t.Fatalf("original changed by copy-on-write insert")
	}
	if !grown.Has(MakeShort(3)) || grown.Card() != 3 {
		t.Fatalf("copy missing inserted element")
	}
}

func TestSetArbDeterministic(t *testing.T) {
	build := func() *SetHeader {
		s := NewSet()
		for i := int64(0); i < 50; i++ {
			s = s.With(MakeShort(i * 3))
		}
		return s
	}
	a1, _ := build().Arb()
	a2, _ := build().Arb()
	if !Equal(a1, a2) {
		t.Fatalf("arb not deterministic for identical insertion history: %v vs %v", a1, a2)
	}
	e, rest := build().Arb()
	if rest.Has(e) {
		t.Fatalf("arb element still present in remainder")
	}
	if rest.Card() != 49 {
		t.Fatalf("remainder card = %d", rest.Card())
	}
}

func TestEmptySetArb(t *testing.T) {
	e, rest := NewSet().Arb()
	if !e.IsOmega() || rest.Card() != 0 {
		t.Fatalf("arb of empty set: got %v, card %d", e, rest.Card())
	}
}

func TestTupleTailCanonicalization(t *testing.T) {
	// t := [1,2,3]; t(3) := om; t(2) := om  ->  [1]
	tu := NewTupleFrom([]Specifier{MakeShort(1), MakeShort(2), MakeShort(3)})
	tu = tu.Set(2, Omega)
	tu = tu.Set(1, Omega)
	if tu.Len() != 1 {
		t.Fatalf("len = %d, want 1", tu.Len())
	}
	if !Equal(tu.Get(0), MakeShort(1)) {
		t.Fatalf("t(1) = %v", tu.Get(0))
	}
	if tu.Get(tu.Len() - 1).IsOmega() {
		t.Fatalf("trailing omega survived canonicalization")
	}
}

func TestTupleConcatEmptyIdentity(t *testing.T) {
	tu := NewTupleFrom([]Specifier{MakeShort(10), MakeShort(20), MakeShort(30)})
	empty := NewTuple()
	if !tupleEqual(tu.Concat(empty), tu) {
		t.Fatalf("t + [] != t")
	}
	if !tupleEqual(empty.Concat(tu), tu) {
		t.Fatalf("[] + t != t")
	}
}

func TestTupleSliceAssign(t *testing.T) {
	target := NewTupleFrom([]Specifier{MakeShort(1), MakeShort(2), MakeShort(3), MakeShort(4)})
	source := NewTupleFrom([]Specifier{str("a"), str("b")})
	out := SliceAssign(target, 1, 3, source)
	want := NewTupleFrom([]Specifier{MakeShort(1), str("a"), str("b"), MakeShort(4)})
	if !tupleEqual(out, want) {
		t.Fatalf("slice assign produced wrong tuple")
	}
}

func TestTupleSliceAssignStripsTail(t *testing.T) {
	target := NewTupleFrom([]Specifier{MakeShort(1), MakeShort(2), MakeShort(3)})
	out := SliceAssign(target, 1, 3, NewTuple())
	if out.Len() != 1 {
		t.Fatalf("len = %d, want 1", out.Len())
	}
}

func TestTupleGrowShrink(t *testing.T) {
	tu := NewTuple()
	const n = 300
	for i := 0; i < n; i++ {
		tu = tu.Set(i, MakeShort(int64(i)))
	}
	for i := 0; i < n; i++ {
		if !Equal(tu.Get(i), MakeShort(int64(i))) {
			t.Fatalf("position %d lost after growth", i)
		}
	}
	for i := n - 1; i >= 1; i-- {
		tu = tu.Set(i, Omega)
	}
	if tu.Len() != 1 || tu.height != 0 {
		t.Fatalf("len %d height %d after shrink, want 1/0", tu.Len(), tu.height)
	}
}

func TestTupleFromEnds(t *testing.T) {
	tu := NewTupleFrom([]Specifier{MakeShort(1), MakeShort(2), MakeShort(3)})
	first, rest := tu.Fromb()
	if !Equal(first, MakeShort(1)) || rest.Len() != 2 {
		t.Fatalf("fromb: %v / len %d", first, rest.Len())
	}
	last, rest2 := tu.Frome()
	if !Equal(last, MakeShort(3)) || rest2.Len() != 2 {
		t.Fatalf("frome: %v / len %d", last, rest2.Len())
	}
	e, empty := NewTuple().Fromb()
	if !e.IsOmega() || empty.Len() != 0 {
		t.Fatalf("fromb of empty tuple")
	}
}

func TestMapMultiValuePromotion(t *testing.T) {
	m := NewMap().With(MakeShort(1), str("a"))
	if m.Of(MakeShort(1)).IsOmega() {
		t.Fatalf("single-valued apply failed")
	}
	m = m.With(MakeShort(1), str("b"))
	// Single-apply to a multi-valued cell is undefined: omega.
	if !m.Of(MakeShort(1)).IsOmega() {
		t.Fatalf("single apply to multi-map should be omega")
	}
	vs := m.Ofa(MakeShort(1))
	if vs.Form != FormSet {
		t.Fatalf("m{x} is %v, want set", vs.Form)
	}
	set := vs.Ptr.(*SetHeader)
	if set.Card() != 2 || !set.Has(str("a")) || !set.Has(str("b")) {
		t.Fatalf("value set wrong: card %d", set.Card())
	}
}

func TestMapOfaAlwaysSet(t *testing.T) {
	m := NewMap().With(MakeShort(1), str("a"))
	for _, key := range []Specifier{MakeShort(1), MakeShort(99)} {
		if m.Ofa(key).Form != FormSet {
			t.Fatalf("m{%v} not a set", key)
		}
	}
	if m.Ofa(MakeShort(99)).Ptr.(*SetHeader).Card() != 0 {
		t.Fatalf("m{absent} not empty")
	}
}

func TestMapLessfDemotion(t *testing.T) {
	m := NewMap().With(MakeShort(1), str("a")).With(MakeShort(1), str("b"))
	m = m.Lessf(MakeShort(1), str("b"))
	if !Equal(m.Of(MakeShort(1)), str("a")) {
		t.Fatalf("demotion to single-valued failed: %v", m.Of(MakeShort(1)))
	}
	m = m.Lessf(MakeShort(1), str("a"))
	if m.HasKey(MakeShort(1)) {
		t.Fatalf("removing last pair should drop the key")
	}
}

func TestMapDomainRange(t *testing.T) {
	m := NewMap().
		With(MakeShort(1), str("a")).
		With(MakeShort(2), str("b")).
		With(MakeShort(2), str("c"))
	d := m.Domain()
	if d.Card() != 2 || !d.Has(MakeShort(1)) || !d.Has(MakeShort(2)) {
		t.Fatalf("domain wrong")
	}
	r := m.Range()
	if r.Card() != 3 || !r.Has(str("c")) {
		t.Fatalf("range should flatten value sets, card %d", r.Card())
	}
}

func TestMapEqualityViaHash(t *testing.T) {
	a := NewMap().With(MakeShort(1), str("x")).With(MakeShort(2), str("y"))
	b := NewMap().With(MakeShort(2), str("y")).With(MakeShort(1), str("x"))
	if a.HashCode() != b.HashCode() {
		t.Fatalf("insertion order changed map hash")
	}
	if !mapEqual(a, b) {
		t.Fatalf("maps with same pairs unequal")
	}
}

func TestBignumNormalization(t *testing.T) {
	small := big.NewInt(42)
	if s := NormalizeSpecifier(small); s.Form != FormShort || s.Short != 42 {
		t.Fatalf("small value not normalized to short")
	}
	huge := new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	s := NormalizeSpecifier(huge)
	if s.Form != FormLong {
		t.Fatalf("huge value should stay long")
	}
	back, ok := AsBigInt(s)
	if !ok || back.Cmp(huge) != 0 {
		t.Fatalf("long round trip failed")
	}
}

func TestBignumDigitsHeadNonzero(t *testing.T) {
	cases := []*big.Int{
		new(big.Int).Exp(big.NewInt(2), big.NewInt(100), nil),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(22), nil),
		new(big.Int).Neg(new(big.Int).Exp(big.NewInt(7), big.NewInt(40), nil)),
	}
	for _, v := range cases {
		bn := NewBignum(v)
		digits := bn.Digits()
		if len(digits) == 0 || digits[len(digits)-1] == 0 {
			t.Errorf("head digit zero for %s", v)
		}
		// Reassemble and compare.
		acc := new(big.Int)
		for i := len(digits) - 1; i >= 0; i-- {
			acc.Lsh(acc, 32)
			acc.Add(acc, big.NewInt(int64(digits[i])))
		}
		want := new(big.Int).Abs(v)
		if acc.Cmp(want) != 0 {
			t.Errorf("digit chain of %s reassembles to %s", v, acc)
		}
	}
}

func TestCrossFormIntegerEquality(t *testing.T) {
	big42 := Specifier{Form: FormLong, Ptr: NewBignum(big.NewInt(42))}
	if !Equal(big42, MakeShort(42)) {
		t.Fatalf("long 42 != short 42")
	}
}

func TestStringCellsAndHash(t *testing.T) {
	h := NewString("hello, world, this string spans more than one chain cell for sure")
	if h.Len() != len(h.String()) {
		t.Fatalf("length mismatch")
	}
	h1 := NewString("abc").Concat(NewString("def"))
	if h1.String() != "abcdef" {
		t.Fatalf("concat = %q", h1.String())
	}
	if NewString("abcdef").Hash() != h1.Hash() {
		t.Fatalf("hash depends on cell layout, not content")
	}
}

func TestIteratorSetVisitsOnce(t *testing.T) {
	s := NewSet()
	for i := int64(0); i < 40; i++ {
		s = s.With(MakeShort(i))
	}
	it := NewSetIterator(s)
	seen := map[int64]bool{}
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		if seen[v.Short] {
			t.Fatalf("element %d yielded twice", v.Short)
		}
		seen[v.Short] = true
	}
	if len(seen) != 40 {
		t.Fatalf("visited %d of 40", len(seen))
	}
}

func TestIteratorMapExpandsMultiValues(t *testing.T) {
	m := NewMap().With(MakeShort(1), str("a")).With(MakeShort(1), str("b")).With(MakeShort(2), str("c"))
	it := NewMapIterator(m)
	pairs := 0
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		if v.Form != FormTuple || v.Ptr.(*TupleHeader).Len() != 2 {
			t.Fatalf("map iterator yielded non-pair %v", v)
		}
		pairs++
	}
	if pairs != 3 {
		t.Fatalf("yielded %d pairs, want 3", pairs)
	}
}

func TestIteratorTupleSkipsOmega(t *testing.T) {
	tu := NewTuple().Set(0, MakeShort(1)).Set(4, MakeShort(5))
	it := NewTupleIterator(tu)
	var got []int64
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, v.Short)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 5 {
		t.Fatalf("tuple iteration = %v", got)
	}
}

func TestIteratorShortRange(t *testing.T) {
	it := NewShortRangeIterator(4)
	var sum int64
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		sum += v.Short
	}
	if sum != 10 {
		t.Fatalf("1..4 sums to %d", sum)
	}
}

func TestIteratorString(t *testing.T) {
	it := NewStringIterator("ab")
	v1, _ := it.Next()
	v2, _ := it.Next()
	_, ok := it.Next()
	if ok || v1.Ptr.(*StringHeader).String() != "a" || v2.Ptr.(*StringHeader).String() != "b" {
		t.Fatalf("string iteration wrong")
	}
}
