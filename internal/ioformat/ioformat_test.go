package ioformat

import (
	"math/big"
	"testing"

	"setl/internal/value"
)

func mkStr(s string) value.Specifier {
	return value.Specifier{Form: value.FormString, Ptr: value.NewString(s)}
}

func TestStrUnstrRoundTrip(t *testing.T) {
	cases := []value.Specifier{
		value.Omega,
		value.True,
		value.False,
		value.MakeShort(0),
		value.MakeShort(-17),
		value.NormalizeSpecifier(new(big.Int).Exp(big.NewInt(10), big.NewInt(22), nil)),
		value.MakeReal(1.5),
		value.MakeReal(-2.25e10),
		mkStr("plain"),
		mkStr("esc \\ \" \n \t done"),
		value.MakeSet(value.NewSet().With(value.MakeShort(3)).With(value.MakeShort(1)).With(value.MakeShort(2))),
		value.MakeTuple(value.NewTupleFrom([]value.Specifier{value.MakeShort(1), mkStr("two"), value.MakeReal(3.0)})),
		value.MakeSet(value.NewSet().
			With(value.MakeTuple(value.NewTupleFrom([]value.Specifier{value.MakeShort(1), mkStr("a")}))).
			With(value.MakeTuple(value.NewTupleFrom([]value.Specifier{value.MakeShort(2), mkStr("b")})))),
	}
	for _, x := range cases {
		back, err := Unstr(Str(x))
		if err != nil {
			t.Errorf("unstr(%q): %v", Str(x), err)
			continue
		}
		if !value.Equal(back, x) {
			t.Errorf("unstr(str(%s)) = %s", Str(x), Str(back))
		}
	}
}

func TestScenarioUnstrStrSet(t *testing.T) {
	// print(unstr(str({3,1,2}))) is {1, 2, 3} in the language sense.
	src := value.MakeSet(value.NewSet().With(value.MakeShort(3)).With(value.MakeShort(1)).With(value.MakeShort(2)))
	back, err := Unstr(Str(src))
	if err != nil {
		t.Fatal(err)
	}
	if !value.Equal(back, src) {
		t.Fatalf("round trip lost set equality")
	}
}

func TestReaderLiterals(t *testing.T) {
	cases := []struct {
		in   string
		want value.Specifier
	}{
		{"om", value.Omega},
		{"OM", value.Omega},
		{"true", value.True},
		{"False", value.False},
		{"ident", mkStr("ident")},
		{"42", value.MakeShort(42)},
		{"-42", value.MakeShort(-42)},
		{"+7", value.MakeShort(7)},
		{"1_000_000", value.MakeShort(1000000)},
		{"2#101#", value.MakeShort(5)},
		{"16#ff#", value.MakeShort(255)},
		{"36#zz#", value.MakeShort(35*36 + 35)},
		{"1.5", value.MakeReal(1.5)},
		{"-0.25", value.MakeReal(-0.25)},
		{"2.0e3", value.MakeReal(2000)},
		{"1.0e-2", value.MakeReal(0.01)},
		{`"hi"`, mkStr("hi")},
		{`"a\tb"`, mkStr("a\tb")},
		{`"\x41"`, mkStr("A")},
		{`"q\"q"`, mkStr(`q"q`)},
	}
	for _, c := range cases {
		got, err := Unstr(c.in)
		if err != nil {
			t.Errorf("unstr(%q): %v", c.in, err)
			continue
		}
		if !value.Equal(got, c.want) {
			t.Errorf("unstr(%q) = %s, want %s", c.in, Str(got), Str(c.want))
		}
	}
}

func TestReaderBignumOverflow(t *testing.T) {
	got, err := Unstr("100000000000000000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	if got.Form != value.FormLong {
		t.Fatalf("overflowing literal should be long, got %v", got.Form)
	}
	want, _ := new(big.Int).SetString("100000000000000000000000000000", 10)
	have, _ := value.AsBigInt(got)
	if have.Cmp(want) != 0 {
		t.Fatalf("bignum literal = %s", have)
	}
}

func TestReaderContainers(t *testing.T) {
	got, err := Unstr("{1, 2, 2, 3}")
	if err != nil {
		t.Fatal(err)
	}
	if got.Ptr.(*value.SetHeader).Card() != 3 {
		t.Fatalf("duplicates not collapsed")
	}

	got, err = Unstr("[1, om, 3]")
	if err != nil {
		t.Fatal(err)
	}
	tu := got.Ptr.(*value.TupleHeader)
	if tu.Len() != 3 || !tu.Get(1).IsOmega() {
		t.Fatalf("interior omega lost: %s", Str(got))
	}

	got, err = Unstr("[1, 2, om, om]")
	if err != nil {
		t.Fatal(err)
	}
	if got.Ptr.(*value.TupleHeader).Len() != 2 {
		t.Fatalf("trailing oms not stripped: %s", Str(got))
	}

	got, err = Unstr("{[1, \"a\"], {2, 3}}")
	if err != nil {
		t.Fatal(err)
	}
	if got.Ptr.(*value.SetHeader).Card() != 2 {
		t.Fatalf("nested containers misread")
	}
}

func TestReaderCommaRules(t *testing.T) {
	if _, err := Unstr("{1,, 2}"); err == nil {
		t.Fatalf("double comma accepted")
	}
	if _, err := Unstr("{, 1}"); err == nil {
		t.Fatalf("leading comma accepted")
	}
	if got, err := Unstr("{1 2}"); err != nil || got.Ptr.(*value.SetHeader).Card() != 2 {
		t.Fatalf("comma should be optional: %v", err)
	}
}

func TestReaderWhitespaceIncludesBackspace(t *testing.T) {
	got, err := Unstr("\b\t 42")
	if err != nil {
		t.Fatal(err)
	}
	if got.Short != 42 {
		t.Fatalf("backspace not skipped as whitespace")
	}
}

func TestReaderErrors(t *testing.T) {
	bad := []string{
		`"unterminated`,
		"16#ff",   // based literal not closed
		"40#1#",   // base out of range
		"#",       // no digits
		`"\xZZ"`,  // bad hex escape
	}
	for _, in := range bad {
		if _, err := Unstr(in); err == nil {
			t.Errorf("unstr(%q) accepted", in)
		}
	}
}

func TestReaderEOFFlag(t *testing.T) {
	rd := FromString(" 1 ")
	v, err := rd.ReadValue()
	if err != nil || v.Short != 1 || rd.LastEOF {
		t.Fatalf("first read wrong: %v %v eof=%v", v, err, rd.LastEOF)
	}
	v, err = rd.ReadValue()
	if err != nil || !v.IsOmega() || !rd.LastEOF {
		t.Fatalf("read at end should be omega with eof set")
	}
}

func TestReaderStreamsMultipleValues(t *testing.T) {
	rd := FromString(`1 "two" {3}`)
	var got []value.Specifier
	for {
		v, err := rd.ReadValue()
		if err != nil {
			t.Fatal(err)
		}
		if rd.LastEOF {
			break
		}
		got = append(got, v)
	}
	if len(got) != 3 {
		t.Fatalf("read %d values", len(got))
	}
}

func TestBinstrRoundTripPortable(t *testing.T) {
	c := NewCodec(101, 1234567)
	cases := []value.Specifier{
		value.Omega,
		value.MakeShort(77),
		value.MakeShort(-9000000000),
		value.NormalizeSpecifier(new(big.Int).Exp(big.NewInt(2), big.NewInt(200), nil)),
		value.NormalizeSpecifier(new(big.Int).Neg(new(big.Int).Exp(big.NewInt(2), big.NewInt(100), nil))),
		value.MakeReal(3.25),
		mkStr(""),
		mkStr("binary\x00payload"),
		value.MakeSet(value.NewSet().With(value.MakeShort(1)).With(mkStr("x"))),
		value.MakeTuple(value.NewTupleFrom([]value.Specifier{value.MakeShort(1), value.MakeShort(2)})),
	}
	for _, x := range cases {
		data, err := c.Encode(x)
		if err != nil {
			t.Errorf("encode %s: %v", Str(x), err)
			continue
		}
		back, err := c.Decode(data)
		if err != nil {
			t.Errorf("decode %s: %v", Str(x), err)
			continue
		}
		if !value.Equal(back, x) {
			t.Errorf("unbinstr(binstr(%s)) = %s", Str(x), Str(back))
		}
	}
}

func TestBinstrMapAsSetOfPairs(t *testing.T) {
	c := NewCodec(1, 1)
	m := value.NewMap().With(value.MakeShort(1), mkStr("a")).With(value.MakeShort(1), mkStr("b"))
	data, err := c.Encode(value.MakeMap(m))
	if err != nil {
		t.Fatal(err)
	}
	back, err := c.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.Form != value.FormMap {
		t.Fatalf("map decoded as %v", back.Form)
	}
	vs := back.Ptr.(*value.MapHeader).Ofa(value.MakeShort(1)).Ptr.(*value.SetHeader)
	if vs.Card() != 2 {
		t.Fatalf("multi-valued cell lost in transit")
	}
}

func TestBinstrTupleSkipsOmegaRuns(t *testing.T) {
	c := NewCodec(1, 1)
	tu := value.NewTuple().Set(0, value.MakeShort(1)).Set(9, value.MakeShort(10))
	data, err := c.Encode(value.MakeTuple(tu))
	if err != nil {
		t.Fatal(err)
	}
	back, err := c.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	bt := back.Ptr.(*value.TupleHeader)
	if bt.Len() != 10 || !value.Equal(bt.Get(9), value.MakeShort(10)) || !bt.Get(5).IsOmega() {
		t.Fatalf("skip-coded tuple decoded wrong: %s", Str(back))
	}
}

func TestBinstrNonPortableSameLifetime(t *testing.T) {
	c := NewCodec(7, 99)
	proc := value.MakeProc(&value.Procedure{Unit: "u"})
	data, err := c.Encode(proc)
	if err != nil {
		t.Fatal(err)
	}
	back, err := c.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.Ptr != proc.Ptr {
		t.Fatalf("same-lifetime decode should recover the identical payload")
	}
}

func TestBinstrNonPortableCrossLifetime(t *testing.T) {
	old := NewCodec(7, 99)
	proc := value.MakeProc(&value.Procedure{Unit: "u"})
	data, err := old.Encode(proc)
	if err != nil {
		t.Fatal(err)
	}
	fresh := NewCodec(7, 100) // different run
	if _, err := fresh.Decode(data); err == nil {
		t.Fatalf("cross-lifetime decode of a proc should fail")
	}
}

func TestBinstrPredefinedAtomsAlwaysAccepted(t *testing.T) {
	old := NewCodec(7, 99)
	for _, a := range []value.Specifier{value.True, value.False} {
		data, err := old.Encode(a)
		if err != nil {
			t.Fatal(err)
		}
		fresh := NewCodec(8, 1000)
		back, err := fresh.Decode(data)
		if err != nil {
			t.Fatalf("predefined atom rejected: %v", err)
		}
		if !value.Equal(back, a) {
			t.Fatalf("predefined atom decoded as %s", Str(back))
		}
	}
	// A plain atom is rejected across lifetimes.
	data, _ := old.Encode(value.MakeAtom(40))
	fresh := NewCodec(8, 1000)
	if _, err := fresh.Decode(data); err == nil {
		t.Fatalf("ordinary atom accepted across lifetimes")
	}
}

func TestBinstrObject(t *testing.T) {
	c := NewCodec(1, 1)
	c.ClassVars = func(class string) (int, error) { return 2, nil }
	c.MakeObject = func(class string, vars []value.Specifier) (value.Specifier, error) {
		obj := value.NewObject(class, len(vars))
		for i, v := range vars {
			obj = obj.SetVar(i, v)
		}
		return value.MakeObject(obj), nil
	}
	src := value.NewObject("point", 2).SetVar(0, value.MakeShort(3)).SetVar(1, value.MakeShort(4))
	data, err := c.Encode(value.MakeObject(src))
	if err != nil {
		t.Fatal(err)
	}
	back, err := c.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	obj := back.Ptr.(*value.ObjectHeader)
	if obj.Class != "point" || !value.Equal(obj.GetVar(0), value.MakeShort(3)) || !value.Equal(obj.GetVar(1), value.MakeShort(4)) {
		t.Fatalf("object round trip wrong")
	}
}

func TestPrintableFormsOfNonPortables(t *testing.T) {
	p := value.MakeProc(&value.Procedure{Unit: "lib"})
	if Str(p) != "<procedure lib>" {
		t.Fatalf("proc prints as %s", Str(p))
	}
	if Str(value.MakeAtom(9)) != "#9" {
		t.Fatalf("atom prints as %s", Str(value.MakeAtom(9)))
	}
}
