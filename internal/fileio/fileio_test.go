package fileio

import (
	"os"
	"path/filepath"
	"testing"

	"setl/internal/interp"
	"setl/internal/ioformat"
	"setl/internal/symtab"
	"setl/internal/value"
)

func newTestTable() *Table {
	return NewTable(symtab.NewAtomTable(), 321, 987654)
}

func TestTextRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	tb := newTestTable()

	h, err := tb.Open(path, "text-out")
	if err != nil {
		t.Fatal(err)
	}
	rec, err := tb.Lookup(h)
	if err != nil {
		t.Fatal(err)
	}
	if err := tb.WriteText(rec, "line one\nline two\n"); err != nil {
		t.Fatal(err)
	}
	if err := tb.Close(h); err != nil {
		t.Fatal(err)
	}

	h, err = tb.Open(path, "text-in")
	if err != nil {
		t.Fatal(err)
	}
	rec, _ = tb.Lookup(h)
	l1, ok1, err := tb.GetLine(rec)
	if err != nil || !ok1 || l1 != "line one" {
		t.Fatalf("first line = %q ok=%v err=%v", l1, ok1, err)
	}
	l2, ok2, _ := tb.GetLine(rec)
	if !ok2 || l2 != "line two" {
		t.Fatalf("second line = %q", l2)
	}
	_, ok3, _ := tb.GetLine(rec)
	if ok3 || !tb.LastEOF {
		t.Fatalf("EOF not reported through the eof flag")
	}
	tb.Close(h)
}

func TestBadFileHandle(t *testing.T) {
	tb := newTestTable()
	if _, err := tb.Lookup(symtab.AtomID(777)); err == nil {
		t.Fatalf("unknown handle accepted")
	}
	if err := tb.Close(symtab.AtomID(777)); err == nil {
		t.Fatalf("close of unknown handle accepted")
	}
}

func TestBinaryHeaderSameRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	tb := newTestTable()

	h, err := tb.Open(path, "binary-out")
	if err != nil {
		t.Fatal(err)
	}
	tb.Close(h)

	// Same pid and timestamp: same-run.
	h, err = tb.Open(path, "binary-in")
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := tb.Lookup(h)
	if !rec.SameRun {
		t.Fatalf("same-run flag not set for own stream")
	}
	tb.Close(h)

	// A different process: not same-run, but still readable.
	other := NewTable(symtab.NewAtomTable(), 9999, 111)
	h2, err := other.Open(path, "binary-in")
	if err != nil {
		t.Fatal(err)
	}
	rec2, _ := other.Lookup(h2)
	if rec2.SameRun {
		t.Fatalf("foreign stream flagged same-run")
	}
	other.Close(h2)
}

func TestBinaryMagicRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "junk.bin")
	if err := os.WriteFile(path, []byte("not a binary stream"), 0o644); err != nil {
		t.Fatal(err)
	}
	tb := newTestTable()
	if _, err := tb.Open(path, "binary-in"); err == nil {
		t.Fatalf("stream without setl2bin magic accepted")
	}
}

func TestFramedRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vals.bin")
	tb := newTestTable()
	codec := ioformat.NewCodec(tb.PID, tb.Timestamp)

	h, err := tb.Open(path, "binary-out")
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := tb.Lookup(h)
	vals := []value.Specifier{
		value.MakeShort(7),
		value.MakeSet(value.NewSet().With(value.MakeShort(1))),
	}
	for _, v := range vals {
		data, err := codec.Encode(v)
		if err != nil {
			t.Fatal(err)
		}
		if err := tb.PutRecord(rec, data); err != nil {
			t.Fatal(err)
		}
	}
	tb.Close(h)

	h, err = tb.Open(path, "binary-in")
	if err != nil {
		t.Fatal(err)
	}
	rec, _ = tb.Lookup(h)
	for _, want := range vals {
		data, ok, err := tb.GetRecord(rec)
		if err != nil || !ok {
			t.Fatalf("record read: ok=%v err=%v", ok, err)
		}
		got, err := codec.Decode(data)
		if err != nil {
			t.Fatal(err)
		}
		if !value.Equal(got, want) {
			t.Fatalf("record = %s, want %s", ioformat.Str(got), ioformat.Str(want))
		}
	}
	_, ok, err := tb.GetRecord(rec)
	if err != nil || ok {
		t.Fatalf("EOF on framed stream should be ok=false, got ok=%v err=%v", ok, err)
	}
	tb.Close(h)
}

func TestRandomAccessOneBased(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rand.dat")
	tb := newTestTable()

	h, err := tb.Open(path, "random")
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := tb.Lookup(h)
	if err := tb.PutSpan(rec, 1, "abcdef"); err != nil {
		t.Fatal(err)
	}
	if err := tb.PutSpan(rec, 3, "XY"); err != nil {
		t.Fatal(err)
	}
	got, err := tb.GetSpan(rec, 1, 6)
	if err != nil {
		t.Fatal(err)
	}
	if got != "abXYef" {
		t.Fatalf("gets = %q", got)
	}
	n, err := tb.Size(rec)
	if err != nil || n != 6 {
		t.Fatalf("fsize = %d err=%v", n, err)
	}
	if err := tb.PutSpan(rec, 0, "z"); err == nil {
		t.Fatalf("position 0 accepted; positions are 1-based")
	}
	tb.Close(h)
}

func TestSafeModeRestrictsNames(t *testing.T) {
	dir := t.TempDir()
	tb := newTestTable()
	tb.Safe = true

	if _, err := tb.Open(filepath.Join(dir, "notes.txt"), "text-out"); err == nil {
		t.Fatalf("arbitrary name accepted in safe mode")
	}
	if _, err := tb.Open("tcp:localhost:1", "text-in"); err == nil {
		t.Fatalf("socket accepted in safe mode")
	}
	h, err := tb.Open(filepath.Join(dir, "File3"), "text-out")
	if err != nil {
		t.Fatalf("File3 rejected in safe mode: %v", err)
	}
	tb.Close(h)
}

func TestSafeNames(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"File1", true},
		{"File5", true},
		{"/tmp/File2", true},
		{"File6", false},
		{"File0", false},
		{"file1", false},
		{"File12", false},
		{"data", false},
	}
	for _, c := range cases {
		if got := safeNameOK(c.name); got != c.ok {
			t.Errorf("safeNameOK(%q) = %v", c.name, got)
		}
	}
}

func TestByteInMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bytes")
	os.WriteFile(path, []byte("xy"), 0o644)
	tb := newTestTable()
	h, err := tb.Open(path, "byte-in")
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := tb.Lookup(h)
	b1, ok, _ := tb.GetByte(rec)
	b2, ok2, _ := tb.GetByte(rec)
	_, ok3, _ := tb.GetByte(rec)
	if !ok || !ok2 || ok3 || b1 != 'x' || b2 != 'y' {
		t.Fatalf("byte reads: %c %c", b1, b2)
	}
	if !tb.LastEOF {
		t.Fatalf("eof flag not set after final byte read")
	}
	tb.Close(h)
}

func TestBuiltinsPrintAndStr(t *testing.T) {
	vm := interp.New()
	tb := newTestTable()
	codec := ioformat.NewCodec(tb.PID, tb.Timestamp)
	Bind(vm, tb, codec, nil)

	call := func(name string, args ...value.Specifier) (value.Specifier, error) {
		fn := vm.Natives["$predefined#"+name]
		if fn == nil {
			t.Fatalf("builtin %s not bound", name)
		}
		return fn(vm, args)
	}

	res, err := call("str", value.MakeSet(value.NewSet().With(value.MakeShort(1))))
	if err != nil {
		t.Fatal(err)
	}
	if res.Ptr.(*value.StringHeader).String() != "{1}" {
		t.Fatalf("str = %q", res.Ptr.(*value.StringHeader).String())
	}

	back, err := call("unstr", res)
	if err != nil {
		t.Fatal(err)
	}
	if back.Form != value.FormSet || back.Ptr.(*value.SetHeader).Card() != 1 {
		t.Fatalf("unstr round trip failed")
	}

	enc, err := call("binstr", value.MakeShort(5))
	if err != nil {
		t.Fatal(err)
	}
	dec, err := call("unbinstr", enc)
	if err != nil {
		t.Fatal(err)
	}
	if !value.Equal(dec, value.MakeShort(5)) {
		t.Fatalf("binstr builtin round trip failed")
	}

	if _, err := call("reada", value.MakeShort(3)); err == nil {
		t.Fatalf("non-atom file handle accepted")
	}

	got, err := call("reads", value.Specifier{Form: value.FormString, Ptr: value.NewString(" [1, 2] ")})
	if err != nil {
		t.Fatal(err)
	}
	if got.Form != value.FormTuple || got.Ptr.(*value.TupleHeader).Len() != 2 {
		t.Fatalf("reads = %s", ioformat.Str(got))
	}

	eof, err := call("eof")
	if err != nil {
		t.Fatal(err)
	}
	if eof.Truthy() {
		t.Fatalf("eof true after successful reads")
	}
}
