package ioformat

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/big"
	"sync"

	"setl/internal/serr"
	"setl/internal/symtab"
	"setl/internal/value"
)

// skipCode marks a run of omega positions inside a tuple encoding;
// it is followed by the next occupied position.
// Form bytes are small, so the marker cannot collide with one.
const skipCode byte = 0xff

// Codec implements the self-describing binstr/unbinstr byte stream.
// Encoding is little-endian with the host's native
// type sizes mapped to fixed widths; the format makes no cross-host
// promises.
//
// Non-portable forms encode as the form byte, a handle into the
// codec's pin table, and the current process timestamp; the pin table
// holds a live reference to the encoded specifier so the payload
// cannot be released while an encoding of it exists (the source's
// "we're only storing pointers" discipline). Decoding a non-portable
// form under a different timestamp fails, except for the predefined
// true and false atoms, which are always accepted.
type Codec struct {
	ProcessID int32
	Timestamp int64

	// ClassVars lazily resolves a class name to its instance-variable
	// count, loading the unit if needed (the decoder's object path).
	ClassVars func(class string) (int, error)

	// MakeObject builds an object of class from declaration-order
	// instance variables; left as a hook so this package does not
	// depend on the loader.
	MakeObject func(class string, vars []value.Specifier) (value.Specifier, error)

	mu     sync.Mutex
	pins   map[uint64]value.Specifier
	nextID uint64
}

func NewCodec(pid int32, timestamp int64) *Codec {
	return &Codec{ProcessID: pid, Timestamp: timestamp, pins: make(map[uint64]value.Specifier)}
}

// Encode renders s as a self-describing byte string (the binstr
// built-in).
func (c *Codec) Encode(s value.Specifier) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.encode(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses one value from data (the unbinstr built-in).
func (c *Codec) Decode(data []byte) (value.Specifier, error) {
	r := bytes.NewReader(data)
	v, err := c.decode(r)
	if err != nil {
		return value.Omega, err
	}
	return v, nil
}

func (c *Codec) encode(w *bytes.Buffer, s value.Specifier) error {
	w.WriteByte(byte(s.Form))
	switch s.Form {
	case value.FormOmega:
		return nil
	case value.FormShort:
		return binary.Write(w, binary.LittleEndian, s.Short)
	case value.FormLong:
		bn := s.Ptr.(*value.Bignum)
		digits := bn.Digits()
		count := int32(len(digits))
		if bn.IsNegative() {
			count = -count
		}
		if err := binary.Write(w, binary.LittleEndian, count); err != nil {
			return err
		}
		for _, d := range digits {
			if err := binary.Write(w, binary.LittleEndian, d); err != nil {
				return err
			}
		}
		return nil
	case value.FormReal:
		return binary.Write(w, binary.LittleEndian, math.Float64bits(s.Ptr.(*value.RealCell).V))
	case value.FormString:
		b := s.Ptr.(*value.StringHeader).Bytes()
		if err := binary.Write(w, binary.LittleEndian, int32(len(b))); err != nil {
			return err
		}
		_, err := w.Write(b)
		return err
	case value.FormSet:
		sh := s.Ptr.(*value.SetHeader)
		if err := binary.Write(w, binary.LittleEndian, int32(sh.Card())); err != nil {
			return err
		}
		var encErr error
		sh.Walk(func(e value.Specifier) {
			if encErr == nil {
				encErr = c.encode(w, e)
			}
		})
		return encErr
	case value.FormMap:
		// A map travels as its set-of-2-tuples view.
		pairs := s.Ptr.(*value.MapHeader).AsSetOfPairs()
		if err := binary.Write(w, binary.LittleEndian, int32(pairs.Card())); err != nil {
			return err
		}
		var encErr error
		pairs.Walk(func(e value.Specifier) {
			if encErr == nil {
				encErr = c.encode(w, e)
			}
		})
		return encErr
	case value.FormTuple:
		t := s.Ptr.(*value.TupleHeader)
		if err := binary.Write(w, binary.LittleEndian, int32(t.Len())); err != nil {
			return err
		}
		pos := 0
		var encErr error
		t.Walk(func(i int, v value.Specifier) {
			if encErr != nil {
				return
			}
			if i != pos {
				w.WriteByte(skipCode)
				encErr = binary.Write(w, binary.LittleEndian, int32(i))
				if encErr != nil {
					return
				}
			}
			pos = i + 1
			encErr = c.encode(w, v)
		})
		return encErr
	case value.FormObject:
		obj := s.Ptr.(*value.ObjectHeader)
		if c.ClassVars == nil {
			return serr.Typef(obj.Class, "cannot encode object without class table")
		}
		varCount, err := c.ClassVars(obj.Class)
		if err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(len(obj.Class))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, obj.Class); err != nil {
			return err
		}
		for _, v := range obj.InstanceVars(varCount) {
			if err := c.encode(w, v); err != nil {
				return err
			}
		}
		return nil
	case value.FormAtom:
		if err := binary.Write(w, binary.LittleEndian, uint32(s.Atom)); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, c.Timestamp)
	default:
		// Non-portable: pin the live specifier so its payload stays
		// reachable for the lifetime of the encoding, and record the
		// handle plus the process timestamp.
		c.mu.Lock()
		c.nextID++
		id := c.nextID
		c.pins[id] = value.Retain(s)
		c.mu.Unlock()
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, c.Timestamp)
	}
}

func (c *Codec) decode(r *bytes.Reader) (value.Specifier, error) {
	formByte, err := r.ReadByte()
	if err != nil {
		return value.Omega, serr.Typef("binstr", "truncated binary string")
	}
	form := value.Form(formByte)
	switch form {
	case value.FormOmega:
		return value.Omega, nil
	case value.FormShort:
		var n int64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		return value.MakeShort(n), nil
	case value.FormLong:
		var count int32
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		neg := count < 0
		if neg {
			count = -count
		}
		acc := newBigFromDigits(r, int(count))
		if acc == nil {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		if neg {
			acc.Neg(acc)
		}
		return value.NormalizeSpecifier(acc), nil
	case value.FormReal:
		var bits uint64
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		return value.MakeReal(math.Float64frombits(bits)), nil
	case value.FormString:
		var n int32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil || n < 0 {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		return value.Specifier{Form: value.FormString, Ptr: value.NewString(string(b))}, nil
	case value.FormSet:
		var card int32
		if err := binary.Read(r, binary.LittleEndian, &card); err != nil || card < 0 {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		s := value.NewSet()
		for i := int32(0); i < card; i++ {
			e, err := c.decode(r)
			if err != nil {
				return value.Omega, err
			}
			s = s.With(e)
		}
		return value.MakeSet(s), nil
	case value.FormMap:
		var card int32
		if err := binary.Read(r, binary.LittleEndian, &card); err != nil || card < 0 {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		m := value.NewMap()
		for i := int32(0); i < card; i++ {
			e, err := c.decode(r)
			if err != nil {
				return value.Omega, err
			}
			if e.Form != value.FormTuple || e.Ptr.(*value.TupleHeader).Len() != 2 {
				return value.Omega, serr.Typef("binstr", "malformed map pair in binary string")
			}
			t := e.Ptr.(*value.TupleHeader)
			m = m.With(t.Get(0), t.Get(1))
		}
		return value.MakeMap(m), nil
	case value.FormTuple:
		var length int32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil || length < 0 {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		t := value.NewTuple()
		pos := 0
		for pos < int(length) {
			marker, err := r.ReadByte()
			if err != nil {
				return value.Omega, serr.Typef("binstr", "truncated binary string")
			}
			if marker == skipCode {
				var p int32
				if err := binary.Read(r, binary.LittleEndian, &p); err != nil || int(p) < pos {
					return value.Omega, serr.Typef("binstr", "truncated binary string")
				}
				pos = int(p)
				continue
			}
			r.UnreadByte()
			e, err := c.decode(r)
			if err != nil {
				return value.Omega, err
			}
			t = t.Set(pos, e)
			pos++
		}
		return value.MakeTuple(t), nil
	case value.FormObject:
		var n int32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil || n < 0 {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		nameBytes := make([]byte, n)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		class := string(nameBytes)
		if c.ClassVars == nil || c.MakeObject == nil {
			return value.Omega, serr.Typef(class, "cannot decode object without class table")
		}
		varCount, err := c.ClassVars(class)
		if err != nil {
			return value.Omega, err
		}
		vars := make([]value.Specifier, varCount)
		for i := 0; i < varCount; i++ {
			if vars[i], err = c.decode(r); err != nil {
				return value.Omega, err
			}
		}
		return c.MakeObject(class, vars)
	case value.FormAtom:
		var id uint32
		var ts int64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		if err := binary.Read(r, binary.LittleEndian, &ts); err != nil {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		aid := symtab.AtomID(id)
		if aid == symtab.AtomTrue || aid == symtab.AtomFalse {
			return value.MakeAtom(aid), nil
		}
		if ts != c.Timestamp {
			return value.Omega, serr.Typef(form.String(), "internal values not preserved across executions")
		}
		return value.MakeAtom(aid), nil
	default:
		var id uint64
		var ts int64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		if err := binary.Read(r, binary.LittleEndian, &ts); err != nil {
			return value.Omega, serr.Typef("binstr", "truncated binary string")
		}
		if ts != c.Timestamp {
			return value.Omega, serr.Typef(form.String(), "internal values not preserved across executions")
		}
		c.mu.Lock()
		pinned, ok := c.pins[id]
		c.mu.Unlock()
		if !ok {
			return value.Omega, serr.Typef(form.String(), "internal values not preserved across executions")
		}
		return value.Retain(pinned), nil
	}
}

func newBigFromDigits(r *bytes.Reader, count int) *big.Int {
	acc := new(big.Int)
	word := new(big.Int)
	for i := 0; i < count; i++ {
		var d uint32
		if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
			return nil
		}
		word.SetUint64(uint64(d))
		word.Lsh(word, uint(32*i))
		acc.Add(acc, word)
	}
	return acc
}
