package ioformat

import (
	"bufio"
	"io"
	"math"
	"math/big"
	"strings"

	"setl/internal/serr"
	"setl/internal/value"
)

// maxToken bounds identifier and string tokens; exceeding it is a
// tier-2 "token too long" giveup, an integrity assertion
// rather than a recoverable parse error.
const maxToken = 1 << 16

// Reader is the mini-lexer shared by read, reada, reads, and unstr:
// it consumes one value at a time from a stream or
// string view. At end of input it returns omega and sets LastEOF,
// queryable by the eof built-in.
type Reader struct {
	r       *bufio.Reader
	LastEOF bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

func FromString(s string) *Reader {
	return &Reader{r: bufio.NewReader(strings.NewReader(s))}
}

// Unstr parses one value out of s (the unstr built-in).
func Unstr(s string) (value.Specifier, error) {
	return FromString(s).ReadValue()
}

// ReadValue consumes one value. Clean end of input yields omega with
// LastEOF set; any malformed token is a type-tier error.
func (rd *Reader) ReadValue() (value.Specifier, error) {
	c, ok := rd.skipSpace()
	if !ok {
		rd.LastEOF = true
		return value.Omega, nil
	}
	return rd.readValueAt(c)
}

// isSpace matches the source's whitespace set, backspace (code 8)
// included.
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\b':
		return true
	}
	return false
}

func (rd *Reader) skipSpace() (byte, bool) {
	for {
		c, err := rd.r.ReadByte()
		if err != nil {
			return 0, false
		}
		if !isSpace(c) {
			return c, true
		}
	}
}

func (rd *Reader) readValueAt(c byte) (value.Specifier, error) {
	switch {
	case c == '{':
		return rd.readSet()
	case c == '[':
		return rd.readTuple()
	case c == '"':
		return rd.readString()
	case c == '+' || c == '-' || isDigit(c):
		return rd.readNumber(c)
	case isIdentStart(c):
		return rd.readIdent(c)
	default:
		return value.Omega, serr.Typef(string(c), "unexpected character in input")
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

// readIdent lexes an identifier-shaped token: it becomes a string
// value except for the literals om, true, false (case-insensitive).
func (rd *Reader) readIdent(first byte) (value.Specifier, error) {
	var b strings.Builder
	b.WriteByte(first)
	for {
		c, err := rd.r.ReadByte()
		if err != nil {
			break
		}
		if !isIdentPart(c) {
			rd.r.UnreadByte()
			break
		}
		b.WriteByte(c)
		if b.Len() > maxToken {
			return value.Omega, serr.Giveup("token too long")
		}
	}
	tok := b.String()
	switch strings.ToLower(tok) {
	case "om":
		return value.Omega, nil
	case "true":
		return value.True, nil
	case "false":
		return value.False, nil
	}
	return value.Specifier{Form: value.FormString, Ptr: value.NewString(tok)}, nil
}

func (rd *Reader) readString() (value.Specifier, error) {
	var b strings.Builder
	for {
		c, err := rd.r.ReadByte()
		if err != nil {
			return value.Omega, serr.Typef("\"", "unterminated string")
		}
		switch c {
		case '"':
			return value.Specifier{Form: value.FormString, Ptr: value.NewString(b.String())}, nil
		case '\\':
			e, err := rd.r.ReadByte()
			if err != nil {
				return value.Omega, serr.Typef("\"", "unterminated string")
			}
			switch e {
			case '\\':
				b.WriteByte('\\')
			case '0':
				b.WriteByte(0)
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 'f':
				b.WriteByte('\f')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case 'x', 'X':
				hi, err1 := rd.r.ReadByte()
				lo, err2 := rd.r.ReadByte()
				if err1 != nil || err2 != nil {
					return value.Omega, serr.Typef("\"", "unterminated string")
				}
				h, ok1 := hexVal(hi)
				l, ok2 := hexVal(lo)
				if !ok1 || !ok2 {
					return value.Omega, serr.Typef(string([]byte{hi, lo}), "bad hex escape in string")
				}
				b.WriteByte(h<<4 | l)
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
		if b.Len() > maxToken {
			return value.Omega, serr.Giveup("token too long")
		}
	}
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func digitVal(c byte, base int) (int, bool) {
	var v int
	switch {
	case c >= '0' && c <= '9':
		v = int(c - '0')
	case c >= 'a' && c <= 'z':
		v = int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		v = int(c-'A') + 10
	default:
		return 0, false
	}
	if v >= base {
		return 0, false
	}
	return v, true
}

// readDigits accumulates digits (with _ separators) in base into a
// big.Int; count reports how many digits were consumed.
func (rd *Reader) readDigits(base int) (*big.Int, int) {
	acc := new(big.Int)
	bb := big.NewInt(int64(base))
	n := 0
	for {
		c, err := rd.r.ReadByte()
		if err != nil {
			return acc, n
		}
		if c == '_' {
			continue
		}
		v, ok := digitVal(c, base)
		if !ok {
			rd.r.UnreadByte()
			return acc, n
		}
		acc.Mul(acc, bb)
		acc.Add(acc, big.NewInt(int64(v)))
		n++
	}
}

// readNumber lexes a numeric literal: optional
// sign, decimal digits with _ separators, optional #base# delimiting
// any base 2..36 (closed by a second #), optional fractional part
// (making a real), and an optional e[±]d exponent applied as
// pow(base, exp). Overflowing whole parts accumulate into a bignum
// which renormalizes to short when possible.
func (rd *Reader) readNumber(first byte) (value.Specifier, error) {
	neg := false
	switch first {
	case '-':
		neg = true
	case '+':
	default:
		rd.r.UnreadByte()
	}
	if first == '-' || first == '+' {
		c, err := rd.r.ReadByte()
		if err != nil || !isDigit(c) {
			return value.Omega, serr.Typef(string(first), "sign without digits in input")
		}
		rd.r.UnreadByte()
	}

	base := 10
	whole, n := rd.readDigits(10)
	if n == 0 {
		return value.Omega, serr.Typef("", "digits expected in input")
	}

	closed := true
	if rd.peekIs('#') {
		if !whole.IsInt64() || whole.Int64() < 2 || whole.Int64() > 36 {
			return value.Omega, serr.Typef(whole.String(), "number base out of range")
		}
		base = int(whole.Int64())
		whole, n = rd.readDigits(base)
		if n == 0 {
			return value.Omega, serr.Typef("#", "digits expected after base")
		}
		closed = false
	}

	isReal := false
	var frac float64
	if rd.peekIs('.') {
		fracInt, fn := rd.readDigits(base)
		if fn == 0 {
			return value.Omega, serr.Typef(".", "digits expected after point")
		}
		f := new(big.Float).SetInt(fracInt)
		div := new(big.Float).SetFloat64(math.Pow(float64(base), float64(fn)))
		f.Quo(f, div)
		frac, _ = f.Float64()
		isReal = true
	}

	if !closed {
		if !rd.peekIs('#') {
			return value.Omega, serr.Typef("#", "based literal not closed")
		}
	}

	// An 'e' only opens an exponent when digits actually follow;
	// otherwise it starts the next (identifier) token, so look ahead
	// before committing.
	hasExp := false
	var exp int64
	if peeked, _ := rd.r.Peek(3); len(peeked) >= 2 && (peeked[0] == 'e' || peeked[0] == 'E') {
		j := 1
		if peeked[j] == '+' || peeked[j] == '-' {
			j++
		}
		if j < len(peeked) && isDigit(peeked[j]) {
			rd.r.ReadByte()
			expNeg := false
			if rd.peekIs('+') {
			} else if rd.peekIs('-') {
				expNeg = true
			}
			e, _ := rd.readDigits(10)
			exp = e.Int64()
			if expNeg {
				exp = -exp
			}
			hasExp = true
		}
	}

	if isReal || hasExp {
		wf := new(big.Float).SetInt(whole)
		v, _ := wf.Float64()
		v += frac
		if hasExp {
			v *= math.Pow(float64(base), float64(exp))
		}
		if neg {
			v = -v
		}
		return value.MakeReal(v), nil
	}

	if neg {
		whole.Neg(whole)
	}
	return value.NormalizeSpecifier(whole), nil
}

func (rd *Reader) peekIs(want byte) bool {
	c, err := rd.r.ReadByte()
	if err != nil {
		return false
	}
	if c != want {
		rd.r.UnreadByte()
		return false
	}
	return true
}

// readSet reads values until a balanced }, silently deduplicating.
func (rd *Reader) readSet() (value.Specifier, error) {
	s := value.NewSet()
	err := rd.readItems('}', func(v value.Specifier) {
		s = s.With(v)
	})
	if err != nil {
		return value.Omega, err
	}
	return value.MakeSet(s), nil
}

// readTuple reads values until a balanced ]; trailing oms strip per
// the tuple canonicalization rule.
func (rd *Reader) readTuple() (value.Specifier, error) {
	var elems []value.Specifier
	err := rd.readItems(']', func(v value.Specifier) {
		elems = append(elems, v)
	})
	if err != nil {
		return value.Omega, err
	}
	return value.MakeTuple(value.NewTupleFrom(elems)), nil
}

// readItems parses the comma-separated item stream of a set or tuple
// body: commas are accepted between items but at most one in a row.
func (rd *Reader) readItems(closer byte, emit func(value.Specifier)) error {
	sawComma := true // leading comma is not allowed
	first := true
	for {
		c, ok := rd.skipSpace()
		if !ok {
			return serr.Typef(string(closer), "unterminated container in input")
		}
		switch {
		case c == closer:
			return nil
		case c == ',':
			if sawComma {
				pos := "leading"
				if !first {
					pos = "repeated"
				}
				return serr.Typef(",", "%s comma in input", pos)
			}
			sawComma = true
		default:
			v, err := rd.readValueAt(c)
			if err != nil {
				return err
			}
			emit(v)
			sawComma = false
			first = false
		}
	}
}
