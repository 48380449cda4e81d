// Package ioformat implements the I/O-to-value serialization surfaces
// of the runtime: the printable form consumed by print/str, the
// textual reader behind read/reada/unstr, and the self-describing
// binstr/unbinstr binary codec.
package ioformat

import (
	"fmt"
	"strconv"
	"strings"

	"setl/internal/value"
)

// StrOverride lets the interpreter hook an object's m_str method into
// the printer without this package depending on internal/interp. A
// nil override (or a false second return) falls back to the default
// printable form.
type StrOverride func(obj *value.ObjectHeader) (string, bool)

// Str renders s in the textual form the reader parses back, so that
// unstr(str(x)) = x for every x free of non-portable forms. Set and map elements print in header-tree (hash) order, not
// value order.
func Str(s value.Specifier) string {
	return StrWith(s, nil)
}

func StrWith(s value.Specifier, ov StrOverride) string {
	var b strings.Builder
	writeValue(&b, s, ov)
	return b.String()
}

func writeValue(b *strings.Builder, s value.Specifier, ov StrOverride) {
	switch s.Form {
	case value.FormOmega:
		b.WriteString("om")
	case value.FormAtom:
		switch s {
		case value.True:
			b.WriteString("true")
		case value.False:
			b.WriteString("false")
		default:
			fmt.Fprintf(b, "#%d", s.Atom)
		}
	case value.FormShort:
		b.WriteString(strconv.FormatInt(s.Short, 10))
	case value.FormLong:
		bi, _ := value.AsBigInt(s)
		b.WriteString(bi.String())
	case value.FormReal:
		b.WriteString(formatReal(s.Ptr.(*value.RealCell).V))
	case value.FormString:
		writeQuoted(b, s.Ptr.(*value.StringHeader).String())
	case value.FormSet:
		b.WriteByte('{')
		first := true
		s.Ptr.(*value.SetHeader).Walk(func(e value.Specifier) {
			if !first {
				b.WriteString(", ")
			}
			first = false
			writeValue(b, e, ov)
		})
		b.WriteByte('}')
	case value.FormMap:
		// A map prints as its set-of-pairs view, the same shape the
		// binary codec uses.
		b.WriteByte('{')
		first := true
		s.Ptr.(*value.MapHeader).Walk(func(k, v value.Specifier, isMulti bool) {
			emit := func(rv value.Specifier) {
				if !first {
					b.WriteString(", ")
				}
				first = false
				b.WriteByte('[')
				writeValue(b, k, ov)
				b.WriteString(", ")
				writeValue(b, rv, ov)
				b.WriteByte(']')
			}
			if isMulti {
				v.Ptr.(*value.SetHeader).Walk(emit)
			} else {
				emit(v)
			}
		})
		b.WriteByte('}')
	case value.FormTuple:
		t := s.Ptr.(*value.TupleHeader)
		b.WriteByte('[')
		for i := 0; i < t.Len(); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, t.Get(i), ov)
		}
		b.WriteByte(']')
	case value.FormObject, value.FormProcess:
		obj := s.Ptr.(*value.ObjectHeader)
		if ov != nil {
			if out, ok := ov(obj); ok {
				b.WriteString(out)
				return
			}
		}
		b.WriteString("<")
		b.WriteString(obj.Class)
		b.WriteString(" instance>")
	case value.FormProc:
		b.WriteString("<procedure ")
		b.WriteString(s.Ptr.(*value.Procedure).Unit)
		b.WriteString(">")
	case value.FormMailbox:
		b.WriteString("<mailbox>")
	case value.FormIter:
		b.WriteString("<iterator>")
	case value.FormFile:
		b.WriteString("<file>")
	case value.FormLabel:
		b.WriteString("<label>")
	case value.FormOpaque:
		b.WriteString("<opaque>")
	default:
		b.WriteString("<?>")
	}
}

// formatReal always produces a token the reader lexes as a real: a
// '.' or exponent is forced even when the value is integral.
func formatReal(v float64) string {
	out := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(out, ".eE") || strings.HasPrefix(out, "Inf") || strings.HasPrefix(out, "-Inf") {
		if strings.ContainsAny(out, "0123456789") {
			out += ".0"
		}
	}
	return out
}

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\f':
			b.WriteString(`\f`)
		case 0:
			b.WriteString(`\0`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(b, `\x%02X`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
}
