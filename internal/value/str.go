package value

// stringCellWidth is the fixed width of one chain cell. Strings are
// built and read a cell at a time; concatenation builds a new chain
// holding copies of both operands' bytes (see Concat).
const stringCellWidth = 32

type stringCell struct {
	bytes [stringCellWidth]byte
	n     int // bytes used in this cell
	next  *stringCell
}

// StringHeader is the heap payload for FormString: total length plus
// head/tail of the cell chain, and a cached hash invalidated to -1 on
// modification.
type StringHeader struct {
	Counted
	head, tail *stringCell
	length     int
	hash       int64 // -1 means "needs recompute"
}

func NewString(s string) *StringHeader {
	h := &StringHeader{hash: -1}
	h.appendBytes([]byte(s))
	return h
}

func (h *StringHeader) appendBytes(b []byte) {
	for len(b) > 0 {
		if h.tail == nil || h.tail.n == stringCellWidth {
			c := &stringCell{}
			if h.tail != nil {
				h.tail.next = c
			} else {
				h.head = c
			}
			h.tail = c
		}
		room := stringCellWidth - h.tail.n
		take := len(b)
		if take > room {
			take = room
		}
		copy(h.tail.bytes[h.tail.n:], b[:take])
		h.tail.n += take
		h.length += take
		b = b[take:]
	}
	h.hash = -1
}

func (h *StringHeader) Len() int { return h.length }

// Bytes materializes the chain into a single contiguous slice. Used
// for comparisons, printing, and binstr encoding; the chain itself is
// never coalesced so earlier cells stay shareable across copy-on-write
// clones taken before this call.
func (h *StringHeader) Bytes() []byte {
	out := make([]byte, 0, h.length)
	for c := h.head; c != nil; c = c.next {
		out = append(out, c.bytes[:c.n]...)
	}
	return out
}

func (h *StringHeader) String() string { return string(h.Bytes()) }

// Concat returns a new StringHeader holding h followed by other. Both
// operands' bytes are copied into fresh cells whatever their use
// counts; no cell of h or other is reused, and neither is modified.
func (h *StringHeader) Concat(other *StringHeader) *StringHeader {
	out := &StringHeader{hash: -1}
	out.appendBytes(h.Bytes())
	out.appendBytes(other.Bytes())
	return out
}

// CloneForWrite returns h unchanged if uniquely owned, else a deep
// copy, the make_mut pattern applied to strings.
func (h *StringHeader) CloneForWrite() *StringHeader {
	if h.UseCount() <= 1 {
		return h
	}
	return NewString(h.String())
}

// Hash returns the cached hash, recomputing (FNV-1a over the bytes)
// if invalidated.
func (h *StringHeader) Hash() uint64 {
	if h.hash >= 0 {
		return uint64(h.hash)
	}
	var hv uint64 = 1469598103934665603
	for c := h.head; c != nil; c = c.next {
		for _, b := range c.bytes[:c.n] {
			hv ^= uint64(b)
			hv *= 1099511628211
		}
	}
	h.hash = int64(hv & 0x7fffffffffffffff)
	return uint64(h.hash)
}
