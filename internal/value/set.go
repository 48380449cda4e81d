package value

// setCell is one clash-list node: elements that share a leaf bucket,
// kept sorted by hash then insertion order.
type setCell struct {
	hash uint64
	elem Specifier
	next *setCell
}

// setNode is one header-tree node: either an internal
// fan-out of SetHeaderSize children, or (leaf == true) a
// SetHeaderSize-wide array of clash-list heads.
type setNode struct {
	leaf     bool
	kids     [SetHeaderSize]*setNode
	buckets  [SetHeaderSize]*setCell
}

func newSetLeaf() *setNode { return &setNode{leaf: true} }

// SetHeader is the heap payload for FormSet.
type SetHeader struct {
	Counted
	root   *setNode
	height int
	card   int
	hash   uint64
}

func NewSet() *SetHeader {
	return &SetHeader{root: newSetLeaf()}
}

func MakeSet(h *SetHeader) Specifier { return Specifier{Form: FormSet, Ptr: h} }

func (s *SetHeader) Card() int    { return s.card }
func (s *SetHeader) HashCode() uint64 { return s.hash }

// CloneForWrite is the make_mut helper: returns s if
// uniquely owned, else a full structural copy.
func (s *SetHeader) CloneForWrite() *SetHeader {
	if s.UseCount() <= 1 {
		return s
	}
	return &SetHeader{root: cloneSetNode(s.root), height: s.height, card: s.card, hash: s.hash}
}

func cloneSetNode(n *setNode) *setNode {
	c := &setNode{leaf: n.leaf}
	if n.leaf {
		for i, head := range n.buckets {
			c.buckets[i] = cloneClashList(head)
		}
	} else {
		for i, k := range n.kids {
			if k != nil {
				c.kids[i] = cloneSetNode(k)
			}
		}
	}
	return c
}

func cloneClashList(head *setCell) *setCell {
	if head == nil {
		return nil
	}
	return &setCell{hash: head.hash, elem: head.elem, next: cloneClashList(head.next)}
}

func descendSet(root *setNode, height int, hash uint64, grow bool) *setNode {
	n := root
	for level := 0; level < height; level++ {
		idx := indexAt(hash, level)
		if n.kids[idx] == nil {
			if !grow {
				return nil
			}
			if level == height-1 {
				n.kids[idx] = newSetLeaf()
			} else {
				n.kids[idx] = &setNode{}
			}
		}
		n = n.kids[idx]
	}
	return n
}

// With inserts elem, deduplicating by value equality. Mutates in
// place when uniquely owned, otherwise clones first.
func (s *SetHeader) With(elem Specifier) *SetHeader {
	out := s.CloneForWrite()
	h := Hash(elem)
	leaf := descendSet(out.root, out.height, h, true)
	idx := indexAt(h, out.height)
	head := leaf.buckets[idx]
	for c := head; c != nil; c = c.next {
		if c.hash == h && Equal(c.elem, elem) {
			return out // already present
		}
	}
	leaf.buckets[idx] = insertSorted(head, h, elem)
	out.card++
	out.hash ^= h
	out.maybeGrow()
	return out
}

func insertSorted(head *setCell, h uint64, elem Specifier) *setCell {
	cell := &setCell{hash: h, elem: elem}
	if head == nil || h < head.hash {
		cell.next = head
		return cell
	}
	prev := head
	for prev.next != nil && prev.next.hash < h {
		prev = prev.next
	}
	cell.next = prev.next
	prev.next = cell
	return head
}

func (s *SetHeader) maybeGrow() {
	if s.card <= setMapThreshold(s.height) {
		return
	}
	// Rebuild at height+1: simplest correct way to redistribute
	// every element across the newly-available index bits.
	elems := make([]Specifier, 0, s.card)
	walkSet(s.root, s.height, func(e Specifier) { elems = append(elems, e) })
	s.height++
	s.root = &setNode{}
	s.card = 0
	s.hash = 0
	for _, e := range elems {
		h := Hash(e)
		leaf := descendSet(s.root, s.height, h, true)
		idx := indexAt(h, s.height)
		leaf.buckets[idx] = insertSorted(leaf.buckets[idx], h, e)
		s.card++
		s.hash ^= h
	}
}

// Less removes elem if present, returning the (possibly unchanged) set.
func (s *SetHeader) Less(elem Specifier) *SetHeader {
	if !s.Has(elem) {
		return s
	}
	out := s.CloneForWrite()
	h := Hash(elem)
	leaf := descendSet(out.root, out.height, h, false)
	if leaf == nil {
		return out
	}
	idx := indexAt(h, out.height)
	leaf.buckets[idx] = removeFromClash(leaf.buckets[idx], h, elem)
	out.card--
	out.hash ^= h
	return out
}

func removeFromClash(head *setCell, h uint64, elem Specifier) *setCell {
	if head == nil {
		return nil
	}
	if head.hash == h && Equal(head.elem, elem) {
		return head.next
	}
	head.next = removeFromClash(head.next, h, elem)
	return head
}

func (s *SetHeader) Has(elem Specifier) bool {
	h := Hash(elem)
	leaf := descendSet(s.root, s.height, h, false)
	if leaf == nil {
		return false
	}
	for c := leaf.buckets[indexAt(h, s.height)]; c != nil; c = c.next {
		if c.hash == h && Equal(c.elem, elem) {
			return true
		}
	}
	return false
}

// Arb returns an arbitrary element deterministically (leftmost
// non-empty leaf clash-list head) and the set with that
// element removed, or (Omega, s) if empty.
func (s *SetHeader) Arb() (Specifier, *SetHeader) {
	var found *Specifier
	walkSet(s.root, s.height, func(e Specifier) {
		if found == nil {
			v := e
			found = &v
		}
	})
	if found == nil {
		return Omega, s
	}
	return *found, s.Less(*found)
}

// Walk visits every element in header-tree order.
func (s *SetHeader) Walk(f func(Specifier)) { walkSet(s.root, s.height, f) }

func walkSet(n *setNode, height int, f func(Specifier)) {
	if n == nil {
		return
	}
	if height == 0 {
		for _, head := range n.buckets {
			for c := head; c != nil; c = c.next {
				f(c.elem)
			}
		}
		return
	}
	for _, k := range n.kids {
		walkSet(k, height-1, f)
	}
}

func setEqual(a, b *SetHeader) bool {
	if a == b {
		return true
	}
	if a.card != b.card || a.hash != b.hash {
		return false
	}
	ok := true
	a.Walk(func(e Specifier) {
		if ok && !b.Has(e) {
			ok = false
		}
	})
	return ok
}

// Union, Intersect, Diff support the compiler-facing set operators
// beyond simple `with`/`less` (e.g. `+`/`*`/`-` on sets), built purely
// from With/Less/Has/Walk.
func (s *SetHeader) Union(o *SetHeader) *SetHeader {
	out := s
	o.Walk(func(e Specifier) { out = out.With(e) })
	return out
}

func (s *SetHeader) Intersect(o *SetHeader) *SetHeader {
	out := NewSet()
	s.Walk(func(e Specifier) {
		if o.Has(e) {
			out = out.With(e)
		}
	})
	return out
}

func (s *SetHeader) Diff(o *SetHeader) *SetHeader {
	out := s
	o.Walk(func(e Specifier) { out = out.Less(e) })
	return out
}
