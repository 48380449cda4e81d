package value

// mapCell is one clash-list node for maps. Per the map cell
// invariant, IsMulti distinguishes a single-valued cell (Val is
// the range value) from a multi-valued one (Val is a FormSet
// specifier holding the value set).
type mapCell struct {
	hash    uint64
	key     Specifier
	val     Specifier
	isMulti bool
	next    *mapCell
}

type mapNode struct {
	leaf    bool
	kids    [SetHeaderSize]*mapNode
	buckets [SetHeaderSize]*mapCell
}

func newMapLeaf() *mapNode { return &mapNode{leaf: true} }

// MapHeader is the heap payload for FormMap.
type MapHeader struct {
	Counted
	root   *mapNode
	height int
	card   int
	hash   uint64
}

func NewMap() *MapHeader { return &MapHeader{root: newMapLeaf()} }

func MakeMap(h *MapHeader) Specifier { return Specifier{Form: FormMap, Ptr: h} }

func (m *MapHeader) Card() int        { return m.card }
func (m *MapHeader) HashCode() uint64 { return m.hash }

func (m *MapHeader) CloneForWrite() *MapHeader {
	if m.UseCount() <= 1 {
		return m
	}
	return &MapHeader{root: cloneMapNode(m.root), height: m.height, card: m.card, hash: m.hash}
}

func cloneMapNode(n *mapNode) *mapNode {
	c := &mapNode{leaf: n.leaf}
	if n.leaf {
		for i, head := range n.buckets {
			c.buckets[i] = cloneMapClash(head)
		}
	} else {
		for i, k := range n.kids {
			if k != nil {
				c.kids[i] = cloneMapNode(k)
			}
		}
	}
	return c
}

func cloneMapClash(head *mapCell) *mapCell {
	if head == nil {
		return nil
	}
	return &mapCell{hash: head.hash, key: head.key, val: head.val, isMulti: head.isMulti, next: cloneMapClash(head.next)}
}

func descendMap(root *mapNode, height int, hash uint64, grow bool) *mapNode {
	n := root
	for level := 0; level < height; level++ {
		idx := indexAt(hash, level)
		if n.kids[idx] == nil {
			if !grow {
				return nil
			}
			if level == height-1 {
				n.kids[idx] = newMapLeaf()
			} else {
				n.kids[idx] = &mapNode{}
			}
		}
		n = n.kids[idx]
	}
	return n
}

func findMapCell(head *mapCell, h uint64, key Specifier) *mapCell {
	for c := head; c != nil; c = c.next {
		if c.hash == h && Equal(c.key, key) {
			return c
		}
	}
	return nil
}

// cellPairHash hashes a map cell's (key, range) pair the way the
// 2-tuple [key, range] is hashed, so for a map whose cells are all
// single-valued the header's XOR cache equals the hash of its
// set-of-2-tuples view. A multi-valued cell is hashed as the key paired
// with its whole value set, so for such maps the two hashes differ.
func cellPairHash(key, rangeVal Specifier) uint64 {
	return Hash(key) ^ Hash(rangeVal)*2
}

// With inserts (key -> val). If key is already present and single
// valued, it is promoted to a value set unioning in val; if already multi-valued, val is unioned
// into the existing value set.
func (m *MapHeader) With(key, val Specifier) *MapHeader {
	out := m.CloneForWrite()
	h := Hash(key)
	leaf := descendMap(out.root, out.height, h, true)
	idx := indexAt(h, out.height)
	cell := findMapCell(leaf.buckets[idx], h, key)
	if cell == nil {
		nc := &mapCell{hash: h, key: key, val: val}
		leaf.buckets[idx] = insertMapSorted(leaf.buckets[idx], nc)
		out.card++
		out.hash ^= cellPairHash(key, val)
		out.maybeGrow()
		return out
	}
	out.hash ^= cellPairHash(key, cell.rangeView())
	if !cell.isMulti {
		vs := NewSet().With(cell.val).With(val)
		cell.val = MakeSet(vs)
		cell.isMulti = true
	} else {
		vs := cell.val.Ptr.(*SetHeader).With(val)
		cell.val = MakeSet(vs)
	}
	out.hash ^= cellPairHash(key, cell.rangeView())
	return out
}

// rangeView returns the cell's displayable range: the value set if
// multi, else the singleton value.
func (c *mapCell) rangeView() Specifier {
	if c.isMulti {
		return c.val
	}
	return c.val
}

func insertMapSorted(head *mapCell, nc *mapCell) *mapCell {
	if head == nil || nc.hash < head.hash {
		nc.next = head
		return nc
	}
	prev := head
	for prev.next != nil && prev.next.hash < nc.hash {
		prev = prev.next
	}
	nc.next = prev.next
	prev.next = nc
	return head
}

func (m *MapHeader) maybeGrow() {
	if m.card <= setMapThreshold(m.height) {
		return
	}
	type kv struct {
		k, v    Specifier
		isMulti bool
	}
	all := make([]kv, 0, m.card)
	walkMap(m.root, m.height, func(k, v Specifier, isMulti bool) {
		all = append(all, kv{k, v, isMulti})
	})
	m.height++
	m.root = &mapNode{}
	m.card = 0
	m.hash = 0
	for _, e := range all {
		h := Hash(e.k)
		leaf := descendMap(m.root, m.height, h, true)
		idx := indexAt(h, m.height)
		nc := &mapCell{hash: h, key: e.k, val: e.v, isMulti: e.isMulti}
		leaf.buckets[idx] = insertMapSorted(leaf.buckets[idx], nc)
		m.card++
		m.hash ^= cellPairHash(e.k, e.v)
	}
}

// Of implements `of` (single-apply): single-valued cell returns the
// range directly; a multi-valued cell's single-apply is undefined and
// returns omega.
func (m *MapHeader) Of(key Specifier) Specifier {
	h := Hash(key)
	leaf := descendMap(m.root, m.height, h, false)
	if leaf == nil {
		return Omega
	}
	cell := findMapCell(leaf.buckets[indexAt(h, m.height)], h, key)
	if cell == nil || cell.isMulti {
		return Omega
	}
	return cell.val
}

// Ofa implements `ofa`: always returns a value set, empty if key is
// absent, singleton-wrapped if key is single-valued.
func (m *MapHeader) Ofa(key Specifier) Specifier {
	h := Hash(key)
	leaf := descendMap(m.root, m.height, h, false)
	if leaf == nil {
		return MakeSet(NewSet())
	}
	cell := findMapCell(leaf.buckets[indexAt(h, m.height)], h, key)
	if cell == nil {
		return MakeSet(NewSet())
	}
	if cell.isMulti {
		return cell.val
	}
	return MakeSet(NewSet().With(cell.val))
}

func (m *MapHeader) HasKey(key Specifier) bool {
	h := Hash(key)
	leaf := descendMap(m.root, m.height, h, false)
	if leaf == nil {
		return false
	}
	return findMapCell(leaf.buckets[indexAt(h, m.height)], h, key) != nil
}

// Less removes key (and its whole range) from the map.
func (m *MapHeader) Less(key Specifier) *MapHeader {
	if !m.HasKey(key) {
		return m
	}
	out := m.CloneForWrite()
	h := Hash(key)
	leaf := descendMap(out.root, out.height, h, false)
	idx := indexAt(h, out.height)
	cell := findMapCell(leaf.buckets[idx], h, key)
	out.hash ^= cellPairHash(cell.key, cell.rangeView())
	leaf.buckets[idx] = removeMapCell(leaf.buckets[idx], h, key)
	out.card--
	return out
}

// Lessf removes a single (key, value) pair from a multi-valued cell,
// demoting back to single-valued if one member remains.
func (m *MapHeader) Lessf(key, val Specifier) *MapHeader {
	h := Hash(key)
	leaf := descendMap(m.root, m.height, h, false)
	if leaf == nil {
		return m
	}
	cell := findMapCell(leaf.buckets[indexAt(h, m.height)], h, key)
	if cell == nil {
		return m
	}
	out := m.CloneForWrite()
	leaf = descendMap(out.root, out.height, h, false)
	cell = findMapCell(leaf.buckets[indexAt(h, out.height)], h, key)
	if !cell.isMulti {
		if Equal(cell.val, val) {
			return out.Less(key)
		}
		return out
	}
	out.hash ^= cellPairHash(key, cell.val)
	vs := cell.val.Ptr.(*SetHeader).Less(val)
	if vs.Card() == 0 {
		return out.Less(key)
	}
	if vs.Card() == 1 {
		var single Specifier
		vs.Walk(func(e Specifier) { single = e })
		cell.val = single
		cell.isMulti = false
	} else {
		cell.val = MakeSet(vs)
	}
	out.hash ^= cellPairHash(key, cell.rangeView())
	return out
}

func removeMapCell(head *mapCell, h uint64, key Specifier) *mapCell {
	if head == nil {
		return nil
	}
	if head.hash == h && Equal(head.key, key) {
		return head.next
	}
	head.next = removeMapCell(head.next, h, key)
	return head
}

// Walk visits every (key, rangeValue, isMulti) triple in header-tree order.
func (m *MapHeader) Walk(f func(key, rangeVal Specifier, isMulti bool)) {
	walkMap(m.root, m.height, f)
}

func walkMap(n *mapNode, height int, f func(k, v Specifier, isMulti bool)) {
	if n == nil {
		return
	}
	if height == 0 {
		for _, head := range n.buckets {
			for c := head; c != nil; c = c.next {
				f(c.key, c.val, c.isMulti)
			}
		}
		return
	}
	for _, k := range n.kids {
		walkMap(k, height-1, f)
	}
}

// Domain returns the set of all keys.
func (m *MapHeader) Domain() *SetHeader {
	out := NewSet()
	m.Walk(func(k, _ Specifier, _ bool) { out = out.With(k) })
	return out
}

// Range returns the set of all range values (flattening multi-valued
// cells).
func (m *MapHeader) Range() *SetHeader {
	out := NewSet()
	m.Walk(func(_, v Specifier, isMulti bool) {
		if isMulti {
			v.Ptr.(*SetHeader).Walk(func(e Specifier) { out = out.With(e) })
		} else {
			out = out.With(v)
		}
	})
	return out
}

func mapEqual(a, b *MapHeader) bool {
	if a == b {
		return true
	}
	if a.card != b.card || a.hash != b.hash {
		return false
	}
	ok := true
	a.Walk(func(k, v Specifier, isMulti bool) {
		if !ok {
			return
		}
		if isMulti {
			if !Equal(b.Ofa(k), v) {
				ok = false
			}
		} else if !Equal(b.Of(k), v) {
			ok = false
		}
	})
	return ok
}

// AsSetOfPairs renders the map as a set of 2-tuples, the shape
// binstr uses when encoding a map.
func (m *MapHeader) AsSetOfPairs() *SetHeader {
	out := NewSet()
	m.Walk(func(k, v Specifier, isMulti bool) {
		if isMulti {
			v.Ptr.(*SetHeader).Walk(func(e Specifier) {
				out = out.With(MakeTuple(NewTupleFrom([]Specifier{k, e})))
			})
		} else {
			out = out.With(MakeTuple(NewTupleFrom([]Specifier{k, v})))
		}
	})
	return out
}
