package value

// IterKind identifies which iteration strategy an Iterator uses.
type IterKind int

const (
	IterSet IterKind = iota
	IterMap
	IterTuple
	IterString
	IterShortRange
	IterObject
)

// Iterator is the heap payload for FormIter. It is not restartable;
// Next returns (value, true) while elements remain, or (Omega,
// false) once exhausted.
type Iterator struct {
	Counted
	Kind IterKind

	// set/map: explicit stack of (node, index, height) frames so no
	// parent backpointer is needed.
	setStack []setIterFrame
	setSrc   *SetHeader

	mapStack  []mapIterFrame
	mapSrc    *MapHeader
	mapSub    *Iterator // nested value-set iterator for a multi-value cell
	mapSubKey Specifier

	tup    *TupleHeader
	tupPos int

	str    []rune
	strPos int

	rangeN, rangePos int64

	// object: user m_iterstart/m_iternext dispatch is driven by the
	// interpreter, which stores its own continuation state here.
	objState interface{}
	objNext  func(state interface{}) (Specifier, interface{}, bool)
}

type setIterFrame struct {
	node  *setNode
	idx   int
	cell  *setCell
	height int
}

type mapIterFrame struct {
	node   *mapNode
	idx    int
	cell   *mapCell
	height int
}

func MakeIter(it *Iterator) Specifier { return Specifier{Form: FormIter, Ptr: it} }

func NewSetIterator(s *SetHeader) *Iterator {
	it := &Iterator{Kind: IterSet, setSrc: s}
	it.setStack = []setIterFrame{{node: s.root, idx: 0, height: s.height}}
	return it
}

func NewMapIterator(m *MapHeader) *Iterator {
	it := &Iterator{Kind: IterMap, mapSrc: m}
	it.mapStack = []mapIterFrame{{node: m.root, idx: 0, height: m.height}}
	return it
}

func NewTupleIterator(t *TupleHeader) *Iterator {
	return &Iterator{Kind: IterTuple, tup: t}
}

func NewStringIterator(s string) *Iterator {
	return &Iterator{Kind: IterString, str: []rune(s)}
}

func NewShortRangeIterator(n int64) *Iterator {
	return &Iterator{Kind: IterShortRange, rangeN: n, rangePos: 0}
}

func NewObjectIterator(state interface{}, next func(interface{}) (Specifier, interface{}, bool)) *Iterator {
	return &Iterator{Kind: IterObject, objState: state, objNext: next}
}

// Next advances the iterator.
func (it *Iterator) Next() (Specifier, bool) {
	switch it.Kind {
	case IterSet:
		return it.nextSet()
	case IterMap:
		return it.nextMap()
	case IterTuple:
		for it.tupPos < it.tup.Len() {
			v := it.tup.Get(it.tupPos)
			it.tupPos++
			if !v.IsOmega() {
				return v, true
			}
		}
		return Omega, false
	case IterString:
		if it.strPos >= len(it.str) {
			return Omega, false
		}
		r := it.str[it.strPos]
		it.strPos++
		return Specifier{Form: FormString, Ptr: NewString(string(r))}, true
	case IterShortRange:
		it.rangePos++
		if it.rangePos > it.rangeN {
			return Omega, false
		}
		return MakeShort(it.rangePos), true
	case IterObject:
		v, next, ok := it.objNext(it.objState)
		it.objState = next
		return v, ok
	default:
		return Omega, false
	}
}

func (it *Iterator) nextSet() (Specifier, bool) {
	for len(it.setStack) > 0 {
		top := &it.setStack[len(it.setStack)-1]
		if top.height == 0 {
			if top.cell == nil {
				if top.idx >= SetHeaderSize {
					it.setStack = it.setStack[:len(it.setStack)-1]
					continue
				}
				top.cell = top.node.buckets[top.idx]
				top.idx++
				continue
			}
			v := top.cell.elem
			top.cell = top.cell.next
			return v, true
		}
		if top.idx >= SetHeaderSize {
			it.setStack = it.setStack[:len(it.setStack)-1]
			continue
		}
		child := top.node.kids[top.idx]
		top.idx++
		if child != nil {
			it.setStack = append(it.setStack, setIterFrame{node: child, height: top.height - 1})
		}
	}
	return Omega, false
}

func (it *Iterator) nextMap() (Specifier, bool) {
	if it.mapSub != nil {
		if v, ok := it.mapSub.Next(); ok {
			return MakeTuple(NewTupleFrom([]Specifier{it.mapSubKey, v})), true
		}
		it.mapSub = nil
	}
	for len(it.mapStack) > 0 {
		top := &it.mapStack[len(it.mapStack)-1]
		if top.height == 0 {
			if top.cell == nil {
				if top.idx >= SetHeaderSize {
					it.mapStack = it.mapStack[:len(it.mapStack)-1]
					continue
				}
				top.cell = top.node.buckets[top.idx]
				top.idx++
				continue
			}
			c := top.cell
			top.cell = top.cell.next
			if c.isMulti {
				it.mapSub = NewSetIterator(c.val.Ptr.(*SetHeader))
				it.mapSubKey = c.key
				if v, ok := it.mapSub.Next(); ok {
					return MakeTuple(NewTupleFrom([]Specifier{c.key, v})), true
				}
				it.mapSub = nil
				continue
			}
			return MakeTuple(NewTupleFrom([]Specifier{c.key, c.val})), true
		}
		if top.idx >= SetHeaderSize {
			it.mapStack = it.mapStack[:len(it.mapStack)-1]
			continue
		}
		child := top.node.kids[top.idx]
		top.idx++
		if child != nil {
			it.mapStack = append(it.mapStack, mapIterFrame{node: child, height: top.height - 1})
		}
	}
	return Omega, false
}
