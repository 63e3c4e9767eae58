package skiplist

// Splice caches, per level, the (prev, next) pair bracketing the most
// recent insertion, so a caller doing sequential inserts amortizes the
// search to O(1) (spec §4.1). A caller may also pass a fresh, zero-value
// Splice to every call, forcing a full re-search each time; both paths must
// produce identical results (spec §9).
type Splice struct {
	height int
	prev   [MaxHeight]*node
	next   [MaxHeight]*node
}

// NewSplice returns an empty splice, equivalent to the zero value; kept as
// a constructor so callers don't need to know Splice's fields are private.
func NewSplice() *Splice { return &Splice{} }

// Insert links k into the list. k must not already be present (duplicate
// detection happens at level 0); it reports false without modifying the
// list if k (per the comparator) already exists. When concurrent is false
// the caller must guarantee single-writer access; when true, every level's
// link is installed with a CAS so concurrent writers never corrupt a
// forward-pointer chain.
//
// splice may be nil, in which case a throwaway on-stack splice is used —
// this is always correct, just not amortized. Per spec §9's open question,
// a concurrent insert must receive its caller's own splice (typically
// on-stack), never one shared across goroutines; List has no shared splice
// field for exactly that reason.
func (l *List) Insert(k []byte, splice *Splice, concurrent bool) bool {
	if splice == nil {
		splice = &Splice{}
	}
	height := l.randomHeight()
	l.raiseListHeight(height)

	recomputeHeight := l.validateSplice(k, splice, height)
	l.recomputeSplice(k, splice, recomputeHeight)

	n := newNode(k, height)
	for i := 0; i < height; i++ {
		n.next[i].Store(splice.next[i])
	}

	if concurrent {
		for i := 0; i < height; i++ {
			for {
				// Checking for duplicates on level 0 is sufficient, but it
				// must be re-checked on every retry: a lost CAS means
				// findSpliceForLevel below may have re-bracketed k against a
				// node another goroutine just linked in with the same key.
				if i == 0 && (l.equalsNode(splice.prev[i], k) || l.equalsNode(splice.next[i], k)) {
					return false
				}
				if splice.prev[i].casNext(i, splice.next[i], n) {
					break
				}
				prev, next := l.findSpliceForLevel(k, splice.prev[i], i)
				splice.prev[i], splice.next[i] = prev, next
				n.next[i].Store(next)
			}
		}
	} else {
		// Single-writer path: nothing else can link a colliding key between
		// this check and the store below, so checking once is sufficient.
		if l.equalsNode(splice.prev[0], k) || l.equalsNode(splice.next[0], k) {
			return false
		}
		for i := 0; i < height; i++ {
			splice.prev[i].storeNext(i, n)
		}
	}

	l.count.Add(1)

	// Advance the splice past the new node so the next sequential insert
	// starts bracketed close to where it will land.
	for i := 0; i < height; i++ {
		splice.prev[i] = n
	}
	return true
}

// raiseListHeight bumps the list-wide max height to at least height, via
// CAS so concurrent inserts racing to introduce the list's first tall node
// never regress it.
func (l *List) raiseListHeight(height int) {
	for {
		cur := l.maxHeight.Load()
		if int(cur) >= height {
			return
		}
		if l.maxHeight.CompareAndSwap(cur, int32(height)) {
			return
		}
	}
}

// validateSplice checks, from the splice's current top level down, whether
// the cached (prev, next) pairs still bracket k and are still live links.
// It returns the number of low levels, starting at 0, that need
// recomputing: everything from the highest failing level down, or 0 if
// every level is still valid. If the splice doesn't yet reach the requested height, every
// level up to height is marked for recompute.
func (l *List) validateSplice(k []byte, splice *Splice, height int) int {
	if splice.height < height {
		for i := splice.height; i < height; i++ {
			splice.prev[i] = l.head
			splice.next[i] = nil
		}
		splice.height = height
		return height
	}

	for level := splice.height - 1; level >= 0; level-- {
		prev, next := splice.prev[level], splice.next[level]
		if (prev != l.head && l.cmp(prev.key, k) >= 0) ||
			(next != nil && l.cmp(next.key, k) <= 0) ||
			prev.loadNext(level) != next {
			return level + 1
		}
	}
	return 0
}

// recomputeSplice rebuilds splice levels [0, height) top-down, walking
// forward on each level from the level above's prev until it brackets k
// (spec §4.1 step 2).
func (l *List) recomputeSplice(k []byte, splice *Splice, height int) {
	for lvl := height - 1; lvl >= 0; lvl-- {
		start := l.head
		if lvl+1 < splice.height {
			start = splice.prev[lvl+1]
		}
		prev, next := l.findSpliceForLevel(k, start, lvl)
		splice.prev[lvl], splice.next[lvl] = prev, next
	}
}

func (l *List) findSpliceForLevel(k []byte, start *node, level int) (prev, next *node) {
	if start == nil {
		start = l.head
	}
	prev = start
	for {
		next = prev.loadNext(level)
		if next == nil || l.cmp(next.key, k) >= 0 {
			return prev, next
		}
		prev = next
	}
}

func (l *List) equalsNode(n *node, k []byte) bool {
	if n == nil || n == l.head {
		return false
	}
	return l.cmp(n.key, k) == 0
}
