package hashtable

import "fmt"

// RobinMap is an open-addressed hash table using 32-slot groups, a
// two-byte-per-slot control record (distance + tag), and Robin-Hood
// displacement on insert with tombstone-less, back-shifting erase
// (robin32). It shares its slot storage and allocator abstraction with Map
// but keeps entries ordered by probe distance instead of using deletion
// markers. Not safe for concurrent use.
type RobinMap[K any, V any] struct {
	hash      HashFunc[K]
	eq        EqualFunc[K]
	allocator Allocator[K, V]

	meta  metaArray32
	slots unsafeSlice[Slot[K, V]]

	capacity      uintptr
	used          int
	growthLeft    int
	maxLoadFactor uint32
}

// RobinOption configures a RobinMap at construction time.
type RobinOption[K any, V any] func(*RobinMap[K, V])

// WithRobinAllocator overrides the Allocator used for a RobinMap's metadata
// and slot arrays.
func WithRobinAllocator[K any, V any](alloc Allocator[K, V]) RobinOption[K, V] {
	return func(m *RobinMap[K, V]) { m.allocator = alloc }
}

// WithRobinMaxLoadFactor sets a RobinMap's initial max load factor. f is
// clamped to [0.2, 0.8], matching Map's WithMaxLoadFactor.
func WithRobinMaxLoadFactor[K any, V any](f float64) RobinOption[K, V] {
	return func(m *RobinMap[K, V]) { m.maxLoadFactor = scaleLoadFactor(clampLoadFactor(f)) }
}

// WithRobinCapacity reserves room for at least n elements at construction
// time.
func WithRobinCapacity[K any, V any](n int) RobinOption[K, V] {
	return func(m *RobinMap[K, V]) {
		if err := m.Reserve(n); err != nil {
			panic(err) // construction-time allocation failure with the default allocator never happens
		}
	}
}

// NewRobin constructs an empty RobinMap. hash and eq are pure functions
// supplied by the caller, with the same contract as Map's New.
func NewRobin[K any, V any](hash HashFunc[K], eq EqualFunc[K], opts ...RobinOption[K, V]) *RobinMap[K, V] {
	m := &RobinMap[K, V]{
		hash:          hash,
		eq:            eq,
		allocator:     defaultAllocator[K, V]{},
		maxLoadFactor: scaleLoadFactor(DefaultMaxLoadFactor),
		meta: metaArray32{
			tags:  makeUnsafeSlice(emptyMeta32Tags),
			dists: makeUnsafeSlice(emptyMeta32Dists),
			mask:  groupWidth32 - 1,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Close releases the RobinMap's backing arrays back to its Allocator. It is
// unnecessary to call Close when using the default allocator.
func (m *RobinMap[K, V]) Close() {
	if m.capacity > 0 {
		m.allocator.FreeSlots(m.slots.Slice(0, m.capacity))
		m.allocator.FreeControl(m.meta.tags.Slice(0, m.capacity+groupWidth32))
		m.allocator.FreeControl(m.meta.dists.Slice(0, m.capacity+groupWidth32))
	}
	*m = RobinMap[K, V]{hash: m.hash, eq: m.eq, allocator: nil, maxLoadFactor: m.maxLoadFactor}
}

// Len returns the number of entries in the table.
func (m *RobinMap[K, V]) Len() int { return m.used }

// Capacity returns the table's current capacity.
func (m *RobinMap[K, V]) Capacity() int { return int(m.capacity) }

// MaxLoadFactor returns the table's current max load factor.
func (m *RobinMap[K, V]) MaxLoadFactor() float64 {
	return float64(m.maxLoadFactor) / loadFactorScale
}

// SetMaxLoadFactor updates the max load factor (clamped to [0.2, 0.8]) and
// rehashes immediately if the current size already exceeds the new
// threshold.
func (m *RobinMap[K, V]) SetMaxLoadFactor(f float64) {
	m.maxLoadFactor = scaleLoadFactor(clampLoadFactor(f))
	if m.capacity > 0 && m.used > threshold(m.capacity, m.maxLoadFactor) {
		if err := m.Rehash(0); err != nil {
			panic(err) // default allocator never fails
		}
	}
}

// isUsed32 reports whether a distance byte denotes an in-use slot: any value
// below the empty/sentinel range.
func isUsed32(d byte) bool { return d <= distMaxSat32 }

// RobinIterator is a forward cursor into a RobinMap, with the same liveness
// contract as Iterator: invalidated by rehash, and by erasing the entry it
// refers to.
type RobinIterator[K any, V any] struct {
	m   *RobinMap[K, V]
	pos uintptr
}

// Valid reports whether the iterator refers to a live entry.
func (it RobinIterator[K, V]) Valid() bool {
	return it.m != nil && it.pos < it.m.capacity
}

// Key returns the iterator's key. Valid must be true.
func (it RobinIterator[K, V]) Key() K { return it.m.slots.At(it.pos).Key }

// Value returns a pointer to the iterator's mapped value. Valid must be
// true.
func (it RobinIterator[K, V]) Value() *V { return &it.m.slots.At(it.pos).Value }

// advance finds the next in-use slot at or after it.pos+1, skipping whole
// empty groups in one matchUsed check rather than testing every slot.
func (it RobinIterator[K, V]) advance() RobinIterator[K, V] {
	m := it.m
	pos := it.pos + 1
	for pos < m.capacity {
		groupStart := pos &^ (groupWidth32 - 1)
		used := m.meta.group(groupStart).matchUsed()
		used &^= (mask32(1) << uint(pos-groupStart)) - 1
		if !used.empty() {
			pos = groupStart + uintptr(used.next())
			break
		}
		pos = groupStart + groupWidth32
	}
	it.pos = pos
	return it
}

func (m *RobinMap[K, V]) begin() RobinIterator[K, V] {
	it := RobinIterator[K, V]{m: m, pos: ^uintptr(0)}
	return it.advance()
}

// End returns the end iterator (never dereferenceable).
func (m *RobinMap[K, V]) End() RobinIterator[K, V] {
	return RobinIterator[K, V]{m: m, pos: m.capacity}
}

// Find returns an iterator to the entry for key, and whether it was found.
// Walks slot-by-slot from key's ideal position, maintaining a running probe
// distance: a stored distance smaller than that running count proves
// absence, since the Robin-Hood invariant guarantees such a
// key would have displaced that slot on insertion.
func (m *RobinMap[K, V]) Find(key K) (RobinIterator[K, V], bool) {
	if m.capacity == 0 {
		return m.End(), false
	}
	h := m.hash(key)
	t := tag32(h)
	i := homeOffset32(h, m.meta.mask)
	d := uint32(0)
	for {
		sd := m.meta.distAt(i)
		if sd == distEmpty32 || uint32(sd) < d {
			return m.End(), false
		}
		if uint32(sd) == d && m.meta.tagAt(i) == t && m.eq(key, m.slots.At(i).Key) {
			return RobinIterator[K, V]{m: m, pos: i}, true
		}
		d++
		i = (i + 1) & m.meta.mask
	}
}

// Contains reports whether key is present.
func (m *RobinMap[K, V]) Contains(key K) bool {
	_, ok := m.Find(key)
	return ok
}

// At returns the value mapped to key, or ErrKeyNotFound if key is absent.
func (m *RobinMap[K, V]) At(key K) (V, error) {
	it, ok := m.Find(key)
	if !ok {
		var zero V
		return zero, fmt.Errorf("%w: %v", ErrKeyNotFound, key)
	}
	return *it.Value(), nil
}

// Ref returns a pointer to the value mapped to key, inserting a zero value
// first if key is absent.
func (m *RobinMap[K, V]) Ref(key K) *V {
	var zero V
	it, _ := m.insert(key, zero, false)
	return it.Value()
}

// Insert inserts (key, value) if key is absent, leaving any existing entry
// untouched.
func (m *RobinMap[K, V]) Insert(key K, value V) (RobinIterator[K, V], bool) {
	return m.insert(key, value, false)
}

// InsertOrAssign inserts (key, value) if key is absent, or overwrites the
// existing value if present.
func (m *RobinMap[K, V]) InsertOrAssign(key K, value V) (RobinIterator[K, V], bool) {
	return m.insert(key, value, true)
}

func (m *RobinMap[K, V]) insert(key K, value V, assign bool) (RobinIterator[K, V], bool) {
	if m.capacity == 0 {
		m.growToAtLeast(DefaultCapacity)
	}
	for {
		it, inserted, ok := m.tryInsert(key, value, assign)
		if ok {
			return it, inserted
		}
		m.rehash()
	}
}

// tryInsert attempts one Robin-Hood insertion pass at the table's current
// capacity. ok is false when the probe distance would saturate past
// distMaxSat32 or growthLeft hit zero before an empty slot was reached,
// telling the caller to rehash and retry.
//
// The probing entry starts as (key, value); once it displaces a poorer
// occupant (one whose stored distance is smaller than the probe's running
// distance), the displaced entry is carried onward in its place and the
// original entry is considered placed for good: no further key comparisons
// are needed, since the Robin-Hood invariant already proved the original
// key absent up to that point.
func (m *RobinMap[K, V]) tryInsert(key K, value V, assign bool) (it RobinIterator[K, V], inserted bool, ok bool) {
	h := m.hash(key)
	curKey, curValue, curTag := key, value, tag32(h)
	i := homeOffset32(h, m.meta.mask)
	d := uint32(0)
	displaced := false
	firstPos := i

	for {
		if d > distMaxSat32 {
			return it, false, false
		}
		sd := m.meta.distAt(i)
		switch {
		case sd == distEmpty32:
			if m.growthLeft == 0 {
				return it, false, false
			}
			m.growthLeft--
			if !displaced {
				firstPos = i
			}
			m.meta.setSlot(i, curTag, byte(d))
			*m.slots.At(i) = Slot[K, V]{Key: curKey, Value: curValue}
			m.used++
			return RobinIterator[K, V]{m: m, pos: firstPos}, true, true

		case !displaced && isUsed32(sd) && uint32(sd) == d && m.meta.tagAt(i) == curTag && m.eq(curKey, m.slots.At(i).Key):
			if assign {
				m.slots.At(i).Value = curValue
			}
			return RobinIterator[K, V]{m: m, pos: i}, false, true

		case uint32(sd) < d:
			if !displaced && m.growthLeft == 0 {
				// key is now known absent and will need an empty slot: fail
				// before moving any entry, so the retry starts from an intact table.
				return it, false, false
			}
			evicted := *m.slots.At(i)
			evictedTag := m.meta.tagAt(i)
			if !displaced {
				firstPos = i
			}
			m.meta.setSlot(i, curTag, byte(d))
			*m.slots.At(i) = Slot[K, V]{Key: curKey, Value: curValue}
			curKey, curValue, curTag = evicted.Key, evicted.Value, evictedTag
			d = uint32(sd) + 1
			displaced = true

		default:
			d++
		}
		i = (i + 1) & m.meta.mask
	}
}

// uncheckedPut inserts an entry known not to already be present, used during
// rehashing. Unlike flat16's uncheckedPut, it must still perform Robin-Hood
// displacement: the ordering invariant has to hold over every entry,
// including ones moved during a resize.
func (m *RobinMap[K, V]) uncheckedPut(h uint64, key K, value V) {
	curKey, curValue, curTag := key, value, tag32(h)
	i := homeOffset32(h, m.meta.mask)
	d := uint32(0)
	for {
		sd := m.meta.distAt(i)
		if sd == distEmpty32 {
			m.meta.setSlot(i, curTag, byte(d))
			*m.slots.At(i) = Slot[K, V]{Key: curKey, Value: curValue}
			return
		}
		if uint32(sd) < d {
			evicted := *m.slots.At(i)
			evictedTag := m.meta.tagAt(i)
			m.meta.setSlot(i, curTag, byte(d))
			*m.slots.At(i) = Slot[K, V]{Key: curKey, Value: curValue}
			curKey, curValue, curTag = evicted.Key, evicted.Value, evictedTag
			d = uint32(sd) + 1
			i = (i + 1) & m.meta.mask
			continue
		}
		d++
		i = (i + 1) & m.meta.mask
	}
}

// Erase removes key if present, returning the number of entries removed (0
// or 1).
func (m *RobinMap[K, V]) Erase(key K) int {
	it, ok := m.Find(key)
	if !ok {
		return 0
	}
	m.EraseIterator(it)
	return 1
}

// EraseIterator removes the entry it refers to and returns an iterator to
// the next live entry. Back-shift deletion: the freed slot
// is filled by its successor one at a time, each one's distance decremented,
// until an empty slot or one already at distance 0 is reached — no
// tombstone is ever written.
//
// When the back-shift loop moves at least one entry, the slot at i ends up
// holding what used to be a later, still-live entry rather than staying
// empty, so the next iterator position is i itself, not i+1: building the
// returned iterator there directly (instead of calling advance() from it,
// which only ever looks at pos+1 onward) is what keeps a caller that erases
// while iterating from silently skipping that entry.
func (m *RobinMap[K, V]) EraseIterator(it RobinIterator[K, V]) RobinIterator[K, V] {
	i := it.pos
	*m.slots.At(i) = Slot[K, V]{}
	m.meta.setDist(i, distEmpty32)
	m.used--
	m.growthLeft++

	j := i
	for {
		next := (j + 1) & m.meta.mask
		sd := m.meta.distAt(next)
		if sd == distEmpty32 || sd == 0 {
			break
		}
		*m.slots.At(j) = *m.slots.At(next)
		m.meta.setSlot(j, m.meta.tagAt(next), sd-1)
		*m.slots.At(next) = Slot[K, V]{}
		m.meta.setDist(next, distEmpty32)
		j = next
	}
	if j != i {
		return RobinIterator[K, V]{m: m, pos: i}
	}
	return it.advance()
}

// All is a range-over-func iterator over every (key, value) pair, in
// storage order.
func (m *RobinMap[K, V]) All(yield func(key K, value V) bool) {
	for it := m.begin(); it.Valid(); it = it.advance() {
		if !yield(it.Key(), *it.Value()) {
			return
		}
	}
}

// Clear removes all entries. Capacity is retained.
func (m *RobinMap[K, V]) Clear() {
	for i := uintptr(0); i < m.capacity+groupWidth32; i++ {
		*m.meta.dists.At(i) = distEmpty32
	}
	if m.capacity > 0 {
		*m.meta.dists.At(m.capacity + groupWidth32 - 1) = distSentinel32
	}
	for i := uintptr(0); i < m.capacity; i++ {
		*m.slots.At(i) = Slot[K, V]{}
	}
	m.used = 0
	m.growthLeft = threshold(m.capacity, m.maxLoadFactor)
}

// Reserve ensures the table's capacity is at least ceil(n / maxLoadFactor),
// growing (never shrinking) if necessary.
func (m *RobinMap[K, V]) Reserve(n int) error {
	if n <= 0 {
		return nil
	}
	need := uintptr((uint64(n)*loadFactorScale + uint64(m.maxLoadFactor) - 1) / uint64(m.maxLoadFactor))
	target := RoundUpPow2(uint64(need))
	if target < groupWidth32 {
		target = groupWidth32
	}
	if uintptr(target) <= m.capacity {
		return nil
	}
	return m.resizeTo(uintptr(target))
}

// Rehash rebuilds the table with the smallest power-of-two capacity that is
// at least both n and the minimum required to hold the current size.
func (m *RobinMap[K, V]) Rehash(n int) error {
	minForSize := uintptr(0)
	if m.maxLoadFactor > 0 {
		minForSize = uintptr((uint64(m.used)*loadFactorScale + uint64(m.maxLoadFactor) - 1) / uint64(m.maxLoadFactor))
	}
	target := RoundUpPow2(uint64(maxUintptr(uintptr(n), minForSize, groupWidth32)))
	return m.resizeTo(uintptr(target))
}

func (m *RobinMap[K, V]) growToAtLeast(capacity uintptr) {
	if err := m.resizeTo(capacity); err != nil {
		panic(err) // default allocator never fails
	}
}

// rehash is robin32's automatic-growth path. Unlike flat16 there is no
// tombstone population to reclaim in place (erase always frees its slot via
// back-shift), so growth always doubles capacity.
func (m *RobinMap[K, V]) rehash() {
	m.growToAtLeast(m.capacity * 2)
}

// resizeTo reallocates the table at the given capacity and move-inserts
// every live entry, retaining the old arrays until the new ones are fully
// populated so an allocation failure midway leaves the table unchanged.
func (m *RobinMap[K, V]) resizeTo(capacity uintptr) error {
	oldMeta, oldSlots, oldCapacity := m.meta, m.slots, m.capacity

	slotAlloc := m.allocator.AllocSlots(int(capacity))
	if uintptr(len(slotAlloc)) < capacity {
		return ErrAllocation
	}
	tagAlloc := m.allocator.AllocControl(int(capacity + groupWidth32))
	if uintptr(len(tagAlloc)) < capacity+groupWidth32 {
		return ErrAllocation
	}
	distAlloc := m.allocator.AllocControl(int(capacity + groupWidth32))
	if uintptr(len(distAlloc)) < capacity+groupWidth32 {
		return ErrAllocation
	}

	m.slots = makeUnsafeSlice(slotAlloc)
	m.meta = newMetaArray32(tagAlloc, distAlloc, capacity)
	m.capacity = capacity
	m.growthLeft = threshold(capacity, m.maxLoadFactor) - m.used

	for i := uintptr(0); i < oldCapacity; i++ {
		if !isUsed32(oldMeta.distAt(i)) {
			continue
		}
		slot := oldSlots.At(i)
		h := m.hash(slot.Key)
		m.uncheckedPut(h, slot.Key, slot.Value)
	}

	if oldCapacity > 0 {
		m.allocator.FreeSlots(oldSlots.Slice(0, oldCapacity))
		m.allocator.FreeControl(oldMeta.tags.Slice(0, oldCapacity+groupWidth32))
		m.allocator.FreeControl(oldMeta.dists.Slice(0, oldCapacity+groupWidth32))
	}
	return nil
}
