// Package hashtable implements two open-addressed, in-memory hash table
// variants over an arbitrary hashable key and value type:
//
//   - Map: 16-slot clusters with a byte-per-slot control tag and tombstone
//     deletion ("flat16" in the design notes).
//   - RobinMap: 32-slot groups with a two-byte-per-slot control record and
//     Robin-Hood displacement, with tombstone-less, back-shifting deletion
//     ("robin32").
//
// Both are inspired by Google's Swiss Tables design
// (https://abseil.io/about/design/swisstables) as implemented by
// github.com/cockroachdb/swiss, generalized with a second, Robin-Hood probing
// variant. Neither type is goroutine-safe: a table is single-owner, and no
// operation may run concurrently with a mutation on the same instance.
package hashtable

import (
	"fmt"
	"math/bits"
)

// DefaultCapacity is the capacity a table starts with once its first entry
// is inserted, absent a WithCapacity option. It is large enough to satisfy
// both variants' "capacity >= group width" invariant (robin32's group width
// is exactly 32) while still being a sensible idle-table size.
const DefaultCapacity = 32

// DefaultMaxLoadFactor is the load factor new tables use unless overridden
// with WithMaxLoadFactor.
const DefaultMaxLoadFactor = 0.75

const loadFactorScale = 1 << 16 // integer amplification for the load factor, scaled to avoid floating point in the hot path

func scaleLoadFactor(f float64) uint32 {
	return uint32(f * loadFactorScale)
}

// threshold computes floor(capacity * scaledFactor / 2^16) without floating
// point in the hot path.
func threshold(capacity uintptr, scaledFactor uint32) int {
	return int((uint64(capacity) * uint64(scaledFactor)) >> 16)
}

// Map is an open-addressed hash table using 16-slot clusters and a
// byte-per-slot control tag (flat16). It is not safe for concurrent use.
type Map[K any, V any] struct {
	hash      HashFunc[K]
	eq        EqualFunc[K]
	allocator Allocator[K, V]

	ctrls ctrlArray16
	slots unsafeSlice[Slot[K, V]]

	capacity      uintptr
	used          int
	growthLeft    int
	maxLoadFactor uint32
}

// Option configures a Map at construction time.
type Option[K any, V any] func(*Map[K, V])

// WithAllocator overrides the Allocator used for a Map's control and slot
// arrays.
func WithAllocator[K any, V any](alloc Allocator[K, V]) Option[K, V] {
	return func(m *Map[K, V]) { m.allocator = alloc }
}

// WithMaxLoadFactor sets a Map's initial max load factor. f must satisfy
// 0.2 <= f <= 0.8; an out-of-range value is silently clamped into range,
// the same precondition Insert relies on.
func WithMaxLoadFactor[K any, V any](f float64) Option[K, V] {
	return func(m *Map[K, V]) { m.maxLoadFactor = scaleLoadFactor(clampLoadFactor(f)) }
}

// WithCapacity reserves room for at least n elements at construction time.
func WithCapacity[K any, V any](n int) Option[K, V] {
	return func(m *Map[K, V]) {
		if err := m.Reserve(n); err != nil {
			panic(err) // construction-time allocation failure with the default allocator never happens
		}
	}
}

func clampLoadFactor(f float64) float64 {
	switch {
	case f < 0.2:
		return 0.2
	case f > 0.8:
		return 0.8
	default:
		return f
	}
}

// New constructs an empty Map. hash and eq are pure functions supplied by
// the caller: hash must return the same value for equal keys
// for the table's lifetime, and eq must be a proper equivalence relation.
func New[K any, V any](hash HashFunc[K], eq EqualFunc[K], opts ...Option[K, V]) *Map[K, V] {
	m := &Map[K, V]{
		hash:          hash,
		eq:            eq,
		allocator:     defaultAllocator[K, V]{},
		maxLoadFactor: scaleLoadFactor(DefaultMaxLoadFactor),
		ctrls:         ctrlArray16{data: makeUnsafeSlice(emptyCtrls16), mask: groupWidth16 - 1},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Close releases the Map's backing arrays back to its Allocator. It is
// unnecessary to call Close when using the default allocator.
func (m *Map[K, V]) Close() {
	if m.capacity > 0 {
		m.allocator.FreeSlots(m.slots.Slice(0, m.capacity))
		m.allocator.FreeControl(m.ctrls.data.Slice(0, m.capacity+groupWidth16))
	}
	*m = Map[K, V]{hash: m.hash, eq: m.eq, allocator: nil, maxLoadFactor: m.maxLoadFactor}
}

// Len returns the number of entries in the table.
func (m *Map[K, V]) Len() int { return m.used }

// Capacity returns the table's current capacity (the number of real slots,
// excluding the metadata mirror and sentinel).
func (m *Map[K, V]) Capacity() int { return int(m.capacity) }

// MaxLoadFactor returns the table's current max load factor.
func (m *Map[K, V]) MaxLoadFactor() float64 {
	return float64(m.maxLoadFactor) / loadFactorScale
}

// SetMaxLoadFactor updates the max load factor (clamped to [0.2, 0.8]) and
// rehashes immediately if the current size already exceeds the new
// threshold.
func (m *Map[K, V]) SetMaxLoadFactor(f float64) {
	m.maxLoadFactor = scaleLoadFactor(clampLoadFactor(f))
	if m.capacity > 0 && m.used > threshold(m.capacity, m.maxLoadFactor) {
		if err := m.Rehash(0); err != nil {
			panic(err) // default allocator never fails
		}
	}
}

// Iterator is a forward cursor into a Map. It is invalidated by any rehash
// and by erasing the entry it refers to; there is no generation counter, so
// liveness across mutation is the caller's responsibility.
type Iterator[K any, V any] struct {
	m   *Map[K, V]
	pos uintptr
}

// Valid reports whether the iterator refers to a live entry.
func (it Iterator[K, V]) Valid() bool {
	return it.m != nil && it.pos < it.m.capacity
}

// Key returns the iterator's key. Valid must be true.
func (it Iterator[K, V]) Key() K { return it.m.slots.At(it.pos).Key }

// Value returns a pointer to the iterator's mapped value. Valid must be
// true. The pointer is invalidated by the same events that invalidate the
// iterator itself.
func (it Iterator[K, V]) Value() *V { return &it.m.slots.At(it.pos).Value }

func (it Iterator[K, V]) advance() Iterator[K, V] {
	for it.pos++; it.pos < it.m.capacity; it.pos++ {
		if !isUnused16(it.m.ctrls.at(it.pos)) {
			break
		}
	}
	return it
}

func isUnused16(c byte) bool { return c&0x80 != 0 }

// begin returns an iterator to the first live entry, or the end iterator if
// the table is empty.
func (m *Map[K, V]) begin() Iterator[K, V] {
	it := Iterator[K, V]{m: m, pos: ^uintptr(0)}
	return it.advance()
}

// End returns the end iterator (never dereferenceable).
func (m *Map[K, V]) End() Iterator[K, V] { return Iterator[K, V]{m: m, pos: m.capacity} }

// Find returns an iterator to the entry for key, and whether it was found.
func (m *Map[K, V]) Find(key K) (Iterator[K, V], bool) {
	if m.capacity == 0 {
		return m.End(), false
	}
	h := m.hash(key)
	seq := makeProbeSeq16(bucketIndex16(h), m.ctrls.mask)
	tag := tag16(h)
	for {
		g := m.ctrls.group(seq.offset)
		match := g.matchTag(tag)
		for !match.empty() {
			bit := match.next()
			i := seq.offsetAt(bit)
			if m.eq(key, m.slots.At(i).Key) {
				return Iterator[K, V]{m: m, pos: i}, true
			}
			match = match.clearLowest()
		}
		if !g.matchEmpty().empty() {
			return m.End(), false
		}
		seq = seq.next()
	}
}

// Contains reports whether key is present.
func (m *Map[K, V]) Contains(key K) bool {
	_, ok := m.Find(key)
	return ok
}

// At returns the value mapped to key, or ErrKeyNotFound if key is absent.
func (m *Map[K, V]) At(key K) (V, error) {
	it, ok := m.Find(key)
	if !ok {
		var zero V
		return zero, fmt.Errorf("%w: %v", ErrKeyNotFound, key)
	}
	return *it.Value(), nil
}

// Ref returns a pointer to the value mapped to key, inserting a zero value
// first if key is absent. This is the operator[] equivalent: a missing key
// gets a fresh zero-valued entry and may trigger a rehash.
func (m *Map[K, V]) Ref(key K) *V {
	var zero V
	it, _ := m.insert(key, zero, false)
	return it.Value()
}

// Insert inserts (key, value) if key is absent, leaving any existing entry
// untouched. It returns an iterator to the entry and whether an insertion
// happened.
func (m *Map[K, V]) Insert(key K, value V) (Iterator[K, V], bool) {
	return m.insert(key, value, false)
}

// InsertOrAssign inserts (key, value) if key is absent, or overwrites the
// existing value if present. It returns an iterator to the entry and
// whether an insertion (as opposed to an assignment) happened.
func (m *Map[K, V]) InsertOrAssign(key K, value V) (Iterator[K, V], bool) {
	return m.insert(key, value, true)
}

func (m *Map[K, V]) insert(key K, value V, assign bool) (Iterator[K, V], bool) {
	if m.capacity == 0 {
		m.growToAtLeast(DefaultCapacity)
	}
	h := m.hash(key)
	seq := makeProbeSeq16(bucketIndex16(h), m.ctrls.mask)
	tag := tag16(h)
	firstDeleted, haveDeleted := uintptr(0), false
	for {
		g := m.ctrls.group(seq.offset)
		match := g.matchTag(tag)
		for !match.empty() {
			bit := match.next()
			i := seq.offsetAt(bit)
			if m.eq(key, m.slots.At(i).Key) {
				if assign {
					m.slots.At(i).Value = value
				}
				return Iterator[K, V]{m: m, pos: i}, false
			}
			match = match.clearLowest()
		}

		if deleted := g.matchDeleted(); !haveDeleted && !deleted.empty() {
			firstDeleted, haveDeleted = seq.offsetAt(deleted.next()), true
		}
		// Only an empty slot ends the probe and proves key absent; the first
		// deleted slot seen on the way is reused in preference to it.
		empty := g.matchEmpty()
		if !empty.empty() {
			if m.growthLeft == 0 {
				m.rehash()
				return m.insert(key, value, assign)
			}
			var i uintptr
			if haveDeleted {
				i = firstDeleted
			} else {
				i = seq.offsetAt(empty.next())
				m.growthLeft--
			}
			slot := m.slots.At(i)
			slot.Key = key
			slot.Value = value
			m.ctrls.setCtrl(i, tag)
			m.used++
			return Iterator[K, V]{m: m, pos: i}, true
		}
		seq = seq.next()
	}
}

// uncheckedPut inserts an entry known not to already be present, used during
// rehashing. It bypasses key comparison.
func (m *Map[K, V]) uncheckedPut(h uint64, key K, value V) {
	seq := makeProbeSeq16(bucketIndex16(h), m.ctrls.mask)
	tag := tag16(h)
	for {
		g := m.ctrls.group(seq.offset)
		match := g.matchEmpty()
		if !match.empty() {
			i := seq.offsetAt(match.next())
			slot := m.slots.At(i)
			slot.Key = key
			slot.Value = value
			m.ctrls.setCtrl(i, tag)
			return
		}
		seq = seq.next()
	}
}

// Erase removes key if present, returning the number of entries removed (0
// or 1).
func (m *Map[K, V]) Erase(key K) int {
	it, ok := m.Find(key)
	if !ok {
		return 0
	}
	m.EraseIterator(it)
	return 1
}

// EraseIterator removes the entry it refers to (it must be dereferenceable)
// and returns an iterator to the next live entry.
func (m *Map[K, V]) EraseIterator(it Iterator[K, V]) Iterator[K, V] {
	i := it.pos
	var zero Slot[K, V]
	slot := m.slots.At(i)
	wasNeverFull := m.wasNeverFull(i)
	*slot = zero
	if wasNeverFull {
		m.ctrls.setCtrl(i, ctrlEmpty16)
	} else {
		m.ctrls.setCtrl(i, ctrlDeleted16)
	}
	m.used--
	return it.advance()
}

// wasNeverFull reports whether slot i was never part of a completely full
// cluster, which lets erase mark it empty (rather than a tombstone) without
// breaking a probe sequence that might otherwise have terminated early.
// Grounded on cockroachdb/swiss's bucket.wasNeverFull.
func (m *Map[K, V]) wasNeverFull(i uintptr) bool {
	if m.capacity <= groupWidth16 {
		return true
	}
	indexBefore := (i - groupWidth16) & m.ctrls.mask
	emptyAfter := m.ctrls.group(i).matchEmpty()
	emptyBefore := m.ctrls.group(indexBefore).matchEmpty()
	if emptyAfter.empty() || emptyBefore.empty() {
		return false
	}
	afterDist := bits.TrailingZeros16(uint16(emptyAfter))
	beforeDist := bits.LeadingZeros16(uint16(emptyBefore))
	return (afterDist + beforeDist) < groupWidth16
}

// All is a range-over-func iterator over every (key, value) pair, in
// storage order. Grounded on cockroachdb/swiss's Map.All.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	for it := m.begin(); it.Valid(); it = it.advance() {
		if !yield(it.Key(), *it.Value()) {
			return
		}
	}
}

// Clear removes all entries. Capacity is retained.
func (m *Map[K, V]) Clear() {
	for i := uintptr(0); i < m.capacity+groupWidth16; i++ {
		*m.ctrls.data.At(i) = ctrlEmpty16
	}
	for i := uintptr(0); i < m.capacity; i++ {
		*m.slots.At(i) = Slot[K, V]{}
	}
	m.used = 0
	m.growthLeft = threshold(m.capacity, m.maxLoadFactor)
}

// Reserve ensures the table's capacity is at least ceil(n / maxLoadFactor),
// growing (never shrinking) if necessary.
func (m *Map[K, V]) Reserve(n int) error {
	if n <= 0 {
		return nil
	}
	need := uintptr((uint64(n)*loadFactorScale + uint64(m.maxLoadFactor) - 1) / uint64(m.maxLoadFactor))
	target := RoundUpPow2(uint64(need))
	if target < groupWidth16 {
		target = groupWidth16
	}
	if uintptr(target) <= m.capacity {
		return nil
	}
	return m.resizeTo(uintptr(target))
}

// Rehash rebuilds the table with the smallest power-of-two capacity that is
// at least both n and the minimum required to hold the current size.
func (m *Map[K, V]) Rehash(n int) error {
	minForSize := uintptr(0)
	if m.maxLoadFactor > 0 {
		minForSize = uintptr((uint64(m.used)*loadFactorScale + uint64(m.maxLoadFactor) - 1) / uint64(m.maxLoadFactor))
	}
	target := RoundUpPow2(uint64(maxUintptr(uintptr(n), minForSize, groupWidth16)))
	return m.resizeTo(uintptr(target))
}

func maxUintptr(vs ...uintptr) uintptr {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func (m *Map[K, V]) growToAtLeast(capacity uintptr) {
	if err := m.resizeTo(capacity); err != nil {
		panic(err) // default allocator never fails
	}
}

// rehash is the automatic-growth path invoked from insert: it rehashes in
// place if that can recover at least a third of capacity from tombstones,
// otherwise doubles the table. Grounded on cockroachdb/swiss's bucket.rehash.
func (m *Map[K, V]) rehash() {
	recoverable := threshold(m.capacity, m.maxLoadFactor) - m.used
	if m.capacity > groupWidth16 && recoverable >= int(m.capacity/3) {
		m.rehashInPlace()
		return
	}
	m.growToAtLeast(m.capacity * 2)
}

// resizeTo reallocates the table at the given capacity and move-inserts
// every live entry. The old arrays are retained until the new ones are
// fully populated, so an allocation failure midway leaves the table
// unchanged.
func (m *Map[K, V]) resizeTo(capacity uintptr) error {
	oldCtrls, oldSlots, oldCapacity := m.ctrls, m.slots, m.capacity

	slotAlloc := m.allocator.AllocSlots(int(capacity))
	if uintptr(len(slotAlloc)) < capacity {
		return ErrAllocation
	}
	ctrlAlloc := m.allocator.AllocControl(int(capacity + groupWidth16))
	if uintptr(len(ctrlAlloc)) < capacity+groupWidth16 {
		return ErrAllocation
	}

	m.slots = makeUnsafeSlice(slotAlloc)
	m.ctrls = newCtrlArray16(ctrlAlloc, capacity)
	m.capacity = capacity
	m.growthLeft = threshold(capacity, m.maxLoadFactor) - m.used

	for i := uintptr(0); i < oldCapacity; i++ {
		c := oldCtrls.at(i)
		if isUnused16(c) {
			continue
		}
		slot := oldSlots.At(i)
		h := m.hash(slot.Key)
		m.uncheckedPut(h, slot.Key, slot.Value)
	}
	// The move-inserts above each decrement nothing from growthLeft (they go
	// through uncheckedPut, not insert), so growthLeft already reflects
	// threshold-used correctly without a second adjustment.

	if oldCapacity > 0 {
		m.allocator.FreeSlots(oldSlots.Slice(0, oldCapacity))
		m.allocator.FreeControl(oldCtrls.data.Slice(0, oldCapacity+groupWidth16))
	}
	return nil
}

// rehashInPlace drops tombstones without changing capacity. It follows
// Abseil/cockroachdb/swiss's first pass unchanged: convert deleted bytes to
// empty and full bytes to deleted (a marker for "previously full"). The
// second pass then differs from that library's in-place shuffle: each
// deleted-marked slot is pulled out and re-seated via uncheckedPut, the same
// placement a fresh insert would use, rather than shuffled directly into its
// final resting place.
func (m *Map[K, V]) rehashInPlace() {
	for i := uintptr(0); i < m.capacity; i += groupWidth16 {
		convertNonFullToEmptyAndFullToDeleted16(m.ctrls, i)
	}
	for i, n := uintptr(0), uintptr(groupWidth16-1); i < n; i++ {
		*m.ctrls.data.At(((i-(groupWidth16-1))&m.ctrls.mask)+(groupWidth16-1)) = *m.ctrls.data.At(i)
	}

	// Every slot marked deleted above held a live entry before this pass and
	// needs a fresh home along its probe sequence (its own group may no
	// longer have room once neighbors were converted to empty). Pull each
	// one out and let uncheckedPut re-seat it exactly as a fresh insert
	// would: simpler and safer than shuffling in place, at the cost of
	// possibly moving entries that could have stayed put.
	for i := uintptr(0); i < m.capacity; i++ {
		if m.ctrls.at(i) != ctrlDeleted16 {
			continue
		}
		slot := *m.slots.At(i)
		*m.slots.At(i) = Slot[K, V]{}
		m.ctrls.setCtrl(i, ctrlEmpty16)
		h := m.hash(slot.Key)
		m.uncheckedPut(h, slot.Key, slot.Value)
	}
	m.growthLeft = threshold(m.capacity, m.maxLoadFactor) - m.used
}

// convertNonFullToEmptyAndFullToDeleted16 is the SWAR bit-twiddle from
// cockroachdb/swiss's ctrl.convertNonFullToEmptyAndFullToDeleted, adapted to
// flat16's empty=0xFF/deleted=0x80 encoding (the inverse of that library's
// empty=0x80/deleted=0xFE encoding, so the final low-bit clear becomes a
// low-bit set).
func convertNonFullToEmptyAndFullToDeleted16(c ctrlArray16, offset uintptr) {
	// (^v + (v>>7)) yields 0x80 per lane where the lane was already unused
	// (empty) and 0xFF per lane where it was full, the same two-valued
	// intermediate that library's version produces. It then clears
	// bit 0 to select its own empty(0x80)/deleted(0xFE) constants; our
	// encoding assigns the opposite bit patterns to empty(0xFF)/deleted
	// (0x80), so the low 7 bits are flipped (XOR) instead of cleared.
	const lowSeven = bitsetLSB64 * 0x7F
	g := c.group(offset)
	v := *g.lo & bitsetMSB64
	*g.lo = (^v + (v >> 7)) ^ lowSeven
	v = *g.hi & bitsetMSB64
	*g.hi = (^v + (v >> 7)) ^ lowSeven
}
