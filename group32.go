package hashtable

import "unsafe"

// robin32 uses 32-slot groups with two parallel per-slot metadata bytes: a
// distance byte and a tag byte.
// Distance encoding:
//
//	0x00..0xFD: in-use, saturated probe distance from the slot's ideal group
//	0xFE:       end-of-table sentinel
//	0xFF:       empty
//
// The two arrays are stored struct-of-arrays rather than interleaved: this
// keeps each match_* operation a plain per-array SWAR/scalar scan, the same
// shape as flat16's single-array tricks, while one group still names a
// single aligned 32-byte span of each array (DESIGN.md's Open Question
// resolution for robin32's control record layout).
const (
	groupWidth32 = 32

	distEmpty32    = 0xFF
	distSentinel32 = 0xFE
	distMaxSat32   = 0xFD // largest representable in-use distance
)

// mask32 is a compact bitmask over a 32-slot group: bit i set means slot i
// satisfies whatever predicate produced the mask.
type mask32 uint32

func (m mask32) next() uint          { return LowestSet(uint64(m)) }
func (m mask32) clearLowest() mask32 { return mask32(ClearLowest(uint64(m))) }
func (m mask32) empty() bool         { return m == 0 }

// group32 is a view over one 32-slot window of the parallel tag/distance
// arrays, as four 8-byte words each (the scalar stand-in for two 256-bit
// SIMD loads).
type group32 struct {
	tag  [4]*uint64
	dist [4]*uint64
}

func makeGroup32(tags, dists unsafeSlice[byte], offset uintptr) group32 {
	var g group32
	for i := 0; i < 4; i++ {
		w := uintptr(i) * 8
		g.tag[i] = (*uint64)(unsafe.Add(tags.ptr, offset+w))
		g.dist[i] = (*uint64)(unsafe.Add(dists.ptr, offset+w))
	}
	return g
}

// packWords32 folds four 8-lane SWAR match words (0x80 per matching lane)
// into one 32-bit compact bitmask, low bit = lowest slot index. Reuses
// group16's packMSB8 lane-packing primitive four times over.
func packWords32(words [4]uint64) mask32 {
	var m mask32
	for i, w := range words {
		m |= mask32(packMSB8(w)) << uint(8*i)
	}
	return m
}

func (g group32) matchTag(t byte) mask32 {
	var eq [4]uint64
	for i := range eq {
		eq[i] = swarByteEq(*g.tag[i], t)
	}
	return packWords32(eq)
}

func (g group32) matchEmpty() mask32 {
	var eq [4]uint64
	for i := range eq {
		eq[i] = swarByteEq(*g.dist[i], distEmpty32)
	}
	return packWords32(eq)
}

func (g group32) matchSentinel() mask32 {
	var eq [4]uint64
	for i := range eq {
		eq[i] = swarByteEq(*g.dist[i], distSentinel32)
	}
	return packWords32(eq)
}

// matchUsed returns the slots with distance < 0xFE: every byte value except
// empty(0xFF) and sentinel(0xFE) is an in-use distance, so this is the
// complement of the other two masks.
func (g group32) matchUsed() mask32 {
	return ^(g.matchEmpty() | g.matchSentinel())
}

// matchTagAndEmpty returns, in one pass, the tag-hit slots (excluding empty
// slots, whose tag byte is never meaningful) and the empty slots.
func (g group32) matchTagAndEmpty(t byte) (tagHits, emptyHits mask32) {
	emptyHits = g.matchEmpty()
	tagHits = g.matchTag(t) &^ emptyHits
	return
}

// distAt and tagAt read a single lane's byte by index, used by the
// distance-floor scan below where the per-lane floor varies and a uniform
// SWAR comparison no longer applies.
func (g group32) distAt(i uint) byte {
	return byte(*g.dist[i/8] >> (8 * (i % 8)))
}

func (g group32) tagAt(i uint) byte {
	return byte(*g.tag[i/8] >> (8 * (i % 8)))
}

// matchTagWithDistanceFloor returns the tag-hit slots and an "empty-or-poorer"
// mask: poorer meaning a slot's stored distance is less than dBase+i, the
// distance this key would hold if it were placed in that slot. This is the
// Robin-Hood short-circuit: reaching a poorer slot (or an empty one) before a
// tag-and-key match proves the key absent, since the invariant forbids a
// richer key from sitting in front of a poorer one along the same probe
// path.
//
// This is a scalar loop rather than a SWAR trick: the floor differs per
// lane, so there is no single-word comparison constant to fold all 32 lanes
// against at once.
func (g group32) matchTagWithDistanceFloor(t byte, dBase uint32) (tagHits, poorerOrEmpty mask32) {
	for i := uint(0); i < groupWidth32; i++ {
		d := g.distAt(i)
		if d == distEmpty32 || uint32(d) < dBase+uint32(i) {
			poorerOrEmpty |= mask32(1) << i
			continue
		}
		if d != distSentinel32 && g.tagAt(i) == t {
			tagHits |= mask32(1) << i
		}
	}
	return
}
