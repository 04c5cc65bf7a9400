package hashtable

// metaArray32 is the robin32 metadata array: two parallel slices, each
// capacity+groupWidth32 bytes long, holding tag and distance bytes per slot
// (see group32.go for the encoding). Both arrays share the same mirrored-tail
// layout as flat16's ctrlArray16, generalized to groupWidth32.
type metaArray32 struct {
	tags  unsafeSlice[byte]
	dists unsafeSlice[byte]
	mask  uintptr
}

var emptyMeta32Dists = func() []byte {
	v := make([]byte, groupWidth32)
	for i := range v {
		v[i] = distEmpty32
	}
	return v
}()

var emptyMeta32Tags = make([]byte, groupWidth32)

// newMetaArray32 initializes both arrays: every distance byte starts empty,
// except the very last byte of the array (never a mirror target, by the
// same argument as flat16's tail byte — see meta16.go), which is set to
// distSentinel32. Unlike flat16, robin32's encoding has a spare bit pattern
// for this, so the sentinel is a real, distinguishable three-state value
// here; RobinMap's Iterator still bounds itself by index rather than
// scanning for it, for the same reason Map's does.
func newMetaArray32(tagAlloc, distAlloc []byte, capacity uintptr) metaArray32 {
	for i := range distAlloc {
		distAlloc[i] = distEmpty32
	}
	distAlloc[len(distAlloc)-1] = distSentinel32
	return metaArray32{
		tags:  makeUnsafeSlice(tagAlloc),
		dists: makeUnsafeSlice(distAlloc),
		mask:  capacity - 1,
	}
}

func (m metaArray32) distAt(i uintptr) byte { return *m.dists.At(i) }
func (m metaArray32) tagAt(i uintptr) byte  { return *m.tags.At(i) }

func (m metaArray32) group(offset uintptr) group32 {
	return makeGroup32(m.tags, m.dists, offset)
}

func (m metaArray32) mirrorOf(i uintptr) uintptr {
	return ((i - (groupWidth32 - 1)) & m.mask) + (groupWidth32 - 1)
}

// setSlot writes both metadata bytes at index i and mirrors the write.
func (m metaArray32) setSlot(i uintptr, tag, dist byte) {
	*m.tags.At(i) = tag
	*m.dists.At(i) = dist
	j := m.mirrorOf(i)
	*m.tags.At(j) = tag
	*m.dists.At(j) = dist
}

// setDist writes only the distance byte at index i and its mirror, used by
// erase's back-shift where the tag byte is unchanged.
func (m metaArray32) setDist(i uintptr, dist byte) {
	*m.dists.At(i) = dist
	*m.dists.At(m.mirrorOf(i)) = dist
}

func (m metaArray32) capacity() uintptr { return m.mask + 1 }
