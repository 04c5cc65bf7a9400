package hashtable

// ctrlArray16 is the flat16 metadata array: capacity+groupWidth16 control
// bytes, where indices [capacity, capacity+groupWidth16-2] mirror canonical
// indices [0, groupWidth16-2] (written together by setCtrl). This lets every
// probe load a full 16-byte cluster without a conditional for wrap-around.
// The one remaining byte, at the very end of
// the array, is never a mirror target and is left at ctrlEmpty16 for the
// table's lifetime; nothing reads it, since Iterator bounds itself by index
// rather than by scanning for a sentinel byte (see newCtrlArray16).
type ctrlArray16 struct {
	data unsafeSlice[byte]
	mask uintptr
}

var emptyCtrls16 = func() []byte {
	v := make([]byte, groupWidth16)
	for i := range v {
		v[i] = ctrlEmpty16
	}
	return v
}()

func newCtrlArray16(alloc []byte, capacity uintptr) ctrlArray16 {
	for i := range alloc {
		alloc[i] = ctrlEmpty16
	}
	// flat16's encoding has no 4th control pattern to spare for a distinct
	// sentinel value (only empty/deleted/in-use), so
	// end-of-table detection uses an explicit index bound (Iterator.Valid)
	// rather than a distinguished byte value; the tail byte above is simply
	// never read.
	return ctrlArray16{data: makeUnsafeSlice(alloc), mask: capacity - 1}
}

// at returns the control byte at index i.
func (c ctrlArray16) at(i uintptr) byte {
	return *c.data.At(i)
}

// group loads the 16-byte cluster starting at offset.
func (c ctrlArray16) group(offset uintptr) group16 {
	return makeGroup16(c.data, offset)
}

// setCtrl writes the control byte at index i and mirrors the write to the
// tail copy when i falls within the first groupWidth16-1 positions. This is
// unconditional (rather than guarded by an if) because the mirrored index
// formula collapses to i itself once i >= groupWidth16-1, matching
// cockroachdb/swiss's setCtrl.
func (c ctrlArray16) setCtrl(i uintptr, v byte) {
	*c.data.At(i) = v
	*c.data.At(((i-(groupWidth16-1))&c.mask)+(groupWidth16-1)) = v
}

// capacity returns the number of real (non-mirror, non-sentinel) slots.
func (c ctrlArray16) capacity() uintptr {
	return c.mask + 1
}
