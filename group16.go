package hashtable

import (
	"math/bits"
	"unsafe"
)

// flat16 uses 16-slot clusters. Each slot's control byte is one of:
//
//	empty:    1111 1111  (ctrlEmpty16)
//	deleted:  1000 0000  (ctrlDeleted16)
//	in-use:   0ttt tttt  (7-bit tag from the key's hash)
//
// The sign bit distinguishes unused (empty or deleted) from in-use in one
// test: it is always set for empty/deleted and always clear for in-use.
const (
	groupWidth16 = 16

	ctrlEmpty16   ctrl16 = 0xFF
	ctrlDeleted16 ctrl16 = 0x80
)

type ctrl16 = byte

const (
	bitsetLSB64 = 0x0101010101010101
	bitsetMSB64 = 0x8080808080808080
)

// mask16 is a compact bitmask over a 16-slot cluster: bit i set means slot i
// satisfies whatever predicate produced the mask. Bit 0 is the lowest slot
// index.
type mask16 uint16

func (m mask16) next() uint {
	return LowestSet(uint64(m))
}

func (m mask16) clearLowest() mask16 {
	return mask16(ClearLowest(uint64(m)))
}

func (m mask16) empty() bool {
	return m == 0
}

// packMSB8 compacts the per-byte sign bits of an 8-lane word into the low 8
// bits of the result: bit i is set iff byte i of v has its high bit set.
// This is a software emulation of the x86 PMOVMSKB instruction, grounded on
// rip-create-your-account/fishtable's bitman_swar.go, which uses the same
// multiply-based lane-packing trick to fold SWAR hash-match results into a
// single compact bitmask.
func packMSB8(v uint64) uint8 {
	const mul = (1 << (8*8 - 7)) |
		(1 << (7*8 - 6)) |
		(1 << (6*8 - 5)) |
		(1 << (5*8 - 4)) |
		(1 << (4*8 - 3)) |
		(1 << (3*8 - 2)) |
		(1 << (2*8 - 1)) |
		(1 << (1*8 - 0))
	hi, _ := bits.Mul64(v&bitsetMSB64, mul)
	return uint8(hi & 0xFF)
}

// group16 is a view over one 16-byte control cluster, aligned for two 8-byte
// word loads (the scalar stand-in for a single 128-bit SIMD load).
type group16 struct {
	lo, hi *uint64
}

func makeGroup16(ctrls unsafeSlice[byte], offset uintptr) group16 {
	return group16{
		lo: (*uint64)(unsafe.Add(ctrls.ptr, offset)),
		hi: (*uint64)(unsafe.Add(ctrls.ptr, offset+8)),
	}
}

// SWAR byte match: returns a word with 0x80 in lane i iff lane i of v equals
// target. Grounded on cockroachdb/swiss's ctrl.matchH2, but exact: adding
// 0x7F to each lane's low 7 bits never carries into the next lane, so unlike
// the subtract-based haszero trick there are no false positives.
func swarByteEq(v uint64, target byte) uint64 {
	const lowSeven = bitsetLSB64 * 0x7F
	x := v ^ (bitsetLSB64 * uint64(target))
	return ^(((x & lowSeven) + lowSeven) | x) & bitsetMSB64
}

// matchTag returns the slots whose control byte equals the 7-bit tag t.
func (g group16) matchTag(t byte) mask16 {
	lo := packMSB8(swarByteEq(*g.lo, t))
	hi := packMSB8(swarByteEq(*g.hi, t))
	return mask16(uint16(lo) | uint16(hi)<<8)
}

// matchEmpty returns the slots whose control byte is ctrlEmpty16.
func (g group16) matchEmpty() mask16 {
	lo := packMSB8(swarByteEq(*g.lo, ctrlEmpty16))
	hi := packMSB8(swarByteEq(*g.hi, ctrlEmpty16))
	return mask16(uint16(lo) | uint16(hi)<<8)
}

// matchDeleted returns the slots whose control byte is ctrlDeleted16.
func (g group16) matchDeleted() mask16 {
	lo := packMSB8(swarByteEq(*g.lo, ctrlDeleted16))
	hi := packMSB8(swarByteEq(*g.hi, ctrlDeleted16))
	return mask16(uint16(lo) | uint16(hi)<<8)
}

// matchUnused returns the slots that are empty or deleted: the sign-bit
// extraction the encoding was chosen to allow, one test in place of two
// equality checks.
func (g group16) matchUnused() mask16 {
	lo := packMSB8(*g.lo & bitsetMSB64)
	hi := packMSB8(*g.hi & bitsetMSB64)
	return mask16(uint16(lo) | uint16(hi)<<8)
}
