package mach

import "math/bits"

// IsLegalImm reports whether v fits the data-processing immediate field:
// an 8-bit value rotated right by an even amount
func IsLegalImm(v int64) bool {
	u := uint32(v)
	for r := 0; r < 32; r += 2 {
		if bits.RotateLeft32(u, r)&^0xFF == 0 {
			return true
		}
	}
	return false
}

// IsLegalOffset reports whether off can be encoded directly in a load or
// store. Core accesses take a 12-bit byte offset, float accesses an 8-bit
// word offset.
func IsLegalOffset(off int64, float bool) bool {
	if float {
		return off%4 == 0 && off >= -1020 && off <= 1020
	}
	return off >= -4095 && off <= 4095
}
