package util

// Align rounds addr up to a multiple of alignment, which must be a power of two.
func Align(addr int, alignment int) int {
	return (addr + alignment - 1) &^ (alignment - 1)
}

// FitsInt32 reports whether v can be encoded as a sign-extended 32-bit immediate.
func FitsInt32(v int64) bool {
	return v == int64(int32(v))
}
