package trellis

// SequenceID is a 32-bit wrap-aware counter assigned by the sender of a
// channel. Comparisons never use raw integer ordering; they go through
// sequenceLess so that wraparound past 2^32 behaves correctly.
type SequenceID uint32

// sequenceLess implements the wrap-aware total order used everywhere a
// sequence id is compared: a < b iff a != b and (b-a) mod 2^32 <= 2^31-1.
func sequenceLess(a, b SequenceID) bool {
	return a != b && SequenceID(b-a) <= 0x7fffffff
}

func sequenceLessOrEqual(a, b SequenceID) bool {
	return a == b || sequenceLess(a, b)
}

func sequenceGreater(a, b SequenceID) bool {
	return sequenceLess(b, a)
}

func sequenceGreaterOrEqual(a, b SequenceID) bool {
	return sequenceLessOrEqual(b, a)
}
