package trellis

// fragmentAssembler reassembles one application message from its
// fragments. It owns a backing buffer sized for the fragment count it
// was constructed with, plus a bit per fragment recording arrival.
//
// Grounded on original_source/include/trellis/fragment_assembler.hpp:
// same preconditions (fragment_id < count, bit not already set, piece
// size <= FragmentPayloadSize), same reset-and-reuse allowance for
// unreliable channels.
type fragmentAssembler struct {
	sequenceID SequenceID
	count      int
	received   int
	present    []bool
	data       []byte
	lastLen    int // length of the final fragment, once seen
	cancelled  bool
}

func newFragmentAssembler(sid SequenceID, count int) *fragmentAssembler {
	a := &fragmentAssembler{}
	a.reset(sid, count)
	return a
}

// reset reinitializes the assembler for a new sequence id and fragment
// count, reusing the backing allocation when the size the new count
// needs is within 0.5x-1x of its capacity.
func (a *fragmentAssembler) reset(sid SequenceID, count int) {
	a.sequenceID = sid
	a.count = count
	a.received = 0
	a.lastLen = 0
	a.cancelled = false

	needed := count * FragmentPayloadSize
	if cap(a.data) < needed || cap(a.data) > 2*needed {
		a.data = make([]byte, needed)
	} else {
		a.data = a.data[:needed]
	}
	if cap(a.present) < count {
		a.present = make([]bool, count)
	} else {
		a.present = a.present[:count]
		for i := range a.present {
			a.present[i] = false
		}
	}
}

// receive copies one fragment's payload into place and marks it
// present. It returns nothing; callers detect duplicates beforehand
// with hasFragment, and a fragment received twice is counted once.
func (a *fragmentAssembler) receive(fragmentID uint8, payload []byte) {
	id := int(fragmentID)
	off := id * FragmentPayloadSize
	copy(a.data[off:off+len(payload)], payload)
	if !a.present[id] {
		a.present[id] = true
		a.received++
	}
	if id == a.count-1 {
		a.lastLen = len(payload)
	}
}

func (a *fragmentAssembler) hasFragment(fragmentID uint8) bool {
	return a.present[fragmentID]
}

func (a *fragmentAssembler) isComplete() bool {
	return a.received == a.count
}

// release returns the contiguous reassembled message, truncated to the
// true length implied by the last fragment's size.
func (a *fragmentAssembler) release() []byte {
	total := (a.count-1)*FragmentPayloadSize + a.lastLen
	return a.data[:total]
}
