package trellis

// reliableChannelBase is shared by the three reliable disciplines: a
// per-fragment retry queue on the send side, and a map of in-flight
// fragment assemblers plus a contiguous-delivery floor on the receive
// side. Grounded on
// original_source/include/trellis/channel_reliable.hpp; the delivery
// policy that differs between ordered, unordered, and sequenced lives
// in the three files that embed this type.
type reliableChannelBase struct {
	channelBase
	nextSendSeq SequenceID

	retry            *retryQueue
	haveLastExpected bool
	lastExpectedSeq  SequenceID

	incomingSeq SequenceID
	assemblers  map[SequenceID]*fragmentAssembler
}

func newReliableChannelBase(base channelBase) reliableChannelBase {
	conn := base.conn
	resend := func(e *retryEntry) {
		conn.post(func() {
			if !conn.isAlive() {
				return
			}
			conn.writeDatagram(e.buf.Bytes()[:e.length])
		})
	}
	return reliableChannelBase{
		channelBase: base,
		assemblers:  make(map[SequenceID]*fragmentAssembler),
		retry:       newRetryQueue(conn.isAlive, resend),
	}
}

// send assigns the next sequence id, writes each fragment's header in
// place, sends it once immediately, and pins it in the retry queue
// until acknowledged or superseded.
func (c *reliableChannelBase) send(buffers []SharedBuffer, fragmentCount, lastLen int) {
	sid := c.nextSendSeq
	c.nextSendSeq++
	writeFragments(buffers, fragmentCount, lastLen, sid, c.channelID, func(buf SharedBuffer, fragmentID uint8, n int) {
		c.conn.writeDatagram(buf.Bytes()[:n])
		c.retry.push(&retryEntry{
			sequenceID: sid,
			channelID:  c.channelID,
			fragmentID: fragmentID,
			buf:        buf,
			length:     n,
		})
	})
}

func (c *reliableChannelBase) receiveAck(h dataAckHeader) {
	if !c.haveLastExpected || sequenceLess(c.lastExpectedSeq, h.ExpectedSequenceID) {
		expected := h.ExpectedSequenceID
		c.retry.removeAllIf(func(e *retryEntry) bool {
			return sequenceLess(e.sequenceID, expected) || (e.sequenceID == h.SequenceID && e.fragmentID == h.FragmentID)
		})
		c.lastExpectedSeq = h.ExpectedSequenceID
		c.haveLastExpected = true
		return
	}
	c.retry.removeOneIf(func(e *retryEntry) bool {
		return e.sequenceID == h.SequenceID && e.fragmentID == h.FragmentID
	})
}

// receiveImpl runs the duplicate check, reassembly, and unconditional
// ACK common to every reliable discipline. It returns the assembler
// for this sequence id and whether this fragment just completed it;
// duplicates (already-delivered sequence ids) are ACKed and dropped
// before an assembler is even consulted.
func (c *reliableChannelBase) receiveImpl(h dataHeader, payload []byte) (*fragmentAssembler, bool) {
	if sequenceLess(h.SequenceID, c.incomingSeq) {
		c.conn.sendAck(c.channelID, h.SequenceID, c.incomingSeq, h.FragmentID)
		return nil, false
	}

	a, ok := c.assemblers[h.SequenceID]
	if !ok {
		a = newFragmentAssembler(h.SequenceID, int(h.FragmentCount))
		c.assemblers[h.SequenceID] = a
	} else if a.count != int(h.FragmentCount) {
		c.conn.protocolViolation(errHeaderf("DATA fragment_count %d for sequence %d does not match previously announced %d", h.FragmentCount, h.SequenceID, a.count))
		return nil, false
	}
	if !a.hasFragment(h.FragmentID) {
		a.receive(h.FragmentID, payload)
	}
	complete := a.isComplete()
	c.conn.sendAck(c.channelID, h.SequenceID, c.incomingSeq, h.FragmentID)
	return a, complete
}

func (c *reliableChannelBase) reset() {
	c.retry.stop()
}
