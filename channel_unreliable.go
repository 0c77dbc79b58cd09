package trellis

// unreliableChannelBase is shared by the two unreliable disciplines.
// Sends carry no retry state at all; receives use a fixed ring of
// assemblers indexed by sequence id modulo AssemblerSlots, so an old,
// still-incomplete message is simply evicted once a newer one claims
// its slot. Grounded on
// original_source/include/trellis/channel_unreliable.hpp.
type unreliableChannelBase struct {
	channelBase
	nextSendSeq SequenceID

	ring      [AssemblerSlots]*fragmentAssembler
	ringSeq   [AssemblerSlots]SequenceID
	ringValid [AssemblerSlots]bool
}

func newUnreliableChannelBase(base channelBase) unreliableChannelBase {
	return unreliableChannelBase{channelBase: base}
}

func (c *unreliableChannelBase) send(buffers []SharedBuffer, fragmentCount, lastLen int) {
	sid := c.nextSendSeq
	c.nextSendSeq++
	writeFragments(buffers, fragmentCount, lastLen, sid, c.channelID, func(buf SharedBuffer, _ uint8, n int) {
		c.conn.writeDatagram(buf.Bytes()[:n])
		buf.Release()
	})
}

// receiveImpl reassembles one fragment and reports the completed
// message, if this fragment finished it. An unreliable channel never
// sends an ACK.
func (c *unreliableChannelBase) receiveImpl(h dataHeader, payload []byte) ([]byte, bool) {
	if h.FragmentCount == 1 {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, true
	}

	slot := int(h.SequenceID) % AssemblerSlots
	switch {
	case !c.ringValid[slot] || sequenceLess(c.ringSeq[slot], h.SequenceID):
		if c.ring[slot] == nil {
			c.ring[slot] = newFragmentAssembler(h.SequenceID, int(h.FragmentCount))
		} else {
			c.ring[slot].reset(h.SequenceID, int(h.FragmentCount))
		}
		c.ringSeq[slot] = h.SequenceID
		c.ringValid[slot] = true
	case c.ringSeq[slot] != h.SequenceID:
		return nil, false // slot holds a newer or unrelated message
	}

	a := c.ring[slot]
	if int(h.FragmentCount) != a.count {
		c.conn.protocolViolation(errHeaderf("DATA fragment_count %d for sequence %d does not match previously announced %d", h.FragmentCount, h.SequenceID, a.count))
		return nil, false
	}
	if a.hasFragment(h.FragmentID) {
		return nil, false
	}
	a.receive(h.FragmentID, payload)
	if !a.isComplete() {
		return nil, false
	}
	data := a.release()
	out := make([]byte, len(data))
	copy(out, data)
	c.ringValid[slot] = false
	return out, true
}

func (c *unreliableChannelBase) receiveAck(dataAckHeader) {
	c.conn.protocolViolation(errHeaderf("DATA_ACK received on unreliable channel %d", c.channelID))
}

func (c *unreliableChannelBase) reset() {}
