package trellis

// channelReliableUnordered delivers a message the instant it completes,
// regardless of arrival order, but still guarantees exactly-once
// delivery: a completed sequence id is remembered as cancelled so a
// late duplicate can never be delivered twice, and cancelled entries
// are reclaimed once they form a contiguous prefix. Grounded on
// original_source/include/trellis/channel_reliable_unordered.hpp.
type channelReliableUnordered struct {
	reliableChannelBase
	cancelled map[SequenceID]bool
}

func (c *channelReliableUnordered) receiveData(h dataHeader, payload []byte) {
	a, complete := c.receiveImpl(h, payload)
	if !complete || c.cancelled[a.sequenceID] {
		return
	}
	c.cancelled[a.sequenceID] = true
	data := a.release()
	c.conn.emitReceive(c.channelID, data)

	for {
		if _, ok := c.assemblers[c.incomingSeq]; !ok || !c.cancelled[c.incomingSeq] {
			break
		}
		delete(c.assemblers, c.incomingSeq)
		delete(c.cancelled, c.incomingSeq)
		c.incomingSeq++
	}
}
