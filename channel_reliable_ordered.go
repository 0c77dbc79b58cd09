package trellis

// channelReliableOrdered delivers messages to the application strictly
// in sequence-id order, holding back any message that completes out of
// turn until every earlier one has arrived. Grounded on
// original_source/include/trellis/channel_reliable_ordered.hpp.
type channelReliableOrdered struct {
	reliableChannelBase
}

func (c *channelReliableOrdered) receiveData(h dataHeader, payload []byte) {
	a, complete := c.receiveImpl(h, payload)
	if !complete || a.sequenceID != c.incomingSeq {
		return
	}
	for {
		cur, ok := c.assemblers[c.incomingSeq]
		if !ok || !cur.isComplete() {
			break
		}
		data := cur.release()
		delete(c.assemblers, c.incomingSeq)
		c.conn.emitReceive(c.channelID, data)
		c.incomingSeq++
	}
}
