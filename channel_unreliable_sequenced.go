package trellis

// channelUnreliableSequenced wraps unreliableChannelBase's reassembly
// with a monotonic floor: any fragment whose sequence id is not newer
// than the last delivered one is dropped before reassembly, and the
// floor advances past every message actually delivered.
type channelUnreliableSequenced struct {
	unreliableChannelBase
	nextExpected SequenceID
}

func (c *channelUnreliableSequenced) receiveData(h dataHeader, payload []byte) {
	if sequenceLess(h.SequenceID, c.nextExpected) {
		return
	}
	data, ok := c.receiveImpl(h, payload)
	if !ok {
		return
	}
	c.conn.emitReceive(c.channelID, data)
	c.nextExpected = h.SequenceID + 1
}
