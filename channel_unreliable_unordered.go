package trellis

// channelUnreliableUnordered delivers each completed message the
// moment it arrives, in whatever order that happens to be. No sequence
// state is tracked on receive beyond the shared ring in
// unreliableChannelBase.
type channelUnreliableUnordered struct {
	unreliableChannelBase
}

func (c *channelUnreliableUnordered) receiveData(h dataHeader, payload []byte) {
	if data, ok := c.receiveImpl(h, payload); ok {
		c.conn.emitReceive(c.channelID, data)
	}
}
