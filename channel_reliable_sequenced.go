package trellis

// channelReliableSequenced delivers a message as soon as it completes,
// but only ever moves the delivery floor forward: once sid is
// delivered, every assembler for an earlier or equal sid is discarded,
// so a message that finishes reassembly after a later one has already
// been delivered is silently dropped instead of delivered out of
// order. The send side mirrors this by dropping superseded retry
// entries before queuing a new message. Grounded on
// original_source/include/trellis/channel_reliable_sequenced.hpp.
type channelReliableSequenced struct {
	reliableChannelBase
}

func (c *channelReliableSequenced) send(buffers []SharedBuffer, fragmentCount, lastLen int) {
	newSid := c.nextSendSeq
	c.retry.removeAllIf(func(e *retryEntry) bool {
		return sequenceLess(e.sequenceID, newSid)
	})
	c.reliableChannelBase.send(buffers, fragmentCount, lastLen)
}

func (c *channelReliableSequenced) receiveData(h dataHeader, payload []byte) {
	a, complete := c.receiveImpl(h, payload)
	if !complete || sequenceLess(a.sequenceID, c.incomingSeq) {
		return
	}
	data := a.release()
	delete(c.assemblers, a.sequenceID)
	c.conn.emitReceive(c.channelID, data)

	for sid := range c.assemblers {
		if sequenceLessOrEqual(sid, a.sequenceID) {
			delete(c.assemblers, sid)
		}
	}
	c.incomingSeq = a.sequenceID + 1
}
