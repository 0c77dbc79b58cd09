package trellis

// ChannelKind selects one of the five delivery disciplines a Context
// can be configured with. The channel list for a Context is fixed at
// construction and its indices are stable for the lifetime of every
// connection the context owns.
type ChannelKind int

const (
	UnreliableUnordered ChannelKind = iota
	UnreliableSequenced
	ReliableOrdered
	ReliableUnordered
	ReliableSequenced
)

func (k ChannelKind) String() string {
	switch k {
	case UnreliableUnordered:
		return "unreliable-unordered"
	case UnreliableSequenced:
		return "unreliable-sequenced"
	case ReliableOrdered:
		return "reliable-ordered"
	case ReliableUnordered:
		return "reliable-unordered"
	case ReliableSequenced:
		return "reliable-sequenced"
	default:
		return "unknown"
	}
}

// channel is the per-connection, per-index state for one configured
// channel kind. Everything below runs exclusively on the owning
// connection's context executor except reset, which the connection also
// calls from the executor while tearing down.
type channel interface {
	send(buffers []SharedBuffer, fragmentCount, lastLen int)
	receiveData(h dataHeader, payload []byte)
	receiveAck(h dataAckHeader)
	reset()
}

// channelBase holds the fields every discipline needs: which index it
// occupies and the connection it belongs to, used to reach the socket,
// the event queue, and disconnection.
type channelBase struct {
	channelID uint8
	conn      *Connection
}

func newChannel(kind ChannelKind, id uint8, conn *Connection) channel {
	base := channelBase{channelID: id, conn: conn}
	switch kind {
	case UnreliableUnordered:
		return &channelUnreliableUnordered{unreliableChannelBase: newUnreliableChannelBase(base)}
	case UnreliableSequenced:
		return &channelUnreliableSequenced{unreliableChannelBase: newUnreliableChannelBase(base)}
	case ReliableOrdered:
		return &channelReliableOrdered{reliableChannelBase: newReliableChannelBase(base)}
	case ReliableUnordered:
		return &channelReliableUnordered{reliableChannelBase: newReliableChannelBase(base), cancelled: make(map[SequenceID]bool)}
	case ReliableSequenced:
		return &channelReliableSequenced{reliableChannelBase: newReliableChannelBase(base)}
	default:
		panic("trellis: unknown channel kind")
	}
}

func writeFragments(buffers []SharedBuffer, fragmentCount, lastLen int, sid SequenceID, channelID uint8, encode func(buf SharedBuffer, fragmentID uint8, n int)) {
	for i := 0; i < fragmentCount; i++ {
		buf := buffers[i]
		payloadLen := FragmentPayloadSize
		if i == fragmentCount-1 {
			payloadLen = lastLen
		}
		putDataHeader(buf.Bytes(), dataHeader{
			SequenceID:    sid,
			ChannelID:     channelID,
			FragmentCount: uint8(fragmentCount),
			FragmentID:    uint8(i),
		})
		encode(buf, uint8(i), DataHeaderBytes+payloadLen)
	}
}
