package trellis

import "encoding/binary"

// PacketType is the 1-byte discriminator at the start of every datagram
// this package sends.
type PacketType byte

const (
	PacketConnect PacketType = iota
	PacketConnectOK
	PacketConnectAck
	PacketDisconnect
	PacketData
	PacketDataAck
)

func (t PacketType) String() string {
	switch t {
	case PacketConnect:
		return "CONNECT"
	case PacketConnectOK:
		return "CONNECT_OK"
	case PacketConnectAck:
		return "CONNECT_ACK"
	case PacketDisconnect:
		return "DISCONNECT"
	case PacketData:
		return "DATA"
	case PacketDataAck:
		return "DATA_ACK"
	default:
		return "UNKNOWN"
	}
}

// connectOKHeader and connectAckHeader both carry only the connection
// id the client and server agreed on during the handshake.
type connectOKHeader struct {
	ConnectionID uint16
}

type connectAckHeader struct {
	ConnectionID uint16
}

// dataHeader precedes the payload of a DATA packet. The wire layout
// reserves one pad byte after FragmentID so the header is exactly
// DataHeaderBytes (9) long even though the fields alone sum to 8; the
// pad is always written as zero and ignored on read.
type dataHeader struct {
	SequenceID    SequenceID
	ChannelID     uint8
	FragmentCount uint8
	FragmentID    uint8
}

type dataAckHeader struct {
	SequenceID         SequenceID
	ExpectedSequenceID SequenceID
	ChannelID          uint8
	FragmentID         uint8
}

// putConnectOK and the sibling put* functions each write their packet,
// type byte included, into dst and return the number of bytes written.
// dst must be at least as long as the packet requires; callers pass
// fixed-size arrays matching each control packet's length, or a
// DatagramSize buffer for DATA, so this never fails in practice.

func putConnect(dst []byte) int {
	dst[0] = byte(PacketConnect)
	return 1
}

func putDisconnect(dst []byte) int {
	dst[0] = byte(PacketDisconnect)
	return 1
}

func putConnectOK(dst []byte, h connectOKHeader) int {
	dst[0] = byte(PacketConnectOK)
	binary.LittleEndian.PutUint16(dst[1:3], h.ConnectionID)
	return 3
}

func putConnectAck(dst []byte, h connectAckHeader) int {
	dst[0] = byte(PacketConnectAck)
	binary.LittleEndian.PutUint16(dst[1:3], h.ConnectionID)
	return 3
}

func putDataHeader(dst []byte, h dataHeader) int {
	dst[0] = byte(PacketData)
	binary.LittleEndian.PutUint32(dst[1:5], uint32(h.SequenceID))
	dst[5] = h.ChannelID
	dst[6] = h.FragmentCount
	dst[7] = h.FragmentID
	dst[8] = 0 // pad
	return DataHeaderBytes
}

func putDataAck(dst []byte, h dataAckHeader) int {
	dst[0] = byte(PacketDataAck)
	binary.LittleEndian.PutUint32(dst[1:5], uint32(h.SequenceID))
	binary.LittleEndian.PutUint32(dst[5:9], uint32(h.ExpectedSequenceID))
	dst[9] = h.ChannelID
	dst[10] = h.FragmentID
	return 11
}

func parsePacketType(src []byte) (PacketType, error) {
	if len(src) < 1 {
		return 0, errHeaderf("empty datagram")
	}
	t := PacketType(src[0])
	if t > PacketDataAck {
		return 0, errHeaderf("unknown packet type %d", src[0])
	}
	return t, nil
}

func parseConnectOK(src []byte) (connectOKHeader, error) {
	if len(src) < 3 {
		return connectOKHeader{}, errHeaderf("CONNECT_OK too short: %d bytes", len(src))
	}
	return connectOKHeader{ConnectionID: binary.LittleEndian.Uint16(src[1:3])}, nil
}

func parseConnectAck(src []byte) (connectAckHeader, error) {
	if len(src) < 3 {
		return connectAckHeader{}, errHeaderf("CONNECT_ACK too short: %d bytes", len(src))
	}
	return connectAckHeader{ConnectionID: binary.LittleEndian.Uint16(src[1:3])}, nil
}

// parseDataHeader also returns the offset of the payload within src.
func parseDataHeader(src []byte) (dataHeader, int, error) {
	if len(src) < DataHeaderBytes {
		return dataHeader{}, 0, errHeaderf("DATA header too short: %d bytes", len(src))
	}
	h := dataHeader{
		SequenceID:    SequenceID(binary.LittleEndian.Uint32(src[1:5])),
		ChannelID:     src[5],
		FragmentCount: src[6],
		FragmentID:    src[7],
	}
	if h.FragmentCount == 0 {
		return dataHeader{}, 0, errHeaderf("DATA fragment_count is zero")
	}
	if h.FragmentID >= h.FragmentCount {
		return dataHeader{}, 0, errHeaderf("DATA fragment_id %d out of range [0,%d)", h.FragmentID, h.FragmentCount)
	}
	if len(src)-DataHeaderBytes > FragmentPayloadSize {
		return dataHeader{}, 0, errHeaderf("DATA payload %d exceeds fragment size %d", len(src)-DataHeaderBytes, FragmentPayloadSize)
	}
	return h, DataHeaderBytes, nil
}

func parseDataAck(src []byte) (dataAckHeader, error) {
	if len(src) < 11 {
		return dataAckHeader{}, errHeaderf("DATA_ACK too short: %d bytes", len(src))
	}
	return dataAckHeader{
		SequenceID:         SequenceID(binary.LittleEndian.Uint32(src[1:5])),
		ExpectedSequenceID: SequenceID(binary.LittleEndian.Uint32(src[5:9])),
		ChannelID:          src[9],
		FragmentID:         src[10],
	}, nil
}
