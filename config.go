package trellis

import "time"

// Compile-time protocol parameters. These mirror the reference
// implementation's config namespace and are not runtime-configurable.
const (
	// DatagramSize is the maximum size of a single UDP datagram this
	// package will ever send, including the header.
	DatagramSize = 1200

	// MaxFragments bounds how many pieces a single application message
	// may be split into.
	MaxFragments = 256

	// AssemblerSlots is the size of the fixed ring of fragment
	// assemblers kept by unreliable channels.
	AssemblerSlots = 256

	// RetryInterval is how long a reliable fragment waits for an ACK
	// before being resent.
	RetryInterval = 50 * time.Millisecond

	// HandshakeInterval is the nominal resend period for CONNECT and
	// CONNECT_OK while a handshake is outstanding.
	HandshakeInterval = 200 * time.Millisecond
)

// DataHeaderBytes is the size in bytes of a DATA packet's header,
// including the leading type byte.
const DataHeaderBytes = 1 + 8

// FragmentPayloadSize is the maximum number of application bytes a
// single fragment can carry.
const FragmentPayloadSize = DatagramSize - DataHeaderBytes

// MaxMessageSize is the largest application message this package will
// send over a single sequence id.
const MaxMessageSize = MaxFragments * FragmentPayloadSize
