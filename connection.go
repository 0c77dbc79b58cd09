package trellis

import (
	"math/rand"
	"net"
	"sync/atomic"
	"time"
)

// ConnectionState is one node of the handshake/liveness/teardown state
// machine described by the reference's connection_base.hpp.
type ConnectionState int

const (
	StateInactive ConnectionState = iota
	StateConnecting
	StatePending
	StateEstablished
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateConnecting:
		return "connecting"
	case StatePending:
		return "pending"
	case StateEstablished:
		return "established"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// connOwner is the subset of Client/Server that a Connection needs to
// reach: the executor to post work onto, the socket to write to, the
// channel configuration to build itself from, the event queue to
// report through, and a way to drop itself from whatever table its
// owner keeps live connections in.
type connOwner interface {
	channelKinds() []ChannelKind
	socket() net.PacketConn
	pool() *BufferPool
	post(func())
	pushEvent(Event)
	forgetConnection(*Connection)
}

// Connection owns all per-peer state: the remote endpoint, the
// handshake/liveness state machine, and one channel per configured
// kind. Every field below is touched only from its owner's executor
// goroutine, except alive, which the handshake and retry timers read
// from their own goroutines before posting back onto the executor —
// the Go realization of the reference's weak_ptr-guarded timer.
type Connection struct {
	owner    connOwner
	remote   net.Addr
	isClient bool
	alive    atomic.Bool

	connectionID uint16
	state        ConnectionState
	channels     []channel

	handshakeTimer *time.Timer
}

func newConnection(owner connOwner, remote net.Addr, isClient bool) *Connection {
	c := &Connection{
		owner:        owner,
		remote:       remote,
		isClient:     isClient,
		state:        StateInactive,
		connectionID: uint16(rand.Intn(1 << 16)),
	}
	c.alive.Store(true)

	kinds := owner.channelKinds()
	c.channels = make([]channel, len(kinds))
	for i, k := range kinds {
		c.channels[i] = newChannel(k, uint8(i), c)
	}
	return c
}

// RemoteAddr returns the peer endpoint this connection talks to.
func (c *Connection) RemoteAddr() net.Addr { return c.remote }

// State returns the connection's current position in the handshake
// state machine. Safe to call from any goroutine for diagnostics, but
// racy with concurrent transitions — treat it as a snapshot.
func (c *Connection) State() ConnectionState { return c.state }

func (c *Connection) isAlive() bool { return c.alive.Load() }

func (c *Connection) post(fn func()) { c.owner.post(fn) }

// Disconnect requests a clean teardown. It returns immediately; the
// DISCONNECT message (best-effort) and the resulting Disconnect event
// are produced asynchronously on the owning context's executor.
func (c *Connection) Disconnect() {
	c.post(func() {
		if c.state == StateInactive || c.state == StateDisconnected {
			return
		}
		c.sendDisconnectBestEffort()
		c.kill(nil)
	})
}

// Send opens a write-only stream bound to channel index ch. Writing to
// and closing the returned Stream fragments and enqueues the message
// on that channel; Close is where the message actually leaves.
func (c *Connection) Send(ch int) (*Stream, error) {
	if ch < 0 || ch >= len(c.channels) {
		return nil, errHeaderf("channel index %d out of range [0,%d)", ch, len(c.channels))
	}
	return newStream(c, uint8(ch)), nil
}

func (c *Connection) sendMessage(channelID uint8, buffers []SharedBuffer, fragmentCount, lastLen int) {
	c.post(func() {
		if !c.isAlive() {
			for _, b := range buffers {
				b.Release()
			}
			return
		}
		c.channels[channelID].send(buffers, fragmentCount, lastLen)
	})
}

func (c *Connection) writeDatagram(data []byte) {
	if !c.isAlive() {
		return
	}
	if _, err := c.owner.socket().WriteTo(data, c.remote); err != nil {
		c.ioError(err)
	}
}

func (c *Connection) sendAck(channelID uint8, sid, expected SequenceID, fragmentID uint8) {
	var buf [11]byte
	n := putDataAck(buf[:], dataAckHeader{
		SequenceID:         sid,
		ExpectedSequenceID: expected,
		ChannelID:          channelID,
		FragmentID:         fragmentID,
	})
	c.writeDatagram(buf[:n])
}

func (c *Connection) sendConnect() {
	var buf [1]byte
	n := putConnect(buf[:])
	c.writeDatagram(buf[:n])
}

func (c *Connection) sendConnectOK() {
	var buf [3]byte
	n := putConnectOK(buf[:], connectOKHeader{ConnectionID: c.connectionID})
	c.writeDatagram(buf[:n])
}

func (c *Connection) sendConnectAck(connectionID uint16) {
	var buf [3]byte
	n := putConnectAck(buf[:], connectAckHeader{ConnectionID: connectionID})
	c.writeDatagram(buf[:n])
}

// sendDisconnectBestEffort writes a DISCONNECT datagram directly to the
// socket, bypassing writeDatagram's ioError path. It is used by every
// caller that is about to kill the connection with a specific outcome
// (clean shutdown or protocol violation): kill is CAS-guarded, so if
// the send failure raced kill(nil) through ioError instead, it would
// win and overwrite that outcome's nil error with the send's OS error.
func (c *Connection) sendDisconnectBestEffort() {
	if !c.isAlive() {
		return
	}
	var buf [1]byte
	n := putDisconnect(buf[:])
	c.owner.socket().WriteTo(buf[:n], c.remote)
}

func (c *Connection) emitConnect() {
	c.owner.pushEvent(Event{Kind: EventConnect, Conn: c})
}

func (c *Connection) emitReceive(channelID uint8, data []byte) {
	c.owner.pushEvent(Event{Kind: EventReceive, Conn: c, ChannelID: int(channelID), Data: data})
}

// kill finalizes the connection: it stops the handshake timer, tears
// down every channel (releasing any buffers pinned in a retry queue),
// removes itself from its owner, and reports exactly one Disconnect
// event. err is nil for a clean or protocol-violation teardown, and
// the offending OS error for a transient I/O failure.
func (c *Connection) kill(err error) {
	if !c.alive.CompareAndSwap(true, false) {
		return
	}
	c.stopHandshakeTimer()
	for _, ch := range c.channels {
		ch.reset()
	}
	c.state = StateDisconnected
	c.owner.forgetConnection(c)
	c.owner.pushEvent(Event{Kind: EventDisconnect, Conn: c, Err: err})
}

// protocolViolation tears the connection down after a peer message that
// makes no sense in the current state. Per the error handling policy,
// this never surfaces the offending reason to the application: only an
// unadorned Disconnect event is produced, the same as a clean
// shutdown.
func (c *Connection) protocolViolation(reason error) {
	_ = reason
	if !c.isAlive() {
		return
	}
	c.sendDisconnectBestEffort()
	c.kill(nil)
}

// ioError tears the connection down after a transient socket failure,
// surfacing the OS error. No DISCONNECT is sent since the socket path
// just failed.
func (c *Connection) ioError(err error) {
	c.kill(err)
}

func (c *Connection) stopHandshakeTimer() {
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
		c.handshakeTimer = nil
	}
}

func (c *Connection) armHandshake(delay time.Duration) {
	c.stopHandshakeTimer()
	c.handshakeTimer = time.AfterFunc(delay, c.onHandshakeTimeout)
}

func (c *Connection) onHandshakeTimeout() {
	if !c.isAlive() {
		return
	}
	c.post(func() {
		if !c.isAlive() {
			return
		}
		switch c.state {
		case StateConnecting:
			c.sendConnect()
			c.armHandshake(HandshakeInterval)
		case StatePending:
			c.sendConnectOK()
			c.armHandshake(HandshakeInterval)
		}
	})
}

// startClientHandshake moves a freshly created client connection from
// INACTIVE to CONNECTING and emits the first CONNECT.
func (c *Connection) startClientHandshake() {
	c.state = StateConnecting
	c.sendConnect()
	c.armHandshake(HandshakeInterval)
}

// onConnect handles an incoming CONNECT. Only a server connection ever
// sees one; it is idempotent so a peer that keeps retrying its CONNECT
// while packets are lost does no harm.
func (c *Connection) onConnect() {
	if c.isClient {
		c.protocolViolation(errHeaderf("client received CONNECT"))
		return
	}
	if c.state != StateInactive {
		return
	}
	c.state = StatePending
	c.sendConnectOK()
	c.armHandshake(HandshakeInterval)
}

func (c *Connection) onConnectOK(payload []byte) {
	if !c.isClient {
		c.protocolViolation(errHeaderf("server received CONNECT_OK"))
		return
	}
	h, err := parseConnectOK(payload)
	if err != nil {
		c.protocolViolation(err)
		return
	}
	switch c.state {
	case StateConnecting:
		c.connectionID = h.ConnectionID
		c.cancelHandshake()
		c.state = StateEstablished
		c.sendConnectAck(h.ConnectionID)
		c.emitConnect()
	case StateEstablished:
		c.sendConnectAck(c.connectionID)
	default:
		c.protocolViolation(errHeaderf("CONNECT_OK in state %s", c.state))
	}
}

func (c *Connection) onConnectAck(payload []byte) {
	if c.isClient {
		c.protocolViolation(errHeaderf("client received CONNECT_ACK"))
		return
	}
	if _, err := parseConnectAck(payload); err != nil {
		c.protocolViolation(err)
		return
	}
	switch c.state {
	case StatePending:
		c.cancelHandshake()
		c.state = StateEstablished
		c.emitConnect()
	case StateEstablished:
		// harmless duplicate, no state change
	default:
		c.protocolViolation(errHeaderf("CONNECT_ACK in state %s", c.state))
	}
}

func (c *Connection) onDisconnectMsg() {
	if c.state == StateInactive || c.state == StateDisconnected {
		return
	}
	c.kill(nil)
}

// onData handles an incoming DATA packet, including the server's
// "shortcut establish on first DATA" rule: a PENDING server connection
// only becomes ESTABLISHED once the DATA itself has been validated, so
// a malformed datagram can never drive the state machine forward on
// its own.
func (c *Connection) onData(payload []byte) {
	h, off, err := parseDataHeader(payload)
	if err != nil {
		c.protocolViolation(err)
		return
	}
	if int(h.ChannelID) >= len(c.channels) {
		c.protocolViolation(errHeaderf("DATA channel_id %d out of range", h.ChannelID))
		return
	}

	switch {
	case c.state == StateEstablished:
	case !c.isClient && c.state == StatePending:
		c.cancelHandshake()
		c.state = StateEstablished
		c.emitConnect()
	default:
		c.protocolViolation(errHeaderf("DATA received in state %s", c.state))
		return
	}

	c.channels[h.ChannelID].receiveData(h, payload[off:])
}

func (c *Connection) onDataAck(payload []byte) {
	h, err := parseDataAck(payload)
	if err != nil {
		c.protocolViolation(err)
		return
	}
	if c.state != StateEstablished {
		c.protocolViolation(errHeaderf("DATA_ACK received in state %s", c.state))
		return
	}
	if int(h.ChannelID) >= len(c.channels) {
		c.protocolViolation(errHeaderf("DATA_ACK channel_id %d out of range", h.ChannelID))
		return
	}
	c.channels[h.ChannelID].receiveAck(h)
}

func (c *Connection) cancelHandshake() {
	c.stopHandshakeTimer()
}

// handlePacket dispatches one already-typed datagram to the relevant
// handler. Called only from the owning context's executor.
func (c *Connection) handlePacket(t PacketType, payload []byte) {
	switch t {
	case PacketConnect:
		c.onConnect()
	case PacketConnectOK:
		c.onConnectOK(payload)
	case PacketConnectAck:
		c.onConnectAck(payload)
	case PacketDisconnect:
		c.onDisconnectMsg()
	case PacketData:
		c.onData(payload)
	case PacketDataAck:
		c.onDataAck(payload)
	}
}
