package trellis

import (
	"errors"
	"math/rand"
	"net"
	"sync/atomic"
)

// EventHandler receives the three kinds of notification a Context
// produces, dispatched by PollEvents from whatever goroutine the
// application calls it from.
type EventHandler interface {
	OnConnect(conn *Connection)
	OnDisconnect(conn *Connection, err error)
	OnReceive(channelID int, conn *Connection, data []byte)
}

// baseContext holds everything a Client and a Server context have in
// common: the socket, the buffer pool, the single-goroutine executor
// (the Go realization of the reference's serial "strand"), the channel
// configuration, and the event queue. Grounded on
// original_source/include/trellis/context_base.hpp and the socket/
// goroutine plumbing in _examples/anon55555-mt/rudp/net.go and
// rudp/udp.go.
type baseContext struct {
	sock      net.PacketConn
	buffers   BufferPool
	events    *eventQueue
	actions   chan func()
	closed    chan struct{}
	kinds     []ChannelKind
	contextID uint16
	stopping  atomic.Bool
}

// markStopping returns true the first time it is called on a given
// context, and false on every call after, so Stop is safe to call more
// than once or concurrently.
func (b *baseContext) markStopping() bool { return !b.stopping.Swap(true) }

func newBaseContext(sock net.PacketConn, kinds []ChannelKind) baseContext {
	return baseContext{
		sock:      sock,
		events:    newEventQueue(),
		actions:   make(chan func(), 256),
		closed:    make(chan struct{}),
		kinds:     kinds,
		contextID: uint16(rand.Intn(1 << 16)),
	}
}

func (b *baseContext) channelKinds() []ChannelKind { return b.kinds }
func (b *baseContext) socket() net.PacketConn      { return b.sock }
func (b *baseContext) pool() *BufferPool           { return &b.buffers }

func (b *baseContext) pushEvent(ev Event) { b.events.push(ev) }

// post enqueues fn to run on the executor goroutine. It never blocks
// past the context shutting down: a post racing shutdown is simply
// dropped, matching the "cancellation is swallowed" policy.
func (b *baseContext) post(fn func()) {
	select {
	case b.actions <- fn:
	case <-b.closed:
	}
}

func (b *baseContext) requestStop() {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
}

// runLoop is the single goroutine that ever mutates connection or
// channel state. It drains actions until told to stop, then drains
// whatever is left in the buffer once more before returning so that
// work posted just before shutdown still runs.
func (b *baseContext) runLoop() {
	for {
		select {
		case fn := <-b.actions:
			fn()
		case <-b.closed:
			for {
				select {
				case fn := <-b.actions:
					fn()
				default:
					return
				}
			}
		}
	}
}

// errorSenderAddr extracts the originating endpoint from a receive
// error, when the underlying network layer can identify one (for
// example a port-unreachable ICMP response surfaced as a *net.OpError
// with Addr set). Most transient receive errors carry no such
// information, in which case no particular connection can be blamed.
func errorSenderAddr(err error) net.Addr {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Addr != nil {
		return opErr.Addr
	}
	return nil
}

// readLoop continuously receives datagrams and posts their processing
// onto the executor. Errors seen after shutdown has been requested are
// the expected result of closing the socket and are swallowed. Any
// other receive error is transient and the loop keeps going, matching
// the error handling policy's "for a receive, the context continues
// receiving" — but when the error identifies the peer that caused it,
// that one connection is force-disconnected with the OS error, the
// same outcome writeDatagram's ioError path produces for a transient
// send failure.
func (b *baseContext) readLoop(dispatch func(addr net.Addr, data []byte), lookup func(addr net.Addr) *Connection) {
	buf := make([]byte, DatagramSize)
	for {
		n, addr, err := b.sock.ReadFrom(buf)
		if err != nil {
			select {
			case <-b.closed:
				return
			default:
			}
			if src := errorSenderAddr(err); src != nil {
				b.post(func() {
					if conn := lookup(src); conn != nil {
						conn.ioError(err)
					}
				})
			}
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		src := addr
		b.post(func() { dispatch(src, data) })
	}
}

// PollEvents delivers every event queued since the last call, in
// order, to h. It is meant to be called from a single application
// goroutine distinct from the executor; nothing here is safe for
// concurrent PollEvents calls on the same Context.
func (b *baseContext) PollEvents(h EventHandler) {
	for {
		ev, ok := b.events.pop()
		if !ok {
			return
		}
		switch ev.Kind {
		case EventConnect:
			h.OnConnect(ev.Conn)
		case EventDisconnect:
			h.OnDisconnect(ev.Conn, ev.Err)
		case EventReceive:
			h.OnReceive(ev.ChannelID, ev.Conn, ev.Data)
		}
	}
}
