package trellis

import "net"

// Client is a Context that owns exactly one Connection. Grounded on
// the reference's client_context.hpp and the dial-style Connect in
// _examples/anon55555-mt/rudp/connect.go.
type Client struct {
	baseContext
	conn *Connection
}

// NewClient opens a UDP socket bound to localAddr (which may be empty
// to let the OS choose an ephemeral port) configured with the given
// ordered list of channel disciplines, and starts its executor and
// receive loop.
func NewClient(localAddr string, kinds []ChannelKind) (*Client, error) {
	pc, err := net.ListenPacket("udp", localAddr)
	if err != nil {
		return nil, err
	}
	c := &Client{baseContext: newBaseContext(pc, kinds)}
	go c.runLoop()
	go c.readLoop(c.dispatch, c.lookupConnection)
	return c, nil
}

// Connect begins a handshake with remoteAddr and returns the
// Connection immediately; the connection becomes usable once an
// OnConnect event for it arrives through PollEvents.
func (c *Client) Connect(remoteAddr string) (*Connection, error) {
	raddr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, err
	}
	conn := newConnection(c, raddr, true)
	c.post(func() {
		c.conn = conn
		conn.startClientHandshake()
	})
	return conn, nil
}

func (c *Client) dispatch(addr net.Addr, data []byte) {
	if c.conn == nil || c.conn.remote.String() != addr.String() {
		return // datagram from an endpoint we have no connection to: ignored
	}
	t, err := parsePacketType(data)
	if err != nil {
		return
	}
	c.conn.handlePacket(t, data)
}

// lookupConnection identifies the Connection a datagram from addr
// belongs to, the same comparison dispatch uses to route incoming
// packets, so a receive-side I/O error can be blamed on the right peer.
func (c *Client) lookupConnection(addr net.Addr) *Connection {
	if c.conn != nil && c.conn.remote.String() == addr.String() {
		return c.conn
	}
	return nil
}

func (c *Client) forgetConnection(conn *Connection) {
	if c.conn == conn {
		c.conn = nil
	}
}

// Stop disconnects the client's connection (if any), then shuts down
// the executor and closes the socket. It blocks until shutdown is
// complete; calling it more than once is a no-op after the first call.
func (c *Client) Stop() {
	if !c.markStopping() {
		return
	}
	done := make(chan struct{})
	c.post(func() {
		if c.conn != nil && c.conn.isAlive() {
			c.conn.sendDisconnectBestEffort()
			c.conn.kill(nil)
		}
		c.requestStop()
		c.sock.Close()
		close(done)
	})
	<-done
}
