package trellis

import "net"

// Server is a Context that owns a map of Connections keyed by remote
// endpoint. Grounded on the reference's server_context.hpp and the
// teacher's per-endpoint peer table in
// _examples/anon55555-mt/rudp/listen.go.
type Server struct {
	baseContext
	conns map[string]*Connection
}

// NewServer opens a UDP socket bound to localAddr configured with the
// given ordered list of channel disciplines, and starts its executor
// and receive loop. Incoming connections are accepted implicitly: the
// first CONNECT from a new endpoint creates a Connection, which
// PollEvents then reports through an OnConnect event once the
// handshake finishes.
func NewServer(localAddr string, kinds []ChannelKind) (*Server, error) {
	pc, err := net.ListenPacket("udp", localAddr)
	if err != nil {
		return nil, err
	}
	s := &Server{baseContext: newBaseContext(pc, kinds), conns: make(map[string]*Connection)}
	go s.runLoop()
	go s.readLoop(s.dispatch, s.lookupConnection)
	return s, nil
}

func (s *Server) dispatch(addr net.Addr, data []byte) {
	t, err := parsePacketType(data)
	if err != nil {
		return
	}
	key := addr.String()
	conn, ok := s.conns[key]
	if !ok {
		if t != PacketConnect {
			return // datagram from an endpoint with no connection: ignored, not a violation
		}
		conn = newConnection(s, addr, false)
		s.conns[key] = conn
	}
	conn.handlePacket(t, data)
}

// lookupConnection identifies the Connection a datagram from addr
// belongs to, so a receive-side I/O error can be blamed on the right
// peer instead of killing the whole context.
func (s *Server) lookupConnection(addr net.Addr) *Connection {
	return s.conns[addr.String()]
}

func (s *Server) forgetConnection(conn *Connection) {
	delete(s.conns, conn.remote.String())
}

// Stop disconnects every live connection, then shuts down the executor
// and closes the socket. It blocks until shutdown is complete; calling
// it more than once is a no-op after the first call.
func (s *Server) Stop() {
	if !s.markStopping() {
		return
	}
	done := make(chan struct{})
	s.post(func() {
		for _, conn := range s.conns {
			if conn.isAlive() {
				conn.sendDisconnectBestEffort()
				conn.kill(nil)
			}
		}
		s.requestStop()
		s.sock.Close()
		close(done)
	})
	<-done
}
