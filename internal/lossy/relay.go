// Package lossy provides a two-sided UDP relay that randomly drops a
// fraction of the datagrams it forwards in each direction. It exists
// to drive this repository's own tests under packet loss without a
// separate process, and mirrors the debugging relay both
// _examples/anon55555-mt/rudp/proxy and the reference implementation's
// examples/proxy ship alongside their library. It is not part of the
// public API.
package lossy

import (
	"math/rand"
	"net"
	"sync/atomic"
)

const maxDatagram = 1500

// Relay listens on an ephemeral local port and forwards every datagram
// it receives to target, and every reply from target back to whichever
// endpoint last sent it a datagram. It assumes a single client
// endpoint at a time, which is all this repository's own tests need.
type Relay struct {
	front, back net.PacketConn
	target      net.Addr
	dropProb    float64
	clientAddr  atomic.Value // net.Addr
}

// New starts listening and returns a Relay forwarding to target. Call
// Serve to start relaying and Close to tear both sockets down.
func New(target string, dropProb float64) (*Relay, error) {
	front, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	back, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		front.Close()
		return nil, err
	}
	taddr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		front.Close()
		back.Close()
		return nil, err
	}
	return &Relay{front: front, back: back, target: taddr, dropProb: dropProb}, nil
}

// Addr is the endpoint a client should dial instead of the real
// server.
func (r *Relay) Addr() net.Addr { return r.front.LocalAddr() }

// Serve starts the two forwarding goroutines. It returns immediately.
func (r *Relay) Serve() {
	go r.pump(r.front, r.toServer)
	go r.pump(r.back, r.toClient)
}

func (r *Relay) toServer(data []byte, from net.Addr) {
	r.clientAddr.Store(from)
	if r.drop() {
		return
	}
	r.back.WriteTo(data, r.target)
}

func (r *Relay) toClient(data []byte, _ net.Addr) {
	if r.drop() {
		return
	}
	v := r.clientAddr.Load()
	if v == nil {
		return
	}
	r.front.WriteTo(data, v.(net.Addr))
}

func (r *Relay) drop() bool {
	if r.dropProb <= 0 {
		return false
	}
	return rand.Float64() < r.dropProb
}

func (r *Relay) pump(conn net.PacketConn, handle func(data []byte, from net.Addr)) {
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		handle(data, addr)
	}
}

// Close shuts down both sockets, stopping the relay goroutines.
func (r *Relay) Close() error {
	err1 := r.front.Close()
	err2 := r.back.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
