package trellis

import (
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apples/trellis/internal/lossy"
)

// collector is an EventHandler that records every event it sees behind
// a mutex, for polling from a test goroutine distinct from whichever
// goroutine calls PollEvents.
type collector struct {
	mu            sync.Mutex
	connected     bool
	disconnected  bool
	disconnectErr error
	received      [][]byte
}

func (c *collector) OnConnect(*Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
}

func (c *collector) OnDisconnect(_ *Connection, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	c.disconnectErr = err
}

func (c *collector) OnReceive(_ int, _ *Connection, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, append([]byte(nil), data...))
}

func (c *collector) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

func (c *collector) snapshot() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.received))
	copy(out, c.received)
	return out
}

type polledContext interface {
	PollEvents(EventHandler)
}

// startPolling runs PollEvents on ctx at a short fixed interval until
// the returned stop function is called, which also performs one final
// drain so nothing queued right before shutdown is lost.
func startPolling(ctx polledContext, h EventHandler) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				ctx.PollEvents(h)
				return
			case <-ticker.C:
				ctx.PollEvents(h)
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

func newLoopbackPair(t *testing.T, kinds []ChannelKind) (*Server, *Client) {
	t.Helper()
	server, err := NewServer("127.0.0.1:0", kinds)
	require.NoError(t, err)
	client, err := NewClient("127.0.0.1:0", kinds)
	require.NoError(t, err)
	return server, client
}

func TestIntegrationReliableOrderedCleanDelivery(t *testing.T) {
	server, client := newLoopbackPair(t, []ChannelKind{ReliableOrdered})
	defer server.Stop()
	defer client.Stop()

	serverEvents, clientEvents := &collector{}, &collector{}
	defer startPolling(server, serverEvents)()
	defer startPolling(client, clientEvents)()

	conn, err := client.Connect(server.sock.LocalAddr().String())
	require.NoError(t, err)
	require.Eventually(t, clientEvents.isConnected, 2*time.Second, time.Millisecond)

	const n = 1000
	for i := 0; i < n; i++ {
		s, err := conn.Send(0)
		require.NoError(t, err)
		_, err = s.Write([]byte(strconv.Itoa(i)))
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}

	require.Eventually(t, func() bool { return serverEvents.count() == n }, 10*time.Second, 5*time.Millisecond)

	got := serverEvents.snapshot()
	for i, data := range got {
		require.Equal(t, strconv.Itoa(i), string(data))
	}
}

func TestIntegrationReliableOrderedUnderLoss(t *testing.T) {
	server, client := newLoopbackPair(t, []ChannelKind{ReliableOrdered})
	defer server.Stop()
	defer client.Stop()

	relay, err := lossy.New(server.sock.LocalAddr().String(), 0.25)
	require.NoError(t, err)
	relay.Serve()
	defer relay.Close()

	serverEvents, clientEvents := &collector{}, &collector{}
	defer startPolling(server, serverEvents)()
	defer startPolling(client, clientEvents)()

	conn, err := client.Connect(relay.Addr().String())
	require.NoError(t, err)
	require.Eventually(t, clientEvents.isConnected, 2*time.Second, time.Millisecond)

	const n = 300
	for i := 0; i < n; i++ {
		s, err := conn.Send(0)
		require.NoError(t, err)
		_, err = s.Write([]byte(strconv.Itoa(i)))
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}

	require.Eventually(t, func() bool { return serverEvents.count() == n }, 30*time.Second, 10*time.Millisecond)

	got := serverEvents.snapshot()
	for i, data := range got {
		require.Equal(t, strconv.Itoa(i), string(data))
	}
}

func TestIntegrationReliableUnorderedUnderLossDeliversExactlyOnce(t *testing.T) {
	server, client := newLoopbackPair(t, []ChannelKind{ReliableUnordered})
	defer server.Stop()
	defer client.Stop()

	relay, err := lossy.New(server.sock.LocalAddr().String(), 0.25)
	require.NoError(t, err)
	relay.Serve()
	defer relay.Close()

	serverEvents, clientEvents := &collector{}, &collector{}
	defer startPolling(server, serverEvents)()
	defer startPolling(client, clientEvents)()

	conn, err := client.Connect(relay.Addr().String())
	require.NoError(t, err)
	require.Eventually(t, clientEvents.isConnected, 2*time.Second, time.Millisecond)

	const n = 300
	for i := 0; i < n; i++ {
		s, err := conn.Send(0)
		require.NoError(t, err)
		_, err = s.Write([]byte(strconv.Itoa(i)))
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}

	require.Eventually(t, func() bool { return serverEvents.count() == n }, 30*time.Second, 10*time.Millisecond)

	got := serverEvents.snapshot()
	values := make([]int, len(got))
	for i, data := range got {
		v, err := strconv.Atoi(string(data))
		require.NoError(t, err)
		values[i] = v
	}
	sort.Ints(values)
	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	require.Equal(t, want, values, "every message must arrive exactly once, in some order")
}

func TestIntegrationReliableSequencedUnderLossEndsAtLastMessage(t *testing.T) {
	server, client := newLoopbackPair(t, []ChannelKind{ReliableSequenced})
	defer server.Stop()
	defer client.Stop()

	relay, err := lossy.New(server.sock.LocalAddr().String(), 0.25)
	require.NoError(t, err)
	relay.Serve()
	defer relay.Close()

	serverEvents, clientEvents := &collector{}, &collector{}
	defer startPolling(server, serverEvents)()
	defer startPolling(client, clientEvents)()

	conn, err := client.Connect(relay.Addr().String())
	require.NoError(t, err)
	require.Eventually(t, clientEvents.isConnected, 2*time.Second, time.Millisecond)

	const n = 200
	for i := 0; i < n; i++ {
		s, err := conn.Send(0)
		require.NoError(t, err)
		_, err = s.Write([]byte(strconv.Itoa(i)))
		require.NoError(t, err)
		require.NoError(t, s.Close())
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		got := serverEvents.snapshot()
		return len(got) > 0 && string(got[len(got)-1]) == strconv.Itoa(n-1)
	}, 15*time.Second, 10*time.Millisecond)

	got := serverEvents.snapshot()
	last := -1
	for _, data := range got {
		v, err := strconv.Atoi(string(data))
		require.NoError(t, err)
		require.Greater(t, v, last, "reliable-sequenced must never deliver out of increasing order")
		last = v
	}
	require.Equal(t, n-1, last)
}

func TestIntegrationUnreliableSequencedUnderLossStrictlyIncreasing(t *testing.T) {
	server, client := newLoopbackPair(t, []ChannelKind{UnreliableSequenced})
	defer server.Stop()
	defer client.Stop()

	relay, err := lossy.New(server.sock.LocalAddr().String(), 0.25)
	require.NoError(t, err)
	relay.Serve()
	defer relay.Close()

	serverEvents, clientEvents := &collector{}, &collector{}
	defer startPolling(server, serverEvents)()
	defer startPolling(client, clientEvents)()

	conn, err := client.Connect(relay.Addr().String())
	require.NoError(t, err)
	require.Eventually(t, clientEvents.isConnected, 2*time.Second, time.Millisecond)

	const n = 300
	for i := 0; i < n; i++ {
		s, err := conn.Send(0)
		require.NoError(t, err)
		_, err = s.Write([]byte(strconv.Itoa(i)))
		require.NoError(t, err)
		require.NoError(t, s.Close())
		time.Sleep(time.Millisecond)
	}

	// unreliable delivery: give stragglers a moment to arrive, then stop
	// waiting rather than requiring an exact count that loss makes
	// unpredictable.
	time.Sleep(200 * time.Millisecond)

	got := serverEvents.snapshot()
	require.NotEmpty(t, got, "at least some messages should survive 25% loss")
	last := -1
	for _, data := range got {
		v, err := strconv.Atoi(string(data))
		require.NoError(t, err)
		require.Greater(t, v, last, "unreliable-sequenced must never deliver out of increasing order")
		require.Less(t, v, n)
		last = v
	}
}

func TestIntegrationLargeMessageAcrossManyFragments(t *testing.T) {
	server, client := newLoopbackPair(t, []ChannelKind{ReliableOrdered})
	defer server.Stop()
	defer client.Stop()

	serverEvents, clientEvents := &collector{}, &collector{}
	defer startPolling(server, serverEvents)()
	defer startPolling(client, clientEvents)()

	conn, err := client.Connect(server.sock.LocalAddr().String())
	require.NoError(t, err)
	require.Eventually(t, clientEvents.isConnected, 2*time.Second, time.Millisecond)

	const size = 200 * 1024
	require.Less(t, size, MaxMessageSize)

	msg := make([]byte, size)
	rng := rand.New(rand.NewSource(1))
	rng.Read(msg)

	s, err := conn.Send(0)
	require.NoError(t, err)
	n, err := s.Write(msg)
	require.NoError(t, err)
	require.Equal(t, size, n)
	require.NoError(t, s.Close())

	require.Eventually(t, func() bool { return serverEvents.count() == 1 }, 15*time.Second, 10*time.Millisecond)

	got := serverEvents.snapshot()
	require.Equal(t, msg, got[0])

	fragmentCount := (size + FragmentPayloadSize - 1) / FragmentPayloadSize
	require.Greater(t, fragmentCount, 100, "this message should require a substantial fragment run")
	require.LessOrEqual(t, fragmentCount, MaxFragments)
}
