package trellis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferAcquireReleaseReuse(t *testing.T) {
	var pool BufferPool

	b1 := pool.Acquire()
	node1 := b1.node
	b1.Release()

	b2 := pool.Acquire()
	require.Same(t, node1, b2.node, "released buffer should be reused before allocating a new one")
	b2.Release()
}

func TestBufferRetainKeepsAlive(t *testing.T) {
	var pool BufferPool

	b := pool.Acquire()
	b2 := b.Retain()
	b.Release()

	// still one outstanding reference via b2; a fresh acquire must not
	// return the same node.
	other := pool.Acquire()
	require.NotSame(t, b.node, other.node)

	b2.Release()
	other.Release()
}

func TestBufferBytesLength(t *testing.T) {
	var pool BufferPool
	b := pool.Acquire()
	defer b.Release()
	require.Len(t, b.Bytes(), DatagramSize)
}

func TestBufferFreeListNoDuplicates(t *testing.T) {
	var pool BufferPool
	const n = 64
	bufs := make([]SharedBuffer, n)
	for i := range bufs {
		bufs[i] = pool.Acquire()
	}
	for i := range bufs {
		bufs[i].Release()
	}

	seen := make(map[*bufferNode]bool)
	for i := 0; i < n; i++ {
		b := pool.Acquire()
		require.False(t, seen[b.node], "free list yielded the same node twice")
		seen[b.node] = true
	}
}
