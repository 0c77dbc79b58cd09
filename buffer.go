package trellis

import "sync/atomic"

// bufferNode is one slot in the pool's Treiber stack: a datagram-sized
// backing array, a refcount, and a link to the next free node. Nodes
// are never freed once allocated; they only move between the free
// stack and outstanding SharedBuffers.
type bufferNode struct {
	data [DatagramSize]byte
	refs int32
	next atomic.Pointer[bufferNode]
}

// SharedBuffer is a reference-counted handle to a DatagramSize byte
// array. Copying a SharedBuffer does not copy the bytes; use Retain to
// take an additional reference and Release to drop one. The buffer
// returns to its pool's free list when the last reference is released.
type SharedBuffer struct {
	pool *BufferPool
	node *bufferNode
}

// Bytes returns the full backing array as a slice. Callers that only
// hold a SharedBuffer through a send completion must not retain this
// slice past Release.
func (b SharedBuffer) Bytes() []byte {
	return b.node.data[:]
}

// Retain increments the reference count and returns b unchanged, for
// call sites that want to hand the same buffer to two owners (e.g. the
// retry queue and the socket write).
func (b SharedBuffer) Retain() SharedBuffer {
	atomic.AddInt32(&b.node.refs, 1)
	return b
}

// Release drops one reference. When the count reaches zero the node is
// pushed back onto the pool's free list.
func (b SharedBuffer) Release() {
	if atomic.AddInt32(&b.node.refs, -1) == 0 {
		b.pool.push(b.node)
	}
}

// BufferPool is an unbounded lock-free LIFO of DatagramSize buffers,
// grounded on the reference implementation's datagram_buffer_cache free
// list. Each Context owns exactly one pool; pools are never shared
// across contexts. The zero value is ready to use.
type BufferPool struct {
	free atomic.Pointer[bufferNode]
}

// Acquire pops a buffer from the free list, or allocates a new one if
// the list is empty. The returned SharedBuffer starts with a single
// reference.
func (p *BufferPool) Acquire() SharedBuffer {
	for {
		head := p.free.Load()
		if head == nil {
			return SharedBuffer{pool: p, node: &bufferNode{refs: 1}}
		}
		next := head.next.Load()
		if p.free.CompareAndSwap(head, next) {
			head.next.Store(nil)
			atomic.StoreInt32(&head.refs, 1)
			return SharedBuffer{pool: p, node: head}
		}
	}
}

func (p *BufferPool) push(n *bufferNode) {
	for {
		head := p.free.Load()
		n.next.Store(head)
		if p.free.CompareAndSwap(head, n) {
			return
		}
	}
}
