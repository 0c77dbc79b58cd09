package trellis

import "io"

// Stream is a write-only, seekable sink over one outgoing message on a
// specific channel of a specific connection. It acquires SharedBuffers
// lazily as the write cursor advances, one per fragment, and hands them
// to the channel's send path on Close. Grounded on
// original_source/include/trellis/streams.hpp's packetbuf/
// opacketstream, generalized from a fixed backing container type to a
// slice of lazily-acquired buffers.
//
// A Stream is not safe for concurrent use, and must not be used after
// Close.
type Stream struct {
	conn      *Connection
	channelID uint8
	buffers   []SharedBuffer
	pos       int
	length    int
	closed    bool
}

func newStream(conn *Connection, channelID uint8) *Stream {
	return &Stream{conn: conn, channelID: channelID}
}

var _ io.WriteSeeker = (*Stream)(nil)

func (s *Stream) fragmentBuffer(fragmentIndex int) (SharedBuffer, error) {
	if fragmentIndex >= MaxFragments {
		return SharedBuffer{}, ErrMessageTooLarge
	}
	for len(s.buffers) <= fragmentIndex {
		s.buffers = append(s.buffers, s.conn.owner.pool().Acquire())
	}
	return s.buffers[fragmentIndex], nil
}

// Write appends p at the current cursor position, extending the
// message and acquiring new fragment buffers as needed, and advances
// the cursor by len(p).
func (s *Stream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	written := 0
	for len(p) > 0 {
		fragmentIndex := s.pos / FragmentPayloadSize
		offset := s.pos % FragmentPayloadSize
		buf, err := s.fragmentBuffer(fragmentIndex)
		if err != nil {
			return written, err
		}
		n := copy(buf.Bytes()[DataHeaderBytes+offset:DataHeaderBytes+FragmentPayloadSize], p)
		p = p[n:]
		s.pos += n
		written += n
		if s.pos > s.length {
			s.length = s.pos
		}
	}
	return written, nil
}

// Seek repositions the cursor. Writing past the previous end of the
// message after seeking forward extends it; seeking never itself
// changes the message's logical length.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = int64(s.pos) + offset
	case io.SeekEnd:
		target = int64(s.length) + offset
	default:
		return 0, errHeaderf("invalid whence %d", whence)
	}
	if target < 0 || target > MaxMessageSize {
		return 0, errHeaderf("seek target %d out of range", target)
	}
	s.pos = int(target)
	return target, nil
}

// Close finalizes the message and hands it to the channel's send path.
// A zero-byte message still occupies exactly one fragment, per the
// wire format's fragment_count >= 1 requirement. Close is idempotent;
// calling it twice is a no-op after the first call.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	fragmentCount := 1
	if s.length > 0 {
		fragmentCount = (s.length + FragmentPayloadSize - 1) / FragmentPayloadSize
	}
	lastLen := s.length - (fragmentCount-1)*FragmentPayloadSize

	for len(s.buffers) < fragmentCount {
		buf, err := s.fragmentBuffer(len(s.buffers))
		if err != nil {
			for _, b := range s.buffers {
				b.Release()
			}
			return err
		}
		_ = buf
	}
	for _, extra := range s.buffers[fragmentCount:] {
		extra.Release()
	}
	buffers := s.buffers[:fragmentCount]

	s.conn.sendMessage(s.channelID, buffers, fragmentCount, lastLen)
	return nil
}
