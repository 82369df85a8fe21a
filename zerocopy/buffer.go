package zerocopy

import (
	"slices"

	"github.com/jhump/protonative/internal/lifecycle"
)

// minBufferSize is the smallest capacity a BufferOutputStream grows to.
const minBufferSize = 16

// BufferOutputStream is an OutputStream that writes directly into the spare
// capacity of a caller-owned byte slice, growing it as needed. It avoids the
// copy a WriterStream would make when the destination is simply memory.
//
// The stream borrows the slice: it holds a pointer to the caller's slice
// header and may replace it with a larger one when growing. Bytes already in
// the slice when the stream is created are preserved, and new bytes are
// appended after them.
//
// The length of the slice is only updated by Close. Until then, written
// bytes live in the slice's capacity beyond its length, so the caller must
// not read, modify, or replace the slice while the stream is open.
type BufferOutputStream struct {
	guard    lifecycle.Guard
	target   *[]byte
	start    int
	position int
}

var _ OutputStreamCloser = (*BufferOutputStream)(nil)

// NewBufferOutputStream returns a stream that appends to *target.
func NewBufferOutputStream(target *[]byte) *BufferOutputStream {
	n := len(*target)
	return &BufferOutputStream{target: target, start: n, position: n}
}

// Next returns all remaining capacity of the slice beyond the current
// position, first growing the slice if there is none. Growth preserves the
// bytes before the current position and at least doubles the capacity.
func (s *BufferOutputStream) Next() ([]byte, error) {
	s.guard.Check("BufferOutputStream")
	buf := *s.target
	if s.position == cap(buf) {
		want := max(s.position*2, minBufferSize)
		grown := slices.Grow(buf[:s.position], want-s.position)
		buf = grown[:len(buf)]
		*s.target = buf
	}
	region := buf[s.position:cap(buf):cap(buf)]
	s.position = cap(buf)
	return region, nil
}

// BackUp hands back the last count bytes written. Since the stream began,
// no more bytes may be backed up than were written; violating that panics.
func (s *BufferOutputStream) BackUp(count int) {
	s.guard.Check("BufferOutputStream")
	if count < 0 {
		panic("zerocopy: BackUp count must not be negative")
	}
	if int64(count) > s.ByteCount() {
		panic("zerocopy: BackUp count exceeds bytes written to BufferOutputStream")
	}
	s.position -= count
}

// ByteCount returns the number of bytes written since the stream was
// created, not counting bytes that were already in the slice.
func (s *BufferOutputStream) ByteCount() int64 {
	s.guard.Check("BufferOutputStream")
	return int64(s.position - s.start)
}

// Close commits the written bytes by setting the length of the caller's
// slice to the current position. After Close, the slice holds its original
// contents followed by everything written. Closing an already closed stream
// does nothing.
func (s *BufferOutputStream) Close() error {
	if !s.guard.Release() {
		return nil
	}
	*s.target = (*s.target)[:s.position]
	s.target = nil
	return nil
}
