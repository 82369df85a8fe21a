package zerocopy

import (
	"io"

	"github.com/jhump/protonative/internal/lifecycle"
)

// SliceInputStream is an InputStream over a byte slice it does not own. The
// slice must not be modified while the stream is in use.
type SliceInputStream struct {
	guard     lifecycle.Guard
	data      []byte
	blockSize int
	pos       int
	lastSize  int
}

var _ InputStreamCloser = (*SliceInputStream)(nil)

// NewSliceInputStream returns a stream over data. If blockSize is positive,
// Next returns chunks of at most that many bytes; otherwise Next returns all
// remaining data at once.
func NewSliceInputStream(data []byte, blockSize int) *SliceInputStream {
	if blockSize <= 0 {
		blockSize = len(data)
	}
	return &SliceInputStream{data: data, blockSize: blockSize}
}

func (s *SliceInputStream) Next() ([]byte, error) {
	s.guard.Check("SliceInputStream")
	if s.pos >= len(s.data) {
		s.lastSize = 0
		return nil, io.EOF
	}
	n := min(s.blockSize, len(s.data)-s.pos)
	chunk := s.data[s.pos : s.pos+n : s.pos+n]
	s.pos += n
	s.lastSize = n
	return chunk, nil
}

func (s *SliceInputStream) BackUp(count int) {
	s.guard.Check("SliceInputStream")
	checkBackUp(count, s.lastSize)
	s.pos -= count
	s.lastSize = 0
}

func (s *SliceInputStream) Skip(count int) error {
	s.guard.Check("SliceInputStream")
	if count < 0 {
		panic("zerocopy: Skip count must not be negative")
	}
	s.lastSize = 0
	if count > len(s.data)-s.pos {
		s.pos = len(s.data)
		return io.ErrUnexpectedEOF
	}
	s.pos += count
	return nil
}

func (s *SliceInputStream) ByteCount() int64 {
	s.guard.Check("SliceInputStream")
	return int64(s.pos)
}

// Close releases the stream. The underlying slice is untouched.
func (s *SliceInputStream) Close() error {
	s.guard.Release()
	return nil
}

// SliceOutputStream is an OutputStream over a fixed-size byte slice it does
// not own. Once the slice is full, Next returns ErrBufferFull.
type SliceOutputStream struct {
	guard     lifecycle.Guard
	data      []byte
	blockSize int
	pos       int
	lastSize  int
}

var _ OutputStreamCloser = (*SliceOutputStream)(nil)

// NewSliceOutputStream returns a stream that writes into data. If blockSize
// is positive, Next returns regions of at most that many bytes.
func NewSliceOutputStream(data []byte, blockSize int) *SliceOutputStream {
	if blockSize <= 0 {
		blockSize = len(data)
	}
	return &SliceOutputStream{data: data, blockSize: blockSize}
}

func (s *SliceOutputStream) Next() ([]byte, error) {
	s.guard.Check("SliceOutputStream")
	if s.pos >= len(s.data) {
		s.lastSize = 0
		return nil, ErrBufferFull
	}
	n := min(s.blockSize, len(s.data)-s.pos)
	region := s.data[s.pos : s.pos+n : s.pos+n]
	s.pos += n
	s.lastSize = n
	return region, nil
}

func (s *SliceOutputStream) BackUp(count int) {
	s.guard.Check("SliceOutputStream")
	checkBackUp(count, s.lastSize)
	s.pos -= count
	s.lastSize = 0
}

func (s *SliceOutputStream) ByteCount() int64 {
	s.guard.Check("SliceOutputStream")
	return int64(s.pos)
}

// Bytes returns the written prefix of the underlying slice.
func (s *SliceOutputStream) Bytes() []byte {
	s.guard.Check("SliceOutputStream")
	return s.data[:s.pos]
}

// Close releases the stream.
func (s *SliceOutputStream) Close() error {
	s.guard.Release()
	return nil
}
