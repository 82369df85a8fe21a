package zerocopy

import (
	"errors"
	"fmt"
	"io"

	"github.com/jhump/protonative/internal/lifecycle"
	"github.com/jhump/protonative/logging"
)

// DefaultBlockSize is the buffer size used by ReaderStream and WriterStream
// when none is given.
const DefaultBlockSize = 8192

// maxEmptyReads bounds how many times in a row a reader may return (0, nil)
// before the stream gives up with io.ErrNoProgress.
const maxEmptyReads = 100

// ReaderStream adapts an io.Reader into an InputStream. Data is read into an
// internal buffer, and Next returns slices of that buffer. Bytes handed back
// with BackUp are served again from the buffer; the reader is never asked to
// unread anything.
//
// The stream takes ownership of the reader: the caller must not use it
// directly once the stream is created. Close closes the reader if it
// implements io.Closer.
//
// Next blocks for as long as the reader's Read method blocks.
type ReaderStream struct {
	guard lifecycle.Guard
	r     io.Reader

	buffer     []byte
	bufferUsed int
	backup     int
	lastSize   int
	position   int64

	// pending holds an error returned by Read alongside data; it is
	// reported once the data has been consumed.
	pending error
	err     error
}

var _ InputStreamCloser = (*ReaderStream)(nil)

// NewReaderStream returns a stream that reads from r using DefaultBlockSize.
func NewReaderStream(r io.Reader) *ReaderStream {
	return NewReaderStreamSize(r, DefaultBlockSize)
}

// NewReaderStreamSize returns a stream that reads from r in blocks of at
// most blockSize bytes. A non-positive blockSize selects DefaultBlockSize.
func NewReaderStreamSize(r io.Reader, blockSize int) *ReaderStream {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &ReaderStream{r: r, buffer: make([]byte, blockSize)}
}

func (s *ReaderStream) Next() ([]byte, error) {
	s.guard.Check("ReaderStream")
	s.lastSize = 0
	if s.backup > 0 {
		chunk := s.buffer[s.bufferUsed-s.backup : s.bufferUsed]
		s.position += int64(s.backup)
		s.lastSize = s.backup
		s.backup = 0
		return chunk, nil
	}
	if s.err != nil {
		return nil, s.err
	}

	n, err := s.fill()
	if n > 0 {
		s.position += int64(n)
		s.lastSize = n
		return s.buffer[:n], nil
	}
	return nil, err
}

// fill reads the next block into the buffer. It returns a positive count
// with a nil error, or zero with the error that ended the stream.
func (s *ReaderStream) fill() (int, error) {
	s.bufferUsed = 0
	if s.pending != nil {
		s.fail(s.pending)
		return 0, s.err
	}
	for range maxEmptyReads {
		n, err := s.r.Read(s.buffer)
		if n < 0 || n > len(s.buffer) {
			panic(fmt.Sprintf("zerocopy: reader returned invalid count %d", n))
		}
		if n > 0 {
			s.bufferUsed = n
			s.pending = err
			return n, nil
		}
		if err != nil {
			s.fail(err)
			return 0, s.err
		}
	}
	s.fail(io.ErrNoProgress)
	return 0, s.err
}

func (s *ReaderStream) fail(err error) {
	if errors.Is(err, io.EOF) {
		s.err = io.EOF
		return
	}
	s.err = fmt.Errorf("%w: %w", ErrReadFailed, err)
	logging.Logger().WithError(err).Debug("zerocopy: reader stream failed")
}

func (s *ReaderStream) BackUp(count int) {
	s.guard.Check("ReaderStream")
	checkBackUp(count, s.lastSize)
	s.backup = count
	s.position -= int64(count)
	s.lastSize = 0
}

func (s *ReaderStream) Skip(count int) error {
	s.guard.Check("ReaderStream")
	if count < 0 {
		panic("zerocopy: Skip count must not be negative")
	}
	s.lastSize = 0
	if count <= s.backup {
		s.backup -= count
		s.position += int64(count)
		return nil
	}
	count -= s.backup
	s.position += int64(s.backup)
	s.backup = 0

	for count > 0 {
		if s.err != nil {
			return unexpectedEOF(s.err)
		}
		n, err := s.fill()
		if n == 0 {
			return unexpectedEOF(err)
		}
		if n > count {
			// Keep the remainder of this block for the next call to Next.
			s.backup = n - count
			n = count
		}
		s.position += int64(n)
		count -= n
	}
	return nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (s *ReaderStream) ByteCount() int64 {
	s.guard.Check("ReaderStream")
	return s.position
}

// Close releases the stream and closes the underlying reader if it is an
// io.Closer. Closing an already closed stream does nothing.
func (s *ReaderStream) Close() error {
	if !s.guard.Release() {
		return nil
	}
	s.buffer = nil
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
