package zerocopy

import (
	"fmt"
	"io"

	"github.com/jhump/protonative/internal/lifecycle"
	"github.com/jhump/protonative/logging"
)

// WriterStream adapts an io.Writer into an OutputStream. Next hands out
// regions of an internal buffer; once the buffer is full (or on Flush or
// Close) its finalized contents are passed to the writer in a single Write
// call. Bytes handed back with BackUp are never written.
//
// The stream takes ownership of the writer: the caller must not use it
// directly once the stream is created. Close flushes and then closes the
// writer if it implements io.Closer.
//
// If the writer fails, the stream is permanently failed: every later call
// to Next, Flush or Close reports an error matching ErrWriteFailed.
type WriterStream struct {
	guard lifecycle.Guard
	w     io.Writer

	buffer     []byte
	bufferUsed int
	lastSize   int
	position   int64
	err        error
}

var _ OutputStreamCloser = (*WriterStream)(nil)

// NewWriterStream returns a stream that writes to w using DefaultBlockSize.
func NewWriterStream(w io.Writer) *WriterStream {
	return NewWriterStreamSize(w, DefaultBlockSize)
}

// NewWriterStreamSize returns a stream that writes to w in blocks of at most
// blockSize bytes. A non-positive blockSize selects DefaultBlockSize.
func NewWriterStreamSize(w io.Writer, blockSize int) *WriterStream {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &WriterStream{w: w, buffer: make([]byte, blockSize)}
}

func (s *WriterStream) Next() ([]byte, error) {
	s.guard.Check("WriterStream")
	s.lastSize = 0
	if s.err != nil {
		return nil, s.err
	}
	if s.bufferUsed == len(s.buffer) {
		if err := s.writeBuffer(); err != nil {
			return nil, err
		}
	}
	region := s.buffer[s.bufferUsed:]
	s.lastSize = len(region)
	s.position += int64(len(region))
	s.bufferUsed = len(s.buffer)
	return region, nil
}

func (s *WriterStream) BackUp(count int) {
	s.guard.Check("WriterStream")
	checkBackUp(count, s.lastSize)
	s.bufferUsed -= count
	s.position -= int64(count)
	s.lastSize = 0
}

func (s *WriterStream) ByteCount() int64 {
	s.guard.Check("WriterStream")
	return s.position
}

// Flush passes all buffered bytes to the writer.
func (s *WriterStream) Flush() error {
	s.guard.Check("WriterStream")
	s.lastSize = 0
	return s.writeBuffer()
}

func (s *WriterStream) writeBuffer() error {
	if s.err != nil {
		return s.err
	}
	if s.bufferUsed == 0 {
		return nil
	}
	n, err := s.w.Write(s.buffer[:s.bufferUsed])
	if err == nil && n != s.bufferUsed {
		err = io.ErrShortWrite
	}
	s.bufferUsed = 0
	if err != nil {
		s.err = fmt.Errorf("%w: %w", ErrWriteFailed, err)
		logging.Logger().WithError(err).Debug("zerocopy: writer stream failed")
		return s.err
	}
	return nil
}

// Close flushes the stream, releases it, and closes the underlying writer
// if it is an io.Closer. The writer is closed even if the flush fails; the
// flush error takes precedence. Closing an already closed stream does
// nothing.
func (s *WriterStream) Close() error {
	if s.guard.Released() {
		return nil
	}
	err := s.writeBuffer()
	s.guard.Release()
	s.buffer = nil
	if c, ok := s.w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
