// Package zerocopy contains streams designed to minimize copying between a
// producer or consumer of protobuf bytes and the code that encodes or
// decodes them.
//
// Unlike io.Reader and io.Writer, where the caller supplies a buffer, a
// zero-copy stream hands out buffers that it owns. An input stream returns
// a chunk of its data from Next; an output stream returns a region to write
// into. In both cases, the caller may hand back the unused tail of the most
// recent chunk with BackUp. The stream may therefore point the caller
// directly at the final storage for the bytes, eliminating an intermediate
// copy.
//
// Adaptors are provided for the common cases of reading from an io.Reader
// (ReaderStream), writing to an io.Writer (WriterStream), and serializing
// into a growable byte slice (BufferOutputStream). CodedInputStream and
// CodedOutputStream layer the protobuf wire primitives (varints, fixed-width
// integers, length-delimited values) on top of any stream.
//
// None of the types in this package are safe for concurrent use. Each
// stream has a single owner, and releasing it (Close) is that owner's job.
// Using a stream after it is closed panics.
package zerocopy

import (
	"errors"
	"io"
)

var (
	// ErrReadFailed is returned (wrapped around the underlying cause) when
	// the reader backing a ReaderStream reports an error other than io.EOF.
	ErrReadFailed = errors.New("zerocopy: read failed")
	// ErrWriteFailed is returned (wrapped around the underlying cause) when
	// the writer backing a WriterStream reports an error. Once a write
	// fails, the stream stays failed.
	ErrWriteFailed = errors.New("zerocopy: write failed")
	// ErrBufferFull is returned by a SliceOutputStream whose fixed buffer
	// has no room left.
	ErrBufferFull = errors.New("zerocopy: buffer full")
)

// InputStream is a source of bytes that hands out its own buffers.
type InputStream interface {
	// Next returns the next chunk of data. The chunk is valid until the next
	// call to any method on the stream, and must not be modified. At end of
	// stream, Next returns io.EOF. Next never returns an empty chunk with a
	// nil error.
	Next() ([]byte, error)
	// BackUp returns the last count bytes of the most recent chunk to the
	// stream, so that they are returned again by the next call to Next.
	// It must be called only directly after Next, and count must not exceed
	// the length of that chunk. Violations panic.
	BackUp(count int)
	// Skip skips count bytes. It returns io.ErrUnexpectedEOF if the end of
	// the stream is reached first.
	Skip(count int) error
	// ByteCount returns the total number of bytes consumed so far.
	ByteCount() int64
}

// OutputStream is a sink of bytes that hands out its own buffers.
type OutputStream interface {
	// Next returns a region to write into. Every byte of the region is
	// considered written unless handed back with BackUp. The region is valid
	// until the next call to any method on the stream.
	Next() ([]byte, error)
	// BackUp returns the last count bytes of the most recent region to the
	// stream; they are not considered written. It must be called only
	// directly after Next, and count must not exceed the length of that
	// region. Violations panic.
	BackUp(count int)
	// ByteCount returns the total number of bytes written so far.
	ByteCount() int64
}

// InputStreamCloser is an InputStream whose owner must release it.
type InputStreamCloser interface {
	InputStream
	io.Closer
}

// OutputStreamCloser is an OutputStream whose owner must release it. Closing
// an output stream commits everything written to it.
type OutputStreamCloser interface {
	OutputStream
	io.Closer
}

func checkBackUp(count, limit int) {
	if count < 0 {
		panic("zerocopy: BackUp count must not be negative")
	}
	if count > limit {
		panic("zerocopy: BackUp count exceeds size of last chunk")
	}
}
