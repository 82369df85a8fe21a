package zerocopy

import (
	"encoding/binary"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"

	"github.com/jhump/protonative/internal/lifecycle"
)

// CodedOutputStream encodes protobuf wire primitives into an OutputStream.
// Values are encoded directly into the regions handed out by the stream
// whenever they fit.
//
// Errors from the underlying stream are sticky: after the first failure,
// every write returns the same error.
//
// A CodedOutputStream owns the stream it writes to. Close hands the unused
// part of the current region back to that stream and then closes it, which
// for a BufferOutputStream commits the written bytes.
type CodedOutputStream struct {
	guard lifecycle.Guard
	out   OutputStream

	// buf is the unused tail of the most recent region returned by out.
	buf     []byte
	written int64
	err     error
	scratch [binary.MaxVarintLen64]byte
}

// NewCodedOutputStream returns a coded stream that writes to out and takes
// ownership of it.
func NewCodedOutputStream(out OutputStream) *CodedOutputStream {
	return &CodedOutputStream{out: out}
}

func (c *CodedOutputStream) nextRegion() bool {
	if c.err != nil {
		return false
	}
	region, err := c.out.Next()
	if err != nil {
		c.err = err
		return false
	}
	c.buf = region
	return true
}

// WriteRaw writes b as is.
func (c *CodedOutputStream) WriteRaw(b []byte) error {
	c.guard.Check("CodedOutputStream")
	return c.writeRaw(b)
}

func (c *CodedOutputStream) writeRaw(b []byte) error {
	for len(b) > 0 {
		if len(c.buf) == 0 && !c.nextRegion() {
			return c.err
		}
		n := copy(c.buf, b)
		c.buf = c.buf[n:]
		c.written += int64(n)
		b = b[n:]
	}
	return c.err
}

// appendInPlace encodes a value of at most size bytes with enc, directly into
// the current region when it has room and through scratch space otherwise.
func (c *CodedOutputStream) appendInPlace(size int, enc func([]byte) []byte) error {
	c.guard.Check("CodedOutputStream")
	if c.err != nil {
		return c.err
	}
	if len(c.buf) >= size {
		n := len(enc(c.buf[:0]))
		c.buf = c.buf[n:]
		c.written += int64(n)
		return nil
	}
	return c.writeRaw(enc(c.scratch[:0]))
}

// WriteVarint writes v as a varint.
func (c *CodedOutputStream) WriteVarint(v uint64) error {
	return c.appendInPlace(binary.MaxVarintLen64, func(b []byte) []byte {
		return protowire.AppendVarint(b, v)
	})
}

// WriteTag writes the tag for the given field number and wire type.
func (c *CodedOutputStream) WriteTag(num protowire.Number, typ protowire.Type) error {
	return c.WriteVarint(protowire.EncodeTag(num, typ))
}

// WriteFixed32 writes v as a little-endian 32-bit integer.
func (c *CodedOutputStream) WriteFixed32(v uint32) error {
	return c.appendInPlace(4, func(b []byte) []byte {
		return protowire.AppendFixed32(b, v)
	})
}

// WriteFixed64 writes v as a little-endian 64-bit integer.
func (c *CodedOutputStream) WriteFixed64(v uint64) error {
	return c.appendInPlace(8, func(b []byte) []byte {
		return protowire.AppendFixed64(b, v)
	})
}

// WriteBytes writes b prefixed with its varint-encoded length.
func (c *CodedOutputStream) WriteBytes(b []byte) error {
	if err := c.WriteVarint(uint64(len(b))); err != nil {
		return err
	}
	return c.writeRaw(b)
}

// WriteString writes s prefixed with its varint-encoded length.
func (c *CodedOutputStream) WriteString(s string) error {
	if err := c.WriteVarint(uint64(len(s))); err != nil {
		return err
	}
	return c.writeRaw([]byte(s))
}

// WriteMessage writes m prefixed with its varint-encoded size. When the
// current region has room, m is marshaled straight into it.
func (c *CodedOutputStream) WriteMessage(m proto.Message) error {
	size := proto.Size(m)
	if err := c.WriteVarint(uint64(size)); err != nil {
		return err
	}
	if len(c.buf) >= size {
		b, err := proto.MarshalOptions{UseCachedSize: true}.MarshalAppend(c.buf[:0], m)
		if err != nil {
			return err
		}
		c.buf = c.buf[len(b):]
		c.written += int64(len(b))
		return nil
	}
	b, err := proto.MarshalOptions{UseCachedSize: true}.Marshal(m)
	if err != nil {
		return err
	}
	return c.writeRaw(b)
}

// ByteCount returns the number of bytes written through this coded stream.
func (c *CodedOutputStream) ByteCount() int64 {
	c.guard.Check("CodedOutputStream")
	return c.written
}

// Err returns the first error encountered while writing, if any.
func (c *CodedOutputStream) Err() error {
	return c.err
}

// Trim hands the unused part of the current region back to the underlying
// stream, so that the stream's ByteCount matches what was written.
func (c *CodedOutputStream) Trim() {
	c.guard.Check("CodedOutputStream")
	c.trim()
}

func (c *CodedOutputStream) trim() {
	if len(c.buf) > 0 {
		c.out.BackUp(len(c.buf))
		c.buf = nil
	}
}

// Close trims the stream and closes the underlying stream if it is an
// io.Closer. It returns the first write error, if any, or else the error
// from closing. Closing an already closed stream does nothing.
func (c *CodedOutputStream) Close() error {
	return c.release(true)
}

func (c *CodedOutputStream) release(closeUnderlying bool) error {
	if !c.guard.Release() {
		return nil
	}
	c.trim()
	err := c.err
	if closer, ok := c.out.(io.Closer); ok && closeUnderlying {
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
