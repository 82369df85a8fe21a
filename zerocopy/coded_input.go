package zerocopy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"

	"github.com/jhump/protonative/internal/lifecycle"
)

// ErrOverflow is returned when a varint is too large to be represented in
// 64 bits.
var ErrOverflow = errors.New("zerocopy: integer overflow")

const noLimit = math.MaxInt64

// CodedInputStream decodes protobuf wire primitives from an InputStream.
// Values that fit in the stream's current chunk are decoded in place; only
// values that straddle chunk boundaries are assembled byte by byte.
//
// A CodedInputStream owns the stream it reads from. Close hands unread
// bytes of the current chunk back to that stream and then closes it.
type CodedInputStream struct {
	guard lifecycle.Guard
	in    InputStream

	// buf is the unread tail of the most recent chunk returned by in.
	buf   []byte
	pos   int64
	limit int64
}

// NewCodedInputStream returns a coded stream that reads from in and takes
// ownership of it.
func NewCodedInputStream(in InputStream) *CodedInputStream {
	return &CodedInputStream{in: in, limit: noLimit}
}

// window returns the buffered bytes that may be consumed without crossing
// the current limit. It never reads from the underlying stream.
func (c *CodedInputStream) window() []byte {
	w := c.buf
	if rem := c.limit - c.pos; int64(len(w)) > rem {
		w = w[:rem]
	}
	return w
}

func (c *CodedInputStream) advance(n int) {
	c.buf = c.buf[n:]
	c.pos += int64(n)
}

// refill ensures at least one byte is buffered. It returns io.EOF at the end
// of the stream or when the current limit has been reached.
func (c *CodedInputStream) refill() error {
	if c.pos >= c.limit {
		return io.EOF
	}
	for len(c.buf) == 0 {
		chunk, err := c.in.Next()
		if err != nil {
			return err
		}
		c.buf = chunk
	}
	return nil
}

func (c *CodedInputStream) readByte() (byte, error) {
	if len(c.window()) == 0 {
		if err := c.refill(); err != nil {
			return 0, err
		}
	}
	b := c.buf[0]
	c.advance(1)
	return b, nil
}

// ReadVarint64 reads a varint-encoded integer. At the very end of input it
// returns io.EOF; if input ends partway through the varint, it returns
// io.ErrUnexpectedEOF.
func (c *CodedInputStream) ReadVarint64() (uint64, error) {
	c.guard.Check("CodedInputStream")
	w := c.window()
	if len(w) >= binary.MaxVarintLen64 || (len(w) > 0 && w[len(w)-1] < 0x80) {
		v, n := protowire.ConsumeVarint(w)
		if n < 0 {
			return 0, ErrOverflow
		}
		c.advance(n)
		return v, nil
	}
	return c.readVarintSlow()
}

func (c *CodedInputStream) readVarintSlow() (x uint64, err error) {
	for shift := uint(0); shift < 64; shift += 7 {
		b, err := c.readByte()
		if err != nil {
			if err == io.EOF && shift > 0 {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if shift == 63 && b > 1 {
			// Bits beyond the 64th.
			return 0, ErrOverflow
		}
		x |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return x, nil
		}
	}
	// The number is too large to represent in a 64-bit value.
	return 0, ErrOverflow
}

// ReadVarint32 reads a varint and truncates it to 32 bits, as is done for
// int32 fields encoded with 10-byte sign extension.
func (c *CodedInputStream) ReadVarint32() (uint32, error) {
	v, err := c.ReadVarint64()
	return uint32(v), err
}

// ReadTag reads a field tag. At the end of input, or when the current limit
// is reached, it returns io.EOF.
func (c *CodedInputStream) ReadTag() (protowire.Number, protowire.Type, error) {
	v, err := c.ReadVarint64()
	if err != nil {
		return 0, 0, err
	}
	num, typ := protowire.DecodeTag(v)
	if num < protowire.MinValidNumber || num > protowire.MaxValidNumber {
		return 0, 0, fmt.Errorf("zerocopy: invalid field number %d", num)
	}
	return num, typ, nil
}

// ReadFixed32 reads a little-endian 32-bit integer.
func (c *CodedInputStream) ReadFixed32() (uint32, error) {
	c.guard.Check("CodedInputStream")
	b, err := c.readRaw(4, false)
	if err != nil {
		return 0, err
	}
	v, _ := protowire.ConsumeFixed32(b)
	return v, nil
}

// ReadFixed64 reads a little-endian 64-bit integer.
func (c *CodedInputStream) ReadFixed64() (uint64, error) {
	c.guard.Check("CodedInputStream")
	b, err := c.readRaw(8, false)
	if err != nil {
		return 0, err
	}
	v, _ := protowire.ConsumeFixed64(b)
	return v, nil
}

// ReadRaw reads exactly n bytes into a newly allocated slice.
func (c *CodedInputStream) ReadRaw(n int) ([]byte, error) {
	c.guard.Check("CodedInputStream")
	if n < 0 {
		return nil, fmt.Errorf("zerocopy: bad byte length %d", n)
	}
	return c.readRaw(n, true)
}

// readRaw reads exactly n bytes. Unless alloc is set, the result may alias
// the current chunk and is only valid until the next read.
func (c *CodedInputStream) readRaw(n int, alloc bool) ([]byte, error) {
	if int64(n) > c.limit-c.pos {
		c.skipToLimit()
		return nil, io.ErrUnexpectedEOF
	}
	if w := c.window(); len(w) >= n {
		b := w[:n]
		c.advance(n)
		if alloc {
			b = append([]byte(nil), b...)
		}
		return b, nil
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		if err := c.refill(); err != nil {
			return nil, unexpectedEOF(err)
		}
		w := c.window()
		take := min(len(w), n-len(out))
		out = append(out, w[:take]...)
		c.advance(take)
	}
	return out, nil
}

func (c *CodedInputStream) skipToLimit() {
	if c.limit == noLimit {
		return
	}
	_ = c.skip(c.limit - c.pos)
}

// ReadBytes reads a length-delimited byte string.
func (c *CodedInputStream) ReadBytes() ([]byte, error) {
	n, err := c.readLength()
	if err != nil {
		return nil, err
	}
	return c.readRaw(n, true)
}

// ReadString reads a length-delimited string. It does not validate UTF-8.
func (c *CodedInputStream) ReadString() (string, error) {
	n, err := c.readLength()
	if err != nil {
		return "", err
	}
	b, err := c.readRaw(n, false)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *CodedInputStream) readLength() (int, error) {
	v, err := c.ReadVarint64()
	if err != nil {
		return 0, unexpectedEOF(err)
	}
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("zerocopy: bad byte length %d", v)
	}
	return int(v), nil
}

// ReadMessage reads a length-delimited message and merges it into m.
func (c *CodedInputStream) ReadMessage(m proto.Message) error {
	n, err := c.readLength()
	if err != nil {
		return err
	}
	b, err := c.readRaw(n, false)
	if err != nil {
		return err
	}
	return proto.UnmarshalOptions{Merge: true}.Unmarshal(b, m)
}

// Skip discards n bytes.
func (c *CodedInputStream) Skip(n int) error {
	c.guard.Check("CodedInputStream")
	if n < 0 {
		return fmt.Errorf("zerocopy: bad byte length %d", n)
	}
	if int64(n) > c.limit-c.pos {
		c.skipToLimit()
		return io.ErrUnexpectedEOF
	}
	return c.skip(int64(n))
}

func (c *CodedInputStream) skip(n int64) error {
	if int64(len(c.buf)) >= n {
		c.advance(int(n))
		return nil
	}
	n -= int64(len(c.buf))
	c.advance(len(c.buf))
	for n > 0 {
		skip := int(min(n, math.MaxInt32))
		if err := c.in.Skip(skip); err != nil {
			return unexpectedEOF(err)
		}
		c.pos += int64(skip)
		n -= int64(skip)
	}
	return nil
}

// SkipField discards the value of a field whose tag has just been read.
func (c *CodedInputStream) SkipField(num protowire.Number, typ protowire.Type) error {
	switch typ {
	case protowire.VarintType:
		_, err := c.ReadVarint64()
		return unexpectedEOF(err)
	case protowire.Fixed32Type:
		return c.Skip(4)
	case protowire.Fixed64Type:
		return c.Skip(8)
	case protowire.BytesType:
		n, err := c.readLength()
		if err != nil {
			return err
		}
		return c.Skip(n)
	case protowire.StartGroupType:
		for {
			fieldNum, fieldType, err := c.ReadTag()
			if err != nil {
				return unexpectedEOF(err)
			}
			if fieldType == protowire.EndGroupType {
				if fieldNum != num {
					return fmt.Errorf("zerocopy: mismatched end group: want %d, got %d", num, fieldNum)
				}
				return nil
			}
			if err := c.SkipField(fieldNum, fieldType); err != nil {
				return err
			}
		}
	case protowire.EndGroupType:
		return fmt.Errorf("zerocopy: unexpected end group for field %d", num)
	default:
		return fmt.Errorf("zerocopy: unknown wire type %d", typ)
	}
}

// PushLimit restricts reads to the next n bytes, as when descending into a
// length-delimited value. It returns the previous limit, which must be
// passed to PopLimit. A limit never extends past an enclosing one.
func (c *CodedInputStream) PushLimit(n int) int64 {
	c.guard.Check("CodedInputStream")
	old := c.limit
	if n >= 0 && int64(n) <= c.limit-c.pos {
		c.limit = c.pos + int64(n)
	}
	return old
}

// PopLimit restores a limit returned by PushLimit.
func (c *CodedInputStream) PopLimit(old int64) {
	c.guard.Check("CodedInputStream")
	c.limit = old
}

// BytesUntilLimit returns the number of bytes left before the current limit,
// or -1 if there is no limit.
func (c *CodedInputStream) BytesUntilLimit() int64 {
	c.guard.Check("CodedInputStream")
	if c.limit == noLimit {
		return -1
	}
	return c.limit - c.pos
}

// CurrentPosition returns the number of bytes read through this coded
// stream.
func (c *CodedInputStream) CurrentPosition() int64 {
	c.guard.Check("CodedInputStream")
	return c.pos
}

// Close returns unread buffered bytes to the underlying stream and closes it
// if it is an io.Closer. Closing an already closed stream does nothing.
func (c *CodedInputStream) Close() error {
	return c.release(true)
}

func (c *CodedInputStream) release(closeUnderlying bool) error {
	if !c.guard.Release() {
		return nil
	}
	if len(c.buf) > 0 {
		c.in.BackUp(len(c.buf))
		c.buf = nil
	}
	if closer, ok := c.in.(io.Closer); ok && closeUnderlying {
		return closer.Close()
	}
	return nil
}
