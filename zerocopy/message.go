package zerocopy

import (
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/proto"
)

// Marshal serializes m into out. If the first region handed out by out is
// large enough, m is marshaled directly into it; otherwise the encoded bytes
// are copied across as many regions as needed.
func Marshal(out OutputStream, m proto.Message) error {
	size := proto.Size(m)
	if size == 0 {
		return nil
	}
	region, err := out.Next()
	if err != nil {
		return err
	}
	if len(region) >= size {
		if _, err := (proto.MarshalOptions{UseCachedSize: true}).MarshalAppend(region[:0], m); err != nil {
			out.BackUp(len(region))
			return err
		}
		out.BackUp(len(region) - size)
		return nil
	}
	out.BackUp(len(region))
	data, err := proto.MarshalOptions{UseCachedSize: true}.Marshal(m)
	if err != nil {
		return err
	}
	_, err = NewWriter(out).Write(data)
	return err
}

// MarshalToWriter serializes m to w through a WriterStream. The writer is
// not closed. A failed write surfaces as an error matching ErrWriteFailed.
func MarshalToWriter(w io.Writer, m proto.Message) error {
	// Hide any Close method: the caller keeps ownership of w.
	s := NewWriterStream(struct{ io.Writer }{w})
	if err := Marshal(s, m); err != nil {
		_ = s.Close()
		return err
	}
	return s.Close()
}

// Unmarshal reads in to its end and parses the bytes into m, replacing its
// contents.
func Unmarshal(in InputStream, m proto.Message) error {
	data, err := io.ReadAll(NewReader(in))
	if err != nil {
		return err
	}
	return proto.Unmarshal(data, m)
}

// UnmarshalFromReader reads r to its end through a ReaderStream and parses
// the bytes into m. The reader is not closed. A failed read surfaces as an
// error matching ErrReadFailed.
func UnmarshalFromReader(r io.Reader, m proto.Message) error {
	s := NewReaderStream(struct{ io.Reader }{r})
	defer s.Close()
	return Unmarshal(s, m)
}

// WriteDelimited writes m to out prefixed by its varint-encoded size. The
// stream is left open, positioned after the message.
func WriteDelimited(out OutputStream, m proto.Message) error {
	c := NewCodedOutputStream(out)
	err := c.WriteMessage(m)
	if rerr := c.release(false); err == nil {
		err = rerr
	}
	return err
}

// ReadDelimited reads a size-prefixed message written by WriteDelimited and
// merges it into m. It returns io.EOF if in is already at its end. The
// stream is left open, positioned after the message.
func ReadDelimited(in InputStream, m proto.Message) error {
	c := NewCodedInputStream(in)
	defer c.release(false)
	n, err := c.ReadVarint64()
	if err != nil {
		return err
	}
	if n > math.MaxInt32 {
		return fmt.Errorf("zerocopy: bad byte length %d", n)
	}
	b, err := c.readRaw(int(n), false)
	if err != nil {
		return err
	}
	return proto.UnmarshalOptions{Merge: true}.Unmarshal(b, m)
}
