package zerocopy

import "io"

// NewReader returns an io.Reader that reads from in. Bytes of a chunk that
// do not fit into the caller's buffer are backed up into the stream, so
// in remains positioned exactly after the bytes returned by Read.
func NewReader(in InputStream) io.Reader {
	return &streamReader{in: in}
}

type streamReader struct {
	in InputStream
}

func (r *streamReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	chunk, err := r.in.Next()
	if err != nil {
		return 0, err
	}
	n := copy(p, chunk)
	if n < len(chunk) {
		r.in.BackUp(len(chunk) - n)
	}
	return n, nil
}

// NewWriter returns an io.Writer that writes to out. Unused space of the
// last region obtained from out is backed up before Write returns.
func NewWriter(out OutputStream) io.Writer {
	return &streamWriter{out: out}
}

type streamWriter struct {
	out OutputStream
}

func (w *streamWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		region, err := w.out.Next()
		if err != nil {
			return written, err
		}
		n := copy(region, p)
		written += n
		p = p[n:]
		if n < len(region) {
			w.out.BackUp(len(region) - n)
		}
	}
	return written, nil
}
