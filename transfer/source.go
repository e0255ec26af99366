package transfer

import (
	"errors"
	"io"
)

// Source yields image bytes. Fill copies as many bytes as are available
// into buf, up to len(buf); a short count means the source is exhausted
// after those bytes, 0 means it already was.
type Source interface {
	Fill(buf []byte) (int, error)
}

// Sink consumes image bytes in order.
type Sink interface {
	Append(data []byte) error
}

type readerSource struct {
	r io.Reader
}

// ReaderSource adapts an io.Reader.
func ReaderSource(r io.Reader) Source {
	return readerSource{r: r}
}

func (s readerSource) Fill(buf []byte) (int, error) {
	n, err := io.ReadFull(s.r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	return n, err
}

type writerSink struct {
	w io.Writer
}

// WriterSink adapts an io.Writer.
func WriterSink(w io.Writer) Sink {
	return writerSink{w: w}
}

func (s writerSink) Append(data []byte) error {
	_, err := s.w.Write(data)
	return err
}
