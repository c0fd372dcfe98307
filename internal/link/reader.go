package link

import (
	"bufio"
	"errors"
	"io"

	"github.com/sweeney/waggle-node/internal/frame"
)

// MaxFrameLen bounds a single stuffed frame. Anything longer is line noise.
const MaxFrameLen = 512

// ErrFrameTooLong is returned when no delimiter arrives within MaxFrameLen
// bytes. The reader resynchronises on the next delimiter.
var ErrFrameTooLong = errors.New("link: frame too long")

// FrameReader splits a byte stream into delimiter-terminated frames.
type FrameReader struct {
	r   *bufio.Reader
	buf []byte
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:   bufio.NewReaderSize(r, MaxFrameLen),
		buf: make([]byte, 0, MaxFrameLen),
	}
}

// ReadFrame returns the next non-empty stuffed frame without its delimiter.
// The returned slice is only valid until the next call. A partial frame at
// end of stream is discarded and io.EOF returned.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	f.buf = f.buf[:0]
	overflow := false

	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return nil, err
		}

		if b != frame.Delimiter {
			if len(f.buf) < MaxFrameLen {
				f.buf = append(f.buf, b)
			} else {
				overflow = true
			}
			continue
		}

		switch {
		case overflow:
			return nil, ErrFrameTooLong
		case len(f.buf) == 0:
			// Back-to-back delimiters carry no frame.
			continue
		}
		return f.buf, nil
	}
}
