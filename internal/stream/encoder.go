package stream

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

var ErrBadContainer = errors.New("stream: input does not start with the container magic")

// Encoder is the inverse of Decoder: it consumes a standard container,
// drops its magic and writes the key followed by the obfuscated payload.
type Encoder struct {
	w      io.Writer
	key    [KeySize]byte
	head   []byte
	offset uint64
	buf    []byte
	err    error
}

func NewEncoder(w io.Writer, key [KeySize]byte) *Encoder {
	return &Encoder{w: w, key: key, head: make([]byte, 0, HeaderSize)}
}

func (e *Encoder) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n := len(p)
	if len(e.head) < HeaderSize {
		take := min(HeaderSize-len(e.head), len(p))
		e.head = append(e.head, p[:take]...)
		p = p[take:]
		if len(e.head) < HeaderSize {
			return n, nil
		}
		if !bytes.Equal(e.head, Header()) {
			e.err = ErrBadContainer
			return 0, e.err
		}
		if _, err := e.w.Write(e.key[:]); err != nil {
			e.err = err
			return 0, err
		}
	}

	e.buf = e.buf[:0]
	for _, b := range p {
		e.buf = append(e.buf, b^e.key[e.offset%KeySize])
		e.offset++
	}
	if _, err := e.w.Write(e.buf); err != nil {
		e.err = err
		return 0, err
	}
	return n, nil
}

// Close reports a truncated container. It does not close the underlying writer.
func (e *Encoder) Close() error {
	if e.err != nil {
		return e.err
	}
	if len(e.head) < HeaderSize {
		return ErrBadContainer
	}
	return nil
}
