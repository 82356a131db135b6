package stream

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// KeySize is the length of the session key that opens every export.
const KeySize = 16

const headerMask = 0xD9

// headerSeed is stored masked with headerMask; unmasked it is the magic of
// an xz container, which the export omits.
var headerSeed = [...]byte{36, 238, 163, 129, 131, 217}

// HeaderSize is the number of synthesized bytes that precede the payload.
const HeaderSize = len(headerSeed)

var ErrKeyTooShort = errors.New("stream: first chunk shorter than the 16 byte key")

// DecodeIOError reports a failure of the underlying stream or of a stage
// consuming it. It is never retried by the pipeline.
type DecodeIOError struct {
	Op  string
	Err error
}

func (e *DecodeIOError) Error() string {
	return fmt.Sprintf("stream: %s: %v", e.Op, e.Err)
}

func (e *DecodeIOError) Unwrap() error {
	return e.Err
}

// Header returns the bytes emitted before the first decoded payload byte.
func Header() []byte {
	h := make([]byte, HeaderSize)
	for i, b := range headerSeed {
		h[i] = b ^ headerMask
	}
	return h
}

// Decoder turns an obfuscated export into a standard compressed container.
// It pulls one chunk from its Source only once the previous chunk has been
// consumed, so the source is never read ahead of the consumer.
type Decoder struct {
	ctx    context.Context
	src    Source
	key    [KeySize]byte
	keyed  bool
	offset uint64
	out    []byte
	pos    int
	err    error
}

func NewDecoder(ctx context.Context, src Source) *Decoder {
	return &Decoder{ctx: ctx, src: src}
}

func (d *Decoder) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for d.pos >= len(d.out) {
		if d.err != nil {
			return 0, d.err
		}
		if err := d.fill(); err != nil {
			d.err = err
			if err != io.EOF {
				// abandon the upstream read once the stream is unusable
				d.src.Close()
			}
		}
	}
	n := copy(p, d.out[d.pos:])
	d.pos += n
	return n, nil
}

func (d *Decoder) fill() error {
	chunk, err := d.src.Next(d.ctx)
	if err != nil {
		if err == io.EOF {
			if !d.keyed {
				return ErrKeyTooShort
			}
			return io.EOF
		}
		return &DecodeIOError{Op: "read", Err: err}
	}

	d.out = d.out[:0]
	d.pos = 0

	if !d.keyed {
		if len(chunk) < KeySize {
			return ErrKeyTooShort
		}
		copy(d.key[:], chunk[:KeySize])
		chunk = chunk[KeySize:]
		d.keyed = true
		for _, b := range headerSeed {
			d.out = append(d.out, b^headerMask)
		}
	}

	for _, b := range chunk {
		d.out = append(d.out, b^d.key[d.offset%KeySize])
		d.offset++
	}
	return nil
}

// Err returns the error that stopped the decoder, or nil while it is
// healthy or after a clean end of stream.
func (d *Decoder) Err() error {
	if d.err == io.EOF || d.err == io.ErrClosedPipe {
		return nil
	}
	return d.err
}

// Offset returns the number of ciphertext bytes decoded so far.
func (d *Decoder) Offset() uint64 {
	return d.offset
}

func (d *Decoder) Close() error {
	if d.err == nil {
		d.err = io.ErrClosedPipe
	}
	return d.src.Close()
}
