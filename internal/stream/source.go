package stream

import (
	"context"
	"io"
)

// Source yields the chunks of a byte stream in arrival order. Next returns
// io.EOF once the stream is exhausted. A returned chunk is only valid until
// the following call to Next. Close abandons the upstream read.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

type readerSource struct {
	r       io.Reader
	buf     []byte
	err     error
	started bool
}

// NewReaderSource reads chunks of at most chunkSize bytes from r. The first
// chunk holds at least KeySize bytes unless r ends sooner: however r
// segments its reads, they form one logical first chunk, so only a stream
// shorter than KeySize fails with ErrKeyTooShort. If r is an io.Closer it is
// closed by Close.
func NewReaderSource(r io.Reader, chunkSize int) Source {
	if chunkSize < KeySize {
		chunkSize = 32 * 1024
	}
	return &readerSource{r: r, buf: make([]byte, chunkSize)}
}

func (s *readerSource) Next(ctx context.Context) ([]byte, error) {
	for {
		if s.err != nil {
			return nil, s.err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var n int
		var err error
		if !s.started {
			s.started = true
			n, err = io.ReadAtLeast(s.r, s.buf, KeySize)
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
		} else {
			n, err = s.r.Read(s.buf)
		}
		if err != nil {
			s.err = err
		}
		if n > 0 {
			return s.buf[:n], nil
		}
	}
}

func (s *readerSource) Close() error {
	if s.err == nil {
		s.err = io.ErrClosedPipe
	}
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type chunkSource struct {
	chunks [][]byte
	closed bool
}

// NewChunkSource replays the given chunks unchanged.
func NewChunkSource(chunks ...[]byte) Source {
	return &chunkSource{chunks: chunks}
}

func (s *chunkSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, io.ErrClosedPipe
	}
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *chunkSource) Close() error {
	s.closed = true
	return nil
}

// Split cuts b into chunks of size n, the last one possibly shorter.
func Split(b []byte, n int) [][]byte {
	if n <= 0 {
		n = len(b)
	}
	var out [][]byte
	for len(b) > n {
		out = append(out, b[:n])
		b = b[n:]
	}
	if len(b) > 0 {
		out = append(out, b)
	}
	return out
}
