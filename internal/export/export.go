// Package export turns a decoded export stream into rows or JSON documents.
//
// The decoded stream is an xz container: a Decoder is composed with an xz
// reader, and the resulting UTF-8 text is either tab separated observation
// rows or a JSON document depending on the resource requested.
package export

import (
	"context"
	"errors"
	"io"

	"raid-stats/internal/stream"

	"github.com/dimchansky/utfbom"
	jsoniter "github.com/json-iterator/go"
	"github.com/ulikunitz/xz"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Open decodes and decompresses src. Closing the returned reader closes src.
func Open(ctx context.Context, src stream.Source) (io.ReadCloser, error) {
	dec := stream.NewDecoder(ctx, src)
	zr, err := xz.NewReader(dec)
	if err != nil {
		dec.Close()
		return nil, stageError(dec, "decompress", err)
	}
	return &textReader{r: utfbom.SkipOnly(zr), dec: dec}, nil
}

// DecodeJSON reads a JSON resource from src into v.
func DecodeJSON(ctx context.Context, src stream.Source, v any) error {
	rc, err := Open(ctx, src)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return stageError(rc.(*textReader).dec, "json", err)
	}
	return nil
}

type textReader struct {
	r   io.Reader
	dec *stream.Decoder
}

func (t *textReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		err = stageError(t.dec, "decompress", err)
	}
	return n, err
}

func (t *textReader) Close() error {
	return t.dec.Close()
}

// stageError reports the decoder's own failure when there is one, since
// every later stage only sees its symptoms.
func stageError(dec *stream.Decoder, op string, err error) error {
	if derr := dec.Err(); derr != nil {
		return derr
	}
	var ioErr *stream.DecodeIOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &stream.DecodeIOError{Op: op, Err: err}
}
