package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"raid-stats/internal/config"
	"raid-stats/internal/constants"
	"raid-stats/internal/stream"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// StatusError is returned when the export host answers with a non-200 status.
type StatusError struct {
	Resource string
	Status   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("export %s: unexpected status %d", e.Resource, e.Status)
}

func (e *StatusError) NotFound() bool {
	return e.Status == fasthttp.StatusNotFound
}

// ExportClient fetches obfuscated export resources. Response bodies are
// streamed so the decoder pulls them from the connection chunk by chunk.
type ExportClient struct {
	baseURL string
	client  *fasthttp.Client
	logger  zerolog.Logger
}

func NewExportClient(cfg *config.Config, logger zerolog.Logger) *ExportClient {
	return &ExportClient{
		baseURL: strings.TrimRight(cfg.ExportBaseURL, "/"),
		client: &fasthttp.Client{
			MaxConnsPerHost:     constants.ExportMaxConns,
			ReadBufferSize:      constants.ExportReadBuffer,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
			StreamResponseBody:  true,
		},
		logger: logger,
	}
}

// URL returns the address of a resource such as "jp/scores" or "meta/raids".
func (c *ExportClient) URL(resource string) string {
	return c.baseURL + "/" + strings.TrimLeft(resource, "/")
}

// Open requests resource and returns its body as a chunk source. The
// returned source must be closed; closing it releases the connection.
func (c *ExportClient) Open(ctx context.Context, resource string) (stream.Source, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)

	url := c.URL(resource)
	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	start := time.Now()
	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.client.DoDeadline(req, resp, deadline)
	} else {
		err = c.client.Do(req, resp)
	}
	if err != nil {
		fasthttp.ReleaseResponse(resp)
		return nil, fmt.Errorf("failed to request %s: %w", resource, err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		status := resp.StatusCode()
		_ = resp.CloseBodyStream()
		fasthttp.ReleaseResponse(resp)
		return nil, &StatusError{Resource: resource, Status: status}
	}

	c.logger.Debug().
		Str("resource", resource).
		Str("url", url).
		Int("content_length", resp.Header.ContentLength()).
		Dur("duration", time.Since(start)).
		Msg("export response received")

	body := resp.BodyStream()
	if body == nil {
		body = bytes.NewReader(resp.Body())
	}
	return stream.NewReaderSource(&responseBody{r: body, resp: resp}, constants.StreamChunkSize), nil
}

type responseBody struct {
	r    io.Reader
	resp *fasthttp.Response
	once sync.Once
	err  error
}

func (b *responseBody) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

func (b *responseBody) Close() error {
	b.once.Do(func() {
		b.err = b.resp.CloseBodyStream()
		fasthttp.ReleaseResponse(b.resp)
	})
	return b.err
}
