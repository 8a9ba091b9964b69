// Package transport sends single requests to the task and agent services and
// returns normalized results. HTTP-level failures (4xx/5xx) are reported in
// the result, never as errors; only network faults and cancellation fail.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrCancelled is returned when a request or stream read is aborted through
// its context. It is distinct from network faults.
var ErrCancelled = errors.New("request cancelled")

// NetworkError is a connectivity-level fault (DNS, refused connection, reset).
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Request describes one call. Body, when non-nil, is sent as JSON.
type Request struct {
	URL    string
	Method string
	Header http.Header
	Body   any
}

// Head is the status part of a result.
type Head struct {
	OK         bool
	Status     int
	StatusText string
}

// Meta returns the head. It lets one-shot and streaming results share
// status-driven logic such as endpoint fallback.
func (h Head) Meta() Head { return h }

// Response is the result of a one-shot request.
type Response struct {
	Head
	Text string
}

// Stream is an open streaming response. Body must be closed by the caller.
type Stream struct {
	Head
	Body io.ReadCloser
}

// Close releases the stream body.
func (s *Stream) Close() error {
	if s == nil || s.Body == nil {
		return nil
	}
	return s.Body.Close()
}

// Transport performs requests. Implementations are the in-process HTTP stack
// and the host bridge; callers cannot tell them apart.
type Transport interface {
	// Do performs a one-shot request and reads the whole response text.
	Do(ctx context.Context, req Request) (Response, error)

	// Stream performs a request and returns the open response body.
	Stream(ctx context.Context, req Request) (*Stream, error)
}

func newHead(status int) Head {
	return Head{
		OK:         status >= 200 && status < 300,
		Status:     status,
		StatusText: http.StatusText(status),
	}
}

// classify maps an error observed while ctx was active to ErrCancelled when
// the context was cancelled, otherwise to a NetworkError.
func classify(ctx context.Context, url string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) {
		return err
	}
	// A deadline is a connectivity fault; only an explicit cancel aborts.
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return err
	}
	return &NetworkError{URL: url, Err: err}
}

// cancelReader reports reads that fail after cancellation as ErrCancelled.
type cancelReader struct {
	ctx  context.Context
	url  string
	body io.ReadCloser
}

func (r *cancelReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	n, err := r.body.Read(p)
	if err != nil && err != io.EOF {
		return n, classify(r.ctx, r.url, err)
	}
	return n, err
}

func (r *cancelReader) Close() error { return r.body.Close() }
