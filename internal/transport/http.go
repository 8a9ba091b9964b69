package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds one-shot requests. Streams are bounded only by
// their context.
const DefaultTimeout = 10 * time.Second

// HTTP implements Transport with net/http.
type HTTP struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTP creates an HTTP transport. A nil client uses a fresh http.Client;
// a zero timeout uses DefaultTimeout.
func NewHTTP(client *http.Client, timeout time.Duration) *HTTP {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTP{client: client, timeout: timeout}
}

// Do implements Transport.
func (t *HTTP) Do(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.send(ctx, req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, classify(ctx, req.URL, err)
	}
	return Response{Head: newHead(resp.StatusCode), Text: string(text)}, nil
}

// Stream implements Transport.
func (t *HTTP) Stream(ctx context.Context, req Request) (*Stream, error) {
	resp, err := t.send(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Stream{
		Head: newHead(resp.StatusCode),
		Body: &cancelReader{ctx: ctx, url: req.URL, body: resp.Body},
	}, nil
}

func (t *HTTP) send(ctx context.Context, req Request) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	slog.Debug("http request", "method", method, "url", req.URL)
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, req.URL, err)
	}
	slog.Debug("http response", "method", method, "url", req.URL, "status", resp.StatusCode)
	return resp, nil
}
