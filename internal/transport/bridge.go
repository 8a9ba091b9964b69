package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// bridgeDialTries bounds reconnect attempts to the host shell.
const bridgeDialTries = 5

// bridgeRequest is the frame sent to the host.
type bridgeRequest struct {
	ID      string            `json:"id"`
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Stream  bool              `json:"stream,omitempty"`
	Cancel  bool              `json:"cancel,omitempty"`
}

// bridgeReply is a frame received from the host. A streamed response is a
// sequence of replies with More set on all but the last; the first one
// carries the status.
type bridgeReply struct {
	ID         string `json:"id"`
	OK         bool   `json:"ok"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Text       string `json:"text"`
	More       bool   `json:"more"`
	Error      string `json:"error,omitempty"`
}

// Bridge implements Transport by delegating every request to a host shell
// over a websocket. One request is in flight at a time.
type Bridge struct {
	url     string
	dialer  *websocket.Dialer
	timeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewBridge creates a bridge to the host listening at url (ws:// or wss://).
// The connection is opened lazily. timeout bounds each Do call; a zero
// timeout uses DefaultTimeout.
func NewBridge(url string, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bridge{url: url, dialer: websocket.DefaultDialer, timeout: timeout}
}

// Close closes the host connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

// Do implements Transport.
func (b *Bridge) Do(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	conn, id, stop, err := b.begin(ctx, req, false)
	if err != nil {
		return Response{}, err
	}
	defer stop()

	reply, err := b.read(ctx, conn, id, req.URL)
	if err != nil {
		return Response{}, err
	}
	resp := Response{Head: replyHead(reply), Text: reply.Text}
	for reply.More {
		if reply, err = b.read(ctx, conn, id, req.URL); err != nil {
			return Response{}, err
		}
		resp.Text += reply.Text
	}
	return resp, nil
}

// Stream implements Transport. The bridge stays busy until the body is
// fully read or closed.
func (b *Bridge) Stream(ctx context.Context, req Request) (*Stream, error) {
	b.mu.Lock()

	conn, id, stop, err := b.begin(ctx, req, true)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	first, err := b.read(ctx, conn, id, req.URL)
	if err != nil {
		stop()
		b.mu.Unlock()
		return nil, err
	}

	pr, pw := io.Pipe()
	go func() {
		defer b.mu.Unlock()
		defer stop()
		reply := first
		for {
			if reply.Text != "" {
				if _, err := pw.Write([]byte(reply.Text)); err != nil {
					// Reader went away before the host finished.
					b.abandon(conn, id)
					return
				}
			}
			if !reply.More {
				pw.Close()
				return
			}
			next, err := b.read(ctx, conn, id, req.URL)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			reply = next
		}
	}()

	return &Stream{
		Head: replyHead(first),
		Body: &cancelReader{ctx: ctx, url: req.URL, body: pr},
	}, nil
}

// begin connects if needed and sends the request frame. Callers hold b.mu.
func (b *Bridge) begin(ctx context.Context, req Request, stream bool) (*websocket.Conn, string, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, "", nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	conn, err := b.connect(ctx)
	if err != nil {
		return nil, "", nil, err
	}

	frame := bridgeRequest{
		ID:      uuid.NewString(),
		URL:     req.URL,
		Method:  req.Method,
		Headers: flattenHeader(req.Header),
		Stream:  stream,
	}
	if frame.Method == "" {
		frame.Method = http.MethodGet
	}
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, "", nil, fmt.Errorf("encode request body: %w", err)
		}
		frame.Body = data
	}

	slog.Debug("bridge request", "method", frame.Method, "url", frame.URL, "stream", stream)
	if err := conn.WriteJSON(frame); err != nil {
		b.drop()
		return nil, "", nil, classify(ctx, req.URL, err)
	}
	return conn, frame.ID, watch(ctx, conn), nil
}

// read returns the next reply for id. Callers hold b.mu.
func (b *Bridge) read(ctx context.Context, conn *websocket.Conn, id, url string) (bridgeReply, error) {
	for {
		var reply bridgeReply
		if err := conn.ReadJSON(&reply); err != nil {
			err = classify(ctx, url, err)
			if errors.Is(err, ErrCancelled) {
				b.abandon(conn, id)
			} else {
				b.drop()
			}
			return bridgeReply{}, err
		}
		if reply.ID != id {
			continue
		}
		if reply.Error != "" {
			return bridgeReply{}, &NetworkError{URL: url, Err: errors.New(reply.Error)}
		}
		return reply, nil
	}
}

// connect returns the open connection, dialing with backoff if needed.
func (b *Bridge) connect(ctx context.Context) (*websocket.Conn, error) {
	if b.conn != nil {
		return b.conn, nil
	}
	conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
		if err != nil {
			slog.Debug("bridge dial failed", "url", b.url, "error", err)
		}
		return conn, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(bridgeDialTries))
	if err != nil {
		return nil, classify(ctx, b.url, err)
	}
	b.conn = conn
	return conn, nil
}

// abandon tells the host to stop work on id and drops the connection, since
// a read interrupted by a deadline leaves it unusable.
func (b *Bridge) abandon(conn *websocket.Conn, id string) {
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteJSON(bridgeRequest{ID: id, Cancel: true})
	b.drop()
}

func (b *Bridge) drop() {
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
}

// watch interrupts blocked reads on conn when ctx is cancelled.
func watch(ctx context.Context, conn *websocket.Conn) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func replyHead(r bridgeReply) Head {
	text := r.StatusText
	if text == "" {
		text = http.StatusText(r.Status)
	}
	return Head{OK: r.OK, Status: r.Status, StatusText: text}
}

func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for key := range h {
		out[key] = h.Get(key)
	}
	return out
}
