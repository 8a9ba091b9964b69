// Package nexusapi implements the service.Service interface using the
// NexusTodo task service and its agent endpoint.
package nexusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"nexustodo/internal/endpoint"
	"nexustodo/internal/service"
	"nexustodo/internal/transport"
)

const (
	// DefaultToken is the bearer token accepted by a stock deployment.
	DefaultToken = "default-token"

	// errorBodyLimit bounds how much of a failed stream is read for its
	// error message.
	errorBodyLimit = 64 << 10
)

// Client implements service.Service over a transport.
type Client struct {
	tr       transport.Transport
	resolver *endpoint.Resolver
	tokens   oauth2.TokenSource
	identity func() service.Identity
}

// New creates a client. Task routes go to the resolver's primary base and
// agent routes to its agent base. identity supplies the X-User-ID and
// X-Device-ID headers at call time.
func New(tr transport.Transport, resolver *endpoint.Resolver, token string, identity func() service.Identity) *Client {
	if token == "" {
		token = DefaultToken
	}
	static := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return &Client{
		tr:       tr,
		resolver: resolver,
		tokens:   oauth2.ReuseTokenSource(nil, static),
		identity: identity,
	}
}

// RegisterDevice implements service.Service.
func (c *Client) RegisterDevice(ctx context.Context, deviceID string) (service.Identity, error) {
	var out struct {
		DeviceID string `json:"deviceId"`
		UserID   string `json:"userId"`
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	err := c.do(ctx, transport.Request{
		URL:    c.taskURL("/device/register"),
		Method: http.MethodPost,
		Header: header,
		Body:   map[string]string{"deviceId": deviceID},
	}, &out)
	if err != nil {
		return service.Identity{}, err
	}
	if out.DeviceID == "" {
		out.DeviceID = deviceID
	}
	return service.Identity{UserID: out.UserID, DeviceID: out.DeviceID}, nil
}

// ListTasks implements service.Service.
func (c *Client) ListTasks(ctx context.Context) ([]service.Task, error) {
	header, err := c.headers()
	if err != nil {
		return nil, err
	}
	var tasks []service.Task
	if err := c.do(ctx, transport.Request{URL: c.taskURL("/tasks"), Header: header}, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []service.Task{}
	}
	return tasks, nil
}

// CreateTask implements service.Service.
func (c *Client) CreateTask(ctx context.Context, in service.TaskInput) (service.Task, error) {
	header, err := c.headers()
	if err != nil {
		return service.Task{}, err
	}
	in.Tags = service.NormalizeTags(in.Tags)

	var task service.Task
	err = c.do(ctx, transport.Request{
		URL:    c.taskURL("/tasks"),
		Method: http.MethodPost,
		Header: header,
		Body:   in,
	}, &task)
	return task, err
}

// UpdateTask implements service.Service.
func (c *Client) UpdateTask(ctx context.Context, taskID string, patch service.TaskPatch) (service.Task, error) {
	header, err := c.headers()
	if err != nil {
		return service.Task{}, err
	}
	if patch.Tags != nil {
		tags := service.NormalizeTags(*patch.Tags)
		patch.Tags = &tags
	}

	var task service.Task
	err = c.do(ctx, transport.Request{
		URL:    c.taskURL("/tasks/" + url.PathEscape(taskID)),
		Method: http.MethodPut,
		Header: header,
		Body:   patch,
	}, &task)
	return task, err
}

// DeleteTask implements service.Service.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	header, err := c.headers()
	if err != nil {
		return err
	}
	return c.do(ctx, transport.Request{
		URL:    c.taskURL("/tasks/" + url.PathEscape(taskID)),
		Method: http.MethodDelete,
		Header: header,
	}, nil)
}

// OpenChatStream implements service.Service.
func (c *Client) OpenChatStream(ctx context.Context, req service.ChatRequest) (io.ReadCloser, error) {
	header, err := c.headers()
	if err != nil {
		return nil, err
	}
	header.Set("Accept", "text/event-stream")

	query := url.Values{}
	query.Set("sessionId", req.SessionID)
	query.Set("userId", req.UserID)
	query.Set("deviceId", req.DeviceID)
	query.Set("message", req.Message)

	try := func(ctx context.Context, base string) (*transport.Stream, error) {
		return c.tr.Stream(ctx, transport.Request{
			URL:    agentURL(base, "/chat/stream") + "?" + query.Encode(),
			Header: header,
		})
	}
	discard := func(s *transport.Stream) { s.Close() }

	stream, err := endpoint.WithFallback(ctx, c.resolver, try, discard)
	if err != nil {
		return nil, err
	}
	if !stream.OK || stream.Body == nil {
		defer stream.Close()
		var text []byte
		if stream.Body != nil {
			text, _ = io.ReadAll(io.LimitReader(stream.Body, errorBodyLimit))
		}
		return nil, agentError(stream.Head, string(text))
	}
	return stream.Body, nil
}

// AgentChat implements service.Service.
func (c *Client) AgentChat(ctx context.Context, req service.ChatRequest) (service.ChatReply, error) {
	header, err := c.headers()
	if err != nil {
		return service.ChatReply{}, err
	}

	body := chatBody{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		DeviceID:  req.DeviceID,
		Messages:  []chatMessage{{Role: "user", Content: req.Message}},
	}
	try := func(ctx context.Context, base string) (transport.Response, error) {
		return c.tr.Do(ctx, transport.Request{
			URL:    agentURL(base, "/chat"),
			Method: http.MethodPost,
			Header: header,
			Body:   body,
		})
	}

	resp, err := endpoint.WithFallback(ctx, c.resolver, try, nil)
	if err != nil {
		return service.ChatReply{}, err
	}
	if !resp.OK {
		return service.ChatReply{}, agentError(resp.Head, resp.Text)
	}

	var reply service.ChatReply
	if err := decode(resp.Text, &reply); err != nil {
		return service.ChatReply{}, err
	}
	if reply.SessionID == "" {
		reply.SessionID = req.SessionID
	}
	return reply, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatBody struct {
	SessionID string        `json:"sessionId"`
	UserID    string        `json:"userId"`
	DeviceID  string        `json:"deviceId"`
	Messages  []chatMessage `json:"messages"`
}

// headers returns the identity headers sent on every call except device
// registration.
func (c *Client) headers() (http.Header, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("bearer token: %w", err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", tok.Type()+" "+tok.AccessToken)
	if c.identity != nil {
		id := c.identity()
		header.Set("X-User-ID", id.UserID)
		header.Set("X-Device-ID", id.DeviceID)
	}
	return header, nil
}

func (c *Client) taskURL(path string) string {
	return strings.TrimRight(c.resolver.Primary(), "/") + path
}

func agentURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// do performs a one-shot task service call and decodes the JSON reply into
// out when out is non-nil.
func (c *Client) do(ctx context.Context, req transport.Request, out any) error {
	resp, err := c.tr.Do(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK {
		return apiError(resp.Head, resp.Text)
	}
	if out == nil {
		return nil
	}
	return decode(resp.Text, out)
}

func decode(text string, out any) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError builds the application fault for a non-2xx reply.
func apiError(head transport.Head, text string) *googleapi.Error {
	return &googleapi.Error{
		Code:    head.Status,
		Message: bodyMessage(text, head.StatusText),
		Body:    text,
	}
}

// agentError is apiError with the fixed message for a missing agent
// endpoint.
func agentError(head transport.Head, text string) *googleapi.Error {
	err := apiError(head, text)
	if head.Status == http.StatusNotFound {
		err.Message = AgentNotFoundMessage
	}
	return err
}
