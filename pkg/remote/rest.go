package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
)

// RESTClient talks to a Discord-style HTTP API. It performs no retries and
// no pacing of its own; callers reach it through the governor.
type RESTClient struct {
	base      string
	token     string
	workspace string
	timeout   time.Duration
	client    *fasthttp.Client
}

// RESTConfig configures a RESTClient.
type RESTConfig struct {
	BaseURL   string
	Token     string
	Workspace string
	// Timeout bounds a single HTTP exchange. Zero means 15s.
	Timeout time.Duration
}

// NewRESTClient builds a client for the given platform endpoint.
func NewRESTClient(cfg RESTConfig) *RESTClient {
	t := cfg.Timeout
	if t == 0 {
		t = 15 * time.Second
	}
	return &RESTClient{
		base:      cfg.BaseURL,
		token:     cfg.Token,
		workspace: cfg.Workspace,
		timeout:   t,
		client:    &fasthttp.Client{},
	}
}

var _ Transport = (*RESTClient)(nil)

func (c *RESTClient) do(ctx context.Context, method, path string, body any, out any) (RateInfo, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return RateInfo{}, err
		}
		req.Header.SetContentType("application/json")
		req.SetBody(b)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return RateInfo{}, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}

	ri := parseRateHeaders(&resp.Header)
	status := resp.StatusCode()
	switch {
	case status == fasthttp.StatusNotFound:
		return ri, ErrNotFound
	case status == fasthttp.StatusTooManyRequests:
		return ri, &RateLimitedError{RetryAfter: parseRetryAfter(resp)}
	case status >= 500:
		return ri, fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, status)
	case status >= 400:
		return ri, fmt.Errorf("remote: %s %s: status %d: %s", method, path, status, resp.Body())
	}

	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return ri, fmt.Errorf("remote: %s %s: bad response body: %w", method, path, err)
		}
	}
	return ri, nil
}

func parseRateHeaders(h *fasthttp.ResponseHeader) RateInfo {
	var ri RateInfo
	if v := string(h.Peek("X-RateLimit-Limit")); v != "" {
		ri.Limit, _ = strconv.ParseFloat(v, 64)
	}
	if v := string(h.Peek("X-RateLimit-Remaining")); v != "" {
		ri.Remaining, _ = strconv.Atoi(v)
	}
	if v := string(h.Peek("X-RateLimit-Reset-After")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			ri.ResetAfter = time.Duration(secs * float64(time.Second))
		}
	}
	return ri
}

func parseRetryAfter(resp *fasthttp.Response) time.Duration {
	if v := string(resp.Header.Peek("Retry-After")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	var body struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if json.Unmarshal(resp.Body(), &body) == nil && body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter * float64(time.Second))
	}
	// the platform indicated no cool-down; use a modest default
	return time.Second
}

func (c *RESTClient) CreateChannel(ctx context.Context, name string) (Channel, RateInfo, error) {
	var ch Channel
	ri, err := c.do(ctx, fasthttp.MethodPost, "/guilds/"+c.workspace+"/channels",
		map[string]string{"name": name}, &ch)
	return ch, ri, err
}

func (c *RESTClient) ListChannels(ctx context.Context) ([]Channel, RateInfo, error) {
	var chs []Channel
	ri, err := c.do(ctx, fasthttp.MethodGet, "/guilds/"+c.workspace+"/channels", nil, &chs)
	return chs, ri, err
}

func (c *RESTClient) DeleteChannel(ctx context.Context, ch ChannelID) (RateInfo, error) {
	return c.do(ctx, fasthttp.MethodDelete, "/channels/"+string(ch), nil, nil)
}

func (c *RESTClient) SendMessage(ctx context.Context, ch ChannelID, content string) (Message, RateInfo, error) {
	var msg Message
	ri, err := c.do(ctx, fasthttp.MethodPost, "/channels/"+string(ch)+"/messages",
		map[string]string{"content": content}, &msg)
	return msg, ri, err
}

func (c *RESTClient) EditMessage(ctx context.Context, ch ChannelID, id MessageID, content string) (Message, RateInfo, error) {
	var msg Message
	ri, err := c.do(ctx, fasthttp.MethodPatch, "/channels/"+string(ch)+"/messages/"+string(id),
		map[string]string{"content": content}, &msg)
	return msg, ri, err
}

func (c *RESTClient) DeleteMessage(ctx context.Context, ch ChannelID, id MessageID) (RateInfo, error) {
	return c.do(ctx, fasthttp.MethodDelete, "/channels/"+string(ch)+"/messages/"+string(id), nil, nil)
}

func (c *RESTClient) GetMessage(ctx context.Context, ch ChannelID, id MessageID) (Message, RateInfo, error) {
	var msg Message
	ri, err := c.do(ctx, fasthttp.MethodGet, "/channels/"+string(ch)+"/messages/"+string(id), nil, &msg)
	return msg, ri, err
}

func (c *RESTClient) ListMessages(ctx context.Context, ch ChannelID, after MessageID, limit int) ([]Message, RateInfo, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if after != "" {
		q.Set("after", string(after))
	}
	var msgs []Message
	ri, err := c.do(ctx, fasthttp.MethodGet,
		"/channels/"+string(ch)+"/messages?"+q.Encode(), nil, &msgs)
	return msgs, ri, err
}

func (c *RESTClient) ListPins(ctx context.Context, ch ChannelID) ([]Message, RateInfo, error) {
	var msgs []Message
	ri, err := c.do(ctx, fasthttp.MethodGet, "/channels/"+string(ch)+"/pins", nil, &msgs)
	return msgs, ri, err
}

func (c *RESTClient) PinMessage(ctx context.Context, ch ChannelID, id MessageID) (RateInfo, error) {
	return c.do(ctx, fasthttp.MethodPut, "/channels/"+string(ch)+"/pins/"+string(id), nil, nil)
}
