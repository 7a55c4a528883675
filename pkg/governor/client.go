package governor

import (
	"context"

	"chatdb/pkg/remote"
)

// Route keys for per-route buckets. Mutating and reading routes get
// independent budgets, mirroring how the platform buckets its endpoints.
const (
	RouteChannelCreate = "channels.create"
	RouteChannelList   = "channels.list"
	RouteChannelDelete = "channels.delete"
	RouteMessageSend   = "messages.send"
	RouteMessageEdit   = "messages.edit"
	RouteMessageDelete = "messages.delete"
	RouteMessageGet    = "messages.get"
	RouteMessageList   = "messages.list"
	RoutePinList       = "pins.list"
	RoutePinAdd        = "pins.add"
)

// Client wraps a raw Transport behind the governor and presents the clean
// remote.API surface the storage components use. No component talks to the
// transport directly.
type Client struct {
	gov *Governor
	t   remote.Transport
}

// NewClient pairs a transport with a governor.
func NewClient(gov *Governor, t remote.Transport) *Client {
	return &Client{gov: gov, t: t}
}

var _ remote.API = (*Client)(nil)

func (c *Client) CreateChannel(ctx context.Context, name string) (remote.Channel, error) {
	var out remote.Channel
	err := c.gov.Do(ctx, RouteChannelCreate, func(ctx context.Context) (remote.RateInfo, error) {
		var ri remote.RateInfo
		var err error
		out, ri, err = c.t.CreateChannel(ctx, name)
		return ri, err
	})
	return out, err
}

func (c *Client) ListChannels(ctx context.Context) ([]remote.Channel, error) {
	var out []remote.Channel
	err := c.gov.Do(ctx, RouteChannelList, func(ctx context.Context) (remote.RateInfo, error) {
		var ri remote.RateInfo
		var err error
		out, ri, err = c.t.ListChannels(ctx)
		return ri, err
	})
	return out, err
}

func (c *Client) DeleteChannel(ctx context.Context, ch remote.ChannelID) error {
	return c.gov.Do(ctx, RouteChannelDelete, func(ctx context.Context) (remote.RateInfo, error) {
		return c.t.DeleteChannel(ctx, ch)
	})
}

func (c *Client) SendMessage(ctx context.Context, ch remote.ChannelID, content string) (remote.Message, error) {
	var out remote.Message
	err := c.gov.Do(ctx, RouteMessageSend, func(ctx context.Context) (remote.RateInfo, error) {
		var ri remote.RateInfo
		var err error
		out, ri, err = c.t.SendMessage(ctx, ch, content)
		return ri, err
	})
	return out, err
}

func (c *Client) EditMessage(ctx context.Context, ch remote.ChannelID, id remote.MessageID, content string) (remote.Message, error) {
	var out remote.Message
	err := c.gov.Do(ctx, RouteMessageEdit, func(ctx context.Context) (remote.RateInfo, error) {
		var ri remote.RateInfo
		var err error
		out, ri, err = c.t.EditMessage(ctx, ch, id, content)
		return ri, err
	})
	return out, err
}

func (c *Client) DeleteMessage(ctx context.Context, ch remote.ChannelID, id remote.MessageID) error {
	return c.gov.Do(ctx, RouteMessageDelete, func(ctx context.Context) (remote.RateInfo, error) {
		return c.t.DeleteMessage(ctx, ch, id)
	})
}

func (c *Client) GetMessage(ctx context.Context, ch remote.ChannelID, id remote.MessageID) (remote.Message, error) {
	var out remote.Message
	err := c.gov.Do(ctx, RouteMessageGet, func(ctx context.Context) (remote.RateInfo, error) {
		var ri remote.RateInfo
		var err error
		out, ri, err = c.t.GetMessage(ctx, ch, id)
		return ri, err
	})
	return out, err
}

func (c *Client) ListMessages(ctx context.Context, ch remote.ChannelID, after remote.MessageID, limit int) ([]remote.Message, error) {
	var out []remote.Message
	err := c.gov.Do(ctx, RouteMessageList, func(ctx context.Context) (remote.RateInfo, error) {
		var ri remote.RateInfo
		var err error
		out, ri, err = c.t.ListMessages(ctx, ch, after, limit)
		return ri, err
	})
	return out, err
}

func (c *Client) ListPins(ctx context.Context, ch remote.ChannelID) ([]remote.Message, error) {
	var out []remote.Message
	err := c.gov.Do(ctx, RoutePinList, func(ctx context.Context) (remote.RateInfo, error) {
		var ri remote.RateInfo
		var err error
		out, ri, err = c.t.ListPins(ctx, ch)
		return ri, err
	})
	return out, err
}

func (c *Client) PinMessage(ctx context.Context, ch remote.ChannelID, id remote.MessageID) error {
	return c.gov.Do(ctx, RoutePinAdd, func(ctx context.Context) (remote.RateInfo, error) {
		return c.t.PinMessage(ctx, ch, id)
	})
}
