// Package remote defines the chat-platform surface the storage engine
// consumes: channels as durable containers and messages as log entries.
// Two transports exist: a REST client for a live platform and an in-memory
// one for offline use and tests.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ChannelID identifies a remote channel.
type ChannelID string

// MessageID identifies a remote message. The platform allocates ids that
// are unique and ascending in send order, so ids double as log positions.
type MessageID string

// Channel is a remote container backing one logical table.
type Channel struct {
	ID        ChannelID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Message is a single remote log entry.
type Message struct {
	ID      MessageID `json:"id"`
	Channel ChannelID `json:"channel_id"`
	Content string    `json:"content"`
	Pinned  bool      `json:"pinned,omitempty"`
}

// RateInfo is the rate-limit feedback attached to every response. A zero
// RateInfo means the response carried no usable headers.
type RateInfo struct {
	Limit      float64
	Remaining  int
	ResetAfter time.Duration
}

// Zero reports whether no feedback was observed.
func (r RateInfo) Zero() bool {
	return r.Limit == 0 && r.Remaining == 0 && r.ResetAfter == 0
}

const (
	// MaxPageSize is the platform cap on messages per history call.
	MaxPageSize = 100
	// MaxMessageLen is the platform cap on a message body, in bytes.
	MaxMessageLen = 2000
)

var (
	// ErrNotFound means the channel or message does not exist remotely.
	ErrNotFound = errors.New("remote: not found")
	// ErrUnavailable is a transport-level failure (connect, timeout, 5xx).
	ErrUnavailable = errors.New("remote: unavailable")
)

// RateLimitedError is returned when the platform rejects a call with a
// cool-down. The governor parks the retry for RetryAfter.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("remote: rate limited, retry after %s", e.RetryAfter)
}

// Transport is the raw remote surface. Every call reports the rate-limit
// feedback observed on its response so the governor can adapt its buckets.
// Implementations must not retry internally; retry policy belongs to the
// governor.
type Transport interface {
	CreateChannel(ctx context.Context, name string) (Channel, RateInfo, error)
	ListChannels(ctx context.Context) ([]Channel, RateInfo, error)
	DeleteChannel(ctx context.Context, ch ChannelID) (RateInfo, error)

	SendMessage(ctx context.Context, ch ChannelID, content string) (Message, RateInfo, error)
	EditMessage(ctx context.Context, ch ChannelID, id MessageID, content string) (Message, RateInfo, error)
	DeleteMessage(ctx context.Context, ch ChannelID, id MessageID) (RateInfo, error)
	GetMessage(ctx context.Context, ch ChannelID, id MessageID) (Message, RateInfo, error)

	// ListMessages returns up to limit messages strictly after the given
	// id in log order (oldest first). An empty id starts at the log head.
	ListMessages(ctx context.Context, ch ChannelID, after MessageID, limit int) ([]Message, RateInfo, error)

	ListPins(ctx context.Context, ch ChannelID) ([]Message, RateInfo, error)
	PinMessage(ctx context.Context, ch ChannelID, id MessageID) (RateInfo, error)
}

// API is the governed surface the storage components call. It mirrors
// Transport without rate feedback; the governor consumes that internally.
type API interface {
	CreateChannel(ctx context.Context, name string) (Channel, error)
	ListChannels(ctx context.Context) ([]Channel, error)
	DeleteChannel(ctx context.Context, ch ChannelID) error

	SendMessage(ctx context.Context, ch ChannelID, content string) (Message, error)
	EditMessage(ctx context.Context, ch ChannelID, id MessageID, content string) (Message, error)
	DeleteMessage(ctx context.Context, ch ChannelID, id MessageID) error
	GetMessage(ctx context.Context, ch ChannelID, id MessageID) (Message, error)

	ListMessages(ctx context.Context, ch ChannelID, after MessageID, limit int) ([]Message, error)

	ListPins(ctx context.Context, ch ChannelID) ([]Message, error)
	PinMessage(ctx context.Context, ch ChannelID, id MessageID) error
}
