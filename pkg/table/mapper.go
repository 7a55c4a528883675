// Package table maps logical tables onto remote channels and persists each
// table's schema as a pinned message in its channel.
package table

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"chatdb/pkg/logger"
	"chatdb/pkg/remote"
)

var (
	// ErrNotFound means no channel backs the requested table.
	ErrNotFound = errors.New("table: not found")
	// ErrAlreadyExists rejects creating a table whose channel exists.
	ErrAlreadyExists = errors.New("table: already exists")
	// ErrSchemaMissing marks a channel that exists without a schema
	// record: an inconsistent table needing manual repair.
	ErrSchemaMissing = errors.New("table: schema missing")
)

// ChannelName is the fixed naming convention from table name to channel
// name. The platform lowercases channel names, so the mapping does too.
func ChannelName(table string) string {
	return strings.ToLower(table)
}

// Mapper resolves table names to channels through a cached index built
// from a single list-channels call. The index is invalidated on create and
// drop so the next resolve observes the remote truth.
type Mapper struct {
	api remote.API

	mu     sync.Mutex
	index  map[string]remote.Channel
	loaded bool
}

// NewMapper builds a mapper over the governed client.
func NewMapper(api remote.API) *Mapper {
	return &Mapper{api: api}
}

func (m *Mapper) load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return nil
	}
	channels, err := m.api.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	m.index = make(map[string]remote.Channel, len(channels))
	for _, ch := range channels {
		m.index[ch.Name] = ch
	}
	m.loaded = true
	return nil
}

// Resolve returns the channel backing the named table.
func (m *Mapper) Resolve(ctx context.Context, name string) (remote.Channel, error) {
	if err := m.load(ctx); err != nil {
		return remote.Channel{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.index[ChannelName(name)]
	if !ok {
		return remote.Channel{}, fmt.Errorf("table %q: %w", name, ErrNotFound)
	}
	return ch, nil
}

// Create allocates a channel for a new table. It fails with
// ErrAlreadyExists when a channel for that name is already present.
func (m *Mapper) Create(ctx context.Context, name string) (remote.Channel, error) {
	if _, err := m.Resolve(ctx, name); err == nil {
		return remote.Channel{}, fmt.Errorf("table %q: %w", name, ErrAlreadyExists)
	} else if !errors.Is(err, ErrNotFound) {
		return remote.Channel{}, err
	}
	ch, err := m.api.CreateChannel(ctx, ChannelName(name))
	if err != nil {
		return remote.Channel{}, fmt.Errorf("create channel for %q: %w", name, err)
	}
	logger.Info("channel_created", "table", name, "channel", ch.ID)
	m.Invalidate()
	return ch, nil
}

// Drop deletes the channel backing the named table.
func (m *Mapper) Drop(ctx context.Context, name string) error {
	ch, err := m.Resolve(ctx, name)
	if err != nil {
		return err
	}
	if err := m.api.DeleteChannel(ctx, ch.ID); err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			// deleted out from under us; the outcome stands
			m.Invalidate()
			return nil
		}
		return fmt.Errorf("delete channel for %q: %w", name, err)
	}
	logger.Info("channel_deleted", "table", name, "channel", ch.ID)
	m.Invalidate()
	return nil
}

// List returns every mapped table's channel, keyed by channel name.
func (m *Mapper) List(ctx context.Context) (map[string]remote.Channel, error) {
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]remote.Channel, len(m.index))
	for k, v := range m.index {
		out[k] = v
	}
	return out, nil
}

// Invalidate discards the cached index.
func (m *Mapper) Invalidate() {
	m.mu.Lock()
	m.loaded = false
	m.index = nil
	m.mu.Unlock()
}
