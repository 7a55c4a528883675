package remote

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Transport. It backs the offline demo mode and the
// test suites: message ids are allocated ascending, pagination and pins
// behave like the live platform, and Intercept lets tests inject failures.
type Memory struct {
	mu       sync.Mutex
	nextID   uint64
	nextChan uint64
	channels map[ChannelID]*memChannel

	// Intercept, when set, runs before every operation with the operation
	// name ("SendMessage", ...). A non-nil result fails the call without
	// applying it.
	Intercept func(op string) error
}

type memChannel struct {
	channel  Channel
	messages []Message
}

// NewMemory returns an empty in-memory platform.
func NewMemory() *Memory {
	return &Memory{
		nextID:   1000,
		nextChan: 1,
		channels: make(map[ChannelID]*memChannel),
	}
}

var _ Transport = (*Memory)(nil)

func (m *Memory) intercept(op string) error {
	if m.Intercept != nil {
		return m.Intercept(op)
	}
	return nil
}

func (m *Memory) rate() RateInfo {
	return RateInfo{Limit: 50, Remaining: 49, ResetAfter: time.Second}
}

func (m *Memory) CreateChannel(ctx context.Context, name string) (Channel, RateInfo, error) {
	if err := m.intercept("CreateChannel"); err != nil {
		return Channel{}, m.rate(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := ChannelID("c" + strconv.FormatUint(m.nextChan, 10))
	m.nextChan++
	ch := Channel{ID: id, Name: name, CreatedAt: time.Now().UTC()}
	m.channels[id] = &memChannel{channel: ch}
	return ch, m.rate(), nil
}

func (m *Memory) ListChannels(ctx context.Context) ([]Channel, RateInfo, error) {
	if err := m.intercept("ListChannels"); err != nil {
		return nil, m.rate(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Channel, 0, len(m.channels))
	for _, mc := range m.channels {
		out = append(out, mc.channel)
	}
	return out, m.rate(), nil
}

func (m *Memory) DeleteChannel(ctx context.Context, ch ChannelID) (RateInfo, error) {
	if err := m.intercept("DeleteChannel"); err != nil {
		return m.rate(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[ch]; !ok {
		return m.rate(), ErrNotFound
	}
	delete(m.channels, ch)
	return m.rate(), nil
}

func (m *Memory) SendMessage(ctx context.Context, ch ChannelID, content string) (Message, RateInfo, error) {
	if err := m.intercept("SendMessage"); err != nil {
		return Message{}, m.rate(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.channels[ch]
	if !ok {
		return Message{}, m.rate(), ErrNotFound
	}
	msg := Message{
		ID:      MessageID(strconv.FormatUint(m.nextID, 10)),
		Channel: ch,
		Content: content,
	}
	m.nextID++
	mc.messages = append(mc.messages, msg)
	return msg, m.rate(), nil
}

func (m *Memory) EditMessage(ctx context.Context, ch ChannelID, id MessageID, content string) (Message, RateInfo, error) {
	if err := m.intercept("EditMessage"); err != nil {
		return Message{}, m.rate(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.channels[ch]
	if !ok {
		return Message{}, m.rate(), ErrNotFound
	}
	for i := range mc.messages {
		if mc.messages[i].ID == id {
			mc.messages[i].Content = content
			return mc.messages[i], m.rate(), nil
		}
	}
	return Message{}, m.rate(), ErrNotFound
}

func (m *Memory) DeleteMessage(ctx context.Context, ch ChannelID, id MessageID) (RateInfo, error) {
	if err := m.intercept("DeleteMessage"); err != nil {
		return m.rate(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.channels[ch]
	if !ok {
		return m.rate(), ErrNotFound
	}
	for i := range mc.messages {
		if mc.messages[i].ID == id {
			mc.messages = append(mc.messages[:i], mc.messages[i+1:]...)
			return m.rate(), nil
		}
	}
	return m.rate(), ErrNotFound
}

func (m *Memory) GetMessage(ctx context.Context, ch ChannelID, id MessageID) (Message, RateInfo, error) {
	if err := m.intercept("GetMessage"); err != nil {
		return Message{}, m.rate(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.channels[ch]
	if !ok {
		return Message{}, m.rate(), ErrNotFound
	}
	for _, msg := range mc.messages {
		if msg.ID == id {
			return msg, m.rate(), nil
		}
	}
	return Message{}, m.rate(), ErrNotFound
}

func (m *Memory) ListMessages(ctx context.Context, ch ChannelID, after MessageID, limit int) ([]Message, RateInfo, error) {
	if err := m.intercept("ListMessages"); err != nil {
		return nil, m.rate(), err
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.channels[ch]
	if !ok {
		return nil, m.rate(), ErrNotFound
	}
	start := 0
	if after != "" {
		cursor, _ := strconv.ParseUint(string(after), 10, 64)
		for start < len(mc.messages) {
			id, _ := strconv.ParseUint(string(mc.messages[start].ID), 10, 64)
			if id > cursor {
				break
			}
			start++
		}
	}
	end := start + limit
	if end > len(mc.messages) {
		end = len(mc.messages)
	}
	out := make([]Message, end-start)
	copy(out, mc.messages[start:end])
	return out, m.rate(), nil
}

func (m *Memory) ListPins(ctx context.Context, ch ChannelID) ([]Message, RateInfo, error) {
	if err := m.intercept("ListPins"); err != nil {
		return nil, m.rate(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.channels[ch]
	if !ok {
		return nil, m.rate(), ErrNotFound
	}
	var out []Message
	for _, msg := range mc.messages {
		if msg.Pinned {
			out = append(out, msg)
		}
	}
	return out, m.rate(), nil
}

func (m *Memory) PinMessage(ctx context.Context, ch ChannelID, id MessageID) (RateInfo, error) {
	if err := m.intercept("PinMessage"); err != nil {
		return m.rate(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.channels[ch]
	if !ok {
		return m.rate(), ErrNotFound
	}
	for i := range mc.messages {
		if mc.messages[i].ID == id {
			mc.messages[i].Pinned = true
			return m.rate(), nil
		}
	}
	return m.rate(), ErrNotFound
}
