package remote

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryMessageIDsAscend(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ch, _, err := m.CreateChannel(ctx, "a")
	require.NoError(t, err)

	var prev uint64
	for i := 0; i < 5; i++ {
		msg, _, err := m.SendMessage(ctx, ch.ID, "x")
		require.NoError(t, err)
		n, err := strconv.ParseUint(string(msg.ID), 10, 64)
		require.NoError(t, err)
		require.Greater(t, n, prev)
		prev = n
	}
}

func TestMemoryPagination(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ch, _, err := m.CreateChannel(ctx, "a")
	require.NoError(t, err)

	var ids []MessageID
	for i := 0; i < 7; i++ {
		msg, _, err := m.SendMessage(ctx, ch.ID, strconv.Itoa(i))
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	page1, _, err := m.ListMessages(ctx, ch.ID, "", 3)
	require.NoError(t, err)
	require.Len(t, page1, 3)
	require.Equal(t, ids[0], page1[0].ID)

	page2, _, err := m.ListMessages(ctx, ch.ID, page1[2].ID, 3)
	require.NoError(t, err)
	require.Len(t, page2, 3)
	require.Equal(t, ids[3], page2[0].ID)

	page3, _, err := m.ListMessages(ctx, ch.ID, page2[2].ID, 3)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	require.Equal(t, ids[6], page3[0].ID)
}

func TestMemoryEditAndDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ch, _, err := m.CreateChannel(ctx, "a")
	require.NoError(t, err)

	a, _, err := m.SendMessage(ctx, ch.ID, "a")
	require.NoError(t, err)
	b, _, err := m.SendMessage(ctx, ch.ID, "b")
	require.NoError(t, err)

	edited, _, err := m.EditMessage(ctx, ch.ID, a.ID, "a2")
	require.NoError(t, err)
	require.Equal(t, a.ID, edited.ID)

	_, err = m.DeleteMessage(ctx, ch.ID, b.ID)
	require.NoError(t, err)

	msgs, _, err := m.ListMessages(ctx, ch.ID, "", MaxPageSize)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "a2", msgs[0].Content)

	_, _, err = m.GetMessage(ctx, ch.ID, b.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.DeleteMessage(ctx, ch.ID, b.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryPins(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ch, _, err := m.CreateChannel(ctx, "a")
	require.NoError(t, err)

	pinned, _, err := m.SendMessage(ctx, ch.ID, "schema")
	require.NoError(t, err)
	_, _, err = m.SendMessage(ctx, ch.ID, "row")
	require.NoError(t, err)
	_, err = m.PinMessage(ctx, ch.ID, pinned.ID)
	require.NoError(t, err)

	pins, _, err := m.ListPins(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	require.Equal(t, pinned.ID, pins[0].ID)
	require.True(t, pins[0].Pinned)

	// pinned messages still show up in the history
	msgs, _, err := m.ListMessages(ctx, ch.ID, "", MaxPageSize)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.True(t, msgs[0].Pinned)
}

func TestMemoryChannelNotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _, err := m.SendMessage(ctx, "nope", "x")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.DeleteChannel(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
	_, _, err = m.ListMessages(ctx, "nope", "", 10)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryIntercept(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ch, _, err := m.CreateChannel(ctx, "a")
	require.NoError(t, err)

	boom := errors.New("boom")
	m.Intercept = func(op string) error {
		if op == "SendMessage" {
			return boom
		}
		return nil
	}
	_, _, err = m.SendMessage(ctx, ch.ID, "x")
	require.ErrorIs(t, err, boom)

	// the failed call must not have been applied
	m.Intercept = nil
	msgs, _, err := m.ListMessages(ctx, ch.ID, "", MaxPageSize)
	require.NoError(t, err)
	require.Empty(t, msgs)
}
