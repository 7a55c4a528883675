package mutate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chatdb/pkg/codec"
	"chatdb/pkg/governor"
	"chatdb/pkg/models"
	"chatdb/pkg/remote"
)

// chunkMaxLen leaves room for a handful of 60-byte text values per
// fragment, so wideRow encodes to several chunk messages.
const chunkMaxLen = 160

var docSchema = models.Schema{
	Table: "docs",
	Columns: []models.Column{
		{Name: "id", Type: "integer"},
		{Name: "body", Type: "text"},
	},
}

var wideSchema = models.Schema{
	Table: "docs",
	Columns: []models.Column{
		{Name: "id", Type: "integer"},
		{Name: "a", Type: "text"},
		{Name: "b", Type: "text"},
		{Name: "c", Type: "text"},
		{Name: "d", Type: "text"},
	},
}

func docRow(id int64, body string) models.Row {
	return models.Row{models.NewInt(id), models.NewText(body)}
}

func wideRow(id int64, fill string) models.Row {
	cell := strings.Repeat(fill, 60/len(fill))
	return models.Row{
		models.NewInt(id),
		models.NewText("a" + cell),
		models.NewText("b" + cell),
		models.NewText("c" + cell),
		models.NewText("d" + cell),
	}
}

func narrowRow(id int64) models.Row {
	return models.Row{
		models.NewInt(id),
		models.NewText("a"),
		models.NewText("b"),
		models.NewText("c"),
		models.NewText("d"),
	}
}

func setup(t *testing.T, maxLen int) (*remote.Memory, remote.API, *Executor, remote.ChannelID) {
	t.Helper()
	mem := remote.NewMemory()
	api := governor.NewClient(governor.New(governor.Config{RPS: 100000, Burst: 10000}), mem)
	ch, err := api.CreateChannel(context.Background(), "docs")
	require.NoError(t, err)
	return mem, api, NewExecutor(api, codec.New(maxLen)), ch.ID
}

// reassemble reads the channel back through the codec, proving the
// written messages decode to the expected rows.
func reassemble(t *testing.T, api remote.API, ch remote.ChannelID, schema models.Schema, maxLen int) []codec.Entry {
	t.Helper()
	msgs, err := api.ListMessages(context.Background(), ch, "", remote.MaxPageSize)
	require.NoError(t, err)
	asm := codec.NewAssembler(codec.New(maxLen), schema, schema.Table)
	for _, m := range msgs {
		require.NoError(t, asm.Add(m))
	}
	entries, err := asm.Finish()
	require.NoError(t, err)
	return entries
}

func TestInsertSingleChunk(t *testing.T) {
	_, api, exec, ch := setup(t, remote.MaxMessageLen)

	entry, err := exec.Insert(context.Background(), ch, docSchema, docRow(1, "hello"))
	require.NoError(t, err)
	require.Len(t, entry.Chunks, 1)
	require.Equal(t, entry.ID, entry.Chunks[0])

	got := reassemble(t, api, ch, docSchema, remote.MaxMessageLen)
	require.Len(t, got, 1)
	require.Equal(t, entry.ID, got[0].ID)
	require.True(t, got[0].Row.Equal(docRow(1, "hello")))
}

func TestInsertChunkedRow(t *testing.T) {
	_, api, exec, ch := setup(t, chunkMaxLen)

	row := wideRow(2, "lorem ")
	entry, err := exec.Insert(context.Background(), ch, wideSchema, row)
	require.NoError(t, err)
	require.Greater(t, len(entry.Chunks), 2)

	got := reassemble(t, api, ch, wideSchema, chunkMaxLen)
	require.Len(t, got, 1)
	require.Equal(t, entry.ID, got[0].ID)
	require.True(t, got[0].Row.Equal(row))
}

func TestInsertPartialFailure(t *testing.T) {
	mem, _, _, ch := setup(t, chunkMaxLen)

	sends := 0
	mem.Intercept = func(op string) error {
		if op == "SendMessage" {
			sends++
			if sends > 2 {
				return remote.ErrUnavailable
			}
		}
		return nil
	}

	// a tiny retry budget keeps the governed client from absorbing the
	// injected failures
	api := governor.NewClient(governor.New(governor.Config{RPS: 100000, Burst: 10000, MaxRetries: 1, MaxWait: 1}), mem)
	exec := NewExecutor(api, codec.New(chunkMaxLen))

	_, err := exec.Insert(context.Background(), ch, wideSchema, wideRow(3, "lorem "))
	var pm *PartialMutationError
	require.ErrorAs(t, err, &pm)
	require.Equal(t, "insert", pm.Op)
	require.NotEmpty(t, pm.Anchor)
	require.Less(t, pm.Done, pm.Total)
}

func TestUpdateInPlacePreservesAnchor(t *testing.T) {
	_, api, exec, ch := setup(t, remote.MaxMessageLen)
	ctx := context.Background()

	entry, err := exec.Insert(ctx, ch, docSchema, docRow(1, "before"))
	require.NoError(t, err)

	updated, err := exec.Update(ctx, ch, docSchema, entry, docRow(1, "after"))
	require.NoError(t, err)
	require.Equal(t, entry.ID, updated.ID)

	got := reassemble(t, api, ch, docSchema, remote.MaxMessageLen)
	require.Len(t, got, 1)
	require.True(t, got[0].Row.Equal(docRow(1, "after")))
}

func TestUpdateGrowsChunkCount(t *testing.T) {
	_, api, exec, ch := setup(t, chunkMaxLen)
	ctx := context.Background()

	entry, err := exec.Insert(ctx, ch, wideSchema, narrowRow(1))
	require.NoError(t, err)
	require.Len(t, entry.Chunks, 1)

	big := wideRow(1, "expand")
	updated, err := exec.Update(ctx, ch, wideSchema, entry, big)
	require.NoError(t, err)
	require.Equal(t, entry.ID, updated.ID)
	require.Greater(t, len(updated.Chunks), 1)

	got := reassemble(t, api, ch, wideSchema, chunkMaxLen)
	require.Len(t, got, 1)
	require.True(t, got[0].Row.Equal(big))
}

func TestUpdateShrinksChunkCount(t *testing.T) {
	_, api, exec, ch := setup(t, chunkMaxLen)
	ctx := context.Background()

	entry, err := exec.Insert(ctx, ch, wideSchema, wideRow(1, "expand"))
	require.NoError(t, err)
	require.Greater(t, len(entry.Chunks), 1)

	small := narrowRow(1)
	updated, err := exec.Update(ctx, ch, wideSchema, entry, small)
	require.NoError(t, err)
	require.Equal(t, entry.ID, updated.ID)
	require.Len(t, updated.Chunks, 1)

	// surplus continuation messages must be gone from the channel
	msgs, err := api.ListMessages(ctx, ch, "", remote.MaxPageSize)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	got := reassemble(t, api, ch, wideSchema, chunkMaxLen)
	require.Len(t, got, 1)
	require.True(t, got[0].Row.Equal(small))
}

func TestUpdateVanishedRow(t *testing.T) {
	_, api, exec, ch := setup(t, remote.MaxMessageLen)
	ctx := context.Background()

	entry, err := exec.Insert(ctx, ch, docSchema, docRow(1, "x"))
	require.NoError(t, err)
	require.NoError(t, api.DeleteMessage(ctx, ch, entry.ID))

	_, err = exec.Update(ctx, ch, docSchema, entry, docRow(1, "y"))
	require.ErrorIs(t, err, remote.ErrNotFound)
}

func TestDeleteRemovesEveryChunk(t *testing.T) {
	_, api, exec, ch := setup(t, chunkMaxLen)
	ctx := context.Background()

	entry, err := exec.Insert(ctx, ch, wideSchema, wideRow(1, "expand"))
	require.NoError(t, err)
	require.Greater(t, len(entry.Chunks), 1)

	require.NoError(t, exec.Delete(ctx, ch, entry))

	msgs, err := api.ListMessages(ctx, ch, "", remote.MaxPageSize)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestDeletePartialFailureLeavesOrphans(t *testing.T) {
	mem, _, exec, ch := setup(t, chunkMaxLen)
	ctx := context.Background()

	entry, err := exec.Insert(ctx, ch, wideSchema, wideRow(1, "expand"))
	require.NoError(t, err)
	require.Greater(t, len(entry.Chunks), 2)

	deletes := 0
	failed := errors.New("boom")
	mem.Intercept = func(op string) error {
		if op == "DeleteMessage" {
			deletes++
			if deletes > 2 {
				return failed
			}
		}
		return nil
	}

	err = exec.Delete(ctx, ch, entry)
	var pm *PartialMutationError
	require.ErrorAs(t, err, &pm)
	require.Equal(t, "delete", pm.Op)
	require.Equal(t, entry.ID, pm.Anchor)

	// the anchor went first, so readers no longer see the row; the
	// leftover chunks are orphans for the repair sweep
	mem.Intercept = nil
	msgs, _, err := mem.ListMessages(ctx, ch, "", remote.MaxPageSize)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	asm := codec.NewAssembler(codec.New(chunkMaxLen), wideSchema, "docs")
	for _, m := range msgs {
		require.NoError(t, asm.Add(m))
	}
	entries, err := asm.Finish()
	require.NoError(t, err)
	require.Empty(t, entries)
	require.NotEmpty(t, asm.Orphans())
}
