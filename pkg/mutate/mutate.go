// Package mutate turns insert, update and delete into append, edit and
// multi-message removal against a channel's log. Row identity is the
// anchor message id and survives updates; it is never reused after delete
// because the platform allocates message ids.
package mutate

import (
	"context"
	"errors"
	"fmt"

	"chatdb/pkg/codec"
	"chatdb/pkg/logger"
	"chatdb/pkg/models"
	"chatdb/pkg/remote"
)

// PartialMutationError reports a multi-message mutation that succeeded for
// some chunks and failed for others. The row may be in an inconsistent
// chunk state; a repair scan clears the leftovers.
type PartialMutationError struct {
	Op     string
	Anchor remote.MessageID
	Done   int
	Total  int
	Err    error
}

func (e *PartialMutationError) Error() string {
	return fmt.Sprintf("partial %s of row %s: %d of %d chunks applied: %v",
		e.Op, e.Anchor, e.Done, e.Total, e.Err)
}

func (e *PartialMutationError) Unwrap() error { return e.Err }

// Executor applies mutations through the governed client.
type Executor struct {
	api   remote.API
	codec codec.Codec
}

// NewExecutor builds an executor using the given codec for payloads.
func NewExecutor(api remote.API, c codec.Codec) *Executor {
	return &Executor{api: api, codec: c}
}

// Insert encodes the row and appends its chunk messages in order. The
// anchor goes first so its id exists for the continuation headers; the
// returned entry's ID is the anchor id.
func (e *Executor) Insert(ctx context.Context, ch remote.ChannelID, schema models.Schema, row models.Row) (codec.Entry, error) {
	enc, err := e.codec.Encode(schema, row)
	if err != nil {
		return codec.Entry{}, err
	}
	anchor, err := e.api.SendMessage(ctx, ch, enc.Anchor())
	if err != nil {
		return codec.Entry{}, fmt.Errorf("insert into %s: %w", schema.Table, err)
	}
	chunks := make([]remote.MessageID, 1, enc.Chunks())
	chunks[0] = anchor.ID
	for idx := 1; idx < enc.Chunks(); idx++ {
		msg, err := e.api.SendMessage(ctx, ch, enc.Continuation(anchor.ID, idx))
		if err != nil {
			return codec.Entry{}, &PartialMutationError{
				Op: "insert", Anchor: anchor.ID, Done: idx, Total: enc.Chunks(), Err: err,
			}
		}
		chunks = append(chunks, msg.ID)
	}
	logger.Debug("row_inserted", "table", schema.Table, "id", anchor.ID, "chunks", enc.Chunks())
	return codec.Entry{ID: anchor.ID, Row: row.Clone(), Chunks: chunks}, nil
}

// Update re-encodes the row and edits the existing messages in place. The
// anchor id is preserved; when the new encoding needs a different chunk
// count, surplus messages are deleted and missing ones appended.
func (e *Executor) Update(ctx context.Context, ch remote.ChannelID, schema models.Schema, old codec.Entry, row models.Row) (codec.Entry, error) {
	enc, err := e.codec.Encode(schema, row)
	if err != nil {
		return codec.Entry{}, err
	}
	newN, oldN := enc.Chunks(), len(old.Chunks)

	if _, err := e.api.EditMessage(ctx, ch, old.ID, enc.Anchor()); err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return codec.Entry{}, fmt.Errorf("update row %s: %w", old.ID, err)
		}
		return codec.Entry{}, fmt.Errorf("update row %s in %s: %w", old.ID, schema.Table, err)
	}

	chunks := make([]remote.MessageID, 1, newN)
	chunks[0] = old.ID
	applied := 1
	fail := func(err error) (codec.Entry, error) {
		return codec.Entry{}, &PartialMutationError{
			Op: "update", Anchor: old.ID, Done: applied, Total: newN, Err: err,
		}
	}

	for idx := 1; idx < newN && idx < oldN; idx++ {
		if _, err := e.api.EditMessage(ctx, ch, old.Chunks[idx], enc.Continuation(old.ID, idx)); err != nil {
			return fail(err)
		}
		chunks = append(chunks, old.Chunks[idx])
		applied++
	}
	for idx := oldN; idx < newN; idx++ {
		msg, err := e.api.SendMessage(ctx, ch, enc.Continuation(old.ID, idx))
		if err != nil {
			return fail(err)
		}
		chunks = append(chunks, msg.ID)
		applied++
	}
	for idx := newN; idx < oldN; idx++ {
		if err := e.api.DeleteMessage(ctx, ch, old.Chunks[idx]); err != nil && !errors.Is(err, remote.ErrNotFound) {
			return fail(err)
		}
	}
	logger.Debug("row_updated", "table", schema.Table, "id", old.ID, "chunks", newN, "prev_chunks", oldN)
	return codec.Entry{ID: old.ID, Row: row.Clone(), Chunks: chunks}, nil
}

// Delete removes the anchor and every chunk message. The anchor goes
// first: once it is gone the row is invisible to readers, and any chunk
// whose delete fails afterwards is reader-tolerated garbage surfaced as a
// PartialMutationError for the repair sweep.
func (e *Executor) Delete(ctx context.Context, ch remote.ChannelID, entry codec.Entry) error {
	if err := e.api.DeleteMessage(ctx, ch, entry.ID); err != nil {
		return fmt.Errorf("delete row %s: %w", entry.ID, err)
	}
	for i, id := range entry.Chunks[1:] {
		if err := e.api.DeleteMessage(ctx, ch, id); err != nil && !errors.Is(err, remote.ErrNotFound) {
			return &PartialMutationError{
				Op: "delete", Anchor: entry.ID, Done: i + 1, Total: len(entry.Chunks), Err: err,
			}
		}
	}
	logger.Debug("row_deleted", "id", entry.ID, "chunks", len(entry.Chunks))
	return nil
}
