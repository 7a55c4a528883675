package table

import (
	"context"
	"fmt"

	"chatdb/pkg/logger"
	"chatdb/pkg/models"
	"chatdb/pkg/remote"
)

// WriteSchema persists the column list as a pinned JSON message. It runs
// exactly once, immediately after channel creation. If pinning fails after
// the channel exists the table is left inconsistent and every later open
// reports ErrSchemaMissing; that state is repaired manually, never healed
// by guessing a schema.
func WriteSchema(ctx context.Context, api remote.API, ch remote.ChannelID, schema models.Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	content, err := schema.MarshalCodeBlock()
	if err != nil {
		return err
	}
	msg, err := api.SendMessage(ctx, ch, content)
	if err != nil {
		return fmt.Errorf("write schema for %s: %w", schema.Table, err)
	}
	if err := api.PinMessage(ctx, ch, msg.ID); err != nil {
		return fmt.Errorf("pin schema for %s: %w", schema.Table, err)
	}
	logger.Info("schema_written", "table", schema.Table, "channel", ch, "message", msg.ID)
	return nil
}

// ReadSchema loads the pinned schema record of a channel. A channel with
// no pinned schema surfaces ErrSchemaMissing. Callers hold the result
// immutable for the lifetime of the table handle.
func ReadSchema(ctx context.Context, api remote.API, ch remote.ChannelID) (models.Schema, error) {
	pins, err := api.ListPins(ctx, ch)
	if err != nil {
		return models.Schema{}, fmt.Errorf("read schema pins: %w", err)
	}
	if len(pins) == 0 {
		return models.Schema{}, fmt.Errorf("channel %s: %w", ch, ErrSchemaMissing)
	}
	schema, err := models.ParseSchemaCodeBlock(pins[0].Content)
	if err != nil {
		return models.Schema{}, fmt.Errorf("channel %s: %w", ch, err)
	}
	return schema, nil
}
