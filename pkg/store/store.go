// Package store is the storage-engine façade the query engine calls:
// create/drop table, open table, scan, point lookup, insert, update,
// delete. It composes the mapper, schema registry, log reader, codec,
// mutation executor and cache; all remote traffic flows through the
// governed client it was opened with.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatdb/pkg/cache"
	"chatdb/pkg/codec"
	"chatdb/pkg/governor"
	"chatdb/pkg/history"
	"chatdb/pkg/logger"
	"chatdb/pkg/models"
	"chatdb/pkg/mutate"
	"chatdb/pkg/remote"
	"chatdb/pkg/table"
	"chatdb/pkg/telemetry"
)

// Error taxonomy surfaced to the query engine. Compare with errors.Is.
var (
	ErrNotFound          = errors.New("store: not found")
	ErrAlreadyExists     = table.ErrAlreadyExists
	ErrSchemaMissing     = table.ErrSchemaMissing
	ErrRateLimitExceeded = governor.ErrRateLimitExceeded
	ErrRemoteUnavailable = remote.ErrUnavailable
)

// Config tunes a store.
type Config struct {
	// PageSize bounds history page requests; 0 means the platform cap.
	PageSize int
	// MaxMessageLen bounds encoded payloads; 0 means the platform cap.
	MaxMessageLen int
	// CachePath, when set, enables the persistent snapshot layer.
	CachePath string
}

// Store is the façade. One Store owns one governed client and one governor.
type Store struct {
	api    remote.API
	cfg    Config
	codec  codec.Codec
	mapper *table.Mapper
	exec   *mutate.Executor
	disk   *cache.Disk

	mu     sync.Mutex
	tables map[string]*Handle
}

// Open builds a store over the governed client.
func Open(api remote.API, cfg Config) (*Store, error) {
	c := codec.New(cfg.MaxMessageLen)
	s := &Store{
		api:    api,
		cfg:    cfg,
		codec:  c,
		mapper: table.NewMapper(api),
		exec:   mutate.NewExecutor(api, c),
		tables: make(map[string]*Handle),
	}
	if cfg.CachePath != "" {
		disk, err := cache.OpenDisk(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		s.disk = disk
	}
	return s, nil
}

// Close releases local resources. Remote state is untouched.
func (s *Store) Close() error {
	if s.disk != nil {
		return s.disk.Close()
	}
	return nil
}

// CreateTable allocates a channel for the table and pins its schema.
// A schema-write failure after channel creation leaves the table in the
// channel-without-schema state surfaced as ErrSchemaMissing on open.
func (s *Store) CreateTable(ctx context.Context, schema models.Schema) error {
	defer elapsed("create_table", schema.Table)()
	if err := schema.Validate(); err != nil {
		return err
	}
	ch, err := s.mapper.Create(ctx, schema.Table)
	if err != nil {
		return err
	}
	return table.WriteSchema(ctx, s.api, ch.ID, schema)
}

// DropTable deletes the table's channel and all local state for it.
func (s *Store) DropTable(ctx context.Context, name string) error {
	defer elapsed("drop_table", name)()
	if err := s.mapper.Drop(ctx, name); err != nil {
		return mapNotFound(err)
	}
	s.mu.Lock()
	h, ok := s.tables[name]
	delete(s.tables, name)
	s.mu.Unlock()
	if ok {
		h.cache.Invalidate()
	}
	return nil
}

// ListTables reads the schema of every mapped channel. Channels without a
// schema record are logged and skipped; they are not valid tables.
func (s *Store) ListTables(ctx context.Context) ([]models.Schema, error) {
	defer elapsed("list_tables", "*")()
	channels, err := s.mapper.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Schema, 0, len(channels))
	for name, ch := range channels {
		schema, err := table.ReadSchema(ctx, s.api, ch.ID)
		if err != nil {
			if errors.Is(err, table.ErrSchemaMissing) {
				logger.Warn("channel_without_schema", "channel", ch.ID, "name", name)
				continue
			}
			return nil, err
		}
		out = append(out, schema)
	}
	return out, nil
}

// Table opens a handle on the named table, reading its schema once. The
// handle's schema is immutable; reopen to observe a recreated table.
func (s *Store) Table(ctx context.Context, name string) (*Handle, error) {
	s.mu.Lock()
	if h, ok := s.tables[name]; ok {
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	ch, err := s.mapper.Resolve(ctx, name)
	if err != nil {
		return nil, mapNotFound(err)
	}
	schema, err := table.ReadSchema(ctx, s.api, ch.ID)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		store:   s,
		name:    name,
		channel: ch.ID,
		schema:  schema,
		cache:   cache.NewTable(name, s.disk),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tables[name]; ok {
		return existing, nil
	}
	s.tables[name] = h
	return h, nil
}

// RepairTable sweeps the named table's log for orphaned chunks and deletes
// them, refreshing the cache snapshot from the same pass. It returns the
// purged message ids.
func (s *Store) RepairTable(ctx context.Context, name string) ([]remote.MessageID, error) {
	h, err := s.Table(ctx, name)
	if err != nil {
		return nil, err
	}
	return h.Repair(ctx)
}

func mapNotFound(err error) error {
	if errors.Is(err, table.ErrNotFound) || errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func elapsed(op, tbl string) func() {
	start := time.Now()
	return func() {
		logger.Debug("store_op", "op", op, "table", tbl, "elapsed", time.Since(start))
	}
}

// Handle is an open table: resolved channel, immutable schema, and the
// table's cache.
type Handle struct {
	store   *Store
	name    string
	channel remote.ChannelID
	schema  models.Schema
	cache   *cache.Table
}

// Schema returns the handle's column definitions.
func (h *Handle) Schema() models.Schema {
	return h.schema
}

// loadFull reconstructs the whole table from the log.
func (h *Handle) loadFull(ctx context.Context) ([]codec.Entry, remote.MessageID, error) {
	asm := codec.NewAssembler(h.store.codec, h.schema, h.name)
	sc := history.Scan(h.store.api, h.channel, "", h.store.cfg.PageSize)
	for sc.Next(ctx) {
		if err := asm.Add(sc.Message()); err != nil {
			return nil, "", err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, "", fmt.Errorf("scan %s: %w", h.name, err)
	}
	entries, err := asm.Finish()
	if err != nil {
		return nil, "", err
	}
	if orphans := asm.Orphans(); len(orphans) > 0 {
		logger.Warn("orphan_chunks_found", "table", h.name, "count", len(orphans))
	}
	telemetry.RowsDecoded.WithLabelValues(h.name).Add(float64(len(entries)))
	return entries, sc.Cursor(), nil
}

// catchUp scans from the snapshot cursor to pick up rows appended by
// external writers since the last load. External edits and deletes stay
// unobserved until Invalidate; that staleness is accepted.
func (h *Handle) catchUp(ctx context.Context) error {
	cursor, ok := h.cache.Cursor()
	if !ok {
		return nil
	}
	asm := codec.NewAssembler(h.store.codec, h.schema, h.name)
	sc := history.Scan(h.store.api, h.channel, cursor, h.store.cfg.PageSize)
	n := 0
	for sc.Next(ctx) {
		if err := asm.Add(sc.Message()); err != nil {
			return err
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("catch-up scan %s: %w", h.name, err)
	}
	if n == 0 {
		return nil
	}
	entries, err := asm.Finish()
	if err != nil {
		return err
	}
	telemetry.RowsDecoded.WithLabelValues(h.name).Add(float64(len(entries)))
	h.cache.Append(entries, sc.Cursor())
	return nil
}

// Scan returns every live row in insertion order. A resident snapshot is
// served after an incremental catch-up; otherwise the full log is read and
// cached. Any undecodable row aborts the scan with its table and message
// id; a visible failure beats a silently incomplete result.
func (h *Handle) Scan(ctx context.Context) ([]codec.Entry, error) {
	defer elapsed("scan", h.name)()
	if h.cache.Loaded() {
		if err := h.catchUp(ctx); err != nil {
			return nil, err
		}
	}
	return h.cache.Refill(ctx, h.loadFull)
}

// Get returns the row with the given identifier, refilling the cache on
// miss.
func (h *Handle) Get(ctx context.Context, id remote.MessageID) (models.Row, error) {
	defer elapsed("get", h.name)()
	if _, err := h.cache.Refill(ctx, h.loadFull); err != nil {
		return nil, err
	}
	entry, ok := h.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("row %s in %s: %w", id, h.name, ErrNotFound)
	}
	return entry.Row, nil
}

// Insert appends the row and returns its identifier.
func (h *Handle) Insert(ctx context.Context, row models.Row) (remote.MessageID, error) {
	defer elapsed("insert", h.name)()
	entry, err := h.store.exec.Insert(ctx, h.channel, h.schema, row)
	if err != nil {
		return "", err
	}
	h.cache.Put(entry, entry.Chunks[len(entry.Chunks)-1])
	return entry.ID, nil
}

// Update rewrites the identified row in place; the identifier is stable
// across the update.
func (h *Handle) Update(ctx context.Context, id remote.MessageID, row models.Row) error {
	defer elapsed("update", h.name)()
	if _, err := h.cache.Refill(ctx, h.loadFull); err != nil {
		return err
	}
	old, ok := h.cache.Get(id)
	if !ok {
		return fmt.Errorf("row %s in %s: %w", id, h.name, ErrNotFound)
	}
	entry, err := h.store.exec.Update(ctx, h.channel, h.schema, old, row)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			// the anchor vanished under us; drop it locally too
			h.cache.Remove(id)
			return mapNotFound(err)
		}
		return err
	}
	cursor := remote.MessageID("")
	if len(entry.Chunks) > len(old.Chunks) {
		cursor = entry.Chunks[len(entry.Chunks)-1]
	}
	h.cache.Put(entry, cursor)
	return nil
}

// Delete removes the identified row. Its identifier is never reused.
func (h *Handle) Delete(ctx context.Context, id remote.MessageID) error {
	defer elapsed("delete", h.name)()
	if _, err := h.cache.Refill(ctx, h.loadFull); err != nil {
		return err
	}
	entry, ok := h.cache.Get(id)
	if !ok {
		return fmt.Errorf("row %s in %s: %w", id, h.name, ErrNotFound)
	}
	err := h.store.exec.Delete(ctx, h.channel, entry)
	if err != nil && errors.Is(err, remote.ErrNotFound) {
		h.cache.Remove(id)
		return mapNotFound(err)
	}
	// even a partial delete removed the anchor: the row is gone
	h.cache.Remove(id)
	return err
}

// Invalidate discards the cache so the next read resyncs from the log.
func (h *Handle) Invalidate() {
	h.cache.Invalidate()
}

// Repair runs a full log pass, deletes orphaned continuation chunks, and
// replaces the cache snapshot from the same pass.
func (h *Handle) Repair(ctx context.Context) ([]remote.MessageID, error) {
	defer elapsed("repair", h.name)()
	asm := codec.NewAssembler(h.store.codec, h.schema, h.name)
	sc := history.Scan(h.store.api, h.channel, "", h.store.cfg.PageSize)
	for sc.Next(ctx) {
		if err := asm.Add(sc.Message()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("repair scan %s: %w", h.name, err)
	}
	entries, err := asm.Finish()
	if err != nil {
		return nil, err
	}
	orphans := asm.Orphans()
	for _, id := range orphans {
		if err := h.store.api.DeleteMessage(ctx, h.channel, id); err != nil &&
			!errors.Is(err, remote.ErrNotFound) {
			return nil, fmt.Errorf("purge orphan %s in %s: %w", id, h.name, err)
		}
	}
	if len(orphans) > 0 {
		logger.Info("orphan_chunks_purged", "table", h.name, "count", len(orphans))
	}
	h.cache.Replace(entries, sc.Cursor())
	return orphans, nil
}
