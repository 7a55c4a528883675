// Package cache keeps a per-table, write-through snapshot of decoded rows
// so queries do not pay remote latency twice. Snapshots are replaced
// atomically; readers never observe a half-built state. An optional pebble
// layer persists snapshots across restarts.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"chatdb/pkg/codec"
	"chatdb/pkg/remote"
	"chatdb/pkg/telemetry"
)

type snapshot struct {
	entries map[remote.MessageID]codec.Entry
	order   []remote.MessageID
	cursor  remote.MessageID
}

func newSnapshot(entries []codec.Entry, cursor remote.MessageID) *snapshot {
	s := &snapshot{
		entries: make(map[remote.MessageID]codec.Entry, len(entries)),
		order:   make([]remote.MessageID, 0, len(entries)),
		cursor:  cursor,
	}
	for _, e := range entries {
		s.entries[e.ID] = e
		s.order = append(s.order, e.ID)
	}
	return s
}

// Table is the cache for one table. Every row identifier it holds
// corresponds to a live remote message set.
type Table struct {
	name string
	disk *Disk

	mu   sync.RWMutex
	snap *snapshot

	group singleflight.Group
}

// NewTable builds a table cache. With a non-nil disk layer a persisted
// snapshot is warm-loaded, leaving only an incremental catch-up for the
// first scan.
func NewTable(name string, disk *Disk) *Table {
	t := &Table{name: name, disk: disk}
	if disk != nil {
		if entries, cursor, ok := disk.load(name); ok {
			t.snap = newSnapshot(entries, cursor)
		}
	}
	return t
}

// Loaded reports whether a snapshot is resident.
func (t *Table) Loaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap != nil
}

// Cursor returns the last-scanned log position of the resident snapshot.
func (t *Table) Cursor() (remote.MessageID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snap == nil {
		return "", false
	}
	return t.snap.cursor, true
}

// Get looks up a row by identifier.
func (t *Table) Get(id remote.MessageID) (codec.Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snap == nil {
		return codec.Entry{}, false
	}
	e, ok := t.snap.entries[id]
	if ok {
		telemetry.CacheHits.WithLabelValues(t.name).Inc()
	}
	return e, ok
}

// ScanAll returns the snapshot's rows in log order. The second result is
// false when no snapshot is resident.
func (t *Table) ScanAll() ([]codec.Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snap == nil {
		return nil, false
	}
	out := make([]codec.Entry, 0, len(t.snap.order))
	for _, id := range t.snap.order {
		out = append(out, t.snap.entries[id])
	}
	telemetry.CacheHits.WithLabelValues(t.name).Inc()
	return out, true
}

// Replace installs a freshly scanned snapshot atomically.
func (t *Table) Replace(entries []codec.Entry, cursor remote.MessageID) {
	snap := newSnapshot(entries, cursor)
	t.mu.Lock()
	t.snap = snap
	t.mu.Unlock()
	if t.disk != nil {
		t.disk.replace(t.name, entries, cursor)
	}
}

// Append merges entries discovered by an incremental catch-up scan and
// advances the cursor.
func (t *Table) Append(entries []codec.Entry, cursor remote.MessageID) {
	t.mu.Lock()
	if t.snap == nil {
		t.mu.Unlock()
		t.Replace(entries, cursor)
		return
	}
	for _, e := range entries {
		if _, exists := t.snap.entries[e.ID]; !exists {
			t.snap.order = append(t.snap.order, e.ID)
		}
		t.snap.entries[e.ID] = e
	}
	if cursor != "" {
		t.snap.cursor = cursor
	}
	t.mu.Unlock()
	if t.disk != nil {
		t.disk.put(t.name, entries, cursor)
	}
}

// Put writes one row through after a successful insert or update. cursor,
// when non-empty, advances the scan position past the messages this
// process just wrote, so catch-up scans only observe external writers.
func (t *Table) Put(entry codec.Entry, cursor remote.MessageID) {
	t.mu.Lock()
	if t.snap == nil {
		// nothing resident to keep coherent; the next scan loads fully
		t.mu.Unlock()
		return
	}
	if _, exists := t.snap.entries[entry.ID]; !exists {
		t.snap.order = append(t.snap.order, entry.ID)
	}
	t.snap.entries[entry.ID] = entry
	if cursor != "" {
		t.snap.cursor = cursor
	}
	t.mu.Unlock()
	if t.disk != nil {
		t.disk.put(t.name, []codec.Entry{entry}, cursor)
	}
}

// Remove drops a deleted row from the snapshot.
func (t *Table) Remove(id remote.MessageID) {
	t.mu.Lock()
	if t.snap != nil {
		if _, ok := t.snap.entries[id]; ok {
			delete(t.snap.entries, id)
			for i, oid := range t.snap.order {
				if oid == id {
					t.snap.order = append(t.snap.order[:i], t.snap.order[i+1:]...)
					break
				}
			}
		}
	}
	t.mu.Unlock()
	if t.disk != nil {
		t.disk.remove(t.name, id)
	}
}

// Invalidate discards the snapshot; the next access resyncs from the log.
func (t *Table) Invalidate() {
	t.mu.Lock()
	t.snap = nil
	t.mu.Unlock()
	if t.disk != nil {
		t.disk.drop(t.name)
	}
}

// Refill returns the resident snapshot or, on miss, runs load exactly once
// even under concurrent callers and installs its result.
func (t *Table) Refill(ctx context.Context, load func(context.Context) ([]codec.Entry, remote.MessageID, error)) ([]codec.Entry, error) {
	if entries, ok := t.ScanAll(); ok {
		return entries, nil
	}
	telemetry.CacheMisses.WithLabelValues(t.name).Inc()
	_, err, _ := t.group.Do("refill", func() (any, error) {
		if t.Loaded() {
			return nil, nil
		}
		entries, cursor, err := load(ctx)
		if err != nil {
			return nil, err
		}
		t.Replace(entries, cursor)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	entries, _ := t.ScanAll()
	return entries, nil
}
