package cache

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/pebble"

	"chatdb/pkg/codec"
	"chatdb/pkg/logger"
	"chatdb/pkg/remote"
)

// Disk persists table snapshots in a local pebble database so a restarted
// process starts warm instead of re-scanning every channel. All writes are
// best-effort: a failed disk write degrades to a cold start, never to a
// wrong answer.
type Disk struct {
	db *pebble.DB
}

// OpenDisk opens (or creates) the snapshot database at path.
func OpenDisk(path string) (*Disk, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("cache_disk_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("cache_disk_opened", "path", path)
	return &Disk{db: db}, nil
}

// Close closes the snapshot database.
func (d *Disk) Close() error {
	return d.db.Close()
}

func rowKey(table string, id remote.MessageID) []byte {
	// message ids are decimal and ascending; zero-pad so key order is
	// log order
	padded := string(id)
	if n := 20 - len(padded); n > 0 {
		padded = strings.Repeat("0", n) + padded
	}
	return []byte("t:" + table + ":r:" + padded)
}

func rowBounds(table string) ([]byte, []byte) {
	return []byte("t:" + table + ":r:"), []byte("t:" + table + ":r;")
}

func cursorKey(table string) []byte {
	return []byte("t:" + table + ":cursor")
}

func (d *Disk) load(table string) ([]codec.Entry, remote.MessageID, bool) {
	cv, closer, err := d.db.Get(cursorKey(table))
	if err != nil {
		return nil, "", false
	}
	cursor := remote.MessageID(cv)
	_ = closer.Close()

	lower, upper := rowBounds(table)
	iter, err := d.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, "", false
	}
	defer iter.Close()
	var entries []codec.Entry
	for iter.First(); iter.Valid(); iter.Next() {
		var e codec.Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			logger.Warn("cache_disk_bad_entry", "table", table, "key", string(iter.Key()), "error", err)
			return nil, "", false
		}
		entries = append(entries, e)
	}
	logger.Debug("cache_disk_loaded", "table", table, "rows", len(entries), "cursor", cursor)
	return entries, cursor, true
}

func (d *Disk) put(table string, entries []codec.Entry, cursor remote.MessageID) {
	b := d.db.NewBatch()
	for _, e := range entries {
		v, err := json.Marshal(e)
		if err != nil {
			continue
		}
		_ = b.Set(rowKey(table, e.ID), v, nil)
	}
	if cursor != "" {
		_ = b.Set(cursorKey(table), []byte(cursor), nil)
	}
	if err := d.db.Apply(b, pebble.Sync); err != nil {
		logger.Warn("cache_disk_put_failed", "table", table, "error", err)
	}
}

func (d *Disk) replace(table string, entries []codec.Entry, cursor remote.MessageID) {
	d.drop(table)
	d.put(table, entries, cursor)
}

func (d *Disk) remove(table string, id remote.MessageID) {
	if err := d.db.Delete(rowKey(table, id), pebble.Sync); err != nil {
		logger.Warn("cache_disk_remove_failed", "table", table, "id", id, "error", err)
	}
}

func (d *Disk) drop(table string) {
	lower, upper := rowBounds(table)
	if err := d.db.DeleteRange(lower, upper, pebble.Sync); err != nil {
		logger.Warn("cache_disk_drop_failed", "table", table, "error", err)
	}
	if err := d.db.Delete(cursorKey(table), pebble.Sync); err != nil &&
		err != pebble.ErrNotFound {
		logger.Warn("cache_disk_drop_failed", "table", table, "error", err)
	}
}
