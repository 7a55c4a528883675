package codec

import (
	"fmt"
	"strconv"
	"strings"

	"chatdb/pkg/models"
	"chatdb/pkg/remote"
)

// DecodeErrorKind classifies decode failures.
type DecodeErrorKind uint8

const (
	// Truncated means a chunk set is incomplete, out of order, or the
	// payload lost values.
	Truncated DecodeErrorKind = iota
	// TypeMismatch means a value failed to parse per its declared type.
	TypeMismatch
)

// DecodeError is a corrupt or unparsable row. Scans abort on it rather
// than silently dropping the row.
type DecodeError struct {
	Kind    DecodeErrorKind
	Table   string
	Message remote.MessageID
	Column  string
	Raw     string
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case TypeMismatch:
		return fmt.Sprintf("decode %s/%s: column %q: type mismatch on %q",
			e.Table, e.Message, e.Column, e.Raw)
	default:
		return fmt.Sprintf("decode %s/%s: truncated chunk set (%s)", e.Table, e.Message, e.Raw)
	}
}

// Chunk is one parsed message content: either an anchor (Index 0, Anchor
// empty) or a continuation referencing its anchor.
type Chunk struct {
	Anchor   remote.MessageID
	Index    int
	Total    int
	Fragment string
}

// ParseContent parses a message body into its chunk header and fragment.
func ParseContent(content string) (Chunk, error) {
	header, body, ok := strings.Cut(content, "\n")
	if !ok {
		return Chunk{}, fmt.Errorf("codec: missing chunk header")
	}
	switch {
	case strings.HasPrefix(header, anchorPrefix):
		n, err := headerInt(strings.TrimPrefix(header, anchorPrefix), "chunks")
		if err != nil {
			return Chunk{}, err
		}
		return Chunk{Total: n, Fragment: body}, nil
	case strings.HasPrefix(header, contPrefix):
		fields := strings.Fields(strings.TrimPrefix(header, contPrefix))
		if len(fields) != 3 {
			return Chunk{}, fmt.Errorf("codec: malformed continuation header %q", header)
		}
		anchor, ok := strings.CutPrefix(fields[0], "anchor=")
		if !ok || anchor == "" {
			return Chunk{}, fmt.Errorf("codec: malformed continuation header %q", header)
		}
		idx, err := headerInt(fields[1], "idx")
		if err != nil {
			return Chunk{}, err
		}
		total, err := headerInt(fields[2], "chunks")
		if err != nil {
			return Chunk{}, err
		}
		return Chunk{Anchor: remote.MessageID(anchor), Index: idx, Total: total, Fragment: body}, nil
	}
	return Chunk{}, fmt.Errorf("codec: unrecognized payload header %q", header)
}

func headerInt(field, key string) (int, error) {
	v, ok := strings.CutPrefix(field, key+"=")
	if !ok {
		return 0, fmt.Errorf("codec: expected %s= in chunk header, got %q", key, field)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("codec: bad %s value %q", key, v)
	}
	return n, nil
}

// Entry is a fully reassembled row: its identifier (the anchor's message
// id), the decoded values, and every message id the row occupies with the
// anchor first.
type Entry struct {
	ID     remote.MessageID
	Row    models.Row
	Chunks []remote.MessageID
}

type pendingRow struct {
	total     int
	fragments []string
	chunkIDs  []remote.MessageID
	have      int
}

// Assembler folds a channel's messages, in log order, back into rows.
// Pinned messages (the schema record) are ignored. Continuations whose
// anchor is absent are orphaned garbage from a failed delete: they are
// collected for repair, never decoded, never fatal.
type Assembler struct {
	codec  Codec
	schema models.Schema
	table  string

	order   []remote.MessageID
	pending map[remote.MessageID]*pendingRow
	orphans []remote.MessageID
}

// NewAssembler builds an assembler for one table's scan.
func NewAssembler(c Codec, schema models.Schema, table string) *Assembler {
	return &Assembler{
		codec:   c,
		schema:  schema,
		table:   table,
		pending: make(map[remote.MessageID]*pendingRow),
	}
}

// Add folds one scanned message. An unparsable body is a DecodeError: the
// channel holds something that is neither a row chunk nor the pinned
// schema, and silently skipping it would hide data loss.
func (a *Assembler) Add(msg remote.Message) error {
	if msg.Pinned {
		return nil
	}
	ch, err := ParseContent(msg.Content)
	if err != nil {
		return &DecodeError{Kind: Truncated, Table: a.table, Message: msg.ID, Raw: err.Error()}
	}
	if ch.Anchor == "" {
		if ch.Total < 1 {
			return &DecodeError{Kind: Truncated, Table: a.table, Message: msg.ID, Raw: "chunk count < 1"}
		}
		p := &pendingRow{
			total:     ch.Total,
			fragments: make([]string, ch.Total),
			chunkIDs:  make([]remote.MessageID, ch.Total),
			have:      1,
		}
		p.fragments[0] = ch.Fragment
		p.chunkIDs[0] = msg.ID
		a.pending[msg.ID] = p
		a.order = append(a.order, msg.ID)
		return nil
	}

	p, ok := a.pending[ch.Anchor]
	if !ok {
		a.orphans = append(a.orphans, msg.ID)
		return nil
	}
	if ch.Index < 1 || ch.Index >= p.total || ch.Total != p.total || p.chunkIDs[ch.Index] != "" {
		return &DecodeError{Kind: Truncated, Table: a.table, Message: msg.ID,
			Raw: fmt.Sprintf("chunk idx=%d total=%d conflicts with anchor %s", ch.Index, ch.Total, ch.Anchor)}
	}
	p.fragments[ch.Index] = ch.Fragment
	p.chunkIDs[ch.Index] = msg.ID
	p.have++
	return nil
}

// Finish decodes every assembled chunk set and returns the rows in log
// order. An anchor still missing chunks at end of log is truncated.
func (a *Assembler) Finish() ([]Entry, error) {
	out := make([]Entry, 0, len(a.order))
	for _, id := range a.order {
		p := a.pending[id]
		if p.have != p.total {
			return nil, &DecodeError{Kind: Truncated, Table: a.table, Message: id,
				Raw: fmt.Sprintf("%d of %d chunks", p.have, p.total)}
		}
		row, err := a.codec.DecodePayload(a.schema, a.table, id, strings.Join(p.fragments, delimiter))
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{ID: id, Row: row, Chunks: p.chunkIDs})
	}
	return out, nil
}

// Orphans lists continuation messages whose anchor never appeared; the
// repair sweep deletes them.
func (a *Assembler) Orphans() []remote.MessageID {
	return a.orphans
}
