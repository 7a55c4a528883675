// Package codec serializes rows into size-bounded message payloads and
// back. Encoding is deterministic and schema-driven; decoding is pure and
// never touches the network.
//
// A row renders as its values joined with '|'. Text values are single
// quoted with backslash escaping so the delimiter never appears bare inside
// a value. Oversized payloads split at value boundaries into chunks: the
// anchor message carries the chunk count, continuations carry the anchor
// id, their sequence index and the count.
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chatdb/pkg/models"
	"chatdb/pkg/remote"
)

const (
	delimiter    = "|"
	nullMarker   = "NULL"
	anchorPrefix = "#row "
	contPrefix   = "#chunk "
)

// headerBudget reserves room for the largest possible chunk header so the
// fragment capacity is independent of the eventual anchor id.
const headerBudget = len(contPrefix) + len("anchor=") + 20 + len(" idx=") + 4 + len(" chunks=") + 4 + 1

// ErrValueTooLarge means a single rendered value cannot fit one message
// even on its own; the row is rejected before anything is written.
var ErrValueTooLarge = errors.New("codec: value exceeds maximum message size")

// Codec encodes and decodes rows against a per-message size limit.
type Codec struct {
	// MaxLen is the platform's per-message payload cap in bytes.
	MaxLen int
}

// New returns a codec for the given message size limit; zero means the
// platform default.
func New(maxLen int) Codec {
	if maxLen <= 0 {
		maxLen = remote.MaxMessageLen
	}
	return Codec{MaxLen: maxLen}
}

// Encoded is a row rendered into one or more value-aligned fragments.
type Encoded struct {
	fragments []string
}

// Chunks reports how many messages the row occupies.
func (e Encoded) Chunks() int { return len(e.fragments) }

// Anchor renders the first message's content.
func (e Encoded) Anchor() string {
	return fmt.Sprintf("%schunks=%d\n%s", anchorPrefix, len(e.fragments), e.fragments[0])
}

// Continuation renders the content of chunk idx (1-based, idx < Chunks)
// once the anchor's id is known.
func (e Encoded) Continuation(anchor remote.MessageID, idx int) string {
	return fmt.Sprintf("%sanchor=%s idx=%d chunks=%d\n%s",
		contPrefix, anchor, idx, len(e.fragments), e.fragments[idx])
}

// Encode renders a row per the schema's declared types and splits it into
// the minimal number of size-bounded fragments. Value kinds must match the
// schema; NULL is only accepted for nullable columns.
func (c Codec) Encode(schema models.Schema, row models.Row) (Encoded, error) {
	if len(row) != len(schema.Columns) {
		return Encoded{}, fmt.Errorf("codec: row has %d values, schema %s has %d columns",
			len(row), schema.Table, len(schema.Columns))
	}
	pieces := make([]string, len(row))
	for i, col := range schema.Columns {
		kind, err := col.Kind()
		if err != nil {
			return Encoded{}, err
		}
		v := row[i]
		if v.Kind != kind {
			return Encoded{}, fmt.Errorf("codec: column %q expects %s, got %s", col.Name, kind, v.Kind)
		}
		if v.Null {
			if !col.Nullable {
				return Encoded{}, fmt.Errorf("codec: column %q is not nullable", col.Name)
			}
			pieces[i] = nullMarker
			continue
		}
		if kind == models.KindText {
			pieces[i] = quoteText(v.Text)
		} else {
			pieces[i] = v.String()
		}
	}

	capacity := c.MaxLen - headerBudget
	var fragments []string
	frag := ""
	for _, p := range pieces {
		if len(p) > capacity {
			return Encoded{}, fmt.Errorf("%w: %d bytes", ErrValueTooLarge, len(p))
		}
		switch {
		case frag == "":
			frag = p
		case len(frag)+len(delimiter)+len(p) <= capacity:
			frag += delimiter + p
		default:
			fragments = append(fragments, frag)
			frag = p
		}
	}
	fragments = append(fragments, frag)
	return Encoded{fragments: fragments}, nil
}

func quoteText(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '\'':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('\'')
	return b.String()
}

// DecodePayload parses a fully reassembled payload back into a row. Table
// and message id are carried into any DecodeError for scan context.
func (c Codec) DecodePayload(schema models.Schema, table string, id remote.MessageID, payload string) (models.Row, error) {
	pieces, err := splitPayload(payload)
	if err != nil {
		return nil, &DecodeError{Kind: Truncated, Table: table, Message: id, Raw: payload}
	}
	if len(pieces) != len(schema.Columns) {
		return nil, &DecodeError{Kind: Truncated, Table: table, Message: id,
			Raw: fmt.Sprintf("%d of %d values", len(pieces), len(schema.Columns))}
	}
	row := make(models.Row, len(pieces))
	for i, col := range schema.Columns {
		kind, kerr := col.Kind()
		if kerr != nil {
			return nil, kerr
		}
		v, perr := parseValue(kind, col, pieces[i])
		if perr != nil {
			return nil, &DecodeError{Kind: TypeMismatch, Table: table, Message: id,
				Column: col.Name, Raw: pieces[i]}
		}
		row[i] = v
	}
	return row, nil
}

func parseValue(kind models.Kind, col models.Column, raw string) (models.Value, error) {
	if raw == nullMarker {
		if !col.Nullable {
			return models.Value{}, fmt.Errorf("null in non-nullable column")
		}
		return models.NewNull(kind), nil
	}
	switch kind {
	case models.KindInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.Value{}, err
		}
		return models.NewInt(n), nil
	case models.KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.Value{}, err
		}
		return models.NewFloat(f), nil
	case models.KindBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return models.Value{}, err
		}
		return models.NewBool(b), nil
	case models.KindText:
		s, err := unquoteText(raw)
		if err != nil {
			return models.Value{}, err
		}
		return models.NewText(s), nil
	}
	return models.Value{}, fmt.Errorf("invalid kind")
}

func unquoteText(raw string) (string, error) {
	if len(raw) < 2 || raw[0] != '\'' || raw[len(raw)-1] != '\'' {
		return "", fmt.Errorf("text value not quoted")
	}
	var b strings.Builder
	body := raw[1 : len(raw)-1]
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' {
			i++
			if i >= len(body) {
				return "", fmt.Errorf("dangling escape")
			}
		}
		b.WriteByte(body[i])
	}
	return b.String(), nil
}

// splitPayload splits on the delimiter outside quoted text.
func splitPayload(payload string) ([]string, error) {
	var pieces []string
	start := 0
	inQuote := false
	for i := 0; i < len(payload); i++ {
		switch payload[i] {
		case '\\':
			if inQuote {
				i++
			}
		case '\'':
			inQuote = !inQuote
		case delimiter[0]:
			if !inQuote {
				pieces = append(pieces, payload[start:i])
				start = i + 1
			}
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	pieces = append(pieces, payload[start:])
	return pieces, nil
}
