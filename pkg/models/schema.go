package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Column is a single column definition: a name unique within its table and
// a declared type. Nullable columns accept explicit NULL values.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable,omitempty"`
}

// Kind returns the parsed Kind for the column's declared type.
func (c Column) Kind() (Kind, error) {
	return ParseKind(c.Type)
}

// Schema is the persisted column list for one table. Schemas are immutable
// after table creation; there is no ALTER TABLE.
type Schema struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

// Validate checks column names for duplicates and declared types for
// membership in the supported set.
func (s Schema) Validate() error {
	if s.Table == "" {
		return fmt.Errorf("schema has empty table name")
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema for %s has no columns", s.Table)
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("schema for %s has an unnamed column", s.Table)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("schema for %s has duplicate column %q", s.Table, c.Name)
		}
		seen[c.Name] = struct{}{}
		if _, err := c.Kind(); err != nil {
			return fmt.Errorf("schema for %s: column %q: %w", s.Table, c.Name, err)
		}
	}
	return nil
}

// MarshalCodeBlock renders the schema as a fenced JSON code block, the form
// stored in the channel's pinned schema message.
func (s Schema) MarshalCodeBlock() (string, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	return "```json\n" + string(b) + "\n```", nil
}

// ParseSchemaCodeBlock parses a schema message body, tolerating the fenced
// code block wrapper around the JSON payload.
func ParseSchemaCodeBlock(content string) (Schema, error) {
	text := strings.TrimSpace(content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimSuffix(text, "```")
	var s Schema
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &s); err != nil {
		return Schema{}, fmt.Errorf("invalid schema payload: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}
