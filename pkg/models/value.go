package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the declared column types supported by the engine.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInteger
	KindFloat
	KindText
	KindBoolean
)

var kindNames = map[Kind]string{
	KindInteger: "integer",
	KindFloat:   "float",
	KindText:    "text",
	KindBoolean: "boolean",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "invalid"
}

// ParseKind maps a declared type name to its Kind. Names are matched
// case-insensitively so SQL-style INTEGER and lowercase integer both work.
func ParseKind(s string) (Kind, error) {
	lower := strings.ToLower(s)
	for k, name := range kindNames {
		if name == lower {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown column type: %q", s)
}

// Value is a single typed cell. Exactly one of the payload fields is
// meaningful, selected by Kind; Null marks an absent value of the declared
// type.
type Value struct {
	Kind  Kind
	Null  bool
	Int   int64
	Float float64
	Text  string
	Bool  bool
}

func NewInt(v int64) Value { return Value{Kind: KindInteger, Int: v} }

func NewFloat(v float64) Value { return Value{Kind: KindFloat, Float: v} }

func NewText(v string) Value { return Value{Kind: KindText, Text: v} }

func NewBool(v bool) Value { return Value{Kind: KindBoolean, Bool: v} }

func NewNull(k Kind) Value { return Value{Kind: k, Null: true} }

// String renders the value as its canonical literal. Text values are not
// quoted here; the codec owns quoting and escaping.
func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	switch v.Kind {
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindText:
		return v.Text
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	}
	return "invalid"
}

// Row is an ordered tuple of values, one per schema column.
type Row []Value

// Equal reports whether two rows have identical length, kinds and payloads.
func (r Row) Equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if r[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}
