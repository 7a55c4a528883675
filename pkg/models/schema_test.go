package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaValidate(t *testing.T) {
	good := Schema{
		Table: "users",
		Columns: []Column{
			{Name: "id", Type: "integer"},
			{Name: "name", Type: "TEXT", Nullable: true},
			{Name: "score", Type: "float"},
			{Name: "active", Type: "boolean"},
		},
	}
	require.NoError(t, good.Validate())

	cases := map[string]Schema{
		"empty table name": {Columns: []Column{{Name: "id", Type: "integer"}}},
		"no columns":       {Table: "t"},
		"unnamed column":   {Table: "t", Columns: []Column{{Type: "integer"}}},
		"duplicate column": {Table: "t", Columns: []Column{{Name: "id", Type: "integer"}, {Name: "id", Type: "text"}}},
		"unknown type":     {Table: "t", Columns: []Column{{Name: "id", Type: "varchar"}}},
	}
	for name, s := range cases {
		require.Error(t, s.Validate(), name)
	}
}

func TestSchemaCodeBlockRoundTrip(t *testing.T) {
	s := Schema{
		Table: "users",
		Columns: []Column{
			{Name: "id", Type: "integer"},
			{Name: "name", Type: "text", Nullable: true},
		},
	}
	block, err := s.MarshalCodeBlock()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(block, "```json\n"))
	require.True(t, strings.HasSuffix(block, "\n```"))

	got, err := ParseSchemaCodeBlock(block)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestParseSchemaCodeBlockTolerantOfBareJSON(t *testing.T) {
	got, err := ParseSchemaCodeBlock(`{"table":"t","columns":[{"name":"id","type":"integer"}]}`)
	require.NoError(t, err)
	require.Equal(t, "t", got.Table)
}

func TestParseSchemaCodeBlockRejectsGarbage(t *testing.T) {
	_, err := ParseSchemaCodeBlock("hello")
	require.Error(t, err)
	_, err = ParseSchemaCodeBlock("```json\n{\"table\":\"t\"}\n```")
	require.Error(t, err, "schema without columns fails validation")
}

func TestParseKindCaseInsensitive(t *testing.T) {
	for _, s := range []string{"integer", "INTEGER", "Integer"} {
		k, err := ParseKind(s)
		require.NoError(t, err)
		require.Equal(t, KindInteger, k)
	}
	_, err := ParseKind("blob")
	require.Error(t, err)
}

func TestValueString(t *testing.T) {
	require.Equal(t, "42", NewInt(42).String())
	require.Equal(t, "-1", NewInt(-1).String())
	require.Equal(t, "1.5", NewFloat(1.5).String())
	require.Equal(t, "true", NewBool(true).String())
	require.Equal(t, "hi", NewText("hi").String())
	require.Equal(t, "NULL", NewNull(KindText).String())
}

func TestRowEqualAndClone(t *testing.T) {
	r := Row{NewInt(1), NewText("a"), NewNull(KindFloat)}
	c := r.Clone()
	require.True(t, r.Equal(c))

	c[1] = NewText("b")
	require.False(t, r.Equal(c))
	require.False(t, r.Equal(Row{NewInt(1)}))
}
