package tools

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 160))
	long := strings.Repeat("x", 200)
	got := truncate(long, 160)
	assert.Equal(t, 160+len("…"), len(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestTruncate_RuneBoundary(t *testing.T) {
	multi := strings.Repeat("é", 200)
	got := truncate(multi, 160)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 161, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestCompactCatalogGetFields(t *testing.T) {
	full := map[string]any{
		"catalog": []map[string]any{
			{"TableName": "lusid.instrument", "FieldName": "LusidInstrumentId", "DataType": "Text", "Description": "Unique id"},
			{"TableName": "lusid.instrument", "FieldName": "Name", "DataType": "Text", "Description": strings.Repeat("d", 300)},
			{"TableName": "lusid.portfolio", "FieldName": "PortfolioCode", "DataType": "Text", "Description": ""},
		},
	}
	args := map[string]any{"tableLike": "Lusid.%"}

	compact := compactCatalogGetFields(full, args)
	lines := strings.Split(compact, "\n")

	assert.Equal(t, "catalog fields for Lusid.%:", lines[0])
	assert.Contains(t, lines, "LusidInstrumentId|Text|Unique id")
	assert.Contains(t, lines, "PortfolioCode|Text|")

	// Long descriptions are truncated with an ellipsis.
	for _, line := range lines {
		if strings.HasPrefix(line, "Name|Text|") {
			assert.True(t, strings.HasSuffix(line, "…"))
			assert.Less(t, len(line), 200)
		}
	}
}

func TestCompactCatalogGetFields_Empty(t *testing.T) {
	compact := compactCatalogGetFields(map[string]any{}, map[string]any{"tableLike": "Nope.%"})
	assert.Contains(t, compact, "no matching fields")
}

func TestCompactSQLExecute_SampleRows(t *testing.T) {
	full := map[string]any{
		"query_name": "Probe",
		"row_count":  2,
		"columns":    []string{"a", "b"},
		"sample_rows": []any{
			map[string]any{"b": "x", "a": float64(1)},
			map[string]any{"a": float64(2), "b": "y"},
		},
	}
	args := map[string]any{"sql": "select a, b from T"}

	compact := compactSQLExecute(full, args)
	lines := strings.Split(compact, "\n")

	assert.Equal(t, "sql: select a, b from T", lines[0])
	assert.Contains(t, compact, "row_count: 2")
	assert.Contains(t, compact, "columns: a, b")

	// Rows are pipe-delimited values in sorted-key order, no header line.
	assert.Contains(t, lines, "1 | x")
	assert.Contains(t, lines, "2 | y")
	assert.NotContains(t, compact, "a | b")
}

func TestCompactSQLExecute_ScalarParameters(t *testing.T) {
	full := map[string]any{
		"row_count":         1,
		"columns":           []string{"a"},
		"sample_rows":       []any{map[string]any{"a": float64(1)}},
		"scalar_parameters": map[string]any{"scope": "Finbourne"},
	}
	args := map[string]any{
		"sql":              "select a from T where Scope = @scope",
		"scalarParameters": map[string]any{"scope": "Finbourne"},
	}

	compact := compactSQLExecute(full, args)
	lines := strings.Split(compact, "\n")

	// The supplied parameters stay visible alongside the query text.
	assert.Equal(t, "sql: select a from T where Scope = @scope", lines[0])
	assert.Equal(t, `scalar_parameters: {"scope":"Finbourne"}`, lines[1])
	assert.Contains(t, compact, "row_count: 1")
}

func TestCompactSQLExecute_NilValues(t *testing.T) {
	full := map[string]any{
		"row_count":   1,
		"columns":     []string{"a", "b"},
		"sample_rows": []any{map[string]any{"a": nil, "b": "x"}},
	}

	compact := compactSQLExecute(full, map[string]any{"sql": "select 1"})
	assert.Contains(t, compact, " | x")
}

func TestCompactSQLExecute_ScalarFallback(t *testing.T) {
	full := map[string]any{
		"query_name":  "Empty",
		"row_count":   0,
		"duration_ms": int64(12),
	}

	compact := compactSQLExecute(full, map[string]any{"sql": "select 1 where 1=0"})
	assert.Contains(t, compact, "query_name: Empty")
	assert.Contains(t, compact, "duration_ms: 12")
	assert.NotContains(t, compact, "sample_rows")
}

func TestCompactSQLExecute_SchemaSummaries(t *testing.T) {
	full := map[string]any{
		"row_count": 0,
		"schema_summaries": []map[string]any{
			{"table": "lusid.instrument", "found": true, "summary": "primary_key: LusidInstrumentId"},
			{"table": "lusid.instrumnet", "found": false, "suggestions": []string{"lusid.instrument"}},
		},
	}

	compact := compactSQLExecute(full, map[string]any{"sql": "select 1"})
	assert.Contains(t, compact, "schema lusid.instrument:")
	assert.Contains(t, compact, "primary_key: LusidInstrumentId")
	assert.Contains(t, compact, "schema lusid.instrumnet: not cached; did you mean: lusid.instrument")
}

func TestJoinRowValues_SortedKeys(t *testing.T) {
	row := map[string]any{"zeta": 3, "alpha": 1, "mid": "m"}
	require.Equal(t, "1 | m | 3", joinRowValues(row))
}
