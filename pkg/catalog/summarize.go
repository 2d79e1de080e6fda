package catalog

import (
	"fmt"
	"sort"
)

// TabularSummary is the inferred shape of a query result: column names,
// total row count, and up to a caller-chosen number of sample rows.
type TabularSummary struct {
	Columns    []string
	SampleRows []map[string]any
	RowCount   int
}

// SummarizeTabular infers columns, sample rows, and row count from a
// decoded backend payload. Backends differ in response shape, so three
// patterns are tried in fixed order and the first match wins:
//
//  1. {"Tables": [{"Columns": [...], "Rows": [...]}]}
//  2. {"columns": [...], "rows": [...]}
//  3. a bare list of row objects
//
// No match yields an empty summary, not an error.
func SummarizeTabular(data any, sampleLimit int) TabularSummary {
	if obj, ok := data.(map[string]any); ok {
		if tables, ok := obj["Tables"].([]any); ok && len(tables) > 0 {
			if table, ok := tables[0].(map[string]any); ok {
				columns := columnNames(table["Columns"])
				return summarizeRows(table["Rows"], columns, sampleLimit)
			}
		}
		if rows, ok := obj["rows"]; ok {
			columns := columnNames(obj["columns"])
			return summarizeRows(rows, columns, sampleLimit)
		}
	}

	if list, ok := data.([]any); ok && len(list) > 0 {
		if _, ok := list[0].(map[string]any); ok {
			return summarizeRows(list, nil, sampleLimit)
		}
	}

	return TabularSummary{}
}

// columnNames extracts names from a column list that may hold either
// {"Name": ...} objects or plain strings.
func columnNames(raw any) []string {
	cols, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if obj, ok := c.(map[string]any); ok {
			if name, ok := obj["Name"].(string); ok {
				out = append(out, name)
				continue
			}
		}
		out = append(out, fmt.Sprintf("%v", c))
	}
	return out
}

// summarizeRows handles row lists whose elements are either objects or
// positional value lists (zipped against columns).
func summarizeRows(raw any, columns []string, sampleLimit int) TabularSummary {
	rows, ok := raw.([]any)
	if !ok || len(rows) == 0 {
		return TabularSummary{Columns: columns}
	}

	limit := sampleLimit
	if limit > len(rows) {
		limit = len(rows)
	}

	switch rows[0].(type) {
	case map[string]any:
		sample := make([]map[string]any, 0, limit)
		for _, r := range rows[:limit] {
			if obj, ok := r.(map[string]any); ok {
				sample = append(sample, obj)
			}
		}
		if len(columns) == 0 && len(sample) > 0 {
			columns = sortedKeys(sample[0])
		}
		return TabularSummary{Columns: columns, SampleRows: sample, RowCount: len(rows)}

	case []any:
		sample := make([]map[string]any, 0, limit)
		for _, r := range rows[:limit] {
			values, ok := r.([]any)
			if !ok {
				continue
			}
			row := make(map[string]any, len(values))
			for i, v := range values {
				if i < len(columns) {
					row[columns[i]] = v
				} else {
					row[fmt.Sprintf("col_%d", i)] = v
				}
			}
			sample = append(sample, row)
		}
		return TabularSummary{Columns: columns, SampleRows: sample, RowCount: len(rows)}
	}

	return TabularSummary{Columns: columns}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic column order for map-shaped rows.
	sort.Strings(keys)
	return keys
}
