package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// maxDescriptionLen bounds field descriptions in compacted catalog output.
const maxDescriptionLen = 160

// truncate cuts on rune boundaries so multi-byte text never ends up with a
// split sequence before the ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// compactCatalogGetFields renders a catalog result as one line per field:
// name|type|description. Descriptions are truncated; everything else in
// the full result (timings, grouping metadata) is dropped.
func compactCatalogGetFields(full map[string]any, args map[string]any) string {
	var b strings.Builder
	if tableLike := stringArg(args, "tableLike"); tableLike != "" {
		fmt.Fprintf(&b, "catalog fields for %s:\n", tableLike)
	}

	entries, _ := full["catalog"].([]map[string]any)
	if len(entries) == 0 {
		b.WriteString("no matching fields")
		return b.String()
	}

	lastTable := ""
	for _, entry := range entries {
		table, _ := entry["TableName"].(string)
		if table != lastTable {
			if lastTable != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%s\n", table)
			lastTable = table
		}
		name, _ := entry["FieldName"].(string)
		dataType, _ := entry["DataType"].(string)
		desc, _ := entry["Description"].(string)
		fmt.Fprintf(&b, "%s|%s|%s\n", name, dataType, truncate(desc, maxDescriptionLen))
	}
	return strings.TrimRight(b.String(), "\n")
}

// compactSQLExecute renders a query result as the verbatim arguments, the
// row count, and the sample rows as pipe-delimited lines. Row values are
// emitted in sorted-key order with no header line; the model already sees
// the column list.
func compactSQLExecute(full map[string]any, args map[string]any) string {
	var b strings.Builder

	if sql := stringArg(args, "sql"); sql != "" {
		fmt.Fprintf(&b, "sql: %s\n", sql)
	}
	if params, ok := args["scalarParameters"]; ok && params != nil {
		if encoded, err := json.Marshal(params); err == nil {
			fmt.Fprintf(&b, "scalar_parameters: %s\n", encoded)
		}
	}
	if name, ok := full["query_name"].(string); ok && name != "" {
		fmt.Fprintf(&b, "query_name: %s\n", name)
	}

	if rowCount, ok := full["row_count"].(int); ok && rowCount > 0 {
		fmt.Fprintf(&b, "row_count: %d\n", rowCount)
		if cols, ok := full["columns"].([]string); ok && len(cols) > 0 {
			fmt.Fprintf(&b, "columns: %s\n", strings.Join(cols, ", "))
		}
		if rows, ok := full["sample_rows"].([]any); ok {
			for _, raw := range rows {
				row, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				b.WriteString(joinRowValues(row))
				b.WriteString("\n")
			}
		}
	} else {
		// Nothing tabular was inferred; fall back to scalar key:value lines.
		for _, key := range sortedScalarKeys(full) {
			fmt.Fprintf(&b, "%s: %v\n", key, full[key])
		}
	}

	if summaries, ok := full["schema_summaries"].([]map[string]any); ok {
		for _, s := range summaries {
			table, _ := s["table"].(string)
			if found, _ := s["found"].(bool); found {
				text, _ := s["summary"].(string)
				fmt.Fprintf(&b, "schema %s:\n%s\n", table, text)
				continue
			}
			line := fmt.Sprintf("schema %s: not cached", table)
			if suggestions, ok := s["suggestions"].([]string); ok && len(suggestions) > 0 {
				line += "; did you mean: " + strings.Join(suggestions, ", ")
			}
			b.WriteString(line + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// joinRowValues stringifies one sample row as " | "-separated values in
// sorted-key order.
func joinRowValues(row map[string]any) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := row[k]
		if v == nil {
			parts = append(parts, "")
			continue
		}
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return strings.Join(parts, " | ")
}

// sortedScalarKeys returns the scalar keys of a full result in stable
// order, skipping nested structures and bookkeeping fields.
func sortedScalarKeys(full map[string]any) []string {
	var keys []string
	for k, v := range full {
		switch k {
		case "sample_rows", "columns", "schema_summaries", "data", "scalar_parameters":
			continue
		}
		switch v.(type) {
		case map[string]any, []any, []string, []map[string]any:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
