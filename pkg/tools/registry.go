// Package tools implements the fixed tool registry: name-addressed
// dispatch, argument validation, execution against the catalog backend,
// and compaction of results for context reuse.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/finbourne-labs/fathom/pkg/catalog"
	"github.com/finbourne-labs/fathom/pkg/llm"
	"github.com/finbourne-labs/fathom/pkg/schema"
)

// Tool names in the registry.
const (
	ToolCatalogGetFields = "catalog_get_fields"
	ToolSQLExecute       = "sql_execute"
)

// Result is the outcome of one tool execution: the full result for
// persistence and display, plus the compacted textual projection that
// re-enters the model-facing conversation.
type Result struct {
	Full    map[string]any
	Compact string
}

// ValidationError marks a local argument/name problem that is never
// forwarded upstream.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Dispatcher executes registry tools. Safe for concurrent use across runs;
// the schema cache handles its own synchronization.
type Dispatcher struct {
	catalog     catalog.Client
	schemas     *schema.Cache
	sampleLimit int
}

// NewDispatcher wires the dispatcher to its collaborators. sampleLimit
// caps the sample rows returned by sql_execute (default 10 when <= 0).
func NewDispatcher(catalogClient catalog.Client, schemas *schema.Cache, sampleLimit int) *Dispatcher {
	if sampleLimit <= 0 {
		sampleLimit = 10
	}
	return &Dispatcher{catalog: catalogClient, schemas: schemas, sampleLimit: sampleLimit}
}

// Definitions returns the bounded tool definition set sent with every
// model call.
func Definitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Type: "function",
			Function: llm.FunctionDefinition{
				Name: ToolCatalogGetFields,
				Description: "Get catalog fields for matching tables. " +
					"Supports wildcards in tableLike (e.g. 'Lusid.Instrument', 'Lusid.Instrument%', 'Lusid.%').",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"tableLike": {
							"type": "string",
							"description": "A table name or pattern with wildcards to filter the catalog."
						}
					},
					"required": ["tableLike"],
					"additionalProperties": false
				}`),
			},
		},
		{
			Type: "function",
			Function: llm.FunctionDefinition{
				Name: ToolSQLExecute,
				Description: "Execute SQL and return a compact result (columns, row_count, sample_rows). " +
					"Prefer selecting specific columns and filtering by identifiers to keep results small.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"sql": {"type": "string", "description": "The SQL to execute."},
						"scalarParameters": {
							"type": "object",
							"description": "Optional scalar parameters. Prefer inlining literals in the SQL body.",
							"additionalProperties": {"type": ["string", "number", "boolean"]}
						},
						"queryName": {"type": "string", "description": "Optional query name for logs."},
						"tables": {
							"type": "array",
							"items": {"type": "string"},
							"description": "Optional table names to include cached schema summaries for."
						}
					},
					"required": ["sql"],
					"additionalProperties": false
				}`),
			},
		},
	}
}

// CheatSheet is the compact system-prompt text describing the tools.
func CheatSheet() string {
	return strings.Join([]string{
		"You can call two tools to investigate LUSID data.",
		"- catalog_get_fields(tableLike): List fields for matching tables (wildcards ok).",
		"- sql_execute(sql, scalarParameters?, queryName?, tables?): Run SQL; returns columns, row_count, sample_rows.",
		"Guidance: Select only required columns; filter using identifiers (e.g. LusidInstrumentId, PortfolioScope/Code); limit result sizes.",
		"Parameters: Prefer inlining literals directly in the SQL body. If you provide scalarParameters, they may be ignored.",
		"Use catalog_get_fields before querying unfamiliar tables. Keep queries targeted.",
	}, "\n")
}

// Execute runs the named tool with a raw JSON argument blob and returns
// both the full result and its compacted projection. An unknown name or a
// missing required argument is a validation error, not an upstream call.
func (d *Dispatcher) Execute(ctx context.Context, name, arguments string) (*Result, error) {
	args := map[string]any{}
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return nil, validationErrorf("invalid tool arguments for %s: %v", name, err)
		}
	}

	switch name {
	case ToolCatalogGetFields:
		return d.runCatalogGetFields(ctx, args)
	case ToolSQLExecute:
		return d.runSQLExecute(ctx, args)
	default:
		return nil, validationErrorf("unknown tool: %s", name)
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func hasWildcard(tableLike string) bool {
	return strings.ContainsAny(tableLike, "%_*")
}

// runCatalogGetFields consults the schema cache first for exact table
// names and falls back to the catalog backend on miss or wildcard,
// populating the cache as a side effect, grouped per concrete table name
// discovered in the response.
func (d *Dispatcher) runCatalogGetFields(ctx context.Context, args map[string]any) (*Result, error) {
	tableLike := stringArg(args, "tableLike")
	if tableLike == "" {
		return nil, validationErrorf("missing required argument: tableLike")
	}

	started := time.Now()

	if !hasWildcard(tableLike) {
		if entry, ok := d.schemas.Get(tableLike); ok {
			full := map[string]any{
				"table_like":  tableLike,
				"duration_ms": time.Since(started).Milliseconds(),
				"cached":      true,
				"catalog":     fieldsAsMaps(entry.Table, entry.Fields),
			}
			return &Result{Full: full, Compact: compactCatalogGetFields(full, args)}, nil
		}
	}

	fields, err := d.catalog.GetCatalogFields(ctx, tableLike)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}

	// Group per concrete table and populate the cache per table.
	grouped := map[string][]schema.Field{}
	var order []string
	for _, f := range fields {
		table := strings.ToLower(f.TableName)
		if _, seen := grouped[table]; !seen {
			order = append(order, table)
		}
		grouped[table] = append(grouped[table], schema.Field{
			Name:         f.FieldName,
			DataType:     f.DataType,
			Description:  f.Description,
			IsPrimaryKey: f.IsPrimaryKey,
		})
	}
	for table, tableFields := range grouped {
		d.schemas.Set(table, tableFields)
	}

	var flat []map[string]any
	for _, table := range order {
		flat = append(flat, fieldsAsMaps(table, grouped[table])...)
	}

	full := map[string]any{
		"table_like":  tableLike,
		"duration_ms": time.Since(started).Milliseconds(),
		"cached":      false,
		"tables":      order,
		"catalog":     flat,
	}
	return &Result{Full: full, Compact: compactCatalogGetFields(full, args)}, nil
}

func fieldsAsMaps(table string, fields []schema.Field) []map[string]any {
	out := make([]map[string]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, map[string]any{
			"TableName":   table,
			"FieldName":   f.Name,
			"DataType":    f.DataType,
			"Description": f.Description,
		})
	}
	return out
}

// runSQLExecute executes a query and infers a compact tabular summary.
// Scalar parameters are accepted but not forwarded; literals are expected
// inline in the SQL text. When the caller names tables, cached schema
// summaries are merged in using the same cache-or-suggest logic as the
// metadata lookup tool.
func (d *Dispatcher) runSQLExecute(ctx context.Context, args map[string]any) (*Result, error) {
	sql := stringArg(args, "sql")
	if sql == "" {
		return nil, validationErrorf("missing required argument: sql")
	}
	queryName := stringArg(args, "queryName")

	started := time.Now()
	raw, err := d.catalog.ExecuteSQL(ctx, sql, queryName)
	if err != nil {
		return nil, fmt.Errorf("sql execution failed: %w", err)
	}
	durationMs := time.Since(started).Milliseconds()

	summary := catalog.SummarizeTabular(raw, d.sampleLimit)

	sampleRows := make([]any, 0, len(summary.SampleRows))
	for _, row := range summary.SampleRows {
		sampleRows = append(sampleRows, row)
	}

	full := map[string]any{
		"query_name":  queryName,
		"duration_ms": durationMs,
		"row_count":   summary.RowCount,
		"columns":     summary.Columns,
		"sample_rows": sampleRows,
	}
	if params, ok := args["scalarParameters"]; ok {
		full["scalar_parameters"] = params
	}
	if summary.RowCount == 0 {
		// Retain the raw payload when nothing tabular was inferred.
		full["data"] = raw
	}

	if tables := stringListArg(args, "tables"); len(tables) > 0 {
		full["schema_summaries"] = d.schemaSummaries(tables)
	}

	return &Result{Full: full, Compact: compactSQLExecute(full, args)}, nil
}

func stringListArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// schemaSummaries resolves each requested table through the cache. A miss
// contributes a structured not-found entry with fuzzy suggestions instead
// of an error; the model is expected to self-correct from it.
func (d *Dispatcher) schemaSummaries(tables []string) []map[string]any {
	out := make([]map[string]any, 0, len(tables))
	for _, table := range tables {
		entry, err := d.schemas.Summary(table)
		if err != nil {
			summary := map[string]any{"table": table, "found": false}
			var notFound *schema.NotFoundError
			if errors.As(err, &notFound) {
				summary["suggestions"] = notFound.Suggestions
			}
			out = append(out, summary)
			continue
		}
		out = append(out, map[string]any{
			"table":   entry.Table,
			"found":   true,
			"summary": strings.Join(entry.SummaryLines(), "\n"),
		})
	}
	return out
}
