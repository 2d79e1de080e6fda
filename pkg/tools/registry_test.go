package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbourne-labs/fathom/pkg/catalog"
	"github.com/finbourne-labs/fathom/pkg/schema"
)

type fakeCatalog struct {
	fields       []catalog.CatalogField
	fieldsErr    error
	fieldCalls   int
	lastLike     string
	sqlResult    any
	sqlErr       error
	sqlCalls     int
	lastSQL      string
	lastQueryNme string
}

func (f *fakeCatalog) GetCatalogFields(_ context.Context, tableLike string) ([]catalog.CatalogField, error) {
	f.fieldCalls++
	f.lastLike = tableLike
	return f.fields, f.fieldsErr
}

func (f *fakeCatalog) ExecuteSQL(_ context.Context, sql, queryName string) (any, error) {
	f.sqlCalls++
	f.lastSQL = sql
	f.lastQueryNme = queryName
	return f.sqlResult, f.sqlErr
}

func newDispatcher(backend *fakeCatalog) (*Dispatcher, *schema.Cache) {
	cache := schema.NewCache(10 * time.Minute)
	return NewDispatcher(backend, cache, 10), cache
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	require.Len(t, defs, 2)

	names := []string{defs[0].Function.Name, defs[1].Function.Name}
	assert.Contains(t, names, ToolCatalogGetFields)
	assert.Contains(t, names, ToolSQLExecute)

	for _, def := range defs {
		assert.Equal(t, "function", def.Type)
		var params map[string]any
		require.NoError(t, json.Unmarshal(def.Function.Parameters, &params), def.Function.Name)
		assert.Equal(t, "object", params["type"])
	}
}

func TestExecute_UnknownTool(t *testing.T) {
	d, _ := newDispatcher(&fakeCatalog{})

	_, err := d.Execute(context.Background(), "drop_everything", "{}")
	require.Error(t, err)

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestExecute_InvalidArguments(t *testing.T) {
	d, _ := newDispatcher(&fakeCatalog{})

	_, err := d.Execute(context.Background(), ToolSQLExecute, "{not json")
	require.Error(t, err)

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestCatalogGetFields_MissingArgument(t *testing.T) {
	backend := &fakeCatalog{}
	d, _ := newDispatcher(backend)

	_, err := d.Execute(context.Background(), ToolCatalogGetFields, "{}")
	require.Error(t, err)

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Zero(t, backend.fieldCalls, "validation errors must not reach the backend")
}

func TestCatalogGetFields_PopulatesCachePerTable(t *testing.T) {
	backend := &fakeCatalog{fields: []catalog.CatalogField{
		{TableName: "Lusid.Instrument", FieldName: "LusidInstrumentId", DataType: "Text", IsPrimaryKey: true},
		{TableName: "Lusid.Instrument", FieldName: "Name", DataType: "Text"},
		{TableName: "Lusid.Portfolio", FieldName: "PortfolioCode", DataType: "Text"},
	}}
	d, cache := newDispatcher(backend)

	res, err := d.Execute(context.Background(), ToolCatalogGetFields, `{"tableLike": "Lusid.%"}`)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.fieldCalls)
	assert.Equal(t, "Lusid.%", backend.lastLike)

	// Both concrete tables are now cached.
	assert.Equal(t, []string{"lusid.instrument", "lusid.portfolio"}, cache.Tables())

	entry, ok := cache.Get("Lusid.Instrument")
	require.True(t, ok)
	assert.Len(t, entry.Fields, 2)

	assert.Contains(t, res.Compact, "LusidInstrumentId|Text|")
	assert.Contains(t, res.Compact, "PortfolioCode|Text|")
}

func TestCatalogGetFields_CacheHitSkipsBackend(t *testing.T) {
	backend := &fakeCatalog{fields: []catalog.CatalogField{
		{TableName: "Lusid.Instrument", FieldName: "Name", DataType: "Text"},
	}}
	d, _ := newDispatcher(backend)

	_, err := d.Execute(context.Background(), ToolCatalogGetFields, `{"tableLike": "Lusid.Instrument"}`)
	require.NoError(t, err)
	require.Equal(t, 1, backend.fieldCalls)

	res, err := d.Execute(context.Background(), ToolCatalogGetFields, `{"tableLike": "Lusid.Instrument"}`)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.fieldCalls, "exact repeat lookup should hit the cache")
	assert.Equal(t, true, res.Full["cached"])
}

func TestCatalogGetFields_WildcardAlwaysHitsBackend(t *testing.T) {
	backend := &fakeCatalog{fields: []catalog.CatalogField{
		{TableName: "Lusid.Instrument", FieldName: "Name", DataType: "Text"},
	}}
	d, _ := newDispatcher(backend)

	for i := 0; i < 2; i++ {
		_, err := d.Execute(context.Background(), ToolCatalogGetFields, `{"tableLike": "Lusid.Instrument%"}`)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, backend.fieldCalls)
}

func TestCatalogGetFields_BackendError(t *testing.T) {
	backend := &fakeCatalog{fieldsErr: errors.New("upstream down")}
	d, _ := newDispatcher(backend)

	_, err := d.Execute(context.Background(), ToolCatalogGetFields, `{"tableLike": "Lusid.%"}`)
	require.Error(t, err)

	var verr *ValidationError
	assert.False(t, errors.As(err, &verr), "backend failures are not validation errors")
}

func TestSQLExecute_MissingSQL(t *testing.T) {
	backend := &fakeCatalog{}
	d, _ := newDispatcher(backend)

	_, err := d.Execute(context.Background(), ToolSQLExecute, `{"queryName": "x"}`)
	require.Error(t, err)
	assert.Zero(t, backend.sqlCalls)
}

func TestSQLExecute_Summarizes(t *testing.T) {
	backend := &fakeCatalog{sqlResult: mustDecode(t, `{
		"columns": ["a", "b"],
		"rows": [[1, "x"], [2, "y"], [3, "z"]]
	}`)}
	d, _ := newDispatcher(backend)

	res, err := d.Execute(context.Background(), ToolSQLExecute,
		`{"sql": "select a, b from T", "queryName": "Probe"}`)
	require.NoError(t, err)

	assert.Equal(t, "select a, b from T", backend.lastSQL)
	assert.Equal(t, "Probe", backend.lastQueryNme)
	assert.Equal(t, 3, res.Full["row_count"])
	assert.Equal(t, []string{"a", "b"}, res.Full["columns"])
}

func TestSQLExecute_ScalarParametersNotForwarded(t *testing.T) {
	backend := &fakeCatalog{sqlResult: mustDecode(t, `[]`)}
	d, _ := newDispatcher(backend)

	sql := "select * from T where id = 'abc'"
	res, err := d.Execute(context.Background(), ToolSQLExecute,
		`{"sql": "select * from T where id = 'abc'", "scalarParameters": {"id": "abc"}}`)
	require.NoError(t, err)

	// The SQL body reaches the backend unchanged; parameters stay local.
	assert.Equal(t, sql, backend.lastSQL)
	assert.NotNil(t, res.Full["scalar_parameters"])
}

func TestSQLExecute_SchemaSummaries(t *testing.T) {
	backend := &fakeCatalog{sqlResult: mustDecode(t, `[{"a": 1}]`)}
	d, cache := newDispatcher(backend)

	cache.Set("lusid.instrument", []schema.Field{
		{Name: "LusidInstrumentId", DataType: "Text", IsPrimaryKey: true},
	})

	res, err := d.Execute(context.Background(), ToolSQLExecute,
		`{"sql": "select 1", "tables": ["Lusid.Instrument", "lusid.instrumnet"]}`)
	require.NoError(t, err)

	summaries, ok := res.Full["schema_summaries"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, summaries, 2)

	assert.Equal(t, true, summaries[0]["found"])
	assert.Equal(t, false, summaries[1]["found"])
	suggestions, _ := summaries[1]["suggestions"].([]string)
	assert.Contains(t, suggestions, "lusid.instrument")
}

func TestSQLExecute_BackendError(t *testing.T) {
	backend := &fakeCatalog{sqlErr: errors.New("status 400: bad sql")}
	d, _ := newDispatcher(backend)

	_, err := d.Execute(context.Background(), ToolSQLExecute, `{"sql": "selec 1"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad sql")
}

func mustDecode(t *testing.T, raw string) any {
	t.Helper()
	var data any
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	return data
}
