package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbourne-labs/fathom/pkg/llm"
	"github.com/finbourne-labs/fathom/pkg/models"
	"github.com/finbourne-labs/fathom/pkg/tools"
	"github.com/finbourne-labs/fathom/pkg/transcript"
)

// sliceStream replays a fixed event sequence.
type sliceStream struct {
	events []llm.StreamEvent
	pos    int
}

func (s *sliceStream) Next() (llm.StreamEvent, error) {
	if s.pos >= len(s.events) {
		return llm.StreamEvent{}, io.EOF
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

func (s *sliceStream) Close() error { return nil }

// scriptedClient returns one scripted stream per StreamChat call and a
// fixed answer for the non-streaming fallback.
type scriptedClient struct {
	streams      [][]llm.StreamEvent
	streamCalls  int
	streamErr    error
	chatAnswer   string
	chatErr      error
	chatCalls    int
	lastMessages []models.ConversationMessage
}

func (c *scriptedClient) Chat(_ context.Context, messages []models.ConversationMessage, _ []llm.ToolDefinition) (string, error) {
	c.chatCalls++
	c.lastMessages = messages
	return c.chatAnswer, c.chatErr
}

func (c *scriptedClient) StreamChat(_ context.Context, messages []models.ConversationMessage, _ []llm.ToolDefinition) (llm.EventStream, error) {
	if c.streamErr != nil {
		return nil, c.streamErr
	}
	c.lastMessages = messages
	idx := c.streamCalls
	c.streamCalls++
	if idx >= len(c.streams) {
		idx = len(c.streams) - 1
	}
	return &sliceStream{events: c.streams[idx]}, nil
}

type fakeExecutor struct {
	calls   []models.ToolCall
	results map[string]*tools.Result
	errs    map[string]error
}

func (f *fakeExecutor) Execute(_ context.Context, name, arguments string) (*tools.Result, error) {
	f.calls = append(f.calls, models.ToolCall{Name: name, Arguments: arguments})
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	if res, ok := f.results[name]; ok {
		return res, nil
	}
	return &tools.Result{Full: map[string]any{"ok": true}, Compact: "ok"}, nil
}

func contentDelta(text string) llm.StreamEvent {
	return llm.StreamEvent{Type: llm.StreamEventContentDelta, Content: text}
}

func toolDelta(index int, callID, name, args string) llm.StreamEvent {
	return llm.StreamEvent{Type: llm.StreamEventToolCallDelta, ToolCall: llm.ToolCallDelta{
		Index: index, CallID: callID, Name: name, ArgumentFragment: args,
	}}
}

func finish(reason string) llm.StreamEvent {
	return llm.StreamEvent{Type: llm.StreamEventFinishReason, FinishReason: reason}
}

func collect(t *testing.T, r *Runner, req Request) []models.RunEvent {
	t.Helper()
	var events []models.RunEvent
	r.Run(context.Background(), req, func(e models.RunEvent) {
		events = append(events, e)
	})
	return events
}

func kinds(events []models.RunEvent) []models.RunEventType {
	out := make([]models.RunEventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Event)
	}
	return out
}

func TestRun_PlainAnswer(t *testing.T) {
	client := &scriptedClient{streams: [][]llm.StreamEvent{
		{contentDelta("Hello"), contentDelta(", world"), finish(llm.FinishReasonStop)},
	}}
	r := New(Options{Client: client, Executor: &fakeExecutor{}, Model: "gpt-test"})

	events := collect(t, r, Request{Message: "hi"})

	require.Equal(t, []models.RunEventType{
		models.EventRunStarted,
		models.EventRunResponseContent,
		models.EventRunResponseContent,
		models.EventRunCompleted,
	}, kinds(events))

	// Content is cumulative, never a delta.
	assert.Equal(t, "Hello", events[1].Content)
	assert.Equal(t, "Hello, world", events[2].Content)
	assert.Equal(t, "Hello, world", events[3].Content)
	assert.Equal(t, "gpt-test", events[0].Model)
	assert.NotEmpty(t, events[0].RunID)
	assert.NotEmpty(t, events[0].SessionID)
	assert.Zero(t, client.chatCalls, "no fallback when content streamed")
}

func TestRun_ToolCallThenAnswer(t *testing.T) {
	client := &scriptedClient{streams: [][]llm.StreamEvent{
		{
			toolDelta(0, "call-1", "catalog_get_fields", `{"tableLike":`),
			toolDelta(0, "", "", `"Foo"}`),
			finish(llm.FinishReasonToolCalls),
		},
		{contentDelta("done"), finish(llm.FinishReasonStop)},
	}}
	executor := &fakeExecutor{results: map[string]*tools.Result{
		"catalog_get_fields": {Full: map[string]any{"catalog": []any{}}, Compact: "no matching fields"},
	}}
	r := New(Options{Client: client, Executor: executor, Model: "gpt-test"})

	events := collect(t, r, Request{Message: "describe Foo"})

	require.Equal(t, []models.RunEventType{
		models.EventRunStarted,
		models.EventToolCallStarted,
		models.EventToolCallCompleted,
		models.EventRunResponseContent,
		models.EventRunCompleted,
	}, kinds(events))

	// Fragments merged: first-seen name wins, arguments concatenate.
	require.Len(t, executor.calls, 1)
	assert.Equal(t, "catalog_get_fields", executor.calls[0].Name)
	assert.JSONEq(t, `{"tableLike": "Foo"}`, executor.calls[0].Arguments)

	assert.Equal(t, "catalog_get_fields", events[1].ToolName)
	assert.Equal(t, "call-1", events[1].ToolCallID)
	assert.Equal(t, "done", events[4].Content)
	require.NotNil(t, events[2].Tool)
	assert.False(t, events[2].Tool.Error)
	assert.GreaterOrEqual(t, events[2].Tool.ElapsedMs, int64(0))
}

func TestRun_MultipleCallsDispatchInIndexOrder(t *testing.T) {
	client := &scriptedClient{streams: [][]llm.StreamEvent{
		{
			// Emitted out of order to prove index-order dispatch.
			toolDelta(1, "call-b", "sql_execute", `{"sql":"b"}`),
			toolDelta(0, "call-a", "catalog_get_fields", `{"tableLike":"A"}`),
			finish(llm.FinishReasonToolCalls),
		},
		{contentDelta("answer"), finish(llm.FinishReasonStop)},
	}}
	executor := &fakeExecutor{}
	r := New(Options{Client: client, Executor: executor})

	collect(t, r, Request{Message: "go"})

	require.Len(t, executor.calls, 2)
	assert.Equal(t, "catalog_get_fields", executor.calls[0].Name)
	assert.Equal(t, "sql_execute", executor.calls[1].Name)
}

func TestRun_IterationBound(t *testing.T) {
	// Every streaming phase requests another tool call.
	toolTurn := []llm.StreamEvent{
		toolDelta(0, "call-x", "sql_execute", `{"sql":"select 1"}`),
		finish(llm.FinishReasonToolCalls),
	}
	client := &scriptedClient{
		streams:    [][]llm.StreamEvent{toolTurn},
		chatAnswer: "gave up counting",
	}
	executor := &fakeExecutor{}
	r := New(Options{Client: client, Executor: executor, MaxIterations: 4})

	events := collect(t, r, Request{Message: "loop"})

	assert.Equal(t, 4, client.streamCalls, "never exceeds the cycle bound")
	assert.Len(t, executor.calls, 4)

	// No content streamed: exactly one non-streaming fallback call.
	assert.Equal(t, 1, client.chatCalls)
	last := events[len(events)-1]
	assert.Equal(t, models.EventRunCompleted, last.Event)
	assert.Equal(t, "gave up counting", last.Content)
}

func TestRun_ToolErrorIsNotFatal(t *testing.T) {
	client := &scriptedClient{streams: [][]llm.StreamEvent{
		{
			toolDelta(0, "call-1", "sql_execute", `{"sql":"selec 1"}`),
			finish(llm.FinishReasonToolCalls),
		},
		{contentDelta("recovered"), finish(llm.FinishReasonStop)},
	}}
	executor := &fakeExecutor{errs: map[string]error{
		"sql_execute": errors.New("sql execution failed: status 400"),
	}}
	r := New(Options{Client: client, Executor: executor})

	events := collect(t, r, Request{Message: "try"})

	last := events[len(events)-1]
	assert.Equal(t, models.EventRunCompleted, last.Event)
	assert.Equal(t, "recovered", last.Content)

	var completed *models.RunEvent
	for i := range events {
		if events[i].Event == models.EventToolCallCompleted {
			completed = &events[i]
		}
	}
	require.NotNil(t, completed)
	require.NotNil(t, completed.Tool)
	assert.True(t, completed.Tool.Error)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(completed.Tool.Content), &payload))
	assert.Contains(t, payload["error"], "sql execution failed")

	// The error was fed back to the model as a tool message.
	var sawErrorMessage bool
	for _, m := range client.lastMessages {
		if m.Role == models.RoleTool && m.ToolCallID == "call-1" {
			assert.Contains(t, m.Content, `"error"`)
			sawErrorMessage = true
		}
	}
	assert.True(t, sawErrorMessage)
}

func TestRun_CompactResultReentersConversation(t *testing.T) {
	client := &scriptedClient{streams: [][]llm.StreamEvent{
		{
			toolDelta(0, "call-1", "sql_execute", `{"sql":"select 1"}`),
			finish(llm.FinishReasonToolCalls),
		},
		{contentDelta("42"), finish(llm.FinishReasonStop)},
	}}
	executor := &fakeExecutor{results: map[string]*tools.Result{
		"sql_execute": {
			Full:    map[string]any{"row_count": 1, "sample_rows": []any{map[string]any{"n": 42}}},
			Compact: "row_count: 1\n42",
		},
	}}
	r := New(Options{Client: client, Executor: executor})

	collect(t, r, Request{Message: "count"})

	var toolMessages []models.ConversationMessage
	for _, m := range client.lastMessages {
		if m.Role == models.RoleTool {
			toolMessages = append(toolMessages, m)
		}
	}
	require.Len(t, toolMessages, 1, "only one representation enters the prompt")
	assert.True(t, toolMessages[0].IsCompact)
	assert.Equal(t, "row_count: 1\n42", toolMessages[0].Content)
}

func TestRun_StreamFailureEmitsRunError(t *testing.T) {
	client := &scriptedClient{streamErr: errors.New("connection refused")}
	r := New(Options{Client: client, Executor: &fakeExecutor{}})

	events := collect(t, r, Request{Message: "hi"})

	last := events[len(events)-1]
	assert.Equal(t, models.EventRunError, last.Event)
	assert.Contains(t, last.Content, "connection refused")
}

func TestRun_FallbackFailureEmitsRunError(t *testing.T) {
	client := &scriptedClient{
		streams: [][]llm.StreamEvent{{finish(llm.FinishReasonStop)}},
		chatErr: errors.New("model endpoint unavailable"),
	}
	r := New(Options{Client: client, Executor: &fakeExecutor{}})

	events := collect(t, r, Request{Message: "hi"})

	last := events[len(events)-1]
	assert.Equal(t, models.EventRunError, last.Event)
	assert.Equal(t, 1, client.chatCalls, "no second fallback attempt")
}

func TestRun_PersistsAtDone(t *testing.T) {
	store := transcript.NewMemoryStore()
	client := &scriptedClient{streams: [][]llm.StreamEvent{
		{
			toolDelta(0, "call-1", "sql_execute", `{"sql":"select 1"}`),
			finish(llm.FinishReasonToolCalls),
		},
		{contentDelta("42"), finish(llm.FinishReasonStop)},
	}}
	executor := &fakeExecutor{results: map[string]*tools.Result{
		"sql_execute": {Full: map[string]any{"row_count": 1}, Compact: "1 row"},
	}}
	r := New(Options{
		Client: client, Executor: executor, Store: store,
		Model: "gpt-test",
	})

	events := collect(t, r, Request{AgentID: "honeycomb", Message: "count", SystemPrompt: "be terse"})
	sessionID := events[0].SessionID
	require.NotEmpty(t, sessionID)

	history, err := store.Load(context.Background(), sessionID)
	require.NoError(t, err)

	// system + user + assistant(tool calls) + full tool + compact tool + final assistant
	require.Len(t, history, 6)
	assert.Equal(t, models.RoleSystem, history[0].Role)
	assert.Equal(t, models.RoleUser, history[1].Role)
	require.Len(t, history[2].ToolCalls, 1)
	assert.False(t, history[3].IsCompact)
	assert.True(t, history[4].IsCompact)
	assert.Equal(t, "42", history[5].Content)

	// Replay keeps the compact representation only.
	replayed := transcript.ReplayForPrompt(history)
	require.Len(t, replayed, 5)
}

func TestRun_SecondTurnSeesReplayedHistory(t *testing.T) {
	store := transcript.NewMemoryStore()
	client := &scriptedClient{streams: [][]llm.StreamEvent{
		{contentDelta("first answer"), finish(llm.FinishReasonStop)},
	}}
	r := New(Options{Client: client, Executor: &fakeExecutor{}, Store: store})

	events := collect(t, r, Request{Message: "first", SystemPrompt: "sys"})
	sessionID := events[0].SessionID

	client.streams = [][]llm.StreamEvent{
		{contentDelta("second answer"), finish(llm.FinishReasonStop)},
	}
	client.streamCalls = 0
	collect(t, r, Request{SessionID: sessionID, Message: "second", SystemPrompt: "sys"})

	// The second call's prompt contains the first turn but only one system
	// prompt.
	var systems, users int
	for _, m := range client.lastMessages {
		switch m.Role {
		case models.RoleSystem:
			systems++
		case models.RoleUser:
			users++
		}
	}
	assert.Equal(t, 1, systems)
	assert.Equal(t, 2, users)
}

type failingStore struct {
	*transcript.MemoryStore
}

func (f *failingStore) Append(context.Context, string, []models.ConversationMessage) error {
	return errors.New("disk full")
}

func TestRun_AppendFailureIsSwallowed(t *testing.T) {
	store := &failingStore{MemoryStore: transcript.NewMemoryStore()}
	client := &scriptedClient{streams: [][]llm.StreamEvent{
		{contentDelta("fine"), finish(llm.FinishReasonStop)},
	}}
	r := New(Options{Client: client, Executor: &fakeExecutor{}, Store: store})

	events := collect(t, r, Request{Message: "hi"})

	last := events[len(events)-1]
	assert.Equal(t, models.EventRunCompleted, last.Event)
	assert.Equal(t, "fine", last.Content)
}

func TestRun_SuppliedSessionIDIsKept(t *testing.T) {
	store := transcript.NewMemoryStore()
	client := &scriptedClient{streams: [][]llm.StreamEvent{
		{contentDelta("ok"), finish(llm.FinishReasonStop)},
	}}
	r := New(Options{Client: client, Executor: &fakeExecutor{}, Store: store})

	events := collect(t, r, Request{SessionID: "caller-chosen", Message: "hi"})
	assert.Equal(t, "caller-chosen", events[0].SessionID)
}

func TestRun_CumulativeContentNeverShrinks(t *testing.T) {
	client := &scriptedClient{streams: [][]llm.StreamEvent{
		{contentDelta("a"), contentDelta("b"), contentDelta("c"), finish(llm.FinishReasonStop)},
	}}
	r := New(Options{Client: client, Executor: &fakeExecutor{}})

	events := collect(t, r, Request{Message: "hi"})

	prev := 0
	for _, e := range events {
		if e.Event != models.EventRunResponseContent {
			continue
		}
		assert.GreaterOrEqual(t, len(e.Content), prev)
		prev = len(e.Content)
	}
}

func TestTitle_RuneBoundary(t *testing.T) {
	assert.Equal(t, "short", title("  short  "))

	long := strings.Repeat("é", 100)
	got := title(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 80, utf8.RuneCountInString(got))
}
