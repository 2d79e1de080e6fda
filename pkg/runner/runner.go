// Package runner drives one conversational turn: it interleaves streamed
// model generation with synchronous tool execution, emits progress events
// to the caller, and persists the finished turn.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finbourne-labs/fathom/pkg/llm"
	"github.com/finbourne-labs/fathom/pkg/models"
	"github.com/finbourne-labs/fathom/pkg/tokens"
	"github.com/finbourne-labs/fathom/pkg/tools"
	"github.com/finbourne-labs/fathom/pkg/transcript"
)

// ToolExecutor executes one named tool call. *tools.Dispatcher satisfies
// this.
type ToolExecutor interface {
	Execute(ctx context.Context, name, arguments string) (*tools.Result, error)
}

// EmitFunc receives run events in emission order. It is called from the
// run's own goroutine; implementations flush to the caller.
type EmitFunc func(models.RunEvent)

// Request describes one turn.
type Request struct {
	AgentID      string
	SessionID    string // empty mints a new session
	Message      string
	SystemPrompt string // prepended once, on the first turn of a session
}

// Runner executes turns. Safe for concurrent use; each Run call is one
// sequential unit of work.
type Runner struct {
	client        llm.ChatClient
	executor      ToolExecutor
	store         transcript.Store // nil disables persistence
	counter       *tokens.Counter  // nil disables the token hint
	defs          []llm.ToolDefinition
	model         string
	maxIterations int
	logger        *slog.Logger
}

// Options configures a Runner.
type Options struct {
	Client        llm.ChatClient
	Executor      ToolExecutor
	Store         transcript.Store
	Counter       *tokens.Counter
	Tools         []llm.ToolDefinition
	Model         string
	MaxIterations int
	Logger        *slog.Logger
}

// New builds a Runner. MaxIterations defaults to 4.
func New(opts Options) *Runner {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		client:        opts.Client,
		executor:      opts.Executor,
		store:         opts.Store,
		counter:       opts.Counter,
		defs:          opts.Tools,
		model:         opts.Model,
		maxIterations: opts.MaxIterations,
		logger:        opts.Logger,
	}
}

// pendingToolCall accumulates fragments of one tool call addressed by its
// position index. The first non-empty name and call id win; argument
// fragments are concatenated, never overwritten.
type pendingToolCall struct {
	callID string
	name   string
	args   strings.Builder
}

// Run executes one turn, emitting events until a terminal RunCompleted or
// RunError. The caller's context cancels the run between suspension points.
func (r *Runner) Run(ctx context.Context, req Request, emit EmitFunc) {
	runID := uuid.NewString()
	sessionID := req.SessionID

	var history []models.ConversationMessage
	if r.store != nil {
		var err error
		sessionID, err = r.store.EnsureSession(ctx, sessionID, req.AgentID, title(req.Message))
		if err != nil {
			r.emitError(emit, fmt.Sprintf("session setup failed: %v", err))
			return
		}
		history, err = r.store.Load(ctx, sessionID)
		if err != nil {
			r.emitError(emit, fmt.Sprintf("loading transcript failed: %v", err))
			return
		}
	} else if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conversation := transcript.ReplayForPrompt(history)
	var newMessages []models.ConversationMessage

	if len(conversation) == 0 && req.SystemPrompt != "" {
		system := models.ConversationMessage{Role: models.RoleSystem, Content: req.SystemPrompt}
		conversation = append(conversation, system)
		newMessages = append(newMessages, system)
	}
	userMessage := models.ConversationMessage{Role: models.RoleUser, Content: req.Message}
	conversation = append(conversation, userMessage)
	newMessages = append(newMessages, userMessage)

	// RunStarted goes out before any upstream call so callers observe low
	// time-to-first-byte even when the model endpoint is slow.
	started := models.NewRunEvent(models.EventRunStarted, r.model)
	started.RunID = runID
	started.SessionID = sessionID
	if r.counter != nil {
		started.ExtraData = map[string]any{
			"token_count": r.counter.CountConversation(conversation),
		}
	}
	emit(started)

	var content strings.Builder

	for cycle := 0; cycle < r.maxIterations; cycle++ {
		if ctx.Err() != nil {
			return
		}

		pending, streamErr := r.streamOnce(ctx, conversation, &content, emit)
		if streamErr != nil {
			r.emitError(emit, fmt.Sprintf("model stream failed: %v", streamErr))
			return
		}
		if len(pending) == 0 {
			break
		}

		assistant, toolMessages := r.dispatch(ctx, pending, emit)
		conversation = append(conversation, assistant)
		newMessages = append(newMessages, assistant)
		for _, tm := range toolMessages {
			newMessages = append(newMessages, tm.ConversationMessage)
			// Only the compact projection (or the error message, which has
			// no compact form) re-enters the model-facing buffer.
			if tm.IsCompact || !tm.hasCompactSibling {
				conversation = append(conversation, tm.ConversationMessage)
			}
		}
	}

	// Fallback: nothing streamed at all, ask once without streaming.
	if content.Len() == 0 {
		if ctx.Err() != nil {
			return
		}
		text, err := r.client.Chat(ctx, conversation, nil)
		if err != nil {
			r.emitError(emit, fmt.Sprintf("model call failed: %v", err))
			return
		}
		if text != "" {
			content.WriteString(text)
			r.emitContent(emit, content.String())
		}
	}

	final := content.String()
	completed := models.NewRunEvent(models.EventRunCompleted, r.model)
	completed.ContentType = models.ContentTypeMarkdown
	completed.Content = final
	emit(completed)

	newMessages = append(newMessages, models.ConversationMessage{
		Role:    models.RoleAssistant,
		Content: final,
	})

	if r.store != nil {
		if err := r.store.Append(ctx, sessionID, newMessages); err != nil {
			// The run already completed for the caller; never surface this.
			r.logger.Warn("transcript append failed",
				"session_id", sessionID, "run_id", runID, "error", err)
		}
	}
}

// streamOnce performs one streaming model call, accumulating content into
// the run-wide builder and pending tool calls keyed by index.
func (r *Runner) streamOnce(ctx context.Context, conversation []models.ConversationMessage, content *strings.Builder, emit EmitFunc) (map[int]*pendingToolCall, error) {
	stream, err := r.client.StreamChat(ctx, conversation, r.defs)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	pending := map[int]*pendingToolCall{}
	for {
		event, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return pending, nil
			}
			return nil, err
		}

		switch event.Type {
		case llm.StreamEventContentDelta:
			content.WriteString(event.Content)
			r.emitContent(emit, content.String())
		case llm.StreamEventToolCallDelta:
			delta := event.ToolCall
			call, ok := pending[delta.Index]
			if !ok {
				call = &pendingToolCall{}
				pending[delta.Index] = call
			}
			if call.callID == "" {
				call.callID = delta.CallID
			}
			if call.name == "" {
				call.name = delta.Name
			}
			call.args.WriteString(delta.ArgumentFragment)
		case llm.StreamEventFinishReason:
			if event.FinishReason == llm.FinishReasonToolCalls {
				// Drain whatever the decoder still holds, then stop.
				for {
					if _, err := stream.Next(); err != nil {
						return pending, nil
					}
				}
			}
		}
	}
}

// toolMessage pairs a persisted tool message with whether a compact
// sibling exists for the same call.
type toolMessage struct {
	models.ConversationMessage
	hasCompactSibling bool
}

// dispatch executes every pending call in index order. It returns the
// single assistant message announcing all calls and the tool messages to
// persist (full result, compact projection, or error payload).
func (r *Runner) dispatch(ctx context.Context, pending map[int]*pendingToolCall, emit EmitFunc) (models.ConversationMessage, []toolMessage) {
	indices := sortedIndices(pending)

	calls := make([]models.ToolCall, 0, len(indices))
	for _, idx := range indices {
		p := pending[idx]
		callID := p.callID
		if callID == "" {
			callID = "call_" + uuid.NewString()[:8]
		}
		calls = append(calls, models.ToolCall{
			ID:        callID,
			Name:      p.name,
			Arguments: p.args.String(),
		})
	}
	assistant := models.ConversationMessage{Role: models.RoleAssistant, ToolCalls: calls}

	var out []toolMessage
	for _, call := range calls {
		startedEvent := models.NewRunEvent(models.EventToolCallStarted, r.model)
		startedEvent.ToolName = call.Name
		startedEvent.ToolCallID = call.ID
		startedEvent.Tool = &models.ToolEventPayload{
			Role:      string(models.RoleTool),
			Arguments: call.Arguments,
		}
		emit(startedEvent)

		startedAt := time.Now()
		result, err := r.executor.Execute(ctx, call.Name, call.Arguments)
		elapsed := time.Since(startedAt).Milliseconds()

		completedEvent := models.NewRunEvent(models.EventToolCallCompleted, r.model)
		completedEvent.ToolName = call.Name
		completedEvent.ToolCallID = call.ID

		if err != nil {
			payload, _ := json.Marshal(map[string]string{"error": err.Error()})
			completedEvent.Tool = &models.ToolEventPayload{
				Role:      string(models.RoleTool),
				Content:   string(payload),
				Arguments: call.Arguments,
				Error:     true,
				ElapsedMs: elapsed,
			}
			emit(completedEvent)

			out = append(out, toolMessage{ConversationMessage: models.ConversationMessage{
				Role:       models.RoleTool,
				Content:    string(payload),
				ToolCallID: call.ID,
				ToolName:   call.Name,
			}})
			continue
		}

		fullJSON, merr := json.Marshal(result.Full)
		if merr != nil {
			fullJSON = []byte(fmt.Sprintf("%v", result.Full))
		}
		completedEvent.Tool = &models.ToolEventPayload{
			Role:      string(models.RoleTool),
			Content:   string(fullJSON),
			Arguments: call.Arguments,
			ElapsedMs: elapsed,
		}
		emit(completedEvent)

		out = append(out,
			toolMessage{
				ConversationMessage: models.ConversationMessage{
					Role:       models.RoleTool,
					Content:    string(fullJSON),
					ToolCallID: call.ID,
					ToolName:   call.Name,
				},
				hasCompactSibling: true,
			},
			toolMessage{
				ConversationMessage: models.ConversationMessage{
					Role:       models.RoleTool,
					Content:    result.Compact,
					ToolCallID: call.ID,
					ToolName:   call.Name,
					IsCompact:  true,
				},
				hasCompactSibling: true,
			},
		)
	}

	return assistant, out
}

func (r *Runner) emitContent(emit EmitFunc, cumulative string) {
	event := models.NewRunEvent(models.EventRunResponseContent, r.model)
	event.ContentType = models.ContentTypeMarkdown
	event.Content = cumulative
	emit(event)
}

func (r *Runner) emitError(emit EmitFunc, message string) {
	event := models.NewRunEvent(models.EventRunError, r.model)
	event.ContentType = models.ContentTypePlain
	event.Content = message
	emit(event)
}

func sortedIndices(pending map[int]*pendingToolCall) []int {
	indices := make([]int, 0, len(pending))
	for idx := range pending {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

// title derives a session title from the first user message, cut on a rune
// boundary so multi-byte text survives intact.
func title(message string) string {
	message = strings.TrimSpace(message)
	if runes := []rune(message); len(runes) > 80 {
		return string(runes[:80])
	}
	return message
}
