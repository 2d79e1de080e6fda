package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/finbourne-labs/fathom/pkg/models"
)

// TokenProvider returns a fresh bearer token for the model endpoint.
// Credential acquisition itself lives outside this package.
type TokenProvider func(ctx context.Context) (string, error)

// Config holds the remote endpoint settings for an Azure-OpenAI-shaped
// chat-completions deployment.
type Config struct {
	Endpoint   string
	Deployment string
	APIVersion string

	// APIKey is preferred when set; otherwise TokenProvider supplies a
	// bearer token per request.
	APIKey        string
	TokenProvider TokenProvider

	Temperature float32
}

// LoadConfigFromEnv resolves endpoint configuration from environment
// variables. A missing required variable is a configuration error, fatal
// to the run that triggered resolution, and never retried.
func LoadConfigFromEnv() (Config, error) {
	endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT"))
	deployment := strings.TrimSpace(os.Getenv("OPENAI_DEPLOYMENT"))
	apiVersion := strings.TrimSpace(os.Getenv("OPENAI_API_VERSION"))
	if apiVersion == "" {
		apiVersion = "2024-12-01-preview"
	}
	if endpoint == "" || deployment == "" {
		return Config{}, fmt.Errorf("missing required model endpoint settings: OPENAI_ENDPOINT, OPENAI_DEPLOYMENT")
	}
	return Config{
		Endpoint:    strings.TrimRight(endpoint, "/"),
		Deployment:  deployment,
		APIVersion:  apiVersion,
		APIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Temperature: 0.2,
	}, nil
}

func (c Config) baseURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(c.Endpoint, "/"), c.Deployment, c.APIVersion)
}

// Client is a thin chat-completions client. One request per model turn;
// the streaming and non-streaming variants share the same request shape,
// differing only in the stream flag.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a client. A nil httpClient gets a default client with
// no overall timeout; streamed responses stay open for the duration of a
// turn and rely on context cancellation instead.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

type chatRequest struct {
	Messages    []wireMessage    `json:"messages"`
	Temperature float32          `json:"temperature"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

// wireMessage is the chat-completions message shape.
type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// toWireMessages converts the conversation buffer to the wire shape.
// The IsCompact marker is internal to the transcript and never sent.
func toWireMessages(messages []models.ConversationMessage) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		if m.Role == models.RoleTool {
			wm.ToolCallID = m.ToolCallID
			wm.Name = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = tc.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func (c *Client) newRequest(ctx context.Context, body chatRequest, stream bool) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.baseURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	// API key wins when present; otherwise a bearer token per request.
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	} else if c.cfg.TokenProvider != nil {
		token, err := c.cfg.TokenProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring model endpoint token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// Chat performs one non-streaming call and returns the assistant text.
// Used as the single fallback when a run streamed no content.
func (c *Client) Chat(ctx context.Context, messages []models.ConversationMessage, tools []ToolDefinition) (string, error) {
	body := chatRequest{
		Messages:    toWireMessages(messages),
		Temperature: c.cfg.Temperature,
		Tools:       tools,
	}
	if len(tools) > 0 {
		body.ToolChoice = "auto"
	}

	req, err := c.newRequest(ctx, body, false)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return "", fmt.Errorf("chat request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("parsing chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", nil
	}
	return decoded.Choices[0].Message.Content, nil
}

// StreamChat performs one streaming call and returns the decoded event
// stream. The caller must Close the stream to release the response body.
func (c *Client) StreamChat(ctx context.Context, messages []models.ConversationMessage, tools []ToolDefinition) (EventStream, error) {
	body := chatRequest{
		Messages:    toWireMessages(messages),
		Temperature: c.cfg.Temperature,
		Tools:       tools,
		Stream:      true,
	}
	if len(tools) > 0 {
		body.ToolChoice = "auto"
	}

	req, err := c.newRequest(ctx, body, true)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("stream request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return &httpEventStream{dec: NewDecoder(resp.Body), body: resp.Body}, nil
}

// httpEventStream couples a Decoder with the response body it reads from.
type httpEventStream struct {
	dec  *Decoder
	body io.ReadCloser
}

func (s *httpEventStream) Next() (StreamEvent, error) { return s.dec.Next() }
func (s *httpEventStream) Close() error               { return s.body.Close() }
