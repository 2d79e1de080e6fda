package llm

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// Decoder turns the byte stream of a streaming chat-completions response
// into a sequence of StreamEvents. Bytes are accumulated in an internal
// buffer and only complete newline-terminated records are parsed, so
// record boundaries may fall anywhere inside a read chunk. A record that
// fails JSON parsing is skipped; upstream transients are expected and must
// not abort the stream.
type Decoder struct {
	r       io.Reader
	buf     []byte
	queue   []StreamEvent
	done    bool
	eof     bool
	readBuf []byte
}

// NewDecoder wraps an open response body. The decoder is single-use.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, readBuf: make([]byte, 1024)}
}

// Next returns the next decoded event. io.EOF signals the end of the
// sequence, either from the end-of-stream sentinel or from the underlying
// reader running out of bytes.
func (d *Decoder) Next() (StreamEvent, error) {
	for {
		if len(d.queue) > 0 {
			ev := d.queue[0]
			d.queue = d.queue[1:]
			return ev, nil
		}
		if d.done || d.eof {
			return StreamEvent{}, io.EOF
		}

		n, err := d.r.Read(d.readBuf)
		if n > 0 {
			d.buf = append(d.buf, d.readBuf[:n]...)
			d.drainRecords()
		}
		if err != nil {
			if err == io.EOF {
				// Partial trailing bytes without a newline are discarded:
				// a record is only valid once newline-terminated.
				d.eof = true
				continue
			}
			return StreamEvent{}, err
		}
	}
}

// drainRecords parses every complete record currently buffered. On the
// end-of-stream sentinel, parsing stops and the rest of the buffer is
// discarded; events already queued from earlier records still deliver.
func (d *Decoder) drainRecords() {
	for !d.done {
		nl := bytes.IndexByte(d.buf, '\n')
		if nl < 0 {
			return
		}
		line := strings.TrimSpace(string(d.buf[:nl]))
		d.buf = d.buf[nl+1:]

		if line == "" || !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if payload == doneSentinel {
			d.done = true
			d.buf = nil
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue // malformed record, skip
		}
		d.queue = append(d.queue, chunk.events()...)
	}
}

// streamChunk is the wire shape of one streamed chat-completions record.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// events expands one parsed record into zero or more StreamEvents.
func (c *streamChunk) events() []StreamEvent {
	if len(c.Choices) == 0 {
		return nil
	}
	choice := c.Choices[0]

	var out []StreamEvent
	if choice.Delta.Content != "" {
		out = append(out, StreamEvent{
			Type:    StreamEventContentDelta,
			Content: choice.Delta.Content,
		})
	}
	for _, tc := range choice.Delta.ToolCalls {
		out = append(out, StreamEvent{
			Type: StreamEventToolCallDelta,
			ToolCall: ToolCallDelta{
				Index:            tc.Index,
				CallID:           tc.ID,
				Name:             tc.Function.Name,
				ArgumentFragment: tc.Function.Arguments,
			},
		})
	}
	if choice.FinishReason != "" {
		out = append(out, StreamEvent{
			Type:         StreamEventFinishReason,
			FinishReason: choice.FinishReason,
		})
	}
	return out
}
