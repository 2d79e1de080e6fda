package tokens

import (
	"testing"

	"github.com/finbourne-labs/fathom/pkg/models"
	"github.com/stretchr/testify/assert"
)

func newCounter(t *testing.T) *Counter {
	t.Helper()
	c, err := NewCounter()
	if err != nil {
		// Encoding data may be unavailable in offline environments.
		t.Skipf("token encoding unavailable: %v", err)
	}
	return c
}

func TestCountText(t *testing.T) {
	c := newCounter(t)
	assert.Zero(t, c.CountText(""))
	assert.Greater(t, c.CountText("hello world"), 0)
}

func TestCountConversation(t *testing.T) {
	c := newCounter(t)

	short := []models.ConversationMessage{{Role: models.RoleUser, Content: "hi"}}
	long := []models.ConversationMessage{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{Name: "sql_execute", Arguments: `{"sql":"select * from Lusid.Instrument"}`},
		}},
	}

	assert.Greater(t, c.CountConversation(long), c.CountConversation(short))
}
