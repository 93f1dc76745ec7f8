package stream

import (
	"github.com/bernard-assistant/bernard/pkg/chat"
)

// Aggregator merges incremental completion chunks into coherent messages.
//
// A chunk with the same id as the previously buffered message concatenates
// text content (arrival order) and overwrites the tool-call set with the
// newest non-empty value seen. A chunk with a different id starts a new
// buffered message.
type Aggregator struct {
	messages []chat.Message
	lastID   string
	usage    chat.Usage
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add folds one chunk into the buffer.
func (a *Aggregator) Add(resp chat.MessageStreamResponse) {
	if resp.Usage != nil {
		a.usage.InputTokens += resp.Usage.InputTokens
		a.usage.OutputTokens += resp.Usage.OutputTokens
	}
	if len(resp.Choices) == 0 {
		return
	}
	delta := resp.Choices[0].Delta

	if resp.ID != a.lastID || len(a.messages) == 0 {
		role := chat.MessageRole(delta.Role)
		if role == "" {
			role = chat.MessageRoleAssistant
		}
		a.messages = append(a.messages, chat.Message{Role: role, Tag: chat.MessageTagContext})
		a.lastID = resp.ID
	}

	msg := &a.messages[len(a.messages)-1]
	msg.Content += delta.Content
	if len(delta.ToolCalls) > 0 {
		msg.ToolCalls = delta.ToolCalls
	}
}

// Last returns the most recently buffered message, or nil when nothing has
// been ingested yet.
func (a *Aggregator) Last() *chat.Message {
	if len(a.messages) == 0 {
		return nil
	}
	return &a.messages[len(a.messages)-1]
}

// Messages returns a copy of all buffered messages.
func (a *Aggregator) Messages() []chat.Message {
	return append([]chat.Message(nil), a.messages...)
}

// Usage returns the accumulated token usage across all chunks.
func (a *Aggregator) Usage() chat.Usage {
	return a.usage
}
