package chat

import (
	"strings"

	"github.com/bernard-assistant/bernard/pkg/tools"
)

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// MessageTag records why a message is in the transcript, set at creation
// time. The response stage strips scaffolding structurally instead of
// pattern-matching prompt strings.
type MessageTag string

const (
	// MessageTagContext marks ordinary conversational content.
	MessageTagContext MessageTag = "context"
	// MessageTagScaffolding marks routing-only plumbing (respond calls and
	// their synthetic results) that must never reach the response model.
	MessageTagScaffolding MessageTag = "scaffolding"
)

type MessagePartType string

const (
	MessagePartTypeText     MessagePartType = "text"
	MessagePartTypeImageURL MessagePartType = "image_url"
)

type MessageImageURL struct {
	URL string `json:"url"`
}

type MessagePart struct {
	Type     MessagePartType  `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *MessageImageURL `json:"image_url,omitempty"`
}

// Message is one role-tagged conversational unit.
type Message struct {
	Role         MessageRole      `json:"role"`
	Content      string           `json:"content"`
	MultiContent []MessagePart    `json:"multi_content,omitempty"`
	ToolCalls    []tools.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID   string           `json:"tool_call_id,omitempty"`
	Name         string           `json:"name,omitempty"`
	Tag          MessageTag       `json:"tag,omitempty"`
}

// Text extracts the plain-text view of the message content.
func (m *Message) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var sb strings.Builder
	for _, part := range m.MultiContent {
		if part.Type == MessagePartTypeText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// IsBlank reports whether the message carries no visible text.
func (m *Message) IsBlank() bool {
	return strings.TrimSpace(m.Text()) == ""
}

// HasToolCall reports whether any of the message's tool calls targets name.
func (m *Message) HasToolCall(name string) bool {
	for _, call := range m.ToolCalls {
		if call.Name == name || call.Function.Name == name {
			return true
		}
	}
	return false
}

func SystemMessage(content string) Message {
	return Message{Role: MessageRoleSystem, Content: content, Tag: MessageTagContext}
}

func UserMessage(content string) Message {
	return Message{Role: MessageRoleUser, Content: content, Tag: MessageTagContext}
}

// ToolResultMessage links a tool's output back to the call it answers.
func ToolResultMessage(callID, toolName, content string) Message {
	return Message{
		Role:       MessageRoleTool,
		Content:    content,
		ToolCallID: callID,
		Name:       toolName,
		Tag:        MessageTagContext,
	}
}

type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// CompletionResponse is the result of one non-streaming model call.
type CompletionResponse struct {
	Text      string           `json:"text"`
	Message   Message          `json:"message"`
	ToolCalls []tools.ToolCall `json:"tool_calls,omitempty"`
	Usage     *Usage           `json:"usage,omitempty"`
}

type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool_calls"
)

type MessageDelta struct {
	Role      string           `json:"role,omitempty"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []tools.ToolCall `json:"tool_calls,omitempty"`
}

type MessageStreamChoice struct {
	Index        int          `json:"index"`
	Delta        MessageDelta `json:"delta"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
}

// MessageStreamResponse is one incremental chunk of a streaming completion.
type MessageStreamResponse struct {
	ID      string                `json:"id"`
	Object  string                `json:"object"`
	Created int64                 `json:"created"`
	Model   string                `json:"model"`
	Choices []MessageStreamChoice `json:"choices"`
	Usage   *Usage                `json:"usage,omitempty"`
}

// MessageStream yields successive chunks until io.EOF.
type MessageStream interface {
	Recv() (MessageStreamResponse, error)
	Close()
}
