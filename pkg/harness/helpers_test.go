package harness

import (
	"context"
	"io"

	"github.com/bernard-assistant/bernard/pkg/chat"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

// fakeProvider replays a scripted sequence of completions. When the script
// runs out the last response repeats, which keeps stuck-model scenarios easy
// to express with a single entry.
type fakeProvider struct {
	responses []chat.CompletionResponse
	chunks    []chat.MessageStreamResponse
	err       error

	requests [][]chat.Message
	schemas  [][]tools.Tool
	n        int
}

func (f *fakeProvider) CreateChatCompletion(_ context.Context, messages []chat.Message, requestTools []tools.Tool) (*chat.CompletionResponse, error) {
	f.requests = append(f.requests, append([]chat.Message(nil), messages...))
	f.schemas = append(f.schemas, requestTools)
	if f.err != nil {
		return nil, f.err
	}
	i := min(f.n, len(f.responses)-1)
	f.n++
	resp := f.responses[i]
	return &resp, nil
}

func (f *fakeProvider) CreateChatCompletionStream(_ context.Context, messages []chat.Message, requestTools []tools.Tool) (chat.MessageStream, error) {
	f.requests = append(f.requests, append([]chat.Message(nil), messages...))
	f.schemas = append(f.schemas, requestTools)
	if f.err != nil {
		return nil, f.err
	}
	return &fakeStream{chunks: f.chunks}, nil
}

func (f *fakeProvider) ID() string { return "fake/model" }

type fakeStream struct {
	chunks []chat.MessageStreamResponse
	n      int
}

func (s *fakeStream) Recv() (chat.MessageStreamResponse, error) {
	if s.n >= len(s.chunks) {
		return chat.MessageStreamResponse{}, io.EOF
	}
	chunk := s.chunks[s.n]
	s.n++
	return chunk, nil
}

func (s *fakeStream) Close() {}

func assistantWithCalls(calls ...tools.ToolCall) chat.CompletionResponse {
	return chat.CompletionResponse{
		Message:   chat.Message{Role: chat.MessageRoleAssistant},
		ToolCalls: calls,
	}
}

func weatherCall(id string) tools.ToolCall {
	return tools.ToolCall{ID: id, Name: "get_weather", Args: map[string]any{"location": "Lyon"}}
}

func respondCall(id string) tools.ToolCall {
	return tools.ToolCall{ID: id, Name: tools.RespondToolName}
}
