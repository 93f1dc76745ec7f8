package anthropic

import (
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/bernard-assistant/bernard/pkg/chat"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

// streamAdapter adapts the Anthropic event stream to chat.MessageStream.
type streamAdapter struct {
	stream   *ssestream.Stream[anthropic.MessageStreamEventUnion]
	toolCall bool
	toolID   string
}

// Recv gets the next completion chunk
func (a *streamAdapter) Recv() (chat.MessageStreamResponse, error) {
	if !a.stream.Next() {
		if err := a.stream.Err(); err != nil {
			return chat.MessageStreamResponse{}, err
		}
		return chat.MessageStreamResponse{}, io.EOF
	}

	event := a.stream.Current()

	response := chat.MessageStreamResponse{
		ID:     event.Message.ID,
		Object: "chat.completion.chunk",
		Model:  string(event.Message.Model),
		Choices: []chat.MessageStreamChoice{
			{
				Index: 0,
				Delta: chat.MessageDelta{
					Role: string(chat.MessageRoleAssistant),
				},
			},
		},
	}

	switch eventVariant := event.AsAny().(type) {
	case anthropic.ContentBlockStartEvent:
		if block, ok := eventVariant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
			a.toolID = block.ID
			a.toolCall = true
			response.Choices[0].Delta.ToolCalls = []tools.ToolCall{{
				ID:   a.toolID,
				Type: tools.ToolTypeFunction,
				Function: tools.FunctionCall{
					Name: block.Name,
				},
			}}
		}
	case anthropic.ContentBlockDeltaEvent:
		switch deltaVariant := eventVariant.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			response.Choices[0].Delta.Content = deltaVariant.Text
		case anthropic.InputJSONDelta:
			response.Choices[0].Delta.ToolCalls = []tools.ToolCall{{
				ID:   a.toolID,
				Type: tools.ToolTypeFunction,
				Function: tools.FunctionCall{
					Arguments: deltaVariant.PartialJSON,
				},
			}}
		}
	case anthropic.MessageDeltaEvent:
		response.Usage = &chat.Usage{
			InputTokens:  eventVariant.Usage.InputTokens,
			OutputTokens: eventVariant.Usage.OutputTokens,
		}
	case anthropic.MessageStopEvent:
		if a.toolCall {
			response.Choices[0].FinishReason = chat.FinishReasonToolCalls
		} else {
			response.Choices[0].FinishReason = chat.FinishReasonStop
		}
	}

	return response, nil
}

// Close closes the stream
func (a *streamAdapter) Close() {
	if a.stream != nil {
		a.stream.Close()
	}
}
