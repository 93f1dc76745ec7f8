package openai

import (
	"context"
	"errors"

	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/bernard-assistant/bernard/pkg/chat"
	"github.com/bernard-assistant/bernard/pkg/config"
	"github.com/bernard-assistant/bernard/pkg/environment"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

// Client represents an OpenAI client wrapper.
// It implements the provider.Provider interface.
type Client struct {
	client *openai.Client
	config *config.ModelConfig
}

// NewClient creates a new OpenAI client from the provided configuration.
func NewClient(ctx context.Context, cfg *config.ModelConfig, env environment.Provider) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("model configuration is required")
	}
	if cfg.Type != "openai" {
		return nil, errors.New("model type must be 'openai'")
	}

	apiKey, err := env.Get(ctx, "OPENAI_API_KEY")
	if err != nil || apiKey == "" {
		slog.Error("OpenAI client creation failed", "error", "OPENAI_API_KEY environment variable is required")
		return nil, errors.New("OPENAI_API_KEY environment variable is required")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	slog.Debug("OpenAI client created successfully", "model", cfg.Model)
	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

func (c *Client) ID() string {
	return "openai/" + c.config.Model
}

func convertMultiContent(multiContent []chat.MessagePart) []openai.ChatMessagePart {
	openaiMultiContent := make([]openai.ChatMessagePart, len(multiContent))
	for i, part := range multiContent {
		openaiMultiContent[i] = openai.ChatMessagePart{
			Type: openai.ChatMessagePartType(part.Type),
			Text: part.Text,
		}
		if part.ImageURL != nil {
			openaiMultiContent[i].ImageURL = &openai.ChatMessageImageURL{URL: part.ImageURL.URL}
		}
	}
	return openaiMultiContent
}

// convertMessages converts chat.Message to openai.ChatCompletionMessage
func convertMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	openaiMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i := range messages {
		msg := &messages[i]
		openaiMessage := openai.ChatCompletionMessage{
			Role: string(msg.Role),
			Name: msg.Name,
		}

		if len(msg.MultiContent) == 0 {
			openaiMessage.Content = msg.Content
		} else {
			openaiMessage.MultiContent = convertMultiContent(msg.MultiContent)
		}

		if len(msg.ToolCalls) > 0 {
			openaiMessage.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
			for j, toolCall := range msg.ToolCalls {
				openaiMessage.ToolCalls[j] = openai.ToolCall{
					ID:   toolCall.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      toolCall.Function.Name,
						Arguments: toolCall.Function.Arguments,
					},
				}
			}
		}

		if msg.ToolCallID != "" {
			openaiMessage.ToolCallID = msg.ToolCallID
		}

		openaiMessages[i] = openaiMessage
	}
	return openaiMessages
}

func convertToolCalls(calls []openai.ToolCall) []tools.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	converted := make([]tools.ToolCall, len(calls))
	for i, call := range calls {
		converted[i] = tools.ToolCall{
			ID:   call.ID,
			Type: tools.ToolType(call.Type),
			Function: tools.FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		}
		if call.Index != nil {
			index := *call.Index
			converted[i].Index = &index
		}
	}
	return converted
}

func (c *Client) buildRequest(messages []chat.Message, requestTools []tools.Tool, streaming bool) openai.ChatCompletionRequest {
	parallelToolCalls := true
	if c.config.ParallelToolCalls != nil {
		parallelToolCalls = *c.config.ParallelToolCalls
	}

	request := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    convertMessages(messages),
		Temperature: float32(c.config.Temperature),
		TopP:        float32(c.config.TopP),
		Stream:      streaming,
	}
	if len(requestTools) > 0 {
		request.ParallelToolCalls = parallelToolCalls
		request.Tools = make([]openai.Tool, len(requestTools))
		for i, tool := range requestTools {
			request.Tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.Parameters,
				},
			}
		}
	}
	if c.config.MaxTokens > 0 {
		request.MaxTokens = c.config.MaxTokens
	}
	return request
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout > 0 {
		return context.WithTimeout(ctx, c.config.Timeout)
	}
	return ctx, func() {}
}

// CreateChatCompletion performs one non-streaming chat completion call.
func (c *Client) CreateChatCompletion(
	ctx context.Context,
	messages []chat.Message,
	requestTools []tools.Tool,
) (*chat.CompletionResponse, error) {
	slog.Debug("Creating OpenAI chat completion",
		"model", c.config.Model,
		"message_count", len(messages),
		"tool_count", len(requestTools))

	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.client.CreateChatCompletion(ctx, c.buildRequest(messages, requestTools, false))
	if err != nil {
		slog.Error("OpenAI chat completion failed", "error", err, "model", c.config.Model)
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	choice := response.Choices[0].Message
	result := &chat.CompletionResponse{
		Text: choice.Content,
		Message: chat.Message{
			Role:      chat.MessageRoleAssistant,
			Content:   choice.Content,
			ToolCalls: convertToolCalls(choice.ToolCalls),
			Tag:       chat.MessageTagContext,
		},
		ToolCalls: convertToolCalls(choice.ToolCalls),
		Usage: &chat.Usage{
			InputTokens:  int64(response.Usage.PromptTokens),
			OutputTokens: int64(response.Usage.CompletionTokens),
		},
	}

	slog.Debug("OpenAI chat completion successful",
		"model", c.config.Model,
		"response_length", len(choice.Content),
		"tool_call_count", len(choice.ToolCalls))
	return result, nil
}

// CreateChatCompletionStream creates a streaming chat completion request.
// It returns a stream that can be iterated over to get completion chunks.
func (c *Client) CreateChatCompletionStream(
	ctx context.Context,
	messages []chat.Message,
	requestTools []tools.Tool,
) (chat.MessageStream, error) {
	slog.Debug("Creating OpenAI chat completion stream",
		"model", c.config.Model,
		"message_count", len(messages),
		"tool_count", len(requestTools))

	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(messages, requestTools, true))
	if err != nil {
		slog.Error("OpenAI stream creation failed", "error", err, "model", c.config.Model)
		return nil, err
	}

	return &StreamAdapter{stream: stream}, nil
}
