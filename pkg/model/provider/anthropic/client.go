package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/bernard-assistant/bernard/pkg/chat"
	"github.com/bernard-assistant/bernard/pkg/config"
	"github.com/bernard-assistant/bernard/pkg/environment"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

// Client represents an Anthropic client wrapper implementing provider.Provider.
type Client struct {
	client anthropic.Client
	config *config.ModelConfig
}

// NewClient creates a new Anthropic client from the provided configuration.
func NewClient(ctx context.Context, cfg *config.ModelConfig, env environment.Provider) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("model configuration is required")
	}
	if cfg.Type != "anthropic" {
		return nil, errors.New("model type must be 'anthropic'")
	}

	apiKey, err := env.Get(ctx, "ANTHROPIC_API_KEY")
	if err != nil || apiKey == "" {
		slog.Error("Anthropic client creation failed", "error", "ANTHROPIC_API_KEY environment variable is required")
		return nil, errors.New("ANTHROPIC_API_KEY environment variable is required")
	}

	requestOptions := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(cfg.BaseURL))
	}

	slog.Debug("Anthropic client created successfully", "model", cfg.Model)
	return &Client{
		client: anthropic.NewClient(requestOptions...),
		config: cfg,
	}, nil
}

func (c *Client) ID() string {
	return "anthropic/" + c.config.Model
}

func (c *Client) buildParams(messages []chat.Message, requestTools []tools.Tool) (anthropic.MessageNewParams, error) {
	// Default to 8192 if maxTokens is not set. This is a safe default that
	// works for all Anthropic models.
	maxTokens := int64(c.config.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 8192
	}

	converted, err := convertMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	if len(converted) == 0 {
		return anthropic.MessageNewParams{}, errors.New("no messages to send after conversion: all messages were filtered out")
	}

	allTools, err := convertTools(requestTools)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: maxTokens,
		System:    extractSystemBlocks(messages),
		Messages:  converted,
		Tools:     allTools,
	}
	if c.config.Temperature != 0 {
		params.Temperature = param.NewOpt(c.config.Temperature)
	}
	if c.config.TopP != 0 {
		params.TopP = param.NewOpt(c.config.TopP)
	}
	return params, nil
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
	slog.Debug("Creating Anthropic chat completion",
		"model", c.config.Model,
		"message_count", len(messages),
		"tool_count", len(requestTools))

	params, err := c.buildParams(messages, requestTools)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		slog.Error("Anthropic chat completion failed", "error", err, "model", c.config.Model)
		return nil, err
	}

	var text strings.Builder
	var toolCalls []tools.ToolCall
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			toolCalls = append(toolCalls, tools.ToolCall{
				ID:   variant.ID,
				Type: tools.ToolTypeFunction,
				Function: tools.FunctionCall{
					Name:      variant.Name,
					Arguments: string(variant.Input),
				},
			})
		}
	}

	return &chat.CompletionResponse{
		Text: text.String(),
		Message: chat.Message{
			Role:      chat.MessageRoleAssistant,
			Content:   text.String(),
			ToolCalls: toolCalls,
			Tag:       chat.MessageTagContext,
		},
		ToolCalls: toolCalls,
		Usage: &chat.Usage{
			InputTokens:  message.Usage.InputTokens,
			OutputTokens: message.Usage.OutputTokens,
		},
	}, nil
}

// CreateChatCompletionStream creates a streaming chat completion request.
func (c *Client) CreateChatCompletionStream(
	ctx context.Context,
	messages []chat.Message,
	requestTools []tools.Tool,
) (chat.MessageStream, error) {
	slog.Debug("Creating Anthropic chat completion stream",
		"model", c.config.Model,
		"message_count", len(messages),
		"tool_count", len(requestTools))

	params, err := c.buildParams(messages, requestTools)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	return &streamAdapter{stream: stream}, nil
}

// convertMessages maps chat messages to Anthropic message params. System
// messages are handled via the top-level System field. Consecutive tool
// results are grouped into a single user message to satisfy Anthropic's
// requirement that tool_use blocks are immediately followed by one user
// message holding all corresponding tool_result blocks.
func convertMessages(messages []chat.Message) ([]anthropic.MessageParam, error) {
	var anthropicMessages []anthropic.MessageParam

	for i := 0; i < len(messages); i++ {
		msg := &messages[i]
		switch msg.Role {
		case chat.MessageRoleSystem:
			continue

		case chat.MessageRoleUser:
			if txt := strings.TrimSpace(msg.Text()); txt != "" {
				anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(txt)))
			}

		case chat.MessageRoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if txt := strings.TrimSpace(msg.Content); txt != "" {
				blocks = append(blocks, anthropic.NewTextBlock(txt))
			}
			for _, toolCall := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &input); err != nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    toolCall.ID,
						Input: input,
						Name:  toolCall.Function.Name,
					},
				})
			}
			if len(blocks) > 0 {
				anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(blocks...))
			}

		case chat.MessageRoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			j := i
			for j < len(messages) && messages[j].Role == chat.MessageRoleTool {
				blocks = append(blocks, anthropic.NewToolResultBlock(messages[j].ToolCallID, strings.TrimSpace(messages[j].Content), false))
				j++
			}
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(blocks...))
			i = j - 1

		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}

	return anthropicMessages, nil
}

func extractSystemBlocks(messages []chat.Message) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam
	for i := range messages {
		if messages[i].Role != chat.MessageRoleSystem {
			continue
		}
		if txt := strings.TrimSpace(messages[i].Text()); txt != "" {
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: txt})
		}
	}
	return systemBlocks
}

func convertTools(requestTools []tools.Tool) ([]anthropic.ToolUnionParam, error) {
	toolParams := make([]anthropic.ToolParam, len(requestTools))
	for i, tool := range requestTools {
		var schema anthropic.ToolInputSchemaParam
		// Round-trip through JSON to map an arbitrary schema value onto the
		// SDK's schema param.
		b, err := json.Marshal(tool.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshaling schema for tool %q: %w", tool.Name, err)
		}
		if err := json.Unmarshal(b, &schema); err != nil {
			return nil, fmt.Errorf("converting schema for tool %q: %w", tool.Name, err)
		}

		toolParams[i] = anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: schema,
		}
	}

	anthropicTools := make([]anthropic.ToolUnionParam, len(toolParams))
	for i := range toolParams {
		anthropicTools[i] = anthropic.ToolUnionParam{OfTool: &toolParams[i]}
	}
	return anthropicTools, nil
}
