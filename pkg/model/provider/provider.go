package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bernard-assistant/bernard/pkg/chat"
	"github.com/bernard-assistant/bernard/pkg/config"
	"github.com/bernard-assistant/bernard/pkg/environment"
	"github.com/bernard-assistant/bernard/pkg/model/provider/anthropic"
	"github.com/bernard-assistant/bernard/pkg/model/provider/openai"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

// Provider defines the interface for model providers
type Provider interface {
	// CreateChatCompletion performs one non-streaming model call.
	CreateChatCompletion(
		ctx context.Context,
		messages []chat.Message,
		requestTools []tools.Tool,
	) (*chat.CompletionResponse, error)

	// CreateChatCompletionStream creates a streaming chat completion request.
	// It returns a stream that can be iterated over to get completion chunks.
	CreateChatCompletionStream(
		ctx context.Context,
		messages []chat.Message,
		requestTools []tools.Tool,
	) (chat.MessageStream, error)

	// ID identifies the provider/model pair for telemetry.
	ID() string
}

func New(ctx context.Context, cfg *config.ModelConfig, env environment.Provider) (Provider, error) {
	slog.Debug("Creating model provider", "type", cfg.Type, "model", cfg.Model)

	switch cfg.Type {
	case "openai":
		return openai.NewClient(ctx, cfg, env)
	case "anthropic":
		return anthropic.NewClient(ctx, cfg, env)
	default:
		slog.Error("Unknown provider type", "type", cfg.Type)
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
