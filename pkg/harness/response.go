package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bernard-assistant/bernard/pkg/chat"
	"github.com/bernard-assistant/bernard/pkg/model/provider"
	"github.com/bernard-assistant/bernard/pkg/stream"
	"github.com/bernard-assistant/bernard/pkg/telemetry"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

// fallbackAnswer is the last-resort reply when neither the response model
// nor any tool produced usable text.
const fallbackAnswer = "I don't have enough information to answer that yet."

// ResponseHarness turns a finished routing transcript into user-facing
// text. It guarantees non-blank output: a blank model reply falls back to
// the most recent tool output, and failing that to a generic answer.
type ResponseHarness struct {
	provider provider.Provider
	recorder telemetry.Recorder
	tracer   trace.Tracer
	turnID   string
}

type ResponseResult struct {
	Text    string
	Message chat.Message
	Usage   *chat.Usage
}

func NewResponseHarness(p provider.Provider, recorder telemetry.Recorder, turnID string) *ResponseHarness {
	if turnID == "" {
		turnID = uuid.NewString()
	}
	return &ResponseHarness{
		provider: p,
		recorder: telemetry.Protect(recorder),
		tracer:   otel.Tracer("bernard/harness"),
		turnID:   turnID,
	}
}

// Run performs one non-streaming response call.
func (h *ResponseHarness) Run(ctx context.Context, transcript []chat.Message) (*ResponseResult, error) {
	ctx, span := h.tracer.Start(ctx, "harness.model.respond")
	defer span.End()

	prepared := prepareForResponse(transcript)

	start := time.Now()
	resp, err := h.provider.CreateChatCompletion(ctx, prepared, nil)
	latency := time.Since(start)

	result := telemetry.ModelResult{OK: err == nil, Latency: latency}
	if err == nil && resp.Usage != nil {
		result.TokensIn = resp.Usage.InputTokens
		result.TokensOut = resp.Usage.OutputTokens
	}
	h.recorder.RecordModelResult(h.turnID, h.provider.ID(), result)

	if err != nil {
		return nil, fmt.Errorf("response model call: %w", err)
	}

	text := resp.Text
	if strings.TrimSpace(text) == "" {
		text = fallbackText(transcript)
		slog.Debug("Response model returned blank text, using fallback", "turn_id", h.turnID)
	}

	return &ResponseResult{
		Text:    text,
		Message: chat.Message{Role: chat.MessageRoleAssistant, Content: text, Tag: chat.MessageTagContext},
		Usage:   resp.Usage,
	}, nil
}

// RunStream streams the response call, invoking onPartial with the
// progressively aggregated message after every chunk. Delta order is
// arrival order. The final message applies the same blank fallback as Run.
func (h *ResponseHarness) RunStream(ctx context.Context, transcript []chat.Message, onPartial func(chat.Message)) (*ResponseResult, error) {
	ctx, span := h.tracer.Start(ctx, "harness.model.respond_stream")
	defer span.End()

	prepared := prepareForResponse(transcript)

	start := time.Now()
	msgStream, err := h.provider.CreateChatCompletionStream(ctx, prepared, nil)
	if err != nil {
		h.recorder.RecordModelResult(h.turnID, h.provider.ID(), telemetry.ModelResult{OK: false, Latency: time.Since(start)})
		return nil, fmt.Errorf("response model stream: %w", err)
	}
	defer msgStream.Close()

	agg := stream.NewAggregator()
	for {
		chunk, err := msgStream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.recorder.RecordModelResult(h.turnID, h.provider.ID(), telemetry.ModelResult{OK: false, Latency: time.Since(start)})
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("response model stream: %w", err)
		}
		agg.Add(chunk)
		if onPartial != nil {
			if last := agg.Last(); last != nil {
				onPartial(*last)
			}
		}
	}

	usage := agg.Usage()
	h.recorder.RecordModelResult(h.turnID, h.provider.ID(), telemetry.ModelResult{
		OK:        true,
		Latency:   time.Since(start),
		TokensIn:  usage.InputTokens,
		TokensOut: usage.OutputTokens,
	})

	var text string
	if last := agg.Last(); last != nil {
		text = last.Content
	}
	if strings.TrimSpace(text) == "" {
		text = fallbackText(transcript)
		final := chat.Message{Role: chat.MessageRoleAssistant, Content: text, Tag: chat.MessageTagContext}
		if onPartial != nil {
			onPartial(final)
		}
	}

	return &ResponseResult{
		Text:    text,
		Message: chat.Message{Role: chat.MessageRoleAssistant, Content: text, Tag: chat.MessageTagContext},
		Usage:   &usage,
	}, nil
}

// prepareForResponse strips routing-only scaffolding from the transcript
// before it reaches the response model. Messages are filtered by their
// structural tag, respond calls are removed from mixed assistant messages,
// and tool results answering a respond call are dropped by id.
func prepareForResponse(transcript []chat.Message) []chat.Message {
	respondIDs := make(map[string]bool)
	for i := range transcript {
		for _, call := range transcript[i].ToolCalls {
			if tools.IsRespond(call) {
				respondIDs[call.ID] = true
			}
		}
	}

	prepared := make([]chat.Message, 0, len(transcript))
	for _, msg := range transcript {
		if msg.Tag == chat.MessageTagScaffolding {
			continue
		}
		if msg.Role == chat.MessageRoleTool && respondIDs[msg.ToolCallID] {
			continue
		}
		if msg.Role == chat.MessageRoleAssistant && msg.HasToolCall(tools.RespondToolName) {
			kept := msg
			kept.ToolCalls = nil
			for _, call := range msg.ToolCalls {
				if !respondIDs[call.ID] {
					kept.ToolCalls = append(kept.ToolCalls, call)
				}
			}
			if len(kept.ToolCalls) == 0 && kept.IsBlank() {
				continue
			}
			prepared = append(prepared, kept)
			continue
		}
		prepared = append(prepared, msg)
	}
	return prepared
}

// fallbackText synthesizes an answer from the most recent non-blank tool
// output, used verbatim.
func fallbackText(transcript []chat.Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		msg := transcript[i]
		if msg.Role != chat.MessageRoleTool || msg.Tag == chat.MessageTagScaffolding {
			continue
		}
		if content := strings.TrimSpace(msg.Content); content != "" {
			return msg.Content
		}
	}
	return fallbackAnswer
}
