package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bernard-assistant/bernard/pkg/chat"
	"github.com/bernard-assistant/bernard/pkg/model/provider"
	"github.com/bernard-assistant/bernard/pkg/telemetry"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

const (
	// DefaultMaxIterations bounds the routing loop so a misbehaving model
	// can never hang a turn.
	DefaultMaxIterations = 8

	// maxConsecutiveRepeats is how many identical tool-call batches in a
	// row the harness tolerates before declaring the run stuck.
	maxConsecutiveRepeats = 3

	// AdvisoryParallelCalls is the per-batch cap communicated to the model
	// through the routing prompt. It is advisory, not enforced.
	AdvisoryParallelCalls = 3
)

// ErrNoProgress is returned when the routing model keeps requesting the
// identical tool-call batch and cannot be talked out of the loop.
var ErrNoProgress = errors.New("routing model repeated the same tool calls without progress")

var routingInstructions = fmt.Sprintf(
	"You are the routing stage of an assistant. Gather the information needed "+
		"to answer the user by calling the available tools, at most %d per turn. "+
		"When you have everything you need, call respond().", AdvisoryParallelCalls)

// Options tune one harness run.
type Options struct {
	MaxIterations    int
	ToolTimeout      time.Duration
	MaxParallelCalls int
	Recorder         telemetry.Recorder
	TurnID           string
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.MaxParallelCalls <= 0 {
		o.MaxParallelCalls = AdvisoryParallelCalls
	}
	if o.TurnID == "" {
		o.TurnID = uuid.NewString()
	}
	o.Recorder = telemetry.Protect(o.Recorder)
	return o
}

// IntentHarness runs the routing loop: call the routing model, execute the
// tools it asks for, feed the results back, repeat until the model signals
// completion or a limit forces a hand-off.
type IntentHarness struct {
	provider provider.Provider
	toolSet  []tools.Tool
	tracer   trace.Tracer
	opts     Options
}

// IntentResult is the routing loop's output. No tool calls are ever left
// pending: every accepted call has a result message in the transcript.
type IntentResult struct {
	Transcript []chat.Message
	Done       bool
	Iterations int
}

func NewIntentHarness(p provider.Provider, toolSet []tools.Tool, opts Options) *IntentHarness {
	return &IntentHarness{
		provider: p,
		toolSet:  toolSet,
		tracer:   otel.Tracer("bernard/harness"),
		opts:     opts.withDefaults(),
	}
}

// Run executes the routing loop for one user turn.
func (h *IntentHarness) Run(ctx context.Context, messages []chat.Message) (*IntentResult, error) {
	availability := tools.EvaluateAvailability(h.toolSet)

	transcript := append([]chat.Message(nil), messages...)
	transcript = appendSystemOnce(transcript, routingInstructions, chat.MessageTagScaffolding)
	if notice := tools.UnavailabilityNotice(availability.Unavailable); notice != "" {
		transcript = appendSystemOnce(transcript, notice, chat.MessageTagContext)
	}

	schema := append(append([]tools.Tool(nil), availability.Ready...), tools.Respond())
	allowed := availability.ReadyNames()
	allowed[tools.RespondToolName] = true

	byName := make(map[string]tools.Tool, len(availability.Ready))
	for _, t := range availability.Ready {
		byName[t.Name] = t
	}

	state := newRunState()
	executor := &toolExecutor{
		tracer:      h.tracer,
		recorder:    h.opts.Recorder,
		toolTimeout: h.opts.ToolTimeout,
		maxParallel: h.opts.MaxParallelCalls,
		turnID:      h.opts.TurnID,
	}

	for state.iterations < h.opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			return &IntentResult{Transcript: transcript, Iterations: state.iterations}, err
		}
		state.iterations++

		resp, err := h.callRoutingModel(ctx, transcript, schema)
		if err != nil {
			if ctx.Err() != nil {
				return &IntentResult{Transcript: transcript, Iterations: state.iterations}, ctx.Err()
			}
			return nil, fmt.Errorf("routing model call: %w", err)
		}

		calls := tools.NormalizeCalls(resp.ToolCalls)

		// A model that goes silent without calling respond() is treated as
		// done; some models signal completion that way.
		if len(calls) == 0 && strings.TrimSpace(resp.Text) == "" {
			slog.Debug("Routing model returned no calls and no text, handing off", "turn_id", h.opts.TurnID)
			return &IntentResult{Transcript: transcript, Done: true, Iterations: state.iterations}, nil
		}

		assistant := resp.Message
		assistant.ToolCalls = calls
		assistant.Tag = chat.MessageTagContext
		if routingOnly(assistant, calls) {
			assistant.Tag = chat.MessageTagScaffolding
		}
		transcript = append(transcript, assistant)

		if len(calls) == 0 {
			return &IntentResult{Transcript: transcript, Done: true, Iterations: state.iterations}, nil
		}

		valid, invalid := tools.Validate(calls, allowed)
		for _, inv := range invalid {
			slog.Debug("Rejecting invalid tool call", "tool", inv.Call.Name, "reason", inv.Reason, "turn_id", h.opts.TurnID)
			transcript = append(transcript, chat.ToolResultMessage(inv.Call.ID, inv.Call.Name, inv.Reason))
		}

		var respondCalls, execCalls []tools.ToolCall
		for _, call := range valid {
			if tools.IsRespond(call) {
				respondCalls = append(respondCalls, call)
			} else {
				execCalls = append(execCalls, call)
			}
		}

		// Non-convergence check on the batch signature (respond excluded).
		if repeats := state.observeSignature(tools.BuildSignature(valid)); repeats >= maxConsecutiveRepeats {
			slog.Error("Routing model is stuck", "repeats", repeats, "turn_id", h.opts.TurnID)
			return &IntentResult{Transcript: transcript, Iterations: state.iterations}, ErrNoProgress
		}

		results, err := executor.execute(ctx, execCalls, byName, state)
		if err != nil {
			return &IntentResult{Transcript: transcript, Iterations: state.iterations}, err
		}
		transcript = append(transcript, results...)

		if len(respondCalls) == 0 {
			continue
		}

		accepted, feedback := h.evaluateRespond(state)
		for _, call := range respondCalls {
			transcript = append(transcript, scaffoldResult(call, feedback))
		}
		if accepted {
			return &IntentResult{Transcript: transcript, Done: true, Iterations: state.iterations}, nil
		}
	}

	// Iteration budget exhausted: forced hand-off to response generation.
	slog.Warn("Iteration limit reached, forcing hand-off", "iterations", state.iterations, "turn_id", h.opts.TurnID)
	return &IntentResult{Transcript: transcript, Iterations: state.iterations}, nil
}

// evaluateRespond applies the respond guards against the run ledgers.
func (h *IntentHarness) evaluateRespond(state *runState) (accepted bool, feedback string) {
	if unresolved := state.unresolvedFailures(); len(unresolved) > 0 {
		return false, fmt.Sprintf(
			"respond() failed: previous tool call(s) in this run failed (%s). Fix or remove them before responding.",
			strings.Join(unresolved, ", "))
	}
	if !state.hasAnySuccess() {
		return false, "respond() failed: it must accompany at least one successful tool call in this turn."
	}
	return true, "Ready to hand off."
}

func (h *IntentHarness) callRoutingModel(ctx context.Context, transcript []chat.Message, schema []tools.Tool) (*chat.CompletionResponse, error) {
	ctx, span := h.tracer.Start(ctx, "harness.model.route")
	defer span.End()

	start := time.Now()
	resp, err := h.provider.CreateChatCompletion(ctx, transcript, schema)
	latency := time.Since(start)

	result := telemetry.ModelResult{OK: err == nil, Latency: latency}
	if err == nil && resp.Usage != nil {
		result.TokensIn = resp.Usage.InputTokens
		result.TokensOut = resp.Usage.OutputTokens
	}
	h.opts.Recorder.RecordModelResult(h.opts.TurnID, h.provider.ID(), result)

	return resp, err
}

// routingOnly reports whether an assistant message carries nothing but the
// respond sentinel, making it pure routing scaffolding.
func routingOnly(msg chat.Message, calls []tools.ToolCall) bool {
	if msg.IsBlank() && len(calls) > 0 {
		for _, call := range calls {
			if !tools.IsRespond(call) {
				return false
			}
		}
		return true
	}
	return false
}

// appendSystemOnce injects a system message unless an identical one is
// already present, so per-iteration re-entry never duplicates it.
func appendSystemOnce(transcript []chat.Message, content string, tag chat.MessageTag) []chat.Message {
	for i := range transcript {
		if transcript[i].Role == chat.MessageRoleSystem && transcript[i].Content == content {
			return transcript
		}
	}
	msg := chat.SystemMessage(content)
	msg.Tag = tag
	return append(transcript, msg)
}
