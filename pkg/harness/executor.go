package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bernard-assistant/bernard/pkg/chat"
	"github.com/bernard-assistant/bernard/pkg/telemetry"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

// toolExecutor runs one batch of validated non-respond tool calls
// concurrently. Results come back in request order regardless of which
// network round-trip finished first, and one tool's failure never cancels
// its siblings.
type toolExecutor struct {
	tracer      trace.Tracer
	recorder    telemetry.Recorder
	toolTimeout time.Duration
	maxParallel int
	turnID      string
}

type toolOutcome struct {
	message  chat.Message
	toolName string
	executed bool
	ok       bool
}

func (e *toolExecutor) execute(ctx context.Context, calls []tools.ToolCall, byName map[string]tools.Tool, state *runState) ([]chat.Message, error) {
	outcomes := make([]toolOutcome, len(calls))

	// Intra-batch duplicate suppression: only the first call of each
	// signature runs; the rest get a synthetic result without re-invoking
	// the tool.
	seen := make(map[string]bool, len(calls))
	duplicate := make([]bool, len(calls))
	for i, call := range calls {
		sig := tools.BuildSignature([]tools.ToolCall{call})
		if sig != "" && seen[sig] {
			duplicate[i] = true
			continue
		}
		seen[sig] = true
	}

	g, groupCtx := errgroup.WithContext(ctx)
	if e.maxParallel > 0 {
		g.SetLimit(e.maxParallel)
	}

	for i, call := range calls {
		if duplicate[i] {
			slog.Debug("Suppressing duplicate tool call", "tool", call.Name, "call_id", call.ID)
			outcomes[i] = toolOutcome{
				message: chat.ToolResultMessage(call.ID, call.Name, fmt.Sprintf("Duplicate tool call: %s was already invoked with the same arguments in this turn", call.Name)),
			}
			continue
		}
		g.Go(func() error {
			outcome, err := e.runTool(groupCtx, call, byName)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Only cancellation escapes runTool; tool failures become results.
		return nil, err
	}

	// Ledger updates happen after the join, in request order.
	messages := make([]chat.Message, len(calls))
	for i, outcome := range outcomes {
		messages[i] = outcome.message
		if !outcome.executed {
			continue
		}
		if outcome.ok {
			state.recordSuccess(outcome.toolName)
		} else {
			state.recordFailure(outcome.toolName)
		}
	}
	return messages, nil
}

func (e *toolExecutor) runTool(ctx context.Context, call tools.ToolCall, byName map[string]tools.Tool) (toolOutcome, error) {
	ctx, span := e.tracer.Start(ctx, "harness.tool.call", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
		attribute.String("turn.id", e.turnID),
	))
	defer span.End()

	tool, exists := byName[call.Name]
	if !exists || tool.Handler == nil {
		span.SetStatus(codes.Error, "tool has no handler")
		return toolOutcome{
			message:  chat.ToolResultMessage(call.ID, call.Name, fmt.Sprintf("Tool %s failed: no handler registered", call.Name)),
			toolName: call.Name,
			executed: true,
		}, nil
	}

	callCtx := ctx
	if e.toolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.toolTimeout)
		defer cancel()
	}

	slog.Debug("Executing tool", "tool", call.Name, "call_id", call.ID, "turn_id", e.turnID)
	start := time.Now()
	result, err := tool.Handler(callCtx, call.Args)
	latency := time.Since(start)

	if err != nil {
		// A caller-initiated abort is not a tool failure; it stops the run.
		if ctxErr := ctx.Err(); ctxErr != nil && callCtx.Err() != context.DeadlineExceeded {
			span.SetStatus(codes.Error, "canceled")
			return toolOutcome{}, ctxErr
		}

		slog.Warn("Tool execution failed", "tool", call.Name, "error", err, "turn_id", e.turnID)
		span.SetStatus(codes.Error, err.Error())
		e.recorder.RecordToolResult(e.turnID, call.Name, telemetry.ToolResult{
			OK:        false,
			Latency:   latency,
			ErrorType: errorType(callCtx, err),
		})
		return toolOutcome{
			message:  chat.ToolResultMessage(call.ID, call.Name, fmt.Sprintf("Tool %s failed: %s", call.Name, err.Error())),
			toolName: call.Name,
			executed: true,
		}, nil
	}

	span.SetStatus(codes.Ok, "")
	e.recorder.RecordToolResult(e.turnID, call.Name, telemetry.ToolResult{
		OK:      true,
		Latency: latency,
	})

	var output string
	if result != nil {
		output = result.Output
	}
	return toolOutcome{
		message:  chat.ToolResultMessage(call.ID, call.Name, output),
		toolName: call.Name,
		executed: true,
		ok:       true,
	}, nil
}

func errorType(ctx context.Context, err error) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "timeout"
	}
	_ = err
	return "execution"
}

// scaffoldResult builds a synthetic tool result answering a call the
// harness refused to execute.
func scaffoldResult(call tools.ToolCall, reason string) chat.Message {
	msg := chat.ToolResultMessage(call.ID, call.Name, reason)
	msg.Tag = chat.MessageTagScaffolding
	return msg
}
