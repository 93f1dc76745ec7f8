package harness

import (
	"context"

	"github.com/google/uuid"

	"github.com/bernard-assistant/bernard/pkg/chat"
	"github.com/bernard-assistant/bernard/pkg/model/provider"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

// Harness wires the intent loop and the response stage into one turn
// pipeline: route until the model is satisfied, then generate the reply.
type Harness struct {
	routing  provider.Provider
	response provider.Provider
	toolSet  []tools.Tool
	opts     Options
}

// TurnResult is the outcome of one full user turn.
type TurnResult struct {
	Transcript []chat.Message
	Text       string
	Done       bool
	Iterations int
	TurnID     string
}

func New(routing, response provider.Provider, toolSet []tools.Tool, opts Options) *Harness {
	return &Harness{
		routing:  routing,
		response: response,
		toolSet:  toolSet,
		opts:     opts,
	}
}

// RunTurn processes one inbound message list end to end.
func (h *Harness) RunTurn(ctx context.Context, messages []chat.Message) (*TurnResult, error) {
	return h.runTurn(ctx, messages, nil)
}

// RunTurnStream is RunTurn with the response stage streamed through
// onPartial.
func (h *Harness) RunTurnStream(ctx context.Context, messages []chat.Message, onPartial func(chat.Message)) (*TurnResult, error) {
	return h.runTurn(ctx, messages, onPartial)
}

func (h *Harness) runTurn(ctx context.Context, messages []chat.Message, onPartial func(chat.Message)) (*TurnResult, error) {
	opts := h.opts
	if opts.TurnID == "" {
		opts.TurnID = uuid.NewString()
	}

	intent := NewIntentHarness(h.routing, h.toolSet, opts)
	intentResult, err := intent.Run(ctx, messages)
	if err != nil {
		return nil, err
	}

	responder := NewResponseHarness(h.response, opts.Recorder, opts.TurnID)

	var text string
	var responseMessage chat.Message
	if onPartial != nil {
		result, err := responder.RunStream(ctx, intentResult.Transcript, onPartial)
		if err != nil {
			return nil, err
		}
		text, responseMessage = result.Text, result.Message
	} else {
		result, err := responder.Run(ctx, intentResult.Transcript)
		if err != nil {
			return nil, err
		}
		text, responseMessage = result.Text, result.Message
	}

	return &TurnResult{
		Transcript: append(intentResult.Transcript, responseMessage),
		Text:       text,
		Done:       intentResult.Done,
		Iterations: intentResult.Iterations,
		TurnID:     opts.TurnID,
	}, nil
}
