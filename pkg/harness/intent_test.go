package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bernard-assistant/bernard/pkg/chat"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

func weatherTool(output string, failWith error) tools.Tool {
	return tools.Tool{
		Name: "get_weather",
		Handler: func(ctx context.Context, _ map[string]any) (*tools.ToolCallResult, error) {
			if failWith != nil {
				return nil, failWith
			}
			return &tools.ToolCallResult{Output: output}, nil
		},
	}
}

func transcriptContents(transcript []chat.Message) []string {
	contents := make([]string, len(transcript))
	for i := range transcript {
		contents[i] = transcript[i].Content
	}
	return contents
}

func TestIntentHarness_ToolThenRespond(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{responses: []chat.CompletionResponse{
		assistantWithCalls(weatherCall("c1")),
		assistantWithCalls(respondCall("r1")),
	}}
	h := NewIntentHarness(p, []tools.Tool{weatherTool("Sunny, 22C", nil)}, Options{})

	result, err := h.Run(context.Background(), []chat.Message{chat.UserMessage("Weather in Lyon?")})
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, 2, result.Iterations)

	contents := transcriptContents(result.Transcript)
	assert.Contains(t, contents, "Sunny, 22C")
	assert.Contains(t, contents, "Ready to hand off.")

	// The respond sentinel is in the schema offered to the routing model.
	require.NotEmpty(t, p.schemas)
	var names []string
	for _, tool := range p.schemas[0] {
		names = append(names, tool.Name)
	}
	assert.Contains(t, names, tools.RespondToolName)
	assert.Contains(t, names, "get_weather")
}

func TestIntentHarness_RespondAloneRejected(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{responses: []chat.CompletionResponse{
		assistantWithCalls(respondCall("r1")),
		assistantWithCalls(weatherCall("c1")),
		assistantWithCalls(respondCall("r2")),
	}}
	h := NewIntentHarness(p, []tools.Tool{weatherTool("Sunny", nil)}, Options{})

	result, err := h.Run(context.Background(), []chat.Message{chat.UserMessage("hi")})
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, 3, result.Iterations)

	contents := transcriptContents(result.Transcript)
	assert.Contains(t, contents, "respond() failed: it must accompany at least one successful tool call in this turn.")
	assert.Contains(t, contents, "Ready to hand off.")
}

func TestIntentHarness_FailureBlocksRespond(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{responses: []chat.CompletionResponse{
		assistantWithCalls(weatherCall("c1")),
		assistantWithCalls(respondCall("r1")),
		{Text: "I could not reach the weather service.", Message: chat.Message{Role: chat.MessageRoleAssistant, Content: "I could not reach the weather service."}},
	}}
	h := NewIntentHarness(p, []tools.Tool{weatherTool("", errors.New("backend down"))}, Options{})

	result, err := h.Run(context.Background(), []chat.Message{chat.UserMessage("hi")})
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, 3, result.Iterations)

	contents := transcriptContents(result.Transcript)
	assert.Contains(t, contents,
		"respond() failed: previous tool call(s) in this run failed (get_weather). Fix or remove them before responding.")
}

func TestIntentHarness_RespondWithSuccessfulSiblingAccepted(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{responses: []chat.CompletionResponse{
		assistantWithCalls(weatherCall("c1"), respondCall("r1")),
	}}
	h := NewIntentHarness(p, []tools.Tool{weatherTool("Sunny", nil)}, Options{})

	result, err := h.Run(context.Background(), []chat.Message{chat.UserMessage("hi")})
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, 1, result.Iterations)
	assert.Contains(t, transcriptContents(result.Transcript), "Ready to hand off.")
}

func TestIntentHarness_UnavailableToolGatedOut(t *testing.T) {
	t.Parallel()

	broken := tools.Tool{
		Name: "web_search",
		VerifyConfiguration: func() tools.VerifyResult {
			return tools.VerifyResult{OK: false, Reason: "SEARCH_API_KEY is not set"}
		},
	}
	p := &fakeProvider{responses: []chat.CompletionResponse{
		assistantWithCalls(tools.ToolCall{ID: "c1", Name: "web_search", Args: map[string]any{"query": "x"}}),
		assistantWithCalls(weatherCall("c2"), respondCall("r1")),
	}}
	h := NewIntentHarness(p, []tools.Tool{weatherTool("Sunny", nil), broken}, Options{})

	result, err := h.Run(context.Background(), []chat.Message{chat.UserMessage("hi")})
	require.NoError(t, err)
	assert.True(t, result.Done)

	contents := transcriptContents(result.Transcript)
	assert.Contains(t, contents, `Tool "web_search" is not available`)
	assert.Contains(t, contents,
		"The following tools are currently unavailable and must not be called: web_search: SEARCH_API_KEY is not set")

	// The gated tool never reaches the schema.
	for _, tool := range p.schemas[0] {
		assert.NotEqual(t, "web_search", tool.Name)
	}
}

func TestIntentHarness_RepeatedBatchAbortsRun(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{responses: []chat.CompletionResponse{
		assistantWithCalls(weatherCall("c1")),
	}}
	h := NewIntentHarness(p, []tools.Tool{weatherTool("Sunny", nil)}, Options{})

	result, err := h.Run(context.Background(), []chat.Message{chat.UserMessage("hi")})
	require.ErrorIs(t, err, ErrNoProgress)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.Iterations)
}

func TestIntentHarness_IterationLimitForcesHandOff(t *testing.T) {
	t.Parallel()

	responses := make([]chat.CompletionResponse, 0, 4)
	for _, city := range []string{"Lyon", "Oslo", "Kyoto", "Lima"} {
		responses = append(responses, assistantWithCalls(
			tools.ToolCall{ID: "c_" + city, Name: "get_weather", Args: map[string]any{"location": city}},
		))
	}
	p := &fakeProvider{responses: responses}
	h := NewIntentHarness(p, []tools.Tool{weatherTool("Sunny", nil)}, Options{MaxIterations: 4})

	result, err := h.Run(context.Background(), []chat.Message{chat.UserMessage("hi")})
	require.NoError(t, err)
	assert.False(t, result.Done)
	assert.Equal(t, 4, result.Iterations)
}

func TestIntentHarness_SilentModelHandsOff(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{responses: []chat.CompletionResponse{{}}}
	h := NewIntentHarness(p, nil, Options{})

	result, err := h.Run(context.Background(), []chat.Message{chat.UserMessage("hi")})
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, 1, result.Iterations)
}

func TestIntentHarness_RespondOnlyMessageTaggedScaffolding(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{responses: []chat.CompletionResponse{
		assistantWithCalls(weatherCall("c1")),
		assistantWithCalls(respondCall("r1")),
	}}
	h := NewIntentHarness(p, []tools.Tool{weatherTool("Sunny", nil)}, Options{})

	result, err := h.Run(context.Background(), []chat.Message{chat.UserMessage("hi")})
	require.NoError(t, err)

	var tagged int
	for _, msg := range result.Transcript {
		if msg.Role == chat.MessageRoleAssistant && msg.HasToolCall(tools.RespondToolName) {
			assert.Equal(t, chat.MessageTagScaffolding, msg.Tag)
			tagged++
		}
	}
	assert.Equal(t, 1, tagged)
}
