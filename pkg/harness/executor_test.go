package harness

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/bernard-assistant/bernard/pkg/chat"
	"github.com/bernard-assistant/bernard/pkg/telemetry"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

func newTestExecutor() *toolExecutor {
	return &toolExecutor{
		tracer:      otel.Tracer("test"),
		recorder:    telemetry.NopRecorder{},
		maxParallel: 4,
		turnID:      "turn_test",
	}
}

func TestExecute_ResultsInRequestOrder(t *testing.T) {
	t.Parallel()

	byName := map[string]tools.Tool{
		"slow": {Name: "slow", Handler: func(ctx context.Context, _ map[string]any) (*tools.ToolCallResult, error) {
			time.Sleep(30 * time.Millisecond)
			return &tools.ToolCallResult{Output: "slow done"}, nil
		}},
		"fast": {Name: "fast", Handler: func(ctx context.Context, _ map[string]any) (*tools.ToolCallResult, error) {
			return &tools.ToolCallResult{Output: "fast done"}, nil
		}},
	}

	state := newRunState()
	messages, err := newTestExecutor().execute(context.Background(), []tools.ToolCall{
		{ID: "1", Name: "slow", Args: map[string]any{}},
		{ID: "2", Name: "fast", Args: map[string]any{}},
	}, byName, state)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, "slow done", messages[0].Content)
	assert.Equal(t, "1", messages[0].ToolCallID)
	assert.Equal(t, "fast done", messages[1].Content)
	assert.True(t, state.hasAnySuccess())
}

func TestExecute_SuppressesDuplicateCalls(t *testing.T) {
	t.Parallel()

	var invocations atomic.Int32
	byName := map[string]tools.Tool{
		"get_weather": {Name: "get_weather", Handler: func(ctx context.Context, _ map[string]any) (*tools.ToolCallResult, error) {
			invocations.Add(1)
			return &tools.ToolCallResult{Output: "Sunny"}, nil
		}},
	}

	messages, err := newTestExecutor().execute(context.Background(), []tools.ToolCall{
		weatherCall("1"),
		weatherCall("2"),
		{ID: "3", Name: "get_weather", Args: map[string]any{"location": "Oslo"}},
	}, byName, newRunState())
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assert.Equal(t, int32(2), invocations.Load())
	assert.Equal(t, "Sunny", messages[0].Content)
	assert.Contains(t, messages[1].Content, "Duplicate tool call")
	assert.Equal(t, "2", messages[1].ToolCallID)
	assert.Equal(t, "Sunny", messages[2].Content)
}

func TestExecute_FailureIsolatedFromSiblings(t *testing.T) {
	t.Parallel()

	byName := map[string]tools.Tool{
		"broken": {Name: "broken", Handler: func(ctx context.Context, _ map[string]any) (*tools.ToolCallResult, error) {
			return nil, errors.New("backend exploded")
		}},
		"healthy": {Name: "healthy", Handler: func(ctx context.Context, _ map[string]any) (*tools.ToolCallResult, error) {
			return &tools.ToolCallResult{Output: "fine"}, nil
		}},
	}

	state := newRunState()
	messages, err := newTestExecutor().execute(context.Background(), []tools.ToolCall{
		{ID: "1", Name: "broken", Args: map[string]any{}},
		{ID: "2", Name: "healthy", Args: map[string]any{}},
	}, byName, state)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, "Tool broken failed: backend exploded", messages[0].Content)
	assert.Equal(t, "fine", messages[1].Content)
	assert.Equal(t, []string{"broken"}, state.unresolvedFailures())
	assert.True(t, state.hasAnySuccess())
}

func TestExecute_UnknownToolBecomesFailureResult(t *testing.T) {
	t.Parallel()

	state := newRunState()
	messages, err := newTestExecutor().execute(context.Background(), []tools.ToolCall{
		{ID: "1", Name: "ghost", Args: map[string]any{}},
	}, map[string]tools.Tool{}, state)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Tool ghost failed: no handler registered", messages[0].Content)
	assert.Equal(t, []string{"ghost"}, state.unresolvedFailures())
}

func TestExecute_TimeoutIsToolFailure(t *testing.T) {
	t.Parallel()

	executor := newTestExecutor()
	executor.toolTimeout = 10 * time.Millisecond

	byName := map[string]tools.Tool{
		"hang": {Name: "hang", Handler: func(ctx context.Context, _ map[string]any) (*tools.ToolCallResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
	}

	state := newRunState()
	messages, err := executor.execute(context.Background(), []tools.ToolCall{
		{ID: "1", Name: "hang", Args: map[string]any{}},
	}, byName, state)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Content, "Tool hang failed")
	assert.Equal(t, []string{"hang"}, state.unresolvedFailures())
}

func TestExecute_CancellationAbortsRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	byName := map[string]tools.Tool{
		"hang": {Name: "hang", Handler: func(ctx context.Context, _ map[string]any) (*tools.ToolCallResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
	}

	state := newRunState()
	_, err := newTestExecutor().execute(ctx, []tools.ToolCall{
		{ID: "1", Name: "hang", Args: map[string]any{}},
	}, byName, state)
	require.ErrorIs(t, err, context.Canceled)

	// An aborted call is neither a success nor a failure.
	assert.False(t, state.hasAnySuccess())
	assert.Nil(t, state.unresolvedFailures())
}

func TestScaffoldResult(t *testing.T) {
	t.Parallel()

	msg := scaffoldResult(respondCall("r1"), "Ready to hand off.")
	assert.Equal(t, chat.MessageRoleTool, msg.Role)
	assert.Equal(t, "r1", msg.ToolCallID)
	assert.Equal(t, chat.MessageTagScaffolding, msg.Tag)
	assert.Equal(t, "Ready to hand off.", msg.Content)
}
