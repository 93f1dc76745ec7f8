package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bernard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
models:
  router:
    type: openai
    model: gpt-4o-mini
    temperature: 0.2
  responder:
    type: anthropic
    model: claude-sonnet-4-0
    max_tokens: 4096
routing: router
response: responder
harness:
  max_iterations: 6
  tool_timeout: 20s
  max_parallel_calls: 2
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	router, err := cfg.GetModelConfig(cfg.Routing)
	require.NoError(t, err)
	assert.Equal(t, "openai", router.Type)
	assert.Equal(t, "gpt-4o-mini", router.Model)
	assert.InDelta(t, 0.2, router.Temperature, 0.001)

	responder, err := cfg.GetModelConfig(cfg.Response)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", responder.Type)
	assert.Equal(t, 4096, responder.MaxTokens)

	assert.Equal(t, 6, cfg.Harness.MaxIterations)
	assert.Equal(t, 20*time.Second, cfg.Harness.ToolTimeout)
	assert.Equal(t, 2, cfg.Harness.MaxParallelCalls)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no models",
			content: "models: {}\nrouting: a\nresponse: a\n",
			wantErr: "no models",
		},
		{
			name: "missing routing model",
			content: `
models:
  a:
    type: openai
    model: gpt-4o
response: a
`,
			wantErr: "missing the routing model",
		},
		{
			name: "dangling reference",
			content: `
models:
  a:
    type: openai
    model: gpt-4o
routing: a
response: ghost
`,
			wantErr: "non-existent model 'ghost'",
		},
		{
			name: "unknown provider type",
			content: `
models:
  a:
    type: carrier-pigeon
    model: pigeon-1
routing: a
response: a
`,
			wantErr: "unknown provider type",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadConfig(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestFetchWithDeadline(t *testing.T) {
	t.Parallel()

	got := FetchWithDeadline(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	}, 7)
	assert.Equal(t, 42, got)

	got = FetchWithDeadline(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 0, errors.New("remote down")
	}, 7)
	assert.Equal(t, 7, got)

	got = FetchWithDeadline(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return 42, nil
	}, 7)
	assert.Equal(t, 7, got)
}
