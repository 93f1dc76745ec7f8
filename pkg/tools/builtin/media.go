package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bernard-assistant/bernard/pkg/environment"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

// Media returns the playback control tool.
func Media(env environment.Provider) tools.Tool {
	return tools.Tool{
		Name:        "control_media",
		Description: "Control media playback: play a title, pause, resume or skip",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": []string{"play", "pause", "resume", "skip"},
				},
				"title": map[string]any{
					"type":        "string",
					"description": "What to play when action is play",
				},
			},
			"required": []string{"action"},
		},
		VerifyConfiguration: requireEnv(env, "MEDIA_PLAYER_URL", "MEDIA_PLAYER_URL is not set"),
		Handler: func(ctx context.Context, args map[string]any) (*tools.ToolCallResult, error) {
			action := stringArg(args, "action")
			if action == "" {
				return nil, errors.New("action is required")
			}
			title := stringArg(args, "title")
			if action == "play" && title == "" {
				return nil, errors.New("title is required when action is play")
			}

			playerURL, _ := env.Get(ctx, "MEDIA_PLAYER_URL")

			body, err := json.Marshal(map[string]string{"action": action, "title": title})
			if err != nil {
				return nil, err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, playerURL+"/playback", bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := httpClient.Do(req)
			if err != nil {
				return nil, fmt.Errorf("media %s: %w", action, err)
			}
			defer resp.Body.Close()

			out, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("media player returned status %d: %s", resp.StatusCode, string(out))
			}
			if len(out) == 0 {
				return &tools.ToolCallResult{Output: fmt.Sprintf("Playback %s acknowledged", action)}, nil
			}
			return &tools.ToolCallResult{Output: string(out)}, nil
		},
	}
}
