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

// SmartHome returns the device control tool. Commands are posted to the hub
// configured through SMARTHOME_HUB_URL.
func SmartHome(env environment.Provider) tools.Tool {
	return tools.Tool{
		Name:        "control_device",
		Description: "Turn a smart home device on or off, or adjust its level",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"device": map[string]any{
					"type":        "string",
					"description": "Device identifier, e.g. living_room_lights",
				},
				"action": map[string]any{
					"type": "string",
					"enum": []string{"on", "off", "set_level"},
				},
				"level": map[string]any{
					"type":        "number",
					"description": "Target level between 0 and 100 when action is set_level",
				},
			},
			"required": []string{"device", "action"},
		},
		VerifyConfiguration: requireEnv(env, "SMARTHOME_HUB_URL", "SMARTHOME_HUB_URL is not set"),
		Handler: func(ctx context.Context, args map[string]any) (*tools.ToolCallResult, error) {
			device := stringArg(args, "device")
			action := stringArg(args, "action")
			if device == "" || action == "" {
				return nil, errors.New("device and action are required")
			}

			hubURL, _ := env.Get(ctx, "SMARTHOME_HUB_URL")

			payload := map[string]any{"action": action}
			if level, ok := args["level"]; ok {
				payload["level"] = level
			}
			body, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost,
				fmt.Sprintf("%s/devices/%s/command", hubURL, device), bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := httpClient.Do(req)
			if err != nil {
				return nil, fmt.Errorf("hub command for %q: %w", device, err)
			}
			defer resp.Body.Close()

			out, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("hub returned status %d for %q: %s", resp.StatusCode, device, string(out))
			}
			if len(out) == 0 {
				return &tools.ToolCallResult{Output: fmt.Sprintf("Device %s: %s acknowledged", device, action)}, nil
			}
			return &tools.ToolCallResult{Output: string(out)}, nil
		},
	}
}
