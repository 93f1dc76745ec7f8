// Package builtin provides the assistant's bundled tools. Each tool reports
// its own readiness through VerifyConfiguration so the availability gate can
// keep misconfigured tools out of the routing schema.
package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bernard-assistant/bernard/pkg/environment"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// All returns the full bundled tool set.
func All(env environment.Provider) []tools.Tool {
	return []tools.Tool{
		Weather(env),
		Search(env),
		SmartHome(env),
		Media(env),
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func requireEnv(env environment.Provider, name, reason string) func() tools.VerifyResult {
	return func() tools.VerifyResult {
		value, err := env.Get(context.Background(), name)
		if err != nil || value == "" {
			return tools.VerifyResult{OK: false, Reason: reason}
		}
		return tools.VerifyResult{OK: true}
	}
}

func fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return string(body), nil
}
