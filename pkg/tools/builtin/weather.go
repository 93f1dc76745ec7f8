package builtin

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/bernard-assistant/bernard/pkg/environment"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

const defaultWeatherBaseURL = "https://api.weatherapi.com/v1"

// Weather returns the current-conditions and forecast tool.
func Weather(env environment.Provider) tools.Tool {
	return tools.Tool{
		Name:        "get_weather",
		Description: "Get the current weather and short-term forecast for a location",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "City name, postal code or lat,lon",
				},
			},
			"required": []string{"location"},
		},
		VerifyConfiguration: requireEnv(env, "WEATHER_API_KEY", "WEATHER_API_KEY is not set"),
		Handler: func(ctx context.Context, args map[string]any) (*tools.ToolCallResult, error) {
			location := stringArg(args, "location")
			if location == "" {
				return nil, errors.New("location is required")
			}

			apiKey, _ := env.Get(ctx, "WEATHER_API_KEY")
			baseURL, _ := env.Get(ctx, "WEATHER_BASE_URL")
			if baseURL == "" {
				baseURL = defaultWeatherBaseURL
			}

			body, err := fetch(ctx, fmt.Sprintf("%s/forecast.json?key=%s&q=%s&days=2",
				baseURL, url.QueryEscape(apiKey), url.QueryEscape(location)))
			if err != nil {
				return nil, fmt.Errorf("weather lookup for %q: %w", location, err)
			}
			return &tools.ToolCallResult{Output: body}, nil
		},
	}
}
