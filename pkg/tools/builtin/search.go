package builtin

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/bernard-assistant/bernard/pkg/environment"
	"github.com/bernard-assistant/bernard/pkg/tools"
)

const defaultSearchBaseURL = "https://api.search.brave.com/res/v1/web/search"

// Search returns the web search tool.
func Search(env environment.Provider) tools.Tool {
	return tools.Tool{
		Name:        "web_search",
		Description: "Search the web and return the top results",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
		VerifyConfiguration: requireEnv(env, "SEARCH_API_KEY", "SEARCH_API_KEY is not set"),
		Handler: func(ctx context.Context, args map[string]any) (*tools.ToolCallResult, error) {
			query := stringArg(args, "query")
			if query == "" {
				return nil, errors.New("query is required")
			}

			baseURL, _ := env.Get(ctx, "SEARCH_BASE_URL")
			if baseURL == "" {
				baseURL = defaultSearchBaseURL
			}
			apiKey, _ := env.Get(ctx, "SEARCH_API_KEY")

			body, err := fetch(ctx, fmt.Sprintf("%s?key=%s&q=%s&count=5",
				baseURL, url.QueryEscape(apiKey), url.QueryEscape(query)))
			if err != nil {
				return nil, fmt.Errorf("web search for %q: %w", query, err)
			}
			return &tools.ToolCallResult{Output: body}, nil
		},
	}
}
