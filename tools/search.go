package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/codewandler/rtconsole-go/tool"
)

// SearchRelatedTopics queries the instant-answer provider through the proxy
// collaborator and returns a normalized topic list.
func SearchRelatedTopics(caps Capabilities) tool.Definition {
	return tool.Definition{
		Name:        "search_related_topics",
		Description: "Searches the web for topics related to a query and returns short summaries with links.",
		Parameters: tool.Parameters{
			Type: "object",
			Properties: tool.Properties{
				"query": {
					Type:        "string",
					Description: "The search query",
				},
			},
			Required: []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			query, err := argString(args, "query")
			if err != nil {
				return nil, err
			}
			if caps.ProxyURL == "" {
				return failure("search proxy not configured"), nil
			}

			u := strings.TrimRight(caps.ProxyURL, "/") + "/proxy?q=" + url.QueryEscape(query)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return failure("search request failed: %v", err), nil
			}
			resp, err := caps.http().Do(req)
			if err != nil {
				return failure("search request failed: %v", err), nil
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return failure("search provider returned %s", resp.Status), nil
			}

			var payload struct {
				AbstractText  string `json:"AbstractText"`
				AbstractURL   string `json:"AbstractURL"`
				RelatedTopics []struct {
					Text     string `json:"Text"`
					FirstURL string `json:"FirstURL"`
				} `json:"RelatedTopics"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return failure("malformed search response: %v", err), nil
			}

			topics := make([]map[string]any, 0, len(payload.RelatedTopics))
			for _, t := range payload.RelatedTopics {
				if t.Text == "" {
					continue
				}
				topics = append(topics, map[string]any{
					"text": t.Text,
					"url":  t.FirstURL,
				})
			}

			result := map[string]any{
				"ok":     true,
				"topics": topics,
			}
			if payload.AbstractText != "" {
				result["abstract"] = payload.AbstractText
				result["abstract_url"] = payload.AbstractURL
			}

			return result, nil
		},
	}
}
