package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/codewandler/rtconsole-go/tool"
)

var snippetMarkup = regexp.MustCompile(`<[^>]+>`)

// WikipediaSearch queries the MediaWiki search index and returns snippets
// with the highlight markup stripped.
func WikipediaSearch(caps Capabilities) tool.Definition {
	return tool.Definition{
		Name:        "wikipedia_search",
		Description: "Searches Wikipedia articles and returns titles and snippets.",
		Parameters: tool.Parameters{
			Type: "object",
			Properties: tool.Properties{
				"query": {
					Type:        "string",
					Description: "The search query",
				},
				"language": {
					Type:        "string",
					Description: "Wikipedia language code, defaults to en",
				},
			},
			Required: []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			query, err := argString(args, "query")
			if err != nil {
				return nil, err
			}
			language := "en"
			if l, err := argString(args, "language"); err == nil && l != "" {
				language = l
			}

			q := url.Values{}
			q.Set("action", "query")
			q.Set("list", "search")
			q.Set("srsearch", query)
			q.Set("format", "json")
			q.Set("srlimit", "5")

			endpoint := fmt.Sprintf("https://%s.wikipedia.org/w/api.php?%s", language, q.Encode())
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return failure("wikipedia request failed: %v", err), nil
			}
			resp, err := caps.http().Do(req)
			if err != nil {
				return failure("wikipedia request failed: %v", err), nil
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return failure("wikipedia returned %s", resp.Status), nil
			}

			var payload struct {
				Query struct {
					Search []struct {
						Title   string `json:"title"`
						Snippet string `json:"snippet"`
						PageID  int    `json:"pageid"`
					} `json:"search"`
				} `json:"query"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return failure("malformed wikipedia response: %v", err), nil
			}

			results := make([]map[string]any, 0, len(payload.Query.Search))
			for _, s := range payload.Query.Search {
				snippet := snippetMarkup.ReplaceAllString(s.Snippet, "")
				snippet = strings.ReplaceAll(snippet, "&quot;", `"`)
				results = append(results, map[string]any{
					"title":   s.Title,
					"snippet": snippet,
					"url":     fmt.Sprintf("https://%s.wikipedia.org/?curid=%d", language, s.PageID),
				})
			}

			return map[string]any{
				"ok":      true,
				"results": results,
			}, nil
		},
	}
}
