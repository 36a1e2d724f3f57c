package tools

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/codewandler/rtconsole-go/tool"
)

// WebpageScrape fetches a page through the scrape collaborator, strips
// non-content markup and returns the remaining text as markdown.
func WebpageScrape(caps Capabilities) tool.Definition {
	converter := md.NewConverter("", true, nil)

	return tool.Definition{
		Name:        "webpage_scrape",
		Description: "Fetches a webpage and returns its text content as markdown.",
		Parameters: tool.Parameters{
			Type: "object",
			Properties: tool.Properties{
				"url": {
					Type:        "string",
					Description: "The URL of the webpage to scrape",
				},
			},
			Required: []string{"url"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			target, err := argString(args, "url")
			if err != nil {
				return nil, err
			}
			if caps.ProxyURL == "" {
				return failure("scrape proxy not configured"), nil
			}

			u := strings.TrimRight(caps.ProxyURL, "/") + "/scrape?url=" + url.QueryEscape(target)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return failure("scrape request failed: %v", err), nil
			}
			resp, err := caps.http().Do(req)
			if err != nil {
				return failure("scrape request failed: %v", err), nil
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return failure("scrape read failed: %v", err), nil
			}
			if resp.StatusCode != http.StatusOK {
				msg := strings.TrimSpace(string(body))
				if msg == "" {
					msg = resp.Status
				}
				return failure("scrape failed: %s", msg), nil
			}

			markdown, err := extractMarkdown(converter, string(body))
			if err != nil {
				return failure("scrape parse failed: %v", err), nil
			}
			if markdown == "" {
				return failure("No text content found on the webpage"), nil
			}

			return map[string]any{
				"ok":       true,
				"url":      target,
				"markdown": markdown,
			}, nil
		},
	}
}

// extractMarkdown drops scripts, styles and page chrome, then converts what
// remains to markdown.
func extractMarkdown(converter *md.Converter, page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript, iframe, svg, nav, header, footer, aside").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		return "", nil
	}
	html, err := body.Html()
	if err != nil {
		return "", err
	}

	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(markdown), nil
}
