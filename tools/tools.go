// Package tools provides the builtin tool handlers exposed to the remote
// agent. Handlers receive their capabilities explicitly instead of closing
// over ambient state, so every side effect is visible at the call site.
package tools

import (
	"fmt"
	"net/http"
	"time"

	rtconsole "github.com/codewandler/rtconsole-go"
	"github.com/codewandler/rtconsole-go/tool"
)

// Capabilities is everything a builtin handler may touch.
type Capabilities struct {
	Memory  *rtconsole.Memory
	Display *rtconsole.Display

	// HTTP is used for all provider calls; one attempt per call, no retry.
	HTTP *http.Client

	// ProxyURL is the base URL of the scrape/search proxy collaborator.
	ProxyURL string

	// ImageAPIKey authorizes the image generation provider.
	ImageAPIKey string

	// Now defaults to time.Now.
	Now func() time.Time

	// OnMemoryChange fires after a memory mutation so the session can
	// re-push its instructions.
	OnMemoryChange func()
}

func (c Capabilities) http() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c Capabilities) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Capabilities) memoryChanged() {
	if c.OnMemoryChange != nil {
		c.OnMemoryChange()
	}
}

// RegisterAll adds every builtin tool to the registry.
func RegisterAll(r *tool.Registry, caps Capabilities) error {
	for _, d := range []tool.Definition{
		SetMemory(caps),
		RemoveMemory(caps),
		GetTime(caps),
		ShowLocation(caps),
		ShowInfo(caps),
		GetWeather(caps),
		GenerateImage(caps),
		SearchRelatedTopics(caps),
		WikipediaSearch(caps),
		WebpageScrape(caps),
	} {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// failure is the common shape every provider-backed handler maps errors
// into. It is returned as a payload, never raised.
func failure(format string, a ...any) map[string]any {
	return map[string]any{"ok": false, "message": fmt.Sprintf(format, a...)}
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string", key)
	}
	return s, nil
}

func argFloat(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument: %s", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("argument %s must be a number", key)
}
