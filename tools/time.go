package tools

import (
	"context"

	"github.com/codewandler/rtconsole-go/tool"
)

func GetTime(caps Capabilities) tool.Definition {
	return tool.Definition{
		Name:        "get_time",
		Description: "Returns the current local date and time.",
		Parameters: tool.Parameters{
			Type:       "object",
			Properties: tool.Properties{},
			Required:   []string{},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{
				"time": caps.now().Format("Monday, January 2, 2006 at 3:04 PM MST"),
			}, nil
		},
	}
}
