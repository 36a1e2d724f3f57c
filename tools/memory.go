package tools

import (
	"context"

	"github.com/codewandler/rtconsole-go/tool"
)

// SetMemory lets the agent persist a fact about the user. The store outlives
// the session, and every mutation re-syncs the agent's instructions.
func SetMemory(caps Capabilities) tool.Definition {
	return tool.Definition{
		Name:        "set_memory",
		Description: "Saves important data about the user into memory.",
		Parameters: tool.Parameters{
			Type: "object",
			Properties: tool.Properties{
				"key": {
					Type:        "string",
					Description: "The key of the memory value. Always use lowercase and underscores, no other characters.",
				},
				"value": {
					Type:        "string",
					Description: "Value can be anything represented as a string",
				},
			},
			Required: []string{"key", "value"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			key, err := argString(args, "key")
			if err != nil {
				return nil, err
			}
			value, err := argString(args, "value")
			if err != nil {
				return nil, err
			}

			caps.Memory.Set(key, value)
			caps.memoryChanged()

			return map[string]any{"ok": true}, nil
		},
	}
}

func RemoveMemory(caps Capabilities) tool.Definition {
	return tool.Definition{
		Name:        "remove_memory",
		Description: "Removes a value from memory by key.",
		Parameters: tool.Parameters{
			Type: "object",
			Properties: tool.Properties{
				"key": {
					Type:        "string",
					Description: "The key of the memory value to remove.",
				},
			},
			Required: []string{"key"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			key, err := argString(args, "key")
			if err != nil {
				return nil, err
			}

			caps.Memory.Delete(key)
			caps.memoryChanged()

			return map[string]any{"ok": true}, nil
		},
	}
}
