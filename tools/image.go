package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/codewandler/rtconsole-go/tool"
)

var imageBaseURL = "https://api.openai.com/v1/images/generations"

// GenerateImage requests one image from the generation provider and shows it
// in the image panel.
func GenerateImage(caps Capabilities) tool.Definition {
	return tool.Definition{
		Name:        "generate_image",
		Description: "Generates an image from a text prompt and shows it to the user.",
		Parameters: tool.Parameters{
			Type: "object",
			Properties: tool.Properties{
				"prompt": {
					Type:        "string",
					Description: "Description of the image to generate",
				},
			},
			Required: []string{"prompt"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			prompt, err := argString(args, "prompt")
			if err != nil {
				return nil, err
			}
			if caps.ImageAPIKey == "" {
				return failure("image provider not configured"), nil
			}

			body, _ := json.Marshal(map[string]any{
				"model":  "dall-e-3",
				"prompt": prompt,
				"n":      1,
				"size":   "1024x1024",
			})

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, imageBaseURL, bytes.NewReader(body))
			if err != nil {
				return failure("image request failed: %v", err), nil
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+caps.ImageAPIKey)

			resp, err := caps.http().Do(req)
			if err != nil {
				return failure("image request failed: %v", err), nil
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return failure("image provider returned %s", resp.Status), nil
			}

			var payload struct {
				Data []struct {
					URL           string `json:"url"`
					RevisedPrompt string `json:"revised_prompt"`
				} `json:"data"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return failure("malformed image response: %v", err), nil
			}
			if len(payload.Data) == 0 || payload.Data[0].URL == "" {
				return failure("image provider returned no image"), nil
			}

			caps.Display.SetImage(payload.Data[0].URL)

			return map[string]any{
				"ok":  true,
				"url": payload.Data[0].URL,
			}, nil
		},
	}
}
