package tools

import (
	"context"

	rtconsole "github.com/codewandler/rtconsole-go"
	"github.com/codewandler/rtconsole-go/tool"
)

// ShowLocation drops a marker on the map panel.
func ShowLocation(caps Capabilities) tool.Definition {
	return tool.Definition{
		Name:        "show_location",
		Description: "Shows the user a location on a map. Call this whenever a place is discussed.",
		Parameters: tool.Parameters{
			Type: "object",
			Properties: tool.Properties{
				"lat": {
					Type:        "number",
					Description: "Latitude of the location",
				},
				"lng": {
					Type:        "number",
					Description: "Longitude of the location",
				},
				"location": {
					Type:        "string",
					Description: "Name of the location",
				},
			},
			Required: []string{"lat", "lng", "location"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			lat, err := argFloat(args, "lat")
			if err != nil {
				return nil, err
			}
			lng, err := argFloat(args, "lng")
			if err != nil {
				return nil, err
			}
			location, err := argString(args, "location")
			if err != nil {
				return nil, err
			}

			caps.Display.SetMarker(&rtconsole.Marker{
				Lat:      lat,
				Lng:      lng,
				Location: location,
			})

			return map[string]any{"ok": true}, nil
		},
	}
}

// ShowInfo fills the information panel with markdown.
func ShowInfo(caps Capabilities) tool.Definition {
	return tool.Definition{
		Name:        "show_info",
		Description: "Displays detailed information to the user in a side panel. Use markdown formatting.",
		Parameters: tool.Parameters{
			Type: "object",
			Properties: tool.Properties{
				"information": {
					Type:        "string",
					Description: "The information to display, formatted as markdown",
				},
			},
			Required: []string{"information"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			information, err := argString(args, "information")
			if err != nil {
				return nil, err
			}

			caps.Display.SetInfo(information)

			return map[string]any{"ok": true}, nil
		},
	}
}
