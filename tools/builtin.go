package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetCurrentTime returns the current wall-clock time, optionally in an IANA timezone.
func GetCurrentTime(now func() time.Time) Definition {
	if now == nil {
		now = time.Now
	}
	return Definition{
		Name:        "get_current_time",
		Description: "Returns the current date and time. Optionally accepts an IANA timezone name.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"timezone": {"type": "string", "description": "IANA timezone, e.g. Europe/Berlin"}
			},
			"additionalProperties": false
		}`),
		Execute: func(ctx context.Context, input json.RawMessage, tc ToolContext) (any, error) {
			var args struct {
				Timezone string `json:"timezone"`
			}
			if len(input) > 0 {
				if err := json.Unmarshal(input, &args); err != nil {
					return nil, fmt.Errorf("decode input: %w", err)
				}
			}

			loc := time.UTC
			if args.Timezone != "" {
				l, err := time.LoadLocation(args.Timezone)
				if err != nil {
					return nil, fmt.Errorf("unknown timezone %q", args.Timezone)
				}
				loc = l
			}

			t := now().In(loc)
			return map[string]string{
				"time":     t.Format(time.RFC3339),
				"timezone": loc.String(),
			}, nil
		},
	}
}

// RegisterBuiltins registers the tools shipped with the engine.
func RegisterBuiltins(r *DefaultRegistry) error {
	return r.Register(GetCurrentTime(nil))
}
