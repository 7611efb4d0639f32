package apierror

import (
	"encoding/json"
	"fmt"
	"strings"
)

const snippetLen = 200

// Detail extracts a human readable message from a Discourse error body.
//
// Discourse reports failures as {"errors": [...]}, {"error": "..."},
// {"message": "..."} or {"error_type": "...", "extras": {...}}. Non-JSON
// bodies fall back to a short text snippet.
func Detail(body []byte) string {
	var payload struct {
		Errors    []any           `json:"errors"`
		Error     any             `json:"error"`
		Message   string          `json:"message"`
		ErrorType string          `json:"error_type"`
		Extras    json.RawMessage `json:"extras"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case len(payload.Errors) > 0:
			parts := make([]string, 0, len(payload.Errors))
			for _, e := range payload.Errors {
				parts = append(parts, fmt.Sprint(e))
			}
			return strings.Join(parts, "; ")
		case payload.Error != nil && fmt.Sprint(payload.Error) != "":
			return fmt.Sprint(payload.Error)
		case payload.Message != "":
			return payload.Message
		case payload.ErrorType != "":
			if len(payload.Extras) > 0 && string(payload.Extras) != "null" && string(payload.Extras) != "{}" {
				return payload.ErrorType + ": " + string(payload.Extras)
			}
			return payload.ErrorType
		}
	}

	text := string(body)
	if len(text) > snippetLen {
		text = text[:snippetLen]
	}
	return strings.TrimSpace(text)
}
