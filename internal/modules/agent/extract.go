package agent

import (
	"errors"
	"strings"
)

// ErrNoModelResponse is returned when a run produced no textual model turn.
var ErrNoModelResponse = errors.New("no model response in agent output")

// Event is one turn record returned by the agent runtime's /run endpoint.
type Event struct {
	ID      string  `json:"id,omitempty"`
	Author  string  `json:"author,omitempty"`
	Content Content `json:"content"`
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is a fragment of a turn. Text is nil for non-text parts such as
// function calls.
type Part struct {
	Text *string `json:"text,omitempty"`
}

// ExtractModelResponse returns the text of the latest model turn.
func ExtractModelResponse(events []Event) (string, error) {
	for i := len(events) - 1; i >= 0; i-- {
		content := events[i].Content
		if content.Role != "model" || len(content.Parts) == 0 {
			continue
		}
		for _, part := range content.Parts {
			if part.Text == nil {
				continue
			}
			if strings.TrimSpace(*part.Text) == "" {
				return "", ErrNoModelResponse
			}
			return *part.Text, nil
		}
	}
	return "", ErrNoModelResponse
}
