// Package aijson recovers JSON values from free-form model replies.
//
// Models answer with bare JSON, with JSON wrapped in a ```json fence, or with
// JSON wrapped in an unlabeled ``` fence. Decode tries those framings in turn
// and reports whether the enclosing request should be re-driven.
package aijson

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	jsonFencePattern    = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n```")
	genericFencePattern = regexp.MustCompile("(?s)```\\s*\\n(.*?)\\n```")
)

// Decode extracts a JSON value from text.
//
// The returned retry flag is true when nothing could be decoded, when the
// decoded value is not an object, or when the object carries "success": false.
// A missing success field is not a failure. Only the first fence of each kind
// is considered.
func Decode(text string) (any, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, true
	}

	if v, ok := parse(text); ok {
		return v, ShouldRetry(v)
	}
	if m := jsonFencePattern.FindStringSubmatch(text); m != nil {
		if v, ok := parse(m[1]); ok {
			return v, ShouldRetry(v)
		}
	}
	if m := genericFencePattern.FindStringSubmatch(text); m != nil {
		if v, ok := parse(m[1]); ok {
			return v, ShouldRetry(v)
		}
	}
	if v, ok := parse(strings.TrimPrefix(strings.TrimSpace(text), "\ufeff")); ok {
		return v, ShouldRetry(v)
	}
	return nil, true
}

// ShouldRetry reports the retry flag for an already decoded value.
func ShouldRetry(v any) bool {
	obj, ok := v.(map[string]any)
	if !ok {
		return true
	}
	success, present := obj["success"]
	if !present {
		return false
	}
	b, isBool := success.(bool)
	return isBool && !b
}

// Remarshal converts a decoded value into a typed destination.
func Remarshal(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Preview shortens raw model text for log lines.
func Preview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func parse(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}
