// Package template resolves placeholders in message content and condition
// values. Two placeholder grammars are supported: "{field}" for message
// templates rendered from a lead record, and "${field}" for condition values
// resolved from a trigger payload.
package template

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	messagePattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)
	payloadPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)
)

// RenderMessage replaces every "{field}" placeholder with the corresponding
// record field. Unknown fields render as an empty string.
func RenderMessage(content string, record map[string]any) string {
	return messagePattern.ReplaceAllStringFunc(content, func(match string) string {
		field := messagePattern.FindStringSubmatch(match)[1]

		value, ok := record[field]
		if !ok || value == nil {
			return ""
		}

		return stringify(value)
	})
}

// ResolveValue resolves "${field}" placeholders in a condition value against
// the trigger payload. A value that is exactly one placeholder resolves to
// the raw payload value, preserving its type; placeholders embedded in a
// larger string are replaced textually. Non-string values pass through
// untouched.
func ResolveValue(value any, payload map[string]any) any {
	s, ok := value.(string)
	if !ok || len(payload) == 0 {
		return value
	}

	if m := payloadPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		if resolved, ok := payload[m[1]]; ok {
			return resolved
		}

		return value
	}

	return payloadPattern.ReplaceAllStringFunc(s, func(match string) string {
		field := payloadPattern.FindStringSubmatch(match)[1]

		resolved, ok := payload[field]
		if !ok {
			return match
		}

		return stringify(resolved)
	})
}

func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
