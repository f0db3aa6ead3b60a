package command

import (
	"encoding/json"
	"strings"
)

// ParseOutput turns command output into structured data when it holds a JSON
// array or object. Any other text is returned as its lines.
func ParseOutput(text string) interface{} {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		var v interface{}
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			switch v.(type) {
			case []interface{}, map[string]interface{}:
				return v
			}
		}
	}

	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return []string{}
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
