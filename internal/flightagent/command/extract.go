package command

import (
	"strings"
)

const jsonFence = "```json"

// Extract splits a reasoning reply into its JSON payload and the surrounding
// prose. A ```json fence wins; otherwise the span from the first '{' to the
// last '}' is taken. payload is empty when the reply holds no object.
func Extract(reply string) (payload string, rationale string) {
	if i := strings.Index(reply, jsonFence); i >= 0 {
		rest := reply[i+len(jsonFence):]
		tail := ""
		if j := strings.Index(rest, "```"); j >= 0 {
			rest, tail = rest[:j], rest[j+3:]
		}
		return strings.TrimSpace(rest), joinProse(reply[:i], tail)
	}

	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start >= 0 && end > start {
		return reply[start : end+1], joinProse(reply[:start], reply[end+1:])
	}

	return "", strings.TrimSpace(reply)
}

func joinProse(parts ...string) string {
	var kept []string
	for _, p := range parts {
		p = strings.TrimSpace(strings.Trim(strings.TrimSpace(p), "`"))
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
