package parsers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseEntityMap decodes an extraction model's response into a loose
// field map. Fenced output is tolerated; anything that is not a JSON
// object is a soft failure yielding an empty map.
func ParseEntityMap(content string) (map[string]any, error) {
	trimmed := strings.TrimSpace(content)
	if m := fencedJSONRe.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}
	if !strings.HasPrefix(trimmed, "{") {
		return map[string]any{}, fmt.Errorf("extraction output is not a json object: %s", snippet(trimmed))
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return map[string]any{}, fmt.Errorf("decode extraction json: %w", err)
	}
	return out, nil
}
