package parsers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invoiceflow/assistant/internal/agent/model"
)

// ParseFileValidation decodes the file-validator model's verdict. A
// non-JSON response is a soft failure: the file is treated as invalid
// so the router falls through to the formatter.
func ParseFileValidation(content string) (*model.FileValidation, error) {
	trimmed := strings.TrimSpace(content)
	if m := fencedJSONRe.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}
	if !strings.HasPrefix(trimmed, "{") {
		return &model.FileValidation{IsValid: false}, fmt.Errorf("validation output is not a json object: %s", snippet(trimmed))
	}
	var out model.FileValidation
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return &model.FileValidation{IsValid: false}, fmt.Errorf("decode validation json: %w", err)
	}
	out.Confidence = clamp01(out.Confidence)
	return &out, nil
}
