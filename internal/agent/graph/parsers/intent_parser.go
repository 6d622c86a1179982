package parsers

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/invoiceflow/assistant/internal/agent/model"
	logx "github.com/invoiceflow/assistant/pkg/logger"
)

// basic safety limit to avoid pathological inputs
const maxContentLen = 64 * 1024

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// Classification is the parsed verdict of the intent-classifier model.
type Classification struct {
	Intent      model.IntentType `json:"-"`
	RawIntent   string           `json:"intent"`
	Confidence  float64          `json:"confidence"`
	Explanation string           `json:"explanation,omitempty"`
}

// ParseClassification decodes the classifier model's response. The
// completion service may return clean JSON, a fenced JSON block, a bare
// intent word, or garbage; the first three are parsed, the last yields
// an Unknown classification together with an error so callers can record
// the soft parse failure and continue.
func ParseClassification(content string) (*Classification, error) {
	if len(content) > maxContentLen {
		logx.Warn().Int("orig_len", len(content)).Msg("classifier output truncated due to size limit")
		content = content[:maxContentLen]
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return unknown(), fmt.Errorf("empty classifier output")
	}

	if m := fencedJSONRe.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}

	if strings.HasPrefix(trimmed, "{") {
		var c Classification
		if err := json.Unmarshal([]byte(trimmed), &c); err != nil {
			return unknown(), fmt.Errorf("decode classification json: %w", err)
		}
		c.Intent = model.ParseIntent(strings.ToLower(strings.TrimSpace(c.RawIntent)))
		c.Confidence = clamp01(c.Confidence)
		return &c, nil
	}

	// tolerate a bare intent word
	word := strings.ToLower(strings.Trim(trimmed, `"'.`))
	if intent := model.ParseIntent(word); intent != model.IntentUnknown {
		return &Classification{Intent: intent, RawIntent: word, Confidence: 0.5}, nil
	}

	return unknown(), fmt.Errorf("unrecognized classifier output: %s", snippet(trimmed))
}

func unknown() *Classification {
	return &Classification{Intent: model.IntentUnknown, Confidence: 0}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func snippet(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max]
}
