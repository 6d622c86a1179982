package sqlagent

import (
	"regexp"
	"strings"

	"github.com/invoiceflow/assistant/internal/agent/model"
)

// Pure heuristics over a finished SQL string and the original query
// text. No I/O, safe for concurrent use.

var queryStopwords = map[string]struct{}{
	"what": {}, "who": {}, "where": {}, "when": {}, "how": {},
	"and": {}, "the": {}, "is": {}, "are": {}, "was": {},
}

var (
	subqueryRe  = regexp.MustCompile(`\(\s*select`)
	aggregateRe = regexp.MustCompile(`\b(count|sum|avg|min|max)\s*\(`)
)

// Confidence estimates how plausibly the generated SQL answers the
// original query. It rewards basic SELECT/FROM structure, filtering and
// joins, and overlap between query terms and the SQL text; it penalises
// implausibly short or long statements. The result is clamped to [0,1].
func Confidence(sql, queryText string) float64 {
	if sql == "" {
		return 0.0
	}

	confidence := 0.7
	sqlLower := strings.ToLower(sql)

	if strings.Contains(sqlLower, "select") && strings.Contains(sqlLower, "from") {
		confidence += 0.1
		if strings.Contains(sqlLower, "where") {
			confidence += 0.05
		}
		if strings.Contains(sqlLower, "join") {
			confidence += 0.05
		}
	}

	seen := map[string]struct{}{}
	for _, term := range strings.Fields(strings.ToLower(queryText)) {
		if _, stop := queryStopwords[term]; stop {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		if strings.Contains(sqlLower, term) {
			confidence += 0.02
		}
	}

	if len(sql) < 20 {
		confidence -= 0.1
	}
	if len(sql) > 500 {
		confidence -= 0.1
	}

	return clamp(confidence, 0.0, 1.0)
}

// Classify buckets a statement by structural richness.
func Classify(sql string) model.Complexity {
	sqlLower := strings.ToLower(sql)

	score := 0
	if strings.Contains(sqlLower, "join") {
		score += 2
	}
	if strings.Contains(sqlLower, "where") {
		score++
	}
	if strings.Contains(sqlLower, "group by") {
		score += 2
	}
	if strings.Contains(sqlLower, "having") {
		score += 2
	}
	if strings.Contains(sqlLower, "order by") {
		score++
	}
	if strings.Contains(sqlLower, "limit") {
		score++
	}

	score += len(subqueryRe.FindAllString(sqlLower, -1)) * 3

	if strings.Contains(sqlLower, "over") &&
		(strings.Contains(sqlLower, "partition by") || strings.Contains(sqlLower, "order by")) {
		score += 3
	}

	score += len(aggregateRe.FindAllString(sqlLower, -1))

	switch {
	case score <= 2:
		return model.Simple
	case score <= 6:
		return model.Moderate
	default:
		return model.Complex
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
