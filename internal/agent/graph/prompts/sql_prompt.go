package prompts

import (
	"context"
	_ "embed"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/sql_prompt.txt
var sqlSystemPrompt string

const summaryGuidance = `
Summary queries:
- When the user asks for totals, averages or breakdowns, aggregate with SUM/AVG/COUNT and GROUP BY the relevant dimension (vendor, month, category)
- Use ROUND(CAST(expr AS numeric), 2) for monetary averages
- Order aggregated results by the aggregated value descending unless asked otherwise`

const semanticGuidance = `
Semantic search:
- The user's request should be answered by vector similarity over item descriptions
- Order by l2_distance(description_embedding::vector, '[:query_embedding]'::vector) ascending
- Join items to invoices and keep the invoices.user_id filter`

// RenderSQLSystem renders the text-to-SQL system prompt via the Eino
// prompt component (which also emits prompt callbacks). The two flags
// select mode-specific guidance blocks.
func RenderSQLSystem(ctx context.Context, schemaInfo string, isSummaryQuery, isSemanticSearch bool) (string, error) {
	var guidance strings.Builder
	if isSummaryQuery {
		guidance.WriteString(summaryGuidance)
	}
	if isSemanticSearch {
		guidance.WriteString(semanticGuidance)
	}

	content := strings.NewReplacer(
		"{db_schema_info}", schemaInfo,
		"{mode_guidance}", guidance.String(),
	).Replace(sqlSystemPrompt)

	return renderSystem(ctx, content)
}

// renderSystem wraps a finished system prompt through the Eino prompt
// component using a messages placeholder, so prompt callbacks fire
// without the template engine touching literal braces in the content.
func renderSystem(ctx context.Context, content string) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", errEmptyRender
	}
	return msgs[0].Content, nil
}
