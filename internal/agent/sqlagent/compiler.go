package sqlagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/invoiceflow/assistant/internal/agent/graph/prompts"
	"github.com/invoiceflow/assistant/internal/agent/model"
	logx "github.com/invoiceflow/assistant/pkg/logger"
)

// Request carries everything one compilation attempt needs.
type Request struct {
	Query            string
	TenantID         string
	History          []*schema.Message
	Entities         map[string]any
	IsSummaryQuery   bool
	IsSemanticSearch bool
}

// Compiler produces one QueryArtifact per query-intent turn: it
// assembles the compilation context, invokes the completion service,
// and pipes the raw response through the sanitizer and the scorers.
//
// Failure policy: a completion-service failure or an UnsafeStatementError
// is surfaced to the caller as-is, with no retry and no partially
// sanitized statement.
type Compiler struct {
	llm        model.CompletionService
	sanitizer  *Sanitizer
	schemaInfo string
}

func NewCompiler(llm model.CompletionService, schemaInfo string) *Compiler {
	return &Compiler{
		llm:        llm,
		sanitizer:  NewSanitizer(),
		schemaInfo: schemaInfo,
	}
}

func (c *Compiler) Compile(ctx context.Context, req Request) (*model.QueryArtifact, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, fmt.Errorf("missing tenant id for SQL compilation")
	}

	messages, err := c.buildContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("build compilation context: %w", err)
	}

	out, err := c.llm.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("completion service: %w", err)
	}
	raw := out.Content
	logx.Debug().Str("tenant_id", req.TenantID).Int("raw_len", len(raw)).Msg("received SQL candidate from completion service")

	candidate := c.sanitizer.ExtractStatement(raw)
	result, err := c.sanitizer.Sanitize(candidate, req.TenantID)
	if err != nil {
		return nil, err
	}

	artifact := &model.QueryArtifact{
		SQL:           result.SQL,
		RawSQL:        raw,
		SecurityLevel: result.SecurityLevel,
		Complexity:    Classify(result.SQL),
		Confidence:    Confidence(result.SQL, req.Query),
	}

	logx.Debug().
		Str("tenant_id", req.TenantID).
		Str("security_level", string(artifact.SecurityLevel)).
		Str("complexity", string(artifact.Complexity)).
		Float64("confidence", artifact.Confidence).
		Msg("SQL compilation completed")

	return artifact, nil
}

func (c *Compiler) buildContext(ctx context.Context, req Request) ([]*schema.Message, error) {
	system, err := prompts.RenderSQLSystem(ctx, c.schemaInfo, req.IsSummaryQuery, req.IsSemanticSearch)
	if err != nil {
		return nil, err
	}

	messages := make([]*schema.Message, 0, len(req.History)+2)
	messages = append(messages, schema.SystemMessage(system))
	messages = append(messages, req.History...)

	var user strings.Builder
	user.WriteString(req.Query)
	if len(req.Entities) > 0 {
		if b, err := json.Marshal(req.Entities); err == nil {
			user.WriteString("\n\nExtracted entities: ")
			user.Write(b)
		}
	}
	messages = append(messages, schema.UserMessage(user.String()))

	return messages, nil
}
