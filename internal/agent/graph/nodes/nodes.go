package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/invoiceflow/assistant/internal/agent/graph/conversations"
	"github.com/invoiceflow/assistant/internal/agent/graph/parsers"
	"github.com/invoiceflow/assistant/internal/agent/graph/prompts"
	"github.com/invoiceflow/assistant/internal/agent/model"
	"github.com/invoiceflow/assistant/internal/agent/sqlagent"
	logx "github.com/invoiceflow/assistant/pkg/logger"
)

// Node names used by the workflow graph and its observers.
const (
	NodeInputClassifier   = "InputClassifier"
	NodeIntentClassifier  = "IntentClassifier"
	NodeFileValidator     = "FileValidator"
	NodeEntityExtractor   = "EntityExtractor"
	NodeDataExtractor     = "DataExtractor"
	NodeSqlGenerator      = "SqlGenerator"
	NodeResponseFormatter = "ResponseFormatter"
)

// guarded wraps a node body so a failure is recorded on the state
// instead of aborting the run. Routing then proceeds on whatever fields
// the node managed to set, and the formatter still produces a reply.
func guarded(name string, fn func(context.Context, *model.ConversationState) error) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error) {
		if err := fn(ctx, s); err != nil {
			logx.Error().
				Str("conversation_id", s.ConversationID).
				Str("node", name).
				Err(err).
				Msg("node failed, continuing with degraded state")
			s.RecordError(name, err)
			s.Stage = model.StageError
		}
		return s, nil
	})
}

// NewInputClassifierNode creates the entry node. It seeds the turn's
// ConversationState from the public input: synthesizes a conversation
// id when the caller did not supply one, loads bounded history, and
// detects the input shape that drives the first routing decision.
func NewInputClassifierNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (*model.ConversationState, error) {
		if strings.TrimSpace(in.ConversationID) == "" {
			in.ConversationID = uuid.NewString()
			logx.Debug().Str("conversation_id", in.ConversationID).Msg("synthesized conversation id for new conversation")
		}

		var history []*schema.Message
		if mm != nil {
			loaded, err := mm.LoadContext(ctx, in.ConversationID)
			if err != nil {
				// A cold history store degrades context, not the turn.
				logx.Warn().Str("conversation_id", in.ConversationID).Err(err).Msg("failed to load conversation history")
			} else {
				history = loaded
			}
		}

		s := model.NewConversationState(in, history)
		switch {
		case in.File != nil:
			s.DetectedInputType = SniffFileType(in.File)
		case strings.TrimSpace(in.Text) != "":
			s.DetectedInputType = model.InputText
		default:
			s.DetectedInputType = model.InputUnknown
		}

		logx.Debug().
			Str("conversation_id", s.ConversationID).
			Str("input_type", string(s.DetectedInputType)).
			Int("history_len", len(history)).
			Msg("turn classified")
		return s, nil
	})
}

// NewInputRoutingCondition routes text turns to the intent classifier
// and everything else, including unrecognized uploads, to the file
// validator.
func NewInputRoutingCondition() func(context.Context, *model.ConversationState) (string, error) {
	return func(ctx context.Context, s *model.ConversationState) (string, error) {
		if s.DetectedInputType == model.InputText {
			return NodeIntentClassifier, nil
		}
		return NodeFileValidator, nil
	}
}

// NewIntentClassifierNode creates the node that classifies a text turn
// into one of the known intents. An unparseable or failed completion
// collapses to IntentUnknown with a recorded diagnostic.
func NewIntentClassifierNode(llm model.CompletionService) *compose.Lambda {
	return guarded(NodeIntentClassifier, func(ctx context.Context, s *model.ConversationState) error {
		system, err := prompts.RenderIntentSystem(ctx)
		if err != nil {
			return fmt.Errorf("render intent prompt: %w", err)
		}

		messages := make([]*schema.Message, 0, len(s.History)+2)
		messages = append(messages, schema.SystemMessage(system))
		messages = append(messages, s.History...)
		messages = append(messages, schema.UserMessage(s.Text))

		out, err := llm.Complete(ctx, messages)
		if err != nil {
			return fmt.Errorf("intent completion: %w", err)
		}

		classification, err := parsers.ParseClassification(out.Content)
		s.Intent = classification.Intent
		s.IntentConfidence = classification.Confidence
		s.Stage = model.StageIntentDetermined
		if err != nil {
			// Soft parse failure: the Unknown intent still routes.
			s.RecordError(NodeIntentClassifier, err)
		}

		logx.Debug().
			Str("conversation_id", s.ConversationID).
			Str("intent", string(s.Intent)).
			Float64("confidence", s.IntentConfidence).
			Msg("intent classified")
		return nil
	})
}

// NewIntentRoutingCondition maps the classified intent onto the next
// node. Everything that is not a query or a dictated invoice goes
// straight to the formatter.
func NewIntentRoutingCondition() func(context.Context, *model.ConversationState) (string, error) {
	return func(ctx context.Context, s *model.ConversationState) (string, error) {
		switch s.Intent {
		case model.IntentInvoiceQuery:
			return NodeSqlGenerator, nil
		case model.IntentInvoiceCreator:
			return NodeEntityExtractor, nil
		default:
			return NodeResponseFormatter, nil
		}
	}
}

// NewFileValidatorNode creates the node that decides whether an upload
// looks like an invoice. It only writes FileValidation; a nil verdict
// after a failure routes to the formatter like an invalid file.
func NewFileValidatorNode(analyzer model.FileAnalyzer) *compose.Lambda {
	return guarded(NodeFileValidator, func(ctx context.Context, s *model.ConversationState) error {
		if s.File == nil {
			s.FileValidation = &model.FileValidation{IsValid: false, Reason: "no file attached"}
			s.Stage = model.StageFileValidated
			return nil
		}
		validation, err := analyzer.Validate(ctx, s.File)
		if err != nil {
			return fmt.Errorf("validate file: %w", err)
		}
		s.FileValidation = validation
		s.Stage = model.StageFileValidated

		logx.Debug().
			Str("conversation_id", s.ConversationID).
			Str("file", s.File.Name).
			Bool("is_valid", validation.IsValid).
			Float64("confidence", validation.Confidence).
			Msg("file validated")
		return nil
	})
}

// NewValidationRoutingCondition sends validated files to data
// extraction and everything else to the formatter.
func NewValidationRoutingCondition() func(context.Context, *model.ConversationState) (string, error) {
	return func(ctx context.Context, s *model.ConversationState) (string, error) {
		if s.FileValidation != nil && s.FileValidation.IsValid {
			return NodeDataExtractor, nil
		}
		return NodeResponseFormatter, nil
	}
}

// NewEntityExtractorNode creates the node that pulls invoice fields out
// of a dictated invoice_creator turn.
func NewEntityExtractorNode(llm model.CompletionService) *compose.Lambda {
	return guarded(NodeEntityExtractor, func(ctx context.Context, s *model.ConversationState) error {
		system, err := prompts.RenderEntitySystem(ctx)
		if err != nil {
			return fmt.Errorf("render entity prompt: %w", err)
		}

		out, err := llm.Complete(ctx, []*schema.Message{
			schema.SystemMessage(system),
			schema.UserMessage(s.Text),
		})
		if err != nil {
			return fmt.Errorf("entity completion: %w", err)
		}

		entities, err := parsers.ParseEntityMap(out.Content)
		s.ExtractedEntities = entities
		s.Stage = model.StageDataExtraction
		if err != nil {
			s.RecordError(NodeEntityExtractor, err)
		}

		logx.Debug().
			Str("conversation_id", s.ConversationID).
			Int("entity_count", len(entities)).
			Msg("entities extracted")
		return nil
	})
}

// NewDataExtractorNode creates the node that extracts structured
// invoice data from a validated upload.
func NewDataExtractorNode(analyzer model.FileAnalyzer) *compose.Lambda {
	return guarded(NodeDataExtractor, func(ctx context.Context, s *model.ConversationState) error {
		document, err := analyzer.Extract(ctx, s.File)
		if err != nil {
			return fmt.Errorf("extract document: %w", err)
		}
		s.ExtractedDocument = document
		s.Stage = model.StageDataExtraction

		logx.Debug().
			Str("conversation_id", s.ConversationID).
			Int("field_count", len(document)).
			Msg("document data extracted")
		return nil
	})
}

// NewSqlGeneratorNode creates the node that compiles the user's
// question into a tenant-scoped statement and, when an executor is
// wired, runs it. A compilation failure, including an unsafe statement
// rejection, leaves QueryArtifact nil; it is never downgraded to a
// partial result.
func NewSqlGeneratorNode(compiler *sqlagent.Compiler, executor model.QueryExecutor) *compose.Lambda {
	return guarded(NodeSqlGenerator, func(ctx context.Context, s *model.ConversationState) error {
		s.Stage = model.StageConvertingToSQL

		artifact, err := compiler.Compile(ctx, sqlagent.Request{
			Query:            s.Text,
			TenantID:         s.TenantID,
			History:          s.History,
			Entities:         s.ExtractedEntities,
			IsSummaryQuery:   isSummaryQuery(s.Text),
			IsSemanticSearch: isSemanticSearch(s.Text),
		})
		if err != nil {
			return err
		}
		s.QueryArtifact = artifact
		s.Stage = model.StageSQLComplete

		if executor == nil {
			return nil
		}
		results, err := executor.Execute(ctx, artifact.SQL, s.TenantID)
		if err != nil {
			// The compiled statement stays on the state; the formatter
			// reports the execution failure.
			return fmt.Errorf("execute query: %w", err)
		}
		s.QueryResults = results
		s.Stage = model.StageSQLExecuted

		logx.Debug().
			Str("conversation_id", s.ConversationID).
			Int("row_count", len(results)).
			Msg("query executed")
		return nil
	})
}

var summaryMarkers = []string{"total", "sum", "average", "avg", "how much", "breakdown", "per month", "per vendor", "spent"}

var semanticMarkers = []string{"similar to", "like the", "something like", "related to"}

func isSummaryQuery(text string) bool {
	return containsAnyFold(text, summaryMarkers)
}

func isSemanticSearch(text string) bool {
	return containsAnyFold(text, semanticMarkers)
}

func containsAnyFold(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// NewResponseFormatterNode creates the terminal node. It always
// produces a Response: the completion service formats the turn's
// outcome into natural language, and any failure along the way falls
// back to a deterministic message.
func NewResponseFormatterNode(llm model.CompletionService) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.ConversationState) (*model.Response, error) {
		s.Stage = model.StageResponseFormatting

		content, err := formatWithModel(ctx, llm, s)
		if err != nil || strings.TrimSpace(content) == "" {
			if err != nil {
				logx.Warn().
					Str("conversation_id", s.ConversationID).
					Err(err).
					Msg("response model unavailable, using deterministic fallback")
				s.RecordError(NodeResponseFormatter, err)
			}
			content = chooseFallback(s)
		}

		if s.Stage != model.StageError {
			s.Stage = model.StageCompleted
		}
		s.Response = &model.Response{
			Content:    content,
			Confidence: responseConfidence(s),
			Metadata:   responseMetadata(s),
		}
		return s.Response, nil
	})
}

func formatWithModel(ctx context.Context, llm model.CompletionService, s *model.ConversationState) (string, error) {
	if llm == nil {
		return "", fmt.Errorf("no response model configured")
	}
	system, err := prompts.RenderResponseSystem(ctx, s.Intent)
	if err != nil {
		return "", fmt.Errorf("render response prompt: %w", err)
	}

	messages := make([]*schema.Message, 0, len(s.History)+2)
	messages = append(messages, schema.SystemMessage(system))
	messages = append(messages, s.History...)
	messages = append(messages, schema.UserMessage(formatterContext(s)))

	out, err := llm.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("response completion: %w", err)
	}
	return out.Content, nil
}

// formatterContext serializes the turn's outcome for the response
// model: the user's message plus whichever artifacts the path produced.
func formatterContext(s *model.ConversationState) string {
	var b strings.Builder
	if s.Text != "" {
		b.WriteString("User message: ")
		b.WriteString(s.Text)
		b.WriteString("\n")
	}
	if s.File != nil {
		fmt.Fprintf(&b, "Uploaded file: %s\n", s.File.Name)
	}
	if s.FileValidation != nil && !s.FileValidation.IsValid {
		fmt.Fprintf(&b, "File validation failed: %s\n", s.FileValidation.Reason)
	}
	if len(s.ExtractedDocument) > 0 {
		writeJSONSection(&b, "Extracted document data", s.ExtractedDocument)
	}
	if len(s.ExtractedEntities) > 0 {
		writeJSONSection(&b, "Extracted invoice fields", s.ExtractedEntities)
	}
	if s.QueryArtifact != nil {
		if s.QueryResults != nil {
			writeJSONSection(&b, "Query results", s.QueryResults)
		} else {
			b.WriteString("The query was compiled but not executed.\n")
		}
	}
	if s.Failed() {
		fmt.Fprintf(&b, "Processing problems this turn: %s\n", strings.Join(s.Errors, "; "))
	}
	return b.String()
}

func writeJSONSection(b *strings.Builder, title string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", title, data)
}

// chooseFallback picks the deterministic reply for a turn the response
// model could not serve.
func chooseFallback(s *model.ConversationState) string {
	if s.File != nil && (s.FileValidation == nil || !s.FileValidation.IsValid) {
		if s.DetectedInputType == model.InputUnknown {
			return fallbackUnsupportedFormat
		}
		return fallbackInvalidFile
	}
	if s.File != nil && s.ExtractedDocument == nil && s.Failed() {
		return fallbackExtractionFailed
	}
	if s.Intent == model.IntentInvoiceQuery && s.QueryArtifact == nil {
		return fallbackQueryFailed
	}
	if msg, ok := intentFallbacks[s.Intent]; ok && !s.Failed() {
		return msg
	}
	if s.Failed() {
		return fallbackError
	}
	return fallbackNoResponse
}

func responseConfidence(s *model.ConversationState) float64 {
	if s.QueryArtifact != nil {
		return s.QueryArtifact.Confidence
	}
	return s.IntentConfidence
}

func responseMetadata(s *model.ConversationState) map[string]any {
	meta := map[string]any{
		"conversation_id": s.ConversationID,
		"input_type":      string(s.DetectedInputType),
		"intent":          string(s.Intent),
		"stage":           string(s.Stage),
	}
	if s.QueryArtifact != nil {
		meta["sql"] = s.QueryArtifact.SQL
		meta["security_level"] = string(s.QueryArtifact.SecurityLevel)
		meta["complexity"] = string(s.QueryArtifact.Complexity)
	}
	if s.Failed() {
		meta["errors"] = s.Errors
	}
	return meta
}
