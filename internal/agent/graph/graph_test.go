package graph

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/invoiceflow/assistant/internal/agent/model"
	"github.com/invoiceflow/assistant/internal/agent/sqlagent"
)

type scriptedCompletion struct {
	reply string
	err   error
	calls [][]*schema.Message
}

func (s *scriptedCompletion) Complete(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	s.calls = append(s.calls, messages)
	if s.err != nil {
		return nil, s.err
	}
	return schema.AssistantMessage(s.reply, nil), nil
}

type scriptedAnalyzer struct {
	validation *model.FileValidation
	document   map[string]any
	extracted  bool
}

func (s *scriptedAnalyzer) Validate(ctx context.Context, file *model.FileInput) (*model.FileValidation, error) {
	return s.validation, nil
}

func (s *scriptedAnalyzer) Extract(ctx context.Context, file *model.FileInput) (map[string]any, error) {
	s.extracted = true
	return s.document, nil
}

type scriptedExecutor struct {
	rows    []map[string]any
	lastSQL string
}

func (s *scriptedExecutor) Execute(ctx context.Context, sql string, tenantID string) ([]map[string]any, error) {
	s.lastSQL = sql
	return s.rows, nil
}

type testGraph struct {
	classifier *scriptedCompletion
	generator  *scriptedCompletion
	responder  *scriptedCompletion
	analyzer   *scriptedAnalyzer
	executor   *scriptedExecutor
}

func buildTestGraph(t *testing.T, tg *testGraph) func(context.Context, model.TurnInput) (*model.Response, error) {
	t.Helper()
	runnable, err := BuildGraph(context.Background(), &GraphConfig{
		Classifier:    tg.classifier,
		Responder:     tg.responder,
		Compiler:      sqlagent.NewCompiler(tg.generator, "tables: invoices(user_id, vendor, total)"),
		FileAnalyzer:  tg.analyzer,
		QueryExecutor: tg.executor,
	})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return func(ctx context.Context, in model.TurnInput) (*model.Response, error) {
		return runnable.Invoke(ctx, in)
	}
}

func TestGreetingTurn(t *testing.T) {
	tg := &testGraph{
		classifier: &scriptedCompletion{reply: `{"intent": "greeting", "confidence": 0.98}`},
		generator:  &scriptedCompletion{reply: "SELECT 1"},
		responder:  &scriptedCompletion{reply: "Hello! How can I help with your invoices?"},
		analyzer:   &scriptedAnalyzer{},
	}
	invoke := buildTestGraph(t, tg)

	resp, err := invoke(context.Background(), model.TurnInput{
		ConversationID: "c1",
		TenantID:       "7",
		Text:           "hi there",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Hello! How can I help with your invoices?" {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.Metadata["intent"] != "greeting" {
		t.Fatalf("intent = %v", resp.Metadata["intent"])
	}
	if _, ok := resp.Metadata["sql"]; ok {
		t.Fatal("greeting turn produced a query artifact")
	}
	if len(tg.generator.calls) != 0 {
		t.Fatal("generator invoked on a greeting turn")
	}
}

func TestQueryTurnCompilesExecutesAndFormats(t *testing.T) {
	tg := &testGraph{
		classifier: &scriptedCompletion{reply: `{"intent": "invoice_query", "confidence": 0.9}`},
		generator:  &scriptedCompletion{reply: "```sql\nSELECT vendor, total FROM invoices\n```"},
		responder:  &scriptedCompletion{reply: "You spent $99.90 at Amazon."},
		analyzer:   &scriptedAnalyzer{},
		executor:   &scriptedExecutor{rows: []map[string]any{{"vendor": "Amazon", "total": 99.90}}},
	}
	invoke := buildTestGraph(t, tg)

	resp, err := invoke(context.Background(), model.TurnInput{
		ConversationID: "c1",
		TenantID:       "7",
		Text:           "how much did I spend at Amazon",
	})
	if err != nil {
		t.Fatal(err)
	}

	wantSQL := "SELECT vendor, total FROM invoices WHERE " + sqlagent.TenantFilter
	if resp.Metadata["sql"] != wantSQL {
		t.Fatalf("sql = %v", resp.Metadata["sql"])
	}
	if resp.Metadata["security_level"] != string(model.SecureAfterModification) {
		t.Fatalf("security_level = %v", resp.Metadata["security_level"])
	}
	if tg.executor.lastSQL != wantSQL {
		t.Fatalf("executor received %q", tg.executor.lastSQL)
	}

	// the formatter must see the query results
	last := tg.responder.calls[len(tg.responder.calls)-1]
	userMsg := last[len(last)-1]
	if !strings.Contains(userMsg.Content, "Query results") || !strings.Contains(userMsg.Content, "Amazon") {
		t.Fatalf("formatter context missing results: %q", userMsg.Content)
	}
	if resp.Content != "You spent $99.90 at Amazon." {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestUnsafeStatementNeverYieldsArtifact(t *testing.T) {
	tg := &testGraph{
		classifier: &scriptedCompletion{reply: `{"intent": "invoice_query", "confidence": 0.9}`},
		generator:  &scriptedCompletion{reply: "DROP TABLE invoices"},
		responder:  &scriptedCompletion{reply: ""},
		analyzer:   &scriptedAnalyzer{},
		executor:   &scriptedExecutor{},
	}
	invoke := buildTestGraph(t, tg)

	resp, err := invoke(context.Background(), model.TurnInput{
		ConversationID: "c1",
		TenantID:       "7",
		Text:           "show everything",
	})
	if err != nil {
		t.Fatalf("run must survive an unsafe statement: %v", err)
	}
	if _, ok := resp.Metadata["sql"]; ok {
		t.Fatal("unsafe statement leaked a query artifact")
	}
	if tg.executor.lastSQL != "" {
		t.Fatalf("rejected statement was executed: %q", tg.executor.lastSQL)
	}
	if _, ok := resp.Metadata["errors"]; !ok {
		t.Fatal("compilation failure not recorded")
	}
	if resp.Content == "" {
		t.Fatal("user left without a reply")
	}
}

func TestInvalidImageRoutesAroundExtraction(t *testing.T) {
	tg := &testGraph{
		classifier: &scriptedCompletion{reply: `{"intent": "greeting"}`},
		generator:  &scriptedCompletion{reply: "SELECT 1"},
		responder:  &scriptedCompletion{reply: ""},
		analyzer:   &scriptedAnalyzer{validation: &model.FileValidation{IsValid: false, Reason: "not an invoice"}},
	}
	invoke := buildTestGraph(t, tg)

	resp, err := invoke(context.Background(), model.TurnInput{
		ConversationID: "c1",
		TenantID:       "7",
		File:           &model.FileInput{Name: "photo.png", Content: []byte{0x89, 'P', 'N', 'G', 0x0D}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Metadata["input_type"] != "image" {
		t.Fatalf("input_type = %v", resp.Metadata["input_type"])
	}
	if tg.analyzer.extracted {
		t.Fatal("extraction ran on an invalid file")
	}
	if _, ok := resp.Metadata["sql"]; ok {
		t.Fatal("file turn produced a query artifact")
	}
	if len(tg.classifier.calls) != 0 {
		t.Fatal("intent classifier ran on a file turn")
	}
	if resp.Content == "" {
		t.Fatal("user left without a reply")
	}
}

func TestValidFileIsExtracted(t *testing.T) {
	tg := &testGraph{
		classifier: &scriptedCompletion{reply: `{"intent": "greeting"}`},
		generator:  &scriptedCompletion{reply: "SELECT 1"},
		responder:  &scriptedCompletion{reply: "Recorded your Office Depot invoice for $142.50."},
		analyzer: &scriptedAnalyzer{
			validation: &model.FileValidation{IsValid: true, Confidence: 0.95},
			document:   map[string]any{"vendor": "Office Depot", "total_amount": 142.50},
		},
	}
	invoke := buildTestGraph(t, tg)

	resp, err := invoke(context.Background(), model.TurnInput{
		ConversationID: "c1",
		TenantID:       "7",
		File:           &model.FileInput{Name: "invoice.pdf", Content: []byte("%PDF-1.7")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !tg.analyzer.extracted {
		t.Fatal("valid file was not extracted")
	}
	last := tg.responder.calls[len(tg.responder.calls)-1]
	userMsg := last[len(last)-1]
	if !strings.Contains(userMsg.Content, "Office Depot") {
		t.Fatalf("formatter context missing document data: %q", userMsg.Content)
	}
	if resp.Content == "" {
		t.Fatal("user left without a reply")
	}
}

func TestClassifierFailureStillReachesFormatter(t *testing.T) {
	tg := &testGraph{
		classifier: &scriptedCompletion{err: fmt.Errorf("upstream timeout")},
		generator:  &scriptedCompletion{reply: "SELECT 1"},
		responder:  &scriptedCompletion{reply: ""},
		analyzer:   &scriptedAnalyzer{},
	}
	invoke := buildTestGraph(t, tg)

	resp, err := invoke(context.Background(), model.TurnInput{
		ConversationID: "c1",
		TenantID:       "7",
		Text:           "hello?",
	})
	if err != nil {
		t.Fatalf("run must survive a node failure: %v", err)
	}
	if resp.Metadata["intent"] != string(model.IntentUnknown) {
		t.Fatalf("intent = %v", resp.Metadata["intent"])
	}
	if _, ok := resp.Metadata["errors"]; !ok {
		t.Fatal("node failure not recorded")
	}
	if resp.Content == "" {
		t.Fatal("user left without a reply")
	}
}

func TestConversationIDSynthesizedWhenMissing(t *testing.T) {
	tg := &testGraph{
		classifier: &scriptedCompletion{reply: `{"intent": "greeting", "confidence": 1}`},
		generator:  &scriptedCompletion{reply: "SELECT 1"},
		responder:  &scriptedCompletion{reply: "Hi!"},
		analyzer:   &scriptedAnalyzer{},
	}
	invoke := buildTestGraph(t, tg)

	resp, err := invoke(context.Background(), model.TurnInput{
		TenantID: "7",
		Text:     "hi",
	})
	if err != nil {
		t.Fatal(err)
	}
	id, _ := resp.Metadata["conversation_id"].(string)
	if id == "" {
		t.Fatal("conversation id not synthesized")
	}
}
