package nodes

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/invoiceflow/assistant/internal/agent/model"
)

type stubCompletion struct {
	reply string
	err   error
}

func (s *stubCompletion) Complete(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return schema.AssistantMessage(s.reply, nil), nil
}

func TestValidateEmptyFile(t *testing.T) {
	a := NewLLMFileAnalyzer(&stubCompletion{})
	v, err := a.Validate(context.Background(), &model.FileInput{Name: "empty.csv"})
	if err != nil {
		t.Fatal(err)
	}
	if v.IsValid {
		t.Fatal("empty file validated")
	}
}

func TestValidateBinaryFilePassesStructurally(t *testing.T) {
	a := NewLLMFileAnalyzer(&stubCompletion{err: fmt.Errorf("must not be called")})
	v, err := a.Validate(context.Background(), &model.FileInput{
		Name:    "invoice.pdf",
		Content: []byte("%PDF-1.7 body"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsValid {
		t.Fatalf("structurally sound pdf rejected: %+v", v)
	}
}

func TestValidateTextualFileUsesModel(t *testing.T) {
	a := NewLLMFileAnalyzer(&stubCompletion{reply: `{"is_valid": true, "confidence": 0.88, "reason": "invoice header present"}`})
	v, err := a.Validate(context.Background(), &model.FileInput{
		Name:    "expenses.csv",
		Content: []byte("vendor,total\nAmazon,99.90\n"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsValid || v.Confidence != 0.88 {
		t.Fatalf("got %+v", v)
	}
}

func TestValidateGarbageVerdictIsInvalid(t *testing.T) {
	a := NewLLMFileAnalyzer(&stubCompletion{reply: "looks fine to me"})
	v, err := a.Validate(context.Background(), &model.FileInput{
		Name:    "expenses.csv",
		Content: []byte("vendor,total\n"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.IsValid {
		t.Fatal("unparseable verdict treated as valid")
	}
}

func TestExtractTextualFile(t *testing.T) {
	a := NewLLMFileAnalyzer(&stubCompletion{reply: "```json\n{\"vendor\": \"Amazon\", \"total_amount\": 99.9}\n```"})
	fields, err := a.Extract(context.Background(), &model.FileInput{
		Name:    "expenses.csv",
		Content: []byte("vendor,total\nAmazon,99.90\n"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if fields["vendor"] != "Amazon" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestExtractBinaryFileRequiresOCR(t *testing.T) {
	a := NewLLMFileAnalyzer(&stubCompletion{reply: "{}"})
	if _, err := a.Extract(context.Background(), &model.FileInput{
		Name:    "photo.png",
		Content: []byte{0x89, 'P', 'N', 'G'},
	}); err == nil {
		t.Fatal("binary extraction should fail without OCR")
	}
}
