package nodes

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/invoiceflow/assistant/internal/agent/graph/parsers"
	"github.com/invoiceflow/assistant/internal/agent/model"
	logx "github.com/invoiceflow/assistant/pkg/logger"
)

// maxAnalyzerBytes bounds how much file content is sent to the model.
const maxAnalyzerBytes = 16 * 1024

const fileValidationPrompt = `You are a document validator for an invoice assistant.
Decide whether the document content below is an invoice or a receipt.
Respond with a JSON object only, no prose:
{"is_valid": true|false, "confidence": 0.0-1.0, "reason": "short reason"}`

const fileExtractionPrompt = `You are a document data extractor for an invoice assistant.
Extract invoice fields from the document content below.
Respond with a JSON object only, no prose. Use these keys when present:
"vendor", "invoice_number", "invoice_date", "due_date", "total_amount",
"currency", "tax_amount", "line_items" (array of {"description","quantity","unit_price","amount"}).
Omit keys you cannot find. Do not invent values.`

// LLMFileAnalyzer validates and extracts uploaded documents. Textual
// formats (CSV, plain text) go through the completion service; binary
// formats are verified structurally against their declared type since
// OCR runs outside this service.
type LLMFileAnalyzer struct {
	llm model.CompletionService
}

func NewLLMFileAnalyzer(llm model.CompletionService) *LLMFileAnalyzer {
	return &LLMFileAnalyzer{llm: llm}
}

func (a *LLMFileAnalyzer) Validate(ctx context.Context, file *model.FileInput) (*model.FileValidation, error) {
	if file == nil || len(file.Content) == 0 {
		return &model.FileValidation{IsValid: false, Reason: "empty file"}, nil
	}

	detected := SniffFileType(file)
	if detected == model.InputUnknown {
		return &model.FileValidation{IsValid: false, Reason: "unrecognized file format"}, nil
	}

	if detected == model.InputImage || detected == model.InputPdf || detected == model.InputExcel {
		// Binary formats cannot be read here; a structurally sound file
		// of a supported type passes, extraction happens downstream.
		return &model.FileValidation{IsValid: true, Confidence: 0.6, Reason: fmt.Sprintf("structurally valid %s file", detected)}, nil
	}

	out, err := a.llm.Complete(ctx, []*schema.Message{
		schema.SystemMessage(fileValidationPrompt),
		schema.UserMessage(textSample(file)),
	})
	if err != nil {
		return nil, fmt.Errorf("file validation completion: %w", err)
	}
	validation, err := parsers.ParseFileValidation(out.Content)
	if err != nil {
		logx.Warn().Err(err).Str("file", file.Name).Msg("unparseable file validation verdict, treating file as invalid")
		return validation, nil
	}
	return validation, nil
}

func (a *LLMFileAnalyzer) Extract(ctx context.Context, file *model.FileInput) (map[string]any, error) {
	if file == nil || len(file.Content) == 0 {
		return nil, fmt.Errorf("no file content to extract")
	}

	detected := SniffFileType(file)
	if detected == model.InputImage || detected == model.InputPdf || detected == model.InputExcel {
		return nil, fmt.Errorf("extraction for %s files requires the OCR pipeline", detected)
	}

	out, err := a.llm.Complete(ctx, []*schema.Message{
		schema.SystemMessage(fileExtractionPrompt),
		schema.UserMessage(textSample(file)),
	})
	if err != nil {
		return nil, fmt.Errorf("file extraction completion: %w", err)
	}
	fields, err := parsers.ParseEntityMap(out.Content)
	if err != nil {
		return nil, fmt.Errorf("parse extracted document: %w", err)
	}
	return fields, nil
}

func textSample(file *model.FileInput) string {
	content := file.Content
	if len(content) > maxAnalyzerBytes {
		content = content[:maxAnalyzerBytes]
	}
	return fmt.Sprintf("File name: %s\n\n%s", file.Name, string(content))
}

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G'}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pdfMagic  = []byte("%PDF")
	zipMagic  = []byte{'P', 'K', 0x03, 0x04} // xlsx is a zip container
)

// SniffFileType resolves the input type of an upload from its magic
// bytes, falling back to the declared MIME type or extension when the
// content is inconclusive (CSV has no signature).
func SniffFileType(file *model.FileInput) model.InputType {
	if file == nil {
		return model.InputUnknown
	}
	c := file.Content
	switch {
	case bytes.HasPrefix(c, pngMagic), bytes.HasPrefix(c, jpegMagic):
		return model.InputImage
	case bytes.HasPrefix(c, pdfMagic):
		return model.InputPdf
	case bytes.HasPrefix(c, zipMagic):
		return model.InputExcel
	}

	declared := strings.ToLower(strings.TrimSpace(file.DeclaredType))
	name := strings.ToLower(file.Name)
	switch {
	case strings.Contains(declared, "image/"), hasAnySuffix(name, ".png", ".jpg", ".jpeg"):
		return model.InputImage
	case strings.Contains(declared, "pdf"), strings.HasSuffix(name, ".pdf"):
		return model.InputPdf
	case strings.Contains(declared, "spreadsheet"), strings.Contains(declared, "excel"), hasAnySuffix(name, ".xlsx", ".xls"):
		return model.InputExcel
	case strings.Contains(declared, "csv"), strings.HasSuffix(name, ".csv"):
		return model.InputCsv
	}
	return model.InputUnknown
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
