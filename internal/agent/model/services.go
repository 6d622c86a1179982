package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// CompletionService is the boundary to the LLM provider. Implementations
// may return malformed, free-text, or fenced-code-block output; callers
// must tolerate all three.
type CompletionService interface {
	Complete(ctx context.Context, messages []*schema.Message) (*schema.Message, error)
}

// FileAnalyzer is the boundary to the document-understanding services
// (OCR, type detection, field extraction). Internals are out of core;
// the router only depends on the returned shapes.
type FileAnalyzer interface {
	// Validate decides whether the uploaded file looks like an invoice.
	Validate(ctx context.Context, file *FileInput) (*FileValidation, error)

	// Extract pulls structured invoice data out of a validated file.
	Extract(ctx context.Context, file *FileInput) (map[string]any, error)
}

// QueryExecutor runs a sanitized, tenant-scoped statement against the
// shared relational store. The core never builds one; it is injected.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string, tenantID string) ([]map[string]any, error)
}
