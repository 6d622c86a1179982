package model

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// InputType is the detected shape of a user turn.
type InputType string

const (
	InputText    InputType = "text"
	InputImage   InputType = "image"
	InputPdf     InputType = "pdf"
	InputExcel   InputType = "excel"
	InputCsv     InputType = "csv"
	InputUnknown InputType = "unknown"
)

// IntentType is the classified purpose of a text turn.
type IntentType string

const (
	IntentGreeting       IntentType = "greeting"
	IntentGeneral        IntentType = "general"
	IntentInvoiceQuery   IntentType = "invoice_query"
	IntentInvoiceCreator IntentType = "invoice_creator"
	IntentUnknown        IntentType = "unknown"
)

// ParseIntent normalises free-form classifier output into a known intent.
// Anything unrecognised collapses to IntentUnknown.
func ParseIntent(v string) IntentType {
	switch IntentType(v) {
	case IntentGreeting, IntentGeneral, IntentInvoiceQuery, IntentInvoiceCreator:
		return IntentType(v)
	default:
		return IntentUnknown
	}
}

// SecurityLevel records how a generated statement achieved tenant isolation.
type SecurityLevel string

const (
	// Secure means the statement already carried a tenant filter, or only
	// touches tenant-agnostic lookup tables.
	Secure SecurityLevel = "secure"
	// SecureAfterModification means a tenant filter was injected.
	SecureAfterModification SecurityLevel = "secure_after_modification"
	// RequiresVerification means the statement had no recognisable
	// SELECT/FROM shape, so isolation could not be enforced.
	RequiresVerification SecurityLevel = "requires_verification"
)

// Complexity is the coarse structural bucket of a generated statement.
type Complexity string

const (
	Simple   Complexity = "simple"
	Moderate Complexity = "moderate"
	Complex  Complexity = "complex"
)

// Stage tracks workflow progress. Informational only; routing never
// branches on it.
type Stage string

const (
	StageInitial            Stage = "initial"
	StageIntentDetermined   Stage = "intent_determined"
	StageConvertingToSQL    Stage = "converting_to_sql"
	StageSQLComplete        Stage = "sql_conversion_complete"
	StageSQLExecuted        Stage = "sql_execution_complete"
	StageFileValidated      Stage = "file_validated"
	StageDataExtraction     Stage = "data_extraction"
	StageResponseFormatting Stage = "response_formatting"
	StageCompleted          Stage = "completed"
	StageError              Stage = "error"
)

// FileInput describes an uploaded document.
type FileInput struct {
	Path         string
	Name         string
	DeclaredType string // MIME type or extension hint supplied by the caller
	Content      []byte
}

// TurnInput is the public input for one engine run.
type TurnInput struct {
	ConversationID string `json:"conversation_id"`
	TenantID       string `json:"tenant_id"`
	Text           string `json:"text"`
	File           *FileInput
}

// FileValidation is the FileValidator node's verdict.
type FileValidation struct {
	IsValid    bool    `json:"is_valid"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// QueryArtifact is produced exclusively by the SQL compiler. It is only
// ever non-nil when the turn's intent is IntentInvoiceQuery.
type QueryArtifact struct {
	SQL           string        `json:"sql"`
	RawSQL        string        `json:"raw_sql"`
	SecurityLevel SecurityLevel `json:"security_level"`
	Complexity    Complexity    `json:"complexity"`
	Confidence    float64       `json:"confidence"`
}

// Response is the terminal output of a turn.
type Response struct {
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Confidence float64        `json:"confidence"`
}

// ConversationState is the unit of work threaded through the workflow
// graph. It is created per turn, owned by exactly one engine run, and
// discarded after the terminal node reads its output; history
// persistence is the conversation repository's job, not the engine's.
type ConversationState struct {
	ConversationID string
	TenantID       string

	Text string
	File *FileInput

	DetectedInputType InputType
	Intent            IntentType
	IntentConfidence  float64

	FileValidation    *FileValidation
	ExtractedEntities map[string]any
	ExtractedDocument map[string]any

	QueryArtifact *QueryArtifact
	QueryResults  []map[string]any

	// History is loaded once at turn start and read-only afterwards.
	History []*schema.Message

	// Errors accumulate node diagnostics; they never abort the turn.
	Errors []string
	Stage  Stage

	Response *Response
}

// NewConversationState seeds a fresh state for one turn.
func NewConversationState(in TurnInput, history []*schema.Message) *ConversationState {
	return &ConversationState{
		ConversationID:    in.ConversationID,
		TenantID:          in.TenantID,
		Text:              in.Text,
		File:              in.File,
		DetectedInputType: InputUnknown,
		Intent:            IntentUnknown,
		History:           history,
		Stage:             StageInitial,
	}
}

// RecordError appends a node-scoped diagnostic.
func (s *ConversationState) RecordError(node string, err error) {
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", node, err))
}

// Failed reports whether any node recorded an error this turn.
func (s *ConversationState) Failed() bool {
	return len(s.Errors) > 0
}
