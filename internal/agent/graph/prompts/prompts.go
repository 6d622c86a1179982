package prompts

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/invoiceflow/assistant/internal/agent/model"
)

var errEmptyRender = errors.New("prompt render returned no messages")

//go:embed template/intent_prompt.txt
var intentSystemPrompt string

//go:embed template/entity_prompt.txt
var entitySystemPrompt string

//go:embed template/response_prompt.txt
var responseSystemPrompt string

// RenderIntentSystem renders the intent-classification system prompt.
func RenderIntentSystem(ctx context.Context) (string, error) {
	return renderSystem(ctx, intentSystemPrompt)
}

// RenderEntitySystem renders the invoice-entity-extraction system prompt.
func RenderEntitySystem(ctx context.Context) (string, error) {
	return renderSystem(ctx, entitySystemPrompt)
}

// response modes select the instruction block for the formatter model
var responseModeInstructions = map[model.IntentType]string{
	model.IntentGreeting: `The user greeted you. Greet back warmly in one or two sentences and mention you can answer questions about their invoices or record new ones.`,
	model.IntentGeneral: `Answer the user's question helpfully. If it is unrelated to invoices, answer briefly and remind them what you can do with invoices.`,
	model.IntentInvoiceQuery: `The user asked about their stored invoices. Summarise the query results below in natural language. If the result set is empty, say no matching invoices were found.`,
	model.IntentInvoiceCreator: `The user is dictating a new invoice. Confirm the extracted fields below back to them and ask for any obviously missing field (vendor, date or total amount).`,
	model.IntentUnknown: `You could not determine what the user wants. Ask one short clarifying question and list what you can help with.`,
}

// RenderResponseSystem renders the response-formatter system prompt for
// the given intent.
func RenderResponseSystem(ctx context.Context, intent model.IntentType) (string, error) {
	instructions, ok := responseModeInstructions[intent]
	if !ok {
		instructions = responseModeInstructions[model.IntentUnknown]
	}
	content := strings.NewReplacer(
		"{mode}", string(intent),
		"{mode_instructions}", instructions,
	).Replace(responseSystemPrompt)
	return renderSystem(ctx, content)
}
