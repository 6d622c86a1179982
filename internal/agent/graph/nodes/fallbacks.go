package nodes

import "github.com/invoiceflow/assistant/internal/agent/model"

// Deterministic replies used when the response model is unavailable or
// a node failed; the user always gets an answer, degraded if necessary.
const (
	fallbackError      = "Sorry, I encountered an unexpected error. Please try again or contact support if the issue persists."
	fallbackNoResponse = "I wasn't able to generate a response. Please try asking in a different way."

	fallbackInvalidFile       = "The file you've uploaded doesn't appear to be a valid invoice. Please try uploading a clear image of an invoice or receipt."
	fallbackExtractionFailed  = "I couldn't extract information from this file. Please try uploading a clearer image or a different invoice."
	fallbackUnsupportedFormat = "Sorry, this file format is not supported. Please upload a PDF, image (JPG, PNG), Excel, or CSV file."

	fallbackQueryFailed = "I couldn't build a safe query for that question. Try rephrasing it, for example: \"Show my invoices from last month\"."
)

var intentFallbacks = map[model.IntentType]string{
	model.IntentGreeting: "Hello! I'm your Invoice Assistant. Ready to help you manage your business finances. What would you like to know about your expenses today?",
	model.IntentGeneral:  "I'm your AI-powered Invoice Assistant! I can extract data from receipts, track expenses and answer questions like \"What did I spend at Amazon last month?\". You can also upload a receipt to get started.",
	model.IntentUnknown:  "I'm not sure what you're asking for. You can try rephrasing your question or ask for help to see what I can do.",
}
