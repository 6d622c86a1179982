package conversations

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/invoiceflow/assistant/internal/agent/model"
	logx "github.com/invoiceflow/assistant/pkg/logger"
)

// MessagesManager mediates between the workflow and the conversation
// repository: the engine reads history exactly once at turn start and
// the runner writes the finished turn back after the terminal node.
type MessagesManager struct {
	conversationRepo model.ConversationRepository
	maxTurns         int
}

func NewMessagesManager(conversationRepo model.ConversationRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		conversationRepo: conversationRepo,
		maxTurns:         config.History.MaxTurns,
	}
}

// LoadContext returns the most recent conversation messages, bounded by
// the configured turn window.
func (m *MessagesManager) LoadContext(ctx context.Context, conversationID string) ([]*schema.Message, error) {
	history, err := m.conversationRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return trimTail(history.Messages, m.maxTurns*2), nil
}

// SaveTurn persists the user message and the assistant reply for one
// completed turn.
func (m *MessagesManager) SaveTurn(ctx context.Context, conversationID, userText, assistantText string) error {
	if err := m.conversationRepo.AddMessage(ctx, conversationID, schema.UserMessage(userText)); err != nil {
		return err
	}
	if err := m.conversationRepo.AddMessage(ctx, conversationID, schema.AssistantMessage(assistantText, nil)); err != nil {
		return err
	}
	logx.Debug().Str("conversation_id", conversationID).Msg("saved turn to conversation history")
	return nil
}

func trimTail(messages []*schema.Message, max int) []*schema.Message {
	if max <= 0 || len(messages) <= max {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-max:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
