package conversations

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/invoiceflow/assistant/internal/agent/model"
)

type memoryRepo struct {
	messages map[string][]*schema.Message
	failLoad bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{messages: map[string][]*schema.Message{}}
}

func (m *memoryRepo) AddMessage(ctx context.Context, conversationID string, message *schema.Message) error {
	m.messages[conversationID] = append(m.messages[conversationID], message)
	return nil
}

func (m *memoryRepo) LoadHistory(ctx context.Context, conversationID string) (*model.ConversationHistory, error) {
	if m.failLoad {
		return nil, fmt.Errorf("store unavailable")
	}
	return &model.ConversationHistory{
		ConversationID: conversationID,
		Messages:       m.messages[conversationID],
	}, nil
}

func (m *memoryRepo) ClearHistory(ctx context.Context, conversationID string) error {
	delete(m.messages, conversationID)
	return nil
}

func (m *memoryRepo) GetMessageCount(ctx context.Context, conversationID string) (int, error) {
	return len(m.messages[conversationID]), nil
}

func managerConfig(maxTurns int) model.ConversationConfig {
	var cfg model.ConversationConfig
	cfg.History.MaxTurns = maxTurns
	return cfg
}

func TestLoadContextBoundsHistory(t *testing.T) {
	repo := newMemoryRepo()
	mm := NewMessagesManager(repo, managerConfig(2))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := mm.SaveTurn(ctx, "c1", fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	history, err := mm.LoadContext(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	// two turns, two messages each
	if len(history) != 4 {
		t.Fatalf("history length = %d", len(history))
	}
	if history[0].Content != "question 3" {
		t.Fatalf("oldest kept message = %q", history[0].Content)
	}
	if history[3].Content != "answer 4" {
		t.Fatalf("newest message = %q", history[3].Content)
	}
}

func TestSaveTurnWritesUserThenAssistant(t *testing.T) {
	repo := newMemoryRepo()
	mm := NewMessagesManager(repo, managerConfig(5))
	ctx := context.Background()

	if err := mm.SaveTurn(ctx, "c1", "hello", "hi there"); err != nil {
		t.Fatal(err)
	}

	msgs := repo.messages["c1"]
	if len(msgs) != 2 {
		t.Fatalf("message count = %d", len(msgs))
	}
	if msgs[0].Role != schema.User || msgs[0].Content != "hello" {
		t.Fatalf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != schema.Assistant || msgs[1].Content != "hi there" {
		t.Fatalf("second message = %+v", msgs[1])
	}
}

func TestLoadContextPropagatesStoreFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.failLoad = true
	mm := NewMessagesManager(repo, managerConfig(5))

	if _, err := mm.LoadContext(context.Background(), "c1"); err == nil {
		t.Fatal("expected store failure to propagate")
	}
}
