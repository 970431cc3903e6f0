package model

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/chative-food/server/internal/domain"
)

type ConversationRepository interface {
	// AddMessage adds a message to the conversation history for the given conversation
	AddMessage(ctx context.Context, conversationID string, message *schema.Message) error

	// LoadHistory retrieves the conversation history for a conversation
	LoadHistory(ctx context.Context, conversationID string) (*ConversationHistory, error)

	// ClearHistory removes all conversation history for a conversation
	ClearHistory(ctx context.Context, conversationID string) error

	// GetMessageCount returns the number of messages in the conversation
	GetMessageCount(ctx context.Context, conversationID string) (int, error)
}

// ConversationHistory represents loaded conversation data with metadata.
type ConversationHistory struct {
	ConversationID string
	Messages       []*schema.Message
}

// DraftRepository holds at most one draft order per phone number.
type DraftRepository interface {
	// Get returns errx.ErrNotFound when no live draft exists.
	Get(ctx context.Context, phone string) (*domain.DraftOrder, error)
	Put(ctx context.Context, draft *domain.DraftOrder) error
	Delete(ctx context.Context, phone string) error
}
