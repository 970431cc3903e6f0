package conversations

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/chative-food/server/internal/agent/model"
	logx "github.com/chative-food/server/pkg/logger"
)

// SeedFunc renders the system messages written at the start of a new conversation.
type SeedFunc func(ctx context.Context) ([]*schema.Message, error)

type MessagesManager struct {
	conversationRepo model.ConversationRepository
	maxHistory       int
}

func NewMessagesManager(conversationRepo model.ConversationRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		conversationRepo: conversationRepo,
		maxHistory:       config.MaxHistory,
	}
}

// StartTurn seeds the system messages on first contact, appends the user
// message and returns the full stored history.
func (cm *MessagesManager) StartTurn(ctx context.Context, conversationID, query string, seed SeedFunc) ([]*schema.Message, error) {
	count, err := cm.conversationRepo.GetMessageCount(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if count == 0 && seed != nil {
		system, err := seed(ctx)
		if err != nil {
			return nil, err
		}
		for _, msg := range system {
			if err := cm.conversationRepo.AddMessage(ctx, conversationID, msg); err != nil {
				return nil, err
			}
		}
		logx.Debug().Str("conversation_id", conversationID).Int("system_messages", len(system)).Msg("seeded new conversation")
	}

	if err := cm.conversationRepo.AddMessage(ctx, conversationID, schema.UserMessage(query)); err != nil {
		return nil, err
	}

	history, err := cm.conversationRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return history.Messages, nil
}

// Save appends one message produced during the turn.
func (cm *MessagesManager) Save(ctx context.Context, conversationID string, msg *schema.Message) error {
	return cm.conversationRepo.AddMessage(ctx, conversationID, msg)
}

// ProviderView is the message list sent to the model: system messages plus the
// most recent tail, with tool calls that never got a result removed.
func (cm *MessagesManager) ProviderView(history []*schema.Message) []*schema.Message {
	return window(DropDanglingToolCalls(history), cm.maxHistory)
}

// DropDanglingToolCalls removes assistant tool calls that are not directly
// followed by a result for each call, and tool results that do not directly
// follow their call. Call ids repeat across turns, so pairing is positional.
// An assistant message that also carried text keeps the text.
func DropDanglingToolCalls(messages []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for i := 0; i < len(messages); i++ {
		msg := messages[i]
		if msg == nil {
			continue
		}
		switch {
		case msg.Role == schema.Assistant && len(msg.ToolCalls) > 0:
			j := i + 1
			for j < len(messages) && messages[j] != nil && messages[j].Role == schema.Tool {
				j++
			}
			results := messages[i+1 : j]
			if answersAll(msg.ToolCalls, results) {
				out = append(out, msg)
				out = append(out, results...)
			} else if strings.TrimSpace(msg.Content) != "" {
				out = append(out, schema.AssistantMessage(msg.Content, nil))
			}
			i = j - 1
		case msg.Role == schema.Tool:
			// orphan result
		default:
			out = append(out, msg)
		}
	}
	return out
}

func answersAll(calls []schema.ToolCall, results []*schema.Message) bool {
	if len(results) != len(calls) {
		return false
	}
	pending := make(map[string]int, len(calls))
	for _, tc := range calls {
		pending[tc.ID]++
	}
	for _, res := range results {
		if pending[res.ToolCallID] == 0 {
			return false
		}
		pending[res.ToolCallID]--
	}
	return true
}

// window keeps every system message and the last maxTurns others. A tail that
// would open on a tool result is advanced past it.
func window(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 {
		return messages
	}

	var system, rest []*schema.Message
	for _, msg := range messages {
		if msg.Role == schema.System {
			system = append(system, msg)
			continue
		}
		rest = append(rest, msg)
	}

	tail := trimTail(rest, maxTurns)
	for len(tail) > 0 && tail[0].Role == schema.Tool {
		tail = tail[1:]
	}
	return append(system, tail...)
}

func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
