package repo

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/chative-food/server/internal/agent/model"
	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
)

// ttlMap is a mutex-guarded map whose entries expire lazily on access.
type ttlMap[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]ttlEntry[V]
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func newTTLMap[V any](ttl time.Duration) *ttlMap[V] {
	return &ttlMap[V]{ttl: ttl, now: time.Now, entries: make(map[string]ttlEntry[V])}
}

// get must be called with mu held.
func (m *ttlMap[V]) get(key string) (V, bool) {
	e, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if m.ttl > 0 && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// put must be called with mu held.
func (m *ttlMap[V]) put(key string, v V) {
	m.entries[key] = ttlEntry[V]{value: v, expiresAt: m.now().Add(m.ttl)}
}

// MemoryConversationRepository keeps histories in process memory. Messages
// are stored JSON-encoded so callers never share pointers with the store.
type MemoryConversationRepository struct {
	m *ttlMap[[][]byte]
}

func NewMemoryConversationRepository(ttl time.Duration) *MemoryConversationRepository {
	return &MemoryConversationRepository{m: newTTLMap[[][]byte](ttl)}
}

func (r *MemoryConversationRepository) AddMessage(ctx context.Context, conversationID string, message *schema.Message) error {
	b, err := json.Marshal(message)
	if err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	rows, _ := r.m.get(conversationID)
	r.m.put(conversationID, append(rows, b))
	return nil
}

func (r *MemoryConversationRepository) LoadHistory(ctx context.Context, conversationID string) (*model.ConversationHistory, error) {
	r.m.mu.Lock()
	rows, _ := r.m.get(conversationID)
	rows = append([][]byte(nil), rows...)
	r.m.mu.Unlock()

	msgs := make([]*schema.Message, 0, len(rows))
	for _, b := range rows {
		var msg schema.Message
		if err := json.Unmarshal(b, &msg); err != nil {
			return nil, err
		}
		msgs = append(msgs, &msg)
	}
	return &model.ConversationHistory{ConversationID: conversationID, Messages: msgs}, nil
}

func (r *MemoryConversationRepository) ClearHistory(ctx context.Context, conversationID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.entries, conversationID)
	return nil
}

func (r *MemoryConversationRepository) GetMessageCount(ctx context.Context, conversationID string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rows, _ := r.m.get(conversationID)
	return len(rows), nil
}

type MemoryDraftRepository struct {
	m *ttlMap[*domain.DraftOrder]
}

func NewMemoryDraftRepository(ttl time.Duration) *MemoryDraftRepository {
	return &MemoryDraftRepository{m: newTTLMap[*domain.DraftOrder](ttl)}
}

func (r *MemoryDraftRepository) Get(ctx context.Context, phone string) (*domain.DraftOrder, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.get(phone)
	if !ok {
		return nil, errx.NotFound("no draft for %s", phone)
	}
	return d.Clone(), nil
}

func (r *MemoryDraftRepository) Put(ctx context.Context, draft *domain.DraftOrder) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.put(draft.Phone, draft.Clone())
	return nil
}

func (r *MemoryDraftRepository) Delete(ctx context.Context, phone string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.entries, phone)
	return nil
}

var (
	_ model.ConversationRepository = (*MemoryConversationRepository)(nil)
	_ model.DraftRepository        = (*MemoryDraftRepository)(nil)
)
