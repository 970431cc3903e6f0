package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chative-food/server/internal/agent/model"
	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
)

const phone = "+919876543210"

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func exerciseConversation(t *testing.T, r model.ConversationRepository) {
	ctx := context.Background()

	h, err := r.LoadHistory(ctx, phone)
	require.NoError(t, err)
	assert.Empty(t, h.Messages)

	require.NoError(t, r.AddMessage(ctx, phone, schema.SystemMessage("you are a food assistant")))
	require.NoError(t, r.AddMessage(ctx, phone, schema.UserMessage("hi")))
	require.NoError(t, r.AddMessage(ctx, phone, &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID:       "call_1",
			Function: schema.FunctionCall{Name: "getUser", Arguments: `{"phone_number":"+919876543210"}`},
		}},
	}))
	require.NoError(t, r.AddMessage(ctx, phone, &schema.Message{Role: schema.Tool, ToolCallID: "call_1", Content: `{"found":true}`}))

	n, err := r.GetMessageCount(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	h, err = r.LoadHistory(ctx, phone)
	require.NoError(t, err)
	require.Len(t, h.Messages, 4)
	assert.Equal(t, schema.System, h.Messages[0].Role)
	assert.Equal(t, "hi", h.Messages[1].Content)
	assert.Equal(t, "getUser", h.Messages[2].ToolCalls[0].Function.Name)
	assert.Equal(t, "call_1", h.Messages[3].ToolCallID)

	other, err := r.GetMessageCount(ctx, "+911111111111")
	require.NoError(t, err)
	assert.Zero(t, other)

	require.NoError(t, r.ClearHistory(ctx, phone))
	n, err = r.GetMessageCount(ctx, phone)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisConversationRepository(t *testing.T) {
	_, rdb := newRedis(t)
	exerciseConversation(t, NewRedisConversationRepository(rdb, time.Minute))
}

func TestMemoryConversationRepository(t *testing.T) {
	exerciseConversation(t, NewMemoryConversationRepository(time.Minute))
}

func TestRedisConversationExpires(t *testing.T) {
	mr, rdb := newRedis(t)
	r := NewRedisConversationRepository(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, r.AddMessage(ctx, phone, schema.UserMessage("hi")))
	mr.FastForward(30 * time.Second)
	require.NoError(t, r.AddMessage(ctx, phone, schema.UserMessage("again")))
	mr.FastForward(45 * time.Second)

	n, err := r.GetMessageCount(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "ttl is refreshed on every append")

	mr.FastForward(2 * time.Minute)
	n, err = r.GetMessageCount(ctx, phone)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryConversationExpires(t *testing.T) {
	r := NewMemoryConversationRepository(time.Minute)
	now := time.Now()
	r.m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, r.AddMessage(ctx, phone, schema.UserMessage("hi")))
	now = now.Add(2 * time.Minute)

	h, err := r.LoadHistory(ctx, phone)
	require.NoError(t, err)
	assert.Empty(t, h.Messages)
}

func exerciseDrafts(t *testing.T, r model.DraftRepository) {
	ctx := context.Background()

	_, err := r.Get(ctx, phone)
	assert.ErrorIs(t, err, errx.ErrNotFound)

	d := &domain.DraftOrder{
		Phone:       phone,
		User:        domain.User{Name: "Asha", PhoneNumber: phone},
		Items:       []domain.DishDetail{{DishName: "Idli", Quantity: 2, Price: 40}},
		TotalAmount: 80,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, r.Put(ctx, d))

	got, err := r.Get(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.User.Name)
	require.Len(t, got.Items, 1)
	assert.InDelta(t, 80.0, got.TotalAmount, 1e-9)

	got.Items[0].Quantity = 10
	again, err := r.Get(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Items[0].Quantity)

	require.NoError(t, r.Delete(ctx, phone))
	_, err = r.Get(ctx, phone)
	assert.ErrorIs(t, err, errx.ErrNotFound)
	require.NoError(t, r.Delete(ctx, phone))
}

func TestRedisDraftRepository(t *testing.T) {
	_, rdb := newRedis(t)
	exerciseDrafts(t, NewRedisDraftRepository(rdb, time.Hour))
}

func TestMemoryDraftRepository(t *testing.T) {
	exerciseDrafts(t, NewMemoryDraftRepository(time.Hour))
}

func TestRedisDraftExpires(t *testing.T) {
	mr, rdb := newRedis(t)
	r := NewRedisDraftRepository(rdb, time.Hour)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, &domain.DraftOrder{Phone: phone}))
	mr.FastForward(61 * time.Minute)

	_, err := r.Get(ctx, phone)
	assert.ErrorIs(t, err, errx.ErrNotFound)
}
