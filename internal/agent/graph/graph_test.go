package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chative-food/server/internal/agent/draft"
	"github.com/chative-food/server/internal/agent/graph/tools"
	"github.com/chative-food/server/internal/agent/model"
	"github.com/chative-food/server/internal/agent/repo"
	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
	"github.com/chative-food/server/internal/payment"
	"github.com/chative-food/server/internal/store"
)

const phone = "+919589883539"

type step func(ctx context.Context, in []*schema.Message) (*schema.Message, error)

// scriptedModel replays one step per Generate call and records what it was sent.
type scriptedModel struct {
	mu     sync.Mutex
	steps  []step
	inputs [][]*schema.Message
	tools  []*schema.ToolInfo
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	if len(m.steps) == 0 {
		m.mu.Unlock()
		return nil, errors.New("script exhausted")
	}
	next := m.steps[0]
	m.steps = m.steps[1:]
	m.mu.Unlock()
	return next(ctx, input)
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	m.tools = tools
	return m, nil
}

func (m *scriptedModel) push(steps ...step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

func (m *scriptedModel) lastInput() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs[len(m.inputs)-1]
}

func reply(text string) step {
	return func(context.Context, []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage(text, nil), nil
	}
}

func callTool(id, name, args string) step {
	return func(context.Context, []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("", []schema.ToolCall{{
			ID:       id,
			Function: schema.FunctionCall{Name: name, Arguments: args},
		}}), nil
	}
}

func lastToolContent(in []*schema.Message) string {
	for i := len(in) - 1; i >= 0; i-- {
		if in[i].Role == schema.Tool {
			return in[i].Content
		}
	}
	return ""
}

type harness struct {
	runner        Runner
	model         *scriptedModel
	store         *store.Store
	conversations *repo.MemoryConversationRepository
	restaurantID  string
}

func newHarness(t *testing.T, mutate func(*model.ConversationConfig)) *harness {
	t.Helper()
	ctx := context.Background()

	s := store.NewMemory()
	require.NoError(t, s.Users.Save(ctx, &domain.User{
		Name:        "Priya",
		Email:       "priya@example.com",
		PhoneNumber: phone,
		Addresses:   []domain.Address{{Address: "12 MG Road", Tag: "home"}},
	}))
	pizzeria := &domain.Restaurant{
		Name:      "Pizza Palace",
		Address:   "Indiranagar",
		GooglePin: "https://maps.example/pp",
		Menu:      []domain.MenuItem{{Dish: "Margherita", PortionSize: "Medium", Price: 250}},
	}
	require.NoError(t, s.Restaurants.Save(ctx, pizzeria))

	drafts := draft.NewService(s, repo.NewMemoryDraftRepository(time.Hour), model.DraftConfig{ConfirmAttempts: 3})
	issuer := payment.NewIssuer(s.Orders, nil, payment.Config{VPA: "foodbot@upi", PayeeName: "FoodBot", RequireConfirmed: true, QRSize: 64})
	registry := tools.NewRegistry(tools.Deps{Store: s, Drafts: drafts, Payments: issuer})

	conv := model.ConversationConfig{FollowUp: true, TurnTimeout: 5 * time.Second, MaxHistory: 40}
	conv.Tools.MaxCalls = 1
	if mutate != nil {
		mutate(&conv)
	}

	cm := &scriptedModel{}
	conversations := repo.NewMemoryConversationRepository(time.Hour)
	runner, err := BuildResponseGraph(ctx, Config{
		ChatModel:        cm,
		ResponseModel:    model.ResponseModelConfig{Model: "gemini-2.5-flash"},
		ResponsePrompt:   model.ResponsePromptConfig{BusinessName: "FoodBot", City: "Bengaluru", Currency: "INR"},
		Conversation:     conv,
		ConversationRepo: conversations,
		Registry:         registry,
		Store:            s,
	})
	require.NoError(t, err)
	require.Len(t, cm.tools, 15)

	return &harness{runner: runner, model: cm, store: s, conversations: conversations, restaurantID: pizzeria.ID}
}

func (h *harness) turn(t *testing.T, query string) (*model.TurnResult, error) {
	t.Helper()
	return h.runner.Invoke(context.Background(), model.QueryInput{ConversationID: phone, Query: query})
}

func (h *harness) history(t *testing.T) []*schema.Message {
	t.Helper()
	hist, err := h.conversations.LoadHistory(context.Background(), phone)
	require.NoError(t, err)
	return hist.Messages
}

func TestPlainReplySeedsConversation(t *testing.T) {
	h := newHarness(t, nil)
	h.model.push(reply("Hi Priya! Hungry today?"))

	res, err := h.turn(t, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi Priya! Hungry today?", res.Reply)

	hist := h.history(t)
	require.Len(t, hist, 4)
	assert.Equal(t, schema.System, hist[0].Role)
	assert.Equal(t, schema.System, hist[1].Role)
	assert.Equal(t, "hello", hist[2].Content)
	assert.Equal(t, schema.Assistant, hist[3].Role)

	sent := h.model.lastInput()
	require.Len(t, sent, 3)
	assert.Equal(t, "hello", sent[2].Content)

	chats, err := h.store.Chats.Find(context.Background(), store.Filter{"phone": phone})
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "hello", chats[0].Message)
	assert.Equal(t, "Hi Priya! Hungry today?", chats[0].Reply)
}

func TestMargheritaOrderAcrossTurns(t *testing.T) {
	h := newHarness(t, nil)

	h.model.push(
		callTool("c1", tools.ToolInitiateOrder, fmt.Sprintf(`{"restaurant_id":%q}`, h.restaurantID)),
		reply("Started an order at Pizza Palace. What would you like?"),
	)
	res, err := h.turn(t, "I want to order from Pizza Palace")
	require.NoError(t, err)
	assert.Equal(t, "Started an order at Pizza Palace. What would you like?", res.Reply)

	h.model.push(
		callTool("c2", tools.ToolUpdateTempOrder, `{"selectedDishes":[{"dishName":"Margherita","quantity":2,"price":250}]}`),
		func(_ context.Context, in []*schema.Message) (*schema.Message, error) {
			var out struct {
				TotalAmount float64 `json:"total_amount"`
			}
			if err := json.Unmarshal([]byte(lastToolContent(in)), &out); err != nil {
				return nil, err
			}
			return schema.AssistantMessage(fmt.Sprintf("2 Margherita, total %.0f. Confirm?", out.TotalAmount), nil), nil
		},
	)
	res, err = h.turn(t, "2 margheritas please")
	require.NoError(t, err)
	assert.Equal(t, "2 Margherita, total 500. Confirm?", res.Reply)

	var orderID string
	h.model.push(
		callTool("c3", tools.ToolConfirmOrder, `{}`),
		func(_ context.Context, in []*schema.Message) (*schema.Message, error) {
			var out struct {
				OrderID string `json:"order_id"`
			}
			if err := json.Unmarshal([]byte(lastToolContent(in)), &out); err != nil {
				return nil, err
			}
			orderID = out.OrderID
			return schema.AssistantMessage("Confirmed! Order "+out.OrderID, nil), nil
		},
	)
	res, err = h.turn(t, "yes")
	require.NoError(t, err)
	require.NotEmpty(t, orderID)
	assert.Equal(t, "Confirmed! Order "+orderID, res.Reply)

	order, err := h.store.OrderByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, order.OrderDetails.Status)
	assert.InDelta(t, 500.0, order.OrderDetails.TotalAmount, 1e-9)
	assert.Equal(t, "Pizza Palace", order.RestaurantDetails.RestoName)

	h.model.push(
		callTool("c4", tools.ToolGeneratePaymentQR, fmt.Sprintf(`{"order_id":%q}`, orderID)),
		func(_ context.Context, in []*schema.Message) (*schema.Message, error) {
			var p payment.Payment
			if err := json.Unmarshal([]byte(lastToolContent(in)), &p); err != nil {
				return nil, err
			}
			if !strings.HasPrefix(p.QRCode, "data:image/png;base64,") {
				return nil, errors.New("missing qr code")
			}
			return schema.AssistantMessage("Scan to pay "+p.URI, nil), nil
		},
	)
	res, err = h.turn(t, "how do I pay?")
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "upi://pay?")
	assert.Contains(t, res.Reply, "am=500.00")

	// every call in history has exactly one result
	results := map[string]bool{}
	for _, m := range h.history(t) {
		if m.Role == schema.Tool {
			results[m.ToolCallID] = true
		}
	}
	assert.Equal(t, map[string]bool{"c1": true, "c2": true, "c3": true, "c4": true}, results)
}

func TestUnknownToolAbortsTurnAndStaysResumable(t *testing.T) {
	h := newHarness(t, nil)
	h.model.push(callTool("c1", "orderPizzaNow", `{}`))

	_, err := h.turn(t, "order me something")
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrUnknownTool)
	assert.Equal(t, 1, h.model.calls())

	hist := h.history(t)
	last := hist[len(hist)-1]
	require.Len(t, last.ToolCalls, 1)
	assert.Equal(t, "orderPizzaNow", last.ToolCalls[0].Function.Name)
	for _, m := range hist {
		assert.NotEqual(t, schema.Tool, m.Role)
	}

	h.model.push(reply("Sorry about that. What can I get you?"))
	res, err := h.turn(t, "hello?")
	require.NoError(t, err)
	assert.Equal(t, "Sorry about that. What can I get you?", res.Reply)
	for _, m := range h.model.lastInput() {
		assert.Empty(t, m.ToolCalls)
	}
}

func TestMalformedArgumentsAbortTurn(t *testing.T) {
	h := newHarness(t, nil)
	h.model.push(callTool("c1", tools.ToolUpdateTempOrder, `{"selectedDishes":[{"dishName":"Margherita","quantity":"two","price":250}]}`))

	_, err := h.turn(t, "two margheritas")
	assert.ErrorIs(t, err, errx.ErrMalformedArgs)

	for _, m := range h.history(t) {
		assert.NotEqual(t, schema.Tool, m.Role)
	}
}

// Gemini reuses the function name as the call id, so ids repeat across turns.
func TestAbortedCallWithReusedIDIsNotReplayed(t *testing.T) {
	h := newHarness(t, nil)
	h.model.push(callTool(tools.ToolGetUser, tools.ToolGetUser, `{}`), reply("You are registered, Priya."))
	_, err := h.turn(t, "am I registered?")
	require.NoError(t, err)

	h.model.push(callTool(tools.ToolGetUser, tools.ToolGetUser, "not json"))
	_, err = h.turn(t, "check again")
	require.ErrorIs(t, err, errx.ErrMalformedArgs)

	h.model.push(reply("Still here."))
	res, err := h.turn(t, "hello?")
	require.NoError(t, err)
	assert.Equal(t, "Still here.", res.Reply)

	sent := h.model.lastInput()
	for i, m := range sent {
		for _, tc := range m.ToolCalls {
			assert.NotEqual(t, "not json", tc.Function.Arguments)
		}
		if len(m.ToolCalls) > 0 {
			require.Less(t, i+1, len(sent))
			assert.Equal(t, schema.Tool, sent[i+1].Role, "tool call %d sent without its result", i)
		}
	}
}

func TestToolFailureBecomesFinalNote(t *testing.T) {
	h := newHarness(t, nil)
	h.model.push(callTool("c1", tools.ToolUpdateTempOrder, `{"selectedDishes":[{"dishName":"Margherita","quantity":1,"price":250}]}`))

	res, err := h.turn(t, "one margherita")
	require.NoError(t, err)
	assert.Equal(t, `Function "updateTempOrder" failed: no order initiated for user `+phone, res.Reply)
	assert.Equal(t, 1, h.model.calls())

	hist := h.history(t)
	assert.Equal(t, res.Reply, hist[len(hist)-1].Content)
	assert.Equal(t, schema.Assistant, hist[len(hist)-1].Role)
}

func TestSummaryModeSkipsFollowUp(t *testing.T) {
	h := newHarness(t, func(c *model.ConversationConfig) { c.FollowUp = false })
	h.model.push(callTool("c1", tools.ToolGetUser, `{}`))

	res, err := h.turn(t, "am I registered?")
	require.NoError(t, err)
	assert.Equal(t, `Function "getUser" executed successfully.`, res.Reply)
	assert.Equal(t, 1, h.model.calls())

	h.model.push(callTool("c2", tools.ToolInitiateOrder, `{}`))
	res, err = h.turn(t, "start an order")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Reply, `Function "initiateOrder" executed: `), res.Reply)
}

func TestFollowUpToolCallPastLimitIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.model.push(
		callTool("c1", tools.ToolGetUser, `{}`),
		callTool("c2", tools.ToolDeleteUser, `{}`),
	)

	res, err := h.turn(t, "who am I?")
	require.NoError(t, err)
	assert.Equal(t, `Function "getUser" executed successfully.`, res.Reply)
	assert.Equal(t, 2, h.model.calls())

	_, err = h.store.UserByPhone(context.Background(), phone)
	assert.NoError(t, err)
	for _, m := range h.history(t) {
		for _, tc := range m.ToolCalls {
			assert.NotEqual(t, tools.ToolDeleteUser, tc.Function.Name)
		}
	}
}

func TestOnlyFirstToolCallRunsAndMissingIDIsSynthesised(t *testing.T) {
	h := newHarness(t, nil)
	h.model.push(
		func(context.Context, []*schema.Message) (*schema.Message, error) {
			return schema.AssistantMessage("", []schema.ToolCall{
				{Function: schema.FunctionCall{Name: tools.ToolGetUser, Arguments: `{}`}},
				{Function: schema.FunctionCall{Name: tools.ToolDeleteUser, Arguments: `{}`}},
			}), nil
		},
		reply("You're registered, Priya."),
	)

	res, err := h.turn(t, "check me")
	require.NoError(t, err)
	assert.Equal(t, "You're registered, Priya.", res.Reply)

	_, err = h.store.UserByPhone(context.Background(), phone)
	require.NoError(t, err)

	var call *schema.Message
	var result *schema.Message
	for _, m := range h.history(t) {
		if len(m.ToolCalls) > 0 {
			call = m
		}
		if m.Role == schema.Tool {
			result = m
		}
	}
	require.NotNil(t, call)
	require.NotNil(t, result)
	require.Len(t, call.ToolCalls, 1)
	assert.Equal(t, "call_1", call.ToolCalls[0].ID)
	assert.Equal(t, "call_1", result.ToolCallID)
}

func TestProviderErrorAbortsTurn(t *testing.T) {
	h := newHarness(t, nil)
	h.model.push(func(context.Context, []*schema.Message) (*schema.Message, error) {
		return nil, errors.New("503 from upstream")
	})

	_, err := h.turn(t, "hello")
	assert.ErrorIs(t, err, errx.ErrProvider)
}

func TestTurnTimeoutIsProviderError(t *testing.T) {
	h := newHarness(t, func(c *model.ConversationConfig) { c.TurnTimeout = 50 * time.Millisecond })
	h.model.push(func(ctx context.Context, _ []*schema.Message) (*schema.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := h.turn(t, "hello")
	assert.ErrorIs(t, err, errx.ErrProvider)
}

func TestRejectsEmptyInput(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.runner.Invoke(context.Background(), model.QueryInput{ConversationID: phone, Query: "  "})
	assert.ErrorIs(t, err, errx.ErrValidation)
	_, err = h.runner.Invoke(context.Background(), model.QueryInput{Query: "hi"})
	assert.ErrorIs(t, err, errx.ErrValidation)
	assert.Equal(t, 0, h.model.calls())
}

func TestTurnsForOneUserDoNotOverlap(t *testing.T) {
	h := newHarness(t, nil)

	var inFlight, maxInFlight int32
	slow := func(context.Context, []*schema.Message) (*schema.Message, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return schema.AssistantMessage("ok", nil), nil
	}
	const turns = 5
	for i := 0; i < turns; i++ {
		h.model.push(slow)
	}

	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.runner.Invoke(context.Background(), model.QueryInput{ConversationID: phone, Query: fmt.Sprintf("msg %d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
	assert.Len(t, h.history(t), 2+turns*2)
}
