package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/chative-food/server/internal/agent/draft"
	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/payment"
	"github.com/chative-food/server/internal/store"
	logx "github.com/chative-food/server/pkg/logger"
	"github.com/chative-food/server/pkg/metrics"
)

type Deps struct {
	Store    *store.Store
	Drafts   *draft.Service
	Payments *payment.Issuer
	// StrictSequencing gates draft tools on the caller's current draft state.
	StrictSequencing bool
}

// Registry is the closed set of tools the model may call.
type Registry struct {
	tools  map[string]boundTool
	order  []string
	drafts *draft.Service
	strict bool
}

func NewRegistry(deps Deps) *Registry {
	r := &Registry{
		tools:  make(map[string]boundTool),
		drafts: deps.Drafts,
		strict: deps.StrictSequencing,
	}

	r.register(
		getUserTool(deps.Store),
		createUserTool(deps.Store),
		updateUserTool(deps.Store),
		deleteUserTool(deps.Store),
		createRestaurantTool(deps.Store),
		getRestaurantTool(deps.Store),
		listDishesTool(deps.Store),
		initiateOrderTool(deps.Drafts),
		updateTempOrderTool(deps.Drafts),
		confirmOrderTool(deps.Drafts),
		getOrderTool(deps.Store),
		getOrdersByUserTool(deps.Store),
		updateOrderStatusTool(deps.Store),
		deleteOrderTool(deps.Store),
		generatePaymentQRTool(deps.Payments),
	)
	return r
}

func (r *Registry) register(tools ...boundTool) {
	for _, t := range tools {
		if _, dup := r.tools[t.name()]; dup {
			panic("duplicate tool " + t.name())
		}
		r.tools[t.name()] = t
		r.order = append(r.order, t.name())
	}
}

// Names lists tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Infos returns the tool schema surface bound to the chat model.
func (r *Registry) Infos(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		info, err := r.tools[name].Info(ctx)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Invoke validates and dispatches one tool call. UnknownTool and
// MalformedArguments are protocol errors; anything else is a domain failure.
func (r *Registry) Invoke(ctx context.Context, name, argumentsInJSON string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		metrics.ToolCallsTotal.WithLabelValues("unknown", "rejected").Inc()
		logx.Warn().Str("tool_name", name).Msg("model requested unknown tool")
		return "", errx.UnknownTool(name)
	}

	args, err := decodeArguments(name, argumentsInJSON)
	if err != nil {
		metrics.ToolCallsTotal.WithLabelValues(name, "rejected").Inc()
		logx.Warn().Err(err).Str("tool_name", name).Str("arguments", argumentsInJSON).Msg("malformed tool arguments")
		return "", err
	}

	if err := checkRequired(t.parameters(), args); err != nil {
		metrics.ToolCallsTotal.WithLabelValues(name, "failed").Inc()
		return "", err
	}

	if r.strict {
		if err := r.gate(ctx, name, args); err != nil {
			metrics.ToolCallsTotal.WithLabelValues(name, "failed").Inc()
			return "", err
		}
	}

	cleaned, err := json.Marshal(args)
	if err != nil {
		return "", errx.MalformedArguments(name, err)
	}

	logx.Debug().Str("tool_name", name).RawJSON("arguments", cleaned).Msg("invoking tool")
	out, err := t.InvokableRun(ctx, string(cleaned))
	if err != nil {
		outcome := "failed"
		if errx.IsProtocol(err) {
			outcome = "rejected"
		}
		metrics.ToolCallsTotal.WithLabelValues(name, outcome).Inc()
		logx.Info().Err(err).Str("tool_name", name).Msg("tool call failed")
		return "", err
	}

	metrics.ToolCallsTotal.WithLabelValues(name, "ok").Inc()
	return out, nil
}

// gate enforces initiate -> update -> confirm when strict sequencing is on.
func (r *Registry) gate(ctx context.Context, name string, args map[string]any) error {
	switch name {
	case ToolInitiateOrder, ToolUpdateTempOrder, ToolConfirmOrder:
	default:
		return nil
	}

	phone := phoneArg(ctx, args)
	active, err := r.drafts.HasActive(ctx, phone)
	if err != nil {
		return err
	}
	switch {
	case name == ToolInitiateOrder && active:
		return errx.DraftExists(phone)
	case name != ToolInitiateOrder && !active:
		return errx.NoActiveDraft(phone)
	}
	return nil
}

func decodeArguments(name, raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, errx.MalformedArguments(name, err)
	}
	args, ok := v.(map[string]any)
	if !ok {
		return nil, errx.MalformedArguments(name, errors.New("arguments must be a JSON object"))
	}
	return trimStrings(args).(map[string]any), nil
}

func trimStrings(v any) any {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for k, e := range t {
			t[k] = trimStrings(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = trimStrings(e)
		}
		return t
	}
	return v
}

func checkRequired(params map[string]*schema.ParameterInfo, args map[string]any) error {
	var missing []string
	for key, p := range params {
		if !p.Required {
			continue
		}
		v, ok := args[key]
		if !ok || v == nil || v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errx.Validation("missing required field(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

func phoneArg(ctx context.Context, args map[string]any) string {
	if s, ok := args["phone_number"].(string); ok && s != "" {
		return s
	}
	return SessionPhone(ctx)
}

type sessionKey struct{}

// WithSessionPhone records the phone of the user driving the turn.
func WithSessionPhone(ctx context.Context, phone string) context.Context {
	return context.WithValue(ctx, sessionKey{}, phone)
}

func SessionPhone(ctx context.Context) string {
	phone, _ := ctx.Value(sessionKey{}).(string)
	return phone
}

// orSession falls back to the session phone when the model omitted it.
func orSession(ctx context.Context, phone string) string {
	if phone != "" {
		return phone
	}
	return SessionPhone(ctx)
}
