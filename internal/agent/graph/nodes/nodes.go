package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/chative-food/server/internal/agent/graph/conversations"
	"github.com/chative-food/server/internal/agent/graph/prompts"
	"github.com/chative-food/server/internal/agent/graph/tools"
	"github.com/chative-food/server/internal/agent/model"
	errx "github.com/chative-food/server/internal/core/error"
	logx "github.com/chative-food/server/pkg/logger"
	"github.com/chative-food/server/pkg/metrics"
)

const (
	NodeInputConverter    = "InputConverter"
	NodeChatModel         = "ChatModel"
	NodeToolExecutor      = "ToolExecutor"
	NodeFollowUpAssembler = "FollowUpAssembler"
	NodeFinalizer         = "Finalizer"
)

// Message Extra keys read by the runner.
const (
	ExtraTurnError = "turn_error"
	ExtraOutcome   = "turn_outcome"
	ExtraCostUSD   = "usage_cost_total_usd"
)

// FallbackReply is sent when the model produced neither text nor a tool call.
const FallbackReply = "Sorry, I didn't quite get that. Could you say it another way?"

// NewInputConverterPreHandler resets the per-turn state.
func NewInputConverterPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		s.ConversationID = in.ConversationID
		s.History = nil
		s.ToolRounds = 0
		s.ToolCallIDSeq = 0
		s.LastTool = ""
		s.Outcome = ""
		s.Abort = nil
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewInputConverterNode seeds a new conversation with the system prompt,
// records the user message and emits the provider view of the history.
func NewInputConverterNode(
	mm *conversations.MessagesManager,
	promptCfg model.ResponsePromptConfig,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		seed := func(ctx context.Context) ([]*schema.Message, error) {
			return prompts.RenderSystem(ctx, promptCfg, input.ConversationID)
		}

		history, err := mm.StartTurn(ctx, input.ConversationID, input.Query, seed)
		if err != nil {
			return nil, fmt.Errorf("error starting turn: %w", err)
		}
		return history, nil
	})
}

// NewInputConverterPostHandler keeps the stored history in state and hands
// the model its filtered view.
func NewInputConverterPostHandler(mm *conversations.MessagesManager) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		state.History = out
		return mm.ProviderView(out), nil
	}
}

// NewChatModelPreHandler logs the model call.
func NewChatModelPreHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		logx.Debug().
			Str("conversation_id", state.ConversationID).
			Int("messages", len(in)).
			Int("tool_rounds", state.ToolRounds).
			Msg("AI thinking...")
		return in, nil
	}
}

// NewChatModelPostHandler computes usage cost, normalises tool calls and
// persists the assistant message.
func NewChatModelPostHandler(
	mm *conversations.MessagesManager,
	modelName string,
	maxToolCalls int,
) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			out = schema.AssistantMessage("", nil)
		}
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}

		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			usage := out.ResponseMeta.Usage
			pricing := model.ResolvePricing(modelName)
			inC, outC, totalC := model.ComputeCost(usage, pricing)
			out.Extra["usage_cost"] = map[string]any{
				"currency":          "USD",
				"model":             modelName,
				"prompt_tokens":     usage.PromptTokens,
				"completion_tokens": usage.CompletionTokens,
				"total_tokens":      usage.TotalTokens,
				"input_cost":        inC,
				"output_cost":       outC,
				"total_cost":        totalC,
			}
			logx.Debug().
				Str("conversation_id", state.ConversationID).
				Str("node", NodeChatModel).
				Str("model", modelName).
				Int("prompt_tokens", usage.PromptTokens).
				Int("completion_tokens", usage.CompletionTokens).
				Int("total_tokens", usage.TotalTokens).
				Float64("input_cost_usd", inC).
				Float64("output_cost_usd", outC).
				Float64("total_cost_usd", totalC).
				Msg("LLM usage")

			metrics.LLMTokens.WithLabelValues(modelName, "prompt").Add(float64(usage.PromptTokens))
			metrics.LLMTokens.WithLabelValues(modelName, "completion").Add(float64(usage.CompletionTokens))
			metrics.LLMCostUSD.WithLabelValues(modelName).Add(totalC)

			state.TotalCostUSD += totalC
			out.Extra[ExtraCostUSD] = state.TotalCostUSD
		}

		if len(out.ToolCalls) > 0 {
			if state.ToolRounds >= normalizeMaxToolCalls(maxToolCalls) {
				logx.Debug().
					Str("conversation_id", state.ConversationID).
					Int("tool_rounds", state.ToolRounds).
					Str("tool_name", out.ToolCalls[0].Function.Name).
					Msg("Tool call limit reached - ignoring requested call")
				out.ToolCalls = nil
			} else {
				if len(out.ToolCalls) > 1 {
					logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Dropping all but the first tool call")
					out.ToolCalls = out.ToolCalls[:1]
				}
				if strings.TrimSpace(out.ToolCalls[0].ID) == "" {
					state.ToolCallIDSeq++
					out.ToolCalls[0].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
				}
			}
		}

		switch {
		case len(out.ToolCalls) > 0:
			logx.Debug().Str("tool_name", out.ToolCalls[0].Function.Name).Msg("Calling tool")
		case state.ToolRounds > 0:
			state.Outcome = model.OutcomeToolReply
		default:
			state.Outcome = model.OutcomeReply
		}

		if len(out.ToolCalls) == 0 && strings.TrimSpace(out.Content) == "" {
			return out, nil
		}

		state.History = append(state.History, out)
		if err := mm.Save(ctx, state.ConversationID, persisted(out)); err != nil {
			logx.Error().
				Str("conversation_id", state.ConversationID).
				Err(err).
				Msg("Error saving assistant message")
		}
		return out, nil
	}
}

// NewToolCallCondition routes a tool call to the executor and everything else to the finalizer.
func NewToolCallCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		if input != nil && len(input.ToolCalls) > 0 {
			return NodeToolExecutor, nil
		}
		return NodeFinalizer, nil
	}
}

// NewToolExecutorNode runs the first tool call through the registry. Domain
// failures come back as an assistant failure note; protocol errors are
// carried to the runner in Extra.
func NewToolExecutorNode(reg *tools.Registry) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		call := in.ToolCalls[0]
		name := call.Function.Name

		ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
			Name:      name,
			Type:      "RegistryTool",
			Component: components.ComponentOfTool,
		})
		ctx = callbacks.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: call.Function.Arguments})

		result, err := reg.Invoke(ctx, name, call.Function.Arguments)
		if err != nil {
			callbacks.OnError(ctx, err)
			if errx.IsProtocol(err) {
				return &schema.Message{
					Role:  schema.Assistant,
					Extra: map[string]any{ExtraTurnError: err},
				}, nil
			}
			return schema.AssistantMessage(FailureNote(name, err), nil), nil
		}
		callbacks.OnEnd(ctx, &tool.CallbackOutput{Response: result})

		return &schema.Message{
			Role:       schema.Tool,
			Content:    result,
			ToolCallID: call.ID,
			ToolName:   name,
		}, nil
	})
}

// NewToolExecutorPostHandler records the tool outcome and persists the
// result or failure note. Protocol errors persist nothing.
func NewToolExecutorPostHandler(mm *conversations.MessagesManager) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if err, ok := out.Extra[ExtraTurnError].(error); ok {
			state.Abort = err
			state.Outcome = model.OutcomeProtocolError
			logx.Warn().
				Str("conversation_id", state.ConversationID).
				Err(err).
				Msg("Tool call rejected - aborting turn")
			return out, nil
		}

		state.ToolRounds++
		if out.Role == schema.Tool {
			state.LastTool = out.ToolName
		} else {
			state.Outcome = model.OutcomeToolFailed
		}

		state.History = append(state.History, out)
		if err := mm.Save(ctx, state.ConversationID, out); err != nil {
			logx.Error().
				Str("conversation_id", state.ConversationID).
				Err(err).
				Msg("Error saving tool outcome")
		}
		return out, nil
	}
}

// NewFollowUpCondition sends a tool result back to the model in follow-up
// mode. Failure notes, aborts and summary mode go straight to the finalizer.
func NewFollowUpCondition(followUp bool) func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		if followUp && input != nil && input.Role == schema.Tool {
			return NodeFollowUpAssembler, nil
		}
		return NodeFinalizer, nil
	}
}

// NewFollowUpAssemblerNode builds the follow-up request from the turn's history.
func NewFollowUpAssemblerNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) ([]*schema.Message, error) {
		var history []*schema.Message
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			history = append(history, state.History...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return mm.ProviderView(history), nil
	})
}

// NewFinalizerNode produces the turn's reply message.
func NewFinalizerNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		var (
			reply   *schema.Message
			outcome model.TurnOutcome
			cost    float64
			saveErr error
		)
		err := compose.ProcessState(ctx, func(ctx context.Context, state *model.AppState) error {
			cost = state.TotalCostUSD
			if state.Abort != nil {
				outcome = state.Outcome
				reply = &schema.Message{Role: schema.Assistant, Extra: map[string]any{ExtraTurnError: state.Abort}}
				return nil
			}

			switch {
			case in.Role == schema.Assistant && strings.TrimSpace(in.Content) != "":
				reply = schema.AssistantMessage(in.Content, nil)
			case state.LastTool != "":
				// summary mode, or a follow-up that came back empty
				reply = schema.AssistantMessage(SummaryNote(state.LastTool, lastToolResult(state.History)), nil)
				state.History = append(state.History, reply)
				saveErr = mm.Save(ctx, state.ConversationID, reply)
				if state.Outcome == "" {
					state.Outcome = model.OutcomeToolReply
				}
			default:
				reply = schema.AssistantMessage(FallbackReply, nil)
				state.History = append(state.History, reply)
				saveErr = mm.Save(ctx, state.ConversationID, reply)
			}
			if state.Outcome == "" {
				state.Outcome = model.OutcomeReply
			}
			outcome = state.Outcome
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if saveErr != nil {
			logx.Error().Err(saveErr).Msg("Error saving final reply")
		}

		if reply.Extra == nil {
			reply.Extra = map[string]any{}
		}
		reply.Extra[ExtraOutcome] = string(outcome)
		reply.Extra[ExtraCostUSD] = cost
		return reply, nil
	})
}

// FailureNote is the reply when a tool executor fails.
func FailureNote(name string, err error) string {
	return fmt.Sprintf("Function %q failed: %s", name, failureReason(err))
}

// SummaryNote is the reply when a tool result is not followed up by the
// model. A result carrying a message is quoted.
func SummaryNote(name, result string) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal([]byte(result), &body) == nil && strings.TrimSpace(body.Message) != "" {
		return fmt.Sprintf("Function %q executed: %s", name, body.Message)
	}
	return fmt.Sprintf("Function %q executed successfully.", name)
}

func failureReason(err error) string {
	var appErr *errx.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

func lastToolResult(history []*schema.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i] != nil && history[i].Role == schema.Tool {
			return history[i].Content
		}
	}
	return ""
}

// persisted strips response metadata that has no place in stored history.
func persisted(msg *schema.Message) *schema.Message {
	cp := *msg
	cp.ResponseMeta = nil
	cp.Extra = nil
	return &cp
}
