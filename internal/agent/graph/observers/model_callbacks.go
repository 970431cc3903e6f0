package observers

import (
	"context"
	"strings"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/chative-food/server/pkg/logger"
	"github.com/chative-food/server/pkg/metrics"
)

type modelStartKey struct{}

// newModelHandler builds a typed ModelCallbackHandler that logs the exchange
// and records provider latency.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ev := logx.Debug().Str("component", info.Type).Str("node", info.Name)
			if input != nil && len(input.Messages) > 0 {
				ev = ev.Int("messages", len(input.Messages)).Str("user", lastUserContent(input.Messages))
			}
			ev.Msg("model start")
			return context.WithValue(ctx, modelStartKey{}, time.Now())
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			observeLatency(ctx, modelName(output), "ok")
			ev := logx.Debug().Str("component", info.Type).Str("node", info.Name)
			if output != nil && output.Message != nil {
				if content := strings.TrimSpace(output.Message.Content); content != "" {
					ev = ev.Str("assistant", content)
				}
				if len(output.Message.ToolCalls) > 0 {
					ev = ev.Str("tool_call", output.Message.ToolCalls[0].Function.Name)
				}
			}
			ev.Msg("model end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			observeLatency(ctx, "", "error")
			logx.Warn().Err(err).Str("component", info.Type).Str("node", info.Name).Msg("model error")
			return ctx
		},
	}
}

func observeLatency(ctx context.Context, name, outcome string) {
	start, ok := ctx.Value(modelStartKey{}).(time.Time)
	if !ok {
		return
	}
	if name == "" {
		name = "unknown"
	}
	metrics.LLMLatency.WithLabelValues(name, outcome).Observe(time.Since(start).Seconds())
}

func modelName(output *model.CallbackOutput) string {
	if output == nil || output.Config == nil {
		return ""
	}
	return output.Config.Model
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}
