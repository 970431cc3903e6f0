package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/chative-food/server/internal/agent/model"
	logx "github.com/chative-food/server/pkg/logger"
)

// ChatModel is the tool-bound response model used by the ChatModel node.
type ChatModel struct {
	Model einomodel.BaseChatModel
	Name  string
}

// NewGeminiChatModel creates the Gemini response model.
func NewGeminiChatModel(ctx context.Context, config model.ResponseModelConfig) (*gemini.ChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	cfg := &gemini.Config{
		Client:      client,
		Model:       config.Model,
		Temperature: &config.Temperature,
		MaxTokens:   &config.MaxTokens,
	}
	if config.ThinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(config.ThinkingBudget),
		}
	}

	chatModel, err := gemini.NewChatModel(ctx, cfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Response model")
		return nil, fmt.Errorf("error creating Response model: %w", err)
	}
	return chatModel, nil
}

// BindTools attaches the tool surface to a chat model. Models that return a
// tool-bound copy are preferred over ones that bind in place.
func BindTools(cm einomodel.BaseChatModel, name string, tools []*schema.ToolInfo) (*ChatModel, error) {
	switch m := cm.(type) {
	case einomodel.ToolCallingChatModel:
		bound, err := m.WithTools(tools)
		if err != nil {
			logx.Error().Err(err).Msg("Failed to bind tools")
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
		cm = bound
	case einomodel.ChatModel:
		if err := m.BindTools(tools); err != nil {
			logx.Error().Err(err).Msg("Failed to bind tools")
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	default:
		return nil, fmt.Errorf("chat model %T does not support tool calling", cm)
	}

	logx.Debug().Int("tool_count", len(tools)).Str("model", name).Msg("Successfully bound tools to response model")
	return &ChatModel{Model: cm, Name: name}, nil
}
