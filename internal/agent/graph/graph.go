package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/chative-food/server/internal/agent/graph/conversations"
	"github.com/chative-food/server/internal/agent/graph/nodes"
	"github.com/chative-food/server/internal/agent/graph/observers"
	"github.com/chative-food/server/internal/agent/graph/tools"
	"github.com/chative-food/server/internal/agent/model"
	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
	"github.com/chative-food/server/internal/store"
	"github.com/chative-food/server/pkg/keylock"
	logx "github.com/chative-food/server/pkg/logger"
	"github.com/chative-food/server/pkg/metrics"
)

// Runner executes one conversation turn.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*model.TurnResult, error)
}

// Config holds everything needed to compose the full response graph end-to-end.
// ChatModel is optional; when nil a Gemini model is built from ResponseModel.
type Config struct {
	ChatModel        einomodel.BaseChatModel
	ResponseModel    model.ResponseModelConfig
	ResponsePrompt   model.ResponsePromptConfig
	Conversation     model.ConversationConfig
	ConversationRepo model.ConversationRepository
	Registry         *tools.Registry
	Store            *store.Store
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	ChatModel            *nodes.ChatModel
	MessagesManager      *conversations.MessagesManager
	Registry             *tools.Registry
	ResponsePromptConfig model.ResponsePromptConfig
	ToolMaxCalls         int
	FollowUp             bool
}

// GraphBuilder handles the construction of the agent conversation graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
	chats    store.Repository[domain.Chat]
	locks    *keylock.Locker
	timeout  time.Duration
	now      func() time.Time
}

// Invoke runs one turn. Turns for the same conversation are serialised in
// arrival order; the timeout starts once the turn holds the lock.
func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (*model.TurnResult, error) {
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	in.Query = strings.TrimSpace(in.Query)
	if in.ConversationID == "" {
		return nil, errx.Validation("conversation id is required")
	}
	if in.Query == "" {
		return nil, errx.Validation("message is required")
	}

	unlock, err := r.locks.Lock(ctx, in.ConversationID)
	if err != nil {
		return nil, errx.Provider(err)
	}
	defer unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	ctx = tools.WithSessionPhone(ctx, in.ConversationID)

	start := r.now()
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	metrics.TurnDuration.Observe(r.now().Sub(start).Seconds())
	if err != nil {
		metrics.TurnsTotal.WithLabelValues(string(model.OutcomeProviderError)).Inc()
		logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("turn failed")
		return nil, turnError(err)
	}

	outcome, _ := out.Extra[nodes.ExtraOutcome].(string)
	if outcome == "" {
		outcome = string(model.OutcomeReply)
	}
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()

	if abortErr, ok := out.Extra[nodes.ExtraTurnError].(error); ok {
		return nil, abortErr
	}

	cost, _ := out.Extra[nodes.ExtraCostUSD].(float64)
	r.logChat(ctx, in, out.Content)

	return &model.TurnResult{Reply: out.Content, CostUSD: cost}, nil
}

// logChat records the exchange in the chat log. Failures do not fail the turn.
func (r *graphRunner) logChat(ctx context.Context, in model.QueryInput, reply string) {
	if r.chats == nil {
		return
	}
	chat := &domain.Chat{
		Phone:     in.ConversationID,
		Message:   in.Query,
		Reply:     reply,
		Timestamp: r.now().UTC(),
	}
	if err := r.chats.Save(ctx, chat); err != nil {
		logx.Warn().Err(err).Str("conversation_id", in.ConversationID).Msg("failed to write chat log")
	}
}

// turnError maps a graph failure to an AppError. Anything unclassified is a
// provider failure, including the turn deadline.
func turnError(err error) error {
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return errx.Provider(err)
}

// BuildResponseGraph composes the chat model, MessagesManager and registry,
// builds the graph, and returns a Runner.
func BuildResponseGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is nil")
	}

	base := cfg.ChatModel
	if base == nil {
		gm, err := nodes.NewGeminiChatModel(ctx, cfg.ResponseModel)
		if err != nil {
			return nil, err
		}
		base = gm
	}

	toolInfos, err := cfg.Registry.Infos(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return nil, fmt.Errorf("failed to get tool infos: %w", err)
	}
	cm, err := nodes.BindTools(base, cfg.ResponseModel.Model, toolInfos)
	if err != nil {
		return nil, err
	}

	mm := conversations.NewMessagesManager(cfg.ConversationRepo, cfg.Conversation)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModel:            cm,
		MessagesManager:      mm,
		Registry:             cfg.Registry,
		ResponsePromptConfig: cfg.ResponsePrompt,
		ToolMaxCalls:         cfg.Conversation.Tools.MaxCalls,
		FollowUp:             cfg.Conversation.FollowUp,
	})
	if err != nil {
		return nil, err
	}

	r := &graphRunner{
		runnable: runnable,
		locks:    keylock.New(),
		timeout:  cfg.Conversation.TurnTimeout,
		now:      time.Now,
	}
	if cfg.Store != nil {
		r.chats = cfg.Store.Chats
	}

	logx.Debug().Msg("Response graph built successfully")
	return r, nil
}

// BuildGraph constructs and returns the compiled agent graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModel == nil || config.ChatModel.Model == nil {
		return nil, fmt.Errorf("chat model is not properly initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("tool registry is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	mm := b.config.MessagesManager
	steps := []struct {
		key string
		add func() error
	}{
		{nodes.NodeInputConverter, func() error {
			return b.graph.AddLambdaNode(nodes.NodeInputConverter,
				nodes.NewInputConverterNode(mm, b.config.ResponsePromptConfig),
				compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
				compose.WithStatePostHandler(nodes.NewInputConverterPostHandler(mm)),
			)
		}},
		{nodes.NodeChatModel, func() error {
			return b.graph.AddChatModelNode(nodes.NodeChatModel,
				b.config.ChatModel.Model,
				compose.WithStatePreHandler(nodes.NewChatModelPreHandler()),
				compose.WithStatePostHandler(nodes.NewChatModelPostHandler(mm, b.config.ChatModel.Name, b.config.ToolMaxCalls)),
			)
		}},
		{nodes.NodeToolExecutor, func() error {
			return b.graph.AddLambdaNode(nodes.NodeToolExecutor,
				nodes.NewToolExecutorNode(b.config.Registry),
				compose.WithStatePostHandler(nodes.NewToolExecutorPostHandler(mm)),
			)
		}},
		{nodes.NodeFollowUpAssembler, func() error {
			return b.graph.AddLambdaNode(nodes.NodeFollowUpAssembler, nodes.NewFollowUpAssemblerNode(mm))
		}},
		{nodes.NodeFinalizer, func() error {
			return b.graph.AddLambdaNode(nodes.NodeFinalizer, nodes.NewFinalizerNode(mm))
		}},
	}

	for _, step := range steps {
		if err := step.add(); err != nil {
			logx.Error().Err(err).Str("node", step.key).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", step.key, err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeChatModel},
		{nodes.NodeFollowUpAssembler, nodes.NodeChatModel},
		{nodes.NodeFinalizer, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	toolBranch := compose.NewGraphBranch(
		nodes.NewToolCallCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			nodes.NodeFinalizer:    true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeChatModel, toolBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding tool branch")
		return fmt.Errorf("error adding tool branch: %w", err)
	}

	followUpBranch := compose.NewGraphBranch(
		nodes.NewFollowUpCondition(b.config.FollowUp),
		map[string]bool{
			nodes.NodeFollowUpAssembler: true,
			nodes.NodeFinalizer:         true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeToolExecutor, followUpBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding follow-up branch")
		return fmt.Errorf("error adding follow-up branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("FoodOrderingTurn"),
		compose.WithMaxRunSteps(nodes.MaxRunSteps(b.config.ToolMaxCalls)),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
