package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/chative-food/server/internal/agent/draft"
	"github.com/chative-food/server/internal/agent/graph"
	"github.com/chative-food/server/internal/agent/graph/tools"
	"github.com/chative-food/server/internal/agent/model"
	"github.com/chative-food/server/internal/agent/repo"
	"github.com/chative-food/server/internal/core"
	"github.com/chative-food/server/internal/payment"
	"github.com/chative-food/server/internal/server"
	"github.com/chative-food/server/internal/store"
	logx "github.com/chative-food/server/pkg/logger"
	pkgmongo "github.com/chative-food/server/pkg/mongo"
	pkgredis "github.com/chative-food/server/pkg/redis"
)

const (
	backendMemory = "memory"
	backendRedis  = "redis"
	backendMongo  = "mongo"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// STORE_BACKEND holds users, restaurants and orders: mongo or memory.
	StoreBackend string `envconfig:"STORE_BACKEND" default:"memory"`
	// SESSION_BACKEND holds conversation history and drafts: redis or memory.
	SessionBackend string `envconfig:"SESSION_BACKEND" default:"memory"`

	// Infrastructure
	Redis pkgredis.Config
	Mongo pkgmongo.Config

	// Agent configs
	Response     model.ResponseModelConfig
	Prompt       model.ResponsePromptConfig
	Conversation model.ConversationConfig
	Draft        model.DraftConfig

	Payment payment.Config
	Server  server.Config
}

func loadConfig() (*AppConfig, error) {
	if err := godotenv.Load(envFile); err != nil {
		logx.Warn().Str("file", envFile).Msg("Could not load env file, using process environment")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(cfg.Environment),
		Level:       cfg.LogLevel,
	})
	return &cfg, nil
}

// app holds the wired dependencies shared by every command.
type app struct {
	cfg      *AppConfig
	store    *store.Store
	drafts   *draft.Service
	registry *tools.Registry
	history  model.ConversationRepository
	closers  []func()
}

func newApp(ctx context.Context, cfg *AppConfig) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	switch strings.ToLower(cfg.StoreBackend) {
	case backendMongo:
		client, db, err := cfg.Mongo.New(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
		if err := store.EnsureIndexes(ctx, db); err != nil {
			return nil, err
		}
		a.store = store.NewMongo(db)
		logx.Info().Str("database", cfg.Mongo.Database).Msg("Connected to MongoDB")
	case backendMemory, "":
		a.store = store.NewMemory()
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	var drafts model.DraftRepository
	switch strings.ToLower(cfg.SessionBackend) {
	case backendRedis:
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.history = repo.NewRedisConversationRepository(rdb, cfg.Conversation.TTL)
		drafts = repo.NewRedisDraftRepository(rdb, cfg.Draft.TTL)
		logx.Info().Msg("Connected to Redis")
	case backendMemory, "":
		a.history = repo.NewMemoryConversationRepository(cfg.Conversation.TTL)
		drafts = repo.NewMemoryDraftRepository(cfg.Draft.TTL)
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}

	a.drafts = draft.NewService(a.store, drafts, cfg.Draft)
	issuer := payment.NewIssuer(a.store.Orders, nil, cfg.Payment)
	a.registry = tools.NewRegistry(tools.Deps{
		Store:            a.store,
		Drafts:           a.drafts,
		Payments:         issuer,
		StrictSequencing: cfg.Conversation.Tools.StrictSequencing,
	})

	ok = true
	return a, nil
}

// runner builds the conversation graph against Gemini.
func (a *app) runner(ctx context.Context) (graph.Runner, error) {
	if a.cfg.Response.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	return graph.BuildResponseGraph(ctx, graph.Config{
		ResponseModel:    a.cfg.Response,
		ResponsePrompt:   a.cfg.Prompt,
		Conversation:     a.cfg.Conversation,
		ConversationRepo: a.history,
		Registry:         a.registry,
		Store:            a.store,
	})
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
