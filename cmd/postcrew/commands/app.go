// Package commands wires configuration, storage, dispatch and the agent crew
// into the post service used by the CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/postcrew/internal/ai"
	"github.com/suPer8Hu/postcrew/internal/config"
	"github.com/suPer8Hu/postcrew/internal/crew"
	"github.com/suPer8Hu/postcrew/internal/logx"
	"github.com/suPer8Hu/postcrew/internal/post"
	"github.com/suPer8Hu/postcrew/internal/search"
	"github.com/suPer8Hu/postcrew/internal/store/rabbitmq"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AppContext holds everything a command needs. Close releases it.
type AppContext struct {
	Cfg     config.Config
	Log     *slog.Logger
	Service *post.Service

	closers []func() error
}

func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	return newAppContext(ctx, cfg)
}

func newAppContext(ctx context.Context, cfg config.Config) (*AppContext, error) {
	app := &AppContext{
		Cfg: cfg,
		Log: logx.New(cfg.LogLevel, cfg.LogFormat),
	}

	gen, err := newGenerator(cfg, app.Log)
	if err != nil {
		return nil, err
	}

	store, err := app.openStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	dispatcher, err := app.openDispatcher()
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Service = post.NewService(store, gen, dispatcher, post.Options{
		GenerationTimeout: cfg.GenerationTimeout,
		SweepInterval:     cfg.JobSweepInterval,
		Logger:            app.Log,
	})
	return app, nil
}

func (a *AppContext) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("close resource", "err", err)
		}
	}
	a.closers = nil
}

func (a *AppContext) openStore(ctx context.Context) (post.Store, error) {
	retention := post.Retention{TTL: a.Cfg.JobTTL, MaxEntries: a.Cfg.JobMaxEntries}

	switch a.Cfg.JobStore {
	case "", "memory":
		return post.NewMemoryStore(retention), nil
	case "sqlite":
		db, err := gorm.Open(gormsqlite.Open(a.Cfg.SQLiteDSN), &gorm.Config{Logger: logger.Discard})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// a single connection keeps the shared in-memory database writable
		// without lock errors
		sqlDB.SetMaxOpenConns(1)
		a.closers = append(a.closers, sqlDB.Close)

		repo := post.NewRepo(db, retention)
		if err := repo.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("automigrate: %w", err)
		}
		a.Log.Info("job store ready", "store", "sqlite", "dsn", a.Cfg.SQLiteDSN)
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported JOB_STORE=%q", a.Cfg.JobStore)
	}
}

func (a *AppContext) openDispatcher() (post.Dispatcher, error) {
	switch a.Cfg.Dispatcher {
	case "", "pool":
		return post.NewPool(a.Cfg.WorkerConcurrency, a.Cfg.WorkerQueueSize, a.Log), nil
	case "rabbitmq":
		d, err := rabbitmq.NewDispatcher(a.Cfg.RabbitURL, a.Cfg.RabbitQueue, a.Cfg.WorkerConcurrency, a.Log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, d.Close)
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported DISPATCHER=%q", a.Cfg.Dispatcher)
	}
}

func newRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, orDefault(model, cfg.OllamaModel)), nil
	})
	reg.Register("openrouter", func(_ context.Context, model string) (ai.Provider, error) {
		if strings.TrimSpace(cfg.OpenRouterAPIKey) == "" {
			return nil, errors.New("OPENROUTER_API_KEY is not set")
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey,
			orDefault(model, cfg.OpenRouterModel), cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	reg.Register("openai", func(_ context.Context, model string) (ai.Provider, error) {
		return ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, orDefault(model, cfg.OpenAIModel))
	})
	return reg
}

func newGenerator(cfg config.Config, log *slog.Logger) (post.Generator, error) {
	reg := newRegistry(cfg)
	if !slices.Contains(reg.Names(), cfg.AIProvider) {
		return nil, fmt.Errorf("unsupported AI_PROVIDER=%q (known: %s)", cfg.AIProvider, strings.Join(reg.Names(), ", "))
	}

	crewCfg, err := crew.LoadConfig(cfg.CrewConfigDir)
	if err != nil {
		return nil, fmt.Errorf("load crew config: %w", err)
	}

	var tools []crew.Tool
	if cfg.SerperAPIKey != "" {
		tools = append(tools, search.NewSerper(cfg.SerperAPIKey))
	} else {
		log.Warn("SERPER_API_KEY not set, research runs without web search")
	}

	return crew.New(crewCfg, reg, crew.Options{
		DefaultProvider: cfg.AIProvider,
		Tools:           tools,
		OutputDir:       cfg.CrewOutputDir,
		Logger:          log,
	})
}

func orDefault(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}
