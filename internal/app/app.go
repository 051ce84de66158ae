package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"offerline/internal/billing"
	"offerline/internal/config"
	"offerline/internal/db"
	"offerline/internal/engine"
	"offerline/internal/generator"
	"offerline/internal/llm"
	"offerline/internal/logger"
	"offerline/internal/migrate"
	"offerline/internal/repo"
)

// App holds the process-wide services built from a Config.
type App struct {
	Config  *config.Config
	DB      *sqlx.DB
	Engine  engine.Engine
	Billing billing.Service
	Log     *logger.Logger
}

// Options override collaborators that would otherwise be built from config.
type Options struct {
	Model    llm.Model
	Checkout billing.CheckoutClient
	Migrate  bool
}

// Build opens the database and wires the engine and billing service.
func Build(cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.Nop()
	}
	conn, err := db.Open(db.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN, Workspace: cfg.Database.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if opts.Migrate {
		if err := migrate.Migrate(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	model := opts.Model
	searchCapable := true
	if model == nil {
		searchCapable = cfg.LLM.Provider == config.ProviderAnthropic
		model, err = llm.New(cfg.LLM)
		if err != nil {
			// Reads and exports still work without a model; generation reports the cause.
			log.Warn("language model unavailable", "provider", cfg.LLM.Provider, "error", err)
			model = unavailableModel{err: err}
		}
	}
	gen := generator.Generator{
		Model:         model,
		MaxTokens:     cfg.LLM.MaxTokens,
		SearchCapable: searchCapable,
		Log:           log.With("component", "generator"),
	}
	eng := engine.New(conn, cfg, &gen, log)

	checkout := opts.Checkout
	if checkout == nil && cfg.Billing.SecretKey != "" {
		checkout = billing.NewStripeClient(cfg.Billing.SecretKey)
	}
	bill := billing.Service{
		Repo:     repo.Repo{DB: conn},
		Checkout: checkout,
		Config:   cfg.Billing,
		Log:      log.With("component", "billing"),
	}
	return &App{Config: cfg, DB: conn, Engine: eng, Billing: bill, Log: log}, nil
}

// Close waits for background runs and closes the database.
func (a *App) Close() error {
	a.Engine.Wait()
	return a.DB.Close()
}

type unavailableModel struct {
	err error
}

func (m unavailableModel) Generate(context.Context, llm.Request) (string, error) {
	return "", m.err
}
