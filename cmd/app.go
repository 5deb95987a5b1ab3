package cmd

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/promptsched/internal/auth"
	"github.com/nextlevelbuilder/promptsched/internal/completion"
	"github.com/nextlevelbuilder/promptsched/internal/config"
	"github.com/nextlevelbuilder/promptsched/internal/models"
	"github.com/nextlevelbuilder/promptsched/internal/scheduler"
	"github.com/nextlevelbuilder/promptsched/internal/store"
	"github.com/nextlevelbuilder/promptsched/internal/store/pg"
	"github.com/nextlevelbuilder/promptsched/internal/store/sqlite"
)

// app bundles the wired components shared by serve and the operator
// commands.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	jobs     store.JobStore
	chats    store.ChatStore
	users    store.UserStore
	registry *models.Registry
	minter   *auth.Minter
	client   *completion.Client
}

// newApp loads configuration and opens the backing store: Postgres when
// DATABASE_URL is set, a local SQLite file otherwise.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	if cfg.DatabaseURL != "" {
		db, err := pg.OpenDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.jobs = pg.NewJobStore(db)
		a.chats = pg.NewChatStore(db)
		a.users = pg.NewUserStore(db)
	} else {
		db, err := sqlite.OpenDB(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.jobs = sqlite.NewJobStore(db)
		a.chats = sqlite.NewChatStore(db)
		a.users = sqlite.NewUserStore(db)
	}

	if cfg.ModelsPath != "" {
		a.registry, err = models.LoadRegistry(cfg.ModelsPath)
		if err != nil {
			a.db.Close()
			return nil, fmt.Errorf("load model catalog: %w", err)
		}
		slog.Info("model catalog loaded", "path", cfg.ModelsPath, "models", a.registry.Len())
	} else {
		slog.Warn("MODELS_PATH not set, model catalog is empty")
		a.registry = models.NewRegistry()
	}

	a.minter = auth.NewMinter(cfg.JWTSecret)
	a.client = completion.NewClient(a.completionBaseURL(), a.minter)
	return a, nil
}

// completionBaseURL prefers the public WebUI URL, falling back to loopback
// for local setups.
func (a *app) completionBaseURL() string {
	if a.cfg.WebUIURL != "" {
		return a.cfg.WebUIURL
	}
	return "http://127.0.0.1:" + a.cfg.Port
}

func (a *app) newRunner(notifier scheduler.Notifier) *scheduler.Runner {
	return scheduler.NewRunner(a.jobs, a.chats, a.users, a.registry, a.client, notifier, slog.Default())
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
