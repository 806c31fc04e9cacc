// Package app builds the activity-sync object graph from configuration.
// The daemon and the CLI share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pbi-manager/activity-sync/activity/internal/jobs"
	"github.com/pbi-manager/activity-sync/activity/internal/repository"
	"github.com/pbi-manager/activity-sync/activity/internal/service"
	"github.com/pbi-manager/activity-sync/activity/internal/tokens"
	"github.com/pbi-manager/activity-sync/activity/internal/upstream"
	"github.com/pbi-manager/activity-sync/common/config"
	"github.com/pbi-manager/activity-sync/common/database"
	"github.com/pbi-manager/activity-sync/common/logging"
	"github.com/pbi-manager/activity-sync/common/messaging"
	natsclient "github.com/pbi-manager/activity-sync/common/messaging/nats"
)

// Backends selectable with jobs.backend.
const (
	BackendLocal = "local"
	BackendNATS  = "nats"
)

// App owns every long-lived dependency.
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	Repo       repository.Repository
	Service    *service.ActivityService
	Dispatcher *jobs.Dispatcher

	nats   *natsclient.Client
	locker *jobs.RedisLocker
}

// New connects storage, the optional broker and lock store, and wires the
// service and task dispatcher.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	repo, err := openRepository(ctx, cfg, logger.Logger)
	if err != nil {
		return nil, err
	}
	a.Repo = repo

	if cfg.NATS.Enabled {
		nc, err := natsclient.NewClient(natsclient.Config{
			URL:           cfg.NATS.URL,
			Name:          "activity-sync",
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Timeout:       5 * time.Second,
			Logger:        logger.Logger,
		})
		if err != nil {
			if cfg.Jobs.Backend == BackendNATS {
				a.Close()
				return nil, fmt.Errorf("connect to NATS: %w", err)
			}
			logger.Warn("Failed to connect to NATS (continuing without notifications)",
				slog.String("url", cfg.NATS.URL), logging.Error(err))
		} else {
			a.nats = nc
			logger.Info("Connected to NATS", slog.String("url", cfg.NATS.URL))
		}
	}

	var locker jobs.Locker = jobs.NoopLocker{}
	if cfg.Redis.Enabled {
		rl, err := jobs.NewRedisLockerFromURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.locker = rl
		locker = rl
		logger.Info("Task locking enabled", slog.String("backend", "redis"))
	}

	var notifier messaging.Publisher
	if a.nats != nil {
		notifier = a.nats
	}

	tp := tokens.NewClientCredentials(cfg.Auth.TokenURL, cfg.Auth.Scope, cfg.Auth.DefaultCredential,
		credentials(cfg.Auth.Credentials), cfg.Auth.Timeout)
	fetcher := upstream.NewFetcher(cfg.Upstream.URL, cfg.Upstream.Timeout, logger.Logger)

	a.Service = service.NewActivityService(cfg, repo, tp, fetcher, notifier, logger)
	a.Dispatcher = jobs.NewDispatcher(repo, locker, cfg.Jobs.LockTTL, logger)
	a.Service.RegisterHandlers(a.Dispatcher)
	return a, nil
}

// NewQueue returns the task queue selected by jobs.backend. It is not started.
func (a *App) NewQueue() (jobs.Queue, error) {
	switch a.Config.Jobs.Backend {
	case BackendNATS:
		if a.nats == nil {
			return nil, fmt.Errorf("jobs.backend %q requires nats.enabled", BackendNATS)
		}
		return jobs.NewNATSQueue(a.nats, a.Dispatcher), nil
	case BackendLocal, "":
		return jobs.NewLocalQueue(a.Dispatcher, a.Config.Jobs.Workers, a.Config.Jobs.QueueSize), nil
	default:
		return nil, fmt.Errorf("unknown jobs.backend %q", a.Config.Jobs.Backend)
	}
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			a.Logger.Warn("failed to close redis", logging.Error(err))
		}
	}
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.Logger.Warn("failed to drain NATS", logging.Error(err))
		}
	}
	if a.Repo != nil {
		a.Repo.Close()
	}
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Repository, error) {
	switch cfg.Database.Type {
	case "memory":
		logger.Warn("Using in-memory storage; data is lost on restart")
		return repository.NewInMemoryRepository(), nil
	case "postgres":
		connString := cfg.Database.Postgres.ConnString()
		if cfg.Database.MigrationsPath != "" {
			if err := database.Migrate(cfg.Database.MigrationsPath, connString, logger); err != nil {
				return nil, err
			}
		}
		pool, err := database.Open(ctx, connString, database.DefaultPoolOptions())
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to PostgreSQL",
			slog.String("host", cfg.Database.Postgres.Host),
			slog.String("database", cfg.Database.Postgres.Database))
		return repository.NewPostgresRepository(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database.type %q", cfg.Database.Type)
	}
}

func credentials(in map[string]config.CredentialConfig) map[string]tokens.Credential {
	out := make(map[string]tokens.Credential, len(in))
	for name, c := range in {
		out[name] = tokens.Credential{TenantID: c.TenantID, ClientID: c.ClientID, ClientSecret: c.ClientSecret}
	}
	return out
}

// EnsureExportDir creates the export directory if it is missing.
func (a *App) EnsureExportDir() error {
	if err := os.MkdirAll(a.Config.Export.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	return nil
}
