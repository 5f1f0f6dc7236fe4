// Package app wires the store, tagger, notifier and engine from tagflow.yml.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tagflow/internal/config"
	"tagflow/internal/db"
	"tagflow/internal/domain"
	"tagflow/internal/engine"
	"tagflow/internal/logging"
	"tagflow/internal/migrate"
	"tagflow/internal/notify"
	"tagflow/internal/records"
	"tagflow/internal/repo"
	"tagflow/internal/tagging"
)

// Store is the full record surface the CLI uses. repo.Repo and
// records.Client both implement it.
type Store interface {
	engine.Records
	notify.Directory
	notify.Outbox
	GetFlow(ctx context.Context, id int64) (domain.ApprovalFlow, error)
	ListFlows(ctx context.Context, status string) ([]domain.ApprovalFlow, error)
	LatestEvents(ctx context.Context, limit int, entityKind, entityID string) ([]domain.Event, error)
}

type Options struct {
	Workspace string
	Config    *config.Config
	Log       *zap.Logger
	// DryRun forces the in-memory tagger regardless of config.
	DryRun bool
}

// Stack is everything a command needs.
type Stack struct {
	Config *config.Config
	Log    *zap.Logger
	Store  Store
	// Repo is set in local mode, when no record API base URL is configured.
	Repo   *repo.Repo
	Tagger engine.TagExecutor
	Engine engine.Engine

	conn *sql.DB
}

// Open builds a Stack. Without api.base_url the workspace database is opened
// and migrated; otherwise the record API client is used.
func Open(ctx context.Context, opts Options) (*Stack, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(opts.Workspace); err != nil {
			return nil, err
		}
	}
	log := logging.OrNop(opts.Log)
	s := &Stack{Config: cfg, Log: log}

	if cfg.API.BaseURL != "" {
		client := records.New(cfg.API.BaseURL, cfg.API.Token)
		client.Timeout = cfg.Timeout()
		s.Store = client
	} else {
		conn, err := OpenRepo(ctx, opts.Workspace)
		if err != nil {
			return nil, err
		}
		r := repo.New(conn)
		s.conn = conn
		s.Repo = &r
		s.Store = r
	}

	tagger, err := NewTagger(ctx, cfg, opts.DryRun, log)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Tagger = tagger

	var notifier engine.Notifier
	if cfg.Notifications.Enabled {
		notifier = notify.Notifier{
			Planner: notify.Planner{Directory: s.Store, Log: log},
			Dispatcher: notify.NewDispatcher(s.Store, cfg.Engine.Concurrency,
				time.Duration(cfg.Notifications.CallTimeoutSeconds)*time.Second, log),
		}
	}
	s.Engine = engine.New(s.Store, tagger, notifier, log)
	s.Engine.Concurrency = cfg.Engine.Concurrency
	s.Engine.Defaults = defaults(cfg)
	return s, nil
}

// OpenRepo opens and migrates the workspace database.
func OpenRepo(ctx context.Context, workspace string) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

// NewTagger selects the tag backend named in config.
func NewTagger(ctx context.Context, cfg *config.Config, dryRun bool, log *zap.Logger) (engine.TagExecutor, error) {
	backend := cfg.Tagging.Backend
	if dryRun {
		backend = config.BackendDryRun
	}
	switch backend {
	case config.BackendHTTP:
		return tagging.NewHTTPExecutor(cfg.Tagging.Endpoint, cfg.API.Token, cfg.Timeout(), defaults(cfg), log), nil
	case config.BackendEC2:
		ec2, err := tagging.NewEC2Executor(ctx, defaults(cfg), log)
		if err != nil {
			return nil, fmt.Errorf("ec2 backend: %w", err)
		}
		return ec2, nil
	case config.BackendDryRun, "":
		return &tagging.Recorder{Defaults: defaults(cfg), Log: log}, nil
	default:
		return nil, fmt.Errorf("unknown tagging backend %q", backend)
	}
}

func defaults(cfg *config.Config) tagging.Defaults {
	return tagging.Defaults{
		Region:       cfg.Tagging.DefaultRegion,
		ResourceType: cfg.Tagging.DefaultResourceType,
	}
}

// Close releases the database, if any.
func (s *Stack) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
