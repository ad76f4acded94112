package app

import (
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-hr/internal/audit"
	"github.com/odyssey-erp/odyssey-hr/internal/observability"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/users"
)

// Store is the persistence surface shared by every component. Both
// identitystore.Postgres and identitystore.Memory satisfy it.
type Store interface {
	users.Repository
	rbac.Repository
	audit.Repository
}

// Components holds the wired domain services.
type Components struct {
	Audit    *audit.Log
	Catalog  *rbac.Catalog
	Grants   *rbac.Service
	Checker  *rbac.Checker
	Sweeper  *rbac.Sweeper
	Accounts *users.Service
}

// ComponentDeps are the collaborators built by the calling process.
type ComponentDeps struct {
	Store    Store
	Notifier users.Notifier
	Locker   rbac.Locker
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// NewComponents wires the domain services from cfg. A nil cfg selects defaults.
func NewComponents(cfg *Config, deps ComponentDeps) (*Components, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("app: store required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	catalog := rbac.DefaultCatalog()
	if cfg.RoleCatalogPath != "" {
		loaded, err := rbac.LoadCatalog(cfg.RoleCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("app: load role catalog: %w", err)
		}
		catalog = loaded
	}

	auditLog := audit.NewLog(deps.Store, logger.With(slog.String("component", "audit")))
	grants := rbac.NewService(deps.Store, catalog, auditLog, logger.With(slog.String("component", "rbac")))

	var recorder rbac.DecisionRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	checker := rbac.NewChecker(deps.Store, catalog, auditLog, recorder, logger.With(slog.String("component", "authz")))

	sweeper := rbac.NewSweeper(deps.Store, auditLog, rbac.SweeperConfig{
		Interval:    cfg.SweepInterval,
		BatchSize:   cfg.SweepBatchSize,
		Concurrency: cfg.SweepConcurrency,
		Locker:      deps.Locker,
		Logger:      logger.With(slog.String("component", "sweeper")),
	})

	accounts := users.NewService(deps.Store, auditLog, grants, deps.Notifier,
		logger.With(slog.String("component", "accounts")),
		users.ServiceConfig{
			MaxAttempts:   cfg.ProvisionMaxAttempts,
			NotifyTimeout: cfg.NotifyTimeout,
		},
	)

	return &Components{
		Audit:    auditLog,
		Catalog:  catalog,
		Grants:   grants,
		Checker:  checker,
		Sweeper:  sweeper,
		Accounts: accounts,
	}, nil
}
