package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-hr/internal/identitystore"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/db"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/mailer"
	"github.com/odyssey-erp/odyssey-hr/internal/users"
)

// OpenedStore bundles a Store with its health probe and release hook.
type OpenedStore struct {
	Store  Store
	Health HealthCheck
	Close  func()
}

// OpenStore connects the backend selected by cfg.Store. The postgres backend
// is migrated when migrate is true.
func OpenStore(ctx context.Context, cfg *Config, migrate bool) (*OpenedStore, error) {
	switch cfg.Store {
	case StoreMemory:
		return &OpenedStore{Store: identitystore.NewMemory(), Close: func() {}}, nil
	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{
			MaxConns:        cfg.PGMaxConns,
			MaxConnLifetime: cfg.PGConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := identitystore.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &OpenedStore{
			Store:  identitystore.NewPostgres(pool),
			Health: pool.Ping,
			Close:  pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("app: unknown store %q", cfg.Store)
	}
}

// RedisOptions maps cfg onto the cache client options.
func (c *Config) RedisOptions() cache.Options {
	return cache.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// AsynqRedis maps cfg onto the queue connection options.
func (c *Config) AsynqRedis() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// NewMailNotifier builds the SMTP-backed provisioning notifier.
func NewMailNotifier(cfg *Config) (*users.MailNotifier, error) {
	sender, err := mailer.NewSMTP(mailer.Config{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUsername,
		Password:    cfg.SMTPPassword,
		From:        cfg.SMTPFrom,
		DialTimeout: cfg.NotifyTimeout,
		RequireTLS:  cfg.SMTPRequireTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("app: smtp: %w", err)
	}
	return users.NewMailNotifier(sender, cfg.MailLoginURL), nil
}
