package rbac

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-hr/internal/audit"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

const (
	// DefaultSweepInterval is the period between sweep cycles.
	DefaultSweepInterval  = 15 * time.Minute
	defaultSweepBatch     = 200
	defaultSweepWorkers   = 4
	sweepLockKey          = "rbac:grant_sweep:lock"
	expiredGrantEndReason = "expired"
)

// Locker provides a best-effort cross-process lock around a sweep cycle.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// SweeperConfig configures the sweeper.
type SweeperConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	Locker      Locker
	Logger      *slog.Logger
}

// SweepReport summarises one cycle.
type SweepReport struct {
	Scanned int
	Expired int
	Skipped bool
}

// Sweeper expires due grants. Every transition is conditional on the grant still being
// active, so overlapping or repeated cycles never double-expire or double-audit.
type Sweeper struct {
	repo        Repository
	audit       Auditor
	interval    time.Duration
	batchSize   int
	concurrency int
	locker      Locker
	logger      *slog.Logger
	now         func() time.Time
}

// NewSweeper constructs a Sweeper.
func NewSweeper(repo Repository, auditor Auditor, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatch
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultSweepWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sweeper{
		repo:        repo,
		audit:       auditor,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		locker:      cfg.Locker,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Run sweeps once immediately and then every interval until ctx is cancelled. A cycle
// that has started is not interrupted by cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.runCycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runCycle(ctx context.Context) {
	report, err := s.SweepOnce(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Error("grant sweep failed", slog.Any("error", err))
		return
	}
	if report.Expired > 0 {
		s.logger.Info("grant sweep completed",
			slog.Int("scanned", report.Scanned),
			slog.Int("expired", report.Expired),
		)
	}
}

// SweepOnce expires every active grant whose expiry has passed.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.interval)
		if err != nil {
			s.logger.Warn("grant sweep lock unavailable, sweeping unlocked", slog.Any("error", err))
		} else if !ok {
			report.Skipped = true
			return report, nil
		} else {
			defer func() {
				if err := release(ctx); err != nil {
					s.logger.Warn("grant sweep unlock", slog.Any("error", err))
				}
			}()
		}
	}

	now := s.now().UTC()
	var (
		mu        sync.Mutex
		auditErrs []error
	)
	for {
		grants, err := s.repo.ListExpiredActiveGrants(ctx, now, s.batchSize)
		if err != nil {
			return report, err
		}
		report.Scanned += len(grants)

		expired := 0
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for _, grant := range grants {
			g.Go(func() error {
				changed, err := s.repo.TransitionGrant(gctx, grant.ID, GrantActive, GrantExpired, now, expiredGrantEndReason)
				if err != nil {
					return err
				}
				if !changed {
					return nil
				}
				mu.Lock()
				expired++
				mu.Unlock()
				if err := s.audit.Append(ctx, expiryEntry(grant, now)); err != nil {
					mu.Lock()
					auditErrs = append(auditErrs, err)
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			report.Expired += expired
			return report, errors.Join(append([]error{err}, auditErrs...)...)
		}
		report.Expired += expired
		// a full batch without transitions is being handled by a concurrent sweeper
		if len(grants) < s.batchSize || expired == 0 {
			break
		}
	}
	if len(auditErrs) > 0 {
		return report, errors.Join(auditErrs...)
	}
	return report, nil
}

func expiryEntry(grant Grant, now time.Time) audit.Entry {
	meta := map[string]string{"role": string(grant.Role), "grant_id": grant.ID}
	if grant.ExpiresAt != nil {
		meta["expires_at"] = grant.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return audit.Entry{
		Actor:   shared.SystemActor,
		Action:  audit.ActionRoleExpired,
		Target:  grant.Identifier,
		Outcome: audit.OutcomeSuccess,
		Reason:  expiredGrantEndReason,
		Meta:    meta,
		At:      now,
	}
}
