package audit

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Repository is the append-only persistence contract for audit entries.
type Repository interface {
	AppendEntry(ctx context.Context, entry Entry) error
	ListEntries(ctx context.Context, filter Filter) ([]Entry, error)
}

// Log writes and reads audit entries.
type Log struct {
	repo    Repository
	logger  *slog.Logger
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
	mu      sync.Mutex
}

// NewLog builds an audit log on top of repo.
func NewLog(repo Repository, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		repo:    repo,
		logger:  logger,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Append stamps and persists entry. Any persistence failure is returned wrapped in
// shared.ErrAuditWriteFailed and logged at error level.
func (l *Log) Append(ctx context.Context, entry Entry) error {
	if l == nil || l.repo == nil {
		return fmt.Errorf("%w: audit log not configured", shared.ErrAuditWriteFailed)
	}
	entry.Action = strings.TrimSpace(entry.Action)
	entry.Actor = strings.TrimSpace(entry.Actor)
	if entry.Action == "" || entry.Actor == "" || entry.Outcome == "" {
		return fmt.Errorf("%w: entry requires actor/action/outcome", shared.ErrAuditWriteFailed)
	}
	if entry.At.IsZero() {
		entry.At = l.now()
	}
	entry.At = entry.At.UTC()
	if entry.ID == "" {
		id, err := l.newID(entry.At)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAuditWriteFailed, err)
		}
		entry.ID = id
	}
	entry.Meta = maps.Clone(entry.Meta)
	if err := l.repo.AppendEntry(ctx, entry); err != nil {
		l.logger.Error("audit write failed",
			slog.String("action", entry.Action),
			slog.String("actor", entry.Actor),
			slog.String("target", entry.Target),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %s: %w", shared.ErrAuditWriteFailed, entry.Action, err)
	}
	return nil
}

// List returns entries matching filter, newest first.
func (l *Log) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if l == nil || l.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.NewFormatError("range", "to must not precede from")
	}
	return l.repo.ListEntries(ctx, filter)
}

func (l *Log) newID(at time.Time) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), l.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
