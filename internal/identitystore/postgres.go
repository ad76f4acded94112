// Package identitystore persists identities, role grants and audit entries.
package identitystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-hr/internal/audit"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
	"github.com/odyssey-erp/odyssey-hr/internal/users"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DB is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements the users, rbac and audit repositories on PostgreSQL.
type Postgres struct {
	db      DB
	builder squirrel.StatementBuilderType
}

var (
	_ users.Repository = (*Postgres)(nil)
	_ rbac.Repository  = (*Postgres)(nil)
	_ audit.Repository = (*Postgres)(nil)
)

// NewPostgres wraps db.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

var identityColumns = []string{
	"id", "identifier", "display_name", "email", "phone", "credential_hash",
	"active", "rotation_required", "created_at", "updated_at",
}

var grantColumns = []string{
	"id", "identifier", "role", "granted_at", "expires_at", "granted_by", "state", "ended_at", "end_reason",
}

// FindByIdentifier returns the identity or shared.ErrNotFound.
func (p *Postgres) FindByIdentifier(ctx context.Context, identifier string) (users.Identity, error) {
	stmt, args, err := p.builder.Select(identityColumns...).
		From("identities").
		Where(squirrel.Eq{"identifier": identifier}).
		Limit(1).
		ToSql()
	if err != nil {
		return users.Identity{}, fmt.Errorf("build select identity sql: %w", err)
	}
	var i users.Identity
	err = p.db.QueryRow(ctx, stmt, args...).Scan(
		&i.ID, &i.Identifier, &i.DisplayName, &i.Email, &i.Phone, &i.CredentialHash,
		&i.Active, &i.RotationRequired, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return users.Identity{}, shared.ErrNotFound
		}
		return users.Identity{}, fmt.Errorf("select identity: %w", err)
	}
	return i, nil
}

// InsertIdentity stores identity. A taken identifier yields shared.ErrDuplicateIdentifier.
func (p *Postgres) InsertIdentity(ctx context.Context, i users.Identity) error {
	stmt, args, err := p.builder.Insert("identities").
		Columns(identityColumns...).
		Values(i.ID, i.Identifier, i.DisplayName, i.Email, i.Phone, i.CredentialHash,
			i.Active, i.RotationRequired, i.CreatedAt, i.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert identity sql: %w", err)
	}
	if _, err := p.db.Exec(ctx, stmt, args...); err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return fmt.Errorf("%w: %s", shared.ErrDuplicateIdentifier, i.Identifier)
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// UpdateCredential replaces the credential hash and rotation flag.
func (p *Postgres) UpdateCredential(ctx context.Context, identifier, credentialHash string, rotationRequired bool, at time.Time) error {
	stmt, args, err := p.builder.Update("identities").
		Set("credential_hash", credentialHash).
		Set("rotation_required", rotationRequired).
		Set("updated_at", at).
		Where(squirrel.Eq{"identifier": identifier}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update credential sql: %w", err)
	}
	res, err := p.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if res.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetActive flips the active flag and reports whether it changed.
func (p *Postgres) SetActive(ctx context.Context, identifier string, active bool, at time.Time) (bool, error) {
	stmt, args, err := p.builder.Update("identities").
		Set("active", active).
		Set("updated_at", at).
		Where(squirrel.Eq{"identifier": identifier}).
		Where(squirrel.NotEq{"active": active}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build set active sql: %w", err)
	}
	res, err := p.db.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("set active: %w", err)
	}
	if res.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := p.FindSubject(ctx, identifier); err != nil {
		return false, err
	}
	return false, nil
}

// FindSubject returns the identity's active flag or shared.ErrNotFound.
func (p *Postgres) FindSubject(ctx context.Context, identifier string) (rbac.Subject, error) {
	stmt, args, err := p.builder.Select("identifier", "active").
		From("identities").
		Where(squirrel.Eq{"identifier": identifier}).
		Limit(1).
		ToSql()
	if err != nil {
		return rbac.Subject{}, fmt.Errorf("build select subject sql: %w", err)
	}
	var s rbac.Subject
	if err := p.db.QueryRow(ctx, stmt, args...).Scan(&s.Identifier, &s.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Subject{}, shared.ErrNotFound
		}
		return rbac.Subject{}, fmt.Errorf("select subject: %w", err)
	}
	return s, nil
}

// FindActiveGrant returns the active grant for the pair or shared.ErrNotFound.
func (p *Postgres) FindActiveGrant(ctx context.Context, identifier string, role rbac.RoleName) (rbac.Grant, error) {
	stmt, args, err := p.builder.Select(grantColumns...).
		From("role_grants").
		Where(squirrel.Eq{"identifier": identifier, "role": string(role), "state": string(rbac.GrantActive)}).
		Limit(1).
		ToSql()
	if err != nil {
		return rbac.Grant{}, fmt.Errorf("build select grant sql: %w", err)
	}
	g, err := scanGrant(p.db.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Grant{}, shared.ErrNotFound
		}
		return rbac.Grant{}, fmt.Errorf("select grant: %w", err)
	}
	return g, nil
}

// InsertGrant stores grant. The partial unique index on active grants turns a
// concurrent duplicate into rbac.ErrGrantExists.
func (p *Postgres) InsertGrant(ctx context.Context, g rbac.Grant) error {
	stmt, args, err := p.builder.Insert("role_grants").
		Columns(grantColumns...).
		Values(g.ID, g.Identifier, string(g.Role), g.GrantedAt, g.ExpiresAt, g.GrantedBy,
			string(g.State), g.EndedAt, g.EndReason).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert grant sql: %w", err)
	}
	if _, err := p.db.Exec(ctx, stmt, args...); err != nil {
		switch {
		case isPgCode(err, pgUniqueViolation):
			return rbac.ErrGrantExists
		case isPgCode(err, pgForeignKeyViolation):
			return rbac.ErrNotFound
		}
		return fmt.Errorf("insert grant: %w", err)
	}
	return nil
}

// TransitionGrant moves a grant out of from. It reports false when the grant was no
// longer in from.
func (p *Postgres) TransitionGrant(ctx context.Context, grantID string, from, to rbac.GrantState, at time.Time, reason string) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("%w: grant transition %s -> %s", shared.ErrInvalidInput, from, to)
	}
	stmt, args, err := p.builder.Update("role_grants").
		Set("state", string(to)).
		Set("ended_at", at).
		Set("end_reason", reason).
		Where(squirrel.Eq{"id": grantID, "state": string(from)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build transition grant sql: %w", err)
	}
	res, err := p.db.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("transition grant: %w", err)
	}
	return res.RowsAffected() == 1, nil
}

// ListActiveGrants returns every active grant of identifier.
func (p *Postgres) ListActiveGrants(ctx context.Context, identifier string) ([]rbac.Grant, error) {
	stmt, args, err := p.builder.Select(grantColumns...).
		From("role_grants").
		Where(squirrel.Eq{"identifier": identifier, "state": string(rbac.GrantActive)}).
		OrderBy("granted_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list grants sql: %w", err)
	}
	return p.queryGrants(ctx, stmt, args)
}

// ListExpiredActiveGrants returns up to limit active grants whose expiry is at or before now.
func (p *Postgres) ListExpiredActiveGrants(ctx context.Context, now time.Time, limit int) ([]rbac.Grant, error) {
	stmt, args, err := p.builder.Select(grantColumns...).
		From("role_grants").
		Where(squirrel.Eq{"state": string(rbac.GrantActive)}).
		Where(squirrel.NotEq{"expires_at": nil}).
		Where(squirrel.LtOrEq{"expires_at": now}).
		OrderBy("expires_at", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list expired grants sql: %w", err)
	}
	return p.queryGrants(ctx, stmt, args)
}

func (p *Postgres) queryGrants(ctx context.Context, stmt string, args []any) ([]rbac.Grant, error) {
	rows, err := p.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()
	var grants []rbac.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return grants, nil
}

func scanGrant(row pgx.Row) (rbac.Grant, error) {
	var (
		g           rbac.Grant
		role, state string
		expiresAt   sql.NullTime
		endedAt     sql.NullTime
	)
	if err := row.Scan(&g.ID, &g.Identifier, &role, &g.GrantedAt, &expiresAt, &g.GrantedBy, &state, &endedAt, &g.EndReason); err != nil {
		return rbac.Grant{}, err
	}
	g.Role = rbac.RoleName(role)
	g.State = rbac.GrantState(state)
	g.ExpiresAt = nullableTime(expiresAt)
	g.EndedAt = nullableTime(endedAt)
	return g, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

// AppendEntry inserts one audit entry.
func (p *Postgres) AppendEntry(ctx context.Context, e audit.Entry) error {
	meta, err := json.Marshal(metaOrEmpty(e.Meta))
	if err != nil {
		return fmt.Errorf("encode audit meta: %w", err)
	}
	stmt, args, err := p.builder.Insert("audit_entries").
		Columns("id", "at", "actor", "action", "target", "outcome", "reason", "meta").
		Values(e.ID, e.At, e.Actor, e.Action, e.Target, e.Outcome, e.Reason, meta).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit sql: %w", err)
	}
	if _, err := p.db.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListEntries returns entries matching filter, newest first.
func (p *Postgres) ListEntries(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	query := p.builder.Select("id", "at", "actor", "action", "target", "outcome", "reason", "meta").
		From("audit_entries")
	if f.Actor != "" {
		query = query.Where(squirrel.Eq{"actor": f.Actor})
	}
	if f.Action != "" {
		query = query.Where(squirrel.Eq{"action": f.Action})
	}
	if f.Target != "" {
		query = query.Where(squirrel.Eq{"target": f.Target})
	}
	if !f.From.IsZero() {
		query = query.Where(squirrel.GtOrEq{"at": f.From})
	}
	if !f.To.IsZero() {
		query = query.Where(squirrel.Lt{"at": f.To})
	}
	query = query.OrderBy("at DESC", "id DESC")
	if f.Limit > 0 {
		query = query.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		query = query.Offset(uint64(f.Offset))
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit sql: %w", err)
	}

	rows, err := p.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e    audit.Entry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.At, &e.Actor, &e.Action, &e.Target, &e.Outcome, &e.Reason, &meta); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, fmt.Errorf("decode audit meta: %w", err)
			}
		}
		e.At = e.At.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func metaOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
