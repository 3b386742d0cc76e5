package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"docket/internal/ledger"
	id "docket/pkg/domain"
	"docket/pkg/platform/sentinel"
	txcontext "docket/pkg/platform/tx"
)

// Postgres persists ledger entries. Chain linearity is enforced by a unique
// index on (tenant_id, prev_entry_id) with NULLS NOT DISTINCT: two entries can
// never claim the same predecessor, so a lost compare-and-swap surfaces as a
// unique violation. Immutability is enforced by BEFORE UPDATE/DELETE triggers
// installed in the migrations, so even privileged direct access cannot
// silently rewrite history.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const uniqueViolation = "23505"

// AppendCAS inserts an entry claiming expectedPrev as its predecessor.
// Returns sentinel.ErrConflict if another writer already claimed it.
func (s *Postgres) AppendCAS(ctx context.Context, entry *ledger.Entry, expectedPrev *id.EntryID) error {
	var prev *uuid.UUID
	if expectedPrev != nil {
		u := uuid.UUID(*expectedPrev)
		prev = &u
	}

	query := `
		INSERT INTO ledger_entries (
			id, tenant_id, actor_id, actor_email, actor_role,
			action, entity_type, entity_id, before_value, after_value,
			request_id, client_ip, device, ts, entry_hash, prev_entry_id, checksum
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.TenantID),
		uuid.UUID(entry.ActorID),
		entry.ActorEmail,
		entry.ActorRole,
		string(entry.Action),
		entry.EntityType,
		entry.EntityID,
		nullableJSON(entry.Before),
		nullableJSON(entry.After),
		entry.RequestID,
		entry.ClientIP,
		entry.Device,
		entry.Timestamp,
		entry.EntryHash,
		prev,
		entry.Checksum,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

const entryColumns = `
	id, tenant_id, actor_id, actor_email, actor_role,
	action, entity_type, entity_id, before_value, after_value,
	request_id, client_ip, device, ts, entry_hash, prev_entry_id, checksum
`

// Head returns the most recent entry of a tenant's chain: the one no other
// entry points at.
func (s *Postgres) Head(ctx context.Context, tenantID id.TenantID) (*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries e
		WHERE e.tenant_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM ledger_entries n WHERE n.tenant_id = $1 AND n.prev_entry_id = e.id
		  )
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID))
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query chain head: %w", err)
	}
	return entry, nil
}

func (s *Postgres) FindByID(ctx context.Context, entryID id.EntryID) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(entryID))
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query ledger entry: %w", err)
	}
	return entry, nil
}

func (s *Postgres) ListByTenant(ctx context.Context, tenantID id.TenantID, limit, offset int) ([]*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE tenant_id = $1
		ORDER BY ts, id` + limitOffset(limit, offset)
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Postgres) ListTimeline(ctx context.Context, tenantID id.TenantID, entityType, entityID string, limit, offset int) ([]*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY ts, id` + limitOffset(limit, offset)
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(tenantID), entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Postgres) ListAuditTrail(ctx context.Context, tenantID id.TenantID, filter ledger.Filter, limit, offset int) ([]*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE tenant_id = $1
		  AND ($2 = '' OR action = $2)
		  AND ($3::uuid IS NULL OR actor_id = $3)
		  AND ($4::timestamptz IS NULL OR ts >= $4)
		  AND ($5::timestamptz IS NULL OR ts <= $5)
		ORDER BY ts, id` + limitOffset(limit, offset)

	var actor *uuid.UUID
	if !filter.Actor.IsNil() {
		u := uuid.UUID(filter.Actor)
		actor = &u
	}
	var from, to any
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query,
		uuid.UUID(tenantID), string(filter.Action), actor, from, to)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func limitOffset(limit, offset int) string {
	clause := ""
	if limit > 0 {
		clause += " LIMIT " + strconv.Itoa(limit)
	}
	if offset > 0 {
		clause += " OFFSET " + strconv.Itoa(offset)
	}
	return clause
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*ledger.Entry, error) {
	var (
		entry     ledger.Entry
		entryID   uuid.UUID
		tenantID  uuid.UUID
		actorID   uuid.UUID
		action    string
		before    []byte
		after     []byte
		prevEntry *uuid.UUID
	)
	err := row.Scan(
		&entryID,
		&tenantID,
		&actorID,
		&entry.ActorEmail,
		&entry.ActorRole,
		&action,
		&entry.EntityType,
		&entry.EntityID,
		&before,
		&after,
		&entry.RequestID,
		&entry.ClientIP,
		&entry.Device,
		&entry.Timestamp,
		&entry.EntryHash,
		&prevEntry,
		&entry.Checksum,
	)
	if err != nil {
		return nil, err
	}
	entry.ID = id.EntryID(entryID)
	entry.TenantID = id.TenantID(tenantID)
	entry.ActorID = id.UserID(actorID)
	entry.Action = ledger.Action(action)
	entry.Before = before
	entry.After = after
	if prevEntry != nil {
		prev := id.EntryID(*prevEntry)
		entry.PrevID = &prev
	}
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]*ledger.Entry, error) {
	var entries []*ledger.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}
