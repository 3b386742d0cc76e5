package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"docket/internal/workspace/models"
	id "docket/pkg/domain"
	"docket/pkg/platform/sentinel"
	txcontext "docket/pkg/platform/tx"
)

// Postgres persists workspaces. Apply runs the workspace update, the child
// write and the trace insert in one transaction; the version predicate on the
// update doubles as an optimistic lock serializing mutations per workspace.
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

func (s *Postgres) Create(ctx context.Context, ws *models.Workspace, trace *models.TraceEntry) error {
	return s.inTx(ctx, func(tx dbExecutor) error {
		query := `
			INSERT INTO workspaces (
				id, tenant_id, owner_id, client_id, case_id,
				source_type, source_payload, source_metadata,
				state, state_changed_at, state_changed_by,
				uncertainty, confidence, quality_score, locked, version, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`
		_, err := tx.ExecContext(ctx, query,
			uuid.UUID(ws.ID),
			uuid.UUID(ws.TenantID),
			uuid.UUID(ws.OwnerID),
			nullableID((*uuid.UUID)(ws.ClientID)),
			nullableID((*uuid.UUID)(ws.CaseID)),
			ws.SourceType,
			nullableJSON(ws.SourcePayload),
			nullableJSON(ws.SourceMetadata),
			string(ws.State),
			ws.StateChangedAt,
			uuid.UUID(ws.StateChangedBy),
			ws.Uncertainty,
			ws.Confidence,
			ws.QualityScore,
			ws.Locked,
			ws.Version,
			ws.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert workspace: %w", err)
		}
		return s.insertTrace(ctx, tx, trace)
	})
}

const workspaceColumns = `
	id, tenant_id, owner_id, client_id, case_id,
	source_type, source_payload, source_metadata,
	state, state_changed_at, state_changed_by,
	uncertainty, confidence, quality_score, locked, version, created_at
`

func (s *Postgres) FindByID(ctx context.Context, wsID id.WorkspaceID) (*models.Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE id = $1`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(wsID))
	return scanWorkspace(row)
}

// Apply commits one mutation. The update predicate on version returns zero
// rows for both a missing workspace and a stale version; the follow-up
// existence check separates the two.
func (s *Postgres) Apply(ctx context.Context, mut Mutation) error {
	return s.inTx(ctx, func(tx dbExecutor) error {
		ws := mut.Workspace
		query := `
			UPDATE workspaces
			SET state = $1, state_changed_at = $2, state_changed_by = $3,
			    uncertainty = $4, confidence = $5, quality_score = $6,
			    locked = $7, client_id = $8, case_id = $9, version = $10
			WHERE id = $11 AND version = $12
		`
		res, err := tx.ExecContext(ctx, query,
			string(ws.State),
			ws.StateChangedAt,
			uuid.UUID(ws.StateChangedBy),
			ws.Uncertainty,
			ws.Confidence,
			ws.QualityScore,
			ws.Locked,
			nullableID((*uuid.UUID)(ws.ClientID)),
			nullableID((*uuid.UUID)(ws.CaseID)),
			ws.Version,
			uuid.UUID(ws.ID),
			mut.ExpectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update workspace: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update workspace: %w", err)
		}
		if affected == 0 {
			var exists bool
			row := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM workspaces WHERE id = $1)`, uuid.UUID(ws.ID))
			if err := row.Scan(&exists); err != nil {
				return fmt.Errorf("check workspace existence: %w", err)
			}
			if !exists {
				return sentinel.ErrNotFound
			}
			return sentinel.ErrConflict
		}

		if mut.NewFact != nil {
			if err := s.insertFact(ctx, tx, mut.NewFact); err != nil {
				return err
			}
		}
		if mut.NewElement != nil {
			if err := s.insertElement(ctx, tx, mut.NewElement); err != nil {
				return err
			}
		}
		if mut.ResolvedElement != nil {
			if err := s.updateElement(ctx, tx, mut.ResolvedElement); err != nil {
				return err
			}
		}
		if mut.NewRisk != nil {
			if err := s.insertRisk(ctx, tx, mut.NewRisk); err != nil {
				return err
			}
		}
		if mut.NewAction != nil {
			if err := s.insertAction(ctx, tx, mut.NewAction); err != nil {
				return err
			}
		}
		if mut.ExecutedAction != nil {
			if err := s.updateAction(ctx, tx, mut.ExecutedAction); err != nil {
				return err
			}
		}
		return s.insertTrace(ctx, tx, mut.Trace)
	})
}

// InTx begins a transaction, places it in context for every store touched by
// fn, and commits when fn succeeds. Joins a transaction already in context
// instead of nesting.
func (s *Postgres) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin workspace tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit workspace tx: %w", err)
	}
	return nil
}

// inTx runs fn inside the caller's transaction when one is in context,
// otherwise inside a fresh one.
func (s *Postgres) inTx(ctx context.Context, fn func(dbExecutor) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin workspace tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit workspace tx: %w", err)
	}
	return nil
}

func (s *Postgres) insertFact(ctx context.Context, tx dbExecutor, f *models.Fact) error {
	query := `
		INSERT INTO facts (id, workspace_id, label, value, provenance, confidence, source_ref, added_by, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		uuid.UUID(f.ID), uuid.UUID(f.WorkspaceID), f.Label, f.Value,
		string(f.Provenance), f.Confidence, f.SourceRef, uuid.UUID(f.AddedBy), f.AddedAt)
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

func (s *Postgres) insertElement(ctx context.Context, tx dbExecutor, e *models.MissingElement) error {
	query := `
		INSERT INTO missing_elements (id, workspace_id, description, blocking, resolved, resolution, resolved_by, resolved_at, added_by, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.ExecContext(ctx, query,
		uuid.UUID(e.ID), uuid.UUID(e.WorkspaceID), e.Description, e.Blocking,
		e.Resolved, e.Resolution, nullableID((*uuid.UUID)(e.ResolvedBy)), e.ResolvedAt,
		uuid.UUID(e.AddedBy), e.AddedAt)
	if err != nil {
		return fmt.Errorf("insert missing element: %w", err)
	}
	return nil
}

func (s *Postgres) updateElement(ctx context.Context, tx dbExecutor, e *models.MissingElement) error {
	query := `
		UPDATE missing_elements
		SET resolved = $1, resolution = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $5
	`
	_, err := tx.ExecContext(ctx, query,
		e.Resolved, e.Resolution, nullableID((*uuid.UUID)(e.ResolvedBy)), e.ResolvedAt, uuid.UUID(e.ID))
	if err != nil {
		return fmt.Errorf("update missing element: %w", err)
	}
	return nil
}

func (s *Postgres) insertRisk(ctx context.Context, tx dbExecutor, r *models.Risk) error {
	query := `
		INSERT INTO risks (id, workspace_id, category, probability, severity, score, priority, added_by, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		uuid.UUID(r.ID), uuid.UUID(r.WorkspaceID), r.Category,
		r.Probability, r.Severity, r.Score, r.Priority, uuid.UUID(r.AddedBy), r.AddedAt)
	if err != nil {
		return fmt.Errorf("insert risk: %w", err)
	}
	return nil
}

func (s *Postgres) insertAction(ctx context.Context, tx dbExecutor, a *models.ProposedAction) error {
	query := `
		INSERT INTO proposed_actions (id, workspace_id, description, executed, executed_by, executed_at, result, proposed_by, proposed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		uuid.UUID(a.ID), uuid.UUID(a.WorkspaceID), a.Description, a.Executed,
		nullableID((*uuid.UUID)(a.ExecutedBy)), a.ExecutedAt, a.Result,
		uuid.UUID(a.ProposedBy), a.ProposedAt)
	if err != nil {
		return fmt.Errorf("insert proposed action: %w", err)
	}
	return nil
}

func (s *Postgres) updateAction(ctx context.Context, tx dbExecutor, a *models.ProposedAction) error {
	query := `
		UPDATE proposed_actions
		SET executed = $1, executed_by = $2, executed_at = $3, result = $4
		WHERE id = $5
	`
	_, err := tx.ExecContext(ctx, query,
		a.Executed, nullableID((*uuid.UUID)(a.ExecutedBy)), a.ExecutedAt, a.Result, uuid.UUID(a.ID))
	if err != nil {
		return fmt.Errorf("update proposed action: %w", err)
	}
	return nil
}

func (s *Postgres) insertTrace(ctx context.Context, tx dbExecutor, t *models.TraceEntry) error {
	query := `
		INSERT INTO reasoning_traces (id, workspace_id, step, explanation, metadata, author_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		uuid.UUID(t.ID), uuid.UUID(t.WorkspaceID), t.Step, t.Explanation,
		nullableJSON(t.Metadata), uuid.UUID(t.AuthorID), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reasoning trace: %w", err)
	}
	return nil
}

func (s *Postgres) FindElement(ctx context.Context, elementID id.ElementID) (*models.MissingElement, error) {
	query := `
		SELECT id, workspace_id, description, blocking, resolved, resolution, resolved_by, resolved_at, added_by, added_at
		FROM missing_elements WHERE id = $1
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(elementID))
	return scanElement(row)
}

func (s *Postgres) FindAction(ctx context.Context, actionID id.ActionID) (*models.ProposedAction, error) {
	query := `
		SELECT id, workspace_id, description, executed, executed_by, executed_at, result, proposed_by, proposed_at
		FROM proposed_actions WHERE id = $1
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(actionID))
	return scanAction(row)
}

func (s *Postgres) ListFacts(ctx context.Context, wsID id.WorkspaceID) ([]*models.Fact, error) {
	query := `
		SELECT id, workspace_id, label, value, provenance, confidence, source_ref, added_by, added_at
		FROM facts WHERE workspace_id = $1 ORDER BY added_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(wsID))
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []*models.Fact
	for rows.Next() {
		var (
			f      models.Fact
			factID uuid.UUID
			wid    uuid.UUID
			by     uuid.UUID
			prov   string
		)
		if err := rows.Scan(&factID, &wid, &f.Label, &f.Value, &prov, &f.Confidence, &f.SourceRef, &by, &f.AddedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.ID = id.FactID(factID)
		f.WorkspaceID = id.WorkspaceID(wid)
		f.Provenance = models.Provenance(prov)
		f.AddedBy = id.UserID(by)
		facts = append(facts, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return facts, nil
}

func (s *Postgres) ListElements(ctx context.Context, wsID id.WorkspaceID) ([]*models.MissingElement, error) {
	query := `
		SELECT id, workspace_id, description, blocking, resolved, resolution, resolved_by, resolved_at, added_by, added_at
		FROM missing_elements WHERE workspace_id = $1 ORDER BY added_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(wsID))
	if err != nil {
		return nil, fmt.Errorf("query missing elements: %w", err)
	}
	defer rows.Close()

	var elements []*models.MissingElement
	for rows.Next() {
		element, err := scanElement(rows)
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate missing elements: %w", err)
	}
	return elements, nil
}

func (s *Postgres) ListRisks(ctx context.Context, wsID id.WorkspaceID) ([]*models.Risk, error) {
	query := `
		SELECT id, workspace_id, category, probability, severity, score, priority, added_by, added_at
		FROM risks WHERE workspace_id = $1 ORDER BY added_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(wsID))
	if err != nil {
		return nil, fmt.Errorf("query risks: %w", err)
	}
	defer rows.Close()

	var risks []*models.Risk
	for rows.Next() {
		var (
			r      models.Risk
			riskID uuid.UUID
			wid    uuid.UUID
			by     uuid.UUID
		)
		if err := rows.Scan(&riskID, &wid, &r.Category, &r.Probability, &r.Severity, &r.Score, &r.Priority, &by, &r.AddedAt); err != nil {
			return nil, fmt.Errorf("scan risk: %w", err)
		}
		r.ID = id.RiskID(riskID)
		r.WorkspaceID = id.WorkspaceID(wid)
		r.AddedBy = id.UserID(by)
		risks = append(risks, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risks: %w", err)
	}
	return risks, nil
}

func (s *Postgres) ListActions(ctx context.Context, wsID id.WorkspaceID) ([]*models.ProposedAction, error) {
	query := `
		SELECT id, workspace_id, description, executed, executed_by, executed_at, result, proposed_by, proposed_at
		FROM proposed_actions WHERE workspace_id = $1 ORDER BY proposed_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(wsID))
	if err != nil {
		return nil, fmt.Errorf("query proposed actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.ProposedAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposed actions: %w", err)
	}
	return actions, nil
}

func (s *Postgres) ListTraces(ctx context.Context, wsID id.WorkspaceID) ([]*models.TraceEntry, error) {
	query := `
		SELECT id, workspace_id, step, explanation, metadata, author_id, created_at
		FROM reasoning_traces WHERE workspace_id = $1 ORDER BY created_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(wsID))
	if err != nil {
		return nil, fmt.Errorf("query reasoning traces: %w", err)
	}
	defer rows.Close()

	var traces []*models.TraceEntry
	for rows.Next() {
		var (
			t       models.TraceEntry
			traceID uuid.UUID
			wid     uuid.UUID
			author  uuid.UUID
			meta    []byte
		)
		if err := rows.Scan(&traceID, &wid, &t.Step, &t.Explanation, &meta, &author, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reasoning trace: %w", err)
		}
		t.ID = id.TraceID(traceID)
		t.WorkspaceID = id.WorkspaceID(wid)
		t.AuthorID = id.UserID(author)
		t.Metadata = meta
		traces = append(traces, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reasoning traces: %w", err)
	}
	return traces, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row rowScanner) (*models.Workspace, error) {
	var (
		ws       models.Workspace
		wsID     uuid.UUID
		tenantID uuid.UUID
		ownerID  uuid.UUID
		clientID *uuid.UUID
		caseID   *uuid.UUID
		changed  uuid.UUID
		state    string
		payload  []byte
		metadata []byte
	)
	err := row.Scan(
		&wsID, &tenantID, &ownerID, &clientID, &caseID,
		&ws.SourceType, &payload, &metadata,
		&state, &ws.StateChangedAt, &changed,
		&ws.Uncertainty, &ws.Confidence, &ws.QualityScore, &ws.Locked, &ws.Version, &ws.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	ws.ID = id.WorkspaceID(wsID)
	ws.TenantID = id.TenantID(tenantID)
	ws.OwnerID = id.UserID(ownerID)
	ws.StateChangedBy = id.UserID(changed)
	ws.State = models.State(state)
	ws.SourcePayload = payload
	ws.SourceMetadata = metadata
	if clientID != nil {
		c := id.ClientID(*clientID)
		ws.ClientID = &c
	}
	if caseID != nil {
		c := id.CaseID(*caseID)
		ws.CaseID = &c
	}
	return &ws, nil
}

func scanElement(row rowScanner) (*models.MissingElement, error) {
	var (
		e          models.MissingElement
		elementID  uuid.UUID
		wid        uuid.UUID
		resolvedBy *uuid.UUID
		addedBy    uuid.UUID
	)
	err := row.Scan(&elementID, &wid, &e.Description, &e.Blocking, &e.Resolved,
		&e.Resolution, &resolvedBy, &e.ResolvedAt, &addedBy, &e.AddedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan missing element: %w", err)
	}
	e.ID = id.ElementID(elementID)
	e.WorkspaceID = id.WorkspaceID(wid)
	e.AddedBy = id.UserID(addedBy)
	if resolvedBy != nil {
		u := id.UserID(*resolvedBy)
		e.ResolvedBy = &u
	}
	return &e, nil
}

func scanAction(row rowScanner) (*models.ProposedAction, error) {
	var (
		a          models.ProposedAction
		actionID   uuid.UUID
		wid        uuid.UUID
		executedBy *uuid.UUID
		proposedBy uuid.UUID
	)
	err := row.Scan(&actionID, &wid, &a.Description, &a.Executed,
		&executedBy, &a.ExecutedAt, &a.Result, &proposedBy, &a.ProposedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan proposed action: %w", err)
	}
	a.ID = id.ActionID(actionID)
	a.WorkspaceID = id.WorkspaceID(wid)
	a.ProposedBy = id.UserID(proposedBy)
	if executedBy != nil {
		u := id.UserID(*executedBy)
		a.ExecutedBy = &u
	}
	return &a, nil
}

func nullableID(u *uuid.UUID) any {
	if u == nil {
		return nil
	}
	return *u
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
