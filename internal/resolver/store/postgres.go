package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"docket/internal/resolver/models"
	id "docket/pkg/domain"
	"docket/pkg/platform/sentinel"
	txcontext "docket/pkg/platform/tx"
)

const uniqueViolation = "23505"

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execer(ctx context.Context, db *sql.DB) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ClientsPostgres persists client identities. A partial unique index on
// (tenant_id, email) WHERE email <> '' backs the conflict contract.
type ClientsPostgres struct {
	db *sql.DB
}

func NewClientsPostgres(db *sql.DB) *ClientsPostgres {
	return &ClientsPostgres{db: db}
}

func (s *ClientsPostgres) Create(ctx context.Context, client *models.Client) error {
	query := `
		INSERT INTO clients (id, tenant_id, email, first_name, last_name, normalized_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(client.ID),
		uuid.UUID(client.TenantID),
		client.Email,
		client.FirstName,
		client.LastName,
		client.NormalizedName,
		client.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

const clientColumns = `id, tenant_id, email, first_name, last_name, normalized_name, created_at`

func (s *ClientsPostgres) FindByID(ctx context.Context, clientID id.ClientID) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(clientID))
	return scanClient(row)
}

func (s *ClientsPostgres) FindByEmail(ctx context.Context, tenantID id.TenantID, email string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE tenant_id = $1 AND email = lower(trim($2)) AND email <> ''`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(tenantID), email)
	return scanClient(row)
}

func (s *ClientsPostgres) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE tenant_id = $1 ORDER BY created_at, id`
	rows, err := execer(ctx, s.db).QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return clients, nil
}

func scanClient(row rowScanner) (*models.Client, error) {
	var (
		client   models.Client
		clientID uuid.UUID
		tenantID uuid.UUID
	)
	err := row.Scan(
		&clientID,
		&tenantID,
		&client.Email,
		&client.FirstName,
		&client.LastName,
		&client.NormalizedName,
		&client.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan client: %w", err)
	}
	client.ID = id.ClientID(clientID)
	client.TenantID = id.TenantID(tenantID)
	return &client, nil
}

// CasesPostgres persists cases with a unique constraint on (client_id, title).
type CasesPostgres struct {
	db *sql.DB
}

func NewCasesPostgres(db *sql.DB) *CasesPostgres {
	return &CasesPostgres{db: db}
}

func (s *CasesPostgres) Create(ctx context.Context, c *models.Case) error {
	query := `
		INSERT INTO cases (id, tenant_id, client_id, title, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		uuid.UUID(c.TenantID),
		uuid.UUID(c.ClientID),
		c.Title,
		c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

const caseColumns = `id, tenant_id, client_id, title, created_at`

func (s *CasesPostgres) FindByID(ctx context.Context, caseID id.CaseID) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(caseID))
	return scanCase(row)
}

func (s *CasesPostgres) FindByClientAndTitle(ctx context.Context, clientID id.ClientID, title string) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE client_id = $1 AND title = trim($2)`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(clientID), title)
	return scanCase(row)
}

func (s *CasesPostgres) ListByClient(ctx context.Context, clientID id.ClientID) ([]*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE client_id = $1 ORDER BY created_at, id`
	rows, err := execer(ctx, s.db).QueryContext(ctx, query, uuid.UUID(clientID))
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return cases, nil
}

func scanCase(row rowScanner) (*models.Case, error) {
	var (
		c        models.Case
		caseID   uuid.UUID
		tenantID uuid.UUID
		clientID uuid.UUID
	)
	err := row.Scan(&caseID, &tenantID, &clientID, &c.Title, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan case: %w", err)
	}
	c.ID = id.CaseID(caseID)
	c.TenantID = id.TenantID(tenantID)
	c.ClientID = id.ClientID(clientID)
	return &c, nil
}

// DocumentsPostgres persists documents with a unique constraint on
// (case_id, content_hash).
type DocumentsPostgres struct {
	db *sql.DB
}

func NewDocumentsPostgres(db *sql.DB) *DocumentsPostgres {
	return &DocumentsPostgres{db: db}
}

func (s *DocumentsPostgres) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, tenant_id, case_id, name, content_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(doc.ID),
		uuid.UUID(doc.TenantID),
		uuid.UUID(doc.CaseID),
		doc.Name,
		doc.ContentHash,
		doc.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const documentColumns = `id, tenant_id, case_id, name, content_hash, created_at`

func (s *DocumentsPostgres) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(docID))
	return scanDocument(row)
}

func (s *DocumentsPostgres) FindByCaseAndHash(ctx context.Context, caseID id.CaseID, contentHash string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE case_id = $1 AND content_hash = $2`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(caseID), contentHash)
	return scanDocument(row)
}

func (s *DocumentsPostgres) ListByCase(ctx context.Context, caseID id.CaseID) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE case_id = $1 ORDER BY created_at, id`
	rows, err := execer(ctx, s.db).QueryContext(ctx, query, uuid.UUID(caseID))
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc      models.Document
		docID    uuid.UUID
		tenantID uuid.UUID
		caseID   uuid.UUID
	)
	err := row.Scan(&docID, &tenantID, &caseID, &doc.Name, &doc.ContentHash, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.ID = id.DocumentID(docID)
	doc.TenantID = id.TenantID(tenantID)
	doc.CaseID = id.CaseID(caseID)
	return &doc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
