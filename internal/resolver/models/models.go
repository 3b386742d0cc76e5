package models

import (
	"strings"
	"time"

	id "docket/pkg/domain"
	dErrors "docket/pkg/domain-errors"
)

// Client is a deduplicated legal client identity.
//
// Invariants:
//   - NormalizedName is non-empty (derived from first/last name)
//   - Email, when present, is unique within the tenant
//   - TenantID is immutable after construction
//   - A client is created once per unique identity and never duplicated once
//     matched; merging below the similarity threshold is forbidden
type Client struct {
	ID             id.ClientID `json:"id"`
	TenantID       id.TenantID `json:"tenant_id"`
	Email          string      `json:"email,omitempty"`
	FirstName      string      `json:"first_name"`
	LastName       string      `json:"last_name"`
	NormalizedName string      `json:"normalized_name"`
	CreatedAt      time.Time   `json:"created_at"`
}

// NewClient validates and constructs a client identity. Email may be empty;
// name parts may not both be empty.
func NewClient(clientID id.ClientID, tenantID id.TenantID, email, first, last, normalized string, now time.Time) (*Client, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "client tenant is required")
	}
	if normalized == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "client name cannot be empty")
	}
	return &Client{
		ID:             clientID,
		TenantID:       tenantID,
		Email:          strings.ToLower(strings.TrimSpace(email)),
		FirstName:      strings.TrimSpace(first),
		LastName:       strings.TrimSpace(last),
		NormalizedName: normalized,
		CreatedAt:      now,
	}, nil
}

// Case is a legal matter owned by exactly one client.
//
// Invariants:
//   - Title is non-empty and at most 256 characters
//   - (ClientID, Title) is unique; re-association is idempotent
type Case struct {
	ID        id.CaseID   `json:"id"`
	TenantID  id.TenantID `json:"tenant_id"`
	ClientID  id.ClientID `json:"client_id"`
	Title     string      `json:"title"`
	CreatedAt time.Time   `json:"created_at"`
}

func NewCase(caseID id.CaseID, tenantID id.TenantID, clientID id.ClientID, title string, now time.Time) (*Case, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "case title cannot be empty")
	}
	if len(title) > 256 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "case title must be 256 characters or less")
	}
	if clientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "case client is required")
	}
	return &Case{
		ID:        caseID,
		TenantID:  tenantID,
		ClientID:  clientID,
		Title:     title,
		CreatedAt: now,
	}, nil
}

// Document is a content-addressed file under a case.
//
// Invariants:
//   - (CaseID, ContentHash) is unique; re-ingesting identical bytes under the
//     same case is a no-op that reports "not newly created"
type Document struct {
	ID          id.DocumentID `json:"id"`
	TenantID    id.TenantID   `json:"tenant_id"`
	CaseID      id.CaseID     `json:"case_id"`
	Name        string        `json:"name"`
	ContentHash string        `json:"content_hash"`
	CreatedAt   time.Time     `json:"created_at"`
}

func NewDocument(docID id.DocumentID, tenantID id.TenantID, caseID id.CaseID, name, contentHash string, now time.Time) (*Document, error) {
	if caseID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document case is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document name cannot be empty")
	}
	if contentHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document content hash is required")
	}
	return &Document{
		ID:          docID,
		TenantID:    tenantID,
		CaseID:      caseID,
		Name:        strings.TrimSpace(name),
		ContentHash: contentHash,
		CreatedAt:   now,
	}, nil
}
