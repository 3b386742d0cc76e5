// Package domain defines typed identifiers shared across features.
//
// Every aggregate gets its own UUID-backed type so tenant, client, case and
// workspace identifiers can never be swapped for one another at a call site.
// Parsing enforces "valid, non-empty, non-nil UUID" at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "docket/pkg/domain-errors"
)

type (
	// TenantID identifies the customer organization owning a record. It is
	// the isolation boundary for every read and mutation in the core.
	TenantID uuid.UUID

	// UserID identifies an acting staff user (attorney, paralegal, admin).
	UserID uuid.UUID

	// ClientID identifies a deduplicated legal client identity.
	ClientID uuid.UUID

	// CaseID identifies a legal matter owned by a client.
	CaseID uuid.UUID

	// DocumentID identifies a content-addressed document under a case.
	DocumentID uuid.UUID

	// WorkspaceID identifies a reasoning workspace.
	WorkspaceID uuid.UUID

	// FactID identifies a fact recorded in a workspace.
	FactID uuid.UUID

	// ElementID identifies a missing element tracked by a workspace.
	ElementID uuid.UUID

	// RiskID identifies a risk assessment in a workspace.
	RiskID uuid.UUID

	// ActionID identifies a proposed action in a workspace.
	ActionID uuid.UUID

	// TraceID identifies an entry in a workspace's reasoning trace.
	TraceID uuid.UUID

	// EntryID identifies an immutable ledger entry.
	EntryID uuid.UUID
)

func parse(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

// ParseTenantID parses a tenant identifier from its string form.
func ParseTenantID(raw string) (TenantID, error) {
	parsed, err := parse(raw)
	return TenantID(parsed), err
}

// ParseUserID parses a user identifier from its string form.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parse(raw)
	return UserID(parsed), err
}

// ParseClientID parses a client identifier from its string form.
func ParseClientID(raw string) (ClientID, error) {
	parsed, err := parse(raw)
	return ClientID(parsed), err
}

// ParseCaseID parses a case identifier from its string form.
func ParseCaseID(raw string) (CaseID, error) {
	parsed, err := parse(raw)
	return CaseID(parsed), err
}

// ParseDocumentID parses a document identifier from its string form.
func ParseDocumentID(raw string) (DocumentID, error) {
	parsed, err := parse(raw)
	return DocumentID(parsed), err
}

// ParseWorkspaceID parses a workspace identifier from its string form.
func ParseWorkspaceID(raw string) (WorkspaceID, error) {
	parsed, err := parse(raw)
	return WorkspaceID(parsed), err
}

// ParseElementID parses a missing-element identifier from its string form.
func ParseElementID(raw string) (ElementID, error) {
	parsed, err := parse(raw)
	return ElementID(parsed), err
}

// ParseActionID parses a proposed-action identifier from its string form.
func ParseActionID(raw string) (ActionID, error) {
	parsed, err := parse(raw)
	return ActionID(parsed), err
}

// ParseEntryID parses a ledger entry identifier from its string form.
func ParseEntryID(raw string) (EntryID, error) {
	parsed, err := parse(raw)
	return EntryID(parsed), err
}

func (id TenantID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ClientID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id CaseID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id WorkspaceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id FactID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ElementID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RiskID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ActionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id TraceID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

func (id TenantID) String() string    { return uuid.UUID(id).String() }
func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id ClientID) String() string    { return uuid.UUID(id).String() }
func (id CaseID) String() string      { return uuid.UUID(id).String() }
func (id DocumentID) String() string  { return uuid.UUID(id).String() }
func (id WorkspaceID) String() string { return uuid.UUID(id).String() }
func (id FactID) String() string      { return uuid.UUID(id).String() }
func (id ElementID) String() string   { return uuid.UUID(id).String() }
func (id RiskID) String() string      { return uuid.UUID(id).String() }
func (id ActionID) String() string    { return uuid.UUID(id).String() }
func (id TraceID) String() string     { return uuid.UUID(id).String() }
func (id EntryID) String() string     { return uuid.UUID(id).String() }
