// Package ledger implements the append-only, hash-chained audit trail.
//
// Every mutation in the resolver and the reasoning workspace lands here as an
// Entry. Entries are never updated or deleted: the public interface exposes no
// such operation and the Postgres store installs triggers that reject direct
// rewrites. Tampering is detectable two ways: the SHA-256 chain hash (each
// entry's hash input includes its predecessor's hash) and an independent
// BLAKE2b checksum over the full entry payload.
package ledger

import (
	"encoding/json"
	"time"

	id "docket/pkg/domain"
	"docket/pkg/hashing"
)

// Action is the kind of mutation an entry documents.
type Action string

const (
	// Resolver actions
	ActionClientCreated    Action = "client_created"
	ActionClientMatched    Action = "client_matched"
	ActionCaseCreated      Action = "case_created"
	ActionDocumentIngested Action = "document_ingested"

	// Workspace actions
	ActionWorkspaceCreated  Action = "workspace_created"
	ActionFactAdded         Action = "fact_added"
	ActionElementAdded      Action = "missing_element_added"
	ActionElementResolved   Action = "missing_element_resolved"
	ActionRiskAdded         Action = "risk_added"
	ActionActionProposed    Action = "action_proposed"
	ActionActionExecuted    Action = "action_executed"
	ActionStateChanged      Action = "workspace_state_changed"
	ActionWorkspaceLocked   Action = "workspace_locked"
	ActionWorkspaceUnlocked Action = "workspace_unlocked"
)

// Entity types targeted by ledger entries.
const (
	EntityClient    = "client"
	EntityCase      = "case"
	EntityDocument  = "document"
	EntityWorkspace = "workspace"
)

// Entry is one immutable record in a tenant's hash chain.
//
// EntryHash is a deterministic function of (action, entity type, entity id,
// timestamp, previous entry's hash), so the whole chain is verifiable without
// external storage. Checksum independently covers the full payload for
// per-entry corruption detection. PrevEntryID is the per-tenant chain
// pointer; nil marks the first entry of a chain.
type Entry struct {
	ID         id.EntryID      `json:"id"`
	TenantID   id.TenantID     `json:"tenant_id"`
	ActorID    id.UserID       `json:"actor_id"`
	ActorEmail string          `json:"actor_email,omitempty"`
	ActorRole  string          `json:"actor_role,omitempty"`
	Action     Action          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	ClientIP   string          `json:"client_ip,omitempty"`
	Device     string          `json:"device,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	EntryHash  string          `json:"entry_hash"`
	PrevID     *id.EntryID     `json:"prev_entry_id,omitempty"`
	Checksum   string          `json:"checksum"`
}

// checksumPayload fixes the field order for checksum computation. All fields
// are scalars or RawMessage so json.Marshal is deterministic.
type checksumPayload struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	ActorID    string          `json:"actor_id"`
	ActorEmail string          `json:"actor_email"`
	ActorRole  string          `json:"actor_role"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	RequestID  string          `json:"request_id"`
	ClientIP   string          `json:"client_ip"`
	Device     string          `json:"device"`
	Timestamp  string          `json:"timestamp"`
	EntryHash  string          `json:"entry_hash"`
	PrevID     string          `json:"prev_entry_id"`
}

// ComputeChecksum returns the BLAKE2b digest over the entry's full payload,
// excluding the checksum column itself.
func (e *Entry) ComputeChecksum() string {
	prev := ""
	if e.PrevID != nil {
		prev = e.PrevID.String()
	}
	payload := checksumPayload{
		ID:         e.ID.String(),
		TenantID:   e.TenantID.String(),
		ActorID:    e.ActorID.String(),
		ActorEmail: e.ActorEmail,
		ActorRole:  e.ActorRole,
		Action:     string(e.Action),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Before:     e.Before,
		After:      e.After,
		RequestID:  e.RequestID,
		ClientIP:   e.ClientIP,
		Device:     e.Device,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		EntryHash:  e.EntryHash,
		PrevID:     prev,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		// All fields are marshal-safe; unreachable in practice.
		return ""
	}
	return hashing.Checksum(raw)
}

// ComputeHash recomputes the chain hash from the entry's stored fields and
// the given predecessor hash (empty for the first entry).
func (e *Entry) ComputeHash(prevHash string) string {
	return hashing.Entry(string(e.Action), e.EntityType, e.EntityID, e.Timestamp, prevHash)
}

// Filter narrows audit-trail queries. Zero values mean "no constraint".
type Filter struct {
	Action Action
	Actor  id.UserID
	From   time.Time
	To     time.Time
}

// Report is the result of a full-chain verification scan. Verification never
// fails outright on the first corrupted entry; operators get the complete
// picture so corruption can be investigated without losing other data.
type Report struct {
	TenantID     id.TenantID  `json:"tenant_id"`
	Total        int          `json:"total"`
	CorruptedIDs []id.EntryID `json:"corrupted_ids"`
	ScannedAt    time.Time    `json:"scanned_at"`
}

// Clean reports whether the scan found no corruption.
func (r *Report) Clean() bool { return len(r.CorruptedIDs) == 0 }
