package handler

import (
	"encoding/json"
)

type createWorkspaceRequest struct {
	SourceType     string          `json:"source_type"`
	SourcePayload  json.RawMessage `json:"source_payload,omitempty"`
	SourceMetadata json.RawMessage `json:"source_metadata,omitempty"`
	ClientID       string          `json:"client_id,omitempty"`
	CaseID         string          `json:"case_id,omitempty"`
}

type addFactRequest struct {
	Label      string `json:"label"`
	Value      string `json:"value"`
	Provenance string `json:"provenance"`
	SourceRef  string `json:"source_ref,omitempty"`
}

type addMissingElementRequest struct {
	Description string `json:"description"`
	Blocking    bool   `json:"blocking"`
}

type resolveMissingElementRequest struct {
	Resolution string `json:"resolution"`
}

type addRiskRequest struct {
	Category    string  `json:"category"`
	Probability float64 `json:"probability"`
	Severity    float64 `json:"severity"`
}

type proposeActionRequest struct {
	Description string `json:"description"`
}

type executeActionRequest struct {
	Result string `json:"result,omitempty"`
}

type transitionRequest struct {
	Event string `json:"event"`
}
