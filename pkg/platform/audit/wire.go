package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "keystone/pkg/domain"
)

// wireEvent is the JSON projection of an Event for transport. IDs travel as
// strings so consumers in other languages can read the stream.
type wireEvent struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Subtype        string         `json:"subtype"`
	Timestamp      time.Time      `json:"timestamp"`
	ActorID        string         `json:"actor_id,omitempty"`
	RelatedActorID string         `json:"related_actor_id,omitempty"`
	TenantID       string         `json:"tenant_id,omitempty"`
	Market         string         `json:"market,omitempty"`
	BusinessUnit   string         `json:"business_unit,omitempty"`
	ResourceID     string         `json:"resource_id,omitempty"`
	ResourceType   string         `json:"resource_type,omitempty"`
	Action         string         `json:"action,omitempty"`
	Result         string         `json:"result,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Severity       string         `json:"severity,omitempty"`
	Client         ClientSnapshot `json:"client,omitempty"`
	ComplianceTags []string       `json:"compliance_tags,omitempty"`
	RetentionSecs  int64          `json:"retention_seconds,omitempty"`
	IntegrityHash  string         `json:"integrity_hash,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}

// MarshalWire encodes an event for transport.
func MarshalWire(e Event) ([]byte, error) {
	w := wireEvent{
		ID:             e.ID.String(),
		Type:           e.Type,
		Subtype:        string(e.Subtype),
		Timestamp:      e.Timestamp,
		ActorID:        e.ActorID,
		RelatedActorID: e.RelatedActorID,
		Market:         string(e.Market),
		BusinessUnit:   e.BusinessUnit,
		ResourceID:     e.ResourceID,
		ResourceType:   e.ResourceType,
		Action:         e.Action,
		Result:         e.Result,
		Reason:         e.Reason,
		Severity:       string(e.Severity),
		Client:         e.Client,
		ComplianceTags: e.ComplianceTags,
		RetentionSecs:  int64(e.RetentionPeriod / time.Second),
		IntegrityHash:  e.IntegrityHash,
		Details:        e.Details,
	}
	if !e.TenantID.IsNil() {
		w.TenantID = e.TenantID.String()
	}
	return json.Marshal(w)
}

// UnmarshalWire decodes a transported event. A malformed tenant ID is an
// error; audit events without valid isolation scope must not be silently
// re-scoped.
func UnmarshalWire(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("decode audit event: %w", err)
	}

	eventID, err := uuid.Parse(w.ID)
	if err != nil {
		return Event{}, fmt.Errorf("parse audit event id: %w", err)
	}

	e := Event{
		ID:             eventID,
		Type:           w.Type,
		Subtype:        Subtype(w.Subtype),
		Timestamp:      w.Timestamp,
		ActorID:        w.ActorID,
		RelatedActorID: w.RelatedActorID,
		Market:         id.Market(w.Market),
		BusinessUnit:   w.BusinessUnit,
		ResourceID:     w.ResourceID,
		ResourceType:   w.ResourceType,
		Action:         w.Action,
		Result:         w.Result,
		Reason:         w.Reason,
		Severity:       Severity(w.Severity),
		Client:         w.Client,
		ComplianceTags: w.ComplianceTags,
		RetentionPeriod: time.Duration(w.RetentionSecs) * time.Second,
		IntegrityHash:  w.IntegrityHash,
		Details:        w.Details,
	}
	if w.TenantID != "" {
		tenantID, err := id.ParseTenantID(w.TenantID)
		if err != nil {
			return Event{}, fmt.Errorf("parse audit tenant id: %w", err)
		}
		e.TenantID = tenantID
	}
	return e, nil
}
