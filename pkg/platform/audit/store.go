package audit

import (
	"context"
	"time"

	id "keystone/pkg/domain"
)

// Store is the durable, append-only event sink contract. Implementations
// must never mutate or delete appended events.
type Store interface {
	Append(ctx context.Context, event Event) error
	Query(ctx context.Context, filter Filter) ([]Event, error)
}

// Filter narrows a Query. Zero-valued fields match everything; set fields
// are ANDed together.
type Filter struct {
	ResourceID   string
	ResourceType string
	ActorID      string
	Subtype      Subtype
	Market       id.Market
	TenantID     id.TenantID
	StartTime    time.Time
	EndTime      time.Time
	Limit        int
}

// Matches reports whether the event satisfies the filter. Shared by the
// in-memory store and by tests asserting on query semantics.
func (f Filter) Matches(e Event) bool {
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.Subtype != "" && e.Subtype != f.Subtype {
		return false
	}
	if f.Market != "" && e.Market != f.Market {
		return false
	}
	if !f.TenantID.IsNil() && e.TenantID != f.TenantID {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}
