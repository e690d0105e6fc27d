package service

import (
	"context"

	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/audit"
)

// QueryElevationAudit reads the compliance trail by resource, actor, time
// range, subtype, market, or tenant. Results come back in append order.
func (m *Manager) QueryElevationAudit(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	ctx, span := m.tracer.Start(ctx, "elevation.audit_query")
	defer span.End()

	if filter.ResourceType == "" {
		filter.ResourceType = "elevation"
	}
	events, err := m.sink.Query(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "audit query failed", err)
	}
	return events, nil
}
