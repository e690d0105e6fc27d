//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "keystone/pkg/domain"
	audit "keystone/pkg/platform/audit"
	"keystone/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	pg := containers.NewPostgresContainer(t)

	_, err := pg.DB.ExecContext(ctx, Schema)
	require.NoError(t, err)

	store := New(pg.DB)

	tenantA := id.TenantID(uuid.New())
	tenantB := id.TenantID(uuid.New())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	event := func(subtype audit.Subtype, tenant id.TenantID, market id.Market, at time.Time) audit.Event {
		return audit.Event{
			ID:           uuid.New(),
			Type:         "privilege_elevation",
			Subtype:      subtype,
			Timestamp:    at,
			ActorID:      uuid.NewString(),
			TenantID:     tenant,
			Market:       market,
			ResourceID:   uuid.NewString(),
			ResourceType: "elevation",
			Result:       "approved",
			Severity:     audit.SeverityInfo,
			Details:      map[string]any{"mfa.verified": true},
		}
	}

	approved := event(audit.SubtypeElevationApproved, tenantA, "angola", base)
	revoked := event(audit.SubtypeElevationRevoked, tenantA, "angola", base.Add(time.Hour))
	other := event(audit.SubtypeElevationApproved, tenantB, "brazil", base.Add(2*time.Hour))

	for _, e := range []audit.Event{approved, revoked, other} {
		require.NoError(t, store.Append(ctx, e))
	}

	t.Run("roundtrips the full payload", func(t *testing.T) {
		events, err := store.Query(ctx, audit.Filter{ResourceID: approved.ResourceID})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, approved.ID, events[0].ID)
		assert.Equal(t, approved.TenantID, events[0].TenantID)
		assert.Equal(t, true, events[0].Details["mfa.verified"])
	})

	t.Run("filters by subtype and market", func(t *testing.T) {
		events, err := store.Query(ctx, audit.Filter{
			Subtype: audit.SubtypeElevationApproved,
			Market:  "angola",
		})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, approved.ID, events[0].ID)
	})

	t.Run("filters by tenant", func(t *testing.T) {
		events, err := store.Query(ctx, audit.Filter{TenantID: tenantA})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("time range and ordering", func(t *testing.T) {
		events, err := store.Query(ctx, audit.Filter{
			StartTime: base,
			EndTime:   base.Add(90 * time.Minute),
		})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, approved.ID, events[0].ID)
		assert.Equal(t, revoked.ID, events[1].ID)
	})

	t.Run("limit", func(t *testing.T) {
		events, err := store.Query(ctx, audit.Filter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}
