package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "keystone/pkg/domain"
	"keystone/pkg/platform/sentinel"

	"keystone/internal/elevation/models"
)

func activeRecord(expiresAt time.Time) models.ElevationRecord {
	return models.ElevationRecord{
		ElevationID:   id.NewElevationID(),
		RequesterID:   id.UserID(uuid.New()),
		ApproverID:    id.UserID(uuid.New()),
		TenantID:      id.TenantID(uuid.New()),
		Market:        "angola",
		Justification: "incident response",
		GrantedRoles:  []string{"db-admin"},
		ApprovedAt:    expiresAt.Add(-time.Hour),
		ExpiresAt:     expiresAt,
		Status:        models.StatusActive,
	}
}

func TestInMemoryStoreCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	record := activeRecord(time.Now().Add(time.Hour))

	require.NoError(t, s.Create(ctx, "tok-1", record))

	t.Run("find by token", func(t *testing.T) {
		got, err := s.FindByToken(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, record.ElevationID, got.ElevationID)
	})

	t.Run("find by id", func(t *testing.T) {
		got, err := s.FindByID(ctx, record.ElevationID)
		require.NoError(t, err)
		assert.Equal(t, record.Justification, got.Justification)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := s.FindByToken(ctx, "tok-unknown")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.FindByID(ctx, id.NewElevationID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("duplicate token conflicts", func(t *testing.T) {
		err := s.Create(ctx, "tok-1", activeRecord(time.Now().Add(time.Hour)))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		dup := activeRecord(time.Now().Add(time.Hour))
		dup.ElevationID = record.ElevationID
		err := s.Create(ctx, "tok-2", dup)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})
}

func TestInMemoryStoreRevoke(t *testing.T) {
	ctx := context.Background()
	revokedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	admin := id.UserID(uuid.New())

	t.Run("first revocation wins and stamps metadata", func(t *testing.T) {
		s := NewInMemoryStore()
		record := activeRecord(revokedAt.Add(time.Hour))
		require.NoError(t, s.Create(ctx, "tok-1", record))

		got, err := s.Revoke(ctx, record.ElevationID, admin, "credential leak", revokedAt)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRevoked, got.Status)
		assert.Equal(t, admin, got.RevokedBy)
		assert.Equal(t, "credential leak", got.RevokedReason)
		assert.Equal(t, revokedAt, got.RevokedAt)

		// The stored record reflects the transition on both indices.
		byToken, err := s.FindByToken(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusRevoked, byToken.Status)
	})

	t.Run("second revocation observes already revoked", func(t *testing.T) {
		s := NewInMemoryStore()
		record := activeRecord(revokedAt.Add(time.Hour))
		require.NoError(t, s.Create(ctx, "tok-1", record))

		_, err := s.Revoke(ctx, record.ElevationID, admin, "first", revokedAt)
		require.NoError(t, err)
		_, err = s.Revoke(ctx, record.ElevationID, admin, "second", revokedAt)
		assert.ErrorIs(t, err, sentinel.ErrRevoked)
	})

	t.Run("revoking an expired record is invalid", func(t *testing.T) {
		s := NewInMemoryStore()
		record := activeRecord(revokedAt.Add(time.Hour))
		record.Status = models.StatusExpired
		require.NoError(t, s.Create(ctx, "tok-1", record))

		_, err := s.Revoke(ctx, record.ElevationID, admin, "too late", revokedAt)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})

	t.Run("unknown elevation", func(t *testing.T) {
		s := NewInMemoryStore()
		_, err := s.Revoke(ctx, id.NewElevationID(), admin, "nothing there", revokedAt)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("concurrent revocations serialize to one winner", func(t *testing.T) {
		s := NewInMemoryStore()
		record := activeRecord(revokedAt.Add(time.Hour))
		require.NoError(t, s.Create(ctx, "tok-1", record))

		const attempts = 16
		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.Revoke(ctx, record.ElevationID, admin, "race", revokedAt)
			}(i)
		}
		wg.Wait()

		var winners, losers int
		for _, err := range errs {
			switch {
			case err == nil:
				winners++
			case errors.Is(err, sentinel.ErrRevoked):
				losers++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, winners)
		assert.Equal(t, attempts-1, losers)
	})
}

func TestInMemoryStoreSweepExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewInMemoryStore()

	expired := activeRecord(now.Add(-time.Minute))
	boundary := activeRecord(now) // expiring exactly now is expired
	live := activeRecord(now.Add(time.Hour))
	alreadyRevoked := activeRecord(now.Add(-time.Hour))
	alreadyRevoked.Status = models.StatusRevoked

	require.NoError(t, s.Create(ctx, "tok-expired", expired))
	require.NoError(t, s.Create(ctx, "tok-boundary", boundary))
	require.NoError(t, s.Create(ctx, "tok-live", live))
	require.NoError(t, s.Create(ctx, "tok-revoked", alreadyRevoked))

	swept, err := s.SweepExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, swept, 2)
	for _, record := range swept {
		assert.Equal(t, models.StatusExpired, record.Status)
	}

	remaining, err := s.FindByToken(ctx, "tok-live")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, remaining.Status)

	// Sweeps are idempotent.
	swept, err = s.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, swept)
}
