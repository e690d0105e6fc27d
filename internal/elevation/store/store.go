// Package store persists granted elevations behind two O(1) indices:
// token → record for verification, and elevation ID → token for revocation
// and queries. Records are appended and updated, never deleted; the single
// mutating transition after creation is the one-way move out of Active.
package store

import (
	"context"
	"time"

	id "keystone/pkg/domain"

	"keystone/internal/elevation/models"
)

// Store is the persistence contract for elevation records.
//
// Implementations must serialize concurrent revocations of the same record
// so exactly one succeeds; later attempts observe the revoked state. Lookup
// errors wrap sentinel.ErrNotFound, double revocations wrap
// sentinel.ErrRevoked, and revoking a terminal record wraps
// sentinel.ErrInvalidState.
type Store interface {
	// Create persists a new record under its token. The record's ID and
	// token must both be unused.
	Create(ctx context.Context, token string, record models.ElevationRecord) error

	// FindByToken returns the record minted with the given token.
	FindByToken(ctx context.Context, token string) (models.ElevationRecord, error)

	// FindByID returns the record with the given elevation ID.
	FindByID(ctx context.Context, elevationID id.ElevationID) (models.ElevationRecord, error)

	// Revoke transitions a record out of Active exactly once and stamps the
	// revocation metadata. Returns the updated record.
	Revoke(ctx context.Context, elevationID id.ElevationID, by id.UserID, reason string, at time.Time) (models.ElevationRecord, error)

	// SweepExpired marks every Active record whose expiry has passed as
	// Expired and returns the swept records, for the periodic reaper.
	// Verification never depends on this; expiry is authoritative by
	// timestamp.
	SweepExpired(ctx context.Context, now time.Time) ([]models.ElevationRecord, error)
}
