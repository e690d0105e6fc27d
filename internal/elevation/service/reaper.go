package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"keystone/pkg/platform/audit"

	"keystone/internal/elevation/metrics"
	"keystone/internal/elevation/store"
)

const defaultReapInterval = time.Minute
const reapNotifyConcurrency = 8

// Reaper periodically transitions clock-expired Active records to Expired
// and delivers the delayed expiration notifications. Verification never
// depends on it; expiry is enforced by timestamp at verification time, so
// the reaper only bounds memory growth and notification lag.
type Reaper struct {
	store    store.Store
	ops      OpsPublisher
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// ReaperOption configures the Reaper.
type ReaperOption func(*Reaper)

// WithReapInterval overrides the sweep cadence.
func WithReapInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) { r.interval = d }
}

// WithReaperClock injects a clock for tests.
func WithReaperClock(now func() time.Time) ReaperOption {
	return func(r *Reaper) { r.now = now }
}

// NewReaper constructs a reaper over the given store.
func NewReaper(s store.Store, ops OpsPublisher, notifier Notifier, m *metrics.Metrics, logger *slog.Logger, opts ...ReaperOption) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reaper{
		store:    s,
		ops:      ops,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		interval: defaultReapInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.WarnContext(ctx, "expiration sweep failed", "error", err)
			}
		}
	}
}

// Sweep performs one pass. Exposed for tests and manual triggering.
func (r *Reaper) Sweep(ctx context.Context) error {
	swept, err := r.store.SweepExpired(ctx, r.now())
	if err != nil {
		return err
	}
	if len(swept) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reapNotifyConcurrency)
	for _, record := range swept {
		record := record
		g.Go(func() error {
			if r.ops != nil {
				r.ops.Track(gctx, audit.Event{
					Type:         "privilege_elevation",
					Subtype:      audit.SubtypeElevationExpired,
					Timestamp:    r.now(),
					ActorID:      record.RequesterID.String(),
					TenantID:     record.TenantID,
					Market:       record.Market,
					BusinessUnit: record.BusinessUnit,
					ResourceID:   record.ElevationID.String(),
					ResourceType: "elevation",
					Action:       "expire",
					Result:       "expired",
					Severity:     audit.SeverityInfo,
				})
			}
			if r.notifier != nil {
				if err := r.notifier.NotifyExpired(gctx, record.ElevationID, record.RequesterID); err != nil {
					r.logger.WarnContext(gctx, "expiration notification failed",
						"elevation_id", record.ElevationID,
						"error", err,
					)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	r.metrics.AddExpirationsSwept(len(swept))
	r.logger.InfoContext(ctx, "expired elevations swept", "count", len(swept))
	return nil
}
