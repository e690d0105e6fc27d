//go:build integration

package forwarder_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkaconsumer "keystone/internal/platform/kafka/consumer"
	"keystone/internal/platform/kafka/producer"
	id "keystone/pkg/domain"
	audit "keystone/pkg/platform/audit"
	auditconsumer "keystone/pkg/platform/audit/consumer"
	"keystone/pkg/platform/audit/forwarder"
	"keystone/pkg/platform/audit/store/memory"
	"keystone/pkg/testutil/containers"
)

// Publishes through the forwarder and consumes the category topics back into
// a store, covering the producer, topic routing, and handler commit paths
// against a real broker.
func TestForwarderRoundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	rp := containers.NewRedpandaContainer(t)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	prod, err := producer.New([]string{rp.Broker}, logger)
	require.NoError(t, err)
	t.Cleanup(prod.Close)

	fw := forwarder.New(prod, "keystone.audit.events", logger)
	require.NoError(t, prod.EnsureTopics(ctx, 1, fw.Topics()...))

	store := memory.NewInMemoryStore()
	router := auditconsumer.NewRouter(logger, nil)
	router.Register("keystone.audit.events.compliance", auditconsumer.NewComplianceHandler(store, logger))
	router.Register("keystone.audit.events.security", auditconsumer.NewSecurityHandler(store, logger))
	router.Register("keystone.audit.events.operations", auditconsumer.NewOpsHandler(store, logger))

	cons, err := kafkaconsumer.New([]string{rp.Broker}, "audit-roundtrip-test", fw.Topics(), router, logger)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = cons.Run(runCtx)
	}()
	t.Cleanup(func() {
		cancel()
		cons.Close()
		<-done
	})

	tenant := id.TenantID(uuid.New())
	approved := audit.Event{
		ID:           uuid.New(),
		Type:         "privilege_elevation",
		Subtype:      audit.SubtypeElevationApproved,
		Timestamp:    time.Now().UTC().Truncate(time.Millisecond),
		ActorID:      uuid.NewString(),
		TenantID:     tenant,
		Market:       "angola",
		ResourceID:   uuid.NewString(),
		ResourceType: "elevation",
		Result:       "approved",
		Severity:     audit.SeverityInfo,
		Details:      map[string]any{"duration": "2h"},
	}
	verified := audit.Event{
		ID:         uuid.New(),
		Type:       "privilege_elevation",
		Subtype:    audit.SubtypeElevationVerified,
		Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
		ActorID:    uuid.NewString(),
		TenantID:   tenant,
		Market:     "angola",
		ResourceID: uuid.NewString(),
		Result:     "valid",
		Severity:   audit.SeverityInfo,
	}

	require.NoError(t, fw.Append(ctx, approved))
	require.NoError(t, fw.Append(ctx, verified))

	require.Eventually(t, func() bool {
		return store.Len() == 2
	}, 30*time.Second, 200*time.Millisecond, "expected both events to be consumed")

	got, err := store.Query(ctx, audit.Filter{ResourceID: approved.ResourceID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, approved.ID, got[0].ID)
	assert.Equal(t, tenant, got[0].TenantID)
	assert.Equal(t, "2h", got[0].Details["duration"])

	got, err = store.Query(ctx, audit.Filter{Subtype: audit.SubtypeElevationVerified})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, verified.ID, got[0].ID)
}
