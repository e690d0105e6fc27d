package consumer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "keystone/pkg/domain"
	audit "keystone/pkg/platform/audit"

	"keystone/internal/platform/kafka/consumer"
)

type recordingStore struct {
	err    error
	events []audit.Event
}

func (s *recordingStore) Append(_ context.Context, event audit.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func wireMessage(t *testing.T, topic string, event audit.Event) *consumer.Message {
	t.Helper()
	value, err := audit.MarshalWire(event)
	require.NoError(t, err)
	return &consumer.Message{
		Topic:     topic,
		Key:       []byte(event.ID.String()),
		Value:     value,
		Timestamp: event.Timestamp,
	}
}

func complianceEvent() audit.Event {
	return audit.Event{
		ID:        uuid.New(),
		Type:      "privilege_elevation",
		Subtype:   audit.SubtypeElevationApproved,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ActorID:   uuid.NewString(),
		TenantID:  id.TenantID(uuid.New()),
		Market:    "angola",
		Result:    "approved",
	}
}

func TestComplianceHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("stores well-formed events", func(t *testing.T) {
		store := &recordingStore{}
		h := NewComplianceHandler(store, nopLogger())
		event := complianceEvent()

		require.NoError(t, h.Handle(ctx, wireMessage(t, "keystone.audit.compliance", event)))
		require.Len(t, store.events, 1)
		assert.Equal(t, event.ID, store.events[0].ID)
		assert.Equal(t, event.TenantID, store.events[0].TenantID)
	})

	t.Run("commits malformed payloads without storing", func(t *testing.T) {
		store := &recordingStore{}
		h := NewComplianceHandler(store, nopLogger())
		msg := &consumer.Message{Topic: "keystone.audit.compliance", Value: []byte("{broken")}

		require.NoError(t, h.Handle(ctx, msg))
		assert.Empty(t, store.events)
	})

	t.Run("rejects events without tenant scope", func(t *testing.T) {
		store := &recordingStore{}
		h := NewComplianceHandler(store, nopLogger())
		event := complianceEvent()
		event.TenantID = id.TenantID{}

		require.NoError(t, h.Handle(ctx, wireMessage(t, "keystone.audit.compliance", event)))
		assert.Empty(t, store.events)
	})

	t.Run("store failure forces redelivery", func(t *testing.T) {
		store := &recordingStore{err: errors.New("db down")}
		h := NewComplianceHandler(store, nopLogger())

		err := h.Handle(ctx, wireMessage(t, "keystone.audit.compliance", complianceEvent()))
		assert.Error(t, err)
	})
}

func TestSecurityHandlerDefaultsSeverity(t *testing.T) {
	store := &recordingStore{}
	h := NewSecurityHandler(store, nopLogger())

	event := complianceEvent()
	event.Subtype = audit.SubtypeElevationVerified
	event.Severity = ""

	require.NoError(t, h.Handle(context.Background(), wireMessage(t, "keystone.audit.security", event)))
	require.Len(t, store.events, 1)
	assert.Equal(t, audit.SeverityInfo, store.events[0].Severity)
}

func TestOpsHandlerCommitsOnStoreFailure(t *testing.T) {
	store := &recordingStore{err: errors.New("db down")}
	h := NewOpsHandler(store, nopLogger())

	event := complianceEvent()
	event.Subtype = audit.SubtypeElevationUsed

	assert.NoError(t, h.Handle(context.Background(), wireMessage(t, "keystone.audit.operations", event)))
}

func TestRouter(t *testing.T) {
	ctx := context.Background()

	t.Run("routes to registered handler", func(t *testing.T) {
		store := &recordingStore{}
		router := NewRouter(nopLogger(), nil)
		router.Register("keystone.audit.compliance", NewComplianceHandler(store, nopLogger()))

		require.NoError(t, router.Handle(ctx, wireMessage(t, "keystone.audit.compliance", complianceEvent())))
		assert.Len(t, store.events, 1)
	})

	t.Run("unknown topic without fallback is committed", func(t *testing.T) {
		router := NewRouter(nopLogger(), nil)
		require.NoError(t, router.Handle(ctx, wireMessage(t, "unknown.topic", complianceEvent())))
	})

	t.Run("unknown topic goes to fallback", func(t *testing.T) {
		store := &recordingStore{}
		router := NewRouter(nopLogger(), NewOpsHandler(store, nopLogger()))

		require.NoError(t, router.Handle(ctx, wireMessage(t, "unknown.topic", complianceEvent())))
		assert.Len(t, store.events, 1)
	})
}
