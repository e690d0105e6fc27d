package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	id "keystone/pkg/domain"
	"keystone/pkg/platform/sentinel"

	"keystone/internal/elevation/models"
)

// InMemoryStore keeps elevation records in process memory. It favors clarity
// over performance and is the default for tests and single-node deployments.
type InMemoryStore struct {
	mu        sync.RWMutex
	byToken   map[string]models.ElevationRecord
	tokenByID map[id.ElevationID]string
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byToken:   make(map[string]models.ElevationRecord),
		tokenByID: make(map[id.ElevationID]string),
	}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) Create(_ context.Context, token string, record models.ElevationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[token]; exists {
		return fmt.Errorf("elevation token already in use: %w", sentinel.ErrConflict)
	}
	if _, exists := s.tokenByID[record.ElevationID]; exists {
		return fmt.Errorf("elevation %s already exists: %w", record.ElevationID, sentinel.ErrConflict)
	}

	s.byToken[token] = record
	s.tokenByID[record.ElevationID] = token
	return nil
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (models.ElevationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.byToken[token]
	if !ok {
		return models.ElevationRecord{}, fmt.Errorf("elevation token: %w", sentinel.ErrNotFound)
	}
	return record, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, elevationID id.ElevationID) (models.ElevationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokenByID[elevationID]
	if !ok {
		return models.ElevationRecord{}, fmt.Errorf("elevation %s: %w", elevationID, sentinel.ErrNotFound)
	}
	return s.byToken[token], nil
}

func (s *InMemoryStore) Revoke(_ context.Context, elevationID id.ElevationID, by id.UserID, reason string, at time.Time) (models.ElevationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokenByID[elevationID]
	if !ok {
		return models.ElevationRecord{}, fmt.Errorf("elevation %s: %w", elevationID, sentinel.ErrNotFound)
	}
	record := s.byToken[token]

	if record.Status == models.StatusRevoked {
		return models.ElevationRecord{}, fmt.Errorf("elevation %s: %w", elevationID, sentinel.ErrRevoked)
	}
	if !record.Status.CanTransitionTo(models.StatusRevoked) {
		return models.ElevationRecord{}, fmt.Errorf("elevation %s is %s: %w", elevationID, record.Status, sentinel.ErrInvalidState)
	}

	record.Status = models.StatusRevoked
	record.RevokedBy = by
	record.RevokedReason = reason
	record.RevokedAt = at
	s.byToken[token] = record
	return record, nil
}

func (s *InMemoryStore) SweepExpired(_ context.Context, now time.Time) ([]models.ElevationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []models.ElevationRecord
	for token, record := range s.byToken {
		if record.Status != models.StatusActive || !record.ExpiredAt(now) {
			continue
		}
		record.Status = models.StatusExpired
		s.byToken[token] = record
		swept = append(swept, record)
	}
	return swept, nil
}

// Len reports the number of stored records, for tests.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byToken)
}
