package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "keystone/pkg/domain"
	"keystone/pkg/platform/sentinel"

	"keystone/internal/elevation/models"
)

const (
	tokenKeyPrefix = "elevation:token:"
	idKeyPrefix    = "elevation:id:"

	// retentionMargin keeps expired and revoked records queryable after
	// their elevation window has closed, so denial reasons stay available.
	retentionMargin = 30 * 24 * time.Hour

	revokeRetries = 5
)

// RedisStore persists elevation records in Redis for multi-node deployments.
// Both indices are plain keys; the record key holds the JSON document and
// the ID key holds the token. Keys expire well after the elevation itself so
// verification of stale tokens still reports revocation reasons.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an established client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ Store = (*RedisStore)(nil)

func tokenKey(token string) string            { return tokenKeyPrefix + token }
func idKey(elevationID id.ElevationID) string { return idKeyPrefix + elevationID.String() }

func (s *RedisStore) Create(ctx context.Context, token string, record models.ElevationRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal elevation record: %w", err)
	}

	ttl := time.Until(record.ExpiresAt) + retentionMargin

	ok, err := s.client.SetNX(ctx, tokenKey(token), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("store elevation record: %w", err)
	}
	if !ok {
		return fmt.Errorf("elevation token already in use: %w", sentinel.ErrConflict)
	}

	ok, err = s.client.SetNX(ctx, idKey(record.ElevationID), token, ttl).Result()
	if err != nil {
		return fmt.Errorf("store elevation index: %w", err)
	}
	if !ok {
		s.client.Del(ctx, tokenKey(token))
		return fmt.Errorf("elevation %s already exists: %w", record.ElevationID, sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) FindByToken(ctx context.Context, token string) (models.ElevationRecord, error) {
	return s.getRecord(ctx, s.client, tokenKey(token))
}

func (s *RedisStore) FindByID(ctx context.Context, elevationID id.ElevationID) (models.ElevationRecord, error) {
	token, err := s.client.Get(ctx, idKey(elevationID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.ElevationRecord{}, fmt.Errorf("elevation %s: %w", elevationID, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.ElevationRecord{}, fmt.Errorf("load elevation index: %w", err)
	}
	return s.getRecord(ctx, s.client, tokenKey(token))
}

func (s *RedisStore) getRecord(ctx context.Context, c redis.Cmdable, key string) (models.ElevationRecord, error) {
	payload, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ElevationRecord{}, fmt.Errorf("elevation token: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return models.ElevationRecord{}, fmt.Errorf("load elevation record: %w", err)
	}
	var record models.ElevationRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return models.ElevationRecord{}, fmt.Errorf("unmarshal elevation record: %w", err)
	}
	return record, nil
}

// Revoke serializes concurrent revocations with an optimistic WATCH
// transaction: the first writer wins, later attempts read the revoked state.
func (s *RedisStore) Revoke(ctx context.Context, elevationID id.ElevationID, by id.UserID, reason string, at time.Time) (models.ElevationRecord, error) {
	token, err := s.client.Get(ctx, idKey(elevationID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.ElevationRecord{}, fmt.Errorf("elevation %s: %w", elevationID, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.ElevationRecord{}, fmt.Errorf("load elevation index: %w", err)
	}

	key := tokenKey(token)
	var revoked models.ElevationRecord

	txn := func(tx *redis.Tx) error {
		record, err := s.getRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		if record.Status == models.StatusRevoked {
			return fmt.Errorf("elevation %s: %w", elevationID, sentinel.ErrRevoked)
		}
		if !record.Status.CanTransitionTo(models.StatusRevoked) {
			return fmt.Errorf("elevation %s is %s: %w", elevationID, record.Status, sentinel.ErrInvalidState)
		}

		record.Status = models.StatusRevoked
		record.RevokedBy = by
		record.RevokedReason = reason
		record.RevokedAt = at

		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal elevation record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		revoked = record
		return nil
	}

	for attempt := 0; attempt < revokeRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return models.ElevationRecord{}, err
		}
		return revoked, nil
	}
	return models.ElevationRecord{}, fmt.Errorf("revoke elevation %s: transaction contention: %w", elevationID, sentinel.ErrUnavailable)
}

// SweepExpired scans record keys in batches and transitions clock-expired
// Active records. Redis TTLs handle eventual cleanup; the sweep exists so
// expiration events and notifications still fire.
func (s *RedisStore) SweepExpired(ctx context.Context, now time.Time) ([]models.ElevationRecord, error) {
	var swept []models.ElevationRecord

	iter := s.client.Scan(ctx, 0, tokenKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		record, err := s.getRecord(ctx, s.client, key)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return swept, err
		}
		if record.Status != models.StatusActive || !record.ExpiredAt(now) {
			continue
		}

		record.Status = models.StatusExpired
		payload, err := json.Marshal(record)
		if err != nil {
			return swept, fmt.Errorf("marshal elevation record: %w", err)
		}
		if err := s.client.Set(ctx, key, payload, redis.KeepTTL).Err(); err != nil {
			return swept, fmt.Errorf("mark elevation expired: %w", err)
		}
		swept = append(swept, record)
	}
	if err := iter.Err(); err != nil {
		return swept, fmt.Errorf("scan elevation records: %w", err)
	}
	return swept, nil
}
