package databases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linesmerrill/laundry-api/identity"
	"github.com/linesmerrill/laundry-api/models"
)

const (
	pendingKeyPrefix = "pending:"
	redisMaxRetries  = 4
	sweepScanCount   = 100
)

// RedisPendingStore keeps pending verifications in redis so several api
// instances share them. Each key carries a redis TTL matching its expiry, and
// every read also checks ExpiresAt against the store clock.
type RedisPendingStore struct {
	redis       redis.UniversalClient
	now         identity.Clock
	maxAttempts int
}

// NewRedisPendingStore builds a store on an existing client. A nil clock means
// time.Now and maxAttempts <= 0 means identity.DefaultMaxAttempts.
func NewRedisPendingStore(client redis.UniversalClient, clock identity.Clock, maxAttempts int) *RedisPendingStore {
	if clock == nil {
		clock = time.Now
	}
	if maxAttempts <= 0 {
		maxAttempts = identity.DefaultMaxAttempts
	}
	return &RedisPendingStore{
		redis:       client,
		now:         clock,
		maxAttempts: maxAttempts,
	}
}

func pendingKey(email string) string {
	return pendingKeyPrefix + email
}

func decodePending(data []byte) (*models.PendingVerification, error) {
	entry := &models.PendingVerification{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, fmt.Errorf("decode pending verification: %w", err)
	}
	return entry, nil
}

func (s *RedisPendingStore) Put(ctx context.Context, email, code string, ttl time.Duration) (models.PendingVerification, error) {
	now := s.now()
	entry := models.PendingVerification{
		Email:     email,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return models.PendingVerification{}, err
	}
	if err := s.redis.Set(ctx, pendingKey(email), data, ttl).Err(); err != nil {
		return models.PendingVerification{}, err
	}
	return entry, nil
}

func (s *RedisPendingStore) Get(ctx context.Context, email string) (*models.PendingVerification, error) {
	data, err := s.redis.Get(ctx, pendingKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, identity.ErrNoPendingRequest
	}
	if err != nil {
		return nil, err
	}
	entry, err := decodePending(data)
	if err != nil {
		return nil, err
	}
	if entry.Expired(s.now()) {
		return nil, identity.ErrNoPendingRequest
	}
	return entry, nil
}

func (s *RedisPendingStore) Remove(ctx context.Context, email string) error {
	return s.redis.Del(ctx, pendingKey(email)).Err()
}

// SweepExpired scans the pending keys and deletes those that have expired by
// now but whose redis TTL has not fired yet.
func (s *RedisPendingStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	iter := s.redis.Scan(ctx, 0, pendingKeyPrefix+"*", sweepScanCount).Iterator()
	for iter.Next(ctx) {
		ok, err := s.deleteIfExpired(ctx, iter.Val(), now)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

func (s *RedisPendingStore) deleteIfExpired(ctx context.Context, key string, now time.Time) (bool, error) {
	deleted := false
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		entry, err := decodePending(data)
		if err != nil {
			return err
		}
		if !entry.Expired(now) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err != nil {
			return err
		}
		deleted = true
		return nil
	}, key)

	// gone already or replaced by a fresh Put
	if errors.Is(err, redis.Nil) || errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return deleted, err
}

// Consume runs the compare-and-delete inside WATCH/MULTI so that a concurrent
// Put, Consume or mismatch update aborts the transaction and is retried.
func (s *RedisPendingStore) Consume(ctx context.Context, email, code string) (*models.PendingVerification, error) {
	key := pendingKey(email)

	for i := 0; i < redisMaxRetries; i++ {
		var matched *models.PendingVerification

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return identity.ErrNoPendingRequest
			}
			if err != nil {
				return err
			}
			entry, err := decodePending(data)
			if err != nil {
				return err
			}

			now := s.now()
			if entry.Expired(now) {
				if err := deleteKey(ctx, tx, key); err != nil {
					return err
				}
				return identity.ErrCodeExpired
			}

			if !identity.CodesEqual(entry.Code, code) {
				entry.Attempts++
				if entry.Attempts >= s.maxAttempts {
					if err := deleteKey(ctx, tx, key); err != nil {
						return err
					}
					return identity.ErrTooManyAttempts
				}

				updated, err := json.Marshal(entry)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, entry.ExpiresAt.Sub(now))
					return nil
				})
				if err != nil {
					return err
				}
				return identity.ErrCodeMismatch
			}

			if err := deleteKey(ctx, tx, key); err != nil {
				return err
			}
			matched = entry
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return matched, nil
	}

	return nil, fmt.Errorf("consume pending verification: %w", redis.TxFailedErr)
}

func deleteKey(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}
