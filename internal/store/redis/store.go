// Package redis stores extraction records in Redis.
package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"claimsqa/internal/config"
	"claimsqa/internal/domain"
)

// Store keeps each record as JSON under {prefix}document:{id} and indexes
// ids in the sorted set {prefix}documents scored by creation time.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) recordKey(id string) string { return s.prefix + "document:" + id }
func (s *Store) indexKey() string          { return s.prefix + "documents" }

// Put writes the record and its index entry in one MULTI/EXEC transaction.
func (s *Store) Put(ctx context.Context, rec *domain.ExtractionRecord) error {
	cp := rec.Clone()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	data, err := encodeRecord(cp)
	if err != nil {
		return fmt.Errorf("redisStore.Put marshal: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(cp.DocumentID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(cp.CreatedAt.UnixMicro()),
			Member: cp.DocumentID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: redisStore.Put: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// encodeRecord marshals without HTML escaping so content bytes survive the
// round trip unchanged.
func encodeRecord(rec *domain.ExtractionRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (s *Store) Get(ctx context.Context, documentID string) (*domain.ExtractionRecord, error) {
	data, err := s.client.Get(ctx, s.recordKey(documentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redisStore.Get: %w", domain.ErrStoreUnavailable, err)
	}

	var rec domain.ExtractionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("redisStore.Get unmarshal: %w", err)
	}
	return &rec, nil
}

// List reads the index in score order; equal scores come back ordered by id.
func (s *Store) List(ctx context.Context) ([]domain.ExtractionRecord, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redisStore.List: %w", domain.ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return []domain.ExtractionRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redisStore.List: %w", domain.ErrStoreUnavailable, err)
	}

	out := make([]domain.ExtractionRecord, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Index entry without a record; skip it.
			continue
		}
		var rec domain.ExtractionRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("redisStore.List unmarshal %s: %w", ids[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}
