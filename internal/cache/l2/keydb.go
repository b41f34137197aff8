package l2

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"go-events-query/internal/config"
	"go-events-query/internal/interfaces"
	"go-events-query/internal/metrics"
	"go-events-query/internal/models"
)

// Ensure KeyDBStore implements interfaces.SnapshotStore
var _ interfaces.SnapshotStore = (*KeyDBStore)(nil)

// KeyDBStore keeps persisted query snapshots in KeyDB, shared between instances
type KeyDBStore struct {
	client interfaces.KeyDbClient
	config *config.KeyDBConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewKeyDBStore creates a KeyDB-backed snapshot store using client
func NewKeyDBStore(cfg *config.KeyDBConfig, client interfaces.KeyDbClient, logger *zap.Logger) *KeyDBStore {
	return &KeyDBStore{
		client: client,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the record stored under key unless it is missing, corrupted or expired
func (s *KeyDBStore) Get(key string) (*models.StoredQuery, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.GetReadTimeout())
	defer cancel()

	fullKey := s.fullKey(key)
	data, err := s.client.Get(ctx, fullKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("L2 snapshot get error", zap.String("key", fullKey), zap.Error(err))
			metrics.RecordSnapshotStoreError("l2", "read")
		}
		return nil, false
	}

	var record models.StoredQuery
	if err := json.Unmarshal(data, &record); err != nil {
		s.logger.Warn("Failed to decode L2 snapshot", zap.String("key", fullKey), zap.Error(err))
		metrics.RecordSnapshotStoreError("l2", "decode")
		s.Delete(key)
		return nil, false
	}

	if record.IsExpired(s.now()) {
		s.Delete(key)
		return nil, false
	}
	return &record, true
}

// Set stores record under key, letting KeyDB expire it after ttl
func (s *KeyDBStore) Set(key string, record *models.StoredQuery, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.GetSendTimeout())
	defer cancel()

	fullKey := s.fullKey(key)
	data, err := json.Marshal(record)
	if err != nil {
		s.logger.Error("Failed to encode L2 snapshot", zap.String("key", fullKey), zap.Error(err))
		metrics.RecordSnapshotStoreError("l2", "encode")
		return
	}

	if err := s.client.Set(ctx, fullKey, data, ttl).Err(); err != nil {
		s.logger.Warn("Failed to store L2 snapshot", zap.String("key", fullKey), zap.Error(err))
		metrics.RecordSnapshotStoreError("l2", "write")
	}
}

// Delete removes the record stored under key
func (s *KeyDBStore) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.GetSendTimeout())
	defer cancel()

	fullKey := s.fullKey(key)
	if err := s.client.Del(ctx, fullKey).Err(); err != nil {
		s.logger.Warn("Failed to delete L2 snapshot", zap.String("key", fullKey), zap.Error(err))
		metrics.RecordSnapshotStoreError("l2", "delete")
	}
}

// Close closes the KeyDB connection
func (s *KeyDBStore) Close() error {
	return s.client.Close()
}

func (s *KeyDBStore) fullKey(key string) string {
	return s.config.KeyPrefix + key
}
