package l1

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"

	"go-events-query/internal/config"
	"go-events-query/internal/interfaces"
	"go-events-query/internal/metrics"
	"go-events-query/internal/models"
	"go-events-query/internal/scheduler"
)

// Ensure BigCacheStore implements interfaces.SnapshotStore
var _ interfaces.SnapshotStore = (*BigCacheStore)(nil)

const metricsInterval = 30 * time.Second

// BigCacheStore keeps persisted query snapshots in process memory
type BigCacheStore struct {
	cache            *bigcache.BigCache
	logger           *zap.Logger
	now              func() time.Time
	metricsScheduler *scheduler.Scheduler
}

// NewBigCacheStore creates an in-process snapshot store. Records are evicted
// by bigcache after lifeWindow regardless of their own expiry.
func NewBigCacheStore(cfg *config.BigCacheConfig, lifeWindow time.Duration, logger *zap.Logger) (*BigCacheStore, error) {
	bcConfig := bigcache.DefaultConfig(lifeWindow)
	bcConfig.HardMaxCacheSize = cfg.Size // MB
	bcConfig.Verbose = false
	bcConfig.MaxEntrySize = 256 * 1024

	cache, err := bigcache.New(context.Background(), bcConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigcache: %w", err)
	}

	store := &BigCacheStore{
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}

	store.metricsScheduler = scheduler.New(metricsInterval, store.updateMetrics)
	store.metricsScheduler.Start()
	store.updateMetrics()

	logger.Info("L1 snapshot store initialized",
		zap.Int("size_mb", cfg.Size),
		zap.Duration("life_window", lifeWindow))
	return store, nil
}

// Get returns the record stored under key unless it is missing, corrupted or expired
func (s *BigCacheStore) Get(key string) (*models.StoredQuery, bool) {
	data, err := s.cache.Get(key)
	if err != nil {
		return nil, false
	}

	var record models.StoredQuery
	if err := json.Unmarshal(data, &record); err != nil {
		s.logger.Warn("Failed to decode L1 snapshot", zap.String("key", key), zap.Error(err))
		metrics.RecordSnapshotStoreError("l1", "decode")
		_ = s.cache.Delete(key)
		return nil, false
	}

	if record.IsExpired(s.now()) {
		_ = s.cache.Delete(key)
		return nil, false
	}
	return &record, true
}

// Set stores record under key. ttl is carried by the record itself.
func (s *BigCacheStore) Set(key string, record *models.StoredQuery, ttl time.Duration) {
	data, err := json.Marshal(record)
	if err != nil {
		s.logger.Error("Failed to encode L1 snapshot", zap.String("key", key), zap.Error(err))
		metrics.RecordSnapshotStoreError("l1", "encode")
		return
	}

	if err := s.cache.Set(key, data); err != nil {
		s.logger.Error("Failed to store L1 snapshot", zap.String("key", key), zap.Error(err))
		metrics.RecordSnapshotStoreError("l1", "write")
	}
}

// Delete removes the record stored under key
func (s *BigCacheStore) Delete(key string) {
	_ = s.cache.Delete(key)
}

// Len returns the number of stored records
func (s *BigCacheStore) Len() int {
	return s.cache.Len()
}

// Close stops metrics collection and releases the cache
func (s *BigCacheStore) Close() error {
	s.metricsScheduler.Stop()
	return s.cache.Close()
}

func (s *BigCacheStore) updateMetrics() {
	metrics.UpdateL1Capacity(int64(s.cache.Capacity()), int64(s.cache.Len()))
}
