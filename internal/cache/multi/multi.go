package multi

import (
	"time"

	"go.uber.org/zap"

	"go-events-query/internal/interfaces"
	"go-events-query/internal/models"
)

// Ensure MultiStore implements interfaces.SnapshotStore
var _ interfaces.SnapshotStore = (*MultiStore)(nil)

// MultiStore layers snapshot stores, fastest first. Reads return the first
// hit and copy it into the faster tiers that missed; writes go to every tier.
type MultiStore struct {
	stores []interfaces.SnapshotStore
	logger *zap.Logger
	now    func() time.Time
}

// NewMultiStore creates a layered snapshot store
func NewMultiStore(stores []interfaces.SnapshotStore, logger *zap.Logger) *MultiStore {
	return &MultiStore{
		stores: stores,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the record from the first tier that has it
func (m *MultiStore) Get(key string) (*models.StoredQuery, bool) {
	for i, store := range m.stores {
		record, found := store.Get(key)
		if !found {
			continue
		}
		if i > 0 {
			m.backfill(key, record, m.stores[:i])
		}
		return record, true
	}
	return nil, false
}

// Set stores the record in every tier
func (m *MultiStore) Set(key string, record *models.StoredQuery, ttl time.Duration) {
	if len(m.stores) == 0 {
		m.logger.Warn("No snapshot stores available for set operation", zap.String("key", key))
		return
	}
	for _, store := range m.stores {
		store.Set(key, record, ttl)
	}
}

// Delete removes the record from every tier
func (m *MultiStore) Delete(key string) {
	for _, store := range m.stores {
		store.Delete(key)
	}
}

// StoreCount returns the number of tiers
func (m *MultiStore) StoreCount() int {
	return len(m.stores)
}

// backfill copies a hit from a slower tier into the faster ones for the
// record's remaining lifetime
func (m *MultiStore) backfill(key string, record *models.StoredQuery, faster []interfaces.SnapshotStore) {
	remaining := time.UnixMilli(record.ExpiresAt).Sub(m.now())
	if remaining <= 0 {
		return
	}
	for _, store := range faster {
		store.Set(key, record, remaining)
	}
	m.logger.Debug("Backfilled snapshot into faster tiers", zap.String("key", key), zap.Int("tiers", len(faster)))
}
