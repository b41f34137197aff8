package noop

import (
	"time"

	"go-events-query/internal/interfaces"
	"go-events-query/internal/models"
)

// Ensure NoOpStore implements interfaces.SnapshotStore
var _ interfaces.SnapshotStore = (*NoOpStore)(nil)

// NoOpStore stands in for a disabled snapshot tier
type NoOpStore struct{}

// NewNoOpStore creates a new no-operation snapshot store
func NewNoOpStore() *NoOpStore {
	return &NoOpStore{}
}

// Get always misses
func (n *NoOpStore) Get(key string) (*models.StoredQuery, bool) {
	return nil, false
}

// Set does nothing
func (n *NoOpStore) Set(key string, record *models.StoredQuery, ttl time.Duration) {}

// Delete does nothing
func (n *NoOpStore) Delete(key string) {}
