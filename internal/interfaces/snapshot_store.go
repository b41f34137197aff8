package interfaces

import (
	"time"

	"go-events-query/internal/models"
)

//go:generate mockgen -package=mock -source=snapshot_store.go -destination=mock/snapshot_store.go

// SnapshotStore persists settled query results outside the in-memory cache
type SnapshotStore interface {
	Get(key string) (*models.StoredQuery, bool) // returns record and found flag
	Set(key string, record *models.StoredQuery, ttl time.Duration)
	Delete(key string)
}
