package models

import "time"

// StoredQuery is the persisted form of a settled query result
type StoredQuery struct {
	Key       string `json:"key"`
	Data      []byte `json:"data"`
	FetchedAt int64  `json:"fetched_at"` // unix milliseconds
	ExpiresAt int64  `json:"expires_at"` // unix milliseconds
}

// NewStoredQuery builds a record that expires ttl after fetchedAt
func NewStoredQuery(key string, data []byte, fetchedAt time.Time, ttl time.Duration) *StoredQuery {
	return &StoredQuery{
		Key:       key,
		Data:      data,
		FetchedAt: fetchedAt.UnixMilli(),
		ExpiresAt: fetchedAt.Add(ttl).UnixMilli(),
	}
}

// FetchedTime returns FetchedAt as a time.Time
func (q *StoredQuery) FetchedTime() time.Time {
	return time.UnixMilli(q.FetchedAt)
}

// IsExpired checks if the record should no longer be served at all
func (q *StoredQuery) IsExpired(now time.Time) bool {
	return now.UnixMilli() > q.ExpiresAt
}
