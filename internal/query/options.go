package query

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go-events-query/internal/models"
)

// QueryFunc loads the data for key. It must honor ctx cancellation.
type QueryFunc func(ctx context.Context, key Key) (json.RawMessage, error)

// QueryOptions describe a query read
type QueryOptions struct {
	Key Key
	Fn  QueryFunc
	// StaleTime is how long settled data counts as fresh. Zero uses the client default.
	StaleTime time.Duration
}

// ObserverOptions describe a subscription
type ObserverOptions struct {
	QueryOptions
	// Disabled registers the observer without ever fetching on its behalf
	Disabled bool
}

// RefetchType selects what Invalidate does with matched entries
type RefetchType string

const (
	// RefetchActive refetches matched entries that have enabled observers or an in-flight fetch
	RefetchActive RefetchType = "active"
	// RefetchNone only marks matched entries stale
	RefetchNone RefetchType = "none"
)

// InvalidateOptions tune Invalidate
type InvalidateOptions struct {
	RefetchType RefetchType // defaults to RefetchActive
	Exact       bool        // match only the exact key instead of the prefix
}

func (o InvalidateOptions) refetchType() RefetchType {
	if o.RefetchType == "" {
		return RefetchActive
	}
	return o.RefetchType
}

// Snapshot is an immutable view of a cache entry at one point in time
type Snapshot struct {
	Key           Key
	Data          json.RawMessage
	Status        models.Status
	Error         *models.ErrorInfo
	UpdatedAt     time.Time
	IsFetching    bool
	IsInvalidated bool
	Observers     int
}

// ErrNoData is returned by Snapshot.Decode when the entry holds no data
var ErrNoData = errors.New("query has no data")

// HasData reports whether the snapshot carries data, possibly beside an error
func (s Snapshot) HasData() bool {
	return s.Data != nil
}

// Decode unmarshals the snapshot data into v
func (s Snapshot) Decode(v any) error {
	if s.Data == nil {
		return ErrNoData
	}
	return json.Unmarshal(s.Data, v)
}

func idleSnapshot(key Key) Snapshot {
	return Snapshot{Key: key, Status: models.StatusIdle}
}
