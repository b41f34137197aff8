package query

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"go-events-query/internal/config"
	"go-events-query/internal/interfaces/mock"
	"go-events-query/internal/models"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestClient(t *testing.T, opts ...Option) (*Client, *clock.Mock) {
	t.Helper()
	mockClock := clock.NewMock()
	cfg := &config.QueryConfig{GCTime: 5 * time.Minute, PersistTTL: time.Hour}
	client := NewClient(cfg, zap.NewNop(), append([]Option{WithClock(mockClock)}, opts...)...)
	t.Cleanup(client.Close)
	return client, mockClock
}

// countingFn returns a QueryFunc that answers with value and counts calls
func countingFn(calls *atomic.Int32, value string) QueryFunc {
	return func(ctx context.Context, key Key) (json.RawMessage, error) {
		calls.Add(1)
		return json.Marshal(value)
	}
}

// blockingFn returns a QueryFunc that waits for release before answering
func blockingFn(calls *atomic.Int32, release <-chan struct{}, value string) QueryFunc {
	return func(ctx context.Context, key Key) (json.RawMessage, error) {
		calls.Add(1)
		<-release
		return json.Marshal(value)
	}
}

func TestClient_Get_MissStartsFetch(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	release := make(chan struct{})
	opts := QueryOptions{Key: Key{"events"}, Fn: blockingFn(&calls, release, "list")}

	snap := client.Get(opts)
	assert.Equal(t, models.StatusPending, snap.Status)
	assert.True(t, snap.IsFetching)
	assert.Nil(t, snap.Data)
	assert.Equal(t, 1, client.IsFetching())

	close(release)
	require.Eventually(t, func() bool {
		s, _ := client.Snapshot(Key{"events"})
		return s.Status == models.StatusSuccess
	}, waitFor, tick)

	snap = client.Get(opts)
	assert.Equal(t, json.RawMessage(`"list"`), snap.Data)
	assert.False(t, snap.IsFetching)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, client.IsFetching())
}

func TestClient_Fetch_DedupesConcurrentCalls(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	release := make(chan struct{})
	opts := QueryOptions{Key: Key{"events", "42"}, Fn: blockingFn(&calls, release, "event"), StaleTime: time.Minute}

	client.Get(opts)

	var wg sync.WaitGroup
	results := make([]json.RawMessage, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := client.Fetch(context.Background(), opts)
			assert.NoError(t, err)
			results[i] = data
		}(i)
	}

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, data := range results {
		assert.Equal(t, json.RawMessage(`"event"`), data)
	}
}

func TestClient_StaleTime(t *testing.T) {
	client, mockClock := newTestClient(t)
	var calls atomic.Int32
	opts := QueryOptions{Key: Key{"events", "7"}, Fn: countingFn(&calls, "event"), StaleTime: 10 * time.Second}

	_, err := client.Fetch(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	mockClock.Add(5 * time.Second)
	snap := client.Get(opts)
	assert.False(t, snap.IsFetching)
	assert.Equal(t, int32(1), calls.Load())

	// exactly staleTime old is still fresh
	mockClock.Add(5 * time.Second)
	snap = client.Get(opts)
	assert.False(t, snap.IsFetching)

	mockClock.Add(1 * time.Second)
	snap = client.Get(opts)
	assert.True(t, snap.IsFetching)
	assert.Equal(t, json.RawMessage(`"event"`), snap.Data)
	assert.Equal(t, models.StatusSuccess, snap.Status)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, waitFor, tick)
}

func TestClient_Fetch_ReturnsFreshDataWithoutFetching(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	key := Key{"events", "1"}

	require.NoError(t, client.SetData(key, map[string]string{"title": "cached"}))

	data, err := client.Fetch(context.Background(), QueryOptions{Key: key, Fn: countingFn(&calls, "remote"), StaleTime: time.Minute})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"cached"}`, string(data))
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_Fetch_Error(t *testing.T) {
	client, _ := newTestClient(t)
	notFound := &models.ErrorInfo{Kind: models.HTTPError, Message: "Not found", StatusCode: 404}
	opts := QueryOptions{
		Key: Key{"events", "missing"},
		Fn: func(ctx context.Context, key Key) (json.RawMessage, error) {
			return nil, notFound
		},
	}

	_, err := client.Fetch(context.Background(), opts)
	require.Error(t, err)
	assert.Same(t, notFound, models.AsErrorInfo(err))

	snap, ok := client.Snapshot(opts.Key)
	require.True(t, ok)
	assert.Equal(t, models.StatusError, snap.Status)
	assert.Equal(t, "Not found", snap.Error.Message)
}

func TestClient_Fetch_NoQueryFunction(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Fetch(context.Background(), QueryOptions{Key: Key{"events"}})
	assert.Error(t, err)
}

func TestClient_Fetch_CallerContextCanceled(t *testing.T) {
	client, _ := newTestClient(t)
	canceled := make(chan struct{})
	opts := QueryOptions{
		Key: Key{"events"},
		Fn: func(ctx context.Context, key Key) (json.RawMessage, error) {
			<-ctx.Done()
			close(canceled)
			return nil, ctx.Err()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Fetch(ctx, opts)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return client.IsFetching() == 1 }, waitFor, tick)
	cancel()

	err := <-errCh
	assert.True(t, models.IsCanceled(err))

	// the waiter was the only interest, so the fetch is cancelled too
	select {
	case <-canceled:
	case <-time.After(waitFor):
		t.Fatal("fetch was not canceled")
	}
	assert.Equal(t, 0, client.IsFetching())
}

func TestClient_Fetch_CallerCancelKeepsSharedFetch(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	release := make(chan struct{})
	opts := QueryOptions{Key: Key{"events"}, Fn: blockingFn(&calls, release, "list")}

	observer := client.Subscribe(ObserverOptions{QueryOptions: opts}, nil)
	defer observer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Fetch(ctx, opts)
	assert.True(t, models.IsCanceled(err))
	assert.Equal(t, 1, client.IsFetching())

	close(release)
	require.Eventually(t, func() bool {
		data, ok := client.GetData(Key{"events"})
		return ok && string(data) == `"list"`
	}, waitFor, tick)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Subscribe_DeliversTransitionsInOrder(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	release := make(chan struct{})
	snapshots := make(chan Snapshot, 10)

	observer := client.Subscribe(ObserverOptions{
		QueryOptions: QueryOptions{Key: Key{"events", "3"}, Fn: blockingFn(&calls, release, "event")},
	}, func(s Snapshot) {
		snapshots <- s
	})
	defer observer.Close()

	first := <-snapshots
	assert.Equal(t, models.StatusIdle, first.Status)
	assert.Equal(t, 1, first.Observers)

	second := <-snapshots
	assert.Equal(t, models.StatusPending, second.Status)
	assert.True(t, second.IsFetching)

	close(release)
	third := <-snapshots
	assert.Equal(t, models.StatusSuccess, third.Status)
	assert.False(t, third.IsFetching)

	var value string
	require.NoError(t, third.Decode(&value))
	assert.Equal(t, "event", value)
}

func TestClient_Subscribe_ListenerMayReenterClient(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key{"events", "re-enter"}
	seen := make(chan int, 10)

	observer := client.Subscribe(ObserverOptions{QueryOptions: QueryOptions{Key: key}, Disabled: true}, func(s Snapshot) {
		seen <- client.IsFetching()
		_, _ = client.GetData(key)
	})
	defer observer.Close()

	require.NoError(t, client.SetData(key, "value"))

	for i := 0; i < 2; i++ {
		select {
		case <-seen:
		case <-time.After(waitFor):
			t.Fatal("listener was not called")
		}
	}
}

func TestClient_Subscribe_DisabledDoesNotFetch(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32

	key := Key{"events", models.ListParams{}}

	observer := client.Subscribe(ObserverOptions{
		QueryOptions: QueryOptions{Key: key, Fn: countingFn(&calls, "x")},
		Disabled:     true,
	}, nil)
	defer observer.Close()

	assert.Never(t, func() bool { return calls.Load() > 0 }, 50*time.Millisecond, tick)
	snap, ok := client.Snapshot(key)
	require.True(t, ok)
	assert.Equal(t, models.StatusIdle, snap.Status)
}

func TestClient_Observer_CloseLastCancelsFetch(t *testing.T) {
	client, _ := newTestClient(t)
	started := make(chan struct{})
	canceled := make(chan struct{})

	observer := client.Subscribe(ObserverOptions{QueryOptions: QueryOptions{
		Key: Key{"events", "9"},
		Fn: func(ctx context.Context, key Key) (json.RawMessage, error) {
			close(started)
			<-ctx.Done()
			close(canceled)
			return nil, ctx.Err()
		},
	}}, nil)

	<-started
	observer.Close()
	observer.Close()

	select {
	case <-canceled:
	case <-time.After(waitFor):
		t.Fatal("fetch was not canceled")
	}

	snap, _ := client.Snapshot(Key{"events", "9"})
	assert.Equal(t, models.StatusIdle, snap.Status)
	assert.False(t, snap.IsFetching)
	assert.Equal(t, 0, snap.Observers)
}

func TestClient_Observer_CloseKeepsOtherObservers(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	release := make(chan struct{})
	opts := ObserverOptions{QueryOptions: QueryOptions{Key: Key{"events"}, Fn: blockingFn(&calls, release, "list")}}

	first := client.Subscribe(opts, nil)
	second := client.Subscribe(opts, nil)
	defer second.Close()

	first.Close()
	assert.Equal(t, 1, client.IsFetching())

	close(release)
	require.Eventually(t, func() bool {
		_, ok := client.GetData(Key{"events"})
		return ok
	}, waitFor, tick)
}

func TestClient_Cancel_HasNoEffect(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	release := make(chan struct{})
	key := Key{"events", "5"}

	client.Get(QueryOptions{Key: key, Fn: blockingFn(&calls, release, "late")})
	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)

	client.Cancel(key)
	assert.Equal(t, 0, client.IsFetching())

	close(release)
	assert.Never(t, func() bool {
		_, ok := client.GetData(key)
		return ok
	}, 50*time.Millisecond, tick)

	snap, _ := client.Snapshot(key)
	assert.Equal(t, models.StatusIdle, snap.Status)
}

func TestClient_Cancel_RevertsToPreviousData(t *testing.T) {
	client, mockClock := newTestClient(t)
	var calls atomic.Int32
	release := make(chan struct{})
	key := Key{"events", "6"}

	require.NoError(t, client.SetData(key, "confirmed"))
	mockClock.Add(time.Second)

	snap := client.Get(QueryOptions{Key: key, Fn: blockingFn(&calls, release, "refetched")})
	require.True(t, snap.IsFetching)

	client.CancelMatching(Key{"events"})
	close(release)

	snap, _ = client.Snapshot(key)
	assert.Equal(t, models.StatusSuccess, snap.Status)
	assert.False(t, snap.IsFetching)
	assert.Equal(t, json.RawMessage(`"confirmed"`), snap.Data)
}

func TestClient_Invalidate_PrefixAndExact(t *testing.T) {
	client, _ := newTestClient(t)

	require.NoError(t, client.SetData(Key{"events"}, []string{}))
	require.NoError(t, client.SetData(Key{"events", models.ListParams{Max: 3}}, []string{}))
	require.NoError(t, client.SetData(Key{"events", "42"}, map[string]string{}))
	require.NoError(t, client.SetData(Key{"users"}, []string{}))

	matched := client.Invalidate(Key{"events"}, InvalidateOptions{})
	assert.Equal(t, 3, matched)

	for _, key := range []Key{{"events"}, {"events", map[string]any{"max": 3}}, {"events", "42"}} {
		snap, ok := client.Snapshot(key)
		require.True(t, ok, key.String())
		assert.True(t, snap.IsInvalidated, key.String())
	}
	users, _ := client.Snapshot(Key{"users"})
	assert.False(t, users.IsInvalidated)

	assert.Equal(t, 1, client.Invalidate(Key{"users"}, InvalidateOptions{Exact: true}))
	assert.Equal(t, 0, client.Invalidate(Key{"events", "404"}, InvalidateOptions{}))

	// invalidating twice matches the same entries again
	assert.Equal(t, 3, client.Invalidate(Key{"events"}, InvalidateOptions{}))
}

func TestClient_Invalidate_RefetchesActiveObservers(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	opts := ObserverOptions{QueryOptions: QueryOptions{Key: Key{"events"}, Fn: countingFn(&calls, "list"), StaleTime: time.Hour}}

	observer := client.Subscribe(opts, nil)
	defer observer.Close()
	require.Eventually(t, func() bool {
		_, ok := client.GetData(Key{"events"})
		return ok
	}, waitFor, tick)

	client.Invalidate(Key{"events"}, InvalidateOptions{RefetchType: RefetchActive})
	require.Eventually(t, func() bool { return calls.Load() == 2 }, waitFor, tick)
	require.Eventually(t, func() bool {
		snap, _ := client.Snapshot(Key{"events"})
		return !snap.IsInvalidated && !snap.IsFetching
	}, waitFor, tick)
}

func TestClient_Invalidate_RefetchNone(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	opts := ObserverOptions{QueryOptions: QueryOptions{Key: Key{"events"}, Fn: countingFn(&calls, "list"), StaleTime: time.Hour}}

	observer := client.Subscribe(opts, nil)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return client.IsFetching() == 0 }, waitFor, tick)

	client.Invalidate(Key{"events"}, InvalidateOptions{RefetchType: RefetchNone})
	assert.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, tick)
	observer.Close()

	// the next observer sees the entry as stale and refetches
	next := client.Subscribe(opts, nil)
	defer next.Close()
	require.Eventually(t, func() bool { return calls.Load() == 2 }, waitFor, tick)
}

func TestClient_Invalidate_ReplacesInFlightFetch(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	firstRelease := make(chan struct{})
	key := Key{"events"}

	fn := func(ctx context.Context, k Key) (json.RawMessage, error) {
		if calls.Add(1) == 1 {
			<-firstRelease
			return json.RawMessage(`"before"`), nil
		}
		return json.RawMessage(`"after"`), nil
	}

	errCh := make(chan error, 1)
	dataCh := make(chan json.RawMessage, 1)
	go func() {
		data, err := client.Fetch(context.Background(), QueryOptions{Key: key, Fn: fn})
		dataCh <- data
		errCh <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)

	client.Invalidate(key, InvalidateOptions{})
	close(firstRelease)

	require.NoError(t, <-errCh)
	assert.Equal(t, json.RawMessage(`"after"`), <-dataCh)

	data, ok := client.GetData(key)
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`"after"`), data)
}

func TestClient_FailedRefetchKeepsData(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key{"events", "8"}
	require.NoError(t, client.SetData(key, "old"))

	observer := client.Subscribe(ObserverOptions{QueryOptions: QueryOptions{
		Key:       key,
		StaleTime: time.Hour,
		Fn: func(ctx context.Context, k Key) (json.RawMessage, error) {
			return nil, &models.ErrorInfo{Kind: models.NetworkError, Message: "offline"}
		},
	}}, nil)
	defer observer.Close()

	client.Invalidate(key, InvalidateOptions{})
	require.Eventually(t, func() bool {
		snap, _ := client.Snapshot(key)
		return snap.Status == models.StatusError
	}, waitFor, tick)

	snap, _ := client.Snapshot(key)
	assert.Equal(t, json.RawMessage(`"old"`), snap.Data)
	assert.Equal(t, "offline", snap.Error.Message)
}

func TestClient_SetData(t *testing.T) {
	client, mockClock := newTestClient(t)
	key := Key{"events", "11"}

	_, ok := client.GetData(key)
	assert.False(t, ok)

	require.NoError(t, client.SetData(key, models.Event{ID: "11", Title: "Optimistic"}))
	data, ok := client.GetData(key)
	require.True(t, ok)

	var event models.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "Optimistic", event.Title)

	snap, _ := client.Snapshot(key)
	assert.Equal(t, models.StatusSuccess, snap.Status)
	assert.Equal(t, mockClock.Now(), snap.UpdatedAt)

	require.NoError(t, client.SetData(key, json.RawMessage(`{"id":"11"}`)))
	assert.Error(t, client.SetData(key, json.RawMessage(`{broken`)))
}

func TestClient_Persistence(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock.NewMockSnapshotStore(ctrl)
	client, mockClock := newTestClient(t, WithSnapshotStore(store))

	key := Key{"events", "21"}
	hash := key.Hash()
	var calls atomic.Int32
	opts := QueryOptions{Key: key, Fn: countingFn(&calls, "remote"), StaleTime: time.Minute}

	stored := models.NewStoredQuery(key.String(), []byte(`"stored"`), mockClock.Now(), time.Hour)
	store.EXPECT().Get(hash).Return(stored, true)

	snap := client.Get(opts)
	assert.Equal(t, models.StatusSuccess, snap.Status)
	assert.Equal(t, json.RawMessage(`"stored"`), snap.Data)
	assert.False(t, snap.IsFetching)
	assert.Equal(t, int32(0), calls.Load())

	setDone := make(chan struct{})
	store.EXPECT().Delete(hash)
	store.EXPECT().Set(hash, gomock.Any(), time.Hour).Do(func(key string, record *models.StoredQuery, ttl time.Duration) {
		assert.Equal(t, `"remote"`, string(record.Data))
		close(setDone)
	})

	client.Invalidate(key, InvalidateOptions{})
	_, err := client.Fetch(context.Background(), opts)
	require.NoError(t, err)

	select {
	case <-setDone:
	case <-time.After(waitFor):
		t.Fatal("result was not persisted")
	}
}

func TestClient_Persistence_IgnoresExpiredRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock.NewMockSnapshotStore(ctrl)
	client, mockClock := newTestClient(t, WithSnapshotStore(store))

	key := Key{"events"}
	expired := models.NewStoredQuery(key.String(), []byte(`[]`), mockClock.Now().Add(-2*time.Hour), time.Hour)
	store.EXPECT().Get(key.Hash()).Return(expired, true)

	snap := client.Get(QueryOptions{Key: key})
	assert.Equal(t, models.StatusIdle, snap.Status)
	assert.Nil(t, snap.Data)
}

func TestClient_CollectGarbage(t *testing.T) {
	client, mockClock := newTestClient(t)

	require.NoError(t, client.SetData(Key{"events", "unused"}, "x"))
	observer := client.Subscribe(ObserverOptions{QueryOptions: QueryOptions{Key: Key{"events", "watched"}}, Disabled: true}, nil)
	defer observer.Close()

	mockClock.Add(4 * time.Minute)
	assert.Equal(t, 0, client.CollectGarbage())

	mockClock.Add(time.Minute)
	assert.Equal(t, 1, client.CollectGarbage())

	_, ok := client.Snapshot(Key{"events", "unused"})
	assert.False(t, ok)
	_, ok = client.Snapshot(Key{"events", "watched"})
	assert.True(t, ok)
}

func TestClient_Reset(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	release := make(chan struct{})
	defer close(release)

	client.Get(QueryOptions{Key: Key{"events"}, Fn: blockingFn(&calls, release, "x")})
	require.NoError(t, client.SetData(Key{"events", "1"}, "y"))
	observer := client.Subscribe(ObserverOptions{QueryOptions: QueryOptions{Key: Key{"events", "1"}}}, nil)

	client.Reset()
	assert.Equal(t, 0, client.IsFetching())
	_, ok := client.Snapshot(Key{"events", "1"})
	assert.False(t, ok)

	observer.Close()
}

func TestClient_Resolve_WaitsForFirstFetch(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	release := make(chan struct{})
	opts := QueryOptions{Key: Key{"events", "1"}, Fn: blockingFn(&calls, release, "one")}

	done := make(chan Snapshot, 1)
	go func() { done <- client.Resolve(context.Background(), opts) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)
	close(release)

	snap := <-done
	assert.Equal(t, models.StatusSuccess, snap.Status)
	assert.Equal(t, json.RawMessage(`"one"`), snap.Data)
	assert.False(t, snap.IsFetching)
}

func TestClient_Resolve_ReturnsError(t *testing.T) {
	client, _ := newTestClient(t)
	opts := QueryOptions{Key: Key{"events", "1"}, Fn: func(ctx context.Context, key Key) (json.RawMessage, error) {
		return nil, &models.ErrorInfo{Kind: models.HTTPError, StatusCode: 500, Message: "boom"}
	}}

	snap := client.Resolve(context.Background(), opts)
	assert.Equal(t, models.StatusError, snap.Status)
	require.NotNil(t, snap.Error)
	assert.Equal(t, 500, snap.Error.StatusCode)
}

func TestClient_Resolve_StaleDataReturnedAtOnce(t *testing.T) {
	client, mockClock := newTestClient(t)
	require.NoError(t, client.SetData(Key{"events"}, "old"))
	mockClock.Add(time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	defer close(release)

	snap := client.Resolve(context.Background(), QueryOptions{Key: Key{"events"}, Fn: blockingFn(&calls, release, "new")})
	assert.Equal(t, json.RawMessage(`"old"`), snap.Data)
	assert.True(t, snap.IsFetching)
}

func TestClient_Resolve_ContextCanceled(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap := client.Resolve(ctx, QueryOptions{Key: Key{"events"}, Fn: blockingFn(&calls, release, "x")})
	assert.Equal(t, models.StatusPending, snap.Status)
	assert.Equal(t, 0, client.IsFetching())
}

func TestClient_GarbageCollectionSweep(t *testing.T) {
	mockClock := clock.NewMock()
	cfg := &config.QueryConfig{GCTime: time.Minute, GCInterval: 30 * time.Second}
	client := NewClient(cfg, zap.NewNop(), WithClock(mockClock))
	t.Cleanup(client.Close)

	require.NoError(t, client.SetData(Key{"events", "old"}, "x"))

	mockClock.Add(30 * time.Second)
	mockClock.Add(30 * time.Second)
	require.Eventually(t, func() bool {
		_, ok := client.Snapshot(Key{"events", "old"})
		return !ok
	}, waitFor, tick)
}

// memoryStore is an in-memory SnapshotStore
type memoryStore struct {
	mu      sync.Mutex
	records map[string]*models.StoredQuery
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*models.StoredQuery)}
}

func (m *memoryStore) Get(key string) (*models.StoredQuery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[key]
	return record, ok
}

func (m *memoryStore) Set(key string, record *models.StoredQuery, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = record
}

func (m *memoryStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
}

func (m *memoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func TestClient_Resolve_WaitsForRefetchAfterInvalidation(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key{"events"}
	require.NoError(t, client.SetData(key, "before create"))

	assert.Equal(t, 1, client.Invalidate(key, InvalidateOptions{}))

	var calls atomic.Int32
	release := make(chan struct{})
	done := make(chan Snapshot, 1)
	go func() {
		done <- client.Resolve(context.Background(), QueryOptions{Key: key, Fn: blockingFn(&calls, release, "after create")})
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)
	select {
	case <-done:
		t.Fatal("invalidated data returned before the refetch settled")
	default:
	}
	close(release)

	snap := <-done
	assert.Equal(t, models.StatusSuccess, snap.Status)
	assert.Equal(t, json.RawMessage(`"after create"`), snap.Data)
	assert.False(t, snap.IsInvalidated)
}

func TestClient_Invalidate_CoversEvictedPersistedRecords(t *testing.T) {
	store := newMemoryStore()
	client, mockClock := newTestClient(t, WithSnapshotStore(store))
	key := Key{"events", "1"}

	require.NoError(t, client.SetData(key, "before delete"))
	require.Equal(t, 1, store.Len())

	mockClock.Add(6 * time.Minute)
	require.Equal(t, 1, client.CollectGarbage())
	assert.Equal(t, 0, client.Invalidate(Key{"events"}, InvalidateOptions{}))

	var calls atomic.Int32
	snap := client.Get(QueryOptions{Key: key, Fn: countingFn(&calls, "refetched"), StaleTime: time.Hour})
	assert.Nil(t, snap.Data)
	assert.True(t, snap.IsFetching)

	require.Eventually(t, func() bool {
		s, _ := client.Snapshot(key)
		return s.Status == models.StatusSuccess
	}, waitFor, tick)
	data, _ := client.GetData(key)
	assert.Equal(t, json.RawMessage(`"refetched"`), data)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Invalidate_LaterRecordsStillHydrate(t *testing.T) {
	store := newMemoryStore()
	client, mockClock := newTestClient(t, WithSnapshotStore(store))
	key := Key{"events", "2"}

	client.Invalidate(Key{"events"}, InvalidateOptions{})
	mockClock.Add(time.Second)
	require.NoError(t, client.SetData(key, "fresh"))

	mockClock.Add(6 * time.Minute)
	require.Equal(t, 1, client.CollectGarbage())

	snap := client.Get(QueryOptions{Key: key, StaleTime: time.Hour})
	assert.Equal(t, models.StatusSuccess, snap.Status)
	assert.Equal(t, json.RawMessage(`"fresh"`), snap.Data)
	assert.False(t, snap.IsFetching)
}

func TestClient_Persist_SkipsInvalidatedResult(t *testing.T) {
	store := newMemoryStore()
	client, mockClock := newTestClient(t, WithSnapshotStore(store))
	key := Key{"events", "3"}

	require.NoError(t, client.SetData(key, "settled"))
	settledAt := mockClock.Now()
	client.Invalidate(key, InvalidateOptions{})
	require.Equal(t, 0, store.Len())

	// a write-through racing the invalidation
	client.persist(canonicalize(key), json.RawMessage(`"settled"`), settledAt)
	assert.Equal(t, 0, store.Len())
}

func TestClient_Cancel_KeepsDataSetDuringFetch(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32
	release := make(chan struct{})
	key := Key{"events", "7"}

	snap := client.Get(QueryOptions{Key: key, Fn: blockingFn(&calls, release, "fetched")})
	require.Equal(t, models.StatusPending, snap.Status)

	require.NoError(t, client.SetData(key, "optimistic"))
	client.Cancel(key)
	close(release)

	snap, _ = client.Snapshot(key)
	assert.Equal(t, models.StatusSuccess, snap.Status)
	assert.False(t, snap.IsFetching)
	assert.Equal(t, json.RawMessage(`"optimistic"`), snap.Data)
}

func TestClient_Reset_DropsPersistedSnapshots(t *testing.T) {
	store := newMemoryStore()
	client, mockClock := newTestClient(t, WithSnapshotStore(store))

	require.NoError(t, client.SetData(Key{"events", "evicted"}, "a"))
	mockClock.Add(6 * time.Minute)
	require.Equal(t, 1, client.CollectGarbage())
	require.NoError(t, client.SetData(Key{"events", "live"}, "b"))
	require.Equal(t, 2, store.Len())

	client.Reset()
	assert.Equal(t, 1, store.Len())

	for _, key := range []Key{{"events", "evicted"}, {"events", "live"}} {
		snap := client.Get(QueryOptions{Key: key})
		assert.Equal(t, models.StatusIdle, snap.Status, key.String())
		assert.Nil(t, snap.Data, key.String())
	}
}

func TestClient_Close_KeepsPersistedSnapshots(t *testing.T) {
	store := newMemoryStore()
	cfg := &config.QueryConfig{GCTime: 5 * time.Minute, PersistTTL: time.Hour}
	client := NewClient(cfg, zap.NewNop(), WithSnapshotStore(store))

	require.NoError(t, client.SetData(Key{"events"}, "kept"))
	client.Close()
	assert.Equal(t, 1, store.Len())
}

func TestClient_ResetQuery(t *testing.T) {
	store := newMemoryStore()
	client, _ := newTestClient(t, WithSnapshotStore(store))
	key := Key{"events", "8"}
	require.NoError(t, client.SetData(key, "optimistic"))

	var snaps []Snapshot
	var mu sync.Mutex
	observer := client.Subscribe(ObserverOptions{QueryOptions: QueryOptions{Key: key}, Disabled: true}, func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})
	defer observer.Close()

	client.ResetQuery(key)

	snap, ok := client.Snapshot(key)
	require.True(t, ok)
	assert.Equal(t, models.StatusIdle, snap.Status)
	assert.Nil(t, snap.Data)
	assert.Equal(t, 1, snap.Observers)
	assert.Equal(t, 0, store.Len())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snaps) == 2 && snaps[1].Status == models.StatusIdle
	}, waitFor, tick)
}

func TestObserver_SlowListenerBacklogIsBounded(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key{"events", "9"}

	release := make(chan struct{})
	var mu sync.Mutex
	var got []Snapshot
	observer := client.Subscribe(ObserverOptions{QueryOptions: QueryOptions{Key: key}, Disabled: true}, func(s Snapshot) {
		mu.Lock()
		got = append(got, s)
		first := len(got) == 1
		mu.Unlock()
		if first {
			<-release
		}
	})
	defer observer.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, waitFor, tick)

	for i := 0; i < 200; i++ {
		require.NoError(t, client.SetData(key, i))
	}
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(got[len(got)-1].Data) == "199"
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, len(got), maxQueuedSnapshots+1)
	for i := 2; i < len(got); i++ {
		assert.True(t, !got[i].UpdatedAt.Before(got[i-1].UpdatedAt))
	}
}
