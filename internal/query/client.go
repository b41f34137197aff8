package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"go-events-query/internal/config"
	"go-events-query/internal/interfaces"
	"go-events-query/internal/metrics"
	"go-events-query/internal/models"
	"go-events-query/internal/scheduler"
)

// Lookup outcomes reported to metrics
const (
	lookupHit      = "hit"
	lookupStale    = "stale"
	lookupMiss     = "miss"
	lookupHydrated = "hydrated"
)

// Option configures a Client
type Option func(*Client)

// WithClock replaces the wall clock used for staleness and garbage collection
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.clock = clk
	}
}

// WithSnapshotStore enables write-through persistence of settled results
func WithSnapshotStore(store interfaces.SnapshotStore) Option {
	return func(c *Client) {
		c.store = store
	}
}

// Client is the process-wide keyed query cache. It is safe for concurrent use.
type Client struct {
	mu       sync.Mutex
	entries  map[string]*entry
	inFlight int
	fetchSeq uint64

	// persisted records fetched at or before a matching mark are not hydrated
	invalidationMarks map[string]invalidationMark

	defaultStaleTime time.Duration
	gcTime           time.Duration
	persistTTL       time.Duration

	clock     clock.Clock
	store     interfaces.SnapshotStore
	hydration singleflight.Group
	gc        *scheduler.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

type entry struct {
	key           Key
	ckey          canonicalKey
	fn            QueryFunc
	data          json.RawMessage
	status        models.Status
	err           *models.ErrorInfo
	updatedAt     time.Time
	invalidated   bool
	fetch         *fetch
	observers     map[*Observer]struct{}
	waiters       int
	inactiveSince time.Time
}

// invalidationMark records when a key prefix was last invalidated
type invalidationMark struct {
	prefix canonicalKey
	exact  bool
	at     time.Time
}

func (m invalidationMark) covers(ck canonicalKey, fetchedAt time.Time) bool {
	if m.exact && ck.str != m.prefix.str {
		return false
	}
	return ck.hasPrefix(m.prefix) && !fetchedAt.After(m.at)
}

// fetch is one outstanding call of an entry's QueryFunc
type fetch struct {
	id         uint64
	cancel     context.CancelFunc
	prevStatus models.Status
	done       chan struct{}

	// set before done is closed
	data     json.RawMessage
	err      *models.ErrorInfo
	canceled bool
	next     *fetch // replacement started by Invalidate
}

// NewClient creates a query cache and starts its garbage collection sweep
func NewClient(cfg *config.QueryConfig, logger *zap.Logger, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		entries:           make(map[string]*entry),
		invalidationMarks: make(map[string]invalidationMark),
		defaultStaleTime: cfg.DefaultStaleTime,
		gcTime:           cfg.GCTime,
		persistTTL:       cfg.PersistTTL,
		clock:            clock.New(),
		ctx:              ctx,
		cancel:           cancel,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.gc = scheduler.New(cfg.GCInterval, func() { c.CollectGarbage() }, scheduler.WithClock(c.clock))
	c.gc.Start()
	return c
}

// Get returns the current snapshot for the query without blocking. When the
// entry is absent, stale or invalidated and nothing is in flight, a
// background fetch is started.
func (c *Client) Get(opts QueryOptions) Snapshot {
	ck := canonicalize(opts.Key)
	record := c.hydrate(ck)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, hydrated := c.entryLocked(opts.Key, ck, record)
	e.remember(opts.Fn)
	c.ensureFreshLocked(e, c.staleTime(opts), hydrated)
	return e.snapshot()
}

// Resolve is Get for callers that can wait: when the entry has no data yet,
// or its data was invalidated, it blocks until the fetch settles or ctx is
// done. Data that merely aged past its staleTime is returned at once while
// it revalidates.
func (c *Client) Resolve(ctx context.Context, opts QueryOptions) Snapshot {
	ck := canonicalize(opts.Key)
	record := c.hydrate(ck)

	c.mu.Lock()
	e, hydrated := c.entryLocked(opts.Key, ck, record)
	e.remember(opts.Fn)
	c.ensureFreshLocked(e, c.staleTime(opts), hydrated)
	if e.fetch == nil || (e.data != nil && !e.invalidated) {
		snap := e.snapshot()
		c.mu.Unlock()
		return snap
	}

	e.waiters++
	f := e.fetch
	c.mu.Unlock()

	for {
		select {
		case <-f.done:
		case <-ctx.Done():
		}

		c.mu.Lock()
		if ctx.Err() == nil && f.canceled && f.next != nil {
			f = f.next
			c.mu.Unlock()
			continue
		}
		snap := e.snapshot()
		e.waiters--
		c.releaseLocked(e)
		c.mu.Unlock()
		return snap
	}
}

// Fetch returns fresh data for the query, joining or starting a fetch and
// waiting for it when needed. Cancelling ctx stops the wait; the shared fetch
// is cancelled only if this caller was the last interest in the key.
func (c *Client) Fetch(ctx context.Context, opts QueryOptions) (json.RawMessage, error) {
	ck := canonicalize(opts.Key)
	record := c.hydrate(ck)

	c.mu.Lock()
	e, hydrated := c.entryLocked(opts.Key, ck, record)
	e.remember(opts.Fn)
	if c.ensureFreshLocked(e, c.staleTime(opts), hydrated) {
		data := e.data
		c.mu.Unlock()
		return data, nil
	}
	if e.fetch == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("no query function for key %s", ck.str)
	}

	e.waiters++
	defer func() {
		c.mu.Lock()
		e.waiters--
		c.releaseLocked(e)
		c.mu.Unlock()
	}()

	f := e.fetch
	c.mu.Unlock()
	for {
		select {
		case <-f.done:
		case <-ctx.Done():
			return nil, &models.ErrorInfo{Kind: models.CanceledError, Message: "The query was canceled", Err: ctx.Err()}
		}

		c.mu.Lock()
		canceled, next := f.canceled, f.next
		c.mu.Unlock()

		if !canceled {
			if f.err != nil {
				return nil, f.err
			}
			return f.data, nil
		}
		// An invalidation replaces the fetch; follow the replacement.
		if next == nil {
			return nil, &models.ErrorInfo{Kind: models.CanceledError, Message: "The query was canceled", Err: context.Canceled}
		}
		f = next
	}
}

// Subscribe registers an observer for the query. The listener first receives
// the current snapshot, then every later transition of the entry.
func (c *Client) Subscribe(opts ObserverOptions, listener func(Snapshot)) *Observer {
	ck := canonicalize(opts.Key)
	var record *models.StoredQuery
	if !opts.Disabled {
		record = c.hydrate(ck)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, hydrated := c.entryLocked(opts.Key, ck, record)
	e.remember(opts.Fn)

	o := newObserver(c, e, listener, opts.Disabled)
	e.observers[o] = struct{}{}
	o.enqueue(e.snapshot())

	if !opts.Disabled {
		c.ensureFreshLocked(e, c.staleTime(opts.QueryOptions), hydrated)
	}
	return o
}

// Invalidate marks every entry whose key starts with prefix (or equals it,
// with Exact) as stale and drops its persisted snapshot. With RefetchActive,
// matched entries that are observed or already fetching are refetched; a
// fetch that was already in flight is replaced so its result is never used.
// It returns the number of matched entries.
func (c *Client) Invalidate(prefix Key, opts InvalidateOptions) int {
	cp := canonicalize(prefix)
	refetch := opts.refetchType()

	c.mu.Lock()
	c.markInvalidatedLocked(cp, opts.Exact)
	var hashes []string
	for _, e := range c.entries {
		if !e.matches(cp, opts.Exact) {
			continue
		}
		e.invalidated = true
		hashes = append(hashes, e.ckey.hash())

		if refetch == RefetchActive && e.fn != nil && (e.hasEnabledObserver() || e.fetch != nil) {
			replaced := e.fetch
			c.cancelFetchLocked(e, false)
			c.startFetchLocked(e)
			if replaced != nil {
				replaced.next = e.fetch
			}
			continue
		}
		c.notifyLocked(e)
	}
	c.mu.Unlock()

	matched := len(hashes)
	if c.store != nil {
		for _, hash := range hashes {
			c.store.Delete(hash)
		}
	}

	metrics.RecordInvalidation(category(prefix), string(refetch), matched)
	c.logger.Debug("Invalidated queries",
		zap.String("prefix", cp.str),
		zap.String("refetch", string(refetch)),
		zap.Int("matched", matched))
	return matched
}

// SetData overwrites the data of key as if a fetch had just succeeded.
// json.RawMessage values are stored as given, anything else is JSON-encoded.
func (c *Client) SetData(key Key, value any) error {
	data, err := encodeData(value)
	if err != nil {
		return fmt.Errorf("failed to encode query data: %w", err)
	}
	ck := canonicalize(key)

	c.mu.Lock()
	e, _ := c.entryLocked(key, ck, nil)
	now := c.clock.Now()
	e.data = data
	e.status = models.StatusSuccess
	e.err = nil
	e.updatedAt = now
	e.invalidated = false
	c.notifyLocked(e)
	c.mu.Unlock()

	c.persist(ck, data, now)
	return nil
}

// GetData returns the cached data of key, if any
func (c *Client) GetData(key Key) (json.RawMessage, bool) {
	ck := canonicalize(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ck.str]
	if !ok || e.data == nil {
		return nil, false
	}
	return e.data, true
}

// Snapshot returns the current snapshot of key without triggering a fetch
func (c *Client) Snapshot(key Key) (Snapshot, bool) {
	ck := canonicalize(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ck.str]
	if !ok {
		return idleSnapshot(key), false
	}
	return e.snapshot(), true
}

// Cancel cancels the in-flight fetch of exactly key. The entry reverts to
// its pre-fetch status and the late result is discarded.
func (c *Client) Cancel(key Key) {
	ck := canonicalize(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[ck.str]; ok {
		c.cancelFetchLocked(e, true)
	}
}

// CancelMatching cancels the in-flight fetches of every key starting with prefix
func (c *Client) CancelMatching(prefix Key) {
	cp := canonicalize(prefix)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.matches(cp, false) {
			c.cancelFetchLocked(e, true)
		}
	}
}

// IsFetching returns the number of fetches in flight
func (c *Client) IsFetching() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// CollectGarbage removes entries that have had no observers, waiters or
// fetch for at least the configured gcTime. It returns the number removed.
func (c *Client) CollectGarbage() int {
	c.mu.Lock()
	now := c.clock.Now()
	removed := 0
	for k, e := range c.entries {
		if e.interest() == 0 && e.fetch == nil && now.Sub(e.inactiveSince) >= c.gcTime {
			delete(c.entries, k)
			removed++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	metrics.SetQueryEntries(remaining)
	if removed > 0 {
		metrics.RecordEvictions(removed)
		c.logger.Debug("Collected unused queries", zap.Int("removed", removed), zap.Int("remaining", remaining))
	}
	return removed
}

// Reset cancels every fetch, detaches every observer and drops all entries.
// Persisted snapshots are dropped too: records of entries in memory are
// deleted and older records of evicted entries are no longer hydrated.
func (c *Client) Reset() {
	c.mu.Lock()
	hashes := c.dropEntriesLocked()
	c.markInvalidatedLocked(canonicalize(Key{}), false)
	c.mu.Unlock()

	if c.store != nil {
		for _, hash := range hashes {
			c.store.Delete(hash)
		}
	}
}

// ResetQuery returns key to its initial idle state without data, cancelling
// its fetch and dropping its persisted snapshot. Observers stay attached.
func (c *Client) ResetQuery(key Key) {
	ck := canonicalize(key)

	c.mu.Lock()
	c.markInvalidatedLocked(ck, true)
	if e, ok := c.entries[ck.str]; ok {
		c.cancelFetchLocked(e, false)
		e.data = nil
		e.status = models.StatusIdle
		e.err = nil
		e.updatedAt = time.Time{}
		e.invalidated = false
		c.notifyLocked(e)
	}
	c.mu.Unlock()

	if c.store != nil {
		c.store.Delete(ck.hash())
	}
}

// dropEntriesLocked cancels and detaches everything in memory and returns
// the store hashes of the dropped entries
func (c *Client) dropEntriesLocked() []string {
	hashes := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		c.cancelFetchLocked(e, false)
		for o := range e.observers {
			o.stop()
		}
		e.observers = make(map[*Observer]struct{})
		hashes = append(hashes, e.ckey.hash())
	}
	c.entries = make(map[string]*entry)
	metrics.SetQueryEntries(0)
	return hashes
}

// markInvalidatedLocked remembers that records under prefix fetched up to
// now are outdated. Marks older than the persistence TTL are dropped since
// every record they could cover has expired.
func (c *Client) markInvalidatedLocked(prefix canonicalKey, exact bool) {
	now := c.clock.Now()
	id := prefix.str
	if exact {
		id = "=" + id
	}
	c.invalidationMarks[id] = invalidationMark{prefix: prefix, exact: exact, at: now}

	if c.persistTTL <= 0 {
		return
	}
	for id, m := range c.invalidationMarks {
		if now.Sub(m.at) > c.persistTTL {
			delete(c.invalidationMarks, id)
		}
	}
}

// Close stops garbage collection and releases every entry
func (c *Client) Close() {
	c.gc.Stop()
	c.mu.Lock()
	c.dropEntriesLocked()
	c.mu.Unlock()
	c.cancel()
	c.logger.Info("Query client closed")
}

func (c *Client) staleTime(opts QueryOptions) time.Duration {
	if opts.StaleTime > 0 {
		return opts.StaleTime
	}
	return c.defaultStaleTime
}

// entryLocked returns the entry for ck, creating it (hydrated from record
// when given) if absent. The flag reports whether it was hydrated.
func (c *Client) entryLocked(key Key, ck canonicalKey, record *models.StoredQuery) (*entry, bool) {
	if e, ok := c.entries[ck.str]; ok {
		return e, false
	}

	e := &entry{
		key:           append(Key(nil), key...),
		ckey:          ck,
		status:        models.StatusIdle,
		observers:     make(map[*Observer]struct{}),
		inactiveSince: c.clock.Now(),
	}
	if record != nil {
		e.data = json.RawMessage(record.Data)
		e.status = models.StatusSuccess
		e.updatedAt = record.FetchedTime()
	}
	c.entries[ck.str] = e
	metrics.SetQueryEntries(len(c.entries))
	return e, record != nil
}

// ensureFreshLocked reports whether e holds fresh data. Otherwise it starts
// a fetch unless one is in flight or no QueryFunc is known.
func (c *Client) ensureFreshLocked(e *entry, staleTime time.Duration, hydrated bool) bool {
	cat := category(e.key)

	switch {
	case e.data == nil:
		metrics.RecordQueryLookup(cat, lookupMiss)
	case e.isStale(c.clock.Now(), staleTime):
		metrics.RecordQueryLookup(cat, lookupStale)
	case hydrated:
		metrics.RecordQueryLookup(cat, lookupHydrated)
		return true
	default:
		metrics.RecordQueryLookup(cat, lookupHit)
		c.logger.Debug("Query cache hit", zap.String("key", e.ckey.str))
		return true
	}

	if e.fetch == nil && e.fn != nil {
		c.startFetchLocked(e)
	}
	return false
}

func (c *Client) startFetchLocked(e *entry) {
	c.fetchSeq++
	ctx, cancel := context.WithCancel(c.ctx)
	f := &fetch{
		id:         c.fetchSeq,
		cancel:     cancel,
		prevStatus: e.status,
		done:       make(chan struct{}),
	}
	e.fetch = f
	if e.data == nil {
		e.status = models.StatusPending
	}
	c.inFlight++
	metrics.SetQueriesInFlight(c.inFlight)

	c.logger.Debug("Fetching query", zap.String("key", e.ckey.str), zap.Uint64("fetch_id", f.id))
	c.notifyLocked(e)

	go c.runFetch(ctx, e, f, e.fn, e.key)
}

func (c *Client) runFetch(ctx context.Context, e *entry, f *fetch, fn QueryFunc, key Key) {
	startTime := time.Now()
	data, err := fn(ctx, key)
	duration := time.Since(startTime)
	cat := category(key)

	c.mu.Lock()
	if e.fetch != f {
		c.mu.Unlock()
		metrics.RecordQueryFetch(cat, "discarded", duration)
		c.logger.Debug("Discarded result of canceled fetch", zap.String("key", e.ckey.str), zap.Uint64("fetch_id", f.id))
		return
	}

	e.fetch = nil
	c.inFlight--
	metrics.SetQueriesInFlight(c.inFlight)

	now := c.clock.Now()
	result := "success"
	if err != nil {
		result = "error"
		info := models.AsErrorInfo(err)
		e.status = models.StatusError
		e.err = info
		f.err = info
		c.logger.Error("Query fetch failed", zap.String("key", e.ckey.str), zap.Error(err))
	} else {
		if data == nil {
			data = json.RawMessage("null")
		}
		e.data = data
		e.status = models.StatusSuccess
		e.err = nil
		e.updatedAt = now
		e.invalidated = false
		f.data = data
	}
	close(f.done)
	c.notifyLocked(e)
	c.mu.Unlock()

	metrics.RecordQueryFetch(cat, result, duration)
	if err == nil {
		c.persist(e.ckey, data, now)
	}
}

// cancelFetchLocked drops the in-flight fetch of e, if any. An entry still
// pending on it gets back the status it had before the fetch started; a
// status set meanwhile, by SetData for instance, is kept.
func (c *Client) cancelFetchLocked(e *entry, notify bool) {
	f := e.fetch
	if f == nil {
		return
	}
	f.cancel()
	f.canceled = true
	e.fetch = nil
	if e.status == models.StatusPending {
		e.status = f.prevStatus
	}
	c.inFlight--
	metrics.SetQueriesInFlight(c.inFlight)
	close(f.done)

	c.logger.Debug("Canceled query fetch", zap.String("key", e.ckey.str), zap.Uint64("fetch_id", f.id))
	if notify {
		c.notifyLocked(e)
	}
}

// releaseLocked is called after an observer or waiter leaves e
func (c *Client) releaseLocked(e *entry) {
	if e.interest() > 0 {
		return
	}
	e.inactiveSince = c.clock.Now()
	c.cancelFetchLocked(e, true)
}

func (c *Client) notifyLocked(e *entry) {
	if len(e.observers) == 0 {
		return
	}
	snap := e.snapshot()
	for o := range e.observers {
		o.enqueue(snap)
	}
}

// hydrate loads a persisted snapshot for a key that is not in memory yet
func (c *Client) hydrate(ck canonicalKey) *models.StoredQuery {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	_, exists := c.entries[ck.str]
	c.mu.Unlock()
	if exists {
		return nil
	}

	hash := ck.hash()
	v, _, _ := c.hydration.Do(hash, func() (any, error) {
		record, found := c.store.Get(hash)
		if !found {
			return nil, nil
		}
		return record, nil
	})

	record, _ := v.(*models.StoredQuery)
	if record == nil || record.Key != ck.str || record.IsExpired(c.clock.Now()) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.invalidationMarks {
		if m.covers(ck, record.FetchedTime()) {
			c.logger.Debug("Skipped invalidated snapshot", zap.String("key", ck.str))
			return nil
		}
	}
	return record
}

// persist writes the entry's data through to the store unless it was
// invalidated or overwritten after settling
func (c *Client) persist(ck canonicalKey, data json.RawMessage, fetchedAt time.Time) {
	if c.store == nil {
		return
	}

	c.mu.Lock()
	e, ok := c.entries[ck.str]
	current := ok && !e.invalidated && e.updatedAt.Equal(fetchedAt)
	c.mu.Unlock()
	if !current {
		return
	}

	record := models.NewStoredQuery(ck.str, data, fetchedAt, c.persistTTL)
	c.store.Set(ck.hash(), record, c.persistTTL)
}

func (e *entry) remember(fn QueryFunc) {
	if fn != nil {
		e.fn = fn
	}
}

func (e *entry) interest() int {
	return len(e.observers) + e.waiters
}

func (e *entry) hasEnabledObserver() bool {
	for o := range e.observers {
		if !o.disabled {
			return true
		}
	}
	return false
}

func (e *entry) matches(prefix canonicalKey, exact bool) bool {
	if exact {
		return e.ckey.str == prefix.str
	}
	return e.ckey.hasPrefix(prefix)
}

// isStale reports whether the data is older than staleTime or invalidated
func (e *entry) isStale(now time.Time, staleTime time.Duration) bool {
	return e.invalidated || now.Sub(e.updatedAt) > staleTime
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:           e.key,
		Data:          e.data,
		Status:        e.status,
		Error:         e.err,
		UpdatedAt:     e.updatedAt,
		IsFetching:    e.fetch != nil,
		IsInvalidated: e.invalidated,
		Observers:     len(e.observers),
	}
}

func encodeData(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, errors.New("invalid JSON")
		}
		return raw, nil
	}
	return json.Marshal(value)
}

// category returns the resource category of key for metrics labels
func category(key Key) string {
	if len(key) > 0 {
		if s, ok := key[0].(string); ok {
			return s
		}
	}
	return "unknown"
}
