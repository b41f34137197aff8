package mutation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-events-query/internal/metrics"
	"go-events-query/internal/models"
)

// Options define a mutation and its side-effect hooks. Every hook is optional.
type Options[In, Out any] struct {
	Name       string
	MutationFn func(ctx context.Context, in In) (Out, error)

	// OnMutate runs before MutationFn. Its result is passed to the other
	// hooks as rollback context; an error aborts the invocation.
	OnMutate  func(ctx context.Context, in In) (any, error)
	OnSuccess func(ctx context.Context, out Out, in In, rollback any)
	OnError   func(ctx context.Context, err *models.ErrorInfo, in In, rollback any)
	OnSettled func(ctx context.Context, out Out, err *models.ErrorInfo, in In, rollback any)
}

// State is the tracked state of the latest invocation
type State[Out any] struct {
	Status       models.Status
	Data         Out
	Error        *models.ErrorInfo
	InvocationID string
	SubmittedAt  time.Time
}

// IsPending reports whether the latest invocation is still running
func (s State[Out]) IsPending() bool {
	return s.Status == models.StatusPending
}

// Mutation runs a write operation and tracks an idle/pending/success/error
// state for it. Only the latest invocation updates the tracked state;
// earlier invocations still complete and run their hooks.
type Mutation[In, Out any] struct {
	opts   Options[In, Out]
	logger *zap.Logger

	mu        sync.Mutex
	state     State[Out]
	listeners map[uint64]func(State[Out])
	nextID    uint64
}

// New creates a mutation in the idle state
func New[In, Out any](opts Options[In, Out], logger *zap.Logger) *Mutation[In, Out] {
	return &Mutation[In, Out]{
		opts:      opts,
		logger:    logger.With(zap.String("mutation", opts.Name)),
		state:     State[Out]{Status: models.StatusIdle},
		listeners: make(map[uint64]func(State[Out])),
	}
}

// Mutate starts an invocation in the background. OnMutate runs before Mutate
// returns, so its cache writes are visible to the caller; the rest of the
// invocation outlives ctx cancellation while keeping ctx values.
func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In) {
	ctx = context.WithoutCancel(ctx)
	id := m.begin()
	rollback, errInfo := m.prepare(ctx, id, in)
	if errInfo != nil {
		return
	}
	go func() {
		_, _ = m.execute(ctx, id, in, rollback)
	}()
}

// MutateAsync runs an invocation and waits for its result
func (m *Mutation[In, Out]) MutateAsync(ctx context.Context, in In) (Out, error) {
	var out Out
	id := m.begin()
	rollback, errInfo := m.prepare(ctx, id, in)
	if errInfo != nil {
		return out, errInfo
	}
	out, errInfo = m.execute(ctx, id, in, rollback)
	if errInfo != nil {
		return out, errInfo
	}
	return out, nil
}

// State returns the tracked state
func (m *Mutation[In, Out]) State() State[Out] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for every state change and returns its unsubscribe func.
// fn is called synchronously and must not block.
func (m *Mutation[In, Out]) Subscribe(fn func(State[Out])) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Reset returns the tracked state to idle. Invocations still running no
// longer update it.
func (m *Mutation[In, Out]) Reset() {
	m.setState(State[Out]{Status: models.StatusIdle})
}

// begin marks a new invocation as the latest and moves the state to pending
func (m *Mutation[In, Out]) begin() string {
	id := uuid.NewString()
	m.setState(State[Out]{
		Status:       models.StatusPending,
		InvocationID: id,
		SubmittedAt:  time.Now(),
	})
	return id
}

// prepare runs OnMutate. When it fails the invocation is settled as an error.
func (m *Mutation[In, Out]) prepare(ctx context.Context, id string, in In) (any, *models.ErrorInfo) {
	if m.opts.OnMutate == nil {
		return nil, nil
	}
	rollback, err := m.opts.OnMutate(ctx, in)
	if err != nil {
		return nil, m.fail(ctx, id, in, nil, err)
	}
	return rollback, nil
}

func (m *Mutation[In, Out]) execute(ctx context.Context, id string, in In, rollback any) (Out, *models.ErrorInfo) {
	out, err := m.opts.MutationFn(ctx, in)
	if err != nil {
		return out, m.fail(ctx, id, in, rollback, err)
	}

	m.logger.Debug("Mutation succeeded", zap.String("invocation_id", id))
	metrics.RecordMutation(m.opts.Name, string(models.StatusSuccess))
	m.settle(id, func(s *State[Out]) {
		s.Status = models.StatusSuccess
		s.Data = out
	})

	if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(ctx, out, in, rollback)
	}
	if m.opts.OnSettled != nil {
		m.opts.OnSettled(ctx, out, nil, in, rollback)
	}
	return out, nil
}

func (m *Mutation[In, Out]) fail(ctx context.Context, id string, in In, rollback any, err error) *models.ErrorInfo {
	var out Out
	errInfo := models.AsErrorInfo(err)

	m.logger.Warn("Mutation failed", zap.String("invocation_id", id), zap.Error(err))
	metrics.RecordMutation(m.opts.Name, string(models.StatusError))
	m.settle(id, func(s *State[Out]) {
		s.Status = models.StatusError
		s.Error = errInfo
	})

	if m.opts.OnError != nil {
		m.opts.OnError(ctx, errInfo, in, rollback)
	}
	if m.opts.OnSettled != nil {
		m.opts.OnSettled(ctx, out, errInfo, in, rollback)
	}
	return errInfo
}

// settle applies update only when id is still the latest invocation
func (m *Mutation[In, Out]) settle(id string, update func(*State[Out])) {
	m.mu.Lock()
	if m.state.InvocationID != id {
		m.mu.Unlock()
		m.logger.Debug("Ignoring result of superseded invocation", zap.String("invocation_id", id))
		return
	}
	next := m.state
	update(&next)
	m.state = next
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}

func (m *Mutation[In, Out]) setState(state State[Out]) {
	m.mu.Lock()
	m.state = state
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

func (m *Mutation[In, Out]) snapshotListeners() []func(State[Out]) {
	listeners := make([]func(State[Out]), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}
