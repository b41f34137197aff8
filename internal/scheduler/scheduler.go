package scheduler

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Scheduler runs a task on a fixed interval until stopped. Runs never
// overlap: a tick that arrives while the task is running is dropped.
type Scheduler struct {
	interval time.Duration
	task     func()
	clock    clock.Clock

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock drives the schedule from clk instead of the wall clock
func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clk
	}
}

// New creates a new Scheduler. The task is not run until Start is called;
// a non-positive interval disables it.
func New(interval time.Duration, task func(), opts ...Option) *Scheduler {
	s := &Scheduler{
		interval: interval,
		task:     task,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins executing the task at the configured interval
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil || s.interval <= 0 {
		return
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.clock.Ticker(s.interval), s.stop, s.done)
}

func (s *Scheduler) loop(ticker *clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.task()
		case <-stop:
			return
		}
	}
}

// Stop ends the loop and waits for a run in progress to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil {
		return
	}

	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
}

// IsRunning reports whether the loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}
