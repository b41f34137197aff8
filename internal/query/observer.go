package query

import "sync"

// Observer is a registered interest in one key. Snapshot transitions are
// delivered to its listener in order on a dedicated goroutine, so the
// listener may call back into the Client.
type Observer struct {
	client   *Client
	entry    *entry
	listener func(Snapshot)
	disabled bool

	mu    sync.Mutex
	queue []Snapshot
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newObserver(c *Client, e *entry, listener func(Snapshot), disabled bool) *Observer {
	o := &Observer{
		client:   c,
		entry:    e,
		listener: listener,
		disabled: disabled,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go o.run()
	return o
}

// Key returns the observed key
func (o *Observer) Key() Key {
	return o.entry.key
}

// Close unregisters the observer. When it was the last interest in the key,
// the key's in-flight fetch is cancelled. Close is idempotent.
func (o *Observer) Close() {
	c := o.client
	c.mu.Lock()
	if _, ok := o.entry.observers[o]; ok {
		delete(o.entry.observers, o)
		c.releaseLocked(o.entry)
	}
	c.mu.Unlock()
	o.stop()
}

func (o *Observer) stop() {
	o.once.Do(func() { close(o.done) })
}

// maxQueuedSnapshots bounds the backlog of a listener that stopped keeping
// up; the oldest undelivered snapshots are dropped first
const maxQueuedSnapshots = 64

// enqueue must be called with the client lock held so that every observer
// sees transitions in the order they were applied.
func (o *Observer) enqueue(s Snapshot) {
	o.mu.Lock()
	if len(o.queue) >= maxQueuedSnapshots {
		dropped := len(o.queue) - maxQueuedSnapshots + 1
		o.queue = append(o.queue[:0], o.queue[dropped:]...)
	}
	o.queue = append(o.queue, s)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Observer) run() {
	for {
		select {
		case <-o.done:
			return
		case <-o.wake:
		}

		for {
			o.mu.Lock()
			if len(o.queue) == 0 {
				o.mu.Unlock()
				break
			}
			next := o.queue[0]
			o.queue = o.queue[1:]
			o.mu.Unlock()

			select {
			case <-o.done:
				return
			default:
			}
			if o.listener != nil {
				o.listener(next)
			}
		}
	}
}
