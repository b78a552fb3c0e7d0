package authcore

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Domain event types published on completed lifecycle transitions.
const (
	// EventLoggedIn is an exported constant or variable used by the authentication engine.
	EventLoggedIn = "user.logged-in"
	// EventLoggedOut is an exported constant or variable used by the authentication engine.
	EventLoggedOut = "user.logged-out"
	// EventRegistered is an exported constant or variable used by the authentication engine.
	EventRegistered = "user.registered"
)

// Event defines a public type used by authcore APIs.
//
// Event instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Event struct {
	Type      string    `json:"type"`
	AccountID string    `json:"account_id"`
	Email     string    `json:"email,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher defines a public type used by authcore APIs.
//
// Publish failures are swallowed by the engine: lifecycle events are
// best-effort and never veto the operation that produced them.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// eventDispatcher decouples engine exit paths from publisher latency the
// same way the audit dispatcher does, with a drop-on-full buffer.
type eventDispatcher struct {
	publisher EventPublisher
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newEventDispatcher(cfg EventsConfig, publisher EventPublisher) *eventDispatcher {
	if !cfg.Enabled || publisher == nil {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	d := &eventDispatcher{
		publisher: publisher,
		ch:        make(chan Event, cfg.BufferSize),
		done:      make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *eventDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.publish(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.publish(event)
				default:
					return
				}
			}
		}
	}
}

func (d *eventDispatcher) publish(event Event) {
	if err := d.publisher.Publish(context.Background(), event); err != nil {
		log.Printf("authcore: event publish failed: %v", err)
	}
}

func (d *eventDispatcher) Emit(event Event) {
	if d == nil || d.closed.Load() {
		return
	}

	select {
	case d.ch <- event:
	case <-d.done:
	default:
		d.dropped.Add(1)
	}
}

func (d *eventDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
