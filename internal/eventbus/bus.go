package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dopectx/core/internal/coreerr"
	"github.com/dopectx/core/internal/logging"
)

// subscriber is one bounded delivery queue for a registered handler.
type subscriber struct {
	id       string
	queue    chan Event
	filter   map[EventType]bool // nil means "all types"
	stopOnce sync.Once
	done     chan struct{}
}

// Bus is the Event Bus: publish/subscribe with an authority matrix and
// bounded, priority-aware backpressure per subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	queueSize   int

	// streamSeq counts published events per (source_system, type)
	// stream. The count is not attached to the event and delivery does
	// not consult it; each subscriber receives events in the order they
	// entered its queue.
	streamMu  sync.Mutex
	streamSeq map[string]int64
}

// New constructs a Bus whose subscriber queues hold queueSize events.
func New(queueSize int) *Bus {
	return &Bus{
		subscribers: make(map[string]*subscriber),
		queueSize:   queueSize,
		streamSeq:   make(map[string]int64),
	}
}

// Subscribe registers a handler invoked for every delivered event on a
// dedicated goroutine. If types is non-empty, only those event types are
// delivered. Calling the returned unsubscribe removes the subscriber and
// stops its goroutine; cancelling ctx stops the goroutine but leaves the
// subscriber registered.
func (b *Bus) Subscribe(ctx context.Context, handler func(Event), types ...EventType) (unsubscribe func()) {
	filter := make(map[EventType]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}
	if len(filter) == 0 {
		filter = nil
	}

	sub := &subscriber{
		id:    uuid.NewString(),
		queue: make(chan Event, b.queueSize),
		filter: filter,
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	go func() {
		for {
			select {
			case evt, ok := <-sub.queue:
				if !ok {
					return
				}
				handler(evt)
			case <-sub.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub.id)
		b.mu.Unlock()
		sub.stopOnce.Do(func() { close(sub.done) })
	}
}

// Publish validates the required fields and authority matrix, stamps
// the event with an id and timestamp, counts it in its stream's
// sequence, and fans it out to every matching subscriber. Delivery
// never blocks the publisher; deliver describes what happens when a
// subscriber's queue is full.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if err := validateRequiredFields(evt); err != nil {
		return err
	}
	if !authorized(evt.SourceSystem, evt.Type) {
		return coreerr.New(coreerr.KindValidationError,
			fmt.Sprintf("source system %q is not authorized to publish %q", evt.SourceSystem, evt.Type))
	}

	evt.ID = uuid.NewString()
	evt.CreatedAt = time.Now()

	streamKey := evt.SourceSystem + "|" + string(evt.Type)
	b.streamMu.Lock()
	b.streamSeq[streamKey]++
	b.streamMu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter[evt.Type] {
			continue
		}
		b.deliver(sub, evt)
	}
	return nil
}

// validateRequiredFields rejects an event missing any of the fields a
// caller must supply. event_id and timestamp are stamped by Publish
// itself, so they can never be missing by the time an event is
// delivered; they are not re-validated here.
func validateRequiredFields(evt Event) error {
	if evt.Type == "" {
		return coreerr.New(coreerr.KindValidationError, "event_type is required")
	}
	if evt.SourceSystem == "" {
		return coreerr.New(coreerr.KindValidationError, "source_system is required")
	}
	if len(evt.TargetSystems) == 0 {
		return coreerr.New(coreerr.KindValidationError, "target_systems is required")
	}
	return nil
}

// deliver attempts a non-blocking send. On a full queue it takes the
// oldest queued event off: if that event's priority is not above the
// new event's, it is dropped and the new event is queued; otherwise it
// is queued again at the tail and the new event is dropped. Only the
// oldest queued event is examined; lower-priority events behind it are
// not searched.
func (b *Bus) deliver(sub *subscriber, evt Event) {
	select {
	case sub.queue <- evt:
		return
	default:
	}

	if b.dropLowestPriority(sub, evt.Priority) {
		select {
		case sub.queue <- evt:
		default:
			logging.Get(logging.CategoryEventBus).Warnf("subscriber %s queue full, dropping event %s", sub.id, evt.Type)
		}
	}
}

// dropLowestPriority drains one event of priority <= incomingPriority
// from the head of sub.queue to make room, reporting whether it found one.
func (b *Bus) dropLowestPriority(sub *subscriber, incomingPriority Priority) bool {
	select {
	case dropped := <-sub.queue:
		if dropped.Priority > incomingPriority {
			// Put back a strictly-higher-priority event we should not
			// have dropped; the incoming (lower-priority) event is lost
			// instead.
			select {
			case sub.queue <- dropped:
			default:
			}
			return false
		}
		return true
	default:
		return false
	}
}
