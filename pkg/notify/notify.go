// Package notify fans committed change-log entries out to interested
// listeners.
//
// Metadata stores publish each entry synchronously after releasing their
// locks, so every sink here must return without blocking. The dispatcher
// uses buffered per-subscriber channels and drops on overflow; a slow
// subscriber loses notifications, never stalls mutators. Dropped deliveries
// are harmless: the change log itself is the source of truth and the next
// delta pull picks up anything missed.
package notify

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/internal/logger"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// DefaultSubscriberBuffer is the channel capacity of a new subscription.
const DefaultSubscriberBuffer = 64

// Dispatcher is a metadata.ChangeSink that fans entries out to per-user
// subscriber channels.
type Dispatcher struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uuid.UUID]map[uint64]chan metadata.ChangeOp
	buffer  int
	dropped atomic.Uint64
}

// NewDispatcher creates a dispatcher with the given per-subscriber channel
// buffer (DefaultSubscriberBuffer if <= 0).
func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Dispatcher{
		subs:   make(map[uuid.UUID]map[uint64]chan metadata.ChangeOp),
		buffer: buffer,
	}
}

// Subscribe registers for one user's change entries. The returned cancel
// function closes the channel and releases the subscription.
func (d *Dispatcher) Subscribe(userID uuid.UUID) (<-chan metadata.ChangeOp, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	ch := make(chan metadata.ChangeOp, d.buffer)

	if d.subs[userID] == nil {
		d.subs[userID] = make(map[uint64]chan metadata.ChangeOp)
	}
	d.subs[userID][id] = ch

	cancel := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if sub, ok := d.subs[userID][id]; ok {
			delete(d.subs[userID], id)
			if len(d.subs[userID]) == 0 {
				delete(d.subs, userID)
			}
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an entry to every subscriber of userID without blocking.
func (d *Dispatcher) Publish(userID uuid.UUID, op metadata.ChangeOp) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, ch := range d.subs[userID] {
		select {
		case ch <- op:
		default:
			d.dropped.Add(1)
		}
	}
}

// Dropped returns the number of deliveries discarded because a subscriber's
// buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// LogSink logs every committed change entry at debug level.
type LogSink struct{}

// Publish implements metadata.ChangeSink.
func (LogSink) Publish(userID uuid.UUID, op metadata.ChangeOp) {
	logger.Debug("change: user=%s seq=%d type=%s path=%s origin=%q",
		userID, op.Seq, op.Type, op.Path, op.Origin)
}

// Multi fans one entry out to several sinks in order.
type Multi []metadata.ChangeSink

// Publish implements metadata.ChangeSink.
func (m Multi) Publish(userID uuid.UUID, op metadata.ChangeOp) {
	for _, sink := range m {
		sink.Publish(userID, op)
	}
}
