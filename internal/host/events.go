package host

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/microhost/internal/shared/id"
	"github.com/GriffinCanCode/microhost/internal/shared/types"
	"github.com/google/uuid"
)

const subscriberBuffer = 64

type subscriber struct {
	ch   chan types.Event
	apps map[string]bool // empty receives every app
}

// broadcaster fans host events out to subscribers. A slow subscriber drops
// events instead of blocking the host.
type broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[string]*subscriber)}
}

func (b *broadcaster) subscribe(apps []string) (string, <-chan types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan types.Event, subscriberBuffer), apps: make(map[string]bool)}
	for _, app := range apps {
		sub.apps[app] = true
	}
	subID := uuid.New().String()
	if b.closed {
		close(sub.ch)
		return subID, sub.ch
	}
	b.subs[subID] = sub
	return subID, sub.ch
}

func (b *broadcaster) unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[subID]; ok {
		delete(b.subs, subID)
		close(sub.ch)
	}
}

func (b *broadcaster) publish(event types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if len(sub.apps) > 0 && event.App != "" && !sub.apps[event.App] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

func (b *broadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for subID, sub := range b.subs {
		delete(b.subs, subID)
		close(sub.ch)
	}
}

// Subscribe returns a channel of host events for apps, or for every app
// when apps is empty. cancel releases the subscription and closes the channel.
func (h *Host) Subscribe(apps ...string) (events <-chan types.Event, cancel func()) {
	subID, ch := h.events.subscribe(apps)
	var once sync.Once
	return ch, func() { once.Do(func() { h.events.unsubscribe(subID) }) }
}

func (h *Host) emit(typ, app string, data map[string]interface{}) {
	h.events.publish(types.Event{
		ID:   id.NewEventID().String(),
		Type: typ,
		App:  app,
		Data: data,
		Time: time.Now(),
	})
}
