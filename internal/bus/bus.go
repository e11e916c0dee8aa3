package bus

import (
	"log/slog"
	"sync"
)

// Handlers receives bus events. Register only the callbacks you care about;
// nil fields are skipped.
type Handlers struct {
	DesktopDelivery func(DesktopDelivery) error
	SlackDM         func(SlackDMDelivery) error
	SlackThread     func(SlackThreadDelivery) error
	TaskProcessed   func(TaskProcessed)
	ProcessingError func(ProcessingError)
}

// Bus is the in-process event bus connecting the pipeline to its delivery
// collaborators (Slack sender, dashboard broadcaster, stores). Safe for
// concurrent use; publishes run subscriber callbacks synchronously on the
// caller's goroutine so a dispatcher can report emission failure.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]Handlers
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]Handlers)}
}

// Subscribe registers handlers under an id. Re-subscribing with the same id
// replaces the previous registration.
func (b *Bus) Subscribe(id string, h Handlers) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = h
}

// Unsubscribe removes the registration for id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

func (b *Bus) snapshot() []Handlers {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handlers, 0, len(b.subs))
	for _, h := range b.subs {
		out = append(out, h)
	}
	return out
}

// PublishDesktopDelivery fans the event to all desktop subscribers. The
// first subscriber error is returned so the dispatcher can record a failed
// delivery; remaining subscribers still run.
func (b *Bus) PublishDesktopDelivery(ev DesktopDelivery) error {
	var first error
	for _, h := range b.snapshot() {
		if h.DesktopDelivery == nil {
			continue
		}
		if err := h.DesktopDelivery(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishSlackDM fans the event to all Slack DM subscribers.
func (b *Bus) PublishSlackDM(ev SlackDMDelivery) error {
	var first error
	for _, h := range b.snapshot() {
		if h.SlackDM == nil {
			continue
		}
		if err := h.SlackDM(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishSlackThread fans the event to all Slack thread subscribers.
func (b *Bus) PublishSlackThread(ev SlackThreadDelivery) error {
	var first error
	for _, h := range b.snapshot() {
		if h.SlackThread == nil {
			continue
		}
		if err := h.SlackThread(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishTaskProcessed notifies subscribers of a completed message.
// Subscriber panics are contained so bookkeeping listeners cannot take the
// pipeline down.
func (b *Bus) PublishTaskProcessed(ev TaskProcessed) {
	for _, h := range b.snapshot() {
		if h.TaskProcessed == nil {
			continue
		}
		safeNotify(func() { h.TaskProcessed(ev) })
	}
}

// PublishProcessingError notifies subscribers of an unexpected failure.
func (b *Bus) PublishProcessingError(ev ProcessingError) {
	for _, h := range b.snapshot() {
		if h.ProcessingError == nil {
			continue
		}
		safeNotify(func() { h.ProcessingError(ev) })
	}
}

func safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bus subscriber panic", "panic", r)
		}
	}()
	fn()
}
