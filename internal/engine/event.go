package engine

import "github.com/couchcryptid/sitaware/internal/domain"

// EventType distinguishes engine notifications.
type EventType string

const (
	// EventFeedUpdate fires at the start and end of every individual feed refresh.
	EventFeedUpdate EventType = "feed-update"
	// EventDataReady fires after every recompute with the new snapshot.
	EventDataReady EventType = "data-ready"
)

// Event is a notification delivered to subscribers. Feed and Status are set
// for feed updates; Snapshot is set for data-ready.
type Event struct {
	Type     EventType         `json:"type"`
	Feed     domain.FeedKind   `json:"feed,omitempty"`
	Status   domain.FeedStatus `json:"status,omitempty"`
	Snapshot *Snapshot         `json:"snapshot,omitempty"`
}

// Subscribe registers fn for every future event and returns a function that
// removes it. Handlers run synchronously on the emitting goroutine and must
// not block.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subsMu.Unlock()

	return func() {
		e.subsMu.Lock()
		delete(e.subs, id)
		e.subsMu.Unlock()
	}
}

func (e *Engine) emit(ev Event) {
	e.subsMu.RLock()
	handlers := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		handlers = append(handlers, fn)
	}
	e.subsMu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
