package session

import "github.com/Tasour/wikipedia-graph/internal/models"

// EventKind names a session change.
type EventKind string

const (
	EventGraphChanged   EventKind = "graph.changed"
	EventHistoryChanged EventKind = "history.changed"
	EventPageLoaded     EventKind = "page.loaded"
	EventPageFailed     EventKind = "page.failed"
)

// FailedPlaceholder is shown by renderers in place of a page that could not
// be loaded.
const FailedPlaceholder = "Error loading page content"

// Event describes a change observers may react to.
type Event struct {
	Kind    EventKind        `json:"kind"`
	Title   string           `json:"title,omitempty"`
	Section string           `json:"section,omitempty"`
	State   models.LoadState `json:"state,omitempty"`
	Message string           `json:"message,omitempty"`
	Nodes   int              `json:"nodes,omitempty"`
	Edges   int              `json:"edges,omitempty"`
}

// Observer is notified after every state change. Notify is called without
// the session lock held, so it may call back into the session.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

// Observers fans an event out to every observer in order.
type Observers []Observer

func (o Observers) Notify(e Event) {
	for _, obs := range o {
		obs.Notify(e)
	}
}
