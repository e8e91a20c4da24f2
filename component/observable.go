package component

import "sync"

// ObservableValue holds a value and notifies subscribers when it
// changes. It is a data-binding convenience layered above the core's
// send path: subscribe a component update to it and every Set flows to
// the UI.
type ObservableValue struct {
	mu     sync.Mutex
	value  any
	subs   map[int]func(value any)
	nextID int
}

// NewObservableValue creates an observable holding initial.
func NewObservableValue(initial any) *ObservableValue {
	return &ObservableValue{
		value: initial,
		subs:  make(map[int]func(any)),
	}
}

// Get returns the current value.
func (o *ObservableValue) Get() any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Set stores a new value and notifies every subscriber with it.
// Subscribers run on the caller's goroutine, in no particular order.
func (o *ObservableValue) Set(value any) {
	o.mu.Lock()
	o.value = value
	subs := make([]func(any), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	for _, fn := range subs {
		fn(value)
	}
}

// Subscribe registers a change callback and returns its unsubscribe
// function. The callback is not invoked with the current value.
func (o *ObservableValue) Subscribe(fn func(value any)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}
