package timings

import "sync"

// Observable notifies subscribers after timings are recomputed.
type Observable struct {
	mu        sync.Mutex
	nextID    int
	observers []observer
}

type observer struct {
	id int
	fn func()
}

// Subscribe registers fn and returns a function removing it.
func (o *Observable) Subscribe(fn func()) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID
	o.nextID++
	o.observers = append(o.observers, observer{id: id, fn: fn})
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, obs := range o.observers {
			if obs.id == id {
				o.observers = append(o.observers[:i], o.observers[i+1:]...)
				return
			}
		}
	}
}

// Notify calls subscribers in subscription order.
func (o *Observable) Notify() {
	o.mu.Lock()
	observers := make([]observer, len(o.observers))
	copy(observers, o.observers)
	o.mu.Unlock()
	for _, obs := range observers {
		obs.fn()
	}
}
