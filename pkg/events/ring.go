package events

import "sync"

// Ring keeps the most recent events for the status API. It consumes a
// broker subscription in the background until Stop.
type Ring struct {
	mu     sync.RWMutex
	events []*Event
	limit  int
	broker *Broker
	sub    Subscriber
	stopCh chan struct{}
}

// NewRing starts collecting up to limit recent events from broker.
func NewRing(broker *Broker, limit int) *Ring {
	if limit < 1 {
		limit = 1
	}
	r := &Ring{
		limit:  limit,
		broker: broker,
		sub:    broker.Subscribe(),
		stopCh: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Ring) run() {
	for {
		select {
		case event, ok := <-r.sub:
			if !ok {
				return
			}
			r.append(event)
		case <-r.stopCh:
			return
		}
	}
}

func (r *Ring) append(event *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Recent returns the collected events, newest first.
func (r *Ring) Recent() []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Event, len(r.events))
	for i, event := range r.events {
		out[len(r.events)-1-i] = event
	}
	return out
}

// Stop detaches the ring from the broker.
func (r *Ring) Stop() {
	close(r.stopCh)
	r.broker.Unsubscribe(r.sub)
}
