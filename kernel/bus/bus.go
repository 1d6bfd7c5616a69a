package bus

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// Handler receives one delivered Event. Handlers must not block for long;
// a slow handler delays delivery to every other subscriber of the same
// emit call, since Emit invokes handlers synchronously in priority order.
type Handler func(Event)

// Filter runs before Handler; if it returns false the event is not
// delivered and the handler is not invoked (a rejected `once` handler is
// not counted as having fired).
type Filter func(Event) bool

// SubscribeOptions configures one subscription.
type SubscribeOptions struct {
	Filter   Filter
	Once     bool
	Priority int
}

// Unsubscribe detaches a previously registered handler. Calling it more
// than once is a no-op.
type Unsubscribe func()

type subscription struct {
	id       uint64
	handler  Handler
	filter   Filter
	once     bool
	priority int
}

// Bus is a thread-safe, multi-handler publish/subscribe hub keyed by event
// type, with a wildcard channel that observes every event regardless of
// type. The zero value is not usable; construct with New.
type Bus struct {
	mu       sync.Mutex
	handlers map[Type][]*subscription
	wildcard []*subscription
	nextID   uint64
}

// New returns an empty Bus ready for subscription and emission.
func New() *Bus {
	return &Bus{handlers: make(map[Type][]*subscription)}
}

// Subscribe registers handler against t (or against every type when t is
// Wildcard). Priority orders delivery within one Emit call: higher fires
// first, ties preserve insertion order. Filter, if set, runs before
// handler; when it rejects, the event is not delivered to this
// subscription at all.
func (b *Bus) Subscribe(t Type, handler Handler, opts SubscribeOptions) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{
		id:       b.nextID,
		handler:  handler,
		filter:   opts.Filter,
		once:     opts.Once,
		priority: opts.Priority,
	}
	if t == Wildcard {
		b.wildcard = append(b.wildcard, sub)
	} else {
		b.handlers[t] = append(b.handlers[t], sub)
	}
	b.mu.Unlock()

	var removed bool
	var mu sync.Mutex
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if removed {
			return
		}
		removed = true
		b.remove(t, sub.id)
	}
}

func (b *Bus) remove(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t == Wildcard {
		b.wildcard = removeSub(b.wildcard, id)
		return
	}
	b.handlers[t] = removeSub(b.handlers[t], id)
}

func removeSub(subs []*subscription, id uint64) []*subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Emit snapshots the handler list for event.Type plus the wildcard list,
// orders the union by priority descending (stable, so insertion order
// breaks ties), and invokes each handler in turn. A handler that panics is
// recovered and logged to stderr; it never
// aborts delivery to the remaining subscribers.
func (b *Bus) Emit(event Event) {
	b.mu.Lock()
	direct := append([]*subscription(nil), b.handlers[event.Type]...)
	wild := append([]*subscription(nil), b.wildcard...)
	b.mu.Unlock()

	merged := make([]*subscription, 0, len(direct)+len(wild))
	merged = append(merged, direct...)
	merged = append(merged, wild...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].priority > merged[j].priority
	})

	var toRemove []struct {
		t  Type
		id uint64
	}
	for _, sub := range merged {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		invokeSafely(sub.handler, event)
		if sub.once {
			t := event.Type
			toRemove = append(toRemove, struct {
				t  Type
				id uint64
			}{t, sub.id})
		}
	}
	for _, r := range toRemove {
		// A once subscription registered under Wildcard only removes from
		// the wildcard list even if it fired in response to a typed event.
		b.removeFromBoth(r.id)
	}
}

func (b *Bus) removeFromBoth(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t, subs := range b.handlers {
		b.handlers[t] = removeSub(subs, id)
	}
	b.wildcard = removeSub(b.wildcard, id)
}

func invokeSafely(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "bus: recovered panic in %s handler: %v\n", e.Type, r)
		}
	}()
	h(e)
}
