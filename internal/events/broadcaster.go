package events

import (
	"sync"
	"sync/atomic"
)

// subscriberBuffer absorbs short bursts, such as a full bootstrap sequence,
// before events are dropped for a slow subscriber.
const subscriberBuffer = 64

// Subscriber receives broadcast events until it is unsubscribed or the
// process shuts down, at which point the channel is closed.
type Subscriber chan Event

// Broadcaster fans events out to WebSocket and MQTT subscribers. A
// subscriber may be scoped to one session.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[Subscriber]string
	dropped atomic.Int64
}

var broadcaster = &Broadcaster{subs: make(map[Subscriber]string)}

// Subscribe returns a subscriber receiving every event.
func Subscribe() Subscriber {
	return SubscribeSession("")
}

// SubscribeSession returns a subscriber receiving only the events tagged
// with session id. An empty id receives every event.
func SubscribeSession(id string) Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	broadcaster.mu.Lock()
	broadcaster.subs[ch] = id
	broadcaster.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
// Unsubscribing twice, or after CloseAllSubscribers, is a no-op.
func Unsubscribe(sub Subscriber) {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	if _, ok := broadcaster.subs[sub]; !ok {
		return
	}
	delete(broadcaster.subs, sub)
	close(sub)
}

// broadcast never blocks: a subscriber whose buffer is full misses e.
func broadcast(e Event) {
	sid := e.SessionID()

	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()
	for sub, scope := range broadcaster.subs {
		if scope != "" && scope != sid {
			continue
		}
		select {
		case sub <- e:
		default:
			broadcaster.dropped.Add(1)
		}
	}
}

// CloseAllSubscribers removes and closes every subscriber. Used on shutdown.
func CloseAllSubscribers() {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	for sub := range broadcaster.subs {
		delete(broadcaster.subs, sub)
		close(sub)
	}
}

// SubscriberCount returns the current number of subscribers.
func SubscriberCount() int {
	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()
	return len(broadcaster.subs)
}

// DroppedCount returns how many deliveries were skipped for full subscribers.
func DroppedCount() int64 {
	return broadcaster.dropped.Load()
}
