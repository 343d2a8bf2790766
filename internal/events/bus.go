package events

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 256

// Filter selects which events a subscriber receives.
// The zero value matches every event.
type Filter struct {
	RunID string      // 空なら全実行
	Types []EventType // 空なら全種類
}

// ForRun は指定した実行のイベントだけを受け取るフィルタを返す
func ForRun(runID string, types ...EventType) Filter {
	return Filter{RunID: runID, Types: types}
}

// Match reports whether the event passes the filter
func (f Filter) Match(e Event) bool {
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	return len(f.Types) == 0 || slices.Contains(f.Types, e.Type)
}

// ParseTypes parses a comma separated list such as "job_completed,run_finished"
func ParseTypes(s string) ([]EventType, error) {
	var types []EventType
	for part := range strings.SplitSeq(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		t := EventType(name)
		if !slices.Contains(AllTypes(), t) {
			return nil, fmt.Errorf("unknown event type: %s", name)
		}
		types = append(types, t)
	}
	return types, nil
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// Bus is a pub/sub event bus with per-subscriber filters
type Bus struct {
	mu          sync.RWMutex
	subscribers map[<-chan Event]*subscriber
	bufferSize  int
	closed      bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[<-chan Event]*subscriber),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe returns a channel that receives every event
func (b *Bus) Subscribe() <-chan Event {
	return b.SubscribeFilter(Filter{})
}

// SubscribeFilter returns a channel that receives the events matching f.
// After Close the returned channel is already closed.
func (b *Bus) SubscribeFilter(f Filter) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{
		ch:     make(chan Event, b.bufferSize),
		filter: f,
	}
	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subscribers[sub.ch] = sub
	return sub.ch
}

// Unsubscribe removes a subscriber channel and closes it
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(sub.ch)
	}
}

// Publish delivers an event to every matching subscriber.
// A subscriber whose buffer is full misses the event.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.published.Add(1)
	for _, sub := range b.subscribers {
		if !sub.filter.Match(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Published returns how many events were published before Close
func (b *Bus) Published() uint64 {
	return b.published.Load()
}

// Dropped returns how many deliveries were skipped because a subscriber was full
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for ch, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, ch)
	}
}
