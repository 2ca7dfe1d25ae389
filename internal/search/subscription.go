package search

import (
	"sync"

	"github.com/ozkanpakdil/grepwise-sub005/internal/index"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

// subscriptionBuffer is the bounded outbound buffer size spec.md §5
// requires for SSE subscriptions (default 256 events).
const subscriptionBuffer = 256

// Event is one item delivered to a live subscription: either a batch of
// newly-matching records ("page") or a lag notice ("lag") raised when the
// subscriber's buffer overflowed.
type Event struct {
	Name    string
	Records []record.Record
	Dropped int
}

// Subscription is one live SSE log subscription: it receives every record
// that matches its query as the Ingestion Buffer drains new commits.
type Subscription struct {
	id      string
	matcher func(record.Record) bool
	reveal  bool
	events  chan Event

	mu sync.Mutex
}

// Events returns the channel new matching records arrive on.
func (sub *Subscription) Events() <-chan Event {
	return sub.events
}

// Subscribe registers a live subscription matching query/isRegex, e.g. for
// internal/httpapi's search-stream handler to keep pushing new records
// after the initial page has been sent. Records delivered on it are
// redacted the same way Search's are unless reveal is set. Callers must
// call Unsubscribe when the client disconnects.
func (s *Service) Subscribe(query string, isRegex, reveal bool) (*Subscription, error) {
	matcher, err := index.BuildMatcher(query, isRegex)
	if err != nil {
		return nil, err
	}
	sub := &Subscription{
		id:      record.NewID(),
		matcher: matcher,
		reveal:  reveal,
		events:  make(chan Event, subscriptionBuffer),
	}
	s.subsMu.Lock()
	if s.subs == nil {
		s.subs = make(map[string]*Subscription)
	}
	s.subs[sub.id] = sub
	s.subsMu.Unlock()
	return sub, nil
}

// Unsubscribe removes sub from the live-publish fan-out and closes its
// channel. Safe to call more than once.
func (s *Service) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	s.subsMu.Lock()
	if _, ok := s.subs[sub.id]; ok {
		delete(s.subs, sub.id)
		close(sub.events)
	}
	s.subsMu.Unlock()
}

// Publish fans newly-committed records out to every live subscription whose
// query they match, per spec.md §4.B ("the drain... re-publishes them to
// any SSE log subscribers matching the record's query"). Delivery is
// non-blocking: a subscriber whose buffer is full has its oldest pending
// events dropped to make room for the new event and a "lag" event, per
// spec.md §5's bounded-outbound-buffer overflow policy.
func (s *Service) Publish(records []record.Record) {
	if len(records) == 0 {
		return
	}
	s.subsMu.RLock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subsMu.RUnlock()

	for _, sub := range subs {
		var matched []record.Record
		for _, r := range records {
			if sub.matcher(r) {
				matched = append(matched, r)
			}
		}
		if len(matched) == 0 {
			continue
		}
		sub.deliver(Event{Name: "page", Records: redactRecords(matched, s.Redactor, sub.reveal)})
	}
}

// deliver sends ev without blocking the publisher. If the subscriber's
// buffered channel is full, its two oldest queued events are dropped to
// make room for ev and a "lag" event that tells the subscriber how many
// events it missed (a dropped "init" event is not counted).
func (sub *Subscription) deliver(ev Event) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	select {
	case sub.events <- ev:
		return
	default:
	}

	dropped := 0
	for i := 0; i < 2; i++ {
		select {
		case old := <-sub.events:
			if old.Name != "init" {
				dropped++
			}
		default:
		}
	}

	select {
	case sub.events <- ev:
	default:
	}
	if dropped > 0 {
		select {
		case sub.events <- Event{Name: "lag", Dropped: dropped}:
		default:
		}
	}
}
