package store

import "github.com/pyropy/rnfs/core/model"

type EventType int

const (
	EventPut EventType = iota
	EventDelete
)

// Event signals a store state change. This is the only cross-component
// signal the store originates, the coordinator consumes it for standby
// queue wake-ups and completeness checks.
type Event struct {
	Type     EventType
	Identity model.ChunkIdentity
	Size     uint64
	// HopDistance carries the stored chunk's publisher distance on put
	// events so announcers can propagate it.
	HopDistance int
}

const subscriberBuffer = 128

// Subscribe registers a store event listener. Events are advisory, a slow
// listener loses events instead of blocking store mutations.
func (s *Store) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	return ch
}

func (s *Store) emit(e Event) {
	s.mu.Lock()
	subs := s.subs
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			s.log.Debugw("store", "status", "dropped store event", "chunk", e.Identity)
		}
	}
}
