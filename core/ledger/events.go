package ledger

import "github.com/pyropy/rnfs/core/model"

type EventType int

const (
	// EventResolved fans a resolved identity out to its peer set.
	EventResolved EventType = iota
	// EventFailed signals a terminally failed identity.
	EventFailed
	// EventRetry asks the coordinator to issue another network attempt.
	EventRetry
)

type Event struct {
	Type     EventType
	Identity model.ChunkIdentity
	Kind     model.RequestKind
	Peers    []model.Peer
	Reason   error
	Attempt  int
}

const eventBuffer = 256

// Events returns the ledger notification stream. The coordinator is the
// single consumer.
func (l *Ledger) Events() <-chan Event {
	return l.events
}

func (l *Ledger) emit(e Event) {
	select {
	case l.events <- e:
	default:
		l.log.Warnw("ledger", "status", "dropped ledger event", "chunk", e.Identity, "kind", e.Kind)
	}
}
