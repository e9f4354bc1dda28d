package ledger

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pyropy/rnfs/core/model"
)

var (
	ErrTimeout       = errors.New("request timed out")
	ErrRequestFailed = errors.New("request failed")
	ErrNotPending    = errors.New("no pending entry for identity")
)

type Config struct {
	// RetryCeiling is the number of failed attempts after which an entry
	// becomes terminally Failed.
	RetryCeiling int
	// Timeout ages out a Pending entry that received no response.
	Timeout time.Duration
	// BackoffBase is doubled per attempt up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// GracePeriod keeps settled entries around to absorb very late
	// duplicate deliveries without reopening state.
	GracePeriod time.Duration
	// TickInterval drives the expiry monitor.
	TickInterval time.Duration
	// DemandTTL bounds how long demand bookkeeping outlives its entry.
	DemandTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		RetryCeiling: 5,
		Timeout:      30 * time.Second,
		BackoffBase:  time.Second,
		BackoffMax:   time.Minute,
		GracePeriod:  10 * time.Second,
		TickInterval: 500 * time.Millisecond,
		DemandTTL:    10 * time.Minute,
	}
}

type key struct {
	id   model.ChunkIdentity
	kind model.RequestKind
}

// Entry tracks one identity currently of interest. At most one Pending
// entry exists per (identity, kind).
type Entry struct {
	Identity    model.ChunkIdentity
	Kind        model.RequestKind
	State       model.RequestState
	RequestedAt time.Time
	Attempts    int
	Peers       map[string]model.Peer
	Reason      error

	awaitingRetry bool
	nextAttempt   time.Time
	settledAt     time.Time
}

type demandRecord struct {
	Count int
	Last  time.Time
}

// Ledger tracks the lifecycle of every hash being sought or offered. It
// guarantees that duplicate interest in an identity merges into a single
// Pending entry instead of issuing a second concurrent request.
type Ledger struct {
	mu      sync.Mutex
	entries map[key]*Entry
	demand  map[model.ChunkIdentity]demandRecord

	cfg     Config
	events  chan Event
	log     *zap.SugaredLogger
	metrics metrics
}

func New(cfg Config, log *zap.SugaredLogger) *Ledger {
	return &Ledger{
		entries: make(map[key]*Entry),
		demand:  make(map[model.ChunkIdentity]demandRecord),
		cfg:     cfg,
		events:  make(chan Event, eventBuffer),
		log:     log,
		metrics: newMetrics(),
	}
}

// Register records interest of peer in an identity. If a Pending entry
// already exists the peer joins its peer set and no new entry is created,
// the caller must not issue another network request in that case.
func (l *Ledger) Register(id model.ChunkIdentity, kind model.RequestKind, peer model.Peer) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{id: id, kind: kind}

	if kind == model.KindFetch {
		d := l.demand[id]
		d.Count++
		d.Last = time.Now()
		l.demand[id] = d
	}

	e, exists := l.entries[k]
	if exists && e.State == model.StatePending {
		e.Peers[peer.Address] = peer
		l.metrics.Deduped.Inc()
		return false
	}

	l.entries[k] = &Entry{
		Identity:    id,
		Kind:        kind,
		State:       model.StatePending,
		RequestedAt: time.Now(),
		Peers:       map[string]model.Peer{peer.Address: peer},
	}

	l.metrics.Registered.Inc()
	l.metrics.Pending.Inc()
	return true
}

// Resolve moves a Pending entry to Resolved and fans the notification out
// to every registered peer. The entry lingers for the grace period.
func (l *Ledger) Resolve(id model.ChunkIdentity, kind model.RequestKind) error {
	l.mu.Lock()

	k := key{id: id, kind: kind}
	e, exists := l.entries[k]
	if !exists || e.State != model.StatePending {
		l.mu.Unlock()
		return ErrNotPending
	}

	e.State = model.StateResolved
	e.settledAt = time.Now()
	peers := peersSnapshot(e)

	l.metrics.Pending.Dec()
	l.metrics.Resolved.Inc()
	l.mu.Unlock()

	l.emit(Event{Type: EventResolved, Identity: id, Kind: kind, Peers: peers})
	return nil
}

// Fail records a failed attempt. Below the retry ceiling the entry stays
// Pending and a retry is scheduled with exponential backoff, above it the
// entry becomes terminally Failed and peers are notified.
func (l *Ledger) Fail(id model.ChunkIdentity, kind model.RequestKind, reason error) error {
	l.mu.Lock()

	k := key{id: id, kind: kind}
	e, exists := l.entries[k]
	if !exists || e.State != model.StatePending {
		l.mu.Unlock()
		return ErrNotPending
	}

	ev, emit := l.failLocked(e, reason)
	l.mu.Unlock()

	if emit {
		l.emit(ev)
	}
	return nil
}

// failLocked applies failure semantics to a pending entry. Returns the
// event to emit, if any.
func (l *Ledger) failLocked(e *Entry, reason error) (Event, bool) {
	e.Attempts++

	if e.Attempts > l.cfg.RetryCeiling {
		e.State = model.StateFailed
		e.Reason = reason
		e.settledAt = time.Now()

		l.metrics.Pending.Dec()
		l.metrics.Failed.Inc()

		return Event{
			Type:     EventFailed,
			Identity: e.Identity,
			Kind:     e.Kind,
			Peers:    peersSnapshot(e),
			Reason:   reason,
			Attempt:  e.Attempts,
		}, true
	}

	e.awaitingRetry = true
	e.nextAttempt = time.Now().Add(l.backoff(e.Attempts))
	return Event{}, false
}

// Cancel removes a peer from the peer set. A Pending entry whose peer set
// drains is torn down eagerly instead of waiting for timeout.
func (l *Ledger) Cancel(id model.ChunkIdentity, kind model.RequestKind, peerAddr string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{id: id, kind: kind}
	e, exists := l.entries[k]
	if !exists {
		return
	}

	delete(e.Peers, peerAddr)
	if len(e.Peers) == 0 && e.State == model.StatePending {
		delete(l.entries, k)
		l.metrics.Pending.Dec()
	}
}

// IsPending reports whether any entry for the identity is Pending,
// regardless of kind. Eviction must skip such chunks.
func (l *Ledger) IsPending(id model.ChunkIdentity) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, kind := range []model.RequestKind{model.KindFetch, model.KindOffer} {
		if e, ok := l.entries[key{id: id, kind: kind}]; ok && e.State == model.StatePending {
			return true
		}
	}

	return false
}

// Snapshot returns a copy of the entry for status queries.
func (l *Ledger) Snapshot(id model.ChunkIdentity, kind model.RequestKind) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key{id: id, kind: kind}]
	if !exists {
		return Entry{}, false
	}

	cp := *e
	cp.Peers = make(map[string]model.Peer, len(e.Peers))
	for a, p := range e.Peers {
		cp.Peers[a] = p
	}

	return cp, true
}

// Demand returns how many times the identity has been registered for fetch
// and when it was last requested. Feeds the admission score.
func (l *Ledger) Demand(id model.ChunkIdentity) (int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := l.demand[id]
	return d.Count, d.Last
}

func (l *Ledger) backoff(attempt int) time.Duration {
	d := l.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= l.cfg.BackoffMax {
			return l.cfg.BackoffMax
		}
	}

	return d
}

func peersSnapshot(e *Entry) []model.Peer {
	peers := make([]model.Peer, 0, len(e.Peers))
	for _, p := range e.Peers {
		peers = append(peers, p)
	}

	return peers
}
