package peer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pyropy/rnfs/core/coordinator"
	"github.com/pyropy/rnfs/core/model"
	"github.com/pyropy/rnfs/core/store"
)

// Announcer broadcasts offers for newly stored chunks so neighbours learn
// what this node can serve. Announcements are batched per interval.
type Announcer struct {
	transport coordinator.Transport
	router    coordinator.PeerRouter
	events    <-chan store.Event
	interval  time.Duration
	log       *zap.SugaredLogger

	pending []pendingOffer
}

// pendingOffer pairs a stored identity with the hop distance recorded for
// it, so offers advertise how far the publisher is through this node.
type pendingOffer struct {
	id  model.ChunkIdentity
	hop int
}

func NewAnnouncer(transport coordinator.Transport, router coordinator.PeerRouter, events <-chan store.Event, interval time.Duration, log *zap.SugaredLogger) *Announcer {
	return &Announcer{
		transport: transport,
		router:    router,
		events:    events,
		interval:  interval,
		log:       log,
	}
}

// Start collects store put events and flushes offer announcements on every
// tick until the context is canceled.
func (a *Announcer) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case e := <-a.events:
			if e.Type == store.EventPut {
				a.pending = append(a.pending, pendingOffer{id: e.Identity, hop: e.HopDistance})
			}
		case <-ticker.C:
			a.flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Announcer) flush(ctx context.Context) {
	if len(a.pending) == 0 {
		return
	}

	batch := a.pending
	a.pending = nil

	for _, peer := range a.router.Peers() {
		for _, o := range batch {
			if err := a.transport.SendOffer(ctx, o.id, o.hop, peer); err != nil {
				a.log.Debugw("announcer", "status", "offer failed", "chunk", o.id, "peer", peer.Address)
			}
		}
	}

	a.log.Infow("announcer", "status", "announced chunks", "count", len(batch), "peers", len(a.router.Peers()))
}
