package coordinator

import (
	"context"
	"errors"

	"github.com/pyropy/rnfs/core/admission"
	"github.com/pyropy/rnfs/core/ledger"
	"github.com/pyropy/rnfs/core/model"
	"github.com/pyropy/rnfs/core/store"
)

// HandleChunk processes an inbound chunk delivery. Chunks this node itself
// waits for are always retained; chunks relayed for remote peers or merely
// observed in transit go through the admission policy, with the standby
// queue keeping rejected payloads deliverable. Duplicate and unsolicited
// deliveries are safe, the ledger's dedup-by-identity absorbs them.
func (c *Coordinator) HandleChunk(ctx context.Context, id model.ChunkIdentity, payload []byte, from model.Peer, hopDistance int) error {
	if model.NewChunkIdentity(payload) != id {
		c.log.Warnw("coordinator", "status", "integrity check failed", "chunk", id, "peer", from.Address)
		_ = c.ledger.Fail(id, model.KindFetch, ErrIntegrity)
		return ErrIntegrity
	}

	entry, ok := c.ledger.Snapshot(id, model.KindFetch)
	pending := ok && entry.State == model.StatePending

	localWaiter := false
	if pending {
		for addr := range entry.Peers {
			if isLocalAddr(addr) {
				localWaiter = true
				break
			}
		}
	}

	if localWaiter {
		if err := c.putRetained(ctx, payload, hopDistance); err != nil {
			if !errors.Is(err, store.ErrCapacity) {
				return err
			}
			// the waiter's completion outranks retention, deliver
			// from the standby queue instead
			c.log.Errorw("coordinator", "error", "cannot retain fetched chunk", "chunk", id, "error", err)
			c.pushStandby(id, payload, hopDistance)
		}

		if err := c.ledger.Resolve(id, model.KindFetch); err != nil && !errors.Is(err, ledger.ErrNotPending) {
			return err
		}
		return nil
	}

	if err := c.maybeRetain(ctx, id, payload, hopDistance); err != nil {
		return err
	}

	if pending {
		if err := c.ledger.Resolve(id, model.KindFetch); err != nil && !errors.Is(err, ledger.ErrNotPending) {
			return err
		}
	}

	return nil
}

// maybeRetain runs the admission policy over a chunk this node was not
// itself waiting for. Rejected payloads park on standby so pending remote
// deliveries can still complete without the chunk being retained.
func (c *Coordinator) maybeRetain(ctx context.Context, id model.ChunkIdentity, payload []byte, hopDistance int) error {
	demand, lastDemand := c.ledger.Demand(id)
	cand := admission.Candidate{
		Identity:    id,
		Size:        uint64(len(payload)),
		HopDistance: hopDistance,
		Demand:      demand,
		LastDemand:  lastDemand,
	}

	admit, err := c.policy.ShouldAdmit(ctx, cand)
	if err != nil {
		return err
	}

	if !admit {
		c.pushStandby(id, payload, hopDistance)
		return nil
	}

	if err := c.putRetained(ctx, payload, hopDistance); err != nil {
		if errors.Is(err, store.ErrCapacity) {
			c.pushStandby(id, payload, hopDistance)
			return nil
		}
		return err
	}

	return nil
}

// HandleOffer processes a peer advertising an identity. Offers for present
// chunks are ignored, offers for locally desired chunks turn into fetches.
func (c *Coordinator) HandleOffer(ctx context.Context, id model.ChunkIdentity, from model.Peer) error {
	present, err := c.store.Has(ctx, id)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	if !c.interestedIn(id) && !c.cfg.AutoFetch {
		return nil
	}

	if created := c.ledger.Register(id, model.KindFetch, localPeer); !created {
		return nil
	}

	// the offering peer is the best known holder, ask it directly
	if err := c.transport.SendRequest(ctx, id, from); err != nil {
		c.log.Warnw("coordinator", "status", "request send failed", "chunk", id, "peer", from.Address, "error", err)
		_ = c.ledger.Fail(id, model.KindFetch, err)
	}

	return nil
}

// HandleRequest serves a chunk to a requesting peer. When the chunk is
// absent and relaying is enabled the peer joins the ledger entry and the
// chunk is fetched on its behalf.
func (c *Coordinator) HandleRequest(ctx context.Context, id model.ChunkIdentity, from model.Peer) error {
	chunk, err := c.store.Get(ctx, id)
	if err == nil {
		// the offer entry pins the chunk against eviction while the
		// outbound transfer is in flight
		c.ledger.Register(id, model.KindOffer, from)
		sendErr := c.transport.SendChunk(ctx, id, chunk.Payload, chunk.HopDistance, from)
		if rerr := c.ledger.Resolve(id, model.KindOffer); rerr != nil && !errors.Is(rerr, ledger.ErrNotPending) {
			c.log.Errorw("coordinator", "error", "ledger resolve", "chunk", id, "error", rerr)
		}
		return sendErr
	}

	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if !c.cfg.Relay {
		return store.ErrNotFound
	}

	if created := c.ledger.Register(id, model.KindFetch, from); created {
		c.sendFetch(ctx, id, 0)
	}

	return nil
}

// putRetained persists a payload, evicting under pressure first.
func (c *Coordinator) putRetained(ctx context.Context, payload []byte, hopDistance int) error {
	_, err := c.store.Put(ctx, payload, hopDistance)
	if !errors.Is(err, store.ErrCapacity) {
		return err
	}

	victims, err := c.policy.SelectEvictions(ctx, uint64(len(payload)))
	if err != nil {
		return err
	}

	for _, v := range victims {
		if err := c.store.Delete(ctx, v); err != nil {
			c.log.Errorw("coordinator", "error", "eviction failed", "chunk", v, "error", err)
		}
	}

	_, err = c.store.Put(ctx, payload, hopDistance)
	return err
}
