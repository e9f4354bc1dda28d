package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/pyropy/rnfs/core/admission"
	"github.com/pyropy/rnfs/core/model"
	"github.com/pyropy/rnfs/core/store"
)

// standbyEntry holds a chunk that resolved off the wire but is not locally
// cached yet, pending an admission decision.
type standbyEntry struct {
	id          model.ChunkIdentity
	payload     []byte
	hopDistance int
	addedAt     time.Time
}

// pushStandby queues a chunk for a later admission attempt. The queue is
// bounded, the oldest entry is dropped on overflow.
func (c *Coordinator) pushStandby(id model.ChunkIdentity, payload []byte, hopDistance int) {
	c.standbyMu.Lock()
	defer c.standbyMu.Unlock()

	for _, e := range c.standby {
		if e.id == id {
			return
		}
	}

	c.standby = append(c.standby, standbyEntry{
		id:          id,
		payload:     payload,
		hopDistance: hopDistance,
		addedAt:     time.Now(),
	})

	if len(c.standby) > c.cfg.StandbyLimit {
		c.standby = c.standby[1:]
	}
}

func (c *Coordinator) standbyPayload(id model.ChunkIdentity) ([]byte, int, bool) {
	c.standbyMu.Lock()
	defer c.standbyMu.Unlock()

	for _, e := range c.standby {
		if e.id == id {
			return e.payload, e.hopDistance, true
		}
	}

	return nil, 0, false
}

// tryAdmitStandby re-scores queued chunks after store state changed, stale
// entries are dropped.
func (c *Coordinator) tryAdmitStandby(ctx context.Context) {
	c.standbyMu.Lock()
	pending := c.standby
	c.standby = nil
	c.standbyMu.Unlock()

	now := time.Now()

	for _, e := range pending {
		if c.cfg.StandbyTTL > 0 && now.Sub(e.addedAt) > c.cfg.StandbyTTL {
			continue
		}

		demand, lastDemand := c.ledger.Demand(e.id)
		cand := admission.Candidate{
			Identity:    e.id,
			Size:        uint64(len(e.payload)),
			HopDistance: e.hopDistance,
			Demand:      demand,
			LastDemand:  lastDemand,
		}

		admit, err := c.policy.ShouldAdmit(ctx, cand)
		if err != nil || !admit {
			c.requeueStandby(e)
			continue
		}

		if _, err := c.store.Put(ctx, e.payload, e.hopDistance); err != nil {
			if errors.Is(err, store.ErrCapacity) {
				c.requeueStandby(e)
				continue
			}
			c.log.Errorw("coordinator", "error", "standby admission failed", "chunk", e.id, "error", err)
		}
	}
}

func (c *Coordinator) requeueStandby(e standbyEntry) {
	c.standbyMu.Lock()
	defer c.standbyMu.Unlock()

	c.standby = append(c.standby, e)
}
