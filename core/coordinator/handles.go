package coordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/pyropy/rnfs/core/model"
)

// handleState tracks one API fetch intent. All mutation happens under the
// coordinator's handle mutex, handleState has no locking of its own.
type handleState struct {
	ID         uuid.UUID
	ManifestID model.ChunkIdentity
	Total      int
	Missing    map[model.ChunkIdentity]struct{}
	State      model.RequestState
	Reason     error
	CreatedAt  time.Time

	settledAt time.Time
}

func newHandleState(manifestID model.ChunkIdentity, chunks []model.ChunkIdentity) *handleState {
	missing := make(map[model.ChunkIdentity]struct{}, len(chunks))
	for _, id := range chunks {
		missing[id] = struct{}{}
	}

	return &handleState{
		ID:         uuid.New(),
		ManifestID: manifestID,
		Total:      len(chunks),
		Missing:    missing,
		State:      model.StatePending,
		CreatedAt:  time.Now(),
	}
}

func (h *handleState) markPresent(id model.ChunkIdentity) {
	delete(h.Missing, id)
}

func (h *handleState) settleIfComplete() {
	if h.State == model.StatePending && len(h.Missing) == 0 {
		h.State = model.StateResolved
		h.settledAt = time.Now()
	}
}

func (h *handleState) missingCount() int {
	return len(h.Missing)
}

func (h *handleState) missingSnapshot() []model.ChunkIdentity {
	ids := make([]model.ChunkIdentity, 0, len(h.Missing))
	for id := range h.Missing {
		ids = append(ids, id)
	}

	return ids
}

func (c *Coordinator) putHandle(h *handleState) {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()

	c.handles[h.ID] = h
}

// resolveHandles completes every open handle waiting on the identity.
func (c *Coordinator) resolveHandles(id model.ChunkIdentity) {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()

	for _, h := range c.handles {
		if h.State != model.StatePending {
			continue
		}

		h.markPresent(id)
		h.settleIfComplete()
	}
}

// failHandles terminally fails every open handle waiting on the identity.
func (c *Coordinator) failHandles(id model.ChunkIdentity, reason error) {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()

	for _, h := range c.handles {
		if h.State != model.StatePending {
			continue
		}

		if _, waiting := h.Missing[id]; waiting {
			h.State = model.StateFailed
			h.Reason = reason
			h.settledAt = time.Now()
		}
	}
}

// sweepHandles drops settled handles older than the handle TTL. Pending
// handles are never swept, they settle through resolve, fail or cancel.
func (c *Coordinator) sweepHandles(now time.Time) {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()

	for id, h := range c.handles {
		if h.State == model.StatePending || h.settledAt.IsZero() {
			continue
		}
		if now.Sub(h.settledAt) > c.cfg.HandleTTL {
			delete(c.handles, id)
		}
	}
}
