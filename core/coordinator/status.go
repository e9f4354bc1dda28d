package coordinator

import (
	"context"

	"github.com/google/uuid"

	"github.com/pyropy/rnfs/core/model"
)

// HandleStatus is the API-facing snapshot of one fetch intent.
type HandleStatus struct {
	Handle     uuid.UUID
	ManifestID model.ChunkIdentity
	State      model.RequestState
	Reason     string
	Total      int
	Missing    int
}

// IdentityStatus combines ledger state and store presence for one identity.
type IdentityStatus struct {
	Identity model.ChunkIdentity
	Present  bool
	Tracked  bool
	State    model.RequestState
	Attempts int
	Waiters  int
}

// Status answers "where is my request" for a handle issued by FetchFile or
// FetchChunk.
func (c *Coordinator) Status(handle uuid.UUID) (HandleStatus, error) {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()

	h, ok := c.handles[handle]
	if !ok {
		return HandleStatus{}, ErrUnknownHandle
	}

	s := HandleStatus{
		Handle:     h.ID,
		ManifestID: h.ManifestID,
		State:      h.State,
		Total:      h.Total,
		Missing:    len(h.Missing),
	}
	if h.Reason != nil {
		s.Reason = h.Reason.Error()
	}

	return s, nil
}

// StatusByIdentity snapshots a single identity across ledger and store.
func (c *Coordinator) StatusByIdentity(ctx context.Context, id model.ChunkIdentity) (IdentityStatus, error) {
	present, err := c.store.Has(ctx, id)
	if err != nil {
		return IdentityStatus{}, err
	}

	s := IdentityStatus{
		Identity: id,
		Present:  present,
	}

	if entry, ok := c.ledger.Snapshot(id, model.KindFetch); ok {
		s.Tracked = true
		s.State = entry.State
		s.Attempts = entry.Attempts
		s.Waiters = len(entry.Peers)
	}

	return s, nil
}

// Complete reports whether every chunk of a locally known manifest resolves
// in the store.
func (c *Coordinator) Complete(ctx context.Context, manifestID model.ChunkIdentity) (bool, error) {
	manifest, err := c.resolver.Resolve(ctx, manifestID)
	if err != nil {
		return false, err
	}

	for _, id := range manifest.Chunks {
		present, err := c.store.Has(ctx, id)
		if err != nil {
			return false, err
		}
		if !present {
			return false, nil
		}
	}

	return true, nil
}
