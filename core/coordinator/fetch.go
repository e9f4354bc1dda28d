package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pyropy/rnfs/core/model"
)

// FetchFile resolves a manifest and requests every constituent chunk that
// is not already present. Concurrent fetches of the same manifest share a
// single resolution. Returns a handle for status queries and cancellation.
func (c *Coordinator) FetchFile(ctx context.Context, manifestID model.ChunkIdentity) (uuid.UUID, error) {
	manifest, _, err := c.manifestFlight.Do(ctx, manifestID.String(), func(ctx context.Context) (*model.FileManifest, error) {
		return c.resolver.Resolve(ctx, manifestID)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve manifest: %w", err)
	}

	h := newHandleState(manifestID, manifest.Chunks)
	waiter := model.Peer{Address: localHandleAddr(h.ID)}

	c.addInterest(manifest.Chunks...)

	for _, id := range manifest.Chunks {
		present, err := c.store.Has(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		if present {
			h.markPresent(id)
			continue
		}

		if created := c.ledger.Register(id, model.KindFetch, waiter); created {
			c.sendFetch(ctx, id, 0)
		}
	}

	h.settleIfComplete()
	c.putHandle(h)

	c.log.Infow("coordinator", "event", "fetch file", "manifest", manifestID, "chunks", len(manifest.Chunks), "missing", h.missingCount(), "handle", h.ID)
	return h.ID, nil
}

// FetchChunk requests a single chunk identity on behalf of the local node.
func (c *Coordinator) FetchChunk(ctx context.Context, id model.ChunkIdentity) (uuid.UUID, error) {
	h := newHandleState(model.ChunkIdentity{}, []model.ChunkIdentity{id})

	present, err := c.store.Has(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}

	if present {
		h.markPresent(id)
	} else {
		c.addInterest(id)
		waiter := model.Peer{Address: localHandleAddr(h.ID)}
		if created := c.ledger.Register(id, model.KindFetch, waiter); created {
			c.sendFetch(ctx, id, 0)
		}
	}

	h.settleIfComplete()
	c.putHandle(h)

	c.log.Infow("coordinator", "event", "fetch chunk", "chunk", id, "handle", h.ID)
	return h.ID, nil
}

// Subscribe registers opportunistic interest in a manifest: offers for its
// chunks are fetched as they are heard, without an explicit fetch intent.
func (c *Coordinator) Subscribe(ctx context.Context, manifestID model.ChunkIdentity) error {
	manifest, err := c.resolver.Resolve(ctx, manifestID)
	if err != nil {
		return err
	}

	c.addInterest(manifest.Chunks...)
	return nil
}

// Cancel withdraws one handle's interest. Other handles waiting on the
// same identities keep their own peer-set membership; only an entry whose
// peer set drains completely is torn down by the ledger.
func (c *Coordinator) Cancel(handle uuid.UUID) error {
	c.handleMu.Lock()
	h, ok := c.handles[handle]
	if !ok {
		c.handleMu.Unlock()
		return ErrUnknownHandle
	}

	missing := h.missingSnapshot()
	h.State = model.StateFailed
	h.Reason = ErrCanceled
	h.settledAt = time.Now()
	c.handleMu.Unlock()

	for _, id := range missing {
		c.ledger.Cancel(id, model.KindFetch, localHandleAddr(handle))
	}

	c.log.Infow("coordinator", "event", "cancel", "handle", handle, "outstanding", len(missing))
	return nil
}
