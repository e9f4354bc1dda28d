package coordinator

import (
	"context"
	"fmt"

	"github.com/pyropy/rnfs/core/model"
)

// Publish chunks a payload, stores every chunk and persists the manifest.
// Offers for the new chunks are announced to known peers best-effort.
func (c *Coordinator) Publish(ctx context.Context, name string, payload []byte) (*model.FileManifest, error) {
	chunks := make([]model.ChunkIdentity, 0, len(payload)/c.cfg.ChunkSize+1)

	for offset := 0; offset < len(payload) || offset == 0; offset += c.cfg.ChunkSize {
		end := offset + c.cfg.ChunkSize
		if end > len(payload) {
			end = len(payload)
		}

		piece := payload[offset:end]
		if err := c.putRetained(ctx, piece, 0); err != nil {
			return nil, fmt.Errorf("store chunk %d: %w", len(chunks), err)
		}

		chunks = append(chunks, model.NewChunkIdentity(piece))
	}

	manifest := model.NewFileManifest(name, c.cfg.Publisher, uint64(len(payload)), chunks)
	if err := c.store.PutManifest(ctx, manifest); err != nil {
		return nil, fmt.Errorf("store manifest: %w", err)
	}

	c.log.Infow("coordinator", "event", "publish", "name", name, "manifest", manifest.Identity, "chunks", len(chunks), "size", len(payload))

	c.announce(ctx, chunks)
	return &manifest, nil
}

// announce offers chunk identities to every known peer. Failures are
// logged only, announcements are opportunistic. Freshly published chunks
// carry hop distance zero, this node is their publisher.
func (c *Coordinator) announce(ctx context.Context, ids []model.ChunkIdentity) {
	for _, peer := range c.router.Peers() {
		for _, id := range ids {
			if err := c.transport.SendOffer(ctx, id, 0, peer); err != nil {
				c.log.Debugw("coordinator", "status", "offer failed", "chunk", id, "peer", peer.Address, "error", err)
			}
		}
	}
}
